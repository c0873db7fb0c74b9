// Package pipeline orchestrates a briefing run: gather, analyze,
// synthesize, illustrate, render. Source and model failures degrade the
// report; only configuration errors and reasoning loss abort it.
package pipeline

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"dailybrief/internal/analyze"
	"dailybrief/internal/config"
	"dailybrief/internal/core"
	"dailybrief/internal/cost"
	"dailybrief/internal/ecosystem"
	"dailybrief/internal/gather"
	"dailybrief/internal/limiter"
	"dailybrief/internal/llm"
	"dailybrief/internal/logger"
	"dailybrief/internal/render"
	"dailybrief/internal/sources"
	"dailybrief/internal/synthesis"
	"dailybrief/internal/visual"
)

// RunDeadline bounds a whole run. Past it, in-flight work drains and the
// report ships with whatever was gathered.
const RunDeadline = 20 * time.Minute

// Options configures a pipeline run.
type Options struct {
	SourcesDir  string // Source list directory, default "config/sources"
	CuratedPath string // Ecosystem timeline, default ecosystem.DefaultCuratedPath
	RegistryURL string // External release registry, empty disables the merge
	OutputRoot  string // Artifact root, default render.DefaultRoot
}

// Pipeline wires the run's components around shared clients.
type Pipeline struct {
	cfg    *config.Config
	opts   Options
	hc     *limiter.Client
	llm    *llm.Client
	image  *visual.Client // nil when no image provider is configured
	ledger *cost.Ledger
}

// New assembles a Pipeline from validated configuration.
func New(cfg *config.Config, opts Options) (*Pipeline, error) {
	if opts.SourcesDir == "" {
		opts.SourcesDir = "config/sources"
	}
	if opts.CuratedPath == "" {
		opts.CuratedPath = ecosystem.DefaultCuratedPath
	}

	hcOpts := limiter.DefaultOptions()
	if cfg.LLM.Timeout() > hcOpts.Timeout {
		hcOpts.Timeout = cfg.LLM.Timeout()
	}
	hc := limiter.New(hcOpts)

	ledger := cost.NewLedger(cfg.LLM.Model)
	lc, err := llm.NewClient(cfg.LLM, hc, ledger)
	if err != nil {
		return nil, err
	}

	p := &Pipeline{cfg: cfg, opts: opts, hc: hc, llm: lc, ledger: ledger}
	if cfg.Image.Configured() {
		p.image = visual.NewClient(cfg.Image, hc)
	}
	return p, nil
}

// Run executes one briefing for the given report date. The returned
// report is always non-nil once gathering starts; the error is non-nil
// only for aborting failures (reasoning loss, unloadable zone, render
// failure).
func (p *Pipeline) Run(ctx context.Context, reportDate string) (*core.DayReport, error) {
	runID := uuid.NewString()
	log := logger.With("run_id", runID, "date", reportDate)
	started := time.Now()

	window, err := Window(reportDate)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, RunDeadline)
	defer cancel()

	report := &core.DayReport{
		RunID:         runID,
		ReportDate:    reportDate,
		CoverageStart: window.Start.UTC(),
		CoverageEnd:   window.End.UTC(),
		Categories:    make(map[core.Category]core.CategoryReport),
	}
	// The ledger flushes into the report whichever way the run ends.
	defer func() {
		report.CostSummary = p.ledger.Summary()
		log.Info("run cost", "detail", cost.Format(report.CostSummary))
	}()

	lists, err := sources.Load(p.opts.SourcesDir)
	if err != nil {
		return report, err
	}

	timeline, err := ecosystem.LoadCurated(p.opts.CuratedPath)
	if err != nil {
		log.Warn("ecosystem timeline unavailable", "error", err)
		timeline = ecosystem.NewTimeline()
	}
	ecosystem.MergeRegistry(ctx, p.hc, p.opts.RegistryURL, timeline)

	// Phase 1: gather all four categories in parallel.
	gatherOpts := gather.DefaultOptions()
	runtime := gather.NewRuntime(
		gather.NewNewsGatherer(lists.News, p.hc, gatherOpts),
		gather.NewResearchGatherer(lists.Research, p.hc, gatherOpts),
		gather.NewSocialGatherer(lists.Social, p.hc, gatherOpts, p.cfg.Social.MicroblogAPIKey),
		gather.NewCommunityGatherer(lists.Community, p.hc, gatherOpts),
	)
	gathered := runtime.Run(ctx, window)

	// Phase 1.5: promote article links shared on social into news.
	scout := gather.NewLinkScout(p.llm, p.hc)
	scouted, err := scout.Scout(ctx, gathered.Items[core.CategorySocial], window)
	if err != nil {
		return report, err
	}
	if len(scouted) > 0 {
		existing := make(map[string]bool)
		for _, item := range gathered.Items[core.CategoryNews] {
			existing[item.ID] = true
		}
		normalized, _ := gather.Normalize(core.CategoryNews, window, scouted)
		for _, item := range normalized {
			if !existing[item.ID] {
				gathered.Items[core.CategoryNews] = append(gathered.Items[core.CategoryNews], item)
			}
		}
	}

	statusByCategory := make(map[core.Category]core.CategoryStatus)
	for _, cs := range gathered.Statuses {
		statusByCategory[cs.Category] = cs
	}

	// Phase 2: analyze the categories, one worker per category; each
	// analyzer bounds its own batch concurrency on top.
	analyzer := analyze.New(p.llm)
	var amu sync.Mutex
	aeg, actx := errgroup.WithContext(ctx)
	for _, category := range core.Categories {
		category := category
		cs := statusByCategory[category]
		items := gathered.Items[category]
		aeg.Go(func() error {
			catReport, err := analyzer.Analyze(actx, category, items, cs.Status)
			if err != nil {
				return err
			}
			catReport.Notice = cs.Notice
			amu.Lock()
			report.Categories[category] = catReport
			amu.Unlock()
			return nil
		})
	}
	if err := aeg.Wait(); err != nil {
		return report, err
	}
	report.CollectionStatus = collectionStatus(gathered, report.Categories)

	if report.CollectionStatus.Overall == core.StatusFailed {
		log.Error("every category failed, writing failure report")
	}

	// Phases 3 and 4: cross-category synthesis, grounded on the curated
	// and registry timeline.
	synth := synthesis.New(p.llm, timeline.GroundingText())
	topics, err := synth.Topics(ctx, report.Categories)
	if err != nil {
		if llm.IsReasoningUnavailable(err) {
			return report, err
		}
		log.Warn("topic synthesis failed, briefing ships without topics", "error", err)
		report.CollectionStatus.Overall = core.Worse(report.CollectionStatus.Overall, core.StatusPartial)
	}
	report.TopTopics = topics

	bullets, err := synth.Executive(ctx, topics, report.Categories)
	if err != nil {
		return report, err
	}
	report.ExecutiveSummary, err = synth.EnrichLinks(ctx, reportDate, bullets, report.Categories)
	if err != nil {
		return report, err
	}

	// Phase 4.6: let the day's own items extend the release timeline, and
	// persist what was found for the runs after this one.
	detected, err := ecosystem.Enrich(ctx, p.llm, timeline, report.Categories)
	if err != nil {
		return report, err
	}
	if err := ecosystem.AppendDetected(p.opts.CuratedPath, detected); err != nil {
		log.Warn("ecosystem: persisting detected releases failed", "error", err)
	}

	// Phase 5: hero image, best effort.
	if p.image != nil {
		report.HeroImagePrompt, err = synth.HeroPrompt(ctx, topics)
		if err != nil {
			return report, err
		}
		imgCtx, imgCancel := context.WithTimeout(ctx, p.cfg.Image.Timeout())
		data, err := p.image.Generate(imgCtx, visual.Request{
			Prompt:      report.HeroImagePrompt,
			AspectRatio: "16:9",
			Size:        "2K",
		})
		imgCancel()
		if err != nil {
			log.Warn("hero image generation failed", "error", err)
		} else {
			report.HeroImage = data
		}
	}

	renderer := render.New(p.opts.OutputRoot)
	if err := renderer.WriteReport(report); err != nil {
		return report, err
	}

	log.Info("run finished",
		"overall", report.CollectionStatus.Overall,
		"topics", len(report.TopTopics),
		"elapsed", time.Since(started).Round(time.Second).String())
	return report, nil
}

// collectionStatus projects the per-category outcomes onto the run. All
// categories failed means the run failed; any degradation means partial.
func collectionStatus(gathered gather.Result, reports map[core.Category]core.CategoryReport) core.CollectionStatus {
	cs := core.CollectionStatus{
		Overall:    core.StatusSuccess,
		Categories: gathered.Statuses,
		Dropped:    gathered.Dropped,
	}
	failed := 0
	counted := 0
	for _, report := range reports {
		counted++
		if report.Status == core.StatusFailed {
			failed++
		}
		cs.Overall = core.Worse(cs.Overall, report.Status)
	}
	if counted > 0 && failed == counted {
		cs.Overall = core.StatusFailed
	} else if failed > 0 {
		// Some categories failed outright but others delivered.
		cs.Overall = core.Worse(core.StatusPartial, cs.Overall)
		if cs.Overall == core.StatusFailed {
			cs.Overall = core.StatusPartial
		}
	}
	return cs
}

// ExitCode maps a finished run onto the process exit contract: 0 when a
// report shipped (even degraded), 1 when the run aborted, 2 for
// configuration problems.
func ExitCode(report *core.DayReport, err error) int {
	var vErr *config.ValidationError
	if errors.As(err, &vErr) {
		return 2
	}
	if err != nil {
		return 1
	}
	return 0
}
