// Package analyze scores, summarizes, and themes each category's items
// with a map-reduce over the reasoning model: quick per-batch scoring
// passes feed one deep synthesis pass per category.
package analyze

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"dailybrief/internal/core"
	"dailybrief/internal/llm"
	"dailybrief/internal/logger"
)

const (
	batchSize      = 75
	mapConcurrency = 4
	topItemCount   = 10

	minThemes = 3
	maxThemes = 7

	// Per-item content sent to the map pass. The full sanitized content
	// stays on the item; the model only needs the opening.
	mapContentChars = 1200
)

// Analyzer runs the two-phase analysis for one category at a time.
type Analyzer struct {
	llm *llm.Client
}

// New builds an Analyzer over the shared model client.
func New(lc *llm.Client) *Analyzer {
	return &Analyzer{llm: lc}
}

// Analyze produces the category report for the given items. Batch-level
// model failures degrade the report to partial with unscored items; the
// only returned error is reasoning loss, which aborts the run.
func (a *Analyzer) Analyze(ctx context.Context, category core.Category, items []core.Item, gatherStatus core.Status) (core.CategoryReport, error) {
	report := core.CategoryReport{
		Category:       category,
		Status:         gatherStatus,
		ItemCountTotal: len(items),
	}
	if len(items) == 0 {
		report.Items = []core.Item{}
		report.TopItems = []core.Item{}
		return report, nil
	}

	scored, mapStatus, err := a.mapPhase(ctx, category, items)
	if err != nil {
		return report, err
	}
	report.Status = core.Worse(report.Status, mapStatus)

	themes, summary, reduceStatus, err := a.reducePhase(ctx, category, scored)
	if err != nil {
		return report, err
	}
	report.Status = core.Worse(report.Status, reduceStatus)

	rankItems(scored)
	report.Items = scored
	report.Themes = themes
	report.CategorySummary = summary
	top := topItemCount
	if top > len(scored) {
		top = len(scored)
	}
	report.TopItems = scored[:top]
	return report, nil
}

// mapItem is one item as presented to the scoring pass.
type mapItem struct {
	ID      string `json:"id"`
	Source  string `json:"source"`
	Title   string `json:"title"`
	Content string `json:"content"`
}

// mapVerdict is the model's judgment of one item.
type mapVerdict struct {
	ID      string   `json:"id"`
	Score   int      `json:"score"`
	Summary string   `json:"summary"`
	Themes  []string `json:"themes"`
}

const mapSystem = "You score items for a daily AI/ML briefing. For each item, assign a " +
	"relevance score from 0 to 100 (impact on practitioners of AI and machine learning), " +
	"write a one or two sentence factual summary, and tag it with up to three short theme " +
	"labels. Respond with a JSON array of objects {id, score, summary, themes}, one per " +
	"input item, nothing else."

// mapPhase scores every item in bounded-concurrency batches. Each batch
// gets one retry; a batch failing twice passes its items through unscored
// and marks the phase partial. Reasoning loss skips the retry and aborts
// the whole phase.
func (a *Analyzer) mapPhase(ctx context.Context, category core.Category, items []core.Item) ([]core.Item, core.Status, error) {
	log := logger.Get()
	phase := "analyze_map_" + string(category)

	type batchResult struct {
		start    int
		verdicts map[string]mapVerdict
		dropped  bool
	}

	var (
		mu      sync.Mutex
		results []batchResult
	)
	eg, bctx := errgroup.WithContext(ctx)
	eg.SetLimit(mapConcurrency)
	for start := 0; start < len(items); start += batchSize {
		end := start + batchSize
		if end > len(items) {
			end = len(items)
		}
		batch := items[start:end]
		start := start
		eg.Go(func() error {
			verdicts, err := a.scoreBatch(bctx, phase, batch)
			if err != nil && !llm.IsReasoningUnavailable(err) {
				// One retry before giving the batch up.
				verdicts, err = a.scoreBatch(bctx, phase, batch)
			}
			if llm.IsReasoningUnavailable(err) {
				return err
			}
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				log.Warn("analyze: batch dropped after retry",
					"category", category, "batch_start", start, "error", err)
				results = append(results, batchResult{start: start, dropped: true})
				return nil
			}
			results = append(results, batchResult{start: start, verdicts: verdicts})
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, core.StatusFailed, err
	}

	status := core.StatusSuccess
	verdicts := make(map[string]mapVerdict)
	for _, r := range results {
		if r.dropped {
			status = core.StatusPartial
			continue
		}
		for id, v := range r.verdicts {
			verdicts[id] = v
		}
	}
	if ctx.Err() != nil {
		status = core.Worse(status, core.StatusPartial)
	}

	out := make([]core.Item, len(items))
	copy(out, items)
	for i := range out {
		v, ok := verdicts[out[i].ID]
		if !ok {
			// Unscored passthrough keeps the item visible at rank bottom.
			out[i].Score = 0
			continue
		}
		out[i].Score = clampScore(v.Score)
		out[i].Summary = strings.TrimSpace(v.Summary)
		out[i].ThemesTags = v.Themes
	}
	return out, status, nil
}

// scoreBatch issues one quick scoring call and indexes the verdicts by
// item id. Verdicts for ids not in the batch are discarded.
func (a *Analyzer) scoreBatch(ctx context.Context, phase string, batch []core.Item) (map[string]mapVerdict, error) {
	payload := make([]mapItem, 0, len(batch))
	ids := make(map[string]bool, len(batch))
	for _, item := range batch {
		content := item.Content
		if len(content) > mapContentChars {
			content = content[:mapContentChars]
		}
		payload = append(payload, mapItem{
			ID:      item.ID,
			Source:  item.SourceName,
			Title:   item.Title,
			Content: content,
		})
		ids[item.ID] = true
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	resp, err := a.llm.Generate(ctx, phase, mapSystem, string(body), llm.BudgetQuick)
	if err != nil {
		return nil, err
	}
	doc, err := ExtractJSON(resp.Text)
	if err != nil {
		return nil, err
	}
	var parsed []mapVerdict
	if err := json.Unmarshal(doc, &parsed); err != nil {
		return nil, fmt.Errorf("batch verdicts: %w", err)
	}

	verdicts := make(map[string]mapVerdict, len(parsed))
	for _, v := range parsed {
		if ids[v.ID] {
			verdicts[v.ID] = v
		}
	}
	if len(verdicts) == 0 {
		return nil, fmt.Errorf("batch verdicts referenced no known item")
	}
	return verdicts, nil
}

// reduceOutput is the deep pass response shape.
type reduceOutput struct {
	Themes []struct {
		Name        string   `json:"name"`
		Description string   `json:"description"`
		ItemIDs     []string `json:"item_ids"`
	} `json:"themes"`
	CategorySummary string `json:"category_summary"`
}

const reduceSystem = "You synthesize one category of a daily AI/ML briefing. Given the " +
	"day's scored items, identify between three and seven themes that organize them, and " +
	"write a category summary paragraph capturing what mattered and why. Respond with a " +
	"JSON object {themes: [{name, description, item_ids}], category_summary}, nothing else."

// reducePhase derives themes and the category summary from the scored
// items in one deep call, retried once. Final failure falls back to a
// summary built from the map output and marks the report partial.
// Reasoning loss aborts instead.
func (a *Analyzer) reducePhase(ctx context.Context, category core.Category, items []core.Item) ([]core.Theme, string, core.Status, error) {
	log := logger.Get()
	phase := "analyze_reduce_" + string(category)

	type reduceItem struct {
		ID      string   `json:"id"`
		Title   string   `json:"title"`
		Score   int      `json:"score"`
		Summary string   `json:"summary,omitempty"`
		Themes  []string `json:"themes,omitempty"`
	}
	payload := make([]reduceItem, 0, len(items))
	known := make(map[string]bool, len(items))
	for _, item := range items {
		payload = append(payload, reduceItem{
			ID: item.ID, Title: item.Title, Score: item.Score,
			Summary: item.Summary, Themes: item.ThemesTags,
		})
		known[item.ID] = true
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fallbackCategorySummary(items), core.StatusPartial, nil
	}

	parsed, err := a.reduceCall(ctx, phase, string(body))
	if err != nil && !llm.IsReasoningUnavailable(err) {
		parsed, err = a.reduceCall(ctx, phase, string(body))
	}
	if llm.IsReasoningUnavailable(err) {
		return nil, "", core.StatusFailed, err
	}
	if err != nil {
		log.Warn("analyze: reduce failed after retry, using fallback summary",
			"category", category, "error", err)
		return nil, fallbackCategorySummary(items), core.StatusPartial, nil
	}

	// An id counts toward one theme at most, so theme sizes never add up
	// to more than the category holds.
	counted := make(map[string]bool)
	themes := make([]core.Theme, 0, len(parsed.Themes))
	for _, t := range parsed.Themes {
		name := strings.TrimSpace(t.Name)
		if name == "" {
			continue
		}
		count := 0
		for _, id := range t.ItemIDs {
			if known[id] && !counted[id] {
				counted[id] = true
				count++
			}
		}
		themes = append(themes, core.Theme{
			Name:        name,
			Description: strings.TrimSpace(t.Description),
			ItemCount:   count,
		})
		if len(themes) == maxThemes {
			break
		}
	}
	status := core.StatusSuccess
	if len(themes) < minThemes && len(items) >= minThemes {
		log.Warn("analyze: reduce returned too few themes",
			"category", category, "themes", len(themes))
		status = core.StatusPartial
	}
	return themes, strings.TrimSpace(parsed.CategorySummary), status, nil
}

// reduceCall issues one deep synthesis call and parses its response.
func (a *Analyzer) reduceCall(ctx context.Context, phase, body string) (reduceOutput, error) {
	var parsed reduceOutput
	resp, err := a.llm.Generate(ctx, phase, reduceSystem, body, llm.BudgetDeep)
	if err != nil {
		return parsed, err
	}
	doc, err := ExtractJSON(resp.Text)
	if err != nil {
		return parsed, err
	}
	if err := json.Unmarshal(doc, &parsed); err != nil {
		return parsed, fmt.Errorf("reduce output: %w", err)
	}
	return parsed, nil
}

// fallbackCategorySummary stitches a deterministic summary out of the
// highest scored items' map summaries when the reduce pass is lost.
func fallbackCategorySummary(items []core.Item) string {
	ranked := make([]core.Item, len(items))
	copy(ranked, items)
	rankItems(ranked)

	var parts []string
	for _, item := range ranked {
		if item.Summary != "" {
			parts = append(parts, item.Summary)
		}
		if len(parts) == 3 {
			break
		}
	}
	if len(parts) == 0 {
		for _, item := range ranked {
			parts = append(parts, item.Title)
			if len(parts) == 3 {
				break
			}
		}
	}
	return strings.Join(parts, " ")
}

// rankItems orders items by score descending. Ties fall back to source
// kind preference, then engagement, then earlier collection time.
func rankItems(items []core.Item) {
	sort.SliceStable(items, func(i, j int) bool {
		a, b := items[i], items[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		ra, rb := core.RankPreference(a.SourceKind), core.RankPreference(b.SourceKind)
		if ra != rb {
			return ra < rb
		}
		ea, eb := Engagement(a), Engagement(b)
		if ea != eb {
			return ea > eb
		}
		return a.CollectedAt.Before(b.CollectedAt)
	})
}

// Engagement sums the item's social or forum interaction counters.
func Engagement(item core.Item) int {
	total := 0
	for _, key := range []string{"likes", "reposts", "upvotes", "comments"} {
		if raw, ok := item.Metadata[key]; ok {
			if n, err := strconv.Atoi(raw); err == nil {
				total += n
			}
		}
	}
	return total
}

func clampScore(s int) int {
	if s < 0 {
		return 0
	}
	if s > 100 {
		return 100
	}
	return s
}
