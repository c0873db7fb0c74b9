package gather

import (
	"context"
	"fmt"
	"net/url"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"dailybrief/internal/core"
	"dailybrief/internal/limiter"
)

const (
	preprintFeedBase = "https://rss.arxiv.org/rss/"
	preprintAPIBase  = "https://export.arxiv.org/api/query"
)

// ResearchGatherer pulls preprint categories and research feeds. Preprint
// categories use the feed-of-the-day for current dates and the structured
// query API for historical runs; only new and cross announcements are
// accepted, never replacements.
type ResearchGatherer struct {
	sources []core.Source
	hc      *limiter.Client
	opts    Options

	// now is injected for tests; defaults to time.Now.
	now func() time.Time
}

// NewResearchGatherer builds the research gatherer.
func NewResearchGatherer(srcs []core.Source, hc *limiter.Client, opts Options) *ResearchGatherer {
	return &ResearchGatherer{sources: srcs, hc: hc, opts: opts, now: time.Now}
}

// Category implements Gatherer.
func (g *ResearchGatherer) Category() core.Category { return core.CategoryResearch }

// Gather implements Gatherer.
func (g *ResearchGatherer) Gather(ctx context.Context, window core.CoverageWindow) ([]core.Item, core.CategoryStatus) {
	norm := newNormalizer(core.CategoryResearch, window)
	var (
		mu       sync.Mutex
		statuses []core.SourceStatus
	)

	eg, fctx := errgroup.WithContext(ctx)
	eg.SetLimit(g.opts.MaxConcurrentSources)
	for _, src := range g.sources {
		src := src
		eg.Go(func() error {
			var (
				entries []feedEntry
				err     error
				kind    = src.Kind
			)
			if kind == core.SourceKindPreprint {
				entries, err = g.fetchPreprints(fctx, src.Identifier, window)
			} else {
				var body []byte
				body, err = fetchBody(fctx, g.hc, src.Identifier, nil, maxFeedBytes)
				if err == nil {
					entries, err = parseFeed(body)
				}
			}

			mu.Lock()
			defer mu.Unlock()
			count := 0
			for _, entry := range entries {
				if kind == core.SourceKindPreprint && entry.Announce != "" &&
					entry.Announce != "new" && entry.Announce != "cross" {
					continue
				}
				meta := map[string]string{}
				if kind == core.SourceKindPreprint {
					meta["preprint_category"] = src.Identifier
					if entry.Announce != "" {
						meta["announce"] = entry.Announce
					}
				}
				if norm.add(core.Item{
					SourceName:  src.Identifier,
					SourceKind:  kind,
					URL:         entry.Link,
					Title:       entry.Title,
					Content:     entry.Body,
					Author:      entry.Author,
					PublishedAt: entry.Published,
					Metadata:    meta,
				}) {
					count++
				}
			}

			notice := ""
			// Preprint servers publish nothing on weekends; an empty day
			// is expected there, not a fetch problem.
			if kind == core.SourceKindPreprint && err == nil && count == 0 && isWeekend(window.End) {
				notice = "no items, weekend"
			}
			statuses = append(statuses, sourceOutcome(src.Identifier, count, err, notice))
			return nil
		})
	}
	_ = eg.Wait()

	status := rollup(core.CategoryResearch, statuses, ctx.Err() != nil)
	status.Dropped = norm.dropped
	if len(norm.items) == 0 && isWeekend(window.End) {
		status.Notice = "no items, weekend"
	}
	return norm.items, status
}

// fetchPreprints chooses feed-of-the-day for current dates and the query
// API for historical ones. The daily feed only ever carries today's
// announcements, so backfills must go through the API.
func (g *ResearchGatherer) fetchPreprints(ctx context.Context, category string, window core.CoverageWindow) ([]feedEntry, error) {
	if g.isCurrent(window) {
		body, err := fetchBody(ctx, g.hc, preprintFeedBase+category, nil, maxFeedBytes)
		if err != nil {
			return nil, err
		}
		return parseFeed(body)
	}

	query := url.Values{}
	query.Set("search_query", "cat:"+category)
	query.Set("start", "0")
	query.Set("max_results", "200")
	query.Set("sortBy", "submittedDate")
	query.Set("sortOrder", "descending")
	body, err := fetchBody(ctx, g.hc, preprintAPIBase+"?"+query.Encode(), nil, maxFeedBytes)
	if err != nil {
		return nil, fmt.Errorf("preprint api: %w", err)
	}
	return parseFeed(body)
}

// isCurrent reports whether the window ends within the last day, i.e. the
// run covers today's announcements.
func (g *ResearchGatherer) isCurrent(window core.CoverageWindow) bool {
	return g.now().Sub(window.End) < 24*time.Hour
}

func isWeekend(t time.Time) bool {
	switch t.Weekday() {
	case time.Saturday, time.Sunday:
		return true
	}
	return false
}
