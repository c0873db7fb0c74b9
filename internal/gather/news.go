package gather

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"

	"dailybrief/internal/core"
	"dailybrief/internal/limiter"
)

// maxFeedBytes caps a fetched feed document.
const maxFeedBytes = 4 << 20

// NewsGatherer pulls the configured RSS/Atom feeds and normalizes their
// entries into news items.
type NewsGatherer struct {
	sources []core.Source
	hc      *limiter.Client
	opts    Options
}

// NewNewsGatherer builds the news gatherer over the given RSS sources.
func NewNewsGatherer(srcs []core.Source, hc *limiter.Client, opts Options) *NewsGatherer {
	return &NewsGatherer{sources: srcs, hc: hc, opts: opts}
}

// Category implements Gatherer.
func (g *NewsGatherer) Category() core.Category { return core.CategoryNews }

// Gather implements Gatherer. Feeds are fetched concurrently under the
// per-gatherer bound; a failing feed only marks its own source failed.
func (g *NewsGatherer) Gather(ctx context.Context, window core.CoverageWindow) ([]core.Item, core.CategoryStatus) {
	norm := newNormalizer(core.CategoryNews, window)
	var (
		mu       sync.Mutex
		statuses []core.SourceStatus
	)

	eg, fctx := errgroup.WithContext(ctx)
	eg.SetLimit(g.opts.MaxConcurrentSources)
	for _, src := range g.sources {
		src := src
		eg.Go(func() error {
			entries, err := g.fetchFeed(fctx, src.Identifier)

			mu.Lock()
			defer mu.Unlock()
			count := 0
			for _, entry := range entries {
				if norm.add(core.Item{
					SourceName:  src.Identifier,
					SourceKind:  core.SourceKindRSS,
					URL:         entry.Link,
					Title:       entry.Title,
					Content:     entry.Body,
					Author:      entry.Author,
					PublishedAt: entry.Published,
				}) {
					count++
				}
			}
			statuses = append(statuses, sourceOutcome(src.Identifier, count, err, ""))
			return nil
		})
	}
	_ = eg.Wait()

	// Truncation means the run's own context expired, not the errgroup's
	// derived one, which is always cancelled once Wait returns.
	status := rollup(core.CategoryNews, statuses, ctx.Err() != nil)
	status.Dropped = norm.dropped
	return norm.items, status
}

func (g *NewsGatherer) fetchFeed(ctx context.Context, url string) ([]feedEntry, error) {
	body, err := fetchBody(ctx, g.hc, url, nil, maxFeedBytes)
	if err != nil {
		return nil, err
	}
	return parseFeed(body)
}

// Normalize applies the item invariants (fingerprint id, window filter,
// sanitization, in-batch dedupe) to an externally produced batch. Used by
// the orchestrator to fold scouted articles into the news stream.
func Normalize(category core.Category, window core.CoverageWindow, raw []core.Item) ([]core.Item, int) {
	norm := newNormalizer(category, window)
	for _, item := range raw {
		norm.add(item)
	}
	return norm.items, norm.dropped
}
