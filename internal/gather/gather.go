// Package gather runs the four content gatherers and normalizes their
// output into deduplicated, sanitized Item batches.
package gather

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"dailybrief/internal/core"
	"dailybrief/internal/limiter"
	"dailybrief/internal/logger"
)

// Gatherer produces the items of one category for a coverage window.
// Implementations tolerate partial failure: one broken source never
// suppresses items from the others.
type Gatherer interface {
	Category() core.Category
	Gather(ctx context.Context, window core.CoverageWindow) ([]core.Item, core.CategoryStatus)
}

// Options bounds the runtime's concurrency.
type Options struct {
	MaxConcurrentSources int // Per-gatherer source fan-out
}

// DefaultOptions returns the standard bounds.
func DefaultOptions() Options {
	return Options{MaxConcurrentSources: 4}
}

// Result is the combined output of a gatherer fan-out.
type Result struct {
	Items    map[core.Category][]core.Item
	Statuses []core.CategoryStatus
	Dropped  int
}

// Runtime fans out all registered gatherers in parallel and merges their
// output. One worker per category; each gatherer bounds its own source
// concurrency internally.
type Runtime struct {
	gatherers []Gatherer
	log       *slog.Logger
}

// NewRuntime builds a runtime over the given gatherers.
func NewRuntime(gatherers ...Gatherer) *Runtime {
	return &Runtime{gatherers: gatherers, log: logger.Get()}
}

// Run executes every gatherer concurrently and returns the merged result.
// Cancellation lets each gatherer drain what it already has; the category
// status records the truncation.
func (r *Runtime) Run(ctx context.Context, window core.CoverageWindow) Result {
	result := Result{Items: make(map[core.Category][]core.Item)}

	var mu sync.Mutex
	g, ctx := errgroup.WithContext(ctx)
	for _, gatherer := range r.gatherers {
		gatherer := gatherer
		g.Go(func() error {
			start := time.Now()
			items, status := gatherer.Gather(ctx, window)
			r.log.Info("gatherer finished",
				"category", gatherer.Category(),
				"items", len(items),
				"status", status.Status,
				"elapsed", time.Since(start).Round(time.Millisecond).String())

			mu.Lock()
			result.Items[gatherer.Category()] = items
			result.Statuses = append(result.Statuses, status)
			result.Dropped += status.Dropped
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait() // Gatherers report failure through statuses, never errors.
	return result
}

// normalizer accumulates the items of one gatherer run, enforcing the
// item invariants: deterministic fingerprint id, window containment,
// sanitized content, first-occurrence-wins dedupe.
type normalizer struct {
	category core.Category
	window   core.CoverageWindow
	seen     map[string]struct{}
	items    []core.Item
	dropped  int
}

func newNormalizer(category core.Category, window core.CoverageWindow) *normalizer {
	return &normalizer{
		category: category,
		window:   window,
		seen:     make(map[string]struct{}),
	}
}

// add normalizes and appends one raw item. It returns false when the item
// was rejected (outside window, empty, or a duplicate).
func (n *normalizer) add(raw core.Item) bool {
	if raw.URL == "" || raw.Title == "" {
		n.dropped++
		return false
	}
	raw.PublishedAt = raw.PublishedAt.UTC()
	if !n.window.Contains(raw.PublishedAt) {
		return false
	}

	raw.ID = core.FingerprintID(raw.URL, raw.Title)
	if _, dup := n.seen[raw.ID]; dup {
		return false
	}
	n.seen[raw.ID] = struct{}{}

	raw.Category = n.category
	raw.Content = SanitizeText(raw.Content)
	if raw.CollectedAt.IsZero() {
		raw.CollectedAt = time.Now().UTC()
	}
	raw.CollectedAt = raw.CollectedAt.UTC()
	n.items = append(n.items, raw)
	return true
}

// sourceOutcome classifies a finished source fetch into a SourceStatus.
func sourceOutcome(name string, count int, err error, notice string) core.SourceStatus {
	s := core.SourceStatus{Source: name, ItemCount: count, Notice: notice}
	switch {
	case err != nil && count > 0:
		s.Status = core.StatusPartial
		s.Error = err.Error()
	case err != nil:
		s.Status = core.StatusFailed
		s.Error = err.Error()
	default:
		s.Status = core.StatusSuccess
	}
	return s
}

// rollup derives a category status from its source statuses. All-failed
// means failed; any failure or partial means partial; skipped sources do
// not degrade the category.
func rollup(category core.Category, sources []core.SourceStatus, truncated bool) core.CategoryStatus {
	cs := core.CategoryStatus{Category: category, Status: core.StatusSuccess, Sources: sources, Truncated: truncated}
	if len(sources) == 0 {
		return cs
	}
	failed, active := 0, 0
	for _, s := range sources {
		switch s.Status {
		case core.StatusSkipped:
			continue
		case core.StatusFailed:
			failed++
			active++
		case core.StatusPartial:
			cs.Status = core.Worse(cs.Status, core.StatusPartial)
			active++
		default:
			active++
		}
	}
	if failed > 0 {
		if failed == active {
			cs.Status = core.StatusFailed
		} else {
			cs.Status = core.Worse(cs.Status, core.StatusPartial)
		}
	}
	if truncated {
		cs.Status = core.Worse(cs.Status, core.StatusPartial)
	}
	return cs
}

// fetchBody issues a GET through the shared limiter and returns the body
// capped at maxBytes.
func fetchBody(ctx context.Context, hc *limiter.Client, url string, headers map[string]string, maxBytes int64) ([]byte, error) {
	req, err := newGet(ctx, url, headers)
	if err != nil {
		return nil, err
	}
	resp, err := hc.Do(ctx, req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	return readCapped(resp.Body, maxBytes)
}
