package gather

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"dailybrief/internal/core"
	"dailybrief/internal/limiter"
)

func testWindow() core.CoverageWindow {
	end := time.Date(2025, 6, 2, 4, 0, 0, 0, time.UTC)
	return core.CoverageWindow{Start: end.Add(-24 * time.Hour), End: end}
}

func TestNormalizerFiltersWindow(t *testing.T) {
	w := testWindow()
	n := newNormalizer(core.CategoryNews, w)

	if !n.add(core.Item{URL: "https://example.com/in", Title: "Inside", PublishedAt: w.Start.Add(time.Hour)}) {
		t.Error("in-window item rejected")
	}
	if n.add(core.Item{URL: "https://example.com/old", Title: "Old", PublishedAt: w.Start.Add(-time.Hour)}) {
		t.Error("pre-window item accepted")
	}
	if n.add(core.Item{URL: "https://example.com/future", Title: "Future", PublishedAt: w.End.Add(time.Hour)}) {
		t.Error("post-window item accepted")
	}
	if len(n.items) != 1 {
		t.Errorf("items = %d, want 1", len(n.items))
	}
}

func TestNormalizerDedupes(t *testing.T) {
	w := testWindow()
	n := newNormalizer(core.CategoryNews, w)
	ts := w.Start.Add(time.Hour)

	n.add(core.Item{URL: "https://example.com/p?utm_source=a", Title: "Same", PublishedAt: ts})
	if n.add(core.Item{URL: "https://example.com/p", Title: "Same", PublishedAt: ts}) {
		t.Error("tracking-param variant should dedupe against the original")
	}
	if len(n.items) != 1 {
		t.Errorf("items = %d, want 1", len(n.items))
	}
}

func TestNormalizerRejectsEmpty(t *testing.T) {
	n := newNormalizer(core.CategoryNews, testWindow())
	ts := testWindow().Start.Add(time.Hour)

	if n.add(core.Item{URL: "", Title: "T", PublishedAt: ts}) {
		t.Error("empty URL accepted")
	}
	if n.add(core.Item{URL: "https://example.com/x", Title: "", PublishedAt: ts}) {
		t.Error("empty title accepted")
	}
	if n.dropped != 2 {
		t.Errorf("dropped = %d, want 2", n.dropped)
	}
}

func TestNormalizerSetsInvariants(t *testing.T) {
	w := testWindow()
	n := newNormalizer(core.CategoryResearch, w)
	n.add(core.Item{
		URL: "https://example.com/paper", Title: "Paper",
		Content:     "<p>abstract</p>",
		PublishedAt: w.Start.Add(time.Hour),
	})

	item := n.items[0]
	if item.Category != core.CategoryResearch {
		t.Errorf("category = %q", item.Category)
	}
	if item.ID == "" || len(item.ID) != 12 {
		t.Errorf("id = %q", item.ID)
	}
	if item.Content != "abstract" {
		t.Errorf("content not sanitized: %q", item.Content)
	}
	if item.CollectedAt.IsZero() {
		t.Error("collected_at not set")
	}
}

func TestRollup(t *testing.T) {
	src := func(s core.Status) core.SourceStatus { return core.SourceStatus{Status: s} }
	cases := []struct {
		name    string
		sources []core.SourceStatus
		want    core.Status
	}{
		{"all success", []core.SourceStatus{src(core.StatusSuccess), src(core.StatusSuccess)}, core.StatusSuccess},
		{"one failed of two", []core.SourceStatus{src(core.StatusSuccess), src(core.StatusFailed)}, core.StatusPartial},
		{"all failed", []core.SourceStatus{src(core.StatusFailed), src(core.StatusFailed)}, core.StatusFailed},
		{"skipped ignored", []core.SourceStatus{src(core.StatusSuccess), src(core.StatusSkipped)}, core.StatusSuccess},
		{"skipped plus failed", []core.SourceStatus{src(core.StatusSkipped), src(core.StatusFailed)}, core.StatusFailed},
		{"partial source", []core.SourceStatus{src(core.StatusPartial), src(core.StatusSuccess)}, core.StatusPartial},
		{"no sources", nil, core.StatusSuccess},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := rollup(core.CategoryNews, tc.sources, false)
			if got.Status != tc.want {
				t.Errorf("rollup = %s, want %s", got.Status, tc.want)
			}
		})
	}
}

func TestRollupTruncationDegrades(t *testing.T) {
	got := rollup(core.CategoryNews, []core.SourceStatus{{Status: core.StatusSuccess}}, true)
	if got.Status != core.StatusPartial {
		t.Errorf("truncated rollup = %s, want partial", got.Status)
	}
	if !got.Truncated {
		t.Error("truncated flag not set")
	}
}

func TestSourceOutcome(t *testing.T) {
	if s := sourceOutcome("s", 5, nil, ""); s.Status != core.StatusSuccess {
		t.Errorf("clean fetch = %s", s.Status)
	}
	if s := sourceOutcome("s", 0, errTest, ""); s.Status != core.StatusFailed {
		t.Errorf("failed fetch = %s", s.Status)
	}
	if s := sourceOutcome("s", 3, errTest, ""); s.Status != core.StatusPartial {
		t.Errorf("partial fetch = %s", s.Status)
	}
}

var errTest = &testError{}

type testError struct{}

func (*testError) Error() string { return "boom" }

func TestGatherCompletionIsNotTruncation(t *testing.T) {
	feed := `<?xml version="1.0"?>
<rss version="2.0"><channel><title>Wire</title>
  <item>
    <title>In Window</title>
    <link>https://example.com/in-window</link>
    <pubDate>Mon, 02 Jun 2025 01:00:00 +0000</pubDate>
  </item>
</channel></rss>`
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(feed))
	}))
	defer srv.Close()

	opts := limiter.DefaultOptions()
	opts.MinHostDelay = 0
	g := NewNewsGatherer([]core.Source{
		{Identifier: srv.URL, Category: core.CategoryNews, Kind: core.SourceKindRSS},
	}, limiter.New(opts), DefaultOptions())

	items, status := g.Gather(context.Background(), testWindow())
	if status.Truncated {
		t.Error("completed gather reported truncation")
	}
	if status.Status != core.StatusSuccess {
		t.Errorf("category status = %s, want success", status.Status)
	}
	if len(items) != 1 {
		t.Errorf("items = %d, want 1", len(items))
	}

	cancelled, cancel := context.WithCancel(context.Background())
	cancel()
	_, status = g.Gather(cancelled, testWindow())
	if !status.Truncated {
		t.Error("cancelled gather did not report truncation")
	}
}

func TestNormalizeExported(t *testing.T) {
	w := testWindow()
	items, dropped := Normalize(core.CategoryNews, w, []core.Item{
		{URL: "https://example.com/a", Title: "A", PublishedAt: w.Start.Add(time.Hour)},
		{URL: "", Title: "broken", PublishedAt: w.Start.Add(time.Hour)},
	})
	if len(items) != 1 || dropped != 1 {
		t.Errorf("items=%d dropped=%d, want 1/1", len(items), dropped)
	}
}
