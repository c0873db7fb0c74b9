package synthesis

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"dailybrief/internal/config"
	"dailybrief/internal/core"
	"dailybrief/internal/limiter"
	"dailybrief/internal/llm"
)

func TestMixEntropy(t *testing.T) {
	single := map[core.Category]int{core.CategoryNews: 4}
	spread := map[core.Category]int{
		core.CategoryNews: 1, core.CategoryResearch: 1,
		core.CategorySocial: 1, core.CategoryCommunity: 1,
	}
	skewed := map[core.Category]int{core.CategoryNews: 3, core.CategoryResearch: 1}

	if mixEntropy(single) != 0 {
		t.Errorf("single-category entropy = %f, want 0", mixEntropy(single))
	}
	if mixEntropy(spread) <= mixEntropy(skewed) {
		t.Error("even spread should outscore a skewed mix")
	}
	if mixEntropy(nil) != 0 {
		t.Error("empty mix entropy should be 0")
	}
}

func TestItemAnchor(t *testing.T) {
	got := ItemAnchor("2025-06-02", core.CategoryResearch, "abc123def456")
	want := "/?date=2025-06-02&category=research#item-abc123def456"
	if got != want {
		t.Errorf("anchor = %q, want %q", got, want)
	}
}

func TestLinksValid(t *testing.T) {
	valid := map[string]bool{"/?date=2025-06-02&category=news#item-aaa": true}

	ok := "See [the launch](/?date=2025-06-02&category=news#item-aaa) for details."
	if !linksValid(ok, valid) {
		t.Error("known anchor rejected")
	}
	bad := "See [something](https://evil.example.com) instead."
	if linksValid(bad, valid) {
		t.Error("unknown link accepted")
	}
	plain := "No links at all."
	if !linksValid(plain, valid) {
		t.Error("linkless bullet rejected")
	}
}

func TestParseBullets(t *testing.T) {
	bullets, err := parseBullets("```json\n[\"first point\", \"  \", \"second point\"]\n```")
	if err != nil {
		t.Fatal(err)
	}
	if len(bullets) != 2 {
		t.Errorf("bullets = %v", bullets)
	}

	if _, err := parseBullets("[]"); err == nil {
		t.Error("empty bullet list should error")
	}
	if _, err := parseBullets("not json"); err == nil {
		t.Error("prose should error")
	}
}

func TestParseBulletsCapped(t *testing.T) {
	in := `["a","b","c","d","e","f","g","h"]`
	bullets, err := parseBullets(in)
	if err != nil {
		t.Fatal(err)
	}
	if len(bullets) != maxExecutiveBullets {
		t.Errorf("bullets = %d, want cap %d", len(bullets), maxExecutiveBullets)
	}
}

func stubSynthesizer(t *testing.T, url string) *Synthesizer {
	t.Helper()
	opts := limiter.DefaultOptions()
	opts.MinHostDelay = 0
	opts.MaxAttempts = 1
	c, err := llm.NewClient(config.LLM{
		Mode: config.LLMModeProxy, APIKey: "k", BaseURL: url, Model: "m",
	}, limiter.New(opts), nil)
	if err != nil {
		t.Fatal(err)
	}
	return New(c, "")
}

func TestExecutiveReasoningLossAborts(t *testing.T) {
	// A stripping proxy: the answer comes back without thinking blocks.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"content":[{"type":"text","text":"[\"a bullet\"]"}],"usage":{"input_tokens":1,"output_tokens":1}}`)
	}))
	defer srv.Close()

	reports := map[core.Category]core.CategoryReport{
		core.CategoryNews: {CategorySummary: "News mattered today."},
	}
	_, err := stubSynthesizer(t, srv.URL).Executive(context.Background(), nil, reports)
	if !llm.IsReasoningUnavailable(err) {
		t.Fatalf("want reasoning-unavailable error, got %v", err)
	}
}

func TestExecutiveFallsBackOnOrdinaryFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusBadGateway)
	}))
	defer srv.Close()

	reports := map[core.Category]core.CategoryReport{
		core.CategoryNews: {CategorySummary: "News mattered today."},
	}
	bullets, err := stubSynthesizer(t, srv.URL).Executive(context.Background(), nil, reports)
	if err != nil {
		t.Fatalf("ordinary failure must not abort: %v", err)
	}
	if len(bullets) != 1 || bullets[0] != "News mattered today." {
		t.Errorf("fallback bullets = %v", bullets)
	}
}

func TestFallbackSummary(t *testing.T) {
	reports := map[core.Category]core.CategoryReport{
		core.CategoryNews: {CategorySummary: "News mattered today."},
		core.CategoryResearch: {
			TopItems: []core.Item{{Title: "A Notable Paper"}},
		},
	}
	bullets := fallbackSummary(reports)
	if len(bullets) != 2 {
		t.Fatalf("bullets = %v", bullets)
	}
	// Presentation order: news before research.
	if bullets[0] != "News mattered today." {
		t.Errorf("first bullet = %q", bullets[0])
	}
	if !strings.Contains(bullets[1], "A Notable Paper") {
		t.Errorf("second bullet = %q", bullets[1])
	}
}
