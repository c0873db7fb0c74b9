package gather

import (
	"context"
	"strings"
	"testing"

	"dailybrief/internal/core"
	"dailybrief/internal/limiter"
)

func socialSource(id, platform string) core.Source {
	return core.Source{
		Identifier: id, Category: core.CategorySocial, Kind: core.SourceKindAPI,
		Params: map[string]string{"platform": platform},
	}
}

func TestSocialGathererSkipsMicroblogWithoutKey(t *testing.T) {
	srcs := []core.Source{socialSource("someone", PlatformMicroblog)}
	g := NewSocialGatherer(srcs, limiter.New(limiter.DefaultOptions()), DefaultOptions(), "")

	_, status := g.Gather(context.Background(), testWindow())

	// A missing credential skips the platform; it must not fail the category.
	if status.Status != core.StatusSuccess {
		t.Errorf("category status = %s, want success", status.Status)
	}
	if len(status.Sources) != 1 || status.Sources[0].Status != core.StatusSkipped {
		t.Fatalf("sources = %+v", status.Sources)
	}
	found := false
	for _, p := range status.Platforms {
		if p.Source == PlatformMicroblog {
			found = true
			if p.Status != core.StatusSkipped {
				t.Errorf("platform status = %s, want skipped", p.Status)
			}
		}
	}
	if !found {
		t.Error("microblog platform missing from rollup")
	}
}

func TestPlatformRollup(t *testing.T) {
	srcs := []core.Source{
		socialSource("a", PlatformMicroblog),
		socialSource("b", PlatformFederatedMicroblog),
		socialSource("c", PlatformFederatedMicroblog),
	}
	statuses := []core.SourceStatus{
		{Source: "a", Status: core.StatusSkipped, Notice: "microblog credential absent"},
		{Source: "b", Status: core.StatusSuccess, ItemCount: 4},
		{Source: "c", Status: core.StatusFailed},
	}

	platforms := platformRollup(srcs, statuses)
	byName := make(map[string]core.SourceStatus)
	for _, p := range platforms {
		byName[p.Source] = p
	}

	if got := byName[PlatformMicroblog]; got.Status != core.StatusSkipped || got.Notice == "" {
		t.Errorf("microblog = %+v", got)
	}
	fed := byName[PlatformFederatedMicroblog]
	if fed.Status != core.StatusFailed {
		// One success and one failure: the platform carries the worse status.
		t.Errorf("federated status = %s, want failed", fed.Status)
	}
	if fed.ItemCount != 4 {
		t.Errorf("federated items = %d, want 4", fed.ItemCount)
	}
}

func TestPostTitle(t *testing.T) {
	if got := postTitle("First line\nsecond line"); got != "First line" {
		t.Errorf("postTitle = %q", got)
	}
	long := postTitle(strings.Repeat("word ", 50))
	if len(long) > 125 {
		t.Errorf("long title not truncated: %d bytes", len(long))
	}
}
