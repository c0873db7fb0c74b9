package gather

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	"dailybrief/internal/core"
	"dailybrief/internal/limiter"
	"dailybrief/internal/llm"
	"dailybrief/internal/logger"
)

// ScoutSourceName marks items produced by the link scout.
const ScoutSourceName = "link-scout"

const (
	maxScoutCandidates = 40
	maxScoutFetches    = 10
	maxScoutPageBytes  = 2 << 20
)

// selfHosts are the social platforms themselves; a link back into them is
// a conversation, not an article.
var selfHosts = map[string]bool{
	"x.com": true, "twitter.com": true, "t.co": true,
	"reddit.com": true, "www.reddit.com": true,
}

// LinkScout turns URLs shared in social posts into full news items. A
// quick model pass picks the links worth reading; the chosen pages are
// fetched and reduced to article text.
type LinkScout struct {
	llm *llm.Client
	hc  *limiter.Client
}

// NewLinkScout builds a scout over the shared clients.
func NewLinkScout(lc *llm.Client, hc *limiter.Client) *LinkScout {
	return &LinkScout{llm: lc, hc: hc}
}

// scoutCandidate pairs a shared URL with the post text around it.
type scoutCandidate struct {
	URL     string `json:"url"`
	Context string `json:"context"`
}

// Scout scans social items for shared article links, asks the model which
// are worth a full read, and returns the fetched articles as raw news
// items. Failures degrade to fewer items; only reasoning loss surfaces
// as an error.
func (s *LinkScout) Scout(ctx context.Context, social []core.Item, window core.CoverageWindow) ([]core.Item, error) {
	log := logger.Get()

	candidates := s.collect(social)
	if len(candidates) == 0 {
		return nil, nil
	}

	chosen, err := s.pick(ctx, candidates)
	if err != nil {
		if llm.IsReasoningUnavailable(err) {
			return nil, err
		}
		log.Warn("link scout: selection failed, skipping", "error", err)
		return nil, nil
	}
	if len(chosen) > maxScoutFetches {
		chosen = chosen[:maxScoutFetches]
	}

	var items []core.Item
	for _, link := range chosen {
		item, err := s.fetchArticle(ctx, link, window)
		if err != nil {
			log.Warn("link scout: fetch failed", "url", link, "error", err)
			continue
		}
		items = append(items, item)
	}
	log.Info("link scout finished", "candidates", len(candidates), "chosen", len(chosen), "fetched", len(items))
	return items, nil
}

// collect pulls the distinct external URLs shared across the social batch.
func (s *LinkScout) collect(social []core.Item) []scoutCandidate {
	seen := make(map[string]bool)
	var out []scoutCandidate
	for _, item := range social {
		refs := item.Metadata["referenced_urls"]
		if refs == "" {
			continue
		}
		for _, raw := range strings.Fields(refs) {
			normalized := core.NormalizeURL(raw)
			if seen[normalized] {
				continue
			}
			parsed, err := url.Parse(raw)
			if err != nil || parsed.Host == "" || selfHosts[strings.ToLower(parsed.Host)] {
				continue
			}
			seen[normalized] = true
			snippet := item.Content
			if len(snippet) > 280 {
				snippet = snippet[:280]
			}
			out = append(out, scoutCandidate{URL: raw, Context: snippet})
			if len(out) >= maxScoutCandidates {
				return out
			}
		}
	}
	return out
}

const scoutSystem = "You triage links shared on social media for a daily AI/ML briefing. " +
	"Given shared URLs with the post text around each, select only the links that point at " +
	"substantive articles, papers, or announcements worth reading in full. Reject link " +
	"shorteners, login walls, memes, and product landing pages. Respond with a JSON array " +
	"of the selected URLs, nothing else."

// pick asks the model which candidate links deserve a full fetch.
func (s *LinkScout) pick(ctx context.Context, candidates []scoutCandidate) ([]string, error) {
	payload, err := json.MarshalIndent(candidates, "", "  ")
	if err != nil {
		return nil, err
	}

	resp, err := s.llm.Generate(ctx, "link_scout", scoutSystem, string(payload), llm.BudgetQuick)
	if err != nil {
		return nil, err
	}

	raw := resp.Text
	// Tolerate fenced output; keep just the array.
	if start := strings.Index(raw, "["); start >= 0 {
		if end := strings.LastIndex(raw, "]"); end > start {
			raw = raw[start : end+1]
		}
	}
	var urls []string
	if err := json.Unmarshal([]byte(raw), &urls); err != nil {
		return nil, fmt.Errorf("selection response: %w", err)
	}

	// Only accept URLs the model was actually shown.
	known := make(map[string]bool, len(candidates))
	for _, c := range candidates {
		known[c.URL] = true
	}
	var out []string
	for _, u := range urls {
		if known[u] {
			out = append(out, u)
		}
	}
	return out, nil
}

// fetchArticle downloads one chosen page and reduces it to an item. The
// item keeps the shared URL so it dedupes against a feed-delivered copy
// of the same article.
func (s *LinkScout) fetchArticle(ctx context.Context, link string, window core.CoverageWindow) (core.Item, error) {
	body, err := fetchBody(ctx, s.hc, link, nil, maxScoutPageBytes)
	if err != nil {
		return core.Item{}, err
	}

	title, text := ExtractArticle(string(body))
	if title == "" || text == "" {
		return core.Item{}, fmt.Errorf("page yielded no article content")
	}

	return core.Item{
		SourceName: ScoutSourceName,
		SourceKind: core.SourceKindRSS,
		URL:        link,
		Title:      title,
		Content:    text,
		// Shared within the window by construction; pages rarely carry a
		// parseable date, so the share time stands in for publication.
		PublishedAt: window.End.Add(-time.Second),
		Metadata:    map[string]string{"scouted": "true"},
	}, nil
}
