package synthesis

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"dailybrief/internal/analyze"
	"dailybrief/internal/core"
	"dailybrief/internal/llm"
	"dailybrief/internal/logger"
)

// ItemAnchor returns the site-relative link that opens one item in the
// web frontend.
func ItemAnchor(reportDate string, category core.Category, itemID string) string {
	return fmt.Sprintf("/?date=%s&category=%s#item-%s", reportDate, category, itemID)
}

const enrichLinksSystem = "You add inline links to the bullets of an executive summary. For " +
	"each bullet, wrap the phrases that refer to specific items in markdown links to the " +
	"anchors provided, changing no other words. A bullet with no matching item stays " +
	"untouched. Respond with a JSON array of the rewritten bullet strings, same order and " +
	"count as the input, nothing else."

var markdownLink = regexp.MustCompile(`\[[^\]]*\]\(([^)]+)\)`)

// EnrichLinks rewrites the executive bullets with inline anchors into the
// day's items. The rewritten bullets are validated: the count must match
// and every link must target a known anchor. Any failure returns the
// original bullets unchanged, except reasoning loss which surfaces as an
// error.
func (s *Synthesizer) EnrichLinks(ctx context.Context, reportDate string, bullets []string, reports map[core.Category]core.CategoryReport) ([]string, error) {
	log := logger.Get()
	if len(bullets) == 0 {
		return bullets, nil
	}

	type anchor struct {
		Title  string `json:"title"`
		Anchor string `json:"anchor"`
	}
	valid := make(map[string]bool)
	var anchors []anchor
	for _, report := range reports {
		for _, item := range report.TopItems {
			a := ItemAnchor(reportDate, item.Category, item.ID)
			valid[a] = true
			anchors = append(anchors, anchor{Title: item.Title, Anchor: a})
		}
	}
	if len(anchors) == 0 {
		return bullets, nil
	}

	input := struct {
		Bullets []string `json:"bullets"`
		Items   []anchor `json:"items"`
	}{Bullets: bullets, Items: anchors}
	payload, err := json.Marshal(input)
	if err != nil {
		return bullets, nil
	}

	resp, err := s.llm.Generate(ctx, "synthesis_links", enrichLinksSystem, string(payload), llm.BudgetDeep)
	if err != nil {
		if llm.IsReasoningUnavailable(err) {
			return nil, err
		}
		log.Warn("synthesis: link enrichment failed, keeping plain bullets", "error", err)
		return bullets, nil
	}
	doc, err := analyze.ExtractJSON(resp.Text)
	if err != nil {
		log.Warn("synthesis: link enrichment unparseable, keeping plain bullets", "error", err)
		return bullets, nil
	}
	var linked []string
	if err := json.Unmarshal(doc, &linked); err != nil || len(linked) != len(bullets) {
		log.Warn("synthesis: link enrichment shape invalid, keeping plain bullets",
			"got", len(linked), "want", len(bullets))
		return bullets, nil
	}

	for i, bullet := range linked {
		if !linksValid(bullet, valid) {
			log.Warn("synthesis: bullet carried unknown link, keeping plain bullet", "index", i)
			linked[i] = bullets[i]
			continue
		}
		linked[i] = strings.TrimSpace(bullet)
	}
	return linked, nil
}

// linksValid reports whether every markdown link in the bullet targets a
// known item anchor.
func linksValid(bullet string, valid map[string]bool) bool {
	for _, m := range markdownLink.FindAllStringSubmatch(bullet, -1) {
		if !valid[m[1]] {
			return false
		}
	}
	return true
}
