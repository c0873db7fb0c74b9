package synthesis

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"dailybrief/internal/analyze"
	"dailybrief/internal/core"
	"dailybrief/internal/llm"
	"dailybrief/internal/logger"
)

const (
	minExecutiveBullets = 3
	maxExecutiveBullets = 6
)

const executiveSystem = "You write the executive summary of a daily AI/ML briefing for a " +
	"technical leader with five minutes. Given the day's topics and category summaries, " +
	"write between three and six bullet points. Lead with the single most consequential " +
	"development. Each bullet is one or two plain sentences; no hedging, no markdown " +
	"headers. Respond with a JSON array of bullet strings, nothing else."

// Executive produces the briefing's summary bullets. When the model call
// fails the summary falls back to the category summaries so the briefing
// is never empty; reasoning loss surfaces as an error instead.
func (s *Synthesizer) Executive(ctx context.Context, topics []core.Topic, reports map[core.Category]core.CategoryReport) ([]string, error) {
	log := logger.Get()

	input := struct {
		Topics    []core.Topic             `json:"topics"`
		Summaries map[core.Category]string `json:"category_summaries"`
	}{Topics: topics, Summaries: make(map[core.Category]string)}
	for category, report := range reports {
		if report.CategorySummary != "" {
			input.Summaries[category] = report.CategorySummary
		}
	}

	payload, err := json.Marshal(input)
	if err != nil {
		return fallbackSummary(reports), nil
	}
	user := string(payload)
	if s.grounding != "" {
		user = s.grounding + "\n" + user
	}

	resp, err := s.llm.Generate(ctx, "synthesis_executive", executiveSystem, user, llm.BudgetDeep)
	if err != nil {
		if llm.IsReasoningUnavailable(err) {
			return nil, err
		}
		log.Warn("synthesis: executive summary failed, using fallback", "error", err)
		return fallbackSummary(reports), nil
	}
	bullets, err := parseBullets(resp.Text)
	if err != nil {
		log.Warn("synthesis: executive response unparseable, using fallback", "error", err)
		return fallbackSummary(reports), nil
	}
	return bullets, nil
}

func parseBullets(text string) ([]string, error) {
	doc, err := analyze.ExtractJSON(text)
	if err != nil {
		return nil, err
	}
	var bullets []string
	if err := json.Unmarshal(doc, &bullets); err != nil {
		return nil, fmt.Errorf("bullet list: %w", err)
	}
	out := bullets[:0]
	for _, b := range bullets {
		if b = strings.TrimSpace(b); b != "" {
			out = append(out, b)
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("bullet list empty")
	}
	if len(out) > maxExecutiveBullets {
		out = out[:maxExecutiveBullets]
	}
	return out, nil
}

// fallbackSummary builds a deterministic summary from whatever category
// summaries exist, in presentation order.
func fallbackSummary(reports map[core.Category]core.CategoryReport) []string {
	var bullets []string
	for _, category := range core.Categories {
		report, ok := reports[category]
		if !ok {
			continue
		}
		if report.CategorySummary != "" {
			bullets = append(bullets, report.CategorySummary)
			continue
		}
		if len(report.TopItems) > 0 {
			bullets = append(bullets, fmt.Sprintf("%s: %s", capitalize(string(category)), report.TopItems[0].Title))
		}
	}
	return bullets
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
