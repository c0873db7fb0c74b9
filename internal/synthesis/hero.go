package synthesis

import (
	"context"
	"fmt"
	"strings"

	"dailybrief/internal/core"
	"dailybrief/internal/llm"
	"dailybrief/internal/logger"
)

const heroSystem = "You write prompts for an abstract editorial illustration that heads a " +
	"daily AI/ML briefing. Given the day's topics, describe one cohesive image in two or " +
	"three sentences: mood, composition, palette. Abstract and geometric; no text, no " +
	"logos, no human faces. Respond with the prompt text only."

// HeroPrompt derives the day's illustration prompt from the top topics.
// Failure returns a generic prompt so image generation can still run;
// reasoning loss surfaces as an error.
func (s *Synthesizer) HeroPrompt(ctx context.Context, topics []core.Topic) (string, error) {
	fallback := "Abstract geometric illustration of interconnected nodes and flowing data " +
		"streams, deep blue and warm amber palette, calm editorial mood."
	if len(topics) == 0 {
		return fallback, nil
	}

	var sb strings.Builder
	for i, t := range topics {
		fmt.Fprintf(&sb, "%d. %s: %s\n", i+1, t.Title, t.Description)
	}

	resp, err := s.llm.Generate(ctx, "synthesis_hero", heroSystem, sb.String(), llm.BudgetQuick)
	if err != nil {
		if llm.IsReasoningUnavailable(err) {
			return "", err
		}
		logger.Get().Warn("synthesis: hero prompt failed, using generic prompt", "error", err)
		return fallback, nil
	}
	prompt := strings.TrimSpace(resp.Text)
	if prompt == "" {
		return fallback, nil
	}
	return prompt, nil
}
