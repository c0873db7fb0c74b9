// Package synthesis fuses the per-category reports into the cross-cutting
// layer of the briefing: top topics, the executive summary, and the
// linked rendition of that summary.
package synthesis

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strings"

	"dailybrief/internal/analyze"
	"dailybrief/internal/core"
	"dailybrief/internal/llm"
	"dailybrief/internal/logger"
)

const maxTopics = 5

// Synthesizer runs the cross-category passes over finished reports.
type Synthesizer struct {
	llm       *llm.Client
	grounding string // Ecosystem timeline text, may be empty
}

// New builds a Synthesizer. grounding is injected into every prompt so
// the model dates releases correctly.
func New(lc *llm.Client, grounding string) *Synthesizer {
	return &Synthesizer{llm: lc, grounding: grounding}
}

// topicItem is one item as shown to the topic pass.
type topicItem struct {
	ID       string        `json:"id"`
	Category core.Category `json:"category"`
	Title    string        `json:"title"`
	Summary  string        `json:"summary,omitempty"`
	Score    int           `json:"score"`
}

// topicOutput is the model's topic list.
type topicOutput struct {
	Topics []struct {
		Title       string   `json:"title"`
		Description string   `json:"description"`
		ItemIDs     []string `json:"item_ids"`
	} `json:"topics"`
}

const topicsSystem = "You identify the day's most significant developments in AI/ML for an " +
	"executive briefing. Fuse the given items into at most five topics; prefer developments " +
	"visible across several categories (news, research, social, community) over single-source " +
	"stories. For each topic give a short title, a two or three sentence description, and the " +
	"ids of the items it draws on. Respond with a JSON object {topics: [{title, description, " +
	"item_ids}]}, nothing else."

// Topics runs the deep cross-category fusion. Topics whose every item
// reference is unknown are discarded; the rest are ordered by how evenly
// they span categories, then by reference count.
func (s *Synthesizer) Topics(ctx context.Context, reports map[core.Category]core.CategoryReport) ([]core.Topic, error) {
	log := logger.Get()

	byID := make(map[string]core.Item)
	var pool []topicItem
	for _, report := range reports {
		for _, item := range report.TopItems {
			byID[item.ID] = item
			pool = append(pool, topicItem{
				ID: item.ID, Category: item.Category, Title: item.Title,
				Summary: item.Summary, Score: item.Score,
			})
		}
	}
	if len(pool) == 0 {
		return nil, nil
	}
	sort.Slice(pool, func(i, j int) bool { return pool[i].Score > pool[j].Score })

	payload, err := json.Marshal(pool)
	if err != nil {
		return nil, err
	}
	user := string(payload)
	if s.grounding != "" {
		user = s.grounding + "\n" + user
	}

	resp, err := s.llm.Generate(ctx, "synthesis_topics", topicsSystem, user, llm.BudgetUltra)
	if err != nil {
		return nil, err
	}
	doc, err := analyze.ExtractJSON(resp.Text)
	if err != nil {
		return nil, err
	}
	var parsed topicOutput
	if err := json.Unmarshal(doc, &parsed); err != nil {
		return nil, fmt.Errorf("topic response: %w", err)
	}

	var topics []core.Topic
	for _, t := range parsed.Topics {
		topic := core.Topic{
			Title:       strings.TrimSpace(t.Title),
			Description: strings.TrimSpace(t.Description),
			CategoryMix: make(map[core.Category]int),
		}
		for _, id := range t.ItemIDs {
			item, ok := byID[id]
			if !ok {
				// Fabricated or stale reference, drop it.
				continue
			}
			topic.ReferencedItemIDs = append(topic.ReferencedItemIDs, id)
			topic.CategoryMix[item.Category]++
		}
		if topic.Title == "" || len(topic.ReferencedItemIDs) == 0 {
			log.Warn("synthesis: topic discarded", "title", t.Title, "refs", len(t.ItemIDs))
			continue
		}
		topics = append(topics, topic)
	}

	sort.SliceStable(topics, func(i, j int) bool {
		ei, ej := mixEntropy(topics[i].CategoryMix), mixEntropy(topics[j].CategoryMix)
		if ei != ej {
			return ei > ej
		}
		return len(topics[i].ReferencedItemIDs) > len(topics[j].ReferencedItemIDs)
	})
	if len(topics) > maxTopics {
		topics = topics[:maxTopics]
	}
	return topics, nil
}

// mixEntropy measures how evenly a topic's references spread across
// categories. A single-category topic scores zero.
func mixEntropy(mix map[core.Category]int) float64 {
	total := 0
	for _, n := range mix {
		total += n
	}
	if total == 0 {
		return 0
	}
	entropy := 0.0
	for _, n := range mix {
		if n == 0 {
			continue
		}
		p := float64(n) / float64(total)
		entropy -= p * math.Log2(p)
	}
	return entropy
}
