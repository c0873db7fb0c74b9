// Package cost tracks token spend per pipeline phase and estimates the
// monetary cost of a run.
package cost

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"dailybrief/internal/core"
)

// Pricing is the per-model price card in USD per 1M tokens. Reasoning
// tokens bill at the output rate.
type Pricing struct {
	Model                 string
	InputCostPer1MTokens  float64
	OutputCostPer1MTokens float64
}

// PricingTable holds current messages-API pricing. Unknown models fall
// back to the default entry.
var PricingTable = map[string]Pricing{
	"claude-sonnet-4-5": {
		Model:                 "claude-sonnet-4-5",
		InputCostPer1MTokens:  3.00,
		OutputCostPer1MTokens: 15.00,
	},
	"claude-haiku-4-5": {
		Model:                 "claude-haiku-4-5",
		InputCostPer1MTokens:  1.00,
		OutputCostPer1MTokens: 5.00,
	},
	"claude-opus-4-1": {
		Model:                 "claude-opus-4-1",
		InputCostPer1MTokens:  15.00,
		OutputCostPer1MTokens: 75.00,
	},
}

// defaultPricing is used when the configured model is not in the table.
var defaultPricing = Pricing{
	Model:                 "default",
	InputCostPer1MTokens:  3.00,
	OutputCostPer1MTokens: 15.00,
}

// PricingFor returns the price card for a model.
func PricingFor(model string) Pricing {
	if p, ok := PricingTable[model]; ok {
		return p
	}
	return defaultPricing
}

// Usage is one call's token counts.
type Usage struct {
	InputTokens     int
	OutputTokens    int
	ReasoningTokens int
}

// Ledger is the shared, mutex-guarded accumulator keyed by phase name.
// Components append to it; the orchestrator flushes it into the DayReport.
type Ledger struct {
	pricing Pricing

	mu     sync.Mutex
	phases map[string]*core.PhaseUsage
}

// NewLedger creates a ledger priced for the given model.
func NewLedger(model string) *Ledger {
	return &Ledger{
		pricing: PricingFor(model),
		phases:  make(map[string]*core.PhaseUsage),
	}
}

// Record appends one call's usage under the given phase name.
func (l *Ledger) Record(phase string, u Usage) {
	l.mu.Lock()
	defer l.mu.Unlock()
	p, ok := l.phases[phase]
	if !ok {
		p = &core.PhaseUsage{Phase: phase}
		l.phases[phase] = p
	}
	p.Calls++
	p.InputTokens += u.InputTokens
	p.OutputTokens += u.OutputTokens
	p.ReasoningTokens += u.ReasoningTokens
	p.EstimatedUSD = l.estimate(p.InputTokens, p.OutputTokens, p.ReasoningTokens)
}

func (l *Ledger) estimate(in, out, reasoning int) float64 {
	return float64(in)*l.pricing.InputCostPer1MTokens/1e6 +
		float64(out+reasoning)*l.pricing.OutputCostPer1MTokens/1e6
}

// Summary snapshots the ledger into the run artifact form, phases sorted
// by name for stable output.
func (l *Ledger) Summary() core.CostSummary {
	l.mu.Lock()
	defer l.mu.Unlock()

	s := core.CostSummary{}
	names := make([]string, 0, len(l.phases))
	for name := range l.phases {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		p := l.phases[name]
		s.Phases = append(s.Phases, *p)
		s.InputTokens += p.InputTokens
		s.OutputTokens += p.OutputTokens
		s.ReasoningTokens += p.ReasoningTokens
		s.EstimatedUSD += p.EstimatedUSD
	}
	return s
}

// Format renders the summary as a human-readable block for the end-of-run
// log line.
func Format(s core.CostSummary) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("total in=%d out=%d reasoning=%d est=$%.4f",
		s.InputTokens, s.OutputTokens, s.ReasoningTokens, s.EstimatedUSD))
	for _, p := range s.Phases {
		sb.WriteString(fmt.Sprintf("; %s: calls=%d in=%d out=%d reasoning=%d",
			p.Phase, p.Calls, p.InputTokens, p.OutputTokens, p.ReasoningTokens))
	}
	return sb.String()
}
