// Package selector maps a classified tier onto a concrete model and
// computes the cost accounting attached to every RoutingDecision.
package selector

import (
	"fmt"

	"github.com/haianbui/clawrouter/internal/catalog"
)

// DefaultOutputTokenCap bounds outputTokensExpected when a request sets
// no max_tokens and a tier has no narrower cap configured.
const DefaultOutputTokenCap = 1024

// tierOutputCaps bounds expected completion length per tier for cost
// estimation purposes; REASONING models routinely emit long chains of
// thought, COMPLEX/MEDIUM less so.
var tierOutputCaps = map[catalog.Tier]int{
	catalog.Simple:    512,
	catalog.Medium:    1024,
	catalog.Complex:   2048,
	catalog.Reasoning: 4096,
}

// Selection is the Selector's output: the chosen model, its fallback
// chain, and the cost figures a RoutingDecision reports.
type Selection struct {
	Model        catalog.ModelEntry
	FallbackIDs  []string
	CostEstimate float64
	BaselineCost float64
	Savings      float64
}

// Selector looks up tier->model and computes cost estimates against the
// catalog's canonical baseline model.
type Selector struct {
	catalog *catalog.Catalog
}

// New builds a Selector over cat.
func New(cat *catalog.Catalog) *Selector {
	return &Selector{catalog: cat}
}

// Select picks the primary model for tier and computes cost accounting
// for a request with inputTokens and an optional client-requested
// maxTokens (0 meaning "unset").
func (s *Selector) Select(tier catalog.Tier, inputTokens, maxTokens int) (Selection, error) {
	primary, ok := s.catalog.Primary(tier)
	if !ok {
		return Selection{}, fmt.Errorf("selector: no model configured for tier %q", tier)
	}

	chain := s.catalog.FallbackChain(tier)
	ids := make([]string, 0, len(chain))
	for _, m := range chain {
		if m.ID != primary.ID {
			ids = append(ids, m.ID)
		}
	}

	outputTokens := expectedOutputTokens(tier, maxTokens)
	costEstimate := estimateCost(primary, inputTokens, outputTokens)
	baselineCost := estimateCost(s.catalog.Baseline(), inputTokens, outputTokens)
	savings := computeSavings(costEstimate, baselineCost)

	return Selection{
		Model:        primary,
		FallbackIDs:  ids,
		CostEstimate: costEstimate,
		BaselineCost: baselineCost,
		Savings:      savings,
	}, nil
}

func expectedOutputTokens(tier catalog.Tier, requested int) int {
	tierCap := tierOutputCaps[tier]
	if tierCap == 0 {
		tierCap = DefaultOutputTokenCap
	}
	if requested <= 0 {
		requested = DefaultOutputTokenCap
	}
	if requested < tierCap {
		return requested
	}
	return tierCap
}

func estimateCost(model catalog.ModelEntry, inputTokens, outputTokens int) float64 {
	in := float64(inputTokens) * model.InputPricePerMTok / 1_000_000
	out := float64(outputTokens) * model.OutputPricePerMTok / 1_000_000
	return in + out
}

func computeSavings(costEstimate, baselineCost float64) float64 {
	if baselineCost <= 0 {
		return 0
	}
	savings := (baselineCost - costEstimate) / baselineCost
	if savings < 0 {
		return 0
	}
	if savings > 1 {
		return 1
	}
	return savings
}
