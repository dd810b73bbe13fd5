// Package router orchestrates the Rule Classifier, LLM Classifier, and
// Selector into a single RoutingDecision per request.
package router

import (
	"context"
	"fmt"
	"strings"

	"github.com/haianbui/clawrouter/internal/catalog"
	"github.com/haianbui/clawrouter/internal/classify"
	"github.com/haianbui/clawrouter/internal/selector"
)

const largeContextTokenThreshold = 100_000

// Method names the stage that produced a RoutingDecision's tier.
type Method string

const (
	MethodFastpath Method = "fastpath"
	MethodRules    Method = "rules"
	MethodLLM      Method = "llm"
)

// Message mirrors the subset of an OpenAI chat message the router reads.
type Message struct {
	Role    string
	Content string
}

// Request is the subset of an OpenAI chat-completion request the router
// and selector need; unknown fields on the wire are preserved upstream
// by the proxy pipeline, not modeled here.
type Request struct {
	Messages  []Message
	MaxTokens int
}

// Decision is the router's output, matching spec.md §3's RoutingDecision.
type Decision struct {
	Model         string
	Tier          catalog.Tier
	Confidence    float64
	Method        Method
	Reasoning     string
	CostEstimate  float64
	BaselineCost  float64
	Savings       float64
	FallbackChain []string
	Signals       []string
}

// Router ties together the Rule Classifier, LLM Classifier, and Selector.
type Router struct {
	ruleClassifier *classify.RuleClassifier
	llmClassifier  *classify.LLMClassifier
	selector       *selector.Selector
	config         classify.ScoringConfig
}

// New builds a Router. llmClassifier may be nil only in tests that never
// produce an ambiguous rule-classifier result.
func New(sel *selector.Selector, llmClassifier *classify.LLMClassifier, cfg classify.ScoringConfig) *Router {
	return &Router{
		ruleClassifier: classify.NewRuleClassifier(),
		llmClassifier:  llmClassifier,
		selector:       sel,
		config:         cfg,
	}
}

// Route implements spec.md §4.4's seven ordered steps.
func (r *Router) Route(ctx context.Context, req Request) (Decision, error) {
	userText := concatByRole(req.Messages, "user")
	systemPrompt := concatByRole(req.Messages, "system")

	estimatedTokens := classify.EstimateTokens(userText + systemPrompt)

	var tier catalog.Tier
	var confidence float64
	var method Method
	var signals []string

	result := r.ruleClassifier.Classify(userText, systemPrompt, estimatedTokens, r.config)
	if result.Tier != nil {
		tier = *result.Tier
		confidence = result.Confidence
		signals = append(signals, result.Signals...)
		if result.FastPath {
			method = MethodFastpath
		} else {
			method = MethodRules
		}
	} else {
		llmTier, llmConfidence := r.llmClassifier.Classify(ctx, userText)
		tier = llmTier
		confidence = llmConfidence
		method = MethodLLM
	}

	if estimatedTokens > largeContextTokenThreshold {
		tier = catalog.Max(tier, catalog.Complex)
		signals = append(signals, "forced-complex-large-context")
	}
	if containsAny(strings.ToLower(systemPrompt), "json", "structured") {
		tier = catalog.Max(tier, catalog.Medium)
		signals = append(signals, "forced-medium-structured")
	}

	sel, err := r.selector.Select(tier, estimatedTokens, req.MaxTokens)
	if err != nil {
		return Decision{}, fmt.Errorf("router: select: %w", err)
	}
	if sel.Savings == 0 && sel.CostEstimate > sel.BaselineCost {
		signals = append(signals, "savings-clamped")
	}

	reasoning := buildReasoning(method, tier, signals)

	return Decision{
		Model:         sel.Model.ID,
		Tier:          tier,
		Confidence:    confidence,
		Method:        method,
		Reasoning:     reasoning,
		CostEstimate:  sel.CostEstimate,
		BaselineCost:  sel.BaselineCost,
		Savings:       sel.Savings,
		FallbackChain: sel.FallbackIDs,
		Signals:       signals,
	}, nil
}

func concatByRole(messages []Message, role string) string {
	var sb strings.Builder
	for _, m := range messages {
		if m.Role == role {
			if sb.Len() > 0 {
				sb.WriteByte('\n')
			}
			sb.WriteString(m.Content)
		}
	}
	return sb.String()
}

func containsAny(text string, substrs ...string) bool {
	for _, s := range substrs {
		if strings.Contains(text, s) {
			return true
		}
	}
	return false
}

func buildReasoning(method Method, tier catalog.Tier, signals []string) string {
	base := fmt.Sprintf("classified %s via %s", tier, method)
	if len(signals) == 0 {
		return base
	}
	return base + " (" + strings.Join(signals, ", ") + ")"
}
