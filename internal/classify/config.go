package classify

import "fmt"

// ScoringConfig is an immutable, process-wide bundle of weights, keyword
// lists, and thresholds tuning the Rule Classifier and LLM Classifier.
// It is built once at startup (DefaultScoringConfig, optionally overridden
// from host configuration) and never mutated afterward — readers share it
// freely without a lock.
type ScoringConfig struct {
	DimensionWeights map[string]float64

	CodeKeywords        []string
	ReasoningKeywords    []string
	TechnicalKeywords    []string
	CreativeKeywords     []string
	SimpleKeywords       []string
	ImperativeVerbs      []string
	ConstraintKeywords   []string
	OutputFormatKeywords []string
	ReferenceKeywords    []string
	NegationKeywords     []string
	DomainKeywords       []string
	AgenticKeywords      []string

	TokenThresholds TokenThresholds
	TierBoundaries  TierBoundaries

	ConfidenceSteepness float64
	ConfidenceThreshold float64
}

// TokenThresholds bucket a prompt's estimated token count into coarse
// simple/complex regions for the tokenCount scoring dimension.
type TokenThresholds struct {
	Simple  int
	Complex int
}

// TierBoundaries are the three score cutoffs separating SIMPLE/MEDIUM,
// MEDIUM/COMPLEX, and COMPLEX/REASONING. Must be strictly increasing.
type TierBoundaries struct {
	SimpleMedium   float64
	MediumComplex  float64
	ComplexReasoning float64
}

// Validate checks the invariants spec.md §3 requires of a ScoringConfig.
func (c ScoringConfig) Validate() error {
	b := c.TierBoundaries
	if !(b.SimpleMedium < b.MediumComplex && b.MediumComplex < b.ComplexReasoning) {
		return fmt.Errorf("classify: tier boundaries must be strictly increasing, got %+v", b)
	}
	if c.ConfidenceSteepness <= 0 {
		return fmt.Errorf("classify: confidenceSteepness must be positive, got %f", c.ConfidenceSteepness)
	}
	return nil
}

// DefaultScoringConfig ships the weights and keyword lists the source
// shipped as defaults. These are tunable configuration, not specification —
// a host may override any field.
func DefaultScoringConfig() ScoringConfig {
	return ScoringConfig{
		DimensionWeights: map[string]float64{
			"tokenCount":           1.0,
			"codePresence":         1.2,
			"reasoningMarkers":     1.5,
			"technicalTerms":       1.0,
			"creativeMarkers":      0.8,
			"simpleIndicators":     1.0,
			"multiStepPatterns":    0.9,
			"questionComplexity":   0.5,
			"imperativeVerbs":      0.6,
			"constraintCount":      0.8,
			"outputFormat":         0.6,
			"referenceComplexity":  0.5,
			"negationComplexity":   0.4,
			"domainSpecificity":    0.9,
			"agenticTask":          1.3,
		},

		CodeKeywords: []string{
			"function", "class", "algorithm", "code", "implement", "debug",
			"compile", "variable", "loop", "recursion", "api", "endpoint",
			"regex", "syntax", "refactor", "unit test",
		},
		ReasoningKeywords: []string{
			"prove", "theorem", "derive", "formally verify", "chain of thought",
			"mathematical proof", "reasoning", "logically", "deduce",
		},
		TechnicalKeywords: []string{
			"architecture", "database", "protocol", "latency", "throughput",
			"concurrency", "distributed", "kubernetes", "microservice",
			"encryption", "algorithm", "infrastructure", "pipeline",
		},
		CreativeKeywords: []string{
			"story", "poem", "creative", "imagine", "fictional", "narrative",
			"metaphor", "compose",
		},
		SimpleKeywords: []string{
			"hi", "hello", "thanks", "thank you", "ok", "okay", "yes", "no",
		},
		ImperativeVerbs: []string{
			"write", "build", "create", "implement", "design", "generate",
			"explain", "summarize", "list", "translate",
		},
		ConstraintKeywords: []string{
			"must", "should", "require", "constraint", "limit", "only",
			"cannot", "avoid", "ensure",
		},
		OutputFormatKeywords: []string{
			"json", "yaml", "table", "markdown", "csv", "bullet points",
			"numbered list",
		},
		ReferenceKeywords: []string{
			"according to", "as mentioned", "based on", "referring to",
			"see above", "as described",
		},
		NegationKeywords: []string{
			"not", "don't", "never", "without", "except", "unless",
		},
		DomainKeywords: []string{
			"legal", "medical", "financial", "clinical", "regulatory",
			"compliance", "tax", "actuarial",
		},
		AgenticKeywords: []string{
			"first", "then", "next", "finally", "step", "tool", "execute",
			"autonomously", "agent", "workflow", "orchestrate",
		},

		TokenThresholds: TokenThresholds{Simple: 20, Complex: 2000},
		TierBoundaries: TierBoundaries{
			SimpleMedium:     1.0,
			MediumComplex:    2.5,
			ComplexReasoning: 4.0,
		},
		ConfidenceSteepness: 1.5,
		ConfidenceThreshold: 0.6,
	}
}
