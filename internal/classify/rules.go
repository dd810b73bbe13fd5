package classify

import (
	"fmt"
	"math"
	"regexp"
	"strings"

	"github.com/haianbui/clawrouter/internal/catalog"
)

// ScoringResult is the output of the Rule Classifier: a weighted score, the
// tier it maps to (nil if confidence falls below the configured threshold,
// signalling the caller must escalate to the LLM Classifier), a calibrated
// confidence, and the signals that drove the decision.
type ScoringResult struct {
	Score        float64
	Tier         *catalog.Tier
	Confidence   float64
	Signals      []string
	AgenticScore float64
	FastPath     bool
}

var (
	reGreeting = regexp.MustCompile(`^(hi|hello|hey|hiya|yo|hola|bonjour|ciao|salut|namaste|hallo)\b`)
	reQAStem   = regexp.MustCompile(`^(what is|what's|who is|who's|where is|when is|what are)\b`)
	reAck      = regexp.MustCompile(`^(thanks|thank you|ok|okay|cool|got it|sounds good|great|nice)\.?$`)
	reCheckin  = regexp.MustCompile(`^(are you there\??|you there\??|hello\?|ping)$`)

	reReasoningPattern = regexp.MustCompile(`\b(prove|theorem|derive|formally verify|chain of thought|mathematical proof)\b`)
	reComplexPattern   = regexp.MustCompile(`\b(architect|design system|microservice|distributed|scalab(le|ility)|infrastructure|optimi[sz]e|refactor|migrate|overhaul)\b`)
	reMediumPattern    = regexp.MustCompile(`\b(write|build|create|implement)\s+(a|the|an)\s+\w+`)

	reMultiStep     = regexp.MustCompile(`first.*then|step\s+\d+|^\d+\.\s`)
	reNumberedStep  = regexp.MustCompile(`(?m)^\s*\d+\.\s`)
)

// RuleClassifier implements the fast-path + weighted scoring rule
// classifier (spec §4.2, C4).
type RuleClassifier struct{}

// NewRuleClassifier constructs a stateless rule classifier. It holds no
// fields because ScoringConfig carries everything it needs per call.
func NewRuleClassifier() *RuleClassifier {
	return &RuleClassifier{}
}

// Classify runs stages A-D of the rule classifier against userText and
// systemPrompt. It is pure CPU work and must never block on I/O.
func (rc *RuleClassifier) Classify(userText, systemPrompt string, estimatedTokens int, cfg ScoringConfig) ScoringResult {
	trimmed := strings.TrimSpace(userText)
	lower := strings.ToLower(trimmed)

	// Stage A: fast-path pattern match, ordered SIMPLE -> REASONING -> COMPLEX -> MEDIUM.
	if tier, ok := fastPathTier(lower); ok {
		conf := fastPathConfidence(tier)
		t := tier
		return ScoringResult{
			Tier:       &t,
			Confidence: conf,
			Signals:    []string{fmt.Sprintf("quick-match: %s", tier)},
			Score:      0,
			FastPath:   true,
		}
	}

	// Stage B: weighted multi-dimension scoring.
	dims := scoreDimensions(lower, strings.ToLower(systemPrompt), estimatedTokens, cfg)
	var score float64
	for name, v := range dims {
		score += v * cfg.DimensionWeights[name]
	}

	signals := make([]string, 0, 4)
	agenticScore := dims["agenticTask"]

	// Stage C: reasoning override.
	reasoningHits := distinctKeywordMatches(lower, cfg.ReasoningKeywords)
	if reasoningHits >= 2 {
		t := catalog.Reasoning
		dist := score - cfg.TierBoundaries.ComplexReasoning
		if dist < 0 {
			dist = 0
		}
		conf := sigmoidConfidence(dist, cfg.ConfidenceSteepness)
		if conf < 0.85 {
			conf = 0.85
		}
		signals = append(signals, "reasoning-override")
		return ScoringResult{
			Score:        score,
			Tier:         &t,
			Confidence:   conf,
			Signals:      signals,
			AgenticScore: agenticScore,
		}
	}

	// Stage D: boundary mapping + confidence calibration.
	tier, distance := mapBoundary(score, cfg.TierBoundaries)
	confidence := sigmoidConfidence(distance, cfg.ConfidenceSteepness)

	if confidence < cfg.ConfidenceThreshold {
		return ScoringResult{
			Score:        score,
			Tier:         nil,
			Confidence:   confidence,
			Signals:      signals,
			AgenticScore: agenticScore,
		}
	}

	t := tier
	return ScoringResult{
		Score:        score,
		Tier:         &t,
		Confidence:   confidence,
		Signals:      signals,
		AgenticScore: agenticScore,
	}
}

func fastPathTier(lower string) (catalog.Tier, bool) {
	if len(lower) <= 20 || reGreeting.MatchString(lower) || reQAStem.MatchString(lower) ||
		reAck.MatchString(lower) || reCheckin.MatchString(lower) {
		return catalog.Simple, true
	}
	if reReasoningPattern.MatchString(lower) {
		return catalog.Reasoning, true
	}
	if reComplexPattern.MatchString(lower) {
		return catalog.Complex, true
	}
	if reMediumPattern.MatchString(lower) {
		return catalog.Medium, true
	}
	return "", false
}

func fastPathConfidence(tier catalog.Tier) float64 {
	switch tier {
	case catalog.Simple:
		return 0.95
	case catalog.Reasoning:
		return 0.90
	case catalog.Complex:
		return 0.85
	case catalog.Medium:
		return 0.80
	default:
		return 0.5
	}
}

// scoreDimensions computes the 14-named (15-row, see DESIGN.md) dimension
// scores of spec.md's Stage B table. Every dimension not given a weight in
// ScoringConfig.DimensionWeights contributes zero to the final score.
func scoreDimensions(userLower, systemLower string, estimatedTokens int, cfg ScoringConfig) map[string]float64 {
	dims := make(map[string]float64, 15)

	switch {
	case estimatedTokens < cfg.TokenThresholds.Simple:
		dims["tokenCount"] = -1.0
	case estimatedTokens > cfg.TokenThresholds.Complex:
		dims["tokenCount"] = 1.0
	default:
		dims["tokenCount"] = 0
	}

	dims["codePresence"] = bucketScore(countKeywords(userLower, cfg.CodeKeywords), map[int]float64{2: 1.0}, 0.5, 1)
	dims["reasoningMarkers"] = bucketScore(distinctKeywordMatches(userLower, cfg.ReasoningKeywords), map[int]float64{2: 1.0}, 0.7, 1)
	dims["technicalTerms"] = bucketScore(countKeywords(userLower, cfg.TechnicalKeywords), map[int]float64{4: 1.0}, 0.5, 2)
	dims["creativeMarkers"] = bucketScore(countKeywords(userLower, cfg.CreativeKeywords), map[int]float64{2: 0.7}, 0.5, 1)

	if countKeywords(userLower, cfg.SimpleKeywords) >= 1 {
		dims["simpleIndicators"] = -1.0
	}

	if reMultiStep.MatchString(userLower) || reNumberedStep.MatchString(userLower) {
		dims["multiStepPatterns"] = 0.5
	}

	if strings.Count(userLower, "?") > 3 {
		dims["questionComplexity"] = 0.5
	}

	dims["imperativeVerbs"] = bucketScore(countKeywords(userLower, cfg.ImperativeVerbs), map[int]float64{2: 0.5}, 0.3, 1)
	dims["constraintCount"] = bucketScore(countKeywords(userLower, cfg.ConstraintKeywords), map[int]float64{3: 0.7}, 0.3, 1)
	dims["outputFormat"] = bucketScore(countKeywords(userLower, cfg.OutputFormatKeywords), map[int]float64{2: 0.7}, 0.4, 1)
	dims["referenceComplexity"] = bucketScore(countKeywords(userLower, cfg.ReferenceKeywords), map[int]float64{2: 0.5}, 0.3, 1)
	dims["negationComplexity"] = bucketScore(countKeywords(userLower, cfg.NegationKeywords), map[int]float64{3: 0.5}, 0.3, 2)
	dims["domainSpecificity"] = bucketScore(countKeywords(userLower, cfg.DomainKeywords), map[int]float64{2: 0.8}, 0.5, 1)

	agenticText := userLower + " " + systemLower
	dims["agenticTask"] = bucketScore(countKeywords(agenticText, cfg.AgenticKeywords), map[int]float64{4: 1.0, 3: 0.6}, 0.2, 1)

	return dims
}

// bucketScore implements the "≥N -> value" ladder pattern used throughout
// Stage B: highThreshold maps to highValue, a single match (>= minThreshold)
// maps to lowValue, otherwise 0. highTiers lets callers express more than
// two rungs (e.g. agenticTask's ≥4/≥3/≥1).
func bucketScore(count int, highTiers map[int]float64, lowValue float64, minThreshold int) float64 {
	best := -1
	bestVal := 0.0
	for threshold, val := range highTiers {
		if count >= threshold && threshold > best {
			best = threshold
			bestVal = val
		}
	}
	if best >= 0 {
		return bestVal
	}
	if count >= minThreshold {
		return lowValue
	}
	return 0
}

func countKeywords(text string, keywords []string) int {
	n := 0
	for _, kw := range keywords {
		n += strings.Count(text, kw)
	}
	return n
}

func distinctKeywordMatches(text string, keywords []string) int {
	n := 0
	for _, kw := range keywords {
		if strings.Contains(text, kw) {
			n++
		}
	}
	return n
}

func mapBoundary(score float64, b TierBoundaries) (catalog.Tier, float64) {
	switch {
	case score < b.SimpleMedium:
		return catalog.Simple, b.SimpleMedium - score
	case score < b.MediumComplex:
		return catalog.Medium, math.Min(score-b.SimpleMedium, b.MediumComplex-score)
	case score < b.ComplexReasoning:
		return catalog.Complex, math.Min(score-b.MediumComplex, b.ComplexReasoning-score)
	default:
		return catalog.Reasoning, score - b.ComplexReasoning
	}
}

func sigmoidConfidence(distance, steepness float64) float64 {
	if distance < 0 {
		distance = 0
	}
	conf := 1 / (1 + math.Exp(-steepness*distance))
	if conf < 0.5 {
		conf = 0.5
	}
	if conf > 1.0 {
		conf = 1.0
	}
	return conf
}
