package classify

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/haianbui/clawrouter/internal/catalog"
)

const llmClassifierDeadline = 5 * time.Second

const classificationPrompt = `Classify the following user request into exactly one of these ` +
	`four categories: SIMPLE, MEDIUM, COMPLEX, REASONING. Reply with a single word, nothing else.

Request: %s`

// Completer is the narrow capability the LLM Classifier needs from an
// upstream model: a one-shot, non-streaming text completion. Concrete
// implementations (internal/upstream) wrap a real provider client;
// tests supply a stub.
type Completer interface {
	Complete(ctx context.Context, prompt string, maxTokens int, temperature float64) (string, error)
}

// WarnFunc receives a non-fatal classifier warning for telemetry (C9's
// onError-adjacent channel); classifier failures never reach the caller
// as errors, only as a degraded MEDIUM decision.
type WarnFunc func(msg string, err error)

// LLMClassifier is the fallback classifier used when the Rule Classifier
// reports an ambiguous result. It never returns an error: every failure
// path degrades to {MEDIUM, 0.6}.
type LLMClassifier struct {
	cache     Cache
	completer Completer
	warn      WarnFunc
}

// NewLLMClassifier wires a cache and an upstream completer. warn may be
// nil, in which case failures are simply silent.
func NewLLMClassifier(cache Cache, completer Completer, warn WarnFunc) *LLMClassifier {
	return &LLMClassifier{cache: cache, completer: completer, warn: warn}
}

var tierWordPattern = regexp.MustCompile(`(?i)\b(simple|medium|complex|reasoning)\b`)

// Classify fingerprints userText, checks the cache, and on a miss issues a
// bounded one-shot classification call. Confidence is always within
// [0.6, 0.8] per spec.md §4.3.
func (lc *LLMClassifier) Classify(ctx context.Context, userText string) (catalog.Tier, float64) {
	fp := Fingerprint(userText)

	if tier, ok := lc.cache.Lookup(fp); ok {
		return tier, 0.75
	}

	ctx, cancel := context.WithTimeout(ctx, llmClassifierDeadline)
	defer cancel()

	out, err := lc.completer.Complete(ctx, classificationPromptFor(userText), 10, 0)
	if err != nil {
		lc.warnf("llm classifier call failed", err)
		return catalog.Medium, 0.6
	}

	tier, ok := parseTierWord(out)
	if !ok {
		lc.warnf("llm classifier returned unparseable output", nil)
		return catalog.Medium, 0.6
	}

	lc.cache.Insert(fp, tier)
	return tier, 0.7
}

func (lc *LLMClassifier) warnf(msg string, err error) {
	if lc.warn != nil {
		lc.warn(msg, err)
	}
}

func classificationPromptFor(userText string) string {
	return fmt.Sprintf(classificationPrompt, userText)
}

func parseTierWord(text string) (catalog.Tier, bool) {
	m := tierWordPattern.FindStringSubmatch(text)
	if m == nil {
		return "", false
	}
	switch strings.ToUpper(m[1]) {
	case "SIMPLE":
		return catalog.Simple, true
	case "MEDIUM":
		return catalog.Medium, true
	case "COMPLEX":
		return catalog.Complex, true
	case "REASONING":
		return catalog.Reasoning, true
	default:
		return "", false
	}
}

// Fingerprint stably hashes the lowercased, whitespace-normalized first
// 500 characters of text, used as the classification cache key.
func Fingerprint(text string) string {
	normalized := normalizeForFingerprint(text)
	sum := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(sum[:])
}

func normalizeForFingerprint(text string) string {
	runes := []rune(strings.ToLower(strings.TrimSpace(text)))
	if len(runes) > 500 {
		runes = runes[:500]
	}
	fields := strings.Fields(string(runes))
	return strings.Join(fields, " ")
}
