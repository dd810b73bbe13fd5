// Command eval-classify runs a batch of {text, expectedTier} cases
// through the Rule Classifier (and, with -llm, the LLM Classifier) and
// reports per-tier accuracy. It mirrors cmd/eval-llm's parallel worker
// pool, adapted to classification instead of completion.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"sync"

	"github.com/haianbui/clawrouter/internal/catalog"
	"github.com/haianbui/clawrouter/internal/classify"
	"github.com/haianbui/clawrouter/internal/upstream"
)

// Case is one labeled classification example.
type Case struct {
	Text         string `json:"text"`
	SystemPrompt string `json:"systemPrompt,omitempty"`
	ExpectedTier string `json:"expectedTier"`
}

// CaseResult is one case's outcome.
type CaseResult struct {
	Text       string  `json:"text"`
	Expected   string  `json:"expected"`
	Got        string  `json:"got"`
	Confidence float64 `json:"confidence"`
	FastPath   bool    `json:"fastPath"`
	Escalated  bool    `json:"escalated"`
	Correct    bool    `json:"correct"`
}

func main() {
	casesFile := flag.String("cases", "", "Path to a JSON array of {text, systemPrompt?, expectedTier} cases")
	parallel := flag.Int("parallel", 4, "Number of parallel workers")
	useLLM := flag.Bool("llm", false, "Escalate ambiguous rule-classifier results to the LLM classifier")
	apiKey := flag.String("api-key", os.Getenv("OPENAI_API_KEY"), "API key for the LLM classifier, if -llm is set")
	baseURL := flag.String("base-url", "https://api.openai.com/v1", "OpenAI-compatible base URL for the LLM classifier, if -llm is set")
	model := flag.String("model", "gpt-4o-mini", "Model id for the LLM classifier, if -llm is set")
	verbose := flag.Bool("verbose", false, "Print per-case results")
	flag.Parse()

	if *casesFile == "" {
		fmt.Println("Usage: eval-classify -cases <cases.json> [-parallel 4] [-llm] [-verbose]")
		os.Exit(1)
	}

	data, err := os.ReadFile(*casesFile)
	if err != nil {
		log.Fatalf("failed to read cases file: %v", err)
	}

	var cases []Case
	if err := json.Unmarshal(data, &cases); err != nil {
		log.Fatalf("failed to parse cases file: %v", err)
	}

	ruleClassifier := classify.NewRuleClassifier()
	cfg := classify.DefaultScoringConfig()

	var llmClassifier *classify.LLMClassifier
	if *useLLM {
		backend := upstream.Backend{ID: "openai", BaseURL: *baseURL, WireFormat: upstream.WireOpenAIChat}
		completer := upstream.NewClassifierCompleter(upstream.NewClient(), backend, *apiKey, *model)
		llmClassifier = classify.NewLLMClassifier(classify.NewClassificationCache(), completer, func(msg string, err error) {
			log.Printf("llm classifier: %s: %v", msg, err)
		})
	}

	fmt.Printf("classification evaluation\n\ncases: %s\nworkers: %d\nllm escalation: %v\n\n", *casesFile, *parallel, *useLLM)

	results := runCases(cases, *parallel, ruleClassifier, cfg, llmClassifier, *verbose)
	printSummary(results)
}

func runCases(cases []Case, parallel int, rc *classify.RuleClassifier, cfg classify.ScoringConfig, lc *classify.LLMClassifier, verbose bool) []CaseResult {
	results := make([]CaseResult, len(cases))
	indexes := make(chan int, len(cases))
	var wg sync.WaitGroup

	for w := 0; w < parallel; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range indexes {
				results[idx] = classifyCase(cases[idx], rc, cfg, lc)
				if verbose {
					status := "FAIL"
					if results[idx].Correct {
						status = "OK"
					}
					fmt.Printf("  [%s] expected=%s got=%s confidence=%.2f %q\n",
						status, results[idx].Expected, results[idx].Got, results[idx].Confidence, truncate(results[idx].Text, 60))
				}
			}
		}()
	}

	for i := range cases {
		indexes <- i
	}
	close(indexes)
	wg.Wait()

	return results
}

func classifyCase(c Case, rc *classify.RuleClassifier, cfg classify.ScoringConfig, lc *classify.LLMClassifier) CaseResult {
	tokens := classify.EstimateTokens(c.Text)
	scored := rc.Classify(c.Text, c.SystemPrompt, tokens, cfg)

	result := CaseResult{
		Text:     c.Text,
		Expected: c.ExpectedTier,
		FastPath: scored.FastPath,
	}

	var tier catalog.Tier
	if scored.Tier != nil {
		tier = *scored.Tier
		result.Confidence = scored.Confidence
	} else if lc != nil {
		result.Escalated = true
		tier, result.Confidence = lc.Classify(context.Background(), c.Text)
	} else {
		tier = catalog.Medium
		result.Confidence = scored.Confidence
	}

	result.Got = string(tier)
	result.Correct = result.Got == c.ExpectedTier
	return result
}

func printSummary(results []CaseResult) {
	total := len(results)
	correct := 0
	byTier := make(map[string]struct{ total, correct int })

	for _, r := range results {
		counts := byTier[r.Expected]
		counts.total++
		if r.Correct {
			counts.correct++
			correct++
		}
		byTier[r.Expected] = counts
	}

	fmt.Printf("\noverall: %d/%d correct (%.1f%%)\n", correct, total, percent(correct, total))
	for tier, counts := range byTier {
		fmt.Printf("  %-10s %d/%d (%.1f%%)\n", tier, counts.correct, counts.total, percent(counts.correct, counts.total))
	}
}

func percent(n, total int) float64 {
	if total == 0 {
		return 0
	}
	return 100 * float64(n) / float64(total)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
