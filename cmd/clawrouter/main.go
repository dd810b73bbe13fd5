// Command clawrouter runs the ClawRouter proxy: classify, select, and
// forward OpenAI-compatible chat-completion requests to the cheapest
// capable upstream model.
package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"strconv"
	"syscall"
	"time"

	"os/signal"

	"github.com/haianbui/clawrouter/internal/catalog"
	"github.com/haianbui/clawrouter/internal/classify"
	"github.com/haianbui/clawrouter/internal/config"
	"github.com/haianbui/clawrouter/internal/costs"
	"github.com/haianbui/clawrouter/internal/credential"
	"github.com/haianbui/clawrouter/internal/proxy"
	"github.com/haianbui/clawrouter/internal/router"
	"github.com/haianbui/clawrouter/internal/selector"
	"github.com/haianbui/clawrouter/internal/telemetry"
	"github.com/haianbui/clawrouter/internal/upstream"
)

func main() {
	cfg := config.FromEnv()

	cat, err := catalog.New(catalog.Default(), catalog.DefaultBaselineID)
	if err != nil {
		log.Fatalf("catalog: %v", err)
	}

	resolver := credential.NewEnvResolver(credential.DefaultEnvVars())
	if _, err := resolver.Resolve("anthropic"); err != nil {
		if _, err := resolver.Resolve("openai"); err != nil {
			log.Printf("no upstream credential configured (ANTHROPIC_API_KEY or OPENAI_API_KEY); exiting")
			os.Exit(2)
		}
	}

	scoringCfg := classify.DefaultScoringConfig()
	scoringCfg.ConfidenceThreshold = cfg.ConfidenceThreshold
	scoringCfg.ConfidenceSteepness = cfg.ConfidenceSteepness
	if err := scoringCfg.Validate(); err != nil {
		log.Fatalf("scoring config: %v", err)
	}

	classCache := classify.NewClassificationCache()
	client := upstream.NewClient()

	simplePrimary, ok := cat.Primary(catalog.Simple)
	if !ok {
		log.Fatalf("catalog: no SIMPLE-tier model configured for the classifier completer")
	}
	simpleBackend := upstream.Backend{
		ID:         backendProvider(simplePrimary.Provider),
		BaseURL:    providerBaseURL(simplePrimary.Provider),
		WireFormat: providerWireFormat(simplePrimary.Provider),
	}
	classifierKey, err := resolver.Resolve(simpleBackend.ID)
	if err != nil {
		log.Printf("llm classifier: no credential resolved yet for %s (%v); classifier calls fall back to MEDIUM/0.6 until restart", simpleBackend.ID, err)
	}
	completer := upstream.NewClassifierCompleter(client, simpleBackend, classifierKey, simplePrimary.ID)
	warnClassifier := func(msg string, err error) {
		log.Printf("llm classifier: %s: %v", msg, err)
	}
	llmClassifier := classify.NewLLMClassifier(classCache, completer, warnClassifier)

	sel := selector.New(cat)
	rt := router.New(sel, llmClassifier, scoringCfg)

	backends := buildBackends(cat)
	registry := upstream.NewRegistry(backends, upstream.CircuitBreakerConfig{
		FailureThreshold: cfg.CircuitFailureThreshold,
		ResetTimeout:     time.Duration(cfg.CircuitResetTimeMs) * time.Millisecond,
	})

	tracker := costs.NewTracker(cat, costs.Config{
		DailyBudgetUSD:   cfg.DailyBudgetUSD,
		MonthlyBudgetUSD: cfg.MonthlyBudgetUSD,
	})
	analytics := costs.NewAnalytics(costs.AnalyticsConfig{Tracker: tracker})

	metrics := telemetry.NewMetrics()
	recorder := telemetry.NewRecorder(metrics, telemetry.Hooks{
		OnError: func(stage string, err error) {
			log.Printf("telemetry: %s: %v", stage, err)
		},
		OnReady: func(addr string) {
			log.Printf("clawrouter listening on %s", addr)
		},
	})

	srv := proxy.New(proxy.Config{
		Router:         rt,
		Catalog:        cat,
		Upstream:       registry,
		Client:         client,
		Tracker:        tracker,
		Analytics:      analytics,
		Recorder:       recorder,
		Metrics:        metrics,
		Resolver:       resolver,
		ClassCache:     classCache,
		AuthToken:      cfg.AuthToken,
		AllowedOrigins: cfg.CORSAllowedOrigins,
		WalletAddress:  cfg.WalletKey,
		RateLimitRPS:   cfg.RateLimitRPS,
		RateLimitBurst: cfg.RateLimitBurst,
	})

	mux := http.NewServeMux()
	srv.RegisterRoutes(mux)

	go func() {
		ticker := time.NewTicker(time.Minute)
		defer ticker.Stop()
		for range ticker.C {
			analytics.RecordSnapshot()
		}
	}()

	httpServer := &http.Server{
		Addr:         "127.0.0.1:" + strconv.Itoa(cfg.Port),
		Handler:      mux,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		recorder.Ready(httpServer.Addr)
		errCh <- httpServer.ListenAndServe()
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	select {
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			log.Printf("bind failed: %v", err)
			os.Exit(1)
		}
	case <-ctx.Done():
		stop()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Printf("graceful shutdown failed: %v", err)
		}
		log.Println("clawrouter stopped")
	}
}

// buildBackends maps every catalog model id to its upstream Backend,
// grouped by provider: anthropic models speak the Messages wire format,
// everything else speaks OpenAI chat completions.
func buildBackends(cat *catalog.Catalog) map[string]upstream.Backend {
	backends := make(map[string]upstream.Backend, len(cat.IDs()))
	for _, id := range cat.IDs() {
		entry, _ := cat.Get(id)
		backends[id] = upstream.Backend{
			ID:         backendProvider(entry.Provider),
			BaseURL:    providerBaseURL(entry.Provider),
			WireFormat: providerWireFormat(entry.Provider),
		}
	}
	return backends
}

// backendProvider maps a catalog provider name to the credential resolver
// provider key; today they coincide, but this keeps the two concepts
// distinct so either can evolve independently.
func backendProvider(provider string) string {
	return provider
}

func providerBaseURL(provider string) string {
	switch provider {
	case "anthropic":
		return "https://api.anthropic.com"
	case "openai":
		return "https://api.openai.com/v1"
	default:
		return ""
	}
}

func providerWireFormat(provider string) upstream.WireFormat {
	switch provider {
	case "anthropic":
		return upstream.WireAnthropicMessages
	default:
		return upstream.WireOpenAIChat
	}
}
