// Package proxy is the Proxy Pipeline (C8): the HTTP server exposing
// OpenAI-compatible endpoints, wired to the Router, Upstream registry,
// Cost Tracker, and Telemetry Hooks.
package proxy

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	"github.com/haianbui/clawrouter/internal/catalog"
	"github.com/haianbui/clawrouter/internal/classify"
	"github.com/haianbui/clawrouter/internal/costs"
	"github.com/haianbui/clawrouter/internal/credential"
	"github.com/haianbui/clawrouter/internal/router"
	"github.com/haianbui/clawrouter/internal/telemetry"
	"github.com/haianbui/clawrouter/internal/upstream"
)

// requestState names the per-request state machine spec.md §4.6 defines:
// RECEIVED -> CLASSIFIED -> FORWARDING -> STREAMING -> COMPLETED, or ->
// FAILED from any state. It exists for log/telemetry labeling; the proxy
// does not gate behavior on it beyond the ordering the handler already
// enforces by construction.
type requestState string

const (
	stateReceived   requestState = "RECEIVED"
	stateClassified requestState = "CLASSIFIED"
	stateForwarding requestState = "FORWARDING"
	stateStreaming  requestState = "STREAMING"
	stateCompleted  requestState = "COMPLETED"
	stateFailed     requestState = "FAILED"
)

// Server holds every dependency the Proxy Pipeline's handlers need.
type Server struct {
	router     *router.Router
	catalog    *catalog.Catalog
	upstream   *upstream.Registry
	client     *upstream.Client
	tracker    *costs.Tracker
	analytics  *costs.Analytics
	recorder   *telemetry.Recorder
	metrics    *telemetry.Metrics
	resolver   credential.Resolver
	classCache classify.Cache
	stats      *Stats
	limiter    *rate.Limiter

	authToken      string
	allowedOrigins map[string]bool
	walletAddress  string
	startedAt      time.Time
}

// Config bundles everything New needs to build a Server.
type Config struct {
	Router         *router.Router
	Catalog        *catalog.Catalog
	Upstream       *upstream.Registry
	Client         *upstream.Client
	Tracker        *costs.Tracker
	Analytics      *costs.Analytics
	Recorder       *telemetry.Recorder
	Metrics        *telemetry.Metrics
	Resolver       credential.Resolver
	ClassCache     classify.Cache
	AuthToken      string
	AllowedOrigins []string
	WalletAddress  string
	RateLimitRPS   float64
	RateLimitBurst int
}

// New builds a Server ready to have its routes registered.
func New(cfg Config) *Server {
	origins := make(map[string]bool, len(cfg.AllowedOrigins))
	for _, o := range cfg.AllowedOrigins {
		origins[o] = true
	}

	return &Server{
		router:         cfg.Router,
		catalog:        cfg.Catalog,
		upstream:       cfg.Upstream,
		client:         cfg.Client,
		tracker:        cfg.Tracker,
		analytics:      cfg.Analytics,
		recorder:       cfg.Recorder,
		metrics:        cfg.Metrics,
		resolver:       cfg.Resolver,
		classCache:     cfg.ClassCache,
		stats:          NewStats(time.Now().Unix()),
		limiter:        rate.NewLimiter(rate.Limit(cfg.RateLimitRPS), cfg.RateLimitBurst),
		authToken:      cfg.AuthToken,
		allowedOrigins: origins,
		walletAddress:  cfg.WalletAddress,
		startedAt:      time.Now(),
	}
}

// RegisterRoutes attaches every handler to mux.
func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/health", s.wrapCORS(s.handleHealth))
	mux.HandleFunc("/stats", s.wrapCORS(s.wrapAuth(s.handleStats)))
	mux.HandleFunc("/v1/models", s.wrapCORS(s.wrapAuth(s.handleModels)))
	mux.HandleFunc("/v1/chat/completions", s.wrapCORS(s.wrapAuth(s.wrapRateLimit(s.handleChatCompletions))))
	mux.HandleFunc("/reload", s.wrapCORS(s.wrapAuth(s.handleReload)))
	mux.HandleFunc("/metrics", s.wrapAuth(promhttp.HandlerFor(s.metrics.Registry, promhttp.HandlerOpts{}).ServeHTTP))
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	reqID := requestID(r)
	w.Header().Set("X-Request-Id", reqID)
	writeJSON(w, http.StatusOK, map[string]any{
		"status":        "ok",
		"wallet":        s.walletAddress,
		"uptimeSeconds": int(time.Since(s.startedAt).Seconds()),
	})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	snap := s.stats.Snapshot()
	body := map[string]any{
		"byTier":          snap.ByTier,
		"byModel":         snap.ByModel,
		"totalSavingsUSD": snap.TotalSavingsUSD,
	}
	if s.tracker != nil {
		body["costStatus"] = s.tracker.GetStatus()
	}
	if s.analytics != nil {
		body["alerts"] = s.analytics.GetAlerts()
	}
	writeJSON(w, http.StatusOK, body)
}

func (s *Server) handleModels(w http.ResponseWriter, r *http.Request) {
	ids := s.catalog.IDs()
	data := make([]map[string]any, 0, len(ids)+1)
	data = append(data, map[string]any{"id": "auto", "object": "model"})
	for _, id := range ids {
		data = append(data, map[string]any{"id": id, "object": "model"})
	}
	writeJSON(w, http.StatusOK, map[string]any{"object": "list", "data": data})
}

func (s *Server) handleReload(w http.ResponseWriter, r *http.Request) {
	s.classCache.Invalidate()
	s.resolver.Invalidate()
	s.upstream.ResetAll()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) wrapAuth(next http.HandlerFunc) http.HandlerFunc {
	if s.authToken == "" {
		return next
	}
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer "+s.authToken {
			writeJSON(w, http.StatusUnauthorized, errorBody("auth_missing", "missing or invalid bearer token"))
			return
		}
		next(w, r)
	}
}

func (s *Server) wrapCORS(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" && s.allowedOrigins[origin] {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next(w, r)
	}
}

func (s *Server) wrapRateLimit(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !s.limiter.Allow() {
			writeJSON(w, http.StatusTooManyRequests, errorBody("rate_limited", "too many requests"))
			return
		}
		next(w, r)
	}
}

func requestID(r *http.Request) string {
	if v := r.Header.Get("X-Request-Id"); v != "" {
		return v
	}
	var b [8]byte
	if _, err := rand.Read(b[:]); err == nil {
		return hex.EncodeToString(b[:])
	}
	return time.Now().Format("20060102150405.000000")
}

func logJSON(fields map[string]any) {
	b, err := json.Marshal(fields)
	if err != nil {
		log.Printf("proxy: log encode error: %v", err)
		return
	}
	log.Println(string(b))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func errorBody(kind, message string) map[string]any {
	return map[string]any{"error": map[string]string{"type": kind, "message": message}}
}
