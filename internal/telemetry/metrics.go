// Package telemetry is the C9 callback surface: onRouted, onError, and
// onReady hooks, backed by a dedicated Prometheus registry so the proxy
// can expose GET /metrics without pulling in the default global registry.
package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/haianbui/clawrouter/internal/catalog"
	"github.com/haianbui/clawrouter/internal/router"
)

// Metrics holds every Prometheus collector the proxy pipeline updates.
type Metrics struct {
	Registry *prometheus.Registry

	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	costUSD         *prometheus.CounterVec
	tokensTotal     *prometheus.CounterVec
	upstreamErrors  *prometheus.CounterVec
	classifications *prometheus.CounterVec
}

// NewMetrics builds a fresh registry and registers every collector on it.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	return &Metrics{
		Registry: registry,
		requestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "clawrouter_requests_total",
				Help: "Total chat-completion requests by tier, model, and status.",
			},
			[]string{"tier", "model", "status"},
		),
		requestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "clawrouter_request_duration_seconds",
				Help:    "End-to-end request duration in seconds.",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
			},
			[]string{"tier"},
		),
		costUSD: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "clawrouter_cost_usd_total",
				Help: "Total accounted cost in USD by tier and model.",
			},
			[]string{"tier", "model"},
		),
		tokensTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "clawrouter_tokens_total",
				Help: "Total tokens by type (prompt, completion), tier, and model.",
			},
			[]string{"type", "tier", "model"},
		),
		upstreamErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "clawrouter_upstream_errors_total",
				Help: "Upstream errors by model.",
			},
			[]string{"model"},
		),
		classifications: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "clawrouter_classifications_total",
				Help: "Classification decisions by tier and method.",
			},
			[]string{"tier", "method"},
		),
	}
}

// Hooks is the C9 callback surface. Every field may be nil; Recorder
// checks each one before calling it, so missing hooks are silent no-ops.
type Hooks struct {
	OnRouted func(decision router.Decision)
	OnError  func(stage string, err error)
	OnReady  func(addr string)
}

// Recorder wires Hooks to Metrics so every routed/errored request updates
// both the telemetry callback surface and the Prometheus collectors in
// one call.
type Recorder struct {
	metrics *Metrics
	hooks   Hooks
}

// NewRecorder builds a Recorder. hooks' nil fields are treated as no-ops.
func NewRecorder(metrics *Metrics, hooks Hooks) *Recorder {
	return &Recorder{metrics: metrics, hooks: hooks}
}

// Routed fires after a request is classified and a model chosen, before
// the first byte of the response body is written to the client.
func (r *Recorder) Routed(decision router.Decision) {
	r.metrics.classifications.WithLabelValues(string(decision.Tier), string(decision.Method)).Inc()
	if r.hooks.OnRouted != nil {
		r.hooks.OnRouted(decision)
	}
}

// Completed fires after the response is fully drained (or, for
// streaming, after the last chunk), recording final duration, cost, and
// token counts.
func (r *Recorder) Completed(tier catalog.Tier, model string, durationSeconds, costUSD float64, promptTokens, completionTokens int) {
	r.metrics.requestsTotal.WithLabelValues(string(tier), model, "completed").Inc()
	r.metrics.requestDuration.WithLabelValues(string(tier)).Observe(durationSeconds)
	r.metrics.costUSD.WithLabelValues(string(tier), model).Add(costUSD)
	r.metrics.tokensTotal.WithLabelValues("prompt", string(tier), model).Add(float64(promptTokens))
	r.metrics.tokensTotal.WithLabelValues("completion", string(tier), model).Add(float64(completionTokens))
}

// Failed records a request that failed after routing: the proxy calls it
// when the fallback chain is exhausted and when reading, translating or
// streaming an upstream response fails. Requests rejected before routing
// (405/400), auth_missing 401 responses and streams cancelled by the
// client do not produce a Failed event.
func (r *Recorder) Failed(tier catalog.Tier, model, stage string, err error) {
	r.metrics.requestsTotal.WithLabelValues(string(tier), model, "failed").Inc()
	if model != "" {
		r.metrics.upstreamErrors.WithLabelValues(model).Inc()
	}
	if r.hooks.OnError != nil {
		r.hooks.OnError(stage, err)
	}
}

// Ready fires once the HTTP server is listening.
func (r *Recorder) Ready(addr string) {
	if r.hooks.OnReady != nil {
		r.hooks.OnReady(addr)
	}
}
