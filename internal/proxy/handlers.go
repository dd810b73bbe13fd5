package proxy

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/haianbui/clawrouter/internal/router"
	"github.com/haianbui/clawrouter/internal/upstream"
)

// maxFallbackAttempts bounds total upstream attempts per request to
// primary + 2 fallbacks, per spec.md §9 "fallback bounded retries".
const maxFallbackAttempts = 3

type chatRequest struct {
	Model    string `json:"model"`
	Messages []struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"messages"`
	MaxTokens *int `json:"max_tokens"`
	Stream    bool `json:"stream"`
}

func (s *Server) handleChatCompletions(w http.ResponseWriter, r *http.Request) {
	reqID := requestID(r)
	w.Header().Set("X-Request-Id", reqID)
	start := time.Now()
	state := stateReceived

	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, errorBody("invalid_request", "method not allowed"))
		return
	}

	rawBody, err := io.ReadAll(r.Body)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid_request", "failed to read body"))
		return
	}

	var req chatRequest
	if err := json.Unmarshal(rawBody, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid_request", "malformed json"))
		return
	}
	if len(req.Messages) == 0 {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid_request", "messages is required"))
		return
	}
	if req.Model != "auto" {
		if _, ok := s.catalog.Get(req.Model); !ok {
			writeJSON(w, http.StatusBadRequest, errorBody("invalid_request", "unknown model: "+req.Model))
			return
		}
	}

	messages := make([]router.Message, 0, len(req.Messages))
	for _, m := range req.Messages {
		messages = append(messages, router.Message{Role: m.Role, Content: m.Content})
	}
	maxTokens := 0
	if req.MaxTokens != nil {
		maxTokens = *req.MaxTokens
	}

	decision, err := s.router.Route(r.Context(), router.Request{Messages: messages, MaxTokens: maxTokens})
	if err != nil {
		state = stateFailed
		s.recorder.Failed("", "", "route", err)
		writeJSON(w, http.StatusInternalServerError, errorBody("internal_error", "routing failed"))
		return
	}
	state = stateClassified

	w.Header().Set("X-ClawRouter-Decision", decisionHeader(decision))
	s.recorder.Routed(decision)

	state = stateForwarding
	modelsToTry := fallbackCandidates(decision)

	var lastErr error
	var lastStatus int
	var lastHTTPBody []byte
	var lastWasHTTPError bool
	tried := make([]string, 0, len(modelsToTry))

	for attempt, modelID := range modelsToTry {
		if attempt >= maxFallbackAttempts {
			break
		}
		tried = append(tried, modelID)

		backend, err := s.upstream.Backend(modelID)
		if err != nil {
			lastErr = err
			continue
		}
		breaker := s.upstream.Breaker(modelID)
		if breaker != nil {
			if err := breaker.Allow(); err != nil {
				lastErr = err
				continue
			}
		}

		apiKey, err := s.resolver.Resolve(backend.ID)
		if err != nil {
			lastErr = err
			if breaker != nil {
				breaker.RecordResult(err)
			}
			continue
		}

		rewritten, err := upstream.RewriteModel(rawBody, modelID)
		if err != nil {
			lastErr = err
			continue
		}

		resp, err := s.client.Forward(r.Context(), backend, apiKey, rewritten, req.Stream)
		if breaker != nil {
			breaker.RecordResult(err)
		}
		if err != nil {
			lastErr = err
			continue
		}

		if resp.StatusCode == http.StatusUnauthorized {
			// spec.md: AuthMissing — single retry with a freshly resolved
			// credential, else 401 auth_missing straight to the client.
			resp.Body.Close()
			s.resolver.Invalidate()
			retryKey, rerr := s.resolver.Resolve(backend.ID)
			authFailed := rerr != nil
			if !authFailed {
				retryResp, ferr := s.client.Forward(r.Context(), backend, retryKey, rewritten, req.Stream)
				if breaker != nil {
					breaker.RecordResult(ferr)
				}
				switch {
				case ferr != nil:
					authFailed = true
				case retryResp.StatusCode == http.StatusUnauthorized:
					retryResp.Body.Close()
					authFailed = true
				default:
					resp = retryResp
				}
			}
			if authFailed {
				writeJSON(w, http.StatusUnauthorized, map[string]any{
					"error": map[string]any{"type": "auth_missing", "provider": backend.ID},
				})
				return
			}
		}

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			lastStatus = resp.StatusCode
			errBody, _ := io.ReadAll(resp.Body)
			resp.Body.Close()
			lastErr = errors.New("upstream status " + http.StatusText(resp.StatusCode) + ": " + string(errBody))
			lastHTTPBody = errBody
			lastWasHTTPError = true
			if breaker != nil {
				breaker.RecordResult(lastErr)
			}
			continue
		}
		lastWasHTTPError = false

		// Success: stream or write the response to the client.
		if req.Stream {
			state = stateStreaming
			s.streamResponse(w, r.Context(), backend, decision, modelID, resp, start, reqID)
		} else {
			state = stateCompleted
			s.writeUpstreamResponse(w, backend, decision, modelID, resp, start, reqID)
		}
		return
	}

	// Fallback chain exhausted.
	state = stateFailed
	s.recorder.Failed(decision.Tier, decision.Model, "forward", lastErr)
	logJSON(map[string]any{
		"event":  "fallback_exhausted",
		"reqID":  reqID,
		"tier":   decision.Tier,
		"tried":  tried,
		"status": lastStatus,
		"state":  state,
	})
	// spec.md §7: a real upstream HTTP error (non-2xx status with a body)
	// is preserved byte-for-byte and with its original status code; only
	// a network-level failure (no response at all) gets the generic
	// upstream_unreachable envelope.
	if lastWasHTTPError && lastStatus != 0 {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(lastStatus)
		_, _ = w.Write(lastHTTPBody)
		return
	}

	writeJSON(w, http.StatusBadGateway, map[string]any{
		"error": map[string]any{
			"type":        "upstream_unreachable",
			"message":     errString(lastErr),
			"triedModels": tried,
		},
	})
}

func fallbackCandidates(decision router.Decision) []string {
	out := make([]string, 0, 1+len(decision.FallbackChain))
	out = append(out, decision.Model)
	out = append(out, decision.FallbackChain...)
	return out
}

func (s *Server) writeUpstreamResponse(w http.ResponseWriter, backend upstream.Backend, decision router.Decision, modelID string, resp *upstream.Response, start time.Time, reqID string) {
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		s.recorder.Failed(decision.Tier, modelID, "read-response", err)
		writeJSON(w, http.StatusBadGateway, errorBody("upstream_unreachable", "failed reading upstream response"))
		return
	}

	var outBody []byte
	var usage upstream.Usage
	if backend.WireFormat == upstream.WireAnthropicMessages {
		outBody, usage, err = upstream.TranslateNonStreaming(body, modelID)
		if err != nil {
			s.recorder.Failed(decision.Tier, modelID, "translate-response", err)
			writeJSON(w, http.StatusBadGateway, errorBody("upstream_unreachable", "failed translating upstream response"))
			return
		}
	} else {
		outBody = body
		usage = upstream.ParseOpenAIUsage(body)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(outBody)

	s.finishAccounting(decision, modelID, usage, start, reqID)
}

func (s *Server) streamResponse(w http.ResponseWriter, ctx context.Context, backend upstream.Backend, decision router.Decision, modelID string, resp *upstream.Response, start time.Time, reqID string) {
	defer resp.Body.Close()

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeJSON(w, http.StatusInternalServerError, errorBody("internal_error", "streaming unsupported"))
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	var usage upstream.Usage
	var streamErr error

	if backend.WireFormat == upstream.WireAnthropicMessages {
		usage, streamErr = upstream.StreamAnthropicAsOpenAI(ctx, resp.Body, modelID, func(frame []byte) error {
			if _, err := w.Write(frame); err != nil {
				return err
			}
			flusher.Flush()
			return nil
		})
	} else {
		streamErr = copySSE(ctx, resp.Body, w, flusher)
	}

	if streamErr != nil && !errors.Is(streamErr, context.Canceled) {
		s.recorder.Failed(decision.Tier, modelID, "stream", streamErr)
		return
	}
	if errors.Is(streamErr, context.Canceled) {
		// Client disconnected: no completed telemetry event (spec.md §5).
		return
	}

	s.finishAccounting(decision, modelID, usage, start, reqID)
}

// copySSE forwards upstream's SSE byte stream to the client chunk by
// chunk without buffering the whole response (spec.md §4.6).
func copySSE(ctx context.Context, body io.Reader, w io.Writer, flusher http.Flusher) error {
	buf := make([]byte, 4096)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		n, err := body.Read(buf)
		if n > 0 {
			if _, werr := w.Write(buf[:n]); werr != nil {
				return werr
			}
			flusher.Flush()
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
	}
}

func (s *Server) finishAccounting(decision router.Decision, modelID string, usage upstream.Usage, start time.Time, reqID string) {
	cost := decision.CostEstimate
	if s.tracker != nil {
		cost = s.tracker.TrackUsage(modelID, usage.PromptTokens, usage.CompletionTokens)
	}
	s.stats.Record(decision.Tier, modelID, decision.Savings*decision.BaselineCost)
	s.recorder.Completed(decision.Tier, modelID, time.Since(start).Seconds(), cost, usage.PromptTokens, usage.CompletionTokens)
	logJSON(map[string]any{
		"event":            "chat_ok",
		"reqID":            reqID,
		"tier":             decision.Tier,
		"model":            modelID,
		"costUSD":          cost,
		"promptTokens":     usage.PromptTokens,
		"completionTokens": usage.CompletionTokens,
		"latencyMs":        time.Since(start).Milliseconds(),
		"state":            stateCompleted,
	})
}

func decisionHeader(decision router.Decision) string {
	b, err := json.Marshal(map[string]any{
		"model":         decision.Model,
		"tier":          decision.Tier,
		"confidence":    decision.Confidence,
		"method":        decision.Method,
		"reasoning":     decision.Reasoning,
		"costEstimate":  decision.CostEstimate,
		"baselineCost":  decision.BaselineCost,
		"savings":       decision.Savings,
		"fallbackChain": decision.FallbackChain,
	})
	if err != nil {
		return "{}"
	}
	return string(b)
}

func errString(err error) string {
	if err == nil {
		return "upstream unreachable"
	}
	return err.Error()
}
