package proxy

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"golang.org/x/time/rate"
)

func TestHandleHealth(t *testing.T) {
	s := newTestServer(t, "http://unused.invalid")
	s.walletAddress = "0xabc123"

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	s.handleHealth(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if rec.Header().Get("X-Request-Id") == "" {
		t.Error("missing X-Request-Id header")
	}
}

func TestHandleModels(t *testing.T) {
	s := newTestServer(t, "http://unused.invalid")
	req := httptest.NewRequest(http.MethodGet, "/v1/models", nil)
	rec := httptest.NewRecorder()
	s.handleModels(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}

func TestHandleReload(t *testing.T) {
	s := newTestServer(t, "http://unused.invalid")
	req := httptest.NewRequest(http.MethodPost, "/reload", nil)
	rec := httptest.NewRecorder()
	s.handleReload(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Errorf("status = %d, want 204", rec.Code)
	}
}

func TestWrapAuth_NoTokenConfigured(t *testing.T) {
	s := newTestServer(t, "http://unused.invalid")
	called := false
	handler := s.wrapAuth(func(w http.ResponseWriter, r *http.Request) { called = true })

	req := httptest.NewRequest(http.MethodGet, "/stats", nil)
	rec := httptest.NewRecorder()
	handler(rec, req)

	if !called {
		t.Error("wrapAuth() with no configured token should pass requests through")
	}
}

func TestWrapAuth_RequiresBearerToken(t *testing.T) {
	s := newTestServer(t, "http://unused.invalid")
	s.authToken = "secret"
	handler := s.wrapAuth(func(w http.ResponseWriter, r *http.Request) {})

	req := httptest.NewRequest(http.MethodGet, "/stats", nil)
	rec := httptest.NewRecorder()
	handler(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status without Authorization header = %d, want 401", rec.Code)
	}

	req2 := httptest.NewRequest(http.MethodGet, "/stats", nil)
	req2.Header.Set("Authorization", "Bearer secret")
	rec2 := httptest.NewRecorder()
	handler(rec2, req2)
	if rec2.Code == http.StatusUnauthorized {
		t.Error("status with correct bearer token = 401, want pass-through")
	}
}

func TestWrapCORS_AllowedOrigin(t *testing.T) {
	s := newTestServer(t, "http://unused.invalid")
	s.allowedOrigins = map[string]bool{"https://allowed.example": true}
	handler := s.wrapCORS(func(w http.ResponseWriter, r *http.Request) {})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "https://allowed.example")
	rec := httptest.NewRecorder()
	handler(rec, req)

	if rec.Header().Get("Access-Control-Allow-Origin") != "https://allowed.example" {
		t.Errorf("Access-Control-Allow-Origin = %q, want https://allowed.example", rec.Header().Get("Access-Control-Allow-Origin"))
	}
}

func TestWrapCORS_DisallowedOriginNoHeader(t *testing.T) {
	s := newTestServer(t, "http://unused.invalid")
	s.allowedOrigins = map[string]bool{"https://allowed.example": true}
	handler := s.wrapCORS(func(w http.ResponseWriter, r *http.Request) {})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "https://evil.example")
	rec := httptest.NewRecorder()
	handler(rec, req)

	if rec.Header().Get("Access-Control-Allow-Origin") != "" {
		t.Error("Access-Control-Allow-Origin set for a disallowed origin")
	}
}

func TestWrapCORS_PreflightOptions(t *testing.T) {
	s := newTestServer(t, "http://unused.invalid")
	called := false
	handler := s.wrapCORS(func(w http.ResponseWriter, r *http.Request) { called = true })

	req := httptest.NewRequest(http.MethodOptions, "/health", nil)
	rec := httptest.NewRecorder()
	handler(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Errorf("OPTIONS status = %d, want 204", rec.Code)
	}
	if called {
		t.Error("wrapCORS() should short-circuit OPTIONS before calling next")
	}
}

func TestWrapRateLimit_BlocksOverBurst(t *testing.T) {
	s := newTestServer(t, "http://unused.invalid")
	s.limiter = rate.NewLimiter(rate.Limit(0), 1)
	calls := 0
	handler := s.wrapRateLimit(func(w http.ResponseWriter, r *http.Request) { calls++ })

	req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions", nil)

	rec1 := httptest.NewRecorder()
	handler(rec1, req)
	if calls != 1 {
		t.Fatalf("calls after first request = %d, want 1 (within burst)", calls)
	}

	rec2 := httptest.NewRecorder()
	handler(rec2, req)
	if rec2.Code != http.StatusTooManyRequests {
		t.Errorf("second call status = %d, want 429 once burst is exhausted", rec2.Code)
	}
	if calls != 1 {
		t.Errorf("calls after second (blocked) request = %d, want still 1", calls)
	}
}

func TestRequestID_UsesExistingHeader(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("X-Request-Id", "existing-id")
	if got := requestID(req); got != "existing-id" {
		t.Errorf("requestID() = %q, want existing-id", got)
	}
}

func TestRequestID_GeneratesWhenMissing(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	if got := requestID(req); got == "" {
		t.Error("requestID() returned empty string")
	}
}
