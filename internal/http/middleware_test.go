package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// TestCorrelationIDMiddleware_GeneratesID verifies a correlation ID is
// generated, echoed in the response header, and placed on the context.
func TestCorrelationIDMiddleware_GeneratesID(t *testing.T) {
	var gotCtx context.Context
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotCtx = r.Context()
		w.WriteHeader(http.StatusOK)
	})

	handler := CorrelationIDMiddleware(zap.NewNop())(inner)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest("GET", "/", nil))

	header := w.Header().Get("X-Correlation-ID")
	if header == "" {
		t.Fatal("X-Correlation-ID response header not set")
	}
	if gotCtx.Value("correlation_id") != header {
		t.Errorf("context correlation_id = %v, want %q", gotCtx.Value("correlation_id"), header)
	}
	if _, ok := gotCtx.Value("logger").(*zap.Logger); !ok {
		t.Error("context logger not set")
	}
}

// TestCorrelationIDMiddleware_PropagatesID verifies an incoming ID is reused.
func TestCorrelationIDMiddleware_PropagatesID(t *testing.T) {
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})
	handler := CorrelationIDMiddleware(zap.NewNop())(inner)

	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set("X-Correlation-ID", "client-supplied-id")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if got := w.Header().Get("X-Correlation-ID"); got != "client-supplied-id" {
		t.Errorf("X-Correlation-ID = %q, want client-supplied-id", got)
	}
}

// TestMetricsMiddleware_InFlight verifies the in-flight counter rises inside
// the request and returns to zero afterwards.
func TestMetricsMiddleware_InFlight(t *testing.T) {
	var during int64
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		during = InFlightCount()
	})

	handler := MetricsMiddleware(inner)
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/", nil))

	if during != 1 {
		t.Errorf("in-flight count during request = %d, want 1", during)
	}
	if got := InFlightCount(); got != 0 {
		t.Errorf("in-flight count after request = %d, want 0", got)
	}
}

// TestMetricsMiddleware_RecordsStatus verifies the recorder captures the
// handler's status code without altering the response.
func TestMetricsMiddleware_RecordsStatus(t *testing.T) {
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})

	w := httptest.NewRecorder()
	MetricsMiddleware(inner).ServeHTTP(w, httptest.NewRequest("GET", "/", nil))

	if w.Code != http.StatusTeapot {
		t.Errorf("status = %d, want 418", w.Code)
	}
}

func TestGetRoute(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"/", "/"},
		{"/health", "/health"},
		{"/metrics", "/metrics"},
		{"/admin/debug", "other"},
	}
	for _, tt := range tests {
		r := httptest.NewRequest("GET", tt.path, nil)
		if got := getRoute(r); got != tt.want {
			t.Errorf("getRoute(%q) = %q, want %q", tt.path, got, tt.want)
		}
	}
}

func TestStatusCodeString(t *testing.T) {
	tests := []struct {
		code int
		want string
	}{
		{200, "2xx"},
		{404, "4xx"},
		{503, "5xx"},
	}
	for _, tt := range tests {
		if got := statusCodeString(tt.code); got != tt.want {
			t.Errorf("statusCodeString(%d) = %q, want %q", tt.code, got, tt.want)
		}
	}
}

// TestTimeoutMiddleware verifies downstream handlers see a context deadline.
func TestTimeoutMiddleware(t *testing.T) {
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		deadline, ok := r.Context().Deadline()
		if !ok {
			t.Error("request context has no deadline")
		}
		if time.Until(deadline) > time.Second {
			t.Errorf("deadline too far out: %v", time.Until(deadline))
		}
	})

	handler := TimeoutMiddleware(500 * time.Millisecond)(inner)
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/", nil))
}

// TestRateLimitMiddleware_Denies verifies an exhausted bucket returns a 429
// with the structured error body.
func TestRateLimitMiddleware_Denies(t *testing.T) {
	limiter := rate.NewLimiter(rate.Limit(1), 1)
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	handler := RateLimitMiddleware(limiter)(inner)

	// First request consumes the single token.
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest("GET", "/", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("first request status = %d, want 200", w.Code)
	}

	w = httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest("GET", "/", nil))
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("second request status = %d, want 429", w.Code)
	}
	var resp map[string]map[string]string
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode 429 body: %v", err)
	}
	if resp["error"]["code"] != "RATE_LIMITED" {
		t.Errorf("error code = %q, want RATE_LIMITED", resp["error"]["code"])
	}
}

// TestRateLimitMiddleware_NilPassthrough verifies a nil limiter disables limiting.
func TestRateLimitMiddleware_NilPassthrough(t *testing.T) {
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	handler := RateLimitMiddleware(nil)(inner)

	for i := 0; i < 50; i++ {
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, httptest.NewRequest("GET", "/", nil))
		if w.Code != http.StatusOK {
			t.Fatalf("request %d status = %d, want 200", i, w.Code)
		}
	}
}
