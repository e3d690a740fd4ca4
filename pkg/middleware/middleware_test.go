package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"bargain/pkg/logger"
)

func okHandler(body string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(body))
	})
}

func TestResponseTime_SetsHeader(t *testing.T) {
	handler := ResponseTime()(okHandler(`{}`))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	got := rec.Header().Get(ResponseTimeHeader)
	if !regexp.MustCompile(`^\d+ms$`).MatchString(got) {
		t.Errorf("X-Response-Time = %q, want <n>ms", got)
	}
}

func TestResponseTime_ImplicitWriteHeader(t *testing.T) {
	handler := ResponseTime()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	if rec.Header().Get(ResponseTimeHeader) == "" {
		t.Error("expected X-Response-Time when handler only calls Write")
	}
}

func TestRecovery_ReturnsErrorCode(t *testing.T) {
	handler := Recovery(logger.Discard())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
	var body map[string]any
	_ = json.Unmarshal(rec.Body.Bytes(), &body)
	if body["error_code"] != "INTERNAL_ERROR" {
		t.Errorf("error_code = %v, want INTERNAL_ERROR", body["error_code"])
	}
}

func TestContentTypeValidation(t *testing.T) {
	tests := []struct {
		name        string
		method      string
		contentType string
		wantStatus  int
	}{
		{"json post", http.MethodPost, "application/json; charset=utf-8", http.StatusOK},
		{"form post", http.MethodPost, "application/x-www-form-urlencoded", http.StatusUnsupportedMediaType},
		{"missing on post", http.MethodPost, "", http.StatusUnsupportedMediaType},
		{"get without header", http.MethodGet, "", http.StatusOK},
	}

	handler := ContentTypeValidation(logger.Discard())(okHandler(`{}`))
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, "/", strings.NewReader(`{}`))
			if tt.contentType != "" {
				req.Header.Set("Content-Type", tt.contentType)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)
			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
		})
	}
}

func TestRateLimit(t *testing.T) {
	limiter := NewClientRateLimiter(2, time.Minute, nil, logger.Discard())
	defer limiter.Stop()
	handler := RateLimit(limiter)(okHandler(`{}`))

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodPost, "/", nil)
		req.Header.Set("X-User-ID", "u-1")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		codes = append(codes, rec.Code)
		if i == 2 && rec.Header().Get("Retry-After") == "" {
			t.Error("throttled response should carry Retry-After")
		}
	}

	if codes[0] != http.StatusOK || codes[1] != http.StatusOK || codes[2] != http.StatusTooManyRequests {
		t.Errorf("status codes = %v, want [200 200 429]", codes)
	}

	other := httptest.NewRequest(http.MethodPost, "/", nil)
	other.Header.Set("X-User-ID", "u-2")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, other)
	if rec.Code != http.StatusOK {
		t.Errorf("other client status = %d, want 200", rec.Code)
	}
}

func TestIdempotency_ReplaysSuccess(t *testing.T) {
	store := NewInMemoryIdempotencyStore(time.Hour)
	defer store.Stop()

	calls := 0
	handler := Idempotency(store, "")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"supplier_lock_id":"L1"}`))
	}))

	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/bargain/v1/session/accept", nil)
		req.Header.Set(DefaultIdempotencyHeader, "abc")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		if rec.Body.String() != `{"supplier_lock_id":"L1"}` {
			t.Errorf("attempt %d body = %s", i, rec.Body.String())
		}
	}

	if calls != 1 {
		t.Errorf("handler calls = %d, want 1", calls)
	}
}

type memByteStore struct {
	mu   sync.Mutex
	data map[string][]byte
}

func (m *memByteStore) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.data[key], nil
}

func (m *memByteStore) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
	return nil
}

func TestSharedIdempotencyStore_RoundTrip(t *testing.T) {
	store := NewSharedIdempotencyStore(&memByteStore{data: map[string][]byte{}}, time.Hour, logger.Discard())

	store.Set(context.Background(), "k", &CachedResponse{StatusCode: 200, Body: []byte("x")})
	got, ok := store.Get(context.Background(), "k")
	if !ok || got.StatusCode != 200 || string(got.Body) != "x" {
		t.Fatalf("Get() = %+v, %v", got, ok)
	}

	if _, ok := store.Get(context.Background(), "missing"); ok {
		t.Error("expected miss for unknown key")
	}
}

func TestRequestTimeout_WritesTimeoutError(t *testing.T) {
	handler := RequestTimeout(20 * time.Millisecond)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
		time.Sleep(10 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	if rec.Code != http.StatusGatewayTimeout {
		t.Errorf("status = %d, want 504", rec.Code)
	}
}
