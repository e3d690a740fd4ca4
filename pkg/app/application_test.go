package app

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"bargain/pkg/config"
	"bargain/pkg/logger"
	"bargain/pkg/middleware"

	"github.com/julienschmidt/httprouter"
)

type routes func(*httprouter.Router)

func (f routes) RegisterRoutes(r *httprouter.Router) { f(r) }

func testConfig() *config.Config {
	return &config.Config{
		Port:              "8080",
		RateLimitRequests: 2,
		RateLimitWindow:   time.Minute,
		RequestTimeout:    time.Second,
		IdempotencyTTL:    time.Minute,
		MaxRequestSize:    1 << 20,
		ReadTimeout:       time.Second,
		WriteTimeout:      time.Second,
		IdleTimeout:       time.Second,
		ShutdownTimeout:   time.Second,
		Log:               logger.Discard(),
	}
}

func TestApplication_RoutesAndMiddleware(t *testing.T) {
	calls := 0
	appRoutes := routes(func(r *httprouter.Router) {
		r.POST("/api/bargain/v1/session/start", func(w http.ResponseWriter, _ *http.Request, _ httprouter.Params) {
			calls++
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte(`{"ok":true}`))
		})
	})
	healthRoutes := routes(func(r *httprouter.Router) {
		r.GET(healthPath, func(w http.ResponseWriter, _ *http.Request, _ httprouter.Params) {
			w.WriteHeader(http.StatusOK)
		})
	})

	a := NewApplication(testConfig())
	a.SetApp(appRoutes, healthRoutes, nil)
	defer a.idempotencyStore.Stop()
	defer a.rateLimiter.Stop()
	h := a.Handler()

	for i := 0; i < 5; i++ {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, healthPath, nil))
		if rec.Code != http.StatusOK {
			t.Fatalf("health status = %d", rec.Code)
		}
		if rec.Header().Get(middleware.ResponseTimeHeader) == "" {
			t.Fatal("health response lacks response time header")
		}
	}

	post := func(key string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/bargain/v1/session/start", strings.NewReader(`{}`))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-User-ID", "u1")
		if key != "" {
			req.Header.Set(middleware.DefaultIdempotencyHeader, key)
		}
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec
	}

	if rec := post("k1"); rec.Code != http.StatusOK {
		t.Fatalf("first post status = %d", rec.Code)
	}
	if rec := post("k1"); rec.Code != http.StatusOK || calls != 1 {
		t.Fatalf("replayed post status = %d, calls = %d", rec.Code, calls)
	}
	if rec := post(""); rec.Code != http.StatusTooManyRequests {
		t.Errorf("third post status = %d, want 429", rec.Code)
	}
}

func TestApplication_ClosersRunInReverse(t *testing.T) {
	a := NewApplication(testConfig())
	a.SetApp(routes(func(*httprouter.Router) {}), routes(func(*httprouter.Router) {}), nil)

	var order []int
	a.OnShutdown(func() { order = append(order, 1) })
	a.OnShutdown(func() { order = append(order, 2) })
	a.gracefulShutdown(func() {})

	if len(order) != 2 || order[0] != 2 || order[1] != 1 {
		t.Errorf("closer order = %v, want [2 1]", order)
	}
}
