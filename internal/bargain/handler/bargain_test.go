package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	bargainerrors "bargain/internal/bargain/errors"
	apperrors "bargain/pkg/errors"
	"bargain/pkg/logger"
	"bargain/pkg/middleware"
	"bargain/pkg/model"

	"github.com/julienschmidt/httprouter"
)

type mockBargainService struct {
	startFunc  func(ctx context.Context, req *model.StartSessionRequest) (*model.StartSessionResponse, error)
	offerFunc  func(ctx context.Context, req *model.OfferRequest) (*model.OfferResponse, error)
	acceptFunc func(ctx context.Context, req *model.AcceptRequest) (*model.AcceptResponse, error)
	logFunc    func(ctx context.Context, req *model.LogEventRequest) error
	statusFunc func(ctx context.Context, id string) (*model.SessionStatusResponse, error)
	replayFunc func(ctx context.Context, id string) (*model.ReplayResponse, error)
	readyErr   error
}

func (m *mockBargainService) Start(ctx context.Context, req *model.StartSessionRequest) (*model.StartSessionResponse, error) {
	if m.startFunc != nil {
		return m.startFunc(ctx, req)
	}
	return &model.StartSessionResponse{}, nil
}

func (m *mockBargainService) Offer(ctx context.Context, req *model.OfferRequest) (*model.OfferResponse, error) {
	if m.offerFunc != nil {
		return m.offerFunc(ctx, req)
	}
	return &model.OfferResponse{}, nil
}

func (m *mockBargainService) Accept(ctx context.Context, req *model.AcceptRequest) (*model.AcceptResponse, error) {
	if m.acceptFunc != nil {
		return m.acceptFunc(ctx, req)
	}
	return &model.AcceptResponse{}, nil
}

func (m *mockBargainService) LogEvent(ctx context.Context, req *model.LogEventRequest) error {
	if m.logFunc != nil {
		return m.logFunc(ctx, req)
	}
	return nil
}

func (m *mockBargainService) Status(ctx context.Context, id string) (*model.SessionStatusResponse, error) {
	if m.statusFunc != nil {
		return m.statusFunc(ctx, id)
	}
	return &model.SessionStatusResponse{}, nil
}

func (m *mockBargainService) Replay(ctx context.Context, id string) (*model.ReplayResponse, error) {
	if m.replayFunc != nil {
		return m.replayFunc(ctx, id)
	}
	return &model.ReplayResponse{}, nil
}

func (m *mockBargainService) Ready(context.Context) error {
	return m.readyErr
}

func (m *mockBargainService) Close() {}

func newTestServer(svc *mockBargainService, adminToken string) (http.Handler, *Telemetry) {
	log := logger.Discard()
	telemetry := NewTelemetry()
	router := httprouter.New()
	NewBargainHandler(svc, telemetry, adminToken, log).RegisterRoutes(router)
	NewHealthHandler(svc, "test", log).RegisterRoutes(router)
	return middleware.ResponseTime()(router), telemetry
}

func do(t *testing.T, h http.Handler, method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) apperrors.ErrorResponse {
	t.Helper()
	var body apperrors.ErrorResponse
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	return body
}

func TestStart_Success(t *testing.T) {
	var got *model.StartSessionRequest
	svc := &mockBargainService{
		startFunc: func(_ context.Context, req *model.StartSessionRequest) (*model.StartSessionResponse, error) {
			got = req
			return &model.StartSessionResponse{SessionID: "s1", InitialOffer: 138, MinFloor: 120}, nil
		},
	}
	srv, _ := newTestServer(svc, "")

	body := `{"user":{"id":"u1","tier":"GOLD"},"productCPO":{"type":"hotel","canonical_key":"HTL-1","displayed_price":150,"currency":"USD"},"promo_code":"SAVE20"}`
	rec := do(t, srv, http.MethodPost, BasePath+"/session/start", body, nil)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	if got == nil || got.User.ID != "u1" || got.PromoCode != "SAVE20" {
		t.Errorf("service received %+v", got)
	}
	var resp model.StartSessionResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.InitialOffer != 138 || resp.MinFloor != 120 {
		t.Errorf("response = %+v", resp)
	}
	if !strings.HasSuffix(rec.Header().Get(middleware.ResponseTimeHeader), "ms") {
		t.Errorf("missing %s header", middleware.ResponseTimeHeader)
	}
}

func TestErrorMapping(t *testing.T) {
	tests := []struct {
		name       string
		path       string
		body       string
		svc        *mockBargainService
		wantStatus int
		wantCode   string
	}{
		{
			name:       "malformed body",
			path:       "/session/start",
			body:       `{"user":`,
			svc:        &mockBargainService{},
			wantStatus: http.StatusBadRequest,
			wantCode:   apperrors.CodeInvalidInput,
		},
		{
			name: "invalid product type",
			path: "/session/start",
			body: `{}`,
			svc: &mockBargainService{startFunc: func(context.Context, *model.StartSessionRequest) (*model.StartSessionResponse, error) {
				return nil, bargainerrors.InvalidProductType("cruise")
			}},
			wantStatus: http.StatusBadRequest,
			wantCode:   bargainerrors.CodeInvalidProductType,
		},
		{
			name: "policy blocked",
			path: "/session/start",
			body: `{}`,
			svc: &mockBargainService{startFunc: func(context.Context, *model.StartSessionRequest) (*model.StartSessionResponse, error) {
				return nil, bargainerrors.PolicyBlocked("blackout_dates")
			}},
			wantStatus: http.StatusForbidden,
			wantCode:   bargainerrors.CodePolicyBlocked,
		},
		{
			name: "session not found",
			path: "/session/offer",
			body: `{"session_id":"x","user_offer":10}`,
			svc: &mockBargainService{offerFunc: func(context.Context, *model.OfferRequest) (*model.OfferResponse, error) {
				return nil, bargainerrors.SessionNotFound("x")
			}},
			wantStatus: http.StatusNotFound,
			wantCode:   bargainerrors.CodeSessionNotFound,
		},
		{
			name: "lock conflict",
			path: "/session/accept",
			body: `{"session_id":"x"}`,
			svc: &mockBargainService{acceptFunc: func(context.Context, *model.AcceptRequest) (*model.AcceptResponse, error) {
				return nil, bargainerrors.LockConflict()
			}},
			wantStatus: http.StatusConflict,
			wantCode:   bargainerrors.CodeLockConflict,
		},
		{
			name: "capsule invalid",
			path: "/session/accept",
			body: `{"session_id":"x"}`,
			svc: &mockBargainService{acceptFunc: func(context.Context, *model.AcceptRequest) (*model.AcceptResponse, error) {
				return nil, bargainerrors.CapsuleInvalid()
			}},
			wantStatus: http.StatusConflict,
			wantCode:   bargainerrors.CodeCapsuleInvalid,
		},
		{
			name: "unexpected error hides its cause",
			path: "/event/log",
			body: `{"session_id":"x","name":"ui.click"}`,
			svc: &mockBargainService{logFunc: func(context.Context, *model.LogEventRequest) error {
				return context.DeadlineExceeded
			}},
			wantStatus: http.StatusInternalServerError,
			wantCode:   apperrors.CodeInternal,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, _ := newTestServer(tt.svc, "")
			rec := do(t, srv, http.MethodPost, BasePath+tt.path, tt.body, nil)

			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d (%s)", rec.Code, tt.wantStatus, rec.Body.String())
			}
			body := decodeError(t, rec)
			if body.Code != tt.wantCode {
				t.Errorf("error_code = %s, want %s", body.Code, tt.wantCode)
			}
			if strings.Contains(body.Message, "deadline") {
				t.Errorf("message leaks the cause: %q", body.Message)
			}
			if rec.Header().Get(middleware.ResponseTimeHeader) == "" {
				t.Error("error responses must carry the response time header")
			}
		})
	}
}

func TestLogEvent_NoContent(t *testing.T) {
	srv, _ := newTestServer(&mockBargainService{}, "")
	rec := do(t, srv, http.MethodPost, BasePath+"/event/log", `{"session_id":"x","name":"ui.click"}`, nil)
	if rec.Code != http.StatusNoContent {
		t.Errorf("status = %d, want 204", rec.Code)
	}
}

func TestStatus_PublicWithoutFloor(t *testing.T) {
	svc := &mockBargainService{statusFunc: func(_ context.Context, id string) (*model.SessionStatusResponse, error) {
		if id != "s-42" {
			return nil, bargainerrors.SessionNotFound(id)
		}
		return &model.SessionStatusResponse{SessionID: id, Status: model.SessionActive, Round: 2, LastPrice: 132}, nil
	}}
	srv, _ := newTestServer(svc, "")

	rec := do(t, srv, http.MethodGet, BasePath+"/session/status/s-42", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	if strings.Contains(rec.Body.String(), "floor") {
		t.Errorf("status body exposes the floor: %s", rec.Body.String())
	}
	var resp model.SessionStatusResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Status != model.SessionActive || resp.Round != 2 || resp.LastPrice != 132 {
		t.Errorf("response = %+v", resp)
	}

	rec = do(t, srv, http.MethodGet, BasePath+"/session/status/missing", "", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("unknown session status = %d, want 404", rec.Code)
	}
}

func TestReplay_RequiresAdminToken(t *testing.T) {
	var requested string
	svc := &mockBargainService{replayFunc: func(_ context.Context, id string) (*model.ReplayResponse, error) {
		requested = id
		return &model.ReplayResponse{Session: &model.Session{ID: id}}, nil
	}}

	tests := []struct {
		name       string
		configured string
		header     string
		wantStatus int
	}{
		{name: "valid token", configured: "secret", header: "secret", wantStatus: http.StatusOK},
		{name: "wrong token", configured: "secret", header: "nope", wantStatus: http.StatusForbidden},
		{name: "missing token", configured: "secret", wantStatus: http.StatusForbidden},
		{name: "replay disabled", configured: "", header: "", wantStatus: http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			requested = ""
			srv, _ := newTestServer(svc, tt.configured)
			headers := map[string]string{}
			if tt.header != "" {
				headers[AdminHeader] = tt.header
			}
			rec := do(t, srv, http.MethodGet, BasePath+"/session/replay/s-42", "", headers)
			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if tt.wantStatus == http.StatusOK && requested != "s-42" {
				t.Errorf("service asked for %q", requested)
			}
			if tt.wantStatus != http.StatusOK && requested != "" {
				t.Error("service called without authorization")
			}
		})
	}
}

func TestHealthAndReady(t *testing.T) {
	svc := &mockBargainService{}
	srv, _ := newTestServer(svc, "")

	rec := do(t, srv, http.MethodGet, BasePath+"/health", "", nil)
	if rec.Code != http.StatusOK {
		t.Errorf("health status = %d", rec.Code)
	}

	rec = do(t, srv, http.MethodGet, BasePath+"/ready", "", nil)
	if rec.Code != http.StatusOK {
		t.Errorf("ready status = %d", rec.Code)
	}

	svc.readyErr = apperrors.Unavailable("session store")
	rec = do(t, srv, http.MethodGet, BasePath+"/ready", "", nil)
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("ready status with store down = %d, want 503", rec.Code)
	}
}

func TestMetrics_CountsCalls(t *testing.T) {
	svc := &mockBargainService{offerFunc: func(context.Context, *model.OfferRequest) (*model.OfferResponse, error) {
		return nil, apperrors.Internal("boom", nil)
	}}
	srv, telemetry := newTestServer(svc, "")
	telemetry.AddSource("kafka", func() map[string]any { return map[string]any{"published": 3} })

	do(t, srv, http.MethodPost, BasePath+"/session/start", `{}`, nil)
	do(t, srv, http.MethodPost, BasePath+"/session/offer", `{}`, nil)

	rec := do(t, srv, http.MethodGet, BasePath+"/metrics", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("metrics status = %d", rec.Code)
	}
	var body struct {
		Status    string                    `json:"status"`
		Endpoints map[string]map[string]any `json:"endpoints"`
		Kafka     map[string]any            `json:"kafka"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Endpoints["session_start"]["requests"] != float64(1) {
		t.Errorf("session_start = %v", body.Endpoints["session_start"])
	}
	if body.Endpoints["session_offer"]["errors"] != float64(1) || body.Endpoints["session_offer"]["error_rate"] != float64(100) {
		t.Errorf("session_offer = %v", body.Endpoints["session_offer"])
	}
	if body.Kafka["published"] != float64(3) {
		t.Errorf("kafka source = %v", body.Kafka)
	}
	if body.Status != "HEALTHY" {
		t.Errorf("status = %s", body.Status)
	}
}
