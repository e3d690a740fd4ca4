package handler

import (
	"crypto/subtle"
	"net/http"

	"bargain/internal/bargain/service"
	apperrors "bargain/pkg/errors"
	httputil "bargain/pkg/http"
	"bargain/pkg/logger"
	"bargain/pkg/model"

	"github.com/julienschmidt/httprouter"
)

const (
	BasePath    = "/api/bargain/v1"
	AdminHeader = "X-Admin-Token"
)

type BargainHandler struct {
	service    service.BargainService
	telemetry  *Telemetry
	adminToken string
	log        *logger.Logger
}

func NewBargainHandler(service service.BargainService, telemetry *Telemetry, adminToken string, log *logger.Logger) *BargainHandler {
	if telemetry == nil {
		telemetry = NewTelemetry()
	}
	return &BargainHandler{
		service:    service,
		telemetry:  telemetry,
		adminToken: adminToken,
		log:        log,
	}
}

func (h *BargainHandler) Start(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var req model.StartSessionRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		h.writeError(w, "Start", err)
		return
	}

	resp, err := h.service.Start(r.Context(), &req)
	if err != nil {
		h.writeError(w, "Start", err)
		return
	}

	if err := httputil.WriteSuccess(w, resp); err != nil {
		h.log.Error("failed to write success response", "handler", "Start", "operation", "WriteSuccess", "error", err)
	}
}

func (h *BargainHandler) Offer(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var req model.OfferRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		h.writeError(w, "Offer", err)
		return
	}

	resp, err := h.service.Offer(r.Context(), &req)
	if err != nil {
		h.writeError(w, "Offer", err)
		return
	}

	if err := httputil.WriteSuccess(w, resp); err != nil {
		h.log.Error("failed to write success response", "handler", "Offer", "operation", "WriteSuccess", "error", err)
	}
}

func (h *BargainHandler) Accept(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var req model.AcceptRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		h.writeError(w, "Accept", err)
		return
	}

	resp, err := h.service.Accept(r.Context(), &req)
	if err != nil {
		h.writeError(w, "Accept", err)
		return
	}

	if err := httputil.WriteSuccess(w, resp); err != nil {
		h.log.Error("failed to write success response", "handler", "Accept", "operation", "WriteSuccess", "error", err)
	}
}

func (h *BargainHandler) LogEvent(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var req model.LogEventRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		h.writeError(w, "LogEvent", err)
		return
	}

	if err := h.service.LogEvent(r.Context(), &req); err != nil {
		h.writeError(w, "LogEvent", err)
		return
	}

	httputil.WriteNoContent(w)
}

func (h *BargainHandler) Status(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	status, err := h.service.Status(r.Context(), ps.ByName("id"))
	if err != nil {
		h.writeError(w, "Status", err)
		return
	}

	if err := httputil.WriteSuccess(w, status); err != nil {
		h.log.Error("failed to write success response", "handler", "Status", "operation", "WriteSuccess", "error", err)
	}
}

func (h *BargainHandler) Replay(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	if !h.authorizedAdmin(r) {
		h.log.Warn("Rejected replay request without a valid admin token", "path", r.URL.Path)
		h.writeError(w, "Replay", apperrors.Forbidden("Admin token required"))
		return
	}

	replay, err := h.service.Replay(r.Context(), ps.ByName("id"))
	if err != nil {
		h.writeError(w, "Replay", err)
		return
	}

	if err := httputil.WriteSuccess(w, replay); err != nil {
		h.log.Error("failed to write success response", "handler", "Replay", "operation", "WriteSuccess", "error", err)
	}
}

func (h *BargainHandler) Metrics(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	if err := httputil.WriteSuccess(w, h.telemetry.Snapshot()); err != nil {
		h.log.Error("failed to write success response", "handler", "Metrics", "operation", "WriteSuccess", "error", err)
	}
}

// authorizedAdmin fails closed when no admin token is configured.
func (h *BargainHandler) authorizedAdmin(r *http.Request) bool {
	if h.adminToken == "" {
		return false
	}
	got := r.Header.Get(AdminHeader)
	return subtle.ConstantTimeCompare([]byte(got), []byte(h.adminToken)) == 1
}

func (h *BargainHandler) writeError(w http.ResponseWriter, handler string, err error) {
	if writeErr := httputil.WriteError(w, err); writeErr != nil {
		h.log.Error("failed to write error response", "handler", handler, "operation", "WriteError", "error", writeErr)
	}
}

func (h *BargainHandler) RegisterRoutes(router *httprouter.Router) {
	router.POST(BasePath+"/session/start", h.telemetry.Instrument("session_start", h.Start))
	router.POST(BasePath+"/session/offer", h.telemetry.Instrument("session_offer", h.Offer))
	router.POST(BasePath+"/session/accept", h.telemetry.Instrument("session_accept", h.Accept))
	router.POST(BasePath+"/event/log", h.telemetry.Instrument("event_log", h.LogEvent))
	router.GET(BasePath+"/session/status/:id", h.telemetry.Instrument("session_status", h.Status))
	router.GET(BasePath+"/session/replay/:id", h.telemetry.Instrument("session_replay", h.Replay))
	router.GET(BasePath+"/metrics", h.Metrics)
}
