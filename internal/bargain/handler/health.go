package handler

import (
	"context"
	"net/http"
	"time"

	"bargain/pkg/contracts"
	httputil "bargain/pkg/http"
	"bargain/pkg/logger"
	"bargain/pkg/model"

	"github.com/julienschmidt/httprouter"
)

const readyTimeout = 2 * time.Second

type HealthHandler struct {
	readiness contracts.Readiness
	version   string
	startedAt time.Time
	log       *logger.Logger
}

func NewHealthHandler(readiness contracts.Readiness, version string, log *logger.Logger) *HealthHandler {
	return &HealthHandler{
		readiness: readiness,
		version:   version,
		startedAt: time.Now(),
		log:       log,
	}
}

func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	if err := httputil.WriteJSON(w, http.StatusOK, model.HealthResponse{
		Status:  "ok",
		Version: h.version,
		Uptime:  time.Since(h.startedAt).Round(time.Second).String(),
	}); err != nil {
		h.log.Error("failed to write JSON response", "handler", "Health", "operation", "WriteJSON", "error", err)
	}
}

func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
	defer cancel()

	if err := h.readiness.Ready(ctx); err != nil {
		h.log.Error("Readiness check failed",
			"error", err,
			"path", r.URL.Path,
		)
		if writeErr := httputil.WriteError(w, err); writeErr != nil {
			h.log.Error("failed to write error response", "handler", "Ready", "operation", "WriteError", "error", writeErr)
		}
		return
	}

	if err := httputil.WriteJSON(w, http.StatusOK, model.HealthResponse{
		Status:  "ready",
		Version: h.version,
		Uptime:  time.Since(h.startedAt).Round(time.Second).String(),
	}); err != nil {
		h.log.Error("failed to write JSON response", "handler", "Ready", "operation", "WriteJSON", "error", err)
	}
}

func (h *HealthHandler) RegisterRoutes(router *httprouter.Router) {
	router.GET(BasePath+"/health", h.Health)
	router.GET(BasePath+"/ready", h.Ready)
}
