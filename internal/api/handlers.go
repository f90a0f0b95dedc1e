package api

import (
	"encoding/json"
	"errors"
	"io/fs"
	"log/slog"
	"net/http"

	"github.com/tepstack/tep-sentinel/internal/models"
	"github.com/tepstack/tep-sentinel/internal/services"
	"github.com/tepstack/tep-sentinel/internal/utils"
)

// Handler maps the monitoring facade onto HTTP routes.
type Handler struct {
	logger  *slog.Logger
	service *services.MonitorService
}

// NewHandler constructs the route handler.
func NewHandler(logger *slog.Logger, service *services.MonitorService) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service}
}

// Routes builds the request mux.
func (h *Handler) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", h.health)
	mux.HandleFunc("GET /readyz", h.ready)
	mux.HandleFunc("POST /api/v1/predict", h.predict)
	mux.HandleFunc("POST /api/v1/sessions", h.startSession)
	mux.HandleFunc("POST /api/v1/sessions/{id}/samples", h.feed)
	mux.HandleFunc("DELETE /api/v1/sessions/{id}", h.endSession)
	mux.HandleFunc("GET /api/v1/report", h.report)
	return mux
}

func (h *Handler) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) ready(w http.ResponseWriter, _ *http.Request) {
	if !h.service.Ready() {
		writeError(w, http.StatusServiceUnavailable, "not_ready", "model artifacts not loaded")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":              "ready",
		"detector_ready":      true,
		"diagnostician_ready": true,
	})
}

func (h *Handler) predict(w http.ResponseWriter, r *http.Request) {
	var req models.PredictRequest
	if !decodeBody(w, r, &req) {
		return
	}

	resp, err := h.service.Predict(r.Context(), req)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) startSession(w http.ResponseWriter, r *http.Request) {
	var req models.StartSessionRequest
	if !decodeBody(w, r, &req) {
		return
	}

	resp, err := h.service.StartSession(r.Context(), req)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, resp)
}

func (h *Handler) feed(w http.ResponseWriter, r *http.Request) {
	var req models.FeedRequest
	if !decodeBody(w, r, &req) {
		return
	}

	resp, err := h.service.Feed(r.Context(), r.PathValue("id"), req)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) endSession(w http.ResponseWriter, r *http.Request) {
	if err := h.service.EndSession(r.Context(), r.PathValue("id")); err != nil {
		h.writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) report(w http.ResponseWriter, r *http.Request) {
	report, err := h.service.Report(r.Context())
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			writeError(w, http.StatusNotFound, "report_missing", "no evaluation report has been produced yet")
			return
		}
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// writeServiceError maps the error taxonomy onto HTTP statuses. Unknown
// errors surface as opaque 500s so internals never leak to callers.
func (h *Handler) writeServiceError(w http.ResponseWriter, err error) {
	switch utils.CodeOf(err) {
	case utils.CodeValidation:
		writeError(w, http.StatusBadRequest, string(utils.CodeValidation), err.Error())
	case utils.CodeSessionNotFound:
		writeError(w, http.StatusNotFound, string(utils.CodeSessionNotFound), err.Error())
	case utils.CodeConfiguration:
		writeError(w, http.StatusServiceUnavailable, string(utils.CodeConfiguration), "inference engine is not initialised")
	default:
		h.logger.Error("request failed", slog.Any("error", err))
		writeError(w, http.StatusInternalServerError, "internal", "internal inference failure")
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, string(utils.CodeValidation), "malformed request body: "+err.Error())
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]string{"error": code, "message": message})
}
