package syncjob

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/gym-retention/platform/internal/shared/batch"
	"github.com/gym-retention/platform/internal/shared/errors"
)

// LogReader lists recorded sync runs
type LogReader interface {
	Recent(ctx context.Context, limit int) ([]Log, error)
}

// Handler exposes the sync job over HTTP
type Handler struct {
	syncer *Syncer
	logs   LogReader
	logger *zap.Logger
}

// NewHandler creates a new sync handler
func NewHandler(syncer *Syncer, logs LogReader, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{syncer: syncer, logs: logs, logger: logger}
}

// Routes registers the sync routes
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/", h.Run)
	r.Get("/logs", h.ListLogs)
	return r
}

// Run executes one sync of the requested type
func (h *Handler) Run(w http.ResponseWriter, r *http.Request) {
	var req Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errors.BadRequest("invalid request body"))
		return
	}
	if !req.Type.Valid() {
		writeError(w, errors.Validation("validation failed", map[string]string{
			"sync_type": "must be one of members, checkins, stats",
		}))
		return
	}

	result, err := h.syncer.Run(r.Context(), req)
	if err != nil {
		h.logger.Error("sync failed", zap.String("sync_type", string(req.Type)), zap.Error(err))
		status, body := batch.ErrorResponse(err)
		writeJSON(w, status, body)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// ListLogs returns the most recent sync runs
func (h *Handler) ListLogs(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > 200 {
			writeError(w, errors.BadRequest("limit must be between 1 and 200"))
			return
		}
		limit = n
	}

	logs, err := h.logs.Recent(r.Context(), limit)
	if err != nil {
		writeError(w, err)
		return
	}
	if logs == nil {
		logs = []Log{}
	}

	writeJSON(w, http.StatusOK, map[string]any{"logs": logs})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, err error) {
	w.Header().Set("Content-Type", "application/json")

	if appErr, ok := errors.As(err); ok {
		w.WriteHeader(appErr.HTTPStatus)
		json.NewEncoder(w).Encode(map[string]any{
			"error":   appErr.Message,
			"code":    appErr.Code,
			"details": appErr.Details,
		})
		return
	}

	w.WriteHeader(http.StatusInternalServerError)
	json.NewEncoder(w).Encode(map[string]string{"error": "internal server error"})
}
