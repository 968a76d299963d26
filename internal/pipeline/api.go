package pipeline

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/gym-retention/platform/internal/shared/batch"
)

// Handler exposes the pipeline over HTTP
type Handler struct {
	runner *Runner
	logger *zap.Logger
}

// NewHandler creates a new pipeline handler
func NewHandler(runner *Runner, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{runner: runner, logger: logger}
}

// Routes registers the pipeline routes
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/run", h.Run)
	return r
}

// Run executes stats, scoring and action generation in one call
func (h *Handler) Run(w http.ResponseWriter, r *http.Request) {
	result, err := h.runner.Run(r.Context())
	if err != nil {
		status, body := batch.ErrorResponse(err)
		writeJSON(w, status, body)
		return
	}

	status := http.StatusOK
	if !result.Success {
		status = http.StatusInternalServerError
	}
	writeJSON(w, status, result)
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
