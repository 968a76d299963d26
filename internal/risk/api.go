package risk

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/gym-retention/platform/internal/shared/batch"
)

// Handler exposes the scoring batch over HTTP
type Handler struct {
	calculator *Calculator
	logger     *zap.Logger
}

// NewHandler creates a new risk handler
func NewHandler(calculator *Calculator, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{calculator: calculator, logger: logger}
}

// Routes registers the risk routes
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/calculate", h.Calculate)
	return r
}

// Calculate runs a scoring batch over all active members
func (h *Handler) Calculate(w http.ResponseWriter, r *http.Request) {
	result, err := h.calculator.CalculateAll(r.Context())
	if err != nil {
		h.logger.Error("risk scoring failed", zap.Error(err))
		status, body := batch.ErrorResponse(err)
		writeJSON(w, status, body)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
