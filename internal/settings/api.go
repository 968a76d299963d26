package settings

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/gym-retention/platform/internal/shared/auth"
	"github.com/gym-retention/platform/internal/shared/errors"
)

// Handler provides HTTP handlers for the settings module
type Handler struct {
	service    *Service
	adminRoles []string
}

// NewHandler creates a new settings handler. Writes require one of adminRoles.
func NewHandler(service *Service, adminRoles []string) *Handler {
	return &Handler{service: service, adminRoles: adminRoles}
}

// Routes registers the settings routes
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Get("/", h.ListSettings)
	r.Route("/{key}", func(r chi.Router) {
		r.Get("/", h.GetSetting)
		r.With(auth.RequireRoles(h.adminRoles...)).Put("/", h.PutSetting)
	})

	return r
}

// PutSettingRequest replaces the value of a setting
type PutSettingRequest struct {
	Value       json.RawMessage `json:"value"`
	Description string          `json:"description,omitempty"`
}

// ListSettings lists all settings
func (h *Handler) ListSettings(w http.ResponseWriter, r *http.Request) {
	settings, err := h.service.List(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	if settings == nil {
		settings = []Setting{}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"data":  settings,
		"total": len(settings),
	})
}

// GetSetting returns one setting by key
func (h *Handler) GetSetting(w http.ResponseWriter, r *http.Request) {
	setting, err := h.service.Get(r.Context(), chi.URLParam(r, "key"))
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, setting)
}

// PutSetting validates and stores a setting
func (h *Handler) PutSetting(w http.ResponseWriter, r *http.Request) {
	var req PutSettingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errors.BadRequest("invalid request body"))
		return
	}
	if len(req.Value) == 0 {
		writeError(w, errors.Validation("validation failed", map[string]string{
			"value": "value is required",
		}))
		return
	}

	setting, err := h.service.Put(r.Context(), chi.URLParam(r, "key"), req.Value, req.Description)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, setting)
}

// --- Helpers ---

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
