package action

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/gym-retention/platform/internal/shared/auth"
	"github.com/gym-retention/platform/internal/shared/batch"
	"github.com/gym-retention/platform/internal/shared/errors"
	"github.com/gym-retention/platform/internal/shared/events"
	"github.com/gym-retention/platform/internal/shared/metrics"
	"github.com/gym-retention/platform/internal/shared/types"
)

// Items is the action persistence the HTTP handlers use
type Items interface {
	Get(ctx context.Context, id types.ID) (*ActionItem, error)
	List(ctx context.Context, filter ListFilter) ([]ActionItem, int, error)
	Update(ctx context.Context, a *ActionItem, expected Status) error
}

// Handler provides HTTP handlers for the action module
type Handler struct {
	items     Items
	generator *Generator
	publisher events.Publisher
	logger    *zap.Logger
}

// NewHandler creates a new action handler
func NewHandler(items Items, generator *Generator, publisher events.Publisher, logger *zap.Logger) *Handler {
	if publisher == nil {
		publisher = events.Discard
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{items: items, generator: generator, publisher: publisher, logger: logger}
}

// Routes registers the action routes
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Get("/", h.ListActions)
	r.Post("/generate", h.Generate)

	r.Route("/{actionID}", func(r chi.Router) {
		r.Get("/", h.GetAction)
		r.Post("/start", h.StartAction)
		r.Post("/complete", h.CompleteAction)
		r.Post("/cancel", h.CancelAction)
		r.Post("/assign", h.AssignAction)
	})

	return r
}

// CompleteActionRequest closes an action with its outcome
type CompleteActionRequest struct {
	Result string `json:"result"`
}

// AssignActionRequest hands an action to a staff user
type AssignActionRequest struct {
	AssignedTo string `json:"assigned_to"`
}

// Generate runs the action generator
func (h *Handler) Generate(w http.ResponseWriter, r *http.Request) {
	result, err := h.generator.GenerateAll(r.Context())
	if err != nil {
		h.logger.Error("action generation failed", zap.Error(err))
		status, body := batch.ErrorResponse(err)
		writeJSON(w, status, body)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// ListActions lists action items with optional status and type filters
func (h *Handler) ListActions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var filter ListFilter

	if s := q.Get("status"); s != "" {
		status := Status(s)
		if !status.Valid() {
			writeError(w, errors.BadRequest("invalid status"))
			return
		}
		filter.Status = &status
	}
	if t := q.Get("type"); t != "" {
		actionType := Type(t)
		if !actionType.Valid() {
			writeError(w, errors.BadRequest("invalid type"))
			return
		}
		filter.Type = &actionType
	}
	if v := q.Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			filter.Limit = n
		}
	}
	if v := q.Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			filter.Offset = n
		}
	}

	items, total, err := h.items.List(r.Context(), filter)
	if err != nil {
		writeError(w, err)
		return
	}
	if items == nil {
		items = []ActionItem{}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"data":  items,
		"total": total,
	})
}

// GetAction gets an action item by ID
func (h *Handler) GetAction(w http.ResponseWriter, r *http.Request) {
	item, err := h.load(r)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, item)
}

// StartAction moves a pending action to in-progress
func (h *Handler) StartAction(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, func(a *ActionItem) error {
		return a.Start()
	})
}

// CompleteAction closes an action with a result
func (h *Handler) CompleteAction(w http.ResponseWriter, r *http.Request) {
	var req CompleteActionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errors.BadRequest("invalid request body"))
		return
	}

	h.transition(w, r, func(a *ActionItem) error {
		return a.Complete(req.Result, time.Now().UTC())
	})
}

// CancelAction cancels an open action
func (h *Handler) CancelAction(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, func(a *ActionItem) error {
		return a.Cancel()
	})
}

// AssignAction assigns an open action to a staff user. An empty body
// assigns it to the caller.
func (h *Handler) AssignAction(w http.ResponseWriter, r *http.Request) {
	var req AssignActionRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, errors.BadRequest("invalid request body"))
			return
		}
	}
	if req.AssignedTo == "" {
		if user := auth.GetUser(r.Context()); user != nil {
			req.AssignedTo = user.ID.String()
		}
	}

	h.transition(w, r, func(a *ActionItem) error {
		return a.Assign(req.AssignedTo)
	})
}

func (h *Handler) load(r *http.Request) (*ActionItem, error) {
	id, err := types.ParseID(chi.URLParam(r, "actionID"))
	if err != nil {
		return nil, errors.BadRequest("invalid action ID")
	}
	return h.items.Get(r.Context(), id)
}

// transition loads the action, applies change and persists it guarded by
// the status it was loaded with.
func (h *Handler) transition(w http.ResponseWriter, r *http.Request, change func(a *ActionItem) error) {
	item, err := h.load(r)
	if err != nil {
		writeError(w, err)
		return
	}

	from := item.Status
	if err := change(item); err != nil {
		writeError(w, err)
		return
	}
	if err := h.items.Update(r.Context(), item, from); err != nil {
		writeError(w, err)
		return
	}

	if item.Status != from {
		metrics.RecordActionStatusChange(string(from), string(item.Status))
	}

	event := events.NewEvent(events.TypeActionStatusChanged, "actions", map[string]any{
		"action_id":   item.ID,
		"member_id":   item.MemberID,
		"from_status": from,
		"to_status":   item.Status,
		"assigned_to": item.AssignedTo,
	})
	if user := auth.GetUser(r.Context()); user != nil {
		event = event.WithActor(user.ID)
	}
	if err := h.publisher.Publish(r.Context(), event); err != nil {
		h.logger.Warn("failed to publish action event", zap.String("action_id", item.ID.String()), zap.Error(err))
	}

	writeJSON(w, http.StatusOK, item)
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
