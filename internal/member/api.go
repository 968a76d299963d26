package member

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/gym-retention/platform/internal/action"
	"github.com/gym-retention/platform/internal/shared/errors"
	"github.com/gym-retention/platform/internal/shared/types"
)

// profileWindow bounds the plan-change history shown on a profile
const profileWindow = 365 * 24 * time.Hour

// Reader is the member data the HTTP handlers read
type Reader interface {
	Get(ctx context.Context, id types.ID) (*Member, error)
	List(ctx context.Context, filter ListFilter) ([]Member, int, error)
	Metrics(ctx context.Context) (RiskMetrics, error)
	RecentCheckins(ctx context.Context, memberID types.ID, limit int) ([]Checkin, error)
	PlanChangesSince(ctx context.Context, memberID types.ID, since time.Time) ([]PlanChange, error)
	PauseRequests(ctx context.Context, memberID types.ID, status string) ([]PauseRequest, error)
}

// ActionLister returns a member's follow-up actions
type ActionLister interface {
	ListByMember(ctx context.Context, memberID types.ID, limit int) ([]action.ActionItem, error)
}

// Profile is a member with the history shown on the member page
type Profile struct {
	*Member
	RecentCheckins []Checkin           `json:"recent_checkins"`
	PlanChanges    []PlanChange        `json:"plan_changes"`
	PauseRequests  []PauseRequest      `json:"pause_requests"`
	Actions        []action.ActionItem `json:"actions"`
}

// Handler provides HTTP handlers for the member module
type Handler struct {
	repo    Reader
	actions ActionLister
}

// NewHandler creates a new member handler
func NewHandler(repo Reader, actions ActionLister) *Handler {
	return &Handler{repo: repo, actions: actions}
}

// Routes registers the member routes
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Get("/", h.ListMembers)
	r.Get("/metrics", h.GetMetrics)
	r.Get("/{memberID}", h.GetMember)

	return r
}

// ListMembers lists members with optional status, risk_level and search filters
func (h *Handler) ListMembers(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := ListFilter{Search: q.Get("search")}

	if s := q.Get("status"); s != "" {
		status := Status(s)
		if !status.Valid() {
			writeError(w, errors.BadRequest("invalid status"))
			return
		}
		filter.Status = &status
	}
	if l := q.Get("risk_level"); l != "" {
		level := RiskLevel(l)
		if !level.Valid() {
			writeError(w, errors.BadRequest("invalid risk_level"))
			return
		}
		filter.RiskLevel = &level
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

	members, total, err := h.repo.List(r.Context(), filter)
	if err != nil {
		writeError(w, err)
		return
	}
	if members == nil {
		members = []Member{}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"data":  members,
		"total": total,
	})
}

// GetMember returns the member profile
func (h *Handler) GetMember(w http.ResponseWriter, r *http.Request) {
	id, err := types.ParseID(chi.URLParam(r, "memberID"))
	if err != nil {
		writeError(w, errors.BadRequest("invalid member ID"))
		return
	}

	ctx := r.Context()
	m, err := h.repo.Get(ctx, id)
	if err != nil {
		writeError(w, err)
		return
	}

	profile := Profile{Member: m}
	if profile.RecentCheckins, err = h.repo.RecentCheckins(ctx, id, 20); err != nil {
		writeError(w, err)
		return
	}
	if profile.PlanChanges, err = h.repo.PlanChangesSince(ctx, id, time.Now().Add(-profileWindow)); err != nil {
		writeError(w, err)
		return
	}
	if profile.PauseRequests, err = h.repo.PauseRequests(ctx, id, ""); err != nil {
		writeError(w, err)
		return
	}
	if h.actions != nil {
		if profile.Actions, err = h.actions.ListByMember(ctx, id, 20); err != nil {
			writeError(w, err)
			return
		}
	}

	writeJSON(w, http.StatusOK, profile)
}

// GetMetrics returns the dashboard risk summary
func (h *Handler) GetMetrics(w http.ResponseWriter, r *http.Request) {
	metrics, err := h.repo.Metrics(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, metrics)
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
