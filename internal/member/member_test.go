package member

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gym-retention/platform/internal/action"
	"github.com/gym-retention/platform/internal/shared/errors"
	"github.com/gym-retention/platform/internal/shared/types"
)

func day(s string) time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return t
}

func TestComputeActivity(t *testing.T) {
	now := time.Date(2024, 5, 20, 15, 0, 0, 0, time.UTC)

	tests := []struct {
		name        string
		dates       []time.Time
		wantDays    *int
		wantMonth   int
		wantAverage float64
	}{
		{
			name:  "never checked in",
			dates: nil,
		},
		{
			name:        "mixed history",
			dates:       []time.Time{day("2024-05-18"), day("2024-05-02"), day("2024-04-10"), day("2024-02-01"), day("2024-01-31")},
			wantDays:    intPtr(2),
			wantMonth:   2,
			wantAverage: 1.3,
		},
		{
			name:        "only old check-ins",
			dates:       []time.Time{day("2023-12-01")},
			wantDays:    intPtr(171),
			wantMonth:   0,
			wantAverage: 0,
		},
		{
			name:        "future date clamps to zero",
			dates:       []time.Time{day("2024-05-21")},
			wantDays:    intPtr(0),
			wantMonth:   1,
			wantAverage: 0.3,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := ComputeActivity(tt.dates, now)

			if tt.wantDays == nil {
				assert.Nil(t, a.DaysSinceLastCheckin)
				assert.Nil(t, a.LastCheckin)
			} else {
				require.NotNil(t, a.DaysSinceLastCheckin)
				assert.Equal(t, *tt.wantDays, *a.DaysSinceLastCheckin)
				require.NotNil(t, a.LastCheckin)
			}
			assert.Equal(t, tt.wantMonth, a.CheckinsThisMonth)
			assert.InDelta(t, tt.wantAverage, a.AverageCheckins, 0.0001)
		})
	}
}

func TestComputeActivityPicksLatestRegardlessOfOrder(t *testing.T) {
	now := time.Date(2024, 5, 20, 0, 0, 0, 0, time.UTC)
	a := ComputeActivity([]time.Time{day("2024-05-01"), day("2024-05-15"), day("2024-05-10")}, now)

	require.NotNil(t, a.LastCheckin)
	assert.Equal(t, day("2024-05-15"), *a.LastCheckin)
	assert.Equal(t, 5, *a.DaysSinceLastCheckin)
}

func TestNewRiskMetrics(t *testing.T) {
	m := NewRiskMetrics(5, 3, 2, 83)
	assert.Equal(t, 10, m.TotalMembers)
	assert.Equal(t, 80.0, m.RetentionRate)
	assert.Equal(t, 8.3, m.AverageCheckinsPerMonth)

	m = NewRiskMetrics(1, 1, 1, 10)
	assert.Equal(t, 66.7, m.RetentionRate)
	assert.Equal(t, 3.3, m.AverageCheckinsPerMonth)

	empty := NewRiskMetrics(0, 0, 0, 0)
	assert.Zero(t, empty.RetentionRate)
	assert.Zero(t, empty.AverageCheckinsPerMonth)
}

func TestStatusAndLevelValid(t *testing.T) {
	assert.True(t, StatusPaused.Valid())
	assert.False(t, Status("frozen").Valid())
	assert.True(t, RiskHigh.Valid())
	assert.False(t, RiskLevel("critical").Valid())
}

func intPtr(v int) *int { return &v }

// --- Handler Tests ---

type fakeReader struct {
	members    map[types.ID]*Member
	lastFilter ListFilter
}

func (f *fakeReader) Get(_ context.Context, id types.ID) (*Member, error) {
	m, ok := f.members[id]
	if !ok {
		return nil, errors.NotFound("member", id.String())
	}
	return m, nil
}

func (f *fakeReader) List(_ context.Context, filter ListFilter) ([]Member, int, error) {
	f.lastFilter = filter
	var out []Member
	for _, m := range f.members {
		out = append(out, *m)
	}
	return out, len(out), nil
}

func (f *fakeReader) Metrics(context.Context) (RiskMetrics, error) {
	return NewRiskMetrics(2, 1, 1, 20), nil
}

func (f *fakeReader) RecentCheckins(_ context.Context, memberID types.ID, _ int) ([]Checkin, error) {
	return []Checkin{{MemberID: memberID, PactoAulaID: "A1", Date: types.DateOf(day("2024-05-01")), Time: "07:30"}}, nil
}

func (f *fakeReader) PlanChangesSince(context.Context, types.ID, time.Time) ([]PlanChange, error) {
	return nil, nil
}

func (f *fakeReader) PauseRequests(context.Context, types.ID, string) ([]PauseRequest, error) {
	return nil, nil
}

type fakeActions struct{}

func (fakeActions) ListByMember(_ context.Context, memberID types.ID, _ int) ([]action.ActionItem, error) {
	return []action.ActionItem{{ID: types.NewID(), MemberID: memberID, Type: action.TypeN2, Status: action.StatusPending}}, nil
}

func TestHandler(t *testing.T) {
	id := types.NewID()
	days := 26
	reader := &fakeReader{members: map[types.ID]*Member{
		id: {ID: id, Name: "Ana", Status: StatusActive, DaysSinceLastCheckin: &days, RiskScore: 77, RiskLevel: RiskHigh},
	}}
	router := NewHandler(reader, fakeActions{}).Routes()

	get := func(path string) *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		return rec
	}

	t.Run("list with filters", func(t *testing.T) {
		rec := get("/?status=active&risk_level=high&search=an&limit=10")
		require.Equal(t, http.StatusOK, rec.Code)
		require.NotNil(t, reader.lastFilter.Status)
		assert.Equal(t, StatusActive, *reader.lastFilter.Status)
		assert.Equal(t, RiskHigh, *reader.lastFilter.RiskLevel)
		assert.Equal(t, "an", reader.lastFilter.Search)
		assert.Equal(t, 10, reader.lastFilter.Limit)
	})

	t.Run("list rejects unknown level", func(t *testing.T) {
		assert.Equal(t, http.StatusBadRequest, get("/?risk_level=extreme").Code)
	})

	t.Run("profile", func(t *testing.T) {
		rec := get("/" + id.String())
		require.Equal(t, http.StatusOK, rec.Code)

		var body map[string]any
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, "Ana", body["name"])
		assert.EqualValues(t, 77, body["risk_score"])
		assert.Len(t, body["recent_checkins"], 1)
		assert.Len(t, body["actions"], 1)
	})

	t.Run("profile not found", func(t *testing.T) {
		assert.Equal(t, http.StatusNotFound, get("/"+types.NewID().String()).Code)
	})

	t.Run("profile bad id", func(t *testing.T) {
		assert.Equal(t, http.StatusBadRequest, get("/not-a-uuid").Code)
	})

	t.Run("metrics", func(t *testing.T) {
		rec := get("/metrics")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), `"retention_rate":75`)
	})
}
