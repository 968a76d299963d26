package risk

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gym-retention/platform/internal/member"
	"github.com/gym-retention/platform/internal/settings"
	"github.com/gym-retention/platform/internal/shared/errors"
	"github.com/gym-retention/platform/internal/shared/events"
	"github.com/gym-retention/platform/internal/shared/types"
)

var (
	weights    = settings.RiskWeights{DaysWithoutCheckin: 40, CheckinFrequencyDrop: 30, PlanDowngrade: 15, PauseRequest: 15}
	thresholds = settings.DefaultRiskThresholds()
	now        = time.Date(2024, 5, 30, 12, 0, 0, 0, time.UTC)
)

func intPtr(v int) *int { return &v }

func TestScoreEndToEndScenario(t *testing.T) {
	in := Input{
		DaysSinceLastCheckin: intPtr(26),
		CheckinsThisMonth:    0,
		AverageCheckins:      16,
	}

	res := Score(in, weights, now)

	assert.Equal(t, 77, res.Score)
	assert.Equal(t, member.RiskHigh, LevelFor(res.Score, thresholds))
	assert.Equal(t, []string{
		">20 days without check-in (26 days)",
		"drop vs history (-100%)",
		"zero check-ins this month",
	}, res.Reasons)
}

func TestScoreInactivityTiers(t *testing.T) {
	tests := []struct {
		days       int
		wantScore  int
		wantReason string
	}{
		{0, 0, ""},
		{7, 0, ""},
		{8, 12, ">7 days without check-in (8 days)"},
		{14, 12, ">7 days without check-in (14 days)"},
		{15, 24, ">14 days without check-in (15 days)"},
		{25, 32, ">20 days without check-in (25 days)"},
		{30, 32, ">20 days without check-in (30 days)"},
		{31, 40, ">30 days without check-in (31 days)"},
		{365, 40, ">30 days without check-in (365 days)"},
	}

	for _, tt := range tests {
		// steady attendance isolates the inactivity factor
		in := Input{DaysSinceLastCheckin: intPtr(tt.days), CheckinsThisMonth: 4, AverageCheckins: 4}
		res := Score(in, weights, now)

		assert.Equal(t, tt.wantScore, res.Score, "days %d", tt.days)
		count := 0
		for _, r := range res.Reasons {
			if len(r) > 0 && r[0] == '>' {
				count++
				assert.Equal(t, tt.wantReason, r)
			}
		}
		if tt.wantReason == "" {
			assert.Zero(t, count, "days %d", tt.days)
		} else {
			assert.Equal(t, 1, count, "exactly one inactivity tier for days %d", tt.days)
		}
	}
}

func TestScoreNeverCheckedIn(t *testing.T) {
	res := Score(Input{CheckinsThisMonth: 0, AverageCheckins: 0}, weights, now)

	// top inactivity tier plus zero check-ins, no drop without history
	assert.Equal(t, 55, res.Score)
	assert.Equal(t, []string{"no check-in on record", "zero check-ins this month"}, res.Reasons)
}

func TestScoreFrequencyDrop(t *testing.T) {
	tests := []struct {
		name       string
		current    int
		average    float64
		wantScore  int
		wantReason []string
	}{
		{"no history", 3, 0, 0, []string{"above monthly average"}},
		{"small drop", 8, 10, 0, nil},
		{"over 30", 6, 10, 15, []string{"drop vs history (-40%)"}},
		{"over 50", 4, 10, 24, []string{"drop vs history (-60%)"}},
		{"over 70", 2, 10, 30, []string{"drop vs history (-80%)"}},
		{"75 percent with zero stacks", 0, 4, 45, []string{"drop vs history (-100%)", "zero check-ins this month"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := Input{DaysSinceLastCheckin: intPtr(5), CheckinsThisMonth: tt.current, AverageCheckins: tt.average}
			res := Score(in, weights, now)

			assert.Equal(t, tt.wantScore, res.Score)
			if tt.wantReason == nil {
				assert.Empty(t, res.Reasons)
			} else {
				assert.Equal(t, tt.wantReason, res.Reasons)
			}
		})
	}
}

func TestScoreZeroCheckinsStacksWithDropTier(t *testing.T) {
	// 0.8 average and no visits: 100% drop, full tier plus the flat addition
	in := Input{DaysSinceLastCheckin: intPtr(2), CheckinsThisMonth: 0, AverageCheckins: 0.8}
	res := Score(in, weights, now)

	assert.Equal(t, 45, res.Score)
	assert.Contains(t, res.Reasons, "drop vs history (-100%)")
	assert.Contains(t, res.Reasons, "zero check-ins this month")
}

func TestScorePlanDowngradeAndPause(t *testing.T) {
	steady := Input{DaysSinceLastCheckin: intPtr(1), CheckinsThisMonth: 4, AverageCheckins: 4}

	t.Run("recent downgrade counts once", func(t *testing.T) {
		in := steady
		in.PlanChanges = []member.PlanChange{
			{ChangeType: member.ChangeDowngrade, ChangeDate: now.AddDate(0, 0, -10)},
			{ChangeType: member.ChangeDowngrade, ChangeDate: now.AddDate(0, 0, -20)},
		}
		res := Score(in, weights, now)
		assert.Equal(t, 15, res.Score)
		assert.Equal(t, []string{"recent plan downgrade", "regular frequency"}, res.Reasons)
	})

	t.Run("old downgrade and upgrades ignored", func(t *testing.T) {
		in := steady
		in.PlanChanges = []member.PlanChange{
			{ChangeType: member.ChangeDowngrade, ChangeDate: now.AddDate(0, 0, -91)},
			{ChangeType: member.ChangeUpgrade, ChangeDate: now.AddDate(0, 0, -5)},
		}
		assert.Equal(t, 0, Score(in, weights, now).Score)
	})

	t.Run("active pause", func(t *testing.T) {
		in := steady
		in.Pauses = []member.PauseRequest{{Status: "expired"}, {Status: member.PauseActive}}
		res := Score(in, weights, now)
		assert.Equal(t, 15, res.Score)
		assert.Contains(t, res.Reasons, "active pause request")
	})
}

func TestScorePositiveSignals(t *testing.T) {
	res := Score(Input{DaysSinceLastCheckin: intPtr(2), CheckinsThisMonth: 10, AverageCheckins: 6}, weights, now)
	assert.Equal(t, 0, res.Score)
	assert.Equal(t, []string{"regular frequency", "above monthly average"}, res.Reasons)

	res = Score(Input{DaysSinceLastCheckin: intPtr(5), CheckinsThisMonth: 6, AverageCheckins: 6}, weights, now)
	assert.Empty(t, res.Reasons)
}

func TestScoreClamped(t *testing.T) {
	heavy := settings.RiskWeights{DaysWithoutCheckin: 80, CheckinFrequencyDrop: 60, PlanDowngrade: 40, PauseRequest: 40}
	in := Input{
		DaysSinceLastCheckin: intPtr(60),
		CheckinsThisMonth:    0,
		AverageCheckins:      12,
		PlanChanges:          []member.PlanChange{{ChangeType: member.ChangeDowngrade, ChangeDate: now}},
		Pauses:               []member.PauseRequest{{Status: member.PauseActive}},
	}

	res := Score(in, heavy, now)
	assert.Equal(t, 100, res.Score)
	assert.Len(t, res.Reasons, 5)

	for _, days := range []int{0, 5, 10, 18, 25, 45} {
		for _, current := range []int{0, 1, 5, 20} {
			s := Score(Input{DaysSinceLastCheckin: intPtr(days), CheckinsThisMonth: current, AverageCheckins: 8}, heavy, now).Score
			assert.GreaterOrEqual(t, s, 0)
			assert.LessOrEqual(t, s, 100)
		}
	}
}

func TestScoreRounds(t *testing.T) {
	w := settings.RiskWeights{CheckinFrequencyDrop: 25}
	// 0.5 * 25 = 12.5 rounds half up
	assert.Equal(t, 13, Score(Input{DaysSinceLastCheckin: intPtr(2), CheckinsThisMonth: 6, AverageCheckins: 10}, w, now).Score)
}

func TestLevelUsesStoredScore(t *testing.T) {
	// 60.8 * 0.5 = 30.4 rounds to 30, which is still low
	w := settings.RiskWeights{CheckinFrequencyDrop: 60.8}
	res := Score(Input{DaysSinceLastCheckin: intPtr(2)}, w, now)

	assert.Equal(t, 30, res.Score)
	assert.Equal(t, member.RiskLow, LevelFor(res.Score, thresholds))
}

func TestLevelFor(t *testing.T) {
	tests := []struct {
		score int
		want  member.RiskLevel
	}{
		{0, member.RiskLow},
		{25, member.RiskLow},
		{30, member.RiskLow},
		{31, member.RiskMedium},
		{45, member.RiskMedium},
		{60, member.RiskMedium},
		{61, member.RiskHigh},
		{80, member.RiskHigh},
		{100, member.RiskHigh},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, LevelFor(tt.score, thresholds), "score %d", tt.score)
	}
}

// --- Calculator Tests ---

type memoryMembers struct {
	members []member.Member
	updates map[types.ID]member.RiskUpdate
	failFor types.ID
	listErr error
	since   time.Time
	changes map[types.ID][]member.PlanChange
	pauses  map[types.ID][]member.PauseRequest
}

func (m *memoryMembers) ListActive(context.Context) ([]member.Member, error) {
	if m.listErr != nil {
		return nil, m.listErr
	}
	var out []member.Member
	for _, mm := range m.members {
		if mm.Status == member.StatusActive {
			out = append(out, mm)
		}
	}
	return out, nil
}

func (m *memoryMembers) PlanChangesSince(_ context.Context, id types.ID, since time.Time) ([]member.PlanChange, error) {
	m.since = since
	if id == m.failFor {
		return nil, assert.AnError
	}
	return m.changes[id], nil
}

func (m *memoryMembers) ActivePauses(_ context.Context, id types.ID) ([]member.PauseRequest, error) {
	return m.pauses[id], nil
}

func (m *memoryMembers) UpdateRisk(_ context.Context, id types.ID, u member.RiskUpdate) error {
	if m.updates == nil {
		m.updates = map[types.ID]member.RiskUpdate{}
	}
	m.updates[id] = u
	return nil
}

type fixedSnapshot struct {
	snap settings.RiskSnapshot
	err  error
}

func (f fixedSnapshot) RiskSnapshot(context.Context) (settings.RiskSnapshot, error) {
	return f.snap, f.err
}

type countingPublisher struct{ n int }

func (p *countingPublisher) Publish(context.Context, events.Event) error {
	p.n++
	return assert.AnError
}

func newMember(days *int, current int, avg float64, status member.Status) member.Member {
	return member.Member{
		ID:                   types.NewID(),
		Status:               status,
		DaysSinceLastCheckin: days,
		CheckinsThisMonth:    current,
		AverageCheckins:      avg,
		RiskLevel:            member.RiskLow,
		RiskReasons:          []string{"stale reason from last run"},
	}
}

func TestCalculateAll(t *testing.T) {
	ana := newMember(intPtr(26), 0, 16, member.StatusActive)
	bruno := newMember(intPtr(1), 8, 6, member.StatusActive)
	paused := newMember(intPtr(40), 0, 5, member.StatusPaused)
	carla := newMember(intPtr(3), 4, 4, member.StatusActive)

	store := &memoryMembers{
		members: []member.Member{ana, bruno, paused, carla},
		changes: map[types.ID][]member.PlanChange{
			carla.ID: {{ChangeType: member.ChangeDowngrade, ChangeDate: now.AddDate(0, 0, -3)}},
		},
		pauses: map[types.ID][]member.PauseRequest{
			carla.ID: {{Status: member.PauseActive}},
		},
	}
	pub := &countingPublisher{}
	calc := NewCalculator(store, fixedSnapshot{snap: settings.RiskSnapshot{Weights: weights, Thresholds: thresholds}}, pub, nil)
	calc.now = func() time.Time { return now }

	result, err := calc.CalculateAll(context.Background())
	require.NoError(t, err)

	assert.True(t, result.Success)
	assert.Equal(t, 3, result.Processed)
	assert.Equal(t, 3, result.Updated)
	assert.Equal(t, "Risk scores calculated for 3 members", result.Message)
	assert.Equal(t, now.Add(-DowngradeWindow), store.since)
	assert.Equal(t, 3, pub.n, "publish failures do not fail the batch")

	assert.Equal(t, member.RiskUpdate{
		Score:    77,
		Level:    member.RiskHigh,
		Reasons:  []string{">20 days without check-in (26 days)", "drop vs history (-100%)", "zero check-ins this month"},
		ScoredAt: now,
	}, store.updates[ana.ID])

	assert.Equal(t, 0, store.updates[bruno.ID].Score)
	assert.Equal(t, member.RiskLow, store.updates[bruno.ID].Level)
	assert.Equal(t, []string{"regular frequency", "above monthly average"}, store.updates[bruno.ID].Reasons)

	assert.Equal(t, 30, store.updates[carla.ID].Score)
	assert.Equal(t, member.RiskLow, store.updates[carla.ID].Level)

	assert.NotContains(t, store.updates, paused.ID)
}

func TestCalculateAllReasonsReplaced(t *testing.T) {
	m := newMember(intPtr(2), 5, 5, member.StatusActive)
	store := &memoryMembers{members: []member.Member{m}}
	calc := NewCalculator(store, fixedSnapshot{snap: settings.RiskSnapshot{Weights: weights, Thresholds: thresholds}}, nil, nil)

	_, err := calc.CalculateAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"regular frequency"}, store.updates[m.ID].Reasons)
}

func TestCalculateAllCollectsFailures(t *testing.T) {
	ok := newMember(intPtr(10), 2, 4, member.StatusActive)
	bad := newMember(intPtr(10), 2, 4, member.StatusActive)
	store := &memoryMembers{members: []member.Member{bad, ok}, failFor: bad.ID}
	calc := NewCalculator(store, fixedSnapshot{snap: settings.RiskSnapshot{Weights: weights, Thresholds: thresholds}}, nil, nil)

	result, err := calc.CalculateAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, result.Processed)
	assert.Equal(t, 1, result.Updated)
	require.Len(t, result.Failures, 1)
	assert.Equal(t, bad.ID.String(), result.Failures[0].ID)
	assert.NotContains(t, store.updates, bad.ID)
}

func TestCalculateAllAborts(t *testing.T) {
	t.Run("missing configuration", func(t *testing.T) {
		store := &memoryMembers{members: []member.Member{newMember(intPtr(1), 1, 1, member.StatusActive)}}
		calc := NewCalculator(store, fixedSnapshot{err: settings.ErrNotConfigured}, nil, nil)

		result, err := calc.CalculateAll(context.Background())
		assert.Nil(t, result)
		assert.ErrorIs(t, err, errors.ErrConfiguration)
		assert.Empty(t, store.updates)
	})

	t.Run("member listing", func(t *testing.T) {
		calc := NewCalculator(&memoryMembers{listErr: assert.AnError}, fixedSnapshot{snap: settings.RiskSnapshot{Weights: weights, Thresholds: thresholds}}, nil, nil)
		_, err := calc.CalculateAll(context.Background())
		assert.ErrorIs(t, err, assert.AnError)
	})
}

func TestCalculateHandler(t *testing.T) {
	store := &memoryMembers{members: []member.Member{newMember(intPtr(26), 0, 16, member.StatusActive)}}

	t.Run("success", func(t *testing.T) {
		calc := NewCalculator(store, fixedSnapshot{snap: settings.RiskSnapshot{Weights: weights, Thresholds: thresholds}}, nil, nil)
		rec := httptest.NewRecorder()
		NewHandler(calc, nil).Routes().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/calculate", nil))

		require.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"success":true,"processed":1,"updated":1,"message":"Risk scores calculated for 1 members"}`, rec.Body.String())
	})

	t.Run("configuration error", func(t *testing.T) {
		calc := NewCalculator(store, fixedSnapshot{err: errors.Configuration("risk_weights is not configured")}, nil, nil)
		rec := httptest.NewRecorder()
		NewHandler(calc, nil).Routes().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/calculate", nil))

		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		assert.JSONEq(t, `{"success":false,"error":"risk_weights is not configured"}`, rec.Body.String())
	})
}
