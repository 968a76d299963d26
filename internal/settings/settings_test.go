package settings

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/gym-retention/platform/internal/shared/auth"
	"github.com/gym-retention/platform/internal/shared/errors"
)

type memoryStore struct {
	data   map[string]*Setting
	getErr error
}

func newMemoryStore(values map[string]string) *memoryStore {
	s := &memoryStore{data: map[string]*Setting{}}
	for k, v := range values {
		s.data[k] = &Setting{Key: k, Value: json.RawMessage(v)}
	}
	return s
}

func (m *memoryStore) Get(_ context.Context, key string) (*Setting, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	s, ok := m.data[key]
	if !ok {
		return nil, errors.NotFound("setting", key)
	}
	return s, nil
}

func (m *memoryStore) Put(_ context.Context, s *Setting) error {
	m.data[s.Key] = s
	return nil
}

func (m *memoryStore) List(context.Context) ([]Setting, error) {
	var out []Setting
	for _, s := range m.data {
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

const (
	storedWeights    = `{"days_without_checkin":40,"checkin_frequency_drop":30,"plan_downgrade":15,"pause_request":15,"payment_issues":0}`
	storedThresholds = `{"low":30,"medium":60,"high":100}`
)

func TestRiskSnapshotReadsStoredValues(t *testing.T) {
	store := newMemoryStore(map[string]string{
		KeyRiskWeights:    `{"days_without_checkin":50,"checkin_frequency_drop":20,"plan_downgrade":10,"pause_request":5}`,
		KeyRiskThresholds: `{"low":25,"medium":55,"high":100}`,
	})
	svc := NewService(store, true, nil)

	snap, err := svc.RiskSnapshot(context.Background())
	require.NoError(t, err)

	assert.False(t, snap.Defaulted)
	assert.Equal(t, 50.0, snap.Weights.DaysWithoutCheckin)
	assert.Equal(t, 5.0, snap.Weights.PauseRequest)
	assert.Equal(t, 25.0, snap.Thresholds.Low)
	assert.Equal(t, 55.0, snap.Thresholds.Medium)
	require.NotNil(t, snap.Thresholds.High)
	assert.Equal(t, 100.0, *snap.Thresholds.High)
}

func TestRiskSnapshotThresholdsWithoutHigh(t *testing.T) {
	store := newMemoryStore(map[string]string{
		KeyRiskWeights:    storedWeights,
		KeyRiskThresholds: `{"low":30,"medium":60}`,
	})

	snap, err := NewService(store, true, nil).RiskSnapshot(context.Background())
	require.NoError(t, err)

	assert.Equal(t, RiskThresholds{Low: 30, Medium: 60}, snap.Thresholds)
	assert.Nil(t, snap.Thresholds.High)
}

func TestRiskSnapshotStrictMissing(t *testing.T) {
	tests := []struct {
		name    string
		values  map[string]string
		missing string
	}{
		{"no weights", map[string]string{KeyRiskThresholds: storedThresholds}, KeyRiskWeights},
		{"no thresholds", map[string]string{KeyRiskWeights: storedWeights}, KeyRiskThresholds},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := NewService(newMemoryStore(tt.values), true, nil)

			_, err := svc.RiskSnapshot(context.Background())
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrNotConfigured)
			assert.ErrorIs(t, err, errors.ErrConfiguration)
			assert.Contains(t, err.Error(), tt.missing)
		})
	}
}

func TestRiskSnapshotLenientUsesDefaults(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	svc := NewService(newMemoryStore(nil), false, zap.New(core))

	snap, err := svc.RiskSnapshot(context.Background())
	require.NoError(t, err)

	assert.True(t, snap.Defaulted)
	assert.Equal(t, DefaultRiskWeights(), snap.Weights)
	assert.Equal(t, DefaultRiskThresholds(), snap.Thresholds)
	assert.Equal(t, 2, logs.FilterMessage("setting missing, using defaults").Len())
}

func TestRiskSnapshotInvalidValue(t *testing.T) {
	store := newMemoryStore(map[string]string{
		KeyRiskWeights:    storedWeights,
		KeyRiskThresholds: `{"low":70,"medium":60,"high":100}`,
	})

	for _, strict := range []bool{true, false} {
		_, err := NewService(store, strict, nil).RiskSnapshot(context.Background())
		require.Error(t, err)
		assert.ErrorIs(t, err, errors.ErrConfiguration)
	}
}

func TestRiskSnapshotStoreFailure(t *testing.T) {
	store := newMemoryStore(nil)
	store.getErr = assert.AnError

	_, err := NewService(store, false, nil).RiskSnapshot(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, assert.AnError)
}

func TestActionThresholds(t *testing.T) {
	t.Run("stored", func(t *testing.T) {
		svc := NewService(newMemoryStore(map[string]string{
			KeyAutoActions: `{"N1_threshold":30,"N2_threshold":60,"N3_threshold":90}`,
		}), true, nil)

		got, err := svc.ActionThresholds(context.Background())
		require.NoError(t, err)
		assert.Equal(t, ActionThresholds{N1: 30, N2: 60, N3: 90}, got)
	})

	t.Run("missing falls back even when strict", func(t *testing.T) {
		core, logs := observer.New(zap.WarnLevel)
		svc := NewService(newMemoryStore(nil), true, zap.New(core))

		got, err := svc.ActionThresholds(context.Background())
		require.NoError(t, err)
		assert.Equal(t, ActionThresholds{N1: 40, N2: 65, N3: 85}, got)
		assert.Equal(t, 1, logs.Len())
	})

	t.Run("store error falls back", func(t *testing.T) {
		store := newMemoryStore(nil)
		store.getErr = assert.AnError

		got, err := NewService(store, true, nil).ActionThresholds(context.Background())
		require.NoError(t, err)
		assert.Equal(t, DefaultActionThresholds(), got)
	})

	t.Run("empty or partial value is rejected", func(t *testing.T) {
		for _, value := range []string{`{}`, `{"N2_threshold":65,"N3_threshold":85}`} {
			svc := NewService(newMemoryStore(map[string]string{KeyAutoActions: value}), false, nil)

			got, err := svc.ActionThresholds(context.Background())
			assert.ErrorIs(t, err, errors.ErrConfiguration, value)
			assert.Equal(t, ActionThresholds{}, got, value)
		}
	})

	t.Run("not increasing", func(t *testing.T) {
		svc := NewService(newMemoryStore(map[string]string{
			KeyAutoActions: `{"N1_threshold":70,"N2_threshold":60,"N3_threshold":90}`,
		}), true, nil)

		_, err := svc.ActionThresholds(context.Background())
		assert.ErrorIs(t, err, errors.ErrConfiguration)
	})
}

func TestValidateValue(t *testing.T) {
	tests := []struct {
		key     string
		value   string
		wantErr bool
	}{
		{KeyRiskWeights, storedWeights, false},
		{KeyRiskWeights, `{"days_without_checkin":-1}`, true},
		{KeyRiskWeights, `"forty"`, true},
		{KeyRiskThresholds, storedThresholds, false},
		{KeyRiskThresholds, `{"low":30,"medium":20,"high":100}`, true},
		{KeyRiskThresholds, `{"low":30,"medium":60}`, false},
		{KeyRiskThresholds, `{"low":30,"medium":60,"high":50}`, true},
		{KeyAutoActions, `{"N1_threshold":40,"N2_threshold":65,"N3_threshold":85}`, false},
		{KeyAutoActions, `{"N1_threshold":40,"N2_threshold":65,"N3_threshold":120}`, true},
		{KeyAutoActions, `{}`, true},
		{"gym_name", `"Iron Temple"`, false},
		{"gym_name", `{broken`, true},
	}

	for _, tt := range tests {
		t.Run(tt.key+" "+tt.value, func(t *testing.T) {
			err := ValidateValue(tt.key, json.RawMessage(tt.value))
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestPutSetsCategory(t *testing.T) {
	store := newMemoryStore(nil)
	svc := NewService(store, true, nil)

	s, err := svc.Put(context.Background(), KeyRiskThresholds, json.RawMessage(storedThresholds), "")
	require.NoError(t, err)
	assert.Equal(t, "risk", s.Category)

	_, err = svc.Put(context.Background(), KeyRiskThresholds, json.RawMessage(`{"low":90,"medium":10,"high":5}`), "")
	assert.ErrorIs(t, err, errors.ErrValidation)
	assert.JSONEq(t, storedThresholds, string(store.data[KeyRiskThresholds].Value))
}

func TestHandlerRoutes(t *testing.T) {
	store := newMemoryStore(map[string]string{KeyRiskThresholds: storedThresholds})
	h := NewHandler(NewService(store, true, nil), []string{"admin"})
	router := h.Routes()

	do := func(method, path, body string, user *auth.User) *httptest.ResponseRecorder {
		req := httptest.NewRequest(method, path, strings.NewReader(body))
		if user != nil {
			req = req.WithContext(auth.WithUser(req.Context(), user))
		}
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		return rec
	}

	t.Run("list", func(t *testing.T) {
		rec := do(http.MethodGet, "/", "", nil)
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), `"total":1`)
	})

	t.Run("get missing", func(t *testing.T) {
		rec := do(http.MethodGet, "/risk_weights", "", nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("put requires admin", func(t *testing.T) {
		body := `{"value":` + storedWeights + `}`
		assert.Equal(t, http.StatusUnauthorized, do(http.MethodPut, "/risk_weights", body, nil).Code)
		assert.Equal(t, http.StatusForbidden, do(http.MethodPut, "/risk_weights", body, &auth.User{Roles: []string{"staff"}}).Code)

		rec := do(http.MethodPut, "/risk_weights", body, &auth.User{Roles: []string{"admin"}})
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, store.data, KeyRiskWeights)
	})

	t.Run("put invalid", func(t *testing.T) {
		rec := do(http.MethodPut, "/risk_thresholds", `{"value":{"low":"x"}}`, &auth.User{Roles: []string{"admin"}})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Contains(t, rec.Body.String(), "VALIDATION_ERROR")
	})
}
