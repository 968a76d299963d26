package settings

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/gym-retention/platform/internal/shared/errors"
)

// ErrNotConfigured is returned in strict mode when a required setting is absent
var ErrNotConfigured = fmt.Errorf("%w: setting not configured", errors.ErrConfiguration)

// Service reads typed pipeline configuration from the settings store
type Service struct {
	store  Store
	strict bool
	logger *zap.Logger
}

// NewService creates a settings service. With strict set, missing risk
// weights or thresholds are fatal instead of falling back to defaults.
func NewService(store Store, strict bool, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{store: store, strict: strict, logger: logger}
}

// Strict reports the active policy for missing risk settings
func (s *Service) Strict() bool {
	return s.strict
}

// Weights returns the stored risk weights
func (s *Service) Weights(ctx context.Context) (RiskWeights, bool, error) {
	var w RiskWeights
	defaulted, err := s.load(ctx, KeyRiskWeights, &w)
	if err != nil {
		return RiskWeights{}, false, err
	}
	if defaulted {
		return DefaultRiskWeights(), true, nil
	}
	return w, false, nil
}

// Thresholds returns the stored risk level thresholds
func (s *Service) Thresholds(ctx context.Context) (RiskThresholds, bool, error) {
	var t RiskThresholds
	defaulted, err := s.load(ctx, KeyRiskThresholds, &t)
	if err != nil {
		return RiskThresholds{}, false, err
	}
	if defaulted {
		return DefaultRiskThresholds(), true, nil
	}
	return t, false, nil
}

// RiskSnapshot reads weights and thresholds together for one scoring batch
func (s *Service) RiskSnapshot(ctx context.Context) (RiskSnapshot, error) {
	w, wDefault, err := s.Weights(ctx)
	if err != nil {
		return RiskSnapshot{}, err
	}
	t, tDefault, err := s.Thresholds(ctx)
	if err != nil {
		return RiskSnapshot{}, err
	}
	return RiskSnapshot{Weights: w, Thresholds: t, Defaulted: wDefault || tDefault}, nil
}

// ActionThresholds never fails on a missing or unreadable setting; it logs
// a warning and returns the defaults. A stored but invalid value is an error.
func (s *Service) ActionThresholds(ctx context.Context) (ActionThresholds, error) {
	setting, err := s.store.Get(ctx, KeyAutoActions)
	if err != nil {
		s.logger.Warn("action thresholds unavailable, using defaults",
			zap.String("key", KeyAutoActions),
			zap.Error(err),
		)
		return DefaultActionThresholds(), nil
	}

	var t ActionThresholds
	if err := decodeValue(setting.Value, &t); err != nil {
		return ActionThresholds{}, errors.Configuration(fmt.Sprintf("invalid %s: %v", KeyAutoActions, err))
	}
	return t, nil
}

// load decodes key into dst. It reports defaulted=true when the key is
// missing and the service is not strict.
func (s *Service) load(ctx context.Context, key string, dst validator) (bool, error) {
	setting, err := s.store.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, errors.ErrNotFound) {
			return false, errors.Wrap(err, "failed to read "+key)
		}
		if s.strict {
			return false, &errors.AppError{
				Err:        fmt.Errorf("%w: %s", ErrNotConfigured, key),
				Message:    key + " is not configured",
				Code:       "CONFIGURATION_ERROR",
				HTTPStatus: http.StatusInternalServerError,
				Details:    map[string]string{"key": key},
			}
		}
		s.logger.Warn("setting missing, using defaults", zap.String("key", key))
		return true, nil
	}

	if err := decodeValue(setting.Value, dst); err != nil {
		return false, errors.Configuration(fmt.Sprintf("invalid %s: %v", key, err))
	}
	return false, nil
}

// List returns every stored setting
func (s *Service) List(ctx context.Context) ([]Setting, error) {
	return s.store.List(ctx)
}

// Get returns a single stored setting
func (s *Service) Get(ctx context.Context, key string) (*Setting, error) {
	return s.store.Get(ctx, key)
}

// Put validates and stores a setting value
func (s *Service) Put(ctx context.Context, key string, value json.RawMessage, description string) (*Setting, error) {
	if key == "" {
		return nil, errors.BadRequest("setting key is required")
	}
	if err := ValidateValue(key, value); err != nil {
		return nil, errors.Validation("invalid setting value", map[string]string{key: err.Error()})
	}

	setting := &Setting{
		Key:         key,
		Value:       value,
		Category:    categoryFor(key),
		Description: description,
	}
	if err := s.store.Put(ctx, setting); err != nil {
		return nil, err
	}

	s.logger.Info("setting updated", zap.String("key", key))
	return setting, nil
}

func categoryFor(key string) string {
	switch key {
	case KeyRiskWeights, KeyRiskThresholds:
		return "risk"
	case KeyAutoActions:
		return "actions"
	}
	return ""
}
