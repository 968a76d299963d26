package settings

import (
	"encoding/json"
	"fmt"
	"time"
)

// Setting keys read by the retention pipeline
const (
	KeyRiskWeights    = "risk_weights"
	KeyRiskThresholds = "risk_thresholds"
	KeyAutoActions    = "auto_actions"
)

// Setting is one row of the key/value settings table
type Setting struct {
	Key         string          `json:"key"`
	Value       json.RawMessage `json:"value"`
	Category    string          `json:"category"`
	Description string          `json:"description"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// RiskWeights maps each risk factor to the points it can contribute
type RiskWeights struct {
	DaysWithoutCheckin   float64 `json:"days_without_checkin"`
	CheckinFrequencyDrop float64 `json:"checkin_frequency_drop"`
	PlanDowngrade        float64 `json:"plan_downgrade"`
	PauseRequest         float64 `json:"pause_request"`
	// PaymentIssues is stored for the dashboard but no factor reads it yet
	PaymentIssues float64 `json:"payment_issues"`
}

// RiskThresholds partitions the 0-100 score into low/medium/high.
// A score up to Low is low, up to Medium is medium, anything else is high.
// High is optional and only checked for ordering when present.
type RiskThresholds struct {
	Low    float64  `json:"low"`
	Medium float64  `json:"medium"`
	High   *float64 `json:"high,omitempty"`
}

// ActionThresholds are the minimum scores for each action tier
type ActionThresholds struct {
	N1 float64 `json:"N1_threshold"`
	N2 float64 `json:"N2_threshold"`
	N3 float64 `json:"N3_threshold"`
}

// DefaultRiskWeights is applied only when strict mode is off
func DefaultRiskWeights() RiskWeights {
	return RiskWeights{
		DaysWithoutCheckin:   40,
		CheckinFrequencyDrop: 30,
		PlanDowngrade:        15,
		PauseRequest:         15,
	}
}

// DefaultRiskThresholds is applied only when strict mode is off
func DefaultRiskThresholds() RiskThresholds {
	high := 100.0
	return RiskThresholds{Low: 30, Medium: 60, High: &high}
}

// DefaultActionThresholds is used whenever auto_actions is unset
func DefaultActionThresholds() ActionThresholds {
	return ActionThresholds{N1: 40, N2: 65, N3: 85}
}

func (w RiskWeights) Validate() error {
	for name, v := range map[string]float64{
		"days_without_checkin":   w.DaysWithoutCheckin,
		"checkin_frequency_drop": w.CheckinFrequencyDrop,
		"plan_downgrade":         w.PlanDowngrade,
		"pause_request":          w.PauseRequest,
		"payment_issues":         w.PaymentIssues,
	} {
		if v < 0 {
			return fmt.Errorf("weight %s must not be negative", name)
		}
	}
	return nil
}

func (t RiskThresholds) Validate() error {
	if t.Low < 0 || t.Low > t.Medium {
		return fmt.Errorf("risk thresholds must satisfy 0 <= low <= medium, got %v/%v", t.Low, t.Medium)
	}
	if t.High != nil && t.Medium > *t.High {
		return fmt.Errorf("risk threshold medium %v must not exceed high %v", t.Medium, *t.High)
	}
	return nil
}

func (t ActionThresholds) Validate() error {
	// a missing N1_threshold decodes as 0 and would put every member in N3
	if t.N1 <= 0 || t.N1 > t.N2 || t.N2 > t.N3 || t.N3 > 100 {
		return fmt.Errorf("action thresholds must satisfy 0 < N1 <= N2 <= N3 <= 100, got %v/%v/%v", t.N1, t.N2, t.N3)
	}
	return nil
}

// RiskSnapshot is the configuration a scoring batch runs with. It is read
// once at the start of the batch and never refreshed mid-run.
type RiskSnapshot struct {
	Weights    RiskWeights
	Thresholds RiskThresholds
	// Defaulted is true when either half came from built-in defaults
	Defaulted bool
}

// validator is implemented by every typed setting value
type validator interface {
	Validate() error
}

// decodeValue unmarshals and validates a raw setting value
func decodeValue(raw json.RawMessage, dst validator) error {
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("malformed value: %w", err)
	}
	return dst.Validate()
}

// ValidateValue checks the value for keys the pipeline understands. Other
// keys are accepted as long as they hold valid JSON.
func ValidateValue(key string, raw json.RawMessage) error {
	switch key {
	case KeyRiskWeights:
		return decodeValue(raw, &RiskWeights{})
	case KeyRiskThresholds:
		return decodeValue(raw, &RiskThresholds{})
	case KeyAutoActions:
		return decodeValue(raw, &ActionThresholds{})
	}
	if !json.Valid(raw) {
		return fmt.Errorf("value is not valid JSON")
	}
	return nil
}
