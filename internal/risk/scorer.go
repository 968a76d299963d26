package risk

import (
	"fmt"
	"math"
	"time"

	"github.com/gym-retention/platform/internal/member"
	"github.com/gym-retention/platform/internal/settings"
)

// DowngradeWindow is how far back a plan downgrade still counts
const DowngradeWindow = 90 * 24 * time.Hour

// Input is everything the scorer looks at for one member
type Input struct {
	// DaysSinceLastCheckin is nil when the member never checked in
	DaysSinceLastCheckin *int
	CheckinsThisMonth    int
	AverageCheckins      float64
	PlanChanges          []member.PlanChange
	Pauses               []member.PauseRequest
}

// InputFor builds the scorer input from a stored member and its history
func InputFor(m *member.Member, changes []member.PlanChange, pauses []member.PauseRequest) Input {
	return Input{
		DaysSinceLastCheckin: m.DaysSinceLastCheckin,
		CheckinsThisMonth:    m.CheckinsThisMonth,
		AverageCheckins:      m.AverageCheckins,
		PlanChanges:          changes,
		Pauses:               pauses,
	}
}

// Result is a computed score with its human-readable explanation
type Result struct {
	Score   int
	Reasons []string
}

type inactivityTier struct {
	over   int
	factor float64
}

// inactivityTiers are checked in order; only the first match applies
var inactivityTiers = []inactivityTier{
	{30, 1.0},
	{20, 0.8},
	{14, 0.6},
	{7, 0.3},
}

type dropTier struct {
	over   float64
	factor float64
}

var dropTiers = []dropTier{
	{70, 1.0},
	{50, 0.8},
	{30, 0.5},
}

// Score computes the churn risk of a member. The result is deterministic
// for the same input, weights and now, is clamped to [0,100] and lists one
// reason per contributing factor followed by any positive signals.
func Score(in Input, w settings.RiskWeights, now time.Time) Result {
	var score float64
	reasons := []string{}

	// Inactivity
	if in.DaysSinceLastCheckin == nil {
		score += w.DaysWithoutCheckin * inactivityTiers[0].factor
		reasons = append(reasons, "no check-in on record")
	} else {
		days := *in.DaysSinceLastCheckin
		for _, tier := range inactivityTiers {
			if days > tier.over {
				score += w.DaysWithoutCheckin * tier.factor
				reasons = append(reasons, fmt.Sprintf(">%d days without check-in (%d days)", tier.over, days))
				break
			}
		}
	}

	// Frequency drop against the member's own history
	current := float64(in.CheckinsThisMonth)
	if in.AverageCheckins > 0 {
		drop := (in.AverageCheckins - current) / in.AverageCheckins * 100
		for _, tier := range dropTiers {
			if drop > tier.over {
				score += w.CheckinFrequencyDrop * tier.factor
				reasons = append(reasons, fmt.Sprintf("drop vs history (-%d%%)", int(math.Round(drop))))
				break
			}
		}
	}
	if in.CheckinsThisMonth == 0 {
		score += w.CheckinFrequencyDrop * 0.5
		reasons = append(reasons, "zero check-ins this month")
	}

	// Plan downgrade
	cutoff := now.Add(-DowngradeWindow)
	for _, c := range in.PlanChanges {
		if c.ChangeType == member.ChangeDowngrade && c.ChangeDate.After(cutoff) {
			score += w.PlanDowngrade
			reasons = append(reasons, "recent plan downgrade")
			break
		}
	}

	// Pause request
	for _, p := range in.Pauses {
		if p.Status == member.PauseActive {
			score += w.PauseRequest
			reasons = append(reasons, "active pause request")
			break
		}
	}

	// Positive signals, reasons only
	if in.DaysSinceLastCheckin != nil && *in.DaysSinceLastCheckin <= 3 && current >= in.AverageCheckins {
		reasons = append(reasons, "regular frequency")
	}
	if current > in.AverageCheckins*1.2 {
		reasons = append(reasons, "above monthly average")
	}

	return Result{Score: clamp(int(math.Round(score))), Reasons: reasons}
}

func clamp(score int) int {
	switch {
	case score < 0:
		return 0
	case score > 100:
		return 100
	}
	return score
}

// LevelFor buckets a score: up to Low is low, up to Medium is medium,
// anything above is high.
func LevelFor(score int, t settings.RiskThresholds) member.RiskLevel {
	s := float64(score)
	switch {
	case s <= t.Low:
		return member.RiskLow
	case s <= t.Medium:
		return member.RiskMedium
	}
	return member.RiskHigh
}
