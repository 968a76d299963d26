package action

import (
	"fmt"
	"strings"
	"time"

	"github.com/gym-retention/platform/internal/settings"
	"github.com/gym-retention/platform/internal/shared/types"
)

// Candidate is a scored active member that may need a follow-up
type Candidate struct {
	MemberID             types.ID
	Name                 string
	RiskScore            int
	RiskLevel            string
	RiskReasons          []string
	DaysSinceLastCheckin *int
}

// TierFor maps a risk score to the highest tier whose threshold it reaches
func TierFor(score int, t settings.ActionThresholds) (Type, bool) {
	s := float64(score)
	switch {
	case s >= t.N3:
		return TypeN3, true
	case s >= t.N2:
		return TypeN2, true
	case s >= t.N1:
		return TypeN1, true
	}
	return "", false
}

// Supersedes reports whether a new action of tier t may be created while
// existing is open. Equal or higher open tiers suppress creation.
func Supersedes(t Type, existing *ActionItem) bool {
	if existing == nil || !existing.Status.Open() {
		return true
	}
	return t.Level() > openLevel(existing.Type)
}

// openLevel ranks an existing open action; unrecognized types count as N1
func openLevel(t Type) int {
	if !t.Valid() {
		return TypeN1.Level()
	}
	return t.Level()
}

// absence renders the time since the last check-in for templates
func absence(days *int) string {
	if days == nil {
		return "no check-in on record"
	}
	return fmt.Sprintf("%d days without check-in", *days)
}

// absentMoreThan treats a member who never checked in as absent indefinitely
func absentMoreThan(days *int, n int) bool {
	return days == nil || *days > n
}

// Title returns the headline staff see in the action list
func Title(t Type, c Candidate) string {
	label := absence(c.DaysSinceLastCheckin)

	switch t {
	case TypeN1:
		return "Motivational message - " + c.Name
	case TypeN2:
		if absentMoreThan(c.DaysSinceLastCheckin, 7) {
			return "Check reason for absence - " + label
		}
		return "Check reason for frequency drop - " + c.Name
	case TypeN3:
		return "Urgent contact - " + label
	}
	return "Follow up with " + c.Name
}

// Description returns the instructions for the staff member handling the action
func Description(t Type, c Candidate) string {
	reasons := strings.Join(c.RiskReasons, ", ")

	switch t {
	case TypeN1:
		return fmt.Sprintf("Member with a light drop in attendance. Send a motivational message and training tips. Reasons: %s.", reasons)
	case TypeN2:
		if absentMoreThan(c.DaysSinceLastCheckin, 14) {
			return fmt.Sprintf("Member without attendance for %s. Contact via WhatsApp to check the reason and offer support.", absenceSpan(c.DaysSinceLastCheckin))
		}
		return fmt.Sprintf("Member with a significant drop in attendance. Get in touch to understand whether there is a problem and how we can help. Reasons: %s.", reasons)
	case TypeN3:
		return fmt.Sprintf("Member without attendance for %s. URGENT contact via WhatsApp and phone. High cancellation risk. Offer a plan change, a pause or other incentives.", absenceSpan(c.DaysSinceLastCheckin))
	}
	return "Follow-up needed for member " + c.Name + "."
}

func absenceSpan(days *int) string {
	if days == nil {
		return "as long as records go back"
	}
	return fmt.Sprintf("%d days", *days)
}

// New builds the pending action for a candidate at tier t
func New(t Type, c Candidate, now time.Time) *ActionItem {
	return &ActionItem{
		ID:          types.NewID(),
		MemberID:    c.MemberID,
		MemberName:  c.Name,
		Type:        t,
		Priority:    t.Priority(),
		Title:       Title(t, c),
		Description: Description(t, c),
		DueDate:     types.DateOf(now).AddDays(t.DueIn()),
		Status:      StatusPending,
	}
}
