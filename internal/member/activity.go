package member

import (
	"time"
)

// averageMonths is the trailing window for the monthly check-in average
const averageMonths = 3

// Activity holds the check-in aggregates stored on a member
type Activity struct {
	LastCheckin          *time.Time
	DaysSinceLastCheckin *int
	CheckinsThisMonth    int
	AverageCheckins      float64
}

// ComputeActivity derives the aggregates from a member's check-in dates.
// Members without check-ins get nil LastCheckin and DaysSinceLastCheckin.
// The average counts check-ins since the first day of the month three months
// back, divided by three and rounded to one decimal.
func ComputeActivity(dates []time.Time, now time.Time) Activity {
	now = now.UTC()
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	windowStart := monthStart.AddDate(0, -averageMonths, 0)

	var a Activity
	var last time.Time
	historical := 0
	for _, d := range dates {
		d = d.UTC()
		if d.After(last) {
			last = d
		}
		if !d.Before(monthStart) {
			a.CheckinsThisMonth++
		}
		if !d.Before(windowStart) {
			historical++
		}
	}

	if !last.IsZero() {
		days := int(now.Sub(last).Hours() / 24)
		if days < 0 {
			days = 0
		}
		a.LastCheckin = &last
		a.DaysSinceLastCheckin = &days
	}
	a.AverageCheckins = round1(float64(historical) / averageMonths)

	return a
}
