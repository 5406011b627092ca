package waitlist

import (
	"time"

	"github.com/careloop/outreach-api/internal/model"
)

// Scoring weights. The priority multiplier scales the whole accumulated
// preference score, then the waiting bonus is added on top, capped so long
// waits cannot dominate priority and fit.
const (
	baseScore = 10.0

	providerFlexibleBonus = 20.0
	providerExactBonus    = 40.0

	typeFlexibleBonus = 15.0
	typeExactBonus    = 25.0

	locationFlexibleBonus   = 10.0
	locationExactBonus      = 15.0
	locationMismatchPenalty = -5.0

	timeOfDayBonus = 10.0
	weekdayBonus   = 5.0

	waitingBonusPerDay = 0.5
	waitingBonusCap    = 10.0
)

// ScoreEntry scores one candidate against a slot. Pure function: entries
// with a provider or appointment-type constraint that does not match the
// slot must be filtered before this is called; location mismatch is not
// pre-filtered and is penalized here instead.
func ScoreEntry(slot *model.AvailableSlot, entry *model.WaitlistEntry, now time.Time) (float64, model.MatchDetails) {
	details := model.MatchDetails{
		PriorityMultiplier: entry.Priority.Multiplier(),
	}

	score := baseScore

	switch {
	case entry.ProviderID == nil:
		score += providerFlexibleBonus
		details.ProviderFlexible = true
	case *entry.ProviderID == slot.ProviderID:
		score += providerExactBonus
		details.ProviderMatch = true
	}

	switch {
	case entry.AppointmentTypeID == nil:
		score += typeFlexibleBonus
		details.TypeFlexible = true
	case *entry.AppointmentTypeID == slot.AppointmentTypeID:
		score += typeExactBonus
		details.TypeMatch = true
	}

	switch {
	case entry.LocationID == nil:
		score += locationFlexibleBonus
		details.LocationFlexible = true
	case *entry.LocationID == slot.LocationID:
		score += locationExactBonus
		details.LocationMatch = true
	default:
		score += locationMismatchPenalty
	}

	if entry.TimeOfDay.Matches(slot.StartTime.Hour()) {
		score += timeOfDayBonus
		details.TimeOfDayMatch = true
	}

	if entry.PreferredWeekdays.Contains(slot.StartTime.Weekday()) {
		score += weekdayBonus
		details.WeekdayMatch = true
	}

	score *= details.PriorityMultiplier

	daysWaiting := int(now.Sub(entry.CreatedAt).Hours() / 24)
	if daysWaiting < 0 {
		daysWaiting = 0
	}
	details.DaysWaiting = daysWaiting

	bonus := float64(daysWaiting) * waitingBonusPerDay
	if bonus > waitingBonusCap {
		bonus = waitingBonusCap
	}
	score += bonus

	return score, details
}
