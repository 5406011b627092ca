package waitlist

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/careloop/outreach-api/internal/model"
)

// Monday morning slot used across the scoring tests.
func testSlot() *model.AvailableSlot {
	return &model.AvailableSlot{
		ProviderID:        uuid.MustParse("11111111-1111-1111-1111-111111111111"),
		LocationID:        uuid.MustParse("22222222-2222-2222-2222-222222222222"),
		AppointmentTypeID: uuid.MustParse("33333333-3333-3333-3333-333333333333"),
		StartTime:         time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC),
		EndTime:           time.Date(2026, 3, 2, 9, 30, 0, 0, time.UTC),
	}
}

func TestScoreEntryFlexibleUrgentWithWaiting(t *testing.T) {
	slot := testSlot()
	now := slot.StartTime

	// No provider/type/location constraints, no time-of-day buckets
	// accepted, weekday preference that misses the Monday slot, urgent,
	// enrolled ten days ago.
	entry := &model.WaitlistEntry{
		Base:              model.Base{CreatedAt: now.AddDate(0, 0, -10)},
		Priority:          model.WaitlistPriorityUrgent,
		PreferredWeekdays: model.Weekdays{time.Tuesday},
	}

	score, details := ScoreEntry(slot, entry, now)

	// (10 base + 20 provider + 15 type + 10 location) * 2.0 + 5 waiting
	assert.Equal(t, 115.0, score)
	assert.True(t, details.ProviderFlexible)
	assert.True(t, details.TypeFlexible)
	assert.True(t, details.LocationFlexible)
	assert.False(t, details.TimeOfDayMatch)
	assert.False(t, details.WeekdayMatch)
	assert.Equal(t, 2.0, details.PriorityMultiplier)
	assert.Equal(t, 10, details.DaysWaiting)
}

func TestScoreEntryExactMatches(t *testing.T) {
	slot := testSlot()
	now := slot.StartTime

	entry := &model.WaitlistEntry{
		Base:              model.Base{CreatedAt: now},
		ProviderID:        &slot.ProviderID,
		AppointmentTypeID: &slot.AppointmentTypeID,
		LocationID:        &slot.LocationID,
		TimeOfDay:         model.TimeOfDayPreference{Morning: true},
		Priority:          model.WaitlistPriorityNormal,
	}

	score, details := ScoreEntry(slot, entry, now)

	// 10 + 40 + 25 + 15 + 10 + 5 (empty weekday set accepts any day)
	assert.Equal(t, 105.0, score)
	assert.True(t, details.ProviderMatch)
	assert.True(t, details.TypeMatch)
	assert.True(t, details.LocationMatch)
	assert.True(t, details.TimeOfDayMatch)
	assert.True(t, details.WeekdayMatch)
}

func TestScoreEntryLocationMismatchPenalty(t *testing.T) {
	slot := testSlot()
	now := slot.StartTime
	otherLocation := uuid.MustParse("44444444-4444-4444-4444-444444444444")

	entry := &model.WaitlistEntry{
		Base:              model.Base{CreatedAt: now},
		LocationID:        &otherLocation,
		Priority:          model.WaitlistPriorityNormal,
		PreferredWeekdays: model.Weekdays{time.Friday},
	}

	score, details := ScoreEntry(slot, entry, now)

	// 10 + 20 + 15 - 5 penalty
	assert.Equal(t, 40.0, score)
	assert.False(t, details.LocationMatch)
	assert.False(t, details.LocationFlexible)
}

func TestScoreEntryWaitingBonusCapped(t *testing.T) {
	slot := testSlot()
	now := slot.StartTime

	entry := &model.WaitlistEntry{
		Base:              model.Base{CreatedAt: now.AddDate(0, 0, -100)},
		Priority:          model.WaitlistPriorityNormal,
		PreferredWeekdays: model.Weekdays{time.Friday},
	}

	score, details := ScoreEntry(slot, entry, now)

	// (10 + 20 + 15 + 10) + capped 10 waiting bonus
	assert.Equal(t, 65.0, score)
	assert.Equal(t, 100, details.DaysWaiting)
}

func TestScoreEntryFutureEnrollmentNotNegative(t *testing.T) {
	slot := testSlot()
	now := slot.StartTime

	entry := &model.WaitlistEntry{
		Base:     model.Base{CreatedAt: now.Add(48 * time.Hour)},
		Priority: model.WaitlistPriorityNormal,
	}

	_, details := ScoreEntry(slot, entry, now)
	assert.Equal(t, 0, details.DaysWaiting)
}

func TestScoreEntryPriorityOrdersEqualFit(t *testing.T) {
	slot := testSlot()
	now := slot.StartTime

	urgent := &model.WaitlistEntry{Base: model.Base{CreatedAt: now}, Priority: model.WaitlistPriorityUrgent}
	high := &model.WaitlistEntry{Base: model.Base{CreatedAt: now}, Priority: model.WaitlistPriorityHigh}
	normal := &model.WaitlistEntry{Base: model.Base{CreatedAt: now}, Priority: model.WaitlistPriorityNormal}
	low := &model.WaitlistEntry{Base: model.Base{CreatedAt: now}, Priority: model.WaitlistPriorityLow}

	urgentScore, _ := ScoreEntry(slot, urgent, now)
	highScore, _ := ScoreEntry(slot, high, now)
	normalScore, _ := ScoreEntry(slot, normal, now)
	lowScore, _ := ScoreEntry(slot, low, now)

	assert.Greater(t, urgentScore, highScore)
	assert.Greater(t, highScore, normalScore)
	assert.Greater(t, normalScore, lowScore)
}
