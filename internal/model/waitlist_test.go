package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestWaitlistStatusTransitions(t *testing.T) {
	cases := []struct {
		from    WaitlistStatus
		to      WaitlistStatus
		allowed bool
	}{
		{WaitlistStatusActive, WaitlistStatusNotified, true},
		{WaitlistStatusActive, WaitlistStatusCancelled, true},
		{WaitlistStatusNotified, WaitlistStatusActive, true},
		{WaitlistStatusNotified, WaitlistStatusScheduled, true},
		{WaitlistStatusScheduled, WaitlistStatusActive, false},
		{WaitlistStatusCancelled, WaitlistStatusActive, false},
		{WaitlistStatusExpired, WaitlistStatusNotified, false},
	}

	for _, tc := range cases {
		assert.Equal(t, tc.allowed, tc.from.CanTransitionTo(tc.to), "%s -> %s", tc.from, tc.to)
	}
}

func TestTimeOfDayPreferenceBuckets(t *testing.T) {
	morning := TimeOfDayPreference{Morning: true}
	assert.True(t, morning.Matches(6))
	assert.True(t, morning.Matches(11))
	assert.False(t, morning.Matches(12))

	afternoon := TimeOfDayPreference{Afternoon: true}
	assert.True(t, afternoon.Matches(12))
	assert.True(t, afternoon.Matches(16))
	assert.False(t, afternoon.Matches(17))

	evening := TimeOfDayPreference{Evening: true}
	assert.True(t, evening.Matches(17))
	assert.True(t, evening.Matches(5))
	assert.False(t, evening.Matches(9))

	none := TimeOfDayPreference{}
	assert.False(t, none.Matches(9))
	assert.False(t, none.Matches(14))
	assert.False(t, none.Matches(20))
}

func TestWeekdaysEmptySetAcceptsAnyDay(t *testing.T) {
	var none Weekdays
	assert.True(t, none.Contains(time.Monday))
	assert.True(t, none.Contains(time.Sunday))

	weekdays := Weekdays{time.Monday, time.Wednesday}
	assert.True(t, weekdays.Contains(time.Wednesday))
	assert.False(t, weekdays.Contains(time.Friday))
}

func TestPriorityMultipliers(t *testing.T) {
	assert.Equal(t, 2.0, WaitlistPriorityUrgent.Multiplier())
	assert.Equal(t, 1.5, WaitlistPriorityHigh.Multiplier())
	assert.Equal(t, 1.0, WaitlistPriorityNormal.Multiplier())
	assert.Equal(t, 0.75, WaitlistPriorityLow.Multiplier())
}

func TestNotificationResponseTerminal(t *testing.T) {
	assert.False(t, NotificationResponsePending.Terminal())
	assert.True(t, NotificationResponseAccepted.Terminal())
	assert.True(t, NotificationResponseDeclined.Terminal())
	assert.True(t, NotificationResponseExpired.Terminal())
}
