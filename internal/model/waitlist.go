package model

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type WaitlistStatus string

const (
	WaitlistStatusActive    WaitlistStatus = "active"
	WaitlistStatusMatched   WaitlistStatus = "matched"
	WaitlistStatusNotified  WaitlistStatus = "notified"
	WaitlistStatusScheduled WaitlistStatus = "scheduled"
	WaitlistStatusCancelled WaitlistStatus = "cancelled"
	WaitlistStatusExpired   WaitlistStatus = "expired"
)

// waitlistTransitions enumerates the legal entry transitions. Terminal
// states (scheduled, cancelled) have no outgoing edges.
var waitlistTransitions = map[WaitlistStatus][]WaitlistStatus{
	WaitlistStatusActive:   {WaitlistStatusNotified, WaitlistStatusScheduled, WaitlistStatusCancelled, WaitlistStatusExpired},
	WaitlistStatusMatched:  {WaitlistStatusActive, WaitlistStatusNotified, WaitlistStatusCancelled},
	WaitlistStatusNotified: {WaitlistStatusActive, WaitlistStatusScheduled, WaitlistStatusCancelled},
}

func (s WaitlistStatus) CanTransitionTo(to WaitlistStatus) bool {
	for _, next := range waitlistTransitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

type WaitlistPriority string

const (
	WaitlistPriorityLow    WaitlistPriority = "low"
	WaitlistPriorityNormal WaitlistPriority = "normal"
	WaitlistPriorityHigh   WaitlistPriority = "high"
	WaitlistPriorityUrgent WaitlistPriority = "urgent"
)

// Multiplier returns the score multiplier applied to the accumulated
// preference score. Unknown priorities score as normal.
func (p WaitlistPriority) Multiplier() float64 {
	switch p {
	case WaitlistPriorityUrgent:
		return 2.0
	case WaitlistPriorityHigh:
		return 1.5
	case WaitlistPriorityLow:
		return 0.75
	default:
		return 1.0
	}
}

func (p WaitlistPriority) Valid() bool {
	switch p {
	case WaitlistPriorityLow, WaitlistPriorityNormal, WaitlistPriorityHigh, WaitlistPriorityUrgent:
		return true
	}
	return false
}

// PreferredDate is one weighted date the patient would like to be seen on.
type PreferredDate struct {
	Date   time.Time `json:"date"`
	Weight int       `json:"weight"`
}

type PreferredDates []PreferredDate

func (d PreferredDates) Value() (driver.Value, error) {
	if d == nil {
		return json.Marshal(PreferredDates{})
	}
	return json.Marshal(d)
}

func (d *PreferredDates) Scan(src interface{}) error {
	return scanJSON(src, d)
}

// TimeOfDayPreference flags which slot buckets a patient will accept.
type TimeOfDayPreference struct {
	Morning   bool `json:"morning"`
	Afternoon bool `json:"afternoon"`
	Evening   bool `json:"evening"`
}

// Matches reports whether the bucket derived from a slot start hour is
// acceptable. Morning is 06:00-11:59, afternoon 12:00-16:59, the rest
// counts as evening.
func (t TimeOfDayPreference) Matches(startHour int) bool {
	switch {
	case startHour >= 6 && startHour < 12:
		return t.Morning
	case startHour >= 12 && startHour < 17:
		return t.Afternoon
	default:
		return t.Evening
	}
}

func (t TimeOfDayPreference) Value() (driver.Value, error) {
	return json.Marshal(t)
}

func (t *TimeOfDayPreference) Scan(src interface{}) error {
	return scanJSON(src, t)
}

type Weekdays []time.Weekday

// Contains reports whether d is acceptable. An empty set means any day.
func (w Weekdays) Contains(d time.Weekday) bool {
	if len(w) == 0 {
		return true
	}
	for _, day := range w {
		if day == d {
			return true
		}
	}
	return false
}

func (w Weekdays) Value() (driver.Value, error) {
	if w == nil {
		return json.Marshal(Weekdays{})
	}
	return json.Marshal(w)
}

func (w *Weekdays) Scan(src interface{}) error {
	return scanJSON(src, w)
}

// WaitlistEntry is a patient's standing request for an appointment. Nil
// provider/type/location constraints mean "any".
type WaitlistEntry struct {
	Base
	OrganizationID    uuid.UUID           `db:"organization_id" json:"organization_id" validate:"required"`
	PatientID         uuid.UUID           `db:"patient_id" json:"patient_id" validate:"required"`
	ProviderID        *uuid.UUID          `db:"provider_id" json:"provider_id,omitempty"`
	AppointmentTypeID *uuid.UUID          `db:"appointment_type_id" json:"appointment_type_id,omitempty"`
	LocationID        *uuid.UUID          `db:"location_id" json:"location_id,omitempty"`
	PreferredDates    PreferredDates      `db:"preferred_dates" json:"preferred_dates"`
	TimeOfDay         TimeOfDayPreference `db:"time_of_day" json:"time_of_day"`
	PreferredWeekdays Weekdays            `db:"preferred_weekdays" json:"preferred_weekdays"`
	FlexibilityDays   int                 `db:"flexibility_days" json:"flexibility_days" validate:"min=0,max=365"`
	Priority          WaitlistPriority    `db:"priority" json:"priority" validate:"required,oneof=low normal high urgent"`
	Reason            string              `db:"reason" json:"reason,omitempty"`
	Notes             string              `db:"notes" json:"notes,omitempty"`
	Status            WaitlistStatus      `db:"status" json:"status"`
	AppointmentID     *uuid.UUID          `db:"appointment_id" json:"appointment_id,omitempty"`
}

// AvailableSlot describes a bookable opening. It is a value produced by the
// caller (a new opening or a cancelled appointment's former slot) and is
// never persisted on its own.
type AvailableSlot struct {
	ProviderID        uuid.UUID `json:"provider_id" binding:"required" validate:"required"`
	LocationID        uuid.UUID `json:"location_id" binding:"required" validate:"required"`
	AppointmentTypeID uuid.UUID `json:"appointment_type_id" binding:"required" validate:"required"`
	StartTime         time.Time `json:"start_time" binding:"required" validate:"required"`
	EndTime           time.Time `json:"end_time" binding:"required" validate:"required,gtfield=StartTime"`
}

// MatchDetails records which sub-criteria contributed to a score.
type MatchDetails struct {
	ProviderMatch      bool    `json:"provider_match"`
	ProviderFlexible   bool    `json:"provider_flexible"`
	TypeMatch          bool    `json:"type_match"`
	TypeFlexible       bool    `json:"type_flexible"`
	LocationMatch      bool    `json:"location_match"`
	LocationFlexible   bool    `json:"location_flexible"`
	TimeOfDayMatch     bool    `json:"time_of_day_match"`
	WeekdayMatch       bool    `json:"weekday_match"`
	PriorityMultiplier float64 `json:"priority_multiplier"`
	DaysWaiting        int     `json:"days_waiting"`
}

// WaitlistMatch is a computed ranking result. It is recomputed per matching
// call and never stored.
type WaitlistMatch struct {
	EntryID   uuid.UUID    `json:"entry_id"`
	PatientID uuid.UUID    `json:"patient_id"`
	Score     float64      `json:"score"`
	Details   MatchDetails `json:"details"`
}

type NotificationResponse string

const (
	NotificationResponsePending    NotificationResponse = "pending"
	NotificationResponseAccepted   NotificationResponse = "accepted"
	NotificationResponseDeclined   NotificationResponse = "declined"
	NotificationResponseExpired    NotificationResponse = "expired"
	NotificationResponseNoResponse NotificationResponse = "no_response"
)

// Pending is the only non-terminal response value; it is write-once into
// one of the terminal responses.
func (r NotificationResponse) Terminal() bool {
	return r != NotificationResponsePending
}

// WaitlistNotification is a time-boxed offer of one slot to one entry. Slot
// attributes are snapshotted at offer time, not referenced live.
type WaitlistNotification struct {
	Base
	OrganizationID    uuid.UUID            `db:"organization_id" json:"organization_id"`
	WaitlistEntryID   uuid.UUID            `db:"waitlist_entry_id" json:"waitlist_entry_id"`
	ProviderID        uuid.UUID            `db:"provider_id" json:"provider_id"`
	LocationID        uuid.UUID            `db:"location_id" json:"location_id"`
	AppointmentTypeID uuid.UUID            `db:"appointment_type_id" json:"appointment_type_id"`
	SlotStart         time.Time            `db:"slot_start" json:"slot_start"`
	SlotEnd           time.Time            `db:"slot_end" json:"slot_end"`
	OfferedAt         time.Time            `db:"offered_at" json:"offered_at"`
	ExpiresAt         time.Time            `db:"expires_at" json:"expires_at"`
	Response          NotificationResponse `db:"response" json:"response"`
	RespondedAt       *time.Time           `db:"responded_at" json:"responded_at,omitempty"`
	Channel           string               `db:"channel" json:"channel"`
}

// Slot reconstructs the offered slot from the snapshot.
func (n *WaitlistNotification) Slot() AvailableSlot {
	return AvailableSlot{
		ProviderID:        n.ProviderID,
		LocationID:        n.LocationID,
		AppointmentTypeID: n.AppointmentTypeID,
		StartTime:         n.SlotStart,
		EndTime:           n.SlotEnd,
	}
}

// WaitlistStats is the tenant-level read model for the waitlist dashboard.
type WaitlistStats struct {
	StatusCounts map[WaitlistStatus]int `json:"status_counts"`
	AverageWait  float64                `json:"average_wait_days"`
	UrgentActive int                    `json:"urgent_active"`
}

type WaitlistEntryFilters struct {
	Status     WaitlistStatus   `form:"status"`
	PatientID  uuid.UUID        `form:"patient_id"`
	ProviderID uuid.UUID        `form:"provider_id"`
	Priority   WaitlistPriority `form:"priority"`
}

type CreateWaitlistEntryRequest struct {
	PatientID         uuid.UUID           `json:"patient_id" binding:"required"`
	ProviderID        *uuid.UUID          `json:"provider_id"`
	AppointmentTypeID *uuid.UUID          `json:"appointment_type_id"`
	LocationID        *uuid.UUID          `json:"location_id"`
	PreferredDates    PreferredDates      `json:"preferred_dates"`
	TimeOfDay         TimeOfDayPreference `json:"time_of_day"`
	PreferredWeekdays Weekdays            `json:"preferred_weekdays"`
	FlexibilityDays   int                 `json:"flexibility_days" binding:"min=0,max=365"`
	Priority          WaitlistPriority    `json:"priority" binding:"required,oneof=low normal high urgent"`
	Reason            string              `json:"reason" binding:"max=1000"`
	Notes             string              `json:"notes" binding:"max=2000"`
}

type OfferSlotRequest struct {
	Slot            AvailableSlot `json:"slot" binding:"required"`
	ExpirationHours int           `json:"expiration_hours" binding:"min=0,max=168"`
	Channel         string        `json:"channel" binding:"omitempty,oneof=sms email phone"`
}

type MatchSlotRequest struct {
	Slot       AvailableSlot `json:"slot" binding:"required"`
	MaxMatches int           `json:"max_matches" binding:"min=0,max=100"`
}

type AutoFillRequest struct {
	AppointmentID uuid.UUID `json:"appointment_id" binding:"required"`
	MaxOffers     int       `json:"max_offers" binding:"min=0,max=20"`
}

type RespondRequest struct {
	Accepted bool   `json:"accepted"`
	Notes    string `json:"notes" binding:"max=1000"`
}

// ResolveOutcome reports what a response resolution did. Exactly one of the
// three outcomes occurs per call.
type ResolveOutcome struct {
	Outcome     NotificationResponse `json:"outcome"`
	Message     string               `json:"message,omitempty"`
	Appointment *Appointment         `json:"appointment,omitempty"`
}

// AutoFillResult summarizes one auto-fill pass over a cancelled slot.
type AutoFillResult struct {
	MatchesFound  int                     `json:"matches_found"`
	Notified      int                     `json:"notified"`
	Notifications []*WaitlistNotification `json:"notifications"`
	Errors        []string                `json:"errors,omitempty"`
}

func scanJSON(src, dest interface{}) error {
	switch v := src.(type) {
	case nil:
		return nil
	case []byte:
		return json.Unmarshal(v, dest)
	case string:
		return json.Unmarshal([]byte(v), dest)
	default:
		return fmt.Errorf("unsupported scan type %T", src)
	}
}
