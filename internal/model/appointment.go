package model

import (
	"time"

	"github.com/google/uuid"
)

type AppointmentStatus string

const (
	AppointmentStatusScheduled AppointmentStatus = "scheduled"
	AppointmentStatusConfirmed AppointmentStatus = "confirmed"
	AppointmentStatusCancelled AppointmentStatus = "cancelled"
	AppointmentStatusCompleted AppointmentStatus = "completed"
)

// Appointment lives in the external booking subsystem; the outreach core
// only reads cancelled slots and inserts bookings from accepted offers.
type Appointment struct {
	Base
	OrganizationID    uuid.UUID         `db:"organization_id" json:"organization_id"`
	PatientID         uuid.UUID         `db:"patient_id" json:"patient_id"`
	ProviderID        uuid.UUID         `db:"provider_id" json:"provider_id"`
	LocationID        uuid.UUID         `db:"location_id" json:"location_id"`
	AppointmentTypeID uuid.UUID         `db:"appointment_type_id" json:"appointment_type_id"`
	StartTime         time.Time         `db:"start_time" json:"start_time"`
	EndTime           time.Time         `db:"end_time" json:"end_time"`
	Status            AppointmentStatus `db:"status" json:"status"`
	Notes             string            `db:"notes" json:"notes,omitempty"`
	CancelReason      *string           `db:"cancel_reason" json:"cancel_reason,omitempty"`
}
