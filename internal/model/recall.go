package model

import (
	"database/sql/driver"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type RecallType string

const (
	RecallTypeAnnualSkinCheck     RecallType = "annual_skin_check"
	RecallTypeMoleMonitoring      RecallType = "mole_monitoring"
	RecallTypeLabRecheck          RecallType = "lab_recheck"
	RecallTypePrescriptionRenewal RecallType = "prescription_renewal"
	RecallTypePostProcedure       RecallType = "post_procedure"
	RecallTypeCustom              RecallType = "custom"
)

func (t RecallType) Valid() bool {
	switch t {
	case RecallTypeAnnualSkinCheck, RecallTypeMoleMonitoring, RecallTypeLabRecheck,
		RecallTypePrescriptionRenewal, RecallTypePostProcedure, RecallTypeCustom:
		return true
	}
	return false
}

// IntRange is an optional inclusive range predicate. Nil bounds are open.
type IntRange struct {
	Min *int `json:"min,omitempty"`
	Max *int `json:"max,omitempty"`
}

// TargetCriteria is a tree of independent optional filters. Each set filter
// is AND-combined with the others when compiled into a query; values are
// always bound as parameters, never interpolated.
type TargetCriteria struct {
	LastVisitDays           *IntRange `json:"last_visit_days,omitempty"`
	DiagnosisCodePrefixes   []string  `json:"diagnosis_code_prefixes,omitempty"`
	ProcedureCodes          []string  `json:"procedure_codes,omitempty"`
	ProcedureLookbackDays   *int      `json:"procedure_lookback_days,omitempty"`
	AgeRange                *IntRange `json:"age_range,omitempty"`
	RiskLevels              []string  `json:"risk_levels,omitempty"`
	LabDueDays              *IntRange `json:"lab_due_days,omitempty"`
	PrescriptionExpiryDays  *IntRange `json:"prescription_expiry_days,omitempty"`
}

func (c TargetCriteria) Value() (driver.Value, error) {
	return json.Marshal(c)
}

func (c *TargetCriteria) Scan(src interface{}) error {
	return scanJSON(src, c)
}

// MessageTemplates maps a delivery channel to its outreach message body.
type MessageTemplates map[string]string

func (m MessageTemplates) Value() (driver.Value, error) {
	if m == nil {
		return json.Marshal(MessageTemplates{})
	}
	return json.Marshal(m)
}

func (m *MessageTemplates) Scan(src interface{}) error {
	return scanJSON(src, m)
}

// RecallCampaign is a reusable targeting and outreach policy. Identity is
// immutable; criteria and cadence are mutable via partial update.
type RecallCampaign struct {
	Base
	OrganizationID uuid.UUID        `db:"organization_id" json:"organization_id" validate:"required"`
	Name           string           `db:"name" json:"name" validate:"required,max=200"`
	Description    string           `db:"description" json:"description,omitempty"`
	RecallType     RecallType       `db:"recall_type" json:"recall_type"`
	Criteria       TargetCriteria   `db:"criteria" json:"criteria"`
	Templates      MessageTemplates `db:"templates" json:"templates"`
	FrequencyDays  int              `db:"frequency_days" json:"frequency_days"`
	MaxAttempts    int              `db:"max_attempts" json:"max_attempts"`
	Active         bool             `db:"active" json:"active"`
	AutoIdentify   bool             `db:"auto_identify" json:"auto_identify"`
}

type RecallStatus string

const (
	RecallStatusPending       RecallStatus = "pending"
	RecallStatusContacted     RecallStatus = "contacted"
	RecallStatusScheduled     RecallStatus = "scheduled"
	RecallStatusCompleted     RecallStatus = "completed"
	RecallStatusDeclined      RecallStatus = "declined"
	RecallStatusUnableToReach RecallStatus = "unable_to_reach"
	RecallStatusDismissed     RecallStatus = "dismissed"
)

// Active enrollments block re-identification into the same campaign.
func (s RecallStatus) Active() bool {
	switch s {
	case RecallStatusPending, RecallStatusContacted, RecallStatusScheduled:
		return true
	}
	return false
}

var recallTransitions = map[RecallStatus][]RecallStatus{
	RecallStatusPending: {
		RecallStatusContacted, RecallStatusScheduled, RecallStatusDeclined, RecallStatusDismissed,
	},
	RecallStatusContacted: {
		RecallStatusContacted, RecallStatusScheduled, RecallStatusCompleted,
		RecallStatusDeclined, RecallStatusUnableToReach, RecallStatusDismissed,
	},
	RecallStatusScheduled: {
		RecallStatusCompleted, RecallStatusDeclined, RecallStatusDismissed,
	},
}

func (s RecallStatus) CanTransitionTo(to RecallStatus) bool {
	for _, next := range recallTransitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

type RecallSource string

const (
	RecallSourceAuto   RecallSource = "auto"
	RecallSourceManual RecallSource = "manual"
	RecallSourceImport RecallSource = "import"
)

// RecallPatient is one patient's enrollment in one campaign. At most one
// active enrollment may exist per patient per campaign.
type RecallPatient struct {
	Base
	OrganizationID  uuid.UUID    `db:"organization_id" json:"organization_id"`
	CampaignID      uuid.UUID    `db:"campaign_id" json:"campaign_id"`
	PatientID       uuid.UUID    `db:"patient_id" json:"patient_id"`
	Reason          string       `db:"reason" json:"reason,omitempty"`
	DueDate         time.Time    `db:"due_date" json:"due_date"`
	Priority        string       `db:"priority" json:"priority,omitempty"`
	Status          RecallStatus `db:"status" json:"status"`
	LastContactAt   *time.Time   `db:"last_contact_at" json:"last_contact_at,omitempty"`
	NextContactAt   *time.Time   `db:"next_contact_at" json:"next_contact_at,omitempty"`
	ContactAttempts int          `db:"contact_attempts" json:"contact_attempts"`
	AppointmentID   *uuid.UUID   `db:"appointment_id" json:"appointment_id,omitempty"`
	Source          RecallSource `db:"source" json:"source"`
	Notes           string       `db:"notes" json:"notes,omitempty"`
}

// RecallContactLog is an append-only record of one contact attempt. The
// response fields may be filled in later, asynchronously.
type RecallContactLog struct {
	ID              uuid.UUID  `db:"id" json:"id"`
	RecallPatientID uuid.UUID  `db:"recall_patient_id" json:"recall_patient_id"`
	Channel         string     `db:"channel" json:"channel"`
	Message         string     `db:"message" json:"message"`
	SentAt          time.Time  `db:"sent_at" json:"sent_at"`
	DeliveryStatus  string     `db:"delivery_status" json:"delivery_status,omitempty"`
	ExternalID      string     `db:"external_id" json:"external_id,omitempty"`
	Response        *string    `db:"response" json:"response,omitempty"`
	ResponseNotes   *string    `db:"response_notes" json:"response_notes,omitempty"`
	CreatedAt       time.Time  `db:"created_at" json:"created_at"`
}

// OutreachCandidate is a due enrollment joined with campaign cadence and the
// patient's contact details, as selected for one processing batch.
type OutreachCandidate struct {
	RecallPatient
	CampaignName  string `db:"campaign_name" json:"campaign_name"`
	FrequencyDays int    `db:"frequency_days" json:"frequency_days"`
	MaxAttempts   int    `db:"max_attempts" json:"max_attempts"`
	PatientName   string `db:"patient_name" json:"patient_name"`
	PatientPhone  string `db:"patient_phone" json:"patient_phone"`
	PatientEmail  string `db:"patient_email" json:"patient_email"`
}

type RecallResponseOutcome string

const (
	RecallResponseScheduled RecallResponseOutcome = "scheduled"
	RecallResponseDeclined  RecallResponseOutcome = "declined"
	RecallResponseCallBack  RecallResponseOutcome = "call_back"
)

// Status maps a caller-supplied outcome onto the enrollment status it
// produces. A call-back request leaves the enrollment contacted.
func (o RecallResponseOutcome) Status() (RecallStatus, bool) {
	switch o {
	case RecallResponseScheduled:
		return RecallStatusScheduled, true
	case RecallResponseDeclined:
		return RecallStatusDeclined, true
	case RecallResponseCallBack:
		return RecallStatusContacted, true
	}
	return "", false
}

// IdentifyResult reports one identification run.
type IdentifyResult struct {
	Identified int      `json:"identified"`
	Created    int      `json:"created"`
	Skipped    int      `json:"skipped"`
	Errors     []string `json:"errors,omitempty"`
}

// OutreachResult reports one outreach processing batch.
type OutreachResult struct {
	Processed int      `json:"processed"`
	Contacted int      `json:"contacted"`
	Failed    int      `json:"failed"`
	Errors    []string `json:"errors,omitempty"`
}

// CampaignStats is one row of the dashboard rollup. ConversionRate is
// (scheduled+completed)/total*100 rounded to one decimal, 0 when nothing is
// enrolled.
type CampaignStats struct {
	CampaignID     uuid.UUID `db:"campaign_id" json:"campaign_id"`
	Name           string    `db:"name" json:"name"`
	Total          int       `db:"total" json:"total"`
	Scheduled      int       `db:"scheduled" json:"scheduled"`
	Completed      int       `db:"completed" json:"completed"`
	ConversionRate float64   `json:"conversion_rate"`
}

type RecallDashboard struct {
	StatusCounts map[RecallStatus]int `json:"status_counts"`
	DueToday     int                  `json:"due_today"`
	Overdue      int                  `json:"overdue"`
	Campaigns    []*CampaignStats     `json:"campaigns"`
}

// RecallHistory is the per-patient read model: every enrollment with its
// contact trail.
type RecallHistory struct {
	Enrollments []*RecallPatient    `json:"enrollments"`
	Contacts    []*RecallContactLog `json:"contacts"`
}

type CreateCampaignRequest struct {
	Name          string           `json:"name" binding:"required,max=200"`
	Description   string           `json:"description" binding:"max=2000"`
	RecallType    RecallType       `json:"recall_type" binding:"required"`
	Criteria      TargetCriteria   `json:"criteria"`
	Templates     MessageTemplates `json:"templates"`
	FrequencyDays int              `json:"frequency_days" binding:"min=1,max=365"`
	MaxAttempts   int              `json:"max_attempts" binding:"min=1,max=20"`
	Active        bool             `json:"active"`
	AutoIdentify  bool             `json:"auto_identify"`
}

// UpdateCampaignRequest carries a partial update; nil fields are untouched.
type UpdateCampaignRequest struct {
	Name          *string           `json:"name" binding:"omitempty,max=200"`
	Description   *string           `json:"description" binding:"omitempty,max=2000"`
	Criteria      *TargetCriteria   `json:"criteria"`
	Templates     *MessageTemplates `json:"templates"`
	FrequencyDays *int              `json:"frequency_days" binding:"omitempty,min=1,max=365"`
	MaxAttempts   *int              `json:"max_attempts" binding:"omitempty,min=1,max=20"`
	Active        *bool             `json:"active"`
	AutoIdentify  *bool             `json:"auto_identify"`
}

type RecordContactRequest struct {
	Channel string `json:"channel" binding:"required,oneof=sms email phone"`
	Message string `json:"message" binding:"required,max=2000"`
}

type RecordResponseRequest struct {
	Outcome RecallResponseOutcome `json:"outcome" binding:"required"`
	Notes   string                `json:"notes" binding:"max=2000"`
}

type ScheduleRecallRequest struct {
	AppointmentID uuid.UUID `json:"appointment_id" binding:"required"`
}
