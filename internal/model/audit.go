package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// SystemActorID identifies scheduled jobs in audit records so batch work is
// never attributed to an ambient anonymous actor.
var SystemActorID = uuid.MustParse("00000000-0000-0000-0000-000000000001")

type AuditLog struct {
	ID             uuid.UUID       `json:"id" db:"id"`
	OrganizationID uuid.UUID       `json:"organization_id" db:"organization_id"`
	ActorID        uuid.UUID       `json:"actor_id" db:"actor_id"`
	Action         string          `json:"action" db:"action"`
	ResourceType   string          `json:"resource_type" db:"resource_type"`
	ResourceID     uuid.UUID       `json:"resource_id" db:"resource_id"`
	Metadata       json.RawMessage `json:"metadata" db:"metadata"`
	CreatedAt      time.Time       `json:"created_at" db:"created_at"`
}

const (
	AuditActionCreate   = "create"
	AuditActionUpdate   = "update"
	AuditActionCancel   = "cancel"
	AuditActionOffer    = "offer"
	AuditActionResolve  = "resolve"
	AuditActionAutoFill = "auto_fill"
	AuditActionSweep    = "expire_sweep"
	AuditActionIdentify = "identify"
	AuditActionOutreach = "outreach"

	AuditResourceWaitlistEntry = "waitlist_entry"
	AuditResourceNotification  = "waitlist_notification"
	AuditResourceCampaign      = "recall_campaign"
	AuditResourceRecallPatient = "recall_patient"
	AuditResourceAppointment   = "appointment"
)
