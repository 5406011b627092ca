package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/careloop/outreach-api/internal/model"
)

// All repository interfaces in one file
type (
	// WaitlistRepository owns waitlist entries, their offers, and the
	// transactional flows that move both together.
	WaitlistRepository interface {
		CreateEntry(ctx context.Context, entry *model.WaitlistEntry) error
		GetEntry(ctx context.Context, orgID, id uuid.UUID) (*model.WaitlistEntry, error)
		ListEntries(ctx context.Context, orgID uuid.UUID, filters *model.WaitlistEntryFilters) ([]*model.WaitlistEntry, error)
		CancelEntry(ctx context.Context, orgID, id uuid.UUID) error

		// FindCandidates returns active entries whose provider and
		// appointment-type constraints are null or equal to the slot's, and
		// that have no pending unexpired notification. Ordered by creation
		// time so equal scores resolve to the earliest enrollment.
		FindCandidates(ctx context.Context, orgID uuid.UUID, slot *model.AvailableSlot, now time.Time) ([]*model.WaitlistEntry, error)

		// OfferSlot inserts the notification and flips the entry to
		// notified in one transaction. The entry row is locked before the
		// status check; a non-active entry fails with a conflict.
		OfferSlot(ctx context.Context, notification *model.WaitlistNotification) error

		GetNotification(ctx context.Context, orgID, id uuid.UUID) (*model.WaitlistNotification, error)

		// ResolveNotification settles a pending offer in one transaction:
		// accept books the snapshotted slot and terminates the entry,
		// decline returns the entry to the pool, and a lapsed deadline is
		// finalized as expired without booking.
		ResolveNotification(ctx context.Context, orgID, notificationID uuid.UUID, accepted bool, now time.Time) (*model.ResolveOutcome, error)

		// ExpireNotifications finalizes every pending offer past its
		// deadline and returns the owning entries to active. Idempotent.
		ExpireNotifications(ctx context.Context, orgID *uuid.UUID, now time.Time) (int64, error)

		EntryStats(ctx context.Context, orgID uuid.UUID, now time.Time) (*model.WaitlistStats, error)
	}

	// RecallRepository owns campaigns, enrollments, and contact logs.
	RecallRepository interface {
		CreateCampaign(ctx context.Context, campaign *model.RecallCampaign) error
		GetCampaign(ctx context.Context, orgID, id uuid.UUID) (*model.RecallCampaign, error)
		UpdateCampaign(ctx context.Context, campaign *model.RecallCampaign) error
		ListCampaigns(ctx context.Context, orgID uuid.UUID, activeOnly bool) ([]*model.RecallCampaign, error)

		// ListActiveCampaigns spans all organizations; it drives the
		// scheduled outreach worker.
		ListActiveCampaigns(ctx context.Context) ([]*model.RecallCampaign, error)

		// IdentifyCandidates compiles the campaign criteria into one bound
		// query over the patient population, excluding patients already
		// active in the campaign and inactive patients. Result is capped.
		IdentifyCandidates(ctx context.Context, campaign *model.RecallCampaign, now time.Time) ([]*model.Patient, error)

		// EnrollPatient inserts the enrollment unless the patient is
		// already active in the campaign, in which case it reports
		// ErrAlreadyEnrolled.
		EnrollPatient(ctx context.Context, rp *model.RecallPatient) error

		GetRecallPatient(ctx context.Context, orgID, id uuid.UUID) (*model.RecallPatient, error)

		// ListDueOutreach selects enrollments in pending/contacted with
		// attempts below the campaign maximum and a null-or-past next
		// contact time, ordered by due date then enrollment time.
		ListDueOutreach(ctx context.Context, orgID, campaignID uuid.UUID, now time.Time, limit int) ([]*model.OutreachCandidate, error)

		// RecordContact appends the contact log and advances the
		// enrollment's cadence fields in one transaction.
		RecordContact(ctx context.Context, contact *model.RecallContactLog, rp *model.RecallPatient) error

		UpdateRecallPatient(ctx context.Context, rp *model.RecallPatient) error

		// StampContactResponse writes the response and notes onto the
		// enrollment's most recent contact log row. A no-op when no
		// contact has been logged yet.
		StampContactResponse(ctx context.Context, orgID, recallPatientID uuid.UUID, response, notes string) error

		Dashboard(ctx context.Context, orgID uuid.UUID, now time.Time) (*model.RecallDashboard, error)
		PatientHistory(ctx context.Context, orgID, patientID uuid.UUID) (*model.RecallHistory, error)
	}

	// AppointmentRepository is the slice of the external booking store the
	// core reads; accepted offers insert through the waitlist transaction.
	AppointmentRepository interface {
		Get(ctx context.Context, orgID, id uuid.UUID) (*model.Appointment, error)
	}

	// PatientRepository is the point-lookup slice of the external patient
	// store, used to resolve delivery addresses for offers.
	PatientRepository interface {
		Get(ctx context.Context, orgID, id uuid.UUID) (*model.Patient, error)
	}

	// AuditRepository records fire-and-forget audit entries.
	AuditRepository interface {
		Create(ctx context.Context, log *model.AuditLog) error
	}
)
