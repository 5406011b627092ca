package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/careloop/outreach-api/internal/model"
	apperrors "github.com/careloop/outreach-api/pkg/errors"
)

// ErrAlreadyEnrolled reports the at-most-one-active-enrollment invariant;
// identification counts it as a skip, not a failure.
var ErrAlreadyEnrolled = errors.New("patient already active in campaign")

const campaignColumns = `
	id, organization_id, name, description, recall_type, criteria, templates,
	frequency_days, max_attempts, active, auto_identify, created_at, updated_at
`

const recallPatientColumns = `
	id, organization_id, campaign_id, patient_id, reason, due_date, priority,
	status, last_contact_at, next_contact_at, contact_attempts,
	appointment_id, source, notes, created_at, updated_at
`

func (r *recallRepository) CreateCampaign(ctx context.Context, campaign *model.RecallCampaign) error {
	query := `
		INSERT INTO recall_campaigns (
			id, organization_id, name, description, recall_type, criteria,
			templates, frequency_days, max_attempts, active, auto_identify,
			created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`
	campaign.ID = uuid.New()
	campaign.CreatedAt = time.Now()
	campaign.UpdatedAt = campaign.CreatedAt

	_, err := r.db.ExecContext(ctx, query,
		campaign.ID,
		campaign.OrganizationID,
		campaign.Name,
		campaign.Description,
		campaign.RecallType,
		campaign.Criteria,
		campaign.Templates,
		campaign.FrequencyDays,
		campaign.MaxAttempts,
		campaign.Active,
		campaign.AutoIdentify,
		campaign.CreatedAt,
		campaign.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create recall campaign: %w", err)
	}
	return nil
}

func (r *recallRepository) GetCampaign(ctx context.Context, orgID, id uuid.UUID) (*model.RecallCampaign, error) {
	query := `
		SELECT ` + campaignColumns + `
		FROM recall_campaigns
		WHERE id = $1 AND organization_id = $2
	`
	var campaign model.RecallCampaign
	err := r.db.GetContext(ctx, &campaign, query, id, orgID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NewNotFound("recall campaign", err)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get recall campaign: %w", err)
	}
	return &campaign, nil
}

func (r *recallRepository) UpdateCampaign(ctx context.Context, campaign *model.RecallCampaign) error {
	query := `
		UPDATE recall_campaigns
		SET name = $1, description = $2, criteria = $3, templates = $4,
			frequency_days = $5, max_attempts = $6, active = $7,
			auto_identify = $8, updated_at = $9
		WHERE id = $10 AND organization_id = $11
	`
	campaign.UpdatedAt = time.Now()

	result, err := r.db.ExecContext(ctx, query,
		campaign.Name,
		campaign.Description,
		campaign.Criteria,
		campaign.Templates,
		campaign.FrequencyDays,
		campaign.MaxAttempts,
		campaign.Active,
		campaign.AutoIdentify,
		campaign.UpdatedAt,
		campaign.ID,
		campaign.OrganizationID,
	)
	if err != nil {
		return fmt.Errorf("failed to update recall campaign: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return apperrors.NewNotFound("recall campaign", nil)
	}
	return nil
}

func (r *recallRepository) ListCampaigns(ctx context.Context, orgID uuid.UUID, activeOnly bool) ([]*model.RecallCampaign, error) {
	query := `
		SELECT ` + campaignColumns + `
		FROM recall_campaigns
		WHERE organization_id = $1
	`
	args := []interface{}{orgID}
	if activeOnly {
		query += " AND active = $2"
		args = append(args, true)
	}
	query += " ORDER BY created_at ASC"

	var campaigns []*model.RecallCampaign
	err := r.db.SelectContext(ctx, &campaigns, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list recall campaigns: %w", err)
	}
	return campaigns, nil
}

func (r *recallRepository) ListActiveCampaigns(ctx context.Context) ([]*model.RecallCampaign, error) {
	query := `
		SELECT ` + campaignColumns + `
		FROM recall_campaigns
		WHERE active = true
		ORDER BY created_at ASC
	`
	var campaigns []*model.RecallCampaign
	if err := r.db.SelectContext(ctx, &campaigns, query); err != nil {
		return nil, fmt.Errorf("failed to list active recall campaigns: %w", err)
	}
	return campaigns, nil
}

func (r *recallRepository) IdentifyCandidates(ctx context.Context, campaign *model.RecallCampaign, now time.Time) ([]*model.Patient, error) {
	query, args := buildCriteriaQuery(campaign.OrganizationID, campaign.ID, &campaign.Criteria, now)

	var patients []*model.Patient
	err := r.db.SelectContext(ctx, &patients, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to identify recall candidates: %w", err)
	}
	return patients, nil
}

func (r *recallRepository) EnrollPatient(ctx context.Context, rp *model.RecallPatient) error {
	// The WHERE NOT EXISTS guard enforces at most one active enrollment per
	// patient per campaign; the partial unique index backs it up under
	// concurrent identification runs.
	query := `
		INSERT INTO recall_patients (
			id, organization_id, campaign_id, patient_id, reason, due_date,
			priority, status, contact_attempts, source, notes,
			created_at, updated_at
		)
		SELECT $1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13
		WHERE NOT EXISTS (
			SELECT 1 FROM recall_patients
			WHERE campaign_id = $3 AND patient_id = $4
			AND status IN ($14, $15, $16)
		)
	`
	rp.ID = uuid.New()
	rp.CreatedAt = time.Now()
	rp.UpdatedAt = rp.CreatedAt

	result, err := r.db.ExecContext(ctx, query,
		rp.ID,
		rp.OrganizationID,
		rp.CampaignID,
		rp.PatientID,
		rp.Reason,
		rp.DueDate,
		rp.Priority,
		rp.Status,
		rp.ContactAttempts,
		rp.Source,
		rp.Notes,
		rp.CreatedAt,
		rp.UpdatedAt,
		model.RecallStatusPending,
		model.RecallStatusContacted,
		model.RecallStatusScheduled,
	)
	if err != nil {
		return fmt.Errorf("failed to enroll recall patient: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return ErrAlreadyEnrolled
	}
	return nil
}

func (r *recallRepository) GetRecallPatient(ctx context.Context, orgID, id uuid.UUID) (*model.RecallPatient, error) {
	query := `
		SELECT ` + recallPatientColumns + `
		FROM recall_patients
		WHERE id = $1 AND organization_id = $2
	`
	var rp model.RecallPatient
	err := r.db.GetContext(ctx, &rp, query, id, orgID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NewNotFound("recall patient", err)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get recall patient: %w", err)
	}
	return &rp, nil
}

func (r *recallRepository) ListDueOutreach(ctx context.Context, orgID, campaignID uuid.UUID, now time.Time, limit int) ([]*model.OutreachCandidate, error) {
	query := `
		SELECT rp.id, rp.organization_id, rp.campaign_id, rp.patient_id,
			   rp.reason, rp.due_date, rp.priority, rp.status,
			   rp.last_contact_at, rp.next_contact_at, rp.contact_attempts,
			   rp.appointment_id, rp.source, rp.notes,
			   rp.created_at, rp.updated_at,
			   c.name AS campaign_name,
			   c.frequency_days, c.max_attempts,
			   p.first_name || ' ' || p.last_name AS patient_name,
			   p.phone AS patient_phone,
			   p.email AS patient_email
		FROM recall_patients rp
		JOIN recall_campaigns c ON c.id = rp.campaign_id
		JOIN patients p ON p.id = rp.patient_id
		WHERE rp.organization_id = $1
		AND rp.campaign_id = $2
		AND rp.status IN ($3, $4)
		AND rp.contact_attempts < c.max_attempts
		AND (rp.next_contact_at IS NULL OR rp.next_contact_at <= $5)
		ORDER BY rp.due_date ASC, rp.created_at ASC
		LIMIT $6
	`
	var candidates []*model.OutreachCandidate
	err := r.db.SelectContext(ctx, &candidates, query,
		orgID,
		campaignID,
		model.RecallStatusPending,
		model.RecallStatusContacted,
		now,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list due outreach: %w", err)
	}
	return candidates, nil
}

func (r *recallRepository) RecordContact(ctx context.Context, contact *model.RecallContactLog, rp *model.RecallPatient) error {
	return r.WithTx(ctx, func(tx *sqlx.Tx) error {
		contact.ID = uuid.New()
		contact.CreatedAt = time.Now()

		_, err := tx.ExecContext(ctx, `
			INSERT INTO recall_contact_logs (
				id, recall_patient_id, channel, message, sent_at,
				delivery_status, external_id, created_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		`,
			contact.ID,
			contact.RecallPatientID,
			contact.Channel,
			contact.Message,
			contact.SentAt,
			contact.DeliveryStatus,
			contact.ExternalID,
			contact.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to create contact log: %w", err)
		}

		rp.UpdatedAt = time.Now()
		_, err = tx.ExecContext(ctx, `
			UPDATE recall_patients
			SET status = $1, last_contact_at = $2, next_contact_at = $3,
				contact_attempts = $4, updated_at = $5
			WHERE id = $6 AND organization_id = $7
		`,
			rp.Status,
			rp.LastContactAt,
			rp.NextContactAt,
			rp.ContactAttempts,
			rp.UpdatedAt,
			rp.ID,
			rp.OrganizationID,
		)
		if err != nil {
			return fmt.Errorf("failed to advance recall patient cadence: %w", err)
		}
		return nil
	})
}

func (r *recallRepository) UpdateRecallPatient(ctx context.Context, rp *model.RecallPatient) error {
	query := `
		UPDATE recall_patients
		SET status = $1, notes = $2, appointment_id = $3,
			last_contact_at = $4, next_contact_at = $5,
			contact_attempts = $6, updated_at = $7
		WHERE id = $8 AND organization_id = $9
	`
	rp.UpdatedAt = time.Now()

	result, err := r.db.ExecContext(ctx, query,
		rp.Status,
		rp.Notes,
		rp.AppointmentID,
		rp.LastContactAt,
		rp.NextContactAt,
		rp.ContactAttempts,
		rp.UpdatedAt,
		rp.ID,
		rp.OrganizationID,
	)
	if err != nil {
		return fmt.Errorf("failed to update recall patient: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return apperrors.NewNotFound("recall patient", nil)
	}
	return nil
}

func (r *recallRepository) StampContactResponse(ctx context.Context, orgID, recallPatientID uuid.UUID, response, notes string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE recall_contact_logs
		SET response = $1, response_notes = $2
		WHERE id = (
			SELECT l.id
			FROM recall_contact_logs l
			JOIN recall_patients rp ON rp.id = l.recall_patient_id
			WHERE l.recall_patient_id = $3 AND rp.organization_id = $4
			ORDER BY l.sent_at DESC
			LIMIT 1
		)
	`, response, notes, recallPatientID, orgID)
	if err != nil {
		return fmt.Errorf("failed to stamp contact response: %w", err)
	}
	return nil
}

func (r *recallRepository) Dashboard(ctx context.Context, orgID uuid.UUID, now time.Time) (*model.RecallDashboard, error) {
	dashboard := &model.RecallDashboard{
		StatusCounts: make(map[model.RecallStatus]int),
	}

	statusRows := []struct {
		Status model.RecallStatus `db:"status"`
		Count  int                `db:"count"`
	}{}
	err := r.db.SelectContext(ctx, &statusRows, `
		SELECT status, COUNT(*) AS count
		FROM recall_patients
		WHERE organization_id = $1
		GROUP BY status
	`, orgID)
	if err != nil {
		return nil, fmt.Errorf("failed to count recall statuses: %w", err)
	}
	for _, row := range statusRows {
		dashboard.StatusCounts[row.Status] = row.Count
	}

	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	dayEnd := dayStart.AddDate(0, 0, 1)

	err = r.db.GetContext(ctx, &dashboard.DueToday, `
		SELECT COUNT(*)
		FROM recall_patients
		WHERE organization_id = $1
		AND status IN ($2, $3)
		AND due_date >= $4 AND due_date < $5
	`, orgID, model.RecallStatusPending, model.RecallStatusContacted, dayStart, dayEnd)
	if err != nil {
		return nil, fmt.Errorf("failed to count due-today recalls: %w", err)
	}

	err = r.db.GetContext(ctx, &dashboard.Overdue, `
		SELECT COUNT(*)
		FROM recall_patients
		WHERE organization_id = $1
		AND status IN ($2, $3)
		AND due_date < $4
	`, orgID, model.RecallStatusPending, model.RecallStatusContacted, dayStart)
	if err != nil {
		return nil, fmt.Errorf("failed to count overdue recalls: %w", err)
	}

	err = r.db.SelectContext(ctx, &dashboard.Campaigns, `
		SELECT c.id AS campaign_id, c.name,
			   COUNT(rp.id) AS total,
			   COUNT(rp.id) FILTER (WHERE rp.status = $2) AS scheduled,
			   COUNT(rp.id) FILTER (WHERE rp.status = $3) AS completed
		FROM recall_campaigns c
		LEFT JOIN recall_patients rp ON rp.campaign_id = c.id
		WHERE c.organization_id = $1
		GROUP BY c.id, c.name
		ORDER BY c.created_at ASC
	`, orgID, model.RecallStatusScheduled, model.RecallStatusCompleted)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate campaign stats: %w", err)
	}

	for _, c := range dashboard.Campaigns {
		c.ConversionRate = conversionRate(c.Scheduled+c.Completed, c.Total)
	}

	return dashboard, nil
}

// conversionRate reports converted/total as a percentage rounded to one
// decimal. A zero denominator reports 0, never NaN.
func conversionRate(converted, total int) float64 {
	if total == 0 {
		return 0
	}
	return math.Round(float64(converted)/float64(total)*1000) / 10
}

func (r *recallRepository) PatientHistory(ctx context.Context, orgID, patientID uuid.UUID) (*model.RecallHistory, error) {
	history := &model.RecallHistory{}

	err := r.db.SelectContext(ctx, &history.Enrollments, `
		SELECT `+recallPatientColumns+`
		FROM recall_patients
		WHERE organization_id = $1 AND patient_id = $2
		ORDER BY created_at DESC
	`, orgID, patientID)
	if err != nil {
		return nil, fmt.Errorf("failed to list recall enrollments: %w", err)
	}

	err = r.db.SelectContext(ctx, &history.Contacts, `
		SELECT l.id, l.recall_patient_id, l.channel, l.message, l.sent_at,
			   l.delivery_status, l.external_id, l.response, l.response_notes,
			   l.created_at
		FROM recall_contact_logs l
		JOIN recall_patients rp ON rp.id = l.recall_patient_id
		WHERE rp.organization_id = $1 AND rp.patient_id = $2
		ORDER BY l.sent_at DESC
	`, orgID, patientID)
	if err != nil {
		return nil, fmt.Errorf("failed to list contact history: %w", err)
	}

	return history, nil
}
