package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/careloop/outreach-api/internal/model"
	apperrors "github.com/careloop/outreach-api/pkg/errors"
)

func (r *appointmentRepository) Get(ctx context.Context, orgID, id uuid.UUID) (*model.Appointment, error) {
	query := `
		SELECT id, organization_id, patient_id, provider_id, location_id,
			   appointment_type_id, start_time, end_time, status, notes,
			   cancel_reason, created_at, updated_at
		FROM appointments
		WHERE id = $1 AND organization_id = $2
	`
	var appointment model.Appointment
	err := r.db.GetContext(ctx, &appointment, query, id, orgID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NewNotFound("appointment", err)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get appointment: %w", err)
	}
	return &appointment, nil
}
