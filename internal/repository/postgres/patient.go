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

func (r *patientRepository) Get(ctx context.Context, orgID, id uuid.UUID) (*model.Patient, error) {
	query := `
		SELECT id, organization_id, first_name, last_name, email, phone,
			   date_of_birth, risk_level, status, created_at, updated_at
		FROM patients
		WHERE id = $1 AND organization_id = $2
	`
	var patient model.Patient
	err := r.db.GetContext(ctx, &patient, query, id, orgID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NewNotFound("patient", err)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get patient: %w", err)
	}
	return &patient, nil
}
