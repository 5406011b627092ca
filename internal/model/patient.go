package model

import (
	"time"

	"github.com/google/uuid"
)

type PatientStatus string

const (
	PatientStatusActive   PatientStatus = "active"
	PatientStatusInactive PatientStatus = "inactive"
)

// Patient is the slice of the patient store the targeting engine queries.
type Patient struct {
	Base
	OrganizationID uuid.UUID     `db:"organization_id" json:"organization_id"`
	FirstName      string        `db:"first_name" json:"first_name"`
	LastName       string        `db:"last_name" json:"last_name"`
	Email          string        `db:"email" json:"email"`
	Phone          string        `db:"phone" json:"phone"`
	DateOfBirth    time.Time     `db:"date_of_birth" json:"date_of_birth"`
	RiskLevel      string        `db:"risk_level" json:"risk_level,omitempty"`
	Status         PatientStatus `db:"status" json:"status"`
}

func (p *Patient) FullName() string {
	return p.FirstName + " " + p.LastName
}
