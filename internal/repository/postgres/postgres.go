package postgres

import (
	"github.com/jmoiron/sqlx"

	"github.com/careloop/outreach-api/internal/repository"
)

type waitlistRepository struct {
	BaseRepository
}

type recallRepository struct {
	BaseRepository
}

type appointmentRepository struct {
	db *sqlx.DB
}

type patientRepository struct {
	db *sqlx.DB
}

type auditRepository struct {
	db *sqlx.DB
}

func NewWaitlistRepository(db *sqlx.DB) repository.WaitlistRepository {
	return &waitlistRepository{BaseRepository: NewBaseRepository(db)}
}

func NewRecallRepository(db *sqlx.DB) repository.RecallRepository {
	return &recallRepository{BaseRepository: NewBaseRepository(db)}
}

func NewAppointmentRepository(db *sqlx.DB) repository.AppointmentRepository {
	return &appointmentRepository{db: db}
}

func NewPatientRepository(db *sqlx.DB) repository.PatientRepository {
	return &patientRepository{db: db}
}

func NewAuditRepository(db *sqlx.DB) repository.AuditRepository {
	return &auditRepository{db: db}
}
