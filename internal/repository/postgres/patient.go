package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	apperrors "github.com/medtrackr/clinic-api/pkg/errors"

	"github.com/medtrackr/clinic-api/internal/model"
	"github.com/medtrackr/clinic-api/internal/repository"
)

type patientRepository struct {
	db *sqlx.DB
}

func NewPatientRepository(db *sqlx.DB) repository.PatientRepository {
	return &patientRepository{db: db}
}

func (r *patientRepository) Create(ctx context.Context, patient *model.Patient) error {
	query := `
		INSERT INTO patients (id, name, email, password_hash, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	patient.CreatedAt = time.Now()
	patient.UpdatedAt = time.Now()

	_, err := r.db.ExecContext(ctx, query,
		patient.ID,
		patient.Name,
		patient.Email,
		patient.PasswordHash,
		patient.Status,
		patient.CreatedAt,
		patient.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create patient: %w", err)
	}
	return nil
}

func (r *patientRepository) Get(ctx context.Context, id uuid.UUID) (*model.Patient, error) {
	query := `SELECT * FROM patients WHERE id = $1`
	var patient model.Patient
	err := r.db.GetContext(ctx, &patient, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NotFound("patient", err)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get patient: %w", err)
	}
	return &patient, nil
}

func (r *patientRepository) GetByEmail(ctx context.Context, email string) (*model.Patient, error) {
	query := `SELECT * FROM patients WHERE email = $1`
	var patient model.Patient
	err := r.db.GetContext(ctx, &patient, query, email)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NotFound("patient", err)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get patient by email: %w", err)
	}
	return &patient, nil
}

func (r *patientRepository) Update(ctx context.Context, patient *model.Patient) error {
	query := `
		UPDATE patients
		SET name = $1, email = $2, password_hash = $3, status = $4, updated_at = $5
		WHERE id = $6
	`
	patient.UpdatedAt = time.Now()
	_, err := r.db.ExecContext(ctx, query,
		patient.Name,
		patient.Email,
		patient.PasswordHash,
		patient.Status,
		patient.UpdatedAt,
		patient.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update patient: %w", err)
	}
	return nil
}

func (r *patientRepository) List(ctx context.Context, filters *model.PatientFilters) ([]*model.Patient, error) {
	query := `SELECT * FROM patients`
	args := []interface{}{}
	if filters != nil && filters.Status != "" {
		query += ` WHERE status = $1`
		args = append(args, filters.Status)
	}
	query += ` ORDER BY created_at`

	var patients []*model.Patient
	if err := r.db.SelectContext(ctx, &patients, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list patients: %w", err)
	}
	return patients, nil
}

func (r *patientRepository) ListWithPrescriptions(ctx context.Context) ([]*model.Patient, error) {
	query := `
		SELECT p.* FROM patients p
		WHERE EXISTS (SELECT 1 FROM prescriptions pr WHERE pr.patient_id = p.id)
		ORDER BY p.created_at
	`
	var patients []*model.Patient
	if err := r.db.SelectContext(ctx, &patients, query); err != nil {
		return nil, fmt.Errorf("failed to list patients with prescriptions: %w", err)
	}
	return patients, nil
}
