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

type prescriptionRepository struct {
	db *sqlx.DB
}

func NewPrescriptionRepository(db *sqlx.DB) repository.PrescriptionRepository {
	return &prescriptionRepository{db: db}
}

func (r *prescriptionRepository) Create(ctx context.Context, prescription *model.Prescription) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	prescription.CreatedAt = time.Now()
	prescription.UpdatedAt = prescription.CreatedAt
	if prescription.IssuedAt.IsZero() {
		prescription.IssuedAt = prescription.CreatedAt
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO prescriptions (id, patient_id, doctor_id, issued_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`,
		prescription.ID,
		prescription.PatientID,
		prescription.DoctorID,
		prescription.IssuedAt,
		prescription.CreatedAt,
		prescription.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create prescription: %w", err)
	}

	for i := range prescription.Medicines {
		med := &prescription.Medicines[i]
		med.PrescriptionID = prescription.ID
		med.Position = i
		_, err = tx.ExecContext(ctx, `
			INSERT INTO medicines (id, prescription_id, name, dosage, instructions, duration,
				morning, afternoon, evening, position)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		`,
			med.ID,
			med.PrescriptionID,
			med.Name,
			med.Dosage,
			med.Instructions,
			med.Duration,
			med.Morning,
			med.Afternoon,
			med.Evening,
			med.Position,
		)
		if err != nil {
			return fmt.Errorf("failed to create medicine %q: %w", med.Name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit prescription: %w", err)
	}
	return nil
}

func (r *prescriptionRepository) Get(ctx context.Context, id uuid.UUID) (*model.Prescription, error) {
	var prescription model.Prescription
	err := r.db.GetContext(ctx, &prescription, `SELECT * FROM prescriptions WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NotFound("prescription", err)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get prescription: %w", err)
	}

	if err := r.loadMedicines(ctx, []*model.Prescription{&prescription}); err != nil {
		return nil, err
	}
	return &prescription, nil
}

func (r *prescriptionRepository) ListForPatient(ctx context.Context, patientID uuid.UUID) ([]*model.Prescription, error) {
	var prescriptions []*model.Prescription
	err := r.db.SelectContext(ctx, &prescriptions, `
		SELECT * FROM prescriptions WHERE patient_id = $1 ORDER BY issued_at, id
	`, patientID)
	if err != nil {
		return nil, fmt.Errorf("failed to list prescriptions: %w", err)
	}
	if len(prescriptions) == 0 {
		return prescriptions, nil
	}

	if err := r.loadMedicines(ctx, prescriptions); err != nil {
		return nil, err
	}
	return prescriptions, nil
}

func (r *prescriptionRepository) loadMedicines(ctx context.Context, prescriptions []*model.Prescription) error {
	ids := make([]uuid.UUID, len(prescriptions))
	byID := make(map[uuid.UUID]*model.Prescription, len(prescriptions))
	for i, p := range prescriptions {
		ids[i] = p.ID
		byID[p.ID] = p
	}

	query, args, err := sqlx.In(`
		SELECT * FROM medicines WHERE prescription_id IN (?) ORDER BY prescription_id, position
	`, ids)
	if err != nil {
		return fmt.Errorf("failed to build medicines query: %w", err)
	}

	var medicines []model.Medicine
	if err := r.db.SelectContext(ctx, &medicines, r.db.Rebind(query), args...); err != nil {
		return fmt.Errorf("failed to load medicines: %w", err)
	}

	for _, med := range medicines {
		if p, ok := byID[med.PrescriptionID]; ok {
			p.Medicines = append(p.Medicines, med)
		}
	}
	return nil
}
