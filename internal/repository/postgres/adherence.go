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

type adherenceRepository struct {
	db *sqlx.DB

	// hasSchedule is resolved once at construction. Deployments migrated
	// before the scheduled_date/scheduled_time columns were added fall back
	// to created_at windowing; the probe replaces matching on driver error
	// text at call time.
	hasSchedule bool
}

func NewAdherenceRepository(db *sqlx.DB) (repository.AdherenceRepository, error) {
	r := &adherenceRepository{db: db}

	var count int
	err := db.Get(&count, `
		SELECT COUNT(*) FROM information_schema.columns
		WHERE table_name = 'adherence_records'
		  AND column_name IN ('scheduled_date', 'scheduled_time')
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to probe adherence schema: %w", err)
	}
	r.hasSchedule = count == 2

	return r, nil
}

func (r *adherenceRepository) Insert(ctx context.Context, record *model.AdherenceRecord) (bool, error) {
	record.CreatedAt = time.Now()
	record.UpdatedAt = record.CreatedAt

	if !r.hasSchedule {
		// Legacy schema has no dose-tuple constraint; a plain insert is the
		// best available behavior.
		_, err := r.db.ExecContext(ctx, `
			INSERT INTO adherence_records
				(id, patient_id, medicine_id, prescription_id, medication, status,
				 missed_doses, reminder_sent, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		`,
			record.ID, record.PatientID, record.MedicineID, record.PrescriptionID,
			record.Medication, record.Status, record.MissedDoses, record.ReminderSent,
			record.CreatedAt, record.UpdatedAt,
		)
		if err != nil {
			return false, fmt.Errorf("failed to insert adherence record: %w", err)
		}
		return true, nil
	}

	res, err := r.db.ExecContext(ctx, `
		INSERT INTO adherence_records
			(id, patient_id, medicine_id, prescription_id, medication,
			 scheduled_date, scheduled_time, status, missed_doses, reminder_sent,
			 created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (patient_id, medicine_id, scheduled_date, scheduled_time) DO NOTHING
	`,
		record.ID, record.PatientID, record.MedicineID, record.PrescriptionID,
		record.Medication, record.ScheduledDate, record.ScheduledTime,
		record.Status, record.MissedDoses, record.ReminderSent,
		record.CreatedAt, record.UpdatedAt,
	)
	if err != nil {
		return false, fmt.Errorf("failed to insert adherence record: %w", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read insert result: %w", err)
	}
	return rows == 1, nil
}

func (r *adherenceRepository) Get(ctx context.Context, id uuid.UUID) (*model.AdherenceRecord, error) {
	var record model.AdherenceRecord
	err := r.db.GetContext(ctx, &record, `SELECT * FROM adherence_records WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NotFound("adherence record", err)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get adherence record: %w", err)
	}
	return &record, nil
}

func (r *adherenceRepository) FindForDose(ctx context.Context, patientID uuid.UUID, medicineID *uuid.UUID, date string, period model.Period) (*model.AdherenceRecord, error) {
	if !r.hasSchedule || medicineID == nil {
		return nil, nil
	}

	var record model.AdherenceRecord
	err := r.db.GetContext(ctx, &record, `
		SELECT * FROM adherence_records
		WHERE patient_id = $1 AND medicine_id = $2 AND scheduled_date = $3 AND scheduled_time = $4
	`, patientID, medicineID, date, period)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find adherence record for dose: %w", err)
	}
	return &record, nil
}

func (r *adherenceRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status model.AdherenceStatus, incrementMissed bool) (*model.AdherenceRecord, error) {
	var record model.AdherenceRecord
	err := r.db.GetContext(ctx, &record, `
		UPDATE adherence_records
		SET status = $1,
		    missed_doses = missed_doses + CASE WHEN $2 THEN 1 ELSE 0 END,
		    updated_at = $3
		WHERE id = $4
		RETURNING *
	`, status, incrementMissed, time.Now(), id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NotFound("adherence record", err)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update adherence record: %w", err)
	}
	return &record, nil
}

func (r *adherenceRepository) ListForDate(ctx context.Context, patientID uuid.UUID, date string) ([]*model.AdherenceRecord, error) {
	var records []*model.AdherenceRecord

	if !r.hasSchedule {
		day, err := time.Parse("2006-01-02", date)
		if err != nil {
			return nil, fmt.Errorf("invalid date %q: %w", date, err)
		}
		err = r.db.SelectContext(ctx, &records, `
			SELECT * FROM adherence_records
			WHERE patient_id = $1 AND created_at >= $2 AND created_at < $3
			ORDER BY created_at
		`, patientID, day, day.AddDate(0, 0, 1))
		if err != nil {
			return nil, fmt.Errorf("failed to list adherence records: %w", err)
		}
		return records, nil
	}

	err := r.db.SelectContext(ctx, &records, `
		SELECT * FROM adherence_records
		WHERE patient_id = $1 AND scheduled_date = $2
		ORDER BY created_at
	`, patientID, date)
	if err != nil {
		return nil, fmt.Errorf("failed to list adherence records: %w", err)
	}
	return records, nil
}

func (r *adherenceRepository) ListBetween(ctx context.Context, patientID uuid.UUID, from, to time.Time) ([]*model.AdherenceRecord, error) {
	var records []*model.AdherenceRecord
	err := r.db.SelectContext(ctx, &records, `
		SELECT * FROM adherence_records
		WHERE patient_id = $1 AND created_at >= $2 AND created_at <= $3
		ORDER BY created_at DESC
	`, patientID, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to list adherence history: %w", err)
	}
	return records, nil
}

func (r *adherenceRepository) MarkMissedBefore(ctx context.Context, patientID *uuid.UUID, date string, periods []model.Period) ([]uuid.UUID, error) {
	if len(periods) == 0 {
		return nil, nil
	}
	if !r.hasSchedule {
		// Without per-dose periods there is nothing safe to sweep.
		return nil, nil
	}

	query := `
		UPDATE adherence_records
		SET status = ?, missed_doses = missed_doses + 1, updated_at = ?
		WHERE status = ? AND scheduled_date = ? AND scheduled_time IN (?)
	`
	args := []interface{}{model.AdherenceMissed, time.Now(), model.AdherencePending, date, periods}
	if patientID != nil {
		query += ` AND patient_id = ?`
		args = append(args, *patientID)
	}
	query += ` RETURNING patient_id`

	query, inArgs, err := sqlx.In(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to build missed-dose sweep: %w", err)
	}

	var patientIDs []uuid.UUID
	err = r.db.SelectContext(ctx, &patientIDs, r.db.Rebind(query), inArgs...)
	if err != nil {
		return nil, fmt.Errorf("failed to mark missed doses: %w", err)
	}
	return patientIDs, nil
}
