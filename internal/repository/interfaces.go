package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/medtrackr/clinic-api/internal/model"
)

// All repository interfaces in one file
type (
	PatientRepository interface {
		Create(ctx context.Context, patient *model.Patient) error
		Get(ctx context.Context, id uuid.UUID) (*model.Patient, error)
		GetByEmail(ctx context.Context, email string) (*model.Patient, error)
		Update(ctx context.Context, patient *model.Patient) error
		List(ctx context.Context, filters *model.PatientFilters) ([]*model.Patient, error)
		// ListWithPrescriptions returns every patient that has at least one
		// prescription on file; the dispatcher iterates over this set.
		ListWithPrescriptions(ctx context.Context) ([]*model.Patient, error)
	}

	PrescriptionRepository interface {
		// Create writes the prescription and its medicines in one transaction.
		Create(ctx context.Context, prescription *model.Prescription) error
		Get(ctx context.Context, id uuid.UUID) (*model.Prescription, error)
		ListForPatient(ctx context.Context, patientID uuid.UUID) ([]*model.Prescription, error)
	}

	AdherenceRepository interface {
		// Insert is an atomic insert-or-ignore against the
		// (patient, medicine, date, period) unique constraint. It reports
		// whether a row was actually inserted; false means a record for the
		// dose already existed and nothing was written.
		Insert(ctx context.Context, record *model.AdherenceRecord) (bool, error)
		Get(ctx context.Context, id uuid.UUID) (*model.AdherenceRecord, error)
		// FindForDose resolves the existing record for a dose tuple, if any.
		FindForDose(ctx context.Context, patientID uuid.UUID, medicineID *uuid.UUID, date string, period model.Period) (*model.AdherenceRecord, error)
		// UpdateStatus sets the status and, when incrementMissed is true,
		// bumps missed_doses in the same statement.
		UpdateStatus(ctx context.Context, id uuid.UUID, status model.AdherenceStatus, incrementMissed bool) (*model.AdherenceRecord, error)
		ListForDate(ctx context.Context, patientID uuid.UUID, date string) ([]*model.AdherenceRecord, error)
		ListBetween(ctx context.Context, patientID uuid.UUID, from, to time.Time) ([]*model.AdherenceRecord, error)
		// MarkMissedBefore flips today's Pending rows scheduled in any of the
		// given periods to Missed, incrementing missed_doses, in a single
		// statement. A nil patientID sweeps all patients. It returns the
		// affected patient IDs (with multiplicity one per flipped row).
		MarkMissedBefore(ctx context.Context, patientID *uuid.UUID, date string, periods []model.Period) ([]uuid.UUID, error)
	}
)
