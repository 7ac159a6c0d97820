package schedule

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/medtrackr/clinic-api/internal/model"
	"github.com/medtrackr/clinic-api/internal/repository"
)

// Service derives a patient's expected daily doses from their prescriptions.
// It is a pure read over prescription data and never looks at adherence
// records; callers compare its output against the records themselves.
type Service struct {
	prescriptions repository.PrescriptionRepository
}

func NewService(prescriptions repository.PrescriptionRepository) *Service {
	return &Service{prescriptions: prescriptions}
}

// DeriveDaily returns one entry per (medicine, period) with the medicine's
// timing flag set, ordered by prescription issue order, medicine position,
// then period. A medicine due morning and evening yields two entries.
func (s *Service) DeriveDaily(ctx context.Context, patientID uuid.UUID) ([]model.ScheduledDose, error) {
	prescriptions, err := s.prescriptions.ListForPatient(ctx, patientID)
	if err != nil {
		return nil, fmt.Errorf("failed to load prescriptions: %w", err)
	}
	return Derive(prescriptions), nil
}

// DeriveForPeriod filters DeriveDaily to doses due in one period.
func (s *Service) DeriveForPeriod(ctx context.Context, patientID uuid.UUID, period model.Period) ([]model.ScheduledDose, error) {
	doses, err := s.DeriveDaily(ctx, patientID)
	if err != nil {
		return nil, err
	}
	out := doses[:0]
	for _, d := range doses {
		if d.ScheduledTime == period {
			out = append(out, d)
		}
	}
	return out, nil
}

// Derive computes the dose list from already-loaded prescriptions.
func Derive(prescriptions []*model.Prescription) []model.ScheduledDose {
	var doses []model.ScheduledDose
	for _, prescription := range prescriptions {
		for i := range prescription.Medicines {
			med := &prescription.Medicines[i]
			for _, period := range model.Periods() {
				if !med.DueAt(period) {
					continue
				}
				doses = append(doses, model.ScheduledDose{
					MedicineID:     med.ID,
					PrescriptionID: prescription.ID,
					MedicineName:   med.Name,
					Dosage:         med.Dosage,
					Instructions:   med.Instructions,
					ScheduledTime:  period,
				})
			}
		}
	}
	return doses
}
