package prescription

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	apperrors "github.com/medtrackr/clinic-api/pkg/errors"

	"github.com/medtrackr/clinic-api/internal/model"
	"github.com/medtrackr/clinic-api/internal/repository"
)

type Service struct {
	repo     repository.PrescriptionRepository
	patients repository.PatientRepository
}

func NewService(repo repository.PrescriptionRepository, patients repository.PatientRepository) *Service {
	return &Service{repo: repo, patients: patients}
}

// CreatePrescription issues a prescription. Prescriptions are immutable
// after this point; there is no update or delete path.
func (s *Service) CreatePrescription(ctx context.Context, doctorID uuid.UUID, req *model.CreatePrescriptionRequest) (*model.Prescription, error) {
	patientID, err := uuid.Parse(req.PatientID)
	if err != nil {
		return nil, apperrors.Validation("invalid patient_id")
	}
	if _, err := s.patients.Get(ctx, patientID); err != nil {
		return nil, err
	}

	prescription := &model.Prescription{
		Base:      model.Base{ID: uuid.New()},
		PatientID: patientID,
		DoctorID:  doctorID,
		IssuedAt:  time.Now(),
		Medicines: make([]model.Medicine, 0, len(req.Medicines)),
	}

	for _, med := range req.Medicines {
		if !med.Morning && !med.Afternoon && !med.Evening {
			return nil, apperrors.Validation(fmt.Sprintf("medicine %q needs at least one time period", med.Name))
		}
		prescription.Medicines = append(prescription.Medicines, model.Medicine{
			ID:           uuid.New(),
			Name:         med.Name,
			Dosage:       med.Dosage,
			Instructions: med.Instructions,
			Duration:     med.Duration,
			Morning:      med.Morning,
			Afternoon:    med.Afternoon,
			Evening:      med.Evening,
		})
	}

	if err := s.repo.Create(ctx, prescription); err != nil {
		return nil, fmt.Errorf("failed to create prescription: %w", err)
	}
	return prescription, nil
}

func (s *Service) ListForPatient(ctx context.Context, patientID uuid.UUID) ([]*model.Prescription, error) {
	return s.repo.ListForPatient(ctx, patientID)
}
