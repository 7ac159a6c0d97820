package patient

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/medtrackr/clinic-api/internal/email"
	"github.com/medtrackr/clinic-api/internal/model"
	"github.com/medtrackr/clinic-api/internal/repository"
	"github.com/medtrackr/clinic-api/pkg/logger"
)

type Service struct {
	repo     repository.PatientRepository
	emailSvc email.Service
	logger   *logger.Logger
}

func NewService(repo repository.PatientRepository, emailSvc email.Service, log *logger.Logger) *Service {
	return &Service{repo: repo, emailSvc: emailSvc, logger: log}
}

// CreatePatient registers a patient on behalf of a doctor. The account stays
// pending until the patient sets a password.
func (s *Service) CreatePatient(ctx context.Context, req *model.CreatePatientRequest) (*model.Patient, error) {
	patient := &model.Patient{
		Base:   model.Base{ID: uuid.New()},
		Name:   req.Name,
		Email:  req.Email,
		Status: model.PatientStatusPending,
	}

	if err := s.repo.Create(ctx, patient); err != nil {
		return nil, fmt.Errorf("failed to create patient: %w", err)
	}

	// Welcome mail is best-effort.
	if err := s.emailSvc.SendWelcome(ctx, patient.Email, patient.Name); err != nil {
		s.logger.Warn().Err(err).
			Str("patient_id", patient.ID.String()).
			Msg("failed to send welcome email")
	}

	return patient, nil
}

func (s *Service) GetPatient(ctx context.Context, id uuid.UUID) (*model.Patient, error) {
	return s.repo.Get(ctx, id)
}

func (s *Service) ListPatients(ctx context.Context, filters *model.PatientFilters) ([]*model.Patient, error) {
	return s.repo.List(ctx, filters)
}
