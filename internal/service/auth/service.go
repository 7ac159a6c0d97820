package auth

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"

	apperrors "github.com/medtrackr/clinic-api/pkg/errors"

	"github.com/medtrackr/clinic-api/internal/model"
	"github.com/medtrackr/clinic-api/internal/repository"
	"github.com/medtrackr/clinic-api/pkg/auth"
)

var ErrInvalidCredentials = errors.New("invalid credentials")

const bcryptCost = 12

// Service authenticates patients. Doctor tokens are issued by the practice's
// identity service with the shared signing secret; this service only
// verifies them.
type Service struct {
	patients repository.PatientRepository
	jwtSvc   auth.JWTService
}

func NewService(patients repository.PatientRepository, jwtSvc auth.JWTService) *Service {
	return &Service{patients: patients, jwtSvc: jwtSvc}
}

func (s *Service) Signin(ctx context.Context, req *model.SigninRequest) (*model.TokenResponse, error) {
	patient, err := s.patients.GetByEmail(ctx, req.Email)
	if err != nil {
		return nil, apperrors.Unauthorized("invalid credentials")
	}
	if patient.PasswordHash == nil || patient.Status != model.PatientStatusActive {
		return nil, apperrors.Unauthorized("account not activated")
	}

	if err := bcrypt.CompareHashAndPassword([]byte(*patient.PasswordHash), []byte(req.Password)); err != nil {
		return nil, apperrors.Unauthorized("invalid credentials")
	}

	token, err := s.jwtSvc.GenerateToken(patient.ID, model.RolePatient)
	if err != nil {
		return nil, fmt.Errorf("failed to generate token: %w", err)
	}

	return &model.TokenResponse{
		Token: token,
		Role:  model.RolePatient,
		ID:    patient.ID.String(),
	}, nil
}

// SetPassword activates a pending patient account created by a doctor.
func (s *Service) SetPassword(ctx context.Context, req *model.SetPasswordRequest) error {
	patient, err := s.patients.GetByEmail(ctx, req.Email)
	if err != nil {
		return err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcryptCost)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}

	hashStr := string(hash)
	patient.PasswordHash = &hashStr
	patient.Status = model.PatientStatusActive

	if err := s.patients.Update(ctx, patient); err != nil {
		return fmt.Errorf("failed to activate patient: %w", err)
	}
	return nil
}

func (s *Service) ValidateToken(ctx context.Context, token string) (*model.TokenClaims, error) {
	claims, err := s.jwtSvc.ValidateToken(token)
	if err != nil {
		return nil, apperrors.Unauthorized("invalid token")
	}
	return claims, nil
}
