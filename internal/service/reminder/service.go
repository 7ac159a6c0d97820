package reminder

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/medtrackr/clinic-api/internal/email"
	"github.com/medtrackr/clinic-api/internal/model"
	"github.com/medtrackr/clinic-api/internal/repository"
	"github.com/medtrackr/clinic-api/internal/service/schedule"
	"github.com/medtrackr/clinic-api/pkg/logger"
	"github.com/medtrackr/clinic-api/pkg/metrics"
)

// Service dispatches period reminders: for every patient with doses due in
// the period it sends one notification and materializes Pending adherence
// records, exactly one per dose. Dispatch is idempotent at the record level;
// re-running it for the same day inserts nothing new.
type Service struct {
	patients  repository.PatientRepository
	adherence repository.AdherenceRepository
	schedule  *schedule.Service
	email     email.Service
	clock     *model.Clock
	logger    *logger.Logger
	metrics   *metrics.Metrics
}

func NewService(
	patients repository.PatientRepository,
	adherence repository.AdherenceRepository,
	scheduleSvc *schedule.Service,
	emailSvc email.Service,
	clock *model.Clock,
	log *logger.Logger,
	m *metrics.Metrics,
) *Service {
	return &Service{
		patients:  patients,
		adherence: adherence,
		schedule:  scheduleSvc,
		email:     emailSvc,
		clock:     clock,
		logger:    log,
		metrics:   m,
	}
}

// Dispatch processes one period for all patients and returns how many
// patients were successfully notified. Per-patient and per-medicine failures
// are logged and isolated; they never abort the batch.
func (s *Service) Dispatch(ctx context.Context, period model.Period) (int, error) {
	timer := prometheus.NewTimer(s.metrics.DispatchDuration)
	defer timer.ObserveDuration()

	patients, err := s.patients.ListWithPrescriptions(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list patients for dispatch: %w", err)
	}

	notified := 0
	for _, patient := range patients {
		sent, err := s.dispatchPatient(ctx, patient, period)
		if err != nil {
			s.logger.Error().Err(err).
				Str("patient_id", patient.ID.String()).
				Str("period", string(period)).
				Msg("reminder dispatch failed for patient")
			continue
		}
		if sent {
			notified++
		}
	}

	s.logger.Info().
		Str("period", string(period)).
		Int("patients_notified", notified).
		Msg("reminder dispatch complete")
	return notified, nil
}

func (s *Service) dispatchPatient(ctx context.Context, patient *model.Patient, period model.Period) (bool, error) {
	doses, err := s.schedule.DeriveForPeriod(ctx, patient.ID, period)
	if err != nil {
		return false, err
	}
	if len(doses) == 0 {
		return false, nil
	}

	// One message per patient per period, listing every due medicine.
	// Delivery is best-effort: a failed send still materializes the Pending
	// records so the dashboard and the reconciler see the doses.
	sent := true
	if err := s.email.SendMedicationReminder(ctx, patient.Email, patient.Name, doses, period); err != nil {
		sent = false
		s.metrics.ReminderSendErrors.WithLabelValues(string(period)).Inc()
		s.logger.Warn().Err(err).
			Str("patient_id", patient.ID.String()).
			Str("period", string(period)).
			Msg("reminder notification failed")
	} else {
		s.metrics.RemindersSent.WithLabelValues(string(period)).Inc()
	}

	today := s.clock.Today()
	for _, dose := range doses {
		if err := s.upsertPending(ctx, patient.ID, dose, today); err != nil {
			// One bad dose must not block the rest of the patient's records.
			s.logger.Error().Err(err).
				Str("patient_id", patient.ID.String()).
				Str("medicine_id", dose.MedicineID.String()).
				Msg("failed to record pending dose")
		}
	}

	return sent, nil
}

func (s *Service) upsertPending(ctx context.Context, patientID uuid.UUID, dose model.ScheduledDose, today string) error {
	medicineID := dose.MedicineID
	prescriptionID := dose.PrescriptionID
	inserted, err := s.adherence.Insert(ctx, &model.AdherenceRecord{
		ID:             uuid.New(),
		PatientID:      patientID,
		MedicineID:     &medicineID,
		PrescriptionID: &prescriptionID,
		Medication:     dose.MedicineName,
		ScheduledDate:  today,
		ScheduledTime:  dose.ScheduledTime,
		Status:         model.AdherencePending,
		MissedDoses:    0,
		ReminderSent:   true,
	})
	if err != nil {
		return err
	}

	if inserted {
		s.metrics.AdherenceUpserts.WithLabelValues("inserted").Inc()
	} else {
		s.metrics.AdherenceUpserts.WithLabelValues("duplicate").Inc()
	}
	return nil
}
