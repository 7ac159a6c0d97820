package adherence

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	apperrors "github.com/medtrackr/clinic-api/pkg/errors"

	"github.com/medtrackr/clinic-api/internal/model"
	"github.com/medtrackr/clinic-api/internal/repository"
	"github.com/medtrackr/clinic-api/internal/service/schedule"
	"github.com/medtrackr/clinic-api/pkg/logger"
	"github.com/medtrackr/clinic-api/pkg/messaging"
	"github.com/medtrackr/clinic-api/pkg/metrics"
)

// UpdatedChannel is the broker channel adherence changes are announced on.
const UpdatedChannel = "medications.updated"

// virtualIDPrefix marks dashboard entries that have no adherence row yet.
const virtualIDPrefix = "temp-"

// UpdatedEvent tells subscribed clients that a patient's adherence rows
// changed underneath them.
type UpdatedEvent struct {
	PatientID uuid.UUID `json:"patient_id"`
	Count     int       `json:"count"`
}

// Service owns the adherence state machine: it reconciles stale Pending
// doses into Missed, applies patient status updates (materializing virtual
// doses on first touch), and serves the dashboard, history and stats reads.
type Service struct {
	adherence repository.AdherenceRepository
	schedule  *schedule.Service
	clock     *model.Clock
	publisher messaging.Publisher
	logger    *logger.Logger
	metrics   *metrics.Metrics
}

func NewService(
	adherenceRepo repository.AdherenceRepository,
	scheduleSvc *schedule.Service,
	clock *model.Clock,
	publisher messaging.Publisher,
	log *logger.Logger,
	m *metrics.Metrics,
) *Service {
	if publisher == nil {
		publisher = messaging.NopPublisher{}
	}
	return &Service{
		adherence: adherenceRepo,
		schedule:  scheduleSvc,
		clock:     clock,
		publisher: publisher,
		logger:    log,
		metrics:   m,
	}
}

// Reconcile flips today's Pending records whose period has fully elapsed to
// Missed, incrementing missed_doses once per record. A nil patientID sweeps
// every patient. Records already Taken or Missed are never touched, and a
// record scheduled for the current or a later period is never marked, so
// re-running the sweep is harmless.
func (s *Service) Reconcile(ctx context.Context, patientID *uuid.UUID) (int, error) {
	timer := prometheus.NewTimer(s.metrics.ReconcileDuration)
	defer timer.ObserveDuration()

	elapsed := model.PeriodsBefore(s.clock.CurrentPeriod())
	if len(elapsed) == 0 {
		return 0, nil
	}

	affected, err := s.adherence.MarkMissedBefore(ctx, patientID, s.clock.Today(), elapsed)
	if err != nil {
		return 0, fmt.Errorf("missed-dose sweep failed: %w", err)
	}
	if len(affected) == 0 {
		return 0, nil
	}

	s.metrics.DosesMarkedMissed.Add(float64(len(affected)))
	s.publishUpdates(ctx, affected)

	s.logger.Info().
		Int("marked_missed", len(affected)).
		Msg("missed-dose reconciliation complete")
	return len(affected), nil
}

// publishUpdates emits one medications.updated event per affected patient.
// Publication is best-effort; the records are already flipped.
func (s *Service) publishUpdates(ctx context.Context, patientIDs []uuid.UUID) {
	counts := make(map[uuid.UUID]int)
	for _, id := range patientIDs {
		counts[id]++
	}
	for id, n := range counts {
		event := UpdatedEvent{PatientID: id, Count: n}
		if err := s.publisher.Publish(ctx, UpdatedChannel, event); err != nil {
			s.metrics.EventPublishErrors.Inc()
			s.logger.Warn().Err(err).
				Str("patient_id", id.String()).
				Msg("failed to publish medications-updated event")
		}
	}
}

// UpdateStatus marks a dose Taken or Missed on behalf of actorID (the
// verified token identity). A virtual dose is materialized with the requested
// status; an existing record transitions, incrementing missed_doses only on
// a genuine entry into Missed. Marking a Missed record Missed again is a
// no-op, and Taken never erases miss history.
func (s *Service) UpdateStatus(ctx context.Context, actorID uuid.UUID, req *model.UpdateMedicationStatusRequest) (*model.AdherenceRecord, error) {
	if req.Status != model.AdherenceTaken && req.Status != model.AdherenceMissed {
		return nil, apperrors.Validation("status must be Taken or Missed")
	}
	// The body's patient_id is a consistency check only; the acting identity
	// always comes from the token.
	if req.PatientID != "" {
		bodyID, err := uuid.Parse(req.PatientID)
		if err != nil {
			return nil, apperrors.Validation("invalid patient_id")
		}
		if bodyID != actorID {
			return nil, apperrors.Forbidden("patient_id does not match token")
		}
	}

	if req.IsNewMedication || req.ID == "" || strings.HasPrefix(req.ID, virtualIDPrefix) {
		return s.materialize(ctx, actorID, req)
	}

	id, err := uuid.Parse(req.ID)
	if err != nil {
		return nil, apperrors.Validation("invalid adherence record id")
	}

	record, err := s.adherence.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if record.PatientID != actorID {
		return nil, apperrors.Forbidden("record belongs to another patient")
	}

	incrementMissed := req.Status == model.AdherenceMissed && record.Status != model.AdherenceMissed
	return s.adherence.UpdateStatus(ctx, id, req.Status, incrementMissed)
}

// materialize creates the adherence row for a dose the patient touched
// before any reminder did. If a concurrent dispatch won the insert race, the
// existing row is transitioned instead.
func (s *Service) materialize(ctx context.Context, actorID uuid.UUID, req *model.UpdateMedicationStatusRequest) (*model.AdherenceRecord, error) {
	if !req.ScheduledTime.Valid() {
		return nil, apperrors.Validation("scheduled_time is required for a new medication record")
	}
	if req.Medication == "" {
		return nil, apperrors.Validation("medication name is required for a new medication record")
	}

	missedDoses := 0
	if req.Status == model.AdherenceMissed {
		missedDoses = 1
	}

	record := &model.AdherenceRecord{
		ID:             uuid.New(),
		PatientID:      actorID,
		MedicineID:     req.MedicineID,
		PrescriptionID: req.PrescriptionID,
		Medication:     req.Medication,
		ScheduledDate:  s.clock.Today(),
		ScheduledTime:  req.ScheduledTime,
		Status:         req.Status,
		MissedDoses:    missedDoses,
		ReminderSent:   true,
	}

	inserted, err := s.adherence.Insert(ctx, record)
	if err != nil {
		return nil, fmt.Errorf("failed to materialize dose: %w", err)
	}
	if inserted {
		return record, nil
	}

	existing, err := s.adherence.FindForDose(ctx, actorID, req.MedicineID, record.ScheduledDate, req.ScheduledTime)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		return nil, apperrors.Internal(fmt.Errorf("dose insert conflicted but no record found"))
	}

	incrementMissed := req.Status == model.AdherenceMissed && existing.Status != model.AdherenceMissed
	return s.adherence.UpdateStatus(ctx, existing.ID, req.Status, incrementMissed)
}

// TodaySchedule merges today's persisted records with virtual entries for
// every derived (medicine, period) dose that has no row yet. Virtual entries
// carry temp- identifiers the status update endpoint knows how to resolve.
func (s *Service) TodaySchedule(ctx context.Context, patientID uuid.UUID) ([]model.TodayMedication, error) {
	today := s.clock.Today()
	records, err := s.adherence.ListForDate(ctx, patientID, today)
	if err != nil {
		return nil, err
	}

	doses, err := s.schedule.DeriveDaily(ctx, patientID)
	if err != nil {
		return nil, err
	}

	type doseKey struct {
		medicineID uuid.UUID
		period     model.Period
	}
	covered := make(map[doseKey]bool, len(records))

	out := make([]model.TodayMedication, 0, len(records)+len(doses))
	for _, rec := range records {
		if rec.MedicineID != nil {
			covered[doseKey{*rec.MedicineID, rec.ScheduledTime}] = true
		}
		out = append(out, model.TodayMedication{
			ID:             rec.ID.String(),
			MedicineID:     rec.MedicineID,
			PrescriptionID: rec.PrescriptionID,
			Medication:     rec.Medication,
			ScheduledTime:  rec.ScheduledTime,
			Status:         rec.Status,
			MissedDoses:    rec.MissedDoses,
		})
	}

	for _, dose := range doses {
		if covered[doseKey{dose.MedicineID, dose.ScheduledTime}] {
			continue
		}
		medicineID := dose.MedicineID
		prescriptionID := dose.PrescriptionID
		out = append(out, model.TodayMedication{
			ID:             fmt.Sprintf("%s%s-%s", virtualIDPrefix, dose.MedicineID, dose.ScheduledTime),
			MedicineID:     &medicineID,
			PrescriptionID: &prescriptionID,
			Medication:     dose.MedicineName,
			Dosage:         dose.Dosage,
			Instructions:   dose.Instructions,
			ScheduledTime:  dose.ScheduledTime,
			Status:         model.AdherencePending,
			Virtual:        true,
		})
	}

	return out, nil
}

// History returns the patient's records over the trailing window, newest
// first.
func (s *Service) History(ctx context.Context, patientID uuid.UUID, days int) ([]*model.AdherenceRecord, error) {
	if days <= 0 {
		days = 7
	}
	to := s.clock.Now()
	from := to.AddDate(0, 0, -days)
	return s.adherence.ListBetween(ctx, patientID, from, to)
}

// Stats aggregates a trailing window into totals and a per-day breakdown.
// The adherence rate counts Pending doses against the patient, matching the
// dashboard's "taken out of everything scheduled" reading.
func (s *Service) Stats(ctx context.Context, patientID uuid.UUID, days int) (*model.AdherenceStats, error) {
	if days <= 0 {
		days = 30
	}
	to := s.clock.Now()
	from := to.AddDate(0, 0, -days)
	records, err := s.adherence.ListBetween(ctx, patientID, from, to)
	if err != nil {
		return nil, err
	}
	return Aggregate(records), nil
}

// Aggregate computes stats from already-loaded records.
func Aggregate(records []*model.AdherenceRecord) *model.AdherenceStats {
	summary := model.AdherenceStatsSummary{TotalMedications: len(records)}
	daily := make(map[string]*model.DailyAdherenceStat)
	var order []string

	for _, rec := range records {
		date := rec.ScheduledDate
		if date == "" {
			date = rec.CreatedAt.Format("2006-01-02")
		}
		day, ok := daily[date]
		if !ok {
			day = &model.DailyAdherenceStat{Date: date}
			daily[date] = day
			order = append(order, date)
		}
		day.Total++

		switch rec.Status {
		case model.AdherenceTaken:
			summary.TakenCount++
			day.Taken++
		case model.AdherenceMissed:
			summary.MissedCount++
			day.Missed++
		default:
			summary.PendingCount++
			day.Pending++
		}
	}

	if summary.TotalMedications > 0 {
		rate := float64(summary.TakenCount) / float64(summary.TotalMedications) * 100
		summary.AdherenceRate = roundRate(rate)
	}

	stats := &model.AdherenceStats{Summary: summary, DailyStats: make([]model.DailyAdherenceStat, 0, len(order))}
	for _, date := range order {
		day := daily[date]
		day.AdherenceRate = roundRate(float64(day.Taken) / float64(day.Total) * 100)
		stats.DailyStats = append(stats.DailyStats, *day)
	}
	return stats
}

func roundRate(rate float64) float64 {
	return float64(int(rate*100+0.5)) / 100
}
