package adherence

import (
	"context"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/medtrackr/clinic-api/pkg/errors"

	"github.com/medtrackr/clinic-api/internal/model"
	"github.com/medtrackr/clinic-api/internal/service/schedule"
	"github.com/medtrackr/clinic-api/pkg/logger"
	"github.com/medtrackr/clinic-api/pkg/metrics"
)

var (
	testMetricsOnce sync.Once
	testMetrics     *metrics.Metrics
)

func newTestMetrics() *metrics.Metrics {
	testMetricsOnce.Do(func() { testMetrics = metrics.New("adherence_test") })
	return testMetrics
}

func newTestLogger() *logger.Logger {
	return logger.New(&logger.Config{Level: logger.ErrorLevel, Output: io.Discard})
}

// fakeAdherenceRepo is an in-memory AdherenceRepository that mirrors the
// store's unique constraint on (patient, medicine, date, period).
type fakeAdherenceRepo struct {
	mu      sync.Mutex
	records map[uuid.UUID]*model.AdherenceRecord
}

func newFakeAdherenceRepo() *fakeAdherenceRepo {
	return &fakeAdherenceRepo{records: make(map[uuid.UUID]*model.AdherenceRecord)}
}

func (r *fakeAdherenceRepo) Insert(_ context.Context, record *model.AdherenceRecord) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.records {
		if existing.PatientID == record.PatientID &&
			sameMedicine(existing.MedicineID, record.MedicineID) &&
			existing.ScheduledDate == record.ScheduledDate &&
			existing.ScheduledTime == record.ScheduledTime {
			return false, nil
		}
	}
	cp := *record
	cp.CreatedAt = time.Now()
	cp.UpdatedAt = cp.CreatedAt
	r.records[cp.ID] = &cp
	return true, nil
}

func (r *fakeAdherenceRepo) Get(_ context.Context, id uuid.UUID) (*model.AdherenceRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[id]
	if !ok {
		return nil, apperrors.NotFound("adherence record", nil)
	}
	cp := *rec
	return &cp, nil
}

func (r *fakeAdherenceRepo) FindForDose(_ context.Context, patientID uuid.UUID, medicineID *uuid.UUID, date string, period model.Period) (*model.AdherenceRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, rec := range r.records {
		if rec.PatientID == patientID && sameMedicine(rec.MedicineID, medicineID) &&
			rec.ScheduledDate == date && rec.ScheduledTime == period {
			cp := *rec
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *fakeAdherenceRepo) UpdateStatus(_ context.Context, id uuid.UUID, status model.AdherenceStatus, incrementMissed bool) (*model.AdherenceRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[id]
	if !ok {
		return nil, apperrors.NotFound("adherence record", nil)
	}
	rec.Status = status
	if incrementMissed {
		rec.MissedDoses++
	}
	rec.UpdatedAt = time.Now()
	cp := *rec
	return &cp, nil
}

func (r *fakeAdherenceRepo) ListForDate(_ context.Context, patientID uuid.UUID, date string) ([]*model.AdherenceRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.AdherenceRecord
	for _, rec := range r.records {
		if rec.PatientID == patientID && rec.ScheduledDate == date {
			cp := *rec
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *fakeAdherenceRepo) ListBetween(_ context.Context, patientID uuid.UUID, from, to time.Time) ([]*model.AdherenceRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.AdherenceRecord
	for _, rec := range r.records {
		if rec.PatientID != patientID {
			continue
		}
		date, err := time.Parse("2006-01-02", rec.ScheduledDate)
		if err != nil {
			continue
		}
		if !date.Before(from.Truncate(24*time.Hour)) && !date.After(to) {
			cp := *rec
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *fakeAdherenceRepo) MarkMissedBefore(_ context.Context, patientID *uuid.UUID, date string, periods []model.Period) ([]uuid.UUID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	elapsed := make(map[model.Period]bool, len(periods))
	for _, p := range periods {
		elapsed[p] = true
	}
	var affected []uuid.UUID
	for _, rec := range r.records {
		if patientID != nil && rec.PatientID != *patientID {
			continue
		}
		if rec.ScheduledDate != date || rec.Status != model.AdherencePending || !elapsed[rec.ScheduledTime] {
			continue
		}
		rec.Status = model.AdherenceMissed
		rec.MissedDoses++
		affected = append(affected, rec.PatientID)
	}
	return affected, nil
}

func sameMedicine(a, b *uuid.UUID) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

// fakePrescriptionRepo backs the schedule deriver.
type fakePrescriptionRepo struct {
	prescriptions map[uuid.UUID][]*model.Prescription
}

func newFakePrescriptionRepo() *fakePrescriptionRepo {
	return &fakePrescriptionRepo{prescriptions: make(map[uuid.UUID][]*model.Prescription)}
}

func (r *fakePrescriptionRepo) Create(_ context.Context, p *model.Prescription) error {
	r.prescriptions[p.PatientID] = append(r.prescriptions[p.PatientID], p)
	return nil
}

func (r *fakePrescriptionRepo) Get(_ context.Context, id uuid.UUID) (*model.Prescription, error) {
	for _, list := range r.prescriptions {
		for _, p := range list {
			if p.ID == id {
				return p, nil
			}
		}
	}
	return nil, apperrors.NotFound("prescription", nil)
}

func (r *fakePrescriptionRepo) ListForPatient(_ context.Context, patientID uuid.UUID) ([]*model.Prescription, error) {
	return r.prescriptions[patientID], nil
}

type capturePublisher struct {
	mu     sync.Mutex
	events []UpdatedEvent
}

func (p *capturePublisher) Publish(_ context.Context, _ string, message interface{}) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if ev, ok := message.(UpdatedEvent); ok {
		p.events = append(p.events, ev)
	}
	return nil
}

type fixture struct {
	svc        *Service
	adherence  *fakeAdherenceRepo
	rx         *fakePrescriptionRepo
	publisher  *capturePublisher
	clock      *model.Clock
	patientID  uuid.UUID
	medicineID uuid.UUID
}

// newFixture builds a service whose clock is pinned to the given hour today.
func newFixture(t *testing.T, hour int) *fixture {
	t.Helper()
	clock := model.NewClockAt(time.UTC, time.Date(2026, 8, 29, hour, 30, 0, 0, time.UTC))
	adherenceRepo := newFakeAdherenceRepo()
	rxRepo := newFakePrescriptionRepo()
	pub := &capturePublisher{}
	svc := NewService(adherenceRepo, schedule.NewService(rxRepo), clock, pub, newTestLogger(), newTestMetrics())
	return &fixture{
		svc:        svc,
		adherence:  adherenceRepo,
		rx:         rxRepo,
		publisher:  pub,
		clock:      clock,
		patientID:  uuid.New(),
		medicineID: uuid.New(),
	}
}

func (f *fixture) seedRecord(t *testing.T, period model.Period, status model.AdherenceStatus) *model.AdherenceRecord {
	t.Helper()
	medicineID := uuid.New()
	rec := &model.AdherenceRecord{
		ID:            uuid.New(),
		PatientID:     f.patientID,
		MedicineID:    &medicineID,
		Medication:    "Lisinopril",
		ScheduledDate: f.clock.Today(),
		ScheduledTime: period,
		Status:        status,
		ReminderSent:  true,
	}
	inserted, err := f.adherence.Insert(context.Background(), rec)
	require.NoError(t, err)
	require.True(t, inserted)
	return rec
}

func TestReconcileMarksElapsedPendingMissed(t *testing.T) {
	f := newFixture(t, 19) // evening: morning and afternoon have elapsed

	morning := f.seedRecord(t, model.PeriodMorning, model.AdherencePending)
	afternoon := f.seedRecord(t, model.PeriodAfternoon, model.AdherencePending)
	evening := f.seedRecord(t, model.PeriodEvening, model.AdherencePending)
	taken := f.seedRecord(t, model.PeriodMorning, model.AdherenceTaken)

	n, err := f.svc.Reconcile(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	for _, c := range []struct {
		id     uuid.UUID
		status model.AdherenceStatus
		missed int
	}{
		{morning.ID, model.AdherenceMissed, 1},
		{afternoon.ID, model.AdherenceMissed, 1},
		{evening.ID, model.AdherencePending, 0},
		{taken.ID, model.AdherenceTaken, 0},
	} {
		rec, err := f.adherence.Get(context.Background(), c.id)
		require.NoError(t, err)
		assert.Equal(t, c.status, rec.Status)
		assert.Equal(t, c.missed, rec.MissedDoses)
	}

	// One event per affected patient, carrying the flip count.
	require.Len(t, f.publisher.events, 1)
	assert.Equal(t, f.patientID, f.publisher.events[0].PatientID)
	assert.Equal(t, 2, f.publisher.events[0].Count)
}

func TestReconcileIsIdempotent(t *testing.T) {
	f := newFixture(t, 19)
	rec := f.seedRecord(t, model.PeriodMorning, model.AdherencePending)

	for i := 0; i < 3; i++ {
		_, err := f.svc.Reconcile(context.Background(), nil)
		require.NoError(t, err)
	}

	got, err := f.adherence.Get(context.Background(), rec.ID)
	require.NoError(t, err)
	assert.Equal(t, model.AdherenceMissed, got.Status)
	assert.Equal(t, 1, got.MissedDoses, "repeated sweeps must not re-increment")
}

func TestReconcileDuringMorningTouchesNothing(t *testing.T) {
	f := newFixture(t, 8)
	rec := f.seedRecord(t, model.PeriodMorning, model.AdherencePending)

	n, err := f.svc.Reconcile(context.Background(), nil)
	require.NoError(t, err)
	assert.Zero(t, n)

	got, err := f.adherence.Get(context.Background(), rec.ID)
	require.NoError(t, err)
	assert.Equal(t, model.AdherencePending, got.Status)
}

func TestReconcileScopedToOnePatient(t *testing.T) {
	f := newFixture(t, 19)
	mine := f.seedRecord(t, model.PeriodMorning, model.AdherencePending)

	otherPatient := uuid.New()
	otherMedicine := uuid.New()
	other := &model.AdherenceRecord{
		ID:            uuid.New(),
		PatientID:     otherPatient,
		MedicineID:    &otherMedicine,
		Medication:    "Metformin",
		ScheduledDate: f.clock.Today(),
		ScheduledTime: model.PeriodMorning,
		Status:        model.AdherencePending,
	}
	_, err := f.adherence.Insert(context.Background(), other)
	require.NoError(t, err)

	n, err := f.svc.Reconcile(context.Background(), &f.patientID)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err := f.adherence.Get(context.Background(), mine.ID)
	require.NoError(t, err)
	assert.Equal(t, model.AdherenceMissed, got.Status)

	untouched, err := f.adherence.Get(context.Background(), other.ID)
	require.NoError(t, err)
	assert.Equal(t, model.AdherencePending, untouched.Status)
}

func TestUpdateStatusTransitions(t *testing.T) {
	f := newFixture(t, 10)
	rec := f.seedRecord(t, model.PeriodMorning, model.AdherencePending)

	// Pending -> Missed increments.
	updated, err := f.svc.UpdateStatus(context.Background(), f.patientID, &model.UpdateMedicationStatusRequest{
		ID:     rec.ID.String(),
		Status: model.AdherenceMissed,
	})
	require.NoError(t, err)
	assert.Equal(t, model.AdherenceMissed, updated.Status)
	assert.Equal(t, 1, updated.MissedDoses)

	// Missed -> Missed is a no-op on the counter.
	updated, err = f.svc.UpdateStatus(context.Background(), f.patientID, &model.UpdateMedicationStatusRequest{
		ID:     rec.ID.String(),
		Status: model.AdherenceMissed,
	})
	require.NoError(t, err)
	assert.Equal(t, 1, updated.MissedDoses)

	// Missed -> Taken keeps the miss history.
	updated, err = f.svc.UpdateStatus(context.Background(), f.patientID, &model.UpdateMedicationStatusRequest{
		ID:     rec.ID.String(),
		Status: model.AdherenceTaken,
	})
	require.NoError(t, err)
	assert.Equal(t, model.AdherenceTaken, updated.Status)
	assert.Equal(t, 1, updated.MissedDoses)
}

func TestMissedDoseRecoveredAsTaken(t *testing.T) {
	// Morning dose goes unanswered, the afternoon sweep marks it Missed,
	// then the patient takes it late. The miss stays on the record.
	f := newFixture(t, 13)
	rec := f.seedRecord(t, model.PeriodMorning, model.AdherencePending)

	_, err := f.svc.Reconcile(context.Background(), &f.patientID)
	require.NoError(t, err)

	got, err := f.adherence.Get(context.Background(), rec.ID)
	require.NoError(t, err)
	require.Equal(t, model.AdherenceMissed, got.Status)
	require.Equal(t, 1, got.MissedDoses)

	updated, err := f.svc.UpdateStatus(context.Background(), f.patientID, &model.UpdateMedicationStatusRequest{
		ID:     rec.ID.String(),
		Status: model.AdherenceTaken,
	})
	require.NoError(t, err)
	assert.Equal(t, model.AdherenceTaken, updated.Status)
	assert.Equal(t, 1, updated.MissedDoses)
}

func TestUpdateStatusRejectsPendingTarget(t *testing.T) {
	f := newFixture(t, 10)
	rec := f.seedRecord(t, model.PeriodMorning, model.AdherenceTaken)

	_, err := f.svc.UpdateStatus(context.Background(), f.patientID, &model.UpdateMedicationStatusRequest{
		ID:     rec.ID.String(),
		Status: model.AdherencePending,
	})
	require.Error(t, err)
}

func TestUpdateStatusForeignRecordForbidden(t *testing.T) {
	f := newFixture(t, 10)
	rec := f.seedRecord(t, model.PeriodMorning, model.AdherencePending)

	_, err := f.svc.UpdateStatus(context.Background(), uuid.New(), &model.UpdateMedicationStatusRequest{
		ID:     rec.ID.String(),
		Status: model.AdherenceTaken,
	})
	require.Error(t, err)

	got, err := f.adherence.Get(context.Background(), rec.ID)
	require.NoError(t, err)
	assert.Equal(t, model.AdherencePending, got.Status)
}

func TestUpdateStatusBodyPatientMismatchForbidden(t *testing.T) {
	f := newFixture(t, 10)
	rec := f.seedRecord(t, model.PeriodMorning, model.AdherencePending)

	_, err := f.svc.UpdateStatus(context.Background(), f.patientID, &model.UpdateMedicationStatusRequest{
		ID:        rec.ID.String(),
		Status:    model.AdherenceTaken,
		PatientID: uuid.New().String(),
	})
	require.Error(t, err)
}

func TestMaterializeVirtualDose(t *testing.T) {
	f := newFixture(t, 10)

	req := &model.UpdateMedicationStatusRequest{
		ID:              "temp-" + f.medicineID.String() + "-morning",
		Status:          model.AdherenceTaken,
		IsNewMedication: true,
		Medication:      "Atorvastatin",
		MedicineID:      &f.medicineID,
		ScheduledTime:   model.PeriodMorning,
	}

	rec, err := f.svc.UpdateStatus(context.Background(), f.patientID, req)
	require.NoError(t, err)
	assert.Equal(t, model.AdherenceTaken, rec.Status)
	assert.Equal(t, f.clock.Today(), rec.ScheduledDate)
	assert.Zero(t, rec.MissedDoses)
	assert.NotEqual(t, uuid.Nil, rec.ID)
}

func TestMaterializeTwiceConvergesToOneRecord(t *testing.T) {
	f := newFixture(t, 10)

	req := func(status model.AdherenceStatus) *model.UpdateMedicationStatusRequest {
		return &model.UpdateMedicationStatusRequest{
			Status:          status,
			IsNewMedication: true,
			Medication:      "Atorvastatin",
			MedicineID:      &f.medicineID,
			ScheduledTime:   model.PeriodMorning,
		}
	}

	first, err := f.svc.UpdateStatus(context.Background(), f.patientID, req(model.AdherenceMissed))
	require.NoError(t, err)
	assert.Equal(t, 1, first.MissedDoses)

	// Second touch of the same dose lands on the existing row.
	second, err := f.svc.UpdateStatus(context.Background(), f.patientID, req(model.AdherenceTaken))
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, model.AdherenceTaken, second.Status)
	assert.Equal(t, 1, second.MissedDoses)

	records, err := f.adherence.ListForDate(context.Background(), f.patientID, f.clock.Today())
	require.NoError(t, err)
	assert.Len(t, records, 1)
}

func TestMaterializeRequiresDoseFields(t *testing.T) {
	f := newFixture(t, 10)

	_, err := f.svc.UpdateStatus(context.Background(), f.patientID, &model.UpdateMedicationStatusRequest{
		IsNewMedication: true,
		Status:          model.AdherenceTaken,
		Medication:      "Atorvastatin",
		// no scheduled_time
	})
	require.Error(t, err)

	_, err = f.svc.UpdateStatus(context.Background(), f.patientID, &model.UpdateMedicationStatusRequest{
		IsNewMedication: true,
		Status:          model.AdherenceTaken,
		ScheduledTime:   model.PeriodMorning,
		// no medication name
	})
	require.Error(t, err)
}

func TestTodayScheduleMergesVirtualDoses(t *testing.T) {
	f := newFixture(t, 10)

	p := &model.Prescription{}
	p.ID = uuid.New()
	p.PatientID = f.patientID
	p.Medicines = []model.Medicine{
		{ID: f.medicineID, PrescriptionID: p.ID, Name: "Aspirin", Morning: true, Evening: true},
	}
	require.NoError(t, f.rx.Create(context.Background(), p))

	// The morning dose already has a record; the evening one does not.
	rec := &model.AdherenceRecord{
		ID:             uuid.New(),
		PatientID:      f.patientID,
		MedicineID:     &f.medicineID,
		PrescriptionID: &p.ID,
		Medication:     "Aspirin",
		ScheduledDate:  f.clock.Today(),
		ScheduledTime:  model.PeriodMorning,
		Status:         model.AdherenceTaken,
	}
	_, err := f.adherence.Insert(context.Background(), rec)
	require.NoError(t, err)

	out, err := f.svc.TodaySchedule(context.Background(), f.patientID)
	require.NoError(t, err)
	require.Len(t, out, 2)

	byPeriod := make(map[model.Period]model.TodayMedication, len(out))
	for _, m := range out {
		byPeriod[m.ScheduledTime] = m
	}

	morning := byPeriod[model.PeriodMorning]
	assert.False(t, morning.Virtual)
	assert.Equal(t, rec.ID.String(), morning.ID)
	assert.Equal(t, model.AdherenceTaken, morning.Status)

	evening := byPeriod[model.PeriodEvening]
	assert.True(t, evening.Virtual)
	assert.True(t, strings.HasPrefix(evening.ID, "temp-"))
	assert.Equal(t, model.AdherencePending, evening.Status)
}

func TestAggregate(t *testing.T) {
	var records []*model.AdherenceRecord
	add := func(n int, status model.AdherenceStatus, date string) {
		for i := 0; i < n; i++ {
			records = append(records, &model.AdherenceRecord{
				ScheduledDate: date,
				Status:        status,
			})
		}
	}
	add(4, model.AdherenceTaken, "2026-08-27")
	add(2, model.AdherenceTaken, "2026-08-28")
	add(3, model.AdherenceMissed, "2026-08-28")
	add(1, model.AdherencePending, "2026-08-29")

	stats := Aggregate(records)
	assert.Equal(t, 10, stats.Summary.TotalMedications)
	assert.Equal(t, 6, stats.Summary.TakenCount)
	assert.Equal(t, 3, stats.Summary.MissedCount)
	assert.Equal(t, 1, stats.Summary.PendingCount)
	assert.Equal(t, 60.0, stats.Summary.AdherenceRate)

	require.Len(t, stats.DailyStats, 3)
	assert.Equal(t, "2026-08-27", stats.DailyStats[0].Date)
	assert.Equal(t, 100.0, stats.DailyStats[0].AdherenceRate)
	assert.Equal(t, 40.0, stats.DailyStats[1].AdherenceRate)
	assert.Equal(t, 0.0, stats.DailyStats[2].AdherenceRate)
}

func TestAggregateEmpty(t *testing.T) {
	stats := Aggregate(nil)
	assert.Zero(t, stats.Summary.TotalMedications)
	assert.Zero(t, stats.Summary.AdherenceRate)
	assert.Empty(t, stats.DailyStats)
}
