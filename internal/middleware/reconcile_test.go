package middleware

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/medtrackr/clinic-api/pkg/errors"

	"github.com/medtrackr/clinic-api/internal/model"
	"github.com/medtrackr/clinic-api/internal/service/adherence"
	"github.com/medtrackr/clinic-api/internal/service/schedule"
	"github.com/medtrackr/clinic-api/pkg/logger"
	"github.com/medtrackr/clinic-api/pkg/messaging"
	"github.com/medtrackr/clinic-api/pkg/metrics"
)

var (
	testMetricsOnce sync.Once
	testMetrics     *metrics.Metrics
)

func newTestMetrics() *metrics.Metrics {
	testMetricsOnce.Do(func() { testMetrics = metrics.New("middleware_test") })
	return testMetrics
}

// sweepCountingRepo counts MarkMissedBefore calls; everything else is inert.
type sweepCountingRepo struct {
	mu     sync.Mutex
	sweeps int
}

func (r *sweepCountingRepo) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sweeps
}

func (r *sweepCountingRepo) Insert(context.Context, *model.AdherenceRecord) (bool, error) {
	return true, nil
}

func (r *sweepCountingRepo) Get(context.Context, uuid.UUID) (*model.AdherenceRecord, error) {
	return nil, apperrors.NotFound("adherence record", nil)
}

func (r *sweepCountingRepo) FindForDose(context.Context, uuid.UUID, *uuid.UUID, string, model.Period) (*model.AdherenceRecord, error) {
	return nil, nil
}

func (r *sweepCountingRepo) UpdateStatus(context.Context, uuid.UUID, model.AdherenceStatus, bool) (*model.AdherenceRecord, error) {
	return nil, apperrors.NotFound("adherence record", nil)
}

func (r *sweepCountingRepo) ListForDate(context.Context, uuid.UUID, string) ([]*model.AdherenceRecord, error) {
	return nil, nil
}

func (r *sweepCountingRepo) ListBetween(context.Context, uuid.UUID, time.Time, time.Time) ([]*model.AdherenceRecord, error) {
	return nil, nil
}

func (r *sweepCountingRepo) MarkMissedBefore(context.Context, *uuid.UUID, string, []model.Period) ([]uuid.UUID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sweeps++
	return nil, nil
}

type inertPrescriptionRepo struct{}

func (inertPrescriptionRepo) Create(context.Context, *model.Prescription) error { return nil }

func (inertPrescriptionRepo) Get(context.Context, uuid.UUID) (*model.Prescription, error) {
	return nil, apperrors.NotFound("prescription", nil)
}

func (inertPrescriptionRepo) ListForPatient(context.Context, uuid.UUID) ([]*model.Prescription, error) {
	return nil, nil
}

func newThrottleFixture(t *testing.T) (*gin.Engine, *sweepCountingRepo) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	repo := &sweepCountingRepo{}
	// Pin the clock to the afternoon so morning has elapsed and the sweep
	// actually reaches the repository.
	clock := model.NewClockAt(time.UTC, time.Date(2026, 8, 29, 14, 0, 0, 0, time.UTC))
	log := logger.New(&logger.Config{Level: logger.ErrorLevel, Output: io.Discard})
	m := newTestMetrics()

	svc := adherence.NewService(repo, schedule.NewService(inertPrescriptionRepo{}), clock, messaging.NopPublisher{}, log, m)
	mw := NewReconcileMiddleware(svc, clock, log, m)

	patientID := uuid.New()
	engine := gin.New()
	engine.GET("/probe",
		func(c *gin.Context) {
			c.Set(ContextClaims, &model.TokenClaims{ID: patientID, Role: model.RolePatient})
		},
		mw.CheckMissedMedications(),
		func(c *gin.Context) { c.Status(http.StatusNoContent) },
	)
	return engine, repo
}

func TestCheckMissedMedicationsThrottlesPerPeriod(t *testing.T) {
	engine, repo := newThrottleFixture(t)

	for i := 0; i < 5; i++ {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/probe", nil)
		engine.ServeHTTP(w, req)
		require.Equal(t, http.StatusNoContent, w.Code)
	}

	assert.Equal(t, 1, repo.count(), "repeat requests in one period must not re-sweep")
}

func TestCheckMissedMedicationsIgnoresNonPatients(t *testing.T) {
	gin.SetMode(gin.TestMode)
	repo := &sweepCountingRepo{}
	clock := model.NewClockAt(time.UTC, time.Date(2026, 8, 29, 14, 0, 0, 0, time.UTC))
	log := logger.New(&logger.Config{Level: logger.ErrorLevel, Output: io.Discard})
	m := newTestMetrics()

	svc := adherence.NewService(repo, schedule.NewService(inertPrescriptionRepo{}), clock, messaging.NopPublisher{}, log, m)
	mw := NewReconcileMiddleware(svc, clock, log, m)

	engine := gin.New()
	engine.GET("/probe",
		func(c *gin.Context) {
			c.Set(ContextClaims, &model.TokenClaims{ID: uuid.New(), Role: model.RoleDoctor})
		},
		mw.CheckMissedMedications(),
		func(c *gin.Context) { c.Status(http.StatusNoContent) },
	)

	w := httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/probe", nil))
	require.Equal(t, http.StatusNoContent, w.Code)
	assert.Zero(t, repo.count())
}
