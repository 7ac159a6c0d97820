package middleware

import (
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	gocache "github.com/patrickmn/go-cache"

	"github.com/medtrackr/clinic-api/internal/model"
	"github.com/medtrackr/clinic-api/internal/service/adherence"
	"github.com/medtrackr/clinic-api/pkg/logger"
	"github.com/medtrackr/clinic-api/pkg/metrics"
)

// ReconcileMiddleware opportunistically sweeps a patient's stale Pending
// doses to Missed before their request proceeds, so every dashboard read
// reflects reality even between cron sweeps. The sweep is advisory: it runs
// synchronously (downstream handlers must see its writes) but every error is
// swallowed. A patient is swept at most once per period; the throttle cache
// covers the repeat requests in between.
type ReconcileMiddleware struct {
	adherenceSvc *adherence.Service
	clock        *model.Clock
	throttle     *gocache.Cache
	logger       *logger.Logger
	metrics      *metrics.Metrics
}

func NewReconcileMiddleware(adherenceSvc *adherence.Service, clock *model.Clock, log *logger.Logger, m *metrics.Metrics) *ReconcileMiddleware {
	return &ReconcileMiddleware{
		adherenceSvc: adherenceSvc,
		clock:        clock,
		throttle:     gocache.New(6*time.Hour, 30*time.Minute),
		logger:       log,
		metrics:      m,
	}
}

// CheckMissedMedications runs on authenticated patient routes.
func (m *ReconcileMiddleware) CheckMissedMedications() gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, ok := ClaimsFromContext(c)
		if !ok || claims.Role != model.RolePatient {
			c.Next()
			return
		}

		key := fmt.Sprintf("%s/%s/%s", claims.ID, m.clock.Today(), m.clock.CurrentPeriod())
		if _, seen := m.throttle.Get(key); seen {
			m.metrics.MiddlewareSkipped.Inc()
			c.Next()
			return
		}

		patientID := claims.ID
		marked, err := m.adherenceSvc.Reconcile(c.Request.Context(), &patientID)
		if err != nil {
			// Advisory path: never block the request.
			m.metrics.ReconcileErrors.WithLabelValues("middleware").Inc()
			m.logger.Warn().Err(err).
				Str("patient_id", patientID.String()).
				Msg("request-triggered reconciliation failed")
		} else {
			m.metrics.ReconcileRuns.WithLabelValues("middleware").Inc()
			m.throttle.SetDefault(key, struct{}{})
			if marked > 0 {
				m.logger.Info().
					Str("patient_id", patientID.String()).
					Int("marked_missed", marked).
					Msg("auto-marked missed medications")
			}
		}

		c.Next()
	}
}
