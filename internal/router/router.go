package router

import (
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/medtrackr/clinic-api/internal/handler"
	authHandler "github.com/medtrackr/clinic-api/internal/handler/auth"
	medicationHandler "github.com/medtrackr/clinic-api/internal/handler/medication"
	patientHandler "github.com/medtrackr/clinic-api/internal/handler/patient"
	prescriptionHandler "github.com/medtrackr/clinic-api/internal/handler/prescription"
	"github.com/medtrackr/clinic-api/internal/middleware"
	"github.com/medtrackr/clinic-api/internal/model"
)

// Router wires the HTTP surface: public auth routes, the doctor-facing
// roster and prescription endpoints, and the patient medication endpoints
// behind the missed-dose middleware.
type Router struct {
	engine        *gin.Engine
	auth          *middleware.AuthMiddleware
	reconcile     *middleware.ReconcileMiddleware
	authH         *authHandler.Handler
	patientH      *patientHandler.Handler
	prescriptionH *prescriptionHandler.Handler
	medicationH   *medicationHandler.Handler
	h             *handler.Handler
	metrics       *routerMetrics
}

type routerMetrics struct {
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
}

type Config struct {
	RateLimitRPS   float64
	RateLimitBurst int
	CORSConfig     middleware.CORSConfig
	MetricsPrefix  string
}

func NewRouter(
	auth *middleware.AuthMiddleware,
	reconcile *middleware.ReconcileMiddleware,
	authH *authHandler.Handler,
	patientH *patientHandler.Handler,
	prescriptionH *prescriptionHandler.Handler,
	medicationH *medicationHandler.Handler,
	h *handler.Handler,
	cfg Config,
) *Router {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()

	r := &Router{
		engine:        engine,
		auth:          auth,
		reconcile:     reconcile,
		authH:         authH,
		patientH:      patientH,
		prescriptionH: prescriptionH,
		medicationH:   medicationH,
		h:             h,
		metrics:       newRouterMetrics(cfg.MetricsPrefix),
	}

	engine.Use(
		gin.Recovery(),
		middleware.Logger(),
		middleware.ErrorHandler(),
		r.metricsMiddleware(),
		middleware.RequestID(),
	)
	engine.Use(middleware.CORS(cfg.CORSConfig))

	rateLimiter := middleware.NewRateLimiter(middleware.RateLimiterConfig{
		RPS:   cfg.RateLimitRPS,
		Burst: cfg.RateLimitBurst,
	})
	engine.Use(rateLimiter.RateLimit())

	return r
}

func (r *Router) Setup() {
	root := r.engine.Group("")

	r.setupHealthCheck(root)

	// Public routes
	r.authH.RegisterRoutes(root)

	// Doctor routes
	doctor := root.Group("")
	doctor.Use(r.auth.Authenticate(), r.auth.RequireRole(model.RoleDoctor))
	{
		r.patientH.RegisterRoutes(doctor)
		r.prescriptionH.RegisterDoctorRoutes(doctor)
		r.medicationH.RegisterAdminRoutes(doctor)
	}

	// Patient routes. Every authenticated patient request first reconciles
	// the patient's stale Pending doses so reads never show an expired
	// Pending state.
	patient := root.Group("")
	patient.Use(
		r.auth.Authenticate(),
		r.auth.RequireRole(model.RolePatient),
		r.reconcile.CheckMissedMedications(),
	)
	{
		r.prescriptionH.RegisterPatientRoutes(patient)
		r.medicationH.RegisterPatientRoutes(patient)
	}

	// Any verified token can read adherence stats; doctors review their
	// patients' numbers through the same endpoint.
	verified := root.Group("")
	verified.Use(r.auth.Authenticate())
	r.medicationH.RegisterVerifiedRoutes(verified)
}

func (r *Router) setupHealthCheck(rg *gin.RouterGroup) {
	health := rg.Group("/health")
	{
		health.GET("/live", r.h.LivenessCheck)
		health.GET("/ready", r.h.ReadinessCheck)
		health.GET("/metrics", r.h.MetricsHandler)
	}
}

func (r *Router) Engine() *gin.Engine {
	return r.engine
}

func newRouterMetrics(prefix string) *routerMetrics {
	return &routerMetrics{
		requestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name: prefix + "_request_duration_seconds",
				Help: "Duration of HTTP requests in seconds",
			},
			[]string{"method", "path", "status"},
		),
		requestTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: prefix + "_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
	}
}

func (r *Router) metricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.FullPath()

		c.Next()

		status := fmt.Sprintf("%d", c.Writer.Status())
		r.metrics.requestDuration.WithLabelValues(c.Request.Method, path, status).Observe(time.Since(start).Seconds())
		r.metrics.requestTotal.WithLabelValues(c.Request.Method, path, status).Inc()
	}
}
