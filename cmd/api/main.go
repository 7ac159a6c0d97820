package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/medtrackr/clinic-api/internal/config"
	"github.com/medtrackr/clinic-api/internal/email"
	"github.com/medtrackr/clinic-api/internal/handler"
	authHandler "github.com/medtrackr/clinic-api/internal/handler/auth"
	medicationHandler "github.com/medtrackr/clinic-api/internal/handler/medication"
	patientHandler "github.com/medtrackr/clinic-api/internal/handler/patient"
	prescriptionHandler "github.com/medtrackr/clinic-api/internal/handler/prescription"
	"github.com/medtrackr/clinic-api/internal/middleware"
	"github.com/medtrackr/clinic-api/internal/model"
	"github.com/medtrackr/clinic-api/internal/repository/postgres"
	"github.com/medtrackr/clinic-api/internal/router"
	"github.com/medtrackr/clinic-api/internal/scheduler"
	adherenceService "github.com/medtrackr/clinic-api/internal/service/adherence"
	authService "github.com/medtrackr/clinic-api/internal/service/auth"
	patientService "github.com/medtrackr/clinic-api/internal/service/patient"
	prescriptionService "github.com/medtrackr/clinic-api/internal/service/prescription"
	reminderService "github.com/medtrackr/clinic-api/internal/service/reminder"
	scheduleService "github.com/medtrackr/clinic-api/internal/service/schedule"
	"github.com/medtrackr/clinic-api/pkg/auth"
	"github.com/medtrackr/clinic-api/pkg/logger"
	"github.com/medtrackr/clinic-api/pkg/messaging"
	redisBroker "github.com/medtrackr/clinic-api/pkg/messaging/redis"
	"github.com/medtrackr/clinic-api/pkg/metrics"
)

func main() {
	log := logger.New(nil)

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	loc, err := time.LoadLocation(cfg.Schedule.Timezone)
	if err != nil {
		log.Fatal().Err(err).Str("timezone", cfg.Schedule.Timezone).Msg("invalid schedule timezone")
	}
	clock := model.NewClock(loc)

	if err := model.RegisterValidations(); err != nil {
		log.Fatal().Err(err).Msg("failed to register request validations")
	}

	db, err := postgres.NewDB(cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	patientRepo := postgres.NewPatientRepository(db)
	prescriptionRepo := postgres.NewPrescriptionRepository(db)
	adherenceRepo, err := postgres.NewAdherenceRepository(db)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize adherence repository")
	}

	m := metrics.New("clinic_api")

	emailSvc := email.WithBreaker(email.NewSMTPService(cfg.SMTP))

	// The broker is optional: without Redis the API still works, it just
	// stops announcing adherence changes to connected dashboards.
	var publisher messaging.Publisher = messaging.NopPublisher{}
	if cfg.Redis.URL != "" {
		broker, err := redisBroker.NewRedisBroker(redisBroker.Config{
			URL:          cfg.Redis.URL,
			MaxRetries:   cfg.Redis.MaxRetries,
			RetryBackoff: cfg.Redis.RetryBackoff,
			PoolSize:     cfg.Redis.PoolSize,
			MinIdleConns: cfg.Redis.MinIdleConns,
		}, &log.ZL)
		if err != nil {
			log.Warn().Err(err).Msg("redis unavailable, adherence events disabled")
		} else {
			defer broker.Close()
			publisher = broker
		}
	}

	jwtSvc := auth.NewJWTService(cfg.JWT.Secret, time.Duration(cfg.JWT.ExpiryHours)*time.Hour)

	scheduleSvc := scheduleService.NewService(prescriptionRepo)
	authSvc := authService.NewService(patientRepo, jwtSvc)
	patientSvc := patientService.NewService(patientRepo, emailSvc, log)
	prescriptionSvc := prescriptionService.NewService(prescriptionRepo, patientRepo)
	reminderSvc := reminderService.NewService(patientRepo, adherenceRepo, scheduleSvc, emailSvc, clock, log, m)
	adherenceSvc := adherenceService.NewService(adherenceRepo, scheduleSvc, clock, publisher, log, m)

	authMW := middleware.NewAuthMiddleware(authSvc)
	reconcileMW := middleware.NewReconcileMiddleware(adherenceSvc, clock, log, m)

	r := router.NewRouter(
		authMW,
		reconcileMW,
		authHandler.NewHandler(authSvc),
		patientHandler.NewHandler(patientSvc),
		prescriptionHandler.NewHandler(prescriptionSvc),
		medicationHandler.NewHandler(adherenceSvc, reminderSvc),
		handler.NewHandler(),
		router.Config{
			RateLimitRPS:   cfg.RateLimit.RequestsPerSecond,
			RateLimitBurst: cfg.RateLimit.Burst,
			CORSConfig:     middleware.DefaultCORSConfig(),
			MetricsPrefix:  "clinic_api",
		},
	)
	r.Setup()

	sched, err := scheduler.New(cfg.Schedule, reminderSvc, adherenceSvc, log, m)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to build scheduler")
	}
	sched.Start()

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      r.Engine(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		log.Info().Int("port", cfg.Server.Port).Msg("starting server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	sched.Stop(ctx)
	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("forced shutdown")
	}
}
