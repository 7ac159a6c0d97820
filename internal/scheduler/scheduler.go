package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/medtrackr/clinic-api/internal/config"
	"github.com/medtrackr/clinic-api/internal/model"
	"github.com/medtrackr/clinic-api/internal/service/adherence"
	"github.com/medtrackr/clinic-api/internal/service/reminder"
	"github.com/medtrackr/clinic-api/pkg/logger"
	"github.com/medtrackr/clinic-api/pkg/metrics"
)

const jobTimeout = 5 * time.Minute

// Scheduler runs the daily reminder dispatches and the end-of-day missed-dose
// sweep on wall-clock hours in the configured location.
type Scheduler struct {
	cron         *cron.Cron
	reminderSvc  *reminder.Service
	adherenceSvc *adherence.Service
	logger       *logger.Logger
	metrics      *metrics.Metrics
}

func New(cfg config.ScheduleConfig, reminderSvc *reminder.Service, adherenceSvc *adherence.Service, log *logger.Logger, m *metrics.Metrics) (*Scheduler, error) {
	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return nil, fmt.Errorf("failed to load schedule timezone %q: %w", cfg.Timezone, err)
	}

	s := &Scheduler{
		cron:         cron.New(cron.WithLocation(loc)),
		reminderSvc:  reminderSvc,
		adherenceSvc: adherenceSvc,
		logger:       log,
		metrics:      m,
	}

	jobs := []struct {
		hour int
		run  func()
	}{
		{cfg.MorningHour, func() { s.dispatch(model.PeriodMorning) }},
		{cfg.AfternoonHour, func() { s.dispatch(model.PeriodAfternoon) }},
		{cfg.EveningHour, func() { s.dispatch(model.PeriodEvening) }},
		{cfg.MissedSweepHour, s.sweepMissed},
	}
	for _, job := range jobs {
		if _, err := s.cron.AddFunc(fmt.Sprintf("0 %d * * *", job.hour), job.run); err != nil {
			return nil, fmt.Errorf("failed to register cron job: %w", err)
		}
	}

	return s, nil
}

func (s *Scheduler) Start() {
	s.logger.Info().Msg("starting medication reminder scheduler")
	s.cron.Start()
}

// Stop halts the cron loop and waits for any running job to finish.
func (s *Scheduler) Stop(ctx context.Context) {
	done := s.cron.Stop().Done()
	select {
	case <-done:
	case <-ctx.Done():
		s.logger.Warn().Msg("scheduler shutdown timed out waiting for running jobs")
	}
}

func (s *Scheduler) dispatch(period model.Period) {
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()

	sent, err := s.reminderSvc.Dispatch(ctx, period)
	if err != nil {
		s.logger.Error().Err(err).Str("period", string(period)).Msg("reminder dispatch failed")
		return
	}
	s.logger.Info().
		Str("period", string(period)).
		Int("patients_notified", sent).
		Msg("reminder dispatch complete")
}

func (s *Scheduler) sweepMissed() {
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()

	s.metrics.ReconcileRuns.WithLabelValues("cron").Inc()
	missed, err := s.adherenceSvc.Reconcile(ctx, nil)
	if err != nil {
		s.metrics.ReconcileErrors.WithLabelValues("cron").Inc()
		s.logger.Error().Err(err).Msg("missed-dose sweep failed")
		return
	}
	s.logger.Info().Int("doses_marked_missed", missed).Msg("missed-dose sweep complete")
}
