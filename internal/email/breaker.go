package email

import (
	"context"
	"time"

	"github.com/sony/gobreaker/v2"

	"github.com/medtrackr/clinic-api/internal/model"
)

// breakerService wraps a Service with a circuit breaker so a dead SMTP relay
// fails fast instead of stalling every patient's dispatch iteration.
type breakerService struct {
	inner Service
	cb    *gobreaker.CircuitBreaker[struct{}]
}

func WithBreaker(inner Service) Service {
	cb := gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{
		Name:        "email",
		MaxRequests: 1,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	})
	return &breakerService{inner: inner, cb: cb}
}

func (s *breakerService) SendMedicationReminder(ctx context.Context, to, name string, doses []model.ScheduledDose, period model.Period) error {
	_, err := s.cb.Execute(func() (struct{}, error) {
		return struct{}{}, s.inner.SendMedicationReminder(ctx, to, name, doses, period)
	})
	return err
}

func (s *breakerService) SendWelcome(ctx context.Context, to, name string) error {
	_, err := s.cb.Execute(func() (struct{}, error) {
		return struct{}{}, s.inner.SendWelcome(ctx, to, name)
	})
	return err
}

func (s *breakerService) SendCustom(ctx context.Context, to, subject, htmlBody string) error {
	_, err := s.cb.Execute(func() (struct{}, error) {
		return struct{}{}, s.inner.SendCustom(ctx, to, subject, htmlBody)
	})
	return err
}
