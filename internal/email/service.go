package email

import (
	"context"

	"github.com/medtrackr/clinic-api/internal/model"
)

// Service sends clinic email. Delivery is best-effort: callers treat a
// returned error as "not sent" and move on, they never retry into the batch.
type Service interface {
	// SendMedicationReminder sends one message listing every dose due for the
	// period, not one message per medicine.
	SendMedicationReminder(ctx context.Context, to, name string, doses []model.ScheduledDose, period model.Period) error
	SendWelcome(ctx context.Context, to, name string) error
	SendCustom(ctx context.Context, to, subject, htmlBody string) error
}
