package email

import (
	"context"
	"crypto/tls"
	"fmt"
	"html"
	"strings"

	"gopkg.in/gomail.v2"

	"github.com/medtrackr/clinic-api/internal/config"
	"github.com/medtrackr/clinic-api/internal/model"
)

type smtpService struct {
	dialer    *gomail.Dialer
	fromName  string
	fromEmail string
}

// NewSMTPService sends mail through a plain SMTP relay (Brevo in the default
// deployment).
func NewSMTPService(cfg config.SMTPConfig) Service {
	dialer := gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password)
	if cfg.DisableTLS {
		dialer.TLSConfig = &tls.Config{InsecureSkipVerify: true}
	}
	return &smtpService{
		dialer:    dialer,
		fromName:  cfg.FromName,
		fromEmail: cfg.FromEmail,
	}
}

func (s *smtpService) SendMedicationReminder(ctx context.Context, to, name string, doses []model.ScheduledDose, period model.Period) error {
	var items strings.Builder
	for _, d := range doses {
		fmt.Fprintf(&items, "<li>%s - %s - %s</li>",
			html.EscapeString(d.MedicineName),
			html.EscapeString(d.Dosage),
			html.EscapeString(d.Instructions),
		)
	}

	body := fmt.Sprintf(`
		<div style="font-family: Arial, sans-serif; max-width: 600px; margin: 0 auto;">
			<h2 style="color: #4a5568;">Medication Reminder</h2>
			<p>Hello %s,</p>
			<p>It's time to take your %s medication:</p>
			<ul>%s</ul>
			<p>Please remember to mark these medications as taken in your Patient Dashboard.</p>
			<p>Best regards,<br>%s Team</p>
		</div>`,
		html.EscapeString(name), period, items.String(), html.EscapeString(s.fromName),
	)

	return s.send(ctx, to, fmt.Sprintf("Medication Reminder - %s dose", period), body)
}

func (s *smtpService) SendWelcome(ctx context.Context, to, name string) error {
	body := fmt.Sprintf(`
		<div style="font-family: Arial, sans-serif; max-width: 600px; margin: 0 auto;">
			<h2 style="color: #4a5568;">Welcome</h2>
			<p>Hello %s,</p>
			<p>Your doctor has added you to %s. Set a password to activate your account.</p>
		</div>`,
		html.EscapeString(name), html.EscapeString(s.fromName),
	)
	return s.send(ctx, to, "Welcome to "+s.fromName, body)
}

func (s *smtpService) SendCustom(ctx context.Context, to, subject, htmlBody string) error {
	return s.send(ctx, to, subject, htmlBody)
}

func (s *smtpService) send(ctx context.Context, to, subject, body string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	msg := gomail.NewMessage()
	msg.SetAddressHeader("From", s.fromEmail, s.fromName)
	msg.SetHeader("To", to)
	msg.SetHeader("Subject", subject)
	msg.SetBody("text/html", body)

	if err := s.dialer.DialAndSend(msg); err != nil {
		return fmt.Errorf("failed to send email to %s: %w", to, err)
	}
	return nil
}
