package notify

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"

	"incident-portal/internal/config"
)

// Message is one outbound email.
type Message struct {
	Kind    string
	ToName  string
	ToEmail string
	Subject string
	Plain   string
	HTML    string
}

// Sender delivers a rendered message.
type Sender interface {
	Send(ctx context.Context, m Message) error
}

// SendGridSender delivers mail through the SendGrid v3 API.
type SendGridSender struct {
	client    *sendgrid.Client
	fromName  string
	fromEmail string
}

func NewSendGridSender(cfg config.SendGridConfig) *SendGridSender {
	return &SendGridSender{
		client:    sendgrid.NewSendClient(cfg.APIKey),
		fromName:  cfg.FromName,
		fromEmail: cfg.FromEmail,
	}
}

func (s *SendGridSender) Send(ctx context.Context, m Message) error {
	from := mail.NewEmail(s.fromName, s.fromEmail)
	to := mail.NewEmail(m.ToName, m.ToEmail)
	message := mail.NewSingleEmail(from, m.Subject, to, m.Plain, m.HTML)

	response, err := s.client.SendWithContext(ctx, message)
	if err != nil {
		return fmt.Errorf("notify: send email: %w", err)
	}
	if response.StatusCode >= 200 && response.StatusCode < 300 {
		return nil
	}
	return fmt.Errorf("notify: sendgrid returned status %d: %s", response.StatusCode, response.Body)
}

// LogSender writes messages to the log instead of sending them.
// Used when no SendGrid key is configured (local, dev).
type LogSender struct {
	log *slog.Logger
}

func NewLogSender(log *slog.Logger) *LogSender {
	if log == nil {
		log = slog.Default()
	}
	return &LogSender{log: log}
}

func (s *LogSender) Send(ctx context.Context, m Message) error {
	s.log.Info("email not sent (log sender)",
		slog.String("kind", m.Kind),
		slog.String("to", m.ToEmail),
		slog.String("subject", m.Subject),
		slog.String("body", m.Plain),
	)
	return nil
}
