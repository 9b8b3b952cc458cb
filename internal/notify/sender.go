package notify

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
)

// Message is one rendered email.
type Message struct {
	To      string
	ToName  string
	Subject string
	HTML    string
}

// Sender is the email transport.
type Sender interface {
	Send(ctx context.Context, m Message) error
}

// SendGridSender delivers through the SendGrid v3 mail API.
type SendGridSender struct {
	client *sendgrid.Client
	from   *mail.Email
}

func NewSendGridSender(apiKey, fromAddress, fromName string) *SendGridSender {
	return &SendGridSender{
		client: sendgrid.NewSendClient(apiKey),
		from:   mail.NewEmail(fromName, fromAddress),
	}
}

func (s *SendGridSender) Send(ctx context.Context, m Message) error {
	msg := mail.NewV3MailInit(s.from, m.Subject, mail.NewEmail(m.ToName, m.To), mail.NewContent("text/html", m.HTML))
	resp, err := s.client.SendWithContext(ctx, msg)
	if err != nil {
		return fmt.Errorf("sendgrid: %w", err)
	}
	if resp.StatusCode >= 300 {
		return fmt.Errorf("sendgrid: status %d: %s", resp.StatusCode, resp.Body)
	}
	return nil
}

// DisabledSender stands in when no email key is configured.
type DisabledSender struct {
	log *slog.Logger
}

func NewDisabledSender(log *slog.Logger) *DisabledSender {
	return &DisabledSender{log: log}
}

func (s *DisabledSender) Send(ctx context.Context, m Message) error {
	s.log.Warn("email not sent, no provider configured", "to", m.To, "subject", m.Subject)
	return ErrEmailDisabled
}

// SenderFor returns a SendGrid sender, or the disabled sender when apiKey is empty.
func SenderFor(apiKey, fromAddress, fromName string, log *slog.Logger) Sender {
	if apiKey == "" {
		return NewDisabledSender(log)
	}
	return NewSendGridSender(apiKey, fromAddress, fromName)
}
