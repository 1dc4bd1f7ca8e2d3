package mailer

import (
	"context"
	"fmt"

	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
)

// SendGridMailer delivers transactional email through the SendGrid API.
type SendGridMailer struct {
	client    *sendgrid.Client
	fromName  string
	fromEmail string
}

// NewSendGridMailer constructs a mailer; an empty API key yields a disabled mailer.
func NewSendGridMailer(apiKey, fromName, fromEmail string) *SendGridMailer {
	m := &SendGridMailer{fromName: fromName, fromEmail: fromEmail}
	if apiKey != "" {
		m.client = sendgrid.NewSendClient(apiKey)
	}
	return m
}

// Enabled reports whether the mailer can actually deliver.
func (m *SendGridMailer) Enabled() bool {
	return m != nil && m.client != nil
}

// Send delivers a plain-text email to a single recipient.
func (m *SendGridMailer) Send(ctx context.Context, toName, toEmail, subject, body string) error {
	if !m.Enabled() {
		return fmt.Errorf("mailer disabled")
	}
	from := mail.NewEmail(m.fromName, m.fromEmail)
	to := mail.NewEmail(toName, toEmail)
	message := mail.NewSingleEmail(from, subject, to, body, "")
	resp, err := m.client.SendWithContext(ctx, message)
	if err != nil {
		return fmt.Errorf("sendgrid send: %w", err)
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("sendgrid send: status %d", resp.StatusCode)
	}
	return nil
}
