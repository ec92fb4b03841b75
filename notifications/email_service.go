package notifications

import (
	"context"
	"fmt"
	"strings"

	"github.com/resend/resend-go/v2"
	"go.uber.org/zap"
)

type Email struct {
	ToName  string
	ToEmail string
	Subject string
	HTML    string
}

type Mailer interface {
	Send(ctx context.Context, email Email) error
}

// ResendMailer sends transactional email through the Resend API.
type ResendMailer struct {
	client *resend.Client
	sender string
	logger *zap.Logger
}

func NewResendMailer(apiKey, sender string, logger *zap.Logger) *ResendMailer {
	return &ResendMailer{client: resend.NewClient(apiKey), sender: sender, logger: logger}
}

func (m *ResendMailer) Send(ctx context.Context, email Email) error {
	if err := validateRecipient(email.ToEmail); err != nil {
		return err
	}

	to := email.ToEmail
	if email.ToName != "" {
		to = fmt.Sprintf("%s <%s>", email.ToName, email.ToEmail)
	}
	sent, err := m.client.Emails.SendWithContext(ctx, &resend.SendEmailRequest{
		From:    m.sender,
		To:      []string{to},
		Subject: email.Subject,
		Html:    email.HTML,
	})
	if err != nil {
		return fmt.Errorf("send email via resend: %w", err)
	}

	m.logger.Info("email sent", zap.String("to", email.ToEmail), zap.String("resend_id", sent.Id))
	return nil
}

// LogMailer stands in when no email API key is configured.
type LogMailer struct {
	logger *zap.Logger
}

func NewLogMailer(logger *zap.Logger) *LogMailer {
	return &LogMailer{logger: logger}
}

func (m *LogMailer) Send(_ context.Context, email Email) error {
	if err := validateRecipient(email.ToEmail); err != nil {
		return err
	}
	m.logger.Info("email client not configured, skipping send",
		zap.String("to", email.ToEmail), zap.String("subject", email.Subject))
	return nil
}

// NewMailer picks Resend when an API key is present.
func NewMailer(apiKey, sender string, logger *zap.Logger) Mailer {
	if apiKey == "" || sender == "" {
		logger.Warn("email service not configured, emails will only be logged")
		return NewLogMailer(logger)
	}
	return NewResendMailer(apiKey, sender, logger)
}

func validateRecipient(address string) error {
	if address == "" || !strings.Contains(address, "@") {
		return fmt.Errorf("invalid recipient email: %q", address)
	}
	return nil
}
