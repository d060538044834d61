package notify

import (
	"context"
	"errors"
	"fmt"

	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
	"github.com/wolfman30/wellness-crm/pkg/logging"
)

// EmailSender delivers one staff email. SendGrid, SES and SMTP implement it.
type EmailSender interface {
	Send(ctx context.Context, msg EmailMessage) error
}

// EmailMessage is a single outbound email. ReplyTo is usually the patient or
// lead address so staff can answer straight from their inbox.
type EmailMessage struct {
	To      string
	ToName  string
	ReplyTo string
	Subject string
	Body    string
	HTML    string
}

const defaultFromName = "Lehigh Valley Wellness"

var errSenderNotConfigured = errors.New("notify: sender not configured")

// identity is the From address shared by every provider.
type identity struct {
	email string
	name  string
}

func newIdentity(email, name string) identity {
	if name == "" {
		name = defaultFromName
	}
	return identity{email: email, name: name}
}

func (id identity) header() string {
	return fmt.Sprintf("%s <%s>", id.name, id.email)
}

// SendGridConfig holds configuration for SendGrid.
type SendGridConfig struct {
	APIKey    string
	FromEmail string
	FromName  string
}

// SendGridSender sends through the SendGrid v3 API.
type SendGridSender struct {
	client *sendgrid.Client
	from   identity
	logger *logging.Logger
}

// NewSendGridSender returns nil without an API key.
func NewSendGridSender(cfg SendGridConfig, logger *logging.Logger) *SendGridSender {
	if cfg.APIKey == "" {
		return nil
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &SendGridSender{
		client: sendgrid.NewSendClient(cfg.APIKey),
		from:   newIdentity(cfg.FromEmail, cfg.FromName),
		logger: logger,
	}
}

func sendGridMessage(from identity, msg EmailMessage) *mail.SGMailV3 {
	html := msg.HTML
	if html == "" {
		html = plainToHTML(msg.Body)
	}
	m := mail.NewSingleEmail(
		mail.NewEmail(from.name, from.email),
		msg.Subject,
		mail.NewEmail(msg.ToName, msg.To),
		msg.Body,
		html,
	)
	if msg.ReplyTo != "" {
		m.SetReplyTo(mail.NewEmail("", msg.ReplyTo))
	}
	return m
}

func (s *SendGridSender) Send(ctx context.Context, msg EmailMessage) error {
	if s.client == nil {
		return fmt.Errorf("notify: sendgrid: %w", errSenderNotConfigured)
	}

	resp, err := s.client.SendWithContext(ctx, sendGridMessage(s.from, msg))
	switch {
	case err != nil:
		s.logger.Error("sendgrid send failed", "error", err, "to", msg.To)
		return fmt.Errorf("notify: sendgrid send: %w", err)
	case resp.StatusCode >= 400:
		s.logger.Error("sendgrid rejected message", "status", resp.StatusCode, "body", resp.Body, "to", msg.To)
		return fmt.Errorf("notify: sendgrid status %d", resp.StatusCode)
	}

	s.logger.Info("staff email sent", "provider", "sendgrid", "to", msg.To, "subject", msg.Subject)
	return nil
}

// StubEmailSender only logs. Used when no provider is configured.
type StubEmailSender struct {
	logger *logging.Logger
}

func NewStubEmailSender(logger *logging.Logger) *StubEmailSender {
	if logger == nil {
		logger = logging.Default()
	}
	return &StubEmailSender{logger: logger}
}

func (s *StubEmailSender) Send(_ context.Context, msg EmailMessage) error {
	s.logger.Info("staff email not sent: no provider", "to", msg.To, "subject", msg.Subject)
	return nil
}

var (
	_ EmailSender = (*SendGridSender)(nil)
	_ EmailSender = (*StubEmailSender)(nil)
)
