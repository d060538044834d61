package notify

import (
	"context"
	"errors"
	"fmt"
	"html"
	"strings"

	"github.com/wolfman30/wellness-crm/pkg/logging"
)

const (
	maxTitleLength   = 1200
	maxContentLength = 20000
)

// ErrInvalidNotification is returned for a blank title or content.
var ErrInvalidNotification = errors.New("notify: title and content are required")

// Notification is a short staff alert. ReplyTo, when set, is the contact the
// alert is about.
type Notification struct {
	Title   string
	Content string
	ReplyTo string
}

// Service fans staff alerts out to the configured recipients.
type Service struct {
	email      EmailSender
	recipients []string
	logger     *logging.Logger
}

// NewService creates a notification service. A nil sender or empty recipient
// list turns every notification into a logged no-op.
func NewService(email EmailSender, recipients []string, logger *logging.Logger) *Service {
	if logger == nil {
		logger = logging.Default()
	}
	cleaned := make([]string, 0, len(recipients))
	for _, r := range recipients {
		if r = strings.TrimSpace(r); r != "" {
			cleaned = append(cleaned, r)
		}
	}
	return &Service{
		email:      email,
		recipients: cleaned,
		logger:     logger,
	}
}

// NotifyOwner emails n to every recipient. Per-recipient failures are joined.
func (s *Service) NotifyOwner(ctx context.Context, n Notification) error {
	if s == nil {
		return nil
	}
	title := strings.TrimSpace(n.Title)
	content := strings.TrimSpace(n.Content)
	if title == "" || content == "" {
		return ErrInvalidNotification
	}
	title = truncateRunes(title, maxTitleLength)
	content = truncateRunes(content, maxContentLength)

	if s.email == nil || len(s.recipients) == 0 {
		s.logger.Debug("notify: no email channel configured, skipping", "title", title)
		return nil
	}

	var errs []error
	for _, to := range s.recipients {
		err := s.email.Send(ctx, EmailMessage{
			To:      to,
			ReplyTo: strings.TrimSpace(n.ReplyTo),
			Subject: title,
			Body:    content,
			HTML:    plainToHTML(content),
		})
		if err != nil {
			errs = append(errs, fmt.Errorf("notify: %s: %w", to, err))
		}
	}
	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	s.logger.Info("staff notified", "title", title, "recipients", len(s.recipients))
	return nil
}

func plainToHTML(body string) string {
	return "<p>" + strings.ReplaceAll(html.EscapeString(body), "\n", "<br>") + "</p>"
}

func truncateRunes(s string, limit int) string {
	r := []rune(s)
	if len(r) <= limit {
		return s
	}
	return string(r[:limit])
}
