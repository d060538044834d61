package patients

import (
	"context"
	"fmt"

	"github.com/wolfman30/wellness-crm/internal/notify"
	"github.com/wolfman30/wellness-crm/internal/observability/metrics"
	"github.com/wolfman30/wellness-crm/internal/sanitize"
	"github.com/wolfman30/wellness-crm/pkg/logging"
)

// Notifier delivers staff notifications.
type Notifier interface {
	NotifyOwner(ctx context.Context, n notify.Notification) error
}

// Submitter creates patient messages and alerts staff about them.
type Submitter struct {
	repo     Repository
	notifier Notifier
	metrics  *metrics.CRMMetrics
	logger   *logging.Logger
}

func NewSubmitter(repo Repository, notifier Notifier, m *metrics.CRMMetrics, logger *logging.Logger) *Submitter {
	if logger == nil {
		logger = logging.Default()
	}
	return &Submitter{repo: repo, notifier: notifier, metrics: m, logger: logger}
}

// Submit stores msg and, when it was stored, sends the notification built by
// render. Store errors are returned; notification errors are only logged.
// A nil message with a nil error means the store is degraded.
func (s *Submitter) Submit(ctx context.Context, msg *PatientMessage, origin string, render func(*PatientMessage) notify.Notification) (*PatientMessage, error) {
	created, err := s.repo.Create(ctx, msg)
	if err != nil {
		s.metrics.ObservePatientMessage(origin, "error")
		return nil, fmt.Errorf("patients: submit: %w", err)
	}
	if created == nil {
		s.metrics.ObservePatientMessage(origin, "degraded")
		return nil, nil
	}
	s.metrics.ObservePatientMessage(origin, "created")
	s.logger.Info("patient message created", "message_id", created.ID, "origin", origin, "category", created.Category, "urgency", created.Urgency)

	if s.notifier != nil && render != nil {
		if err := s.notifier.NotifyOwner(ctx, render(created)); err != nil {
			s.logger.Warn("patient message notification failed", "message_id", created.ID, "error", err)
		}
	}
	return created, nil
}

// ChatNotification is the staff alert for messages raised from the chat.
func ChatNotification(msg *PatientMessage) notify.Notification {
	return notify.Notification{
		Title:   "New Patient Message: " + string(msg.Category),
		ReplyTo: msg.Email,
		Content: fmt.Sprintf("%s (%s) - %s priority\n\n%s",
			msg.PatientName, msg.Program, msg.Urgency, sanitize.Truncate(msg.Message, 200)),
	}
}

// PortalNotification is the staff alert for the patient portal form.
func PortalNotification(msg *PatientMessage) notify.Notification {
	return notify.Notification{
		Title:   "New Patient Portal Message",
		ReplyTo: msg.Email,
		Content: fmt.Sprintf("Name: %s\nEmail: %s\nProgram: %s\nCategory: %s\nUrgency: %s\n\nMessage: %s",
			msg.PatientName, msg.Email, msg.Program, msg.Category, msg.Urgency, msg.Message),
	}
}
