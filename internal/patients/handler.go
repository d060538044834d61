package patients

import (
	"encoding/json"
	"net/http"

	"github.com/wolfman30/wellness-crm/internal/apperr"
	"github.com/wolfman30/wellness-crm/internal/http/middleware"
	"github.com/wolfman30/wellness-crm/internal/observability/metrics"
	"github.com/wolfman30/wellness-crm/internal/ratelimit"
	"github.com/wolfman30/wellness-crm/internal/sanitize"
	"github.com/wolfman30/wellness-crm/internal/validation"
	"github.com/wolfman30/wellness-crm/pkg/logging"
)

const (
	msgTooManyRequests = "Too many requests. Please wait a moment before trying again."
	msgSubmitFailed    = "Failed to submit message. Please call the office at (484) 619-2876."
	maxContextLength   = 10000
	maxPhoneLen        = 20
)

// Handler serves the public patient message endpoints.
type Handler struct {
	submitter *Submitter
	limiter   ratelimit.Limiter
	validator *validation.Validator
	metrics   *metrics.CRMMetrics
	logger    *logging.Logger
}

// NewHandler creates a handler. limiter may be nil.
func NewHandler(submitter *Submitter, limiter ratelimit.Limiter, m *metrics.CRMMetrics, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{
		submitter: submitter,
		limiter:   limiter,
		validator: validation.New(),
		metrics:   m,
		logger:    logger,
	}
}

// CreateMessage handles POST /api/patient-messages.
func (h *Handler) CreateMessage(w http.ResponseWriter, r *http.Request) {
	var req CreateMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apperr.Write(w, apperr.Validation("Invalid request body"), "")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		apperr.Write(w, apperr.Validation(err.Error()), "")
		return
	}
	if h.limiter != nil && !h.limiter.Allow(r.Context(), "patient-msg:"+middleware.ClientIP(r)) {
		h.metrics.ObserveRateLimited("patient_message")
		apperr.Write(w, apperr.RateLimited(msgTooManyRequests), "")
		return
	}

	msg, err := NewMessage(req.Name, req.Email, req.Phone, req.Program, req.Category, req.Message, req.Urgency)
	if err != nil {
		apperr.Write(w, err, "")
		return
	}

	created, err := h.submitter.Submit(r.Context(), msg, "portal", PortalNotification)
	if err != nil {
		h.logger.Error("failed to create patient message", "error", err)
		apperr.Write(w, err, msgSubmitFailed)
		return
	}
	apperr.WriteJSON(w, http.StatusCreated, map[string]any{"success": true, "id": idOf(created)})
}

// CreateFromChat handles POST /api/chat/patient-message, the escalation form
// inside the chat widget.
func (h *Handler) CreateFromChat(w http.ResponseWriter, r *http.Request) {
	var req ChatEscalationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apperr.Write(w, apperr.Validation("Invalid request body"), "")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		apperr.Write(w, apperr.Validation(err.Error()), "")
		return
	}

	msg, err := NewMessage(req.PatientName, req.Email, req.Phone, req.Program, req.Category, req.Message, req.Urgency)
	if err != nil {
		apperr.Write(w, err, "")
		return
	}
	if req.ConversationContext != nil && *req.ConversationContext != "" {
		transcript := truncate(*req.ConversationContext, maxContextLength)
		msg.ConversationContext = &transcript
	}

	created, err := h.submitter.Submit(r.Context(), msg, "chat_form", ChatNotification)
	if err != nil {
		h.logger.Error("failed to create patient message from chat", "error", err)
		apperr.Write(w, err, msgSubmitFailed)
		return
	}
	apperr.WriteJSON(w, http.StatusCreated, map[string]any{"success": true, "messageId": idOf(created)})
}

// NewMessage sanitises validated form fields into a NEW message.
func NewMessage(name, email string, phone *string, program, category, body, urgency string) (*PatientMessage, error) {
	msg := &PatientMessage{
		PatientName: sanitize.TextLimit(name, 200),
		Email:       sanitize.Email(email),
		Program:     Program(program),
		Category:    Category(category),
		Message:     sanitize.TextLimit(body, 2000),
		Urgency:     ParseUrgency(urgency),
		Status:      StatusNew,
	}
	if phone != nil {
		if p := truncate(sanitize.Phone(*phone), maxPhoneLen); p != "" {
			msg.Phone = &p
		}
	}
	if msg.PatientName == "" {
		return nil, apperr.Validation("Name is required")
	}
	if msg.Message == "" {
		return nil, apperr.Validation("Message is required")
	}
	return msg, nil
}

func truncate(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit])
}

func idOf(msg *PatientMessage) *string {
	if msg == nil {
		return nil
	}
	return &msg.ID
}
