package leads

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/wolfman30/wellness-crm/internal/apperr"
	"github.com/wolfman30/wellness-crm/internal/http/middleware"
	"github.com/wolfman30/wellness-crm/internal/notify"
	"github.com/wolfman30/wellness-crm/internal/observability/metrics"
	"github.com/wolfman30/wellness-crm/internal/ratelimit"
	"github.com/wolfman30/wellness-crm/internal/sanitize"
	"github.com/wolfman30/wellness-crm/internal/validation"
	"github.com/wolfman30/wellness-crm/pkg/logging"
)

const (
	msgTooManyFromIP    = "Too many submissions from your location. Please wait a minute before trying again."
	msgTooManyFromEmail = "Too many submissions with this email. Please wait a minute before trying again."
	msgCreateFailed     = "We couldn't submit your request. Please call the office at (484) 619-2876."
)

// Notifier delivers staff notifications.
type Notifier interface {
	NotifyOwner(ctx context.Context, n notify.Notification) error
}

// Handler serves the public contact form.
type Handler struct {
	repo      Repository
	limiter   ratelimit.Limiter
	notifier  Notifier
	validator *validation.Validator
	metrics   *metrics.CRMMetrics
	logger    *logging.Logger
}

// NewHandler creates a new leads handler. limiter, notifier and m may be nil.
func NewHandler(repo Repository, limiter ratelimit.Limiter, notifier Notifier, m *metrics.CRMMetrics, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{
		repo:      repo,
		limiter:   limiter,
		notifier:  notifier,
		validator: validation.New(),
		metrics:   m,
		logger:    logger,
	}
}

// CreateLeadResponse is returned by POST /api/leads. Lead is null for
// honeypot submissions and when the store is unavailable.
type CreateLeadResponse struct {
	Success bool  `json:"success"`
	Lead    *Lead `json:"lead"`
}

// CreateLead handles POST /api/leads.
func (h *Handler) CreateLead(w http.ResponseWriter, r *http.Request) {
	var req CreateLeadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apperr.Write(w, apperr.Validation("Invalid request body"), "")
		return
	}

	// Bots get a success response so they have nothing to retry against.
	if strings.TrimSpace(req.Website) != "" {
		h.logger.Warn("honeypot triggered", "client_ip", middleware.ClientIP(r))
		h.metrics.ObserveLead("website", "honeypot")
		apperr.WriteJSON(w, http.StatusCreated, CreateLeadResponse{Success: true})
		return
	}

	if err := h.validator.Struct(req); err != nil {
		h.metrics.ObserveLead("website", "invalid")
		apperr.Write(w, apperr.Validation(err.Error()), "")
		return
	}

	if h.limiter != nil {
		if !h.limiter.Allow(r.Context(), "ip:"+middleware.ClientIP(r)) {
			h.metrics.ObserveRateLimited("lead_ip")
			apperr.Write(w, apperr.RateLimited(msgTooManyFromIP), "")
			return
		}
		if !h.limiter.Allow(r.Context(), "email:"+strings.ToLower(strings.TrimSpace(req.Email))) {
			h.metrics.ObserveRateLimited("lead_email")
			apperr.Write(w, apperr.RateLimited(msgTooManyFromEmail), "")
			return
		}
	}

	lead, err := FromRequest(req)
	if err != nil {
		apperr.Write(w, err, "")
		return
	}

	created, err := h.repo.Create(r.Context(), lead)
	if err != nil {
		h.logger.Error("failed to create lead", "error", err)
		h.metrics.ObserveLead(lead.Source, "error")
		apperr.Write(w, err, msgCreateFailed)
		return
	}
	if created == nil {
		h.metrics.ObserveLead(lead.Source, "degraded")
	} else {
		h.metrics.ObserveLead(created.Source, "created")
		h.logger.Info("lead created", "lead_id", created.ID, "interest", created.Interest)
		h.notifyNewLead(r.Context(), created)
	}

	apperr.WriteJSON(w, http.StatusCreated, CreateLeadResponse{Success: true, Lead: created})
}

// FromRequest sanitises a validated contact form into a new Lead.
func FromRequest(req CreateLeadRequest) (*Lead, error) {
	lead := &Lead{
		FullName:               sanitize.TextLimit(req.FullName, 200),
		Email:                  sanitize.Email(req.Email),
		State:                  State(req.State),
		Interest:               Interest(req.Interest),
		PreferredContactMethod: ContactMethod(req.PreferredContactMethod),
		PreferredContactTime:   sanitize.Optional(req.PreferredContactTime),
		Message:                optionalLimit(req.Message, 2000),
		Source:                 sanitize.TextLimit(req.Source, 100),
		Status:                 StatusNew,
	}
	if req.Phone != nil {
		lead.Phone = sanitize.Phone(*req.Phone)
	}
	if lead.FullName == "" {
		return nil, apperr.Validation("Full name is required")
	}
	if lead.Email == "" {
		return nil, apperr.Validation("Valid email is required")
	}
	if lead.Source == "" {
		lead.Source = DefaultSource
	}
	return lead, nil
}

func optionalLimit(s *string, limit int) *string {
	if s == nil {
		return nil
	}
	out := sanitize.TextLimit(*s, limit)
	if out == "" {
		return nil
	}
	return &out
}

func (h *Handler) notifyNewLead(ctx context.Context, lead *Lead) {
	if h.notifier == nil {
		return
	}
	if err := h.notifier.NotifyOwner(ctx, NewLeadNotification(lead)); err != nil {
		h.logger.Warn("lead notification failed", "lead_id", lead.ID, "error", err)
	}
}

// NewLeadNotification renders the staff alert for a new lead.
func NewLeadNotification(lead *Lead) notify.Notification {
	phone := lead.Phone
	if phone == "" {
		phone = "Not provided"
	}
	content := fmt.Sprintf("Interest: %s\nEmail: %s\nPhone: %s\nState: %s\nPreferred Contact: %s",
		lead.Interest, lead.Email, phone, lead.State, lead.PreferredContactMethod)
	if lead.Message != nil && *lead.Message != "" {
		content += "\n\nMessage: " + *lead.Message
	}
	return notify.Notification{
		Title:   "New Lead: " + lead.FullName,
		Content: content,
		ReplyTo: lead.Email,
	}
}
