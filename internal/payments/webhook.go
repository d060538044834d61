package payments

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/wolfman30/wellness-crm/internal/apperr"
	"github.com/wolfman30/wellness-crm/internal/events"
	"github.com/wolfman30/wellness-crm/internal/leads"
	"github.com/wolfman30/wellness-crm/internal/notify"
	"github.com/wolfman30/wellness-crm/internal/observability/metrics"
	"github.com/wolfman30/wellness-crm/internal/sanitize"
	"github.com/wolfman30/wellness-crm/pkg/logging"
)

const (
	stripeProvider     = "stripe"
	bookingDepositType = "booking_deposit"
	signatureTolerance = 300 * time.Second
	maxWebhookBody     = 1 << 20

	// Column widths of leads.phone and leads.requested_date/requested_time.
	maxPhoneLen    = 20
	maxScheduleLen = 32

	msgWebhookFailed = "Webhook handler failed"
)

// Sources recorded on leads created from completed checkouts.
const (
	SourceStripeCheckout = "stripe_checkout"
	SourceBookingDeposit = "stripe_booking_deposit"
)

// Notifier delivers staff notifications.
type Notifier interface {
	NotifyOwner(ctx context.Context, n notify.Notification) error
}

// CustomerLookup resolves Stripe customer ids to contact details.
type CustomerLookup interface {
	GetCustomer(ctx context.Context, customerID string) (*Customer, error)
}

// WebhookHandler reconciles Stripe webhook deliveries into the lead store.
type WebhookHandler struct {
	secret    string
	leads     leads.Repository
	processed events.Tracker
	notifier  Notifier
	customers CustomerLookup
	metrics   *metrics.CRMMetrics
	logger    *logging.Logger
	now       func() time.Time
}

// NewWebhookHandler creates the reconciler. repo must surface write errors so
// failed deliveries are retried; processed, notifier and customers may be nil.
func NewWebhookHandler(
	secret string,
	repo leads.Repository,
	processed events.Tracker,
	notifier Notifier,
	customers CustomerLookup,
	m *metrics.CRMMetrics,
	logger *logging.Logger,
) *WebhookHandler {
	if logger == nil {
		logger = logging.Default()
	}
	return &WebhookHandler{
		secret:    secret,
		leads:     repo,
		processed: processed,
		notifier:  notifier,
		customers: customers,
		metrics:   m,
		logger:    logger,
		now:       time.Now,
	}
}

// stripeEvent is the webhook envelope. The object is decoded per event type.
type stripeEvent struct {
	ID      string `json:"id"`
	Type    string `json:"type"`
	Created int64  `json:"created"`
	Data    struct {
		Object json.RawMessage `json:"object"`
	} `json:"data"`
}

// stripeSessionObject is the checkout.session object from the webhook.
type stripeSessionObject struct {
	ID            string            `json:"id"`
	Mode          string            `json:"mode"`
	PaymentIntent string            `json:"payment_intent"`
	CustomerEmail string            `json:"customer_email"`
	AmountTotal   int64             `json:"amount_total"`
	Currency      string            `json:"currency"`
	Metadata      map[string]string `json:"metadata"`
	Status        string            `json:"status"`
}

type stripeSubscriptionObject struct {
	ID       string `json:"id"`
	Customer string `json:"customer"`
	Status   string `json:"status"`
}

type stripeInvoiceObject struct {
	ID            string `json:"id"`
	CustomerEmail string `json:"customer_email"`
	AmountPaid    int64  `json:"amount_paid"`
	AmountDue     int64  `json:"amount_due"`
}

type stripePaymentIntentObject struct {
	ID     string `json:"id"`
	Amount int64  `json:"amount"`
}

// Handle serves POST /api/stripe/webhook.
func (h *WebhookHandler) Handle(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	eventType := "unknown"
	status := "ok"
	defer func() {
		h.metrics.ObserveWebhook(eventType, status)
		h.metrics.ObserveWebhookLatency(eventType, time.Since(start).Seconds())
	}()

	payload, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		status = "bad_request"
		apperr.Write(w, apperr.Validation("Invalid body"), "")
		return
	}

	if !verifyStripeSignature(h.secret, payload, r.Header.Get("Stripe-Signature"), h.now()) {
		status = "invalid_signature"
		h.logger.Warn("stripe webhook signature verification failed", "has_header", r.Header.Get("Stripe-Signature") != "")
		apperr.Write(w, apperr.Unauthorized("Invalid signature"), "")
		return
	}

	var evt stripeEvent
	if err := json.Unmarshal(payload, &evt); err != nil || evt.ID == "" {
		status = "bad_request"
		h.logger.Error("failed to decode stripe event", "error", err)
		apperr.Write(w, apperr.Validation("Invalid event"), "")
		return
	}
	eventType = evt.Type

	if strings.HasPrefix(evt.ID, "evt_test_") {
		status = "test"
		h.logger.Info("stripe test event, returning verification response", "event_id", evt.ID)
		apperr.WriteJSON(w, http.StatusOK, map[string]bool{"verified": true})
		return
	}

	ctx, span := stripeTracer.Start(r.Context(), "stripe.webhook")
	defer span.End()
	span.SetAttributes(
		attribute.String("wellness.stripe_event_id", evt.ID),
		attribute.String("wellness.stripe_event_type", evt.Type),
	)

	if h.processed != nil {
		done, err := h.processed.AlreadyProcessed(ctx, stripeProvider, evt.ID)
		if err != nil {
			status = "error"
			span.RecordError(err)
			h.logger.Error("processed lookup failed", "error", err, "event_id", evt.ID)
			apperr.WriteJSON(w, http.StatusInternalServerError, map[string]string{"error": msgWebhookFailed})
			return
		}
		if done {
			status = "duplicate"
			h.logger.Info("stripe event already processed", "event_id", evt.ID, "type", evt.Type)
			apperr.WriteJSON(w, http.StatusOK, map[string]bool{"received": true})
			return
		}
	}

	h.logger.Info("stripe webhook received", "event_id", evt.ID, "type", evt.Type)

	handled, err := h.dispatch(ctx, evt)
	if err != nil {
		status = "error"
		span.RecordError(err)
		h.logger.Error("stripe webhook handler failed", "error", err, "event_id", evt.ID, "type", evt.Type)
		apperr.WriteJSON(w, http.StatusInternalServerError, map[string]string{"error": msgWebhookFailed})
		return
	}
	if !handled {
		status = "ignored"
	}

	if h.processed != nil {
		if _, err := h.processed.MarkProcessed(ctx, stripeProvider, evt.ID); err != nil {
			h.logger.Error("failed to record processed event", "error", err, "event_id", evt.ID)
		}
	}

	apperr.WriteJSON(w, http.StatusOK, map[string]bool{"received": true})
}

// dispatch routes an event to its handler. handled is false for event types
// this service does not act on.
func (h *WebhookHandler) dispatch(ctx context.Context, evt stripeEvent) (handled bool, err error) {
	switch evt.Type {
	case "checkout.session.completed":
		var session stripeSessionObject
		if err := json.Unmarshal(evt.Data.Object, &session); err != nil {
			return true, fmt.Errorf("payments: decode checkout session: %w", err)
		}
		return true, h.checkoutCompleted(ctx, session)

	case "customer.subscription.created", "customer.subscription.updated", "customer.subscription.deleted":
		var sub stripeSubscriptionObject
		if err := json.Unmarshal(evt.Data.Object, &sub); err != nil {
			return true, fmt.Errorf("payments: decode subscription: %w", err)
		}
		h.subscriptionChanged(ctx, evt.Type, sub)
		return true, nil

	case "invoice.paid", "invoice.payment_failed":
		var inv stripeInvoiceObject
		if err := json.Unmarshal(evt.Data.Object, &inv); err != nil {
			return true, fmt.Errorf("payments: decode invoice: %w", err)
		}
		if evt.Type == "invoice.paid" {
			h.logger.Info("invoice paid", "invoice_id", inv.ID, "amount", formatCents(inv.AmountPaid))
			return true, nil
		}
		h.logger.Warn("invoice payment failed", "invoice_id", inv.ID)
		h.notify(ctx, notify.Notification{
			Title: "Payment Failed",
			Content: fmt.Sprintf("Invoice ID: %s\nCustomer: %s\nAmount: %s",
				inv.ID, orDefault(inv.CustomerEmail, "Unknown"), formatCents(inv.AmountDue)),
		})
		return true, nil

	case "payment_intent.succeeded":
		var pi stripePaymentIntentObject
		if err := json.Unmarshal(evt.Data.Object, &pi); err != nil {
			return true, fmt.Errorf("payments: decode payment intent: %w", err)
		}
		h.logger.Info("payment succeeded", "payment_intent_id", pi.ID, "amount", formatCents(pi.Amount))
		return true, nil
	}

	h.logger.Info("unhandled stripe event type", "type", evt.Type, "event_id", evt.ID)
	return false, nil
}

// checkoutCompleted records the paying customer as a lead and alerts staff.
// Lead write errors are returned so Stripe redelivers the event.
func (h *WebhookHandler) checkoutCompleted(ctx context.Context, session stripeSessionObject) error {
	lead, note := leadFromCheckout(session)
	h.logger.Info("checkout completed",
		"session_id", session.ID,
		"booking_deposit", lead.DepositStatus != nil,
		"interest", lead.Interest,
	)

	if lead.Email == "" {
		h.logger.Warn("checkout completed without customer email, skipping lead", "session_id", session.ID)
	} else if h.leads != nil {
		created, err := h.leads.Create(ctx, lead)
		switch {
		case errors.Is(err, leads.ErrDuplicatePaymentIntent):
			h.logger.Info("checkout already reconciled", "session_id", session.ID, "payment_intent_id", session.PaymentIntent)
			return nil
		case err != nil:
			h.metrics.ObserveLead(lead.Source, "error")
			return fmt.Errorf("payments: create lead: %w", err)
		case created != nil:
			h.metrics.ObserveLead(created.Source, "created")
			h.logger.Info("lead created from checkout", "lead_id", created.ID, "session_id", session.ID)
		}
	}

	h.notify(ctx, note)
	return nil
}

func (h *WebhookHandler) subscriptionChanged(ctx context.Context, eventType string, sub stripeSubscriptionObject) {
	h.logger.Info("subscription event", "type", eventType, "subscription_id", sub.ID, "status", sub.Status)

	var title, content string
	switch eventType {
	case "customer.subscription.created":
		title = "New Subscription Started"
		content = fmt.Sprintf("Subscription ID: %s\nCustomer: %s\nStatus: %s", sub.ID, h.customerEmail(ctx, sub.Customer), sub.Status)
	case "customer.subscription.deleted":
		title = "Subscription Cancelled"
		content = fmt.Sprintf("Subscription ID: %s\nCustomer: %s", sub.ID, h.customerEmail(ctx, sub.Customer))
	default:
		return
	}
	h.notify(ctx, notify.Notification{Title: title, Content: content})
}

func (h *WebhookHandler) customerEmail(ctx context.Context, customerID string) string {
	if h.customers == nil || customerID == "" {
		return "Unknown"
	}
	cust, err := h.customers.GetCustomer(ctx, customerID)
	if err != nil {
		h.logger.Warn("stripe customer lookup failed", "customer_id", customerID, "error", err)
		return "Unknown"
	}
	return orDefault(cust.Email, "Unknown")
}

func (h *WebhookHandler) notify(ctx context.Context, n notify.Notification) {
	if h.notifier == nil {
		return
	}
	if err := h.notifier.NotifyOwner(ctx, n); err != nil {
		h.logger.Warn("webhook notification failed", "title", n.Title, "error", err)
	}
}

// interestRules maps product id fragments to interests. Order matters: the
// specific weight loss tiers must match before the generic "weight".
var interestRules = []struct {
	fragment string
	interest leads.Interest
}{
	{"weight_loss_core", leads.InterestWeightLossCore},
	{"weight_loss_plus", leads.InterestWeightLossPlus},
	{"weight_loss_intensive", leads.InterestWeightLossIntensive},
	{"weight", leads.InterestWeightLoss},
	{"hormone", leads.InterestMenopauseHRT},
	{"menopause", leads.InterestMenopauseHRT},
	{"mens_ed", leads.InterestMensHealthED},
	{"mens_hair", leads.InterestMensHealthHair},
	{"mens_bundle", leads.InterestMensHealthBundle},
	{"peptide", leads.InterestPeptideTherapy},
}

// ClassifyInterest maps a purchased product id to a lead interest. Unknown
// or empty ids are GENERAL.
func ClassifyInterest(productID string) leads.Interest {
	if productID == "" {
		return leads.InterestGeneral
	}
	for _, rule := range interestRules {
		if strings.Contains(productID, rule.fragment) {
			return rule.interest
		}
	}
	return leads.InterestGeneral
}

// leadFromCheckout builds the lead and staff alert for a completed checkout
// session from its metadata.
func leadFromCheckout(session stripeSessionObject) (*leads.Lead, notify.Notification) {
	md := session.Metadata
	if md == nil {
		md = map[string]string{}
	}
	isBooking := md["type"] == bookingDepositType

	productID := md["product_id"]
	email := session.CustomerEmail
	if email == "" {
		email = md["customer_email"]
	}
	name := sanitize.TextLimit(md["customer_name"], 200)
	phone := sanitize.TextLimit(sanitize.Phone(md["customer_phone"]), maxPhoneLen)
	state := parseState(md["customer_state"])
	requestedDate := sanitize.TextLimit(md["requested_date"], maxScheduleLen)
	requestedTime := sanitize.TextLimit(md["requested_time"], maxScheduleLen)
	program := sanitize.TextLimit(md["selected_program"], 200)

	productName := program
	if product, ok := ProductByID(productID); ok {
		productName = product.Name
	}
	if productName == "" {
		productName = "Unknown Product"
	}

	kind := "payment"
	if session.Mode == "subscription" {
		kind = "subscription"
	}
	amount := formatCents(session.AmountTotal)

	lead := &leads.Lead{
		FullName:               orDefault(name, "Stripe Customer"),
		Email:                  sanitize.Email(email),
		Phone:                  phone,
		State:                  state,
		Interest:               ClassifyInterest(productID),
		PreferredContactMethod: leads.ContactEmail,
		Source:                 SourceStripeCheckout,
		Status:                 leads.StatusNew,
		RequestedDate:          nonEmpty(requestedDate),
		RequestedTime:          nonEmpty(requestedTime),
		SelectedProgram:        nonEmpty(program),
		StripePaymentIntentID:  nonEmpty(session.PaymentIntent),
	}

	var message string
	var note notify.Notification
	if isBooking {
		paid := leads.DepositPaid
		lead.DepositStatus = &paid
		lead.Source = SourceBookingDeposit
		message = fmt.Sprintf("BOOKING DEPOSIT PAID - $50\n\nSelected Program: %s\nRequested Date: %s\nRequested Time: %s\n\nPlease contact patient to confirm appointment.",
			program, requestedDate, requestedTime)
		note = notify.Notification{
			Title:   "New Booking Deposit: " + program,
			ReplyTo: lead.Email,
			Content: fmt.Sprintf("Customer: %s\nEmail: %s\nPhone: %s\nState: %s\n\nProgram: %s\nRequested Date: %s\nRequested Time: %s\n\nDeposit: $50 PAID\n\nPlease contact patient to confirm appointment.",
				orDefault(name, "Unknown"), orDefault(email, "Unknown"), orDefault(phone, "Not provided"), state,
				program, requestedDate, requestedTime),
		}
	} else {
		message = fmt.Sprintf("New %s for %s. Amount: %s", kind, productName, amount)
		title := "New Payment: "
		if kind == "subscription" {
			title = "New Subscription: "
		}
		note = notify.Notification{
			Title:   title + productName,
			ReplyTo: lead.Email,
			Content: fmt.Sprintf("Customer: %s\nEmail: %s\nProduct: %s\nAmount: %s",
				orDefault(name, "Unknown"), orDefault(email, "Unknown"), productName, amount),
		}
	}
	lead.Message = &message
	return lead, note
}

func parseState(s string) leads.State {
	switch leads.State(strings.TrimSpace(s)) {
	case "":
		return leads.StatePA
	case leads.StatePA:
		return leads.StatePA
	case leads.StateUT:
		return leads.StateUT
	default:
		return leads.StateOther
	}
}

// formatCents renders cents as dollars with two decimals.
func formatCents(cents int64) string {
	sign := ""
	if cents < 0 {
		sign = "-"
		cents = -cents
	}
	return fmt.Sprintf("%s$%d.%02d", sign, cents/100, cents%100)
}

func orDefault(s, fallback string) string {
	if strings.TrimSpace(s) == "" {
		return fallback
	}
	return s
}

func nonEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// verifyStripeSignature checks a Stripe-Signature header of the form
// t=<timestamp>,v1=<signature>[,v1=...]. An empty secret rejects everything.
func verifyStripeSignature(secret string, payload []byte, header string, now time.Time) bool {
	if secret == "" || header == "" {
		return false
	}

	var timestamp string
	var signatures []string
	for _, part := range strings.Split(header, ",") {
		key, value, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			continue
		}
		switch key {
		case "t":
			timestamp = value
		case "v1":
			signatures = append(signatures, value)
		}
	}
	if timestamp == "" || len(signatures) == 0 {
		return false
	}

	ts, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return false
	}
	if abs64(now.Unix()-ts) > int64(signatureTolerance/time.Second) {
		return false
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(timestamp))
	mac.Write([]byte("."))
	mac.Write(payload)
	expected := hex.EncodeToString(mac.Sum(nil))

	for _, sig := range signatures {
		if hmac.Equal([]byte(sig), []byte(expected)) {
			return true
		}
	}
	return false
}

func abs64(n int64) int64 {
	if n < 0 {
		return -n
	}
	return n
}
