package payments

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/wolfman30/wellness-crm/internal/apperr"
	"github.com/wolfman30/wellness-crm/internal/auth"
	"github.com/wolfman30/wellness-crm/internal/sanitize"
	"github.com/wolfman30/wellness-crm/internal/validation"
	"github.com/wolfman30/wellness-crm/pkg/logging"
)

const (
	msgProductNotFound  = "Product not found"
	msgSessionNotFound  = "Checkout session not found"
	msgCheckoutFailed   = "Failed to create checkout session. Please call the office at (484) 619-2876."
	msgBookingFailed    = "Failed to create booking checkout session. Please call the office at (484) 619-2876."
	msgPortalFailed     = "Failed to create billing portal session. Please call the office at (484) 619-2876."
	msgSignInForBilling = "Please sign in to manage your membership"
)

// Gateway is the payment processor surface used by the checkout handlers.
type Gateway interface {
	CreateCheckoutSession(ctx context.Context, params CheckoutParams) (*CheckoutSession, error)
	CreateBookingCheckoutSession(ctx context.Context, params BookingCheckoutParams) (*CheckoutSession, error)
	GetCheckoutSession(ctx context.Context, sessionID string) (*CheckoutSession, error)
	GetOrCreateCustomer(ctx context.Context, email, name string) (*Customer, error)
	CreateBillingPortalSession(ctx context.Context, customerID, returnURL string) (string, error)
}

// UserResolver resolves the signed-in user, if any.
type UserResolver interface {
	Authenticate(r *http.Request) (*auth.User, error)
}

// Handler serves the public checkout endpoints.
type Handler struct {
	gateway       Gateway
	users         UserResolver
	publicBaseURL string
	validator     *validation.Validator
	logger        *logging.Logger
}

// NewHandler creates the checkout handler. users may be nil, in which case
// checkouts are always anonymous.
func NewHandler(gateway Gateway, users UserResolver, publicBaseURL string, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	if publicBaseURL == "" {
		publicBaseURL = "http://localhost:3000"
	}
	return &Handler{
		gateway:       gateway,
		users:         users,
		publicBaseURL: strings.TrimRight(publicBaseURL, "/"),
		validator:     validation.New(),
		logger:        logger,
	}
}

// ListProducts handles GET /api/payments/products.
func (h *Handler) ListProducts(w http.ResponseWriter, r *http.Request) {
	apperr.WriteJSON(w, http.StatusOK, Products)
}

// GetProduct handles GET /api/payments/products/{productID}.
func (h *Handler) GetProduct(w http.ResponseWriter, r *http.Request) {
	product, ok := ProductByID(chi.URLParam(r, "productID"))
	if !ok {
		apperr.Write(w, apperr.NotFound(msgProductNotFound), "")
		return
	}
	apperr.WriteJSON(w, http.StatusOK, product)
}

// CheckoutRequest is the body of POST /api/payments/checkout.
type CheckoutRequest struct {
	ProductID string `json:"productId" validate:"required,max=100"`
	Email     string `json:"email" validate:"omitempty,email,max=320"`
	Name      string `json:"name" validate:"omitempty,max=200"`
}

// CreateCheckout handles POST /api/payments/checkout. A signed-in user's id,
// email and name fill in whatever the body leaves out.
func (h *Handler) CreateCheckout(w http.ResponseWriter, r *http.Request) {
	var req CheckoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apperr.Write(w, apperr.Validation("Invalid request body"), "")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		apperr.Write(w, apperr.Validation(err.Error()), "")
		return
	}
	if _, ok := ProductByID(req.ProductID); !ok {
		apperr.Write(w, apperr.NotFound(msgProductNotFound), "")
		return
	}

	params := CheckoutParams{
		ProductID:  req.ProductID,
		Email:      sanitize.Email(req.Email),
		Name:       sanitize.TextLimit(req.Name, 200),
		SuccessURL: h.origin(r) + "/payment/success",
		CancelURL:  h.origin(r) + "/programs",
	}
	if user := h.currentUser(r); user != nil {
		params.UserID = strconv.FormatInt(user.ID, 10)
		if params.Email == "" && user.Email != nil {
			params.Email = sanitize.Email(*user.Email)
		}
		if params.Name == "" && user.Name != nil {
			params.Name = sanitize.TextLimit(*user.Name, 200)
		}
	}

	session, err := h.gateway.CreateCheckoutSession(r.Context(), params)
	if err != nil {
		h.logger.Error("checkout session failed", "error", err, "product_id", req.ProductID)
		apperr.Write(w, err, msgCheckoutFailed)
		return
	}
	apperr.WriteJSON(w, http.StatusOK, map[string]string{"checkoutUrl": session.URL})
}

// CheckoutSessionResponse is returned to the payment success page.
type CheckoutSessionResponse struct {
	ID            string `json:"id"`
	Status        string `json:"status"`
	CustomerEmail string `json:"customerEmail"`
	AmountTotal   int64  `json:"amountTotal"`
	Currency      string `json:"currency"`
	PaymentStatus string `json:"paymentStatus"`
	Mode          string `json:"mode"`
}

// GetCheckout handles GET /api/payments/checkout/{sessionID}.
func (h *Handler) GetCheckout(w http.ResponseWriter, r *http.Request) {
	sessionID := strings.TrimSpace(chi.URLParam(r, "sessionID"))
	if sessionID == "" {
		apperr.Write(w, apperr.NotFound(msgSessionNotFound), "")
		return
	}
	session, err := h.gateway.GetCheckoutSession(r.Context(), sessionID)
	if err != nil {
		h.logger.Warn("checkout session lookup failed", "error", err, "session_id", sessionID)
		apperr.Write(w, apperr.NotFound(msgSessionNotFound), "")
		return
	}
	apperr.WriteJSON(w, http.StatusOK, CheckoutSessionResponse{
		ID:            session.ID,
		Status:        session.Status,
		CustomerEmail: session.CustomerEmail,
		AmountTotal:   session.AmountTotal,
		Currency:      session.Currency,
		PaymentStatus: session.PaymentStatus,
		Mode:          session.Mode,
	})
}

// BookingCheckoutRequest is the body of POST /api/payments/booking-checkout.
type BookingCheckoutRequest struct {
	ProductID    string          `json:"productId" validate:"required,max=100"`
	CustomerInfo BookingCustomer `json:"customerInfo"`
}

// CreateBookingCheckout handles POST /api/payments/booking-checkout.
func (h *Handler) CreateBookingCheckout(w http.ResponseWriter, r *http.Request) {
	var req BookingCheckoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apperr.Write(w, apperr.Validation("Invalid request body"), "")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		apperr.Write(w, apperr.Validation(err.Error()), "")
		return
	}
	if _, ok := ProductByID(req.ProductID); !ok {
		apperr.Write(w, apperr.NotFound(msgProductNotFound), "")
		return
	}

	cust := req.CustomerInfo
	cust.FullName = sanitize.TextLimit(cust.FullName, 200)
	cust.Email = sanitize.Email(cust.Email)
	cust.Phone = sanitize.Phone(cust.Phone)
	cust.RequestedDate = sanitize.TextLimit(cust.RequestedDate, maxScheduleLen)
	cust.RequestedTime = sanitize.TextLimit(cust.RequestedTime, maxScheduleLen)
	cust.SelectedProgram = sanitize.TextLimit(cust.SelectedProgram, 200)
	if cust.FullName == "" || cust.Email == "" {
		apperr.Write(w, apperr.Validation("Full name and a valid email are required"), "")
		return
	}

	session, err := h.gateway.CreateBookingCheckoutSession(r.Context(), BookingCheckoutParams{
		ProductID:  req.ProductID,
		Customer:   cust,
		SuccessURL: h.origin(r) + "/payment/success",
		CancelURL:  h.origin(r) + "/book",
	})
	if err != nil {
		h.logger.Error("booking checkout session failed", "error", err, "product_id", req.ProductID)
		apperr.Write(w, err, msgBookingFailed)
		return
	}
	h.logger.Info("booking checkout created", "session_id", session.ID, "product_id", req.ProductID)
	apperr.WriteJSON(w, http.StatusOK, map[string]string{"url": session.URL})
}

// CreateBillingPortal handles POST /api/payments/billing-portal for a
// signed-in user.
func (h *Handler) CreateBillingPortal(w http.ResponseWriter, r *http.Request) {
	user := h.currentUser(r)
	if user == nil {
		apperr.Write(w, apperr.Unauthorized(msgSignInForBilling), "")
		return
	}
	var email, name string
	if user.Email != nil {
		email = *user.Email
	}
	if user.Name != nil {
		name = *user.Name
	}

	customer, err := h.gateway.GetOrCreateCustomer(r.Context(), email, name)
	if err != nil {
		h.logger.Error("billing customer lookup failed", "error", err, "open_id", user.OpenID)
		apperr.Write(w, err, msgPortalFailed)
		return
	}
	portalURL, err := h.gateway.CreateBillingPortalSession(r.Context(), customer.ID, h.origin(r)+"/programs")
	if err != nil {
		h.logger.Error("billing portal session failed", "error", err, "open_id", user.OpenID)
		apperr.Write(w, err, msgPortalFailed)
		return
	}
	apperr.WriteJSON(w, http.StatusOK, map[string]string{"portalUrl": portalURL})
}

// origin is where Stripe sends the browser back to.
func (h *Handler) origin(r *http.Request) string {
	if o := strings.TrimRight(strings.TrimSpace(r.Header.Get("Origin")), "/"); o != "" {
		return o
	}
	return h.publicBaseURL
}

func (h *Handler) currentUser(r *http.Request) *auth.User {
	if u, ok := auth.UserFromContext(r.Context()); ok {
		return u
	}
	if h.users == nil {
		return nil
	}
	u, err := h.users.Authenticate(r)
	if err != nil {
		if !errors.Is(err, auth.ErrNoSession) && !errors.Is(err, auth.ErrInvalidSession) {
			h.logger.Warn("session lookup failed", "error", err)
		}
		return nil
	}
	return u
}
