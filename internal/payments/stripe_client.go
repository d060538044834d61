package payments

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/wolfman30/wellness-crm/pkg/logging"
)

var stripeTracer = otel.Tracer("wellness.internal.payments.stripe")

// ErrUnknownProduct is returned for ids missing from the catalogue.
var ErrUnknownProduct = errors.New("payments: unknown product")

// StripeError is a non-2xx answer from the Stripe API.
type StripeError struct {
	Status  int
	Type    string
	Code    string
	Message string
}

func (e *StripeError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("payments: stripe api status %d", e.Status)
	}
	return fmt.Sprintf("payments: stripe api status %d: %s", e.Status, e.Message)
}

// stripeErrorResponse represents a Stripe API error.
type stripeErrorResponse struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    string `json:"code"`
	} `json:"error"`
}

// PriceRef pairs the Stripe product and price created for a catalogue entry.
type PriceRef struct {
	ProductID string
	PriceID   string
}

// CheckoutSession is the subset of Stripe's Checkout Session we read.
type CheckoutSession struct {
	ID            string            `json:"id"`
	URL           string            `json:"url"`
	Status        string            `json:"status"`
	PaymentStatus string            `json:"payment_status"`
	Mode          string            `json:"mode"`
	CustomerEmail string            `json:"customer_email"`
	AmountTotal   int64             `json:"amount_total"`
	Currency      string            `json:"currency"`
	Metadata      map[string]string `json:"metadata"`
}

// Customer is the subset of a Stripe customer we read.
type Customer struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name"`
}

// CheckoutParams describes a catalogue checkout.
type CheckoutParams struct {
	ProductID  string
	UserID     string
	Email      string
	Name       string
	SuccessURL string
	CancelURL  string
}

// BookingCustomer is the contact and scheduling data collected before a
// booking deposit checkout.
type BookingCustomer struct {
	FullName        string `json:"fullName" validate:"required,min=1,max=200"`
	Email           string `json:"email" validate:"required,email,max=320"`
	Phone           string `json:"phone" validate:"required,min=1,max=20"`
	State           string `json:"state" validate:"required,oneof=PA UT Other"`
	RequestedDate   string `json:"requestedDate" validate:"required,min=1,max=32"`
	RequestedTime   string `json:"requestedTime" validate:"required,min=1,max=32"`
	SelectedProgram string `json:"selectedProgram" validate:"required,min=1,max=200"`
}

// BookingCheckoutParams describes a booking deposit checkout.
type BookingCheckoutParams struct {
	ProductID  string
	Customer   BookingCustomer
	SuccessURL string
	CancelURL  string
}

// StripeClient talks to the Stripe REST API with form-encoded requests.
type StripeClient struct {
	secretKey  string
	baseURL    string
	apiVersion string
	httpClient *http.Client
	logger     *logging.Logger
	dryRun     bool

	mu     sync.Mutex
	prices map[string]PriceRef
}

// NewStripeClient creates a Stripe client against the live API.
func NewStripeClient(secretKey string, logger *logging.Logger) *StripeClient {
	if logger == nil {
		logger = logging.Default()
	}
	return &StripeClient{
		secretKey:  secretKey,
		baseURL:    "https://api.stripe.com",
		apiVersion: "2024-12-18.acacia",
		httpClient: &http.Client{Timeout: 10 * time.Second},
		logger:     logger,
		prices:     make(map[string]PriceRef),
	}
}

// WithBaseURL overrides the Stripe API base URL (for testing).
func (c *StripeClient) WithBaseURL(baseURL string) *StripeClient {
	if baseURL != "" {
		c.baseURL = strings.TrimRight(baseURL, "/")
	}
	return c
}

// WithDryRun enables dry-run mode (returns fake URLs without calling Stripe).
func (c *StripeClient) WithDryRun(enabled bool) *StripeClient {
	c.dryRun = enabled
	return c
}

// EnsureProductPrice returns the Stripe product and price backing a catalogue
// entry, creating either when missing. Results are cached per product id.
func (c *StripeClient) EnsureProductPrice(ctx context.Context, productID string) (PriceRef, error) {
	c.mu.Lock()
	ref, ok := c.prices[productID]
	c.mu.Unlock()
	if ok {
		return ref, nil
	}

	product, ok := ProductByID(productID)
	if !ok {
		return PriceRef{}, fmt.Errorf("%w: %s", ErrUnknownProduct, productID)
	}

	ctx, span := stripeTracer.Start(ctx, "stripe.ensure_product_price")
	defer span.End()
	span.SetAttributes(attribute.String("wellness.product_id", productID))

	if c.dryRun {
		ref = PriceRef{ProductID: "prod_dryrun_" + productID, PriceID: "price_dryrun_" + productID}
	} else {
		var err error
		ref, err = c.lookupOrCreatePrice(ctx, product)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "ensure price failed")
			return PriceRef{}, err
		}
	}

	c.mu.Lock()
	c.prices[productID] = ref
	c.mu.Unlock()
	return ref, nil
}

func (c *StripeClient) lookupOrCreatePrice(ctx context.Context, product Product) (PriceRef, error) {
	var found struct {
		Data []struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	query := url.Values{}
	query.Set("query", fmt.Sprintf("metadata['local_product_id']:'%s'", product.ID))
	if err := c.do(ctx, http.MethodGet, "/v1/products/search", query, &found); err != nil {
		return PriceRef{}, fmt.Errorf("payments: search product: %w", err)
	}

	if len(found.Data) > 0 {
		ref := PriceRef{ProductID: found.Data[0].ID}
		var prices struct {
			Data []struct {
				ID string `json:"id"`
			} `json:"data"`
		}
		query := url.Values{}
		query.Set("product", ref.ProductID)
		query.Set("active", "true")
		query.Set("limit", "1")
		if err := c.do(ctx, http.MethodGet, "/v1/prices", query, &prices); err != nil {
			return PriceRef{}, fmt.Errorf("payments: list prices: %w", err)
		}
		if len(prices.Data) > 0 {
			ref.PriceID = prices.Data[0].ID
			return ref, nil
		}
		priceID, err := c.createPrice(ctx, ref.ProductID, product)
		if err != nil {
			return PriceRef{}, err
		}
		ref.PriceID = priceID
		return ref, nil
	}

	form := url.Values{}
	form.Set("name", product.Name)
	form.Set("description", product.Description)
	form.Set("metadata[local_product_id]", product.ID)
	form.Set("metadata[category]", string(product.Category))
	var created struct {
		ID string `json:"id"`
	}
	if err := c.do(ctx, http.MethodPost, "/v1/products", form, &created); err != nil {
		return PriceRef{}, fmt.Errorf("payments: create product: %w", err)
	}
	priceID, err := c.createPrice(ctx, created.ID, product)
	if err != nil {
		return PriceRef{}, err
	}
	return PriceRef{ProductID: created.ID, PriceID: priceID}, nil
}

func (c *StripeClient) createPrice(ctx context.Context, stripeProductID string, product Product) (string, error) {
	form := url.Values{}
	form.Set("product", stripeProductID)
	form.Set("unit_amount", strconv.FormatInt(product.PriceInCents, 10))
	form.Set("currency", "usd")
	if product.Recurring() {
		form.Set("recurring[interval]", string(product.Interval))
	}
	var price struct {
		ID string `json:"id"`
	}
	if err := c.do(ctx, http.MethodPost, "/v1/prices", form, &price); err != nil {
		return "", fmt.Errorf("payments: create price: %w", err)
	}
	return price.ID, nil
}

// CreateCheckoutSession opens a Checkout Session for a catalogue product.
// Recurring products open a subscription, one-time products a payment.
func (c *StripeClient) CreateCheckoutSession(ctx context.Context, params CheckoutParams) (*CheckoutSession, error) {
	product, ok := ProductByID(params.ProductID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownProduct, params.ProductID)
	}

	ctx, span := stripeTracer.Start(ctx, "stripe.create_checkout_session")
	defer span.End()
	span.SetAttributes(
		attribute.String("wellness.product_id", product.ID),
		attribute.Int64("wellness.amount_cents", product.PriceInCents),
	)

	ref, err := c.EnsureProductPrice(ctx, product.ID)
	if err != nil {
		return nil, err
	}

	mode := "payment"
	if product.Recurring() {
		mode = "subscription"
	}

	form := url.Values{}
	form.Set("mode", mode)
	form.Set("line_items[0][price]", ref.PriceID)
	form.Set("line_items[0][quantity]", "1")
	form.Set("success_url", withSessionID(params.SuccessURL))
	form.Set("cancel_url", params.CancelURL)
	form.Set("allow_promotion_codes", "true")
	form.Set("metadata[product_id]", product.ID)
	form.Set("metadata[user_id]", params.UserID)
	form.Set("metadata[customer_email]", params.Email)
	form.Set("metadata[customer_name]", params.Name)
	if params.Email != "" {
		form.Set("customer_email", params.Email)
	}
	if params.UserID != "" {
		form.Set("client_reference_id", params.UserID)
	}

	return c.createSession(ctx, span, form, "product_id", product.ID)
}

// CreateBookingCheckoutSession charges the fixed booking deposit for a
// product with an ad-hoc line item. The metadata carries everything the
// webhook needs to create the lead.
func (c *StripeClient) CreateBookingCheckoutSession(ctx context.Context, params BookingCheckoutParams) (*CheckoutSession, error) {
	product, ok := ProductByID(params.ProductID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownProduct, params.ProductID)
	}

	ctx, span := stripeTracer.Start(ctx, "stripe.create_booking_checkout_session")
	defer span.End()
	span.SetAttributes(
		attribute.String("wellness.product_id", product.ID),
		attribute.Int("wellness.amount_cents", BookingDepositCents),
	)

	cust := params.Customer
	form := url.Values{}
	form.Set("mode", "payment")
	form.Set("line_items[0][price_data][currency]", "usd")
	form.Set("line_items[0][price_data][unit_amount]", strconv.Itoa(BookingDepositCents))
	form.Set("line_items[0][price_data][product_data][name]", "Booking Deposit - "+product.Name)
	form.Set("line_items[0][price_data][product_data][description]",
		fmt.Sprintf("$50 booking deposit for %s. Applied to your first visit or first month.", product.Name))
	form.Set("line_items[0][quantity]", "1")
	form.Set("success_url", withSessionID(params.SuccessURL))
	form.Set("cancel_url", params.CancelURL)
	form.Set("customer_email", cust.Email)

	// Read back by the webhook.
	form.Set("metadata[type]", bookingDepositType)
	form.Set("metadata[product_id]", product.ID)
	form.Set("metadata[product_name]", product.Name)
	form.Set("metadata[customer_name]", cust.FullName)
	form.Set("metadata[customer_email]", cust.Email)
	form.Set("metadata[customer_phone]", cust.Phone)
	form.Set("metadata[customer_state]", cust.State)
	form.Set("metadata[requested_date]", cust.RequestedDate)
	form.Set("metadata[requested_time]", cust.RequestedTime)
	form.Set("metadata[selected_program]", cust.SelectedProgram)

	return c.createSession(ctx, span, form, "product_id", product.ID)
}

func (c *StripeClient) createSession(ctx context.Context, span trace.Span, form url.Values, logArgs ...any) (*CheckoutSession, error) {
	if c.dryRun {
		fakeID := "cs_dryrun_" + uuid.New().String()[:8]
		c.logger.Info("stripe dry run: skipping checkout session creation", logArgs...)
		return &CheckoutSession{
			ID:   fakeID,
			URL:  fmt.Sprintf("https://checkout.stripe.com/dry-run/%s", fakeID),
			Mode: form.Get("mode"),
		}, nil
	}

	var session CheckoutSession
	if err := c.do(ctx, http.MethodPost, "/v1/checkout/sessions", form, &session); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "create session failed")
		return nil, fmt.Errorf("payments: create checkout session: %w", err)
	}
	if session.URL == "" {
		return nil, fmt.Errorf("payments: stripe response missing checkout url")
	}
	return &session, nil
}

// GetCheckoutSession retrieves a session for the payment success page.
func (c *StripeClient) GetCheckoutSession(ctx context.Context, sessionID string) (*CheckoutSession, error) {
	ctx, span := stripeTracer.Start(ctx, "stripe.get_checkout_session")
	defer span.End()

	if c.dryRun {
		return &CheckoutSession{ID: sessionID, Status: "complete", PaymentStatus: "paid"}, nil
	}

	query := url.Values{}
	query.Add("expand[]", "subscription")
	query.Add("expand[]", "payment_intent")
	query.Add("expand[]", "customer")
	var session CheckoutSession
	if err := c.do(ctx, http.MethodGet, "/v1/checkout/sessions/"+url.PathEscape(sessionID), query, &session); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("payments: get checkout session: %w", err)
	}
	return &session, nil
}

// GetOrCreateCustomer finds the first customer with email or creates one.
func (c *StripeClient) GetOrCreateCustomer(ctx context.Context, email, name string) (*Customer, error) {
	ctx, span := stripeTracer.Start(ctx, "stripe.get_or_create_customer")
	defer span.End()

	if c.dryRun {
		return &Customer{ID: "cus_dryrun", Email: email, Name: name}, nil
	}

	var list struct {
		Data []Customer `json:"data"`
	}
	query := url.Values{}
	query.Set("email", email)
	query.Set("limit", "1")
	if err := c.do(ctx, http.MethodGet, "/v1/customers", query, &list); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("payments: list customers: %w", err)
	}
	if len(list.Data) > 0 {
		return &list.Data[0], nil
	}

	form := url.Values{}
	form.Set("email", email)
	if name != "" {
		form.Set("name", name)
	}
	var created Customer
	if err := c.do(ctx, http.MethodPost, "/v1/customers", form, &created); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("payments: create customer: %w", err)
	}
	return &created, nil
}

// GetCustomer retrieves a customer by id.
func (c *StripeClient) GetCustomer(ctx context.Context, customerID string) (*Customer, error) {
	ctx, span := stripeTracer.Start(ctx, "stripe.get_customer")
	defer span.End()

	if c.dryRun {
		return &Customer{ID: customerID}, nil
	}
	var cust Customer
	if err := c.do(ctx, http.MethodGet, "/v1/customers/"+url.PathEscape(customerID), nil, &cust); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("payments: get customer: %w", err)
	}
	return &cust, nil
}

// CreateBillingPortalSession returns the URL of a subscription management
// portal for the customer.
func (c *StripeClient) CreateBillingPortalSession(ctx context.Context, customerID, returnURL string) (string, error) {
	ctx, span := stripeTracer.Start(ctx, "stripe.create_billing_portal_session")
	defer span.End()

	if c.dryRun {
		return "https://billing.stripe.com/dry-run/" + customerID, nil
	}

	form := url.Values{}
	form.Set("customer", customerID)
	form.Set("return_url", returnURL)
	var portal struct {
		URL string `json:"url"`
	}
	if err := c.do(ctx, http.MethodPost, "/v1/billing_portal/sessions", form, &portal); err != nil {
		span.RecordError(err)
		return "", fmt.Errorf("payments: create billing portal session: %w", err)
	}
	return portal.URL, nil
}

// do sends a Stripe API request. GET parameters go in the query string,
// everything else is form-encoded in the body.
func (c *StripeClient) do(ctx context.Context, method, path string, params url.Values, out any) error {
	apiURL := c.baseURL + path
	var body io.Reader
	if method == http.MethodGet {
		if len(params) > 0 {
			apiURL += "?" + params.Encode()
		}
	} else {
		body = strings.NewReader(params.Encode())
	}

	req, err := http.NewRequestWithContext(ctx, method, apiURL, body)
	if err != nil {
		return fmt.Errorf("stripe request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.secretKey)
	req.Header.Set("Stripe-Version", c.apiVersion)
	if body != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("stripe http: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusMultipleChoices {
		return readStripeError(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("stripe decode: %w", err)
	}
	return nil
}

// readStripeError parses a Stripe error response body.
func readStripeError(resp *http.Response) error {
	stripeErr := &StripeError{Status: resp.StatusCode}
	data, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return stripeErr
	}
	var parsed stripeErrorResponse
	if json.Unmarshal(data, &parsed) == nil && parsed.Error.Message != "" {
		stripeErr.Type = parsed.Error.Type
		stripeErr.Code = parsed.Error.Code
		stripeErr.Message = parsed.Error.Message
		return stripeErr
	}
	stripeErr.Message = strings.TrimSpace(string(data))
	return stripeErr
}

func withSessionID(successURL string) string {
	return successURL + "?session_id={CHECKOUT_SESSION_ID}"
}
