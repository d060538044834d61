package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/wolfman30/wellness-crm/internal/apperr"
	"github.com/wolfman30/wellness-crm/internal/auth"
	"github.com/wolfman30/wellness-crm/internal/http/handlers"
	httpmiddleware "github.com/wolfman30/wellness-crm/internal/http/middleware"
	"github.com/wolfman30/wellness-crm/internal/leads"
	"github.com/wolfman30/wellness-crm/internal/observability/metrics"
	"github.com/wolfman30/wellness-crm/internal/patients"
	"github.com/wolfman30/wellness-crm/internal/payments"
	"github.com/wolfman30/wellness-crm/internal/ratelimit"
	"github.com/wolfman30/wellness-crm/internal/webchat"
	"github.com/wolfman30/wellness-crm/pkg/logging"
)

// Config holds router configuration
type Config struct {
	Logger             *logging.Logger
	Metrics            *metrics.CRMMetrics
	MetricsHandler     http.Handler
	CORSAllowedOrigins []string

	LeadsHandler    *leads.Handler
	PatientsHandler *patients.Handler
	ChatHandler     *webchat.Handler
	PaymentsHandler *payments.Handler
	StripeWebhook   *payments.WebhookHandler
	OAuthHandler    *auth.OAuthHandler

	AdminLeads    *handlers.AdminLeadsHandler
	AdminMessages *handlers.AdminPatientMessagesHandler

	// Users resolves the session on gated routes. Nil disables them.
	Users httpmiddleware.UserResolver

	// EscalationLimiter guards the chat escalation form.
	EscalationLimiter ratelimit.Limiter
}

// New creates a new Chi router with all routes configured
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	if len(cfg.CORSAllowedOrigins) > 0 {
		r.Use(httpmiddleware.CORS(cfg.CORSAllowedOrigins))
	}
	if cfg.Logger != nil {
		r.Use(httpmiddleware.RequestLogger(cfg.Logger))
	}

	r.Get("/api/health", health)
	if cfg.MetricsHandler != nil {
		r.Handle("/metrics", cfg.MetricsHandler)
	}

	r.Route("/api", func(api chi.Router) {
		if cfg.LeadsHandler != nil {
			api.Post("/leads", cfg.LeadsHandler.CreateLead)
		}
		if cfg.PatientsHandler != nil {
			api.Post("/patient-messages", cfg.PatientsHandler.CreateMessage)
		}

		api.Route("/chat", func(chat chi.Router) {
			if cfg.ChatHandler != nil {
				chat.With(middleware.Compress(5)).Post("/", cfg.ChatHandler.HandleMessage)
				chat.Get("/ws", cfg.ChatHandler.HandleWebSocket)
			}
			if cfg.PatientsHandler != nil {
				chat.With(httpmiddleware.RateLimit(httpmiddleware.RateLimitPolicy{
					Name:    "chat_escalation",
					Limiter: cfg.EscalationLimiter,
				}, cfg.Metrics)).Post("/patient-message", cfg.PatientsHandler.CreateFromChat)
			}
		})

		if cfg.PaymentsHandler != nil {
			api.Route("/payments", func(pay chi.Router) {
				pay.Use(middleware.Compress(5))
				pay.Get("/products", cfg.PaymentsHandler.ListProducts)
				pay.Get("/products/{productID}", cfg.PaymentsHandler.GetProduct)
				pay.Post("/checkout", cfg.PaymentsHandler.CreateCheckout)
				pay.Get("/checkout/{sessionID}", cfg.PaymentsHandler.GetCheckout)
				pay.Post("/booking-checkout", cfg.PaymentsHandler.CreateBookingCheckout)
				if cfg.Users != nil {
					pay.With(httpmiddleware.RequireRole(cfg.Users, auth.RoleUser, cfg.Logger)).
						Post("/billing-portal", cfg.PaymentsHandler.CreateBillingPortal)
				}
			})
		}
		if cfg.StripeWebhook != nil {
			api.Post("/stripe/webhook", cfg.StripeWebhook.Handle)
		}

		if cfg.OAuthHandler != nil {
			api.Get("/oauth/login", cfg.OAuthHandler.Login)
			api.Get("/oauth/callback", cfg.OAuthHandler.Callback)
			api.Get("/auth/me", cfg.OAuthHandler.Me)
			api.Post("/auth/logout", cfg.OAuthHandler.Logout)
		}

		// Admin routes. The role gate runs before any handler reads data.
		if cfg.Users != nil {
			api.Route("/admin", func(admin chi.Router) {
				admin.Use(httpmiddleware.RequireRole(cfg.Users, auth.RoleStaff, cfg.Logger))
				admin.Get("/me", handlers.CurrentUser)
				if cfg.AdminLeads != nil {
					admin.Get("/leads", cfg.AdminLeads.ListLeads)
					admin.With(httpmiddleware.RequireRole(cfg.Users, auth.RoleAdmin, cfg.Logger)).
						Get("/leads/export", cfg.AdminLeads.ExportLeads)
					admin.Get("/leads/{id}", cfg.AdminLeads.GetLead)
					admin.Patch("/leads/{id}", cfg.AdminLeads.UpdateLead)
					admin.Post("/leads/{id}/contacted", cfg.AdminLeads.MarkContacted)
				}
				if cfg.AdminMessages != nil {
					admin.Get("/patient-messages", cfg.AdminMessages.ListMessages)
					admin.Get("/patient-messages/{id}", cfg.AdminMessages.GetMessage)
					admin.Patch("/patient-messages/{id}", cfg.AdminMessages.UpdateMessage)
				}
			})
		}
	})

	return r
}

func health(w http.ResponseWriter, r *http.Request) {
	apperr.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
