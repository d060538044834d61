package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/wolfman30/wellness-crm/cmd/mainconfig"
	"github.com/wolfman30/wellness-crm/internal/api/router"
	"github.com/wolfman30/wellness-crm/internal/app/bootstrap"
	"github.com/wolfman30/wellness-crm/internal/auth"
	appconfig "github.com/wolfman30/wellness-crm/internal/config"
	"github.com/wolfman30/wellness-crm/internal/http/handlers"
	"github.com/wolfman30/wellness-crm/internal/leads"
	"github.com/wolfman30/wellness-crm/internal/observability/metrics"
	"github.com/wolfman30/wellness-crm/internal/patients"
	"github.com/wolfman30/wellness-crm/internal/payments"
	"github.com/wolfman30/wellness-crm/internal/ratelimit"
	"github.com/wolfman30/wellness-crm/internal/webchat"
	"github.com/wolfman30/wellness-crm/pkg/logging"
)

func main() {
	// Load configuration
	cfg := appconfig.Load()

	// Initialize logger
	logger := logging.New(cfg.LogLevel)
	logger.Info("starting wellness-crm API server",
		"env", cfg.Env,
		"port", cfg.Port,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	redisClient := bootstrap.BuildRedisClient(ctx, cfg, logger, true)
	pool, db, err := bootstrap.BuildPostgres(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to connect to postgres", "error", err)
		os.Exit(1)
	}

	a, err := newApp(ctx, cfg, logger, pool, db, redisClient)
	if err != nil {
		logger.Error("failed to wire application", "error", err)
		os.Exit(1)
	}
	bootstrap.StartSweeper(ctx, cfg.RateLimitSweepInt, logger, a.limiters...)

	// Websocket connections outlive a per-request write deadline, so only
	// header reads are bounded here.
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           a.handler,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
	}
	if pool != nil {
		pool.Close()
	}
	if db != nil {
		_ = db.Close()
	}
	if redisClient != nil {
		_ = redisClient.Close()
	}

	logger.Info("server stopped")
	fmt.Println("Server exited gracefully")
}

type app struct {
	handler  http.Handler
	limiters []ratelimit.Limiter
}

// setupMetrics registers the CRM collectors alongside the runtime ones.
func setupMetrics() (http.Handler, *metrics.CRMMetrics) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{}), metrics.NewCRMMetrics(reg)
}

// newApp wires stores, providers and handlers into the router. pool, db and
// redisClient may be nil.
func newApp(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger, pool *pgxpool.Pool, db *sql.DB, redisClient *redis.Client) (*app, error) {
	metricsHandler, m := setupMetrics()
	if !cfg.MetricsEnabled {
		metricsHandler = nil
	}

	stores := bootstrap.BuildStores(pool, db, m, logger)
	loadAWS := mainconfig.Loader(cfg)
	notifier := bootstrap.BuildNotifier(ctx, cfg, loadAWS, logger)

	submitLimiter := bootstrap.BuildLimiter(redisClient, "submit", cfg.SubmitRateLimit, cfg.SubmitRateWindow, logger)
	escalationLimiter := bootstrap.BuildLimiter(redisClient, "chat_form", cfg.SubmitRateLimit, cfg.SubmitRateWindow, logger)
	submitter := patients.NewSubmitter(stores.Messages, notifier, m, logger)

	llm, err := bootstrap.BuildLLMClient(ctx, cfg, loadAWS, m, logger)
	if err != nil {
		return nil, err
	}
	chat, chatLimiter, err := bootstrap.BuildChatService(cfg, llm, submitter, redisClient, m, logger)
	if err != nil {
		return nil, err
	}

	dryRun := cfg.StripeDryRun || cfg.StripeSecretKey == ""
	if dryRun {
		logger.Warn("stripe dry run enabled; checkout sessions are simulated")
	}
	stripe := payments.NewStripeClient(cfg.StripeSecretKey, logger).
		WithBaseURL(cfg.StripeAPIBaseURL).
		WithDryRun(dryRun)

	routerCfg := &router.Config{
		Logger:             logger,
		Metrics:            m,
		MetricsHandler:     metricsHandler,
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
		LeadsHandler:       leads.NewHandler(stores.Leads, submitLimiter, notifier, m, logger),
		PatientsHandler:    patients.NewHandler(submitter, submitLimiter, m, logger),
		ChatHandler:        webchat.NewHandler(chat, logger),
		StripeWebhook:      payments.NewWebhookHandler(cfg.StripeWebhookSecret, stores.RawLeads, stores.Processed, notifier, stripe, m, logger),
		AdminLeads:         handlers.NewAdminLeadsHandler(stores.Leads, logger),
		AdminMessages:      handlers.NewAdminPatientMessagesHandler(stores.Messages, logger),
		EscalationLimiter:  escalationLimiter,
	}

	var users payments.UserResolver
	if cfg.SessionSecret != "" {
		sessions := auth.NewSessionManager(auth.SessionConfig{
			Secret:     cfg.SessionSecret,
			TTL:        cfg.SessionTTL,
			CookieName: cfg.SessionCookieName,
			Secure:     cfg.IsProduction(),
		})
		authenticator := auth.NewAuthenticator(sessions, stores.Users)
		users = authenticator
		routerCfg.Users = authenticator
		routerCfg.OAuthHandler = auth.NewOAuthHandler(auth.OAuthConfig{
			ClientID:     cfg.OAuthClientID,
			ClientSecret: cfg.OAuthClientSecret,
			AuthURL:      cfg.OAuthAuthURL,
			TokenURL:     cfg.OAuthTokenURL,
			UserInfoURL:  cfg.OAuthUserInfoURL,
			RedirectURL:  cfg.OAuthRedirectURL,
			OwnerOpenID:  cfg.OwnerOpenID,
		}, stores.Users, sessions, logger)
	} else {
		logger.Warn("JWT_SECRET not set; sign-in and admin routes are disabled")
	}
	routerCfg.PaymentsHandler = payments.NewHandler(stripe, users, cfg.PublicBaseURL, logger)

	return &app{
		handler:  router.New(routerCfg),
		limiters: []ratelimit.Limiter{submitLimiter, escalationLimiter, chatLimiter},
	}, nil
}
