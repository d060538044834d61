package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration
type Config struct {
	Port               string
	Env                string
	PublicBaseURL      string
	LogLevel           string
	DatabaseURL        string
	CORSAllowedOrigins []string
	MetricsEnabled     bool

	// Practice contact details used in canned replies.
	OfficePhone string
	OfficeEmail string

	// Session + OAuth
	SessionSecret     string
	SessionCookieName string
	SessionTTL        time.Duration
	OwnerOpenID       string
	OAuthClientID     string
	OAuthClientSecret string
	OAuthAuthURL      string
	OAuthTokenURL     string
	OAuthUserInfoURL  string
	OAuthRedirectURL  string

	// Chat completion gateway
	LLMProvider       string
	LLMFallback       string
	LLMAPIURL         string
	LLMAPIKey         string
	LLMModel          string
	LLMMaxTokens      int
	LLMTemperature    float64
	LLMTimeout        time.Duration
	BedrockModelID    string
	GeminiAPIKey      string
	GeminiModel       string
	KnowledgeBaseDir  string
	SubmissionDedupe  time.Duration
	ChatRateLimit     int
	ChatRateWindow    time.Duration
	SubmitRateLimit   int
	SubmitRateWindow  time.Duration
	RateLimitSweepInt time.Duration

	// Stripe
	StripeSecretKey     string
	StripeWebhookSecret string
	StripeAPIBaseURL    string
	StripeDryRun        bool
	DepositAmountCents  int

	// AWS
	AWSRegion           string
	AWSAccessKeyID      string
	AWSSecretAccessKey  string
	AWSEndpointOverride string

	// Redis (optional; enables shared rate limiting + submission tracking)
	RedisAddr     string
	RedisPassword string
	RedisTLS      bool

	// Staff notifications
	EmailProvider     string
	NotifyRecipients  []string
	SendGridAPIKey    string
	SendGridFromEmail string
	SendGridFromName  string
	SESFromEmail      string
	SMTPHost          string
	SMTPPort          int
	SMTPUsername      string
	SMTPPassword      string
	SMTPFromEmail     string
}

// Load reads configuration from environment variables. A local .env file is
// honoured when present.
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		Port:               getEnv("PORT", "8080"),
		Env:                getEnv("ENV", "development"),
		PublicBaseURL:      strings.TrimRight(getEnv("PUBLIC_BASE_URL", "http://localhost:3000"), "/"),
		LogLevel:           getEnv("LOG_LEVEL", "info"),
		DatabaseURL:        getEnv("DATABASE_URL", ""),
		CORSAllowedOrigins: getEnvAsList("CORS_ALLOWED_ORIGINS", nil),
		MetricsEnabled:     getEnvAsBool("METRICS_ENABLED", true),

		OfficePhone: getEnv("OFFICE_PHONE", "(484) 619-2876"),
		OfficeEmail: getEnv("OFFICE_EMAIL", "info@lehighvalleywellness.com"),

		SessionSecret:     getEnv("JWT_SECRET", ""),
		SessionCookieName: getEnv("SESSION_COOKIE_NAME", "app_session_id"),
		SessionTTL:        getEnvAsDuration("SESSION_TTL", 365*24*time.Hour),
		OwnerOpenID:       getEnv("OWNER_OPEN_ID", ""),
		OAuthClientID:     getEnv("OAUTH_CLIENT_ID", ""),
		OAuthClientSecret: getEnv("OAUTH_CLIENT_SECRET", ""),
		OAuthAuthURL:      getEnv("OAUTH_AUTH_URL", ""),
		OAuthTokenURL:     getEnv("OAUTH_TOKEN_URL", ""),
		OAuthUserInfoURL:  getEnv("OAUTH_USERINFO_URL", ""),
		OAuthRedirectURL:  getEnv("OAUTH_REDIRECT_URL", ""),

		LLMProvider:       strings.ToLower(strings.TrimSpace(getEnv("LLM_PROVIDER", "openai"))),
		LLMFallback:       strings.ToLower(strings.TrimSpace(getEnv("LLM_FALLBACK_PROVIDER", ""))),
		LLMAPIURL:         strings.TrimRight(getEnv("LLM_API_URL", ""), "/"),
		LLMAPIKey:         getEnv("LLM_API_KEY", ""),
		LLMModel:          getEnv("LLM_MODEL", "claude-sonnet-4-20250514"),
		LLMMaxTokens:      getEnvAsInt("LLM_MAX_TOKENS", 500),
		LLMTemperature:    getEnvAsFloat("LLM_TEMPERATURE", 0.7),
		LLMTimeout:        getEnvAsDuration("LLM_TIMEOUT", 20*time.Second),
		BedrockModelID:    getEnv("BEDROCK_MODEL_ID", ""),
		GeminiAPIKey:      getEnv("GEMINI_API_KEY", ""),
		GeminiModel:       getEnv("GEMINI_MODEL", "gemini-1.5-flash"),
		KnowledgeBaseDir:  getEnv("KNOWLEDGE_BASE_DIR", ""),
		SubmissionDedupe:  getEnvAsDuration("CHAT_SUBMISSION_DEDUPE_TTL", 24*time.Hour),
		ChatRateLimit:     getEnvAsInt("CHAT_RATE_LIMIT", 10),
		ChatRateWindow:    getEnvAsDuration("CHAT_RATE_WINDOW", time.Minute),
		SubmitRateLimit:   getEnvAsInt("SUBMIT_RATE_LIMIT", 3),
		SubmitRateWindow:  getEnvAsDuration("SUBMIT_RATE_WINDOW", time.Minute),
		RateLimitSweepInt: getEnvAsDuration("RATE_LIMIT_SWEEP_INTERVAL", 5*time.Minute),

		StripeSecretKey:     getEnv("STRIPE_SECRET_KEY", ""),
		StripeWebhookSecret: getEnv("STRIPE_WEBHOOK_SECRET", ""),
		StripeAPIBaseURL:    getEnv("STRIPE_API_BASE_URL", "https://api.stripe.com"),
		StripeDryRun:        getEnvAsBool("STRIPE_DRY_RUN", false),
		DepositAmountCents:  getEnvAsInt("DEPOSIT_AMOUNT_CENTS", 5000),

		AWSRegion:           getEnv("AWS_REGION", "us-east-1"),
		AWSAccessKeyID:      getEnv("AWS_ACCESS_KEY_ID", ""),
		AWSSecretAccessKey:  getEnv("AWS_SECRET_ACCESS_KEY", ""),
		AWSEndpointOverride: getEnv("AWS_ENDPOINT_OVERRIDE", ""),

		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisTLS:      getEnvAsBool("REDIS_TLS", false),

		EmailProvider:     strings.ToLower(strings.TrimSpace(getEnv("EMAIL_PROVIDER", ""))),
		NotifyRecipients:  getEnvAsList("NOTIFY_EMAILS", nil),
		SendGridAPIKey:    getEnv("SENDGRID_API_KEY", ""),
		SendGridFromEmail: getEnv("SENDGRID_FROM_EMAIL", ""),
		SendGridFromName:  getEnv("SENDGRID_FROM_NAME", "Lehigh Valley Wellness"),
		SESFromEmail:      getEnv("SES_FROM_EMAIL", ""),
		SMTPHost:          getEnv("SMTP_HOST", ""),
		SMTPPort:          getEnvAsInt("SMTP_PORT", 587),
		SMTPUsername:      getEnv("SMTP_USERNAME", ""),
		SMTPPassword:      getEnv("SMTP_PASSWORD", ""),
		SMTPFromEmail:     getEnv("SMTP_FROM_EMAIL", ""),
	}
}

// IsProduction reports whether the service runs with ENV=production.
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Env, "production")
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt retrieves an environment variable as an integer or returns a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseFloat(valueStr, 64); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsBool retrieves an environment variable as a boolean or returns a default value
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsList splits a comma separated variable, dropping blanks.
func getEnvAsList(key string, defaultValue []string) []string {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(valueStr, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
