package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("PORT", "")
	t.Setenv("ENV", "")
	t.Setenv("LOG_LEVEL", "")
	t.Setenv("LLM_PROVIDER", "")
	t.Setenv("LLM_TIMEOUT", "")
	t.Setenv("CHAT_RATE_LIMIT", "")
	t.Setenv("SUBMIT_RATE_LIMIT", "")
	t.Setenv("DEPOSIT_AMOUNT_CENTS", "")
	t.Setenv("CORS_ALLOWED_ORIGINS", "")
	cfg := Load()
	if cfg.Port != "8080" {
		t.Fatalf("expected default port, got %s", cfg.Port)
	}
	if cfg.Env != "development" {
		t.Fatalf("expected default env, got %s", cfg.Env)
	}
	if cfg.LLMProvider != "openai" {
		t.Fatalf("expected openai provider by default, got %s", cfg.LLMProvider)
	}
	if cfg.LLMTimeout != 20*time.Second {
		t.Fatalf("expected 20s llm timeout, got %s", cfg.LLMTimeout)
	}
	if cfg.ChatRateLimit != 10 || cfg.ChatRateWindow != time.Minute {
		t.Fatalf("unexpected chat rate policy %d/%s", cfg.ChatRateLimit, cfg.ChatRateWindow)
	}
	if cfg.SubmitRateLimit != 3 {
		t.Fatalf("expected submission limit 3, got %d", cfg.SubmitRateLimit)
	}
	if cfg.DepositAmountCents != 5000 {
		t.Fatalf("expected 5000 cent deposit, got %d", cfg.DepositAmountCents)
	}
	if cfg.SessionCookieName != "app_session_id" {
		t.Fatalf("unexpected cookie name %s", cfg.SessionCookieName)
	}
	if len(cfg.CORSAllowedOrigins) != 0 {
		t.Fatalf("expected no cors origins, got %v", cfg.CORSAllowedOrigins)
	}
	if cfg.IsProduction() {
		t.Fatalf("development env should not be production")
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("ENV", "production")
	t.Setenv("DATABASE_URL", "postgres://user@host/db")
	t.Setenv("LLM_TEMPERATURE", "0.2")
	t.Setenv("LLM_TIMEOUT", "15s")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example.com, ,https://b.example.com")
	t.Setenv("NOTIFY_EMAILS", "owner@example.com")
	t.Setenv("PUBLIC_BASE_URL", "https://site.example.com/")
	cfg := Load()
	if cfg.Port != "9090" {
		t.Fatalf("expected override port, got %s", cfg.Port)
	}
	if !cfg.IsProduction() {
		t.Fatalf("expected production env")
	}
	if cfg.DatabaseURL != "postgres://user@host/db" {
		t.Fatalf("expected db override, got %s", cfg.DatabaseURL)
	}
	if cfg.LLMTemperature != 0.2 {
		t.Fatalf("expected temperature override, got %v", cfg.LLMTemperature)
	}
	if cfg.LLMTimeout != 15*time.Second {
		t.Fatalf("expected timeout override, got %s", cfg.LLMTimeout)
	}
	if len(cfg.CORSAllowedOrigins) != 2 || cfg.CORSAllowedOrigins[1] != "https://b.example.com" {
		t.Fatalf("unexpected cors origins %v", cfg.CORSAllowedOrigins)
	}
	if len(cfg.NotifyRecipients) != 1 {
		t.Fatalf("unexpected recipients %v", cfg.NotifyRecipients)
	}
	if cfg.PublicBaseURL != "https://site.example.com" {
		t.Fatalf("expected trailing slash trimmed, got %s", cfg.PublicBaseURL)
	}
}

func TestInvalidNumbersFallBack(t *testing.T) {
	t.Setenv("SMTP_PORT", "not-a-number")
	t.Setenv("LLM_TEMPERATURE", "warm")
	t.Setenv("SESSION_TTL", "forever")
	cfg := Load()
	if cfg.SMTPPort != 587 {
		t.Fatalf("expected default smtp port, got %d", cfg.SMTPPort)
	}
	if cfg.LLMTemperature != 0.7 {
		t.Fatalf("expected default temperature, got %v", cfg.LLMTemperature)
	}
	if cfg.SessionTTL != 365*24*time.Hour {
		t.Fatalf("expected default session ttl, got %s", cfg.SessionTTL)
	}
}
