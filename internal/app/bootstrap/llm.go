package bootstrap

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"

	appconfig "github.com/wolfman30/wellness-crm/internal/config"
	"github.com/wolfman30/wellness-crm/internal/conversation"
	"github.com/wolfman30/wellness-crm/internal/observability/metrics"
	"github.com/wolfman30/wellness-crm/pkg/logging"
)

// AWSConfigLoader loads the shared AWS config on first use.
type AWSConfigLoader func(ctx context.Context) (aws.Config, error)

// BuildLLMClient wires the provider named by LLM_PROVIDER, instrumented with
// tracing, latency metrics and the LLM_TIMEOUT bound. LLM_FALLBACK_PROVIDER adds
// a second provider tried when the first fails. A nil client means chat runs
// on canned replies only.
func BuildLLMClient(ctx context.Context, cfg *appconfig.Config, loadAWS AWSConfigLoader, m *metrics.CRMMetrics, logger *logging.Logger) (conversation.LLMClient, error) {
	if cfg == nil {
		return nil, fmt.Errorf("bootstrap: config is required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	if ctx == nil {
		ctx = context.Background()
	}

	primary, err := buildProvider(ctx, cfg.LLMProvider, cfg, loadAWS, m, logger)
	if err != nil {
		return nil, err
	}
	if primary == nil {
		logger.Warn("LLM provider not configured; chat will use canned replies", "provider", cfg.LLMProvider)
		return nil, nil
	}
	if cfg.LLMFallback == "" || cfg.LLMFallback == cfg.LLMProvider {
		return primary, nil
	}

	fallback, err := buildProvider(ctx, cfg.LLMFallback, cfg, loadAWS, m, logger)
	if err != nil {
		return nil, err
	}
	if fallback == nil {
		logger.Warn("LLM fallback provider not configured; continuing without fallback", "provider", cfg.LLMFallback)
		return primary, nil
	}
	logger.Info("LLM fallback enabled", "primary", cfg.LLMProvider, "fallback", cfg.LLMFallback)
	return conversation.NewFallbackLLMClient(primary, fallback, logger), nil
}

func buildProvider(ctx context.Context, name string, cfg *appconfig.Config, loadAWS AWSConfigLoader, m *metrics.CRMMetrics, logger *logging.Logger) (conversation.LLMClient, error) {
	var client conversation.LLMClient
	switch name {
	case "", "openai":
		name = "openai"
		if cfg.LLMAPIURL == "" || cfg.LLMAPIKey == "" {
			return nil, nil
		}
		c, err := conversation.NewOpenAIClient(cfg.LLMAPIURL, cfg.LLMAPIKey, cfg.LLMModel)
		if err != nil {
			return nil, fmt.Errorf("bootstrap: openai client: %w", err)
		}
		client = c
	case "bedrock":
		if cfg.BedrockModelID == "" || loadAWS == nil {
			return nil, nil
		}
		awsCfg, err := loadAWS(ctx)
		if err != nil {
			return nil, fmt.Errorf("bootstrap: load aws config: %w", err)
		}
		client = conversation.NewBedrockLLMClient(bedrockruntime.NewFromConfig(awsCfg), cfg.BedrockModelID)
	case "gemini":
		if cfg.GeminiAPIKey == "" {
			return nil, nil
		}
		c, err := conversation.NewGeminiLLMClient(ctx, cfg.GeminiAPIKey, cfg.GeminiModel)
		if err != nil {
			return nil, fmt.Errorf("bootstrap: gemini client: %w", err)
		}
		client = c
	default:
		return nil, fmt.Errorf("bootstrap: unknown LLM provider %q", name)
	}

	logger.Info("LLM provider configured", "provider", name)
	return conversation.NewInstrumentedLLMClient(client, name, cfg.LLMTimeout, m), nil
}
