package bootstrap

import (
	"fmt"

	"github.com/redis/go-redis/v9"

	appconfig "github.com/wolfman30/wellness-crm/internal/config"
	"github.com/wolfman30/wellness-crm/internal/conversation"
	"github.com/wolfman30/wellness-crm/internal/observability/metrics"
	"github.com/wolfman30/wellness-crm/internal/patients"
	"github.com/wolfman30/wellness-crm/internal/ratelimit"
	"github.com/wolfman30/wellness-crm/pkg/logging"
)

// BuildChatService wires the chat engine and its submission path. llm may be
// nil. The returned limiter is the chat limiter, for sweeping.
func BuildChatService(cfg *appconfig.Config, llm conversation.LLMClient, submitter *patients.Submitter, redisClient *redis.Client, m *metrics.CRMMetrics, logger *logging.Logger) (*conversation.Service, ratelimit.Limiter, error) {
	if cfg == nil {
		return nil, nil, fmt.Errorf("bootstrap: config is required")
	}
	if logger == nil {
		logger = logging.Default()
	}

	prompts, err := conversation.LoadPrompts(cfg.KnowledgeBaseDir, cfg.OfficePhone, cfg.OfficeEmail)
	if err != nil {
		return nil, nil, fmt.Errorf("bootstrap: load prompts: %w", err)
	}

	limiter := BuildLimiter(redisClient, "chat", cfg.ChatRateLimit, cfg.ChatRateWindow, logger)
	engine := conversation.NewEngine(llm, prompts, limiter, conversation.EngineConfig{
		Model:       cfg.LLMModel,
		MaxTokens:   cfg.LLMMaxTokens,
		Temperature: cfg.LLMTemperature,
	}, m, logger)

	var tracker conversation.SubmissionTracker
	if redisClient != nil {
		tracker = conversation.NewRedisTracker(redisClient, "chat:submitted:", cfg.SubmissionDedupe)
	} else {
		tracker = conversation.NewMemoryTracker(cfg.SubmissionDedupe)
	}

	logger.Info("chat service configured", "model", cfg.LLMModel, "shared_state", redisClient != nil)
	return conversation.NewService(engine, submitter, tracker, logger), limiter, nil
}
