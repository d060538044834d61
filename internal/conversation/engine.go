package conversation

import (
	"context"
	"errors"
	"fmt"
	"unicode/utf8"

	"github.com/wolfman30/wellness-crm/internal/observability/metrics"
	"github.com/wolfman30/wellness-crm/internal/ratelimit"
	"github.com/wolfman30/wellness-crm/pkg/logging"
)

const (
	MaxTranscriptMessages = 20
	MaxMessageLength      = 2000

	emptyCompletionReply = "I'm sorry, I couldn't generate a response. Please try again or contact the office directly at (484) 619-2876."
)

var (
	ErrEmptyTranscript    = errors.New("conversation: transcript is empty")
	ErrTranscriptTooLong  = errors.New("conversation: transcript exceeds 20 messages")
	ErrMessageTooLong     = errors.New("conversation: message exceeds 2000 characters")
	ErrInvalidRole        = errors.New("conversation: role must be user or assistant")
	ErrRateLimited        = errors.New("conversation: rate limited")
	ErrLastMessageNotUser = errors.New("conversation: last message must be from user")
	ErrLLMUnavailable     = errors.New("conversation: no completion provider configured")
	ErrUpstream           = errors.New("conversation: completion provider failed")
)

// Turn is one chat request as seen by the engine. PriorState is the
// collection state the client echoed back from the previous reply.
type Turn struct {
	CallerID   string
	Mode       Mode
	Messages   []ChatMessage
	PriorState *CollectionState
}

// Reply is the engine's answer for a turn.
type Reply struct {
	Text             string
	NeedsEscalation  bool
	EscalationReason string
	State            *CollectionState
	// Quick is set when a canned reply short-circuited the model.
	Quick bool
}

// EngineConfig carries the completion parameters.
type EngineConfig struct {
	Model       string
	MaxTokens   int
	Temperature float64
}

// Engine decides between canned replies and model calls and interprets the
// model's control markers. It holds no per-conversation state.
type Engine struct {
	llm     LLMClient
	prompts *Prompts
	limiter ratelimit.Limiter
	cfg     EngineConfig
	metrics *metrics.CRMMetrics
	logger  *logging.Logger
}

// NewEngine wires an engine. llm may be nil, in which case every turn that
// needs the model fails with ErrLLMUnavailable.
func NewEngine(llm LLMClient, prompts *Prompts, limiter ratelimit.Limiter, cfg EngineConfig, m *metrics.CRMMetrics, logger *logging.Logger) *Engine {
	if logger == nil {
		logger = logging.Default()
	}
	if cfg.Model == "" {
		cfg.Model = "claude-sonnet-4-20250514"
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 500
	}
	return &Engine{llm: llm, prompts: prompts, limiter: limiter, cfg: cfg, metrics: m, logger: logger}
}

// ValidateTranscript checks the shape of a transcript.
func ValidateTranscript(messages []ChatMessage) error {
	if len(messages) == 0 {
		return ErrEmptyTranscript
	}
	if len(messages) > MaxTranscriptMessages {
		return ErrTranscriptTooLong
	}
	for _, m := range messages {
		if m.Role != ChatRoleUser && m.Role != ChatRoleAssistant {
			return ErrInvalidRole
		}
		if utf8.RuneCountInString(m.Content) > MaxMessageLength {
			return ErrMessageTooLong
		}
	}
	return nil
}

// Respond runs one turn.
func (e *Engine) Respond(ctx context.Context, turn Turn) (Reply, error) {
	if turn.Mode == "" {
		turn.Mode = ModeProspective
	}
	if err := ValidateTranscript(turn.Messages); err != nil {
		return Reply{}, err
	}
	if e.limiter != nil && !e.limiter.Allow(ctx, turn.CallerID) {
		e.metrics.ObserveRateLimited("chat")
		return Reply{}, ErrRateLimited
	}

	last := turn.Messages[len(turn.Messages)-1]
	if last.Role != ChatRoleUser {
		return Reply{}, ErrLastMessageNotUser
	}

	if text, ok := QuickResponse(last.Content, turn.Mode); ok {
		e.metrics.ObserveChatTurn(string(turn.Mode), "quick")
		return Reply{Text: text, Quick: true}, nil
	}

	if category, likely := DetectLikelyEscalation(last.Content); likely {
		e.metrics.ObserveEscalationHint(category)
		e.logger.Debug("chat escalation likely", "category", category, "mode", turn.Mode)
	}

	if e.llm == nil {
		e.metrics.ObserveChatTurn(string(turn.Mode), "unavailable")
		return Reply{}, ErrLLMUnavailable
	}

	req, err := e.buildRequest(turn)
	if err != nil {
		return Reply{}, err
	}
	resp, err := e.llm.Complete(ctx, req)
	if errors.Is(err, ErrEmptyCompletion) {
		e.metrics.ObserveChatTurn(string(turn.Mode), "empty")
		return Reply{Text: emptyCompletionReply}, nil
	}
	if err != nil {
		e.metrics.ObserveChatTurn(string(turn.Mode), "upstream_error")
		return Reply{}, fmt.Errorf("%w: %w", ErrUpstream, err)
	}

	parsed := ParseReply(resp.Text)
	outcome := "answered"
	if parsed.NeedsEscalation {
		outcome = "escalated"
	}
	e.metrics.ObserveChatTurn(string(turn.Mode), outcome)
	return Reply{
		Text:             parsed.Text,
		NeedsEscalation:  parsed.NeedsEscalation,
		EscalationReason: parsed.EscalationReason,
		State:            parsed.State,
	}, nil
}

func (e *Engine) buildRequest(turn Turn) (LLMRequest, error) {
	system := []string{e.prompts.System(turn.Mode)}
	if turn.PriorState != nil && turn.Mode == ModeEstablished {
		marker, err := FormatCurrentState(turn.PriorState)
		if err != nil {
			return LLMRequest{}, fmt.Errorf("conversation: encode prior state: %w", err)
		}
		system = append(system, marker)
	}
	messages := make([]ChatMessage, len(turn.Messages))
	copy(messages, turn.Messages)
	return LLMRequest{
		Model:       e.cfg.Model,
		System:      system,
		Messages:    messages,
		MaxTokens:   int32(e.cfg.MaxTokens),
		Temperature: float32(e.cfg.Temperature),
	}, nil
}
