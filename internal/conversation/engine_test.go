package conversation

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/wellness-crm/internal/ratelimit"
	"github.com/wolfman30/wellness-crm/pkg/logging"
)

type fakeLLM struct {
	mu       sync.Mutex
	text     string
	err      error
	requests []LLMRequest
}

func (f *fakeLLM) Complete(_ context.Context, req LLMRequest) (LLMResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	if f.err != nil {
		return LLMResponse{}, f.err
	}
	return LLMResponse{Text: f.text}, nil
}

func (f *fakeLLM) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests)
}

func testPrompts(t *testing.T) *Prompts {
	t.Helper()
	p, err := LoadPrompts("", "(484) 619-2876", "info@lehighvalleywellness.com")
	require.NoError(t, err)
	return p
}

func newTestEngine(t *testing.T, llm LLMClient, limiter ratelimit.Limiter) *Engine {
	t.Helper()
	return NewEngine(llm, testPrompts(t), limiter, EngineConfig{
		Model:       "claude-sonnet-4-20250514",
		MaxTokens:   500,
		Temperature: 0.7,
	}, nil, logging.Discard())
}

func userTurn(content string) []ChatMessage {
	return []ChatMessage{{Role: ChatRoleUser, Content: content}}
}

func TestEngine_QuickResponseSkipsModel(t *testing.T) {
	llm := &fakeLLM{text: "should not be used"}
	e := newTestEngine(t, llm, nil)

	reply, err := e.Respond(context.Background(), Turn{CallerID: "ip", Messages: userTurn("hello")})

	require.NoError(t, err)
	assert.True(t, reply.Quick)
	assert.False(t, reply.NeedsEscalation)
	assert.Contains(t, reply.Text, "Welcome to Lehigh Valley Wellness")
	assert.Equal(t, 0, llm.calls())
}

func TestEngine_EmergencyNeverEscalates(t *testing.T) {
	llm := &fakeLLM{}
	e := newTestEngine(t, llm, nil)

	reply, err := e.Respond(context.Background(), Turn{Mode: ModeEstablished, Messages: userTurn("I have chest pain and need a refill")})

	require.NoError(t, err)
	assert.Contains(t, reply.Text, "911")
	assert.False(t, reply.NeedsEscalation)
	assert.Nil(t, reply.State)
	assert.Equal(t, 0, llm.calls())
}

func TestEngine_RateLimitEleventhMessage(t *testing.T) {
	limiter := ratelimit.NewMemoryLimiter(10, time.Minute, logging.Discard())
	e := newTestEngine(t, &fakeLLM{}, limiter)
	turn := Turn{CallerID: "203.0.113.9", Messages: userTurn("hi")}

	for i := 0; i < 10; i++ {
		_, err := e.Respond(context.Background(), turn)
		require.NoError(t, err, "call %d", i+1)
	}
	_, err := e.Respond(context.Background(), turn)
	assert.ErrorIs(t, err, ErrRateLimited)

	_, err = e.Respond(context.Background(), Turn{CallerID: "198.51.100.1", Messages: userTurn("hi")})
	assert.NoError(t, err)
}

func TestEngine_RejectsMalformedTranscripts(t *testing.T) {
	tooMany := make([]ChatMessage, MaxTranscriptMessages+1)
	for i := range tooMany {
		tooMany[i] = ChatMessage{Role: ChatRoleUser, Content: "x"}
	}

	tests := []struct {
		name     string
		messages []ChatMessage
		want     error
	}{
		{"empty", nil, ErrEmptyTranscript},
		{"too many", tooMany, ErrTranscriptTooLong},
		{"too long", userTurn(strings.Repeat("a", MaxMessageLength+1)), ErrMessageTooLong},
		{"bad role", []ChatMessage{{Role: "system", Content: "x"}}, ErrInvalidRole},
		{"assistant last", []ChatMessage{{Role: ChatRoleUser, Content: "hi"}, {Role: ChatRoleAssistant, Content: "hello"}}, ErrLastMessageNotUser},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			llm := &fakeLLM{text: "ok"}
			_, err := newTestEngine(t, llm, nil).Respond(context.Background(), Turn{Messages: tt.messages})
			assert.ErrorIs(t, err, tt.want)
			assert.Equal(t, 0, llm.calls())
		})
	}
}

func TestEngine_BuildsModelRequest(t *testing.T) {
	llm := &fakeLLM{text: "We offer three weight loss tiers."}
	e := newTestEngine(t, llm, nil)
	messages := userTurn("What are your weight loss program options?")

	reply, err := e.Respond(context.Background(), Turn{Mode: ModeProspective, Messages: messages})

	require.NoError(t, err)
	assert.Equal(t, "We offer three weight loss tiers.", reply.Text)
	assert.False(t, reply.Quick)
	require.Equal(t, 1, llm.calls())

	req := llm.requests[0]
	assert.Equal(t, "claude-sonnet-4-20250514", req.Model)
	assert.Equal(t, int32(500), req.MaxTokens)
	assert.InDelta(t, 0.7, req.Temperature, 0.0001)
	require.Len(t, req.System, 1)
	assert.Contains(t, req.System[0], "## Knowledge Base")
	assert.NotContains(t, req.System[0], "CRITICAL: Data Collection Flow")
	assert.Equal(t, messages, req.Messages)
}

func TestEngine_EstablishedModeCarriesCollectionFlowAndPriorState(t *testing.T) {
	llm := &fakeLLM{text: `Thanks Jane! What's the best email?
[COLLECTION_STATE: {"status":"gathering","data":{"name":"Jane Doe","category":"MEDICATION","message":"I need a refill"},"missing":["email","program"]}]`}
	e := newTestEngine(t, llm, nil)
	prior := &CollectionState{Status: CollectionGathering, Data: CollectionData{Category: "MEDICATION", Message: "I need a refill"}, Missing: []string{"name", "email", "program"}}

	reply, err := e.Respond(context.Background(), Turn{
		Mode:       ModeEstablished,
		Messages:   []ChatMessage{{Role: ChatRoleUser, Content: "I need a refill"}, {Role: ChatRoleAssistant, Content: "What is your full name?"}, {Role: ChatRoleUser, Content: "Jane Doe"}},
		PriorState: prior,
	})

	require.NoError(t, err)
	assert.Equal(t, "Thanks Jane! What's the best email?", reply.Text)
	assert.True(t, reply.NeedsEscalation)
	assert.Equal(t, "medication", reply.EscalationReason)
	require.NotNil(t, reply.State)
	assert.Equal(t, []string{"email", "program"}, reply.State.Missing)

	req := llm.requests[0]
	require.Len(t, req.System, 2)
	assert.Contains(t, req.System[0], "## Established Patient Knowledge Base")
	assert.Contains(t, req.System[0], "CRITICAL: Data Collection Flow")
	assert.True(t, strings.HasPrefix(req.System[1], "[CURRENT_COLLECTION_STATE: "))
	assert.Contains(t, req.System[1], `"missing":["name","email","program"]`)
}

func TestEngine_ProviderFailures(t *testing.T) {
	t.Run("no provider", func(t *testing.T) {
		_, err := newTestEngine(t, nil, nil).Respond(context.Background(), Turn{Messages: userTurn("tell me about HRT")})
		assert.ErrorIs(t, err, ErrLLMUnavailable)
	})

	t.Run("upstream error", func(t *testing.T) {
		cause := errors.New("502 bad gateway")
		_, err := newTestEngine(t, &fakeLLM{err: cause}, nil).Respond(context.Background(), Turn{Messages: userTurn("tell me about HRT")})
		assert.ErrorIs(t, err, ErrUpstream)
		assert.ErrorIs(t, err, cause)
	})

	t.Run("empty completion", func(t *testing.T) {
		reply, err := newTestEngine(t, &fakeLLM{err: ErrEmptyCompletion}, nil).Respond(context.Background(), Turn{Messages: userTurn("tell me about HRT")})
		require.NoError(t, err)
		assert.Equal(t, emptyCompletionReply, reply.Text)
		assert.False(t, reply.NeedsEscalation)
	})
}

func TestLoadPrompts(t *testing.T) {
	p := testPrompts(t)

	assert.Contains(t, p.System(ModeProspective), "Phone: (484) 619-2876")
	assert.Contains(t, p.System(ModeProspective), "Weight Loss – Core")
	assert.NotContains(t, p.System(ModeEstablished), "{{OFFICE_PHONE}}")
	assert.Contains(t, p.System(ModeEstablished), "Refill requests are routed")
}

func TestLoadPrompts_KnowledgeOverride(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "prospective.md"), []byte("Custom clinic facts."), 0o600))

	p, err := LoadPrompts(dir, "(555) 010-0000", "front@clinic.test")
	require.NoError(t, err)

	assert.Contains(t, p.System(ModeProspective), "Custom clinic facts.")
	assert.NotContains(t, p.System(ModeProspective), "Weight Loss – Core")
	assert.Contains(t, p.System(ModeProspective), "front@clinic.test")
	assert.Contains(t, p.System(ModeEstablished), "Refill requests are routed")
}
