package conversation

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	brtypes "github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/wellness-crm/internal/observability/metrics"
	"github.com/wolfman30/wellness-crm/pkg/logging"
)

func TestOpenAIClient_Complete(t *testing.T) {
	var got struct {
		Model       string        `json:"model"`
		MaxTokens   int           `json:"max_tokens"`
		Temperature float32       `json:"temperature"`
		Messages    []ChatMessage `json:"messages"`
	}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"c1","object":"chat.completion","choices":[{"index":0,"message":{"role":"assistant","content":"Hello from the model"},"finish_reason":"stop"}],"usage":{"prompt_tokens":12,"completion_tokens":4,"total_tokens":16}}`))
	}))
	defer server.Close()

	client, err := NewOpenAIClient(server.URL+"/", "test-key", "claude-sonnet-4-20250514")
	require.NoError(t, err)

	resp, err := client.Complete(context.Background(), LLMRequest{
		System:      []string{"You are helpful."},
		Messages:    []ChatMessage{{Role: ChatRoleUser, Content: "hi there"}},
		MaxTokens:   500,
		Temperature: 0.7,
	})

	require.NoError(t, err)
	assert.Equal(t, "Hello from the model", resp.Text)
	assert.Equal(t, "stop", resp.StopReason)
	assert.Equal(t, int32(16), resp.Usage.TotalTokens)

	assert.Equal(t, "claude-sonnet-4-20250514", got.Model)
	assert.Equal(t, 500, got.MaxTokens)
	assert.InDelta(t, 0.7, got.Temperature, 0.0001)
	require.Len(t, got.Messages, 2)
	assert.Equal(t, ChatMessage{Role: "system", Content: "You are helpful."}, got.Messages[0])
	assert.Equal(t, ChatMessage{Role: "user", Content: "hi there"}, got.Messages[1])
}

func TestOpenAIClient_Failures(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		empty  bool
	}{
		{"no choices", http.StatusOK, `{"id":"c1","choices":[]}`, true},
		{"blank content", http.StatusOK, `{"id":"c1","choices":[{"index":0,"message":{"role":"assistant","content":"  "}}]}`, true},
		{"server error", http.StatusInternalServerError, `{"error":{"message":"boom","type":"server_error"}}`, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer server.Close()

			client, err := NewOpenAIClient(server.URL, "k", "m")
			require.NoError(t, err)
			_, err = client.Complete(context.Background(), LLMRequest{Messages: []ChatMessage{{Role: ChatRoleUser, Content: "hi"}}})
			require.Error(t, err)
			assert.Equal(t, tt.empty, errors.Is(err, ErrEmptyCompletion))
		})
	}
}

func TestNewOpenAIClient_RequiresCredentials(t *testing.T) {
	_, err := NewOpenAIClient("", "key", "m")
	assert.Error(t, err)
	_, err = NewOpenAIClient("https://llm.example.com", "", "m")
	assert.Error(t, err)
}

type blockingLLM struct{}

func (blockingLLM) Complete(ctx context.Context, _ LLMRequest) (LLMResponse, error) {
	<-ctx.Done()
	return LLMResponse{}, ctx.Err()
}

func TestInstrumentedLLMClient(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.NewCRMMetrics(reg)

	ok := NewInstrumentedLLMClient(&fakeLLM{text: "hi"}, "openai", time.Second, m)
	resp, err := ok.Complete(context.Background(), LLMRequest{Model: "m"})
	require.NoError(t, err)
	assert.Equal(t, "hi", resp.Text)

	slow := NewInstrumentedLLMClient(blockingLLM{}, "openai", 10*time.Millisecond, m)
	_, err = slow.Complete(context.Background(), LLMRequest{Model: "m"})
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	assert.Equal(t, 2, testutil.CollectAndCount(reg, "wellness_chat_llm_latency_seconds"))
}

func TestFallbackLLMClient(t *testing.T) {
	primary := &fakeLLM{err: errors.New("throttled")}

	t.Run("uses fallback", func(t *testing.T) {
		fallback := &fakeLLM{text: "from fallback"}
		resp, err := NewFallbackLLMClient(primary, fallback, logging.Discard()).Complete(context.Background(), LLMRequest{})
		require.NoError(t, err)
		assert.Equal(t, "from fallback", resp.Text)
	})

	t.Run("no fallback", func(t *testing.T) {
		_, err := NewFallbackLLMClient(primary, nil, logging.Discard()).Complete(context.Background(), LLMRequest{})
		assert.EqualError(t, err, "throttled")
	})

	t.Run("both fail", func(t *testing.T) {
		fallback := &fakeLLM{err: errors.New("also down")}
		_, err := NewFallbackLLMClient(primary, fallback, logging.Discard()).Complete(context.Background(), LLMRequest{})
		assert.EqualError(t, err, "also down")
	})
}

type fakeConverse struct {
	input  *bedrockruntime.ConverseInput
	output *bedrockruntime.ConverseOutput
	err    error
}

func (f *fakeConverse) Converse(_ context.Context, in *bedrockruntime.ConverseInput, _ ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseOutput, error) {
	f.input = in
	return f.output, f.err
}

func TestBedrockLLMClient_Complete(t *testing.T) {
	api := &fakeConverse{output: &bedrockruntime.ConverseOutput{
		Output: &brtypes.ConverseOutputMemberMessage{Value: brtypes.Message{
			Role:    brtypes.ConversationRoleAssistant,
			Content: []brtypes.ContentBlock{&brtypes.ContentBlockMemberText{Value: " Our hours are Monday and Thursday. "}},
		}},
		StopReason: brtypes.StopReasonEndTurn,
		Usage:      &brtypes.TokenUsage{InputTokens: aws.Int32(20), OutputTokens: aws.Int32(8), TotalTokens: aws.Int32(28)},
	}}
	client := NewBedrockLLMClient(api, "anthropic.claude-3-haiku")

	resp, err := client.Complete(context.Background(), LLMRequest{
		System:      []string{"policy"},
		Messages:    []ChatMessage{{Role: ChatRoleUser, Content: "hours?"}, {Role: ChatRoleAssistant, Content: "One moment"}, {Role: ChatRoleUser, Content: "thanks"}},
		MaxTokens:   500,
		Temperature: 0.7,
	})

	require.NoError(t, err)
	assert.Equal(t, "Our hours are Monday and Thursday.", resp.Text)
	assert.Equal(t, "end_turn", resp.StopReason)
	assert.Equal(t, int32(28), resp.Usage.TotalTokens)

	require.NotNil(t, api.input)
	assert.Equal(t, "anthropic.claude-3-haiku", aws.ToString(api.input.ModelId))
	assert.Len(t, api.input.System, 1)
	assert.Len(t, api.input.Messages, 3)
	assert.Equal(t, int32(500), aws.ToInt32(api.input.InferenceConfig.MaxTokens))
}

func TestBedrockLLMClient_EmptyOutput(t *testing.T) {
	api := &fakeConverse{output: &bedrockruntime.ConverseOutput{
		Output: &brtypes.ConverseOutputMemberMessage{Value: brtypes.Message{}},
	}}
	_, err := NewBedrockLLMClient(api, "model").Complete(context.Background(), LLMRequest{Messages: userTurn("hi")})
	assert.ErrorIs(t, err, ErrEmptyCompletion)
}
