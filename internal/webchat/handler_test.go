package webchat

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/websocket"

	"github.com/wolfman30/wellness-crm/internal/conversation"
	"github.com/wolfman30/wellness-crm/pkg/logging"
)

// stubChatter records chat requests and replays a canned result.
type stubChatter struct {
	mu       sync.Mutex
	requests []conversation.ChatRequest
	resp     conversation.ChatResponse
	err      error
}

func (s *stubChatter) Send(_ context.Context, req conversation.ChatRequest) (conversation.ChatResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests = append(s.requests, req)
	return s.resp, s.err
}

func TestGenerateSessionID(t *testing.T) {
	s1 := generateSessionID()
	s2 := generateSessionID()
	assert.NotEmpty(t, s1)
	assert.NotEqual(t, s1, s2)
	assert.Len(t, s1, 32) // 16 bytes = 32 hex chars
}

func TestHandleMessage_HTTP(t *testing.T) {
	chat := &stubChatter{resp: conversation.ChatResponse{
		Response:         "What is your full name?",
		NeedsEscalation:  true,
		EscalationReason: "medication",
	}}
	h := NewHandler(chat, logging.Discard())

	body := `{"messages":[{"role":"user","content":"I need a refill"}],"mode":"established","conversationId":"c-1"}`
	req := httptest.NewRequest(http.MethodPost, "/api/chat", strings.NewReader(body))
	req.Header.Set("X-Forwarded-For", "203.0.113.9")
	w := httptest.NewRecorder()

	h.HandleMessage(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	var resp map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "What is your full name?", resp["response"])
	assert.Equal(t, true, resp["needsEscalation"])
	assert.Equal(t, "medication", resp["escalationReason"])

	require.Len(t, chat.requests, 1)
	got := chat.requests[0]
	assert.Equal(t, "203.0.113.9", got.CallerID)
	assert.Equal(t, "established", got.Mode)
	assert.Equal(t, "c-1", got.ConversationID)
	assert.Equal(t, []conversation.ChatMessage{{Role: "user", Content: "I need a refill"}}, got.Messages)
}

func TestHandleMessage_Errors(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		err    error
		status int
		msg    string
	}{
		{"bad json", `{`, nil, http.StatusBadRequest, "Invalid request body"},
		{"rate limited", `{"messages":[]}`, conversation.ErrRateLimited, http.StatusTooManyRequests, "Too many messages. Please wait a moment before sending another message."},
		{"assistant last", `{"messages":[]}`, conversation.ErrLastMessageNotUser, http.StatusBadRequest, "Last message must be from user"},
		{"too many", `{"messages":[]}`, conversation.ErrTranscriptTooLong, http.StatusBadRequest, "A conversation can include at most 20 messages"},
		{"unexpected", `{"messages":[]}`, errors.New("boom"), http.StatusInternalServerError, msgChatFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewHandler(&stubChatter{err: tt.err}, logging.Discard())
			w := httptest.NewRecorder()
			h.HandleMessage(w, httptest.NewRequest(http.MethodPost, "/api/chat", strings.NewReader(tt.body)))

			assert.Equal(t, tt.status, w.Code)
			var resp map[string]string
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
			assert.Equal(t, tt.msg, resp["error"])
		})
	}
}

func dialChat(t *testing.T, h *Handler, query string) *websocket.Conn {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(h.HandleWebSocket))
	t.Cleanup(server.Close)

	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/api/chat/ws" + query
	conn, err := websocket.Dial(url, "", server.URL)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func TestHandleWebSocket_ChatTurn(t *testing.T) {
	state := &conversation.CollectionState{Status: conversation.CollectionGathering, Missing: []string{"email"}}
	chat := &stubChatter{resp: conversation.ChatResponse{
		Response:         "Thanks Jane! What's your email?",
		NeedsEscalation:  true,
		EscalationReason: "medication",
		CollectionState:  state,
	}}
	conn := dialChat(t, NewHandler(chat, logging.Discard()), "?session=sess-1")

	var session OutboundMessage
	require.NoError(t, websocket.JSON.Receive(conn, &session))
	assert.Equal(t, "session", session.Type)
	assert.Equal(t, "sess-1", session.ConversationID)

	require.NoError(t, websocket.JSON.Send(conn, InboundMessage{Type: "ping"}))
	var pong OutboundMessage
	require.NoError(t, websocket.JSON.Receive(conn, &pong))
	assert.Equal(t, "pong", pong.Type)

	require.NoError(t, websocket.JSON.Send(conn, InboundMessage{
		Type:     "message",
		Mode:     "established",
		Messages: []conversation.ChatMessage{{Role: "user", Content: "Jane Doe"}},
	}))

	var typing, reply OutboundMessage
	require.NoError(t, websocket.JSON.Receive(conn, &typing))
	assert.Equal(t, "typing", typing.Type)
	require.NoError(t, websocket.JSON.Receive(conn, &reply))
	assert.Equal(t, "message", reply.Type)
	assert.Equal(t, "assistant", reply.Role)
	assert.Equal(t, "Thanks Jane! What's your email?", reply.Text)
	assert.True(t, reply.NeedsEscalation)
	assert.Equal(t, "sess-1", reply.ConversationID)
	require.NotNil(t, reply.CollectionState)
	assert.Equal(t, []string{"email"}, reply.CollectionState.Missing)

	chat.mu.Lock()
	defer chat.mu.Unlock()
	require.Len(t, chat.requests, 1)
	assert.Equal(t, "sess-1", chat.requests[0].ConversationID)
	assert.Equal(t, "established", chat.requests[0].Mode)
	assert.NotEmpty(t, chat.requests[0].CallerID)
}

func TestHandleWebSocket_ErrorsStayOnConnection(t *testing.T) {
	chat := &stubChatter{err: conversation.ErrRateLimited}
	conn := dialChat(t, NewHandler(chat, logging.Discard()), "")

	var session OutboundMessage
	require.NoError(t, websocket.JSON.Receive(conn, &session))
	assert.Len(t, session.ConversationID, 32)

	for i := 0; i < 2; i++ {
		require.NoError(t, websocket.JSON.Send(conn, InboundMessage{Type: "message", Messages: []conversation.ChatMessage{{Role: "user", Content: "hi"}}}))
		var typing, failure OutboundMessage
		require.NoError(t, websocket.JSON.Receive(conn, &typing))
		require.NoError(t, websocket.JSON.Receive(conn, &failure))
		assert.Equal(t, "error", failure.Type)
		assert.Equal(t, msgTooManyMessages, failure.Text)
	}
}
