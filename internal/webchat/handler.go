// Package webchat serves the website chat widget over plain HTTP and over a
// WebSocket that carries one chat turn per frame.
package webchat

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"golang.org/x/net/websocket"

	"github.com/wolfman30/wellness-crm/internal/apperr"
	"github.com/wolfman30/wellness-crm/internal/conversation"
	"github.com/wolfman30/wellness-crm/internal/http/middleware"
	"github.com/wolfman30/wellness-crm/pkg/logging"
)

const (
	msgTooManyMessages = "Too many messages. Please wait a moment before sending another message."
	msgChatFailed      = "I'm having trouble responding right now. Please try again, or contact the office directly at (484) 619-2876."
)

// Chatter answers chat turns.
type Chatter interface {
	Send(ctx context.Context, req conversation.ChatRequest) (conversation.ChatResponse, error)
}

// Handler serves chat turns.
type Handler struct {
	chat   Chatter
	logger *logging.Logger
}

// InboundMessage is a WebSocket frame from the widget.
type InboundMessage struct {
	Type            string                        `json:"type"` // "message", "ping"
	Messages        []conversation.ChatMessage    `json:"messages"`
	Mode            string                        `json:"mode"`
	CollectionState *conversation.CollectionState `json:"collectionState,omitempty"`
}

// OutboundMessage is a WebSocket frame to the widget.
type OutboundMessage struct {
	Type             string                        `json:"type"` // "session", "typing", "message", "error", "pong"
	Text             string                        `json:"text,omitempty"`
	Role             string                        `json:"role,omitempty"`
	ConversationID   string                        `json:"conversationId,omitempty"`
	NeedsEscalation  bool                          `json:"needsEscalation,omitempty"`
	EscalationReason string                        `json:"escalationReason,omitempty"`
	CollectionState  *conversation.CollectionState `json:"collectionState,omitempty"`
	Timestamp        string                        `json:"timestamp,omitempty"`
}

func NewHandler(chat Chatter, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{chat: chat, logger: logger}
}

// generateSessionID creates a random conversation identifier.
func generateSessionID() string {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return uuid.New().String()
	}
	return hex.EncodeToString(b)
}

// HandleMessage handles POST /api/chat.
func (h *Handler) HandleMessage(w http.ResponseWriter, r *http.Request) {
	var req conversation.ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apperr.Write(w, apperr.Validation("Invalid request body"), "")
		return
	}
	req.CallerID = middleware.ClientIP(r)

	resp, err := h.chat.Send(r.Context(), req)
	if err != nil {
		apperr.Write(w, chatError(err), msgChatFailed)
		return
	}
	apperr.WriteJSON(w, http.StatusOK, resp)
}

// HandleWebSocket handles GET /api/chat/ws. The conversation id comes from
// the "session" query parameter or is generated and announced first.
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	websocket.Handler(func(conn *websocket.Conn) {
		h.serveWS(conn, r)
	}).ServeHTTP(w, r)
}

func (h *Handler) serveWS(conn *websocket.Conn, r *http.Request) {
	conversationID := r.URL.Query().Get("session")
	if conversationID == "" {
		conversationID = generateSessionID()
	}
	callerID := middleware.ClientIP(r)

	_ = websocket.JSON.Send(conn, OutboundMessage{Type: "session", ConversationID: conversationID})
	h.logger.Info("webchat: connection opened", "conversation_id", conversationID)

	for {
		var msg InboundMessage
		if err := websocket.JSON.Receive(conn, &msg); err != nil {
			h.logger.Debug("webchat: connection closed", "conversation_id", conversationID, "error", err)
			return
		}

		switch msg.Type {
		case "ping":
			_ = websocket.JSON.Send(conn, OutboundMessage{Type: "pong"})
			continue
		case "message":
		default:
			continue
		}

		_ = websocket.JSON.Send(conn, OutboundMessage{Type: "typing"})
		resp, err := h.chat.Send(r.Context(), conversation.ChatRequest{
			Messages:        msg.Messages,
			Mode:            msg.Mode,
			ConversationID:  conversationID,
			CollectionState: msg.CollectionState,
			CallerID:        callerID,
		})
		if err != nil {
			text := msgChatFailed
			var appErr *apperr.Error
			if errors.As(chatError(err), &appErr) {
				text = appErr.Message
			} else {
				h.logger.Error("webchat: chat turn failed", "conversation_id", conversationID, "error", err)
			}
			_ = websocket.JSON.Send(conn, OutboundMessage{Type: "error", Text: text})
			continue
		}

		_ = websocket.JSON.Send(conn, OutboundMessage{
			Type:             "message",
			Role:             conversation.ChatRoleAssistant,
			Text:             resp.Response,
			ConversationID:   conversationID,
			NeedsEscalation:  resp.NeedsEscalation,
			EscalationReason: resp.EscalationReason,
			CollectionState:  resp.CollectionState,
			Timestamp:        time.Now().UTC().Format(time.RFC3339),
		})
	}
}

// chatError maps chat failures to client-facing errors.
func chatError(err error) error {
	switch {
	case errors.Is(err, conversation.ErrRateLimited):
		return apperr.RateLimited(msgTooManyMessages)
	case errors.Is(err, conversation.ErrLastMessageNotUser):
		return apperr.Validation("Last message must be from user")
	case errors.Is(err, conversation.ErrEmptyTranscript):
		return apperr.Validation("At least one message is required")
	case errors.Is(err, conversation.ErrTranscriptTooLong):
		return apperr.Validation("A conversation can include at most 20 messages")
	case errors.Is(err, conversation.ErrMessageTooLong):
		return apperr.Validation("Messages must be at most 2000 characters")
	case errors.Is(err, conversation.ErrInvalidRole):
		return apperr.Validation("Message role must be user or assistant")
	case errors.Is(err, conversation.ErrInvalidMode):
		return apperr.Validation("mode must be one of: prospective established")
	}
	return err
}
