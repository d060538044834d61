package conversation

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"

	"github.com/wolfman30/wellness-crm/internal/patients"
	"github.com/wolfman30/wellness-crm/pkg/logging"
)

const (
	unavailableReply = "I'm temporarily unavailable. Please contact the office directly at (484) 619-2876 or email info@lehighvalleywellness.com."
	troubleReply     = "I'm having trouble responding right now. Please try again, or contact the office directly at (484) 619-2876."

	maxStoredTranscript = 10000
)

// ChatRequest is one chat turn from the widget. ConversationID and
// CollectionState are optional; the widget echoes back the state it last
// received so a multi-turn collection can resume.
type ChatRequest struct {
	Messages        []ChatMessage    `json:"messages"`
	Mode            string           `json:"mode"`
	ConversationID  string           `json:"conversationId,omitempty"`
	CollectionState *CollectionState `json:"collectionState,omitempty"`

	CallerID string `json:"-"`
}

// ChatResponse is the reply rendered to the widget.
type ChatResponse struct {
	Response         string           `json:"response"`
	NeedsEscalation  bool             `json:"needsEscalation"`
	EscalationReason string           `json:"escalationReason,omitempty"`
	CollectionState  *CollectionState `json:"collectionState,omitempty"`
}

// Service runs chat turns and persists completed staff requests.
type Service struct {
	engine    *Engine
	submitter *patients.Submitter
	tracker   SubmissionTracker
	logger    *logging.Logger
}

// NewService wires the chat service. submitter and tracker may be nil; without
// a tracker every submitted state is persisted.
func NewService(engine *Engine, submitter *patients.Submitter, tracker SubmissionTracker, logger *logging.Logger) *Service {
	if logger == nil {
		logger = logging.Default()
	}
	return &Service{engine: engine, submitter: submitter, tracker: tracker, logger: logger}
}

// Send answers one chat turn. Rate limiting, malformed transcripts and a
// trailing assistant message are returned as errors; provider failures become
// canned replies.
func (s *Service) Send(ctx context.Context, req ChatRequest) (ChatResponse, error) {
	mode, ok := ParseMode(req.Mode)
	if !ok {
		return ChatResponse{}, ErrInvalidMode
	}

	reply, err := s.engine.Respond(ctx, Turn{
		CallerID:   req.CallerID,
		Mode:       mode,
		Messages:   req.Messages,
		PriorState: req.CollectionState,
	})
	switch {
	case errors.Is(err, ErrLLMUnavailable):
		s.logger.Error("chat completion provider not configured")
		return ChatResponse{Response: unavailableReply}, nil
	case errors.Is(err, ErrUpstream):
		s.logger.Error("chat completion failed", "error", err, "mode", mode)
		return ChatResponse{Response: troubleReply}, nil
	case err != nil:
		return ChatResponse{}, err
	}

	if reply.State.ReadyToPersist() {
		s.persist(ctx, req, reply.State)
	}

	return ChatResponse{
		Response:         reply.Text,
		NeedsEscalation:  reply.NeedsEscalation,
		EscalationReason: reply.EscalationReason,
		CollectionState:  reply.State,
	}, nil
}

// errSubmissionNotStored marks a submit that a degraded store absorbed.
var errSubmissionNotStored = errors.New("conversation: patient message not stored")

// ErrInvalidMode is returned for a mode other than prospective or established.
var ErrInvalidMode = errors.New("conversation: mode must be prospective or established")

// persist stores the collected request once per conversation. Every failure
// is logged; the patient already has their reply.
func (s *Service) persist(ctx context.Context, req ChatRequest, state *CollectionState) {
	if s.submitter == nil {
		s.logger.Warn("chat submission dropped: no patient message store")
		return
	}

	key := submissionKey(req.ConversationID, state.Data)
	if s.tracker != nil {
		first, err := s.tracker.Claim(ctx, key)
		if err != nil {
			s.logger.Warn("submission tracker unavailable, persisting anyway", "error", err)
		} else if !first {
			s.logger.Info("chat submission already persisted", "submission_key", key)
			return
		}
	}

	msg, err := messageFromState(state.Data, req.Messages)
	if err == nil {
		var created *patients.PatientMessage
		created, err = s.submitter.Submit(ctx, msg, "chat", patients.ChatNotification)
		if err == nil && created == nil {
			err = errSubmissionNotStored
		}
	}
	if err != nil {
		s.logger.Error("failed to auto-submit patient message", "error", err)
		if s.tracker != nil {
			if relErr := s.tracker.Release(ctx, key); relErr != nil {
				s.logger.Warn("failed to release submission claim", "error", relErr)
			}
		}
	}
}

func messageFromState(data CollectionData, transcript []ChatMessage) (*patients.PatientMessage, error) {
	var phone *string
	if p := strings.TrimSpace(data.Phone); p != "" {
		phone = &p
	}
	msg, err := patients.NewMessage(data.Name, data.Email, phone,
		string(normalizeProgram(data.Program)), string(normalizeCategory(data.Category)),
		data.Message, data.Urgency)
	if err != nil {
		return nil, err
	}
	rendered := RenderTranscript(transcript)
	if r := []rune(rendered); len(r) > maxStoredTranscript {
		rendered = string(r[:maxStoredTranscript])
	}
	msg.ConversationContext = &rendered
	return msg, nil
}

func normalizeCode(s string) string {
	s = strings.ToUpper(strings.TrimSpace(s))
	s = strings.NewReplacer(" ", "_", "/", "_", "-", "_").Replace(s)
	return s
}

func normalizeProgram(s string) patients.Program {
	code := normalizeCode(s)
	if patients.ValidProgram(code) {
		return patients.Program(code)
	}
	return patients.ProgramOther
}

func normalizeCategory(s string) patients.Category {
	code := normalizeCode(s)
	if code == "MEDICATION_REFILLS" || code == "REFILL" || code == "REFILLS" {
		return patients.CategoryMedication
	}
	if patients.ValidCategory(code) {
		return patients.Category(code)
	}
	return patients.CategoryOther
}

// submissionKey identifies a submission: the conversation id when the widget
// sent one, otherwise a digest of the collected fields.
func submissionKey(conversationID string, data CollectionData) string {
	if id := strings.TrimSpace(conversationID); id != "" {
		return "conv:" + id
	}
	sum := sha256.Sum256([]byte(strings.Join([]string{
		strings.ToLower(strings.TrimSpace(data.Email)),
		strings.TrimSpace(data.Name),
		normalizeCode(data.Program),
		normalizeCode(data.Category),
		strings.TrimSpace(data.Message),
	}, "\x1f")))
	return "sub:" + hex.EncodeToString(sum[:])
}
