package patients

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Repository persists patient messages.
type Repository interface {
	Create(ctx context.Context, msg *PatientMessage) (*PatientMessage, error)
	GetByID(ctx context.Context, id string) (*PatientMessage, error)
	Update(ctx context.Context, id string, patch UpdateMessageRequest) (*PatientMessage, error)
	Search(ctx context.Context, filter SearchFilter) ([]*PatientMessage, error)
}

func prepare(msg *PatientMessage, now time.Time) *PatientMessage {
	out := msg.clone()
	if out.ID == "" {
		out.ID = uuid.New().String()
	}
	if out.Status == "" {
		out.Status = StatusNew
	}
	if out.Urgency == "" {
		out.Urgency = UrgencyRoutine
	}
	out.CreatedAt = now
	out.UpdatedAt = now
	return out
}

// InMemoryRepository keeps messages in process memory.
type InMemoryRepository struct {
	mu       sync.RWMutex
	messages map[string]*PatientMessage
	now      func() time.Time
}

func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{
		messages: make(map[string]*PatientMessage),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (r *InMemoryRepository) Create(ctx context.Context, msg *PatientMessage) (*PatientMessage, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored := prepare(msg, r.now())
	r.messages[stored.ID] = stored
	return stored.clone(), nil
}

func (r *InMemoryRepository) GetByID(ctx context.Context, id string) (*PatientMessage, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	msg, ok := r.messages[id]
	if !ok {
		return nil, ErrMessageNotFound
	}
	return msg.clone(), nil
}

func (r *InMemoryRepository) Update(ctx context.Context, id string, patch UpdateMessageRequest) (*PatientMessage, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	msg, ok := r.messages[id]
	if !ok {
		return nil, ErrMessageNotFound
	}
	if patch.Status != nil {
		msg.Status = *patch.Status
	}
	if patch.StaffNotes.Set {
		msg.StaffNotes = patch.StaffNotes.Value
	}
	msg.UpdatedAt = r.now()
	return msg.clone(), nil
}

// Search matches the free-text term against name, email and message body.
func (r *InMemoryRepository) Search(ctx context.Context, filter SearchFilter) ([]*PatientMessage, error) {
	filter = filter.normalize()
	needle := strings.ToLower(strings.TrimSpace(filter.Search))

	r.mu.RLock()
	out := make([]*PatientMessage, 0, len(r.messages))
	for _, msg := range r.messages {
		if !matches(msg, filter, needle) {
			continue
		}
		out = append(out, msg.clone())
	}
	r.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool {
		if filter.SortOrder == "asc" {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[j].CreatedAt.Before(out[i].CreatedAt)
	})
	return out, nil
}

func matches(msg *PatientMessage, f SearchFilter, needle string) bool {
	switch {
	case f.Status != "" && msg.Status != f.Status:
		return false
	case f.Program != "" && msg.Program != f.Program:
		return false
	case f.Category != "" && msg.Category != f.Category:
		return false
	case f.Urgency != "" && msg.Urgency != f.Urgency:
		return false
	}
	if needle == "" {
		return true
	}
	return strings.Contains(strings.ToLower(msg.PatientName), needle) ||
		strings.Contains(strings.ToLower(msg.Email), needle) ||
		strings.Contains(strings.ToLower(msg.Message), needle)
}
