package leads

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Repository defines the interface for lead storage
type Repository interface {
	Create(ctx context.Context, lead *Lead) (*Lead, error)
	GetByID(ctx context.Context, id string) (*Lead, error)
	Update(ctx context.Context, id string, patch UpdateLeadRequest) (*Lead, error)
	Search(ctx context.Context, filter SearchFilter) ([]*Lead, error)
}

// prepare assigns server-side fields before insert.
func prepare(lead *Lead, now time.Time) *Lead {
	out := lead.clone()
	if out.ID == "" {
		out.ID = uuid.New().String()
	}
	if out.Status == "" {
		out.Status = StatusNew
	}
	if out.Source == "" {
		out.Source = DefaultSource
	}
	out.CreatedAt = now
	out.UpdatedAt = now
	return out
}

// InMemoryRepository keeps leads in process memory. Used when no database is configured.
type InMemoryRepository struct {
	mu    sync.RWMutex
	leads map[string]*Lead
	now   func() time.Time
}

// NewInMemoryRepository creates a new in-memory repository
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{
		leads: make(map[string]*Lead),
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// Create stores a copy of lead with id and timestamps assigned.
func (r *InMemoryRepository) Create(ctx context.Context, lead *Lead) (*Lead, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if lead.StripePaymentIntentID != nil {
		for _, existing := range r.leads {
			if existing.StripePaymentIntentID != nil && *existing.StripePaymentIntentID == *lead.StripePaymentIntentID {
				return nil, ErrDuplicatePaymentIntent
			}
		}
	}

	stored := prepare(lead, r.now())
	r.leads[stored.ID] = stored
	return stored.clone(), nil
}

// GetByID retrieves a lead by ID
func (r *InMemoryRepository) GetByID(ctx context.Context, id string) (*Lead, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	lead, ok := r.leads[id]
	if !ok {
		return nil, ErrLeadNotFound
	}
	return lead.clone(), nil
}

// Update applies a staff patch and bumps updatedAt.
func (r *InMemoryRepository) Update(ctx context.Context, id string, patch UpdateLeadRequest) (*Lead, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	lead, ok := r.leads[id]
	if !ok {
		return nil, ErrLeadNotFound
	}
	if patch.Status != nil {
		lead.Status = *patch.Status
	}
	if patch.InternalNotes.Set {
		lead.InternalNotes = patch.InternalNotes.Value
	}
	lead.UpdatedAt = r.now()
	return lead.clone(), nil
}

// Search filters and orders leads.
func (r *InMemoryRepository) Search(ctx context.Context, filter SearchFilter) ([]*Lead, error) {
	filter = filter.Normalize()
	needle := strings.ToLower(strings.TrimSpace(filter.Search))

	r.mu.RLock()
	out := make([]*Lead, 0, len(r.leads))
	for _, lead := range r.leads {
		if filter.Status != "" && lead.Status != filter.Status {
			continue
		}
		if filter.Interest != "" && lead.Interest != filter.Interest {
			continue
		}
		if filter.State != "" && lead.State != filter.State {
			continue
		}
		if needle != "" &&
			!strings.Contains(strings.ToLower(lead.FullName), needle) &&
			!strings.Contains(strings.ToLower(lead.Email), needle) &&
			!strings.Contains(strings.ToLower(lead.Phone), needle) {
			continue
		}
		out = append(out, lead.clone())
	}
	r.mu.RUnlock()

	less := lessFunc(filter.SortBy)
	sort.SliceStable(out, func(i, j int) bool {
		if filter.SortOrder == "asc" {
			return less(out[i], out[j])
		}
		return less(out[j], out[i])
	})
	return out, nil
}

func lessFunc(field SortField) func(a, b *Lead) bool {
	switch field {
	case SortUpdatedAt:
		return func(a, b *Lead) bool { return a.UpdatedAt.Before(b.UpdatedAt) }
	case SortFullName:
		return func(a, b *Lead) bool { return a.FullName < b.FullName }
	case SortEmail:
		return func(a, b *Lead) bool { return a.Email < b.Email }
	default:
		return func(a, b *Lead) bool { return a.CreatedAt.Before(b.CreatedAt) }
	}
}
