package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrUserNotFound is returned when no user matches the open id.
var ErrUserNotFound = errors.New("auth: user not found")

// Store persists operator accounts.
type Store interface {
	Upsert(ctx context.Context, in UpsertUser) (*User, error)
	GetByOpenID(ctx context.Context, openID string) (*User, error)
}

// MemoryStore keeps users in process memory.
type MemoryStore struct {
	mu     sync.RWMutex
	users  map[string]*User
	nextID int64
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{users: make(map[string]*User)}
}

func (s *MemoryStore) Upsert(ctx context.Context, in UpsertUser) (*User, error) {
	if in.OpenID == "" {
		return nil, errors.New("auth: open id required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	if in.LastSignedIn.IsZero() {
		in.LastSignedIn = now
	}
	u, ok := s.users[in.OpenID]
	if !ok {
		s.nextID++
		u = &User{ID: s.nextID, OpenID: in.OpenID, Role: RoleUser, CreatedAt: now}
		s.users[in.OpenID] = u
	}
	u.Name = in.Name
	u.Email = in.Email
	u.LoginMethod = in.LoginMethod
	if in.Role != nil {
		u.Role = *in.Role
	}
	u.LastSignedIn = in.LastSignedIn
	u.UpdatedAt = now
	out := *u
	return &out, nil
}

func (s *MemoryStore) GetByOpenID(ctx context.Context, openID string) (*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[openID]
	if !ok {
		return nil, ErrUserNotFound
	}
	out := *u
	return &out, nil
}

// SetRole changes a user's role. Operators promote staff this way in dev.
func (s *MemoryStore) SetRole(openID string, role Role) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[openID]
	if !ok {
		return ErrUserNotFound
	}
	u.Role = role
	return nil
}

const userColumns = `id, open_id, name, email, login_method, role, created_at, updated_at, last_signed_in`

// SQLStore keeps users in Postgres through database/sql and the pgx stdlib driver.
type SQLStore struct {
	db *sql.DB
}

func NewSQLStore(db *sql.DB) *SQLStore {
	if db == nil {
		panic("auth: sql db required")
	}
	return &SQLStore{db: db}
}

func (s *SQLStore) Upsert(ctx context.Context, in UpsertUser) (*User, error) {
	if in.OpenID == "" {
		return nil, errors.New("auth: open id required")
	}
	if in.LastSignedIn.IsZero() {
		in.LastSignedIn = time.Now().UTC()
	}
	var role *string
	if in.Role != nil {
		r := string(*in.Role)
		role = &r
	}
	query := `
		INSERT INTO users (open_id, name, email, login_method, role, last_signed_in)
		VALUES ($1, $2, $3, $4, COALESCE($5::text, 'user'), $6)
		ON CONFLICT (open_id) DO UPDATE SET
			name = EXCLUDED.name,
			email = EXCLUDED.email,
			login_method = EXCLUDED.login_method,
			role = COALESCE($5::text, users.role),
			last_signed_in = EXCLUDED.last_signed_in,
			updated_at = now()
		RETURNING ` + userColumns
	u, err := scanUser(s.db.QueryRowContext(ctx, query, in.OpenID, in.Name, in.Email, in.LoginMethod, role, in.LastSignedIn))
	if err != nil {
		return nil, fmt.Errorf("auth: upsert user: %w", err)
	}
	return u, nil
}

func (s *SQLStore) GetByOpenID(ctx context.Context, openID string) (*User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE open_id = $1`
	u, err := scanUser(s.db.QueryRowContext(ctx, query, openID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("auth: get user: %w", err)
	}
	return u, nil
}

func scanUser(row *sql.Row) (*User, error) {
	var (
		u    User
		role string
	)
	if err := row.Scan(&u.ID, &u.OpenID, &u.Name, &u.Email, &u.LoginMethod, &role, &u.CreatedAt, &u.UpdatedAt, &u.LastSignedIn); err != nil {
		return nil, err
	}
	u.Role = Role(role)
	return &u, nil
}
