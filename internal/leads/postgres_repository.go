package leads

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wolfman30/wellness-crm/internal/sanitize"
)

type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

const leadColumns = `id::text, full_name, email, phone, state, interest, preferred_contact_method,
	preferred_contact_time, message, source, status, internal_notes, requested_date,
	requested_time, selected_program, deposit_status, stripe_payment_intent_id,
	created_at, updated_at`

// PostgresRepository stores leads in the relational database.
type PostgresRepository struct {
	pool querier
}

// NewPostgresRepository initializes a repo backed by pgxpool.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	if pool == nil {
		panic("leads: pgx pool required")
	}
	return &PostgresRepository{pool: pool}
}

func newPostgresRepositoryWithQuerier(q querier) *PostgresRepository {
	if q == nil {
		panic("leads: querier required")
	}
	return &PostgresRepository{pool: q}
}

// Create inserts a new row. A second lead for the same payment intent is
// rejected with ErrDuplicatePaymentIntent.
func (r *PostgresRepository) Create(ctx context.Context, lead *Lead) (*Lead, error) {
	stored := prepare(lead, time.Now().UTC())
	var deposit *string
	if stored.DepositStatus != nil {
		d := string(*stored.DepositStatus)
		deposit = &d
	}

	query := `
		INSERT INTO leads (id, full_name, email, phone, state, interest, preferred_contact_method,
			preferred_contact_time, message, source, status, internal_notes, requested_date,
			requested_time, selected_program, deposit_status, stripe_payment_intent_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
		RETURNING created_at, updated_at
	`
	if err := r.pool.QueryRow(ctx, query,
		stored.ID,
		stored.FullName,
		stored.Email,
		stored.Phone,
		string(stored.State),
		string(stored.Interest),
		string(stored.PreferredContactMethod),
		stored.PreferredContactTime,
		stored.Message,
		stored.Source,
		string(stored.Status),
		stored.InternalNotes,
		stored.RequestedDate,
		stored.RequestedTime,
		stored.SelectedProgram,
		deposit,
		stored.StripePaymentIntentID,
	).Scan(&stored.CreatedAt, &stored.UpdatedAt); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil, ErrDuplicatePaymentIntent
		}
		return nil, fmt.Errorf("leads: insert failed: %w", err)
	}
	return stored, nil
}

// GetByID fetches a single lead.
func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*Lead, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrLeadNotFound
	}
	query := `SELECT ` + leadColumns + ` FROM leads WHERE id = $1`
	lead, err := scanLead(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrLeadNotFound
		}
		return nil, fmt.Errorf("leads: select failed: %w", err)
	}
	return lead, nil
}

// Update applies a staff patch. Notes are only touched when present in the patch.
func (r *PostgresRepository) Update(ctx context.Context, id string, patch UpdateLeadRequest) (*Lead, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrLeadNotFound
	}
	var status *string
	if patch.Status != nil {
		s := string(*patch.Status)
		status = &s
	}
	query := `
		UPDATE leads SET
			status = COALESCE($2::text, status),
			internal_notes = CASE WHEN $3::boolean THEN $4::text ELSE internal_notes END,
			updated_at = now()
		WHERE id = $1
		RETURNING ` + leadColumns
	lead, err := scanLead(r.pool.QueryRow(ctx, query, id, status, patch.InternalNotes.Set, patch.InternalNotes.Value))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrLeadNotFound
		}
		return nil, fmt.Errorf("leads: update failed: %w", err)
	}
	return lead, nil
}

// Search filters and orders leads. Sort columns come from a fixed allow-list.
func (r *PostgresRepository) Search(ctx context.Context, filter SearchFilter) ([]*Lead, error) {
	filter = filter.Normalize()

	query := `SELECT ` + leadColumns + ` FROM leads WHERE 1=1`
	args := []any{}
	argNum := 1

	if filter.Status != "" {
		query += " AND status = $" + strconv.Itoa(argNum)
		args = append(args, string(filter.Status))
		argNum++
	}
	if filter.Interest != "" {
		query += " AND interest = $" + strconv.Itoa(argNum)
		args = append(args, string(filter.Interest))
		argNum++
	}
	if filter.State != "" {
		query += " AND state = $" + strconv.Itoa(argNum)
		args = append(args, string(filter.State))
		argNum++
	}
	if search := strings.TrimSpace(filter.Search); search != "" {
		p := "$" + strconv.Itoa(argNum)
		query += " AND (full_name ILIKE " + p + " ESCAPE '\\' OR email ILIKE " + p + " ESCAPE '\\' OR phone ILIKE " + p + " ESCAPE '\\')"
		args = append(args, sanitize.LikeContains(search))
	}
	query += " ORDER BY " + sortColumns[filter.SortBy] + " " + strings.ToUpper(filter.SortOrder)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("leads: search failed: %w", err)
	}
	defer rows.Close()

	var out []*Lead
	for rows.Next() {
		lead, err := scanLead(rows)
		if err != nil {
			return nil, fmt.Errorf("leads: scan failed: %w", err)
		}
		out = append(out, lead)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("leads: search failed: %w", err)
	}
	return out, nil
}

func scanLead(row pgx.Row) (*Lead, error) {
	var (
		lead                            Lead
		state, interest, method, status string
		deposit                         *string
	)
	if err := row.Scan(
		&lead.ID,
		&lead.FullName,
		&lead.Email,
		&lead.Phone,
		&state,
		&interest,
		&method,
		&lead.PreferredContactTime,
		&lead.Message,
		&lead.Source,
		&status,
		&lead.InternalNotes,
		&lead.RequestedDate,
		&lead.RequestedTime,
		&lead.SelectedProgram,
		&deposit,
		&lead.StripePaymentIntentID,
		&lead.CreatedAt,
		&lead.UpdatedAt,
	); err != nil {
		return nil, err
	}
	lead.State = State(state)
	lead.Interest = Interest(interest)
	lead.PreferredContactMethod = ContactMethod(method)
	lead.Status = Status(status)
	if deposit != nil {
		d := DepositStatus(*deposit)
		lead.DepositStatus = &d
	}
	return &lead, nil
}
