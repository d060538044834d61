package patients

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

const messageColumns = `id::text, patient_name, email, phone, program, category, message, urgency,
	conversation_context, status, staff_notes, created_at, updated_at`

// PostgresRepository stores patient messages in the relational database.
type PostgresRepository struct {
	pool querier
}

func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	if pool == nil {
		panic("patients: pgx pool required")
	}
	return &PostgresRepository{pool: pool}
}

func newPostgresRepositoryWithQuerier(q querier) *PostgresRepository {
	if q == nil {
		panic("patients: querier required")
	}
	return &PostgresRepository{pool: q}
}

func (r *PostgresRepository) Create(ctx context.Context, msg *PatientMessage) (*PatientMessage, error) {
	stored := prepare(msg, time.Now().UTC())
	query := `
		INSERT INTO patient_messages (id, patient_name, email, phone, program, category, message,
			urgency, conversation_context, status, staff_notes)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING created_at, updated_at
	`
	if err := r.pool.QueryRow(ctx, query,
		stored.ID,
		stored.PatientName,
		stored.Email,
		stored.Phone,
		string(stored.Program),
		string(stored.Category),
		stored.Message,
		string(stored.Urgency),
		stored.ConversationContext,
		string(stored.Status),
		stored.StaffNotes,
	).Scan(&stored.CreatedAt, &stored.UpdatedAt); err != nil {
		return nil, fmt.Errorf("patients: insert failed: %w", err)
	}
	return stored, nil
}

func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*PatientMessage, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrMessageNotFound
	}
	query := `SELECT ` + messageColumns + ` FROM patient_messages WHERE id = $1`
	msg, err := scanMessage(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrMessageNotFound
		}
		return nil, fmt.Errorf("patients: select failed: %w", err)
	}
	return msg, nil
}

// Update never touches conversation_context.
func (r *PostgresRepository) Update(ctx context.Context, id string, patch UpdateMessageRequest) (*PatientMessage, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrMessageNotFound
	}
	var status *string
	if patch.Status != nil {
		s := string(*patch.Status)
		status = &s
	}
	query := `
		UPDATE patient_messages SET
			status = COALESCE($2::text, status),
			staff_notes = CASE WHEN $3::boolean THEN $4::text ELSE staff_notes END,
			updated_at = now()
		WHERE id = $1
		RETURNING ` + messageColumns
	msg, err := scanMessage(r.pool.QueryRow(ctx, query, id, status, patch.StaffNotes.Set, patch.StaffNotes.Value))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrMessageNotFound
		}
		return nil, fmt.Errorf("patients: update failed: %w", err)
	}
	return msg, nil
}

func (r *PostgresRepository) Search(ctx context.Context, filter SearchFilter) ([]*PatientMessage, error) {
	filter = filter.normalize()

	query := `SELECT ` + messageColumns + ` FROM patient_messages WHERE 1=1`
	var args []any
	add := func(column string, value string) {
		args = append(args, value)
		query += " AND " + column + " = $" + strconv.Itoa(len(args))
	}
	if filter.Status != "" {
		add("status", string(filter.Status))
	}
	if filter.Program != "" {
		add("program", string(filter.Program))
	}
	if filter.Category != "" {
		add("category", string(filter.Category))
	}
	if filter.Urgency != "" {
		add("urgency", string(filter.Urgency))
	}
	if search := strings.TrimSpace(filter.Search); search != "" {
		args = append(args, sanitize.LikeContains(search))
		p := "$" + strconv.Itoa(len(args))
		query += " AND (patient_name ILIKE " + p + " ESCAPE '\\' OR email ILIKE " + p + " ESCAPE '\\' OR message ILIKE " + p + " ESCAPE '\\')"
	}
	query += " ORDER BY created_at " + strings.ToUpper(filter.SortOrder)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("patients: search failed: %w", err)
	}
	defer rows.Close()

	var out []*PatientMessage
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("patients: scan failed: %w", err)
		}
		out = append(out, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("patients: search failed: %w", err)
	}
	return out, nil
}

func scanMessage(row pgx.Row) (*PatientMessage, error) {
	var (
		msg                                PatientMessage
		program, category, urgency, status string
	)
	if err := row.Scan(
		&msg.ID,
		&msg.PatientName,
		&msg.Email,
		&msg.Phone,
		&program,
		&category,
		&msg.Message,
		&urgency,
		&msg.ConversationContext,
		&status,
		&msg.StaffNotes,
		&msg.CreatedAt,
		&msg.UpdatedAt,
	); err != nil {
		return nil, err
	}
	msg.Program = Program(program)
	msg.Category = Category(category)
	msg.Urgency = Urgency(urgency)
	msg.Status = Status(status)
	return &msg, nil
}
