package leads

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	pgxmock "github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/wellness-crm/internal/optional"
)

var leadRowColumns = []string{
	"id", "full_name", "email", "phone", "state", "interest", "preferred_contact_method",
	"preferred_contact_time", "message", "source", "status", "internal_notes", "requested_date",
	"requested_time", "selected_program", "deposit_status", "stripe_payment_intent_id",
	"created_at", "updated_at",
}

func leadRow(rows *pgxmock.Rows, id, name, email string, created time.Time, notes *string) *pgxmock.Rows {
	var none *string
	return rows.AddRow(
		id, name, email, "", "PA", "WEIGHT_LOSS", "EMAIL",
		none, none, DefaultSource, "NEW", notes, none,
		none, none, none, none,
		created, created,
	)
}

func TestPostgresRepository_Create(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := newPostgresRepositoryWithQuerier(mock)
	created := time.Date(2025, 2, 1, 10, 0, 0, 0, time.UTC)
	paid := DepositPaid
	pi := "pi_123"

	mock.ExpectQuery("INSERT INTO leads").
		WithArgs(pgxmock.AnyArg(), "Jane", "jane@example.com", "", "PA", "WEIGHT_LOSS", "EMAIL",
			pgxmock.AnyArg(), pgxmock.AnyArg(), "stripe_checkout", "NEW", pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows([]string{"created_at", "updated_at"}).AddRow(created, created))

	lead, err := repo.Create(context.Background(), &Lead{
		FullName:               "Jane",
		Email:                  "jane@example.com",
		State:                  StatePA,
		Interest:               InterestWeightLoss,
		PreferredContactMethod: ContactEmail,
		Source:                 "stripe_checkout",
		DepositStatus:          &paid,
		StripePaymentIntentID:  &pi,
	})
	require.NoError(t, err)
	assert.NotEmpty(t, lead.ID)
	assert.Equal(t, created, lead.CreatedAt)
	assert.Equal(t, StatusNew, lead.Status)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepository_CreateDuplicatePaymentIntent(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := newPostgresRepositoryWithQuerier(mock)
	mock.ExpectQuery("INSERT INTO leads").
		WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "leads_stripe_payment_intent_id_key"})

	_, err = repo.Create(context.Background(), &Lead{FullName: "Jane", Email: "jane@example.com"})
	assert.ErrorIs(t, err, ErrDuplicatePaymentIntent)
}

func TestPostgresRepository_CreateWrapsErrors(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := newPostgresRepositoryWithQuerier(mock)
	mock.ExpectQuery("INSERT INTO leads").WillReturnError(errors.New("conn closed"))

	_, err = repo.Create(context.Background(), &Lead{FullName: "Jane", Email: "jane@example.com"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "leads: insert failed")
}

func TestPostgresRepository_GetByID(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := newPostgresRepositoryWithQuerier(mock)
	id := "6f1c2a9e-4a4b-4b7e-9a55-3d3f2b8e1c11"
	created := time.Date(2025, 2, 1, 10, 0, 0, 0, time.UTC)

	mock.ExpectQuery("SELECT (.+) FROM leads WHERE id = \\$1").
		WithArgs(id).
		WillReturnRows(leadRow(pgxmock.NewRows(leadRowColumns), id, "Jane", "jane@example.com", created, nil))

	lead, err := repo.GetByID(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, id, lead.ID)
	assert.Equal(t, StatePA, lead.State)
	assert.Equal(t, ContactEmail, lead.PreferredContactMethod)
	assert.Nil(t, lead.DepositStatus)

	mock.ExpectQuery("SELECT (.+) FROM leads WHERE id = \\$1").
		WithArgs(id).
		WillReturnError(pgx.ErrNoRows)
	_, err = repo.GetByID(context.Background(), id)
	assert.ErrorIs(t, err, ErrLeadNotFound)

	_, err = repo.GetByID(context.Background(), "not-a-uuid")
	assert.ErrorIs(t, err, ErrLeadNotFound)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepository_Update(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := newPostgresRepositoryWithQuerier(mock)
	id := "6f1c2a9e-4a4b-4b7e-9a55-3d3f2b8e1c11"
	created := time.Date(2025, 2, 1, 10, 0, 0, 0, time.UTC)
	notes := "left voicemail"
	status := StatusContacted
	statusText := "CONTACTED"

	mock.ExpectQuery("UPDATE leads SET").
		WithArgs(id, &statusText, true, &notes).
		WillReturnRows(leadRow(pgxmock.NewRows(leadRowColumns), id, "Jane", "jane@example.com", created, &notes))

	lead, err := repo.Update(context.Background(), id, UpdateLeadRequest{
		Status:        &status,
		InternalNotes: optional.Of(notes),
	})
	require.NoError(t, err)
	require.NotNil(t, lead.InternalNotes)
	assert.Equal(t, notes, *lead.InternalNotes)

	mock.ExpectQuery("UPDATE leads SET").
		WillReturnError(pgx.ErrNoRows)
	_, err = repo.Update(context.Background(), id, UpdateLeadRequest{})
	assert.ErrorIs(t, err, ErrLeadNotFound)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepository_Search(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := newPostgresRepositoryWithQuerier(mock)
	created := time.Date(2025, 2, 1, 10, 0, 0, 0, time.UTC)
	rows := pgxmock.NewRows(leadRowColumns)
	leadRow(rows, "6f1c2a9e-4a4b-4b7e-9a55-3d3f2b8e1c11", "Alice", "alice@example.com", created, nil)
	leadRow(rows, "7a2d3b0f-5b5c-4c8f-8b66-4e4f3c9f2d22", "Bob", "bob@example.com", created.Add(time.Hour), nil)

	mock.ExpectQuery(`FROM leads WHERE 1=1 AND status = \$1 AND state = \$2 AND \(full_name ILIKE \$3 ESCAPE '\\' OR email ILIKE \$3 ESCAPE '\\' OR phone ILIKE \$3 ESCAPE '\\'\) ORDER BY full_name ASC`).
		WithArgs("NEW", "PA", "%example%").
		WillReturnRows(rows)

	out, err := repo.Search(context.Background(), SearchFilter{
		Search:    " example ",
		Status:    StatusNew,
		State:     StatePA,
		SortBy:    SortFullName,
		SortOrder: "asc",
	})
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, "Alice", out[0].FullName)
	assert.Equal(t, "Bob", out[1].FullName)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepository_SearchEscapesWildcards(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := newPostgresRepositoryWithQuerier(mock)
	mock.ExpectQuery(`FROM leads WHERE 1=1 AND \(full_name ILIKE \$1 ESCAPE`).
		WithArgs(`%50\%\_off%`).
		WillReturnRows(pgxmock.NewRows(leadRowColumns))

	out, err := repo.Search(context.Background(), SearchFilter{Search: "50%_off"})
	require.NoError(t, err)
	assert.Empty(t, out)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepository_SearchDefaultOrder(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := newPostgresRepositoryWithQuerier(mock)
	mock.ExpectQuery(`FROM leads WHERE 1=1 ORDER BY created_at DESC`).
		WillReturnRows(pgxmock.NewRows(leadRowColumns))

	out, err := repo.Search(context.Background(), SearchFilter{SortBy: "internal_notes; DROP TABLE leads"})
	require.NoError(t, err)
	assert.Empty(t, out)
	require.NoError(t, mock.ExpectationsWereMet())
}
