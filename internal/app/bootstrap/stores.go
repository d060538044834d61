package bootstrap

import (
	"database/sql"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wolfman30/wellness-crm/internal/auth"
	"github.com/wolfman30/wellness-crm/internal/events"
	"github.com/wolfman30/wellness-crm/internal/leads"
	"github.com/wolfman30/wellness-crm/internal/observability/metrics"
	"github.com/wolfman30/wellness-crm/internal/patients"
	"github.com/wolfman30/wellness-crm/pkg/logging"
)

// Stores groups the persistence layer handed to handlers.
type Stores struct {
	// Leads degrades to empty results on store failure; public and admin
	// surfaces use it.
	Leads leads.Repository
	// RawLeads surfaces store errors so the webhook can ask for a retry.
	RawLeads  leads.Repository
	Messages  patients.Repository
	Processed events.Tracker
	Users     auth.Store
}

// BuildStores selects Postgres-backed stores when a pool is available and
// in-memory ones otherwise.
func BuildStores(pool *pgxpool.Pool, db *sql.DB, m *metrics.CRMMetrics, logger *logging.Logger) Stores {
	if logger == nil {
		logger = logging.Default()
	}

	var s Stores
	if pool != nil {
		s.RawLeads = leads.NewPostgresRepository(pool)
		s.Messages = patients.NewPostgresRepository(pool)
		s.Processed = events.NewProcessedStore(pool)
	} else {
		logger.Warn("DATABASE_URL not set; using in-memory stores")
		s.RawLeads = leads.NewInMemoryRepository()
		s.Messages = patients.NewInMemoryRepository()
		s.Processed = events.NewMemoryProcessedStore()
	}
	if db != nil {
		s.Users = auth.NewSQLStore(db)
	} else {
		s.Users = auth.NewMemoryStore()
	}

	s.Leads = leads.NewDegradingRepository(s.RawLeads, logger, m)
	s.Messages = patients.NewDegradingRepository(s.Messages, logger, m)
	return s
}
