package leads

import (
	"context"
	"errors"

	"github.com/wolfman30/wellness-crm/internal/observability/metrics"
	"github.com/wolfman30/wellness-crm/pkg/logging"
)

// DegradingRepository absorbs datastore failures: reads come back empty and
// writes come back nil. ErrLeadNotFound still passes through.
type DegradingRepository struct {
	inner   Repository
	logger  *logging.Logger
	metrics *metrics.CRMMetrics
}

// NewDegradingRepository wraps inner. metrics may be nil.
func NewDegradingRepository(inner Repository, logger *logging.Logger, m *metrics.CRMMetrics) *DegradingRepository {
	if logger == nil {
		logger = logging.Default()
	}
	return &DegradingRepository{inner: inner, logger: logger, metrics: m}
}

func (d *DegradingRepository) Create(ctx context.Context, lead *Lead) (*Lead, error) {
	created, err := d.inner.Create(ctx, lead)
	if err != nil {
		d.fail("create", err, "email", lead.Email)
		return nil, nil
	}
	return created, nil
}

func (d *DegradingRepository) GetByID(ctx context.Context, id string) (*Lead, error) {
	lead, err := d.inner.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrLeadNotFound) {
			return nil, err
		}
		d.fail("get", err, "lead_id", id)
		return nil, ErrLeadNotFound
	}
	return lead, nil
}

func (d *DegradingRepository) Update(ctx context.Context, id string, patch UpdateLeadRequest) (*Lead, error) {
	lead, err := d.inner.Update(ctx, id, patch)
	if err != nil {
		if errors.Is(err, ErrLeadNotFound) {
			return nil, err
		}
		d.fail("update", err, "lead_id", id)
		return nil, nil
	}
	return lead, nil
}

func (d *DegradingRepository) Search(ctx context.Context, filter SearchFilter) ([]*Lead, error) {
	out, err := d.inner.Search(ctx, filter)
	if err != nil {
		d.fail("search", err)
		return []*Lead{}, nil
	}
	return out, nil
}

func (d *DegradingRepository) fail(op string, err error, args ...any) {
	d.metrics.ObserveStoreFailure("lead", op)
	d.logger.Error("lead store unavailable", append([]any{"op", op, "error", err}, args...)...)
}
