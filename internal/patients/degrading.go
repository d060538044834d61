package patients

import (
	"context"
	"errors"

	"github.com/wolfman30/wellness-crm/internal/observability/metrics"
	"github.com/wolfman30/wellness-crm/pkg/logging"
)

// DegradingRepository absorbs datastore failures so the public pages keep
// working. ErrMessageNotFound still passes through.
type DegradingRepository struct {
	inner   Repository
	logger  *logging.Logger
	metrics *metrics.CRMMetrics
}

func NewDegradingRepository(inner Repository, logger *logging.Logger, m *metrics.CRMMetrics) *DegradingRepository {
	if logger == nil {
		logger = logging.Default()
	}
	return &DegradingRepository{inner: inner, logger: logger, metrics: m}
}

func (d *DegradingRepository) Create(ctx context.Context, msg *PatientMessage) (*PatientMessage, error) {
	created, err := d.inner.Create(ctx, msg)
	if err != nil {
		d.fail("create", err, "category", msg.Category)
		return nil, nil
	}
	return created, nil
}

func (d *DegradingRepository) GetByID(ctx context.Context, id string) (*PatientMessage, error) {
	msg, err := d.inner.GetByID(ctx, id)
	if err != nil {
		if !errors.Is(err, ErrMessageNotFound) {
			d.fail("get", err, "message_id", id)
		}
		return nil, ErrMessageNotFound
	}
	return msg, nil
}

func (d *DegradingRepository) Update(ctx context.Context, id string, patch UpdateMessageRequest) (*PatientMessage, error) {
	msg, err := d.inner.Update(ctx, id, patch)
	if err != nil {
		if errors.Is(err, ErrMessageNotFound) {
			return nil, err
		}
		d.fail("update", err, "message_id", id)
		return nil, nil
	}
	return msg, nil
}

func (d *DegradingRepository) Search(ctx context.Context, filter SearchFilter) ([]*PatientMessage, error) {
	out, err := d.inner.Search(ctx, filter)
	if err != nil {
		d.fail("search", err)
		return []*PatientMessage{}, nil
	}
	return out, nil
}

func (d *DegradingRepository) fail(op string, err error, args ...any) {
	d.metrics.ObserveStoreFailure("patient_message", op)
	d.logger.Error("patient message store unavailable", append([]any{"op", op, "error", err}, args...)...)
}
