package leads

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/wellness-crm/internal/observability/metrics"
	"github.com/wolfman30/wellness-crm/pkg/logging"
)

type brokenRepository struct {
	err error
}

func (b brokenRepository) Create(context.Context, *Lead) (*Lead, error) { return nil, b.err }
func (b brokenRepository) GetByID(context.Context, string) (*Lead, error) {
	return nil, b.err
}
func (b brokenRepository) Update(context.Context, string, UpdateLeadRequest) (*Lead, error) {
	return nil, b.err
}
func (b brokenRepository) Search(context.Context, SearchFilter) ([]*Lead, error) {
	return nil, b.err
}

func TestDegradingRepository_AbsorbsStoreFailures(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.NewCRMMetrics(reg)
	repo := NewDegradingRepository(brokenRepository{err: errors.New("dial tcp: connection refused")}, logging.Discard(), m)
	ctx := context.Background()

	created, err := repo.Create(ctx, &Lead{Email: "a@example.com"})
	assert.NoError(t, err)
	assert.Nil(t, created)

	got, err := repo.GetByID(ctx, "id")
	assert.ErrorIs(t, err, ErrLeadNotFound)
	assert.Nil(t, got)

	updated, err := repo.Update(ctx, "id", UpdateLeadRequest{})
	assert.NoError(t, err)
	assert.Nil(t, updated)

	list, err := repo.Search(ctx, SearchFilter{})
	assert.NoError(t, err)
	assert.NotNil(t, list)
	assert.Empty(t, list)

	assert.Equal(t, 4, testutil.CollectAndCount(reg, "wellness_store_failures_total"))
}

func TestDegradingRepository_PassesThroughNotFound(t *testing.T) {
	repo := NewDegradingRepository(brokenRepository{err: ErrLeadNotFound}, logging.Discard(), nil)

	_, err := repo.Update(context.Background(), "id", UpdateLeadRequest{})
	assert.ErrorIs(t, err, ErrLeadNotFound)
}

func TestDegradingRepository_DelegatesOnSuccess(t *testing.T) {
	inner := NewInMemoryRepository()
	repo := NewDegradingRepository(inner, logging.Discard(), nil)

	created, err := repo.Create(context.Background(), &Lead{FullName: "Jane", Email: "jane@example.com"})
	require.NoError(t, err)
	require.NotNil(t, created)

	got, err := repo.GetByID(context.Background(), created.ID)
	require.NoError(t, err)
	assert.Equal(t, created.ID, got.ID)
}
