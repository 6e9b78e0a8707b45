package cache

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/segyhp/installment-engine/internal/domain"
)

// newTestClient connects to TEST_REDIS_ADDR or skips the test
func newTestClient(t *testing.T) *redis.Client {
	t.Helper()

	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("TEST_REDIS_ADDR not set")
	}

	client := redis.NewClient(&redis.Options{Addr: addr, DB: 15})
	require.NoError(t, client.Ping(context.Background()).Err())
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestRedisStatusCache(t *testing.T) {
	ctx := context.Background()
	c := NewRedisStatusCache(newTestClient(t), time.Minute)

	orderID := uuid.New()
	status := &domain.PaymentStatusResponse{
		OrderID:       orderID,
		PaymentStatus: domain.OrderPaymentStatusPending,
		Total:         1000,
		Summary:       domain.LedgerSummary{Installments: 3, Pending: 3, OutstandingAmount: 1000},
	}

	_, ok := c.Get(ctx, orderID, OrderField)
	assert.False(t, ok)

	gen, err := c.Generation(ctx, orderID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), gen)

	require.NoError(t, c.Set(ctx, orderID, OrderField, gen, status))

	got, ok := c.Get(ctx, orderID, OrderField)
	require.True(t, ok)
	assert.Equal(t, status.Total, got.Total)
	assert.Equal(t, status.Summary, got.Summary)

	require.NoError(t, c.Invalidate(ctx, orderID))
	_, ok = c.Get(ctx, orderID, OrderField)
	assert.False(t, ok)

	// a fill that started before the invalidation is dropped
	require.NoError(t, c.Set(ctx, orderID, OrderField, gen, status))
	_, ok = c.Get(ctx, orderID, OrderField)
	assert.False(t, ok)

	gen, err = c.Generation(ctx, orderID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), gen)
	require.NoError(t, c.Set(ctx, orderID, OrderField, gen, status))
	_, ok = c.Get(ctx, orderID, OrderField)
	assert.True(t, ok)
}

func TestMemoryStatusCache(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryStatusCache()
	orderID := uuid.New()
	pending := &domain.PaymentStatusResponse{OrderID: orderID, Summary: domain.LedgerSummary{Pending: 3}}

	gen, err := c.Generation(ctx, orderID)
	require.NoError(t, err)

	require.NoError(t, c.Invalidate(ctx, orderID))
	require.NoError(t, c.Set(ctx, orderID, OrderField, gen, pending))
	_, ok := c.Get(ctx, orderID, OrderField)
	assert.False(t, ok, "stale generation must not fill")

	gen, err = c.Generation(ctx, orderID)
	require.NoError(t, err)
	require.NoError(t, c.Set(ctx, orderID, OrderField, gen, pending))

	got, ok := c.Get(ctx, orderID, OrderField)
	require.True(t, ok)
	assert.Equal(t, 3, got.Summary.Pending)

	got.Summary.Pending = 0
	again, _ := c.Get(ctx, orderID, OrderField)
	assert.Equal(t, 3, again.Summary.Pending, "reads return copies")
}

func TestRedisLocker(t *testing.T) {
	ctx := context.Background()
	l := NewRedisLocker(newTestClient(t))
	key := "lock:test:" + uuid.NewString()

	release, ok, err := l.TryLock(ctx, key, time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	_, ok, err = l.TryLock(ctx, key, time.Minute)
	require.NoError(t, err)
	assert.False(t, ok, "second holder must be refused")

	release()

	release, ok, err = l.TryLock(ctx, key, time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
	release()
}

func TestNopImplementations(t *testing.T) {
	ctx := context.Background()
	orderID := uuid.New()

	var c StatusCache = NopStatusCache{}
	assert.NoError(t, c.Set(ctx, orderID, OrderField, 0, &domain.PaymentStatusResponse{}))
	_, ok := c.Get(ctx, orderID, OrderField)
	assert.False(t, ok)
	assert.NoError(t, c.Invalidate(ctx, orderID))

	var l Locker = NopLocker{}
	release, ok, err := l.TryLock(ctx, "any", time.Second)
	assert.NoError(t, err)
	assert.True(t, ok)
	release()
}
