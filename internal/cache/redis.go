package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/segyhp/installment-engine/internal/domain"
	customError "github.com/segyhp/installment-engine/pkg/errors"
)

// OrderField is the hash field holding the order-level view (no installment selected)
const OrderField = "order"

// StatusCache caches payment status projections, one hash per order.
// Every ledger mutation must Invalidate the order so a stale paid/pending view never outlives it.
// Readers take the Generation before loading the order and pass it to Set; a fill
// whose generation was bumped by an Invalidate in between is dropped.
type StatusCache interface {
	Get(ctx context.Context, orderID uuid.UUID, field string) (*domain.PaymentStatusResponse, bool)
	Generation(ctx context.Context, orderID uuid.UUID) (int64, error)
	Set(ctx context.Context, orderID uuid.UUID, field string, gen int64, status *domain.PaymentStatusResponse) error
	Invalidate(ctx context.Context, orderID uuid.UUID) error
}

// Locker hands out best-effort exclusive leases
type Locker interface {
	// TryLock returns ok=false when another holder owns key; release is a no-op then
	TryLock(ctx context.Context, key string, ttl time.Duration) (release func(), ok bool, err error)
}

type RedisStatusCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisStatusCache(client *redis.Client, ttl time.Duration) *RedisStatusCache {
	return &RedisStatusCache{client: client, ttl: ttl}
}

// generationTTL outlives any in-flight fill by a wide margin
const generationTTL = 24 * time.Hour

// both keys share a hash tag so the fill script stays on one cluster slot
func statusKey(orderID uuid.UUID) string {
	return fmt.Sprintf("payment_status:{%s}", orderID)
}

func generationKey(orderID uuid.UUID) string {
	return fmt.Sprintf("payment_status_gen:{%s}", orderID)
}

// Get treats any redis failure as a miss
func (c *RedisStatusCache) Get(ctx context.Context, orderID uuid.UUID, field string) (*domain.PaymentStatusResponse, bool) {
	raw, err := c.client.HGet(ctx, statusKey(orderID), field).Bytes()
	if err != nil {
		return nil, false
	}

	var status domain.PaymentStatusResponse
	if err := json.Unmarshal(raw, &status); err != nil {
		return nil, false
	}
	return &status, true
}

// Generation returns 0 for an order that was never invalidated
func (c *RedisStatusCache) Generation(ctx context.Context, orderID uuid.UUID) (int64, error) {
	gen, err := c.client.Get(ctx, generationKey(orderID)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, customError.WrapCacheError(err)
	}
	return gen, nil
}

var fillScript = redis.NewScript(`
local gen = redis.call("GET", KEYS[2]) or "0"
if gen ~= ARGV[1] then
	return 0
end
redis.call("HSET", KEYS[1], ARGV[2], ARGV[3])
redis.call("EXPIRE", KEYS[1], ARGV[4])
return 1
`)

// Set writes the projection only while the order is still at generation gen
func (c *RedisStatusCache) Set(ctx context.Context, orderID uuid.UUID, field string, gen int64, status *domain.PaymentStatusResponse) error {
	raw, err := json.Marshal(status)
	if err != nil {
		return err
	}

	keys := []string{statusKey(orderID), generationKey(orderID)}
	ttl := int64(c.ttl / time.Second)
	if ttl < 1 {
		ttl = 1
	}
	if err := fillScript.Run(ctx, c.client, keys, strconv.FormatInt(gen, 10), field, raw, ttl).Err(); err != nil {
		return customError.WrapCacheError(err)
	}
	return nil
}

func (c *RedisStatusCache) Invalidate(ctx context.Context, orderID uuid.UUID) error {
	pipe := c.client.TxPipeline()
	pipe.Incr(ctx, generationKey(orderID))
	pipe.Expire(ctx, generationKey(orderID), generationTTL)
	pipe.Del(ctx, statusKey(orderID))
	if _, err := pipe.Exec(ctx); err != nil {
		return customError.WrapCacheError(err)
	}
	return nil
}

// NopStatusCache is used when redis is not configured
type NopStatusCache struct{}

func (NopStatusCache) Get(context.Context, uuid.UUID, string) (*domain.PaymentStatusResponse, bool) {
	return nil, false
}

func (NopStatusCache) Generation(context.Context, uuid.UUID) (int64, error) { return 0, nil }

func (NopStatusCache) Set(context.Context, uuid.UUID, string, int64, *domain.PaymentStatusResponse) error {
	return nil
}

func (NopStatusCache) Invalidate(context.Context, uuid.UUID) error { return nil }

var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

type RedisLocker struct {
	client *redis.Client
}

func NewRedisLocker(client *redis.Client) *RedisLocker {
	return &RedisLocker{client: client}
}

func (l *RedisLocker) TryLock(ctx context.Context, key string, ttl time.Duration) (func(), bool, error) {
	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return func() {}, false, customError.WrapCacheError(err)
	}
	if !ok {
		return func() {}, false, nil
	}

	release := func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		// expiry covers a failed release
		_ = releaseScript.Run(ctx, l.client, []string{key}, token).Err()
	}
	return release, true, nil
}

// NopLocker always grants the lease
type NopLocker struct{}

func (NopLocker) TryLock(context.Context, string, time.Duration) (func(), bool, error) {
	return func() {}, true, nil
}
