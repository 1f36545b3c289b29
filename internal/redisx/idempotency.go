package redisx

import (
	"context"
	"errors"
	"time"

	"github.com/ariefcatur/go-book-marketplace/internal/orders"
	"github.com/redis/go-redis/v9"
)

const inflight = "inflight"

// CheckoutIdempotency stores checkout results under the client's
// Idempotency-Key. A claim is an "inflight" marker set with SETNX; a finished
// checkout overwrites it with the result JSON for TTL.
type CheckoutIdempotency struct {
	RDB         redis.Cmdable
	TTL         time.Duration
	InflightTTL time.Duration
}

func NewCheckoutIdempotency(rdb redis.Cmdable, ttl time.Duration) *CheckoutIdempotency {
	if ttl <= 0 {
		ttl = TTLIdempotency
	}
	return &CheckoutIdempotency{RDB: rdb, TTL: ttl, InflightTTL: TTLInflight}
}

func (c *CheckoutIdempotency) Begin(ctx context.Context, key string) ([]byte, error) {
	k := IdemCheckoutKey(key)
	ok, err := c.RDB.SetNX(ctx, k, inflight, c.InflightTTL).Result()
	if err != nil {
		return nil, err
	}
	if ok {
		return nil, nil
	}
	b, err := c.RDB.Get(ctx, k).Bytes()
	switch {
	case errors.Is(err, redis.Nil):
		// expired between SETNX and GET; treat as still taken, the client retries
		return nil, orders.ErrConflict
	case err != nil:
		return nil, err
	case string(b) == inflight:
		return nil, orders.ErrConflict
	}
	return b, nil
}

func (c *CheckoutIdempotency) Complete(ctx context.Context, key string, result []byte) error {
	return c.RDB.Set(ctx, IdemCheckoutKey(key), result, c.TTL).Err()
}

func (c *CheckoutIdempotency) Abort(ctx context.Context, key string) error {
	return c.RDB.Del(ctx, IdemCheckoutKey(key)).Err()
}
