package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	failureKey     = "persist:failures"
	maxDeadLetters = 1000
)

type RedisCache struct {
	rdb *redis.Client
	ttl time.Duration
}

var (
	_ DeliveryCache = (*RedisCache)(nil)
	_ Deduper       = (*RedisCache)(nil)
	_ FailureLog    = (*RedisCache)(nil)
)

func NewRedisCache(rdb *redis.Client, ttl time.Duration) *RedisCache {
	return &RedisCache{rdb: rdb, ttl: ttl}
}

func (c *RedisCache) StoreDelivery(ctx context.Context, d Delivery) error {
	key := fmt.Sprintf("delivery:%s:%s", d.JobID, d.Recipient)
	d.SentAt = d.SentAt.UTC()

	b, err := json.Marshal(d)
	if err != nil {
		return err
	}

	return c.rdb.Set(ctx, key, b, c.ttl).Err()
}

// Delivery returns the cached delivery for a recipient of a job.
func (c *RedisCache) Delivery(ctx context.Context, jobID, recipient string) (Delivery, bool, error) {
	raw, err := c.rdb.Get(ctx, fmt.Sprintf("delivery:%s:%s", jobID, recipient)).Bytes()
	if err == redis.Nil {
		return Delivery{}, false, nil
	}
	if err != nil {
		return Delivery{}, false, err
	}

	var d Delivery
	if err := json.Unmarshal(raw, &d); err != nil {
		return Delivery{}, false, err
	}
	return d, true, nil
}

func (c *RedisCache) Claim(ctx context.Context, externalID string) (bool, error) {
	return c.rdb.SetNX(ctx, "inbound:"+externalID, 1, c.ttl).Result()
}

func (c *RedisCache) RecordFailure(ctx context.Context, f DeadLetter) error {
	f.At = f.At.UTC()
	b, err := json.Marshal(f)
	if err != nil {
		return err
	}

	pipe := c.rdb.TxPipeline()
	pipe.LPush(ctx, failureKey, b)
	pipe.LTrim(ctx, failureKey, 0, maxDeadLetters-1)
	_, err = pipe.Exec(ctx)
	return err
}

func (c *RedisCache) RecentFailures(ctx context.Context, n int) ([]DeadLetter, error) {
	if n <= 0 {
		n = 50
	}
	raws, err := c.rdb.LRange(ctx, failureKey, 0, int64(n-1)).Result()
	if err != nil {
		return nil, err
	}

	out := make([]DeadLetter, 0, len(raws))
	for _, raw := range raws {
		var f DeadLetter
		if err := json.Unmarshal([]byte(raw), &f); err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, nil
}
