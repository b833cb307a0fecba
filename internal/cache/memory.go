package cache

import (
	"context"
	"sync"
	"time"
)

// MemoryCache is the process-local stand-in for RedisCache.
type MemoryCache struct {
	mu         sync.Mutex
	ttl        time.Duration
	now        func() time.Time
	claimed    map[string]time.Time
	deliveries map[string]Delivery
	failures   []DeadLetter
}

var (
	_ DeliveryCache = (*MemoryCache)(nil)
	_ Deduper       = (*MemoryCache)(nil)
	_ FailureLog    = (*MemoryCache)(nil)
)

func NewMemoryCache(ttl time.Duration) *MemoryCache {
	return &MemoryCache{
		ttl:        ttl,
		now:        time.Now,
		claimed:    map[string]time.Time{},
		deliveries: map[string]Delivery{},
	}
}

func (c *MemoryCache) StoreDelivery(ctx context.Context, d Delivery) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.deliveries[d.JobID+":"+d.Recipient] = d
	return nil
}

func (c *MemoryCache) Delivery(jobID, recipient string) (Delivery, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	d, ok := c.deliveries[jobID+":"+recipient]
	return d, ok
}

func (c *MemoryCache) Claim(ctx context.Context, externalID string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if exp, ok := c.claimed[externalID]; ok && now.Before(exp) {
		return false, nil
	}
	c.claimed[externalID] = now.Add(c.ttl)

	// Opportunistic sweep keeps the map bounded by the live window.
	if len(c.claimed) > 10000 {
		for id, exp := range c.claimed {
			if !now.Before(exp) {
				delete(c.claimed, id)
			}
		}
	}
	return true, nil
}

func (c *MemoryCache) RecordFailure(ctx context.Context, f DeadLetter) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	c.failures = append([]DeadLetter{f}, c.failures...)
	if len(c.failures) > maxDeadLetters {
		c.failures = c.failures[:maxDeadLetters]
	}
	return nil
}

func (c *MemoryCache) RecentFailures(ctx context.Context, n int) ([]DeadLetter, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if n <= 0 {
		n = 50
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if n > len(c.failures) {
		n = len(c.failures)
	}
	out := make([]DeadLetter, n)
	copy(out, c.failures[:n])
	return out, nil
}
