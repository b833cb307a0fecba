package cache

import (
	"context"
	"testing"
	"time"
)

func TestMemoryCache_ClaimExpires(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	c := NewMemoryCache(time.Minute)
	c.now = func() time.Time { return now }
	ctx := context.Background()

	if ok, _ := c.Claim(ctx, "x"); !ok {
		t.Fatalf("first claim should succeed")
	}
	if ok, _ := c.Claim(ctx, "x"); ok {
		t.Fatalf("repeat claim should fail")
	}

	now = now.Add(time.Minute)
	if ok, _ := c.Claim(ctx, "x"); !ok {
		t.Fatalf("claim after expiry should succeed")
	}
}

func TestMemoryCache_RecentFailures(t *testing.T) {
	t.Parallel()

	c := NewMemoryCache(time.Minute)
	ctx := context.Background()

	got, err := c.RecentFailures(ctx, 5)
	if err != nil || len(got) != 0 {
		t.Fatalf("empty log = %v, %v", got, err)
	}

	_ = c.RecordFailure(ctx, DeadLetter{ExternalID: "1"})
	_ = c.RecordFailure(ctx, DeadLetter{ExternalID: "2"})

	got, _ = c.RecentFailures(ctx, 5)
	if len(got) != 2 || got[0].ExternalID != "2" {
		t.Fatalf("unexpected order: %+v", got)
	}
}
