package scheduler

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/LeventeLantos/health-assistant/internal/model"
	"github.com/LeventeLantos/health-assistant/internal/repo"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func TestIdleSweep_ClosesOnlyIdleConversations(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	clock := &fakeClock{now: time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)}
	store := repo.NewMemoryStore().WithClock(clock.Now)

	quiet, err := store.CreateUserIfAbsent(ctx, "+4915100000001", "Quiet")
	if err != nil {
		t.Fatalf("CreateUserIfAbsent: %v", err)
	}
	quietConv, err := store.ActiveConversation(ctx, quiet.ID)
	if err != nil {
		t.Fatalf("ActiveConversation: %v", err)
	}

	clock.Advance(40 * time.Minute)

	chatty, err := store.CreateUserIfAbsent(ctx, "+4915100000002", "Chatty")
	if err != nil {
		t.Fatalf("CreateUserIfAbsent: %v", err)
	}
	chattyConv, err := store.ActiveConversation(ctx, chatty.ID)
	if err != nil {
		t.Fatalf("ActiveConversation: %v", err)
	}
	if _, _, err := store.AppendMessage(ctx, chattyConv.ID, model.Message{
		ExternalID: "wamid.1",
		Direction:  model.FromUser,
		Kind:       model.KindText,
		Body:       "hello",
	}); err != nil {
		t.Fatalf("AppendMessage: %v", err)
	}

	sweep := IdleSweep(store, 30*time.Minute, clock.Now, nil)
	if err := sweep(ctx); err != nil {
		t.Fatalf("sweep: %v", err)
	}

	convs := store.Conversations(quiet.ID)
	if len(convs) != 1 || convs[0].Active || convs[0].EndedAt == nil {
		t.Fatalf("expected quiet conversation closed, got %+v", convs)
	}

	again, err := store.ActiveConversation(ctx, quiet.ID)
	if err != nil {
		t.Fatalf("ActiveConversation: %v", err)
	}
	if again.ID == quietConv.ID {
		t.Fatalf("expected a new conversation after idle close")
	}

	still, err := store.ActiveConversation(ctx, chatty.ID)
	if err != nil {
		t.Fatalf("ActiveConversation: %v", err)
	}
	if still.ID != chattyConv.ID {
		t.Fatalf("expected chatty conversation to stay open")
	}
}

type failingCloser struct{}

func (failingCloser) CloseIdleConversations(context.Context, time.Time) (int, error) {
	return 0, errors.New("db down")
}

func TestIdleSweep_WrapsStoreError(t *testing.T) {
	t.Parallel()

	err := IdleSweep(failingCloser{}, time.Minute, nil, nil)(context.Background())
	if err == nil {
		t.Fatalf("expected error, got nil")
	}
	if !strings.Contains(err.Error(), "close idle conversations") {
		t.Fatalf("unexpected error: %v", err)
	}
}

type recordingCloser struct {
	mu    sync.Mutex
	since []time.Time
}

func (r *recordingCloser) CloseIdleConversations(_ context.Context, idleSince time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.since = append(r.since, idleSince)
	return 0, nil
}

func TestIdleSweep_CutoffIsNowMinusIdle(t *testing.T) {
	t.Parallel()

	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	rec := &recordingCloser{}

	if err := IdleSweep(rec, 30*time.Minute, func() time.Time { return now }, nil)(context.Background()); err != nil {
		t.Fatalf("sweep: %v", err)
	}

	if len(rec.since) != 1 {
		t.Fatalf("expected one call, got %d", len(rec.since))
	}
	if want := now.Add(-30 * time.Minute); !rec.since[0].Equal(want) {
		t.Fatalf("expected cutoff %v, got %v", want, rec.since[0])
	}
}
