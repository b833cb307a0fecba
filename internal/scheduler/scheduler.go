package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// TickFunc is one unit of periodic work. A returned error is logged and kept
// as the last result; it never stops the loop.
type TickFunc func(context.Context) error

// Status is a point-in-time snapshot of a Scheduler.
type Status struct {
	Running      bool      `json:"running"`
	Interval     string    `json:"interval"`
	Runs         int64     `json:"runs"`
	LastRun      time.Time `json:"last_run,omitzero"`
	LastDuration int64     `json:"last_duration_ms"`
	LastError    string    `json:"last_error,omitempty"`
}

type Scheduler struct {
	name     string
	interval time.Duration
	tickFn   TickFunc
	logger   *slog.Logger

	running atomic.Bool
	runs    atomic.Int64

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}

	lastMu       sync.Mutex
	lastRun      time.Time
	lastDuration time.Duration
	lastErr      error
}

func New(name string, interval time.Duration, tickFn TickFunc, logger *slog.Logger) (*Scheduler, error) {
	if interval <= 0 {
		return nil, errors.New("interval must be > 0")
	}
	if tickFn == nil {
		return nil, errors.New("tickFn must not be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		name:     name,
		interval: interval,
		tickFn:   tickFn,
		logger:   logger.With("scheduler", name),
		done:     make(chan struct{}),
	}, nil
}

func (s *Scheduler) Start() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running.Load() {
		return false
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.done = make(chan struct{})
	s.running.Store(true)

	go func() {
		defer close(s.done)

		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		s.logger.Info("scheduler started", "interval", s.interval.String())

		s.safeTick(ctx)

		for {
			select {
			case <-ctx.Done():
				s.logger.Info("scheduler stopping")
				return
			case <-ticker.C:
				s.safeTick(ctx)
			}
		}
	}()

	return true
}

func (s *Scheduler) Stop() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running.Load() {
		return false
	}

	s.cancel()
	<-s.done
	s.running.Store(false)

	s.logger.Info("scheduler stopped")
	return true
}

func (s *Scheduler) IsRunning() bool {
	return s.running.Load()
}

func (s *Scheduler) Status() Status {
	s.lastMu.Lock()
	defer s.lastMu.Unlock()

	st := Status{
		Running:      s.running.Load(),
		Interval:     s.interval.String(),
		Runs:         s.runs.Load(),
		LastRun:      s.lastRun,
		LastDuration: s.lastDuration.Milliseconds(),
	}
	if s.lastErr != nil {
		st.LastError = s.lastErr.Error()
	}
	return st
}

func (s *Scheduler) safeTick(ctx context.Context) {
	start := time.Now()
	var err error

	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("scheduler tick panic recovered", "panic", r)
			err = fmt.Errorf("panic: %v", r)
		}
		s.record(start, err)
	}()

	err = s.tickFn(ctx)
	if err != nil {
		s.logger.Error("scheduler tick failed", "err", err)
		return
	}
	s.logger.Debug("scheduler tick completed", "duration_ms", time.Since(start).Milliseconds())
}

func (s *Scheduler) record(start time.Time, err error) {
	s.runs.Add(1)

	s.lastMu.Lock()
	s.lastRun = start
	s.lastDuration = time.Since(start)
	s.lastErr = err
	s.lastMu.Unlock()
}
