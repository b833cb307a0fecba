// Package intake decouples the webhook acknowledgment from pipeline work:
// the transport enqueues and returns, workers drain the queue.
package intake

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/LeventeLantos/health-assistant/internal/metrics"
	"github.com/LeventeLantos/health-assistant/internal/model"
	"github.com/LeventeLantos/health-assistant/internal/pipeline"
)

var (
	ErrQueueFull = errors.New("intake queue full")
	ErrClosed    = errors.New("intake queue closed")
)

type Handler interface {
	Handle(ctx context.Context, in model.InboundMessage) pipeline.Result
}

type HandlerFunc func(ctx context.Context, in model.InboundMessage) pipeline.Result

func (f HandlerFunc) Handle(ctx context.Context, in model.InboundMessage) pipeline.Result {
	return f(ctx, in)
}

type Queue struct {
	handler Handler
	workers int
	logger  *slog.Logger

	ch     chan model.InboundMessage
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.RWMutex
	closed  bool
	started bool
}

func NewQueue(handler Handler, workers, size int, logger *slog.Logger) *Queue {
	if logger == nil {
		logger = slog.Default()
	}
	if workers <= 0 {
		workers = 1
	}
	if size <= 0 {
		size = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Queue{
		handler: handler,
		workers: workers,
		logger:  logger,
		ch:      make(chan model.InboundMessage, size),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Start launches the workers. Calling it more than once has no effect.
func (q *Queue) Start() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.started || q.closed {
		return
	}
	q.started = true

	for i := 0; i < q.workers; i++ {
		q.wg.Add(1)
		go q.work(i)
	}
	q.logger.Info("intake started", "workers", q.workers, "capacity", cap(q.ch))
}

// Enqueue hands msg to the workers without blocking.
func (q *Queue) Enqueue(msg model.InboundMessage) error {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return ErrClosed
	}

	select {
	case q.ch <- msg:
		metrics.IntakeQueueDepth.Inc()
		return nil
	default:
		return ErrQueueFull
	}
}

func (q *Queue) Len() int {
	return len(q.ch)
}

// Close stops accepting messages and waits for queued ones to be handled.
// If ctx ends first the workers' context is cancelled and Close still waits
// for in-flight handlers to return.
func (q *Queue) Close(ctx context.Context) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil
	}
	q.closed = true
	close(q.ch)
	started := q.started
	q.mu.Unlock()

	if !started {
		q.cancel()
		return nil
	}

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		q.cancel()
		return nil
	case <-ctx.Done():
		q.cancel()
		<-done
		return ctx.Err()
	}
}

func (q *Queue) work(id int) {
	defer q.wg.Done()

	for msg := range q.ch {
		metrics.IntakeQueueDepth.Dec()
		q.handle(id, msg)
	}
}

func (q *Queue) handle(worker int, msg model.InboundMessage) {
	defer func() {
		if r := recover(); r != nil {
			q.logger.Error("intake handler panic", "worker", worker, "external_id", msg.ExternalID, "panic", r)
		}
	}()

	res := q.handler.Handle(q.ctx, msg)
	if res.Status == pipeline.StatusError {
		q.logger.Warn("inbound finished with error", "worker", worker, "external_id", msg.ExternalID, "err", res.Err)
	}
}
