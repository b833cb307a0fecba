package broadcast

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/LeventeLantos/health-assistant/internal/cache"
	"github.com/LeventeLantos/health-assistant/internal/metrics"
	"github.com/LeventeLantos/health-assistant/internal/model"
	"github.com/LeventeLantos/health-assistant/internal/recipient"
	"github.com/LeventeLantos/health-assistant/internal/repo"
)

// Resolver turns a target filter into recipient ids.
type Resolver interface {
	Resolve(ctx context.Context, f model.TargetFilter) ([]string, error)
}

type Config struct {
	BatchSize   int
	BatchDelay  time.Duration
	SendTimeout time.Duration
	ContentMax  int
}

// Engine fans a broadcast out in fixed-size batches. Only one batch of a job
// is in flight at a time and the next starts after BatchDelay.
type Engine struct {
	resolver   Resolver
	sender     Sender
	jobs       repo.BroadcastRepository
	deliveries cache.DeliveryCache
	cfg        Config
	logger     *slog.Logger

	sleep func(ctx context.Context, d time.Duration) error
	now   func() time.Time

	baseCtx context.Context
	stop    context.CancelFunc
	wg      sync.WaitGroup

	mu      sync.Mutex
	running map[string]*atomic.Bool
}

func NewEngine(resolver Resolver, sender Sender, jobs repo.BroadcastRepository, cfg Config, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 10
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = 10 * time.Second
	}
	if cfg.ContentMax <= 0 {
		cfg.ContentMax = 4096
	}

	baseCtx, stop := context.WithCancel(context.Background())
	return &Engine{
		resolver: resolver,
		sender:   sender,
		jobs:     jobs,
		cfg:      cfg,
		logger:   logger,
		sleep:    sleepCtx,
		now:      func() time.Time { return time.Now().UTC() },
		baseCtx:  baseCtx,
		stop:     stop,
		running:  map[string]*atomic.Bool{},
	}
}

// WithDeliveryCache records provider ids of successful deliveries.
func (e *Engine) WithDeliveryCache(c cache.DeliveryCache) *Engine {
	e.deliveries = c
	return e
}

// WithSleep replaces the inter-batch wait. Intended for tests.
func (e *Engine) WithSleep(fn func(ctx context.Context, d time.Duration) error) *Engine {
	e.sleep = fn
	return e
}

// Submit runs a job to completion and returns its report.
func (e *Engine) Submit(ctx context.Context, spec JobSpec) (*Result, error) {
	job, recipients, flag, err := e.prepare(ctx, spec)
	if err != nil {
		return nil, err
	}
	if job.Status == model.JobNoTargets {
		return resultOf(job, nil), nil
	}
	return e.run(ctx, job, recipients, flag), nil
}

// Start accepts a job and runs it in the background. The returned job is
// the state at acceptance.
func (e *Engine) Start(ctx context.Context, spec JobSpec) (*model.BroadcastJob, error) {
	job, recipients, flag, err := e.prepare(ctx, spec)
	if err != nil {
		return nil, err
	}
	snapshot := *job
	if job.Status == model.JobNoTargets {
		return &snapshot, nil
	}

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		e.run(e.baseCtx, job, recipients, flag)
	}()
	return &snapshot, nil
}

// Cancel stops a running job before its next batch.
func (e *Engine) Cancel(ctx context.Context, jobID string) error {
	e.mu.Lock()
	flag, ok := e.running[jobID]
	e.mu.Unlock()
	if ok {
		flag.Store(true)
		e.logger.Info("broadcast cancel requested", "job_id", jobID)
		return nil
	}

	if _, err := e.Job(ctx, jobID); err != nil {
		return err
	}
	return ErrJobFinished
}

// Retry submits a new job addressed to the failed recipients of jobID.
func (e *Engine) Retry(ctx context.Context, jobID string) (*Result, error) {
	spec, err := e.RetrySpec(ctx, jobID)
	if err != nil {
		return nil, err
	}
	return e.Submit(ctx, spec)
}

// RetrySpec builds the job spec Retry would submit.
func (e *Engine) RetrySpec(ctx context.Context, jobID string) (JobSpec, error) {
	job, err := e.Job(ctx, jobID)
	if err != nil {
		return JobSpec{}, err
	}
	if job.CompletedAt == nil {
		return JobSpec{}, fmt.Errorf("%w: %s", ErrJobRunning, jobID)
	}
	failed := job.FailedIDs()
	if len(failed) == 0 {
		return JobSpec{}, ErrNothingToRetry
	}
	return JobSpec{
		Kind:     job.Kind,
		Priority: job.Priority,
		Body:     job.Body,
		Filter:   recipient.ExplicitList(failed...),
	}, nil
}

func (e *Engine) Job(ctx context.Context, jobID string) (*model.BroadcastJob, error) {
	job, err := e.jobs.JobByID(ctx, jobID)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, ErrJobNotFound
	}
	return job, err
}

func (e *Engine) History(ctx context.Context, limit int) ([]model.BroadcastJob, error) {
	return e.jobs.ListJobs(ctx, limit)
}

// Close waits for background jobs. If ctx expires first, running jobs are
// cancelled and finalized before Close returns.
func (e *Engine) Close(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		e.stop()
		return nil
	case <-ctx.Done():
		e.stop()
		<-done
		return ctx.Err()
	}
}

func (e *Engine) prepare(ctx context.Context, spec JobSpec) (*model.BroadcastJob, []string, *atomic.Bool, error) {
	if err := model.Validate(spec); err != nil {
		return nil, nil, nil, err
	}

	recipients, err := e.resolver.Resolve(ctx, spec.Filter)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("resolve recipients: %w", err)
	}

	now := e.now()
	job := &model.BroadcastJob{
		ID:               uuid.NewString(),
		Kind:             spec.Kind,
		Priority:         spec.Priority,
		Body:             spec.Body,
		Filter:           spec.Filter,
		Status:           model.JobRunning,
		Targeted:         len(recipients),
		FailedRecipients: []model.FailedRecipient{},
		CreatedAt:        now,
	}

	if len(recipients) == 0 {
		job.Status = model.JobNoTargets
		job.CompletedAt = &now
		if err := e.jobs.SaveJob(ctx, job); err != nil {
			return nil, nil, nil, fmt.Errorf("save job: %w", err)
		}
		metrics.BroadcastJobs.WithLabelValues(string(job.Status)).Inc()
		e.logger.Info("broadcast has no targets", "job_id", job.ID, "filter", job.Filter.Kind)
		return job, nil, nil, nil
	}

	if err := e.jobs.SaveJob(ctx, job); err != nil {
		return nil, nil, nil, fmt.Errorf("save job: %w", err)
	}

	flag := &atomic.Bool{}
	e.mu.Lock()
	e.running[job.ID] = flag
	e.mu.Unlock()

	return job, recipients, flag, nil
}

func (e *Engine) run(ctx context.Context, job *model.BroadcastJob, recipients []string, cancelled *atomic.Bool) *Result {
	defer func() {
		e.mu.Lock()
		delete(e.running, job.ID)
		e.mu.Unlock()
	}()

	log := e.logger.With("job_id", job.ID)
	text := Render(job.Kind, job.Priority, job.Body)

	sender := newBatchSender(e.sender, e.cfg.ContentMax, e.cfg.SendTimeout).WithHooks(
		func(ctx context.Context, to, providerID string) {
			metrics.BroadcastDeliveries.WithLabelValues("success").Inc()
			if e.deliveries == nil {
				return
			}
			if err := e.deliveries.StoreDelivery(ctx, cache.Delivery{
				JobID:      job.ID,
				Recipient:  to,
				ProviderID: providerID,
				SentAt:     e.now(),
			}); err != nil {
				log.Warn("delivery cache write failed", "recipient", to, "err", err)
			}
		},
		func(_ context.Context, to, reason string) {
			metrics.BroadcastDeliveries.WithLabelValues("failure").Inc()
			log.Warn("broadcast delivery failed", "recipient", to, "reason", reason)
		},
	)

	batches := partition(recipients, e.cfg.BatchSize)
	sizes := make([]int, 0, len(batches))
	job.Status = model.JobCompleted

	for i, batch := range batches {
		if cancelled.Load() || ctx.Err() != nil {
			job.Status = model.JobCancelled
			break
		}

		for _, o := range sender.ProcessBatch(ctx, batch, text) {
			if o.err != nil {
				job.Failed++
				job.FailedRecipients = append(job.FailedRecipients, model.FailedRecipient{
					Recipient: o.recipient,
					Reason:    o.err.Error(),
				})
				continue
			}
			job.Succeeded++
		}
		sizes = append(sizes, len(batch))
		log.Debug("broadcast batch done", "batch", i+1, "of", len(batches), "size", len(batch))

		if i < len(batches)-1 {
			if err := e.sleep(ctx, e.cfg.BatchDelay); err != nil {
				job.Status = model.JobCancelled
				break
			}
		}
	}

	completed := e.now()
	job.CompletedAt = &completed

	finalizeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := e.jobs.FinalizeJob(finalizeCtx, job); err != nil {
		log.Error("finalize broadcast job failed", "err", err)
	}

	metrics.BroadcastJobs.WithLabelValues(string(job.Status)).Inc()
	log.Info("broadcast finished",
		"status", job.Status,
		"targeted", job.Targeted,
		"succeeded", job.Succeeded,
		"failed", job.Failed,
		"batches", len(sizes),
	)

	return resultOf(job, sizes)
}

func resultOf(job *model.BroadcastJob, batches []int) *Result {
	if batches == nil {
		batches = []int{}
	}
	return &Result{
		JobID:            job.ID,
		Status:           job.Status,
		Targeted:         job.Targeted,
		Succeeded:        job.Succeeded,
		Failed:           job.Failed,
		FailedRecipients: append([]model.FailedRecipient{}, job.FailedRecipients...),
		Batches:          batches,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
