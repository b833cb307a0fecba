package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/LeventeLantos/health-assistant/internal/cache"
	"github.com/LeventeLantos/health-assistant/internal/metrics"
	"github.com/LeventeLantos/health-assistant/internal/model"
)

type persisted struct {
	user         *model.User
	conversation *model.Conversation
	err          error
}

// persistInbound stores the inbound message in the background so the reply
// does not wait on the store.
func (p *Pipeline) persistInbound(ctx context.Context, in model.InboundMessage, msg model.Message) <-chan persisted {
	ch := make(chan persisted, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				ch <- persisted{err: fmt.Errorf("persist panic: %v", r)}
			}
		}()
		ch <- p.persistWithRetry(ctx, in, msg)
	}()
	return ch
}

func (p *Pipeline) persistWithRetry(ctx context.Context, in model.InboundMessage, msg model.Message) persisted {
	var lastErr error
	attempts := 0
	for attempt := 0; attempt <= p.cfg.StoreRetries; attempt++ {
		if attempt > 0 {
			if err := wait(ctx, p.cfg.RetryBackoff*time.Duration(attempt)); err != nil {
				lastErr = err
				break
			}
			msg.RetryCount = attempt
			reason := lastErr.Error()
			msg.Error = &reason
		}
		attempts++

		out := p.persistOnce(ctx, in, msg)
		if out.err == nil {
			return out
		}
		lastErr = out.err
		p.logger.Warn("inbound persist failed",
			"external_id", in.ExternalID,
			"attempt", attempts,
			"err", out.err,
		)
	}

	metrics.PersistFailures.Inc()
	p.logger.Error("inbound persist gave up", "external_id", in.ExternalID, "attempts", attempts, "err", lastErr)
	p.report(in, StagePersist, lastErr)

	if p.dead != nil {
		if err := p.dead.RecordFailure(context.WithoutCancel(ctx), cache.DeadLetter{
			ExternalID: in.ExternalID,
			Recipient:  in.From,
			Stage:      string(StagePersist),
			Error:      lastErr.Error(),
			Attempts:   attempts,
			At:         p.now(),
		}); err != nil {
			p.logger.Error("dead letter not recorded", "external_id", in.ExternalID, "err", err)
		}
	}
	return persisted{err: lastErr}
}

func (p *Pipeline) persistOnce(ctx context.Context, in model.InboundMessage, msg model.Message) persisted {
	unlock := p.locks.Lock(in.From)
	defer unlock()

	user, err := p.store.CreateUserIfAbsent(ctx, in.From, in.Name)
	if err != nil {
		return persisted{err: fmt.Errorf("create user: %w", err)}
	}
	conv, err := p.store.ActiveConversation(ctx, user.ID)
	if err != nil {
		return persisted{err: fmt.Errorf("active conversation: %w", err)}
	}
	if _, _, err := p.store.AppendMessage(ctx, conv.ID, msg); err != nil {
		return persisted{err: fmt.Errorf("append message: %w", err)}
	}
	return persisted{user: user, conversation: conv}
}
