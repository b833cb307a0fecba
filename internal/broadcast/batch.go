package broadcast

import (
	"context"
	"fmt"
	"time"
	"unicode/utf8"

	"golang.org/x/sync/errgroup"
)

// Sender is the outbound capability a broadcast delivers through.
type Sender interface {
	SendText(ctx context.Context, to, text string) (providerID string, err error)
}

type outcome struct {
	recipient  string
	providerID string
	err        error
}

// batchSender delivers one batch with bounded fan-out and reports every
// outcome through its hooks once the whole batch has resolved.
type batchSender struct {
	client      Sender
	contentMax  int
	sendTimeout time.Duration

	onSent   func(ctx context.Context, recipient, providerID string)
	onFailed func(ctx context.Context, recipient, reason string)
}

func newBatchSender(client Sender, contentMax int, sendTimeout time.Duration) *batchSender {
	return &batchSender{
		client:      client,
		contentMax:  contentMax,
		sendTimeout: sendTimeout,
	}
}

func (s *batchSender) WithHooks(
	onSent func(ctx context.Context, recipient, providerID string),
	onFailed func(ctx context.Context, recipient, reason string),
) *batchSender {
	s.onSent = onSent
	s.onFailed = onFailed
	return s
}

// ProcessBatch sends text to every recipient concurrently and returns only
// after all sends have resolved. Outcomes are in recipient order.
func (s *batchSender) ProcessBatch(ctx context.Context, recipients []string, text string) []outcome {
	outcomes := make([]outcome, len(recipients))

	if n := utf8.RuneCountInString(text); n > s.contentMax {
		for i, to := range recipients {
			outcomes[i] = outcome{recipient: to, err: fmt.Errorf("content exceeds %d chars", s.contentMax)}
		}
		s.report(ctx, outcomes)
		return outcomes
	}

	var g errgroup.Group
	g.SetLimit(len(recipients))
	for i, to := range recipients {
		g.Go(func() error {
			outcomes[i] = s.deliver(ctx, to, text)
			return nil
		})
	}
	_ = g.Wait()

	s.report(ctx, outcomes)
	return outcomes
}

func (s *batchSender) deliver(ctx context.Context, to, text string) (o outcome) {
	o.recipient = to
	defer func() {
		if r := recover(); r != nil {
			o.err = fmt.Errorf("send panic: %v", r)
		}
	}()

	sendCtx, cancel := context.WithTimeout(ctx, s.sendTimeout)
	defer cancel()

	o.providerID, o.err = s.client.SendText(sendCtx, to, text)
	return o
}

func (s *batchSender) report(ctx context.Context, outcomes []outcome) {
	for _, o := range outcomes {
		if o.err != nil {
			if s.onFailed != nil {
				s.onFailed(ctx, o.recipient, o.err.Error())
			}
			continue
		}
		if s.onSent != nil {
			s.onSent(ctx, o.recipient, o.providerID)
		}
	}
}
