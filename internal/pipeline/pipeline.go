// Package pipeline turns one inbound chat event into a reply and an audit
// record: normalize, detect language, classify, compose, dispatch, persist.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/LeventeLantos/health-assistant/internal/cache"
	"github.com/LeventeLantos/health-assistant/internal/client"
	"github.com/LeventeLantos/health-assistant/internal/intent"
	"github.com/LeventeLantos/health-assistant/internal/lang"
	"github.com/LeventeLantos/health-assistant/internal/metrics"
	"github.com/LeventeLantos/health-assistant/internal/model"
	"github.com/LeventeLantos/health-assistant/internal/reply"
	"github.com/LeventeLantos/health-assistant/internal/repo"
)

// Sender is the outbound messaging capability.
type Sender interface {
	SendText(ctx context.Context, to, text string) (providerID string, err error)
	SendQuickReplies(ctx context.Context, to, text string, options []model.QuickReply) (providerID string, err error)
}

type Config struct {
	ReplyRetries int
	StoreRetries int
	MaxChars     int
	RetryBackoff time.Duration
	SendTimeout  time.Duration
	ErrorBuffer  int
}

type Pipeline struct {
	store      repo.ConversationStore
	sender     Sender
	classifier intent.Classifier
	composer   *reply.Composer
	dedupe     cache.Deduper
	dead       cache.FailureLog
	cfg        Config
	logger     *slog.Logger

	locks *keyedMutex
	errs  chan Failure
	now   func() time.Time
}

func New(store repo.ConversationStore, sender Sender, classifier intent.Classifier, composer *reply.Composer, cfg Config, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	if classifier == nil {
		classifier = intent.NewRules(nil)
	}
	if composer == nil {
		composer = reply.NewComposer(logger)
	}
	if cfg.MaxChars <= 0 {
		cfg.MaxChars = 2000
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = 10 * time.Second
	}
	if cfg.ErrorBuffer <= 0 {
		cfg.ErrorBuffer = 64
	}

	return &Pipeline{
		store:      store,
		sender:     sender,
		classifier: classifier,
		composer:   composer,
		cfg:        cfg,
		logger:     logger,
		locks:      newKeyedMutex(),
		errs:       make(chan Failure, cfg.ErrorBuffer),
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// WithDeduper claims external ids before processing. Without one the store
// is asked whether the id was already persisted.
func (p *Pipeline) WithDeduper(d cache.Deduper) *Pipeline {
	p.dedupe = d
	return p
}

// WithFailureLog receives inbound messages whose persistence gave up.
func (p *Pipeline) WithFailureLog(f cache.FailureLog) *Pipeline {
	p.dead = f
	return p
}

// Errors publishes dispatch, persistence and panic failures. Failures are
// dropped when nobody drains the channel fast enough.
func (p *Pipeline) Errors() <-chan Failure {
	return p.errs
}

// Handle processes one inbound event to a terminal state. It never panics
// and always returns a Result.
func (p *Pipeline) Handle(ctx context.Context, in model.InboundMessage) (res Result) {
	started := time.Now()
	res.ExternalID = in.ExternalID

	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("pipeline panic: %v", r)
			p.logger.Error("pipeline panic recovered", "external_id", in.ExternalID, "panic", r)
			p.report(in, StagePanic, err)
			p.apologize(ctx, in)
			res = Result{Status: StatusError, ExternalID: in.ExternalID, Err: err}
		}
		metrics.PipelineOutcomes.WithLabelValues(string(res.Status)).Inc()
		metrics.PipelineDuration.Observe(time.Since(started).Seconds())
	}()

	if !p.claim(ctx, in.ExternalID) {
		p.logger.Info("duplicate inbound ignored", "external_id", in.ExternalID)
		res.Status = StatusDuplicate
		return res
	}

	switch in.Kind {
	case model.KindImage, model.KindAudio, model.KindOther:
		return p.handleMedia(ctx, in)
	case model.KindInteractive:
		if text, ok := p.composer.ButtonReply(in.ButtonID); ok {
			return p.handleButton(ctx, in, text)
		}
	}

	text := normalize(in.Text, p.cfg.MaxChars)
	if text == "" {
		res.Status = StatusNoMessage
		return res
	}
	return p.handleText(ctx, in, text)
}

func (p *Pipeline) handleText(ctx context.Context, in model.InboundMessage, text string) Result {
	persisted := p.persistInbound(ctx, in, model.Message{
		ExternalID: in.ExternalID,
		Direction:  model.FromUser,
		Kind:       model.KindText,
		Body:       text,
	})

	language := lang.Detect(text)
	clsStarted := time.Now()
	cls, err := p.classifier.Classify(ctx, text, language)
	if err != nil || !cls.Intent.Valid() {
		p.logger.Warn("classification failed, using general_health", "external_id", in.ExternalID, "err", err)
		cls = intent.Classification{Intent: intent.GeneralHealth, Confidence: 0.70, Model: "rule_based_general"}
	}
	latency := time.Since(clsStarted)
	metrics.Intents.WithLabelValues(string(cls.Intent)).Inc()

	body := p.composer.Compose(cls.Intent, language, reply.Entities{Symptoms: cls.Symptoms, Diseases: cls.Diseases})
	providerID, sendErr := p.dispatch(ctx, in.From, body, reply.QuickReplies(cls.Intent))
	if sendErr != nil {
		p.dispatchFailed(in, sendErr)
	}

	var followUp, followUpID string
	if sendErr == nil {
		if tip, ok := p.composer.FollowUp(cls.Intent); ok {
			id, err := p.dispatch(ctx, in.From, tip, nil)
			if err != nil {
				p.logger.Warn("follow-up not delivered", "external_id", in.ExternalID, "err", err)
			} else {
				followUp, followUpID = tip, id
			}
		}
	}

	ann := model.Annotations{
		Language:   language,
		Intent:     string(cls.Intent),
		Confidence: cls.Confidence,
		Model:      cls.Model,
		LatencyMS:  latency.Milliseconds(),
	}

	if out := <-persisted; out.err == nil {
		p.withUserLock(in.From, func() {
			if err := p.store.BackfillAnnotations(ctx, in.ExternalID, ann); err != nil {
				p.logger.Warn("annotation backfill failed", "external_id", in.ExternalID, "err", err)
			}
			if sendErr == nil {
				p.appendBot(ctx, out.conversation, providerID, body)
			}
			if followUp != "" {
				p.appendBot(ctx, out.conversation, followUpID, followUp)
			}
			if out.user.Language != language {
				if err := p.store.SetUserLanguage(ctx, out.user.ID, language); err != nil {
					p.logger.Warn("language preference not saved", "user_id", out.user.ID, "err", err)
				}
			}
		})
	}

	res := Result{
		Status:     StatusSuccess,
		ExternalID: in.ExternalID,
		Language:   language,
		Intent:     cls.Intent,
		Confidence: cls.Confidence,
		Symptoms:   cls.Symptoms,
		Diseases:   cls.Diseases,
		ProviderID: providerID,
	}
	if sendErr != nil {
		res.Status = StatusError
		res.Err = sendErr
	}

	p.logger.Info("inbound processed",
		"external_id", in.ExternalID,
		"status", res.Status,
		"language", language,
		"intent", cls.Intent,
		"confidence", cls.Confidence,
	)
	return res
}

func (p *Pipeline) handleButton(ctx context.Context, in model.InboundMessage, text string) Result {
	return p.handleFixed(ctx, in, "button:"+in.ButtonID, text, StatusSuccess)
}

func (p *Pipeline) handleMedia(ctx context.Context, in model.InboundMessage) Result {
	return p.handleFixed(ctx, in, "["+string(in.Kind)+"]", p.composer.Unsupported(in.Kind), StatusUnsupported)
}

// handleFixed persists the inbound and answers with a canned text.
func (p *Pipeline) handleFixed(ctx context.Context, in model.InboundMessage, inboundBody, text string, ok Status) Result {
	persisted := p.persistInbound(ctx, in, model.Message{
		ExternalID: in.ExternalID,
		Direction:  model.FromUser,
		Kind:       in.Kind,
		Body:       inboundBody,
	})

	providerID, sendErr := p.dispatch(ctx, in.From, text, nil)
	if sendErr != nil {
		p.dispatchFailed(in, sendErr)
	}

	if out := <-persisted; out.err == nil && sendErr == nil {
		p.withUserLock(in.From, func() {
			p.appendBot(ctx, out.conversation, providerID, text)
		})
	}

	if sendErr != nil {
		return Result{Status: StatusError, ExternalID: in.ExternalID, Err: sendErr}
	}
	return Result{Status: ok, ExternalID: in.ExternalID, ProviderID: providerID}
}

func (p *Pipeline) claim(ctx context.Context, externalID string) bool {
	if p.dedupe != nil {
		fresh, err := p.dedupe.Claim(ctx, externalID)
		if err == nil {
			return fresh
		}
		p.logger.Warn("dedupe claim failed, checking store", "external_id", externalID, "err", err)
	}

	exists, err := p.store.MessageExists(ctx, externalID)
	if err != nil {
		p.logger.Warn("duplicate check failed, processing anyway", "external_id", externalID, "err", err)
		return true
	}
	return !exists
}

// dispatch sends text, retrying transient failures up to ReplyRetries times.
func (p *Pipeline) dispatch(ctx context.Context, to, text string, options []model.QuickReply) (string, error) {
	var err error
	for attempt := 0; attempt <= p.cfg.ReplyRetries; attempt++ {
		if attempt > 0 {
			if werr := wait(ctx, p.cfg.RetryBackoff*time.Duration(attempt)); werr != nil {
				return "", errors.Join(err, werr)
			}
		}

		sendCtx, cancel := context.WithTimeout(ctx, p.cfg.SendTimeout)
		var id string
		if len(options) > 0 {
			id, err = p.sender.SendQuickReplies(sendCtx, to, text, options)
		} else {
			id, err = p.sender.SendText(sendCtx, to, text)
		}
		cancel()

		if err == nil {
			return id, nil
		}
		if client.IsPermanent(err) {
			return "", err
		}
		p.logger.Warn("reply send failed", "to", to, "attempt", attempt+1, "err", err)
	}
	return "", err
}

func (p *Pipeline) dispatchFailed(in model.InboundMessage, err error) {
	class := "transient"
	if client.IsPermanent(err) {
		class = "permanent"
	}
	metrics.ReplyFailures.WithLabelValues(class).Inc()
	p.logger.Error("reply not delivered", "external_id", in.ExternalID, "to", in.From, "class", class, "err", err)
	p.report(in, StageDispatch, err)
}

func (p *Pipeline) apologize(ctx context.Context, in model.InboundMessage) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("apology send panicked", "external_id", in.ExternalID, "panic", r)
		}
	}()

	sendCtx, cancel := context.WithTimeout(ctx, p.cfg.SendTimeout)
	defer cancel()
	if _, err := p.sender.SendText(sendCtx, in.From, p.composer.Apology(lang.Detect(in.Text))); err != nil {
		p.logger.Warn("apology not delivered", "external_id", in.ExternalID, "err", err)
	}
}

func (p *Pipeline) report(in model.InboundMessage, stage Stage, err error) {
	f := Failure{
		ExternalID: in.ExternalID,
		Recipient:  in.From,
		Stage:      stage,
		Err:        err,
		At:         p.now(),
	}
	select {
	case p.errs <- f:
	default:
		p.logger.Warn("error channel full, failure dropped", "external_id", in.ExternalID, "stage", stage)
	}
}

func (p *Pipeline) withUserLock(recipient string, fn func()) {
	unlock := p.locks.Lock(recipient)
	defer unlock()
	fn()
}

func (p *Pipeline) appendBot(ctx context.Context, conv *model.Conversation, providerID, body string) {
	if providerID == "" {
		providerID = "bot-" + uuid.NewString()
	}
	if _, _, err := p.store.AppendMessage(ctx, conv.ID, model.Message{
		ExternalID: providerID,
		Direction:  model.FromBot,
		Kind:       model.KindText,
		Body:       body,
	}); err != nil {
		p.logger.Warn("bot message not persisted", "conversation_id", conv.ID, "err", err)
	}
}

func wait(ctx context.Context, d time.Duration) error {
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
