package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LeventeLantos/health-assistant/internal/cache"
	"github.com/LeventeLantos/health-assistant/internal/client"
	"github.com/LeventeLantos/health-assistant/internal/intent"
	"github.com/LeventeLantos/health-assistant/internal/model"
	"github.com/LeventeLantos/health-assistant/internal/repo"
)

type sentMessage struct {
	To      string
	Text    string
	Options []model.QuickReply
}

type fakeSender struct {
	mu      sync.Mutex
	sent    []sentMessage
	calls   int
	failFor int
	err     error
	n       atomic.Int64
}

func (f *fakeSender) send(to, text string, options []model.QuickReply) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls++
	if f.calls <= f.failFor {
		return "", f.err
	}
	f.sent = append(f.sent, sentMessage{To: to, Text: text, Options: options})
	return fmt.Sprintf("wamid.out.%d", f.n.Add(1)), nil
}

func (f *fakeSender) SendText(_ context.Context, to, text string) (string, error) {
	return f.send(to, text, nil)
}

func (f *fakeSender) SendQuickReplies(_ context.Context, to, text string, options []model.QuickReply) (string, error) {
	return f.send(to, text, options)
}

func (f *fakeSender) messages() []sentMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sentMessage(nil), f.sent...)
}

type harness struct {
	p      *Pipeline
	store  *repo.MemoryStore
	sender *fakeSender
	cache  *cache.MemoryCache
}

func newHarness(t *testing.T, store repo.ConversationStore, sender *fakeSender) *harness {
	t.Helper()

	mem, _ := store.(*repo.MemoryStore)
	c := cache.NewMemoryCache(time.Hour)
	p := New(store, sender, intent.NewRules(nil), nil, Config{
		ReplyRetries: 2,
		StoreRetries: 2,
		SendTimeout:  time.Second,
	}, slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))).
		WithDeduper(c).
		WithFailureLog(c)

	return &harness{p: p, store: mem, sender: sender, cache: c}
}

func inbound(id, text string) model.InboundMessage {
	return model.InboundMessage{
		ExternalID: id,
		From:       "+919876543210",
		Name:       "Asha",
		Text:       text,
		Kind:       model.KindText,
		ReceivedAt: time.Now(),
	}
}

func (h *harness) conversationMessages(t *testing.T) []model.Message {
	t.Helper()

	ctx := context.Background()
	u, err := h.store.CreateUserIfAbsent(ctx, "+919876543210", "")
	require.NoError(t, err)
	c, err := h.store.ActiveConversation(ctx, u.ID)
	require.NoError(t, err)
	msgs, err := h.store.ListMessages(ctx, c.ID)
	require.NoError(t, err)
	return msgs
}

func TestHandle_EmergencyOffersQuickReplies(t *testing.T) {
	t.Parallel()

	h := newHarness(t, repo.NewMemoryStore(), &fakeSender{})

	res := h.p.Handle(context.Background(), inbound("wamid.1", "I have severe chest pain and difficulty breathing"))

	assert.Equal(t, StatusSuccess, res.Status)
	assert.Equal(t, intent.Emergency, res.Intent)
	assert.Equal(t, 0.95, res.Confidence)
	assert.Equal(t, "en", res.Language)

	sent := h.sender.messages()
	require.Len(t, sent, 1)
	require.NotEmpty(t, sent[0].Options)
	ids := make([]string, 0, len(sent[0].Options))
	for _, o := range sent[0].Options {
		ids = append(ids, o.ID)
	}
	assert.Contains(t, ids, "call_emergency")

	msgs := h.conversationMessages(t)
	require.Len(t, msgs, 2)
	assert.Equal(t, model.FromUser, msgs[0].Direction)
	assert.Equal(t, "emergency", msgs[0].Annotations.Intent)
	assert.Equal(t, 0.95, msgs[0].Annotations.Confidence)
	assert.Equal(t, "rule_based_emergency", msgs[0].Annotations.Model)
	assert.Equal(t, model.FromBot, msgs[1].Direction)
	assert.Equal(t, res.ProviderID, msgs[1].ExternalID)
}

func TestHandle_SymptomInquiryWithFollowUp(t *testing.T) {
	t.Parallel()

	h := newHarness(t, repo.NewMemoryStore(), &fakeSender{})

	res := h.p.Handle(context.Background(), inbound("wamid.2", "I have a headache and fever"))

	assert.Equal(t, StatusSuccess, res.Status)
	assert.Equal(t, intent.SymptomInquiry, res.Intent)
	assert.Equal(t, 0.85, res.Confidence)
	assert.Contains(t, res.Symptoms, "headache")
	assert.Contains(t, res.Symptoms, "fever")

	sent := h.sender.messages()
	require.Len(t, sent, 2)
	assert.Contains(t, sent[0].Text, "headache")
	assert.Empty(t, sent[0].Options)
	assert.Contains(t, sent[1].Text, "Home remedies")

	assert.Len(t, h.conversationMessages(t), 3)
}

func TestHandle_RedeliveryIsProcessedOnce(t *testing.T) {
	t.Parallel()

	h := newHarness(t, repo.NewMemoryStore(), &fakeSender{})
	ev := inbound("wamid.3", "how can I stay healthy")

	first := h.p.Handle(context.Background(), ev)
	second := h.p.Handle(context.Background(), ev)

	assert.Equal(t, StatusSuccess, first.Status)
	assert.Equal(t, StatusDuplicate, second.Status)
	assert.Len(t, h.sender.messages(), 1)

	var inbound int
	for _, m := range h.conversationMessages(t) {
		if m.Direction == model.FromUser {
			inbound++
		}
	}
	assert.Equal(t, 1, inbound)
}

func TestHandle_RedeliveryWithoutDeduperUsesStore(t *testing.T) {
	t.Parallel()

	store := repo.NewMemoryStore()
	sender := &fakeSender{}
	p := New(store, sender, nil, nil, Config{}, slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil)))
	ev := inbound("wamid.3b", "hello")

	assert.Equal(t, StatusSuccess, p.Handle(context.Background(), ev).Status)
	assert.Equal(t, StatusDuplicate, p.Handle(context.Background(), ev).Status)
	assert.Len(t, sender.messages(), 1)
}

func TestHandle_EmptyTextIsNoMessage(t *testing.T) {
	t.Parallel()

	h := newHarness(t, repo.NewMemoryStore(), &fakeSender{})

	res := h.p.Handle(context.Background(), inbound("wamid.4", " \n\t "))
	assert.Equal(t, StatusNoMessage, res.Status)
	assert.Empty(t, h.sender.messages())
}

func TestHandle_MediaIsAcknowledged(t *testing.T) {
	t.Parallel()

	h := newHarness(t, repo.NewMemoryStore(), &fakeSender{})
	ev := inbound("wamid.5", "")
	ev.Kind = model.KindImage

	res := h.p.Handle(context.Background(), ev)
	assert.Equal(t, StatusUnsupported, res.Status)

	sent := h.sender.messages()
	require.Len(t, sent, 1)
	assert.Contains(t, sent[0].Text, "only understand text")

	msgs := h.conversationMessages(t)
	require.Len(t, msgs, 2)
	assert.Equal(t, model.KindImage, msgs[0].Kind)
	assert.Equal(t, "[image]", msgs[0].Body)
}

func TestHandle_ButtonReply(t *testing.T) {
	t.Parallel()

	h := newHarness(t, repo.NewMemoryStore(), &fakeSender{})
	ev := inbound("wamid.6", "Call 108")
	ev.Kind = model.KindInteractive
	ev.ButtonID = "call_emergency"

	res := h.p.Handle(context.Background(), ev)
	assert.Equal(t, StatusSuccess, res.Status)

	sent := h.sender.messages()
	require.Len(t, sent, 1)
	assert.Contains(t, sent[0].Text, "call 108")
}

func TestHandle_UnknownButtonFallsBackToText(t *testing.T) {
	t.Parallel()

	h := newHarness(t, repo.NewMemoryStore(), &fakeSender{})
	ev := inbound("wamid.6b", "I have a cough")
	ev.Kind = model.KindInteractive
	ev.ButtonID = "something_else"

	res := h.p.Handle(context.Background(), ev)
	assert.Equal(t, intent.SymptomInquiry, res.Intent)
}

func TestHandle_HindiReplyAndLanguagePreference(t *testing.T) {
	t.Parallel()

	h := newHarness(t, repo.NewMemoryStore(), &fakeSender{})

	res := h.p.Handle(context.Background(), inbound("wamid.7", "मुझे बुखार है"))
	assert.Equal(t, "hi", res.Language)

	users, err := h.store.ListActiveUsers(context.Background())
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.Equal(t, "hi", users[0].Language)
}

func TestHandle_TransientSendRetried(t *testing.T) {
	t.Parallel()

	sender := &fakeSender{failFor: 2, err: &client.DeliveryError{Status: 503}}
	h := newHarness(t, repo.NewMemoryStore(), sender)

	res := h.p.Handle(context.Background(), inbound("wamid.8", "hello there"))
	assert.Equal(t, StatusSuccess, res.Status)
	assert.Len(t, sender.messages(), 1)
}

func TestHandle_PermanentSendFailureReported(t *testing.T) {
	t.Parallel()

	sender := &fakeSender{failFor: 100, err: &client.DeliveryError{Permanent: true, Status: 400, Detail: "invalid recipient"}}
	h := newHarness(t, repo.NewMemoryStore(), sender)

	res := h.p.Handle(context.Background(), inbound("wamid.9", "hello there"))
	assert.Equal(t, StatusError, res.Status)
	assert.True(t, client.IsPermanent(res.Err))
	assert.Equal(t, 1, sender.calls)

	select {
	case f := <-h.p.Errors():
		assert.Equal(t, StageDispatch, f.Stage)
		assert.Equal(t, "wamid.9", f.ExternalID)
	default:
		t.Fatal("expected a dispatch failure on the error channel")
	}

	// The inbound record survives the failed reply.
	msgs := h.conversationMessages(t)
	require.Len(t, msgs, 1)
	assert.Equal(t, model.FromUser, msgs[0].Direction)
}

type flakyStore struct {
	*repo.MemoryStore
	failures atomic.Int32
}

func (s *flakyStore) AppendMessage(ctx context.Context, conversationID string, m model.Message) (*model.Message, bool, error) {
	if m.Direction == model.FromUser && s.failures.Add(-1) >= 0 {
		return nil, false, errors.New("connection reset")
	}
	return s.MemoryStore.AppendMessage(ctx, conversationID, m)
}

func TestHandle_PersistRetryLeavesTrace(t *testing.T) {
	t.Parallel()

	store := &flakyStore{MemoryStore: repo.NewMemoryStore()}
	store.failures.Store(1)
	h := newHarness(t, store, &fakeSender{})
	h.store = store.MemoryStore

	res := h.p.Handle(context.Background(), inbound("wamid.10", "hello there"))
	assert.Equal(t, StatusSuccess, res.Status)

	msgs := h.conversationMessages(t)
	require.NotEmpty(t, msgs)
	assert.Equal(t, 1, msgs[0].RetryCount)
	require.NotNil(t, msgs[0].Error)
	assert.Contains(t, *msgs[0].Error, "connection reset")
}

func TestHandle_PersistExhaustedStillReplies(t *testing.T) {
	t.Parallel()

	store := &flakyStore{MemoryStore: repo.NewMemoryStore()}
	store.failures.Store(100)
	h := newHarness(t, store, &fakeSender{})

	res := h.p.Handle(context.Background(), inbound("wamid.11", "hello there"))
	assert.Equal(t, StatusSuccess, res.Status)
	assert.Len(t, h.sender.messages(), 1)

	dead, err := h.cache.RecentFailures(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, dead, 1)
	assert.Equal(t, "wamid.11", dead[0].ExternalID)
	assert.Equal(t, 3, dead[0].Attempts)

	select {
	case f := <-h.p.Errors():
		assert.Equal(t, StagePersist, f.Stage)
	default:
		t.Fatal("expected a persist failure on the error channel")
	}
}

type panickingClassifier struct{}

func (panickingClassifier) Classify(context.Context, string, string) (intent.Classification, error) {
	panic("model exploded")
}

func TestHandle_PanicBecomesErrorWithApology(t *testing.T) {
	t.Parallel()

	sender := &fakeSender{}
	p := New(repo.NewMemoryStore(), sender, panickingClassifier{}, nil, Config{}, slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil)))

	res := p.Handle(context.Background(), inbound("wamid.12", "hello"))
	assert.Equal(t, StatusError, res.Status)
	assert.ErrorContains(t, res.Err, "model exploded")

	sent := sender.messages()
	require.Len(t, sent, 1)
	assert.Contains(t, sent[0].Text, "apologize")

	f := <-p.Errors()
	assert.Equal(t, StagePanic, f.Stage)
}

type erroringClassifier struct{}

func (erroringClassifier) Classify(context.Context, string, string) (intent.Classification, error) {
	return intent.Classification{}, errors.New("backend down")
}

func TestHandle_ClassifierErrorDegradesToGeneral(t *testing.T) {
	t.Parallel()

	sender := &fakeSender{}
	p := New(repo.NewMemoryStore(), sender, erroringClassifier{}, nil, Config{}, slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil)))

	res := p.Handle(context.Background(), inbound("wamid.13", "I have a fever"))
	assert.Equal(t, StatusSuccess, res.Status)
	assert.Equal(t, intent.GeneralHealth, res.Intent)
	assert.Equal(t, 0.70, res.Confidence)
	assert.Len(t, sender.messages(), 1)
}

func TestHandle_ConcurrentEventsKeepOneActiveConversation(t *testing.T) {
	t.Parallel()

	h := newHarness(t, repo.NewMemoryStore(), &fakeSender{})

	var wg sync.WaitGroup
	for i := range 30 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			h.p.Handle(context.Background(), inbound(fmt.Sprintf("wamid.c%d", i), "hello"))
		}()
	}
	wg.Wait()

	u, err := h.store.CreateUserIfAbsent(context.Background(), "+919876543210", "")
	require.NoError(t, err)
	convs := h.store.Conversations(u.ID)
	require.Len(t, convs, 1)
	assert.True(t, convs[0].Active)

	msgs, err := h.store.ListMessages(context.Background(), convs[0].ID)
	require.NoError(t, err)
	assert.Len(t, msgs, 60)
	assert.Equal(t, 0, h.p.locks.size())
}

func TestNormalize(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "a b c", normalize("  a \n\n b\t\tc  ", 100))
	assert.Equal(t, "abc", normalize("abcdef", 3))
	assert.Equal(t, "\u00e9", normalize("e\u0301", 10))
	assert.Equal(t, "बुखा", normalize("बुखार", 4))
}
