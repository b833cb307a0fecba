package repo

import (
	"context"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/LeventeLantos/health-assistant/internal/model"
)

// MemoryStore is a process-local Store used in development and tests. A
// single mutex serializes every write, which trivially keeps per-user
// ordering and the one-active-conversation rule.
type MemoryStore struct {
	mu  sync.Mutex
	now func() time.Time

	nextUserID int64
	nextMsgID  int64

	users       map[int64]*model.User
	byRecipient map[string]int64

	conversations map[string]*model.Conversation
	activeByUser  map[int64]string

	messages   map[int64]*model.Message
	byExternal map[string]int64
	byConv     map[string][]int64

	jobs map[string]*model.BroadcastJob
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		now:           func() time.Time { return time.Now().UTC() },
		users:         map[int64]*model.User{},
		byRecipient:   map[string]int64{},
		conversations: map[string]*model.Conversation{},
		activeByUser:  map[int64]string{},
		messages:      map[int64]*model.Message{},
		byExternal:    map[string]int64{},
		byConv:        map[string][]int64{},
		jobs:          map[string]*model.BroadcastJob{},
	}
}

// WithClock overrides the time source. Intended for tests.
func (s *MemoryStore) WithClock(now func() time.Time) *MemoryStore {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
	return s
}

func (s *MemoryStore) CreateUserIfAbsent(ctx context.Context, recipient, displayName string) (*model.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if id, ok := s.byRecipient[recipient]; ok {
		u := *s.users[id]
		return &u, nil
	}

	s.nextUserID++
	now := s.now()
	u := &model.User{
		ID:              s.nextUserID,
		Recipient:       recipient,
		DisplayName:     displayName,
		Language:        model.DefaultLanguage,
		Active:          true,
		LastInteraction: now,
		CreatedAt:       now,
	}
	s.users[u.ID] = u
	s.byRecipient[recipient] = u.ID

	out := *u
	return &out, nil
}

func (s *MemoryStore) ActiveConversation(ctx context.Context, userID int64) (*model.Conversation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[userID]; !ok {
		return nil, ErrNotFound
	}

	if id, ok := s.activeByUser[userID]; ok {
		c := *s.conversations[id]
		return &c, nil
	}

	c := &model.Conversation{
		ID:        uuid.NewString(),
		UserID:    userID,
		StartedAt: s.now(),
		Active:    true,
	}
	s.conversations[c.ID] = c
	s.activeByUser[userID] = c.ID

	out := *c
	return &out, nil
}

func (s *MemoryStore) AppendMessage(ctx context.Context, conversationID string, m model.Message) (*model.Message, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if id, ok := s.byExternal[m.ExternalID]; ok && m.ExternalID != "" {
		existing := *s.messages[id]
		return &existing, false, nil
	}

	conv, ok := s.conversations[conversationID]
	if !ok {
		return nil, false, ErrNotFound
	}

	s.nextMsgID++
	now := s.now()
	m.ID = s.nextMsgID
	m.ConversationID = conversationID
	if m.CreatedAt.IsZero() {
		m.CreatedAt = now
	}

	stored := m
	s.messages[m.ID] = &stored
	if m.ExternalID != "" {
		s.byExternal[m.ExternalID] = m.ID
	}
	s.byConv[conversationID] = append(s.byConv[conversationID], m.ID)

	if m.Direction == model.FromUser {
		if u, ok := s.users[conv.UserID]; ok {
			u.LastInteraction = now
		}
	}

	out := stored
	return &out, true, nil
}

func (s *MemoryStore) BackfillAnnotations(ctx context.Context, externalID string, a model.Annotations) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.byExternal[externalID]
	if !ok {
		return ErrNotFound
	}
	s.messages[id].Annotations = a
	return nil
}

func (s *MemoryStore) MessageExists(ctx context.Context, externalID string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	_, ok := s.byExternal[externalID]
	return ok, nil
}

func (s *MemoryStore) ListMessages(ctx context.Context, conversationID string) ([]model.Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := s.byConv[conversationID]
	out := make([]model.Message, 0, len(ids))
	for _, id := range ids {
		out = append(out, *s.messages[id])
	}
	return out, nil
}

func (s *MemoryStore) SetUserLanguage(ctx context.Context, userID int64, language string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[userID]
	if !ok {
		return ErrNotFound
	}
	u.Language = language
	return nil
}

func (s *MemoryStore) CloseIdleConversations(ctx context.Context, idleSince time.Time) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	closed := 0
	for userID, convID := range s.activeByUser {
		u := s.users[userID]
		if u == nil || !u.LastInteraction.Before(idleSince) {
			continue
		}
		c := s.conversations[convID]
		c.Active = false
		ended := now
		c.EndedAt = &ended
		delete(s.activeByUser, userID)
		closed++
	}
	return closed, nil
}

// Conversations returns every conversation of a user, oldest first.
func (s *MemoryStore) Conversations(userID int64) []model.Conversation {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []model.Conversation
	for _, c := range s.conversations {
		if c.UserID == userID {
			out = append(out, *c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.Before(out[j].StartedAt) })
	return out
}

func (s *MemoryStore) ListActiveUsers(ctx context.Context) ([]model.User, error) {
	return s.listUsers(ctx, func(u *model.User) bool { return true })
}

func (s *MemoryStore) ListActiveUsersByRegion(ctx context.Context, region string) ([]model.User, error) {
	return s.listUsers(ctx, func(u *model.User) bool { return u.Region == region })
}

func (s *MemoryStore) listUsers(ctx context.Context, keep func(*model.User) bool) ([]model.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	out := []model.User{}
	for _, u := range s.users {
		if u.Active && keep(u) {
			out = append(out, *u)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemoryStore) UpsertUser(ctx context.Context, u model.User) (*model.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if u.Language == "" {
		u.Language = model.DefaultLanguage
	}

	if id, ok := s.byRecipient[u.Recipient]; ok {
		existing := s.users[id]
		existing.DisplayName = u.DisplayName
		existing.Language = u.Language
		existing.Region = u.Region
		existing.Active = u.Active
		out := *existing
		return &out, nil
	}

	s.nextUserID++
	now := s.now()
	u.ID = s.nextUserID
	u.CreatedAt = now
	if u.LastInteraction.IsZero() {
		u.LastInteraction = now
	}
	stored := u
	s.users[u.ID] = &stored
	s.byRecipient[u.Recipient] = u.ID
	return &u, nil
}

func (s *MemoryStore) DeactivateUser(ctx context.Context, recipient string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.byRecipient[recipient]
	if !ok {
		return ErrNotFound
	}
	s.users[id].Active = false
	return nil
}

func (s *MemoryStore) SaveJob(ctx context.Context, job *model.BroadcastJob) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.jobs[job.ID] = cloneJob(job)
	return nil
}

func (s *MemoryStore) FinalizeJob(ctx context.Context, job *model.BroadcastJob) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.jobs[job.ID]
	if !ok {
		return ErrNotFound
	}
	if existing.CompletedAt != nil {
		return ErrAlreadyFinalized
	}
	s.jobs[job.ID] = cloneJob(job)
	return nil
}

func (s *MemoryStore) JobByID(ctx context.Context, id string) (*model.BroadcastJob, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	j, ok := s.jobs[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneJob(j), nil
}

func (s *MemoryStore) ListJobs(ctx context.Context, limit int) ([]model.BroadcastJob, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 50
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]model.BroadcastJob, 0, len(s.jobs))
	for _, j := range s.jobs {
		out = append(out, *cloneJob(j))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func cloneJob(j *model.BroadcastJob) *model.BroadcastJob {
	c := *j
	c.FailedRecipients = slices.Clone(j.FailedRecipients)
	c.Filter.Regions = slices.Clone(j.Filter.Regions)
	c.Filter.Recipients = slices.Clone(j.Filter.Recipients)
	if j.CompletedAt != nil {
		t := *j.CompletedAt
		c.CompletedAt = &t
	}
	return &c
}
