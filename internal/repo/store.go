package repo

import (
	"context"
	"errors"
	"time"

	"github.com/LeventeLantos/health-assistant/internal/model"
)

var (
	ErrNotFound         = errors.New("not found")
	ErrAlreadyFinalized = errors.New("broadcast job already finalized")
)

// ConversationStore persists users, conversations and messages. Messages are
// unique by external id; appending an id that already exists is a no-op.
type ConversationStore interface {
	CreateUserIfAbsent(ctx context.Context, recipient, displayName string) (*model.User, error)
	// ActiveConversation returns the user's active conversation, opening one
	// if none is active.
	ActiveConversation(ctx context.Context, userID int64) (*model.Conversation, error)
	// AppendMessage stores m under conversationID. created is false when a
	// message with the same external id already existed; the existing record
	// is returned unchanged in that case.
	AppendMessage(ctx context.Context, conversationID string, m model.Message) (stored *model.Message, created bool, err error)
	BackfillAnnotations(ctx context.Context, externalID string, a model.Annotations) error
	MessageExists(ctx context.Context, externalID string) (bool, error)
	ListMessages(ctx context.Context, conversationID string) ([]model.Message, error)
	SetUserLanguage(ctx context.Context, userID int64, language string) error
	// CloseIdleConversations ends every active conversation whose user has
	// not interacted since idleSince and returns how many were closed.
	CloseIdleConversations(ctx context.Context, idleSince time.Time) (int, error)
}

// UserDirectory answers the recipient queries used by broadcasts and the
// administrative seeding of users.
type UserDirectory interface {
	ListActiveUsers(ctx context.Context) ([]model.User, error)
	ListActiveUsersByRegion(ctx context.Context, region string) ([]model.User, error)
	UpsertUser(ctx context.Context, u model.User) (*model.User, error)
	DeactivateUser(ctx context.Context, recipient string) error
}

type BroadcastRepository interface {
	SaveJob(ctx context.Context, job *model.BroadcastJob) error
	// FinalizeJob writes final counts and the completion time. A job that is
	// already finalized is never changed again.
	FinalizeJob(ctx context.Context, job *model.BroadcastJob) error
	JobByID(ctx context.Context, id string) (*model.BroadcastJob, error)
	ListJobs(ctx context.Context, limit int) ([]model.BroadcastJob, error)
}

// Store is everything the service needs from persistence.
type Store interface {
	ConversationStore
	UserDirectory
	BroadcastRepository
}
