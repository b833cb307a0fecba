package cache

import (
	"context"
	"time"
)

// DeliveryCache remembers provider ids of delivered broadcast messages.
type DeliveryCache interface {
	StoreDelivery(ctx context.Context, d Delivery) error
}

// Deduper claims inbound external ids. Claim reports true the first time an
// id is seen within the retention window and false for every repeat.
type Deduper interface {
	Claim(ctx context.Context, externalID string) (bool, error)
}

// FailureLog is the dead-letter sink for messages whose persistence
// exhausted its retries.
type FailureLog interface {
	RecordFailure(ctx context.Context, f DeadLetter) error
	RecentFailures(ctx context.Context, n int) ([]DeadLetter, error)
}

type Delivery struct {
	JobID      string    `json:"jobId"`
	Recipient  string    `json:"recipient"`
	ProviderID string    `json:"providerId"`
	SentAt     time.Time `json:"sentAt"`
}

type DeadLetter struct {
	ExternalID string    `json:"externalId"`
	Recipient  string    `json:"recipient"`
	Stage      string    `json:"stage"`
	Error      string    `json:"error"`
	Attempts   int       `json:"attempts"`
	At         time.Time `json:"at"`
}
