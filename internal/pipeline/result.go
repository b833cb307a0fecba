package pipeline

import (
	"time"

	"github.com/LeventeLantos/health-assistant/internal/intent"
)

type Status string

const (
	StatusSuccess     Status = "success"
	StatusNoMessage   Status = "no_message"
	StatusError       Status = "error"
	StatusDuplicate   Status = "duplicate"
	StatusUnsupported Status = "unsupported"
)

// Result is the terminal outcome of one inbound event.
type Result struct {
	Status     Status       `json:"status"`
	ExternalID string       `json:"externalId"`
	Language   string       `json:"language,omitempty"`
	Intent     intent.Label `json:"intent,omitempty"`
	Confidence float64      `json:"confidence,omitempty"`
	Symptoms   []string     `json:"symptoms,omitempty"`
	Diseases   []string     `json:"diseases,omitempty"`
	ProviderID string       `json:"providerId,omitempty"`
	Err        error        `json:"-"`
}

type Stage string

const (
	StageDispatch Stage = "dispatch"
	StagePersist  Stage = "persist"
	StagePanic    Stage = "panic"
)

// Failure is published on the operator error channel.
type Failure struct {
	ExternalID string
	Recipient  string
	Stage      Stage
	Err        error
	At         time.Time
}
