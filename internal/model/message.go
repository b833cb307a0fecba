package model

import "time"

type Direction string

const (
	FromUser Direction = "user"
	FromBot  Direction = "bot"
)

type Kind string

const (
	KindText        Kind = "text"
	KindInteractive Kind = "interactive"
	KindImage       Kind = "image"
	KindAudio       Kind = "audio"
	KindOther       Kind = "other"
)

// InboundMessage is one provider event as handed over by the transport.
// It is never mutated after the transport builds it.
type InboundMessage struct {
	ExternalID string    `json:"externalId" validate:"required,max=128"`
	From       string    `json:"from" validate:"required,phone"`
	Name       string    `json:"name" validate:"max=100"`
	Text       string    `json:"text"`
	Kind       Kind      `json:"kind" validate:"required,oneof=text interactive image audio other"`
	ButtonID   string    `json:"buttonId,omitempty"`
	ReceivedAt time.Time `json:"receivedAt"`
}

// Annotations are the classification results attached to a stored message.
type Annotations struct {
	Language   string  `json:"language,omitempty"`
	Intent     string  `json:"intent,omitempty"`
	Confidence float64 `json:"confidence,omitempty"`
	Model      string  `json:"model,omitempty"`
	LatencyMS  int64   `json:"latencyMs,omitempty"`
}

func (a Annotations) IsZero() bool {
	return a == Annotations{}
}

type Message struct {
	ID             int64       `json:"id"`
	ExternalID     string      `json:"externalId"`
	ConversationID string      `json:"conversationId"`
	Direction      Direction   `json:"direction"`
	Kind           Kind        `json:"kind"`
	Body           string      `json:"body"`
	Annotations    Annotations `json:"annotations"`
	RetryCount     int         `json:"retryCount"`
	Error          *string     `json:"error,omitempty"`
	CreatedAt      time.Time   `json:"createdAt"`
}

// QuickReply is one tappable option offered alongside a reply.
type QuickReply struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}
