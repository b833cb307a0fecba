package model

import "time"

const DefaultLanguage = "en"

type User struct {
	ID              int64     `json:"id"`
	Recipient       string    `json:"recipient"`
	DisplayName     string    `json:"displayName"`
	Language        string    `json:"language"`
	Region          string    `json:"region"`
	Active          bool      `json:"active"`
	LastInteraction time.Time `json:"lastInteraction"`
	CreatedAt       time.Time `json:"createdAt"`
}

// Conversation groups the messages of one user. A user has at most one
// active conversation at a time.
type Conversation struct {
	ID        string     `json:"id"`
	UserID    int64      `json:"userId"`
	StartedAt time.Time  `json:"startedAt"`
	EndedAt   *time.Time `json:"endedAt,omitempty"`
	Active    bool       `json:"active"`
}
