package model

import "time"

type AlertKind string

const (
	AlertEmergency AlertKind = "emergency"
	AlertOutbreak  AlertKind = "outbreak"
	AlertAdvisory  AlertKind = "advisory"
	AlertInfo      AlertKind = "info"
	AlertWarning   AlertKind = "warning"
)

type Priority string

const (
	PriorityLow      Priority = "low"
	PriorityNormal   Priority = "normal"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

type JobStatus string

const (
	JobRunning   JobStatus = "running"
	JobCompleted JobStatus = "completed"
	JobCancelled JobStatus = "cancelled"
	JobNoTargets JobStatus = "no_targets"
)

type FilterKind string

const (
	FilterAll      FilterKind = "all"
	FilterRegions  FilterKind = "regions"
	FilterExplicit FilterKind = "explicit"
)

// TargetFilter is the persisted form of a broadcast's recipient filter.
type TargetFilter struct {
	Kind       FilterKind `json:"kind" validate:"required,oneof=all regions explicit"`
	Regions    []string   `json:"regions,omitempty"`
	Recipients []string   `json:"recipients,omitempty"`
}

type FailedRecipient struct {
	Recipient string `json:"recipient"`
	Reason    string `json:"reason"`
}

type BroadcastJob struct {
	ID               string            `json:"id"`
	Kind             AlertKind         `json:"kind"`
	Priority         Priority          `json:"priority"`
	Body             string            `json:"body"`
	Filter           TargetFilter      `json:"filter"`
	Status           JobStatus         `json:"status"`
	Targeted         int               `json:"targeted"`
	Succeeded        int               `json:"succeeded"`
	Failed           int               `json:"failed"`
	FailedRecipients []FailedRecipient `json:"failedRecipients"`
	CreatedAt        time.Time         `json:"createdAt"`
	CompletedAt      *time.Time        `json:"completedAt,omitempty"`
}

// FailedIDs returns the recipient ids of every failed delivery, in order.
func (j *BroadcastJob) FailedIDs() []string {
	out := make([]string, 0, len(j.FailedRecipients))
	for _, f := range j.FailedRecipients {
		out = append(out, f.Recipient)
	}
	return out
}
