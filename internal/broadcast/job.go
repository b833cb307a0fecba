package broadcast

import (
	"errors"

	"github.com/LeventeLantos/health-assistant/internal/model"
)

var (
	ErrJobNotFound    = errors.New("broadcast job not found")
	ErrJobFinished    = errors.New("broadcast job already finished")
	ErrJobRunning     = errors.New("broadcast job is still running")
	ErrNothingToRetry = errors.New("broadcast job has no failed recipients")
)

// JobSpec is an operator's request to broadcast one alert.
type JobSpec struct {
	Kind     model.AlertKind    `json:"kind" validate:"required,oneof=emergency outbreak advisory info warning"`
	Priority model.Priority     `json:"priority" validate:"required,oneof=low normal high critical"`
	Body     string             `json:"body" validate:"required,max=3500"`
	Filter   model.TargetFilter `json:"filter"`
}

// Result is the aggregated outcome of one job run.
type Result struct {
	JobID            string                  `json:"jobId"`
	Status           model.JobStatus         `json:"status"`
	Targeted         int                     `json:"targeted"`
	Succeeded        int                     `json:"succeeded"`
	Failed           int                     `json:"failed"`
	FailedRecipients []model.FailedRecipient `json:"failedRecipients"`
	Batches          []int                   `json:"batches"`
}

var kindPrefixes = map[model.AlertKind]string{
	model.AlertOutbreak:  "🦠 OUTBREAK ALERT",
	model.AlertEmergency: "🚨 EMERGENCY ALERT",
	model.AlertAdvisory:  "ℹ️  HEALTH ADVISORY",
	model.AlertInfo:      "📢 INFORMATION",
	model.AlertWarning:   "⚠️  WARNING",
}

var priorityIndicators = map[model.Priority]string{
	model.PriorityCritical: "🚨",
	model.PriorityHigh:     "🔴",
	model.PriorityNormal:   "🟡",
	model.PriorityLow:      "🟢",
}

// Banner returns the heading placed above every broadcast body.
func Banner(kind model.AlertKind, priority model.Priority) string {
	prefix, ok := kindPrefixes[kind]
	if !ok {
		prefix = "📢"
	}
	ind, ok := priorityIndicators[priority]
	if !ok {
		ind = priorityIndicators[model.PriorityNormal]
	}
	return ind + " " + prefix + " " + ind
}

// Render places the banner above body.
func Render(kind model.AlertKind, priority model.Priority, body string) string {
	return Banner(kind, priority) + "\n\n" + body
}

func partition(ids []string, size int) [][]string {
	var out [][]string
	for start := 0; start < len(ids); start += size {
		end := min(start+size, len(ids))
		out = append(out, ids[start:end])
	}
	return out
}
