package broadcast

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/LeventeLantos/health-assistant/internal/model"
	"github.com/LeventeLantos/health-assistant/internal/recipient"
)

const (
	maxListItems = 10
	maxItemChars = 150
)

type OutbreakInput struct {
	Disease     string   `json:"disease" validate:"required,max=100"`
	Region      string   `json:"region" validate:"required,max=100"`
	Symptoms    []string `json:"symptoms" validate:"required,min=1,dive,required"`
	Precautions []string `json:"precautions" validate:"required,min=1,dive,required"`
	Severity    string   `json:"severity" validate:"omitempty,oneof=low moderate high critical"`
}

type Contact struct {
	Name  string `json:"name" validate:"required,max=50"`
	Value string `json:"value" validate:"required,max=100"`
}

type EmergencyInput struct {
	EmergencyType      string    `json:"emergencyType" validate:"required,max=100"`
	Region             string    `json:"region" validate:"required,max=100"`
	AffectedAreas      []string  `json:"affectedAreas" validate:"required,min=1,dive,required"`
	SafetyInstructions []string  `json:"safetyInstructions" validate:"required,min=1,dive,required"`
	Contacts           []Contact `json:"contacts" validate:"required,min=1,dive"`
}

type AdvisoryInput struct {
	Topic           string   `json:"topic" validate:"required,max=200"`
	Recommendations []string `json:"recommendations" validate:"required,min=1,dive,required"`
	Audience        string   `json:"audience" validate:"max=50"`
}

var severityIndicators = map[string]string{
	"low":      "🟢",
	"moderate": "🟡",
	"high":     "🟠",
	"critical": "🔴",
}

// OutbreakAlert builds a region-targeted outbreak notice. High and critical
// severities are sent with high priority.
func OutbreakAlert(in OutbreakInput) (JobSpec, error) {
	if err := model.Validate(in); err != nil {
		return JobSpec{}, err
	}
	severity := in.Severity
	if severity == "" {
		severity = "moderate"
	}
	ind := severityIndicators[severity]

	var b strings.Builder
	fmt.Fprintf(&b, "%s DISEASE OUTBREAK ALERT %s\n\n", ind, ind)
	fmt.Fprintf(&b, "⚠️  %s Outbreak Reported in %s\n\n", strings.ToUpper(in.Disease), in.Region)
	b.WriteString("📋 SYMPTOMS TO WATCH FOR:\n" + bullets(in.Symptoms) + "\n\n")
	b.WriteString("🛡️  PREVENTIVE MEASURES:\n" + bullets(in.Precautions) + "\n\n")
	b.WriteString("🏠 STAY HOME RECOMMENDATION:\n" + bullets([]string{
		"Avoid crowded places",
		"Practice social distancing",
		"Wash hands frequently",
		"Wear mask in public",
		"Monitor your health",
	}) + "\n\n")
	b.WriteString("📞 EMERGENCY CONTACTS:\n" + bullets([]string{
		"Local Health Authority: Contact your local health department",
		"Hospital Hotline: Call nearest hospital",
		"Government Helpline: 1075",
	}) + "\n\n")
	b.WriteString("💡 This is an official health advisory. Please follow preventive measures and seek medical attention if symptoms develop.")

	priority := model.PriorityNormal
	if severity == "high" || severity == "critical" {
		priority = model.PriorityHigh
	}

	return JobSpec{
		Kind:     model.AlertOutbreak,
		Priority: priority,
		Body:     b.String(),
		Filter:   recipient.ByRegions(in.Region),
	}, nil
}

func EmergencyAlert(in EmergencyInput) (JobSpec, error) {
	if err := model.Validate(in); err != nil {
		return JobSpec{}, err
	}

	contacts := make([]string, 0, len(in.Contacts))
	for _, c := range in.Contacts {
		contacts = append(contacts, c.Name+": "+c.Value)
	}

	var b strings.Builder
	b.WriteString("🚨 EMERGENCY ALERT 🚨\n\n")
	fmt.Fprintf(&b, "⚠️  %s in %s\n\n", strings.ToUpper(in.EmergencyType), in.Region)
	b.WriteString("📍 AFFECTED AREAS:\n" + bullets(in.AffectedAreas) + "\n\n")
	b.WriteString("🏠 SAFETY INSTRUCTIONS:\n" + bullets(in.SafetyInstructions) + "\n\n")
	b.WriteString("📞 EMERGENCY CONTACTS:\n" + bullets(contacts) + "\n\n")
	b.WriteString("⚠️  IMMEDIATE ACTIONS REQUIRED:\n" + bullets([]string{
		"Stay indoors if possible",
		"Follow official instructions",
		"Keep emergency kit ready",
		"Monitor official updates",
		"Help neighbors if safe to do so",
	}) + "\n\n")
	b.WriteString("💡 This is an official emergency advisory. Your safety is the top priority.")

	return JobSpec{
		Kind:     model.AlertEmergency,
		Priority: model.PriorityHigh,
		Body:     b.String(),
		Filter:   recipient.ByRegions(in.Region),
	}, nil
}

// HealthAdvisory builds a normal-priority advisory for every active user.
func HealthAdvisory(in AdvisoryInput) (JobSpec, error) {
	if err := model.Validate(in); err != nil {
		return JobSpec{}, err
	}
	audience := in.Audience
	if audience == "" {
		audience = "general"
	}

	var b strings.Builder
	b.WriteString("ℹ️  HEALTH ADVISORY\n\n")
	fmt.Fprintf(&b, "📋 Topic: %s\n\n", in.Topic)
	b.WriteString("✅ RECOMMENDATIONS:\n" + bullets(in.Recommendations) + "\n\n")
	fmt.Fprintf(&b, "👥 Target Audience: %s\n\n", capitalize(audience))
	b.WriteString("💡 Follow these recommendations for better health outcomes.\n")
	b.WriteString("Always consult healthcare providers for personalized advice.")

	return JobSpec{
		Kind:     model.AlertAdvisory,
		Priority: model.PriorityNormal,
		Body:     b.String(),
		Filter:   recipient.AllActive(),
	}, nil
}

func bullets(items []string) string {
	if len(items) > maxListItems {
		items = items[:maxListItems]
	}
	lines := make([]string, 0, len(items))
	for _, it := range items {
		it = strings.TrimSpace(it)
		if utf8.RuneCountInString(it) > maxItemChars {
			it = string([]rune(it)[:maxItemChars])
		}
		lines = append(lines, "• "+it)
	}
	return strings.Join(lines, "\n")
}

func capitalize(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return s
	}
	return strings.ToUpper(string(r)) + strings.ToLower(s[size:])
}
