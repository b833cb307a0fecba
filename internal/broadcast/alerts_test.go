package broadcast

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LeventeLantos/health-assistant/internal/model"
)

func TestBanner(t *testing.T) {
	t.Parallel()

	tests := []struct {
		kind     model.AlertKind
		priority model.Priority
		want     string
	}{
		{model.AlertEmergency, model.PriorityCritical, "🚨 🚨 EMERGENCY ALERT 🚨"},
		{model.AlertOutbreak, model.PriorityHigh, "🔴 🦠 OUTBREAK ALERT 🔴"},
		{model.AlertAdvisory, model.PriorityNormal, "🟡 ℹ️  HEALTH ADVISORY 🟡"},
		{model.AlertInfo, model.PriorityLow, "🟢 📢 INFORMATION 🟢"},
		{model.AlertWarning, model.PriorityNormal, "🟡 ⚠️  WARNING 🟡"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Banner(tt.kind, tt.priority))
	}
}

func TestOutbreakAlert(t *testing.T) {
	t.Parallel()

	spec, err := OutbreakAlert(OutbreakInput{
		Disease:     "Dengue",
		Region:      "Kerala",
		Symptoms:    []string{"High fever", "Joint pain"},
		Precautions: []string{"Use mosquito nets"},
		Severity:    "critical",
	})
	require.NoError(t, err)

	assert.Equal(t, model.AlertOutbreak, spec.Kind)
	assert.Equal(t, model.PriorityHigh, spec.Priority)
	assert.Equal(t, model.FilterRegions, spec.Filter.Kind)
	assert.Equal(t, []string{"Kerala"}, spec.Filter.Regions)
	assert.True(t, strings.HasPrefix(spec.Body, "🔴 DISEASE OUTBREAK ALERT 🔴"))
	assert.Contains(t, spec.Body, "DENGUE Outbreak Reported in Kerala")
	assert.Contains(t, spec.Body, "• High fever\n• Joint pain")
	assert.Contains(t, spec.Body, "Government Helpline: 1075")
}

func TestOutbreakAlert_DefaultSeverityIsNormalPriority(t *testing.T) {
	t.Parallel()

	spec, err := OutbreakAlert(OutbreakInput{
		Disease:     "Cholera",
		Region:      "Bihar",
		Symptoms:    []string{"Diarrhea"},
		Precautions: []string{"Boil water"},
	})
	require.NoError(t, err)
	assert.Equal(t, model.PriorityNormal, spec.Priority)
	assert.True(t, strings.HasPrefix(spec.Body, "🟡 DISEASE OUTBREAK ALERT 🟡"))
}

func TestOutbreakAlert_Validation(t *testing.T) {
	t.Parallel()

	_, err := OutbreakAlert(OutbreakInput{Disease: "Flu", Region: "Goa", Symptoms: []string{"cough"}})
	assert.ErrorContains(t, err, "Precautions failed required")

	_, err = OutbreakAlert(OutbreakInput{
		Disease: "Flu", Region: "Goa",
		Symptoms: []string{"cough"}, Precautions: []string{"rest"},
		Severity: "apocalyptic",
	})
	assert.ErrorContains(t, err, "Severity failed oneof")
}

func TestEmergencyAlert(t *testing.T) {
	t.Parallel()

	spec, err := EmergencyAlert(EmergencyInput{
		EmergencyType:      "flood",
		Region:             "Assam",
		AffectedAreas:      []string{"Guwahati"},
		SafetyInstructions: []string{"Move to higher ground"},
		Contacts:           []Contact{{Name: "Disaster cell", Value: "1070"}},
	})
	require.NoError(t, err)

	assert.Equal(t, model.AlertEmergency, spec.Kind)
	assert.Equal(t, model.PriorityHigh, spec.Priority)
	assert.Equal(t, []string{"Assam"}, spec.Filter.Regions)
	assert.Contains(t, spec.Body, "FLOOD in Assam")
	assert.Contains(t, spec.Body, "• Disaster cell: 1070")
}

func TestHealthAdvisory(t *testing.T) {
	t.Parallel()

	recs := make([]string, 12)
	for i := range recs {
		recs[i] = "drink water"
	}
	recs[0] = strings.Repeat("a", 200)

	spec, err := HealthAdvisory(AdvisoryInput{Topic: "Heat", Recommendations: recs, Audience: "ELDERLY"})
	require.NoError(t, err)

	assert.Equal(t, model.FilterAll, spec.Filter.Kind)
	assert.Equal(t, model.PriorityNormal, spec.Priority)
	assert.Contains(t, spec.Body, "Target Audience: Elderly")
	assert.Equal(t, maxListItems, strings.Count(spec.Body, "• "))
	assert.Contains(t, spec.Body, "• "+strings.Repeat("a", maxItemChars)+"\n")
}
