package reply

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LeventeLantos/health-assistant/internal/intent"
	"github.com/LeventeLantos/health-assistant/internal/model"
)

func TestEveryIntentHasEnglish(t *testing.T) {
	t.Parallel()

	for _, label := range []intent.Label{intent.Emergency, intent.SymptomInquiry, intent.DiseaseInquiry, intent.GeneralHealth} {
		_, ok := templates[label]["en"]
		assert.True(t, ok, "missing en template for %s", label)
	}
}

func TestCompose_InterpolatesEntities(t *testing.T) {
	t.Parallel()

	c := NewComposer(nil)
	out := c.Compose(intent.SymptomInquiry, "en", Entities{Symptoms: []string{"headache", "fever"}})
	assert.Contains(t, out, "headache, fever")
	assert.NotContains(t, out, "{symptoms}")

	out = c.Compose(intent.DiseaseInquiry, "hi", Entities{Diseases: []string{"diabetes"}})
	assert.Contains(t, out, "diabetes")
	assert.Contains(t, out, "आपने")
}

func TestCompose_EmptyEntitiesUseDefaults(t *testing.T) {
	t.Parallel()

	out := NewComposer(nil).Compose(intent.Emergency, "en", Entities{})
	assert.Contains(t, out, "severe symptoms")
}

func TestCompose_FallsBackToEnglishAndLogs(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	c := NewComposer(logger)

	out := c.Compose(intent.DiseaseInquiry, "ur", Entities{Diseases: []string{"malaria"}})
	require.Equal(t, c.Compose(intent.DiseaseInquiry, "en", Entities{Diseases: []string{"malaria"}}), out)

	logged := buf.String()
	assert.Contains(t, logged, "falling back to en")
	assert.Contains(t, logged, "language=ur")
}

func TestCompose_UnknownIntent(t *testing.T) {
	t.Parallel()

	out := NewComposer(nil).Compose("medication_inquiry", "en", Entities{})
	assert.True(t, strings.HasPrefix(out, "👋"))
}

func TestQuickReplies(t *testing.T) {
	t.Parallel()

	qr := QuickReplies(intent.Emergency)
	require.Len(t, qr, 3)
	assert.Equal(t, "call_emergency", qr[0].ID)

	qr[0].Title = "changed"
	assert.Equal(t, "Call 108", QuickReplies(intent.Emergency)[0].Title)

	assert.Nil(t, QuickReplies(intent.SymptomInquiry))
}

func TestMiscReplies(t *testing.T) {
	t.Parallel()

	c := NewComposer(nil)
	assert.Equal(t, apologies["en"], c.Apology("ta"))
	assert.Equal(t, apologies["hi"], c.Apology("hi"))
	assert.Contains(t, c.Unsupported(model.KindImage), "image")
	assert.Equal(t, unsupported["other"], c.Unsupported("sticker"))

	s, ok := c.ButtonReply("call_emergency")
	assert.True(t, ok)
	assert.Contains(t, s, "108")
	_, ok = c.ButtonReply("nope")
	assert.False(t, ok)

	_, ok = c.FollowUp(intent.SymptomInquiry)
	assert.True(t, ok)
	_, ok = c.FollowUp(intent.GeneralHealth)
	assert.False(t, ok)
}
