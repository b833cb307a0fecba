// Package reply renders the canned, language-specific replies sent back to
// users. Templates ship with the binary; nothing is fetched at runtime.
package reply

import (
	"log/slog"
	"strings"

	"github.com/LeventeLantos/health-assistant/internal/intent"
	"github.com/LeventeLantos/health-assistant/internal/model"
)

type Entities struct {
	Symptoms []string
	Diseases []string
}

type Composer struct {
	logger *slog.Logger
}

func NewComposer(logger *slog.Logger) *Composer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Composer{logger: logger}
}

// Compose returns the template for (label, language). A missing language
// falls back to English and is logged; an unknown label is treated as
// general health.
func (c *Composer) Compose(label intent.Label, language string, e Entities) string {
	byLang, ok := templates[label]
	if !ok {
		c.logger.Warn("no templates for intent, using general_health", "intent", label)
		label = intent.GeneralHealth
		byLang = templates[label]
	}

	tmpl, ok := byLang[language]
	if !ok {
		c.logger.Warn("reply template missing for language, falling back to en",
			"intent", label, "language", language)
		tmpl = byLang[model.DefaultLanguage]
	}

	return render(tmpl, e)
}

func (c *Composer) Apology(language string) string {
	if s, ok := apologies[language]; ok {
		return s
	}
	return apologies[model.DefaultLanguage]
}

// Unsupported is the notice sent for inbound media the assistant cannot read.
func (c *Composer) Unsupported(kind model.Kind) string {
	if s, ok := unsupported[string(kind)]; ok {
		return s
	}
	return unsupported["other"]
}

// ButtonReply returns the fixed follow-up for a tapped quick reply.
func (c *Composer) ButtonReply(buttonID string) (string, bool) {
	s, ok := buttonReplies[buttonID]
	return s, ok
}

func (c *Composer) FollowUp(label intent.Label) (string, bool) {
	s, ok := followUps[label]
	return s, ok
}

// QuickReplies returns the options offered with an emergency reply, or nil
// for every other intent.
func QuickReplies(label intent.Label) []model.QuickReply {
	if label != intent.Emergency {
		return nil
	}
	out := make([]model.QuickReply, len(emergencyQuickReplies))
	copy(out, emergencyQuickReplies)
	return out
}

func render(tmpl string, e Entities) string {
	symptoms := "severe symptoms"
	if len(e.Symptoms) > 0 {
		symptoms = strings.Join(e.Symptoms, ", ")
	}
	diseases := "your condition"
	if len(e.Diseases) > 0 {
		diseases = strings.Join(e.Diseases, ", ")
	}
	return strings.NewReplacer("{symptoms}", symptoms, "{diseases}", diseases).Replace(tmpl)
}
