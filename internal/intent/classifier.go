// Package intent assigns one of a small, closed set of medical intents to a
// chat message and extracts the symptom and disease terms it mentions.
package intent

import (
	"context"
	"log/slog"
	"strings"
)

type Label string

const (
	Emergency      Label = "emergency"
	SymptomInquiry Label = "symptom_inquiry"
	DiseaseInquiry Label = "disease_inquiry"
	GeneralHealth  Label = "general_health"
)

type Classification struct {
	Intent     Label    `json:"intent"`
	Confidence float64  `json:"confidence"`
	Symptoms   []string `json:"symptoms"`
	Diseases   []string `json:"diseases"`
	Tags       []string `json:"tags"`
	Model      string   `json:"model"`
}

// Classifier is implemented by the rule table below and by any learned
// backend that can stand in for it.
type Classifier interface {
	Classify(ctx context.Context, text, language string) (Classification, error)
}

// Rule is one row of the priority table. Rules are evaluated top to bottom and
// the first whose Match returns true decides the intent.
type Rule struct {
	Intent     Label
	Confidence float64
	Tag        string
	Model      string
	Match      func(lower string) bool
}

// DefaultRules is the priority order: emergency, symptom, disease. Anything
// else is general health.
var DefaultRules = []Rule{
	{Intent: Emergency, Confidence: 0.95, Tag: "emergency", Model: "rule_based_emergency", Match: containsAny(emergencyPhrases)},
	{Intent: SymptomInquiry, Confidence: 0.85, Tag: "symptom", Model: "rule_based_symptoms", Match: containsAny(symptomTerms)},
	{Intent: DiseaseInquiry, Confidence: 0.80, Tag: "disease", Model: "rule_based_diseases", Match: containsAny(diseaseTerms)},
}

var fallbackRule = Rule{Intent: GeneralHealth, Confidence: 0.70, Tag: "general", Model: "rule_based_general"}

type Rules struct {
	rules []Rule
}

func NewRules(rules []Rule) *Rules {
	if len(rules) == 0 {
		rules = DefaultRules
	}
	return &Rules{rules: rules}
}

// Classify never fails. Entity extraction runs regardless of which rule fired.
func (r *Rules) Classify(_ context.Context, text, _ string) (Classification, error) {
	lower := strings.ToLower(text)

	chosen := fallbackRule
	for _, rule := range r.rules {
		if rule.Match != nil && rule.Match(lower) {
			chosen = rule
			break
		}
	}

	return Classification{
		Intent:     chosen.Intent,
		Confidence: chosen.Confidence,
		Symptoms:   extract(lower, symptomTerms),
		Diseases:   extract(lower, diseaseTerms),
		Tags:       []string{chosen.Tag},
		Model:      chosen.Model,
	}, nil
}

// WithFallback wraps a pluggable backend so that any backend error, or an
// answer outside the taxonomy, degrades to the rule table.
func WithFallback(backend Classifier, rules *Rules, logger *slog.Logger) Classifier {
	if logger == nil {
		logger = slog.Default()
	}
	if rules == nil {
		rules = NewRules(nil)
	}
	return &fallback{backend: backend, rules: rules, logger: logger}
}

type fallback struct {
	backend Classifier
	rules   *Rules
	logger  *slog.Logger
}

func (f *fallback) Classify(ctx context.Context, text, language string) (Classification, error) {
	if f.backend == nil {
		return f.rules.Classify(ctx, text, language)
	}

	c, err := f.backend.Classify(ctx, text, language)
	if err == nil && c.Intent.Valid() {
		return c, nil
	}

	if err != nil {
		f.logger.Warn("classifier backend failed, using rules", "err", err)
	} else {
		f.logger.Warn("classifier backend returned unknown intent, using rules", "intent", c.Intent)
	}
	return f.rules.Classify(ctx, text, language)
}

func (l Label) Valid() bool {
	switch l {
	case Emergency, SymptomInquiry, DiseaseInquiry, GeneralHealth:
		return true
	}
	return false
}

func containsAny(terms []string) func(string) bool {
	return func(lower string) bool {
		for _, t := range terms {
			if strings.Contains(lower, t) {
				return true
			}
		}
		return false
	}
}

func extract(lower string, terms []string) []string {
	found := []string{}
	for _, t := range terms {
		if strings.Contains(lower, t) {
			found = append(found, t)
		}
	}
	return found
}
