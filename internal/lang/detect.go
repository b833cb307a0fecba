// Package lang detects the language of a chat message from the Unicode
// script of its characters.
package lang

import (
	"golang.org/x/text/language"
	"golang.org/x/text/language/display"

	"github.com/LeventeLantos/health-assistant/internal/model"
)

type scriptRange struct {
	code   string
	lo, hi rune
}

// scripts is evaluated in order and the first match wins. Languages sharing a
// block (hi/mr on Devanagari, bn/as on Bengali) always resolve to the earlier
// entry, so mr and as are never returned.
var scripts = []scriptRange{
	{"hi", 0x0900, 0x097F},
	{"ta", 0x0B80, 0x0BFF},
	{"te", 0x0C00, 0x0C7F},
	{"ml", 0x0D00, 0x0D7F},
	{"kn", 0x0C80, 0x0CFF},
	{"bn", 0x0980, 0x09FF},
	{"gu", 0x0A80, 0x0AFF},
	{"mr", 0x0900, 0x097F},
	{"pa", 0x0A00, 0x0A7F},
	{"or", 0x0B00, 0x0B7F},
	{"as", 0x0980, 0x09FF},
	{"ur", 0x0600, 0x06FF},
}

// Detect returns the ISO 639-1 code for text. It never fails; text with no
// recognised script falls back to English.
func Detect(text string) string {
	for _, s := range scripts {
		for _, r := range text {
			if r >= s.lo && r <= s.hi {
				return s.code
			}
		}
	}
	return model.DefaultLanguage
}

// Supported lists every code Detect can be configured for, in priority order,
// followed by English.
func Supported() []string {
	out := make([]string, 0, len(scripts)+1)
	for _, s := range scripts {
		out = append(out, s.code)
	}
	return append(out, model.DefaultLanguage)
}

// Name returns the English display name of code, or "Unknown".
func Name(code string) string {
	tag, err := language.Parse(code)
	if err != nil {
		return "Unknown"
	}
	if n := display.English.Languages().Name(tag); n != "" {
		return n
	}
	return "Unknown"
}
