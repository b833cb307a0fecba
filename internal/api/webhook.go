package api

import (
	"crypto/subtle"
	"strconv"
	"strings"
	"time"

	"github.com/LeventeLantos/health-assistant/internal/model"
)

// envelope is the subset of the WhatsApp Cloud API webhook payload the bot
// reads. Status callbacks arrive in the same shape with no messages.
type envelope struct {
	Object string          `json:"object"`
	Entry  []envelopeEntry `json:"entry"`
}

type envelopeEntry struct {
	ID      string           `json:"id"`
	Changes []envelopeChange `json:"changes"`
}

type envelopeChange struct {
	Field string        `json:"field"`
	Value envelopeValue `json:"value"`
}

type envelopeValue struct {
	Contacts []waContact `json:"contacts"`
	Messages []waMessage `json:"messages"`
}

type waContact struct {
	WaID    string `json:"wa_id"`
	Profile struct {
		Name string `json:"name"`
	} `json:"profile"`
}

type waMessage struct {
	ID        string `json:"id"`
	From      string `json:"from"`
	Timestamp string `json:"timestamp"`
	Type      string `json:"type"`
	Text      *struct {
		Body string `json:"body"`
	} `json:"text,omitempty"`
	Interactive *struct {
		Type        string `json:"type"`
		ButtonReply *struct {
			ID    string `json:"id"`
			Title string `json:"title"`
		} `json:"button_reply,omitempty"`
		ListReply *struct {
			ID    string `json:"id"`
			Title string `json:"title"`
		} `json:"list_reply,omitempty"`
	} `json:"interactive,omitempty"`
	Button *struct {
		Payload string `json:"payload"`
		Text    string `json:"text"`
	} `json:"button,omitempty"`
}

// inboundMessages flattens every message in the envelope into the
// pipeline's input type. now stamps messages without a usable timestamp.
func (e envelope) inboundMessages(now time.Time) []model.InboundMessage {
	var out []model.InboundMessage
	for _, entry := range e.Entry {
		for _, change := range entry.Changes {
			names := make(map[string]string, len(change.Value.Contacts))
			for _, c := range change.Value.Contacts {
				names[c.WaID] = c.Profile.Name
			}
			for _, m := range change.Value.Messages {
				out = append(out, m.toInbound(names, now))
			}
		}
	}
	return out
}

func (m waMessage) toInbound(names map[string]string, now time.Time) model.InboundMessage {
	from := strings.TrimPrefix(m.From, "whatsapp:")
	in := model.InboundMessage{
		ExternalID: m.ID,
		From:       from,
		Name:       names[from],
		Kind:       kindOf(m.Type),
		ReceivedAt: parseTimestamp(m.Timestamp, now),
	}

	switch {
	case m.Text != nil:
		in.Text = m.Text.Body
	case m.Interactive != nil && m.Interactive.ButtonReply != nil:
		in.ButtonID = m.Interactive.ButtonReply.ID
		in.Text = m.Interactive.ButtonReply.Title
	case m.Interactive != nil && m.Interactive.ListReply != nil:
		in.ButtonID = m.Interactive.ListReply.ID
		in.Text = m.Interactive.ListReply.Title
	case m.Button != nil:
		in.Kind = model.KindInteractive
		in.ButtonID = m.Button.Payload
		in.Text = m.Button.Text
	}
	return in
}

func kindOf(t string) model.Kind {
	switch t {
	case "text":
		return model.KindText
	case "interactive", "button":
		return model.KindInteractive
	case "image":
		return model.KindImage
	case "audio", "voice":
		return model.KindAudio
	default:
		return model.KindOther
	}
}

func parseTimestamp(raw string, now time.Time) time.Time {
	sec, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || sec <= 0 {
		return now
	}
	return time.Unix(sec, 0).UTC()
}

// verifyChallenge checks a subscription handshake and returns the challenge
// to echo back.
func verifyChallenge(mode, token, challenge, expected string) (string, bool) {
	if expected == "" || mode != "subscribe" || challenge == "" {
		return "", false
	}
	if subtle.ConstantTimeCompare([]byte(token), []byte(expected)) != 1 {
		return "", false
	}
	return challenge, true
}
