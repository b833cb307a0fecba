package model

import (
	"fmt"
	"strings"
	"testing"
)

func TestValidate_InboundMessage(t *testing.T) {
	t.Parallel()

	ok := InboundMessage{ExternalID: "wamid.1", From: "919876543210", Kind: KindText, Text: "hi"}
	if err := Validate(ok); err != nil {
		t.Fatalf("expected valid message, got %v", err)
	}

	cases := map[string]InboundMessage{
		"missing id":   {From: "919876543210", Kind: KindText},
		"bad phone":    {ExternalID: "x", From: "12ab", Kind: KindText},
		"unknown kind": {ExternalID: "x", From: "919876543210", Kind: "sticker"},
	}
	for name, msg := range cases {
		msg := msg
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			err := Validate(msg)
			if err == nil {
				t.Fatalf("expected validation error")
			}
			if !strings.Contains(err.Error(), "InboundMessage") {
				t.Fatalf("expected error to name the type, got %v", err)
			}
			if !IsValidation(fmt.Errorf("wrapped: %w", err)) {
				t.Fatalf("expected IsValidation to see through wrapping")
			}
		})
	}
}

func TestBroadcastJob_FailedIDs(t *testing.T) {
	t.Parallel()

	j := &BroadcastJob{FailedRecipients: []FailedRecipient{
		{Recipient: "a", Reason: "x"},
		{Recipient: "b", Reason: "y"},
	}}
	got := j.FailedIDs()
	if len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Fatalf("unexpected ids: %v", got)
	}
}
