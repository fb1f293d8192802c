package voice

import (
	"errors"
	"testing"
	"time"
)

func TestParseConversationStatusVariants(t *testing.T) {
	for _, raw := range []string{
		`{"status":"done"}`,
		`{"state":"done"}`,
		`{"call_status":"done"}`,
	} {
		c, err := ParseConversation("conv-1", []byte(raw))
		if err != nil {
			t.Fatalf("parse %s: %v", raw, err)
		}
		if c.Status != "done" {
			t.Fatalf("expected status done for %s, got %q", raw, c.Status)
		}
		if !c.Ended() {
			t.Fatalf("expected ended for %s", raw)
		}
	}
}

func TestParseConversationDurationVariants(t *testing.T) {
	for _, raw := range []string{
		`{"call_duration_secs":90}`,
		`{"duration_seconds":90}`,
		`{"duration":90}`,
		`{"metadata":{"call_duration_secs":90},"status":"processing"}`,
	} {
		c, err := ParseConversation("conv-1", []byte(raw))
		if err != nil {
			t.Fatalf("parse %s: %v", raw, err)
		}
		if c.DurationSeconds != 90 {
			t.Fatalf("expected 90s for %s, got %d", raw, c.DurationSeconds)
		}
	}
}

func TestParseConversationTimes(t *testing.T) {
	c, err := ParseConversation("conv-1", []byte(`{"metadata":{"start_time_unix_secs":1700000000},"end_time_unix_secs":1700000120}`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if c.StartedAt == nil || !c.StartedAt.Equal(time.Unix(1700000000, 0)) {
		t.Fatalf("unexpected start: %v", c.StartedAt)
	}
	if c.EndedAt == nil || !c.EndedAt.Equal(time.Unix(1700000120, 0)) {
		t.Fatalf("unexpected end: %v", c.EndedAt)
	}

	c, err = ParseConversation("conv-1", []byte(`{"started_at":"2024-01-02T03:04:05Z","status":"in_progress"}`))
	if err != nil {
		t.Fatalf("parse rfc3339: %v", err)
	}
	if c.StartedAt == nil || c.StartedAt.Year() != 2024 {
		t.Fatalf("unexpected start: %v", c.StartedAt)
	}
	if c.Ended() {
		t.Fatalf("in_progress without duration/end must not be ended")
	}
}

func TestParseConversationRejectsUnknownShape(t *testing.T) {
	if _, err := ParseConversation("conv-1", []byte(`{"foo":"bar"}`)); !errors.Is(err, ErrUnrecognizedShape) {
		t.Fatalf("expected ErrUnrecognizedShape, got %v", err)
	}
}

func TestConversationEndedByDuration(t *testing.T) {
	c := Conversation{Status: "processing", DurationSeconds: 42}
	if !c.Ended() {
		t.Fatalf("a reported duration means the call finished")
	}
}
