package voice

import (
	"encoding/json"
	"errors"
	"strings"
	"time"
)

var ErrUnrecognizedShape = errors.New("voice: unrecognized conversation payload shape")

// ParseConversation normalizes a raw conversation payload.
//
// The provider has shipped several field-name conventions for the same
// concepts (top-level vs metadata-nested, unix seconds vs RFC3339, _secs
// suffixes). We accept all known variants and reject payloads that carry
// none of them instead of silently defaulting.
func ParseConversation(conversationID string, raw []byte) (Conversation, error) {
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return Conversation{}, err
	}

	out := Conversation{ConversationID: conversationID}
	recognized := false

	if id := firstString(m, "conversation_id", "id"); id != "" {
		out.ConversationID = id
	}

	if s := firstString(m, "status", "state", "call_status"); s != "" {
		out.Status = strings.ToLower(strings.TrimSpace(s))
		recognized = true
	}

	// Some versions nest call facts under "metadata".
	meta, _ := m["metadata"].(map[string]any)

	if d, ok := firstNumber(m, meta, "call_duration_secs", "duration_secs", "duration_seconds", "duration"); ok {
		out.DurationSeconds = int(d)
		recognized = true
	}

	if t, ok := firstTime(m, meta, "start_time_unix_secs", "started_at", "start_time"); ok {
		out.StartedAt = &t
		recognized = true
	}
	if t, ok := firstTime(m, meta, "end_time_unix_secs", "ended_at", "end_time"); ok {
		out.EndedAt = &t
		recognized = true
	}

	if !recognized {
		return Conversation{}, ErrUnrecognizedShape
	}
	return out, nil
}

func firstString(m map[string]any, keys ...string) string {
	for _, k := range keys {
		if v, ok := m[k].(string); ok && strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func firstNumber(m, meta map[string]any, keys ...string) (float64, bool) {
	for _, src := range []map[string]any{m, meta} {
		if src == nil {
			continue
		}
		for _, k := range keys {
			switch v := src[k].(type) {
			case float64:
				if v > 0 {
					return v, true
				}
			case string:
				// tolerated: numeric strings
				var f float64
				if err := json.Unmarshal([]byte(v), &f); err == nil && f > 0 {
					return f, true
				}
			}
		}
	}
	return 0, false
}

func firstTime(m, meta map[string]any, keys ...string) (time.Time, bool) {
	for _, src := range []map[string]any{m, meta} {
		if src == nil {
			continue
		}
		for _, k := range keys {
			switch v := src[k].(type) {
			case float64:
				if v > 0 {
					return time.Unix(int64(v), 0).UTC(), true
				}
			case string:
				if t, err := time.Parse(time.RFC3339, v); err == nil {
					return t.UTC(), true
				}
			}
		}
	}
	return time.Time{}, false
}
