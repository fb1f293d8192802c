package voice

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Provider defines the provider-agnostic interface used by business logic.
//
// Rules:
// - No provider HTTP calls outside voice adapters.
// - Keep request/response types provider-agnostic; raw payloads stay inside
//   the adapter and are normalized before they cross this boundary.
type Provider interface {
	Name() string

	// Transcribe turns raw audio bytes into transcript text.
	Transcribe(ctx context.Context, audio []byte, contentType string) (string, error)

	// CloneVoice creates a cloned voice from a recording.
	CloneVoice(ctx context.Context, req CloneVoiceRequest) (CloneVoiceResult, error)

	// CreateAgent creates a conversational agent bound to a cloned voice.
	CreateAgent(ctx context.Context, req CreateAgentRequest) (CreateAgentResult, error)

	// OutboundCall originates a phone call driven by an agent.
	OutboundCall(ctx context.Context, req OutboundCallRequest) (OutboundCallResult, error)

	// GetConversation fetches the provider's view of a call for reconciliation.
	GetConversation(ctx context.Context, conversationID string) (Conversation, error)
}

// TimeMode selects whether the agent roleplays the user's past or future self.
// It is resolved per call, not at agent-creation time.
type TimeMode string

const (
	TimeModePast   TimeMode = "past"
	TimeModeFuture TimeMode = "future"
)

type CloneVoiceRequest struct {
	Name string

	Audio       []byte
	ContentType string
}

type CloneVoiceResult struct {
	VoiceID string `json:"voice_id"`
}

type CreateAgentRequest struct {
	Name    string
	VoiceID string

	// SystemPrompt is the agent prompt template. It must declare the
	// {{time_mode}} and {{first_message}} placeholders, which are filled by
	// per-call dynamic variables at dial time.
	SystemPrompt string
}

type CreateAgentResult struct {
	AgentID string `json:"agent_id"`
}

type OutboundCallRequest struct {
	AgentID string

	// AgentPhoneNumberID is the provider-side identity of the originating number.
	AgentPhoneNumberID string

	// ToNumber is the destination in E.164.
	ToNumber string

	// Per-call dynamic variables.
	TimeMode     TimeMode
	FirstMessage string
}

type OutboundCallResult struct {
	ConversationID string `json:"conversation_id"`
	CallSID        string `json:"call_sid"`
}

// Conversation is the normalized provider view of a call. Field names vary
// across provider API versions; the adapter's tolerant parser maps them all
// onto this one record.
type Conversation struct {
	ConversationID string `json:"conversation_id"`

	// Status is the provider status keyword, lowercased.
	Status string `json:"status"`

	DurationSeconds int        `json:"duration_seconds"`
	StartedAt       *time.Time `json:"started_at,omitempty"`
	EndedAt         *time.Time `json:"ended_at,omitempty"`
}

// terminalStatuses are provider keywords that mean the call is over.
var terminalStatuses = map[string]bool{
	"done":      true,
	"ended":     true,
	"completed": true,
	"finished":  true,
}

// Ended reports whether the provider considers the conversation finished.
// A reported duration or explicit end time also counts as ended, since some
// provider versions omit the status keyword on completed calls.
func (c Conversation) Ended() bool {
	if terminalStatuses[c.Status] {
		return true
	}
	return c.DurationSeconds > 0 || c.EndedAt != nil
}

var ErrConversationNotFound = errors.New("voice: conversation not found")

// ProviderError carries the provider's HTTP status and response body so
// callers can record the failure reason verbatim.
type ProviderError struct {
	Op         string
	StatusCode int
	Body       string
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("voice: %s failed with status %d: %s", e.Op, e.StatusCode, e.Body)
}
