package calls

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"selfcall-platform/internal/audit"
	"selfcall-platform/internal/profiles"
	"selfcall-platform/internal/snapshots"
	"selfcall-platform/internal/voice"
)

type dialStubProvider struct {
	conversations map[string]voice.Conversation

	dialErr   error
	dialCalls int
	lastDial  voice.OutboundCallRequest
}

func (p *dialStubProvider) Name() string { return "stub" }

func (p *dialStubProvider) Transcribe(ctx context.Context, audio []byte, contentType string) (string, error) {
	return "", errors.New("not implemented")
}

func (p *dialStubProvider) CloneVoice(ctx context.Context, req voice.CloneVoiceRequest) (voice.CloneVoiceResult, error) {
	return voice.CloneVoiceResult{}, errors.New("not implemented")
}

func (p *dialStubProvider) CreateAgent(ctx context.Context, req voice.CreateAgentRequest) (voice.CreateAgentResult, error) {
	return voice.CreateAgentResult{}, errors.New("not implemented")
}

func (p *dialStubProvider) OutboundCall(ctx context.Context, req voice.OutboundCallRequest) (voice.OutboundCallResult, error) {
	p.dialCalls++
	p.lastDial = req
	if p.dialErr != nil {
		return voice.OutboundCallResult{}, p.dialErr
	}
	return voice.OutboundCallResult{ConversationID: "conv-new", CallSID: "CA123"}, nil
}

func (p *dialStubProvider) GetConversation(ctx context.Context, conversationID string) (voice.Conversation, error) {
	c, ok := p.conversations[conversationID]
	if !ok {
		return voice.Conversation{}, voice.ErrConversationNotFound
	}
	return c, nil
}

type dispatcherFixture struct {
	d         *Dispatcher
	calls     *MemoryRepo
	scheduled *ScheduledMemoryRepo
	profiles  *profiles.MemoryRepo
	snapshots *snapshots.MemoryRepo
	provider  *dialStubProvider
	now       time.Time
}

func newDispatcherFixture(t *testing.T) *dispatcherFixture {
	t.Helper()
	f := &dispatcherFixture{
		calls:     NewMemoryRepo(),
		scheduled: NewScheduledMemoryRepo(),
		profiles:  profiles.NewMemoryRepo(),
		snapshots: snapshots.NewMemoryRepo(),
		provider:  &dialStubProvider{conversations: map[string]voice.Conversation{}},
		now:       time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	f.d = NewDispatcher(
		f.calls, f.scheduled, f.profiles, f.snapshots, f.provider,
		audit.NewService(audit.NewMemoryRepo()),
		DispatcherConfig{
			AgentPhoneNumberID: "pn-1",
			StalenessThreshold: 12 * time.Minute,
			MaxConcurrent:      5,
		},
		slog.New(slog.NewTextHandler(io.Discard, nil)),
	)
	f.d.clock = func() time.Time { return f.now }
	return f
}

func (f *dispatcherFixture) seedReadyProfile(t *testing.T, userID string) {
	t.Helper()
	ctx := context.Background()
	if err := f.profiles.Create(ctx, profiles.Profile{
		UserID:      userID,
		PhoneNumber: "+15551230000",
		SetupStatus: profiles.StatusReady,
		VoiceID:     "voice-1",
		AgentID:     "agent-1",
	}); err != nil {
		t.Fatalf("seed profile: %v", err)
	}
	if err := f.snapshots.Insert(ctx, snapshots.Snapshot{
		ID: "s1", UserID: userID, Title: "Spring",
		SnapshotDate: time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC),
	}); err != nil {
		t.Fatalf("seed snapshot: %v", err)
	}
}

func TestStartCallHappyPath(t *testing.T) {
	f := newDispatcherFixture(t)
	f.seedReadyProfile(t, "u1")

	call, err := f.d.StartCall(context.Background(), "u1")
	if err != nil {
		t.Fatalf("StartCall: %v", err)
	}
	if call.Status != StatusDialing {
		t.Fatalf("status = %q, want dialing", call.Status)
	}
	if call.ConversationID != "conv-new" || call.CallSID != "CA123" {
		t.Fatalf("provider ids not stored: %+v", call)
	}
	if call.Origin != OriginManual {
		t.Fatalf("origin = %q, want manual", call.Origin)
	}
	if f.provider.lastDial.TimeMode != voice.TimeModeFuture {
		t.Fatalf("manual flow must dial with time_mode=future, got %q", f.provider.lastDial.TimeMode)
	}
	if f.provider.lastDial.ToNumber != "+15551230000" {
		t.Fatalf("dialed %q", f.provider.lastDial.ToNumber)
	}
	if f.provider.lastDial.FirstMessage == "" {
		t.Fatal("first message not set")
	}

	stored, err := f.calls.Get(context.Background(), "u1", call.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if stored.Status != StatusDialing || stored.StartedAt == nil {
		t.Fatalf("row not finalized: %+v", stored)
	}
}

func TestStartCallNotReadyCreatesNoRow(t *testing.T) {
	f := newDispatcherFixture(t)
	if err := f.profiles.Create(context.Background(), profiles.Profile{
		UserID:      "u1",
		PhoneNumber: "+15551230000",
		SetupStatus: profiles.StatusVoiceCreated,
	}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	_, err := f.d.StartCall(context.Background(), "u1")
	if !errors.Is(err, ErrNotReady) {
		t.Fatalf("err = %v, want ErrNotReady", err)
	}
	if list, _ := f.calls.ListForUser(context.Background(), "u1", 0); len(list) != 0 {
		t.Fatalf("precondition failure must not create rows, got %d", len(list))
	}
	if f.provider.dialCalls != 0 {
		t.Fatal("dial attempted for non-ready profile")
	}
}

func TestStartCallMissingPhone(t *testing.T) {
	f := newDispatcherFixture(t)
	if err := f.profiles.Create(context.Background(), profiles.Profile{
		UserID:      "u1",
		SetupStatus: profiles.StatusReady,
		VoiceID:     "voice-1",
		AgentID:     "agent-1",
	}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	_, err := f.d.StartCall(context.Background(), "u1")
	if !errors.Is(err, ErrMissingPhone) {
		t.Fatalf("err = %v, want ErrMissingPhone", err)
	}
}

func TestStartCallNoSnapshot(t *testing.T) {
	f := newDispatcherFixture(t)
	if err := f.profiles.Create(context.Background(), profiles.Profile{
		UserID:      "u1",
		PhoneNumber: "+15551230000",
		SetupStatus: profiles.StatusReady,
		VoiceID:     "voice-1",
		AgentID:     "agent-1",
	}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	_, err := f.d.StartCall(context.Background(), "u1")
	if !errors.Is(err, ErrNoSnapshot) {
		t.Fatalf("err = %v, want ErrNoSnapshot", err)
	}
}

func TestStartCallConflictsWithActiveCall(t *testing.T) {
	f := newDispatcherFixture(t)
	f.seedReadyProfile(t, "u1")

	// Fresh dialing call with a live conversation: reconciliation leaves it
	// alone and the new call is rejected.
	start := f.now.Add(-2 * time.Minute)
	mustInsertCall(t, f.calls, Call{
		ID: "c0", UserID: "u1", SnapshotID: "s1", Origin: OriginManual,
		Status: StatusDialing, ConversationID: "conv-live", StartedAt: &start, CreatedAt: start,
	})
	f.provider.conversations["conv-live"] = voice.Conversation{ConversationID: "conv-live", Status: "in_progress"}

	_, err := f.d.StartCall(context.Background(), "u1")
	if !errors.Is(err, ErrActiveCallExists) {
		t.Fatalf("err = %v, want ErrActiveCallExists", err)
	}
}

func TestStartCallHealsStaleCallThenDials(t *testing.T) {
	f := newDispatcherFixture(t)
	f.seedReadyProfile(t, "u1")

	start := f.now.Add(-20 * time.Minute)
	mustInsertCall(t, f.calls, Call{
		ID: "c0", UserID: "u1", SnapshotID: "s1", Origin: OriginManual,
		Status: StatusDialing, StartedAt: &start, CreatedAt: start,
	})

	call, err := f.d.StartCall(context.Background(), "u1")
	if err != nil {
		t.Fatalf("StartCall after healing: %v", err)
	}
	if call.Status != StatusDialing {
		t.Fatalf("new call status = %q", call.Status)
	}

	old, _ := f.calls.Get(context.Background(), "u1", "c0")
	if old.Status != StatusFailed || old.FailureReason != ReasonStaleNoConversationID {
		t.Fatalf("stale call not healed: %+v", old)
	}
}

func TestStartCallDialRejection(t *testing.T) {
	f := newDispatcherFixture(t)
	f.seedReadyProfile(t, "u1")
	f.provider.dialErr = &voice.ProviderError{Op: "outbound call", StatusCode: 422, Body: "number not allowed"}

	call, err := f.d.StartCall(context.Background(), "u1")
	if err == nil {
		t.Fatal("expected dial rejection error")
	}

	stored, gerr := f.calls.Get(context.Background(), "u1", call.ID)
	if gerr != nil {
		t.Fatalf("Get: %v", gerr)
	}
	if stored.Status != StatusFailed {
		t.Fatalf("status = %q, want failed", stored.Status)
	}
	if !strings.Contains(stored.FailureReason, "number not allowed") {
		t.Fatalf("provider body not captured: %q", stored.FailureReason)
	}
}
