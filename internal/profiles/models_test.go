package profiles

import "testing"

func TestCanTransitionForwardOnly(t *testing.T) {
	cases := []struct {
		from, to SetupStatus
		want     bool
	}{
		{StatusNew, StatusVoiceUploaded, true},
		{StatusVoiceUploaded, StatusVoiceCreated, true},
		{StatusVoiceCreated, StatusAgentCreated, true},
		{StatusAgentCreated, StatusReady, true},
		{StatusNew, StatusReady, true}, // skipping forward is allowed; regressing is not
		{StatusReady, StatusNew, false},
		{StatusVoiceCreated, StatusVoiceUploaded, false},
		{StatusReady, StatusAgentCreated, false},
		{StatusReady, StatusReady, false},
	}
	for _, tc := range cases {
		if got := CanTransition(tc.from, tc.to); got != tc.want {
			t.Fatalf("CanTransition(%s, %s) = %v, want %v", tc.from, tc.to, got, tc.want)
		}
	}
}

func TestCanTransitionErrorEscape(t *testing.T) {
	for _, from := range []SetupStatus{StatusNew, StatusVoiceUploaded, StatusVoiceCreated, StatusAgentCreated} {
		if !CanTransition(from, StatusError) {
			t.Fatalf("expected %s -> error allowed", from)
		}
	}
	if CanTransition(StatusReady, StatusError) {
		t.Fatalf("ready must not escape to error")
	}
	if CanTransition(StatusError, StatusError) {
		t.Fatalf("error is terminal until resubmission resets the pipeline")
	}
}

func TestIsReadyRequiresIDs(t *testing.T) {
	p := Profile{SetupStatus: StatusReady}
	if p.IsReady() {
		t.Fatalf("ready without ids must not be dialable")
	}
	p.VoiceID = "v"
	p.AgentID = "a"
	if !p.IsReady() {
		t.Fatalf("expected ready")
	}
}
