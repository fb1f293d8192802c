package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"selfcall-platform/internal/audit"
	"selfcall-platform/internal/auth"
	"selfcall-platform/internal/calls"
	"selfcall-platform/internal/profiles"
	"selfcall-platform/internal/reporting"
	"selfcall-platform/internal/snapshots"
	"selfcall-platform/internal/voice"

	"github.com/gin-gonic/gin"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type noDialProvider struct{}

func (noDialProvider) Name() string { return "stub" }
func (noDialProvider) Transcribe(ctx context.Context, audio []byte, contentType string) (string, error) {
	return "", errors.New("not implemented")
}
func (noDialProvider) CloneVoice(ctx context.Context, req voice.CloneVoiceRequest) (voice.CloneVoiceResult, error) {
	return voice.CloneVoiceResult{}, errors.New("not implemented")
}
func (noDialProvider) CreateAgent(ctx context.Context, req voice.CreateAgentRequest) (voice.CreateAgentResult, error) {
	return voice.CreateAgentResult{}, errors.New("not implemented")
}
func (noDialProvider) OutboundCall(ctx context.Context, req voice.OutboundCallRequest) (voice.OutboundCallResult, error) {
	return voice.OutboundCallResult{ConversationID: "conv-1", CallSID: "CA1"}, nil
}
func (noDialProvider) GetConversation(ctx context.Context, conversationID string) (voice.Conversation, error) {
	return voice.Conversation{}, voice.ErrConversationNotFound
}

type apiFixture struct {
	router   *gin.Engine
	profiles *profiles.MemoryRepo
	calls    *calls.MemoryRepo
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	profileRepo := profiles.NewMemoryRepo()
	callRepo := calls.NewMemoryRepo()
	dispatcher := calls.NewDispatcher(
		callRepo, calls.NewScheduledMemoryRepo(), profileRepo, snapshots.NewMemoryRepo(),
		noDialProvider{}, audit.NewService(nil),
		calls.DispatcherConfig{AgentPhoneNumberID: "pn-1"}, log)

	h := Handlers{
		Profiles:   profileRepo,
		Dispatcher: dispatcher,
		Reporting:  reporting.NewService(callRepo),
		Log:        log,
	}

	r := gin.New()
	// Identity shim standing in for the JWT middleware.
	authed := r.Group("/v1")
	authed.Use(func(c *gin.Context) {
		if uid := c.GetHeader("X-Test-User"); uid != "" {
			c.Request = c.Request.WithContext(auth.WithUser(c.Request.Context(), uid))
		}
		c.Next()
	})
	authed.GET("/profile", h.GetProfile)
	authed.POST("/profile/phone", h.SetPhone)
	authed.POST("/calls/start", h.StartCall)
	authed.GET("/calls/summary", h.CallsSummary)
	authed.POST("/scheduled-calls", h.CreateScheduledCall)
	authed.POST("/scheduled-calls/:id/cancel", h.CancelScheduledCall)

	internal := r.Group("/internal")
	internal.Use(auth.RequireCronSecret("sekret"))
	internal.POST("/cron/run-due-calls", h.RunDueCalls)

	return &apiFixture{router: r, profiles: profileRepo, calls: callRepo}
}

func (f *apiFixture) do(t *testing.T, method, path, user, body string) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, rd)
	if user != "" {
		req.Header.Set("X-Test-User", user)
	}
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func decodeEnvelope(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("bad response body %q: %v", w.Body.String(), err)
	}
	return out
}

func TestGetProfileBootstrapsOnFirstTouch(t *testing.T) {
	f := newAPIFixture(t)

	w := f.do(t, http.MethodGet, "/v1/profile", "u1", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d body = %s", w.Code, w.Body.String())
	}

	p, err := f.profiles.Get(context.Background(), "u1")
	if err != nil {
		t.Fatalf("profile not bootstrapped: %v", err)
	}
	if p.SetupStatus != profiles.StatusNew {
		t.Fatalf("bootstrap status = %q, want new", p.SetupStatus)
	}
}

func TestEndpointsRequireIdentity(t *testing.T) {
	f := newAPIFixture(t)

	w := f.do(t, http.MethodPost, "/v1/calls/start", "", "")
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", w.Code)
	}
	env := decodeEnvelope(t, w)
	if env["ok"] != false {
		t.Fatalf("error envelope missing ok=false: %v", env)
	}
}

func TestStartCallMapsPreconditionsTo400(t *testing.T) {
	f := newAPIFixture(t)
	if err := f.profiles.Create(context.Background(), profiles.Profile{
		UserID: "u1", SetupStatus: profiles.StatusVoiceCreated,
	}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	w := f.do(t, http.MethodPost, "/v1/calls/start", "u1", "")
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400, body = %s", w.Code, w.Body.String())
	}
}

func TestSetPhoneValidatesE164(t *testing.T) {
	f := newAPIFixture(t)
	if err := f.profiles.Create(context.Background(), profiles.Profile{UserID: "u1"}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	w := f.do(t, http.MethodPost, "/v1/profile/phone", "u1", `{"phone_number":"5551234"}`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("bad number accepted: %d", w.Code)
	}

	w = f.do(t, http.MethodPost, "/v1/profile/phone", "u1", `{"phone_number":"+15551234567"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("valid number rejected: %d body = %s", w.Code, w.Body.String())
	}
	p, _ := f.profiles.Get(context.Background(), "u1")
	if p.PhoneNumber != "+15551234567" {
		t.Fatalf("phone not persisted: %q", p.PhoneNumber)
	}
}

func TestScheduledCallPastTimeMapsTo400(t *testing.T) {
	f := newAPIFixture(t)
	if err := f.profiles.Create(context.Background(), profiles.Profile{UserID: "u1"}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	past := time.Now().Add(-time.Minute).UTC().Format(time.RFC3339)
	w := f.do(t, http.MethodPost, "/v1/scheduled-calls", "u1", `{"scheduled_for":"`+past+`"}`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400, body = %s", w.Code, w.Body.String())
	}
	env := decodeEnvelope(t, w)
	if msg, _ := env["error"].(string); !strings.Contains(msg, "must be in the future") {
		t.Fatalf("error message = %q", msg)
	}
}

func TestCancelUnknownScheduledCallMapsTo404(t *testing.T) {
	f := newAPIFixture(t)

	w := f.do(t, http.MethodPost, "/v1/scheduled-calls/ghost/cancel", "u1", "")
	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", w.Code)
	}
}

func TestCronEndpointRequiresSecret(t *testing.T) {
	f := newAPIFixture(t)

	req := httptest.NewRequest(http.MethodPost, "/internal/cron/run-due-calls", strings.NewReader(`{"limit":5}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("missing secret: status = %d, want 401", w.Code)
	}

	req = httptest.NewRequest(http.MethodPost, "/internal/cron/run-due-calls", strings.NewReader(`{"limit":5}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Cron-Secret", "sekret")
	w = httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("valid secret: status = %d, body = %s", w.Code, w.Body.String())
	}
}

func TestCallsSummaryEndpoint(t *testing.T) {
	f := newAPIFixture(t)
	if err := f.calls.Insert(context.Background(), calls.Call{
		ID: "c1", UserID: "u1", Origin: calls.OriginManual,
		Status: calls.StatusCompleted, DurationSeconds: 120,
	}); err != nil {
		t.Fatalf("seed call: %v", err)
	}

	w := f.do(t, http.MethodGet, "/v1/calls/summary", "u1", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	env := decodeEnvelope(t, w)
	sum, _ := env["summary"].(map[string]any)
	if sum == nil || sum["total_calls"] != float64(1) {
		t.Fatalf("summary = %v", env)
	}
}
