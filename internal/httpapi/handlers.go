package httpapi

import (
	"errors"
	"log/slog"
	"net/http"
	"regexp"
	"time"

	"selfcall-platform/internal/auth"
	"selfcall-platform/internal/calls"
	"selfcall-platform/internal/onboarding"
	"selfcall-platform/internal/profiles"
	"selfcall-platform/internal/reporting"
	"selfcall-platform/pkg/utils"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Handlers groups HTTP handlers for dependency injection.
// Keep these thin: parse/validate input, call internal services, return JSON.
type Handlers struct {
	Auth       *auth.Manager
	Profiles   profiles.Repository
	Onboarding *onboarding.Service
	Dispatcher *calls.Dispatcher
	Reporting  *reporting.Service

	// Redis backs the best-effort sweep lock on the cron trigger. Claim
	// correctness never depends on it; nil disables the lock.
	Redis        *redis.Client
	SweepLockTTL time.Duration

	Log *slog.Logger
}

func fail(c *gin.Context, status int, msg string) {
	c.AbortWithStatusJSON(status, gin.H{"ok": false, "error": msg})
}

// failFor maps domain errors onto the envelope: precondition classes get
// 4xx, everything else is a dependency failure.
func failFor(c *gin.Context, err error) {
	switch {
	case errors.Is(err, calls.ErrNotReady),
		errors.Is(err, calls.ErrMissingPhone),
		errors.Is(err, calls.ErrNoSnapshot),
		errors.Is(err, calls.ErrPastSchedule):
		fail(c, http.StatusBadRequest, err.Error())
	case errors.Is(err, calls.ErrActiveCallExists),
		errors.Is(err, calls.ErrNotCancelable):
		fail(c, http.StatusConflict, err.Error())
	case errors.Is(err, calls.ErrNotFound),
		errors.Is(err, profiles.ErrNotFound),
		errors.Is(err, onboarding.ErrJobNotFound),
		errors.Is(err, onboarding.ErrProfileNotFound):
		fail(c, http.StatusNotFound, err.Error())
	default:
		fail(c, http.StatusInternalServerError, err.Error())
	}
}

func (h Handlers) userID(c *gin.Context) (string, bool) {
	uid, err := auth.UserID(c.Request.Context())
	if err != nil {
		fail(c, http.StatusUnauthorized, "user identity required")
		return "", false
	}
	return uid, true
}

// --- Auth ---

type loginRequest struct {
	UserID string `json:"user_id"`
}

// Login issues a JWT token pair.
//
// NOTE: This is a skeleton-only endpoint. Real systems must validate credentials.
func (h Handlers) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "invalid json")
		return
	}
	if req.UserID == "" {
		fail(c, http.StatusBadRequest, "user_id required")
		return
	}
	pair, err := h.Auth.IssuePair(time.Now(), req.UserID)
	if err != nil {
		fail(c, http.StatusInternalServerError, "token issuance failed")
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "access_token": pair.AccessToken, "refresh_token": pair.RefreshToken})
}

// --- Profile ---

// GetProfile returns the caller's profile, creating a fresh one on the
// first authenticated touch.
func (h Handlers) GetProfile(c *gin.Context) {
	uid, ok := h.userID(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()

	p, err := h.Profiles.Get(ctx, uid)
	if errors.Is(err, profiles.ErrNotFound) {
		p = profiles.Profile{UserID: uid, SetupStatus: profiles.StatusNew}
		if err := h.Profiles.Create(ctx, p); err != nil {
			failFor(c, err)
			return
		}
		// Re-read: a concurrent bootstrap may have won the insert.
		if p, err = h.Profiles.Get(ctx, uid); err != nil {
			failFor(c, err)
			return
		}
	} else if err != nil {
		failFor(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "profile": p})
}

var e164 = regexp.MustCompile(`^\+[1-9]\d{6,14}$`)

type setPhoneRequest struct {
	PhoneNumber string `json:"phone_number"`
}

// SetPhone syncs the user's verified phone number onto the profile.
func (h Handlers) SetPhone(c *gin.Context) {
	uid, ok := h.userID(c)
	if !ok {
		return
	}
	var req setPhoneRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "invalid json")
		return
	}
	if !e164.MatchString(req.PhoneNumber) {
		fail(c, http.StatusBadRequest, "phone_number must be E.164")
		return
	}
	if err := h.Profiles.SetPhoneNumber(c.Request.Context(), uid, req.PhoneNumber); err != nil {
		failFor(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// --- Onboarding ---

type startOnboardingRequest struct {
	AudioPath    string     `json:"audio_path"`
	SnapshotID   string     `json:"snapshot_id,omitempty"`
	Title        string     `json:"title,omitempty"`
	SnapshotDate *time.Time `json:"snapshot_date,omitempty"`
	AgentName    string     `json:"agent_name,omitempty"`
}

// StartOnboarding enqueues the attempt and runs the pipeline to completion
// in-request. The job row mirrors pipeline progress for polling clients.
func (h Handlers) StartOnboarding(c *gin.Context) {
	uid, ok := h.userID(c)
	if !ok {
		return
	}
	var req startOnboardingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "invalid json")
		return
	}
	if req.AudioPath == "" {
		fail(c, http.StatusBadRequest, "audio_path required")
		return
	}
	ctx := c.Request.Context()

	enq := onboarding.EnqueueRequest{
		AudioPath:  req.AudioPath,
		SnapshotID: req.SnapshotID,
		Title:      req.Title,
		AgentName:  req.AgentName,
	}
	if req.SnapshotDate != nil {
		enq.SnapshotDate = *req.SnapshotDate
	}
	job, err := h.Onboarding.Enqueue(ctx, uid, enq)
	if err != nil {
		failFor(c, err)
		return
	}

	res, err := h.Onboarding.Process(ctx, job, req.AgentName)
	if err != nil {
		// The pipeline already wrote the terminal states; surface the
		// failure with the job id so the client can poll details.
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
			"ok": false, "error": err.Error(), "job_id": job.ID,
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"ok":       true,
		"job_id":   job.ID,
		"voice_id": res.VoiceID,
		"agent_id": res.AgentID,
	})
}

func (h Handlers) GetOnboardingJob(c *gin.Context) {
	uid, ok := h.userID(c)
	if !ok {
		return
	}
	job, err := h.Onboarding.GetJob(c.Request.Context(), uid, c.Param("job_id"))
	if err != nil {
		failFor(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "job": job})
}

// --- Calls ---

func (h Handlers) StartCall(c *gin.Context) {
	uid, ok := h.userID(c)
	if !ok {
		return
	}
	call, err := h.Dispatcher.StartCall(c.Request.Context(), uid)
	if err != nil {
		failFor(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "call": call})
}

func (h Handlers) ListCalls(c *gin.Context) {
	uid, ok := h.userID(c)
	if !ok {
		return
	}
	list, err := h.Dispatcher.ListCalls(c.Request.Context(), uid, 0)
	if err != nil {
		failFor(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "calls": list})
}

func (h Handlers) CallsSummary(c *gin.Context) {
	uid, ok := h.userID(c)
	if !ok {
		return
	}
	sum, err := h.Reporting.CallsSummary(c.Request.Context(), reporting.CallsSummaryRequest{UserID: uid})
	if err != nil {
		failFor(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "summary": sum})
}

// --- Scheduled calls ---

type scheduleRequest struct {
	SnapshotID   string    `json:"snapshot_id,omitempty"`
	ScheduledFor time.Time `json:"scheduled_for"`
}

func (h Handlers) CreateScheduledCall(c *gin.Context) {
	uid, ok := h.userID(c)
	if !ok {
		return
	}
	var req scheduleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "invalid json")
		return
	}
	if req.ScheduledFor.IsZero() {
		fail(c, http.StatusBadRequest, "scheduled_for required")
		return
	}
	sc, err := h.Dispatcher.Schedule(c.Request.Context(), uid, req.SnapshotID, req.ScheduledFor)
	if err != nil {
		failFor(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "scheduled_call": sc})
}

func (h Handlers) ListScheduledCalls(c *gin.Context) {
	uid, ok := h.userID(c)
	if !ok {
		return
	}
	list, err := h.Dispatcher.ListScheduled(c.Request.Context(), uid, 0)
	if err != nil {
		failFor(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "scheduled_calls": list})
}

func (h Handlers) CancelScheduledCall(c *gin.Context) {
	uid, ok := h.userID(c)
	if !ok {
		return
	}
	if err := h.Dispatcher.CancelScheduled(c.Request.Context(), uid, c.Param("id")); err != nil {
		failFor(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// --- Cron ---

type runDueCallsRequest struct {
	Limit int `json:"limit"`
}

const sweepLockKey = "selfcall:sweep:due-calls"

// RunDueCalls triggers the due-call sweep. Overlapping cron fires are
// deduplicated with a best-effort redis lock; when redis is down the sweep
// runs anyway, relying on the claim for correctness.
func (h Handlers) RunDueCalls(c *gin.Context) {
	var req runDueCallsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "invalid json")
		return
	}
	ctx := c.Request.Context()

	if h.Redis != nil {
		token := uuid.NewString()
		ttl := h.SweepLockTTL
		if ttl <= 0 {
			ttl = time.Minute
		}
		got, err := utils.AcquireSweepLock(ctx, h.Redis, sweepLockKey, token, ttl)
		if err != nil {
			h.Log.Warn("sweep lock unavailable, proceeding without it", "err", err)
		} else if !got {
			c.JSON(http.StatusOK, gin.H{"ok": true, "skipped": "sweep already running"})
			return
		} else {
			defer func() {
				if err := utils.ReleaseSweepLock(ctx, h.Redis, sweepLockKey, token); err != nil {
					h.Log.Warn("sweep lock release failed", "err", err)
				}
			}()
		}
	}

	res, err := h.Dispatcher.RunDueCalls(ctx, req.Limit)
	if err != nil {
		failFor(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "result": res})
}
