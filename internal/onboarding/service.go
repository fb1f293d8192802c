package onboarding

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"selfcall-platform/internal/audit"
	"selfcall-platform/internal/profiles"
	"selfcall-platform/internal/reflection"
	"selfcall-platform/internal/snapshots"
	"selfcall-platform/internal/storage"
	"selfcall-platform/internal/voice"

	"github.com/google/uuid"
)

// Typed pipeline failures. Precondition errors mutate nothing; dependency
// failures set the profile to error and the job to failed before returning.
var (
	ErrProfileNotFound = errors.New("onboarding: profile not found")
	ErrStorageFailure  = errors.New("onboarding: storage failure")
	ErrVoiceClone      = errors.New("onboarding: voice clone failure")
	ErrAgentCreate     = errors.New("onboarding: agent create failure")
)

// Service drives a profile through the onboarding state machine:
//
//	new -> voice_uploaded -> voice_created -> agent_created -> ready
//
// strictly forward, with a universal escape to error. Each transition is
// durably persisted before the next step starts, so a concurrent status read
// always reflects the furthest completed step and never observes a skip or
// regression. There is no automatic retry; a failed pipeline is restarted by
// the user resubmitting.
type Service struct {
	profiles  profiles.Repository
	snapshots snapshots.Repository
	jobs      Repository
	store     storage.AudioStore
	provider  voice.Provider
	extractor reflection.Extractor
	audit     *audit.Service

	log   *slog.Logger
	clock func() time.Time
}

func NewService(
	profileRepo profiles.Repository,
	snapshotRepo snapshots.Repository,
	jobRepo Repository,
	store storage.AudioStore,
	provider voice.Provider,
	extractor reflection.Extractor,
	auditSvc *audit.Service,
	log *slog.Logger,
) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		profiles:  profileRepo,
		snapshots: snapshotRepo,
		jobs:      jobRepo,
		store:     store,
		provider:  provider,
		extractor: extractor,
		audit:     auditSvc,
		log:       log,
		clock:     time.Now,
	}
}

type EnqueueRequest struct {
	AudioPath string

	// SnapshotID reuses an existing snapshot; when empty a new one is
	// created from Title/SnapshotDate.
	SnapshotID   string
	Title        string
	SnapshotDate time.Time

	AgentName string
}

// Enqueue records the onboarding attempt: snapshot (if new), voice sample,
// and a queued job. It performs no provider work.
func (s *Service) Enqueue(ctx context.Context, userID string, req EnqueueRequest) (Job, error) {
	if userID == "" || req.AudioPath == "" {
		return Job{}, fmt.Errorf("onboarding: user id and audio path are required")
	}
	if _, err := s.profiles.Get(ctx, userID); err != nil {
		if errors.Is(err, profiles.ErrNotFound) {
			return Job{}, ErrProfileNotFound
		}
		return Job{}, err
	}

	now := s.clock().UTC()
	snapshotID := req.SnapshotID
	if snapshotID == "" {
		snapshotID = uuid.NewString()
		title := req.Title
		if title == "" {
			title = "Self snapshot"
		}
		date := req.SnapshotDate
		if date.IsZero() {
			date = now
		}
		if err := s.snapshots.Insert(ctx, snapshots.Snapshot{
			ID:           snapshotID,
			UserID:       userID,
			Title:        title,
			SnapshotDate: date,
		}); err != nil {
			return Job{}, err
		}
	}

	if err := s.snapshots.InsertVoiceSample(ctx, snapshots.VoiceSample{
		ID:         uuid.NewString(),
		UserID:     userID,
		SnapshotID: snapshotID,
		AudioPath:  req.AudioPath,
	}); err != nil {
		return Job{}, err
	}

	job := Job{
		ID:         uuid.NewString(),
		UserID:     userID,
		SnapshotID: snapshotID,
		AudioPath:  req.AudioPath,
		Status:     JobStatusQueued,
		CreatedAt:  now,
	}
	if err := s.jobs.Insert(ctx, job); err != nil {
		return Job{}, err
	}
	return job, nil
}

type Result struct {
	VoiceID string `json:"voice_id"`
	AgentID string `json:"agent_id"`
}

// Process runs the onboarding pipeline for a queued job.
//
// Idempotency: a profile already ready with both ids short-circuits with the
// existing ids and performs zero provider calls.
func (s *Service) Process(ctx context.Context, job Job, agentName string) (Result, error) {
	log := s.log.With("user_id", job.UserID, "job_id", job.ID)

	profile, err := s.profiles.Get(ctx, job.UserID)
	if err != nil {
		if errors.Is(err, profiles.ErrNotFound) {
			return Result{}, ErrProfileNotFound
		}
		return Result{}, err
	}

	if profile.IsReady() {
		log.Info("onboarding already complete")
		_ = s.jobs.UpdateStatus(ctx, job.ID, JobStatusCompleted)
		return Result{VoiceID: profile.VoiceID, AgentID: profile.AgentID}, nil
	}

	// Step 1: the sample is uploaded; persist immediately so pollers see
	// monotonic forward progress.
	if err := s.jobs.UpdateStatus(ctx, job.ID, JobStatusProcessing); err != nil {
		return Result{}, err
	}
	if err := s.profiles.UpdateSetupStatus(ctx, job.UserID, profiles.StatusVoiceUploaded); err != nil {
		return Result{}, err
	}
	s.audit.OnboardingStep(ctx, job.UserID, job.ID, "voice_uploaded")

	// Step 2: fetch the recording. Storage is on the critical path.
	audio, contentType, err := s.store.Download(ctx, job.AudioPath)
	if err != nil {
		return Result{}, s.fail(ctx, job, "audio download failed: "+err.Error(), ErrStorageFailure, err)
	}

	// Step 3: best-effort personalization. Transcription or extraction
	// failure degrades to the generic prompt; it never aborts the pipeline.
	extracted := s.extractReflection(ctx, log, job, audio, contentType)

	// Step 4: prompt from ground-truth fields only.
	snap, err := s.snapshots.Get(ctx, job.UserID, job.SnapshotID)
	if err != nil {
		return Result{}, s.fail(ctx, job, "snapshot lookup failed: "+err.Error(), ErrStorageFailure, err)
	}
	prompt := BuildSystemPrompt(snap.Title, snap.SnapshotDate, extracted)

	// Step 5: clone the voice.
	if err := s.profiles.UpdateSetupStatus(ctx, job.UserID, profiles.StatusVoiceCreated); err != nil {
		return Result{}, err
	}
	s.audit.OnboardingStep(ctx, job.UserID, job.ID, "voice_created")

	voiceName := agentName
	if voiceName == "" {
		voiceName = "Self voice " + job.UserID
	}
	clone, err := s.provider.CloneVoice(ctx, voice.CloneVoiceRequest{
		Name:        voiceName,
		Audio:       audio,
		ContentType: contentType,
	})
	if err != nil {
		return Result{}, s.fail(ctx, job, "voice clone failed: "+err.Error(), ErrVoiceClone, err)
	}

	// Step 6: persist the voice id, then create the agent bound to it.
	if err := s.profiles.SetVoiceID(ctx, job.UserID, clone.VoiceID); err != nil {
		return Result{}, err
	}
	if err := s.jobs.UpdateStatus(ctx, job.ID, JobStatusVoiceCreated); err != nil {
		return Result{}, err
	}
	if err := s.profiles.UpdateSetupStatus(ctx, job.UserID, profiles.StatusAgentCreated); err != nil {
		return Result{}, err
	}
	s.audit.OnboardingStep(ctx, job.UserID, job.ID, "agent_created")

	agent, err := s.provider.CreateAgent(ctx, voice.CreateAgentRequest{
		Name:         voiceName,
		VoiceID:      clone.VoiceID,
		SystemPrompt: prompt,
	})
	if err != nil {
		return Result{}, s.fail(ctx, job, "agent create failed: "+err.Error(), ErrAgentCreate, err)
	}

	// Step 7: persist the agent id and finish.
	if err := s.profiles.SetAgentID(ctx, job.UserID, agent.AgentID); err != nil {
		return Result{}, err
	}
	if err := s.jobs.UpdateStatus(ctx, job.ID, JobStatusAgentCreated); err != nil {
		return Result{}, err
	}
	if err := s.profiles.UpdateSetupStatus(ctx, job.UserID, profiles.StatusReady); err != nil {
		return Result{}, err
	}
	if err := s.jobs.UpdateStatus(ctx, job.ID, JobStatusCompleted); err != nil {
		return Result{}, err
	}
	s.audit.OnboardingStep(ctx, job.UserID, job.ID, "ready")
	log.Info("onboarding complete", "voice_id", clone.VoiceID, "agent_id", agent.AgentID)

	return Result{VoiceID: clone.VoiceID, AgentID: agent.AgentID}, nil
}

// GetJob serves UI polling.
func (s *Service) GetJob(ctx context.Context, userID, jobID string) (Job, error) {
	return s.jobs.Get(ctx, userID, jobID)
}

// extractReflection runs the best-effort personalization branch. Every
// failure path returns the generic outcome.
func (s *Service) extractReflection(ctx context.Context, log *slog.Logger, job Job, audio []byte, contentType string) reflection.Result {
	transcript, err := s.provider.Transcribe(ctx, audio, contentType)
	if err != nil {
		log.Warn("transcription failed, continuing with generic prompt", "err", err)
		return reflection.Generic()
	}

	res, err := s.extractor.Extract(ctx, transcript)
	if err != nil {
		log.Warn("reflection extraction failed, continuing with generic prompt", "err", err)
		return reflection.Generic()
	}
	if !res.Personalized {
		return res
	}

	// Attach exactly once; a lost attach only loses personalization of the
	// stored snapshot, never the pipeline.
	if err := s.snapshots.AttachReflection(ctx, job.UserID, job.SnapshotID, res.Data); err != nil &&
		!errors.Is(err, snapshots.ErrReflectionAttached) {
		log.Warn("reflection attach failed", "err", err)
	}
	return res
}

// fail writes the terminal states (profile error, job failed) before
// surfacing the typed failure to the caller.
func (s *Service) fail(ctx context.Context, job Job, reason string, kind error, cause error) error {
	if err := s.profiles.UpdateSetupStatus(ctx, job.UserID, profiles.StatusError); err != nil {
		s.log.Error("failed to mark profile error", "user_id", job.UserID, "err", err)
	}
	if err := s.jobs.MarkFailed(ctx, job.ID, truncate(reason, 500)); err != nil {
		s.log.Error("failed to mark job failed", "job_id", job.ID, "err", err)
	}
	s.audit.OnboardingStep(ctx, job.UserID, job.ID, "failed: "+truncate(reason, 120))
	return fmt.Errorf("%w: %v", kind, cause)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
