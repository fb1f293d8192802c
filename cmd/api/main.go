package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"selfcall-platform/internal/audit"
	"selfcall-platform/internal/auth"
	"selfcall-platform/internal/calls"
	"selfcall-platform/internal/config"
	"selfcall-platform/internal/httpapi"
	"selfcall-platform/internal/onboarding"
	"selfcall-platform/internal/profiles"
	"selfcall-platform/internal/reflection"
	"selfcall-platform/internal/reporting"
	"selfcall-platform/internal/snapshots"
	"selfcall-platform/internal/storage"
	"selfcall-platform/internal/voice"
	"selfcall-platform/pkg/logger"
	"selfcall-platform/pkg/utils"

	"github.com/gin-gonic/gin"
	_ "github.com/jackc/pgx/v5/stdlib"
)

func main() {
	// Root context that cancels on shutdown
	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", "err", err)
		os.Exit(1)
	}

	log := logger.New(cfg.App.Env)
	slog.SetDefault(log)

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	authManager, err := auth.NewManager(cfg.Auth)
	if err != nil {
		log.Error("auth init failed", "err", err)
		os.Exit(1)
	}

	db, err := utils.OpenPostgres(rootCtx, "pgx", cfg.PostgresDSN(), utils.PostgresPoolConfig{})
	if err != nil {
		log.Error("postgres init failed", "err", err)
		os.Exit(1)
	}
	defer db.Close()

	rdb, err := utils.OpenRedis(rootCtx, utils.RedisConfig{Addr: cfg.RedisAddr()})
	if err != nil {
		log.Error("redis init failed", "err", err)
		os.Exit(1)
	}
	defer rdb.Close()

	store, err := storage.NewBucketStore(rootCtx, cfg.Storage, log)
	if err != nil {
		log.Error("bucket store init failed", "err", err)
		os.Exit(1)
	}

	provider, err := voice.NewElevenLabs(cfg.ElevenLabs, log)
	if err != nil {
		log.Error("voice provider init failed", "err", err)
		os.Exit(1)
	}

	extractor, err := reflection.NewOpenAIExtractor(cfg.OpenAI, log)
	if err != nil {
		log.Error("reflection extractor init failed", "err", err)
		os.Exit(1)
	}

	profileRepo := profiles.NewPostgresRepo(db)
	snapshotRepo := snapshots.NewPostgresRepo(db)
	jobRepo := onboarding.NewPostgresRepo(db)
	callRepo := calls.NewPostgresRepo(db)
	scheduledRepo := calls.NewScheduledPostgresRepo(db)
	auditSvc := audit.NewService(audit.NewPostgresRepo(db))

	onboardingSvc := onboarding.NewService(
		profileRepo, snapshotRepo, jobRepo, store, provider, extractor, auditSvc, log)
	dispatcher := calls.NewDispatcher(
		callRepo, scheduledRepo, profileRepo, snapshotRepo, provider, auditSvc,
		calls.DispatcherConfig{
			AgentPhoneNumberID: cfg.ElevenLabs.AgentPhoneNumberID,
			StalenessThreshold: cfg.Calls.StalenessThreshold,
			MaxConcurrent:      cfg.Calls.MaxConcurrent,
		}, log)
	reportingSvc := reporting.NewService(callRepo)

	// Gin router
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(logger.Middleware(log))

	registerRoutes(r, httpapi.Handlers{
		Auth:         authManager,
		Profiles:     profileRepo,
		Onboarding:   onboardingSvc,
		Dispatcher:   dispatcher,
		Reporting:    reportingSvc,
		Redis:        rdb,
		SweepLockTTL: cfg.Calls.SweepLockTTL,
		Log:          log,
	}, cfg.Calls.CronSecret)

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info("api listening", "addr", srv.Addr, "env", cfg.App.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server failed", "err", err)
			stop()
		}
	}()

	<-rootCtx.Done()
	log.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("http shutdown failed", "err", err)
	}

	_ = logger.ShutdownFlush(shutdownCtx, 2*time.Second)
}
