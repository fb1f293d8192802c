package main

import (
	"selfcall-platform/internal/auth"
	"selfcall-platform/internal/httpapi"

	"github.com/gin-gonic/gin"
)

// registerRoutes wires HTTP routes to handlers.
// Keep this file free of business logic. Handlers should delegate to internal modules.
func registerRoutes(r *gin.Engine, h httpapi.Handlers, cronSecret string) {
	// public
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	// AUTH routes (token issuance).
	// NOTE: This is a placeholder login route; real credential validation is not implemented.
	r.POST("/v1/auth/login", h.Login)

	// protected API group
	v1 := r.Group("/v1")
	v1.Use(auth.RequireAccessToken(h.Auth))
	{
		v1.GET("/profile", h.GetProfile)
		v1.POST("/profile/phone", h.SetPhone)

		v1.POST("/onboarding", h.StartOnboarding)
		v1.GET("/onboarding/jobs/:job_id", h.GetOnboardingJob)

		v1.POST("/calls/start", h.StartCall)
		v1.GET("/calls", h.ListCalls)
		v1.GET("/calls/summary", h.CallsSummary)

		v1.GET("/scheduled-calls", h.ListScheduledCalls)
		v1.POST("/scheduled-calls", h.CreateScheduledCall)
		v1.POST("/scheduled-calls/:id/cancel", h.CancelScheduledCall)
	}

	// internal trigger group: the external cron authenticates with a shared
	// secret, not a user token.
	internal := r.Group("/internal")
	internal.Use(auth.RequireCronSecret(cronSecret))
	{
		internal.POST("/cron/run-due-calls", h.RunDueCalls)
	}
}
