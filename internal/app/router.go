package app

import (
	"voice_survey_backend/internal/service"
	"voice_survey_backend/pkg/monitoring"

	"github.com/gin-gonic/gin"
)

func (a *App) registerRoutes(router *gin.Engine, c *controllers, s *services) {
	router.GET("/metrics", monitoring.PrometheusHandler())

	// Provider callbacks; these must stay outside the API envelope because
	// the provider expects raw 200/TwiML responses.
	webhooks := router.Group("/webhooks/voice")
	{
		webhooks.POST("/status", c.webhook.StatusCallback)
		webhooks.POST("/gather", c.webhook.Gather)
		webhooks.POST("/answer", c.webhook.Answer)
	}

	api := router.Group("/api")
	{
		api.GET("/health", c.health.HealthCheck)

		api.POST("/surveys/:id/start", c.dialer.StartSurvey)
		api.POST("/surveys/:id/pause", c.dialer.PauseSurvey)
		api.GET("/surveys/:id/attempts", c.attempt.ListBySurvey)

		api.GET("/dialer/status", c.dialer.Status)

		api.GET("/attempts/:id", c.attempt.GetAttempt)
		api.GET("/contacts/:id/attempts", c.attempt.ListByContact)

		api.GET("/ws/events", func(ctx *gin.Context) {
			service.ServeEvents(s.hub, ctx.Writer, ctx.Request)
		})
	}
}
