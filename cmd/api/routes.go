package main

import (
	"paircall-platform/internal/httpapi"
	"paircall-platform/internal/rbac"
	"paircall-platform/internal/signaling"

	"github.com/gin-gonic/gin"
)

// registerRoutes wires HTTP routes to handlers.
// Keep this file free of business logic. Handlers should delegate to internal modules.
func registerRoutes(r *gin.Engine, h httpapi.Handlers, relay *signaling.Relay, authMW gin.HandlerFunc) {
	// public
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	v1 := r.Group("/v1")

	// AUTH routes (token issuance).
	// NOTE: This is a placeholder login route; real credential validation is not implemented.
	v1.POST("/auth/login", h.Login)

	protected := v1.Group("")
	protected.Use(authMW)
	{
		// The signaling socket; all call traffic flows here.
		protected.GET("/ws", relay.ServeWS)

		protected.GET("/coins/balance", h.GetBalance)

		callRoutes := protected.Group("/calls")
		{
			callRoutes.GET("/history", h.ListCallHistory)
			callRoutes.GET("/:call_id", h.GetCall)
		}

		reportRoutes := protected.Group("/reports")
		{
			reportRoutes.GET("/calls", h.GetCallsSummary)
			reportRoutes.GET("/coins", h.GetCoinsSummary)
		}

		admin := protected.Group("/admin")
		admin.Use(rbac.RequireAnyRole(rbac.RoleAdmin))
		{
			admin.PUT("/settings/call", h.AdminUpdateCallSettings)
		}
	}
}
