package web

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/macjediwizard/syncbridge/internal/api"
	"github.com/macjediwizard/syncbridge/internal/auth"
	"github.com/macjediwizard/syncbridge/internal/config"
)

// SetupRoutes configures all application routes.
func SetupRoutes(r *gin.Engine, h *Handlers, sm *auth.SessionManager, ta *auth.TokenAuthenticator, ingest config.RateLimitConfig) {
	// Health endpoints (no auth, no rate limit)
	r.GET("/health", h.HealthCheck)
	r.GET("/healthz", h.Liveness)
	r.GET("/ready", h.Readiness)

	// Auth endpoints with rate limiting to prevent brute force attacks
	authGroup := r.Group("/auth")
	authGroup.Use(RateLimiter(5, 10))
	{
		authGroup.GET("/login", h.Login)
		authGroup.POST("/login", h.Login)
		authGroup.GET("/callback", h.Callback)
		authGroup.POST("/logout", h.Logout)
	}

	apiRateLimiter := RateLimiter(30, 60)
	publicAPI := r.Group("/api")
	publicAPI.Use(apiRateLimiter)
	publicAPI.Use(auth.OptionalAuth(sm, ta))
	{
		publicAPI.GET("/auth/status", h.APIAuthStatus)
		publicAPI.POST("/auth/logout", h.APILogout)
	}

	protected := []gin.HandlerFunc{
		auth.RequireAuth(sm, ta),
		ValidateOrigin(),
		auth.ValidateCSRF(),
		RequireJSONContentType(),
	}

	protectedAPI := r.Group("/api")
	protectedAPI.Use(apiRateLimiter)
	protectedAPI.Use(protected...)
	{
		protectedAPI.GET("/activity", h.APIActivity)

		protectedAPI.GET("/connections", h.APIListConnections)
		protectedAPI.GET("/connections/:id", h.APIGetConnection)
		protectedAPI.DELETE("/connections/:id", h.APIDeleteConnection)
		protectedAPI.GET("/connections/:id/syncs", h.APIListSyncs)

		protectedAPI.POST("/syncs", h.APICreateSync)
		protectedAPI.GET("/syncs/:id", h.APIGetSync)
		protectedAPI.PUT("/syncs/:id", h.APIUpdateSync)
		protectedAPI.DELETE("/syncs/:id", h.APIDeleteSync)
		protectedAPI.PUT("/syncs/:id/status", h.APIUpdateSyncStatus)
		protectedAPI.POST("/syncs/:id/historical", h.APITriggerHistorical)
		protectedAPI.GET("/syncs/:id/mappings", h.APIGetMappings)
		protectedAPI.PUT("/syncs/:id/mappings", h.APISaveMappings)

		protectedAPI.GET("/entities", h.APIListEntities)
		protectedAPI.GET("/entities/:entity/fields", h.APIListFields)
		protectedAPI.GET("/picklists/:object/:field", h.APIGetPicklist)

		protectedAPI.GET("/event-logs", h.APIListEventLogs)
		protectedAPI.GET("/event-logs/:id", h.APIGetEventLog)
	}

	// Operations that call the analytics service
	expensiveAPI := r.Group("/api")
	expensiveAPI.Use(RateLimiter(2, 5))
	expensiveAPI.Use(protected...)
	{
		expensiveAPI.POST("/connections", h.APICreateConnection)
		expensiveAPI.PUT("/connections/:id", h.APIUpdateConnection)
		expensiveAPI.POST("/connections/validate", h.APIValidateCredentials)
	}

	// Record pushes from the CRM
	ingestAPI := r.Group("/api")
	ingestAPI.Use(RateLimiter(ingest.RPS, ingest.Burst))
	ingestAPI.Use(protected...)
	{
		ingestAPI.POST("/records", h.APIIngestRecords)
	}

	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, api.NewError(http.StatusNotFound, "Not found"))
	})
}
