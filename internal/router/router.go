// Package router defines how HTTP routes are registered for the API.
package router

import (
    "github.com/labstack/echo/v4"

    "github.com/iliyamo/saas-provisioning/internal/handler"
    "github.com/iliyamo/saas-provisioning/internal/middleware"
)

// RegisterRoutes registers routes that do not require authentication on
// the provided Echo instance.  Currently it exposes only a health check.
func RegisterRoutes(e *echo.Echo) {
    e.GET("/healthz", handler.Health)
}

// RegisterProvisioning registers the customer-facing queue endpoints.
// These are unauthenticated: customers identify themselves by id or
// email and only ever see sanitized queue data.  The optional cache
// middleware is applied to the read-only views; pass nil to skip it.
func RegisterProvisioning(e *echo.Echo, p *handler.ProvisioningHandler, cu *handler.CustomerHandler, cache echo.MiddlewareFunc) {
    e.POST("/v1/customers", cu.Signup)
    e.POST("/v1/provisioning", p.Enqueue)

    reads := []echo.MiddlewareFunc{}
    if cache != nil {
        reads = append(reads, cache)
    }
    e.GET("/v1/queue-position", p.QueuePosition, reads...)
    e.GET("/v1/queue-stats", p.QueueStats, reads...)
    e.GET("/v1/customer-status", p.CustomerStatus, reads...)
}

// RegisterAuth registers the admin authentication routes.  Register,
// login and refresh live under /v1/auth without a session; logout and
// the profile endpoint require a valid access token.
func RegisterAuth(e *echo.Echo, a *handler.AuthHandler, jwtSecret string) {
    g := e.Group("/v1/auth")
    g.POST("/register", a.Register)
    g.POST("/login", a.Login)
    g.POST("/refresh", a.Refresh)
    // Logout requires a valid access token.  A refresh_token in the
    // body revokes that one session; an empty body revokes all of the
    // caller's sessions.
    g.POST("/logout", a.Logout, middleware.JWTAuth(jwtSecret))

    auth := e.Group("/v1", middleware.JWTAuth(jwtSecret))
    auth.GET("/me", a.Me)
}

// RegisterAdmin registers the back-office queue endpoints under /v1.
// All routes require a valid JWT; mutating the queue additionally
// requires the ADMIN or PROVISIONER role.  SUPPORT staff get read-only
// access to the queue listing.
func RegisterAdmin(e *echo.Echo, h *handler.AdminQueueHandler, jwtSecret string) {
    read := e.Group(
        "/v1",
        middleware.JWTAuth(jwtSecret),
        middleware.RequireRole("ADMIN", "PROVISIONER", "SUPPORT"),
    )
    read.GET("/provisioning-queue", h.ListQueue)
    read.GET("/provisioning/:id/backend", h.GetBackend)
    read.GET("/admins", h.ListAdmins)

    g := e.Group(
        "/v1",
        middleware.JWTAuth(jwtSecret),
        middleware.RequireRole("ADMIN", "PROVISIONER"),
    )
    g.POST("/claim-task", h.ClaimTask)
    g.POST("/provisioning/:id/credentials", h.SubmitCredentials)
    g.POST("/provisioning/:id/migrate", h.StartMigration)
    g.POST("/provisioning/:id/complete", h.Complete)
    g.POST("/provisioning/:id/fail", h.Fail)
    g.POST("/provisioning/:id/cancel", h.Cancel)
    g.POST("/backends/:id/health", h.ReportHealth)
}
