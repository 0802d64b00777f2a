package router // package router defines how HTTP routes are registered for the API

import (
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/disable-customer/internal/disablement"
	"github.com/iliyamo/disable-customer/internal/handler"
	"github.com/iliyamo/disable-customer/internal/middleware"
	"github.com/iliyamo/disable-customer/internal/model"
)

// Deps are the shared pieces every protected group needs.
type Deps struct {
	JWTSecret  string
	Sessions   middleware.SessionLoader
	Enforcer   middleware.SessionChecker
	Visibility *disablement.Visibility
	Log        *zap.Logger

	// Limiter throttles the gated public entry points; nil disables it.
	Limiter echo.MiddlewareFunc
}

func (d Deps) throttled() []echo.MiddlewareFunc {
	if d.Limiter == nil {
		return nil
	}
	return []echo.MiddlewareFunc{d.Limiter}
}

// protected returns the middleware chain of authenticated groups: token,
// roles, session load plus disablement check, then the attribute filter.
func (d Deps) protected(roles ...string) []echo.MiddlewareFunc {
	return []echo.MiddlewareFunc{
		middleware.JWTAuth(d.JWTSecret),
		middleware.RequireRole(roles...),
		middleware.Sessions(d.Sessions, d.Enforcer, d.Log),
		middleware.HideBackendOnly(d.Visibility, d.Log),
	}
}

// RegisterRoutes registers routes that do not require authentication and
// are not part of the account API. Currently only the health check.
func RegisterRoutes(e *echo.Echo, db handler.Pinger) {
	e.GET("/healthz", handler.Health(db))
}

// RegisterAuth registers the public account entry points under /v1/auth.
// Responses pass through the attribute filter since callers are guests.
func RegisterAuth(e *echo.Echo, a *handler.AuthHandler, d Deps) {
	g := e.Group("/v1/auth", middleware.HideBackendOnly(d.Visibility, d.Log))
	limit := d.throttled()
	g.POST("/register", a.Register, limit...)
	g.POST("/login", a.Login, limit...)
	g.POST("/refresh", a.Refresh)
	g.POST("/activate", a.Activate, limit...)
	g.POST("/activate/:id", a.ActivateByID, limit...)
	g.POST("/confirmation/resend", a.ResendConfirmation, limit...)
	g.POST("/password/forgot", a.ForgotPassword, limit...)
	g.GET("/password/reset/:id", a.ValidateResetToken, limit...)
	g.POST("/password/reset", a.ResetPassword, limit...)

	// Logout only needs a valid token; an already terminated session must
	// still be able to drop its refresh token.
	g.POST("/logout", a.Logout, middleware.JWTAuth(d.JWTSecret))
}

// RegisterAccount registers the caller's own account endpoints under /v1.
func RegisterAccount(e *echo.Echo, h *handler.AccountHandler, d Deps) {
	g := e.Group("/v1", d.protected(model.RoleCustomer, model.RoleAdmin, model.RoleIntegration)...)
	g.GET("/me", h.Me)
	g.PUT("/me", h.UpdateMe)
}

// RegisterAdmin registers account management endpoints for administrators
// and integrations under /v1/admin.
func RegisterAdmin(e *echo.Echo, h *handler.AccountHandler, d Deps) {
	g := e.Group("/v1/admin", d.protected(model.RoleAdmin, model.RoleIntegration)...)
	g.GET("/accounts", h.List)
	g.GET("/accounts/:ref", h.Get)
	g.PUT("/accounts/:ref", h.Update)
	g.POST("/accounts/mass-disable", h.MassDisable)
	g.POST("/accounts/:ref/impersonate", h.Impersonate)
}
