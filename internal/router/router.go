package router // route registration for the API

import (
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"

	"github.com/iliyamo/drive-dataroom/internal/config"
	"github.com/iliyamo/drive-dataroom/internal/handler"
	"github.com/iliyamo/drive-dataroom/internal/middleware"
)

// RegisterRoutes registers routes that do not require authentication.
// Currently it exposes only a health check.
func RegisterRoutes(e *echo.Echo) {
	e.GET("/healthz", handler.Health)
}

// RegisterAuth wires the OAuth handshake and session endpoints.  The
// handshake endpoints (login, callback, exchange) cannot require a
// session — they exist to create one — but they are rate limited since
// they drive outbound calls to Google.
func RegisterAuth(e *echo.Echo, a *handler.AuthHandler, cfg config.Config, rlCfg config.RateLimitConfig, rdb *redis.Client) {
	limited := middleware.RateLimit(rlCfg, rdb)

	g := e.Group("/api/auth")
	g.GET("/login", a.Login, limited)
	g.GET("/callback", a.Callback, limited)
	g.POST("/exchange", a.Exchange, limited)
	// Status reports rather than enforces authentication, so it parses
	// the session opportunistically.
	g.GET("/status", a.Status, middleware.OptionalSession(cfg.JWTSecret))

	auth := e.Group("/api/auth")
	auth.Use(middleware.SessionAuth(cfg.JWTSecret))
	auth.GET("/me", a.Me)
	auth.POST("/logout", a.Logout)
	auth.DELETE("/account", a.DeleteAccount)
}

// RegisterFiles wires the file endpoints.  Everything here requires a
// session; import additionally shares the rate limiter since each call
// can move a whole file across the network.
func RegisterFiles(e *echo.Echo, f *handler.FilesHandler, cfg config.Config, rlCfg config.RateLimitConfig, rdb *redis.Client) {
	g := e.Group("/api/files")
	g.Use(middleware.SessionAuth(cfg.JWTSecret))

	g.GET("", f.List)
	g.GET("/drive", f.ListDrive)
	g.POST("/import", f.Import, middleware.RateLimit(rlCfg, rdb))
	g.GET("/:id", f.Get)
	g.GET("/:id/view", f.View)
	g.GET("/:id/download", f.Download)
	g.DELETE("/:id", f.Delete)
}
