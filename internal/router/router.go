package router // package router defines how HTTP routes are registered for the API

import (
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"

	"github.com/iliyamo/auth-token-service/internal/config"
	"github.com/iliyamo/auth-token-service/internal/handler"
	"github.com/iliyamo/auth-token-service/internal/middleware"
)

// RegisterRoutes registers routes that require no authentication. Currently
// it exposes only the health check used by load balancers.
func RegisterRoutes(e *echo.Echo) {
	e.GET("/healthz", handler.Health)
}

// RegisterAuth wires the token lifecycle endpoints under /v1/auth. The whole
// group sits behind the Redis rate limiter: login and refresh are the
// endpoints worth brute-forcing.
func RegisterAuth(e *echo.Echo, a *handler.AuthHandler, rl config.RateLimitConfig, rdb *redis.Client) {
	g := e.Group("/v1/auth")
	g.Use(middleware.RateLimit(rl, rdb))
	g.POST("/login", a.Login)
	g.POST("/refresh", a.Refresh)
	g.POST("/logout", a.Logout)
	g.GET("/authenticate", a.Authenticate)
}

// RegisterUsers wires the account-admin endpoints. Creation is open (there
// is no token before the first account); listing and deletion require a
// valid access token.
func RegisterUsers(e *echo.Echo, u *handler.UserHandler, accessSecret string) {
	e.POST("/v1/users", u.Create)

	g := e.Group("/v1/users")
	g.Use(middleware.JWTAuth(accessSecret))
	g.GET("", u.List)
	g.DELETE("/:id", u.Delete)
}
