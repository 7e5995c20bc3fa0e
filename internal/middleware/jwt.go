package middleware // package middleware contains reusable HTTP middleware functions

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/auth-token-service/internal/utils"
)

// JWTAuth returns an Echo middleware that validates an access token and
// injects the decoded identity into the request context. The token is taken
// from the access_token cookie the service itself sets, falling back to an
// Authorization bearer header for non-browser clients. Handlers behind this
// middleware read `c.Get("user_id")` and `c.Get("login")`.
func JWTAuth(accessSecret string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			raw := AccessTokenFrom(c)
			if raw == "" {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "missing access token"})
			}
			claims, err := utils.VerifyToken(raw, accessSecret)
			if err != nil {
				// Expired and invalid are both 401 here: access tokens are
				// not recovered, the client must call refresh.
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid access token"})
			}
			c.Set("user_id", claims.UserID)
			c.Set("login", claims.Login)
			return next(c)
		}
	}
}

// AccessTokenFrom extracts the raw access token from the cookie or the
// Authorization header. Empty string when neither is present.
func AccessTokenFrom(c echo.Context) string {
	if ck, err := c.Cookie("access_token"); err == nil && ck.Value != "" {
		return ck.Value
	}
	auth := c.Request().Header.Get("Authorization")
	if strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimPrefix(auth, "Bearer ")
	}
	return ""
}
