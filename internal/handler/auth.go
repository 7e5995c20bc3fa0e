package handler

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/auth-token-service/internal/config"
	"github.com/iliyamo/auth-token-service/internal/middleware"
	"github.com/iliyamo/auth-token-service/internal/service"
)

// AuthHandler bundles dependencies for the auth endpoints and owns the
// cookie semantics: both tokens travel as httpOnly, Secure, SameSite=None
// cookies scoped to the configured domain, and also appear in the JSON body
// for non-browser clients.
type AuthHandler struct {
	Cfg  config.Config
	Auth *service.AuthService
}

func NewAuthHandler(cfg config.Config, auth *service.AuthService) *AuthHandler {
	return &AuthHandler{Cfg: cfg, Auth: auth}
}

// ----- DTOs -----

type loginReq struct {
	Login    string `json:"login"`
	Password string `json:"password"`
}
type refreshReq struct {
	RefreshToken string `json:"refresh_token"`
}

type tokenPart struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken,omitempty"`
}
type authResp struct {
	User  service.PublicUser `json:"user"`
	Token tokenPart          `json:"token"`
}

// Login verifies credentials and issues a new token pair. A refresh token
// already held by the caller (cookie) is retired as part of the flow.
func (h *AuthHandler) Login(c echo.Context) error {
	var req loginReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}

	ctx, cancel := reqCtx(c)
	defer cancel()

	res, err := h.Auth.Login(ctx, req.Login, req.Password, cookieValue(c, "refresh_token"))
	if err != nil {
		switch {
		case errors.Is(err, service.ErrMissingFields):
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "missing required fields"})
		case errors.Is(err, service.ErrInvalidCredentials):
			return c.JSON(http.StatusNotFound, echo.Map{"error": "user not found or invalid credentials"})
		default:
			c.Logger().Errorf("login: %v", err)
			return c.JSON(http.StatusInternalServerError, echo.Map{"error": "login failed"})
		}
	}

	h.setTokenCookie(c, "access_token", res.AccessToken)
	h.setTokenCookie(c, "refresh_token", res.RefreshToken)
	return c.JSON(http.StatusOK, authResp{
		User:  res.User,
		Token: tokenPart{AccessToken: res.AccessToken, RefreshToken: res.RefreshToken},
	})
}

// Authenticate verifies the presented access token and echoes its payload.
// No store interaction; expired and invalid both come back as 401.
func (h *AuthHandler) Authenticate(c echo.Context) error {
	raw := middleware.AccessTokenFrom(c)
	if raw == "" {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "access token not found"})
	}
	claims, err := h.Auth.Authenticate(raw)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid access token"})
	}
	return c.JSON(http.StatusOK, echo.Map{
		"user": service.PublicUser{ID: claims.UserID, Login: claims.Login, Metadata: claims.Metadata},
	})
}

// Refresh exchanges a refresh token for a new access token, rotating the
// refresh token when its own expiry forced the renewal. A verifiable token
// unknown to the store triggers a session wipe: cookies are cleared and a
// distinct error code is returned.
func (h *AuthHandler) Refresh(c echo.Context) error {
	raw := h.refreshTokenFrom(c)
	if raw == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "missing refresh token"})
	}

	ctx, cancel := reqCtx(c)
	defer cancel()

	res, err := h.Auth.Refresh(ctx, raw)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrForbidden):
			return c.JSON(http.StatusForbidden, echo.Map{"error": "invalid refresh token"})
		case errors.Is(err, service.ErrSessionRevoked):
			h.clearTokenCookies(c)
			return c.JSON(http.StatusUnauthorized, echo.Map{
				"error":   "session_revoked",
				"message": "refresh token not recognized; all sessions for this user have been revoked",
			})
		case errors.Is(err, service.ErrRotationConflict):
			return c.JSON(http.StatusConflict, echo.Map{"error": "refresh token already rotated"})
		default:
			c.Logger().Errorf("refresh: %v", err)
			return c.JSON(http.StatusInternalServerError, echo.Map{"error": "refresh failed"})
		}
	}

	h.setTokenCookie(c, "access_token", res.AccessToken)
	if res.Rotated {
		h.setTokenCookie(c, "refresh_token", res.RefreshToken)
	}
	return c.JSON(http.StatusOK, authResp{
		User:  res.User,
		Token: tokenPart{AccessToken: res.AccessToken, RefreshToken: res.RefreshToken},
	})
}

// Logout deletes the presented refresh token's record and clears both token
// cookies. Only a missing token in the request is an error; a missing store
// record is not.
func (h *AuthHandler) Logout(c echo.Context) error {
	raw := h.refreshTokenFrom(c)
	if raw == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "missing refresh token"})
	}

	ctx, cancel := reqCtx(c)
	defer cancel()

	if err := h.Auth.Logout(ctx, raw); err != nil {
		c.Logger().Errorf("logout: %v", err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "logout failed"})
	}
	h.clearTokenCookies(c)
	return c.JSON(http.StatusOK, echo.Map{"message": "logged out"})
}

// refreshTokenFrom reads the refresh token from the cookie first and falls
// back to a JSON body for non-browser clients.
func (h *AuthHandler) refreshTokenFrom(c echo.Context) string {
	if v := cookieValue(c, "refresh_token"); v != "" {
		return v
	}
	var req refreshReq
	_ = c.Bind(&req)
	return strings.TrimSpace(req.RefreshToken)
}

func (h *AuthHandler) setTokenCookie(c echo.Context, name, value string) {
	c.SetCookie(&http.Cookie{
		Name:     name,
		Value:    value,
		Domain:   h.Cfg.CookieDomain,
		Path:     "/",
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteNoneMode,
	})
}

func (h *AuthHandler) clearTokenCookies(c echo.Context) {
	for _, name := range []string{"access_token", "refresh_token"} {
		c.SetCookie(&http.Cookie{
			Name:     name,
			Value:    "",
			Domain:   h.Cfg.CookieDomain,
			Path:     "/",
			MaxAge:   -1,
			Expires:  time.Unix(0, 0),
			HttpOnly: true,
			Secure:   true,
			SameSite: http.SameSiteNoneMode,
		})
	}
}

func cookieValue(c echo.Context, name string) string {
	ck, err := c.Cookie(name)
	if err != nil || ck == nil {
		return ""
	}
	return ck.Value
}

func reqCtx(c echo.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.Request().Context(), 5*time.Second)
}
