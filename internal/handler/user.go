package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/auth-token-service/internal/service"
)

// UserHandler exposes the account-admin endpoints. List and Delete sit
// behind the access-token middleware; Create is open so accounts can be
// registered before any token exists.
type UserHandler struct {
	Auth *service.AuthService
}

func NewUserHandler(auth *service.AuthService) *UserHandler {
	return &UserHandler{Auth: auth}
}

type createUserReq struct {
	Login    string          `json:"login"`
	Password string          `json:"password"`
	Metadata json.RawMessage `json:"metadata"`
}

// Create registers a new account.
func (h *UserHandler) Create(c echo.Context) error {
	var req createUserReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	req.Login = strings.TrimSpace(req.Login)

	ctx, cancel := reqCtx(c)
	defer cancel()

	u, err := h.Auth.CreateUser(ctx, req.Login, req.Password, req.Metadata)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrMissingFields):
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "missing required fields"})
		case errors.Is(err, service.ErrLoginExists):
			return c.JSON(http.StatusConflict, echo.Map{"error": "login already exists"})
		default:
			c.Logger().Errorf("create user: %v", err)
			return c.JSON(http.StatusInternalServerError, echo.Map{"error": "create user failed"})
		}
	}
	return c.JSON(http.StatusCreated, echo.Map{"user": u})
}

// List returns every account, sans credential hashes.
func (h *UserHandler) List(c echo.Context) error {
	ctx, cancel := reqCtx(c)
	defer cancel()

	users, err := h.Auth.ListUsers(ctx)
	if err != nil {
		c.Logger().Errorf("list users: %v", err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "list users failed"})
	}
	return c.JSON(http.StatusOK, echo.Map{"users": users})
}

// Delete removes an account and cascades the deletion to its refresh
// tokens, so no orphaned session survives.
func (h *UserHandler) Delete(c echo.Context) error {
	id := c.Param("id")
	if id == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "missing user id"})
	}

	ctx, cancel := reqCtx(c)
	defer cancel()

	if err := h.Auth.DeleteUser(ctx, id); err != nil {
		switch {
		case errors.Is(err, service.ErrUserNotFound):
			return c.JSON(http.StatusNotFound, echo.Map{"error": "user not found"})
		default:
			c.Logger().Errorf("delete user: %v", err)
			return c.JSON(http.StatusInternalServerError, echo.Map{"error": "delete user failed"})
		}
	}
	return c.JSON(http.StatusOK, echo.Map{"message": "user deleted"})
}
