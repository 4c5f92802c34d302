package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/obkin/biz-crm-server-sub000/internal/events"
	"github.com/obkin/biz-crm-server-sub000/internal/hash"
	"github.com/obkin/biz-crm-server-sub000/internal/middleware"
	"github.com/obkin/biz-crm-server-sub000/internal/models"
	"github.com/obkin/biz-crm-server-sub000/internal/repository"
	"github.com/obkin/biz-crm-server-sub000/internal/service"
)

type AuthHandler struct {
	Sessions  *service.SessionService
	Users     *repository.UserRepo
	Publisher events.Publisher
}

type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *AuthHandler) Register(c echo.Context) error {
	var req credentialsRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.Email == "" || req.Password == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "email and password are required")
	}

	pwHash, err := hash.HashPassword(req.Password)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "cannot hash password")
	}

	user := models.User{
		Email:        req.Email,
		PasswordHash: pwHash,
		Roles:        []string{"user"},
	}
	if err := h.Users.CreateUserIfNotExists(c.Request().Context(), &user); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return echo.NewHTTPError(http.StatusConflict, "user already exists")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, "cannot create user")
	}

	h.publish(c, events.TypeUserRegistered, user.ID)

	return c.JSON(http.StatusCreated, user)
}

func (h *AuthHandler) Login(c echo.Context) error {
	var req credentialsRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	result, err := h.Sessions.Login(
		c.Request().Context(),
		req.Email, req.Password,
		c.RealIP(), c.Request().UserAgent(),
	)
	if err != nil {
		if errors.Is(err, service.ErrUnauthorized) {
			return echo.NewHTTPError(http.StatusUnauthorized, "invalid email or password")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, "login failed")
	}

	return c.JSON(http.StatusOK, echo.Map{
		"access_token":       result.AccessToken,
		"refresh_token":      result.RefreshToken,
		"access_expires_at":  result.AccessExpiresAt,
		"refresh_expires_at": result.RefreshExpiresAt,
	})
}

func (h *AuthHandler) Logout(c echo.Context) error {
	userID, ok := middleware.UserIDFromContext(c)
	if !ok {
		return echo.NewHTTPError(http.StatusUnauthorized, "token missing")
	}

	if err := h.Sessions.Logout(c.Request().Context(), userID); err != nil {
		if errors.Is(err, service.ErrAlreadyLoggedOut) {
			return echo.NewHTTPError(http.StatusNotFound, "already logged out")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, "logout failed")
	}

	return c.JSON(http.StatusOK, echo.Map{"message": "logged out"})
}

func (h *AuthHandler) Refresh(c echo.Context) error {
	var req struct {
		RefreshToken string `json:"refresh_token"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	access, expiresAt, err := h.Sessions.RefreshAccessToken(c.Request().Context(), req.RefreshToken)
	if err != nil {
		if errors.Is(err, service.ErrUnauthorized) {
			return echo.NewHTTPError(http.StatusUnauthorized, "invalid refresh token")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, "refresh failed")
	}

	return c.JSON(http.StatusOK, echo.Map{
		"access_token":      access,
		"access_expires_at": expiresAt,
	})
}

func (h *AuthHandler) publish(c echo.Context, eventType string, userID uint) {
	if h.Publisher == nil {
		return
	}
	event := events.SessionEvent{
		ID:     uuid.NewString(),
		Type:   eventType,
		UserID: userID,
		At:     time.Now().UTC(),
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()
	if err := h.Publisher.Publish(ctx, events.TopicSessionEvents, fmt.Sprint(userID), event); err != nil {
		c.Logger().Errorf("event publish error: %v", err)
	}
}
