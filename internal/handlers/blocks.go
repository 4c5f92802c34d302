package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/obkin/biz-crm-server-sub000/internal/middleware"
	"github.com/obkin/biz-crm-server-sub000/internal/models"
	"github.com/obkin/biz-crm-server-sub000/internal/repository"
)

// BlockHandler carries the administrative block and unblock actions.
// Block records are append-only; an explicit unblock deactivates them but
// never deletes the audit trail.
type BlockHandler struct {
	Users  *repository.UserRepo
	Blocks *repository.BlockRepo
	Now    func() time.Time
}

type blockRequest struct {
	Reason          string `json:"reason"`
	Notes           string `json:"notes"`
	DurationMinutes uint   `json:"duration_minutes"`
}

func (h *BlockHandler) Block(c echo.Context) error {
	targetID, err := parseUserID(c)
	if err != nil {
		return err
	}
	adminID, ok := middleware.UserIDFromContext(c)
	if !ok {
		return echo.NewHTTPError(http.StatusUnauthorized, "token missing")
	}

	var req blockRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.Reason == "" || req.DurationMinutes == 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "reason and duration_minutes are required")
	}

	ctx := c.Request().Context()
	if _, err := h.Users.GetUserByID(ctx, targetID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "user not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, "user lookup failed")
	}

	now := h.now()
	record := models.BlockRecord{
		UserID:               targetID,
		AdminID:              adminID,
		Reason:               req.Reason,
		Notes:                req.Notes,
		IsActive:             true,
		BlockedAt:            now,
		BlockDurationMinutes: req.DurationMinutes,
		UnblockAt:            now.Add(time.Duration(req.DurationMinutes) * time.Minute),
	}
	if err := h.Blocks.Create(ctx, &record); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "cannot create block record")
	}
	if err := h.Users.SetBlocked(ctx, targetID, true); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "cannot set block flag")
	}

	return c.JSON(http.StatusCreated, record)
}

func (h *BlockHandler) Unblock(c echo.Context) error {
	targetID, err := parseUserID(c)
	if err != nil {
		return err
	}

	ctx := c.Request().Context()
	if _, err := h.Users.GetUserByID(ctx, targetID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "user not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, "user lookup failed")
	}

	if err := h.Blocks.DeactivateAllForUser(ctx, targetID); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "cannot deactivate block records")
	}
	if err := h.Users.SetBlocked(ctx, targetID, false); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "cannot clear block flag")
	}

	return c.JSON(http.StatusOK, echo.Map{"message": "user unblocked"})
}

func (h *BlockHandler) now() time.Time {
	if h.Now != nil {
		return h.Now()
	}
	return time.Now()
}

func parseUserID(c echo.Context) (uint, error) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		return 0, echo.NewHTTPError(http.StatusBadRequest, "invalid user id")
	}
	return uint(id), nil
}
