package handlers

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/obkin/biz-crm-server-sub000/internal/middleware"
)

type UserHandler struct{}

func (h *UserHandler) Me(c echo.Context) error {
	userID, ok := middleware.UserIDFromContext(c)
	if !ok {
		return echo.NewHTTPError(http.StatusUnauthorized, "token missing")
	}
	return c.JSON(http.StatusOK, echo.Map{
		"id":    userID,
		"email": middleware.EmailFromContext(c),
		"roles": middleware.RolesFromContext(c),
	})
}
