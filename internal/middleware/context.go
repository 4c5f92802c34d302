package middleware

import (
	"github.com/labstack/echo/v4"

	"github.com/obkin/biz-crm-server-sub000/internal/tokens"
)

const (
	ctxUserID = "userID"
	ctxEmail  = "email"
	ctxRoles  = "roles"
)

func setUserContext(c echo.Context, userID uint, claims *tokens.AccessClaims) {
	c.Set(ctxUserID, userID)
	c.Set(ctxEmail, claims.Email)
	c.Set(ctxRoles, claims.Roles)
}

func UserIDFromContext(c echo.Context) (uint, bool) {
	id, ok := c.Get(ctxUserID).(uint)
	return id, ok
}

func EmailFromContext(c echo.Context) string {
	email, _ := c.Get(ctxEmail).(string)
	return email
}

func RolesFromContext(c echo.Context) []string {
	roles, _ := c.Get(ctxRoles).([]string)
	return roles
}
