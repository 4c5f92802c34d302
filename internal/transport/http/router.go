package httpserver

import (
	"github.com/labstack/echo/v4"

	"github.com/obkin/biz-crm-server-sub000/internal/handlers"
	"github.com/obkin/biz-crm-server-sub000/internal/middleware"
)

type Deps struct {
	AuthHandler  *handlers.AuthHandler
	UserHandler  *handlers.UserHandler
	BlockHandler *handlers.BlockHandler
	AuthGuard    *middleware.AuthGuard
	BlockGuard   *middleware.BlockGuard
}

func Register(e *echo.Echo, d *Deps) {
	e.GET("/health/live", func(c echo.Context) error { return c.NoContent(200) })
	e.GET("/health/ready", func(c echo.Context) error { return c.NoContent(200) })

	v1 := e.Group("/api/v1")

	v1.POST("/register", d.AuthHandler.Register)
	v1.POST("/login", d.AuthHandler.Login)
	v1.POST("/refresh", d.AuthHandler.Refresh)

	authed := v1.Group("", d.AuthGuard.RequireAuth, d.BlockGuard.Enforce)

	authed.POST("/logout", d.AuthHandler.Logout)
	authed.GET("/users/me", d.UserHandler.Me)

	admin := authed.Group("/admin", d.AuthGuard.RequireRoles("admin"))

	admin.POST("/users/:id/block", d.BlockHandler.Block)
	admin.POST("/users/:id/unblock", d.BlockHandler.Unblock)
}
