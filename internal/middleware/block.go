package middleware

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/obkin/biz-crm-server-sub000/internal/repository"
)

// BlockGuard runs after authentication. It is read-only: a lapsed block
// with a stale is_blocked flag lets the request through, and clearing the
// flag is left to the sweeper so block state has a single writer.
type BlockGuard struct {
	Users  *repository.UserRepo
	Blocks *repository.BlockRepo
	Now    func() time.Time
}

func (g *BlockGuard) Enforce(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		userID, ok := UserIDFromContext(c)
		if !ok {
			return echo.NewHTTPError(http.StatusUnauthorized, "token missing")
		}

		ctx := c.Request().Context()
		user, err := g.Users.GetUserByID(ctx, userID)
		if err != nil {
			return echo.NewHTTPError(http.StatusUnauthorized, "invalid token")
		}
		if !user.IsBlocked {
			return next(c)
		}

		enforceable, err := g.Blocks.HasEnforceableBlock(ctx, userID, g.now())
		if err != nil {
			return echo.NewHTTPError(http.StatusInternalServerError, "block check failed")
		}
		if enforceable {
			return echo.NewHTTPError(http.StatusForbidden, "account blocked")
		}
		return next(c)
	}
}

func (g *BlockGuard) now() time.Time {
	if g.Now != nil {
		return g.Now()
	}
	return time.Now()
}
