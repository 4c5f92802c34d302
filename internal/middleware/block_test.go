package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/obkin/biz-crm-server-sub000/internal/models"
	"github.com/obkin/biz-crm-server-sub000/internal/repository"
)

func newBlockGuardEnv(t *testing.T) (*guardEnv, *BlockGuard) {
	env := newGuardEnv(t)
	guard := &BlockGuard{
		Users:  &repository.UserRepo{DB: env.DB},
		Blocks: &repository.BlockRepo{DB: env.DB},
	}
	return env, guard
}

func (env *guardEnv) doBlocked(t *testing.T, guard *BlockGuard) error {
	t.Helper()
	access, _, err := env.Codec.IssueAccessToken(env.User.ID, env.User.Email, env.User.Roles)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodGet, "/users/me", nil)
	req.Header.Set(echo.HeaderAuthorization, "Bearer "+access)
	rec := httptest.NewRecorder()
	c := env.E.NewContext(req, rec)
	return env.Guard.RequireAuth(guard.Enforce(env.handler))(c)
}

func createBlock(t *testing.T, env *guardEnv, blockedAt time.Time, minutes uint) models.BlockRecord {
	t.Helper()
	record := models.BlockRecord{
		UserID:               env.User.ID,
		AdminID:              1,
		Reason:               "abuse",
		IsActive:             true,
		BlockedAt:            blockedAt,
		BlockDurationMinutes: minutes,
		UnblockAt:            blockedAt.Add(time.Duration(minutes) * time.Minute),
	}
	require.NoError(t, env.DB.Create(&record).Error)
	require.NoError(t, env.DB.Model(&models.User{}).Where("id = ?", env.User.ID).Update("is_blocked", true).Error)
	return record
}

func TestBlockGuard_UnblockedUserPasses(t *testing.T) {
	env, guard := newBlockGuardEnv(t)

	require.NoError(t, env.doBlocked(t, guard))
	assert.Equal(t, 1, env.HandlerCalls)
}

func TestBlockGuard_EnforceableBlockDenied(t *testing.T) {
	env, guard := newBlockGuardEnv(t)
	createBlock(t, env, time.Now(), 30)

	err := env.doBlocked(t, guard)
	requireHTTPError(t, err, http.StatusForbidden, "account blocked")
	assert.Zero(t, env.HandlerCalls)
}

func TestBlockGuard_LapsedBlockAllowedBeforeSweep(t *testing.T) {
	env, guard := newBlockGuardEnv(t)
	createBlock(t, env, time.Now(), 30)

	// Simulated clock: the duration has elapsed but the sweeper has not
	// run, so is_blocked and is_active are both still stale true.
	guard.Now = func() time.Time { return time.Now().Add(31 * time.Minute) }

	require.NoError(t, env.doBlocked(t, guard))
	assert.Equal(t, 1, env.HandlerCalls)

	// The guard is read-only: the stale state is untouched.
	var user models.User
	require.NoError(t, env.DB.First(&user, env.User.ID).Error)
	assert.True(t, user.IsBlocked)
	var active int64
	require.NoError(t, env.DB.Model(&models.BlockRecord{}).
		Where("user_id = ? AND is_active = ?", env.User.ID, true).Count(&active).Error)
	assert.Equal(t, int64(1), active)
}
