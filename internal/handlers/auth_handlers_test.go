package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/obkin/biz-crm-server-sub000/internal/events"
	"github.com/obkin/biz-crm-server-sub000/internal/handlers"
	"github.com/obkin/biz-crm-server-sub000/internal/hash"
	"github.com/obkin/biz-crm-server-sub000/internal/middleware"
	"github.com/obkin/biz-crm-server-sub000/internal/models"
	"github.com/obkin/biz-crm-server-sub000/internal/repository"
	"github.com/obkin/biz-crm-server-sub000/internal/service"
	"github.com/obkin/biz-crm-server-sub000/internal/tokens"
	httpserver "github.com/obkin/biz-crm-server-sub000/internal/transport/http"
)

var testSecret = []byte("test-jwt-secret")

type testEnv struct {
	T            *testing.T
	E            *echo.Echo
	DB           *gorm.DB
	Codec        *tokens.Codec
	ExpiredCodec *tokens.Codec
	Sessions     *service.SessionService
	Credentials  *repository.CredentialRepo
	Publisher    *events.StubPublisher
}

func newTestEnv(t *testing.T) *testEnv {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.User{}, &models.AccessToken{}, &models.RefreshToken{}, &models.BlockRecord{}))

	userRepo := &repository.UserRepo{DB: db}
	credentialRepo := &repository.CredentialRepo{DB: db}
	blockRepo := &repository.BlockRepo{DB: db}

	codec := tokens.NewCodec(testSecret, 15*time.Minute, 30*24*time.Hour)
	publisher := &events.StubPublisher{}
	sessions := service.NewSessionService(db, userRepo, credentialRepo, codec, publisher)

	e := echo.New()
	httpserver.Register(e, &httpserver.Deps{
		AuthHandler:  &handlers.AuthHandler{Sessions: sessions, Users: userRepo, Publisher: publisher},
		UserHandler:  &handlers.UserHandler{},
		BlockHandler: &handlers.BlockHandler{Users: userRepo, Blocks: blockRepo},
		AuthGuard:    &middleware.AuthGuard{Codec: codec, Sessions: sessions},
		BlockGuard:   &middleware.BlockGuard{Users: userRepo, Blocks: blockRepo},
	})

	return &testEnv{
		T:            t,
		E:            e,
		DB:           db,
		Codec:        codec,
		ExpiredCodec: tokens.NewCodec(testSecret, -time.Minute, 30*24*time.Hour),
		Sessions:     sessions,
		Credentials:  credentialRepo,
		Publisher:    publisher,
	}
}

func (env *testEnv) createUser(email, password string, roles ...string) *models.User {
	env.T.Helper()
	pwHash, err := hash.HashPassword(password)
	require.NoError(env.T, err)
	if len(roles) == 0 {
		roles = []string{"user"}
	}
	user := models.User{Email: email, PasswordHash: pwHash, Roles: roles}
	require.NoError(env.T, env.DB.Create(&user).Error)
	return &user
}

func (env *testEnv) request(method, path, token string, payload interface{}) *httptest.ResponseRecorder {
	env.T.Helper()
	var body *bytes.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		require.NoError(env.T, err)
		body = bytes.NewReader(data)
	} else {
		body = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, body)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	if token != "" {
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	env.E.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var data map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &data))
	return data
}

func TestRegister(t *testing.T) {
	env := newTestEnv(t)

	rec := env.request(http.MethodPost, "/api/v1/register", "", map[string]string{
		"email": "new@x.com", "password": "secret123",
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	var user models.User
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &user))
	assert.Equal(t, "new@x.com", user.Email)
	assert.Equal(t, []string{"user"}, user.Roles)
	assert.NotZero(t, user.ID)

	rec = env.request(http.MethodPost, "/api/v1/register", "", map[string]string{
		"email": "new@x.com", "password": "other",
	})
	assert.Equal(t, http.StatusConflict, rec.Code)

	published := env.Publisher.Events()
	require.Len(t, published, 1)
	assert.Equal(t, events.TypeUserRegistered, published[0].Event.(events.SessionEvent).Type)
}

func TestLoginAndAuthenticatedRequest(t *testing.T) {
	env := newTestEnv(t)
	user := env.createUser("a@x.com", "secret123")

	rec := env.request(http.MethodPost, "/api/v1/login", "", map[string]string{
		"email": "a@x.com", "password": "secret123",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	data := decodeBody(t, rec)
	access, _ := data["access_token"].(string)
	refresh, _ := data["refresh_token"].(string)
	require.NotEmpty(t, access)
	require.NotEmpty(t, refresh)

	rec = env.request(http.MethodGet, "/api/v1/users/me", access, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	me := decodeBody(t, rec)
	assert.Equal(t, float64(user.ID), me["id"])
	assert.Equal(t, "a@x.com", me["email"])
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	env := newTestEnv(t)
	env.createUser("a@x.com", "secret123")

	rec := env.request(http.MethodPost, "/api/v1/login", "", map[string]string{
		"email": "a@x.com", "password": "wrong",
	})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestExpiredAccessTokenIsTransparentlyRefreshed(t *testing.T) {
	env := newTestEnv(t)
	user := env.createUser("a@x.com", "secret123")

	rec := env.request(http.MethodPost, "/api/v1/login", "", map[string]string{
		"email": "a@x.com", "password": "secret123",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	originallyStored, err := env.Credentials.FindAccessTokenByUserID(context.Background(), user.ID)
	require.NoError(t, err)

	// Past the access TTL the client still holds the old token; the
	// refresh relationship makes the request succeed anyway.
	expired, _, err := env.ExpiredCodec.IssueAccessToken(user.ID, user.Email, user.Roles)
	require.NoError(t, err)

	rec = env.request(http.MethodGet, "/api/v1/users/me", expired, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	newAccess := rec.Header().Get(middleware.HeaderNewAccessToken)
	require.NotEmpty(t, newAccess)

	nowStored, err := env.Credentials.FindAccessTokenByUserID(context.Background(), user.ID)
	require.NoError(t, err)
	assert.NotEqual(t, originallyStored.Token, nowStored.Token)
	assert.Equal(t, newAccess, nowStored.Token)
}

func TestRefreshEndpoint(t *testing.T) {
	env := newTestEnv(t)
	env.createUser("a@x.com", "secret123")

	rec := env.request(http.MethodPost, "/api/v1/login", "", map[string]string{
		"email": "a@x.com", "password": "secret123",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	refresh := decodeBody(t, rec)["refresh_token"].(string)

	rec = env.request(http.MethodPost, "/api/v1/refresh", "", map[string]string{
		"refresh_token": refresh,
	})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, decodeBody(t, rec)["access_token"])

	rec = env.request(http.MethodPost, "/api/v1/refresh", "", map[string]string{
		"refresh_token": "garbage",
	})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestLogoutTwiceReportsAlreadyLoggedOut(t *testing.T) {
	env := newTestEnv(t)
	env.createUser("a@x.com", "secret123")

	rec := env.request(http.MethodPost, "/api/v1/login", "", map[string]string{
		"email": "a@x.com", "password": "secret123",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	access := decodeBody(t, rec)["access_token"].(string)

	rec = env.request(http.MethodPost, "/api/v1/logout", access, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	// The access token itself is still unexpired, but no token rows
	// remain: a typed condition, not a generic 500.
	rec = env.request(http.MethodPost, "/api/v1/logout", access, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAdminBlockFlow(t *testing.T) {
	env := newTestEnv(t)
	admin := env.createUser("admin@x.com", "secret123", "user", "admin")
	target := env.createUser("t@x.com", "secret123")

	adminToken, _, err := env.Codec.IssueAccessToken(admin.ID, admin.Email, admin.Roles)
	require.NoError(t, err)
	targetToken, _, err := env.Codec.IssueAccessToken(target.ID, target.Email, target.Roles)
	require.NoError(t, err)

	rec := env.request(http.MethodPost, fmt.Sprintf("/api/v1/admin/users/%d/block", target.ID), adminToken, map[string]interface{}{
		"reason": "abuse", "notes": "reported twice", "duration_minutes": 30,
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = env.request(http.MethodGet, "/api/v1/users/me", targetToken, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = env.request(http.MethodPost, fmt.Sprintf("/api/v1/admin/users/%d/unblock", target.ID), adminToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.request(http.MethodGet, "/api/v1/users/me", targetToken, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAdminRoutesRequireAdminRole(t *testing.T) {
	env := newTestEnv(t)
	user := env.createUser("a@x.com", "secret123")

	token, _, err := env.Codec.IssueAccessToken(user.ID, user.Email, user.Roles)
	require.NoError(t, err)

	rec := env.request(http.MethodPost, fmt.Sprintf("/api/v1/admin/users/%d/block", user.ID), token, map[string]interface{}{
		"reason": "abuse", "duration_minutes": 30,
	})
	assert.Equal(t, http.StatusForbidden, rec.Code)
}
