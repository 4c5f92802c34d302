package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/obkin/biz-crm-server-sub000/internal/events"
	"github.com/obkin/biz-crm-server-sub000/internal/hash"
	"github.com/obkin/biz-crm-server-sub000/internal/logging"
	"github.com/obkin/biz-crm-server-sub000/internal/models"
	"github.com/obkin/biz-crm-server-sub000/internal/repository"
	"github.com/obkin/biz-crm-server-sub000/internal/tokens"
)

var (
	ErrUnauthorized     = errors.New("unauthorized")
	ErrAlreadyLoggedOut = errors.New("already logged out")
)

// SessionService owns the LoggedOut/LoggedIn state machine per user,
// persisted implicitly as presence or absence of token rows.
type SessionService struct {
	DB          *gorm.DB
	Users       *repository.UserRepo
	Credentials *repository.CredentialRepo
	Codec       *tokens.Codec
	Publisher   events.Publisher

	locks userLocks
	now   func() time.Time
}

func NewSessionService(db *gorm.DB, users *repository.UserRepo, credentials *repository.CredentialRepo, codec *tokens.Codec, publisher events.Publisher) *SessionService {
	return &SessionService{
		DB:          db,
		Users:       users,
		Credentials: credentials,
		Codec:       codec,
		Publisher:   publisher,
		now:         time.Now,
	}
}

type LoginResult struct {
	AccessToken      string
	RefreshToken     string
	AccessExpiresAt  time.Time
	RefreshExpiresAt time.Time
	User             *models.User
}

func (s *SessionService) Login(ctx context.Context, email, password, ip, userAgent string) (*LoginResult, error) {
	l := logging.FromContext(ctx).With("svc", "session.login")

	user, err := s.Users.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrUnauthorized
		}
		return nil, err
	}
	if !hash.CheckPassword(user.PasswordHash, password) {
		return nil, ErrUnauthorized
	}

	access, accessExp, err := s.Codec.IssueAccessToken(user.ID, user.Email, user.Roles)
	if err != nil {
		return nil, err
	}
	refresh, refreshExp, err := s.Codec.IssueRefreshToken(user.ID)
	if err != nil {
		return nil, err
	}

	unlock := s.locks.lock(user.ID)
	defer unlock()

	// Both saves share one outer transaction so a failed refresh save
	// cannot leave a half-logged-in user behind.
	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		cr := s.Credentials.WithTx(tx)
		if err := cr.SaveAccessToken(ctx, user.ID, access, accessExp); err != nil {
			return err
		}
		return cr.SaveRefreshToken(ctx, user.ID, refresh, refreshExp, ip, userAgent)
	})
	if err != nil {
		return nil, fmt.Errorf("persist session tokens: %w", err)
	}

	s.emit(ctx, l, events.TypeLoggedIn, user.ID)

	return &LoginResult{
		AccessToken:      access,
		RefreshToken:     refresh,
		AccessExpiresAt:  accessExp,
		RefreshExpiresAt: refreshExp,
		User:             user,
	}, nil
}

// Logout deletes both live tokens. When neither delete found a row the
// caller gets ErrAlreadyLoggedOut instead of a generic failure; a
// half-present pair is still cleared before the condition is reported.
func (s *SessionService) Logout(ctx context.Context, userID uint) error {
	l := logging.FromContext(ctx).With("svc", "session.logout")

	unlock := s.locks.lock(userID)
	defer unlock()

	var missing int
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		cr := s.Credentials.WithTx(tx)
		if err := cr.DeleteAccessToken(ctx, userID); err != nil {
			if !errors.Is(err, repository.ErrNotFound) {
				return err
			}
			missing++
		}
		if err := cr.DeleteRefreshToken(ctx, userID); err != nil {
			if !errors.Is(err, repository.ErrNotFound) {
				return err
			}
			missing++
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("delete session tokens: %w", err)
	}
	if missing == 2 {
		return ErrAlreadyLoggedOut
	}

	s.emit(ctx, l, events.TypeLoggedOut, userID)
	return nil
}

// RefreshAccessToken validates the presented refresh token against the
// stored one and mints a replacement access token. Byte-equality with the
// stored row defends against replay of a superseded refresh token.
func (s *SessionService) RefreshAccessToken(ctx context.Context, presented string) (string, time.Time, error) {
	claims, err := s.Codec.VerifyRefreshToken(presented)
	if err != nil {
		return "", time.Time{}, ErrUnauthorized
	}
	userID, err := tokens.ParseSubject(claims.Subject)
	if err != nil {
		return "", time.Time{}, ErrUnauthorized
	}

	unlock := s.locks.lock(userID)
	defer unlock()

	stored, err := s.Credentials.FindRefreshTokenByUserID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return "", time.Time{}, ErrUnauthorized
		}
		return "", time.Time{}, err
	}
	if stored.Token != presented {
		return "", time.Time{}, ErrUnauthorized
	}

	user, err := s.Users.GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return "", time.Time{}, ErrUnauthorized
		}
		return "", time.Time{}, err
	}

	access, accessExp, err := s.Codec.IssueAccessToken(user.ID, user.Email, user.Roles)
	if err != nil {
		return "", time.Time{}, err
	}
	if err := s.Credentials.SaveAccessToken(ctx, user.ID, access, accessExp); err != nil {
		return "", time.Time{}, fmt.Errorf("persist refreshed access token: %w", err)
	}

	return access, accessExp, nil
}

// StoredRefreshToken is the guard's lookup on the expired-access branch.
func (s *SessionService) StoredRefreshToken(ctx context.Context, userID uint) (*models.RefreshToken, error) {
	return s.Credentials.FindRefreshTokenByUserID(ctx, userID)
}

func (s *SessionService) emit(ctx context.Context, l *slog.Logger, eventType string, userID uint) {
	if s.Publisher == nil {
		return
	}
	event := events.SessionEvent{
		ID:     uuid.NewString(),
		Type:   eventType,
		UserID: userID,
		At:     s.now().UTC(),
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := s.Publisher.Publish(ctx, events.TopicSessionEvents, fmt.Sprint(userID), event); err != nil {
		l.Error("event publish failed", "type", eventType, "error", err)
	}
}
