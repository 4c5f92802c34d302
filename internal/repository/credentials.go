package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/obkin/biz-crm-server-sub000/internal/models"
)

// SaveAccessToken replaces the user's live access token. Delete-then-insert
// runs inside one transaction so there is never a window with zero or two
// live rows for the user.
func (r *CredentialRepo) SaveAccessToken(ctx context.Context, userID uint, token string, expiresAt time.Time) error {
	return r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var stranger models.AccessToken
		err := tx.Where("token = ? AND user_id <> ?", token, userID).First(&stranger).Error
		if err == nil {
			return fmt.Errorf("access token string already held by user %d: %w", stranger.UserID, ErrConflict)
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		if err := tx.Where("user_id = ?", userID).Delete(&models.AccessToken{}).Error; err != nil {
			return err
		}
		return tx.Create(&models.AccessToken{
			UserID:    userID,
			Token:     token,
			ExpiresAt: expiresAt,
		}).Error
	})
}

func (r *CredentialRepo) SaveRefreshToken(ctx context.Context, userID uint, token string, expiresAt time.Time, ip, userAgent string) error {
	return r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var stranger models.RefreshToken
		err := tx.Where("token = ? AND user_id <> ?", token, userID).First(&stranger).Error
		if err == nil {
			return fmt.Errorf("refresh token string already held by user %d: %w", stranger.UserID, ErrConflict)
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		if err := tx.Where("user_id = ?", userID).Delete(&models.RefreshToken{}).Error; err != nil {
			return err
		}
		return tx.Create(&models.RefreshToken{
			UserID:    userID,
			Token:     token,
			ExpiresAt: expiresAt,
			IPAddress: ip,
			UserAgent: userAgent,
		}).Error
	})
}

func (r *CredentialRepo) DeleteAccessToken(ctx context.Context, userID uint) error {
	result := r.DB.WithContext(ctx).Where("user_id = ?", userID).Delete(&models.AccessToken{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *CredentialRepo) DeleteRefreshToken(ctx context.Context, userID uint) error {
	result := r.DB.WithContext(ctx).Where("user_id = ?", userID).Delete(&models.RefreshToken{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *CredentialRepo) FindAccessTokenByUserID(ctx context.Context, userID uint) (*models.AccessToken, error) {
	var token models.AccessToken
	if err := r.DB.WithContext(ctx).Where("user_id = ?", userID).First(&token).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &token, nil
}

func (r *CredentialRepo) FindRefreshTokenByUserID(ctx context.Context, userID uint) (*models.RefreshToken, error) {
	var token models.RefreshToken
	if err := r.DB.WithContext(ctx).Where("user_id = ?", userID).First(&token).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &token, nil
}
