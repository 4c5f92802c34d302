package repository

import (
	"context"
	"time"

	"github.com/obkin/biz-crm-server-sub000/internal/models"
)

func (r *BlockRepo) Create(ctx context.Context, record *models.BlockRecord) error {
	return r.DB.WithContext(ctx).Create(record).Error
}

// HasEnforceableBlock reports whether the user holds at least one record
// that is still active and whose duration has not elapsed.
func (r *BlockRepo) HasEnforceableBlock(ctx context.Context, userID uint, now time.Time) (bool, error) {
	var count int64
	err := r.DB.WithContext(ctx).Model(&models.BlockRecord{}).
		Where("user_id = ? AND is_active = ? AND unblock_at > ?", userID, true, now).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// ExpiredActive returns records whose duration has elapsed but whose
// is_active flag has not been cleared yet.
func (r *BlockRepo) ExpiredActive(ctx context.Context, now time.Time) ([]models.BlockRecord, error) {
	var records []models.BlockRecord
	err := r.DB.WithContext(ctx).
		Where("is_active = ? AND unblock_at <= ?", true, now).
		Find(&records).Error
	if err != nil {
		return nil, err
	}
	return records, nil
}

// Deactivate flips one record to inactive. ErrNotFound means the record
// was already flipped by a concurrent actor.
func (r *BlockRepo) Deactivate(ctx context.Context, id uint) error {
	result := r.DB.WithContext(ctx).Model(&models.BlockRecord{}).
		Where("id = ? AND is_active = ?", id, true).
		Update("is_active", false)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *BlockRepo) CountActive(ctx context.Context, userID uint) (int64, error) {
	var count int64
	err := r.DB.WithContext(ctx).Model(&models.BlockRecord{}).
		Where("user_id = ? AND is_active = ?", userID, true).
		Count(&count).Error
	return count, err
}

func (r *BlockRepo) DeactivateAllForUser(ctx context.Context, userID uint) error {
	return r.DB.WithContext(ctx).Model(&models.BlockRecord{}).
		Where("user_id = ? AND is_active = ?", userID, true).
		Update("is_active", false).Error
}
