package models

import (
	"time"
)

type User struct {
	ID           uint      `gorm:"primaryKey;autoIncrement"  json:"id"`
	Email        string    `gorm:"uniqueIndex;not null"      json:"email"`
	PasswordHash string    `gorm:"not null"                  json:"-"`
	Roles        []string  `gorm:"serializer:json;not null"  json:"roles"`
	IsBlocked    bool      `gorm:"default:false"             json:"is_blocked"`
	CreatedAt    time.Time `json:"created_at"`
}

type AccessToken struct {
	ID        uint      `gorm:"primaryKey"          json:"id"`
	UserID    uint      `gorm:"uniqueIndex;not null" json:"user_id"`
	Token     string    `gorm:"uniqueIndex;not null" json:"token"`
	ExpiresAt time.Time `gorm:"not null"            json:"expires_at"`
	CreatedAt time.Time `json:"created_at"`
}

type RefreshToken struct {
	ID        uint      `gorm:"primaryKey"          json:"id"`
	UserID    uint      `gorm:"uniqueIndex;not null" json:"user_id"`
	Token     string    `gorm:"uniqueIndex;not null" json:"token"`
	ExpiresAt time.Time `gorm:"not null"            json:"expires_at"`
	CreatedAt time.Time `json:"created_at"`
	IPAddress string    `json:"ip_address"`
	UserAgent string    `json:"user_agent"`
}

// BlockRecord rows are never deleted, they form the audit trail of
// administrative blocks. UnblockAt is BlockedAt plus the duration,
// denormalized so the sweeper and the guard can query on it directly.
type BlockRecord struct {
	ID                   uint      `gorm:"primaryKey"         json:"id"`
	UserID               uint      `gorm:"index;not null"     json:"user_id"`
	AdminID              uint      `gorm:"not null"           json:"admin_id"`
	Reason               string    `gorm:"not null"           json:"reason"`
	Notes                string    `json:"notes"`
	IsActive             bool      `gorm:"default:true;index" json:"is_active"`
	BlockedAt            time.Time `gorm:"not null"           json:"blocked_at"`
	BlockDurationMinutes uint      `gorm:"not null"           json:"block_duration_minutes"`
	UnblockAt            time.Time `gorm:"not null;index"     json:"unblock_at"`
	CreatedAt            time.Time `json:"created_at"`
}
