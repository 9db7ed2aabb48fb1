package models

import (
	"time"

	"github.com/moleart/turnstile/pkg/types"
)

// User carries the per-user usage counters. DailyUsage is only meaningful for
// the calendar day stored in LastUsageDate; callers must reconcile a stale
// LastUsageDate before reading or incrementing it (lazy daily reset).
type User struct {
	ID           string           `gorm:"column:id;type:uuid;primary_key" json:"id"`
	Username     string           `gorm:"column:username;type:varchar(64);not null;uniqueIndex" json:"username"`
	Email        string           `gorm:"column:email;type:varchar(128);not null;uniqueIndex" json:"email"`
	PasswordHash string           `gorm:"column:password_hash;type:varchar(128);not null" json:"-"`
	Status       types.UserStatus `gorm:"column:status;type:varchar(32);not null;default:'active'" json:"status"`

	TotalUsage int `gorm:"column:total_usage;not null;default:0" json:"total_usage"`
	DailyUsage int `gorm:"column:daily_usage;not null;default:0" json:"daily_usage"`
	// LastUsageDate is a calendar date (server-local), not a timestamp.
	LastUsageDate string `gorm:"column:last_usage_date;type:varchar(10)" json:"last_usage_date"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (User) TableName() string { return "users" }

func (u *User) Active() bool {
	return u != nil && u.Status == types.UserStatusActive
}
