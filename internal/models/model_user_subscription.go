package models

import (
	"time"

	"github.com/moleart/turnstile/pkg/types"
)

// UserSubscription grants a user a plan between StartDate and EndDate.
// At most one row per user may hold status=active; the activation transaction
// in the subscription service enforces this procedurally.
type UserSubscription struct {
	ID        string                   `gorm:"column:id;type:uuid;primary_key" json:"id"`
	UserID    string                   `gorm:"column:user_id;type:uuid;not null;index:idx_sub_user_status,priority:1" json:"user_id"`
	PlanID    string                   `gorm:"column:plan_id;type:varchar(64);not null" json:"plan_id"`
	Status    types.SubscriptionStatus `gorm:"column:status;type:varchar(32);not null;index:idx_sub_user_status,priority:2" json:"status"`
	StartDate time.Time                `gorm:"column:start_date;not null" json:"start_date"`
	EndDate   time.Time                `gorm:"column:end_date;not null" json:"end_date"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (UserSubscription) TableName() string { return "user_subscriptions" }

func (s *UserSubscription) Valid() bool {
	return s != nil &&
		s.Status == types.SubscriptionStatusActive &&
		s.EndDate.After(time.Now())
}
