package models

import (
	"time"

	"github.com/moleart/turnstile/pkg/types"
	"gorm.io/datatypes"
)

// Plan is an immutable catalog row describing a purchasable tier. The core
// only ever reads plans.
type Plan struct {
	ID   string `gorm:"column:id;type:varchar(64);primary_key" json:"id"`
	Name string `gorm:"column:name;type:varchar(64);not null" json:"name"`
	// Price in cents.
	Price        int64 `gorm:"column:price;type:bigint;not null" json:"price"`
	DurationDays int   `gorm:"column:duration_days;not null" json:"duration_days"`
	// GenerationLimit and DailyLimit use types.UnlimitedQuota (-1) for unbounded.
	GenerationLimit int            `gorm:"column:generation_limit;not null;default:-1" json:"generation_limit"`
	DailyLimit      int            `gorm:"column:daily_limit;not null;default:-1" json:"daily_limit"`
	QualityLimit    types.Quality  `gorm:"column:quality_limit;type:varchar(32);not null;default:'medium'" json:"quality_limit"`
	Features        datatypes.JSON `gorm:"column:features;type:jsonb;default:'[]'" json:"features"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (Plan) TableName() string { return "subscription_plans" }

func (p *Plan) Unlimited() bool {
	return p != nil && p.GenerationLimit == types.UnlimitedQuota
}
