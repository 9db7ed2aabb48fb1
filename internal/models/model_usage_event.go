package models

import "time"

type UsageEventKind string

const (
	UsageEventKindGeneration UsageEventKind = "generation"
	UsageEventKindEdit       UsageEventKind = "edit"
)

type UsageEventStatus string

const (
	UsageEventStatusSucceeded UsageEventStatus = "succeeded"
	UsageEventStatusFailed    UsageEventStatus = "failed"
)

// UsageEvent is an append-only record of one generation/edit attempt.
// Rows are never mutated or deleted.
type UsageEvent struct {
	ID     string         `gorm:"column:id;type:uuid;primary_key" json:"id"`
	UserID string         `gorm:"column:user_id;type:uuid;not null;index:idx_usage_user_created,priority:1" json:"user_id"`
	Kind   UsageEventKind `gorm:"column:kind;type:varchar(32);not null" json:"kind"`
	Prompt string         `gorm:"column:prompt;type:text" json:"prompt"`

	ResultURL    string           `gorm:"column:result_url;type:text" json:"result_url"`
	ErrorMessage string           `gorm:"column:error_message;type:text" json:"error_message"`
	Status       UsageEventStatus `gorm:"column:status;type:varchar(32);not null" json:"status"`

	CreatedAt time.Time `gorm:"index:idx_usage_user_created,priority:2,sort:desc" json:"created_at"`
}

func (UsageEvent) TableName() string { return "usage_events" }
