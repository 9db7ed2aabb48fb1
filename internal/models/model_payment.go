package models

import (
	"time"

	"github.com/moleart/turnstile/pkg/types"
)

// Payment is one gateway-tracked intent to pay. OutTradeNo is the merchant
// order id, generated once at creation and unique for the life of the system;
// it is the join key between this table and the gateway.
type Payment struct {
	ID     string `gorm:"column:id;type:uuid;primary_key" json:"id"`
	UserID string `gorm:"column:user_id;type:uuid;not null;index" json:"user_id"`
	PlanID string `gorm:"column:plan_id;type:varchar(64);not null" json:"plan_id"`

	OutTradeNo string `gorm:"column:out_trade_no;type:varchar(64);not null;uniqueIndex" json:"out_trade_no"`
	// Amount in cents.
	Amount int64               `gorm:"column:amount;type:bigint;not null" json:"amount"`
	Status types.PaymentStatus `gorm:"column:status;type:varchar(32);not null;default:'pending'" json:"status"`
	// TradeNo is the gateway's own trade id, filled on completion.
	TradeNo   string    `gorm:"column:trade_no;type:varchar(64)" json:"trade_no"`
	ExpiresAt time.Time `gorm:"column:expires_at;not null" json:"expires_at"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (Payment) TableName() string { return "payments" }

func (p *Payment) Expired(now time.Time) bool {
	return p != nil && now.After(p.ExpiresAt)
}
