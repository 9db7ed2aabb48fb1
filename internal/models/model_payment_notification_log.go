package models

import (
	"time"

	"gorm.io/datatypes"
)

type PaymentNotificationLogStatus string

const (
	PaymentNotificationLogStatusReceived     PaymentNotificationLogStatus = "received"
	PaymentNotificationLogStatusHandled      PaymentNotificationLogStatus = "handled"
	PaymentNotificationLogStatusHandleFailed PaymentNotificationLogStatus = "handle_failed"
	PaymentNotificationLogStatusRejected     PaymentNotificationLogStatus = "rejected"
)

// PaymentNotificationLog is the audit trail for asynchronous gateway pushes.
// Every accepted notification leaves at least a "received" row; rejected ones
// (bad signature, unknown order) leave a "rejected" row with no other effects.
type PaymentNotificationLog struct {
	ID         string  `gorm:"column:id;type:uuid;primary_key" json:"id"`
	UserID     *string `gorm:"column:user_id;type:uuid" json:"user_id"`
	TraceID    string  `gorm:"column:trace_id;type:varchar(128)" json:"trace_id"`
	OutTradeNo string  `gorm:"column:out_trade_no;type:varchar(64);index" json:"out_trade_no"`
	TradeNo    string  `gorm:"column:trade_no;type:varchar(64)" json:"trade_no"`

	Data   datatypes.JSON               `gorm:"column:data;type:jsonb" json:"data"`
	Result *datatypes.JSON              `gorm:"column:result;type:jsonb" json:"result"`
	Status PaymentNotificationLogStatus `gorm:"column:status;type:varchar(32);not null" json:"status"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (PaymentNotificationLog) TableName() string { return "payment_notification_log" }
