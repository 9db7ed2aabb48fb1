package payment

import (
	"context"
	"net/url"
	"time"
)

// TradeStatus is the gateway's order status enum, reported by both the query
// API and asynchronous notifications.
type TradeStatus string

const (
	TradeStatusWaitBuyerPay TradeStatus = "WAIT_BUYER_PAY"
	TradeStatusSuccess      TradeStatus = "TRADE_SUCCESS"
	TradeStatusFinished     TradeStatus = "TRADE_FINISHED"
	TradeStatusClosed       TradeStatus = "TRADE_CLOSED"
)

// Paid reports whether the status denotes a successfully settled order.
func (s TradeStatus) Paid() bool {
	return s == TradeStatusSuccess || s == TradeStatusFinished
}

type CreateOrderRequest struct {
	OutTradeNo string
	Subject    string
	Body       string
	// Amount in cents.
	Amount  int64
	Timeout time.Duration
}

type CreateOrderResult struct {
	// QRCode is the scannable payment code URL returned by the gateway.
	QRCode string
}

type QueryOrderResult struct {
	TradeStatus TradeStatus
	TradeNo     string
}

// Notification is a verified gateway push. Implementations must not return one
// unless the payload signature checked out.
type Notification struct {
	OutTradeNo  string
	TradeStatus TradeStatus
	TradeNo     string
}

// Gateway abstracts the payment provider. The production implementation lives
// in internal/platform/alipay; tests use a fake.
type Gateway interface {
	CreateOrder(ctx context.Context, req *CreateOrderRequest) (*CreateOrderResult, error)
	QueryOrder(ctx context.Context, outTradeNo string) (*QueryOrderResult, error)
	CancelOrder(ctx context.Context, outTradeNo string) error
	Refund(ctx context.Context, outTradeNo string, amount int64, reason string) error
	// DecodeNotification verifies the payload signature and extracts the order
	// fields. It must fail without side effects on an invalid signature.
	DecodeNotification(ctx context.Context, values url.Values) (*Notification, error)
}
