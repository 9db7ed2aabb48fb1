package alipay

import (
	"context"
	"fmt"
	"net/url"

	"github.com/smartwalle/alipay/v3"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/moleart/turnstile/internal/app/service/payment"
	cfgpkg "github.com/moleart/turnstile/pkg/config"
)

// Gateway implements payment.Gateway on top of the Alipay face-to-face
// (precreate/QR) flow.
type Gateway struct {
	client    *alipay.Client
	notifyURL string
	log       *zap.SugaredLogger
}

// NewGateway builds the production gateway. Incomplete credentials disable
// payments instead of failing startup, so the rest of the service (quota,
// history) keeps working in environments without gateway access.
func NewGateway(cfg *cfgpkg.Config, log *zap.SugaredLogger) (payment.Gateway, error) {
	if !cfg.Alipay.Enabled() {
		log.Warnw("alipay credentials incomplete, payment disabled")
		return disabledGateway{}, nil
	}

	client, err := alipay.New(cfg.Alipay.AppID, cfg.Alipay.PrivateKey, cfg.Alipay.IsProduction)
	if err != nil {
		return nil, fmt.Errorf("failed to init alipay client: %w", err)
	}
	if err := client.LoadAliPayPublicKey(cfg.Alipay.AlipayPublicKey); err != nil {
		return nil, fmt.Errorf("failed to load alipay public key: %w", err)
	}
	log.Infow("alipay client initialized", "production", cfg.Alipay.IsProduction)
	return &Gateway{client: client, notifyURL: cfg.Alipay.NotifyURL, log: log}, nil
}

func (g *Gateway) CreateOrder(ctx context.Context, req *payment.CreateOrderRequest) (*payment.CreateOrderResult, error) {
	var p = alipay.TradePreCreate{}
	p.NotifyURL = g.notifyURL
	p.OutTradeNo = req.OutTradeNo
	p.Subject = req.Subject
	p.Body = req.Body
	p.TotalAmount = formatAmount(req.Amount)
	p.TimeoutExpress = fmt.Sprintf("%dm", int(req.Timeout.Minutes()))

	rsp, err := g.client.TradePreCreate(ctx, p)
	if err != nil {
		return nil, fmt.Errorf("trade.precreate: %w", err)
	}
	if !rsp.IsSuccess() {
		return nil, fmt.Errorf("trade.precreate rejected: %s %s", rsp.SubCode, rsp.SubMsg)
	}
	return &payment.CreateOrderResult{QRCode: rsp.QRCode}, nil
}

func (g *Gateway) QueryOrder(ctx context.Context, outTradeNo string) (*payment.QueryOrderResult, error) {
	rsp, err := g.client.TradeQuery(ctx, alipay.TradeQuery{OutTradeNo: outTradeNo})
	if err != nil {
		return nil, fmt.Errorf("trade.query: %w", err)
	}
	if !rsp.IsSuccess() {
		return nil, fmt.Errorf("trade.query rejected: %s %s", rsp.SubCode, rsp.SubMsg)
	}
	return &payment.QueryOrderResult{
		TradeStatus: payment.TradeStatus(rsp.TradeStatus),
		TradeNo:     rsp.TradeNo,
	}, nil
}

func (g *Gateway) CancelOrder(ctx context.Context, outTradeNo string) error {
	rsp, err := g.client.TradeCancel(ctx, alipay.TradeCancel{OutTradeNo: outTradeNo})
	if err != nil {
		return fmt.Errorf("trade.cancel: %w", err)
	}
	if !rsp.IsSuccess() {
		return fmt.Errorf("trade.cancel rejected: %s %s", rsp.SubCode, rsp.SubMsg)
	}
	return nil
}

func (g *Gateway) Refund(ctx context.Context, outTradeNo string, amount int64, reason string) error {
	var p = alipay.TradeRefund{}
	p.OutTradeNo = outTradeNo
	p.RefundAmount = formatAmount(amount)
	p.RefundReason = reason

	rsp, err := g.client.TradeRefund(ctx, p)
	if err != nil {
		return fmt.Errorf("trade.refund: %w", err)
	}
	if !rsp.IsSuccess() {
		return fmt.Errorf("trade.refund rejected: %s %s", rsp.SubCode, rsp.SubMsg)
	}
	return nil
}

func (g *Gateway) DecodeNotification(ctx context.Context, values url.Values) (*payment.Notification, error) {
	noti, err := g.client.DecodeNotification(values)
	if err != nil {
		return nil, fmt.Errorf("notification signature: %w", err)
	}
	return &payment.Notification{
		OutTradeNo:  noti.OutTradeNo,
		TradeStatus: payment.TradeStatus(noti.TradeStatus),
		TradeNo:     noti.TradeNo,
	}, nil
}

// formatAmount renders cents as the decimal yuan string the gateway expects.
func formatAmount(cents int64) string {
	return fmt.Sprintf("%d.%02d", cents/100, cents%100)
}

// disabledGateway rejects every operation with a configuration error.
type disabledGateway struct{}

func (disabledGateway) CreateOrder(context.Context, *payment.CreateOrderRequest) (*payment.CreateOrderResult, error) {
	return nil, payment.ErrGatewayNotConfigured
}

func (disabledGateway) QueryOrder(context.Context, string) (*payment.QueryOrderResult, error) {
	return nil, payment.ErrGatewayNotConfigured
}

func (disabledGateway) CancelOrder(context.Context, string) error {
	return payment.ErrGatewayNotConfigured
}

func (disabledGateway) Refund(context.Context, string, int64, string) error {
	return payment.ErrGatewayNotConfigured
}

func (disabledGateway) DecodeNotification(context.Context, url.Values) (*payment.Notification, error) {
	return nil, payment.ErrGatewayNotConfigured
}

var Module = fx.Options(
	fx.Provide(NewGateway),
)
