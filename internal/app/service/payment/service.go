package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/samber/lo"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	notificationlog "github.com/moleart/turnstile/internal/app/service/notification_log"
	"github.com/moleart/turnstile/internal/app/service/subscription"
	"github.com/moleart/turnstile/internal/models"
	"github.com/moleart/turnstile/pkg/config"
	"github.com/moleart/turnstile/pkg/logctx"
	"github.com/moleart/turnstile/pkg/metrics"
	"github.com/moleart/turnstile/pkg/tool"
	"github.com/moleart/turnstile/pkg/types"
)

var (
	ErrPaymentNotFound      = errors.New("payment not found")
	ErrGatewayNotConfigured = errors.New("payment gateway not configured")
)

// PollStatus is the simplified status surfaced to a polling client.
type PollStatus string

const (
	PollStatusSuccess PollStatus = "success"
	PollStatusPending PollStatus = "pending"
	PollStatusFailed  PollStatus = "failed"
	// PollStatusUnknown means the gateway query itself failed; the payment
	// stays pending and the client should poll again.
	PollStatusUnknown PollStatus = "unknown"
)

// orderTimeout is the gateway expiry hint and the local eligibility window.
const orderTimeout = 10 * time.Minute

type CreateOrderResponse struct {
	PaymentID  string `json:"payment_id"`
	OutTradeNo string `json:"out_trade_no"`
	QRCode     string `json:"qr_code"`
	Amount     int64  `json:"amount"`
}

type PollResponse struct {
	Status PollStatus `json:"status"`
}

// Service owns the payment state machine. It is the only component allowed to
// trigger subscription activation, from either the poll path or the
// notification path.
type Service struct {
	cfg      *config.Config
	log      *zap.SugaredLogger
	db       *gorm.DB
	gw       Gateway
	subs     *subscription.Service
	notifLog *notificationlog.Service
}

func NewService(cfg *config.Config, log *zap.SugaredLogger, db *gorm.DB, gw Gateway, subs *subscription.Service, notifLog *notificationlog.Service) *Service {
	return &Service{cfg: cfg, log: log, db: db, gw: gw, subs: subs, notifLog: notifLog}
}

// CreateOrder creates a gateway order and persists the pending Payment row.
// Any gateway or store failure aborts the whole operation with no row left
// behind; an unpaid gateway order simply expires on its own.
func (s *Service) CreateOrder(ctx context.Context, userID, planID string) (*CreateOrderResponse, error) {
	plan, err := s.subs.GetPlan(ctx, planID)
	if err != nil {
		return nil, err
	}

	outTradeNo := tool.GenerateOutTradeNo()
	res, err := s.gw.CreateOrder(ctx, &CreateOrderRequest{
		OutTradeNo: outTradeNo,
		Subject:    plan.Name,
		Body:       fmt.Sprintf("subscription plan %s", plan.ID),
		Amount:     plan.Price,
		Timeout:    orderTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create gateway order: %w", err)
	}

	pay := &models.Payment{
		ID:         tool.GenerateUUIDV7(),
		UserID:     userID,
		PlanID:     plan.ID,
		OutTradeNo: outTradeNo,
		Amount:     plan.Price,
		Status:     types.PaymentStatusPending,
		ExpiresAt:  time.Now().Add(orderTimeout),
	}
	if err := s.db.WithContext(ctx).Create(pay).Error; err != nil {
		return nil, fmt.Errorf("failed to persist payment: %w", err)
	}

	metrics.PaymentOrdersCreatedTotal.Inc()
	logctx.FromCtx(ctx, s.log).Infow("payment_order_created",
		"payment_id", pay.ID, "out_trade_no", outTradeNo, "plan_id", plan.ID, "amount", plan.Price)

	return &CreateOrderResponse{
		PaymentID:  pay.ID,
		OutTradeNo: outTradeNo,
		QRCode:     res.QRCode,
		Amount:     plan.Price,
	}, nil
}

// ReconcileByPoll resolves a payment's status from the gateway on behalf of
// the owning user. A payment belonging to another user reads as not found so
// the endpoint does not leak order existence.
func (s *Service) ReconcileByPoll(ctx context.Context, paymentID, userID string) (*PollResponse, error) {
	var pay models.Payment
	err := s.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", paymentID, userID).
		First(&pay).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrPaymentNotFound
		}
		return nil, fmt.Errorf("failed to load payment: %w", err)
	}

	// Terminal rows never change again; answer from local state.
	switch pay.Status {
	case types.PaymentStatusCompleted:
		return &PollResponse{Status: PollStatusSuccess}, nil
	case types.PaymentStatusFailed, types.PaymentStatusCancelled:
		return &PollResponse{Status: PollStatusFailed}, nil
	}

	q, err := s.gw.QueryOrder(ctx, pay.OutTradeNo)
	if err != nil {
		// The row stays pending; a later poll or the gateway notification
		// will finish the job.
		logctx.FromCtx(ctx, s.log).Warnw("gateway_query_failed",
			"out_trade_no", pay.OutTradeNo, "err", err)
		return &PollResponse{Status: PollStatusUnknown}, nil
	}

	switch {
	case q.TradeStatus.Paid():
		if _, err := s.complete(ctx, pay.ID, q.TradeNo, "poll"); err != nil {
			return nil, err
		}
		return &PollResponse{Status: PollStatusSuccess}, nil
	case q.TradeStatus == TradeStatusClosed:
		return s.cancelPending(ctx, pay.ID)
	default:
		if pay.Expired(time.Now()) {
			// Local window lapsed and the gateway still reports unpaid.
			// Close the order on both sides so the client stops polling.
			if err := s.gw.CancelOrder(ctx, pay.OutTradeNo); err != nil {
				logctx.FromCtx(ctx, s.log).Warnw("gateway_cancel_failed",
					"out_trade_no", pay.OutTradeNo, "err", err)
				return &PollResponse{Status: PollStatusPending}, nil
			}
			return s.cancelPending(ctx, pay.ID)
		}
		return &PollResponse{Status: PollStatusPending}, nil
	}
}

// cancelPending mirrors a gateway-side closure locally, guarded the same way
// as completion so a racing success cannot be overwritten. Losing that race
// means the payment actually completed, and the caller is told so instead of
// getting a stale failure.
func (s *Service) cancelPending(ctx context.Context, paymentID string) (*PollResponse, error) {
	res := s.db.WithContext(ctx).Model(&models.Payment{}).
		Where("id = ? AND status = ?", paymentID, types.PaymentStatusPending).
		Update("status", types.PaymentStatusCancelled)
	if res.Error != nil {
		return nil, fmt.Errorf("failed to cancel payment: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		var pay models.Payment
		if err := s.db.WithContext(ctx).First(&pay, "id = ?", paymentID).Error; err != nil {
			return nil, fmt.Errorf("failed to re-read payment: %w", err)
		}
		if pay.Status == types.PaymentStatusCompleted {
			return &PollResponse{Status: PollStatusSuccess}, nil
		}
	}
	return &PollResponse{Status: PollStatusFailed}, nil
}

// ReconcileByNotification handles an asynchronous gateway push. The payload
// signature is verified before any field is trusted; a bad signature or an
// unknown order returns an error (the gateway will retry), everything else is
// acknowledged -- including duplicates of an already-settled order.
func (s *Service) ReconcileByNotification(ctx context.Context, values url.Values) error {
	noti, err := s.gw.DecodeNotification(ctx, values)
	if err != nil {
		metrics.NotificationRejectedTotal.Inc()
		logctx.FromCtx(ctx, s.log).Warnw("notification_rejected", "err", err)
		return fmt.Errorf("failed to verify notification: %w", err)
	}

	var pay models.Payment
	err = s.db.WithContext(ctx).Where("out_trade_no = ?", noti.OutTradeNo).First(&pay).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			metrics.NotificationRejectedTotal.Inc()
			s.auditNotification(ctx, nil, noti, models.PaymentNotificationLogStatusRejected, errors.New("unknown out_trade_no"))
			return ErrPaymentNotFound
		}
		return fmt.Errorf("failed to load payment: %w", err)
	}

	s.auditNotification(ctx, &pay, noti, models.PaymentNotificationLogStatusReceived, nil)

	if !noti.TradeStatus.Paid() {
		// Progress pings (e.g. WAIT_BUYER_PAY) carry no transition; ack so
		// the gateway stops retrying.
		return nil
	}
	if pay.Status != types.PaymentStatusPending {
		// Duplicate terminal signal; idempotent ack.
		logctx.FromCtx(ctx, s.log).Infow("notification_duplicate",
			"out_trade_no", noti.OutTradeNo, "status", pay.Status)
		return nil
	}

	if _, err := s.complete(ctx, pay.ID, noti.TradeNo, "notification"); err != nil {
		s.auditNotification(ctx, &pay, noti, models.PaymentNotificationLogStatusHandleFailed, err)
		return err
	}
	s.auditNotification(ctx, &pay, noti, models.PaymentNotificationLogStatusHandled, nil)
	return nil
}

// Refund is a manual primitive (operator tooling); it is not part of the
// reconciliation state machine and does not touch subscriptions.
func (s *Service) Refund(ctx context.Context, paymentID, reason string) error {
	var pay models.Payment
	if err := s.db.WithContext(ctx).First(&pay, "id = ?", paymentID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrPaymentNotFound
		}
		return fmt.Errorf("failed to load payment: %w", err)
	}
	if pay.Status != types.PaymentStatusCompleted {
		return fmt.Errorf("payment %s is not completed", paymentID)
	}
	if err := s.gw.Refund(ctx, pay.OutTradeNo, pay.Amount, reason); err != nil {
		return fmt.Errorf("failed to refund: %w", err)
	}
	logctx.FromCtx(ctx, s.log).Infow("payment_refunded", "payment_id", paymentID, "reason", reason)
	return nil
}

// complete is the completion sequence shared by both trigger paths. The
// conditional UPDATE on status=pending makes it single-writer: exactly one
// concurrent caller observes RowsAffected==1 and performs the activation, in
// the same transaction, so the status write and the subscription grant commit
// or roll back together. Losers see RowsAffected==0 and return won=false,
// which is a no-op success, not an error.
func (s *Service) complete(ctx context.Context, paymentID, tradeNo, trigger string) (won bool, err error) {
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var pay models.Payment
		if err := tx.First(&pay, "id = ?", paymentID).Error; err != nil {
			return fmt.Errorf("failed to re-read payment: %w", err)
		}
		if pay.Status != types.PaymentStatusPending {
			return nil
		}

		res := tx.Model(&models.Payment{}).
			Where("id = ? AND status = ?", paymentID, types.PaymentStatusPending).
			Updates(map[string]any{
				"status":   types.PaymentStatusCompleted,
				"trade_no": tradeNo,
			})
		if res.Error != nil {
			return fmt.Errorf("failed to complete payment: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return nil
		}

		if _, err := s.subs.ActivateTx(ctx, tx, pay.UserID, pay.PlanID); err != nil {
			// Rolls back the status write; the payment stays pending and the
			// next trigger retries the whole sequence.
			return fmt.Errorf("failed to activate subscription: %w", err)
		}
		won = true
		return nil
	})
	if err != nil {
		return false, err
	}
	if won {
		metrics.PaymentCompletedTotal.WithLabelValues(trigger).Inc()
		logctx.FromCtx(ctx, s.log).Infow("payment_completed",
			"payment_id", paymentID, "trade_no", tradeNo, "trigger", trigger)
	}
	return won, nil
}

func (s *Service) auditNotification(ctx context.Context, pay *models.Payment, noti *Notification, status models.PaymentNotificationLogStatus, handleErr error) {
	var userID *string
	if pay != nil {
		userID = lo.ToPtr(pay.UserID)
	}
	var traceID string
	if tid, ok := ctx.Value("traceID").(string); ok {
		traceID = tid
	}
	dataBytes, _ := json.Marshal(noti)
	entry := &models.PaymentNotificationLog{
		UserID:     userID,
		TraceID:    traceID,
		OutTradeNo: noti.OutTradeNo,
		TradeNo:    noti.TradeNo,
		Data:       datatypes.JSON(dataBytes),
		Status:     status,
	}
	if handleErr != nil {
		resBytes, _ := json.Marshal(map[string]string{"error": handleErr.Error()})
		entry.Result = lo.ToPtr(datatypes.JSON(resBytes))
	}
	s.notifLog.Save(ctx, entry)
}
