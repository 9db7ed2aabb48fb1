package payment

import (
	"context"
	"errors"
	"net/url"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	notificationlog "github.com/moleart/turnstile/internal/app/service/notification_log"
	"github.com/moleart/turnstile/internal/app/service/subscription"
	"github.com/moleart/turnstile/internal/models"
	"github.com/moleart/turnstile/internal/testutil"
	"github.com/moleart/turnstile/pkg/types"
)

// fakeGateway is a scriptable Gateway. Zero value creates orders successfully
// and reports them as waiting for payment.
type fakeGateway struct {
	createErr error
	queryRes  *QueryOrderResult
	queryErr  error
	notif     *Notification
	notifErr  error
	cancelErr error

	// onQuery runs before QueryOrder answers, letting a test mutate state
	// between the service's row load and its reaction to the gateway reply.
	onQuery func()

	queryCalls  int32
	cancelCalls int32
}

func (f *fakeGateway) CreateOrder(_ context.Context, req *CreateOrderRequest) (*CreateOrderResult, error) {
	if f.createErr != nil {
		return nil, f.createErr
	}
	return &CreateOrderResult{QRCode: "https://qr.example.com/" + req.OutTradeNo}, nil
}

func (f *fakeGateway) QueryOrder(_ context.Context, _ string) (*QueryOrderResult, error) {
	atomic.AddInt32(&f.queryCalls, 1)
	if f.onQuery != nil {
		f.onQuery()
	}
	if f.queryErr != nil {
		return nil, f.queryErr
	}
	if f.queryRes != nil {
		return f.queryRes, nil
	}
	return &QueryOrderResult{TradeStatus: TradeStatusWaitBuyerPay}, nil
}

func (f *fakeGateway) CancelOrder(_ context.Context, _ string) error {
	atomic.AddInt32(&f.cancelCalls, 1)
	return f.cancelErr
}

func (f *fakeGateway) Refund(_ context.Context, _ string, _ int64, _ string) error { return nil }

func (f *fakeGateway) DecodeNotification(_ context.Context, _ url.Values) (*Notification, error) {
	if f.notifErr != nil {
		return nil, f.notifErr
	}
	return f.notif, nil
}

func newTestService(t *testing.T, gw Gateway) (*Service, *gorm.DB) {
	t.Helper()
	db := testutil.SetupTestDB(t)
	cfg := testutil.TestConfig()
	log := zap.NewNop().Sugar()
	subs := subscription.NewService(cfg, log, db)
	svc := NewService(cfg, log, db, gw, subs, notificationlog.New(db, log))
	return svc, db
}

func TestCreateOrder(t *testing.T) {
	svc, db := newTestService(t, &fakeGateway{})
	user := testutil.CreateUser(t, db)
	plan := testutil.CreatePlan(t, db)

	res, err := svc.CreateOrder(context.Background(), user.ID, plan.ID)
	require.NoError(t, err)
	assert.NotEmpty(t, res.PaymentID)
	assert.NotEmpty(t, res.OutTradeNo)
	assert.Contains(t, res.QRCode, res.OutTradeNo)
	assert.Equal(t, plan.Price, res.Amount)

	var pay models.Payment
	require.NoError(t, db.First(&pay, "id = ?", res.PaymentID).Error)
	assert.Equal(t, types.PaymentStatusPending, pay.Status)
	assert.Equal(t, user.ID, pay.UserID)
	assert.Equal(t, res.OutTradeNo, pay.OutTradeNo)
	assert.WithinDuration(t, time.Now().Add(orderTimeout), pay.ExpiresAt, 2*time.Second)
}

func TestCreateOrder_UnknownPlan(t *testing.T) {
	svc, db := newTestService(t, &fakeGateway{})
	user := testutil.CreateUser(t, db)

	_, err := svc.CreateOrder(context.Background(), user.ID, "no-such-plan")
	assert.ErrorIs(t, err, subscription.ErrPlanNotFound)
}

func TestCreateOrder_GatewayFailureLeavesNoRow(t *testing.T) {
	svc, db := newTestService(t, &fakeGateway{createErr: errors.New("gateway down")})
	user := testutil.CreateUser(t, db)
	plan := testutil.CreatePlan(t, db)

	_, err := svc.CreateOrder(context.Background(), user.ID, plan.ID)
	require.Error(t, err)

	var count int64
	require.NoError(t, db.Model(&models.Payment{}).Count(&count).Error)
	assert.Zero(t, count)
}

func createPendingPayment(t *testing.T, svc *Service, userID, planID string) string {
	t.Helper()
	res, err := svc.CreateOrder(context.Background(), userID, planID)
	require.NoError(t, err)
	return res.PaymentID
}

func TestReconcileByPoll_Success(t *testing.T) {
	gw := &fakeGateway{queryRes: &QueryOrderResult{TradeStatus: TradeStatusSuccess, TradeNo: "2026083022001400001"}}
	svc, db := newTestService(t, gw)
	user := testutil.CreateUser(t, db)
	plan := testutil.CreatePlan(t, db)
	payID := createPendingPayment(t, svc, user.ID, plan.ID)

	res, err := svc.ReconcileByPoll(context.Background(), payID, user.ID)
	require.NoError(t, err)
	assert.Equal(t, PollStatusSuccess, res.Status)

	var pay models.Payment
	require.NoError(t, db.First(&pay, "id = ?", payID).Error)
	assert.Equal(t, types.PaymentStatusCompleted, pay.Status)
	assert.Equal(t, "2026083022001400001", pay.TradeNo)

	var sub models.UserSubscription
	require.NoError(t, db.First(&sub, "user_id = ? AND status = ?", user.ID, types.SubscriptionStatusActive).Error)
	assert.Equal(t, plan.ID, sub.PlanID)
	assert.WithinDuration(t, time.Now().AddDate(0, 0, plan.DurationDays), sub.EndDate, 2*time.Second)
}

func TestReconcileByPoll_OtherUsersPaymentReadsAsNotFound(t *testing.T) {
	svc, db := newTestService(t, &fakeGateway{})
	owner := testutil.CreateUser(t, db)
	other := testutil.CreateUser(t, db)
	plan := testutil.CreatePlan(t, db)
	payID := createPendingPayment(t, svc, owner.ID, plan.ID)

	_, err := svc.ReconcileByPoll(context.Background(), payID, other.ID)
	assert.ErrorIs(t, err, ErrPaymentNotFound)
}

func TestReconcileByPoll_GatewayErrorReadsAsUnknown(t *testing.T) {
	gw := &fakeGateway{queryErr: errors.New("timeout")}
	svc, db := newTestService(t, gw)
	user := testutil.CreateUser(t, db)
	plan := testutil.CreatePlan(t, db)
	payID := createPendingPayment(t, svc, user.ID, plan.ID)

	res, err := svc.ReconcileByPoll(context.Background(), payID, user.ID)
	require.NoError(t, err)
	assert.Equal(t, PollStatusUnknown, res.Status)

	var pay models.Payment
	require.NoError(t, db.First(&pay, "id = ?", payID).Error)
	assert.Equal(t, types.PaymentStatusPending, pay.Status)
}

func TestReconcileByPoll_WaitingStaysPending(t *testing.T) {
	svc, db := newTestService(t, &fakeGateway{})
	user := testutil.CreateUser(t, db)
	plan := testutil.CreatePlan(t, db)
	payID := createPendingPayment(t, svc, user.ID, plan.ID)

	res, err := svc.ReconcileByPoll(context.Background(), payID, user.ID)
	require.NoError(t, err)
	assert.Equal(t, PollStatusPending, res.Status)
}

func TestReconcileByPoll_ClosedCancelsLocally(t *testing.T) {
	gw := &fakeGateway{queryRes: &QueryOrderResult{TradeStatus: TradeStatusClosed}}
	svc, db := newTestService(t, gw)
	user := testutil.CreateUser(t, db)
	plan := testutil.CreatePlan(t, db)
	payID := createPendingPayment(t, svc, user.ID, plan.ID)

	res, err := svc.ReconcileByPoll(context.Background(), payID, user.ID)
	require.NoError(t, err)
	assert.Equal(t, PollStatusFailed, res.Status)

	var pay models.Payment
	require.NoError(t, db.First(&pay, "id = ?", payID).Error)
	assert.Equal(t, types.PaymentStatusCancelled, pay.Status)
}

func TestReconcileByPoll_ClosedAfterConcurrentCompletionReportsSuccess(t *testing.T) {
	gw := &fakeGateway{queryRes: &QueryOrderResult{TradeStatus: TradeStatusClosed}}
	svc, db := newTestService(t, gw)
	user := testutil.CreateUser(t, db)
	plan := testutil.CreatePlan(t, db)
	payID := createPendingPayment(t, svc, user.ID, plan.ID)

	// The notification path settles the payment between the poll's row load
	// and its reaction to the stale TRADE_CLOSED answer.
	gw.onQuery = func() {
		require.NoError(t, db.Model(&models.Payment{}).Where("id = ?", payID).
			Updates(map[string]any{
				"status":   types.PaymentStatusCompleted,
				"trade_no": "2026083022001400007",
			}).Error)
	}

	res, err := svc.ReconcileByPoll(context.Background(), payID, user.ID)
	require.NoError(t, err)
	assert.Equal(t, PollStatusSuccess, res.Status)

	var pay models.Payment
	require.NoError(t, db.First(&pay, "id = ?", payID).Error)
	assert.Equal(t, types.PaymentStatusCompleted, pay.Status)
}

func TestReconcileByPoll_ExpiredUnpaidOrderCancelled(t *testing.T) {
	gw := &fakeGateway{}
	svc, db := newTestService(t, gw)
	user := testutil.CreateUser(t, db)
	plan := testutil.CreatePlan(t, db)
	payID := createPendingPayment(t, svc, user.ID, plan.ID)
	require.NoError(t, db.Model(&models.Payment{}).Where("id = ?", payID).
		Update("expires_at", time.Now().Add(-time.Minute)).Error)

	res, err := svc.ReconcileByPoll(context.Background(), payID, user.ID)
	require.NoError(t, err)
	assert.Equal(t, PollStatusFailed, res.Status)
	assert.Equal(t, int32(1), atomic.LoadInt32(&gw.cancelCalls))

	var pay models.Payment
	require.NoError(t, db.First(&pay, "id = ?", payID).Error)
	assert.Equal(t, types.PaymentStatusCancelled, pay.Status)
}

func TestReconcileByPoll_ExpiredOrderStaysPendingWhenGatewayCancelFails(t *testing.T) {
	gw := &fakeGateway{cancelErr: errors.New("gateway down")}
	svc, db := newTestService(t, gw)
	user := testutil.CreateUser(t, db)
	plan := testutil.CreatePlan(t, db)
	payID := createPendingPayment(t, svc, user.ID, plan.ID)
	require.NoError(t, db.Model(&models.Payment{}).Where("id = ?", payID).
		Update("expires_at", time.Now().Add(-time.Minute)).Error)

	res, err := svc.ReconcileByPoll(context.Background(), payID, user.ID)
	require.NoError(t, err)
	assert.Equal(t, PollStatusPending, res.Status)

	var pay models.Payment
	require.NoError(t, db.First(&pay, "id = ?", payID).Error)
	assert.Equal(t, types.PaymentStatusPending, pay.Status)
}

func TestReconcileByPoll_TerminalRowSkipsGateway(t *testing.T) {
	gw := &fakeGateway{}
	svc, db := newTestService(t, gw)
	user := testutil.CreateUser(t, db)
	plan := testutil.CreatePlan(t, db)
	payID := createPendingPayment(t, svc, user.ID, plan.ID)
	require.NoError(t, db.Model(&models.Payment{}).Where("id = ?", payID).
		Update("status", types.PaymentStatusCompleted).Error)
	gw.queryCalls = 0

	res, err := svc.ReconcileByPoll(context.Background(), payID, user.ID)
	require.NoError(t, err)
	assert.Equal(t, PollStatusSuccess, res.Status)
	assert.Zero(t, atomic.LoadInt32(&gw.queryCalls))
}

func notifyValues() url.Values {
	return url.Values{"trade_status": {"TRADE_SUCCESS"}}
}

func TestReconcileByNotification_Success(t *testing.T) {
	gw := &fakeGateway{}
	svc, db := newTestService(t, gw)
	user := testutil.CreateUser(t, db)
	plan := testutil.CreatePlan(t, db)
	payID := createPendingPayment(t, svc, user.ID, plan.ID)

	var pay models.Payment
	require.NoError(t, db.First(&pay, "id = ?", payID).Error)
	gw.notif = &Notification{
		OutTradeNo:  pay.OutTradeNo,
		TradeStatus: TradeStatusSuccess,
		TradeNo:     "2026083022001400002",
	}

	require.NoError(t, svc.ReconcileByNotification(context.Background(), notifyValues()))

	require.NoError(t, db.First(&pay, "id = ?", payID).Error)
	assert.Equal(t, types.PaymentStatusCompleted, pay.Status)
	assert.Equal(t, "2026083022001400002", pay.TradeNo)

	var subCount int64
	require.NoError(t, db.Model(&models.UserSubscription{}).
		Where("user_id = ? AND status = ?", user.ID, types.SubscriptionStatusActive).
		Count(&subCount).Error)
	assert.Equal(t, int64(1), subCount)
}

func TestReconcileByNotification_BadSignature(t *testing.T) {
	gw := &fakeGateway{notifErr: errors.New("sign verification failed")}
	svc, db := newTestService(t, gw)
	user := testutil.CreateUser(t, db)
	plan := testutil.CreatePlan(t, db)
	payID := createPendingPayment(t, svc, user.ID, plan.ID)

	err := svc.ReconcileByNotification(context.Background(), notifyValues())
	require.Error(t, err)

	var pay models.Payment
	require.NoError(t, db.First(&pay, "id = ?", payID).Error)
	assert.Equal(t, types.PaymentStatusPending, pay.Status)
}

func TestReconcileByNotification_UnknownOrder(t *testing.T) {
	gw := &fakeGateway{notif: &Notification{
		OutTradeNo:  "T20260830120000FFFFFFFFFF",
		TradeStatus: TradeStatusSuccess,
		TradeNo:     "2026083022001400003",
	}}
	svc, _ := newTestService(t, gw)

	err := svc.ReconcileByNotification(context.Background(), notifyValues())
	assert.ErrorIs(t, err, ErrPaymentNotFound)
}

func TestReconcileByNotification_ProgressPingAcked(t *testing.T) {
	gw := &fakeGateway{}
	svc, db := newTestService(t, gw)
	user := testutil.CreateUser(t, db)
	plan := testutil.CreatePlan(t, db)
	payID := createPendingPayment(t, svc, user.ID, plan.ID)

	var pay models.Payment
	require.NoError(t, db.First(&pay, "id = ?", payID).Error)
	gw.notif = &Notification{OutTradeNo: pay.OutTradeNo, TradeStatus: TradeStatusWaitBuyerPay}

	require.NoError(t, svc.ReconcileByNotification(context.Background(), notifyValues()))

	require.NoError(t, db.First(&pay, "id = ?", payID).Error)
	assert.Equal(t, types.PaymentStatusPending, pay.Status)
}

func TestReconcileByNotification_DuplicateIsIdempotent(t *testing.T) {
	gw := &fakeGateway{}
	svc, db := newTestService(t, gw)
	user := testutil.CreateUser(t, db)
	plan := testutil.CreatePlan(t, db)
	payID := createPendingPayment(t, svc, user.ID, plan.ID)

	var pay models.Payment
	require.NoError(t, db.First(&pay, "id = ?", payID).Error)
	gw.notif = &Notification{
		OutTradeNo:  pay.OutTradeNo,
		TradeStatus: TradeStatusSuccess,
		TradeNo:     "2026083022001400004",
	}

	require.NoError(t, svc.ReconcileByNotification(context.Background(), notifyValues()))
	require.NoError(t, svc.ReconcileByNotification(context.Background(), notifyValues()))
	require.NoError(t, svc.ReconcileByNotification(context.Background(), notifyValues()))

	var subCount int64
	require.NoError(t, db.Model(&models.UserSubscription{}).
		Where("user_id = ?", user.ID).Count(&subCount).Error)
	assert.Equal(t, int64(1), subCount)
}

func TestComplete_ConcurrentCallersSingleWinner(t *testing.T) {
	svc, db := newTestService(t, &fakeGateway{})
	user := testutil.CreateUser(t, db)
	plan := testutil.CreatePlan(t, db)
	payID := createPendingPayment(t, svc, user.ID, plan.ID)

	const callers = 8
	var wg sync.WaitGroup
	var wins int32
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			won, err := svc.complete(context.Background(), payID, "2026083022001400005", "poll")
			assert.NoError(t, err)
			if won {
				atomic.AddInt32(&wins, 1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), wins)

	var subCount int64
	require.NoError(t, db.Model(&models.UserSubscription{}).
		Where("user_id = ? AND status = ?", user.ID, types.SubscriptionStatusActive).
		Count(&subCount).Error)
	assert.Equal(t, int64(1), subCount)
}

func TestPollAndNotificationRace(t *testing.T) {
	gw := &fakeGateway{queryRes: &QueryOrderResult{TradeStatus: TradeStatusSuccess, TradeNo: "2026083022001400006"}}
	svc, db := newTestService(t, gw)
	user := testutil.CreateUser(t, db)
	plan := testutil.CreatePlan(t, db)
	payID := createPendingPayment(t, svc, user.ID, plan.ID)

	var pay models.Payment
	require.NoError(t, db.First(&pay, "id = ?", payID).Error)
	gw.notif = &Notification{
		OutTradeNo:  pay.OutTradeNo,
		TradeStatus: TradeStatusSuccess,
		TradeNo:     "2026083022001400006",
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, err := svc.ReconcileByPoll(context.Background(), payID, user.ID)
		assert.NoError(t, err)
	}()
	go func() {
		defer wg.Done()
		assert.NoError(t, svc.ReconcileByNotification(context.Background(), notifyValues()))
	}()
	wg.Wait()

	require.NoError(t, db.First(&pay, "id = ?", payID).Error)
	assert.Equal(t, types.PaymentStatusCompleted, pay.Status)

	var subCount int64
	require.NoError(t, db.Model(&models.UserSubscription{}).
		Where("user_id = ? AND status = ?", user.ID, types.SubscriptionStatusActive).
		Count(&subCount).Error)
	assert.Equal(t, int64(1), subCount)
}

func TestRefund_OnlyCompletedPayments(t *testing.T) {
	svc, db := newTestService(t, &fakeGateway{})
	user := testutil.CreateUser(t, db)
	plan := testutil.CreatePlan(t, db)
	payID := createPendingPayment(t, svc, user.ID, plan.ID)

	err := svc.Refund(context.Background(), payID, "customer request")
	require.Error(t, err)

	require.NoError(t, db.Model(&models.Payment{}).Where("id = ?", payID).
		Update("status", types.PaymentStatusCompleted).Error)
	require.NoError(t, svc.Refund(context.Background(), payID, "customer request"))
}
