package subscription

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/moleart/turnstile/internal/models"
	"github.com/moleart/turnstile/pkg/config"
	"github.com/moleart/turnstile/pkg/logctx"
	"github.com/moleart/turnstile/pkg/tool"
	"github.com/moleart/turnstile/pkg/types"
)

var ErrPlanNotFound = errors.New("plan not found")

type Service struct {
	cfg *config.Config
	log *zap.SugaredLogger
	db  *gorm.DB
}

func NewService(cfg *config.Config, log *zap.SugaredLogger, db *gorm.DB) *Service {
	return &Service{cfg: cfg, log: log, db: db}
}

// GetActive returns the user's currently active, non-expired subscription or
// nil when there is none. By invariant at most one active row exists; the
// query still orders by end_date and takes the top row so a duplicate (which
// would indicate an activation bug) does not flip results between calls.
func (s *Service) GetActive(ctx context.Context, userID string) (*models.UserSubscription, error) {
	var sub models.UserSubscription
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND status = ? AND end_date > ?", userID, types.SubscriptionStatusActive, time.Now()).
		Order("end_date DESC").
		First(&sub).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to load active subscription: %w", err)
	}
	return &sub, nil
}

// GetPlan loads a catalog row.
func (s *Service) GetPlan(ctx context.Context, planID string) (*models.Plan, error) {
	var plan models.Plan
	if err := s.db.WithContext(ctx).First(&plan, "id = ?", planID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrPlanNotFound
		}
		return nil, fmt.Errorf("failed to load plan: %w", err)
	}
	return &plan, nil
}

// ListPlans returns the purchasable catalog, cheapest first.
func (s *Service) ListPlans(ctx context.Context) ([]*models.Plan, error) {
	var plans []*models.Plan
	if err := s.db.WithContext(ctx).Order("price asc").Find(&plans).Error; err != nil {
		return nil, fmt.Errorf("failed to list plans: %w", err)
	}
	return plans, nil
}

// Activate replaces the user's active subscription with a fresh one for
// planID inside a single transaction.
func (s *Service) Activate(ctx context.Context, userID, planID string) (*models.UserSubscription, error) {
	var out *models.UserSubscription
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		out, err = s.ActivateTx(ctx, tx, userID, planID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ActivateTx is the single-writer activation step: expire whatever is active,
// then insert the new active row, all against the caller's transaction. The
// payment reconciler calls this inside the same transaction that marks the
// payment completed, so a completed-but-unactivated payment cannot persist.
//
// Callers are trusted to invoke this at most once per settled payment; the
// reconciler's guarded status transition provides that guarantee.
func (s *Service) ActivateTx(ctx context.Context, tx *gorm.DB, userID, planID string) (*models.UserSubscription, error) {
	var plan models.Plan
	if err := tx.WithContext(ctx).First(&plan, "id = ?", planID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrPlanNotFound
		}
		return nil, fmt.Errorf("failed to load plan: %w", err)
	}

	res := tx.WithContext(ctx).Model(&models.UserSubscription{}).
		Where("user_id = ? AND status = ?", userID, types.SubscriptionStatusActive).
		Update("status", types.SubscriptionStatusExpired)
	if res.Error != nil {
		return nil, fmt.Errorf("failed to expire previous subscription: %w", res.Error)
	}

	now := time.Now()
	sub := &models.UserSubscription{
		ID:        tool.GenerateUUIDV7(),
		UserID:    userID,
		PlanID:    plan.ID,
		Status:    types.SubscriptionStatusActive,
		StartDate: now,
		EndDate:   now.AddDate(0, 0, plan.DurationDays),
	}
	if err := tx.WithContext(ctx).Create(sub).Error; err != nil {
		return nil, fmt.Errorf("failed to create subscription: %w", err)
	}

	logctx.FromCtx(ctx, s.log).Infow("subscription_activated",
		"user_id", userID, "plan_id", plan.ID, "end_date", sub.EndDate, "replaced", res.RowsAffected)
	return sub, nil
}
