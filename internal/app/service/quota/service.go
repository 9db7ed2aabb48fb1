package quota

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/moleart/turnstile/internal/app/service/subscription"
	"github.com/moleart/turnstile/internal/models"
	"github.com/moleart/turnstile/pkg/config"
	"github.com/moleart/turnstile/pkg/logctx"
	"github.com/moleart/turnstile/pkg/metrics"
	"github.com/moleart/turnstile/pkg/types"
)

var (
	ErrUserNotFound      = errors.New("user not found")
	ErrUserDisabled      = errors.New("user disabled")
	ErrDailyLimitReached = errors.New("daily limit reached")
)

const dateLayout = "2006-01-02"

// Limits describes a user's effective allowance after the lazy daily reset.
type Limits struct {
	DailyLimit            int           `json:"daily_limit"`
	QualityLimit          types.Quality `json:"quality_limit"`
	IsUnlimited           bool          `json:"is_unlimited"`
	HasActiveSubscription bool          `json:"has_active_subscription"`
	DailyUsage            int           `json:"daily_usage"`
	// Remaining is -1 when the allowance is unbounded.
	Remaining int `json:"remaining"`
}

type Stats struct {
	User         *models.User             `json:"user"`
	Subscription *models.UserSubscription `json:"subscription"`
	PlanName     string                   `json:"plan_name,omitempty"`
	Limits       *Limits                  `json:"limits"`
}

type Service struct {
	cfg  *config.Config
	log  *zap.SugaredLogger
	db   *gorm.DB
	subs *subscription.Service
}

func NewService(cfg *config.Config, log *zap.SugaredLogger, db *gorm.DB, subs *subscription.Service) *Service {
	return &Service{cfg: cfg, log: log, db: db, subs: subs}
}

// resetNeeded is the lazy daily reset predicate: the counter is stale exactly
// when it was last touched on a different calendar day. Days are server-local
// calendar days, not 24h rolling windows.
func resetNeeded(lastDate, today string) bool {
	return lastDate != today
}

// Describe resolves the user's effective limits: an active subscription's
// plan wins, otherwise the configured free tier applies. The daily counter is
// reconciled (lazy reset) before it is read.
func (s *Service) Describe(ctx context.Context, userID string) (*Limits, error) {
	user, err := s.loadUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if err := s.applyDailyReset(ctx, user); err != nil {
		return nil, err
	}
	return s.limitsFor(ctx, user)
}

// Allow is the boundary admission check, called before the costly external
// generation call. It is deliberately separate from RecordUsage, so a burst
// of in-flight requests can transiently exceed the limit by the burst size;
// that bounded over-admission is accepted rather than coordinated away.
func (s *Service) Allow(ctx context.Context, userID string) (*Limits, error) {
	user, err := s.loadUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !user.Active() {
		return nil, ErrUserDisabled
	}
	if err := s.applyDailyReset(ctx, user); err != nil {
		return nil, err
	}
	limits, err := s.limitsFor(ctx, user)
	if err != nil {
		return nil, err
	}
	if limits.IsUnlimited || limits.DailyLimit == types.UnlimitedQuota {
		return limits, nil
	}
	if user.DailyUsage >= limits.DailyLimit {
		metrics.QuotaDeniedTotal.Inc()
		logctx.FromCtx(ctx, s.log).Infow("quota_denied",
			"user_id", userID, "daily_usage", user.DailyUsage, "daily_limit", limits.DailyLimit)
		return limits, ErrDailyLimitReached
	}
	return limits, nil
}

// RecordUsage increments the lifetime and daily counters by one. The lazy
// reset runs first so an attempt straddling midnight lands on the new day.
func (s *Service) RecordUsage(ctx context.Context, userID string) error {
	user, err := s.loadUser(ctx, userID)
	if err != nil {
		return err
	}
	if err := s.applyDailyReset(ctx, user); err != nil {
		return err
	}
	err = s.db.WithContext(ctx).Model(&models.User{}).
		Where("id = ?", userID).
		Updates(map[string]any{
			"total_usage": gorm.Expr("total_usage + 1"),
			"daily_usage": gorm.Expr("daily_usage + 1"),
		}).Error
	if err != nil {
		return fmt.Errorf("failed to record usage: %w", err)
	}
	return nil
}

// Stats returns the user/subscription/limits summary for the account page.
func (s *Service) Stats(ctx context.Context, userID string) (*Stats, error) {
	user, err := s.loadUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if err := s.applyDailyReset(ctx, user); err != nil {
		return nil, err
	}
	limits, err := s.limitsFor(ctx, user)
	if err != nil {
		return nil, err
	}
	out := &Stats{User: user, Limits: limits}
	if sub, err := s.subs.GetActive(ctx, userID); err != nil {
		return nil, err
	} else if sub.Valid() {
		out.Subscription = sub
		if plan, err := s.subs.GetPlan(ctx, sub.PlanID); err == nil {
			out.PlanName = plan.Name
		}
	}
	return out, nil
}

func (s *Service) loadUser(ctx context.Context, userID string) (*models.User, error) {
	var user models.User
	if err := s.db.WithContext(ctx).First(&user, "id = ?", userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to load user: %w", err)
	}
	return &user, nil
}

// applyDailyReset zeroes the daily counter when the row was last touched on a
// previous calendar day. Runs on every access instead of a scheduled job: a
// user inactive for N days resets exactly once, on their next touch. The
// in-memory copy is updated too so callers read the reconciled value.
func (s *Service) applyDailyReset(ctx context.Context, user *models.User) error {
	today := time.Now().Format(dateLayout)
	if !resetNeeded(user.LastUsageDate, today) {
		return nil
	}
	err := s.db.WithContext(ctx).Model(&models.User{}).
		Where("id = ?", user.ID).
		Updates(map[string]any{
			"daily_usage":     0,
			"last_usage_date": today,
		}).Error
	if err != nil {
		return fmt.Errorf("failed to reset daily usage: %w", err)
	}
	user.DailyUsage = 0
	user.LastUsageDate = today
	return nil
}

func (s *Service) limitsFor(ctx context.Context, user *models.User) (*Limits, error) {
	sub, err := s.subs.GetActive(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	limits := &Limits{DailyUsage: user.DailyUsage}
	if sub.Valid() {
		plan, err := s.subs.GetPlan(ctx, sub.PlanID)
		if err != nil {
			return nil, err
		}
		limits.HasActiveSubscription = true
		limits.DailyLimit = plan.DailyLimit
		limits.QualityLimit = plan.QualityLimit
		limits.IsUnlimited = plan.Unlimited()
	} else {
		limits.DailyLimit = s.cfg.Quota.FreeDailyLimit
		limits.QualityLimit = s.cfg.Quota.FreeQuality
	}
	if limits.IsUnlimited || limits.DailyLimit == types.UnlimitedQuota {
		limits.Remaining = types.UnlimitedQuota
	} else if r := limits.DailyLimit - user.DailyUsage; r > 0 {
		limits.Remaining = r
	}
	return limits, nil
}
