package subscription

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/moleart/turnstile/internal/models"
	"github.com/moleart/turnstile/internal/testutil"
	"github.com/moleart/turnstile/pkg/tool"
	"github.com/moleart/turnstile/pkg/types"
)

func newTestService(t *testing.T) (*Service, *gorm.DB) {
	t.Helper()
	db := testutil.SetupTestDB(t)
	svc := NewService(testutil.TestConfig(), zap.NewNop().Sugar(), db)
	return svc, db
}

func TestGetActive_NoSubscription(t *testing.T) {
	svc, db := newTestService(t)
	user := testutil.CreateUser(t, db)

	sub, err := svc.GetActive(context.Background(), user.ID)
	require.NoError(t, err)
	assert.Nil(t, sub)
}

func TestGetActive_IgnoresEndedRows(t *testing.T) {
	svc, db := newTestService(t)
	user := testutil.CreateUser(t, db)
	plan := testutil.CreatePlan(t, db)

	// Row still marked active but already past end_date: the time-based check
	// must hide it.
	require.NoError(t, db.Create(&models.UserSubscription{
		ID:        tool.GenerateUUIDV7(),
		UserID:    user.ID,
		PlanID:    plan.ID,
		Status:    types.SubscriptionStatusActive,
		StartDate: time.Now().AddDate(0, 0, -40),
		EndDate:   time.Now().AddDate(0, 0, -10),
	}).Error)

	sub, err := svc.GetActive(context.Background(), user.ID)
	require.NoError(t, err)
	assert.Nil(t, sub)
}

func TestGetActive_TakesLatestEndDateOnDuplicates(t *testing.T) {
	svc, db := newTestService(t)
	user := testutil.CreateUser(t, db)
	plan := testutil.CreatePlan(t, db)

	// Two active rows should never exist, but the query tolerates them by
	// taking the most recent end_date.
	early := time.Now().AddDate(0, 0, 5)
	late := time.Now().AddDate(0, 0, 25)
	for _, end := range []time.Time{early, late} {
		require.NoError(t, db.Create(&models.UserSubscription{
			ID:        tool.GenerateUUIDV7(),
			UserID:    user.ID,
			PlanID:    plan.ID,
			Status:    types.SubscriptionStatusActive,
			StartDate: time.Now(),
			EndDate:   end,
		}).Error)
	}

	sub, err := svc.GetActive(context.Background(), user.ID)
	require.NoError(t, err)
	require.NotNil(t, sub)
	assert.WithinDuration(t, late, sub.EndDate, time.Second)
}

func TestActivate_CreatesActiveRow(t *testing.T) {
	svc, db := newTestService(t)
	user := testutil.CreateUser(t, db)
	plan := testutil.CreatePlan(t, db)

	before := time.Now()
	sub, err := svc.Activate(context.Background(), user.ID, plan.ID)
	require.NoError(t, err)
	require.NotNil(t, sub)

	assert.True(t, sub.Valid())
	assert.Equal(t, types.SubscriptionStatusActive, sub.Status)
	assert.WithinDuration(t, before.AddDate(0, 0, plan.DurationDays), sub.EndDate, 2*time.Second)

	got, err := svc.GetActive(context.Background(), user.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, sub.ID, got.ID)
}

func TestActivate_ExpiresPriorActive(t *testing.T) {
	svc, db := newTestService(t)
	user := testutil.CreateUser(t, db)
	planA := testutil.CreatePlan(t, db)
	planB := testutil.CreatePlan(t, db, func(p *models.Plan) {
		p.Name = "Pro Yearly"
		p.DurationDays = 365
	})

	first, err := svc.Activate(context.Background(), user.ID, planA.ID)
	require.NoError(t, err)
	second, err := svc.Activate(context.Background(), user.ID, planB.ID)
	require.NoError(t, err)
	require.NotEqual(t, first.ID, second.ID)

	var prior models.UserSubscription
	require.NoError(t, db.First(&prior, "id = ?", first.ID).Error)
	assert.Equal(t, types.SubscriptionStatusExpired, prior.Status)
	assert.False(t, prior.Valid())

	got, err := svc.GetActive(context.Background(), user.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, planB.ID, got.PlanID)
}

func TestActivate_AtMostOneActive(t *testing.T) {
	svc, db := newTestService(t)
	user := testutil.CreateUser(t, db)
	plan := testutil.CreatePlan(t, db)

	for i := 0; i < 5; i++ {
		_, err := svc.Activate(context.Background(), user.ID, plan.ID)
		require.NoError(t, err)
	}

	var activeCount int64
	require.NoError(t, db.Model(&models.UserSubscription{}).
		Where("user_id = ? AND status = ?", user.ID, types.SubscriptionStatusActive).
		Count(&activeCount).Error)
	assert.EqualValues(t, 1, activeCount)

	var total int64
	require.NoError(t, db.Model(&models.UserSubscription{}).
		Where("user_id = ?", user.ID).Count(&total).Error)
	assert.EqualValues(t, 5, total)
}

func TestActivate_UnknownPlan(t *testing.T) {
	svc, db := newTestService(t)
	user := testutil.CreateUser(t, db)

	_, err := svc.Activate(context.Background(), user.ID, "no-such-plan")
	require.ErrorIs(t, err, ErrPlanNotFound)
}

func TestListPlans_SortedByPrice(t *testing.T) {
	svc, db := newTestService(t)
	testutil.CreatePlan(t, db, func(p *models.Plan) { p.Price = 9900 })
	testutil.CreatePlan(t, db, func(p *models.Plan) { p.Price = 990 })

	plans, err := svc.ListPlans(context.Background())
	require.NoError(t, err)
	require.Len(t, plans, 2)
	assert.Less(t, plans[0].Price, plans[1].Price)
}
