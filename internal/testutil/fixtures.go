package testutil

import (
	"testing"
	"time"

	"gorm.io/gorm"

	"github.com/moleart/turnstile/internal/models"
	"github.com/moleart/turnstile/pkg/config"
	"github.com/moleart/turnstile/pkg/tool"
	"github.com/moleart/turnstile/pkg/types"
)

// TestConfig returns a config with the free-tier defaults used by the quota
// service.
func TestConfig() *config.Config {
	return &config.Config{
		Env: config.EnvDev,
		Quota: config.QuotaConfig{
			FreeDailyLimit: 10,
			FreeQuality:    types.QualityMedium,
		},
	}
}

func CreateUser(t *testing.T, db *gorm.DB, mutate ...func(*models.User)) *models.User {
	t.Helper()
	u := &models.User{
		ID:            tool.GenerateUUIDV7(),
		Username:      "user-" + tool.GenerateUUIDV7()[24:],
		Email:         tool.GenerateUUIDV7()[24:] + "@example.com",
		Status:        types.UserStatusActive,
		LastUsageDate: time.Now().Format("2006-01-02"),
	}
	for _, fn := range mutate {
		fn(u)
	}
	if err := db.Create(u).Error; err != nil {
		t.Fatalf("failed to create test user: %v", err)
	}
	return u
}

func CreatePlan(t *testing.T, db *gorm.DB, mutate ...func(*models.Plan)) *models.Plan {
	t.Helper()
	p := &models.Plan{
		ID:              "plan-" + tool.GenerateUUIDV7()[24:],
		Name:            "Pro Monthly",
		Price:           2990,
		DurationDays:    30,
		GenerationLimit: 500,
		DailyLimit:      50,
		QualityLimit:    types.QualityHigh,
	}
	for _, fn := range mutate {
		fn(p)
	}
	if err := db.Create(p).Error; err != nil {
		t.Fatalf("failed to create test plan: %v", err)
	}
	return p
}
