package history

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/moleart/turnstile/internal/models"
	"github.com/moleart/turnstile/pkg/tool"
)

// Service appends and lists usage events. Rows are write-once; nothing here
// updates or deletes.
type Service struct {
	db  *gorm.DB
	log *zap.SugaredLogger
}

func NewService(db *gorm.DB, log *zap.SugaredLogger) *Service {
	return &Service{db: db, log: log}
}

func (s *Service) Record(ctx context.Context, event *models.UsageEvent) error {
	if event.UserID == "" {
		return fmt.Errorf("usage event requires a user id")
	}
	if event.ID == "" {
		event.ID = tool.GenerateUUIDV7()
	}
	if err := s.db.WithContext(ctx).Create(event).Error; err != nil {
		return fmt.Errorf("failed to record usage event: %w", err)
	}
	return nil
}

type ListResponse struct {
	Items []*models.UsageEvent `json:"items"`
	Total int64                `json:"total"`
}

func (s *Service) List(ctx context.Context, userID string, page, pageSize int) (*ListResponse, error) {
	if page <= 0 {
		page = 1
	}
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 20
	}

	q := s.db.WithContext(ctx).Model(&models.UsageEvent{}).Where("user_id = ?", userID)

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, fmt.Errorf("failed to count usage events: %w", err)
	}

	var items []*models.UsageEvent
	err := q.Order("created_at desc").
		Limit(pageSize).
		Offset((page - 1) * pageSize).
		Find(&items).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list usage events: %w", err)
	}
	return &ListResponse{Items: items, Total: total}, nil
}
