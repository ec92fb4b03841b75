package database

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/chainfundit/backend/models"
)

const notificationMaxAttempts = 5

func (s *Store) CreateNotification(ctx context.Context, n *models.Notification) error {
	return s.db.WithContext(ctx).Create(n).Error
}

func (s *Store) ListPendingNotifications(ctx context.Context, maxAttempts, limit int) ([]models.Notification, error) {
	var list []models.Notification
	err := s.db.WithContext(ctx).
		Where("status = ? AND attempts < ?", models.NotificationStatusPending, maxAttempts).
		Order("created_at ASC").
		Limit(limit).
		Find(&list).Error
	return list, err
}

func (s *Store) MarkNotificationSent(ctx context.Context, id uuid.UUID, at time.Time) error {
	return s.db.WithContext(ctx).Model(&models.Notification{}).Where("id = ?", id).
		Updates(map[string]interface{}{"status": models.NotificationStatusSent, "sent_at": at}).Error
}

// MarkNotificationFailed counts a failed attempt and gives up after the last one.
func (s *Store) MarkNotificationFailed(ctx context.Context, id uuid.UUID, reason string) error {
	return s.db.WithContext(ctx).Model(&models.Notification{}).Where("id = ?", id).
		Updates(map[string]interface{}{
			"attempts":   gorm.Expr("attempts + 1"),
			"last_error": reason,
			"status": gorm.Expr("CASE WHEN attempts + 1 >= ? THEN ? ELSE status END",
				notificationMaxAttempts, models.NotificationStatusFailed),
		}).Error
}
