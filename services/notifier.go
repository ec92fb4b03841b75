package services

import (
	"context"
	"fmt"

	"github.com/chainfundit/backend/models"
)

type NotificationStore interface {
	CreateNotification(ctx context.Context, n *models.Notification) error
}

// Notifier writes payout emails to the outbox. The dispatcher job sends them.
type Notifier struct {
	store NotificationStore
}

func NewNotifier(store NotificationStore) *Notifier {
	return &Notifier{store: store}
}

func (n *Notifier) Enqueue(ctx context.Context, event string, payout *models.Payout) error {
	notification := &models.Notification{
		UserID:     payout.OwnerID,
		Event:      event,
		PayoutKind: payout.Kind,
		PayoutID:   payout.ID,
		Status:     models.NotificationStatusPending,
	}
	if err := n.store.CreateNotification(ctx, notification); err != nil {
		return fmt.Errorf("enqueue %s for payout %s: %w", event, payout.ID, err)
	}
	return nil
}
