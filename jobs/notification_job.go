package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/chainfundit/backend/models"
	"github.com/chainfundit/backend/notifications"
)

const maxNotificationAttempts = 5

type OutboxStore interface {
	ListPendingNotifications(ctx context.Context, maxAttempts, limit int) ([]models.Notification, error)
	MarkNotificationSent(ctx context.Context, id uuid.UUID, at time.Time) error
	MarkNotificationFailed(ctx context.Context, id uuid.UUID, reason string) error
}

type PayoutLoader interface {
	GetPayout(ctx context.Context, kind models.PayoutKind, id uuid.UUID) (*models.Payout, error)
}

type UserLoader interface {
	GetUser(ctx context.Context, id uuid.UUID) (*models.User, error)
}

type ReceiptGenerator interface {
	Generate(ctx context.Context, payout *models.Payout, ownerName string) (string, error)
}

// NotificationDispatcher drains the notification outbox.
type NotificationDispatcher struct {
	outbox       OutboxStore
	payouts      PayoutLoader
	users        UserLoader
	mailer       notifications.Mailer
	receipts     ReceiptGenerator
	dashboardURL string
	batchSize    int
	now          func() time.Time
	logger       *zap.Logger
}

// NewNotificationDispatcher builds the dispatcher. receipts may be nil, in
// which case completion emails go out without a receipt link.
func NewNotificationDispatcher(
	outbox OutboxStore,
	payouts PayoutLoader,
	users UserLoader,
	mailer notifications.Mailer,
	receipts ReceiptGenerator,
	dashboardURL string,
	logger *zap.Logger,
) *NotificationDispatcher {
	return &NotificationDispatcher{
		outbox:       outbox,
		payouts:      payouts,
		users:        users,
		mailer:       mailer,
		receipts:     receipts,
		dashboardURL: dashboardURL,
		batchSize:    50,
		now:          time.Now,
		logger:       logger,
	}
}

// Run sends one batch and returns how many emails went out.
func (d *NotificationDispatcher) Run(ctx context.Context) (int, error) {
	pending, err := d.outbox.ListPendingNotifications(ctx, maxNotificationAttempts, d.batchSize)
	if err != nil {
		return 0, fmt.Errorf("list pending notifications: %w", err)
	}

	sent := 0
	for _, n := range pending {
		if err := ctx.Err(); err != nil {
			return sent, err
		}
		if err := d.deliver(ctx, n); err != nil {
			d.logger.Warn("notification delivery failed",
				zap.String("notification_id", n.ID.String()),
				zap.String("event", n.Event),
				zap.Int("attempt", n.Attempts+1),
				zap.Error(err))
			if markErr := d.outbox.MarkNotificationFailed(ctx, n.ID, err.Error()); markErr != nil {
				d.logger.Error("failed to record notification failure", zap.String("notification_id", n.ID.String()), zap.Error(markErr))
			}
			continue
		}
		if err := d.outbox.MarkNotificationSent(ctx, n.ID, d.now()); err != nil {
			d.logger.Error("failed to mark notification sent", zap.String("notification_id", n.ID.String()), zap.Error(err))
			continue
		}
		sent++
	}
	return sent, nil
}

func (d *NotificationDispatcher) deliver(ctx context.Context, n models.Notification) error {
	payout, err := d.payouts.GetPayout(ctx, n.PayoutKind, n.PayoutID)
	if err != nil {
		return err
	}
	payout.Kind = n.PayoutKind
	user, err := d.users.GetUser(ctx, n.UserID)
	if err != nil {
		return err
	}

	data := notifications.NewPayoutEmailData(user, payout, d.dashboardURL)
	if n.Event == models.NotificationPayoutCompleted && d.receipts != nil {
		url, err := d.receipts.Generate(ctx, payout, user.FullName)
		if err != nil {
			d.logger.Warn("sending completion email without receipt",
				zap.String("payout_id", payout.ID.String()), zap.Error(err))
		} else {
			data.ReceiptURL = url
		}
	}

	subject, html, err := notifications.RenderPayoutEmail(n.Event, data)
	if err != nil {
		return err
	}
	return d.mailer.Send(ctx, notifications.Email{
		ToName:  user.FullName,
		ToEmail: user.Email,
		Subject: subject,
		HTML:    html,
	})
}
