package models

import (
	"time"

	"github.com/google/uuid"
)

const (
	NotificationPayoutApproved  = "payout_approved"
	NotificationPayoutRejected  = "payout_rejected"
	NotificationPayoutCompleted = "payout_completed"

	NotificationStatusPending = "pending"
	NotificationStatusSent    = "sent"
	NotificationStatusFailed  = "failed"
)

// Notification is an outbox row. The email is rendered and sent by the dispatcher job.
type Notification struct {
	ID         uuid.UUID  `gorm:"type:uuid;primary_key;default:gen_random_uuid()" json:"id"`
	UserID     uuid.UUID  `gorm:"type:uuid;not null;index" json:"user_id"`
	Event      string     `gorm:"size:40;not null" json:"event"`
	PayoutKind PayoutKind `gorm:"size:20;not null" json:"payout_kind"`
	PayoutID   uuid.UUID  `gorm:"type:uuid;not null" json:"payout_id"`
	Status     string     `gorm:"size:20;not null;default:'pending';index" json:"status"`
	Attempts   int        `gorm:"not null;default:0" json:"attempts"`
	LastError  *string    `gorm:"type:text" json:"last_error"`

	CreatedAt time.Time  `json:"created_at"`
	SentAt    *time.Time `json:"sent_at"`
}
