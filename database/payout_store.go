package database

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/chainfundit/backend/apperrors"
	"github.com/chainfundit/backend/models"
)

func payouts(db *gorm.DB, kind models.PayoutKind) *gorm.DB {
	return db.Table(kind.Table())
}

func (s *Store) GetPayout(ctx context.Context, kind models.PayoutKind, id uuid.UUID) (*models.Payout, error) {
	var p models.Payout
	if err := payouts(s.db.WithContext(ctx), kind).Where("id = ?", id).First(&p).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrPayoutNotFound
		}
		return nil, err
	}
	p.Kind = kind
	return &p, nil
}

func transitionQuery(db *gorm.DB, kind models.PayoutKind, id uuid.UUID, from, to string, now time.Time) *gorm.DB {
	values := map[string]interface{}{"status": to, "updated_at": now}
	if to == models.PayoutStatusApproved {
		values["approved_at"] = now
	}
	return payouts(db, kind).Where("id = ? AND status = ?", id, from).Updates(values)
}

// TransitionStatus is a compare-and-swap on the status column.
func (s *Store) TransitionStatus(ctx context.Context, kind models.PayoutKind, id uuid.UUID, from, to string) (bool, error) {
	res := transitionQuery(s.db.WithContext(ctx), kind, id, from, to, time.Now())
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func outcomeValues(o models.PayoutOutcome, now time.Time) map[string]interface{} {
	values := map[string]interface{}{
		"status":             o.Status,
		"transaction_id":     o.TransactionID,
		"recipient_code":     o.RecipientCode,
		"provider_reference": o.ProviderReference,
		"failure_reason":     o.FailureReason,
		"failure_code":       o.FailureCode,
		"retry_count":        o.RetryCount,
		"processed_at":       o.ProcessedAt,
		"updated_at":         now,
	}
	if o.Provider != "" {
		values["provider"] = o.Provider
	}
	return values
}

func outcomeQuery(db *gorm.DB, kind models.PayoutKind, id uuid.UUID, from string, outcome models.PayoutOutcome, now time.Time) *gorm.DB {
	return payouts(db, kind).
		Where("id = ? AND status = ?", id, from).
		Updates(outcomeValues(outcome, now))
}

// SaveOutcome writes the outcome if the payout is still in the from status.
// With outcome.Refund set, the debited amount goes back to the campaign or
// chainer in the same transaction.
func (s *Store) SaveOutcome(ctx context.Context, kind models.PayoutKind, id uuid.UUID, from string, outcome models.PayoutOutcome) (bool, error) {
	if !outcome.Refund {
		res := outcomeQuery(s.db.WithContext(ctx), kind, id, from, outcome, time.Now())
		if res.Error != nil {
			return false, res.Error
		}
		return res.RowsAffected == 1, nil
	}

	saved := false
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := outcomeQuery(tx, kind, id, from, outcome, time.Now())
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return nil
		}

		var p models.Payout
		if err := payouts(tx, kind).Where("id = ?", id).First(&p).Error; err != nil {
			return err
		}
		p.Kind = kind
		if err := refundBalance(tx, &p); err != nil {
			return err
		}
		saved = true
		return nil
	})
	return saved, err
}

func retryableQuery(db *gorm.DB, kind models.PayoutKind, cutoff time.Time, maxRetries, limit int) *gorm.DB {
	return payouts(db, kind).
		Where("status = ? AND failure_code = ? AND retry_count < ? AND updated_at <= ?",
			models.PayoutStatusFailed, models.FailureProviderError, maxRetries, cutoff).
		Order("updated_at ASC").
		Limit(limit)
}

func (s *Store) ListRetryable(ctx context.Context, kind models.PayoutKind, cutoff time.Time, maxRetries, limit int) ([]models.Payout, error) {
	var list []models.Payout
	if err := retryableQuery(s.db.WithContext(ctx), kind, cutoff, maxRetries, limit).Find(&list).Error; err != nil {
		return nil, err
	}
	return withKind(list, kind), nil
}

// CreatePayout locks the source balance row, debits it and inserts the payout
// in one transaction.
func (s *Store) CreatePayout(ctx context.Context, p *models.Payout) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := debitBalance(tx, p); err != nil {
			return err
		}
		if p.ID == uuid.Nil {
			p.ID = uuid.New()
		}
		return payouts(tx, p.Kind).Create(p).Error
	})
}

func debitBalance(tx *gorm.DB, p *models.Payout) error {
	locked := tx.Clauses(clause.Locking{Strength: "UPDATE"})
	switch p.Kind {
	case models.PayoutKindCampaign:
		var campaign models.Campaign
		if err := locked.Where("id = ?", p.CampaignID).First(&campaign).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperrors.ErrCampaignNotFound
			}
			return err
		}
		if campaign.Available().LessThan(p.RequestedAmount) {
			return apperrors.ErrInsufficientFunds
		}
		return tx.Model(&models.Campaign{}).Where("id = ?", campaign.ID).
			Update("withdrawn_amount", gorm.Expr("withdrawn_amount + ?", p.RequestedAmount)).Error
	case models.PayoutKindCommission:
		var chainer models.Chainer
		if err := locked.Where("id = ?", p.ChainerID).First(&chainer).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperrors.ErrChainerNotFound
			}
			return err
		}
		if chainer.Available().LessThan(p.RequestedAmount) {
			return apperrors.ErrInsufficientFunds
		}
		return tx.Model(&models.Chainer{}).Where("id = ?", chainer.ID).
			Update("commission_paid", gorm.Expr("commission_paid + ?", p.RequestedAmount)).Error
	}
	return apperrors.NewValidationError("kind", "unknown payout kind")
}

func refundQuery(tx *gorm.DB, p *models.Payout) *gorm.DB {
	if p.Kind == models.PayoutKindCommission && p.ChainerID != nil {
		return tx.Model(&models.Chainer{}).Where("id = ?", *p.ChainerID).
			Update("commission_paid", gorm.Expr("commission_paid - ?", p.RequestedAmount))
	}
	return tx.Model(&models.Campaign{}).Where("id = ?", p.CampaignID).
		Update("withdrawn_amount", gorm.Expr("withdrawn_amount - ?", p.RequestedAmount))
}

func refundBalance(tx *gorm.DB, p *models.Payout) error {
	return refundQuery(tx, p).Error
}

// RejectPayout moves a pending payout to rejected and gives the amount back.
func (s *Store) RejectPayout(ctx context.Context, kind models.PayoutKind, id uuid.UUID, notes string) (bool, error) {
	rejected := false
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := payouts(tx, kind).
			Where("id = ? AND status = ?", id, models.PayoutStatusPending).
			Updates(map[string]interface{}{
				"status":     models.PayoutStatusRejected,
				"notes":      notes,
				"updated_at": time.Now(),
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return nil
		}

		var p models.Payout
		if err := payouts(tx, kind).Where("id = ?", id).First(&p).Error; err != nil {
			return err
		}
		p.Kind = kind
		if err := refundBalance(tx, &p); err != nil {
			return err
		}
		rejected = true
		return nil
	})
	return rejected, err
}

func (s *Store) ListPayouts(ctx context.Context, kind models.PayoutKind, status string) ([]models.Payout, error) {
	q := payouts(s.db.WithContext(ctx), kind).Order("created_at DESC")
	if status != "" {
		q = q.Where("status = ?", status)
	}
	var list []models.Payout
	if err := q.Find(&list).Error; err != nil {
		return nil, err
	}
	return withKind(list, kind), nil
}

func (s *Store) ListPayoutsForOwner(ctx context.Context, ownerID uuid.UUID) ([]models.Payout, error) {
	var all []models.Payout
	for _, kind := range models.PayoutKinds {
		var list []models.Payout
		if err := payouts(s.db.WithContext(ctx), kind).Where("owner_id = ?", ownerID).Find(&list).Error; err != nil {
			return nil, err
		}
		all = append(all, withKind(list, kind)...)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].CreatedAt.After(all[j].CreatedAt) })
	return all, nil
}

// FindPayoutByReference looks up the payout whose last attempt used reference.
func (s *Store) FindPayoutByReference(ctx context.Context, reference string) (*models.Payout, error) {
	for _, kind := range models.PayoutKinds {
		var p models.Payout
		err := payouts(s.db.WithContext(ctx), kind).Where("provider_reference = ?", reference).First(&p).Error
		if err == nil {
			p.Kind = kind
			return &p, nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
	}
	return nil, apperrors.ErrPayoutNotFound
}

func withKind(list []models.Payout, kind models.PayoutKind) []models.Payout {
	for i := range list {
		list[i].Kind = kind
	}
	return list
}
