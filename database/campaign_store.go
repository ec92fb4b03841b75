package database

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/chainfundit/backend/apperrors"
	"github.com/chainfundit/backend/models"
)

func (s *Store) GetCampaign(ctx context.Context, id uuid.UUID) (*models.Campaign, error) {
	var campaign models.Campaign
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&campaign).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrCampaignNotFound
		}
		return nil, err
	}
	return &campaign, nil
}

func (s *Store) GetChainer(ctx context.Context, id uuid.UUID) (*models.Chainer, error) {
	return s.findChainer(ctx, "id = ?", id)
}

func (s *Store) FindChainer(ctx context.Context, userID, campaignID uuid.UUID) (*models.Chainer, error) {
	return s.findChainer(ctx, "user_id = ? AND campaign_id = ?", userID, campaignID)
}

func (s *Store) FindChainerByCode(ctx context.Context, code string) (*models.Chainer, error) {
	return s.findChainer(ctx, "referral_code = ?", code)
}

func (s *Store) findChainer(ctx context.Context, query string, args ...interface{}) (*models.Chainer, error) {
	var chainer models.Chainer
	if err := s.db.WithContext(ctx).Where(query, args...).First(&chainer).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrChainerNotFound
		}
		return nil, err
	}
	return &chainer, nil
}

func (s *Store) ReferralCodeExists(ctx context.Context, code string) (bool, error) {
	var count int64
	if err := s.db.WithContext(ctx).Model(&models.Chainer{}).Where("referral_code = ?", code).Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

func (s *Store) CreateChainer(ctx context.Context, chainer *models.Chainer) error {
	return s.db.WithContext(ctx).Create(chainer).Error
}

func (s *Store) SaveDonation(ctx context.Context, donation *models.Donation) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(donation).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return apperrors.ErrDuplicateDonation
			}
			return err
		}

		credited := donation.Amount.Sub(donation.CommissionAmount)
		if err := tx.Model(&models.Campaign{}).Where("id = ?", donation.CampaignID).
			Update("raised_amount", gorm.Expr("raised_amount + ?", credited)).Error; err != nil {
			return err
		}

		if donation.ChainerID == nil || donation.CommissionAmount.IsZero() {
			return nil
		}
		return tx.Model(&models.Chainer{}).Where("id = ?", *donation.ChainerID).
			Update("commission_earned", gorm.Expr("commission_earned + ?", donation.CommissionAmount)).Error
	})
}
