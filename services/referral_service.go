package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/chainfundit/backend/apperrors"
	"github.com/chainfundit/backend/models"
	"github.com/chainfundit/backend/utils"
)

type ReferralStore interface {
	GetCampaign(ctx context.Context, id uuid.UUID) (*models.Campaign, error)
	FindChainer(ctx context.Context, userID, campaignID uuid.UUID) (*models.Chainer, error)
	FindChainerByCode(ctx context.Context, code string) (*models.Chainer, error)
	ReferralCodeExists(ctx context.Context, code string) (bool, error)
	CreateChainer(ctx context.Context, chainer *models.Chainer) error
	// SaveDonation inserts the donation and credits the campaign and chainer in one
	// transaction. A reused provider reference yields apperrors.ErrDuplicateDonation.
	SaveDonation(ctx context.Context, donation *models.Donation) error
}

type DonationInput struct {
	CampaignID        uuid.UUID
	ReferralCode      string
	DonorEmail        string
	Amount            decimal.Decimal
	Currency          string
	Provider          string
	ProviderReference string
}

type ReferralService struct {
	store  ReferralStore
	logger *zap.Logger
}

func NewReferralService(store ReferralStore, logger *zap.Logger) *ReferralService {
	return &ReferralService{store: store, logger: logger}
}

// JoinCampaign makes the user a chainer of the campaign. Joining twice returns
// the existing chainer.
func (s *ReferralService) JoinCampaign(ctx context.Context, userID, campaignID uuid.UUID) (*models.Chainer, error) {
	campaign, err := s.store.GetCampaign(ctx, campaignID)
	if err != nil {
		return nil, err
	}
	if campaign.OwnerID == userID {
		return nil, apperrors.NewValidationError("campaign_id", "owners cannot chain their own campaign")
	}

	existing, err := s.store.FindChainer(ctx, userID, campaignID)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, apperrors.ErrChainerNotFound) {
		return nil, err
	}

	code, err := utils.GenerateUniqueReferralCode(func(code string) (bool, error) {
		return s.store.ReferralCodeExists(ctx, code)
	})
	if err != nil {
		return nil, fmt.Errorf("generate referral code: %w", err)
	}

	chainer := &models.Chainer{
		UserID:       userID,
		CampaignID:   campaignID,
		ReferralCode: code,
	}
	if err := s.store.CreateChainer(ctx, chainer); err != nil {
		return nil, fmt.Errorf("create chainer: %w", err)
	}
	s.logger.Info("chainer joined campaign",
		zap.String("campaign_id", campaignID.String()),
		zap.String("user_id", userID.String()),
		zap.String("referral_code", code))
	return chainer, nil
}

// RecordDonation credits a successful charge to its campaign and, when the
// referral code belongs to a chainer of that campaign, pays the chainer commission.
func (s *ReferralService) RecordDonation(ctx context.Context, in DonationInput) (*models.Donation, error) {
	if !in.Amount.IsPositive() {
		return nil, apperrors.NewValidationError("amount", "must be greater than zero")
	}
	if in.ProviderReference == "" {
		return nil, apperrors.NewValidationError("reference", "is required")
	}

	campaign, err := s.store.GetCampaign(ctx, in.CampaignID)
	if err != nil {
		return nil, err
	}
	if !strings.EqualFold(campaign.Currency, in.Currency) {
		return nil, apperrors.NewValidationError("currency", fmt.Sprintf("campaign accepts %s only", campaign.Currency))
	}

	donation := &models.Donation{
		CampaignID:        campaign.ID,
		DonorEmail:        in.DonorEmail,
		Amount:            in.Amount.Round(2),
		Currency:          strings.ToUpper(in.Currency),
		CommissionAmount:  decimal.Zero,
		Provider:          in.Provider,
		ProviderReference: in.ProviderReference,
		Status:            "succeeded",
	}

	if code := strings.ToUpper(strings.TrimSpace(in.ReferralCode)); code != "" {
		chainer, err := s.store.FindChainerByCode(ctx, code)
		switch {
		case err == nil && chainer.CampaignID == campaign.ID:
			donation.ChainerID = &chainer.ID
			donation.CommissionAmount = donation.Amount.Mul(campaign.CommissionRate).Round(2)
		case err == nil, errors.Is(err, apperrors.ErrChainerNotFound):
			s.logger.Warn("ignoring referral code for donation",
				zap.String("referral_code", code), zap.String("campaign_id", campaign.ID.String()))
		default:
			return nil, err
		}
	}

	if err := s.store.SaveDonation(ctx, donation); err != nil {
		return nil, err
	}
	s.logger.Info("donation recorded",
		zap.String("campaign_id", campaign.ID.String()),
		zap.String("amount", donation.Amount.StringFixed(2)),
		zap.String("commission", donation.CommissionAmount.StringFixed(2)))
	return donation, nil
}
