package jobs

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/ratelimit"
	"go.uber.org/zap"

	"github.com/chainfundit/backend/apperrors"
	"github.com/chainfundit/backend/cache"
	"github.com/chainfundit/backend/models"
)

const (
	sweepLockName   = "payout-retry-sweep"
	sweepLockTTL    = 10 * time.Minute
	// No new payout is started this close to lock expiry. It has to cover one
	// payout: recipient creation plus a transfer, each up to the provider timeout.
	sweepLockMargin = 2 * time.Minute
)

var errSweepOutOfTime = errors.New("sweep lock about to expire")

type RetryStore interface {
	// ListRetryable returns failed payouts with a provider_error, fewer than
	// maxRetries retries and updated_at at or before cutoff, oldest first.
	ListRetryable(ctx context.Context, kind models.PayoutKind, cutoff time.Time, maxRetries, limit int) ([]models.Payout, error)
}

type PayoutRetrier interface {
	Retry(ctx context.Context, kind models.PayoutKind, id uuid.UUID) (*models.Payout, error)
}

type Locker interface {
	TryLock(ctx context.Context, name string, ttl time.Duration) (cache.ReleaseFunc, bool, error)
}

type SweepStats struct {
	Attempted int `json:"attempted"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
	Skipped   int `json:"skipped"`
	Deferred  int `json:"deferred"` // left for the next run as the lock ran short
}

type SweepResult struct {
	Kinds map[models.PayoutKind]*SweepStats `json:"kinds"`
}

func (r SweepResult) Total() SweepStats {
	var total SweepStats
	for _, s := range r.Kinds {
		total.Attempted += s.Attempted
		total.Succeeded += s.Succeeded
		total.Failed += s.Failed
		total.Skipped += s.Skipped
		total.Deferred += s.Deferred
	}
	return total
}

type SweeperConfig struct {
	MaxRetries int
	RetryDelay time.Duration
	BatchSize  int
}

// PayoutRetrySweeper re-drives payouts that failed with a retryable provider
// error. Each payout commits on its own; running it twice is safe.
type PayoutRetrySweeper struct {
	store   RetryStore
	retrier PayoutRetrier
	locker  Locker
	limiter ratelimit.Limiter
	cfg     SweeperConfig
	now     func() time.Time
	logger  *zap.Logger
}

func NewPayoutRetrySweeper(
	store RetryStore,
	retrier PayoutRetrier,
	locker Locker,
	limiter ratelimit.Limiter,
	cfg SweeperConfig,
	logger *zap.Logger,
) *PayoutRetrySweeper {
	if limiter == nil {
		limiter = ratelimit.NewUnlimited()
	}
	return &PayoutRetrySweeper{
		store:   store,
		retrier: retrier,
		locker:  locker,
		limiter: limiter,
		cfg:     cfg,
		now:     time.Now,
		logger:  logger,
	}
}

func (s *PayoutRetrySweeper) Run(ctx context.Context) (SweepResult, error) {
	result := SweepResult{Kinds: make(map[models.PayoutKind]*SweepStats, len(models.PayoutKinds))}
	for _, kind := range models.PayoutKinds {
		result.Kinds[kind] = &SweepStats{}
	}

	release, ok, err := s.locker.TryLock(ctx, sweepLockName, sweepLockTTL)
	if err != nil {
		return result, err
	}
	if !ok {
		return result, apperrors.ErrSweepInProgress
	}
	defer func() {
		if err := release(context.Background()); err != nil {
			s.logger.Warn("failed to release sweep lock", zap.Error(err))
		}
	}()

	start := s.now()
	cutoff := start.Add(-s.cfg.RetryDelay)
	deadline := start.Add(sweepLockTTL - sweepLockMargin)
	for _, kind := range models.PayoutKinds {
		err := s.sweepKind(ctx, kind, cutoff, deadline, result.Kinds[kind])
		if errors.Is(err, errSweepOutOfTime) {
			s.logger.Warn("payout retry sweep stopped before its lock expired",
				zap.String("kind", string(kind)),
				zap.Duration("elapsed", s.now().Sub(start)))
			break
		}
		if err != nil {
			return result, err
		}
	}

	total := result.Total()
	s.logger.Info("payout retry sweep finished",
		zap.Int("attempted", total.Attempted),
		zap.Int("succeeded", total.Succeeded),
		zap.Int("failed", total.Failed),
		zap.Int("skipped", total.Skipped),
		zap.Int("deferred", total.Deferred))
	return result, nil
}

func (s *PayoutRetrySweeper) sweepKind(ctx context.Context, kind models.PayoutKind, cutoff, deadline time.Time, stats *SweepStats) error {
	payouts, err := s.store.ListRetryable(ctx, kind, cutoff, s.cfg.MaxRetries, s.cfg.BatchSize)
	if err != nil {
		return err
	}

	for i, candidate := range payouts {
		if err := ctx.Err(); err != nil {
			return err
		}
		if !s.now().Before(deadline) {
			stats.Deferred += len(payouts) - i
			return errSweepOutOfTime
		}
		if candidate.RetryCount >= s.cfg.MaxRetries {
			stats.Skipped++
			continue
		}

		s.limiter.Take()
		payout, err := s.retrier.Retry(ctx, kind, candidate.ID)
		if errors.Is(err, apperrors.ErrInvalidState) {
			// Someone else moved it since the select.
			stats.Skipped++
			continue
		}

		stats.Attempted++
		switch {
		case err != nil:
			stats.Failed++
			s.logger.Error("payout retry errored",
				zap.String("payout_id", candidate.ID.String()),
				zap.String("kind", string(kind)),
				zap.Error(err))
		case payout.Status == models.PayoutStatusCompleted:
			stats.Succeeded++
		default:
			stats.Failed++
		}
	}
	return nil
}
