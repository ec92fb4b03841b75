package jobs

import (
	"context"
	"errors"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/chainfundit/backend/apperrors"
)

type Schedule struct {
	Sweep         string
	Notifications string
	RateRefresh   string
}

type RateRefresher interface {
	Refresh(ctx context.Context) error
}

// cronLogger routes cron's own messages into zap.
type cronLogger struct {
	sugar *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.sugar.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.sugar.Errorw(msg, append(keysAndValues, "error", err)...)
}

// NewScheduler registers the background jobs. Every job runs with ctx, which
// main cancels on shutdown.
func NewScheduler(
	ctx context.Context,
	schedule Schedule,
	sweeper *PayoutRetrySweeper,
	dispatcher *NotificationDispatcher,
	rates RateRefresher,
	logger *zap.Logger,
) (*cron.Cron, error) {
	clog := cronLogger{sugar: logger.Sugar()}
	c := cron.New(cron.WithChain(cron.Recover(clog), cron.SkipIfStillRunning(clog)), cron.WithLogger(clog))

	if _, err := c.AddFunc(schedule.Sweep, func() {
		if _, err := sweeper.Run(ctx); err != nil {
			if errors.Is(err, apperrors.ErrSweepInProgress) {
				logger.Info("payout retry sweep already running elsewhere")
				return
			}
			logger.Error("payout retry sweep failed", zap.Error(err))
		}
	}); err != nil {
		return nil, err
	}

	if _, err := c.AddFunc(schedule.Notifications, func() {
		sent, err := dispatcher.Run(ctx)
		if err != nil {
			logger.Error("notification dispatch failed", zap.Error(err))
			return
		}
		if sent > 0 {
			logger.Info("notifications dispatched", zap.Int("sent", sent))
		}
	}); err != nil {
		return nil, err
	}

	if _, err := c.AddFunc(schedule.RateRefresh, func() {
		if err := rates.Refresh(ctx); err != nil {
			logger.Warn("exchange rate refresh failed", zap.Error(err))
		}
	}); err != nil {
		return nil, err
	}

	return c, nil
}
