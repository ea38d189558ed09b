package service

import (
	"context"
	"log/slog"
	"time"
)

// ExpiryWorker periodically closes due markets and expires overdue bets and
// slips. One sweep failure is logged and the next tick retries; the worker
// only stops with its context.
type ExpiryWorker struct {
	pools    *PoolService
	bets     *BetService
	slips    *SlipService
	interval time.Duration
	logger   *slog.Logger
}

// NewExpiryWorker creates an ExpiryWorker.
func NewExpiryWorker(pools *PoolService, bets *BetService, slips *SlipService, interval time.Duration, logger *slog.Logger) *ExpiryWorker {
	return &ExpiryWorker{
		pools:    pools,
		bets:     bets,
		slips:    slips,
		interval: interval,
		logger:   logger.With(slog.String("component", "expiry_worker")),
	}
}

// Run blocks until ctx is done, sweeping once per interval.
func (w *ExpiryWorker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.logger.InfoContext(ctx, "expiry worker started", slog.Duration("interval", w.interval))
	for {
		select {
		case <-ctx.Done():
			w.logger.InfoContext(ctx, "expiry worker stopped")
			return ctx.Err()
		case <-ticker.C:
			w.sweep(ctx)
		}
	}
}

func (w *ExpiryWorker) sweep(ctx context.Context) {
	now := time.Now().UTC()

	closed, err := w.pools.CloseDue(ctx, now)
	if err != nil {
		w.logger.ErrorContext(ctx, "market close sweep failed", slog.String("error", err.Error()))
	}
	expiredBets, err := w.bets.ExpireOverdue(ctx, now)
	if err != nil {
		w.logger.ErrorContext(ctx, "bet expiry sweep failed", slog.String("error", err.Error()))
	}
	expiredSlips, err := w.slips.ExpireOverdue(ctx, now)
	if err != nil {
		w.logger.ErrorContext(ctx, "slip expiry sweep failed", slog.String("error", err.Error()))
	}

	if closed+expiredBets+expiredSlips > 0 {
		w.logger.InfoContext(ctx, "expiry sweep",
			slog.Int("markets_closed", closed),
			slog.Int("bets_expired", expiredBets),
			slog.Int("slips_expired", expiredSlips),
		)
	}
}

// PruneWorker periodically strips unstakeable legs from draft slips.
type PruneWorker struct {
	slips    *SlipService
	interval time.Duration
	logger   *slog.Logger
}

// NewPruneWorker creates a PruneWorker.
func NewPruneWorker(slips *SlipService, interval time.Duration, logger *slog.Logger) *PruneWorker {
	return &PruneWorker{
		slips:    slips,
		interval: interval,
		logger:   logger.With(slog.String("component", "prune_worker")),
	}
}

// Run blocks until ctx is done, pruning once per interval.
func (w *PruneWorker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.logger.InfoContext(ctx, "prune worker started", slog.Duration("interval", w.interval))
	for {
		select {
		case <-ctx.Done():
			w.logger.InfoContext(ctx, "prune worker stopped")
			return ctx.Err()
		case <-ticker.C:
			pruned, err := w.slips.PruneDrafts(ctx, time.Now().UTC())
			if err != nil {
				w.logger.ErrorContext(ctx, "draft prune failed", slog.String("error", err.Error()))
				continue
			}
			if pruned > 0 {
				w.logger.InfoContext(ctx, "draft legs pruned", slog.Int("legs", pruned))
			}
		}
	}
}
