package feed

import (
	"context"
	"log/slog"

	"github.com/quietbet/poolhouse/internal/domain"
	"github.com/quietbet/poolhouse/internal/service"
)

// ResolutionFeed consumes oracle resolution events from the signal bus and
// drives settlement. Oracles retry, so a failed event is only logged; the
// retry lands as a fresh bus message.
type ResolutionFeed struct {
	bus    domain.SignalBus
	settle *service.SettlementService
	logger *slog.Logger
}

// NewResolutionFeed creates a ResolutionFeed.
func NewResolutionFeed(bus domain.SignalBus, settle *service.SettlementService, logger *slog.Logger) *ResolutionFeed {
	return &ResolutionFeed{
		bus:    bus,
		settle: settle,
		logger: logger.With(slog.String("component", "resolution_feed")),
	}
}

// Run subscribes to resolutions and blocks until ctx is done.
func (f *ResolutionFeed) Run(ctx context.Context) error {
	ch, err := f.bus.SubscribeResolutions(ctx)
	if err != nil {
		return err
	}
	f.logger.Info("resolution feed started")
	defer f.logger.Info("resolution feed stopped")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-ch:
			if !ok {
				return nil
			}
			if err := f.settle.HandleResolution(ctx, ev); err != nil {
				f.logger.ErrorContext(ctx, "resolution handling failed",
					slog.String("market_id", ev.MarketID),
					slog.String("resolution_ref", ev.ResolutionRef),
					slog.String("error", err.Error()),
				)
			}
		}
	}
}
