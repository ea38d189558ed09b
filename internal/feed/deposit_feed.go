package feed

import (
	"context"
	"log/slog"

	"github.com/quietbet/poolhouse/internal/domain"
	"github.com/quietbet/poolhouse/internal/platform/wallet"
	"github.com/quietbet/poolhouse/internal/service"
)

// DepositFeed bridges the wallet's deposit stream into the engine. Wallet
// delivery is at least once; the services behind the router dedupe, so the
// feed just forwards and logs failures.
type DepositFeed struct {
	ws     *wallet.Feed
	router *service.DepositRouter
	logger *slog.Logger
}

// NewDepositFeed creates a DepositFeed.
func NewDepositFeed(ws *wallet.Feed, router *service.DepositRouter, logger *slog.Logger) *DepositFeed {
	return &DepositFeed{
		ws:     ws,
		router: router,
		logger: logger.With(slog.String("component", "deposit_feed")),
	}
}

// Run connects the wallet stream and blocks until ctx is done.
func (f *DepositFeed) Run(ctx context.Context) error {
	f.ws.OnDeposit(func(ev domain.DepositEvent) {
		if err := f.router.Route(ctx, ev); err != nil {
			f.logger.ErrorContext(ctx, "deposit handling failed",
				slog.String("funding_ref", ev.FundingRef),
				slog.String("tx_ref", ev.TxRef),
				slog.String("error", err.Error()),
			)
		}
	})

	if err := f.ws.Connect(ctx); err != nil {
		return err
	}
	f.logger.Info("deposit feed started")
	defer f.logger.Info("deposit feed stopped")

	<-ctx.Done()
	_ = f.ws.Close()
	return ctx.Err()
}
