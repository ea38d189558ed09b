package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/quietbet/poolhouse/internal/feed"
	"github.com/quietbet/poolhouse/internal/notify"
	"github.com/quietbet/poolhouse/internal/server"
	"github.com/quietbet/poolhouse/internal/server/handler"
	"github.com/quietbet/poolhouse/internal/server/ws"
	"github.com/quietbet/poolhouse/internal/service"
)

// services bundles the domain services built once per process.
type services struct {
	pools   *service.PoolService
	bets    *service.BetService
	slips   *service.SlipService
	settle  *service.SettlementService
	history *service.HistoryService
	router  *service.DepositRouter
}

// buildServices constructs the service layer from wired dependencies.
func (a *App) buildServices(deps *Dependencies) *services {
	eng := a.cfg.Engine

	pools := service.NewPoolService(
		deps.MarketStore, deps.SnapshotCache, deps.LockManager, deps.AuditStore,
		eng.FeePPM, eng.LockTTL.Duration, a.logger,
	)
	bets := service.NewBetService(
		deps.BetStore, deps.MarketStore, pools,
		deps.LockManager, deps.Wallet, deps.Rates, deps.AuditStore,
		eng.Currency, eng.FundingTTL.Duration, eng.LockTTL.Duration, a.logger,
	)
	slips := service.NewSlipService(
		deps.SlipStore, deps.BetStore, deps.MarketStore, deps.EventStore, pools,
		deps.LockManager, deps.Wallet, deps.Rates, deps.AuditStore,
		eng.Currency, eng.FundingTTL.Duration, eng.UndoTTL.Duration, eng.LockTTL.Duration, a.logger,
	)
	settle := service.NewSettlementService(
		deps.MarketStore, deps.BetStore, deps.SlipStore, deps.EventStore,
		deps.HistoryStore, deps.SnapshotCache, deps.LockManager, deps.SignalBus,
		deps.AuditStore, eng.FeePPM, eng.LockTTL.Duration, a.logger,
	)
	history := service.NewHistoryService(deps.HistoryStore, a.logger)
	router := service.NewDepositRouter(deps.BetStore, deps.SlipStore, bets, slips, a.logger)

	return &services{
		pools:   pools,
		bets:    bets,
		slips:   slips,
		settle:  settle,
		history: history,
		router:  router,
	}
}

// ServeMode runs the full online engine: deposit and resolution feeds, the
// expiry and prune workers, the notification listener, and the HTTP API.
func (a *App) ServeMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting serve mode")

	g, ctx := errgroup.WithContext(ctx)
	svcs := a.buildServices(deps)

	// Deposit feed: wallet WebSocket confirmations routed to bets and slips.
	depositFeed := feed.NewDepositFeed(deps.WalletFeed, svcs.router, a.logger)
	g.Go(func() error {
		return depositFeed.Run(ctx)
	})

	// Resolution feed: oracle outcomes from the signal bus into settlement.
	resolutionFeed := feed.NewResolutionFeed(deps.SignalBus, svcs.settle, a.logger)
	g.Go(func() error {
		return resolutionFeed.Run(ctx)
	})

	// Expiry worker: closes due markets and expires overdue funding windows.
	expiry := service.NewExpiryWorker(
		svcs.pools, svcs.bets, svcs.slips,
		a.cfg.Engine.ExpiryInterval.Duration, a.logger,
	)
	g.Go(func() error {
		return expiry.Run(ctx)
	})

	// Prune worker: sweeps dead legs out of draft slips.
	prune := service.NewPruneWorker(svcs.slips, a.cfg.Engine.PruneInterval.Duration, a.logger)
	g.Go(func() error {
		return prune.Run(ctx)
	})

	// Notification listener: settlement notices out to Telegram and Discord.
	listener := notify.NewListener(deps.SignalBus, deps.Notifier, a.logger)
	g.Go(func() error {
		return listener.Run(ctx)
	})

	if a.cfg.Server.Enabled {
		a.startHTTPServer(ctx, g, deps, svcs)
	}

	return g.Wait()
}

// ReconcileMode runs the one-shot legacy reconciliation report and exits. The
// report is streamed to stdout as JSON lines followed by a summary line.
func (a *App) ReconcileMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting reconcile mode")

	svcs := a.buildServices(deps)
	summary, err := svcs.history.WriteReport(ctx, os.Stdout)
	if err != nil {
		return fmt.Errorf("reconcile mode: %w", err)
	}

	a.logger.InfoContext(ctx, "reconciliation report complete",
		slog.Int64("records", summary.Records),
	)
	return nil
}

// ArchiveMode runs a one-shot archival pass, moving settled bets and old
// settlement events past the retention window into object storage.
func (a *App) ArchiveMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting archive mode",
		slog.Int("retention_days", a.cfg.Archive.RetentionDays),
	)

	return a.runArchivePass(ctx, deps)
}

// FullMode runs everything: the online engine plus a periodic archival sweep
// when archiving is enabled.
func (a *App) FullMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting full mode")

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return a.ServeMode(ctx, deps)
	})

	if a.cfg.Archive.Enabled && deps.Archiver != nil {
		g.Go(func() error {
			// Daily sweep; the retention cutoff keeps each pass idempotent.
			ticker := time.NewTicker(24 * time.Hour)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return ctx.Err()
				case <-ticker.C:
					if err := a.runArchivePass(ctx, deps); err != nil {
						a.logger.WarnContext(ctx, "archival sweep failed",
							slog.String("error", err.Error()),
						)
					}
				}
			}
		})
	}

	return g.Wait()
}

// runArchivePass archives settled bets and settlement events older than the
// configured retention window.
func (a *App) runArchivePass(ctx context.Context, deps *Dependencies) error {
	if deps.Archiver == nil {
		return fmt.Errorf("archive: object storage not wired")
	}

	cutoff := time.Now().UTC().AddDate(0, 0, -a.cfg.Archive.RetentionDays)

	bets, err := deps.Archiver.ArchiveBets(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("archive: bets: %w", err)
	}
	events, err := deps.Archiver.ArchiveSettlementEvents(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("archive: settlement events: %w", err)
	}

	a.logger.InfoContext(ctx, "archival pass complete",
		slog.Time("cutoff", cutoff),
		slog.Int64("bets", bets),
		slog.Int64("events", events),
	)

	// Summarize what cold storage holds so operators can spot a pass that
	// deleted rows without leaving an object behind.
	if deps.BlobReader != nil {
		objects, err := deps.BlobReader.List(ctx, "archive/")
		if err != nil {
			a.logger.WarnContext(ctx, "archive inventory listing failed",
				slog.String("error", err.Error()),
			)
			return nil
		}
		var bytes int64
		for _, obj := range objects {
			bytes += obj.Size
		}
		a.logger.InfoContext(ctx, "archive inventory",
			slog.Int("objects", len(objects)),
			slog.Int64("bytes", bytes),
		)
	}
	return nil
}

// startHTTPServer builds the handler set, attaches the WebSocket hub, and
// runs the HTTP server under the errgroup with graceful shutdown.
func (a *App) startHTTPServer(ctx context.Context, g *errgroup.Group, deps *Dependencies, svcs *services) {
	hub := ws.NewHub(ws.Config{
		Mode:      a.cfg.Mode,
		StartedAt: time.Now().UTC(),
	}, deps.SignalBus, a.logger)
	g.Go(func() error {
		return hub.Run(ctx)
	})

	health := handler.NewHealthHandler(a.logger).
		WithProbe("postgres", deps.PG).
		WithProbe("redis", deps.Redis)

	handlers := server.Handlers{
		Health:  health,
		Status:  handler.NewStatusHandler(a.cfg.Mode, a.cfg.Engine.Currency, a.cfg.Engine.FeePPM, time.Now().UTC()),
		Markets: handler.NewMarketHandler(svcs.pools, a.logger),
		Bets:    handler.NewBetHandler(svcs.bets, a.logger),
		Slips:   handler.NewSlipHandler(svcs.slips, a.logger),
		History: handler.NewHistoryHandler(svcs.history, a.logger),
		Audit:   handler.NewAuditHandler(deps.AuditStore, a.logger),
	}

	srv := server.NewServer(server.Config{
		Port:        a.cfg.Server.Port,
		CORSOrigins: a.cfg.Server.CORSOrigins,
		APIKey:      a.cfg.Server.ApiKey,
	}, handlers, hub, a.logger)

	g.Go(func() error {
		return srv.Start()
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
}
