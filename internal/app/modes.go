package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	s3blob "github.com/alanyoungcy/studiobot/internal/blob/s3"
	"github.com/alanyoungcy/studiobot/internal/cache/redis"
	"github.com/alanyoungcy/studiobot/internal/config"
	"github.com/alanyoungcy/studiobot/internal/domain"
	"github.com/alanyoungcy/studiobot/internal/engine"
	"github.com/alanyoungcy/studiobot/internal/feed"
	"github.com/alanyoungcy/studiobot/internal/notify"
	"github.com/alanyoungcy/studiobot/internal/platform/polygon"
	"github.com/alanyoungcy/studiobot/internal/platform/studio"
	"github.com/alanyoungcy/studiobot/internal/server"
	"github.com/alanyoungcy/studiobot/internal/server/handler"
	"github.com/alanyoungcy/studiobot/internal/server/ws"
	"github.com/alanyoungcy/studiobot/internal/service"
	"github.com/alanyoungcy/studiobot/internal/strategy"
)

const (
	alertQueueSize    = 64
	archiveTimeout    = 2 * time.Minute
	hubStatusInterval = time.Second
)

// TradeMode runs one engine for the configured symbol with the policy named
// by the mode. It returns after the engine stops and the shutdown
// cancel-all and session archive have been attempted.
func (a *App) TradeMode(ctx context.Context, deps *Dependencies) error {
	cfg := a.cfg
	symbol := cfg.Engine.Symbol
	logger := a.logger

	// Single-engine guard per account and symbol, taken before the startup
	// cancel-all can touch another instance's orders.
	var lock domain.Lock
	if deps.LockManager != nil {
		var err error
		lock, err = deps.LockManager.Acquire(ctx, redis.EngineLockKey(cfg.Studio.Account, symbol), cfg.Redis.LockTTL.Duration)
		if err != nil {
			return fmt.Errorf("app: engine lock: %w", err)
		}
		a.closers = append(a.closers, lock.Release)
	}

	limits := riskLimits(cfg.Engine)
	policy, err := strategy.DefaultRegistry().Build(cfg.Mode, strategy.Params{
		Limits: limits,
		Maker: strategy.MakerConfig{
			Symbol:        symbol,
			NumLevels:     cfg.Maker.NumLevels,
			MinEdge:       cfg.Maker.MinEdge,
			TheoThreshold: cfg.Maker.TheoThreshold,
		},
		Taker: strategy.TakerConfig{
			Symbol:        symbol,
			TriggerSymbol: cfg.Taker.TriggerSymbol,
			MinEdge:       cfg.Taker.MinEdge,
			MinBars:       cfg.Taker.MinBars,
			EMAWindow:     cfg.Taker.EMAWindow,
			OrderSize:     cfg.Taker.OrderSize,
		},
	})
	if err != nil {
		return fmt.Errorf("app: build policy: %w", err)
	}

	// Gateway, optionally reporting every call on the signal bus.
	var gateway engine.Gateway = studio.NewClient(studio.Config{
		BaseURL:    cfg.Studio.URL,
		Auth:       cfg.Studio.Auth,
		Account:    cfg.Studio.Account,
		Timeout:    cfg.Studio.Timeout.Duration,
		MaxRetries: cfg.Gateway.MaxRetries,
		RetryBase:  cfg.Gateway.RetryBase.Duration,
		RetryMax:   cfg.Gateway.RetryMax.Duration,
	}, logger)
	if deps.SignalBus != nil {
		gateway = service.NewOrderService(gateway, deps.SignalBus, symbol, logger)
	}

	journal := service.NewJournal(symbol, logger, journalOptions(deps)...)
	opts := []engine.Option{engine.WithRecorder(journal)}

	var alerts *notify.Queue
	if deps.Notifier != nil {
		alerts = notify.NewQueue(deps.Notifier, alertQueueSize, logger)
		opts = append(opts, engine.WithAlerter(alerts))
	}

	eng, err := engine.New(engine.Config{
		Symbol:          symbol,
		Limits:          limits,
		EvalInterval:    cfg.Engine.EvalInterval.Duration,
		QueueSize:       cfg.Engine.QueueSize,
		ShutdownTimeout: cfg.Engine.ShutdownTimeout.Duration,
	}, policy, gateway, logger, opts...)
	if err != nil {
		return fmt.Errorf("app: %w", err)
	}

	// Start from an empty book before any feed delivers.
	if err := eng.Start(ctx); err != nil {
		return fmt.Errorf("app: %w", err)
	}

	marketClient := polygon.NewClient(cfg.Polygon.WSURL, cfg.Polygon.APIKey, policy.Symbols(),
		feed.NewMarketFeed(eng, deps.PriceCache, logger), logger)
	activityClient := studio.NewActivityClient(cfg.Studio.URL, cfg.Studio.Auth, cfg.Studio.Account,
		feed.NewActivityFeed(eng), logger)
	activityClient.SetReconnectBackoff(cfg.Studio.ReconnectDelay.Duration, cfg.Studio.MaxReconnectDelay.Duration)

	g, gctx := errgroup.WithContext(ctx)
	if lock != nil {
		g.Go(func() error { return keepLock(gctx, lock, cfg.Redis.LockTTL.Duration) })
	}
	g.Go(func() error { return eng.Run(gctx) })
	g.Go(func() error { return engine.RunTimer(gctx, eng.Intake(), eng.EvalInterval()) })
	g.Go(func() error { return feedLoop(gctx, "polygon", marketClient.Run) })
	g.Go(func() error { return feedLoop(gctx, "studio", activityClient.Run) })
	g.Go(func() error { return journal.Run(gctx) })
	if alerts != nil {
		g.Go(func() error { return alerts.Run(gctx) })
	}
	if cfg.Server.Enabled {
		a.startHTTPServer(gctx, g, deps, eng, journal)
	}

	runErr := g.Wait()

	if err := eng.Shutdown(ctx); err != nil {
		logger.Error("shutdown cancel-all failed", slog.String("error", err.Error()))
	}
	a.archiveSession(ctx, deps, journal)

	var halt *domain.HaltError
	if errors.As(runErr, &halt) {
		return halt
	}
	return runErr
}

// startHTTPServer adds the ops API and its WebSocket hub to g.
func (a *App) startHTTPServer(ctx context.Context, g *errgroup.Group, deps *Dependencies, eng *engine.Engine, journal *service.Journal) {
	var sub ws.Subscriber
	if deps.SignalBus != nil {
		sub = deps.SignalBus
	}
	hub := ws.NewHub(eng, sub, ws.Config{
		Symbol:         a.cfg.Engine.Symbol,
		StatusInterval: hubStatusInterval,
	}, a.logger)

	srv := server.NewServer(server.Config{
		Port:        a.cfg.Server.Port,
		CORSOrigins: a.cfg.Server.CORSOrigins,
		APIKey:      a.cfg.Server.APIKey,
	}, server.Handlers{
		Health:  handler.NewHealthHandler(eng),
		Status:  handler.NewStatusHandler(eng, a.cfg.Mode),
		Orders:  handler.NewOrderHandler(eng, deps.OrderStore, a.logger),
		Journal: handler.NewJournalHandler(journal, deps.AuditStore, a.logger),
	}, hub, a.logger)

	g.Go(func() error { return hub.Run(ctx) })
	g.Go(func() error { return srv.Run(ctx) })
}

// archiveSession uploads the in-memory journal when S3 is enabled.
func (a *App) archiveSession(ctx context.Context, deps *Dependencies, journal *service.Journal) {
	if deps.BlobWriter == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), archiveTimeout)
	defer cancel()

	archiver := s3blob.NewSessionArchiver(deps.BlobWriter, deps.AuditStore)
	path, err := archiver.Archive(ctx, a.cfg.Engine.Symbol, journal.Started(), journal.Entries())
	if err != nil {
		a.logger.ErrorContext(ctx, "session archive failed", slog.String("error", err.Error()))
		return
	}
	if path != "" {
		a.logger.InfoContext(ctx, "session archived",
			slog.String("path", path),
			slog.Int64("dropped", journal.Dropped()),
		)
	}
}

func journalOptions(deps *Dependencies) []service.JournalOption {
	var opts []service.JournalOption
	if deps.AuditStore != nil {
		opts = append(opts, service.WithAuditStore(deps.AuditStore))
	}
	if deps.OrderStore != nil {
		opts = append(opts, service.WithOrderStore(deps.OrderStore))
	}
	if deps.SignalBus != nil {
		opts = append(opts, service.WithSignalBus(deps.SignalBus))
	}
	return opts
}

// riskLimits converts the engine section into domain limits.
func riskLimits(e config.EngineConfig) domain.RiskLimits {
	return domain.RiskLimits{
		MaxPosition: e.MaxPosition,
		MinSize:     e.MinSize,
		MaxSize:     e.MaxSize,
		MinTick:     decimal.NewFromFloat(e.MinTick),
		MaxRejects:  e.MaxRejects,
	}
}

// feedLoop runs a feed client and maps a closed intake, which means the
// engine already stopped, to a clean exit.
func feedLoop(ctx context.Context, name string, run func(context.Context) error) error {
	err := run(ctx)
	if errors.Is(err, domain.ErrQueueClosed) {
		return nil
	}
	if err != nil && ctx.Err() == nil {
		return fmt.Errorf("app: %s feed: %w", name, err)
	}
	return err
}

// keepLock refreshes lock every ttl/3. Losing it is fatal so that a second
// engine never trades the same symbol.
func keepLock(ctx context.Context, lock domain.Lock, ttl time.Duration) error {
	interval := ttl / 3
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := lock.Refresh(ctx); err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				return fmt.Errorf("app: engine lock: %w", err)
			}
		}
	}
}
