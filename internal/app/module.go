// Package app composes the client with fx: store, cache, sync engine, send
// pipeline, unread aggregator, and optionally the TUI shell.
package app

import (
	"context"
	"errors"
	"os"
	"path/filepath"

	"github.com/pigeon-im/pigeon/internal/bus"
	"github.com/pigeon-im/pigeon/internal/cache"
	"github.com/pigeon-im/pigeon/internal/config"
	"github.com/pigeon-im/pigeon/internal/engine"
	"github.com/pigeon-im/pigeon/internal/identity"
	"github.com/pigeon-im/pigeon/internal/lock"
	"github.com/pigeon-im/pigeon/internal/logging"
	"github.com/pigeon-im/pigeon/internal/outbox"
	"github.com/pigeon-im/pigeon/internal/reconcile"
	"github.com/pigeon-im/pigeon/internal/render"
	"github.com/pigeon-im/pigeon/internal/send"
	"github.com/pigeon-im/pigeon/internal/session"
	"github.com/pigeon-im/pigeon/internal/status"
	"github.com/pigeon-im/pigeon/internal/store"
	"github.com/pigeon-im/pigeon/internal/transport"
	"github.com/pigeon-im/pigeon/internal/tui"
	"github.com/pigeon-im/pigeon/internal/unread"
	"github.com/pigeon-im/pigeon/internal/uploader"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Params holds the resolved profile configuration passed to the fx module.
type Params struct {
	ProfileName string
	Debug       bool
	// Headless skips the TUI shell; the engine still syncs and persists.
	Headless bool
}

// Module returns the fx module composing all providers and lifecycle hooks.
func Module(p Params) fx.Option {
	return fx.Module("pigeon",
		fx.Supply(p),
		fx.Provide(
			provideLogger,
			provideConfig,
			provideProfile,
			provideBus,
			provideSessionMachine,
			provideLock,
			provideStore,
			provideCache,
			provideResolver,
			provideTransport,
			provideUploader,
			provideShell,
			provideRenderer,
			provideAggregator,
			provideReconciler,
			provideQueue,
			providePipeline,
			provideEngine,
		),
		fx.Invoke(registerLifecycle),
	)
}

func provideLogger(p Params) (*zap.Logger, error) {
	return logging.New(session.LogPath(p.ProfileName), p.ProfileName, p.Debug)
}

func provideConfig() *config.Config {
	cfg, err := config.Load(session.ConfigPath())
	if err != nil {
		return &config.Config{}
	}
	return cfg
}

func provideProfile(p Params, logger *zap.Logger) (*config.Profile, error) {
	prof, err := config.LoadProfile(session.ProfilePath(p.ProfileName))
	if err == nil {
		return prof, nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}
	// First run: write a default profile so the user has a file to edit.
	prof = &config.Profile{UserID: "me", DisplayName: p.ProfileName}
	if err := config.SaveProfile(session.ProfilePath(p.ProfileName), prof); err != nil {
		return nil, err
	}
	logger.Info("created default profile", zap.String("path", session.ProfilePath(p.ProfileName)))
	return prof, nil
}

func provideBus() *bus.Bus {
	return bus.New()
}

func provideSessionMachine(b *bus.Bus) *status.SessionMachine {
	return status.NewSessionMachine(b)
}

func provideLock(p Params, logger *zap.Logger) (*lock.Lock, error) {
	if err := session.EnsureDir(p.ProfileName); err != nil {
		return nil, err
	}
	l, err := lock.Acquire(session.Dir(p.ProfileName))
	if err != nil {
		return nil, err
	}
	logger.Info("profile lock acquired", zap.String("profile", p.ProfileName))
	return l, nil
}

func provideStore(p Params, logger *zap.Logger) (*store.DB, error) {
	dbPath := session.DBPath(p.ProfileName)
	db, err := store.Open(dbPath)
	if err != nil {
		return nil, err
	}
	result, err := db.Migrate()
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	if result.Changed {
		logger.Info("migrations applied", zap.Uint("version", result.Version))
	} else {
		logger.Info("migrations up to date", zap.Uint("version", result.Version))
	}
	logger.Info("store initialized", zap.String("path", dbPath))
	return db, nil
}

func provideCache(prof *config.Profile) *cache.Cache {
	return cache.New(prof.UserID)
}

func provideResolver(prof *config.Profile, logger *zap.Logger) *identity.Resolver {
	return identity.NewResolver(prof.UserID, logger)
}

// provideTransport wires the loopback transport. A wire transport slots in
// here once the server protocol lands.
func provideTransport(b *bus.Bus) (transport.Transport, transport.Source) {
	lb := transport.NewLoopback(b)
	return lb, &transport.StaticSource{}
}

func provideUploader(p Params) uploader.Uploader {
	return uploader.NewLocal(filepath.Join(session.Dir(p.ProfileName), "media"))
}

func provideShell(p Params, c *cache.Cache, b *bus.Bus, logger *zap.Logger) *tui.App {
	if p.Headless {
		return nil
	}
	return tui.NewApp(c, b, p.ProfileName, logger)
}

func provideRenderer(shell *tui.App) render.Renderer {
	if shell == nil {
		return render.Discard{}
	}
	return shell
}

func provideAggregator(cfg *config.Config, c *cache.Cache, t transport.Transport, r render.Renderer, b *bus.Bus, logger *zap.Logger) *unread.Aggregator {
	agg := unread.NewAggregator(c, t, r, b, logger)
	agg.SetNotifyRetries(cfg.Sync.ReadNotifyRetries)
	return agg
}

func provideReconciler(c *cache.Cache, r *identity.Resolver, b *bus.Bus, logger *zap.Logger) *reconcile.Reconciler {
	return reconcile.New(c, r, b, logger)
}

func provideQueue(db *store.DB, t transport.Transport, c *cache.Cache, b *bus.Bus, logger *zap.Logger) (*outbox.Queue, error) {
	return outbox.NewQueue(db, t, c, b, logger)
}

func providePipeline(c *cache.Cache, r *identity.Resolver, t transport.Transport, u uploader.Uploader, q *outbox.Queue, b *bus.Bus, logger *zap.Logger) *send.Pipeline {
	return send.NewPipeline(c, r, t, u, q, b, logger)
}

func provideEngine(cfg *config.Config, c *cache.Cache, r *reconcile.Reconciler, a *unread.Aggregator, db *store.DB, t transport.Transport, src transport.Source, m *status.SessionMachine, rd render.Renderer, b *bus.Bus, logger *zap.Logger) *engine.Engine {
	return engine.New(c, r, a, db, t, src, m, rd, b, logger, engine.Options{
		PollInterval: cfg.Sync.PollInterval(),
		TypingQuiet:  cfg.Sync.TypingQuiet(),
	})
}

func registerLifecycle(lc fx.Lifecycle, shutdowner fx.Shutdowner, e *engine.Engine, q *outbox.Queue, agg *unread.Aggregator, pipe *send.Pipeline, shell *tui.App, lk *lock.Lock, logger *zap.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			agg.Start(context.Background())
			q.Start(context.Background())
			if err := e.Start(context.Background()); err != nil {
				return err
			}
			if shell != nil {
				shell.Bind(e, pipe)
				go func() {
					if err := shell.Run(); err != nil {
						logger.Error("shell exited", zap.Error(err))
					}
					_ = shutdowner.Shutdown()
				}()
			}
			return nil
		},
		OnStop: func(_ context.Context) error {
			if shell != nil {
				shell.Stop()
			}
			e.Stop()
			agg.Stop()
			if err := lk.Release(); err != nil {
				logger.Warn("error releasing lock", zap.Error(err))
			}
			logger.Info("client stopped")
			return nil
		},
	})
}
