package daemon

import (
	"context"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/matheus3301/gravvy/internal/addressbook"
	"github.com/matheus3301/gravvy/internal/bus"
	"github.com/matheus3301/gravvy/internal/config"
	"github.com/matheus3301/gravvy/internal/logging"
	"github.com/matheus3301/gravvy/internal/outbox"
	"github.com/matheus3301/gravvy/internal/pool"
	"github.com/matheus3301/gravvy/internal/remote"
	"github.com/matheus3301/gravvy/internal/session"
	"github.com/matheus3301/gravvy/internal/status"
	intsync "github.com/matheus3301/gravvy/internal/sync"
)

// Params holds the resolved account configuration passed to the fx module.
type Params struct {
	// Account is the E.164 phone number the daemon serves.
	Account string
	// Token signs the account in at start. Empty starts offline on the
	// last synced state.
	Token string
	// Layout locates the per-account files; zero means DefaultLayout.
	Layout     session.Layout
	SocketPath string // optional override for testing; empty = use default
	// Config is used as given when set; otherwise config.toml and the
	// GRAVVY_* environment are loaded.
	Config *config.Config
}

// Module returns the fx module for the daemon, composing all providers and lifecycle hooks.
func Module(p Params) fx.Option {
	if p.Layout.Root == "" {
		p.Layout = session.DefaultLayout()
	}
	return fx.Module("daemon",
		fx.Supply(p),
		fx.Provide(
			provideConfig,
			provideLogger,
			provideBus,
			provideStateMachine,
			provideSession,
			provideAPI,
			provideAddressBook,
			providePool,
			provideSyncEngine,
			provideActions,
			provideSender,
			NewControl,
			NewServer,
		),
		fx.Invoke(registerLifecycle),
	)
}

func provideConfig(p Params) (*config.Config, error) {
	if p.Config != nil {
		return p.Config, p.Config.Validate()
	}
	cfg, err := config.LoadOrDefault(session.ConfigPath())
	if err != nil {
		return nil, err
	}
	if err := config.Overlay(cfg, config.NewViper()); err != nil {
		return nil, err
	}
	return cfg, cfg.Validate()
}

func provideLogger(p Params, cfg *config.Config) (*zap.Logger, error) {
	return logging.New(logging.Options{
		Path:       p.Layout.LogPath(p.Account),
		Level:      cfg.Log.Level,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		Account:    p.Account,
		Stderr:     true,
	})
}

func provideBus() *bus.Bus {
	return bus.New()
}

func provideStateMachine(b *bus.Bus) *status.Machine {
	return status.NewMachine(b)
}

func provideSession(b *bus.Bus) *session.Manager {
	return session.NewManager(b)
}

func provideAPI(cfg *config.Config, sm *session.Manager) remote.API {
	return remote.NewClient(cfg.Server.BaseURL, sm, cfg.Server.Timeout.Duration)
}

func provideAddressBook(cfg *config.Config) addressbook.Source {
	if cfg.Sync.AddressBook == "" {
		return nil
	}
	return addressbook.FileSource{Path: cfg.Sync.AddressBook}
}

func providePool(p Params, cfg *config.Config, b *bus.Bus, m *status.Machine, logger *zap.Logger) *pool.Pool {
	return pool.New(pool.Config{Layout: p.Layout, Strict: cfg.Strict}, b, m, logger)
}

func provideSyncEngine(pl *pool.Pool, api remote.API, book addressbook.Source, sm *session.Manager, cfg *config.Config, b *bus.Bus, logger *zap.Logger) *intsync.Engine {
	return intsync.NewEngine(pl, api, book, sm, b, logger, intsync.Options{
		Region:         cfg.Region,
		Interval:       cfg.Sync.Interval.Duration,
		ReorderOnStart: cfg.Sync.ReorderOnStart,
	})
}

func provideActions(pl *pool.Pool, b *bus.Bus) *outbox.Actions {
	return outbox.NewActions(pl, b)
}

func provideSender(pl *pool.Pool, api remote.API, engine *intsync.Engine, b *bus.Bus, logger *zap.Logger) *outbox.Sender {
	return outbox.NewSender(pl, api, engine, b, logger)
}

func registerLifecycle(lc fx.Lifecycle, p Params, srv *Server, pl *pool.Pool, sm *session.Manager, engine *intsync.Engine, sender *outbox.Sender, logger *zap.Logger) {
	loopCtx, stopLoop := context.WithCancel(context.Background())
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() { _ = pl.Loop().Run(loopCtx) }()

			engine.Start(context.Background())
			sender.Start(context.Background())

			go func() {
				if err := srv.Start(); err != nil {
					logger.Error("gRPC server error", zap.Error(err))
				}
			}()

			if p.Token != "" {
				return sm.SignIn(p.Account, p.Token)
			}
			logger.Info("no token given, serving the last synced state", zap.String("account", p.Account))
			return pl.Open(ctx, p.Account)
		},
		OnStop: func(ctx context.Context) error {
			sender.Stop()
			engine.Stop()
			srv.Stop(ctx)
			if err := pl.Close(ctx); err != nil {
				logger.Warn("error closing store", zap.Error(err))
			}
			stopLoop()
			logger.Info("daemon stopped")
			_ = logger.Sync()
			return nil
		},
	})
}
