package walletd

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"time"

	"walletbridge/go-backend/internal/adapters/rpc"
	"walletbridge/go-backend/internal/bootstrap/walletconfig"
	"walletbridge/go-backend/internal/domains/contracts"
	walletrpc "walletbridge/go-backend/internal/domains/wallet/adapters/rpc"
	"walletbridge/go-backend/internal/domains/wallet/policy"
	"walletbridge/go-backend/internal/domains/wallet/usecase"
	"walletbridge/go-backend/internal/platform/metrics"
	"walletbridge/go-backend/internal/platform/privacylog"
	"walletbridge/go-backend/internal/securestore"
	"walletbridge/go-backend/internal/walletcore"
)

const shutdownTimeout = 10 * time.Second

type Options struct {
	Config  walletconfig.Config
	Version string
	// LogOutput defaults to stderr.
	LogOutput io.Writer
	// Factory replaces the bundled engine; tests use it to plug a fake.
	Factory contracts.EngineFactory
}

// Daemon is the composed walletd process: one session, its dispatcher and
// the HTTP transport in front of them.
type Daemon struct {
	Logger     *slog.Logger
	Metrics    *metrics.Metrics
	Session    *usecase.Session
	Dispatcher *walletrpc.Dispatcher
	Server     *rpc.Server
}

func Build(opts Options) (*Daemon, error) {
	cfg := opts.Config
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	level := new(slog.LevelVar)
	lvl, err := policy.ParseLogLevel(cfg.LogLevel)
	if err != nil {
		return nil, err
	}
	level.Set(lvl)

	out := opts.LogOutput
	if out == nil {
		out = os.Stderr
	}
	logger := privacylog.NewJSONLogger(out, level)
	m := metrics.New()

	factory := opts.Factory
	if factory == nil {
		factory = walletcore.Factory(walletcore.Options{
			KDF:    securestore.Params{TimeCost: cfg.KDF.TimeCost, MemoryKB: cfg.KDF.MemoryKB, Threads: 1},
			Logger: logger,
		})
	}
	session := usecase.NewSession(usecase.Options{
		Factory:  factory,
		Logger:   logger,
		Level:    level,
		Observer: m,
		Defaults: contracts.ManagerConfig{
			RootPath:      cfg.DataRoot,
			Network:       cfg.Network,
			NetworkConfig: cfg.NetworkConfig,
			LogLevel:      cfg.LogLevel,
		},
		ListenerQueueSize: cfg.Listeners.QueueSize,
		InboxSize:         cfg.Listeners.InboxSize,
	})
	dispatcher := walletrpc.NewDispatcher(session, logger, m)
	server := rpc.NewServer(rpc.Options{
		Config:     cfg.RPC,
		Dispatcher: dispatcher,
		Metrics:    m.Handler(),
		Observer:   m,
		Logger:     logger,
		Version:    opts.Version,
	})
	return &Daemon{
		Logger:     logger,
		Metrics:    m,
		Session:    session,
		Dispatcher: dispatcher,
		Server:     server,
	}, nil
}

// Run serves until ctx is cancelled, then tears the session down so open
// backup handles and listeners are released before exit.
func (d *Daemon) Run(ctx context.Context) error {
	d.Logger.Info("walletd starting", "operation", "run", "actions", len(d.Dispatcher.Actions()))
	runErr := d.Server.Run(ctx)

	closeCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	closeErr := d.Session.Close(closeCtx)
	if closeErr != nil {
		d.Logger.Error("session close failed", "operation", "run", "error", closeErr.Error())
	}
	d.Logger.Info("walletd stopped", "operation", "run")
	return errors.Join(runErr, closeErr)
}
