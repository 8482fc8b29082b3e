package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"golang.org/x/sync/semaphore"

	"walletbridge/go-backend/internal/domains/contracts"
	"walletbridge/go-backend/internal/domains/rpckit"
	"walletbridge/go-backend/internal/domains/wallet/domain"
	"walletbridge/go-backend/internal/domains/wallet/policy"
	"walletbridge/go-backend/pkg/models"
)

const DefaultInboxSize = 1024

// Observer receives session gauges and event accounting.
type Observer interface {
	domain.DeliveryObserver
	ListenersActive(n int)
	BackupHandlesOpen(n int)
	InboxOverflow()
}

type nopObserver struct{}

func (nopObserver) EventDelivered()       {}
func (nopObserver) EventDropped()         {}
func (nopObserver) DeliveryFailed()       {}
func (nopObserver) ListenersActive(int)   {}
func (nopObserver) BackupHandlesOpen(int) {}
func (nopObserver) InboxOverflow()        {}

type Options struct {
	Factory  contracts.EngineFactory
	Logger   *slog.Logger
	Level    *slog.LevelVar
	Observer Observer
	// Defaults fill the blanks of an init request.
	Defaults          contracts.ManagerConfig
	ListenerQueueSize int
	InboxSize         int
}

type routedEvent struct {
	sub   *domain.SubWalletHandle
	event contracts.Event
}

// Session is the process-wide context object. Every registry and manager
// access runs inside one weight-1 exclusive section.
type Session struct {
	sem      *semaphore.Weighted
	factory  contracts.EngineFactory
	logger   *slog.Logger
	level    *slog.LevelVar
	observer Observer

	wallets   *domain.WalletRegistry
	listeners *domain.ListenerRegistry
	backups   *domain.BackupRegistry

	network       string
	networkConfig string
	logLevel      string
	rootPath      string

	inbox      chan routedEvent
	routerCtx  context.Context
	stopRouter context.CancelFunc
	routerDone chan struct{}
	closeOnce  sync.Once
}

func NewSession(opts Options) *Session {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	level := opts.Level
	if level == nil {
		level = new(slog.LevelVar)
	}
	observer := opts.Observer
	if observer == nil {
		observer = nopObserver{}
	}
	inboxSize := opts.InboxSize
	if inboxSize <= 0 {
		inboxSize = DefaultInboxSize
	}
	network := opts.Defaults.Network
	if network == "" {
		network = "MainNet"
	}
	logLevel := opts.Defaults.LogLevel
	if logLevel == "" {
		logLevel = "warning"
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		sem:           semaphore.NewWeighted(1),
		factory:       opts.Factory,
		logger:        logger,
		level:         level,
		observer:      observer,
		wallets:       domain.NewWalletRegistry(),
		listeners:     domain.NewListenerRegistry(opts.ListenerQueueSize, logger, observer),
		backups:       domain.NewBackupRegistry(logger),
		network:       network,
		networkConfig: opts.Defaults.NetworkConfig,
		logLevel:      logLevel,
		rootPath:      opts.Defaults.RootPath,
		inbox:         make(chan routedEvent, inboxSize),
		routerCtx:     ctx,
		stopRouter:    cancel,
		routerDone:    make(chan struct{}),
	}
	go s.route()
	return s
}

// exclusive runs fn inside the session's exclusive section. A panic raised
// by the engine is turned into an EngineFault.
func (s *Session) exclusive(ctx context.Context, op string, fn func() error) (err error) {
	if err := s.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	defer s.sem.Release(1)
	defer func() {
		if rec := recover(); rec != nil {
			s.logger.Error("engine panic recovered",
				"component", "wallet.session",
				"operation", op,
				"panic", fmt.Sprint(rec),
			)
			err = &contracts.EngineFault{Op: op, Text: fmt.Sprint(rec)}
		}
	}()
	return fn()
}

func (s *Session) observeGauges() {
	s.observer.ListenersActive(len(s.listeners.Subscriptions()))
	s.observer.BackupHandlesOpen(len(s.backups.Open()))
}

// InitRequest overrides the session defaults for one manager lifetime.
type InitRequest struct {
	RootPath      string
	Network       string
	NetworkConfig string
	LogLevel      string
}

type InitResult struct {
	RootPath string
	Network  string
	Adopted  []string
}

func (s *Session) Initialize(ctx context.Context, req InitRequest) (InitResult, error) {
	var out InitResult
	err := s.exclusive(ctx, "init", func() error {
		cfg := contracts.ManagerConfig{
			RootPath:      firstNonEmpty(req.RootPath, s.rootPath),
			Network:       firstNonEmpty(req.Network, s.network),
			NetworkConfig: firstNonEmpty(req.NetworkConfig, s.networkConfig),
			LogLevel:      firstNonEmpty(req.LogLevel, s.logLevel),
		}
		if _, err := policy.ValidateNetwork(cfg.Network); err != nil {
			return fmt.Errorf("%w: %v", contracts.ErrInvalidConfig, err)
		}
		lvl, err := policy.ParseLogLevel(cfg.LogLevel)
		if err != nil {
			return fmt.Errorf("%w: %v", contracts.ErrInvalidConfig, err)
		}
		manager, err := s.wallets.Initialize(s.factory, cfg)
		if err != nil {
			return err
		}
		engine, err := manager.Engine()
		if err != nil {
			return err
		}
		s.level.Set(lvl)
		s.logLevel = cfg.LogLevel
		engine.SetLogLevel(cfg.LogLevel)
		adopted, err := s.wallets.AdoptLoaded()
		if err != nil {
			_ = s.wallets.Shutdown()
			return err
		}
		out = InitResult{RootPath: cfg.RootPath, Network: cfg.Network, Adopted: adopted}
		return nil
	})
	if err == nil {
		s.logger.Info("wallet manager initialized",
			"component", "wallet.session",
			"operation", "init",
			"network", out.Network,
			"adopted", len(out.Adopted),
		)
	}
	return out, err
}

// ShutdownReport lists what a shutdown tore down.
type ShutdownReport struct {
	Subscriptions []string
	BackupHandles []string
}

func (s *Session) Shutdown(ctx context.Context) (ShutdownReport, error) {
	var report ShutdownReport
	err := s.exclusive(ctx, "destroy", func() error {
		if _, err := s.wallets.Manager(); err != nil {
			return err
		}
		for _, info := range s.listeners.Subscriptions() {
			s.releaseCallback(info.MasterWalletID, info.ChainID)
		}
		report.Subscriptions = s.listeners.RemoveAll()
		report.BackupHandles = s.backups.ForceCloseAll()
		err := s.wallets.Shutdown()
		s.observeGauges()
		return err
	})
	return report, err
}

// SetLogLevel is accepted with or without a live manager.
func (s *Session) SetLogLevel(ctx context.Context, level string) error {
	lvl, err := policy.ParseLogLevel(level)
	if err != nil {
		return err
	}
	return s.exclusive(ctx, "setLogLevel", func() error {
		s.level.Set(lvl)
		s.logLevel = strings.ToLower(strings.TrimSpace(level))
		if manager, err := s.wallets.Manager(); err == nil {
			if engine, err := manager.Engine(); err == nil {
				engine.SetLogLevel(s.logLevel)
			}
		}
		return nil
	})
}

// SetNetwork stores the network used by the next init.
func (s *Session) SetNetwork(ctx context.Context, network, networkConfig string) error {
	network, err := policy.ValidateNetwork(network)
	if err != nil {
		return err
	}
	return s.exclusive(ctx, "setNetwork", func() error {
		s.network = network
		s.networkConfig = networkConfig
		return nil
	})
}

func (s *Session) withEngine(ctx context.Context, op string, fn func(contracts.Engine) error) error {
	return s.exclusive(ctx, op, func() error {
		manager, err := s.wallets.Manager()
		if err != nil {
			return err
		}
		engine, err := manager.Engine()
		if err != nil {
			return err
		}
		return fn(engine)
	})
}

func (s *Session) Version(ctx context.Context) (string, error) {
	var version string
	err := s.withEngine(ctx, "getVersion", func(engine contracts.Engine) error {
		version = engine.Version()
		return nil
	})
	return version, err
}

func (s *Session) GenerateMnemonic(ctx context.Context, language string, wordCount int) (string, error) {
	var mnemonic string
	err := s.withEngine(ctx, "generateMnemonic", func(engine contracts.Engine) error {
		m, err := engine.GenerateMnemonic(language, wordCount)
		if err != nil {
			return contracts.NewEngineFault("generate mnemonic", err)
		}
		mnemonic = m
		return nil
	})
	return mnemonic, err
}

func (s *Session) CreateMasterWallet(ctx context.Context, id string, params contracts.CreateParams) (models.MasterWallet, error) {
	var out models.MasterWallet
	err := s.exclusive(ctx, "createMasterWallet", func() error {
		handle, err := s.wallets.CreateMasterWallet(id, params)
		if err != nil {
			return err
		}
		out, err = masterWalletView(handle)
		return err
	})
	return out, err
}

func (s *Session) ImportMasterWallet(ctx context.Context, id string, params contracts.ImportParams) (models.MasterWallet, error) {
	var out models.MasterWallet
	err := s.exclusive(ctx, "importMasterWallet", func() error {
		handle, err := s.wallets.ImportMasterWallet(id, params)
		if err != nil {
			return err
		}
		out, err = masterWalletView(handle)
		return err
	})
	return out, err
}

func masterWalletView(handle *domain.MasterWalletHandle) (models.MasterWallet, error) {
	mw, err := handle.Engine()
	if err != nil {
		return models.MasterWallet{}, err
	}
	info, err := mw.BasicInfo()
	if err != nil {
		return models.MasterWallet{}, contracts.NewEngineFault("basic info", err)
	}
	return models.MasterWallet{ID: handle.ID(), Network: handle.Network(), Mode: string(handle.Mode()), BasicInfo: info}, nil
}

func subWalletView(handle *domain.SubWalletHandle) (models.SubWallet, error) {
	sw, err := handle.Engine()
	if err != nil {
		return models.SubWallet{}, err
	}
	info, err := sw.BasicInfo()
	if err != nil {
		return models.SubWallet{}, contracts.NewEngineFault("sub wallet basic info", err)
	}
	return models.SubWallet{
		ID:             handle.ID(),
		MasterWalletID: handle.MasterWalletID(),
		ChainID:        handle.ChainID(),
		Kind:           string(handle.Kind()),
		BasicInfo:      info,
	}, nil
}

func (s *Session) DescribeMasterWallet(ctx context.Context, id string) (models.MasterWallet, error) {
	var out models.MasterWallet
	err := s.exclusive(ctx, "getMasterWallet", func() error {
		handle, err := s.wallets.MasterWallet(id)
		if err != nil {
			return err
		}
		out, err = masterWalletView(handle)
		return err
	})
	return out, err
}

// DescribeSubWallets lists the live sub wallets of a master wallet, ordered
// by chain id.
func (s *Session) DescribeSubWallets(ctx context.Context, masterID string) ([]models.SubWallet, error) {
	var out []models.SubWallet
	err := s.exclusive(ctx, "getAllSubWallets", func() error {
		master, err := s.wallets.MasterWallet(masterID)
		if err != nil {
			return err
		}
		out = make([]models.SubWallet, 0, len(master.ChainIDs()))
		for _, chainID := range master.ChainIDs() {
			handle, err := s.wallets.SubWallet(masterID, chainID)
			if err != nil {
				return err
			}
			view, err := subWalletView(handle)
			if err != nil {
				return err
			}
			out = append(out, view)
		}
		return nil
	})
	return out, err
}

func (s *Session) MasterWalletIDs(ctx context.Context) ([]string, error) {
	var ids []string
	err := s.exclusive(ctx, "getAllMasterWallets", func() error {
		var err error
		ids, err = s.wallets.MasterWalletIDs()
		return err
	})
	return ids, err
}

// WithMasterWallet runs fn against a live master wallet inside the
// exclusive section. Errors returned by fn that are not already classified
// are reported as engine faults.
func (s *Session) WithMasterWallet(ctx context.Context, op, id string, fn func(*domain.MasterWalletHandle, contracts.MasterWallet) (any, error)) (any, error) {
	var out any
	err := s.exclusive(ctx, op, func() error {
		handle, err := s.wallets.MasterWallet(id)
		if err != nil {
			return err
		}
		mw, err := handle.Engine()
		if err != nil {
			return err
		}
		out, err = fn(handle, mw)
		return classifyEngineErr(op, err)
	})
	return out, err
}

func (s *Session) WithSubWallet(ctx context.Context, op, masterID, chainID string, fn func(*domain.SubWalletHandle, contracts.SubWallet) (any, error)) (any, error) {
	var out any
	err := s.exclusive(ctx, op, func() error {
		handle, err := s.wallets.SubWallet(masterID, chainID)
		if err != nil {
			return err
		}
		sw, err := handle.Engine()
		if err != nil {
			return err
		}
		out, err = fn(handle, sw)
		return classifyEngineErr(op, err)
	})
	return out, err
}

// WithSubWalletOfKind is WithSubWallet for commands that name the chain
// kind instead of a chain id. The first live child of that kind wins.
func (s *Session) WithSubWalletOfKind(ctx context.Context, op, masterID string, kind domain.ChainKind, fn func(*domain.SubWalletHandle, contracts.SubWallet) (any, error)) (any, error) {
	var out any
	err := s.exclusive(ctx, op, func() error {
		master, err := s.wallets.MasterWallet(masterID)
		if err != nil {
			return err
		}
		for _, chainID := range master.ChainIDs() {
			handle, err := s.wallets.SubWallet(masterID, chainID)
			if err != nil || handle.Kind() != kind {
				continue
			}
			sw, err := handle.Engine()
			if err != nil {
				return err
			}
			out, err = fn(handle, sw)
			return classifyEngineErr(op, err)
		}
		return fmt.Errorf("%w: no %s sub wallet under %s", contracts.ErrSubWalletNotFound, kind, masterID)
	})
	return out, err
}

func classifyEngineErr(op string, err error) error {
	if err == nil || contracts.Classified(err) {
		return err
	}
	return contracts.NewEngineFault(op, err)
}

// DestroyReport lists everything a master wallet destroy removed.
type DestroyReport struct {
	SubWallets    []string
	Subscriptions []string
	BackupHandles []string
}

// DestroyMasterWallet cascades to sub wallets, their subscriptions and the
// wallet's backup handles. A CascadeError means the registry is clean but
// some engine teardown failed.
func (s *Session) DestroyMasterWallet(ctx context.Context, id string) (DestroyReport, error) {
	var report DestroyReport
	err := s.exclusive(ctx, "destroyWallet", func() error {
		master, err := s.wallets.MasterWallet(id)
		if err != nil {
			return err
		}
		for _, chainID := range master.ChainIDs() {
			subWalletID := domain.SubWalletID(id, chainID)
			if s.listeners.Count(subWalletID) > 0 {
				s.releaseCallback(id, chainID)
			}
			report.Subscriptions = append(report.Subscriptions, s.listeners.RemoveForSubWallet(subWalletID)...)
		}
		report.BackupHandles = s.backups.CloseForMaster(id)
		report.SubWallets, err = s.wallets.DestroyMasterWallet(id)
		s.observeGauges()
		return err
	})
	return report, err
}

func (s *Session) CreateSubWallet(ctx context.Context, masterID, chainID string) (models.SubWallet, error) {
	var out models.SubWallet
	err := s.exclusive(ctx, "createSubWallet", func() error {
		handle, err := s.wallets.CreateSubWallet(masterID, chainID)
		if err != nil {
			return err
		}
		out, err = subWalletView(handle)
		return err
	})
	return out, err
}

func (s *Session) DestroySubWallet(ctx context.Context, masterID, chainID string) ([]string, error) {
	var removed []string
	err := s.exclusive(ctx, "destroySubWallet", func() error {
		if _, err := s.wallets.SubWallet(masterID, chainID); err != nil {
			return err
		}
		subWalletID := domain.SubWalletID(masterID, chainID)
		if s.listeners.Count(subWalletID) > 0 {
			s.releaseCallback(masterID, chainID)
		}
		removed = s.listeners.RemoveForSubWallet(subWalletID)
		err := s.wallets.DestroySubWallet(masterID, chainID)
		s.observeGauges()
		return err
	})
	return removed, err
}

// Subscribe registers ref for the events of one sub wallet. The engine
// callback is installed with the first subscription of a sub wallet.
func (s *Session) Subscribe(ctx context.Context, masterID, chainID string, ref contracts.DeliveryRef) (string, error) {
	var id string
	err := s.exclusive(ctx, "registerWalletListener", func() error {
		handle, err := s.wallets.SubWallet(masterID, chainID)
		if err != nil {
			return err
		}
		sw, err := handle.Engine()
		if err != nil {
			return err
		}
		first := s.listeners.Count(handle.ID()) == 0
		id, err = s.listeners.Subscribe(handle, ref)
		if err != nil {
			return err
		}
		if first {
			if err := sw.RegisterCallback(&eventSink{session: s, sub: handle}); err != nil {
				_, _ = s.listeners.Unsubscribe(id)
				id = ""
				return contracts.NewEngineFault("register callback", err)
			}
		}
		s.observeGauges()
		return nil
	})
	return id, err
}

func (s *Session) Unsubscribe(ctx context.Context, subscriptionID string) error {
	return s.exclusive(ctx, "removeWalletListener", func() error {
		info, err := s.listeners.Unsubscribe(subscriptionID)
		if err != nil {
			return err
		}
		if s.listeners.Count(info.SubWalletID) == 0 {
			s.releaseCallback(info.MasterWalletID, info.ChainID)
		}
		s.observeGauges()
		return nil
	})
}

// ReleaseDelivery drops the subscriptions that deliver to deliveryKey and
// returns their ids. Engine callbacks of sub wallets left without
// listeners are detached.
func (s *Session) ReleaseDelivery(ctx context.Context, deliveryKey string) ([]string, error) {
	var ids []string
	err := s.exclusive(ctx, "releaseDelivery", func() error {
		released := s.listeners.RemoveForDeliveryKey(deliveryKey)
		for _, info := range released {
			ids = append(ids, info.ID)
			if s.listeners.Count(info.SubWalletID) == 0 {
				s.releaseCallback(info.MasterWalletID, info.ChainID)
			}
		}
		s.observeGauges()
		return nil
	})
	return ids, err
}

// releaseCallback detaches the engine callback of a sub wallet, best effort.
func (s *Session) releaseCallback(masterID, chainID string) {
	handle, err := s.wallets.SubWallet(masterID, chainID)
	if err != nil {
		return
	}
	sw, err := handle.Engine()
	if err != nil {
		return
	}
	if err := sw.UnregisterCallback(); err != nil {
		s.logger.Warn("unregister callback failed",
			"component", "wallet.session",
			"sub_wallet_id", handle.ID(),
			"error", err.Error(),
		)
	}
}

func (s *Session) Subscriptions(ctx context.Context) ([]domain.SubscriptionInfo, error) {
	var out []domain.SubscriptionInfo
	err := s.exclusive(ctx, "listSubscriptions", func() error {
		out = s.listeners.Subscriptions()
		return nil
	})
	return out, err
}

func (s *Session) OpenBackupWriter(ctx context.Context, masterID, name string) (domain.BackupHandleInfo, error) {
	var info domain.BackupHandleInfo
	err := s.withEngine(ctx, "openBackupWriter", func(engine contracts.Engine) error {
		master, err := s.wallets.MasterWallet(masterID)
		if err != nil {
			return err
		}
		info, err = s.backups.OpenWriter(master, name, engine.OpenBackupWriter)
		s.observeGauges()
		return err
	})
	return info, err
}

func (s *Session) OpenBackupReader(ctx context.Context, source domain.BackupDescriptor) (domain.BackupHandleInfo, error) {
	var info domain.BackupHandleInfo
	err := s.withEngine(ctx, "openBackupReader", func(engine contracts.Engine) error {
		var err error
		info, err = s.backups.OpenReader(source, engine.OpenBackupReader)
		s.observeGauges()
		return err
	})
	return info, err
}

// StepBackup and CloseBackup keep working on handles issued before a
// shutdown so that a late step still reports the handle as closed.
func (s *Session) StepBackup(ctx context.Context, id string, req domain.StepRequest) (domain.StepResult, error) {
	var res domain.StepResult
	err := s.exclusive(ctx, "backupStep", func() error {
		if err := s.requireBackupAccess(id); err != nil {
			return err
		}
		var err error
		res, err = s.backups.Step(id, req)
		return err
	})
	return res, err
}

func (s *Session) CloseBackup(ctx context.Context, id string) error {
	return s.exclusive(ctx, "closeBackupHandle", func() error {
		if err := s.requireBackupAccess(id); err != nil {
			return err
		}
		err := s.backups.Close(id)
		s.observeGauges()
		return err
	})
}

func (s *Session) requireBackupAccess(id string) error {
	if s.backups.Known(id) {
		return nil
	}
	_, err := s.wallets.Manager()
	return err
}

func (s *Session) OpenBackupHandles(ctx context.Context) ([]domain.BackupHandleInfo, error) {
	var out []domain.BackupHandleInfo
	err := s.withEngine(ctx, "getOpenBackupHandles", func(contracts.Engine) error {
		out = s.backups.Open()
		return nil
	})
	return out, err
}

// Close shuts down a live manager and stops event routing. Delivery
// goroutines are stopped even when the shutdown itself fails, e.g. because
// ctx expired while an engine call held the exclusive section.
func (s *Session) Close(ctx context.Context) error {
	var err error
	s.closeOnce.Do(func() {
		if _, shutdownErr := s.Shutdown(ctx); shutdownErr != nil && !errors.Is(shutdownErr, contracts.ErrNotInitialized) {
			err = shutdownErr
		}
		s.stopRouter()
		<-s.routerDone
		s.listeners.Halt()
		s.listeners.Wait()
	})
	return err
}

func (s *Session) route() {
	defer close(s.routerDone)
	for {
		select {
		case <-s.routerCtx.Done():
			return
		case ev := <-s.inbox:
			if err := s.sem.Acquire(s.routerCtx, 1); err != nil {
				return
			}
			if ev.sub.Alive() {
				s.listeners.Dispatch(ev.sub.ID(), rpckit.Success(ev.event))
			} else {
				s.observer.EventDropped()
			}
			s.sem.Release(1)
		}
	}
}

// eventSink is handed to the engine. OnEvent never blocks the engine
// goroutine: events beyond the inbox capacity are dropped.
type eventSink struct {
	session *Session
	sub     *domain.SubWalletHandle
}

func (k *eventSink) OnEvent(evt contracts.Event) {
	select {
	case k.session.inbox <- routedEvent{sub: k.sub, event: evt}:
	default:
		k.session.observer.InboxOverflow()
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
