package domain

import (
	"fmt"
	"slices"
	"strings"

	"walletbridge/go-backend/internal/domains/contracts"
)

// WalletRegistry owns the manager singleton and the id -> handle maps. It is
// not safe for concurrent use; the session serializes every call.
type WalletRegistry struct {
	manager *ManagerHandle
	masters map[string]*MasterWalletHandle
}

func NewWalletRegistry() *WalletRegistry {
	return &WalletRegistry{masters: make(map[string]*MasterWalletHandle)}
}

// Initialize creates the manager. A second call while one is live fails
// instead of handing out the existing instance.
func (r *WalletRegistry) Initialize(factory contracts.EngineFactory, cfg contracts.ManagerConfig) (*ManagerHandle, error) {
	if r.manager.Alive() {
		return nil, contracts.ErrAlreadyInitialized
	}
	if factory == nil {
		return nil, fmt.Errorf("%w: engine factory is not configured", contracts.ErrInvalidConfig)
	}
	if strings.TrimSpace(cfg.RootPath) == "" {
		return nil, fmt.Errorf("%w: root path is required", contracts.ErrInvalidConfig)
	}
	engine, err := factory(cfg)
	if err != nil {
		return nil, contracts.NewEngineFault("init", err)
	}
	if engine == nil {
		return nil, fmt.Errorf("%w: engine factory returned nil", contracts.ErrInvalidConfig)
	}
	r.manager = &ManagerHandle{engine: engine, config: cfg, alive: true}
	r.masters = make(map[string]*MasterWalletHandle)
	return r.manager, nil
}

// AdoptLoaded registers wallets the engine restored from disk, with their
// existing sub wallets. Wallets whose id is already live are skipped.
func (r *WalletRegistry) AdoptLoaded() ([]string, error) {
	engine, err := r.engine()
	if err != nil {
		return nil, err
	}
	loaded, err := engine.LoadedMasterWallets()
	if err != nil {
		return nil, contracts.NewEngineFault("load master wallets", err)
	}
	adopted := make([]string, 0, len(loaded))
	for _, mw := range loaded {
		if mw == nil {
			continue
		}
		id := mw.ID()
		if _, exists := r.masters[id]; exists || id == "" {
			continue
		}
		handle := r.newMasterHandle(id, "", mw)
		for _, sub := range mw.SubWallets() {
			if sub == nil {
				continue
			}
			chainID := sub.ChainID()
			kind := ClassifyChain(chainID)
			if kind == ChainUnsupported {
				continue
			}
			handle.children[chainID] = &SubWalletHandle{masterID: id, chainID: chainID, kind: kind, engine: sub, alive: true}
		}
		adopted = append(adopted, id)
	}
	slices.Sort(adopted)
	return adopted, nil
}

// Shutdown invalidates every master and sub wallet handle, then disposes
// the engine. Handles are invalid even when Dispose fails.
func (r *WalletRegistry) Shutdown() error {
	if !r.manager.Alive() {
		return contracts.ErrNotInitialized
	}
	for _, master := range r.masters {
		invalidateMaster(master)
	}
	r.masters = make(map[string]*MasterWalletHandle)
	manager := r.manager
	manager.alive = false
	r.manager = nil
	if err := manager.engine.Dispose(); err != nil {
		return contracts.NewEngineFault("dispose", err)
	}
	return nil
}

func (r *WalletRegistry) Manager() (*ManagerHandle, error) {
	if !r.manager.Alive() {
		return nil, contracts.ErrNotInitialized
	}
	return r.manager, nil
}

func (r *WalletRegistry) engine() (contracts.Engine, error) {
	manager, err := r.Manager()
	if err != nil {
		return nil, err
	}
	return manager.Engine()
}

func (r *WalletRegistry) CreateMasterWallet(id string, params contracts.CreateParams) (*MasterWalletHandle, error) {
	engine, err := r.precheckNewMaster(id)
	if err != nil {
		return nil, err
	}
	mw, err := engine.CreateMasterWallet(id, params)
	if err != nil {
		return nil, contracts.NewEngineFault("create master wallet", err)
	}
	if mw == nil {
		return nil, contracts.ErrCreationFailed
	}
	return r.newMasterHandle(id, r.manager.config.Network, mw).withMode(params.Mode), nil
}

func (r *WalletRegistry) ImportMasterWallet(id string, params contracts.ImportParams) (*MasterWalletHandle, error) {
	engine, err := r.precheckNewMaster(id)
	if err != nil {
		return nil, err
	}
	mw, err := engine.ImportMasterWallet(id, params)
	if err != nil {
		return nil, contracts.NewEngineFault("import master wallet", err)
	}
	if mw == nil {
		return nil, contracts.ErrCreationFailed
	}
	return r.newMasterHandle(id, r.manager.config.Network, mw).withMode(params.Mode), nil
}

func (r *WalletRegistry) precheckNewMaster(id string) (contracts.Engine, error) {
	engine, err := r.engine()
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(id) == "" || strings.Contains(id, ":") {
		return nil, fmt.Errorf("%w: master wallet id %q", contracts.ErrInvalidArgument, id)
	}
	if _, exists := r.masters[id]; exists {
		return nil, fmt.Errorf("%w: %s", contracts.ErrDuplicateID, id)
	}
	return engine, nil
}

func (r *WalletRegistry) newMasterHandle(id, network string, mw contracts.MasterWallet) *MasterWalletHandle {
	handle := &MasterWalletHandle{
		id:       id,
		network:  network,
		engine:   mw,
		children: make(map[string]*SubWalletHandle),
		alive:    true,
	}
	if handle.network == "" && r.manager != nil {
		handle.network = r.manager.config.Network
	}
	r.masters[id] = handle
	return handle
}

func (h *MasterWalletHandle) withMode(mode contracts.CreationMode) *MasterWalletHandle {
	h.mode = mode
	return h
}

func (r *WalletRegistry) MasterWallet(id string) (*MasterWalletHandle, error) {
	if _, err := r.Manager(); err != nil {
		return nil, err
	}
	handle, ok := r.masters[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", contracts.ErrMasterWalletNotFound, id)
	}
	return handle, nil
}

func (r *WalletRegistry) MasterWalletIDs() ([]string, error) {
	if _, err := r.Manager(); err != nil {
		return nil, err
	}
	out := make([]string, 0, len(r.masters))
	for id := range r.masters {
		out = append(out, id)
	}
	slices.Sort(out)
	return out, nil
}

// DestroyMasterWallet walks the children first, then removes the parent.
// Teardown failures are collected in a CascadeError; the handles are gone
// either way. The returned ids are the sub wallets that were removed.
func (r *WalletRegistry) DestroyMasterWallet(id string) ([]string, error) {
	master, err := r.MasterWallet(id)
	if err != nil {
		return nil, err
	}
	engine, err := r.engine()
	if err != nil {
		return nil, err
	}
	cascade := &contracts.CascadeError{}
	removed := make([]string, 0, len(master.children))
	for _, chainID := range master.ChainIDs() {
		sub := master.children[chainID]
		cascade.Add(sub.ID(), safeCall(func() error { return master.engine.DestroySubWallet(chainID) }))
		sub.alive = false
		delete(master.children, chainID)
		removed = append(removed, sub.ID())
	}
	cascade.Add(id, safeCall(func() error { return engine.DestroyMasterWallet(id) }))
	master.alive = false
	delete(r.masters, id)
	cascade.Removed = append(removed, id)
	return removed, cascade.OrNil()
}

func (r *WalletRegistry) CreateSubWallet(masterID, chainID string) (*SubWalletHandle, error) {
	master, err := r.MasterWallet(masterID)
	if err != nil {
		return nil, err
	}
	kind := ClassifyChain(chainID)
	if kind == ChainUnsupported {
		return nil, fmt.Errorf("%w: %s", contracts.ErrUnsupportedChain, chainID)
	}
	if existing, ok := master.child(chainID); ok {
		return existing, nil
	}
	sub, err := master.engine.CreateSubWallet(chainID)
	if err != nil {
		return nil, contracts.NewEngineFault("create sub wallet", err)
	}
	if sub == nil {
		return nil, contracts.ErrCreationFailed
	}
	handle := &SubWalletHandle{masterID: masterID, chainID: chainID, kind: kind, engine: sub, alive: true}
	master.children[chainID] = handle
	return handle, nil
}

func (r *WalletRegistry) SubWallet(masterID, chainID string) (*SubWalletHandle, error) {
	master, err := r.MasterWallet(masterID)
	if err != nil {
		return nil, err
	}
	sub, ok := master.child(chainID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", contracts.ErrSubWalletNotFound, SubWalletID(masterID, chainID))
	}
	return sub, nil
}

// DestroySubWallet removes the handle even when the engine teardown fails;
// the failure is reported to the caller.
func (r *WalletRegistry) DestroySubWallet(masterID, chainID string) error {
	sub, err := r.SubWallet(masterID, chainID)
	if err != nil {
		return err
	}
	master := r.masters[masterID]
	engineErr := safeCall(func() error { return master.engine.DestroySubWallet(chainID) })
	sub.alive = false
	delete(master.children, chainID)
	if engineErr != nil {
		return contracts.NewEngineFault("destroy sub wallet", engineErr)
	}
	return nil
}

func invalidateMaster(master *MasterWalletHandle) {
	for chainID, sub := range master.children {
		sub.alive = false
		delete(master.children, chainID)
	}
	master.alive = false
}

// safeCall keeps a panicking engine from aborting a cascade.
func safeCall(fn func() error) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = &contracts.EngineFault{Op: "teardown", Text: fmt.Sprint(rec)}
		}
	}()
	return fn()
}
