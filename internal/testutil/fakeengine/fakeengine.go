// Package fakeengine is a scriptable in-memory wallet engine for tests.
package fakeengine

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"slices"
	"strings"
	"sync"

	"walletbridge/go-backend/internal/domains/contracts"
)

const PayPassword = "pay-password-1"

var ErrNoBackup = errors.New("backup not found")

var (
	_ contracts.Engine                = (*Engine)(nil)
	_ contracts.MainchainSubWallet    = (*SubWallet)(nil)
	_ contracts.IDChainSubWallet      = (*SubWallet)(nil)
	_ contracts.EthSidechainSubWallet = (*SubWallet)(nil)
	_ contracts.BTCSubWallet          = (*SubWallet)(nil)
)

type Engine struct {
	mu       sync.Mutex
	faults   map[string]error
	panics   map[string]string
	masters  map[string]*MasterWallet
	loaded   []*MasterWallet
	backups  map[string][]byte
	Config   contracts.ManagerConfig
	LogLevel string
	Disposed bool
	Calls    []string
}

func New() *Engine {
	return &Engine{
		faults:  make(map[string]error),
		panics:  make(map[string]string),
		masters: make(map[string]*MasterWallet),
		backups: make(map[string][]byte),
	}
}

// Factory returns an EngineFactory that hands out e and records cfg.
func (e *Engine) Factory() contracts.EngineFactory {
	return func(cfg contracts.ManagerConfig) (contracts.Engine, error) {
		if err := e.check("init"); err != nil {
			return nil, err
		}
		e.mu.Lock()
		e.Config = cfg
		e.Disposed = false
		e.mu.Unlock()
		return e, nil
	}
}

// FailOn makes the named operation return err until cleared with a nil err.
func (e *Engine) FailOn(op string, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err == nil {
		delete(e.faults, op)
		return
	}
	e.faults[op] = err
}

func (e *Engine) PanicOn(op, msg string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.panics[op] = msg
}

// Preload registers a wallet returned by LoadedMasterWallets.
func (e *Engine) Preload(id string, chainIDs ...string) *MasterWallet {
	mw := newMasterWallet(e, id)
	for _, chainID := range chainIDs {
		mw.subs[chainID] = &SubWallet{engine: e, chainID: chainID}
	}
	e.mu.Lock()
	e.loaded = append(e.loaded, mw)
	e.mu.Unlock()
	return mw
}

func (e *Engine) Master(id string) *MasterWallet {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.masters[id]
}

func (e *Engine) CurrentLogLevel() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.LogLevel
}

func (e *Engine) Backup(masterID, name string) []byte {
	e.mu.Lock()
	defer e.mu.Unlock()
	return slices.Clone(e.backups[masterID+"/"+name])
}

func (e *Engine) check(op string) error {
	e.mu.Lock()
	e.Calls = append(e.Calls, op)
	msg, shouldPanic := e.panics[op]
	err := e.faults[op]
	e.mu.Unlock()
	if shouldPanic {
		panic(msg)
	}
	return err
}

func (e *Engine) Version() string { return "fake-1.0.0" }

func (e *Engine) SetLogLevel(level string) {
	e.mu.Lock()
	e.LogLevel = level
	e.mu.Unlock()
}

func (e *Engine) GenerateMnemonic(language string, wordCount int) (string, error) {
	if err := e.check("generateMnemonic"); err != nil {
		return "", err
	}
	words := make([]string, wordCount)
	for i := range words {
		words[i] = "abandon"
	}
	words[len(words)-1] = "about"
	return strings.Join(words, " "), nil
}

func (e *Engine) CreateMasterWallet(id string, params contracts.CreateParams) (contracts.MasterWallet, error) {
	if err := e.check("createMasterWallet"); err != nil {
		return nil, err
	}
	mw := newMasterWallet(e, id)
	if params.PayPassword != "" {
		mw.payPassword = params.PayPassword
	}
	mw.mnemonic = params.Mnemonic
	e.mu.Lock()
	e.masters[id] = mw
	e.mu.Unlock()
	return mw, nil
}

func (e *Engine) ImportMasterWallet(id string, params contracts.ImportParams) (contracts.MasterWallet, error) {
	if err := e.check("importMasterWallet"); err != nil {
		return nil, err
	}
	mw := newMasterWallet(e, id)
	if params.PayPassword != "" {
		mw.payPassword = params.PayPassword
	}
	e.mu.Lock()
	e.masters[id] = mw
	e.mu.Unlock()
	return mw, nil
}

func (e *Engine) LoadedMasterWallets() ([]contracts.MasterWallet, error) {
	if err := e.check("loadMasterWallets"); err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]contracts.MasterWallet, 0, len(e.loaded))
	for _, mw := range e.loaded {
		e.masters[mw.id] = mw
		out = append(out, mw)
	}
	return out, nil
}

func (e *Engine) DestroyMasterWallet(id string) error {
	if err := e.check("destroyMasterWallet"); err != nil {
		return err
	}
	e.mu.Lock()
	delete(e.masters, id)
	e.mu.Unlock()
	return nil
}

func (e *Engine) OpenBackupWriter(masterWalletID, name string) (io.WriteCloser, error) {
	if err := e.check("openBackupWriter"); err != nil {
		return nil, err
	}
	return &backupWriter{engine: e, key: masterWalletID + "/" + name}, nil
}

func (e *Engine) OpenBackupReader(masterWalletID, name string) (io.ReadCloser, error) {
	if err := e.check("openBackupReader"); err != nil {
		return nil, err
	}
	e.mu.Lock()
	data, ok := e.backups[masterWalletID+"/"+name]
	e.mu.Unlock()
	if !ok {
		return nil, ErrNoBackup
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (e *Engine) Dispose() error {
	if err := e.check("dispose"); err != nil {
		return err
	}
	e.mu.Lock()
	e.Disposed = true
	e.mu.Unlock()
	return nil
}

type backupWriter struct {
	engine *Engine
	key    string
	buf    bytes.Buffer
}

func (w *backupWriter) Write(p []byte) (int, error) {
	if err := w.engine.check("writeBackup"); err != nil {
		return 0, err
	}
	return w.buf.Write(p)
}

func (w *backupWriter) Close() error {
	w.engine.mu.Lock()
	w.engine.backups[w.key] = slices.Clone(w.buf.Bytes())
	w.engine.mu.Unlock()
	return w.engine.check("closeBackup")
}

type MasterWallet struct {
	engine      *Engine
	id          string
	payPassword string
	mnemonic    string
	mu          sync.Mutex
	subs        map[string]*SubWallet
}

func newMasterWallet(e *Engine, id string) *MasterWallet {
	return &MasterWallet{engine: e, id: id, payPassword: PayPassword, subs: make(map[string]*SubWallet)}
}

func (m *MasterWallet) ID() string { return m.id }

func (m *MasterWallet) BasicInfo() (any, error) {
	if err := m.engine.check("basicInfo"); err != nil {
		return nil, err
	}
	return map[string]any{"id": m.id, "type": "Standard"}, nil
}

func (m *MasterWallet) CreateSubWallet(chainID string) (contracts.SubWallet, error) {
	if err := m.engine.check("createSubWallet"); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	sub := &SubWallet{engine: m.engine, chainID: chainID}
	m.subs[chainID] = sub
	return sub, nil
}

func (m *MasterWallet) DestroySubWallet(chainID string) error {
	if err := m.engine.check("destroySubWallet:" + chainID); err != nil {
		return err
	}
	m.mu.Lock()
	delete(m.subs, chainID)
	m.mu.Unlock()
	return nil
}

func (m *MasterWallet) SubWallets() []contracts.SubWallet {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]contracts.SubWallet, 0, len(m.subs))
	for _, sub := range m.subs {
		out = append(out, sub)
	}
	return out
}

// Sub returns the engine-side sub wallet so tests can raise events on it.
func (m *MasterWallet) Sub(chainID string) *SubWallet {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.subs[chainID]
}

func (m *MasterWallet) SupportedChains() []string {
	return []string{"BTC", "ELA", "ETHSC", "IDChain"}
}

func (m *MasterWallet) ExportKeystore(backupPassword, payPassword string) (string, error) {
	if err := m.VerifyPayPassword(payPassword); err != nil {
		return "", err
	}
	return `{"keystore":"` + m.id + `"}`, nil
}

func (m *MasterWallet) ExportMnemonic(payPassword string) (string, error) {
	if err := m.VerifyPayPassword(payPassword); err != nil {
		return "", err
	}
	return m.mnemonic, nil
}

func (m *MasterWallet) ExportSeed(payPassword string) (string, error) {
	if err := m.VerifyPayPassword(payPassword); err != nil {
		return "", err
	}
	return "00ff", nil
}

func (m *MasterWallet) ExportPrivateKey(payPassword string) (string, error) {
	if err := m.VerifyPayPassword(payPassword); err != nil {
		return "", err
	}
	return "deadbeef", nil
}

func (m *MasterWallet) VerifyPassPhrase(passPhrase, payPassword string) error {
	return m.VerifyPayPassword(payPassword)
}

func (m *MasterWallet) VerifyPayPassword(payPassword string) error {
	if err := m.engine.check("verifyPayPassword"); err != nil {
		return err
	}
	if payPassword != m.payPassword {
		return errors.New("invalid password")
	}
	return nil
}

func (m *MasterWallet) ChangePassword(oldPassword, newPassword string) error {
	if err := m.VerifyPayPassword(oldPassword); err != nil {
		return err
	}
	m.payPassword = newPassword
	return nil
}

func (m *MasterWallet) ResetPassword(mnemonic, passPhrase, newPassword string) error {
	if mnemonic != m.mnemonic {
		return errors.New("mnemonic does not match")
	}
	m.payPassword = newPassword
	return nil
}

func (m *MasterWallet) PubKeyInfo() (any, error) {
	return map[string]any{"m": 1, "n": 1, "xPubKey": "xpub-" + m.id}, nil
}

func (m *MasterWallet) IsAddressValid(address string) bool { return address != "" }

func (m *MasterWallet) IsSubWalletAddressValid(chainID, address string) bool {
	return address != "" && chainID != ""
}

// SubWallet implements every chain capability so one type can back any
// chain id in tests.
type SubWallet struct {
	engine  *Engine
	chainID string
	mu      sync.Mutex
	sink    contracts.EventSink
	syncing bool
}

// Emit raises evt on the registered callback, if any.
func (s *SubWallet) Emit(evt contracts.Event) bool {
	s.mu.Lock()
	sink := s.sink
	s.mu.Unlock()
	if sink == nil {
		return false
	}
	sink.OnEvent(evt)
	return true
}

func (s *SubWallet) HasCallback() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sink != nil
}

func (s *SubWallet) ChainID() string { return s.chainID }

func (s *SubWallet) BasicInfo() (any, error) {
	return map[string]any{"chainID": s.chainID}, nil
}

func (s *SubWallet) Addresses(index, count int, internal bool) ([]string, error) {
	if err := s.engine.check("addresses"); err != nil {
		return nil, err
	}
	out := make([]string, count)
	for i := range out {
		out[i] = fmt.Sprintf("%s-addr-%d", s.chainID, index+i)
	}
	return out, nil
}

func (s *SubWallet) PublicKeys(index, count int, internal bool) ([]string, error) {
	out := make([]string, count)
	for i := range out {
		out[i] = fmt.Sprintf("%s-pub-%d", s.chainID, index+i)
	}
	return out, nil
}

func (s *SubWallet) CreateTransaction(inputs, outputs json.RawMessage, fee, memo string) (json.RawMessage, error) {
	if err := s.engine.check("createTransaction"); err != nil {
		return nil, err
	}
	return json.Marshal(map[string]any{"chain": s.chainID, "fee": fee, "memo": memo})
}

func (s *SubWallet) SignTransaction(tx json.RawMessage, payPassword string) (json.RawMessage, error) {
	if err := s.engine.check("signTransaction"); err != nil {
		return nil, err
	}
	return json.Marshal(map[string]any{"signed": true, "tx": tx})
}

func (s *SubWallet) PublishTransaction(tx json.RawMessage) (string, error) {
	if err := s.engine.check("publishTransaction"); err != nil {
		return "", err
	}
	return "txid-1", nil
}

func (s *SubWallet) SignDigest(address, digest, payPassword string) (string, error) {
	return "sig:" + digest, nil
}

func (s *SubWallet) VerifyDigest(publicKey, digest, signature string) (bool, error) {
	return signature == "sig:"+digest, nil
}

func (s *SubWallet) TransactionSignedInfo(tx json.RawMessage) (any, error) {
	return []any{}, nil
}

func (s *SubWallet) ConvertToRawTransaction(tx json.RawMessage) (string, error) {
	return "raw", nil
}

func (s *SubWallet) RegisterCallback(sink contracts.EventSink) error {
	if err := s.engine.check("registerCallback"); err != nil {
		return err
	}
	s.mu.Lock()
	s.sink = sink
	s.mu.Unlock()
	return nil
}

func (s *SubWallet) UnregisterCallback() error {
	s.mu.Lock()
	s.sink = nil
	s.mu.Unlock()
	return s.engine.check("unregisterCallback")
}

func (s *SubWallet) SyncStart() error {
	s.mu.Lock()
	s.syncing = true
	s.mu.Unlock()
	return s.engine.check("syncStart")
}

func (s *SubWallet) SyncStop() error {
	s.mu.Lock()
	s.syncing = false
	s.mu.Unlock()
	return s.engine.check("syncStop")
}

func (s *SubWallet) Governance(action string, args []json.RawMessage) (any, error) {
	if err := s.engine.check("governance:" + action); err != nil {
		return nil, err
	}
	return map[string]any{"action": action, "argc": len(args)}, nil
}

func (s *SubWallet) CreateWithdrawTransaction(inputs json.RawMessage, amount, mainchainAddress, fee, memo string) (json.RawMessage, error) {
	return json.Marshal(map[string]any{"withdraw": amount, "to": mainchainAddress})
}

func (s *SubWallet) CreateIDTransaction(inputs, payload json.RawMessage, memo, fee string) (json.RawMessage, error) {
	return json.Marshal(map[string]any{"payload": payload, "fee": fee})
}

func (s *SubWallet) DIDs(index, count int, internal bool) ([]string, error) {
	return s.prefixed("did:elastos:", index, count), nil
}

func (s *SubWallet) CIDs(index, count int, internal bool) ([]string, error) {
	return s.prefixed("cid-", index, count), nil
}

func (s *SubWallet) DIDSign(did, message, payPassword string) (string, error) {
	return "didsig:" + message, nil
}

func (s *SubWallet) VerifySignature(publicKey, message, signature string) (bool, error) {
	return signature == "didsig:"+message, nil
}

func (s *SubWallet) PublicKeyToDID(publicKey string) (string, error) {
	return "did:elastos:" + publicKey, nil
}

func (s *SubWallet) PublicKeyToCID(publicKey string) (string, error) {
	return "cid-" + publicKey, nil
}

func (s *SubWallet) CreateTransfer(targetAddress, amount string, amountUnit int, gasPrice string, gasPriceUnit int, gasLimit string, nonce uint64) (json.RawMessage, error) {
	return json.Marshal(map[string]any{"to": targetAddress, "amount": amount, "nonce": nonce})
}

func (s *SubWallet) CreateTransferGeneric(targetAddress, amount string, amountUnit int, gasPrice string, gasPriceUnit int, gasLimit string, data string, nonce uint64) (json.RawMessage, error) {
	return json.Marshal(map[string]any{"to": targetAddress, "data": data, "nonce": nonce})
}

func (s *SubWallet) ExportPrivateKey(payPassword string) (string, error) {
	return "eth-private-key", nil
}

func (s *SubWallet) LegacyAddresses(index, count int, internal bool) ([]string, error) {
	return s.prefixed("1legacy", index, count), nil
}

func (s *SubWallet) CreateBTCTransaction(inputs, outputs json.RawMessage, changeAddress, feePerKB string) (json.RawMessage, error) {
	return json.Marshal(map[string]any{"change": changeAddress, "feePerKB": feePerKB})
}

func (s *SubWallet) prefixed(prefix string, index, count int) []string {
	out := make([]string, count)
	for i := range out {
		out[i] = fmt.Sprintf("%s%d", prefix, index+i)
	}
	return out
}
