// Package walletcore is the in-process wallet engine the daemon runs by
// default. It keeps one directory per master wallet under the data root.
package walletcore

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/tyler-smith/go-bip39"

	"walletbridge/go-backend/internal/domains/contracts"
	"walletbridge/go-backend/internal/securestore"
)

const (
	Version = "walletcore/1.0.0"

	deviceKeyFile = ".device-key"
	backupDirName = "backups"
)

var (
	ErrDisposed            = errors.New("wallet engine disposed")
	ErrWalletExists        = errors.New("master wallet already exists on disk")
	ErrUnknownWallet       = errors.New("master wallet is not loaded")
	ErrBadWalletID         = errors.New("master wallet id cannot be used as a directory name")
	ErrBadBackupName       = errors.New("backup name must be a plain file name")
	ErrUnsupportedLanguage = errors.New("only the english word list is supported")
)

var _ contracts.Engine = (*Engine)(nil)

type Options struct {
	KDF    securestore.Params
	Logger *slog.Logger
	Now    func() time.Time
}

// Factory adapts New to the engine factory port.
func Factory(opts Options) contracts.EngineFactory {
	return func(cfg contracts.ManagerConfig) (contracts.Engine, error) {
		return New(cfg, opts)
	}
}

type Engine struct {
	mu        sync.Mutex
	cfg       contracts.ManagerConfig
	kdf       securestore.Params
	logger    *slog.Logger
	now       func() time.Time
	deviceKey string
	level     string
	masters   map[string]*masterWallet
	loaded    []string
	disposed  bool
}

func New(cfg contracts.ManagerConfig, opts Options) (*Engine, error) {
	root := strings.TrimSpace(cfg.RootPath)
	if root == "" {
		return nil, errors.New("root path is required")
	}
	if nc := strings.TrimSpace(cfg.NetworkConfig); nc != "" {
		var shape map[string]any
		if err := json.Unmarshal([]byte(nc), &shape); err != nil {
			return nil, fmt.Errorf("network config is not a json object: %w", err)
		}
	}
	if err := os.MkdirAll(root, 0o700); err != nil {
		return nil, fmt.Errorf("create data root: %w", err)
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	cfg.RootPath = root
	e := &Engine{
		cfg:     cfg,
		kdf:     opts.KDF,
		logger:  logger.With("component", "walletcore"),
		now:     now,
		level:   cfg.LogLevel,
		masters: make(map[string]*masterWallet),
	}
	key, err := e.loadDeviceKey()
	if err != nil {
		return nil, err
	}
	e.deviceKey = key
	if err := e.loadRecords(); err != nil {
		return nil, err
	}
	return e, nil
}

// loadDeviceKey returns the random secret that seals wallet roots at rest,
// creating it on first use.
func (e *Engine) loadDeviceKey() (string, error) {
	path := filepath.Join(e.cfg.RootPath, deviceKeyFile)
	raw, err := os.ReadFile(path)
	if err == nil {
		key := strings.TrimSpace(string(raw))
		if len(key) != 64 {
			return "", fmt.Errorf("device key %s is malformed", path)
		}
		return key, nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return "", fmt.Errorf("read device key: %w", err)
	}
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	key := hex.EncodeToString(buf)
	if err := securestore.WriteFileAtomic(path, []byte(key)); err != nil {
		return "", fmt.Errorf("write device key: %w", err)
	}
	return key, nil
}

func (e *Engine) loadRecords() error {
	entries, err := os.ReadDir(e.cfg.RootPath)
	if err != nil {
		return fmt.Errorf("scan data root: %w", err)
	}
	for _, entry := range entries {
		if !entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		path := filepath.Join(e.cfg.RootPath, entry.Name(), recordFileName)
		var rec walletRecord
		if err := securestore.ReadJSON(path, &rec); err != nil {
			if !errors.Is(err, os.ErrNotExist) {
				e.logger.Warn("skipping unreadable wallet record", "operation", "load", "path", path, "error", err.Error())
			}
			continue
		}
		if rec.Version != recordVersion || rec.ID != entry.Name() {
			e.logger.Warn("skipping wallet record with mismatched header", "operation", "load", "path", path)
			continue
		}
		mw, err := e.restore(rec)
		if err != nil {
			e.logger.Warn("skipping wallet record", "operation", "load", "master_wallet_id", rec.ID, "error", err.Error())
			continue
		}
		e.masters[rec.ID] = mw
		e.loaded = append(e.loaded, rec.ID)
	}
	slices.Sort(e.loaded)
	return nil
}

func (e *Engine) restore(rec walletRecord) (*masterWallet, error) {
	var ring keyring
	if !rec.ReadOnly {
		root, err := securestore.Decrypt(e.deviceKey, rec.Root)
		if err != nil {
			return nil, fmt.Errorf("open wallet root: %w", err)
		}
		ring = keyring{root: root, single: rec.SingleKey}
	}
	return newMasterWallet(e, rec, ring), nil
}

func (e *Engine) live() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.disposed {
		return ErrDisposed
	}
	return nil
}

func (e *Engine) walletDir(id string) (string, error) {
	if id == "" || strings.HasPrefix(id, ".") || !filepath.IsLocal(id) || filepath.Base(id) != id {
		return "", ErrBadWalletID
	}
	return filepath.Join(e.cfg.RootPath, id), nil
}

func (e *Engine) Version() string { return Version }

func (e *Engine) SetLogLevel(level string) {
	e.mu.Lock()
	e.level = level
	e.mu.Unlock()
	e.logger.Debug("engine log level changed", "operation", "setLogLevel", "level", level)
}

func (e *Engine) GenerateMnemonic(language string, wordCount int) (string, error) {
	if err := e.live(); err != nil {
		return "", err
	}
	switch strings.ToLower(strings.TrimSpace(language)) {
	case "", "english", "en":
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedLanguage, language)
	}
	if wordCount%3 != 0 || wordCount < 12 || wordCount > 24 {
		return "", fmt.Errorf("unsupported word count %d", wordCount)
	}
	entropy, err := bip39.NewEntropy(wordCount * 32 / 3)
	if err != nil {
		return "", err
	}
	defer clear(entropy)
	return bip39.NewMnemonic(entropy)
}

func (e *Engine) CreateMasterWallet(id string, params contracts.CreateParams) (contracts.MasterWallet, error) {
	rec := walletRecord{
		Mode:          params.Mode,
		SingleAddress: params.SingleAddress,
		Compatible:    params.Compatible,
		Timestamp:     params.Timestamp,
	}
	var secret walletSecret
	var err error
	switch params.Mode {
	case contracts.ModeMnemonic:
		secret, err = secretFromMnemonic(params.Mnemonic, params.PassPhrase)
	case contracts.ModePrivateKey:
		secret, err = secretFromPrivateKey(params.PrivateKey)
	case contracts.ModeMultiSign:
		rec.ReadOnly = true
	case contracts.ModeMultiSignPrivKey:
		secret, err = secretFromPrivateKey(params.PrivateKey)
	case contracts.ModeMultiSignMnemonic:
		secret, err = secretFromMnemonic(params.Mnemonic, params.PassPhrase)
	default:
		return nil, fmt.Errorf("unsupported creation mode %q", params.Mode)
	}
	if err != nil {
		return nil, err
	}
	defer secret.wipe()

	if isMultiSign(params.Mode) {
		cosigners, err := normalizeCosigners(params.Cosigners)
		if err != nil {
			return nil, err
		}
		rec.Cosigners = cosigners
		rec.RequiredSigners = params.RequiredSigners
	}
	return e.persistNew(id, rec, secret, params.PayPassword)
}

func (e *Engine) ImportMasterWallet(id string, params contracts.ImportParams) (contracts.MasterWallet, error) {
	rec := walletRecord{Mode: params.Mode, SingleAddress: params.SingleAddress}
	var secret walletSecret
	var err error
	switch params.Mode {
	case contracts.ModeKeystore:
		var payload keystorePayload
		payload, err = openKeystore(params.Keystore, params.BackupPassword)
		if err == nil {
			secret = payload.Secret
			rec.Mode = payload.Mode
			rec.SingleAddress = payload.SingleAddress
			rec.Cosigners = payload.Cosigners
			rec.RequiredSigners = payload.RequiredSigners
			rec.Chains = payload.Chains
			rec.ReadOnly = payload.Mode == contracts.ModeMultiSign
		}
	case contracts.ModeMnemonic:
		secret, err = secretFromMnemonic(params.Mnemonic, params.PassPhrase)
	case contracts.ModeSeed:
		secret, err = secretFromSeed(params.Seed)
		if err == nil && strings.TrimSpace(params.Mnemonic) != "" {
			secret.Mnemonic, err = normalizeMnemonic(params.Mnemonic)
			secret.PassPhrase = params.PassPhrase
		}
	default:
		return nil, fmt.Errorf("unsupported import mode %q", params.Mode)
	}
	if err != nil {
		return nil, err
	}
	defer secret.wipe()
	return e.persistNew(id, rec, secret, params.PayPassword)
}

func (e *Engine) persistNew(id string, rec walletRecord, secret walletSecret, payPassword string) (*masterWallet, error) {
	if err := e.live(); err != nil {
		return nil, err
	}
	dir, err := e.walletDir(id)
	if err != nil {
		return nil, err
	}
	if _, err := os.Stat(filepath.Join(dir, recordFileName)); err == nil {
		return nil, fmt.Errorf("%w: %s", ErrWalletExists, id)
	}

	rec.Version = recordVersion
	rec.ID = id
	rec.Network = e.cfg.Network
	rec.CreatedAt = e.now().UTC()
	rec.HasPassPhrase = secret.PassPhrase != ""
	rec.SingleKey = secret.SingleKey
	if rec.Chains == nil {
		rec.Chains = []string{}
	}

	var ring keyring
	if !rec.ReadOnly {
		if len(secret.Root) == 0 {
			return nil, errors.New("wallet secret is empty")
		}
		if rec.Root, err = e.kdf.Seal(e.deviceKey, secret.Root); err != nil {
			return nil, fmt.Errorf("seal wallet root: %w", err)
		}
		if rec.Secret, err = sealSecret(e.kdf, payPassword, secret); err != nil {
			return nil, fmt.Errorf("seal wallet secret: %w", err)
		}
		ring = keyring{root: slices.Clone(secret.Root), single: secret.SingleKey}
	}
	if isMultiSign(rec.Mode) {
		ringKeys := slices.Clone(rec.Cosigners)
		if !rec.ReadOnly {
			ringKeys = appendUnique(ringKeys, ownPublicKeyHex(ring))
		}
		if rec.RequiredSigners < 1 || rec.RequiredSigners > len(ringKeys) {
			return nil, fmt.Errorf("required signers %d out of range for %d keys", rec.RequiredSigners, len(ringKeys))
		}
	}

	if err := securestore.WriteJSON(filepath.Join(dir, recordFileName), rec); err != nil {
		return nil, fmt.Errorf("persist wallet record: %w", err)
	}
	mw := newMasterWallet(e, rec, ring)
	e.mu.Lock()
	e.masters[id] = mw
	e.mu.Unlock()
	e.logger.Info("master wallet persisted", "operation", "createMasterWallet", "master_wallet_id", id, "mode", string(rec.Mode))
	return mw, nil
}

func (e *Engine) LoadedMasterWallets() ([]contracts.MasterWallet, error) {
	if err := e.live(); err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]contracts.MasterWallet, 0, len(e.loaded))
	for _, id := range e.loaded {
		if mw, ok := e.masters[id]; ok {
			out = append(out, mw)
		}
	}
	return out, nil
}

func (e *Engine) DestroyMasterWallet(id string) error {
	if err := e.live(); err != nil {
		return err
	}
	dir, err := e.walletDir(id)
	if err != nil {
		return err
	}
	e.mu.Lock()
	mw, ok := e.masters[id]
	delete(e.masters, id)
	e.loaded = slices.DeleteFunc(e.loaded, func(v string) bool { return v == id })
	e.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownWallet, id)
	}
	mw.close()
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("remove wallet directory: %w", err)
	}
	return nil
}

func (e *Engine) backupPath(masterWalletID, name string) (string, error) {
	dir, err := e.walletDir(masterWalletID)
	if err != nil {
		return "", err
	}
	if name == "" || strings.HasPrefix(name, ".") || !filepath.IsLocal(name) || filepath.Base(name) != name {
		return "", ErrBadBackupName
	}
	return filepath.Join(dir, backupDirName, name), nil
}

// OpenBackupWriter streams into a temp file that replaces the named backup
// on Close.
func (e *Engine) OpenBackupWriter(masterWalletID, name string) (io.WriteCloser, error) {
	if err := e.live(); err != nil {
		return nil, err
	}
	path, err := e.backupPath(masterWalletID, name)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+name+".partial-*")
	if err != nil {
		return nil, err
	}
	return &backupWriter{file: tmp, final: path}, nil
}

func (e *Engine) OpenBackupReader(masterWalletID, name string) (io.ReadCloser, error) {
	if err := e.live(); err != nil {
		return nil, err
	}
	path, err := e.backupPath(masterWalletID, name)
	if err != nil {
		return nil, err
	}
	return os.Open(path)
}

func (e *Engine) Dispose() error {
	e.mu.Lock()
	if e.disposed {
		e.mu.Unlock()
		return nil
	}
	e.disposed = true
	masters := e.masters
	e.masters = make(map[string]*masterWallet)
	e.mu.Unlock()
	for _, mw := range masters {
		mw.close()
	}
	return nil
}

type backupWriter struct {
	file  *os.File
	final string
	done  bool
}

func (w *backupWriter) Write(p []byte) (int, error) {
	return w.file.Write(p)
}

func (w *backupWriter) Close() error {
	if w.done {
		return nil
	}
	w.done = true
	tmpName := w.file.Name()
	if err := w.file.Sync(); err != nil {
		_ = w.file.Close()
		_ = os.Remove(tmpName)
		return err
	}
	if err := w.file.Close(); err != nil {
		_ = os.Remove(tmpName)
		return err
	}
	return os.Rename(tmpName, w.final)
}

func isMultiSign(mode contracts.CreationMode) bool {
	switch mode {
	case contracts.ModeMultiSign, contracts.ModeMultiSignPrivKey, contracts.ModeMultiSignMnemonic:
		return true
	}
	return false
}

func normalizeCosigners(keys []string) ([]string, error) {
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		pub, err := decodePublicKey(k)
		if err != nil {
			return nil, fmt.Errorf("cosigner %q: %w", k, err)
		}
		out = appendUnique(out, hex.EncodeToString(pub))
	}
	return out, nil
}

func appendUnique(list []string, v string) []string {
	if slices.Contains(list, v) {
		return list
	}
	return append(list, v)
}

func ownPublicKeyHex(ring keyring) string {
	return hex.EncodeToString(ring.public(ownerPath, false, 0))
}
