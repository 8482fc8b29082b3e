package walletcore

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"slices"
	"sort"
	"strings"
	"sync"

	"walletbridge/go-backend/internal/domains/contracts"
	"walletbridge/go-backend/internal/domains/wallet/domain"
	"walletbridge/go-backend/internal/securestore"
)

const (
	ownerPath = "owner"
	crPath    = "cr"

	keystoreVersion = 1
)

var supportedChains = []string{"BTC", "ELA", "ETHDID", "ETHSC", "IDChain"}

type masterWallet struct {
	engine *Engine
	guard  passwordGuard

	mu     sync.Mutex
	rec    walletRecord
	ring   keyring
	subs   map[string]contracts.SubWallet
	closed bool
}

var _ contracts.MasterWallet = (*masterWallet)(nil)

func newMasterWallet(e *Engine, rec walletRecord, ring keyring) *masterWallet {
	mw := &masterWallet{
		engine: e,
		guard:  passwordGuard{now: e.now},
		rec:    rec,
		ring:   ring,
		subs:   make(map[string]contracts.SubWallet),
	}
	for _, chainID := range rec.Chains {
		mw.subs[chainID] = newSubWallet(mw, chainID)
	}
	return mw
}

func (m *masterWallet) ID() string { return m.rec.ID }

func (m *masterWallet) persist() error {
	dir, err := m.engine.walletDir(m.rec.ID)
	if err != nil {
		return err
	}
	return securestore.WriteJSON(filepath.Join(dir, recordFileName), m.rec)
}

func (m *masterWallet) close() {
	m.mu.Lock()
	subs := make([]contracts.SubWallet, 0, len(m.subs))
	for _, sw := range m.subs {
		subs = append(subs, sw)
	}
	m.closed = true
	m.mu.Unlock()
	for _, sw := range subs {
		base(sw).detach()
	}
	clear(m.ring.root)
}

// ringKeys lists every public key that may sign for the wallet.
func (m *masterWallet) ringKeys() []string {
	keys := slices.Clone(m.rec.Cosigners)
	if !m.rec.ReadOnly {
		keys = appendUnique(keys, ownPublicKeyHex(m.ring))
	}
	return keys
}

func (m *masterWallet) requiredSigners() int {
	if isMultiSign(m.rec.Mode) {
		return m.rec.RequiredSigners
	}
	return 1
}

// unlock checks the pay password against the sealed secret.
func (m *masterWallet) unlock(payPassword string) (walletSecret, error) {
	if m.rec.ReadOnly {
		return walletSecret{}, ErrWatchOnly
	}
	if err := m.guard.check(); err != nil {
		return walletSecret{}, err
	}
	m.mu.Lock()
	sealed := m.rec.Secret
	m.mu.Unlock()
	secret, err := openSecret(payPassword, sealed)
	if err != nil {
		if errors.Is(err, securestore.ErrAuthFailed) {
			m.guard.failed()
			return walletSecret{}, ErrInvalidPassword
		}
		return walletSecret{}, err
	}
	m.guard.reset()
	return secret, nil
}

func (m *masterWallet) BasicInfo() (any, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	kind := "Standard"
	if isMultiSign(m.rec.Mode) {
		kind = "MultiSign"
	}
	return map[string]any{
		"id":            m.rec.ID,
		"type":          kind,
		"m":             m.requiredSigners(),
		"n":             max(len(m.ringKeys()), 1),
		"readonly":      m.rec.ReadOnly,
		"singleAddress": m.rec.SingleAddress || m.rec.SingleKey,
		"hasPassPhrase": m.rec.HasPassPhrase,
		"network":       m.rec.Network,
		"createdAt":     m.rec.CreatedAt,
	}, nil
}

func (m *masterWallet) CreateSubWallet(chainID string) (contracts.SubWallet, error) {
	switch domain.ClassifyChain(chainID) {
	case domain.ChainUnsupported:
		return nil, fmt.Errorf("chain %q is not supported by %s", chainID, Version)
	case domain.ChainEthSidechain:
		if isMultiSign(m.rec.Mode) {
			return nil, fmt.Errorf("multi-sign wallets cannot open %s", chainID)
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, ErrUnknownWallet
	}
	if sw, ok := m.subs[chainID]; ok {
		return sw, nil
	}
	sw := newSubWallet(m, chainID)
	m.rec.Chains = append(m.rec.Chains, chainID)
	if err := m.persist(); err != nil {
		m.rec.Chains = m.rec.Chains[:len(m.rec.Chains)-1]
		return nil, fmt.Errorf("persist sub wallet: %w", err)
	}
	m.subs[chainID] = sw
	return sw, nil
}

func (m *masterWallet) DestroySubWallet(chainID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	sw, ok := m.subs[chainID]
	if !ok {
		return fmt.Errorf("sub wallet %s is not loaded", chainID)
	}
	chains := slices.DeleteFunc(slices.Clone(m.rec.Chains), func(c string) bool { return c == chainID })
	prev := m.rec.Chains
	m.rec.Chains = chains
	if err := m.persist(); err != nil {
		m.rec.Chains = prev
		return fmt.Errorf("persist sub wallet removal: %w", err)
	}
	delete(m.subs, chainID)
	base(sw).detach()
	return nil
}

func (m *masterWallet) SubWallets() []contracts.SubWallet {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]string, 0, len(m.subs))
	for id := range m.subs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	out := make([]contracts.SubWallet, 0, len(ids))
	for _, id := range ids {
		out = append(out, m.subs[id])
	}
	return out
}

func (m *masterWallet) SupportedChains() []string {
	return slices.Clone(supportedChains)
}

func (m *masterWallet) ExportKeystore(backupPassword, payPassword string) (string, error) {
	secret, err := m.unlock(payPassword)
	if err != nil {
		return "", err
	}
	defer secret.wipe()
	m.mu.Lock()
	payload := keystorePayload{
		Version:         keystoreVersion,
		Mode:            m.rec.Mode,
		SingleAddress:   m.rec.SingleAddress,
		Cosigners:       slices.Clone(m.rec.Cosigners),
		RequiredSigners: m.rec.RequiredSigners,
		Chains:          slices.Clone(m.rec.Chains),
		Secret:          secret,
	}
	m.mu.Unlock()
	raw, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}
	defer clear(raw)
	sealed, err := m.engine.kdf.Seal(backupPassword, raw)
	if err != nil {
		return "", err
	}
	return string(sealed), nil
}

func openKeystore(keystore, backupPassword string) (keystorePayload, error) {
	raw, err := securestore.Decrypt(backupPassword, []byte(strings.TrimSpace(keystore)))
	if err != nil {
		return keystorePayload{}, fmt.Errorf("%w: %v", ErrBadKeystore, err)
	}
	defer clear(raw)
	var payload keystorePayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return keystorePayload{}, fmt.Errorf("%w: %v", ErrBadKeystore, err)
	}
	if payload.Version != keystoreVersion {
		return keystorePayload{}, fmt.Errorf("%w: version %d", ErrBadKeystore, payload.Version)
	}
	return payload, nil
}

func (m *masterWallet) ExportMnemonic(payPassword string) (string, error) {
	secret, err := m.unlock(payPassword)
	if err != nil {
		return "", err
	}
	defer secret.wipe()
	if secret.Mnemonic == "" {
		return "", ErrNoMnemonic
	}
	return secret.Mnemonic, nil
}

func (m *masterWallet) ExportSeed(payPassword string) (string, error) {
	secret, err := m.unlock(payPassword)
	if err != nil {
		return "", err
	}
	defer secret.wipe()
	return hex.EncodeToString(secret.Root), nil
}

func (m *masterWallet) ExportPrivateKey(payPassword string) (string, error) {
	secret, err := m.unlock(payPassword)
	if err != nil {
		return "", err
	}
	defer secret.wipe()
	return hex.EncodeToString(secret.keyring().private(ownerPath, false, 0).Seed()), nil
}

func (m *masterWallet) VerifyPassPhrase(passPhrase, payPassword string) error {
	secret, err := m.unlock(payPassword)
	if err != nil {
		return err
	}
	defer secret.wipe()
	if secret.PassPhrase != passPhrase {
		return errors.New("pass phrase does not match")
	}
	return nil
}

func (m *masterWallet) VerifyPayPassword(payPassword string) error {
	secret, err := m.unlock(payPassword)
	secret.wipe()
	return err
}

func (m *masterWallet) ChangePassword(oldPassword, newPassword string) error {
	secret, err := m.unlock(oldPassword)
	if err != nil {
		return err
	}
	defer secret.wipe()
	return m.reseal(secret, newPassword)
}

// ResetPassword proves ownership with the mnemonic instead of the old pay
// password.
func (m *masterWallet) ResetPassword(mnemonic, passPhrase, newPassword string) error {
	if m.rec.ReadOnly {
		return ErrWatchOnly
	}
	secret, err := secretFromMnemonic(mnemonic, passPhrase)
	if err != nil {
		return err
	}
	defer secret.wipe()
	if secret.keyring().public(ownerPath, false, 0).Equal(m.ring.public(ownerPath, false, 0)) {
		return m.reseal(secret, newPassword)
	}
	return errors.New("mnemonic does not belong to this wallet")
}

func (m *masterWallet) reseal(secret walletSecret, newPassword string) error {
	sealed, err := sealSecret(m.engine.kdf, newPassword, secret)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	prev := m.rec.Secret
	m.rec.Secret = sealed
	if err := m.persist(); err != nil {
		m.rec.Secret = prev
		return fmt.Errorf("persist new password: %w", err)
	}
	m.guard.reset()
	return nil
}

func (m *masterWallet) PubKeyInfo() (any, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	info := map[string]any{
		"derivationStrategy": "hkdf-ed25519",
		"m":                  m.requiredSigners(),
		"n":                  max(len(m.ringKeys()), 1),
		"publicKeyRing":      m.ringKeys(),
	}
	if !m.rec.ReadOnly {
		info["ownerPublicKey"] = ownPublicKeyHex(m.ring)
	}
	return info, nil
}

func (m *masterWallet) IsAddressValid(address string) bool {
	return addressValidFor(domain.ChainMainchain, address)
}

func (m *masterWallet) IsSubWalletAddressValid(chainID, address string) bool {
	return addressValidFor(domain.ClassifyChain(chainID), address)
}
