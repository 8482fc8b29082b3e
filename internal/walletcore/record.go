package walletcore

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/tyler-smith/go-bip39"

	"walletbridge/go-backend/internal/domains/contracts"
	"walletbridge/go-backend/internal/securestore"
)

const (
	recordVersion   = 1
	recordFileName  = "wallet.json"
	freeAttempts    = 3
	maxBackoffShift = 5
)

var (
	ErrInvalidPassword = errors.New("invalid pay password")
	ErrPasswordLocked  = errors.New("password attempts are temporarily locked")
	ErrWatchOnly       = errors.New("watch-only wallet holds no private key")
	ErrInvalidMnemonic = errors.New("invalid mnemonic")
	ErrNoMnemonic      = errors.New("wallet was not created from a mnemonic")
	ErrBadKeystore     = errors.New("keystore cannot be opened with this backup password")
)

// walletRecord is persisted as <root>/<id>/wallet.json. Root is sealed with
// the device key so public data can be derived without the pay password;
// Secret is sealed with the pay password.
type walletRecord struct {
	Version         int                    `json:"version"`
	ID              string                 `json:"id"`
	Network         string                 `json:"network"`
	Mode            contracts.CreationMode `json:"mode"`
	SingleAddress   bool                   `json:"singleAddress"`
	SingleKey       bool                   `json:"singleKey,omitempty"`
	ReadOnly        bool                   `json:"readOnly"`
	HasPassPhrase   bool                   `json:"hasPassPhrase"`
	Cosigners       []string               `json:"cosigners,omitempty"`
	RequiredSigners int                    `json:"requiredSigners,omitempty"`
	Compatible      bool                   `json:"compatible,omitempty"`
	Timestamp       int64                  `json:"timestamp,omitempty"`
	Chains          []string               `json:"chains"`
	Root            []byte                 `json:"root,omitempty"`
	Secret          []byte                 `json:"secret,omitempty"`
	CreatedAt       time.Time              `json:"createdAt"`
}

// walletSecret is what the pay password unlocks.
type walletSecret struct {
	Mnemonic   string `json:"mnemonic,omitempty"`
	PassPhrase string `json:"passPhrase,omitempty"`
	Root       []byte `json:"root"`
	SingleKey  bool   `json:"singleKey,omitempty"`
}

func (s *walletSecret) wipe() {
	if s == nil {
		return
	}
	clear(s.Root)
	s.Mnemonic, s.PassPhrase = "", ""
}

// keystorePayload is the portable form sealed under a backup password.
type keystorePayload struct {
	Version         int                    `json:"version"`
	Mode            contracts.CreationMode `json:"mode"`
	SingleAddress   bool                   `json:"singleAddress"`
	Cosigners       []string               `json:"cosigners,omitempty"`
	RequiredSigners int                    `json:"requiredSigners,omitempty"`
	Chains          []string               `json:"chains"`
	Secret          walletSecret           `json:"secret"`
}

func normalizeMnemonic(mnemonic string) (string, error) {
	normalized := strings.Join(strings.Fields(mnemonic), " ")
	if normalized == "" || !bip39.IsMnemonicValid(normalized) {
		return "", ErrInvalidMnemonic
	}
	return normalized, nil
}

func secretFromMnemonic(mnemonic, passPhrase string) (walletSecret, error) {
	normalized, err := normalizeMnemonic(mnemonic)
	if err != nil {
		return walletSecret{}, err
	}
	seed, err := bip39.NewSeedWithErrorChecking(normalized, passPhrase)
	if err != nil {
		return walletSecret{}, fmt.Errorf("%w: %v", ErrInvalidMnemonic, err)
	}
	return walletSecret{Mnemonic: normalized, PassPhrase: passPhrase, Root: seed}, nil
}

func secretFromPrivateKey(privateKey string) (walletSecret, error) {
	raw, err := hex.DecodeString(strings.TrimSpace(privateKey))
	if err != nil || (len(raw) != 32 && len(raw) != 64) {
		return walletSecret{}, errors.New("private key must be 32 or 64 hex-encoded bytes")
	}
	return walletSecret{Root: raw[:32], SingleKey: true}, nil
}

func secretFromSeed(seed string) (walletSecret, error) {
	raw, err := hex.DecodeString(strings.TrimSpace(seed))
	if err != nil || len(raw) < 16 || len(raw) > 64 {
		return walletSecret{}, errors.New("seed must be 16 to 64 hex-encoded bytes")
	}
	return walletSecret{Root: raw}, nil
}

func (s walletSecret) keyring() keyring {
	return keyring{root: s.Root, single: s.SingleKey}
}

func sealSecret(params securestore.Params, password string, secret walletSecret) ([]byte, error) {
	raw, err := json.Marshal(secret)
	if err != nil {
		return nil, err
	}
	defer clear(raw)
	return params.Seal(password, raw)
}

func openSecret(password string, sealed []byte) (walletSecret, error) {
	raw, err := securestore.Decrypt(password, sealed)
	if err != nil {
		return walletSecret{}, err
	}
	defer clear(raw)
	var secret walletSecret
	if err := json.Unmarshal(raw, &secret); err != nil {
		return walletSecret{}, fmt.Errorf("decode wallet secret: %w", err)
	}
	return secret, nil
}

// passwordGuard slows down guessing after a few free failures.
type passwordGuard struct {
	mu             sync.Mutex
	now            func() time.Time
	failedAttempts int
	lockedUntil    time.Time
}

func (g *passwordGuard) check() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.lockedUntil.IsZero() && g.now().Before(g.lockedUntil) {
		return ErrPasswordLocked
	}
	return nil
}

func (g *passwordGuard) failed() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.failedAttempts++
	if backoff := failedAttemptBackoff(g.failedAttempts); backoff > 0 {
		g.lockedUntil = g.now().Add(backoff)
	}
}

func (g *passwordGuard) reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.failedAttempts = 0
	g.lockedUntil = time.Time{}
}

func failedAttemptBackoff(attempt int) time.Duration {
	if attempt <= freeAttempts {
		return 0
	}
	// 1s, 2s, 4s... up to 32s.
	shift := min(attempt-freeAttempts-1, maxBackoffShift)
	return time.Second * time.Duration(1<<shift)
}
