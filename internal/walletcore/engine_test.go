package walletcore

import (
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/tyler-smith/go-bip39"

	"walletbridge/go-backend/internal/domains/contracts"
	"walletbridge/go-backend/internal/securestore"
	"walletbridge/go-backend/internal/testutil/fsperm"
)

const (
	mnemonicA = "abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon about"
	mnemonicB = "legal winner thank year wave sausage worth useful legal winner thank yellow"
	payPW     = "pay-password-1"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type sinkRecorder struct {
	mu     sync.Mutex
	events []contracts.Event
}

func (r *sinkRecorder) OnEvent(evt contracts.Event) {
	r.mu.Lock()
	r.events = append(r.events, evt)
	r.mu.Unlock()
}

func (r *sinkRecorder) kinds() []contracts.EventKind {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]contracts.EventKind, 0, len(r.events))
	for _, evt := range r.events {
		out = append(out, evt.Kind)
	}
	return out
}

func openEngine(t *testing.T, root string, clock *fakeClock) *Engine {
	t.Helper()
	opts := Options{
		KDF:    securestore.Params{TimeCost: 1, MemoryKB: 64, Threads: 1},
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	if clock != nil {
		opts.Now = clock.Now
	}
	e, err := New(contracts.ManagerConfig{RootPath: root, Network: "TestNet", NetworkConfig: "{}"}, opts)
	if err != nil {
		t.Fatalf("open engine: %v", err)
	}
	t.Cleanup(func() { _ = e.Dispose() })
	return e
}

func createMnemonicWallet(t *testing.T, e *Engine, id string) contracts.MasterWallet {
	t.Helper()
	mw, err := e.CreateMasterWallet(id, contracts.CreateParams{
		Mode:        contracts.ModeMnemonic,
		Mnemonic:    mnemonicA,
		PayPassword: payPW,
	})
	if err != nil {
		t.Fatalf("create wallet %s: %v", id, err)
	}
	return mw
}

func mustSub(t *testing.T, mw contracts.MasterWallet, chainID string) contracts.SubWallet {
	t.Helper()
	sw, err := mw.CreateSubWallet(chainID)
	if err != nil {
		t.Fatalf("create sub wallet %s: %v", chainID, err)
	}
	return sw
}

func TestCreateAndReloadKeepsAddresses(t *testing.T) {
	root := filepath.Join(t.TempDir(), "data")
	e := openEngine(t, root, nil)
	mw := createMnemonicWallet(t, e, "w1")
	sw := mustSub(t, mw, "ELA")
	before, err := sw.Addresses(0, 3, false)
	if err != nil {
		t.Fatalf("addresses: %v", err)
	}
	if len(before) != 3 || before[0] == before[1] {
		t.Fatalf("unexpected addresses %v", before)
	}
	for _, addr := range before {
		if !mw.IsAddressValid(addr) {
			t.Fatalf("derived address %s must validate", addr)
		}
	}
	fsperm.AssertPrivateDirPerm(t, root)
	fsperm.AssertPrivateDirPerm(t, filepath.Join(root, "w1"))
	fsperm.AssertPrivateFilePerm(t, filepath.Join(root, "w1", "wallet.json"))
	if err := e.Dispose(); err != nil {
		t.Fatalf("dispose: %v", err)
	}

	reopened := openEngine(t, root, nil)
	loaded, err := reopened.LoadedMasterWallets()
	if err != nil {
		t.Fatalf("loaded wallets: %v", err)
	}
	if len(loaded) != 1 || loaded[0].ID() != "w1" {
		t.Fatalf("expected w1 to be restored, got %d wallets", len(loaded))
	}
	subs := loaded[0].SubWallets()
	if len(subs) != 1 || subs[0].ChainID() != "ELA" {
		t.Fatalf("expected ELA sub wallet to be restored")
	}
	after, err := subs[0].Addresses(0, 3, false)
	if err != nil {
		t.Fatalf("addresses after reload: %v", err)
	}
	for i := range before {
		if before[i] != after[i] {
			t.Fatalf("address %d changed across reload: %s != %s", i, before[i], after[i])
		}
	}
}

func TestCreateRejectsDuplicatesAndBadIDs(t *testing.T) {
	e := openEngine(t, filepath.Join(t.TempDir(), "data"), nil)
	createMnemonicWallet(t, e, "w1")
	_, err := e.CreateMasterWallet("w1", contracts.CreateParams{Mode: contracts.ModeMnemonic, Mnemonic: mnemonicB, PayPassword: payPW})
	if !errors.Is(err, ErrWalletExists) {
		t.Fatalf("expected ErrWalletExists, got %v", err)
	}
	for _, id := range []string{"../escape", ".hidden", "a/b", ""} {
		_, err := e.CreateMasterWallet(id, contracts.CreateParams{Mode: contracts.ModeMnemonic, Mnemonic: mnemonicB, PayPassword: payPW})
		if !errors.Is(err, ErrBadWalletID) {
			t.Fatalf("id %q: expected ErrBadWalletID, got %v", id, err)
		}
	}
	_, err = e.CreateMasterWallet("w2", contracts.CreateParams{Mode: contracts.ModeMnemonic, Mnemonic: "not a mnemonic", PayPassword: payPW})
	if !errors.Is(err, ErrInvalidMnemonic) {
		t.Fatalf("expected ErrInvalidMnemonic, got %v", err)
	}
}

func TestGenerateMnemonic(t *testing.T) {
	e := openEngine(t, filepath.Join(t.TempDir(), "data"), nil)
	words, err := e.GenerateMnemonic("english", 24)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if len(strings.Fields(words)) != 24 || !bip39.IsMnemonicValid(words) {
		t.Fatalf("unexpected mnemonic %q", words)
	}
	if _, err := e.GenerateMnemonic("chinese", 12); !errors.Is(err, ErrUnsupportedLanguage) {
		t.Fatalf("expected ErrUnsupportedLanguage, got %v", err)
	}
	if _, err := e.GenerateMnemonic("english", 13); err == nil {
		t.Fatal("expected word count 13 to fail")
	}
}

func TestKeystoreRoundTrip(t *testing.T) {
	e := openEngine(t, filepath.Join(t.TempDir(), "data"), nil)
	mw := createMnemonicWallet(t, e, "w1")
	want, err := mustSub(t, mw, "IDChain").Addresses(0, 2, false)
	if err != nil {
		t.Fatalf("addresses: %v", err)
	}
	keystore, err := mw.ExportKeystore("backup-pw-1", payPW)
	if err != nil {
		t.Fatalf("export keystore: %v", err)
	}
	if !securestore.IsSealed([]byte(keystore)) {
		t.Fatal("keystore must be a sealed envelope")
	}
	if _, err := e.ImportMasterWallet("w2", contracts.ImportParams{Mode: contracts.ModeKeystore, Keystore: keystore, BackupPassword: "wrong", PayPassword: "new-pay-pw"}); !errors.Is(err, ErrBadKeystore) {
		t.Fatalf("expected ErrBadKeystore, got %v", err)
	}
	imported, err := e.ImportMasterWallet("w2", contracts.ImportParams{
		Mode:           contracts.ModeKeystore,
		Keystore:       keystore,
		BackupPassword: "backup-pw-1",
		PayPassword:    "new-pay-pw",
	})
	if err != nil {
		t.Fatalf("import keystore: %v", err)
	}
	subs := imported.SubWallets()
	if len(subs) != 1 || subs[0].ChainID() != "IDChain" {
		t.Fatal("keystore must carry the opened chains")
	}
	got, err := subs[0].Addresses(0, 2, false)
	if err != nil {
		t.Fatalf("addresses: %v", err)
	}
	if got[0] != want[0] || got[1] != want[1] {
		t.Fatalf("imported wallet derives different addresses")
	}
	if err := imported.VerifyPayPassword("new-pay-pw"); err != nil {
		t.Fatalf("imported wallet must use the new pay password: %v", err)
	}
	words, err := imported.ExportMnemonic("new-pay-pw")
	if err != nil || words != mnemonicA {
		t.Fatalf("mnemonic must survive the keystore, got %q err=%v", words, err)
	}
}

func TestPasswordGuardBacksOff(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	e := openEngine(t, filepath.Join(t.TempDir(), "data"), clock)
	mw := createMnemonicWallet(t, e, "w1")

	for i := range freeAttempts + 1 {
		if err := mw.VerifyPayPassword("wrong-password"); !errors.Is(err, ErrInvalidPassword) {
			t.Fatalf("attempt %d: expected ErrInvalidPassword, got %v", i+1, err)
		}
	}
	if err := mw.VerifyPayPassword(payPW); !errors.Is(err, ErrPasswordLocked) {
		t.Fatalf("expected lockout after repeated failures, got %v", err)
	}
	clock.Advance(2 * time.Second)
	if err := mw.VerifyPayPassword(payPW); err != nil {
		t.Fatalf("expected unlock after backoff, got %v", err)
	}
	if err := mw.VerifyPayPassword("wrong-password"); !errors.Is(err, ErrInvalidPassword) {
		t.Fatalf("success must reset the counter, got %v", err)
	}
}

func TestFailedAttemptBackoff(t *testing.T) {
	cases := map[int]time.Duration{
		1:  0,
		3:  0,
		4:  time.Second,
		5:  2 * time.Second,
		9:  32 * time.Second,
		50: 32 * time.Second,
	}
	for attempt, want := range cases {
		if got := failedAttemptBackoff(attempt); got != want {
			t.Fatalf("attempt %d: got %s want %s", attempt, got, want)
		}
	}
}

func TestChangeAndResetPassword(t *testing.T) {
	e := openEngine(t, filepath.Join(t.TempDir(), "data"), nil)
	mw := createMnemonicWallet(t, e, "w1")
	if err := mw.ChangePassword(payPW, "changed-pw-1"); err != nil {
		t.Fatalf("change password: %v", err)
	}
	if err := mw.VerifyPayPassword(payPW); !errors.Is(err, ErrInvalidPassword) {
		t.Fatalf("old password must stop working, got %v", err)
	}
	if err := mw.ResetPassword(mnemonicB, "", "reset-pw-1"); err == nil {
		t.Fatal("foreign mnemonic must not reset the password")
	}
	if err := mw.ResetPassword(mnemonicA, "", "reset-pw-1"); err != nil {
		t.Fatalf("reset password: %v", err)
	}
	if err := mw.VerifyPayPassword("reset-pw-1"); err != nil {
		t.Fatalf("reset password must be active: %v", err)
	}
	if err := mw.VerifyPassPhrase("", "reset-pw-1"); err != nil {
		t.Fatalf("empty pass phrase must verify: %v", err)
	}
}

func TestPrivateKeyWalletIsSingleAddress(t *testing.T) {
	e := openEngine(t, filepath.Join(t.TempDir(), "data"), nil)
	key := strings.Repeat("11", 32)
	mw, err := e.CreateMasterWallet("pk", contracts.CreateParams{Mode: contracts.ModePrivateKey, PrivateKey: key, PayPassword: payPW})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	addrs, err := mustSub(t, mw, "ELA").Addresses(0, 5, false)
	if err != nil {
		t.Fatalf("addresses: %v", err)
	}
	if len(addrs) != 1 {
		t.Fatalf("private key wallets expose one address, got %v", addrs)
	}
	if _, err := mw.ExportMnemonic(payPW); !errors.Is(err, ErrNoMnemonic) {
		t.Fatalf("expected ErrNoMnemonic, got %v", err)
	}
}

func TestDestroyMasterWalletRemovesDirectory(t *testing.T) {
	root := filepath.Join(t.TempDir(), "data")
	e := openEngine(t, root, nil)
	mw := createMnemonicWallet(t, e, "w1")
	sw := mustSub(t, mw, "ELA")
	if err := e.DestroyMasterWallet("w1"); err != nil {
		t.Fatalf("destroy: %v", err)
	}
	if _, err := os.Stat(filepath.Join(root, "w1")); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("wallet directory must be gone, got %v", err)
	}
	if _, err := sw.Addresses(0, 1, false); !errors.Is(err, ErrSubWalletClosed) {
		t.Fatalf("destroyed sub wallet must refuse calls, got %v", err)
	}
	if err := e.DestroyMasterWallet("w1"); !errors.Is(err, ErrUnknownWallet) {
		t.Fatalf("expected ErrUnknownWallet, got %v", err)
	}
}

func TestBackupWriterReplacesOnClose(t *testing.T) {
	e := openEngine(t, filepath.Join(t.TempDir(), "data"), nil)
	createMnemonicWallet(t, e, "w1")
	w, err := e.OpenBackupWriter("w1", "backup.bin")
	if err != nil {
		t.Fatalf("open writer: %v", err)
	}
	if _, err := w.Write([]byte("chunk-1|chunk-2")); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := e.OpenBackupReader("w1", "backup.bin"); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("backup must not be visible before close, got %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("second close must be a no-op: %v", err)
	}
	r, err := e.OpenBackupReader("w1", "backup.bin")
	if err != nil {
		t.Fatalf("open reader: %v", err)
	}
	defer r.Close()
	data, err := io.ReadAll(r)
	if err != nil || string(data) != "chunk-1|chunk-2" {
		t.Fatalf("unexpected backup content %q err=%v", data, err)
	}
	if _, err := e.OpenBackupWriter("w1", "../escape"); !errors.Is(err, ErrBadBackupName) {
		t.Fatalf("expected ErrBadBackupName, got %v", err)
	}
}

func TestDisposedEngineRefusesWork(t *testing.T) {
	e := openEngine(t, filepath.Join(t.TempDir(), "data"), nil)
	if err := e.Dispose(); err != nil {
		t.Fatalf("dispose: %v", err)
	}
	if err := e.Dispose(); err != nil {
		t.Fatalf("second dispose must be a no-op: %v", err)
	}
	if _, err := e.GenerateMnemonic("english", 12); !errors.Is(err, ErrDisposed) {
		t.Fatalf("expected ErrDisposed, got %v", err)
	}
}

func TestNewRejectsMalformedNetworkConfig(t *testing.T) {
	_, err := New(contracts.ManagerConfig{RootPath: t.TempDir(), NetworkConfig: "[1,2"}, Options{})
	if err == nil {
		t.Fatal("expected malformed network config to fail")
	}
	if _, err := New(contracts.ManagerConfig{}, Options{}); err == nil {
		t.Fatal("expected empty root to fail")
	}
}
