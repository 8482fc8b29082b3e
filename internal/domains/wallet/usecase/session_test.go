package usecase

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"walletbridge/go-backend/internal/domains/contracts"
	"walletbridge/go-backend/internal/domains/rpckit"
	"walletbridge/go-backend/internal/domains/wallet/domain"
	"walletbridge/go-backend/internal/testutil/fakeengine"
)

type recordingRef struct {
	key string
	mu  sync.Mutex
	got []rpckit.Notification
}

func (r *recordingRef) Key() string { return r.key }

func (r *recordingRef) Deliver(n rpckit.Notification) error {
	r.mu.Lock()
	r.got = append(r.got, n)
	r.mu.Unlock()
	return nil
}

func (r *recordingRef) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.got)
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func newSession(t *testing.T) (*Session, *fakeengine.Engine) {
	t.Helper()
	engine := fakeengine.New()
	s := NewSession(Options{Factory: engine.Factory(), Defaults: contracts.ManagerConfig{RootPath: t.TempDir()}})
	t.Cleanup(func() { _ = s.Close(context.Background()) })
	return s, engine
}

func initSession(t *testing.T) (*Session, *fakeengine.Engine) {
	t.Helper()
	s, engine := newSession(t)
	if _, err := s.Initialize(context.Background(), InitRequest{Network: "MainNet", NetworkConfig: "{}", LogLevel: "warning"}); err != nil {
		t.Fatalf("init failed: %v", err)
	}
	return s, engine
}

func TestSessionInitializeTwice(t *testing.T) {
	s, _ := initSession(t)
	_, err := s.Initialize(context.Background(), InitRequest{})
	if !errors.Is(err, contracts.ErrAlreadyInitialized) {
		t.Fatalf("expected ErrAlreadyInitialized, got %v", err)
	}
}

func TestSessionInitializeUsesStoredNetworkAndLevel(t *testing.T) {
	s, engine := newSession(t)
	ctx := context.Background()
	if err := s.SetNetwork(ctx, "TestNet", `{"magic":1}`); err != nil {
		t.Fatalf("set network failed: %v", err)
	}
	if err := s.SetLogLevel(ctx, "debug"); err != nil {
		t.Fatalf("set log level failed: %v", err)
	}
	res, err := s.Initialize(ctx, InitRequest{})
	if err != nil {
		t.Fatalf("init failed: %v", err)
	}
	if res.Network != "TestNet" || engine.Config.NetworkConfig != `{"magic":1}` || engine.Config.LogLevel != "debug" {
		t.Fatalf("stored settings not applied: %+v %+v", res, engine.Config)
	}
	if s.level.Level() != slog.LevelDebug {
		t.Fatalf("unexpected level %v", s.level.Level())
	}
	if err := s.SetLogLevel(ctx, "error"); err != nil {
		t.Fatalf("set log level failed: %v", err)
	}
	if engine.CurrentLogLevel() != "error" {
		t.Fatalf("live engine must receive level change, got %q", engine.CurrentLogLevel())
	}
}

func TestSessionInitializeRejectsBadConfig(t *testing.T) {
	s, _ := newSession(t)
	if _, err := s.Initialize(context.Background(), InitRequest{Network: "Moon"}); !errors.Is(err, contracts.ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig, got %v", err)
	}
	if _, err := s.Version(context.Background()); !errors.Is(err, contracts.ErrNotInitialized) {
		t.Fatalf("expected ErrNotInitialized, got %v", err)
	}
}

func TestSessionOperationsBeforeInit(t *testing.T) {
	s, _ := newSession(t)
	ctx := context.Background()
	checks := map[string]error{}
	_, checks["create"] = s.CreateMasterWallet(ctx, "m1", contracts.CreateParams{})
	_, checks["sub"] = s.CreateSubWallet(ctx, "m1", "ELA")
	_, checks["writer"] = s.OpenBackupWriter(ctx, "m1", "a.bak")
	_, checks["step"] = s.StepBackup(ctx, "bak_x", domain.StepRequest{})
	_, checks["destroy"] = s.Shutdown(ctx)
	for name, err := range checks {
		if !errors.Is(err, contracts.ErrNotInitialized) {
			t.Fatalf("%s: expected ErrNotInitialized, got %v", name, err)
		}
	}
}

func TestSessionEngineFaultsAreWrapped(t *testing.T) {
	s, engine := initSession(t)
	ctx := context.Background()
	if _, err := s.CreateMasterWallet(ctx, "m1", contracts.CreateParams{}); err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if _, err := s.CreateSubWallet(ctx, "m1", "ELA"); err != nil {
		t.Fatalf("create sub failed: %v", err)
	}
	engine.FailOn("addresses", errors.New("engine offline"))
	_, err := s.WithSubWallet(ctx, "getAddresses", "m1", "ELA", func(_ *domain.SubWalletHandle, sw contracts.SubWallet) (any, error) {
		return sw.Addresses(0, 1, false)
	})
	var fault *contracts.EngineFault
	if !errors.As(err, &fault) || fault.Text != "engine offline" {
		t.Fatalf("expected engine fault, got %v", err)
	}

	engine.PanicOn("publishTransaction", "segfault in engine")
	_, err = s.WithSubWallet(ctx, "publishTransaction", "m1", "ELA", func(_ *domain.SubWalletHandle, sw contracts.SubWallet) (any, error) {
		return sw.PublishTransaction(nil)
	})
	if !errors.As(err, &fault) || fault.Text != "segfault in engine" {
		t.Fatalf("expected recovered panic as engine fault, got %v", err)
	}
	if _, err := s.Version(ctx); err != nil {
		t.Fatalf("session must stay usable after a panic: %v", err)
	}
}

func TestSessionDestroyMasterCascadesToListenersAndBackups(t *testing.T) {
	s, engine := initSession(t)
	ctx := context.Background()
	_, _ = s.CreateMasterWallet(ctx, "m1", contracts.CreateParams{})
	_, _ = s.CreateSubWallet(ctx, "m1", "ID")
	subID, err := s.Subscribe(ctx, "m1", "ID", &recordingRef{key: "chan-1"})
	if err != nil {
		t.Fatalf("subscribe failed: %v", err)
	}
	writer, err := s.OpenBackupWriter(ctx, "m1", "a.bak")
	if err != nil {
		t.Fatalf("open writer failed: %v", err)
	}
	engineSub := engine.Master("m1").Sub("ID")

	report, err := s.DestroyMasterWallet(ctx, "m1")
	if err != nil {
		t.Fatalf("destroy failed: %v", err)
	}
	if len(report.SubWallets) != 1 || report.SubWallets[0] != "m1:ID" {
		t.Fatalf("unexpected removed sub wallets %v", report.SubWallets)
	}
	if len(report.Subscriptions) != 1 || report.Subscriptions[0] != subID {
		t.Fatalf("unexpected removed subscriptions %v", report.Subscriptions)
	}
	if len(report.BackupHandles) != 1 || report.BackupHandles[0] != writer.ID {
		t.Fatalf("unexpected closed backups %v", report.BackupHandles)
	}
	if engineSub.HasCallback() {
		t.Fatal("engine callback must be released on destroy")
	}
	if _, err := s.CreateSubWallet(ctx, "m1", "ID"); !errors.Is(err, contracts.ErrMasterWalletNotFound) {
		t.Fatalf("expected ErrMasterWalletNotFound, got %v", err)
	}
	if err := s.Unsubscribe(ctx, subID); !errors.Is(err, contracts.ErrSubscriptionNotFound) {
		t.Fatalf("expected ErrSubscriptionNotFound, got %v", err)
	}
	if _, err := s.StepBackup(ctx, writer.ID, domain.StepRequest{Chunk: []byte("x")}); !errors.Is(err, contracts.ErrBackupClosed) {
		t.Fatalf("expected ErrBackupClosed, got %v", err)
	}
}

func TestSessionRoutesEventsToRemainingSubscription(t *testing.T) {
	s, engine := initSession(t)
	ctx := context.Background()
	_, _ = s.CreateMasterWallet(ctx, "m1", contracts.CreateParams{})
	_, _ = s.CreateSubWallet(ctx, "m1", "ELA")
	refA, refB := &recordingRef{key: "a"}, &recordingRef{key: "b"}
	idA, err := s.Subscribe(ctx, "m1", "ELA", refA)
	if err != nil {
		t.Fatalf("subscribe a failed: %v", err)
	}
	if _, err := s.Subscribe(ctx, "m1", "ELA", refB); err != nil {
		t.Fatalf("subscribe b failed: %v", err)
	}
	if _, err := s.Subscribe(ctx, "m1", "ELA", &recordingRef{key: "a"}); !errors.Is(err, contracts.ErrAlreadySubscribed) {
		t.Fatalf("expected ErrAlreadySubscribed, got %v", err)
	}

	engineSub := engine.Master("m1").Sub("ELA")
	engineSub.Emit(contracts.Event{Kind: contracts.EventBalanceChanged})
	waitFor(t, "both deliveries", func() bool { return refA.count() == 1 && refB.count() == 1 })

	if err := s.Unsubscribe(ctx, idA); err != nil {
		t.Fatalf("unsubscribe failed: %v", err)
	}
	if !engineSub.HasCallback() {
		t.Fatal("callback must stay while a subscription remains")
	}
	engineSub.Emit(contracts.Event{Kind: contracts.EventSyncProgress})
	waitFor(t, "second delivery", func() bool { return refB.count() == 2 })
	time.Sleep(20 * time.Millisecond)
	if refA.count() != 1 {
		t.Fatalf("unsubscribed listener must not receive events, got %d", refA.count())
	}
}

func TestSessionCallbackDuringCommandDoesNotDeadlock(t *testing.T) {
	s, engine := initSession(t)
	ctx := context.Background()
	_, _ = s.CreateMasterWallet(ctx, "m1", contracts.CreateParams{})
	_, _ = s.CreateSubWallet(ctx, "m1", "ELA")
	ref := &recordingRef{key: "a"}
	if _, err := s.Subscribe(ctx, "m1", "ELA", ref); err != nil {
		t.Fatalf("subscribe failed: %v", err)
	}
	engineSub := engine.Master("m1").Sub("ELA")
	_, err := s.WithSubWallet(ctx, "syncStart", "m1", "ELA", func(_ *domain.SubWalletHandle, sw contracts.SubWallet) (any, error) {
		engineSub.Emit(contracts.Event{Kind: contracts.EventBlockSyncStarted})
		return nil, sw.SyncStart()
	})
	if err != nil {
		t.Fatalf("sync start failed: %v", err)
	}
	waitFor(t, "delivery after command", func() bool { return ref.count() == 1 })
}

func TestSessionShutdownClosesEverything(t *testing.T) {
	s, engine := initSession(t)
	ctx := context.Background()
	_, _ = s.CreateMasterWallet(ctx, "m1", contracts.CreateParams{})
	_, _ = s.CreateSubWallet(ctx, "m1", "ELA")
	_, _ = s.Subscribe(ctx, "m1", "ELA", &recordingRef{key: "a"})
	writer, _ := s.OpenBackupWriter(ctx, "m1", "a.bak")

	report, err := s.Shutdown(ctx)
	if err != nil {
		t.Fatalf("shutdown failed: %v", err)
	}
	if len(report.Subscriptions) != 1 || len(report.BackupHandles) != 1 {
		t.Fatalf("unexpected shutdown report %+v", report)
	}
	if !engine.Disposed {
		t.Fatal("engine must be disposed")
	}
	if _, err := s.StepBackup(ctx, writer.ID, domain.StepRequest{}); !errors.Is(err, contracts.ErrBackupClosed) {
		t.Fatalf("expected ErrBackupClosed after shutdown, got %v", err)
	}
	if err := s.CloseBackup(ctx, writer.ID); err != nil {
		t.Fatalf("close after shutdown must succeed, got %v", err)
	}
	if _, err := s.MasterWalletIDs(ctx); !errors.Is(err, contracts.ErrNotInitialized) {
		t.Fatalf("expected ErrNotInitialized, got %v", err)
	}
}

func TestSessionAcquireHonoursContext(t *testing.T) {
	s, _ := initSession(t)
	release := make(chan struct{})
	held := make(chan struct{})
	go func() {
		_ = s.exclusive(context.Background(), "hold", func() error {
			close(held)
			<-release
			return nil
		})
	}()
	<-held
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := s.Version(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
	close(release)
}

func TestSessionCloseWithExpiredContextStopsDelivery(t *testing.T) {
	s, _ := initSession(t)
	ctx := context.Background()
	if _, err := s.CreateMasterWallet(ctx, "m1", contracts.CreateParams{}); err != nil {
		t.Fatalf("create master failed: %v", err)
	}
	if _, err := s.CreateSubWallet(ctx, "m1", "ELA"); err != nil {
		t.Fatalf("create sub wallet failed: %v", err)
	}
	if _, err := s.Subscribe(ctx, "m1", "ELA", &recordingRef{key: "a"}); err != nil {
		t.Fatalf("subscribe failed: %v", err)
	}

	release := make(chan struct{})
	held := make(chan struct{})
	go func() {
		_ = s.exclusive(context.Background(), "hold", func() error {
			close(held)
			<-release
			return nil
		})
	}()
	<-held
	defer close(release)

	cancelled, cancel := context.WithCancel(context.Background())
	cancel()
	done := make(chan error, 1)
	go func() { done <- s.Close(cancelled) }()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("expected context.Canceled, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("close blocked with an expired context")
	}
}

func TestSessionReleaseDeliveryDropsBoundListeners(t *testing.T) {
	s, engine := initSession(t)
	ctx := context.Background()
	if _, err := s.CreateMasterWallet(ctx, "m1", contracts.CreateParams{}); err != nil {
		t.Fatalf("create master failed: %v", err)
	}
	for _, chain := range []string{"ELA", "ID"} {
		if _, err := s.CreateSubWallet(ctx, "m1", chain); err != nil {
			t.Fatalf("create %s failed: %v", chain, err)
		}
	}
	gone := &recordingRef{key: "gone"}
	kept := &recordingRef{key: "kept"}
	for _, sub := range []struct {
		chain string
		ref   *recordingRef
	}{{"ELA", gone}, {"ID", gone}, {"ELA", kept}} {
		if _, err := s.Subscribe(ctx, "m1", sub.chain, sub.ref); err != nil {
			t.Fatalf("subscribe %s/%s failed: %v", sub.chain, sub.ref.key, err)
		}
	}

	ids, err := s.ReleaseDelivery(ctx, "gone")
	if err != nil {
		t.Fatalf("release failed: %v", err)
	}
	if len(ids) != 2 {
		t.Fatalf("expected 2 released subscriptions, got %v", ids)
	}
	subs, _ := s.Subscriptions(ctx)
	if len(subs) != 1 || subs[0].DeliveryKey != "kept" {
		t.Fatalf("unexpected remaining subscriptions %+v", subs)
	}
	if engine.Master("m1").Sub("ID").HasCallback() {
		t.Fatal("callback of a sub wallet without listeners must be detached")
	}
	if !engine.Master("m1").Sub("ELA").HasCallback() {
		t.Fatal("callback of a sub wallet with listeners must stay")
	}

	engine.Master("m1").Sub("ELA").Emit(contracts.Event{Kind: contracts.EventBalanceChanged})
	waitFor(t, "event on the kept listener", func() bool { return kept.count() == 1 })
	if gone.count() != 0 {
		t.Fatalf("released listener still received %d events", gone.count())
	}
	if ids, _ := s.ReleaseDelivery(ctx, "gone"); len(ids) != 0 {
		t.Fatalf("second release must be empty, got %v", ids)
	}
}
