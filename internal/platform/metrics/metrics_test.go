package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCommandHandledCountsByActionAndCode(t *testing.T) {
	m := New()
	m.CommandHandled("createSubWallet", 0, 2*time.Millisecond)
	m.CommandHandled("createSubWallet", 0, time.Millisecond)
	m.CommandHandled("createSubWallet", 10002, time.Millisecond)
	m.CommandHandled("unknown", 10013, 0)

	if got := testutil.ToFloat64(m.commands.WithLabelValues("createSubWallet", "0")); got != 2 {
		t.Fatalf("expected 2 successes, got %v", got)
	}
	if got := testutil.ToFloat64(m.commands.WithLabelValues("createSubWallet", "10002")); got != 1 {
		t.Fatalf("expected 1 failure, got %v", got)
	}
	if got := testutil.CollectAndCount(m.latency); got != 2 {
		t.Fatalf("expected latency series for 2 actions, got %d", got)
	}
}

func TestObserverGaugesAndEvents(t *testing.T) {
	m := New()
	m.ListenersActive(3)
	m.BackupHandlesOpen(1)
	m.EventDelivered()
	m.EventDelivered()
	m.EventDropped()
	m.InboxOverflow()
	m.StreamOpened()
	m.StreamOpened()
	m.StreamClosed()

	if got := testutil.ToFloat64(m.listeners); got != 3 {
		t.Fatalf("listeners gauge = %v", got)
	}
	if got := testutil.ToFloat64(m.backups); got != 1 {
		t.Fatalf("backups gauge = %v", got)
	}
	if got := testutil.ToFloat64(m.events.WithLabelValues(outcomeDelivered)); got != 2 {
		t.Fatalf("delivered = %v", got)
	}
	if got := testutil.ToFloat64(m.events.WithLabelValues(outcomeInboxOverflow)); got != 1 {
		t.Fatalf("inbox overflow = %v", got)
	}
	if got := testutil.ToFloat64(m.streams); got != 1 {
		t.Fatalf("streams gauge = %v", got)
	}
}

func TestHandlerExposesRegistry(t *testing.T) {
	m := New()
	m.RequestRejected("rate_limited")
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `walletd_rpc_rejected_total{reason="rate_limited"} 1`) {
		t.Fatalf("rejection counter missing from exposition:\n%s", rec.Body.String())
	}
}
