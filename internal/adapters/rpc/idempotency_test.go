package rpc

import (
	"encoding/json"
	"fmt"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestReplayCacheExpiresAndEvicts(t *testing.T) {
	c := newReplayCache()
	now := time.Unix(1_700_000_000, 0)
	resp := rpcResponse{JSONRPC: "2.0", Result: json.RawMessage(`{"success":1}`)}
	c.store("a", "h1", resp, now)

	if got, hit, _ := c.lookup("a", "h1", now.Add(time.Minute)); !hit || string(got.Result) != `{"success":1}` {
		t.Fatal("fresh entry must replay")
	}
	if _, _, conflict := c.lookup("a", "h2", now); !conflict {
		t.Fatal("same key with another request must conflict")
	}
	if _, hit, _ := c.lookup("a", "h1", now.Add(replayTTL+time.Second)); hit {
		t.Fatal("expired entry must not replay")
	}

	for i := 0; i <= replayCapacity; i++ {
		c.store(fmt.Sprintf("k%d", i), "h", resp, now)
	}
	if _, hit, _ := c.lookup("k0", "h", now); hit {
		t.Fatal("oldest entry must be evicted past capacity")
	}
	if _, hit, _ := c.lookup(fmt.Sprintf("k%d", replayCapacity), "h", now); !hit {
		t.Fatal("newest entry must be kept")
	}
}

func TestRequestFingerprintCoversVersion(t *testing.T) {
	v := 1
	base := rpcRequest{Method: "publishTransaction", Params: json.RawMessage(`["w1","ELA","{}"]`)}
	versioned := base
	versioned.APIVersion = &v
	if requestFingerprint(base) == requestFingerprint(versioned) {
		t.Fatal("api version must be part of the fingerprint")
	}
	other := base
	other.Method = "signTransaction"
	if requestFingerprint(base) == requestFingerprint(other) {
		t.Fatal("method must be part of the fingerprint")
	}
}

func TestClientKeyHidesToken(t *testing.T) {
	r := httptest.NewRequest("POST", "/rpc", nil)
	r.RemoteAddr = "127.0.0.1:5555"
	if got := clientKey(r, ""); got != "ip:127.0.0.1" {
		t.Fatalf("unexpected anonymous key %q", got)
	}
	got := clientKey(r, "s3cret")
	if !strings.HasPrefix(got, "token:") || strings.Contains(got, "s3cret") {
		t.Fatalf("token key must not embed the token, got %q", got)
	}
	if replayKey("  ", got) != "" {
		t.Fatal("blank idempotency header disables replay")
	}
}
