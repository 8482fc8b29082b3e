package walletd

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"walletbridge/go-backend/internal/bootstrap/walletconfig"
)

const (
	testMnemonic = "abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon about"
	testPayPW    = "pay-password-1"
)

type envelope struct {
	Success json.RawMessage `json:"success"`
	Error   *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

type client struct {
	t       *testing.T
	url     string
	http    *http.Client
	channel string
}

func (c *client) call(method string, params ...any) envelope {
	c.t.Helper()
	if params == nil {
		params = []any{}
	}
	body, _ := json.Marshal(map[string]any{"jsonrpc": "2.0", "id": 1, "method": method, "params": params})
	req, _ := http.NewRequest(http.MethodPost, c.url+"/rpc", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Wallet-RPC-Token", "t0ken")
	if c.channel != "" {
		req.Header.Set("X-Wallet-Channel", c.channel)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		c.t.Fatalf("%s: %v", method, err)
	}
	defer resp.Body.Close()
	var out struct {
		Result envelope        `json:"result"`
		Error  json.RawMessage `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		c.t.Fatalf("%s: decode: %v", method, err)
	}
	if len(out.Error) > 0 {
		c.t.Fatalf("%s: transport error %s", method, out.Error)
	}
	return out.Result
}

func (c *client) ok(method string, params ...any) json.RawMessage {
	c.t.Helper()
	res := c.call(method, params...)
	if res.Error != nil {
		c.t.Fatalf("%s: %d %s", method, res.Error.Code, res.Error.Message)
	}
	return res.Success
}

func buildTestDaemon(t *testing.T) (string, *httptest.Server) {
	t.Helper()
	cfg := walletconfig.Default()
	cfg.DataRoot = filepath.Join(t.TempDir(), "wallets")
	cfg.RPC.Token = "t0ken"
	cfg.KDF = walletconfig.KDFConfig{TimeCost: 1, MemoryKB: 64}
	d, err := Build(Options{Config: cfg, Version: "test", LogOutput: io.Discard})
	if err != nil {
		t.Fatalf("build daemon: %v", err)
	}
	ts := httptest.NewServer(d.Server.Handler())
	t.Cleanup(func() {
		ts.Close()
		_ = d.Session.Close(context.Background())
	})
	return cfg.DataRoot, ts
}

func TestBuildRejectsInvalidConfig(t *testing.T) {
	cfg := walletconfig.Default()
	cfg.DataRoot = ""
	if _, err := Build(Options{Config: cfg, LogOutput: io.Discard}); err == nil {
		t.Fatal("missing data root must fail")
	}
	cfg = walletconfig.Default()
	cfg.LogLevel = "loud"
	if _, err := Build(Options{Config: cfg, LogOutput: io.Discard}); err == nil {
		t.Fatal("unknown log level must fail")
	}
}

func TestDaemonWalletLifecycleOverHTTP(t *testing.T) {
	root, ts := buildTestDaemon(t)
	c := &client{t: t, url: ts.URL, http: ts.Client()}

	if res := c.call("createMasterWallet", "w1", testMnemonic, "", testPayPW, false); res.Error == nil {
		t.Fatal("commands before init must fail")
	}
	c.ok("init", root)
	c.ok("createMasterWallet", "w1", testMnemonic, "", testPayPW, false)
	c.ok("createSubWallet", "w1", "ELA")

	var ids []string
	if err := json.Unmarshal(c.ok("getAllMasterWallets"), &ids); err != nil || len(ids) != 1 || ids[0] != "w1" {
		t.Fatalf("unexpected wallet list %v err=%v", ids, err)
	}
	var addrs []string
	if err := json.Unmarshal(c.ok("getAddresses", "w1", "ELA", 0, 2, false), &addrs); err != nil || len(addrs) != 2 {
		t.Fatalf("unexpected addresses %v err=%v", addrs, err)
	}

	inputs := []map[string]any{{"txHash": strings.Repeat("ab", 32), "index": 0, "address": addrs[0], "amount": "1000"}}
	outputs := []map[string]any{{"address": addrs[1], "amount": "400"}}
	inJSON, _ := json.Marshal(inputs)
	outJSON, _ := json.Marshal(outputs)
	tx := c.ok("createTransaction", "w1", "ELA", string(inJSON), string(outJSON), "10", "memo")
	if res := c.call("signTransaction", "w1", "ELA", string(tx), "wrong-password"); res.Error == nil {
		t.Fatal("signing with a wrong pay password must fail")
	}
	signed := c.ok("signTransaction", "w1", "ELA", string(tx), testPayPW)
	var info []map[string]any
	if err := json.Unmarshal(c.ok("getTransactionSignedInfo", "w1", "ELA", string(signed)), &info); err != nil || len(info) == 0 {
		t.Fatalf("unexpected signed info %v err=%v", info, err)
	}

	c.ok("destroyWallet", "w1")
	if res := c.call("getAddresses", "w1", "ELA", 0, 1, false); res.Error == nil {
		t.Fatal("destroyed wallet must be gone")
	}
}

func TestDaemonDeliversListenerEventsOverStream(t *testing.T) {
	root, ts := buildTestDaemon(t)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/rpc/stream", nil)
	req.Header.Set("Authorization", "Bearer t0ken")
	resp, err := ts.Client().Do(req)
	if err != nil {
		t.Fatalf("open stream: %v", err)
	}
	defer resp.Body.Close()
	lines := bufio.NewScanner(resp.Body)
	nextData := func() []byte {
		for lines.Scan() {
			if data, ok := strings.CutPrefix(lines.Text(), "data: "); ok {
				return []byte(data)
			}
		}
		t.Fatalf("stream ended: %v", lines.Err())
		return nil
	}
	var hello struct {
		Channel string `json:"channel"`
	}
	if err := json.Unmarshal(nextData(), &hello); err != nil || hello.Channel == "" {
		t.Fatalf("expected channel announcement: %v", err)
	}

	c := &client{t: t, url: ts.URL, http: ts.Client(), channel: hello.Channel}
	c.ok("init", root)
	c.ok("createMasterWallet", "w1", testMnemonic, "", testPayPW, false)
	c.ok("createSubWallet", "w1", "ELA")
	var sub struct {
		SubscriptionID string `json:"subscriptionID"`
	}
	if err := json.Unmarshal(c.ok("registerWalletListener", "w1", "ELA"), &sub); err != nil || sub.SubscriptionID == "" {
		t.Fatalf("unexpected subscription %+v err=%v", sub, err)
	}
	c.ok("syncStart", "w1", "ELA")

	seen := map[string]bool{}
	for !seen["syncProgress"] {
		var event struct {
			Params struct {
				Notification struct {
					SubscriptionID string `json:"subscriptionID"`
					Result         struct {
						Success struct {
							Kind string `json:"kind"`
						} `json:"success"`
					} `json:"result"`
				} `json:"notification"`
			} `json:"params"`
		}
		if err := json.Unmarshal(nextData(), &event); err != nil {
			t.Fatalf("decode event: %v", err)
		}
		if event.Params.Notification.SubscriptionID != sub.SubscriptionID {
			t.Fatalf("event for unexpected subscription %+v", event)
		}
		seen[event.Params.Notification.Result.Success.Kind] = true
	}
	if !seen["blockSyncStarted"] {
		t.Fatalf("sync start must be reported before progress, saw %v", seen)
	}

	metricsReq, _ := http.NewRequest(http.MethodGet, ts.URL+"/metrics", nil)
	metricsReq.Header.Set("X-Wallet-RPC-Token", "t0ken")
	mresp, err := ts.Client().Do(metricsReq)
	if err != nil {
		t.Fatalf("metrics: %v", err)
	}
	defer mresp.Body.Close()
	body, _ := io.ReadAll(mresp.Body)
	for _, name := range []string{"walletd_commands_total", "walletd_listeners_active"} {
		if !strings.Contains(string(body), name) {
			t.Fatalf("metrics output lacks %s", name)
		}
	}
}
