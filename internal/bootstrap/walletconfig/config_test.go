package walletconfig

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "walletd.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestMergeKeepsDefaultsForUnsetFields(t *testing.T) {
	dst := Default()
	if err := Merge(&dst, FileConfig{Network: "TestNet", RPC: FileRPC{StreamMaxGlobal: 8}}); err != nil {
		t.Fatalf("merge failed: %v", err)
	}
	if dst.Network != "TestNet" {
		t.Fatalf("expected network=TestNet, got %q", dst.Network)
	}
	if dst.RPC.StreamMaxGlobal != 8 {
		t.Fatalf("expected streamMaxGlobal=8, got %d", dst.RPC.StreamMaxGlobal)
	}
	if dst.RPC.Listen != Default().RPC.Listen {
		t.Fatalf("unset listen must keep default, got %q", dst.RPC.Listen)
	}
	if dst.KDF != Default().KDF {
		t.Fatalf("unset kdf must keep default, got %+v", dst.KDF)
	}
}

func TestLoadFromPathReadsFileAndNetworkConfig(t *testing.T) {
	dir := t.TempDir()
	netPath := filepath.Join(dir, "net.json")
	if err := os.WriteFile(netPath, []byte(`{"magic":7}`), 0o600); err != nil {
		t.Fatalf("write network config: %v", err)
	}
	path := writeConfig(t, `
dataRoot: /var/lib/walletd
network: RegTest
networkConfigPath: `+netPath+`
logLevel: debug
rpc:
  listen: 127.0.0.1:9000
  token: file-token
  rateLimitRPS: 5
listeners:
  queueSize: 16
kdf:
  timeCost: 1
  memoryKB: 64
`)
	cfg, err := LoadFromPath(path)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.DataRoot != "/var/lib/walletd" || cfg.Network != "RegTest" || cfg.LogLevel != "debug" {
		t.Fatalf("unexpected top-level config %+v", cfg)
	}
	if cfg.NetworkConfig != `{"magic":7}` {
		t.Fatalf("network config file not read, got %q", cfg.NetworkConfig)
	}
	if cfg.RPC.Listen != "127.0.0.1:9000" || cfg.RPC.Token != "file-token" || cfg.RPC.RateLimitRPS != 5 {
		t.Fatalf("unexpected rpc config %+v", cfg.RPC)
	}
	if cfg.RPC.RateLimitBurst != Default().RPC.RateLimitBurst {
		t.Fatalf("burst must keep its default, got %d", cfg.RPC.RateLimitBurst)
	}
	if cfg.Listeners.QueueSize != 16 || cfg.KDF.TimeCost != 1 || cfg.KDF.MemoryKB != 64 {
		t.Fatalf("unexpected listener/kdf config %+v %+v", cfg.Listeners, cfg.KDF)
	}
}

func TestEnvOverridesWinOverFile(t *testing.T) {
	path := writeConfig(t, "network: TestNet\nrpc:\n  token: file-token\n")
	t.Setenv("WALLETD_NETWORK", "PrvNet")
	t.Setenv("WALLETD_RPC_TOKEN", "env-token")
	t.Setenv("WALLETD_LISTENER_INBOX_SIZE", "32")

	cfg, err := LoadFromPath(path)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.Network != "PrvNet" || cfg.RPC.Token != "env-token" || cfg.Listeners.InboxSize != 32 {
		t.Fatalf("env overrides not applied: %+v", cfg)
	}
}

func TestEnvOverridesRejectMalformedNumbers(t *testing.T) {
	t.Setenv("WALLETD_RPC_RATE_LIMIT_BURST", "many")
	cfg := Default()
	if err := ApplyEnvOverrides(&cfg); err == nil {
		t.Fatal("expected malformed env value to fail")
	}
}

func TestLoadFromPathFailures(t *testing.T) {
	if _, err := LoadFromPath(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("explicit missing path must fail")
	}
	if _, err := LoadFromPath(writeConfig(t, "rpc: [unclosed")); err == nil {
		t.Fatal("malformed yaml must fail")
	}
	if _, err := LoadFromPath(writeConfig(t, "kdf:\n  memoryKB: 4\n")); err == nil {
		t.Fatal("tiny kdf memory must fail validation")
	}
}
