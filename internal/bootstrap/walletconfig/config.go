package walletconfig

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

const envPrefix = "WALLETD"

type Config struct {
	DataRoot      string
	Network       string
	NetworkConfig string
	LogLevel      string
	RPC           RPCConfig
	Listeners     ListenerConfig
	KDF           KDFConfig
}

type RPCConfig struct {
	Listen             string
	Token              string
	RateLimitRPS       float64
	RateLimitBurst     int
	StreamMaxGlobal    int
	StreamMaxPerClient int
}

type ListenerConfig struct {
	QueueSize int
	InboxSize int
}

// KDFConfig tunes the argon2id cost of wallet secrets at rest.
type KDFConfig struct {
	TimeCost uint32
	MemoryKB uint32
}

// FileConfig mirrors the yaml layout; zero values mean "not set".
type FileConfig struct {
	DataRoot          string        `yaml:"dataRoot"`
	Network           string        `yaml:"network"`
	NetworkConfig     string        `yaml:"networkConfig"`
	NetworkConfigPath string        `yaml:"networkConfigPath"`
	LogLevel          string        `yaml:"logLevel"`
	RPC               FileRPC       `yaml:"rpc"`
	Listeners         FileListeners `yaml:"listeners"`
	KDF               FileKDF       `yaml:"kdf"`
}

type FileRPC struct {
	Listen             string  `yaml:"listen"`
	Token              string  `yaml:"token"`
	RateLimitRPS       float64 `yaml:"rateLimitRPS"`
	RateLimitBurst     int     `yaml:"rateLimitBurst"`
	StreamMaxGlobal    int     `yaml:"streamMaxGlobal"`
	StreamMaxPerClient int     `yaml:"streamMaxPerClient"`
}

type FileListeners struct {
	QueueSize int `yaml:"queueSize"`
	InboxSize int `yaml:"inboxSize"`
}

type FileKDF struct {
	TimeCost uint32 `yaml:"timeCost"`
	MemoryKB uint32 `yaml:"memoryKB"`
}

// envOverrides is processed by envconfig under the WALLETD_ prefix.
type envOverrides struct {
	DataRoot           string  `envconfig:"DATA_ROOT"`
	Network            string  `envconfig:"NETWORK"`
	NetworkConfigPath  string  `envconfig:"NETWORK_CONFIG_PATH"`
	LogLevel           string  `envconfig:"LOG_LEVEL"`
	RPCListen          string  `envconfig:"RPC_LISTEN"`
	RPCToken           string  `envconfig:"RPC_TOKEN"`
	RateLimitRPS       float64 `envconfig:"RPC_RATE_LIMIT_RPS"`
	RateLimitBurst     int     `envconfig:"RPC_RATE_LIMIT_BURST"`
	StreamMaxGlobal    int     `envconfig:"RPC_STREAM_MAX_GLOBAL"`
	StreamMaxPerClient int     `envconfig:"RPC_STREAM_MAX_PER_CLIENT"`
	QueueSize          int     `envconfig:"LISTENER_QUEUE_SIZE"`
	InboxSize          int     `envconfig:"LISTENER_INBOX_SIZE"`
	KDFTimeCost        uint32  `envconfig:"KDF_TIME_COST"`
	KDFMemoryKB        uint32  `envconfig:"KDF_MEMORY_KB"`
}

func Default() Config {
	return Config{
		DataRoot:      "data/walletd",
		Network:       "MainNet",
		NetworkConfig: "{}",
		LogLevel:      "info",
		RPC: RPCConfig{
			Listen:             "/ip4/127.0.0.1/tcp/8787",
			RateLimitRPS:       20,
			RateLimitBurst:     40,
			StreamMaxGlobal:    64,
			StreamMaxPerClient: 4,
		},
		Listeners: ListenerConfig{QueueSize: 64, InboxSize: 1024},
		KDF:       KDFConfig{TimeCost: 2, MemoryKB: 64 * 1024},
	}
}

// LoadFromPath reads defaults, then the first readable config file, then
// WALLETD_* environment overrides. An explicit path must exist.
func LoadFromPath(configPath string) (Config, error) {
	cfg := Default()

	candidates := []string{"go-backend/configs/walletd.yaml", "configs/walletd.yaml"}
	if configPath != "" {
		candidates = []string{configPath}
	}
	for _, path := range candidates {
		data, err := os.ReadFile(path)
		if err != nil {
			if configPath != "" {
				return Config{}, fmt.Errorf("read config %s: %w", path, err)
			}
			continue
		}
		var parsed FileConfig
		if err := yaml.Unmarshal(data, &parsed); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
		if err := Merge(&cfg, parsed); err != nil {
			return Config{}, err
		}
		break
	}

	if err := ApplyEnvOverrides(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, cfg.Validate()
}

func Merge(dst *Config, src FileConfig) error {
	if src.DataRoot != "" {
		dst.DataRoot = src.DataRoot
	}
	if src.Network != "" {
		dst.Network = src.Network
	}
	if src.NetworkConfig != "" {
		dst.NetworkConfig = src.NetworkConfig
	}
	if src.NetworkConfigPath != "" {
		raw, err := os.ReadFile(src.NetworkConfigPath)
		if err != nil {
			return fmt.Errorf("read network config: %w", err)
		}
		dst.NetworkConfig = string(raw)
	}
	if src.LogLevel != "" {
		dst.LogLevel = src.LogLevel
	}
	if src.RPC.Listen != "" {
		dst.RPC.Listen = src.RPC.Listen
	}
	if src.RPC.Token != "" {
		dst.RPC.Token = src.RPC.Token
	}
	if src.RPC.RateLimitRPS != 0 {
		dst.RPC.RateLimitRPS = src.RPC.RateLimitRPS
	}
	if src.RPC.RateLimitBurst != 0 {
		dst.RPC.RateLimitBurst = src.RPC.RateLimitBurst
	}
	if src.RPC.StreamMaxGlobal != 0 {
		dst.RPC.StreamMaxGlobal = src.RPC.StreamMaxGlobal
	}
	if src.RPC.StreamMaxPerClient != 0 {
		dst.RPC.StreamMaxPerClient = src.RPC.StreamMaxPerClient
	}
	if src.Listeners.QueueSize != 0 {
		dst.Listeners.QueueSize = src.Listeners.QueueSize
	}
	if src.Listeners.InboxSize != 0 {
		dst.Listeners.InboxSize = src.Listeners.InboxSize
	}
	if src.KDF.TimeCost != 0 {
		dst.KDF.TimeCost = src.KDF.TimeCost
	}
	if src.KDF.MemoryKB != 0 {
		dst.KDF.MemoryKB = src.KDF.MemoryKB
	}
	return nil
}

func ApplyEnvOverrides(cfg *Config) error {
	var env envOverrides
	if err := envconfig.Process(envPrefix, &env); err != nil {
		return fmt.Errorf("process env config: %w", err)
	}
	return Merge(cfg, FileConfig{
		DataRoot:          env.DataRoot,
		Network:           env.Network,
		NetworkConfigPath: env.NetworkConfigPath,
		LogLevel:          env.LogLevel,
		RPC: FileRPC{
			Listen:             env.RPCListen,
			Token:              env.RPCToken,
			RateLimitRPS:       env.RateLimitRPS,
			RateLimitBurst:     env.RateLimitBurst,
			StreamMaxGlobal:    env.StreamMaxGlobal,
			StreamMaxPerClient: env.StreamMaxPerClient,
		},
		Listeners: FileListeners{QueueSize: env.QueueSize, InboxSize: env.InboxSize},
		KDF:       FileKDF{TimeCost: env.KDFTimeCost, MemoryKB: env.KDFMemoryKB},
	})
}

func (c Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.DataRoot) == "" {
		errs = append(errs, errors.New("dataRoot is required"))
	}
	if strings.TrimSpace(c.RPC.Listen) == "" {
		errs = append(errs, errors.New("rpc.listen is required"))
	}
	if c.RPC.RateLimitRPS < 0 || c.RPC.RateLimitBurst < 0 {
		errs = append(errs, errors.New("rpc rate limits must not be negative"))
	}
	if c.RPC.StreamMaxGlobal < 0 || c.RPC.StreamMaxPerClient < 0 {
		errs = append(errs, errors.New("rpc stream limits must not be negative"))
	}
	if c.Listeners.QueueSize < 0 || c.Listeners.InboxSize < 0 {
		errs = append(errs, errors.New("listener queue sizes must not be negative"))
	}
	if c.KDF.TimeCost == 0 || c.KDF.MemoryKB < 8 {
		errs = append(errs, errors.New("kdf.timeCost must be positive and kdf.memoryKB at least 8"))
	}
	return errors.Join(errs...)
}
