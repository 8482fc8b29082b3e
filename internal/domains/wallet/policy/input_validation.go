package policy

import (
	"fmt"
	"log/slog"
	"strings"

	"walletbridge/go-backend/internal/domains/contracts"
)

const (
	minPayPasswordLen = 8
	maxPayPasswordLen = 128
	maxAddressBatch   = 1000
	maxCosigners      = 6
)

// LevelTrace and LevelCritical extend slog's levels for the engine's
// verbosity names.
const (
	LevelTrace    = slog.LevelDebug - 4
	LevelCritical = slog.LevelError + 4
	LevelOff      = slog.LevelError + 8
)

var networks = map[string]struct{}{
	"MainNet": {},
	"TestNet": {},
	"RegTest": {},
	"PrvNet":  {},
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", contracts.ErrInvalidArgument, fmt.Sprintf(format, args...))
}

func ValidateMasterWalletID(id string) (string, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return "", invalid("master wallet id is required")
	}
	if strings.ContainsAny(id, `:/\`) {
		return "", invalid("master wallet id %q contains reserved characters", id)
	}
	return id, nil
}

func ValidateChainID(chainID string) (string, error) {
	chainID = strings.TrimSpace(chainID)
	if chainID == "" {
		return "", invalid("chain id is required")
	}
	return chainID, nil
}

func ValidatePayPassword(password string) error {
	n := len(password)
	if n < minPayPasswordLen || n > maxPayPasswordLen {
		return invalid("pay password must be %d to %d characters", minPayPasswordLen, maxPayPasswordLen)
	}
	return nil
}

func ValidateMnemonicWordCount(count int) error {
	switch count {
	case 12, 15, 18, 21, 24:
		return nil
	}
	return invalid("unsupported mnemonic word count %d", count)
}

func ValidateAddressRange(index, count int) error {
	if index < 0 {
		return invalid("address index must not be negative")
	}
	if count <= 0 || count > maxAddressBatch {
		return invalid("address count must be between 1 and %d", maxAddressBatch)
	}
	return nil
}

func ValidateNetwork(network string) (string, error) {
	network = strings.TrimSpace(network)
	if _, ok := networks[network]; !ok {
		return "", invalid("unknown network %q", network)
	}
	return network, nil
}

func ValidateMultiSign(cosigners []string, required int) error {
	if len(cosigners) == 0 || len(cosigners) > maxCosigners {
		return invalid("cosigner count must be between 1 and %d", maxCosigners)
	}
	if required < 1 || required > len(cosigners) {
		return invalid("required signers must be between 1 and %d", len(cosigners))
	}
	seen := make(map[string]struct{}, len(cosigners))
	for _, c := range cosigners {
		c = strings.TrimSpace(c)
		if c == "" {
			return invalid("cosigner public key is empty")
		}
		if _, dup := seen[c]; dup {
			return invalid("duplicate cosigner public key")
		}
		seen[c] = struct{}{}
	}
	return nil
}

// ParseLogLevel maps the engine's level names onto slog levels.
func ParseLogLevel(name string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "trace":
		return LevelTrace, nil
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warning", "warn":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	case "critical":
		return LevelCritical, nil
	case "off":
		return LevelOff, nil
	}
	return 0, invalid("unknown log level %q", name)
}
