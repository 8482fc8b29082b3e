package policy

import (
	"errors"
	"log/slog"
	"testing"

	"walletbridge/go-backend/internal/domains/contracts"
)

func TestValidateMasterWalletID(t *testing.T) {
	if id, err := ValidateMasterWalletID("  m1 "); err != nil || id != "m1" {
		t.Fatalf("expected trimmed id, got %q %v", id, err)
	}
	for _, bad := range []string{"", "   ", "m1:ELA", "a/b"} {
		if _, err := ValidateMasterWalletID(bad); !errors.Is(err, contracts.ErrInvalidArgument) {
			t.Fatalf("%q: expected ErrInvalidArgument, got %v", bad, err)
		}
	}
}

func TestValidatePayPassword(t *testing.T) {
	if err := ValidatePayPassword("short"); err == nil {
		t.Fatal("short password must be rejected")
	}
	if err := ValidatePayPassword("long-enough"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidateMultiSign(t *testing.T) {
	cases := []struct {
		name      string
		cosigners []string
		required  int
		ok        bool
	}{
		{"valid", []string{"a", "b", "c"}, 2, true},
		{"none", nil, 1, false},
		{"too many required", []string{"a", "b"}, 3, false},
		{"zero required", []string{"a"}, 0, false},
		{"duplicate", []string{"a", "a"}, 1, false},
	}
	for _, tc := range cases {
		err := ValidateMultiSign(tc.cosigners, tc.required)
		if (err == nil) != tc.ok {
			t.Fatalf("%s: ok=%v err=%v", tc.name, tc.ok, err)
		}
	}
}

func TestParseLogLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"warning":  slog.LevelWarn,
		"DEBUG":    slog.LevelDebug,
		"trace":    LevelTrace,
		"critical": LevelCritical,
		"off":      LevelOff,
	}
	for name, want := range cases {
		got, err := ParseLogLevel(name)
		if err != nil || got != want {
			t.Fatalf("%s: got=%v err=%v want=%v", name, got, err, want)
		}
	}
	if _, err := ParseLogLevel("verbose"); err == nil {
		t.Fatal("unknown level must be rejected")
	}
}

func TestValidateAddressRangeAndNetwork(t *testing.T) {
	if err := ValidateAddressRange(0, 0); err == nil {
		t.Fatal("zero count must be rejected")
	}
	if err := ValidateAddressRange(-1, 1); err == nil {
		t.Fatal("negative index must be rejected")
	}
	if _, err := ValidateNetwork("MainNet"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := ValidateNetwork("mainnet"); err == nil {
		t.Fatal("network names are case sensitive")
	}
	if err := ValidateMnemonicWordCount(13); err == nil {
		t.Fatal("13 words must be rejected")
	}
}
