// Package privacylog keeps wallet secrets and wallet identifiers out of the
// daemon log. Secrets are replaced, identifiers become per-process
// fingerprints so lines can still be correlated within one run.
package privacylog

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/tyler-smith/go-bip39"
	"golang.org/x/crypto/blake2b"
)

const Redacted = "[REDACTED]"

type keyClass uint8

const (
	classPlain keyClass = iota
	classSecret
	classIdentifier
)

var (
	fingerprintKey = newFingerprintKey()

	identifierKeys = map[string]struct{}{
		"master_wallet_id": {},
		"sub_wallet_id":    {},
		"subscription_id":  {},
		"handle_id":        {},
		"address":          {},
	}
	secretFragments = []string{
		"password", "passphrase", "mnemonic", "seed", "private", "keystore",
		"token", "secret", "authorization",
	}
)

// Handler rewrites attributes before passing records on.
type Handler struct {
	next slog.Handler
}

func NewHandler(next slog.Handler) *Handler {
	return &Handler{next: next}
}

// NewJSONLogger writes sanitized JSON lines to w. level may be a
// *slog.LevelVar shared with the session so setLogLevel applies at once.
func NewJSONLogger(w io.Writer, level slog.Leveler) *slog.Logger {
	return slog.New(NewHandler(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level})))
}

func (h *Handler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level)
}

func (h *Handler) Handle(ctx context.Context, rec slog.Record) error {
	clean := slog.NewRecord(rec.Time, rec.Level, rec.Message, rec.PC)
	rec.Attrs(func(a slog.Attr) bool {
		clean.AddAttrs(Sanitize(a))
		return true
	})
	return h.next.Handle(ctx, clean)
}

func (h *Handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	clean := make([]slog.Attr, len(attrs))
	for i, a := range attrs {
		clean[i] = Sanitize(a)
	}
	return &Handler{next: h.next.WithAttrs(clean)}
}

func (h *Handler) WithGroup(name string) slog.Handler {
	return &Handler{next: h.next.WithGroup(name)}
}

// Sanitize returns a copy of a that is safe to log. Groups are walked; a
// string that parses as a BIP-39 mnemonic is redacted whatever its key.
func Sanitize(a slog.Attr) slog.Attr {
	a.Value = a.Value.Resolve()
	key := strings.TrimSpace(a.Key)
	switch classify(key) {
	case classSecret:
		return slog.String(key, Redacted)
	case classIdentifier:
		return slog.String(fingerprintName(key), Fingerprint(render(a.Value)))
	}
	switch a.Value.Kind() {
	case slog.KindGroup:
		members := a.Value.Group()
		clean := make([]slog.Attr, len(members))
		for i, m := range members {
			clean[i] = Sanitize(m)
		}
		return slog.Attr{Key: key, Value: slog.GroupValue(clean...)}
	case slog.KindString:
		if looksLikeMnemonic(a.Value.String()) {
			return slog.String(key, Redacted)
		}
	}
	return a
}

// Fingerprint is stable for one process and meaningless across restarts.
func Fingerprint(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return ""
	}
	h, _ := blake2b.New(8, fingerprintKey)
	h.Write([]byte(value))
	return "fp_" + hex.EncodeToString(h.Sum(nil))
}

func classify(key string) keyClass {
	lower := strings.ToLower(key)
	if _, ok := identifierKeys[lower]; ok {
		return classIdentifier
	}
	for _, frag := range secretFragments {
		if strings.Contains(lower, frag) {
			return classSecret
		}
	}
	return classPlain
}

func fingerprintName(key string) string {
	if strings.HasSuffix(strings.ToLower(key), "_fp") {
		return key
	}
	return key + "_fp"
}

func looksLikeMnemonic(s string) bool {
	words := strings.Fields(s)
	switch len(words) {
	case 12, 15, 18, 21, 24:
		return bip39.IsMnemonicValid(strings.Join(words, " "))
	}
	return false
}

func render(v slog.Value) string {
	switch v.Kind() {
	case slog.KindString:
		return v.String()
	case slog.KindTime:
		return v.Time().UTC().Format(time.RFC3339Nano)
	default:
		return fmt.Sprint(v.Any())
	}
}

func newFingerprintKey() []byte {
	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		panic(fmt.Sprintf("privacylog: read random key: %v", err))
	}
	return key
}
