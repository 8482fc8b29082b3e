package walletcore

import (
	"bytes"
	"crypto/ed25519"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"slices"
	"strings"

	"github.com/mr-tron/base58/base58"
	"golang.org/x/crypto/blake2b"
	"golang.org/x/crypto/hkdf"

	"walletbridge/go-backend/internal/domains/wallet/domain"
)

const (
	prefixStandard  byte = 0x21
	prefixMultiSign byte = 0x12
	prefixDeposit   byte = 0x1f
	prefixDID       byte = 0x67
	prefixCID       byte = 0x4b
	prefixBTCLegacy byte = 0x00
	prefixBTC       byte = 0x05

	hashLen      = 20
	checksumLen  = 4
	addressBytes = 1 + hashLen + checksumLen

	hkdfInfoPrefix = "walletbridge/chain/v1"
	didScheme      = "did:elastos:"
	cidScheme      = "cid:elastos:"
)

var errBadPublicKey = errors.New("public key must be 32 hex-encoded bytes")

// keyring derives per-chain ed25519 keys from the wallet root material.
// Single-key rings use the root itself for every path.
type keyring struct {
	root   []byte
	single bool
}

func (k keyring) private(path string, internal bool, index int) ed25519.PrivateKey {
	if k.single {
		return ed25519.NewKeyFromSeed(k.root[:ed25519.SeedSize])
	}
	branch := 0
	if internal {
		branch = 1
	}
	info := fmt.Sprintf("%s/%s/%d/%d", hkdfInfoPrefix, path, branch, index)
	reader := hkdf.New(sha256.New, k.root, nil, []byte(info))
	seed := make([]byte, ed25519.SeedSize)
	if _, err := io.ReadFull(reader, seed); err != nil {
		panic(fmt.Sprintf("walletcore: hkdf expand: %v", err))
	}
	defer clear(seed)
	return ed25519.NewKeyFromSeed(seed)
}

func (k keyring) public(path string, internal bool, index int) ed25519.PublicKey {
	return k.private(path, internal, index).Public().(ed25519.PublicKey)
}

func hash160(data []byte) []byte {
	sum := blake2b.Sum256(data)
	return sum[:hashLen]
}

func encodeAddress(prefix byte, pub []byte) string {
	payload := append([]byte{prefix}, hash160(pub)...)
	sum := blake2b.Sum256(payload)
	return base58.Encode(append(payload, sum[:checksumLen]...))
}

// decodeAddress returns the version prefix of a checksummed base58 address.
func decodeAddress(address string) (byte, bool) {
	raw, err := base58.Decode(strings.TrimSpace(address))
	if err != nil || len(raw) != addressBytes {
		return 0, false
	}
	payload := raw[:1+hashLen]
	sum := blake2b.Sum256(payload)
	if !bytes.Equal(sum[:checksumLen], raw[1+hashLen:]) {
		return 0, false
	}
	return raw[0], true
}

func ethAddress(pub []byte) string {
	sum := blake2b.Sum256(pub)
	return "0x" + hex.EncodeToString(sum[len(sum)-20:])
}

func isETHAddress(address string) bool {
	rest, ok := strings.CutPrefix(strings.ToLower(strings.TrimSpace(address)), "0x")
	if !ok || len(rest) != 40 {
		return false
	}
	_, err := hex.DecodeString(rest)
	return err == nil
}

func multiSignAddress(ring []string, required int) string {
	sorted := slices.Clone(ring)
	slices.Sort(sorted)
	return encodeAddress(prefixMultiSign, []byte(fmt.Sprintf("%d|%s", required, strings.Join(sorted, ","))))
}

func didOf(pub []byte) string { return didScheme + encodeAddress(prefixDID, pub) }
func cidOf(pub []byte) string { return cidScheme + encodeAddress(prefixCID, pub) }

func decodePublicKey(s string) (ed25519.PublicKey, error) {
	raw, err := hex.DecodeString(strings.TrimSpace(s))
	if err != nil || len(raw) != ed25519.PublicKeySize {
		return nil, errBadPublicKey
	}
	return ed25519.PublicKey(raw), nil
}

// addressFor renders the receive address of pub on a chain kind.
func addressFor(kind domain.ChainKind, pub []byte) string {
	switch kind {
	case domain.ChainEthSidechain:
		return ethAddress(pub)
	case domain.ChainBTCSidechain:
		return encodeAddress(prefixBTC, pub)
	default:
		return encodeAddress(prefixStandard, pub)
	}
}

func addressValidFor(kind domain.ChainKind, address string) bool {
	switch kind {
	case domain.ChainEthSidechain:
		return isETHAddress(address)
	case domain.ChainBTCSidechain:
		prefix, ok := decodeAddress(address)
		return ok && (prefix == prefixBTC || prefix == prefixBTCLegacy)
	case domain.ChainIDChain:
		prefix, ok := decodeAddress(address)
		return ok && (prefix == prefixStandard || prefix == prefixMultiSign || prefix == prefixDID)
	case domain.ChainUnsupported:
		return false
	default:
		prefix, ok := decodeAddress(address)
		return ok && (prefix == prefixStandard || prefix == prefixMultiSign || prefix == prefixDeposit)
	}
}
