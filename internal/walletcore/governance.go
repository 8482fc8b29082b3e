package walletcore

import (
	"bytes"
	"crypto/ed25519"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"golang.org/x/crypto/blake2b"

	"walletbridge/go-backend/internal/domains/wallet/domain"
)

var ErrUnknownGovernance = errors.New("governance action is not supported")

// Governance serves the mainchain producer, CR council and proposal
// actions. Digests are blake2b-256 over the action name and the compact
// payload; payloads signed here use the owner key.
func (w mainchainWallet) Governance(action string, args []json.RawMessage) (any, error) {
	if err := w.alive(); err != nil {
		return nil, err
	}
	switch action {
	case "getOwnerPublicKey":
		pub, err := w.ownerKey(ownerPath)
		if err != nil {
			return nil, err
		}
		return hex.EncodeToString(pub), nil
	case "getOwnerAddress":
		return w.ownerAddress(ownerPath, prefixStandard)
	case "getOwnerDepositAddress":
		return w.ownerAddress(ownerPath, prefixDeposit)
	case "getCRDepositAddress":
		return w.ownerAddress(crPath, prefixDeposit)
	case "generateProducerPayload":
		return w.producerPayload(args)
	case "generateCancelProducerPayload":
		return w.cancelProducerPayload(args)
	case "generateCRInfoPayload":
		return w.crInfoPayload(args)
	case "generateUnregisterCRPayload":
		return w.unregisterCRPayload(args)
	case "createDepositTransaction":
		return w.depositTx(args)
	case "createRegisterProducerTransaction":
		return w.registerTx(action, args, ownerPath)
	case "createRegisterCRTransaction":
		return w.registerTx(action, args, crPath)
	case "createRetrieveDepositTransaction":
		return w.retrieveTx(action, args, ownerPath)
	case "createRetrieveCRDepositTransaction":
		return w.retrieveTx(action, args, crPath)
	}
	switch {
	case action == "calculateProposalHash" || strings.HasSuffix(action, "Digest"):
		if len(args) != 1 {
			return nil, fmt.Errorf("%s takes one payload", action)
		}
		return payloadDigest(action, args[0])
	case strings.HasPrefix(action, "create") && strings.HasSuffix(action, "Transaction"):
		return w.payloadTx(action, args)
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownGovernance, action)
}

func (w mainchainWallet) ownerKey(path string) (ed25519.PublicKey, error) {
	if w.master.rec.ReadOnly {
		return nil, ErrWatchOnly
	}
	return w.master.ring.public(path, false, 0), nil
}

func (w mainchainWallet) ownerAddress(path string, prefix byte) (string, error) {
	pub, err := w.ownerKey(path)
	if err != nil {
		return "", err
	}
	return encodeAddress(prefix, pub), nil
}

func txType(action string) string {
	name := strings.TrimSuffix(strings.TrimPrefix(action, "create"), "Transaction")
	if name == "" {
		return action
	}
	return strings.ToLower(name[:1]) + name[1:]
}

func payloadDigest(action string, payload json.RawMessage) (string, error) {
	var buf bytes.Buffer
	if err := json.Compact(&buf, payload); err != nil {
		return "", fmt.Errorf("payload: %w", err)
	}
	h, _ := blake2b.New256(nil)
	h.Write([]byte(action))
	h.Write([]byte{0})
	h.Write(buf.Bytes())
	return hex.EncodeToString(h.Sum(nil)), nil
}

func argString(args []json.RawMessage, i int, name string) (string, error) {
	if i >= len(args) {
		return "", fmt.Errorf("missing %s", name)
	}
	var s string
	if err := json.Unmarshal(args[i], &s); err != nil {
		return "", fmt.Errorf("%s must be a string", name)
	}
	return s, nil
}

func argObject(args []json.RawMessage, i int, name string) (json.RawMessage, error) {
	if i >= len(args) {
		return nil, fmt.Errorf("missing %s", name)
	}
	raw := args[i]
	// Hosts often pass payloads as JSON text.
	var text string
	if json.Unmarshal(raw, &text) == nil {
		raw = json.RawMessage(text)
	}
	trimmed := bytes.TrimSpace(raw)
	if !json.Valid(trimmed) || len(trimmed) == 0 || (trimmed[0] != '{' && trimmed[0] != '[') {
		return nil, fmt.Errorf("%s must be a json object or array", name)
	}
	return trimmed, nil
}

func argStrings(args []json.RawMessage, names ...string) ([]string, error) {
	if len(args) != len(names) {
		return nil, fmt.Errorf("expected %d arguments, got %d", len(names), len(args))
	}
	out := make([]string, len(names))
	for i, name := range names {
		s, err := argString(args, i, name)
		if err != nil {
			return nil, err
		}
		out[i] = s
	}
	return out, nil
}

// signOwner signs fields with the owner key after checking the caller named
// this wallet's owner.
func (w mainchainWallet) signOwner(action, ownerPublicKey, payPassword string, fields map[string]any) (map[string]any, error) {
	own, err := w.ownerKey(ownerPath)
	if err != nil {
		return nil, err
	}
	if !strings.EqualFold(ownerPublicKey, hex.EncodeToString(own)) {
		return nil, errors.New("owner public key does not belong to this wallet")
	}
	raw, err := json.Marshal(fields)
	if err != nil {
		return nil, err
	}
	digest, err := payloadDigest(action, raw)
	if err != nil {
		return nil, err
	}
	secret, err := w.master.unlock(payPassword)
	if err != nil {
		return nil, err
	}
	defer secret.wipe()
	sum, _ := hex.DecodeString(digest)
	key := secret.keyring().private(ownerPath, false, 0)
	fields["Signature"] = hex.EncodeToString(ed25519.Sign(key, sum))
	return fields, nil
}

func (w mainchainWallet) producerPayload(args []json.RawMessage) (any, error) {
	v, err := argStrings(args, "ownerPublicKey", "nodePublicKey", "nickName", "url", "ipAddress", "location", "payPassword")
	if err != nil {
		return nil, err
	}
	if _, err := decodePublicKey(v[1]); err != nil {
		return nil, fmt.Errorf("node public key: %w", err)
	}
	return w.signOwner("generateProducerPayload", v[0], v[6], map[string]any{
		"OwnerPublicKey": strings.ToLower(v[0]),
		"NodePublicKey":  strings.ToLower(v[1]),
		"NickName":       v[2],
		"Url":            v[3],
		"IPAddress":      v[4],
		"Location":       v[5],
	})
}

func (w mainchainWallet) cancelProducerPayload(args []json.RawMessage) (any, error) {
	v, err := argStrings(args, "ownerPublicKey", "payPassword")
	if err != nil {
		return nil, err
	}
	return w.signOwner("generateCancelProducerPayload", v[0], v[1], map[string]any{
		"OwnerPublicKey": strings.ToLower(v[0]),
	})
}

func (w mainchainWallet) crInfoPayload(args []json.RawMessage) (any, error) {
	v, err := argStrings(args, "crPublicKey", "did", "nickName", "url", "location")
	if err != nil {
		return nil, err
	}
	pub, err := decodePublicKey(v[0])
	if err != nil {
		return nil, fmt.Errorf("cr public key: %w", err)
	}
	fields := map[string]any{
		"CRPublicKey": hex.EncodeToString(pub),
		"CID":         cidOf(pub),
		"DID":         v[1],
		"NickName":    v[2],
		"Url":         v[3],
		"Location":    v[4],
	}
	raw, err := json.Marshal(fields)
	if err != nil {
		return nil, err
	}
	if fields["Digest"], err = payloadDigest("generateCRInfoPayload", raw); err != nil {
		return nil, err
	}
	return fields, nil
}

func (w mainchainWallet) unregisterCRPayload(args []json.RawMessage) (any, error) {
	v, err := argStrings(args, "cid")
	if err != nil {
		return nil, err
	}
	if !strings.HasPrefix(v[0], cidScheme) {
		return nil, fmt.Errorf("%q is not a cid", v[0])
	}
	raw, _ := json.Marshal(map[string]any{"CID": v[0]})
	digest, err := payloadDigest("generateUnregisterCRPayload", raw)
	if err != nil {
		return nil, err
	}
	return map[string]any{"CID": v[0], "Digest": digest}, nil
}

// depositTx moves amount to the side chain lock address:
// [version, inputs, sideChainID, amount, sideChainAddress, lockAddress, fee, memo].
func (w mainchainWallet) depositTx(args []json.RawMessage) (any, error) {
	if len(args) != 8 {
		return nil, fmt.Errorf("expected 8 arguments, got %d", len(args))
	}
	var version int
	if err := json.Unmarshal(args[0], &version); err != nil {
		return nil, errors.New("version must be an integer")
	}
	v, err := argStrings([]json.RawMessage{args[2], args[3], args[4], args[5], args[6], args[7]},
		"sideChainID", "amount", "sideChainAddress", "lockAddress", "fee", "memo")
	if err != nil {
		return nil, err
	}
	if domain.ClassifyChain(v[0]) == domain.ChainUnsupported || domain.ClassifyChain(v[0]) == domain.ChainMainchain {
		return nil, fmt.Errorf("side chain %q is not supported", v[0])
	}
	if !addressValidFor(domain.ClassifyChain(v[0]), v[2]) {
		return nil, fmt.Errorf("side chain address %q is not valid on %s", v[2], v[0])
	}
	if !addressValidFor(domain.ChainMainchain, v[3]) {
		return nil, fmt.Errorf("lock address %q is not valid", v[3])
	}
	amount, err := parseAmount(v[1], false)
	if err != nil {
		return nil, err
	}
	payload := map[string]any{
		"version":             version,
		"sideChainID":         v[0],
		"crossChainAddresses": []string{v[2]},
		"crossChainAmounts":   []string{amount.String()},
	}
	outputs := []txOutput{{Address: v[3], Amount: amount.String()}}
	return w.fundedTx("transferCrossChainAsset", args[1], outputs, amount, payload, v[4], v[5])
}

// registerTx locks amount at the deposit address of path:
// [inputs, payload, amount, fee, memo].
func (w mainchainWallet) registerTx(action string, args []json.RawMessage, path string) (any, error) {
	if len(args) != 5 {
		return nil, fmt.Errorf("expected 5 arguments, got %d", len(args))
	}
	payload, err := argObject(args, 1, "payload")
	if err != nil {
		return nil, err
	}
	v, err := argStrings(args[2:], "amount", "fee", "memo")
	if err != nil {
		return nil, err
	}
	amount, err := parseAmount(v[0], false)
	if err != nil {
		return nil, err
	}
	deposit, err := w.ownerAddress(path, prefixDeposit)
	if err != nil {
		return nil, err
	}
	outputs := []txOutput{{Address: deposit, Amount: amount.String()}}
	return w.fundedTx(txType(action), args[0], outputs, amount, payload, v[1], v[2])
}

// retrieveTx returns deposited funds to the owner address:
// [inputs, amount, fee, memo].
func (w mainchainWallet) retrieveTx(action string, args []json.RawMessage, path string) (any, error) {
	if len(args) != 4 {
		return nil, fmt.Errorf("expected 4 arguments, got %d", len(args))
	}
	v, err := argStrings(args[1:], "amount", "fee", "memo")
	if err != nil {
		return nil, err
	}
	amount, err := parseAmount(v[0], false)
	if err != nil {
		return nil, err
	}
	owner, err := w.ownerAddress(path, prefixStandard)
	if err != nil {
		return nil, err
	}
	outputs := []txOutput{{Address: owner, Amount: amount.String()}}
	return w.fundedTx(txType(action), args[0], outputs, amount, nil, v[1], v[2])
}

// payloadTx wraps a governance payload in a transaction that spends only
// the fee: [inputs, payload, fee, memo].
func (w mainchainWallet) payloadTx(action string, args []json.RawMessage) (any, error) {
	if len(args) != 4 {
		return nil, fmt.Errorf("expected 4 arguments, got %d", len(args))
	}
	payload, err := argObject(args, 1, "payload")
	if err != nil {
		return nil, err
	}
	v, err := argStrings(args[2:], "fee", "memo")
	if err != nil {
		return nil, err
	}
	return w.fundedTx(txType(action), args[0], nil, new(big.Int), payload, v[0], v[1])
}
