package walletcore

import (
	"crypto/ed25519"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"slices"
	"sync"

	"walletbridge/go-backend/internal/domains/contracts"
	"walletbridge/go-backend/internal/domains/wallet/domain"
)

// keySearchLimit bounds how far signing looks for the key behind an address
// on each branch.
const keySearchLimit = 256

var (
	ErrSubWalletClosed = errors.New("sub wallet was destroyed")
	ErrNoSigningKey    = errors.New("no key in this wallet controls the address")
)

var (
	_ contracts.MainchainSubWallet    = mainchainWallet{}
	_ contracts.SidechainSubWallet    = sidechainWallet{}
	_ contracts.IDChainSubWallet      = idChainWallet{}
	_ contracts.EthSidechainSubWallet = ethWallet{}
	_ contracts.BTCSubWallet          = btcWallet{}
)

type subWallet struct {
	master  *masterWallet
	chainID string
	kind    domain.ChainKind

	mu        sync.Mutex
	sink      contracts.EventSink
	syncing   bool
	detached  bool
	published map[string]struct{}
}

type (
	mainchainWallet struct{ *subWallet }
	sidechainWallet struct{ *subWallet }
	idChainWallet   struct{ sidechainWallet }
	ethWallet       struct{ *subWallet }
	btcWallet       struct{ *subWallet }
)

func newSubWallet(m *masterWallet, chainID string) contracts.SubWallet {
	sw := &subWallet{
		master:    m,
		chainID:   chainID,
		kind:      domain.ClassifyChain(chainID),
		published: make(map[string]struct{}),
	}
	switch sw.kind {
	case domain.ChainMainchain:
		return mainchainWallet{sw}
	case domain.ChainIDChain:
		return idChainWallet{sidechainWallet{sw}}
	case domain.ChainEthSidechain:
		return ethWallet{sw}
	case domain.ChainBTCSidechain:
		return btcWallet{sw}
	default:
		return sidechainWallet{sw}
	}
}

func (s *subWallet) core() *subWallet { return s }

func base(sw contracts.SubWallet) *subWallet {
	return sw.(interface{ core() *subWallet }).core()
}

func (s *subWallet) detach() {
	s.mu.Lock()
	s.detached = true
	s.sink = nil
	s.syncing = false
	s.mu.Unlock()
}

func (s *subWallet) alive() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.detached {
		return fmt.Errorf("%w: %s", ErrSubWalletClosed, s.chainID)
	}
	return nil
}

func (s *subWallet) emit(kind contracts.EventKind, payload map[string]any) {
	s.mu.Lock()
	sink := s.sink
	s.mu.Unlock()
	if sink == nil {
		return
	}
	sink.OnEvent(contracts.Event{Kind: kind, Payload: payload, RaisedAt: s.master.engine.now().UTC()})
}

func (s *subWallet) multiSign() bool { return isMultiSign(s.master.rec.Mode) }

func (s *subWallet) singleAddress() bool {
	return s.master.rec.SingleAddress || s.master.rec.SingleKey || s.kind == domain.ChainEthSidechain
}

func (s *subWallet) multiSignAddress() string {
	return multiSignAddress(s.master.ringKeys(), s.master.requiredSigners())
}

func (s *subWallet) ChainID() string { return s.chainID }

func (s *subWallet) BasicInfo() (any, error) {
	if err := s.alive(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	syncing := s.syncing
	s.mu.Unlock()
	return map[string]any{
		"chainID":       s.chainID,
		"kind":          string(s.kind),
		"masterWallet":  s.master.ID(),
		"singleAddress": s.singleAddress(),
		"syncing":       syncing,
	}, nil
}

// derive renders count values starting at index, collapsing to index 0 for
// single-address wallets.
func (s *subWallet) derive(path string, index, count int, internal bool, render func(ed25519.PublicKey) string) ([]string, error) {
	if err := s.alive(); err != nil {
		return nil, err
	}
	if index < 0 || count < 1 {
		return nil, fmt.Errorf("invalid range start %d count %d", index, count)
	}
	if s.master.rec.ReadOnly {
		return nil, ErrWatchOnly
	}
	if s.singleAddress() {
		return []string{render(s.master.ring.public(path, false, 0))}, nil
	}
	out := make([]string, 0, count)
	for i := index; i < index+count; i++ {
		out = append(out, render(s.master.ring.public(path, internal, i)))
	}
	return out, nil
}

func (s *subWallet) Addresses(index, count int, internal bool) ([]string, error) {
	if s.multiSign() {
		if err := s.alive(); err != nil {
			return nil, err
		}
		return []string{s.multiSignAddress()}, nil
	}
	return s.derive(s.chainID, index, count, internal, func(pub ed25519.PublicKey) string {
		return addressFor(s.kind, pub)
	})
}

func (s *subWallet) PublicKeys(index, count int, internal bool) ([]string, error) {
	if s.multiSign() {
		if err := s.alive(); err != nil {
			return nil, err
		}
		keys := s.master.ringKeys()
		slices.Sort(keys)
		return keys, nil
	}
	return s.derive(s.chainID, index, count, internal, func(pub ed25519.PublicKey) string {
		return hex.EncodeToString(pub)
	})
}

// signingKey finds the private key behind address in ring.
func (s *subWallet) signingKey(ring keyring, address string) (ed25519.PrivateKey, error) {
	if s.multiSign() {
		if address == "" || address == s.multiSignAddress() {
			return ring.private(ownerPath, false, 0), nil
		}
		return nil, fmt.Errorf("%w: %s", ErrNoSigningKey, address)
	}
	if address == "" || s.singleAddress() {
		key := ring.private(s.chainID, false, 0)
		if address == "" || addressFor(s.kind, key.Public().(ed25519.PublicKey)) == address {
			return key, nil
		}
		return nil, fmt.Errorf("%w: %s", ErrNoSigningKey, address)
	}
	for i := range keySearchLimit {
		for _, internal := range []bool{false, true} {
			key := ring.private(s.chainID, internal, i)
			if addressFor(s.kind, key.Public().(ed25519.PublicKey)) == address {
				return key, nil
			}
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrNoSigningKey, address)
}

func (s *subWallet) newTx(kind string, inputs []txInput, outputs []txOutput, payload any, fee, memo string) (json.RawMessage, error) {
	doc := txDocument{
		Version: txVersion,
		Type:    kind,
		ChainID: s.chainID,
		Network: s.master.rec.Network,
		Inputs:  inputs,
		Outputs: outputs,
		Fee:     fee,
		Memo:    memo,
		M:       s.master.requiredSigners(),
	}
	if doc.Outputs == nil {
		doc.Outputs = []txOutput{}
	}
	if s.multiSign() {
		doc.Signers = s.master.ringKeys()
		slices.Sort(doc.Signers)
	}
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("encode payload: %w", err)
		}
		doc.Payload = raw
	}
	return doc.encode()
}

// fundedTx builds a transaction spending inputs into outputs plus spent,
// sending the remainder back to the first input.
func (s *subWallet) fundedTx(kind string, rawInputs json.RawMessage, outputs []txOutput, spent *big.Int, payload any, fee, memo string) (json.RawMessage, error) {
	if err := s.alive(); err != nil {
		return nil, err
	}
	inputs, in, err := decodeInputs(rawInputs, s.kind)
	if err != nil {
		return nil, err
	}
	feeText, feeValue, err := normalizeFee(fee)
	if err != nil {
		return nil, err
	}
	outputs, err = balance(in, outputs, spent, feeValue, inputs[0].Address)
	if err != nil {
		return nil, err
	}
	return s.newTx(kind, inputs, outputs, payload, feeText, memo)
}

func (s *subWallet) CreateTransaction(inputs, outputs json.RawMessage, fee, memo string) (json.RawMessage, error) {
	if err := s.alive(); err != nil {
		return nil, err
	}
	outs, total, err := decodeOutputs(outputs, s.kind)
	if err != nil {
		return nil, err
	}
	return s.fundedTx("transferAsset", inputs, outs, total, nil, fee, memo)
}

func (s *subWallet) SignTransaction(tx json.RawMessage, payPassword string) (json.RawMessage, error) {
	if err := s.alive(); err != nil {
		return nil, err
	}
	doc, err := decodeTx(tx, s.chainID)
	if err != nil {
		return nil, err
	}
	digest, err := doc.digest()
	if err != nil {
		return nil, err
	}
	secret, err := s.master.unlock(payPassword)
	if err != nil {
		return nil, err
	}
	defer secret.wipe()
	ring := secret.keyring()

	addresses := []string{""}
	if len(doc.Inputs) > 0 {
		addresses = addresses[:0]
		for _, in := range doc.Inputs {
			addresses = appendUnique(addresses, in.Address)
		}
	}
	signed := 0
	for _, address := range addresses {
		key, err := s.signingKey(ring, address)
		if err != nil {
			return nil, err
		}
		pub := hex.EncodeToString(key.Public().(ed25519.PublicKey))
		if doc.signedBy(pub) {
			if len(addresses) == 1 {
				return nil, ErrAlreadySigned
			}
			continue
		}
		if len(doc.Signers) > 0 && !slices.Contains(doc.Signers, pub) {
			return nil, fmt.Errorf("%w: key %s is not a signer", ErrNoSigningKey, pub)
		}
		doc.Signatures = append(doc.Signatures, txSignature{
			PublicKey: pub,
			Signature: hex.EncodeToString(ed25519.Sign(key, digest)),
		})
		signed++
	}
	if signed == 0 {
		return nil, ErrAlreadySigned
	}
	return doc.encode()
}

func (s *subWallet) PublishTransaction(tx json.RawMessage) (string, error) {
	if err := s.alive(); err != nil {
		return "", err
	}
	doc, err := decodeTx(tx, s.chainID)
	if err != nil {
		return "", err
	}
	signers, err := doc.validSigners()
	if err != nil {
		return "", err
	}
	if len(doc.Signers) > 0 {
		signers = slices.DeleteFunc(signers, func(k string) bool { return !slices.Contains(doc.Signers, k) })
	}
	if len(signers) < max(doc.M, 1) {
		return "", fmt.Errorf("%w: have %d, need %d", ErrNotEnoughSigners, len(signers), max(doc.M, 1))
	}
	txid, err := doc.txID()
	if err != nil {
		return "", err
	}
	s.mu.Lock()
	_, dup := s.published[txid]
	s.published[txid] = struct{}{}
	s.mu.Unlock()
	if dup {
		return "", fmt.Errorf("%w: %s", ErrAlreadyPublished, txid)
	}
	s.emit(contracts.EventTransactionStatus, map[string]any{"txid": txid, "status": "Added", "confirms": 0})
	if s.kind == domain.ChainEthSidechain {
		s.emit(contracts.EventETH, map[string]any{"event": map[string]any{"Type": "TransferEvent", "Status": "Included", "Hash": txid}})
	}
	return txid, nil
}

func (s *subWallet) SignDigest(address, digest, payPassword string) (string, error) {
	if err := s.alive(); err != nil {
		return "", err
	}
	raw, err := decodeDigest(digest)
	if err != nil {
		return "", err
	}
	secret, err := s.master.unlock(payPassword)
	if err != nil {
		return "", err
	}
	defer secret.wipe()
	key, err := s.signingKey(secret.keyring(), address)
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(ed25519.Sign(key, raw)), nil
}

func (s *subWallet) VerifyDigest(publicKey, digest, signature string) (bool, error) {
	raw, err := decodeDigest(digest)
	if err != nil {
		return false, err
	}
	return verifyHex(publicKey, raw, signature)
}

func (s *subWallet) TransactionSignedInfo(tx json.RawMessage) (any, error) {
	doc, err := decodeTx(tx, s.chainID)
	if err != nil {
		return nil, err
	}
	return signedInfo(doc)
}

func (s *subWallet) ConvertToRawTransaction(tx json.RawMessage) (string, error) {
	doc, err := decodeTx(tx, s.chainID)
	if err != nil {
		return "", err
	}
	raw, err := doc.encode()
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(raw), nil
}

func (s *subWallet) RegisterCallback(sink contracts.EventSink) error {
	if sink == nil {
		return errors.New("event sink is nil")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.detached {
		return fmt.Errorf("%w: %s", ErrSubWalletClosed, s.chainID)
	}
	s.sink = sink
	return nil
}

func (s *subWallet) UnregisterCallback() error {
	s.mu.Lock()
	s.sink = nil
	s.mu.Unlock()
	return nil
}

// SyncStart has no peers to talk to; it reports an immediately complete
// sync so listeners see the usual event sequence.
func (s *subWallet) SyncStart() error {
	s.mu.Lock()
	if s.detached {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrSubWalletClosed, s.chainID)
	}
	already := s.syncing
	s.syncing = true
	s.mu.Unlock()
	if already {
		return nil
	}
	now := s.master.engine.now().UTC()
	s.emit(contracts.EventConnectStatusChanged, map[string]any{"status": "Connected"})
	s.emit(contracts.EventBlockSyncStarted, map[string]any{})
	s.emit(contracts.EventSyncProgress, map[string]any{
		"progress":       100,
		"lastBlockTime":  now.Unix(),
		"bytesPerSecond": 0,
		"downloadPeer":   "",
	})
	return nil
}

func (s *subWallet) SyncStop() error {
	s.mu.Lock()
	was := s.syncing
	s.syncing = false
	s.mu.Unlock()
	if !was {
		return nil
	}
	s.emit(contracts.EventBlockSyncStopped, map[string]any{})
	s.emit(contracts.EventConnectStatusChanged, map[string]any{"status": "Disconnected"})
	return nil
}
