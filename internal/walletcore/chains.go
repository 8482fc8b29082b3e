package walletcore

import (
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

const (
	didPath = "did"

	// BTC size estimate per input and output, in bytes.
	btcTxOverhead = 10
	btcInputSize  = 148
	btcOutputSize = 34

	maxETHUnit = 18
)

func (w sidechainWallet) CreateWithdrawTransaction(inputs json.RawMessage, amount, mainchainAddress, fee, memo string) (json.RawMessage, error) {
	if !addressValidFor(domain.ChainMainchain, mainchainAddress) {
		return nil, fmt.Errorf("withdraw target %q is not a mainchain address", mainchainAddress)
	}
	value, err := parseAmount(amount, false)
	if err != nil {
		return nil, err
	}
	payload := map[string]any{
		"crossChainAddresses": []string{mainchainAddress},
		"crossChainAmounts":   []string{value.String()},
	}
	return w.fundedTx("withdrawFromSideChain", inputs, nil, value, payload, fee, memo)
}

func (w idChainWallet) CreateIDTransaction(inputs, payload json.RawMessage, memo, fee string) (json.RawMessage, error) {
	var shape map[string]json.RawMessage
	if err := json.Unmarshal(payload, &shape); err != nil || shape == nil {
		return nil, errors.New("id payload must be a json object")
	}
	return w.fundedTx("registerIdentification", inputs, nil, new(big.Int), payload, fee, memo)
}

func (w idChainWallet) DIDs(index, count int, internal bool) ([]string, error) {
	return w.derive(didPath, index, count, internal, func(pub ed25519.PublicKey) string { return didOf(pub) })
}

func (w idChainWallet) CIDs(index, count int, internal bool) ([]string, error) {
	return w.derive(didPath, index, count, internal, func(pub ed25519.PublicKey) string { return cidOf(pub) })
}

// DIDSign signs the blake2b-256 hash of message with the key behind did.
func (w idChainWallet) DIDSign(did, message, payPassword string) (string, error) {
	if err := w.alive(); err != nil {
		return "", err
	}
	if w.master.rec.ReadOnly {
		return "", ErrWatchOnly
	}
	internal, index, ok := w.findDID(strings.TrimSpace(did))
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrNoSigningKey, did)
	}
	secret, err := w.master.unlock(payPassword)
	if err != nil {
		return "", err
	}
	defer secret.wipe()
	sum := blake2b.Sum256([]byte(message))
	key := secret.keyring().private(didPath, internal, index)
	return hex.EncodeToString(ed25519.Sign(key, sum[:])), nil
}

func (w idChainWallet) findDID(did string) (bool, int, bool) {
	if w.singleAddress() {
		return false, 0, didOf(w.master.ring.public(didPath, false, 0)) == did
	}
	for i := range keySearchLimit {
		for _, internal := range []bool{false, true} {
			if didOf(w.master.ring.public(didPath, internal, i)) == did {
				return internal, i, true
			}
		}
	}
	return false, 0, false
}

func (w idChainWallet) VerifySignature(publicKey, message, signature string) (bool, error) {
	sum := blake2b.Sum256([]byte(message))
	return verifyHex(publicKey, sum[:], signature)
}

func (w idChainWallet) PublicKeyToDID(publicKey string) (string, error) {
	pub, err := decodePublicKey(publicKey)
	if err != nil {
		return "", err
	}
	return didOf(pub), nil
}

func (w idChainWallet) PublicKeyToCID(publicKey string) (string, error) {
	pub, err := decodePublicKey(publicKey)
	if err != nil {
		return "", err
	}
	return cidOf(pub), nil
}

func (w ethWallet) CreateTransfer(targetAddress, amount string, amountUnit int, gasPrice string, gasPriceUnit int, gasLimit string, nonce uint64) (json.RawMessage, error) {
	if !isETHAddress(targetAddress) {
		return nil, fmt.Errorf("target %q is not an eth address", targetAddress)
	}
	return w.CreateTransferGeneric(targetAddress, amount, amountUnit, gasPrice, gasPriceUnit, gasLimit, "", nonce)
}

// CreateTransferGeneric allows an empty target when data carries a contract
// creation.
func (w ethWallet) CreateTransferGeneric(targetAddress, amount string, amountUnit int, gasPrice string, gasPriceUnit int, gasLimit string, data string, nonce uint64) (json.RawMessage, error) {
	if err := w.alive(); err != nil {
		return nil, err
	}
	data = strings.TrimSpace(data)
	if data != "" {
		if _, err := hex.DecodeString(strings.TrimPrefix(data, "0x")); err != nil {
			return nil, fmt.Errorf("data is not hex: %w", err)
		}
	}
	target := strings.ToLower(strings.TrimSpace(targetAddress))
	if target != "" && !isETHAddress(target) {
		return nil, fmt.Errorf("target %q is not an eth address", targetAddress)
	}
	if target == "" && data == "" {
		return nil, errors.New("target address is required without contract data")
	}
	value, err := scaled(amount, amountUnit, true)
	if err != nil {
		return nil, fmt.Errorf("amount: %w", err)
	}
	price, err := scaled(gasPrice, gasPriceUnit, false)
	if err != nil {
		return nil, fmt.Errorf("gas price: %w", err)
	}
	limit, err := parseAmount(gasLimit, false)
	if err != nil {
		return nil, fmt.Errorf("gas limit: %w", err)
	}
	var outputs []txOutput
	if target != "" && value.Sign() > 0 {
		outputs = []txOutput{{Address: target, Amount: value.String()}}
	}
	payload := map[string]any{
		"to":       target,
		"value":    value.String(),
		"gasPrice": price.String(),
		"gasLimit": limit.String(),
		"nonce":    nonce,
		"data":     data,
	}
	fee := new(big.Int).Mul(price, limit)
	return w.newTx("ethTransfer", nil, outputs, payload, fee.String(), "")
}

func scaled(amount string, unit int, allowZero bool) (*big.Int, error) {
	if unit < 0 || unit > maxETHUnit || unit%3 != 0 {
		return nil, fmt.Errorf("unit %d is not a multiple of 3 between 0 and %d", unit, maxETHUnit)
	}
	v, err := parseAmount(amount, allowZero)
	if err != nil {
		return nil, err
	}
	return v.Mul(v, new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(unit)), nil)), nil
}

func (w ethWallet) ExportPrivateKey(payPassword string) (string, error) {
	if err := w.alive(); err != nil {
		return "", err
	}
	secret, err := w.master.unlock(payPassword)
	if err != nil {
		return "", err
	}
	defer secret.wipe()
	return hex.EncodeToString(secret.keyring().private(w.chainID, false, 0).Seed()), nil
}

func (w btcWallet) LegacyAddresses(index, count int, internal bool) ([]string, error) {
	if w.multiSign() {
		return nil, errors.New("multi-sign wallets have no legacy addresses")
	}
	return w.derive(w.chainID, index, count, internal, func(pub ed25519.PublicKey) string {
		return encodeAddress(prefixBTCLegacy, pub)
	})
}

// CreateBTCTransaction prices the transaction from its estimated size.
func (w btcWallet) CreateBTCTransaction(inputs, outputs json.RawMessage, changeAddress, feePerKB string) (json.RawMessage, error) {
	if err := w.alive(); err != nil {
		return nil, err
	}
	ins, in, err := decodeInputs(inputs, w.kind)
	if err != nil {
		return nil, err
	}
	outs, out, err := decodeOutputs(outputs, w.kind)
	if err != nil {
		return nil, err
	}
	rate, err := parseAmount(feePerKB, false)
	if err != nil {
		return nil, fmt.Errorf("fee per kb: %w", err)
	}
	change := strings.TrimSpace(changeAddress)
	if change == "" {
		change = ins[0].Address
	} else if !addressValidFor(w.kind, change) {
		return nil, fmt.Errorf("change address %q is not a btc address", changeAddress)
	}
	size := int64(btcTxOverhead + btcInputSize*len(ins) + btcOutputSize*(len(outs)+1))
	fee := new(big.Int).Mul(rate, big.NewInt(size))
	fee.Add(fee, big.NewInt(999))
	fee.Quo(fee, big.NewInt(1000))
	outs, err = balance(in, outs, out, fee, change)
	if err != nil {
		return nil, err
	}
	return w.newTx("btcTransfer", ins, outs, nil, fee.String(), "")
}
