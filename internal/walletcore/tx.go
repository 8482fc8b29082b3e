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

const txVersion = 9

var (
	ErrAlreadySigned    = errors.New("transaction already carries this signature")
	ErrNotEnoughSigners = errors.New("transaction does not carry enough signatures")
	ErrAlreadyPublished = errors.New("transaction already published")
	ErrInsufficientFund = errors.New("inputs do not cover outputs and fee")
)

type txInput struct {
	TxHash  string `json:"txHash,omitempty"`
	Index   int    `json:"index"`
	Address string `json:"address"`
	Amount  string `json:"amount"`
}

type txOutput struct {
	Address string `json:"address"`
	Amount  string `json:"amount"`
}

type txSignature struct {
	PublicKey string `json:"publicKey"`
	Signature string `json:"signature"`
}

// txDocument is the unsigned-or-partially-signed transaction handed back to
// the host. The digest covers every field except Signatures.
type txDocument struct {
	Version    int             `json:"version"`
	Type       string          `json:"type"`
	ChainID    string          `json:"chainID"`
	Network    string          `json:"network"`
	Inputs     []txInput       `json:"inputs"`
	Outputs    []txOutput      `json:"outputs"`
	Payload    json.RawMessage `json:"payload,omitempty"`
	Fee        string          `json:"fee"`
	Memo       string          `json:"memo,omitempty"`
	M          int             `json:"m"`
	Signers    []string        `json:"signers,omitempty"`
	Signatures []txSignature   `json:"signatures,omitempty"`
}

func decodeTx(raw json.RawMessage, chainID string) (txDocument, error) {
	var doc txDocument
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&doc); err != nil {
		return txDocument{}, fmt.Errorf("decode transaction: %w", err)
	}
	if doc.Version != txVersion || doc.Type == "" {
		return txDocument{}, errors.New("transaction header is not recognized")
	}
	if doc.ChainID != chainID {
		return txDocument{}, fmt.Errorf("transaction belongs to %s, not %s", doc.ChainID, chainID)
	}
	return doc, nil
}

func (d txDocument) encode() (json.RawMessage, error) {
	if len(d.Payload) > 0 {
		var buf bytes.Buffer
		if err := json.Compact(&buf, d.Payload); err != nil {
			return nil, fmt.Errorf("payload: %w", err)
		}
		d.Payload = buf.Bytes()
	}
	return json.Marshal(d)
}

func (d txDocument) digest() ([]byte, error) {
	d.Signatures = nil
	raw, err := d.encode()
	if err != nil {
		return nil, err
	}
	sum := blake2b.Sum256(raw)
	return sum[:], nil
}

func (d txDocument) txID() (string, error) {
	raw, err := d.encode()
	if err != nil {
		return "", err
	}
	sum := blake2b.Sum256(raw)
	return hex.EncodeToString(sum[:]), nil
}

func (d txDocument) signedBy(publicKey string) bool {
	for _, sig := range d.Signatures {
		if sig.PublicKey == publicKey {
			return true
		}
	}
	return false
}

// validSigners returns the distinct keys whose signatures verify.
func (d txDocument) validSigners() ([]string, error) {
	digest, err := d.digest()
	if err != nil {
		return nil, err
	}
	var out []string
	for _, sig := range d.Signatures {
		pub, err := decodePublicKey(sig.PublicKey)
		if err != nil {
			continue
		}
		raw, err := hex.DecodeString(sig.Signature)
		if err != nil || !ed25519.Verify(pub, digest, raw) {
			continue
		}
		out = appendUnique(out, sig.PublicKey)
	}
	return out, nil
}

func parseAmount(s string, allowZero bool) (*big.Int, error) {
	s = strings.TrimSpace(s)
	if s == "" && allowZero {
		return new(big.Int), nil
	}
	v, ok := new(big.Int).SetString(s, 10)
	if !ok || v.Sign() < 0 || (!allowZero && v.Sign() == 0) {
		return nil, fmt.Errorf("amount %q must be a positive integer", s)
	}
	return v, nil
}

func decodeInputs(raw json.RawMessage, kind domain.ChainKind) ([]txInput, *big.Int, error) {
	var inputs []txInput
	if err := json.Unmarshal(raw, &inputs); err != nil {
		return nil, nil, fmt.Errorf("inputs must be an array of utxos: %w", err)
	}
	if len(inputs) == 0 {
		return nil, nil, errors.New("inputs are empty")
	}
	total := new(big.Int)
	for i, in := range inputs {
		if !addressValidFor(kind, in.Address) {
			return nil, nil, fmt.Errorf("input %d address %q is not valid on this chain", i, in.Address)
		}
		v, err := parseAmount(in.Amount, false)
		if err != nil {
			return nil, nil, fmt.Errorf("input %d: %w", i, err)
		}
		total.Add(total, v)
	}
	return inputs, total, nil
}

func decodeOutputs(raw json.RawMessage, kind domain.ChainKind) ([]txOutput, *big.Int, error) {
	var outputs []txOutput
	if err := json.Unmarshal(raw, &outputs); err != nil {
		return nil, nil, fmt.Errorf("outputs must be an array of {address, amount}: %w", err)
	}
	if len(outputs) == 0 {
		return nil, nil, errors.New("outputs are empty")
	}
	total := new(big.Int)
	for i, out := range outputs {
		if !addressValidFor(kind, out.Address) {
			return nil, nil, fmt.Errorf("output %d address %q is not valid on this chain", i, out.Address)
		}
		v, err := parseAmount(out.Amount, false)
		if err != nil {
			return nil, nil, fmt.Errorf("output %d: %w", i, err)
		}
		total.Add(total, v)
	}
	return outputs, total, nil
}

// balance appends a change output when the inputs exceed what is spent.
func balance(in *big.Int, outputs []txOutput, out, fee *big.Int, changeAddress string) ([]txOutput, error) {
	spent := new(big.Int).Add(out, fee)
	change := new(big.Int).Sub(in, spent)
	switch change.Sign() {
	case -1:
		return nil, ErrInsufficientFund
	case 1:
		outputs = append(outputs, txOutput{Address: changeAddress, Amount: change.String()})
	}
	return outputs, nil
}

func normalizeFee(fee string) (string, *big.Int, error) {
	v, err := parseAmount(fee, true)
	if err != nil {
		return "", nil, fmt.Errorf("fee: %w", err)
	}
	return v.String(), v, nil
}

func signedInfo(d txDocument) (any, error) {
	signers, err := d.validSigners()
	if err != nil {
		return nil, err
	}
	if signers == nil {
		signers = []string{}
	}
	kind := "Standard"
	if len(d.Signers) > 1 {
		kind = "MultiSign"
	}
	return []map[string]any{{
		"SignType": kind,
		"M":        d.M,
		"N":        max(len(d.Signers), 1),
		"Signers":  signers,
	}}, nil
}

func decodeDigest(digest string) ([]byte, error) {
	raw, err := hex.DecodeString(strings.TrimSpace(digest))
	if err != nil || len(raw) != blake2b.Size256 {
		return nil, errors.New("digest must be 32 hex-encoded bytes")
	}
	return raw, nil
}

func verifyHex(publicKey string, message []byte, signature string) (bool, error) {
	pub, err := decodePublicKey(publicKey)
	if err != nil {
		return false, err
	}
	sig, err := hex.DecodeString(strings.TrimSpace(signature))
	if err != nil || len(sig) != ed25519.SignatureSize {
		return false, errors.New("signature must be 64 hex-encoded bytes")
	}
	return ed25519.Verify(pub, message, sig), nil
}
