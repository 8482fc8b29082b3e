package walletcore

import (
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"

	"walletbridge/go-backend/internal/domains/contracts"
)

func rawArgs(t *testing.T, values ...any) []json.RawMessage {
	t.Helper()
	out := make([]json.RawMessage, 0, len(values))
	for _, v := range values {
		if raw, ok := v.(json.RawMessage); ok {
			out = append(out, raw)
			continue
		}
		raw, err := json.Marshal(v)
		if err != nil {
			t.Fatalf("marshal arg: %v", err)
		}
		out = append(out, raw)
	}
	return out
}

func mainchainOf(t *testing.T) (contracts.MainchainSubWallet, contracts.MasterWallet) {
	t.Helper()
	e := openEngine(t, filepath.Join(t.TempDir(), "data"), nil)
	mw := createMnemonicWallet(t, e, "w1")
	return mustSub(t, mw, "ELA").(contracts.MainchainSubWallet), mw
}

func TestGovernanceOwnerKeys(t *testing.T) {
	ela, mw := mainchainOf(t)
	pub, err := ela.Governance("getOwnerPublicKey", nil)
	if err != nil {
		t.Fatalf("owner public key: %v", err)
	}
	if pub.(string) != ownerKeyOf(t, mnemonicA) {
		t.Fatal("owner key must come from the wallet mnemonic")
	}
	owner, _ := ela.Governance("getOwnerAddress", nil)
	deposit, _ := ela.Governance("getOwnerDepositAddress", nil)
	crDeposit, _ := ela.Governance("getCRDepositAddress", nil)
	for _, addr := range []any{owner, deposit, crDeposit} {
		if !mw.IsAddressValid(addr.(string)) {
			t.Fatalf("governance address %v must be valid on the mainchain", addr)
		}
	}
	if deposit == crDeposit || owner == deposit {
		t.Fatal("owner, deposit and CR deposit addresses must differ")
	}
	if _, err := ela.Governance("mintCoins", nil); !errors.Is(err, ErrUnknownGovernance) {
		t.Fatalf("expected ErrUnknownGovernance, got %v", err)
	}
}

func TestGovernanceDigestIgnoresWhitespace(t *testing.T) {
	ela, _ := mainchainOf(t)
	a, err := ela.Governance("calculateProposalHash", []json.RawMessage{json.RawMessage(`{"type":0,"budget":"10"}`)})
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	b, _ := ela.Governance("calculateProposalHash", []json.RawMessage{json.RawMessage("{ \"type\": 0,\n \"budget\": \"10\" }")})
	if a != b {
		t.Fatalf("digest must not depend on formatting: %v != %v", a, b)
	}
	c, _ := ela.Governance("proposalOwnerDigest", []json.RawMessage{json.RawMessage(`{"type":0,"budget":"10"}`)})
	if a == c {
		t.Fatal("digests of different actions must differ")
	}
	if _, err := ela.Governance("proposalOwnerDigest", []json.RawMessage{json.RawMessage(`{bad`)}); err == nil {
		t.Fatal("malformed payload must fail")
	}
}

func TestGovernanceProducerLifecycle(t *testing.T) {
	ela, _ := mainchainOf(t)
	ownerPub, _ := ela.Governance("getOwnerPublicKey", nil)
	node := ownerKeyOf(t, mnemonicB)

	payload, err := ela.Governance("generateProducerPayload", rawArgs(t, ownerPub, node, "node-1", "https://node.example", "127.0.0.1", "0", payPW))
	if err != nil {
		t.Fatalf("producer payload: %v", err)
	}
	fields := payload.(map[string]any)
	if fields["Signature"] == "" || fields["NickName"] != "node-1" {
		t.Fatalf("unexpected payload %v", fields)
	}
	if _, err := ela.Governance("generateProducerPayload", rawArgs(t, node, node, "n", "u", "ip", "0", payPW)); err == nil {
		t.Fatal("a foreign owner key must be rejected")
	}

	addrs, _ := ela.Addresses(0, 1, false)
	payloadJSON, _ := json.Marshal(payload)
	tx, err := ela.Governance("createRegisterProducerTransaction", rawArgs(t, utxo(addrs[0], "600000"), json.RawMessage(payloadJSON), "500000", "100", ""))
	if err != nil {
		t.Fatalf("register tx: %v", err)
	}
	doc := decodeDoc(t, tx.(json.RawMessage))
	deposit, _ := ela.Governance("getOwnerDepositAddress", nil)
	if doc.Type != "registerProducer" || doc.Outputs[0].Address != deposit || doc.Outputs[0].Amount != "500000" {
		t.Fatalf("unexpected register tx %+v", doc)
	}

	vote, err := ela.Governance("createVoteTransaction", rawArgs(t, utxo(addrs[0], "1000"), `[{"Type":0,"Candidates":{}}]`, "10", "vote"))
	if err != nil {
		t.Fatalf("vote tx: %v", err)
	}
	if doc := decodeDoc(t, vote.(json.RawMessage)); doc.Type != "vote" || doc.Outputs[0].Amount != "990" {
		t.Fatalf("unexpected vote tx %+v", doc)
	}

	retrieve, err := ela.Governance("createRetrieveDepositTransaction", rawArgs(t, utxo(deposit.(string), "500000"), "499990", "10", ""))
	if err != nil {
		t.Fatalf("retrieve tx: %v", err)
	}
	owner, _ := ela.Governance("getOwnerAddress", nil)
	if doc := decodeDoc(t, retrieve.(json.RawMessage)); doc.Outputs[0].Address != owner || len(doc.Outputs) != 1 {
		t.Fatalf("unexpected retrieve tx %+v", doc)
	}
}

func TestGovernanceCRAndDeposit(t *testing.T) {
	ela, _ := mainchainOf(t)
	crPub := ownerKeyOf(t, mnemonicB)
	info, err := ela.Governance("generateCRInfoPayload", rawArgs(t, crPub, "did:elastos:x", "cr", "https://cr.example", "0"))
	if err != nil {
		t.Fatalf("cr info: %v", err)
	}
	cid := info.(map[string]any)["CID"].(string)
	if len(info.(map[string]any)["Digest"].(string)) != 64 {
		t.Fatalf("cr info must carry a digest: %v", info)
	}
	if _, err := ela.Governance("generateUnregisterCRPayload", rawArgs(t, cid)); err != nil {
		t.Fatalf("unregister payload: %v", err)
	}
	if _, err := ela.Governance("generateUnregisterCRPayload", rawArgs(t, "did:elastos:x")); err == nil {
		t.Fatal("a did is not a cid")
	}

	addrs, _ := ela.Addresses(0, 2, false)
	args := rawArgs(t, 1, utxo(addrs[0], "1000"), "IDChain", "400", addrs[1], addrs[1], "10", "")
	tx, err := ela.Governance("createDepositTransaction", args)
	if err != nil {
		t.Fatalf("deposit tx: %v", err)
	}
	if doc := decodeDoc(t, tx.(json.RawMessage)); doc.Type != "transferCrossChainAsset" || doc.Outputs[0].Amount != "400" || doc.Outputs[1].Amount != "590" {
		t.Fatalf("unexpected deposit tx %+v", doc)
	}
	bad := rawArgs(t, 1, utxo(addrs[0], "1000"), "ELA", "400", addrs[1], addrs[1], "10", "")
	if _, err := ela.Governance("createDepositTransaction", bad); err == nil {
		t.Fatal("depositing into the mainchain must fail")
	}
}
