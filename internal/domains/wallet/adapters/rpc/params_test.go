package rpc

import (
	"encoding/json"
	"errors"
	"testing"

	"walletbridge/go-backend/internal/domains/contracts"
)

type sampleArgs struct {
	ID    string
	Count int
	Doc   jsonArg
	Keys  stringList
}

func (p *sampleArgs) params() []param {
	return []param{
		required("id", &p.ID),
		required("count", &p.Count),
		required("doc", &p.Doc),
		optional("keys", &p.Keys),
	}
}

type pairArgs struct {
	A, B string
}

func (p *pairArgs) params() []param {
	return []param{required("a", &p.A), required("b", &p.B)}
}

func codeOf(t *testing.T, err error) contracts.ErrorCode {
	t.Helper()
	var explicit *contracts.Error
	if !errors.As(err, &explicit) {
		t.Fatalf("expected *contracts.Error, got %T %v", err, err)
	}
	return explicit.Code
}

func TestDecodeParamsPositional(t *testing.T) {
	var p sampleArgs
	if err := decodeParams("sample", json.RawMessage(`["m1", 3, {"a":1}]`), &p); err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if p.ID != "m1" || p.Count != 3 || string(p.Doc) != `{"a":1}` || p.Keys != nil {
		t.Fatalf("unexpected decode %+v", p)
	}
	if err := decodeParams("sample", json.RawMessage(`["m1", 3, "{\"a\":2}", "[\"k1\",\"k2\"]"]`), &p); err != nil {
		t.Fatalf("decode of string-wrapped json failed: %v", err)
	}
	if string(p.Doc) != `{"a":2}` || len(p.Keys) != 2 || p.Keys[1] != "k2" {
		t.Fatalf("unexpected decode %+v", p)
	}
}

func TestDecodeParamsNamed(t *testing.T) {
	var p sampleArgs
	if err := decodeParams("sample", json.RawMessage(`{"id":"m1","count":1,"doc":[1,2],"keys":null}`), &p); err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if p.ID != "m1" || string(p.Doc) != `[1,2]` {
		t.Fatalf("unexpected decode %+v", p)
	}
	err := decodeParams("sample", json.RawMessage(`{"id":"m1","doc":{}}`), &p)
	if codeOf(t, err) != contracts.CodeInvalidArg {
		t.Fatalf("missing field must be InvalidArg, got %v", err)
	}
}

func TestDecodeParamsFailures(t *testing.T) {
	cases := []struct {
		name string
		raw  string
		want contracts.ErrorCode
	}{
		{"malformed", `["m1", 3`, contracts.CodeParseJSONInAction},
		{"wrong type", `["m1", "three", {}]`, contracts.CodeParseJSONInAction},
		{"not json in string", `["m1", 3, "not json"]`, contracts.CodeParseJSONInAction},
		{"scalar bag", `"m1"`, contracts.CodeParseJSONInAction},
		{"too few", `["m1"]`, contracts.CodeInvalidArg},
		{"too many", `["m1", 3, {}, [], 5]`, contracts.CodeInvalidArg},
		{"null required", `["m1", null, {}]`, contracts.CodeInvalidArg},
	}
	for _, tc := range cases {
		var p sampleArgs
		err := decodeParams("sample", json.RawMessage(tc.raw), &p)
		if got := codeOf(t, err); got != tc.want {
			t.Fatalf("%s: got code %d want %d (%v)", tc.name, got, tc.want, err)
		}
	}
}

func TestDecodeParamsArityMessage(t *testing.T) {
	var p pairArgs
	err := decodeParams("pair", json.RawMessage(`["x"]`), &p)
	if err == nil || err.Error() != "2 parameters are expected" {
		t.Fatalf("unexpected arity error %v", err)
	}
	var none noArgs
	if err := decodeParams("none", nil, &none); err != nil {
		t.Fatalf("empty bag must decode into an empty struct: %v", err)
	}
	if err := decodeParams("none", json.RawMessage(`["extra"]`), &none); err == nil || err.Error() != "0 parameters are expected" {
		t.Fatalf("unexpected arity error for a no-argument command: %v", err)
	}
}

func TestDecodeGovernanceArgs(t *testing.T) {
	master, chain, args, err := decodeGovernanceArgs("createVoteTransaction", json.RawMessage(`["m1","ELA",{"v":1},"1","fee","memo"]`), 4)
	if err != nil || master != "m1" || chain != "ELA" || len(args) != 4 {
		t.Fatalf("unexpected decode %q %q %d %v", master, chain, len(args), err)
	}
	_, _, args, err = decodeGovernanceArgs("getOwnerAddress", json.RawMessage(`{"masterWalletID":"m1","chainID":"ELA"}`), 0)
	if err != nil || len(args) != 0 {
		t.Fatalf("named form failed: %d %v", len(args), err)
	}
	_, _, _, err = decodeGovernanceArgs("createVoteTransaction", json.RawMessage(`["m1","ELA"]`), 4)
	if codeOf(t, err) != contracts.CodeInvalidArg {
		t.Fatalf("wrong arity must be InvalidArg, got %v", err)
	}
	_, _, _, err = decodeGovernanceArgs("getOwnerAddress", json.RawMessage(`[1,"ELA"]`), 0)
	if codeOf(t, err) != contracts.CodeParseJSONInAction {
		t.Fatalf("non-string id must be a parse error, got %v", err)
	}
}
