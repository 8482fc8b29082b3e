package rpc

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"walletbridge/go-backend/internal/domains/contracts"
)

var (
	nullJSON   = []byte("null")
	emptyArray = json.RawMessage("[]")
)

// param binds one argument to its destination. The order of a params list
// is the positional order; name is the key in the named form.
type param struct {
	name     string
	dst      any
	optional bool
}

func required(name string, dst any) param { return param{name: name, dst: dst} }

// optional arguments may be omitted or null.
func optional(name string, dst any) param { return param{name: name, dst: dst, optional: true} }

type paramList interface {
	params() []param
}

// paramsOf is satisfied by *P for every argument struct P.
type paramsOf[P any] interface {
	*P
	paramList
}

// noArgs is the argument bag of commands that take no arguments.
type noArgs struct{}

func (*noArgs) params() []param { return nil }

// decodeParams fills dst from either a positional JSON array or an object
// keyed by the parameter names.
func decodeParams(action string, raw json.RawMessage, dst paramList) error {
	list := dst.params()
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, nullJSON) {
		raw = emptyArray
	}
	switch raw[0] {
	case '[':
		return decodePositionalParams(action, raw, list)
	case '{':
		return decodeNamedParams(action, raw, list)
	default:
		return parseError(action, errors.New("arguments must be an array or an object"))
	}
}

func decodePositionalParams(action string, raw json.RawMessage, list []param) error {
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return parseError(action, err)
	}
	minimum := 0
	for _, p := range list {
		if !p.optional {
			minimum++
		}
	}
	if len(items) < minimum || len(items) > len(list) {
		return arityError(minimum, len(list))
	}
	for i, item := range items {
		if err := assignParam(action, list[i], item); err != nil {
			return err
		}
	}
	return nil
}

func decodeNamedParams(action string, raw json.RawMessage, list []param) error {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil {
		return parseError(action, err)
	}
	for _, p := range list {
		item, ok := obj[p.name]
		if !ok {
			if p.optional {
				continue
			}
			return contracts.NewError(contracts.CodeInvalidArg, fmt.Sprintf("Parameter '%s' is missing in action '%s'", p.name, action))
		}
		if err := assignParam(action, p, item); err != nil {
			return err
		}
	}
	return nil
}

func assignParam(action string, p param, item json.RawMessage) error {
	if bytes.Equal(bytes.TrimSpace(item), nullJSON) {
		if p.optional {
			return nil
		}
		return contracts.NewError(contracts.CodeInvalidArg, fmt.Sprintf("Parameters contain 'null' value in action '%s'", action))
	}
	if err := json.Unmarshal(item, p.dst); err != nil {
		return parseError(action, fmt.Errorf("%s: %w", p.name, err))
	}
	return nil
}

func parseError(action string, err error) error {
	return contracts.WrapError(contracts.CodeParseJSONInAction, fmt.Sprintf("Parse json in action '%s' failed", action), err)
}

func arityError(required, total int) error {
	if required == total {
		return contracts.NewError(contracts.CodeInvalidArg, fmt.Sprintf("%d parameters are expected", required))
	}
	return contracts.NewError(contracts.CodeInvalidArg, fmt.Sprintf("%d to %d parameters are expected", required, total))
}

// jsonArg holds a JSON document passed either inline or wrapped in a
// string, the way hosts often forward transactions and payloads.
type jsonArg json.RawMessage

func (a *jsonArg) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		if strings.TrimSpace(s) == "" {
			*a = nil
			return nil
		}
		if !json.Valid([]byte(s)) {
			return errors.New("string does not hold a JSON document")
		}
		*a = jsonArg(s)
		return nil
	}
	*a = append(jsonArg(nil), data...)
	return nil
}

func (a jsonArg) raw() json.RawMessage { return json.RawMessage(a) }

// stringList is a JSON array of strings, inline or wrapped in a string.
type stringList []string

func (l *stringList) UnmarshalJSON(data []byte) error {
	var doc jsonArg
	if err := doc.UnmarshalJSON(data); err != nil {
		return err
	}
	if len(doc) == 0 {
		*l = nil
		return nil
	}
	var out []string
	if err := json.Unmarshal(doc, &out); err != nil {
		return err
	}
	*l = out
	return nil
}

// decodeGovernanceArgs reads [masterWalletID, chainID, args...] with exactly
// arity pass-through arguments, or the named form
// {"masterWalletID": ..., "chainID": ..., "args": [...]}.
func decodeGovernanceArgs(action string, raw json.RawMessage, arity int) (string, string, []json.RawMessage, error) {
	raw = bytes.TrimSpace(raw)
	var items []json.RawMessage
	switch {
	case len(raw) > 0 && raw[0] == '{':
		var named struct {
			MasterWalletID json.RawMessage   `json:"masterWalletID"`
			ChainID        json.RawMessage   `json:"chainID"`
			Args           []json.RawMessage `json:"args"`
		}
		if err := json.Unmarshal(raw, &named); err != nil {
			return "", "", nil, parseError(action, err)
		}
		items = append([]json.RawMessage{named.MasterWalletID, named.ChainID}, named.Args...)
	case len(raw) > 0 && raw[0] == '[':
		if err := json.Unmarshal(raw, &items); err != nil {
			return "", "", nil, parseError(action, err)
		}
	default:
		return "", "", nil, parseError(action, errors.New("arguments must be an array or an object"))
	}
	if len(items) != arity+2 {
		return "", "", nil, arityError(arity+2, arity+2)
	}
	for _, item := range items {
		if len(item) == 0 || bytes.Equal(bytes.TrimSpace(item), nullJSON) {
			return "", "", nil, contracts.NewError(contracts.CodeInvalidArg, fmt.Sprintf("Parameters contain 'null' value in action '%s'", action))
		}
	}
	var masterID, chainID string
	if err := json.Unmarshal(items[0], &masterID); err != nil {
		return "", "", nil, parseError(action, fmt.Errorf("masterWalletID: %w", err))
	}
	if err := json.Unmarshal(items[1], &chainID); err != nil {
		return "", "", nil, parseError(action, fmt.Errorf("chainID: %w", err))
	}
	return masterID, chainID, items[2:], nil
}
