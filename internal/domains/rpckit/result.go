package rpckit

import (
	"encoding/json"
	"errors"
)

// Kind tags the variant held by a Result.
type Kind uint8

const (
	KindSuccess Kind = iota + 1
	KindDomainError
	KindFault
)

func (k Kind) String() string {
	switch k {
	case KindSuccess:
		return "success"
	case KindDomainError:
		return "domain_error"
	case KindFault:
		return "fault"
	default:
		return "unknown"
	}
}

// Result is the uniform outcome of one command or one listener event.
// The zero value is not a valid result; use the constructors.
type Result struct {
	kind  Kind
	value any
	err   Error
}

func Success(value any) Result {
	return Result{kind: KindSuccess, value: value}
}

func DomainError(code int, message string) Result {
	return Result{kind: KindDomainError, err: Error{Code: code, Message: message}}
}

func DomainErrorWithException(code int, message, exception string) Result {
	return Result{kind: KindDomainError, err: Error{Code: code, Message: message, Exception: exception}}
}

// Fault reports an unexpected failure, e.g. a recovered panic.
func Fault(message string) Result {
	return Result{kind: KindFault, err: Error{Code: FaultCode, Message: "unexpected fault", Exception: message}}
}

func FromError(e *Error) Result {
	if e == nil {
		return Success(nil)
	}
	return Result{kind: KindDomainError, err: *e}
}

func (r Result) Kind() Kind { return r.kind }

func (r Result) OK() bool { return r.kind == KindSuccess }

func (r Result) Value() any { return r.value }

// Code returns 0 for successful results.
func (r Result) Code() int {
	if r.kind == KindSuccess {
		return 0
	}
	return r.err.Code
}

func (r Result) Message() string { return r.err.Message }

func (r Result) Exception() string { return r.err.Exception }

// Err returns a copy of the error body, nil on success.
func (r Result) Err() *Error {
	if r.kind == KindSuccess || r.kind == 0 {
		return nil
	}
	e := r.err
	return &e
}

type wireResult struct {
	Success *json.RawMessage `json:"success,omitempty"`
	Error   *Error           `json:"error,omitempty"`
}

var nullValue = json.RawMessage("null")

func (r Result) MarshalJSON() ([]byte, error) {
	switch r.kind {
	case KindSuccess:
		raw, err := json.Marshal(r.value)
		if err != nil {
			return nil, err
		}
		msg := json.RawMessage(raw)
		return json.Marshal(wireResult{Success: &msg})
	case KindDomainError, KindFault:
		e := r.err
		return json.Marshal(wireResult{Error: &e})
	default:
		return nil, errors.New("rpckit: marshal of empty result")
	}
}

// UnmarshalJSON decodes the wire shape back; the success value is kept as
// json.RawMessage. Faults come back as domain errors with FaultCode.
func (r *Result) UnmarshalJSON(data []byte) error {
	var wire wireResult
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	switch {
	case wire.Error != nil:
		*r = Result{kind: KindDomainError, err: *wire.Error}
	case wire.Success != nil:
		*r = Result{kind: KindSuccess, value: *wire.Success}
	default:
		var shape map[string]json.RawMessage
		if err := json.Unmarshal(data, &shape); err != nil {
			return err
		}
		if _, ok := shape["success"]; ok {
			*r = Result{kind: KindSuccess, value: nullValue}
			return nil
		}
		return errors.New("rpckit: envelope has neither success nor error")
	}
	return nil
}

// Notification is a deferred result raised by a listener subscription.
type Notification struct {
	SubscriptionID string `json:"subscriptionID"`
	MasterWalletID string `json:"masterWalletID"`
	ChainID        string `json:"chainID"`
	Result         Result `json:"result"`
}
