package rpckit

// Error is the body of a failed envelope. Exception carries the raw fault
// text when the failure came from the wallet engine.
type Error struct {
	Code      int    `json:"code"`
	Message   string `json:"message"`
	Exception string `json:"exception,omitempty"`
}

// FaultCode is reported for unexpected faults that never got classified.
const FaultCode = 20000

func InvalidParams(code int, message string) *Error {
	return &Error{Code: code, Message: message}
}

func ServiceError(code int, err error) *Error {
	return &Error{Code: code, Message: err.Error()}
}
