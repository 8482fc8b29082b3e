package rpc

func rpcParseError() *rpcError {
	return &rpcError{Code: -32700, Message: "parse error"}
}

func rpcInvalidRequest() *rpcError {
	return &rpcError{Code: -32600, Message: "invalid request"}
}

func rpcInternalError() *rpcError {
	return &rpcError{Code: -32603, Message: "internal error"}
}

func rpcUnknownChannel() *rpcError {
	return &rpcError{Code: -32010, Message: "delivery channel is not open"}
}

func rpcIdempotencyConflict() *rpcError {
	return &rpcError{Code: -32090, Message: "idempotency key was used for a different request"}
}
