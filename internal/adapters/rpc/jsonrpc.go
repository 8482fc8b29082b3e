package rpc

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	walletrpc "walletbridge/go-backend/internal/domains/wallet/adapters/rpc"
)

type rpcRequest struct {
	JSONRPC    string          `json:"jsonrpc"`
	ID         json.RawMessage `json:"id"`
	Method     string          `json:"method"`
	Params     json.RawMessage `json:"params"`
	APIVersion *int            `json:"api_version,omitempty"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// rpcResponse carries the wallet envelope as result. Wallet failures are
// envelope errors; the JSON-RPC error member is reserved for transport
// failures.
type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
}

const maxRPCBodyBytes int64 = 1 << 20 // 1 MiB

func (s *Server) handleRPC(w http.ResponseWriter, r *http.Request) {
	if !s.admit(w, r, http.MethodPost, true) {
		return
	}
	client := clientKey(r, extractRPCToken(r))
	if !s.rpcLimiter.Allow(client, time.Now()) {
		s.observer.RequestRejected("rate_limited")
		http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxRPCBodyBytes)
	var req rpcRequest
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(&req); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			s.observer.RequestRejected("body_too_large")
			http.Error(w, "request body too large", http.StatusRequestEntityTooLarge)
			return
		}
		writeRPC(w, rpcResponse{JSONRPC: "2.0", Error: rpcParseError()})
		return
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		writeRPC(w, rpcResponse{JSONRPC: "2.0", ID: req.ID, Error: rpcInvalidRequest()})
		return
	}
	if req.JSONRPC != "2.0" || req.Method == "" {
		writeRPC(w, rpcResponse{JSONRPC: "2.0", ID: req.ID, Error: rpcInvalidRequest()})
		return
	}
	if rpcErr := checkAPIVersion(req.APIVersion); rpcErr != nil {
		writeRPC(w, rpcResponse{JSONRPC: "2.0", ID: req.ID, Error: rpcErr})
		return
	}

	cacheKey := replayKey(r.Header.Get(rpcIdempotencyHeader), client)
	requestHash := ""
	if cacheKey != "" {
		requestHash = requestFingerprint(req)
		cached, hit, conflict := s.idempotency.lookup(cacheKey, requestHash, time.Now())
		if conflict {
			writeRPC(w, rpcResponse{JSONRPC: "2.0", ID: req.ID, Error: rpcIdempotencyConflict()})
			return
		}
		if hit {
			cached.ID = req.ID
			writeRPC(w, cached)
			return
		}
	}

	caller := walletrpc.Caller{CorrelationID: strings.TrimSpace(r.Header.Get(rpcRequestHeader))}
	if caller.CorrelationID == "" {
		caller.CorrelationID = "rpc_" + uuid.NewString()
	}
	if channelID := strings.TrimSpace(r.Header.Get(rpcChannelHeader)); channelID != "" {
		ch, ok := s.channels.get(channelID)
		if !ok {
			writeRPC(w, rpcResponse{JSONRPC: "2.0", ID: req.ID, Error: rpcUnknownChannel()})
			return
		}
		caller.Delivery = ch
	}

	started := time.Now()
	result := s.dispatcher.Dispatch(r.Context(), req.Method, req.Params, caller)
	raw, err := json.Marshal(result)
	if err != nil {
		s.logger.Error("encode wallet result failed", "operation", req.Method, "correlation_id", caller.CorrelationID, "error", err.Error())
		writeRPC(w, rpcResponse{JSONRPC: "2.0", ID: req.ID, Error: rpcInternalError()})
		return
	}
	s.logger.Debug("rpc response", "operation", req.Method, "correlation_id", caller.CorrelationID, "rpc_code", result.Code(), "latency_ms", time.Since(started).Milliseconds())

	resp := rpcResponse{JSONRPC: "2.0", ID: req.ID, Result: raw}
	if cacheKey != "" {
		s.idempotency.store(cacheKey, requestHash, resp, time.Now())
	}
	writeRPC(w, resp)
}

func writeRPC(w http.ResponseWriter, resp rpcResponse) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}
