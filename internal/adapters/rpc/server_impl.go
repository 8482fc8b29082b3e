package rpc

import (
	"crypto/subtle"
	"encoding/json"
	"net"
	"net/http"
	"net/url"
	"strings"
)

const (
	rpcTokenHeader   = "X-Wallet-RPC-Token"
	rpcChannelHeader = "X-Wallet-Channel"
	rpcRequestHeader = "X-Request-ID"
)

var corsAllowedHeaders = strings.Join([]string{
	"Content-Type", "Accept", "Authorization",
	rpcTokenHeader, rpcChannelHeader, rpcRequestHeader, rpcIdempotencyHeader,
}, ", ")

// admit runs the checks shared by every route: origin, preflight, token
// and method. It writes the rejection itself and reports whether the
// handler should continue.
func (s *Server) admit(w http.ResponseWriter, r *http.Request, method string, auth bool) bool {
	origin := strings.TrimSpace(r.Header.Get("Origin"))
	if origin != "" && !isLocalOrigin(origin) {
		s.observer.RequestRejected("origin")
		http.Error(w, "origin is not allowed", http.StatusForbidden)
		return false
	}
	h := w.Header()
	if origin != "" {
		h.Set("Access-Control-Allow-Origin", origin)
	}
	h.Set("Vary", "Origin")
	h.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
	h.Set("Access-Control-Allow-Headers", corsAllowedHeaders)
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusNoContent)
		return false
	}
	if auth && !s.tokenMatches(r) {
		s.observer.RequestRejected("unauthorized")
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return false
	}
	if r.Method != method {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return false
	}
	return true
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if !s.admit(w, r, http.MethodGet, false) {
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(struct {
		Status  string         `json:"status"`
		Version string         `json:"version"`
		API     apiVersionInfo `json:"api"`
	}{"ok", s.version, currentAPIVersions()})
}

// guard puts the shared checks in front of a GET-only handler.
func (s *Server) guard(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.admit(w, r, http.MethodGet, true) {
			next.ServeHTTP(w, r)
		}
	})
}

func (s *Server) tokenMatches(r *http.Request) bool {
	if s.rpcToken == "" {
		return true
	}
	return subtle.ConstantTimeCompare([]byte(extractRPCToken(r)), []byte(s.rpcToken)) == 1
}

func extractRPCToken(r *http.Request) string {
	if token := strings.TrimSpace(r.Header.Get(rpcTokenHeader)); token != "" {
		return token
	}
	auth := strings.TrimSpace(r.Header.Get("Authorization"))
	const bearer = "bearer "
	if len(auth) > len(bearer) && strings.EqualFold(auth[:len(bearer)], bearer) {
		return strings.TrimSpace(auth[len(bearer):])
	}
	return ""
}

// isLocalOrigin admits browser pages served from this machine only.
func isLocalOrigin(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	host := u.Hostname()
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
