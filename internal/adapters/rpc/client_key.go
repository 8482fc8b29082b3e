package rpc

import (
	"crypto/sha256"
	"encoding/hex"
	"net"
	"net/http"
	"strings"
)

// clientKey identifies the caller for rate and stream limits. Token holders
// share one bucket whatever their address; anonymous loopback callers are
// told apart by host.
func clientKey(r *http.Request, token string) string {
	if token = strings.TrimSpace(token); token != "" {
		sum := sha256.Sum256([]byte(token))
		return "token:" + hex.EncodeToString(sum[:8])
	}
	host, _, err := net.SplitHostPort(strings.TrimSpace(r.RemoteAddr))
	if err != nil {
		host = strings.TrimSpace(r.RemoteAddr)
	}
	if host == "" {
		return "ip:unknown"
	}
	return "ip:" + host
}
