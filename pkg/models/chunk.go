package models

import (
	"encoding/base64"
	"strings"
)

// EncodeChunk renders backup bytes for the wire.
func EncodeChunk(chunk []byte) string {
	if len(chunk) == 0 {
		return ""
	}
	return base64.StdEncoding.EncodeToString(chunk)
}

// DecodeChunk accepts padded or unpadded standard base64.
func DecodeChunk(raw string) ([]byte, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	if strings.HasSuffix(raw, "=") || len(raw)%4 == 0 {
		return base64.StdEncoding.DecodeString(raw)
	}
	return base64.RawStdEncoding.DecodeString(raw)
}
