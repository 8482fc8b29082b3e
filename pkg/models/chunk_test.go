package models

import (
	"bytes"
	"testing"
)

func TestChunkRoundTrip(t *testing.T) {
	in := []byte("wallet backup bytes\x00\x01")
	out, err := DecodeChunk(EncodeChunk(in))
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if !bytes.Equal(in, out) {
		t.Fatalf("round trip mismatch: %q != %q", out, in)
	}
}

func TestDecodeChunkAcceptsUnpadded(t *testing.T) {
	out, err := DecodeChunk("YWI")
	if err != nil || string(out) != "ab" {
		t.Fatalf("unexpected decode result %q %v", out, err)
	}
	if out, err := DecodeChunk("  "); err != nil || out != nil {
		t.Fatalf("blank chunk must decode to nil, got %q %v", out, err)
	}
	if _, err := DecodeChunk("!!!"); err == nil {
		t.Fatal("invalid base64 must fail")
	}
}
