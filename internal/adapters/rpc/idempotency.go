package rpc

import (
	"container/list"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"strings"
	"sync"
	"time"
)

const (
	rpcIdempotencyHeader = "X-Wallet-Idempotency-Key"
	replayTTL            = 10 * time.Minute
	replayCapacity       = 1024
)

type replayEntry struct {
	key         string
	requestHash string
	response    rpcResponse
	storedAt    time.Time
}

// replayCache remembers responses by idempotency key so a host retrying
// publishTransaction or a creation command gets the first answer back
// instead of a second execution. Entries sit in insertion order; the front
// is the oldest.
type replayCache struct {
	mu      sync.Mutex
	order   *list.List
	entries map[string]*list.Element
}

func newReplayCache() *replayCache {
	return &replayCache{order: list.New(), entries: make(map[string]*list.Element)}
}

// lookup reports a stored response for key. conflict is set when key was
// used with a different request.
func (c *replayCache) lookup(key, requestHash string, now time.Time) (resp rpcResponse, hit, conflict bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.expire(now)
	el, ok := c.entries[key]
	if !ok {
		return rpcResponse{}, false, false
	}
	entry := el.Value.(*replayEntry)
	if entry.requestHash != requestHash {
		return rpcResponse{}, false, true
	}
	return entry.response, true, false
}

func (c *replayCache) store(key, requestHash string, resp rpcResponse, now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.expire(now)
	if el, ok := c.entries[key]; ok {
		c.order.Remove(el)
	}
	c.entries[key] = c.order.PushBack(&replayEntry{key: key, requestHash: requestHash, response: resp, storedAt: now})
	for c.order.Len() > replayCapacity {
		c.drop(c.order.Front())
	}
}

func (c *replayCache) expire(now time.Time) {
	for el := c.order.Front(); el != nil; el = c.order.Front() {
		if now.Sub(el.Value.(*replayEntry).storedAt) <= replayTTL {
			return
		}
		c.drop(el)
	}
}

func (c *replayCache) drop(el *list.Element) {
	delete(c.entries, el.Value.(*replayEntry).key)
	c.order.Remove(el)
}

// replayKey scopes a host-chosen key to the caller so two clients cannot
// read each other's responses.
func replayKey(header, client string) string {
	header = strings.TrimSpace(header)
	if header == "" {
		return ""
	}
	return client + "|" + header
}

func requestFingerprint(req rpcRequest) string {
	h := sha256.New()
	h.Write([]byte(req.Method))
	h.Write([]byte{0})
	h.Write(req.Params)
	var version [8]byte
	if req.APIVersion != nil {
		binary.BigEndian.PutUint64(version[:], uint64(*req.APIVersion))
	}
	h.Write(version[:])
	return hex.EncodeToString(h.Sum(nil))
}
