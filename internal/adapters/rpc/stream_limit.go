package rpc

import (
	"sync"

	"golang.org/x/sync/semaphore"
)

const (
	defaultStreamMaxGlobal    = 64
	defaultStreamMaxPerClient = 4
)

// streamLimiter caps open delivery streams globally and per client.
type streamLimiter struct {
	global    *semaphore.Weighted
	perClient int

	mu   sync.Mutex
	open map[string]int
}

func newStreamLimiter(maxGlobal, maxPerClient int) *streamLimiter {
	if maxGlobal <= 0 {
		maxGlobal = defaultStreamMaxGlobal
	}
	if maxPerClient <= 0 {
		maxPerClient = defaultStreamMaxPerClient
	}
	return &streamLimiter{
		global:    semaphore.NewWeighted(int64(maxGlobal)),
		perClient: maxPerClient,
		open:      make(map[string]int),
	}
}

// acquire reserves a slot for client. The returned release is safe to call
// more than once.
func (l *streamLimiter) acquire(client string) (release func(), ok bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.open[client] >= l.perClient {
		return nil, false
	}
	if !l.global.TryAcquire(1) {
		return nil, false
	}
	l.open[client]++
	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			defer l.mu.Unlock()
			if l.open[client]--; l.open[client] <= 0 {
				delete(l.open, client)
			}
			l.global.Release(1)
		})
	}, true
}
