package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"walletbridge/go-backend/internal/domains/rpckit"
)

const channelQueueSize = 64

var (
	ErrChannelClosed = errors.New("delivery channel is closed")
	ErrChannelFull   = errors.New("delivery channel is full")
)

// deliveryChannel is the host end of a listener subscription: one SSE
// connection that notifications raised by the engine are written to.
type deliveryChannel struct {
	id    string
	queue chan rpckit.Notification

	mu     sync.Mutex
	closed bool
	done   chan struct{}
}

func (c *deliveryChannel) Key() string { return c.id }

// Deliver never blocks; a slow reader loses notifications instead of
// stalling the listener that raised them.
func (c *deliveryChannel) Deliver(n rpckit.Notification) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrChannelClosed
	}
	select {
	case c.queue <- n:
		return nil
	default:
		return ErrChannelFull
	}
}

func (c *deliveryChannel) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.done)
}

type channelHub struct {
	mu       sync.Mutex
	channels map[string]*deliveryChannel
}

func newChannelHub() *channelHub {
	return &channelHub{channels: make(map[string]*deliveryChannel)}
}

func (h *channelHub) open() *deliveryChannel {
	ch := &deliveryChannel{
		id:    "ch_" + uuid.NewString(),
		queue: make(chan rpckit.Notification, channelQueueSize),
		done:  make(chan struct{}),
	}
	h.mu.Lock()
	h.channels[ch.id] = ch
	h.mu.Unlock()
	return ch
}

func (h *channelHub) get(id string) (*deliveryChannel, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	ch, ok := h.channels[id]
	return ch, ok
}

func (h *channelHub) close(id string) {
	h.mu.Lock()
	ch, ok := h.channels[id]
	delete(h.channels, id)
	h.mu.Unlock()
	if ok {
		ch.close()
	}
}

func (h *channelHub) closeAll() {
	h.mu.Lock()
	channels := h.channels
	h.channels = make(map[string]*deliveryChannel)
	h.mu.Unlock()
	for _, ch := range channels {
		ch.close()
	}
}

func (s *Server) handleRPCStream(w http.ResponseWriter, r *http.Request) {
	if !s.admit(w, r, http.MethodGet, true) {
		return
	}
	release, allowed := s.streams.acquire(clientKey(r, extractRPCToken(r)))
	if !allowed {
		s.observer.RequestRejected("stream_limit")
		http.Error(w, "too many stream subscriptions", http.StatusTooManyRequests)
		return
	}
	defer release()
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming is not supported", http.StatusInternalServerError)
		return
	}

	ch := s.channels.open()
	defer s.releaseChannel(ch)
	s.observer.StreamOpened()
	defer s.observer.StreamClosed()
	s.logger.Debug("delivery channel opened", "operation", "stream", "channel", ch.id)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	if err := writeSSE(w, "channel", 0, map[string]string{"channel": ch.id}); err != nil {
		return
	}
	flusher.Flush()

	heartbeat := time.NewTicker(20 * time.Second)
	defer heartbeat.Stop()

	var seq int64
	for {
		select {
		case <-r.Context().Done():
			return
		case <-ch.done:
			return
		case n := <-ch.queue:
			seq++
			event := map[string]any{
				"jsonrpc": "2.0",
				"method":  "walletEvent",
				"params": map[string]any{
					"version":      notificationAPIVersion,
					"seq":          seq,
					"notification": n,
				},
			}
			if err := writeSSE(w, "", seq, event); err != nil {
				s.logger.Warn("stream write failed", "operation", "stream", "channel", ch.id, "error", err.Error())
				return
			}
			flusher.Flush()
		case <-heartbeat.C:
			_, _ = fmt.Fprint(w, ": keepalive\n\n")
			flusher.Flush()
		}
	}
}

// releaseChannel closes a finished stream's channel and drops the
// listeners bound to it. The request context is already done here.
func (s *Server) releaseChannel(ch *deliveryChannel) {
	s.channels.close(ch.id)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	s.dispatcher.ReleaseDelivery(ctx, ch.Key())
	s.logger.Debug("delivery channel closed", "operation", "stream", "channel", ch.id)
}

func writeSSE(w http.ResponseWriter, event string, seq int64, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	if event != "" {
		if _, err := fmt.Fprintf(w, "event: %s\n", event); err != nil {
			return err
		}
	}
	if seq > 0 {
		if _, err := fmt.Fprintf(w, "id: %d\n", seq); err != nil {
			return err
		}
	}
	_, err = fmt.Fprintf(w, "data: %s\n\n", data)
	return err
}
