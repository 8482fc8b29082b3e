package domain

import (
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"

	"github.com/google/uuid"

	"walletbridge/go-backend/internal/domains/contracts"
	"walletbridge/go-backend/internal/domains/rpckit"
)

const DefaultListenerQueueSize = 64

// DeliveryObserver is told about every event the registry fans out.
type DeliveryObserver interface {
	EventDelivered()
	EventDropped()
	DeliveryFailed()
}

type nopDeliveryObserver struct{}

func (nopDeliveryObserver) EventDelivered() {}
func (nopDeliveryObserver) EventDropped()   {}
func (nopDeliveryObserver) DeliveryFailed() {}

type SubscriptionInfo struct {
	ID             string
	SubWalletID    string
	MasterWalletID string
	ChainID        string
	DeliveryKey    string
}

type subscription struct {
	info  SubscriptionInfo
	ref   contracts.DeliveryRef
	queue chan rpckit.Notification
	stop  chan struct{}
}

// ListenerRegistry maps sub wallets to their active subscriptions. Every
// subscription owns a bounded queue drained by its own goroutine, so a slow
// delivery channel never holds up the caller of Dispatch.
//
// Mutating methods and Dispatch must be serialized by the caller.
type ListenerRegistry struct {
	queueSize int
	logger    *slog.Logger
	observer  DeliveryObserver

	subs        map[string]*subscription
	bySubWallet map[string][]string
	wg          sync.WaitGroup
	halted      chan struct{}
	haltOnce    sync.Once
}

func NewListenerRegistry(queueSize int, logger *slog.Logger, observer DeliveryObserver) *ListenerRegistry {
	if queueSize <= 0 {
		queueSize = DefaultListenerQueueSize
	}
	if logger == nil {
		logger = slog.Default()
	}
	if observer == nil {
		observer = nopDeliveryObserver{}
	}
	return &ListenerRegistry{
		queueSize:   queueSize,
		logger:      logger,
		observer:    observer,
		subs:        make(map[string]*subscription),
		bySubWallet: make(map[string][]string),
		halted:      make(chan struct{}),
	}
}

func (r *ListenerRegistry) Subscribe(sub *SubWalletHandle, ref contracts.DeliveryRef) (string, error) {
	if !sub.Alive() {
		return "", contracts.ErrSubWalletNotFound
	}
	if ref == nil {
		return "", fmt.Errorf("%w: delivery reference is required", contracts.ErrInvalidArgument)
	}
	subWalletID := sub.ID()
	key := ref.Key()
	for _, id := range r.bySubWallet[subWalletID] {
		if r.subs[id].info.DeliveryKey == key {
			return "", fmt.Errorf("%w: %s", contracts.ErrAlreadySubscribed, subWalletID)
		}
	}
	s := &subscription{
		info: SubscriptionInfo{
			ID:             "sub_" + uuid.NewString(),
			SubWalletID:    subWalletID,
			MasterWalletID: sub.MasterWalletID(),
			ChainID:        sub.ChainID(),
			DeliveryKey:    key,
		},
		ref:   ref,
		queue: make(chan rpckit.Notification, r.queueSize),
		stop:  make(chan struct{}),
	}
	r.subs[s.info.ID] = s
	r.bySubWallet[subWalletID] = append(r.bySubWallet[subWalletID], s.info.ID)
	r.wg.Add(1)
	go r.deliverLoop(s)
	return s.info.ID, nil
}

func (r *ListenerRegistry) Unsubscribe(id string) (SubscriptionInfo, error) {
	s, ok := r.subs[id]
	if !ok {
		return SubscriptionInfo{}, fmt.Errorf("%w: %s", contracts.ErrSubscriptionNotFound, id)
	}
	r.remove(s)
	return s.info, nil
}

// RemoveForSubWallet drops every subscription of a sub wallet and returns
// their ids.
func (r *ListenerRegistry) RemoveForSubWallet(subWalletID string) []string {
	ids := slices.Clone(r.bySubWallet[subWalletID])
	for _, id := range ids {
		r.remove(r.subs[id])
	}
	return ids
}

// RemoveForDeliveryKey drops every subscription delivering to key, e.g.
// when the host connection behind it went away.
func (r *ListenerRegistry) RemoveForDeliveryKey(key string) []SubscriptionInfo {
	var out []SubscriptionInfo
	for _, s := range r.subs {
		if s.info.DeliveryKey == key {
			out = append(out, s.info)
		}
	}
	slices.SortFunc(out, func(a, b SubscriptionInfo) int { return strings.Compare(a.ID, b.ID) })
	for _, info := range out {
		r.remove(r.subs[info.ID])
	}
	return out
}

func (r *ListenerRegistry) RemoveAll() []string {
	ids := make([]string, 0, len(r.subs))
	for id, s := range r.subs {
		ids = append(ids, id)
		r.remove(s)
	}
	slices.Sort(ids)
	return ids
}

func (r *ListenerRegistry) remove(s *subscription) {
	delete(r.subs, s.info.ID)
	rest := slices.DeleteFunc(r.bySubWallet[s.info.SubWalletID], func(id string) bool { return id == s.info.ID })
	if len(rest) == 0 {
		delete(r.bySubWallet, s.info.SubWalletID)
	} else {
		r.bySubWallet[s.info.SubWalletID] = rest
	}
	close(s.stop)
}

// Count reports how many live subscriptions a sub wallet has.
func (r *ListenerRegistry) Count(subWalletID string) int {
	return len(r.bySubWallet[subWalletID])
}

func (r *ListenerRegistry) Subscriptions() []SubscriptionInfo {
	out := make([]SubscriptionInfo, 0, len(r.subs))
	for _, s := range r.subs {
		out = append(out, s.info)
	}
	slices.SortFunc(out, func(a, b SubscriptionInfo) int { return strings.Compare(a.ID, b.ID) })
	return out
}

// Dispatch enqueues result on every live subscription of the sub wallet.
// Events for a sub wallet without subscribers, or for a full queue, are
// dropped. It returns the number of queues the event was placed on.
func (r *ListenerRegistry) Dispatch(subWalletID string, result rpckit.Result) int {
	queued := 0
	for _, id := range r.bySubWallet[subWalletID] {
		s := r.subs[id]
		n := rpckit.Notification{
			SubscriptionID: s.info.ID,
			MasterWalletID: s.info.MasterWalletID,
			ChainID:        s.info.ChainID,
			Result:         result,
		}
		select {
		case s.queue <- n:
			queued++
		default:
			r.observer.EventDropped()
			r.logger.Warn("listener queue full, event dropped",
				"component", "wallet.listeners",
				"subscription_id", s.info.ID,
				"sub_wallet_id", subWalletID,
			)
		}
	}
	if queued == 0 && len(r.bySubWallet[subWalletID]) == 0 {
		r.observer.EventDropped()
	}
	return queued
}

func (r *ListenerRegistry) deliverLoop(s *subscription) {
	defer r.wg.Done()
	for {
		select {
		case <-s.stop:
			return
		case <-r.halted:
			return
		case n := <-s.queue:
			select {
			case <-s.stop:
				return
			case <-r.halted:
				return
			default:
			}
			if err := s.ref.Deliver(n); err != nil {
				r.observer.DeliveryFailed()
				r.logger.Warn("listener delivery failed",
					"component", "wallet.listeners",
					"subscription_id", s.info.ID,
					"error", err.Error(),
				)
				continue
			}
			r.observer.EventDelivered()
		}
	}
}

// Halt stops every delivery goroutine without touching the subscription
// table. Unlike the other methods it is safe to call concurrently.
func (r *ListenerRegistry) Halt() {
	r.haltOnce.Do(func() { close(r.halted) })
}

// Wait blocks until every delivery goroutine has exited. Call it after
// RemoveAll or Halt.
func (r *ListenerRegistry) Wait() {
	r.wg.Wait()
}
