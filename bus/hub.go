package bus

import (
	"sync"

	"github.com/automoto/arena-sync/shared/netconfig"
)

// DropFunc decides whether env is lost on its way to the subscriber owned by to.
type DropFunc func(env Envelope, to netconfig.PeerID) bool

// Hub is an in-process bus. Delivery is synchronous on the publisher's
// goroutine, so per-sender order is preserved. Envelopes go through the wire
// codec so payloads never share memory between peers.
type Hub struct {
	mu     sync.RWMutex
	subs   map[string][]*hubSub
	drop   DropFunc
	nextID uint64
}

type hubSub struct {
	id    uint64
	owner netconfig.PeerID
	h     Handler
}

func NewHub() *Hub {
	return &Hub{subs: make(map[string][]*hubSub)}
}

// SetDropFunc installs a loss filter; nil delivers everything.
func (h *Hub) SetDropFunc(fn DropFunc) {
	h.mu.Lock()
	h.drop = fn
	h.mu.Unlock()
}

// Endpoint returns a Bus attached to the hub on behalf of owner.
func (h *Hub) Endpoint(owner netconfig.PeerID) *Endpoint {
	return &Endpoint{hub: h, owner: owner}
}

func (h *Hub) publish(env Envelope) error {
	data, err := marshalEnvelope(env)
	if err != nil {
		return err
	}

	h.mu.RLock()
	targets := append([]*hubSub(nil), h.subs[Subject(env.Session, env.Kind)]...)
	drop := h.drop
	h.mu.RUnlock()

	for _, sub := range targets {
		if drop != nil && drop(env, sub.owner) {
			continue
		}
		copied, err := unmarshalEnvelope(data)
		if err != nil {
			return err
		}
		sub.h(copied)
	}
	return nil
}

func (h *Hub) subscribe(owner netconfig.PeerID, subject string, handler Handler) *hubSubscription {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.nextID++
	sub := &hubSub{id: h.nextID, owner: owner, h: handler}
	h.subs[subject] = append(h.subs[subject], sub)
	return &hubSubscription{hub: h, subject: subject, id: sub.id}
}

func (h *Hub) unsubscribe(subject string, id uint64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	list := h.subs[subject]
	for i, sub := range list {
		if sub.id == id {
			h.subs[subject] = append(list[:i:i], list[i+1:]...)
			return
		}
	}
}

// Endpoint is one peer's view of a Hub.
type Endpoint struct {
	hub    *Hub
	owner  netconfig.PeerID
	mu     sync.Mutex
	closed bool
	subs   []*hubSubscription
}

func (e *Endpoint) Publish(env Envelope) error {
	e.mu.Lock()
	closed := e.closed
	e.mu.Unlock()
	if closed {
		return ErrClosed
	}
	return e.hub.publish(env)
}

func (e *Endpoint) Subscribe(session string, kind Kind, h Handler) (Subscription, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil, ErrClosed
	}
	sub := e.hub.subscribe(e.owner, Subject(session, kind), h)
	e.subs = append(e.subs, sub)
	return sub, nil
}

// Close detaches every subscription made through the endpoint.
func (e *Endpoint) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil
	}
	e.closed = true
	for _, sub := range e.subs {
		_ = sub.Unsubscribe()
	}
	e.subs = nil
	return nil
}

type hubSubscription struct {
	hub     *Hub
	subject string
	id      uint64
	once    sync.Once
}

func (s *hubSubscription) Unsubscribe() error {
	s.once.Do(func() { s.hub.unsubscribe(s.subject, s.id) })
	return nil
}
