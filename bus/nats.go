package bus

import (
	"fmt"
	"sync"

	"github.com/automoto/arena-sync/config"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// NATS is a Bus backed by a NATS connection. Each session is read through a
// single wildcard subscription so every envelope of the session, whatever its
// kind, is delivered in publish order on one goroutine.
type NATS struct {
	nc  *nats.Conn
	log *zap.Logger

	mu       sync.Mutex
	sessions map[string]*natsSession
}

type natsSession struct {
	sub    *nats.Subscription
	routes *router
}

// Connect dials the broker described by cfg.
func Connect(cfg config.BusConfig, logger *zap.Logger) (*NATS, error) {
	log := logger.Named("bus")
	opts := []nats.Option{
		nats.Name(cfg.Name),
		nats.Timeout(cfg.Timeout),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Warn("disconnected from broker", zap.Error(err))
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info("reconnected to broker", zap.String("url", nc.ConnectedUrl()))
		}),
	}
	nc, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect to %s: %w", cfg.URL, err)
	}
	return &NATS{nc: nc, log: log, sessions: make(map[string]*natsSession)}, nil
}

func (n *NATS) Publish(env Envelope) error {
	data, err := marshalEnvelope(env)
	if err != nil {
		return fmt.Errorf("encode envelope %s: %w", env.Kind, err)
	}
	return n.nc.Publish(Subject(env.Session, env.Kind), data)
}

func (n *NATS) Subscribe(session string, kind Kind, h Handler) (Subscription, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	s, ok := n.sessions[session]
	if !ok {
		routes := newRouter()
		subject := SessionSubject(session)
		sub, err := n.nc.Subscribe(subject, func(m *nats.Msg) {
			env, err := unmarshalEnvelope(m.Data)
			if err != nil {
				n.log.Warn("dropping malformed envelope", zap.String("subject", m.Subject), zap.Error(err))
				return
			}
			routes.dispatch(env)
		})
		if err != nil {
			return nil, fmt.Errorf("subscribe %s: %w", subject, err)
		}
		s = &natsSession{sub: sub, routes: routes}
		n.sessions[session] = s
	}

	id := s.routes.add(kind, h)
	return &natsSubscription{n: n, session: session, kind: kind, id: id}, nil
}

func (n *NATS) unsubscribe(session string, kind Kind, id uint64) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	s, ok := n.sessions[session]
	if !ok {
		return nil
	}
	if s.routes.remove(kind, id) > 0 {
		return nil
	}
	delete(n.sessions, session)
	if err := s.sub.Unsubscribe(); err != nil {
		return fmt.Errorf("unsubscribe %s: %w", session, err)
	}
	return nil
}

// Close drains pending messages and closes the connection.
func (n *NATS) Close() error {
	return n.nc.Drain()
}

type natsSubscription struct {
	n       *NATS
	session string
	kind    Kind
	id      uint64
	once    sync.Once
}

func (s *natsSubscription) Unsubscribe() error {
	var err error
	s.once.Do(func() { err = s.n.unsubscribe(s.session, s.kind, s.id) })
	return err
}

// router fans envelopes of one session out to the handlers of their kind.
type router struct {
	mu     sync.RWMutex
	nextID uint64
	routes map[Kind][]route
}

type route struct {
	id uint64
	h  Handler
}

func newRouter() *router {
	return &router{routes: make(map[Kind][]route)}
}

func (r *router) add(kind Kind, h Handler) uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	r.routes[kind] = append(r.routes[kind], route{id: r.nextID, h: h})
	return r.nextID
}

// remove drops a handler and returns how many handlers remain in total.
func (r *router) remove(kind Kind, id uint64) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	list := r.routes[kind]
	for i, rt := range list {
		if rt.id == id {
			r.routes[kind] = append(list[:i:i], list[i+1:]...)
			break
		}
	}
	if len(r.routes[kind]) == 0 {
		delete(r.routes, kind)
	}
	total := 0
	for _, l := range r.routes {
		total += len(l)
	}
	return total
}

func (r *router) dispatch(env Envelope) {
	r.mu.RLock()
	targets := append([]route(nil), r.routes[env.Kind]...)
	r.mu.RUnlock()
	for _, rt := range targets {
		rt.h(env)
	}
}
