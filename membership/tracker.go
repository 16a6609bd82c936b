// Package membership discovers the peers of a session over the bus. Each peer
// announces itself with Hello, answers newcomers with Welcome, repeats Alive
// on an interval and says Bye on the way out. A peer silent for longer than
// the TTL is reported as gone.
package membership

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/automoto/arena-sync/bus"
	"github.com/automoto/arena-sync/config"
	"github.com/automoto/arena-sync/shared/messages"
	"github.com/automoto/arena-sync/shared/netconfig"
	"github.com/benbjohnson/clock"
	"go.uber.org/zap"
)

// Events receives membership changes for remote peers.
type Events interface {
	OnParticipantJoined(id netconfig.PeerID, name string)
	OnParticipantLeft(id netconfig.PeerID)
}

type peer struct {
	name     string
	lastSeen time.Time
}

// Tracker keeps the set of live remote peers of one session.
type Tracker struct {
	local   netconfig.PeerID
	name    string
	session string
	bus     bus.Bus
	clk     clock.Clock
	cfg     config.PresenceConfig
	events  Events
	log     *zap.Logger

	mu    sync.Mutex
	peers map[netconfig.PeerID]*peer
	seq   uint64
}

func NewTracker(local netconfig.PeerID, name, session string, b bus.Bus, clk clock.Clock,
	cfg config.PresenceConfig, events Events, logger *zap.Logger) *Tracker {
	if clk == nil {
		clk = clock.New()
	}
	return &Tracker{
		local:   local,
		name:    name,
		session: session,
		bus:     b,
		clk:     clk,
		cfg:     cfg,
		events:  events,
		log:     logger.Named("membership"),
		peers:   make(map[netconfig.PeerID]*peer),
	}
}

// Run announces the local peer and keeps the membership current until ctx
// is done, then says Bye.
func (t *Tracker) Run(ctx context.Context) error {
	sub, err := t.bus.Subscribe(t.session, bus.KindPresence, t.handle)
	if err != nil {
		return fmt.Errorf("membership: %w", err)
	}
	defer func() {
		t.announce(messages.PresenceBye)
		if err := sub.Unsubscribe(); err != nil {
			t.log.Warn("unsubscribe failed", zap.Error(err))
		}
	}()

	t.announce(messages.PresenceHello)
	ticker := t.clk.Ticker(t.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			t.announce(messages.PresenceAlive)
			t.expire()
		}
	}
}

// Peers returns the live remote peers.
func (t *Tracker) Peers() map[netconfig.PeerID]string {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make(map[netconfig.PeerID]string, len(t.peers))
	for id, p := range t.peers {
		out[id] = p.name
	}
	return out
}

func (t *Tracker) handle(env bus.Envelope) {
	if env.Sender == t.local || env.Sender == netconfig.NoPeer {
		return
	}
	msg, err := bus.Decode[messages.Presence](env)
	if err != nil {
		t.log.Warn("dropping malformed presence", zap.Error(err))
		return
	}

	switch msg.Op {
	case messages.PresenceHello:
		t.seen(env.Sender, msg.Name)
		t.announce(messages.PresenceWelcome)
	case messages.PresenceWelcome, messages.PresenceAlive:
		t.seen(env.Sender, msg.Name)
	case messages.PresenceBye:
		t.gone(env.Sender, "bye")
	}
}

func (t *Tracker) seen(id netconfig.PeerID, name string) {
	t.mu.Lock()
	p, known := t.peers[id]
	if known {
		p.lastSeen = t.clk.Now()
		t.mu.Unlock()
		return
	}
	t.peers[id] = &peer{name: name, lastSeen: t.clk.Now()}
	t.mu.Unlock()

	t.log.Info("peer discovered", zap.Stringer("id", id), zap.String("name", name))
	t.events.OnParticipantJoined(id, name)
}

func (t *Tracker) gone(id netconfig.PeerID, reason string) {
	t.mu.Lock()
	_, known := t.peers[id]
	delete(t.peers, id)
	t.mu.Unlock()
	if !known {
		return
	}
	t.log.Info("peer gone", zap.Stringer("id", id), zap.String("reason", reason))
	t.events.OnParticipantLeft(id)
}

func (t *Tracker) expire() {
	now := t.clk.Now()
	var stale []netconfig.PeerID
	t.mu.Lock()
	for id, p := range t.peers {
		if now.Sub(p.lastSeen) > t.cfg.TTL {
			stale = append(stale, id)
		}
	}
	t.mu.Unlock()
	for _, id := range stale {
		t.gone(id, "timeout")
	}
}

func (t *Tracker) announce(op messages.PresenceOp) {
	payload, err := bus.Encode(messages.Presence{Op: op, Name: t.name})
	if err != nil {
		t.log.Error("encode presence failed", zap.Error(err))
		return
	}
	t.mu.Lock()
	t.seq++
	seq := t.seq
	t.mu.Unlock()
	err = t.bus.Publish(bus.Envelope{
		Kind:    bus.KindPresence,
		Session: t.session,
		Sender:  t.local,
		Seq:     seq,
		Payload: payload,
	})
	if err != nil {
		t.log.Warn("presence publish failed", zap.Error(err))
	}
}
