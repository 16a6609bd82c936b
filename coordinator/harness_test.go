package coordinator

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/automoto/arena-sync/bus"
	"github.com/automoto/arena-sync/config"
	"github.com/automoto/arena-sync/shared/netconfig"
	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const testSession = "session-1"

func testMatchConfig() config.MatchConfig {
	return config.MatchConfig{
		Duration:         180 * time.Second,
		ResyncCadence:    5 * time.Second,
		TickInterval:     time.Second,
		AuthorityTimeout: 15 * time.Second,
	}
}

type endedCall struct {
	winnerName    string
	finalScore    int
	isLocalWinner bool
}

type recordingListener struct {
	mu     sync.Mutex
	lists  []string
	timers []float64
	feed   []string
	ended  []endedCall
}

func (l *recordingListener) PlayerListChanged(text string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.lists = append(l.lists, text)
}

func (l *recordingListener) TimerUpdated(remaining float64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.timers = append(l.timers, remaining)
}

func (l *recordingListener) KillFeedMessage(text string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.feed = append(l.feed, text)
}

func (l *recordingListener) MatchEnded(winnerName string, finalScore int, isLocalWinner bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.ended = append(l.ended, endedCall{winnerName, finalScore, isLocalWinner})
}

func (l *recordingListener) endedCalls() []endedCall {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]endedCall(nil), l.ended...)
}

func (l *recordingListener) feedMessages() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.feed...)
}

func (l *recordingListener) lastList() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.lists) == 0 {
		return ""
	}
	return l.lists[len(l.lists)-1]
}

// harness drives several coordinators over one in-process hub and a shared
// mock clock, calling their handlers directly instead of running loops.
type harness struct {
	t           *testing.T
	hub         *bus.Hub
	clk         *clock.Mock
	cfg         config.MatchConfig
	order       []netconfig.PeerID
	peers       map[netconfig.PeerID]*Coordinator
	listeners   map[netconfig.PeerID]*recordingListener
	sinceResync time.Duration
}

func newHarness(t *testing.T, ids ...netconfig.PeerID) *harness {
	t.Helper()
	clk := clock.NewMock()
	clk.Set(time.Date(2024, 6, 1, 18, 0, 0, 0, time.UTC))
	h := &harness{
		t:         t,
		hub:       bus.NewHub(),
		clk:       clk,
		cfg:       testMatchConfig(),
		peers:     make(map[netconfig.PeerID]*Coordinator),
		listeners: make(map[netconfig.PeerID]*recordingListener),
	}
	for _, id := range ids {
		h.add(id)
	}
	return h
}

func (h *harness) add(id netconfig.PeerID) *Coordinator {
	h.t.Helper()
	l := &recordingListener{}
	c, err := New(Options{
		Local:    id,
		Match:    h.cfg,
		Bus:      h.hub.Endpoint(id),
		Clock:    h.clk,
		Logger:   zap.NewNop(),
		Listener: l,
	})
	require.NoError(h.t, err)
	h.order = append(h.order, id)
	h.peers[id] = c
	h.listeners[id] = l
	return c
}

func name(id netconfig.PeerID) string { return fmt.Sprintf("p%d", uint32(id)) }

// joinAll puts every peer in the room, then tells each about all of them in
// ascending order.
func (h *harness) joinAll() {
	for _, id := range h.order {
		h.peers[id].OnJoinedRoom(testSession)
	}
	h.pump()
	for _, id := range h.order {
		for _, other := range h.order {
			h.peers[id].OnParticipantJoined(other, name(other))
		}
	}
	h.pump()
}

// pump drains every inbox until no peer has pending work.
func (h *harness) pump() {
	for {
		progressed := false
		for _, id := range h.order {
			if drain(h.peers[id]) {
				progressed = true
			}
		}
		if !progressed {
			return
		}
	}
}

func drain(c *Coordinator) bool {
	handled := false
	for {
		select {
		case cmd := <-c.inbox:
			c.handle(cmd)
			handled = true
		default:
			return handled
		}
	}
}

// advance moves the mock clock in one second steps, ticking every peer and
// firing the resync cadence.
func (h *harness) advance(d time.Duration) {
	for elapsed := time.Duration(0); elapsed < d; {
		step := min(time.Second, d-elapsed)
		h.clk.Add(step)
		elapsed += step
		h.sinceResync += step
		for _, id := range h.order {
			h.peers[id].tick()
		}
		h.pump()
		if h.sinceResync >= h.cfg.ResyncCadence {
			h.sinceResync = 0
			for _, id := range h.order {
				h.peers[id].resync()
			}
			h.pump()
		}
	}
}

// leave simulates id dropping out: it leaves its room and everyone else
// observes the departure.
func (h *harness) leave(id netconfig.PeerID) {
	h.peers[id].OnLeftRoom()
	for _, other := range h.order {
		if other != id {
			h.peers[other].OnParticipantLeft(id)
		}
	}
	h.pump()
}

func (h *harness) kill(on, attacker, victim netconfig.PeerID) {
	h.peers[on].OnDamageDealt(attacker, victim)
	h.pump()
}

// capture records every envelope of kind published in the test session.
func (h *harness) capture(kind bus.Kind) *[]bus.Envelope {
	var got []bus.Envelope
	_, err := h.hub.Endpoint(999).Subscribe(testSession, kind, func(env bus.Envelope) {
		got = append(got, env)
	})
	require.NoError(h.t, err)
	return &got
}
