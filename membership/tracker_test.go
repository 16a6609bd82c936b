package membership

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/automoto/arena-sync/bus"
	"github.com/automoto/arena-sync/config"
	"github.com/automoto/arena-sync/shared/messages"
	"github.com/automoto/arena-sync/shared/netconfig"
	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type recordedEvents struct {
	mu     sync.Mutex
	joined []netconfig.PeerID
	left   []netconfig.PeerID
}

func (r *recordedEvents) OnParticipantJoined(id netconfig.PeerID, _ string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.joined = append(r.joined, id)
}

func (r *recordedEvents) OnParticipantLeft(id netconfig.PeerID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.left = append(r.left, id)
}

func (r *recordedEvents) snapshot() (joined, left []netconfig.PeerID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]netconfig.PeerID(nil), r.joined...), append([]netconfig.PeerID(nil), r.left...)
}

var presenceCfg = config.PresenceConfig{Interval: 2 * time.Second, TTL: 10 * time.Second}

func newTracker(hub *bus.Hub, clk clock.Clock, id netconfig.PeerID) (*Tracker, *recordedEvents) {
	ev := &recordedEvents{}
	return NewTracker(id, id.String(), "s", hub.Endpoint(id), clk, presenceCfg, ev, zap.NewNop()), ev
}

func subscribe(t *testing.T, tr *Tracker) {
	t.Helper()
	_, err := tr.bus.Subscribe(tr.session, bus.KindPresence, tr.handle)
	require.NoError(t, err)
}

func TestHelloIsAnsweredWithWelcome(t *testing.T) {
	hub := bus.NewHub()
	clk := clock.NewMock()
	a, evA := newTracker(hub, clk, 1)
	b, evB := newTracker(hub, clk, 2)
	subscribe(t, a)
	subscribe(t, b)

	b.announce(messages.PresenceHello)

	joinedA, _ := evA.snapshot()
	joinedB, _ := evB.snapshot()
	assert.Equal(t, []netconfig.PeerID{2}, joinedA)
	assert.Equal(t, []netconfig.PeerID{1}, joinedB)
	assert.Equal(t, map[netconfig.PeerID]string{1: "peer-1"}, b.Peers())
}

func TestByeAndTimeout(t *testing.T) {
	hub := bus.NewHub()
	clk := clock.NewMock()
	a, evA := newTracker(hub, clk, 1)
	b, _ := newTracker(hub, clk, 2)
	c, _ := newTracker(hub, clk, 3)
	subscribe(t, a)
	subscribe(t, b)
	subscribe(t, c)

	b.announce(messages.PresenceHello)
	c.announce(messages.PresenceHello)

	b.announce(messages.PresenceBye)
	_, left := evA.snapshot()
	assert.Equal(t, []netconfig.PeerID{2}, left)

	clk.Add(11 * time.Second)
	a.expire()
	_, left = evA.snapshot()
	assert.Equal(t, []netconfig.PeerID{2, 3}, left)
	assert.Empty(t, a.Peers())
}

func TestAliveKeepsPeer(t *testing.T) {
	hub := bus.NewHub()
	clk := clock.NewMock()
	a, evA := newTracker(hub, clk, 1)
	b, _ := newTracker(hub, clk, 2)
	subscribe(t, a)
	subscribe(t, b)

	b.announce(messages.PresenceHello)
	for range 5 {
		clk.Add(4 * time.Second)
		b.announce(messages.PresenceAlive)
		a.expire()
	}

	joined, left := evA.snapshot()
	assert.Equal(t, []netconfig.PeerID{2}, joined)
	assert.Empty(t, left)
}

func TestRunAnnouncesAndSaysBye(t *testing.T) {
	hub := bus.NewHub()
	observer, ev := newTracker(hub, clock.New(), 9)
	subscribe(t, observer)

	tr, _ := newTracker(hub, clock.New(), 4)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- tr.Run(ctx) }()

	require.Eventually(t, func() bool {
		joined, _ := ev.snapshot()
		return len(joined) == 1
	}, 2*time.Second, 5*time.Millisecond)

	cancel()
	require.NoError(t, <-done)
	_, left := ev.snapshot()
	assert.Equal(t, []netconfig.PeerID{4}, left)
}
