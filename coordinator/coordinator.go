// Package coordinator runs the match for one peer. Exactly one peer in a
// session is the authority: it owns the clock, the kill ledger and the
// lifecycle, and broadcasts full state so every peer converges on the same
// outcome.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/automoto/arena-sync/bus"
	"github.com/automoto/arena-sync/config"
	"github.com/automoto/arena-sync/shared/messages"
	"github.com/automoto/arena-sync/shared/netconfig"
	"github.com/automoto/arena-sync/systems"
	"github.com/benbjohnson/clock"
	"github.com/yohamta/donburi"
	"github.com/yohamta/donburi/ecs"
	"go.uber.org/zap"
)

const inboxSize = 1024

// Options configures a Coordinator.
type Options struct {
	Local    netconfig.PeerID
	Match    config.MatchConfig
	Bus      bus.Bus
	Clock    clock.Clock // defaults to the wall clock
	Logger   *zap.Logger
	Listener Listener
}

// Coordinator owns the match world of one peer. All state is touched only by
// the goroutine running Run; the public On* methods enqueue commands.
type Coordinator struct {
	local    netconfig.PeerID
	cfg      config.MatchConfig
	bus      bus.Bus
	clk      clock.Clock
	log      *zap.Logger
	listener Listener

	ecs   *ecs.ECS
	world donburi.World
	inbox chan any
	done  chan struct{}

	session string
	subs    []bus.Subscription
	timers  matchTimers
	seq     uint64
	ended   *messages.MatchEnded
	shown   float64
	synced  bool // a remote authority has been heard since joining the room

	view atomic.Pointer[View]
}

// New builds a coordinator. It does nothing until Run is called.
func New(opts Options) (*Coordinator, error) {
	if opts.Local == netconfig.NoPeer {
		return nil, errors.New("coordinator: local peer id is required")
	}
	if opts.Bus == nil {
		return nil, errors.New("coordinator: bus is required")
	}
	if err := opts.Match.Validate(); err != nil {
		return nil, fmt.Errorf("coordinator: %w", err)
	}
	if opts.Clock == nil {
		opts.Clock = clock.New()
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Listener == nil {
		opts.Listener = NopListener{}
	}

	world := systems.NewMatchWorld()
	c := &Coordinator{
		local:    opts.Local,
		cfg:      opts.Match,
		bus:      opts.Bus,
		clk:      opts.Clock,
		log:      opts.Logger.Named("coordinator").With(zap.Stringer("peer", opts.Local)),
		listener: opts.Listener,
		ecs:      ecs.NewECS(world),
		world:    world,
		inbox:    make(chan any, inboxSize),
		done:     make(chan struct{}),
		shown:    -1,
	}
	c.ecs.AddSystem(c.updateClock)
	c.ecs.AddSystem(c.updateLifecycle)
	c.ecs.AddSystem(c.updateWatchdog)
	subscribeListener(world, c.listener)
	c.publishView()
	return c, nil
}

// Run processes commands and timers until ctx is done.
func (c *Coordinator) Run(ctx context.Context) error {
	c.log.Info("coordinator started")
	defer func() {
		c.leaveRoom()
		close(c.done)
		c.log.Info("coordinator stopped")
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case cmd := <-c.inbox:
			c.handle(cmd)
		case <-c.timers.tickC():
			c.tick()
		case <-c.timers.resyncC():
			c.resync()
		}
	}
}

// OnJoinedRoom enters a session, wiping all previous match state.
func (c *Coordinator) OnJoinedRoom(session string) { c.enqueue(joinedRoom{session: session}) }

// OnLeftRoom leaves the session and cancels every match timer.
func (c *Coordinator) OnLeftRoom() { c.enqueue(leftRoom{}) }

func (c *Coordinator) OnParticipantJoined(id netconfig.PeerID, name string) {
	c.enqueue(participantJoined{id: id, name: name})
}

func (c *Coordinator) OnParticipantLeft(id netconfig.PeerID) {
	c.enqueue(participantLeft{id: id})
}

func (c *Coordinator) OnDamageDealt(attacker, victim netconfig.PeerID) {
	c.enqueue(damageDealt{attacker: attacker, victim: victim})
}

func (c *Coordinator) OnExternalGameOverSignal() { c.enqueue(gameOver{}) }

func (c *Coordinator) OnReturnToLobbyRequested() { c.enqueue(returnToLobby{}) }

// LocalPeer returns the id this coordinator runs for.
func (c *Coordinator) LocalPeer() netconfig.PeerID { return c.local }

func (c *Coordinator) enqueue(cmd any) {
	select {
	case c.inbox <- cmd:
	case <-c.done:
	default:
		c.log.Warn("inbox full, dropping command", zap.String("command", fmt.Sprintf("%T", cmd)))
	}
}

func (c *Coordinator) receive(env bus.Envelope) {
	c.enqueue(inbound{env: env})
}

// step finishes every unit of work: the view is published before listeners
// run so they can query it.
func (c *Coordinator) step() {
	c.publishView()
	processEvents(c.world)
}

// invariant reports a logic error: fatal in strict mode, logged otherwise.
func (c *Coordinator) invariant(err error, fields ...zap.Field) {
	if c.cfg.Strict {
		panic(err)
	}
	c.log.Error("invariant violated", append(fields, zap.Error(err))...)
}
