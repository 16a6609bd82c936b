package coordinator

import (
	"time"

	"github.com/automoto/arena-sync/bus"
	"github.com/automoto/arena-sync/shared/netconfig"
	"github.com/automoto/arena-sync/systems"
	"github.com/yohamta/donburi/ecs"
	"go.uber.org/zap"
)

// tick advances the clock and checks expiry, recovery and the authority
// watchdog.
func (c *Coordinator) tick() {
	if c.session == "" {
		return
	}
	c.ecs.Update()
	c.step()
}

// resync is the authority's periodic broadcast of clock and ledger. It
// repeats the outcome of an ended match so peers that lost it converge.
func (c *Coordinator) resync() {
	if c.session == "" {
		return
	}
	match := systems.MatchOf(c.world)
	if !match.IsAuthority(c.local) {
		return
	}
	systems.TickAuthority(c.world, c.clk.Now())
	c.sendResync()
	c.sendSnapshot()
	if match.State == netconfig.MatchStateEnded && c.ended != nil {
		c.broadcast(bus.KindMatchEnded, *c.ended)
	}
	c.step()
}

func (c *Coordinator) updateClock(e *ecs.ECS) {
	now := c.clk.Now()
	if systems.MatchOf(e.World).IsAuthority(c.local) {
		systems.TickAuthority(e.World, now)
	} else {
		systems.TickMirror(e.World, now)
	}
	c.postTimer()
}

func (c *Coordinator) updateLifecycle(e *ecs.ECS) {
	match := systems.MatchOf(e.World)
	if !match.IsAuthority(c.local) {
		return
	}
	switch match.State {
	case netconfig.MatchStateRunning:
		if systems.ClockExpired(e.World) && systems.ClaimExpiry(e.World) {
			c.endMatch("clock expired")
		}
	case netconfig.MatchStateEnding:
		if !match.EndedObserved {
			c.finishMatch()
		}
	}
}

// updateWatchdog suspends an authority that stayed silent for longer than
// the timeout. The silent peer stays registered so it is heard again once it
// recovers; only the next peer in registry order takes over.
func (c *Coordinator) updateWatchdog(e *ecs.ECS) {
	if c.cfg.AuthorityTimeout <= 0 {
		return
	}
	match := systems.MatchOf(e.World)
	if match.Authority == netconfig.NoPeer || match.IsAuthority(c.local) ||
		match.LastHeardAt == 0 || match.AuthorityStale {
		return
	}
	silence := c.clk.Now().Sub(time.UnixMilli(match.LastHeardAt))
	if silence < c.cfg.AuthorityTimeout {
		return
	}
	silent := match.Authority
	next := systems.SuspendAuthority(e.World)
	c.log.Warn("authority silent, suspending its claim",
		zap.Stringer("authority", silent), zap.Stringer("successor", next), zap.Duration("silence", silence))
	if next != c.local {
		return
	}
	if err := systems.TransferAuthority(e.World, c.local); err != nil {
		c.invariant(err)
		return
	}
	match.LastHeardAt = c.clk.Now().UnixMilli()
	c.assumeAuthority()
}
