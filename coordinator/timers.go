package coordinator

import (
	"time"

	"github.com/benbjohnson/clock"
)

// matchTimers are created on join-room and stopped on leave, so nothing
// fires for a session the peer already left.
type matchTimers struct {
	tick   *clock.Ticker
	resync *clock.Ticker
}

func (t *matchTimers) start(clk clock.Clock, tick, resync time.Duration) {
	t.stop()
	t.tick = clk.Ticker(tick)
	t.resync = clk.Ticker(resync)
}

func (t *matchTimers) stop() {
	if t.tick != nil {
		t.tick.Stop()
		t.tick = nil
	}
	if t.resync != nil {
		t.resync.Stop()
		t.resync = nil
	}
}

func (t *matchTimers) running() bool { return t.tick != nil }

// A nil channel blocks forever, which disables the select case.
func (t *matchTimers) tickC() <-chan time.Time {
	if t.tick == nil {
		return nil
	}
	return t.tick.C
}

func (t *matchTimers) resyncC() <-chan time.Time {
	if t.resync == nil {
		return nil
	}
	return t.resync.C
}
