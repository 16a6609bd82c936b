package systems

import (
	"time"

	"github.com/automoto/arena-sync/components"
	"github.com/tanema/gween"
	"github.com/tanema/gween/ease"
	"github.com/yohamta/donburi"
)

// StartClock begins an authoritative countdown of d measured from now.
func StartClock(w donburi.World, now time.Time, d time.Duration) {
	*ClockOf(w) = components.ClockData{
		Active:    true,
		Duration:  d,
		StartedAt: now,
		Remaining: d,
	}
}

// StopClock freezes the clock at its last computed value.
func StopClock(w donburi.World) {
	c := ClockOf(w)
	c.Active = false
	c.Display = nil
}

// AdoptClock turns a mirrored clock into an authoritative one, continuing
// from the value the mirror currently shows.
func AdoptClock(w donburi.World, now time.Time) {
	c := ClockOf(w)
	if !c.Active {
		return
	}
	c.Duration = c.Remaining
	c.StartedAt = now
	c.Resynced = false
	c.Display = nil
}

// TickAuthority recomputes remaining time as duration minus elapsed. The
// value never increases between ticks.
func TickAuthority(w donburi.World, now time.Time) time.Duration {
	c := ClockOf(w)
	if !c.Active {
		return c.Remaining
	}
	remaining := c.Duration - now.Sub(c.StartedAt)
	if remaining < 0 {
		remaining = 0
	}
	if remaining < c.Remaining {
		c.Remaining = remaining
	}
	return c.Remaining
}

// TickMirror interpolates the displayed value since the last resync. The
// display never runs more than one cadence window below the resync value.
func TickMirror(w donburi.World, now time.Time) time.Duration {
	c := ClockOf(w)
	if !c.Active || !c.Resynced || c.Display == nil {
		return c.Remaining
	}
	elapsed := float32(now.Sub(c.ResyncAt).Seconds())
	v, _ := c.Display.Set(elapsed)
	c.Remaining = max(time.Duration(float64(v)*float64(time.Second)), 0)
	return c.Remaining
}

// ResyncClock snaps a mirror to an authoritative value. A resync repeating
// the last applied value and activity is a no-op and reports false.
func ResyncClock(w donburi.World, now time.Time, remaining time.Duration, active bool, cadence time.Duration) bool {
	c := ClockOf(w)
	if remaining < 0 {
		remaining = 0
	}
	if c.Resynced && c.LastResync == remaining && c.Active == active {
		return false
	}

	c.Active = active
	c.Resynced = true
	c.LastResync = remaining
	c.ResyncAt = now
	c.Remaining = remaining
	c.Display = nil
	if active && cadence > 0 {
		floor := max(remaining-cadence, 0)
		c.Display = gween.New(
			float32(remaining.Seconds()),
			float32(floor.Seconds()),
			float32(cadence.Seconds()),
			ease.Linear,
		)
	}
	return true
}

// ClockExpired reports whether an active countdown has reached zero.
func ClockExpired(w donburi.World) bool {
	c := ClockOf(w)
	return c.Active && c.Remaining <= 0
}

// ClaimExpiry marks the current expiry as handled. It returns true only the
// first time it is called for a run.
func ClaimExpiry(w donburi.World) bool {
	c := ClockOf(w)
	if c.ExpiryRaised {
		return false
	}
	c.ExpiryRaised = true
	return true
}

// RemainingSeconds returns the last computed remaining time in seconds.
func RemainingSeconds(w donburi.World) float64 {
	return ClockOf(w).Remaining.Seconds()
}
