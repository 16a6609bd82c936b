package components

import (
	"time"

	"github.com/tanema/gween"
	"github.com/yohamta/donburi"
)

// ClockData is the match countdown. The authority derives Remaining from
// StartedAt and Duration; mirrors hold the last resync and interpolate.
type ClockData struct {
	Active    bool
	Duration  time.Duration // Countdown length measured from StartedAt
	StartedAt time.Time
	Remaining time.Duration // Last computed (authority) or resynced (mirror) value

	// Mirror-side bookkeeping
	Resynced     bool
	LastResync   time.Duration // Value of the last applied resync
	ResyncAt     time.Time     // Local receive time of the last applied resync
	Display      *gween.Tween  // Interpolates LastResync down one cadence window
	ExpiryRaised bool          // Expiry already reported for the current run
}

var Clock = donburi.NewComponentType[ClockData]()
