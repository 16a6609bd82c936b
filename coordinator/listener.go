package coordinator

import (
	"github.com/automoto/arena-sync/components"
	"github.com/yohamta/donburi"
	"github.com/yohamta/donburi/features/events"
)

// Listener receives UI notifications. Calls arrive on the coordinator
// goroutine and must not block.
type Listener interface {
	PlayerListChanged(text string)
	TimerUpdated(remaining float64)
	KillFeedMessage(text string)
	MatchEnded(winnerName string, finalScore int, isLocalWinner bool)
}

// NopListener discards every notification.
type NopListener struct{}

func (NopListener) PlayerListChanged(string)     {}
func (NopListener) TimerUpdated(float64)         {}
func (NopListener) KillFeedMessage(string)       {}
func (NopListener) MatchEnded(string, int, bool) {}

func subscribeListener(w donburi.World, l Listener) {
	components.PlayerListChanged.Subscribe(w, func(_ donburi.World, e components.PlayerListChangedEvent) {
		l.PlayerListChanged(e.Text)
	})
	components.TimerUpdated.Subscribe(w, func(_ donburi.World, e components.TimerUpdatedEvent) {
		l.TimerUpdated(e.Remaining)
	})
	components.KillFeedPosted.Subscribe(w, func(_ donburi.World, e components.KillFeedEvent) {
		l.KillFeedMessage(e.Text)
	})
	components.MatchEndedPosted.Subscribe(w, func(_ donburi.World, e components.MatchEndedEvent) {
		l.MatchEnded(e.WinnerName, e.FinalScore, e.IsLocalWinner)
	})
}

func processEvents(w donburi.World) {
	events.ProcessAllEvents(w)
}
