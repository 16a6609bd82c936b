package components

import "github.com/yohamta/donburi/features/events"

// Outbound UI notifications. Published while handling a command and drained
// once per coordinator step.

type PlayerListChangedEvent struct {
	Text string
}

type TimerUpdatedEvent struct {
	Remaining float64 // seconds
}

type KillFeedEvent struct {
	Text string
}

type MatchEndedEvent struct {
	WinnerName    string
	FinalScore    int
	IsLocalWinner bool
}

var (
	PlayerListChanged = events.NewEventType[PlayerListChangedEvent]()
	TimerUpdated      = events.NewEventType[TimerUpdatedEvent]()
	KillFeedPosted    = events.NewEventType[KillFeedEvent]()
	MatchEndedPosted  = events.NewEventType[MatchEndedEvent]()
)
