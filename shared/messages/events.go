package messages

import "github.com/automoto/arena-sync/shared/netconfig"

// PlayerEntry is one connected participant as shown in the player list.
type PlayerEntry struct {
	ID    netconfig.PeerID
	Name  string
	Score int
}

// PlayerListChanged is broadcast by the authority whenever membership or scores change.
type PlayerListChanged struct {
	Players []PlayerEntry
}

// KillFeed is a fire-and-forget notification; late joiners never see old ones.
type KillFeed struct {
	KillID     string
	Killer     netconfig.PeerID
	Victim     netconfig.PeerID
	KillerName string
	VictimName string
}

// MatchEnded carries the decided outcome. Scores is the ledger before the
// victory bonus; FinalScore already includes it.
type MatchEnded struct {
	SessionID  string
	Winner     netconfig.PeerID
	WinnerName string
	FinalScore int
	Scores     map[netconfig.PeerID]int
}

// TimerResync is the authority's view of the clock and lifecycle. Once the
// match is Ending the decided winner rides along so a successor authority
// announces the same outcome.
type TimerResync struct {
	Remaining  float64 // seconds
	Active     bool
	State      netconfig.MatchStateID
	Winner     netconfig.PeerID
	WinnerName string
	FinalScore int
}

// ScoreSnapshot replaces the whole ledger on every receiver.
type ScoreSnapshot struct {
	Scores map[netconfig.PeerID]int
	Names  map[netconfig.PeerID]string
}

// MatchStarted is broadcast on the Idle -> Running transition.
type MatchStarted struct {
	SessionID string
	Duration  float64 // seconds
}

// MatchReset returns every peer to Idle after a finished match.
type MatchReset struct {
	SessionID string
}

// KillReport is sent by a non-authoritative peer to the authority. KillID makes
// redelivered reports idempotent.
type KillReport struct {
	KillID string
	Killer netconfig.PeerID
	Victim netconfig.PeerID
	At     int64 // unix ms
}

// GameOverRequest forwards an external game-over signal to the authority.
type GameOverRequest struct {
	RequestedBy netconfig.PeerID
}

// LobbyRequest forwards a return-to-lobby request to the authority.
type LobbyRequest struct {
	RequestedBy netconfig.PeerID
}

// StateRequest asks the authority to rebroadcast the full match state.
type StateRequest struct {
	RequestedBy netconfig.PeerID
}

// PresenceOp identifies a membership announcement.
type PresenceOp int

const (
	PresenceHello   PresenceOp = iota // peer arrived, everybody answers with Welcome
	PresenceWelcome                   // answer to Hello so the newcomer learns existing peers
	PresenceAlive                     // periodic heartbeat
	PresenceBye                       // graceful leave
)

// Presence is the membership heartbeat exchanged over the bus.
type Presence struct {
	Op   PresenceOp
	Name string
}
