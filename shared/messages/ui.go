package messages

import "github.com/automoto/arena-sync/shared/netconfig"

// DamageReport is sent by the UI client when gameplay decides a lethal hit.
type DamageReport struct {
	Attacker netconfig.PeerID
	Victim   netconfig.PeerID
}

// GameOverSignal is sent by the UI client when a designed win condition fires.
type GameOverSignal struct{}

// ReturnToLobby is sent by the UI client from the results screen.
type ReturnToLobby struct{}

// KillFeedNotice is pushed to UI clients for every kill feed line.
type KillFeedNotice struct {
	Text string
}

// PlayerListNotice is pushed to UI clients when the player list text changes.
type PlayerListNotice struct {
	Text string
}

// MatchEndedNotice is pushed to UI clients when the match result is known.
type MatchEndedNotice struct {
	WinnerName    string
	FinalScore    int
	IsLocalWinner bool
}

// ScoreReceipt carries a signed final score the wallet layer can submit.
type ScoreReceipt struct {
	Token string
	Score int
}
