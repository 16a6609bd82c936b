// Package netconfig defines lightweight types shared between every peer, the UI
// bridge and the master directory. It must have zero dependencies beyond the
// standard library so any binary can import it.
package netconfig

import "fmt"

// PeerID is the opaque transport identity of a participant. It is stable for
// the lifetime of one connection.
type PeerID uint32

// NoPeer marks the absence of a peer (no authority yet, no winner).
const NoPeer PeerID = 0

func (p PeerID) String() string {
	return fmt.Sprintf("peer-%d", uint32(p))
}

// MatchStateID represents the current lifecycle state of a match.
type MatchStateID int

const (
	MatchStateIdle    MatchStateID = iota // Waiting for the authority to start a match
	MatchStateRunning                     // Clock running, kills are scored
	MatchStateEnding                      // Winner decided, MatchEnded not yet broadcast
	MatchStateEnded                       // Terminal until return-to-lobby
)

var matchStateNames = map[MatchStateID]string{
	MatchStateIdle:    "idle",
	MatchStateRunning: "running",
	MatchStateEnding:  "ending",
	MatchStateEnded:   "ended",
}

func (s MatchStateID) String() string {
	if name, ok := matchStateNames[s]; ok {
		return name
	}
	return "unknown"
}

// Level bounds for the token metadata and authorization endpoints.
const (
	MinTokenLevel = 1
	MaxTokenLevel = 10
)
