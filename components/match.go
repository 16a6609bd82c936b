package components

import (
	"github.com/automoto/arena-sync/shared/netconfig"
	"github.com/yohamta/donburi"
)

// MatchData stores the lifecycle and authority state of the current session.
// This is a singleton component - only one match exists per world.
type MatchData struct {
	SessionID string
	State     netconfig.MatchStateID
	Authority netconfig.PeerID // Current authoritative peer (NoPeer before the first join)
	Epoch     uint64           // Incremented on every authority change
	// unix ms the current authority line was established; earlier wins a
	// conflicting claim at the same epoch
	AuthoritySince int64

	Winner     netconfig.PeerID // Decided on Running -> Ending
	WinnerName string
	FinalScore int // Winner's score including the victory bonus

	EndedObserved bool // A MatchEnded was broadcast or received for this match
	BonusApplied  bool // The victory bonus is already part of the ledger

	JoinSeq     uint64              // Participants registered since the room was entered
	ResyncFrom  netconfig.PeerID    // Sender of the last applied resync
	ResyncEpoch uint64              // Epoch of the last applied resync
	ResyncSeq   uint64              // Sequence of the last applied resync within ResyncEpoch
	SeenKills   map[string]struct{} // Kill report ids already scored
	LastHeardAt int64               // unix ms of the last envelope from the authority
	// The authority stayed silent past the timeout; it is still registered
	AuthorityStale bool
}

var Match = donburi.NewComponentType[MatchData]()

// IsAuthority reports whether id holds authority.
func (m *MatchData) IsAuthority(id netconfig.PeerID) bool {
	return m.Authority != netconfig.NoPeer && m.Authority == id
}

// ResetMatchScope clears everything scoped to one match while keeping
// authority and session identity.
func (m *MatchData) ResetMatchScope() {
	m.State = netconfig.MatchStateIdle
	m.Winner = netconfig.NoPeer
	m.WinnerName = ""
	m.FinalScore = 0
	m.EndedObserved = false
	m.BonusApplied = false
	m.SeenKills = make(map[string]struct{})
}
