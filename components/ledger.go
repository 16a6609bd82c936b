package components

import (
	"github.com/automoto/arena-sync/shared/netconfig"
	"github.com/yohamta/donburi"
)

// LedgerData is the per-peer kill tally. Entries are never pruned by
// membership so a departed attacker's kills still count.
type LedgerData struct {
	Scores map[netconfig.PeerID]int
	Names  map[netconfig.PeerID]string // Last known display name per scored peer
}

var Ledger = donburi.NewComponentType[LedgerData]()

// Clear empties the ledger.
func (l *LedgerData) Clear() {
	l.Scores = make(map[netconfig.PeerID]int)
	l.Names = make(map[netconfig.PeerID]string)
}
