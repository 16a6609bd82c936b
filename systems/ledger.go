package systems

import (
	"errors"
	"fmt"
	"maps"

	"github.com/automoto/arena-sync/shared/netconfig"
	"github.com/yohamta/donburi"
)

var ErrNotAuthority = errors.New("ledger write from non-authoritative peer")

// AddKill credits one kill to killer. Only the authority may write; callers
// have already dropped self-kills and kills outside Running.
func AddKill(w donburi.World, local, killer netconfig.PeerID) (int, error) {
	if !MatchOf(w).IsAuthority(local) {
		return 0, fmt.Errorf("add kill for %s on %s: %w", killer, local, ErrNotAuthority)
	}
	ledger := LedgerOf(w)
	ledger.Scores[killer]++
	return ledger.Scores[killer], nil
}

// ApplyAuthoritativeSnapshot replaces the local ledger wholesale.
func ApplyAuthoritativeSnapshot(w donburi.World, scores map[netconfig.PeerID]int, names map[netconfig.PeerID]string) {
	ledger := LedgerOf(w)
	ledger.Scores = make(map[netconfig.PeerID]int, len(scores))
	maps.Copy(ledger.Scores, scores)
	for id, name := range names {
		ledger.Names[id] = name
	}
}

// GetScores returns a copy of the ledger.
func GetScores(w donburi.World) map[netconfig.PeerID]int {
	return maps.Clone(LedgerOf(w).Scores)
}

// GetNames returns a copy of the known display names.
func GetNames(w donburi.World) map[netconfig.PeerID]string {
	return maps.Clone(LedgerOf(w).Names)
}

// ScoreOf returns id's tally, zero if absent.
func ScoreOf(w donburi.World, id netconfig.PeerID) int {
	return LedgerOf(w).Scores[id]
}

// NameOf returns the last known display name of id.
func NameOf(w donburi.World, id netconfig.PeerID) string {
	return LedgerOf(w).Names[id]
}

// ZeroScores resets the ledger to a zero entry per connected participant.
func ZeroScores(w donburi.World) {
	ledger := LedgerOf(w)
	ledger.Scores = make(map[netconfig.PeerID]int)
	for _, p := range Participants(w) {
		ledger.Scores[p.ID] = 0
		ledger.Names[p.ID] = p.Name
	}
}
