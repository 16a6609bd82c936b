package systems

import (
	"github.com/automoto/arena-sync/archetypes"
	"github.com/automoto/arena-sync/components"
	"github.com/automoto/arena-sync/shared/netconfig"
	"github.com/yohamta/donburi"
)

// NewMatchWorld creates a world holding the match singleton.
func NewMatchWorld() donburi.World {
	w := donburi.NewWorld()
	ensureMatchEntry(w)
	return w
}

func ensureMatchEntry(w donburi.World) *donburi.Entry {
	if entry, ok := components.Match.First(w); ok {
		return entry
	}
	entry := archetypes.Match.Spawn(w)
	components.Match.SetValue(entry, components.MatchData{
		SeenKills: make(map[string]struct{}),
	})
	components.Ledger.SetValue(entry, components.LedgerData{
		Scores: make(map[netconfig.PeerID]int),
		Names:  make(map[netconfig.PeerID]string),
	})
	return entry
}

// MatchOf returns the match singleton, creating it if needed.
func MatchOf(w donburi.World) *components.MatchData {
	return components.Match.Get(ensureMatchEntry(w))
}

// LedgerOf returns the ledger singleton.
func LedgerOf(w donburi.World) *components.LedgerData {
	return components.Ledger.Get(ensureMatchEntry(w))
}

// ClockOf returns the match clock singleton.
func ClockOf(w donburi.World) *components.ClockData {
	return components.Clock.Get(ensureMatchEntry(w))
}

// ClearWorld removes every participant and wipes all match scoped state,
// including authority. Used on the join-room and left-room boundaries.
func ClearWorld(w donburi.World) {
	var stale []donburi.Entity
	participantQuery.Each(w, func(entry *donburi.Entry) {
		stale = append(stale, entry.Entity())
	})
	for _, e := range stale {
		w.Remove(e)
	}

	match := MatchOf(w)
	*match = components.MatchData{SeenKills: make(map[string]struct{})}
	LedgerOf(w).Clear()
	*ClockOf(w) = components.ClockData{}
}
