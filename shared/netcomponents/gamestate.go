package netcomponents

import (
	"github.com/automoto/arena-sync/shared/netconfig"
	"github.com/yohamta/donburi"
)

// NetMatchStateData mirrors the coordinator's view for UI clients. It is
// replicated by the bridge every tick.
type NetMatchStateData struct {
	Scores     map[netconfig.PeerID]int
	Remaining  float64 // seconds shown on the HUD
	MatchState netconfig.MatchStateID
	Authority  netconfig.PeerID
	Winner     netconfig.PeerID
}

var NetMatchState = donburi.NewComponentType[NetMatchStateData]()

// LerpNetMatchState interpolates the displayed clock and snaps everything else.
func LerpNetMatchState(from, to NetMatchStateData, t float64) *NetMatchStateData {
	out := to
	if from.MatchState == to.MatchState && to.Remaining <= from.Remaining {
		out.Remaining = from.Remaining + (to.Remaining-from.Remaining)*t
	}
	return &out
}
