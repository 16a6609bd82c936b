package components

import (
	"github.com/automoto/arena-sync/shared/netconfig"
	"github.com/yohamta/donburi"
)

// ParticipantData is one connected peer. The entity lives from join to leave.
type ParticipantData struct {
	ID      netconfig.PeerID
	Name    string
	JoinSeq uint64 // Local join order, only used to pick the very first authority
}

var Participant = donburi.NewComponentType[ParticipantData]()
