package protocol

import (
	"github.com/automoto/arena-sync/shared/netcomponents"
	"github.com/leap-fish/necs/esync"
)

// Sync ID constants - ID 1 is reserved by necs for NetworkId
const (
	SyncIDNetMatchState uint = 15
)

// Interpolation IDs (uint8 for WithInterpFn)
const (
	InterpIDNetMatchState uint8 = 15
)

// RegisterComponents registers all network components with necs for serialization.
// This must be called by both the bridge and UI clients before any network operations.
func RegisterComponents() error {
	return esync.RegisterComponent(
		SyncIDNetMatchState,
		netcomponents.NetMatchStateData{},
		netcomponents.NetMatchState,
		esync.WithInterpFn(InterpIDNetMatchState, netcomponents.LerpNetMatchState),
	)
}
