package messages

import "github.com/automoto/arena-sync/shared/netconfig"

// JoinRequest is sent by a UI client after connecting to the peer's bridge.
type JoinRequest struct {
	Version    string
	PlayerName string
}

// JoinAccepted is sent by the bridge when a UI client's join request is accepted.
type JoinAccepted struct {
	PeerID     netconfig.PeerID
	SessionID  string
	ServerName string
	TickRate   int
}

// JoinRejected is sent by the bridge when a UI client's join request is rejected.
type JoinRejected struct {
	Reason string
}
