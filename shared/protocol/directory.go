package protocol

// SessionInfo describes a peer's session as listed by the master directory.
type SessionInfo struct {
	ID        string `json:"id"`
	SessionID string `json:"sessionId"`
	Name      string `json:"name"`
	Address   string `json:"address"`
	Players   int    `json:"players"`
	State     string `json:"state"`
	Version   string `json:"version"`
	Region    string `json:"region"`
}

// RegisterRequest is posted by a peer to /sessions/register.
type RegisterRequest struct {
	SessionID string `json:"sessionId"`
	Name      string `json:"name"`
	Address   string `json:"address"`
	Players   int    `json:"players"`
	State     string `json:"state"`
	Version   string `json:"version"`
	Region    string `json:"region"`
}

type RegisterResponse struct {
	ID string `json:"id"`
}

// HeartbeatRequest is posted by a peer to /sessions/heartbeat.
type HeartbeatRequest struct {
	ID      string `json:"id"`
	Players int    `json:"players"`
	State   string `json:"state"`
}
