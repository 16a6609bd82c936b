// Package bus carries match events between the peers of one session. Every
// broadcast reaches all subscribers of its kind, the sender included.
package bus

import (
	"errors"
	"fmt"

	"github.com/automoto/arena-sync/shared/netconfig"
)

// Kind names one broadcast topic.
type Kind string

const (
	KindPlayerList    Kind = "player_list"
	KindKillFeed      Kind = "kill_feed"
	KindMatchEnded    Kind = "match_ended"
	KindTimerResync   Kind = "timer_resync"
	KindScoreSnapshot Kind = "score_snapshot"
	KindMatchStarted  Kind = "match_started"
	KindMatchReset    Kind = "match_reset"
	KindKillReport    Kind = "kill_report"
	KindGameOver      Kind = "game_over"
	KindLobbyRequest  Kind = "lobby_request"
	KindStateRequest  Kind = "state_request"
	KindPresence      Kind = "presence"
)

// MatchKinds are the topics a coordinator listens on.
var MatchKinds = []Kind{
	KindPlayerList,
	KindKillFeed,
	KindMatchEnded,
	KindTimerResync,
	KindScoreSnapshot,
	KindMatchStarted,
	KindMatchReset,
	KindKillReport,
	KindGameOver,
	KindLobbyRequest,
	KindStateRequest,
}

// Envelope wraps every payload with the sender's authority claim so
// receivers can converge on one authority.
type Envelope struct {
	Kind    Kind
	Session string
	Sender  netconfig.PeerID
	Epoch   uint64 // Sender's view of the authority epoch
	Since   int64  // Sender's view of the authority line start, unix ms
	Seq     uint64 // Per-sender sequence, increasing
	Payload []byte
}

// Handler receives envelopes. Implementations must not block.
type Handler func(Envelope)

// Subscription is an active registration.
type Subscription interface {
	Unsubscribe() error
}

// Bus is the transport between peers.
type Bus interface {
	Publish(env Envelope) error
	Subscribe(session string, kind Kind, h Handler) (Subscription, error)
	Close() error
}

var ErrClosed = errors.New("bus closed")

// Subject returns the topic name of kind within session.
func Subject(session string, kind Kind) string {
	return fmt.Sprintf("arena.%s.%s", session, kind)
}

// SessionSubject matches every kind within session.
func SessionSubject(session string) string {
	return fmt.Sprintf("arena.%s.>", session)
}
