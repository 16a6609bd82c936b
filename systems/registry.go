package systems

import (
	"errors"
	"fmt"
	"slices"

	"github.com/automoto/arena-sync/archetypes"
	"github.com/automoto/arena-sync/components"
	"github.com/automoto/arena-sync/shared/netconfig"
	"github.com/automoto/arena-sync/tags"
	"github.com/yohamta/donburi"
	"github.com/yohamta/donburi/filter"
)

var (
	ErrDuplicatePeer = errors.New("peer already registered")
	ErrUnknownPeer   = errors.New("peer not registered")
)

var participantQuery = donburi.NewQuery(filter.Contains(components.Participant))

// Join registers a peer. The first peer registered on an empty room becomes
// the authority; since is the unix ms timestamp recorded for that claim.
func Join(w donburi.World, id netconfig.PeerID, name string, local bool, since int64) (becameAuthority bool, err error) {
	if id == netconfig.NoPeer {
		return false, fmt.Errorf("join %s: %w", id, ErrUnknownPeer)
	}
	if _, ok := findParticipant(w, id); ok {
		return false, fmt.Errorf("join %s: %w", id, ErrDuplicatePeer)
	}

	match := MatchOf(w)
	match.JoinSeq++

	var entry *donburi.Entry
	if local {
		entry = archetypes.Participant.Spawn(w, tags.Local)
	} else {
		entry = archetypes.Participant.Spawn(w)
	}
	components.Participant.SetValue(entry, components.ParticipantData{
		ID:      id,
		Name:    name,
		JoinSeq: match.JoinSeq,
	})

	ledger := LedgerOf(w)
	ledger.Names[id] = name
	if _, ok := ledger.Scores[id]; !ok {
		ledger.Scores[id] = 0
	}

	if match.Authority == netconfig.NoPeer {
		match.Authority = id
		match.Epoch++
		match.AuthoritySince = since
		match.AuthorityStale = false
		return true, nil
	}
	return false, nil
}

// Leave unregisters a peer. If it held authority, the lowest remaining peer
// id takes over and the epoch advances; every peer computes the same answer.
func Leave(w donburi.World, id netconfig.PeerID) (newAuthority netconfig.PeerID, transferred bool, err error) {
	entry, ok := findParticipant(w, id)
	if !ok {
		return netconfig.NoPeer, false, fmt.Errorf("leave %s: %w", id, ErrUnknownPeer)
	}
	w.Remove(entry.Entity())

	match := MatchOf(w)
	if match.Authority != id {
		return match.Authority, false, nil
	}

	next := netconfig.NoPeer
	if remaining := Participants(w); len(remaining) > 0 {
		next = remaining[0].ID
	}
	match.Authority = next
	match.Epoch++
	match.AuthorityStale = false
	return next, true, nil
}

// CurrentAuthority returns the authoritative peer, or NoPeer.
func CurrentAuthority(w donburi.World) netconfig.PeerID {
	return MatchOf(w).Authority
}

// TransferAuthority hands authority to a registered peer and advances the epoch.
func TransferAuthority(w donburi.World, id netconfig.PeerID) error {
	if _, ok := findParticipant(w, id); !ok {
		return fmt.Errorf("transfer to %s: %w", id, ErrUnknownPeer)
	}
	match := MatchOf(w)
	if match.Authority == id {
		return nil
	}
	match.Authority = id
	match.Epoch++
	match.AuthorityStale = false
	return nil
}

// SuspendAuthority marks the authority as silent without unregistering it
// and returns its successor: the lowest registered id other than the silent
// authority, or NoPeer when nobody else is left.
func SuspendAuthority(w donburi.World) netconfig.PeerID {
	match := MatchOf(w)
	match.AuthorityStale = true
	for _, p := range Participants(w) {
		if p.ID != match.Authority {
			return p.ID
		}
	}
	return netconfig.NoPeer
}

// ClaimBeats reports whether an authority claim (epoch, since, id) wins over
// the one currently held. Higher epoch wins, then the older line, then the
// lower peer id.
func ClaimBeats(epoch uint64, since int64, id netconfig.PeerID, match *components.MatchData) bool {
	if match.Authority == netconfig.NoPeer {
		return true
	}
	if epoch != match.Epoch {
		return epoch > match.Epoch
	}
	if since != match.AuthoritySince {
		return since < match.AuthoritySince
	}
	return id < match.Authority
}

// AdoptClaim installs a remote authority claim verbatim. The claimant must be
// registered.
func AdoptClaim(w donburi.World, id netconfig.PeerID, epoch uint64, since int64) error {
	if _, ok := findParticipant(w, id); !ok {
		return fmt.Errorf("adopt claim of %s: %w", id, ErrUnknownPeer)
	}
	match := MatchOf(w)
	match.Authority = id
	match.Epoch = epoch
	match.AuthoritySince = since
	match.AuthorityStale = false
	return nil
}

// Participants returns the connected peers in ascending id order. This is the
// registry iteration order used for tie-breaks.
func Participants(w donburi.World) []components.ParticipantData {
	var out []components.ParticipantData
	participantQuery.Each(w, func(entry *donburi.Entry) {
		out = append(out, *components.Participant.Get(entry))
	})
	slices.SortFunc(out, func(a, b components.ParticipantData) int {
		switch {
		case a.ID < b.ID:
			return -1
		case a.ID > b.ID:
			return 1
		}
		return 0
	})
	return out
}

// IsRegistered reports whether id is currently connected.
func IsRegistered(w donburi.World, id netconfig.PeerID) bool {
	_, ok := findParticipant(w, id)
	return ok
}

// ParticipantCount returns the number of connected peers.
func ParticipantCount(w donburi.World) int {
	return participantQuery.Count(w)
}

func findParticipant(w donburi.World, id netconfig.PeerID) (*donburi.Entry, bool) {
	var found *donburi.Entry
	participantQuery.Each(w, func(entry *donburi.Entry) {
		if found == nil && components.Participant.Get(entry).ID == id {
			found = entry
		}
	})
	return found, found != nil
}
