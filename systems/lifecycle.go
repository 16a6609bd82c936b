package systems

import (
	"errors"
	"fmt"
	"maps"
	"time"

	"github.com/automoto/arena-sync/components"
	"github.com/automoto/arena-sync/shared/messages"
	"github.com/automoto/arena-sync/shared/netconfig"
	"github.com/yohamta/donburi"
)

// VictoryBonus is added to the winner's tally when the match ends.
const VictoryBonus = 1

var ErrInvalidTransition = errors.New("invalid match state transition")

// Outcome is the decided result of a match.
type Outcome struct {
	Winner     netconfig.PeerID
	WinnerName string
	FinalScore int // Ledger score plus the victory bonus
	Scores     map[netconfig.PeerID]int
}

// StartMatch moves Idle -> Running: zeroes the ledger for every participant
// and starts the clock.
func StartMatch(w donburi.World, now time.Time, d time.Duration) error {
	match := MatchOf(w)
	if match.State != netconfig.MatchStateIdle {
		return fmt.Errorf("start match in %s: %w", match.State, ErrInvalidTransition)
	}
	match.ResetMatchScope()
	match.State = netconfig.MatchStateRunning
	ZeroScores(w)
	StartClock(w, now, d)
	return nil
}

// StartMirroredMatch applies a remote MatchStarted on a mirror. It is a
// no-op if the mirror already runs.
func StartMirroredMatch(w donburi.World, now time.Time, d time.Duration, cadence time.Duration) bool {
	match := MatchOf(w)
	if match.State == netconfig.MatchStateRunning {
		return false
	}
	match.ResetMatchScope()
	match.State = netconfig.MatchStateRunning
	ZeroScores(w)
	*ClockOf(w) = components.ClockData{}
	ResyncClock(w, now, d, true, cadence)
	return true
}

// DecideWinner picks the highest score among connected participants. Ties go
// to the first participant in registry order (lowest id).
func DecideWinner(w donburi.World) Outcome {
	ledger := LedgerOf(w)
	out := Outcome{Winner: netconfig.NoPeer, Scores: maps.Clone(ledger.Scores)}
	best := -1
	for _, p := range Participants(w) {
		score := ledger.Scores[p.ID]
		if score > best {
			best = score
			out.Winner = p.ID
			out.WinnerName = p.Name
		}
	}
	if out.Winner != netconfig.NoPeer {
		out.FinalScore = best + VictoryBonus
	}
	return out
}

// BeginEnding moves Running -> Ending and records the decided winner.
func BeginEnding(w donburi.World) (Outcome, error) {
	match := MatchOf(w)
	if match.State != netconfig.MatchStateRunning {
		return Outcome{}, fmt.Errorf("begin ending in %s: %w", match.State, ErrInvalidTransition)
	}
	StopClock(w)
	match.State = netconfig.MatchStateEnding
	out := DecideWinner(w)
	recordOutcome(w, out)
	return out, nil
}

// RecomputeOutcome returns the outcome for a match stuck in Ending after an
// authority change. A winner already announced with the Ending state is
// kept; otherwise selection re-runs over the same ledger.
func RecomputeOutcome(w donburi.World) (Outcome, error) {
	match := MatchOf(w)
	if match.State != netconfig.MatchStateEnding || match.EndedObserved {
		return Outcome{}, fmt.Errorf("recompute outcome in %s: %w", match.State, ErrInvalidTransition)
	}
	if match.Winner != netconfig.NoPeer {
		return Outcome{
			Winner:     match.Winner,
			WinnerName: match.WinnerName,
			FinalScore: match.FinalScore,
			Scores:     GetScores(w),
		}, nil
	}
	out := DecideWinner(w)
	recordOutcome(w, out)
	return out, nil
}

// RecordOutcome stores an outcome announced by the authority while Ending.
func RecordOutcome(w donburi.World, winner netconfig.PeerID, name string, finalScore int) {
	match := MatchOf(w)
	if match.EndedObserved || winner == netconfig.NoPeer {
		return
	}
	recordOutcome(w, Outcome{Winner: winner, WinnerName: name, FinalScore: finalScore})
}

func recordOutcome(w donburi.World, out Outcome) {
	match := MatchOf(w)
	match.Winner = out.Winner
	match.WinnerName = out.WinnerName
	match.FinalScore = out.FinalScore
}

// ApplyMatchEnded moves to Ended from any live state. The announced scores
// replace the ledger and the bonus is written exactly once. It reports false
// for a repeated delivery.
func ApplyMatchEnded(w donburi.World, ended messages.MatchEnded) bool {
	match := MatchOf(w)
	if match.EndedObserved {
		return false
	}
	if ended.Scores != nil {
		ApplyAuthoritativeSnapshot(w, ended.Scores, nil)
	}
	if ended.Winner != netconfig.NoPeer && !match.BonusApplied {
		ledger := LedgerOf(w)
		ledger.Scores[ended.Winner] = ended.FinalScore
		if ended.WinnerName != "" {
			ledger.Names[ended.Winner] = ended.WinnerName
		}
		match.BonusApplied = true
	}
	StopClock(w)
	match.State = netconfig.MatchStateEnded
	match.Winner = ended.Winner
	match.WinnerName = ended.WinnerName
	match.FinalScore = ended.FinalScore
	match.EndedObserved = true
	return true
}

// ResetToIdle moves back to Idle, clearing the ledger and match flags while
// keeping membership and authority.
func ResetToIdle(w donburi.World) {
	MatchOf(w).ResetMatchScope()
	ledger := LedgerOf(w)
	ledger.Scores = make(map[netconfig.PeerID]int)
	*ClockOf(w) = components.ClockData{}
}

// ApplyRemoteState converges a mirror's lifecycle onto the state announced
// by the authority. Ended is only entered through ApplyMatchEnded, so a
// missed MatchEnded leaves the mirror in Ending until it is redelivered.
func ApplyRemoteState(w donburi.World, state netconfig.MatchStateID) {
	match := MatchOf(w)
	if match.State == state {
		return
	}
	switch state {
	case netconfig.MatchStateIdle:
		ResetToIdle(w)
	case netconfig.MatchStateRunning:
		if match.State != netconfig.MatchStateIdle {
			match.ResetMatchScope()
		}
		match.State = netconfig.MatchStateRunning
	case netconfig.MatchStateEnding:
		if match.EndedObserved {
			return
		}
		StopClock(w)
		match.State = netconfig.MatchStateEnding
	case netconfig.MatchStateEnded:
		if !match.EndedObserved {
			StopClock(w)
			match.State = netconfig.MatchStateEnding
		}
	}
}
