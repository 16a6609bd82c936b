package coordinator

import (
	"github.com/automoto/arena-sync/components"
	"github.com/automoto/arena-sync/shared/netconfig"
	"github.com/automoto/arena-sync/systems"
)

// View is an immutable snapshot of the coordinator state, safe to read from
// any goroutine.
type View struct {
	Local        netconfig.PeerID
	SessionID    string
	State        netconfig.MatchStateID
	Authority    netconfig.PeerID
	Epoch        uint64
	Remaining    float64 // seconds
	ClockActive  bool
	Participants []components.ParticipantData
	Scores       map[netconfig.PeerID]int
	Names        map[netconfig.PeerID]string
	Winner       netconfig.PeerID
	WinnerName   string
	FinalScore   int
}

// IsAuthority reports whether the local peer held authority in this view.
func (v View) IsAuthority() bool {
	return v.Authority != netconfig.NoPeer && v.Authority == v.Local
}

// View returns the last published snapshot.
func (c *Coordinator) View() View {
	if v := c.view.Load(); v != nil {
		return *v
	}
	return View{Local: c.local}
}

// FinalScoreForPeer returns the ledger value of id, including the victory
// bonus once the match has ended.
func (c *Coordinator) FinalScoreForPeer(id netconfig.PeerID) int {
	return c.View().Scores[id]
}

func (c *Coordinator) publishView() {
	match := systems.MatchOf(c.world)
	clk := systems.ClockOf(c.world)
	c.view.Store(&View{
		Local:        c.local,
		SessionID:    c.session,
		State:        match.State,
		Authority:    match.Authority,
		Epoch:        match.Epoch,
		Remaining:    clk.Remaining.Seconds(),
		ClockActive:  clk.Active,
		Participants: systems.Participants(c.world),
		Scores:       systems.GetScores(c.world),
		Names:        systems.GetNames(c.world),
		Winner:       match.Winner,
		WinnerName:   match.WinnerName,
		FinalScore:   match.FinalScore,
	})
}
