package coordinator

import (
	"fmt"
	"math"
	"strings"

	"github.com/automoto/arena-sync/bus"
	"github.com/automoto/arena-sync/components"
	"github.com/automoto/arena-sync/shared/messages"
	"github.com/automoto/arena-sync/shared/netconfig"
	"github.com/automoto/arena-sync/systems"
	"go.uber.org/zap"
)

// broadcast stamps payload with the local authority claim and publishes it.
// Transport errors are logged; periodic resync repairs what was lost.
func (c *Coordinator) broadcast(kind bus.Kind, payload any) {
	if c.session == "" {
		return
	}
	data, err := bus.Encode(payload)
	if err != nil {
		c.log.Error("encode failed", zap.String("kind", string(kind)), zap.Error(err))
		return
	}
	match := systems.MatchOf(c.world)
	c.seq++
	env := bus.Envelope{
		Kind:    kind,
		Session: c.session,
		Sender:  c.local,
		Epoch:   match.Epoch,
		Since:   match.AuthoritySince,
		Seq:     c.seq,
		Payload: data,
	}
	if err := c.bus.Publish(env); err != nil {
		c.log.Warn("broadcast failed", zap.String("kind", string(kind)), zap.Error(err))
	}
}

// pushState sends everything a peer needs to converge on the authority.
func (c *Coordinator) pushState() {
	c.sendPlayerList()
	c.sendSnapshot()
	c.sendResync()
	if systems.MatchOf(c.world).State == netconfig.MatchStateEnded && c.ended != nil {
		c.broadcast(bus.KindMatchEnded, *c.ended)
	}
}

func (c *Coordinator) sendSnapshot() {
	c.broadcast(bus.KindScoreSnapshot, messages.ScoreSnapshot{
		Scores: systems.GetScores(c.world),
		Names:  systems.GetNames(c.world),
	})
}

func (c *Coordinator) sendResync() {
	match := systems.MatchOf(c.world)
	clk := systems.ClockOf(c.world)
	msg := messages.TimerResync{
		Remaining: clk.Remaining.Seconds(),
		Active:    clk.Active,
		State:     match.State,
	}
	if match.Winner != netconfig.NoPeer {
		msg.Winner = match.Winner
		msg.WinnerName = match.WinnerName
		msg.FinalScore = match.FinalScore
	}
	c.broadcast(bus.KindTimerResync, msg)
}

func (c *Coordinator) sendPlayerList() {
	c.broadcast(bus.KindPlayerList, messages.PlayerListChanged{Players: c.playerEntries()})
}

// playerEntries lists connected participants only; a departed peer's tally
// stays in the ledger but is not shown.
func (c *Coordinator) playerEntries() []messages.PlayerEntry {
	participants := systems.Participants(c.world)
	entries := make([]messages.PlayerEntry, 0, len(participants))
	for _, p := range participants {
		entries = append(entries, messages.PlayerEntry{
			ID:    p.ID,
			Name:  p.Name,
			Score: systems.ScoreOf(c.world, p.ID),
		})
	}
	return entries
}

func (c *Coordinator) postPlayerList() {
	c.postPlayerListText(renderPlayerList(c.playerEntries()))
}

func (c *Coordinator) postPlayerListText(text string) {
	components.PlayerListChanged.Publish(c.world, components.PlayerListChangedEvent{Text: text})
}

func (c *Coordinator) postKillFeed(feed messages.KillFeed) {
	components.KillFeedPosted.Publish(c.world, components.KillFeedEvent{Text: renderKillFeed(feed)})
}

// postTimer notifies the UI when the shown value changes by a tenth of a
// second or more.
func (c *Coordinator) postTimer() {
	remaining := systems.RemainingSeconds(c.world)
	if c.shown >= 0 && math.Abs(remaining-c.shown) < 0.1 {
		return
	}
	c.shown = remaining
	components.TimerUpdated.Publish(c.world, components.TimerUpdatedEvent{Remaining: remaining})
}

func renderPlayerList(players []messages.PlayerEntry) string {
	var b strings.Builder
	for i, p := range players {
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "%s: %d", displayName(p.Name, p.ID), p.Score)
	}
	return b.String()
}

func renderKillFeed(feed messages.KillFeed) string {
	return fmt.Sprintf("%s eliminated %s",
		displayName(feed.KillerName, feed.Killer), displayName(feed.VictimName, feed.Victim))
}

func displayName(name string, id fmt.Stringer) string {
	if name != "" {
		return name
	}
	return id.String()
}
