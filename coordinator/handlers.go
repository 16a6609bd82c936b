package coordinator

import (
	"errors"
	"fmt"

	"github.com/automoto/arena-sync/bus"
	"github.com/automoto/arena-sync/components"
	"github.com/automoto/arena-sync/shared/messages"
	"github.com/automoto/arena-sync/shared/netconfig"
	"github.com/automoto/arena-sync/systems"
	"github.com/google/uuid"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

type (
	joinedRoom        struct{ session string }
	leftRoom          struct{}
	participantJoined struct {
		id   netconfig.PeerID
		name string
	}
	participantLeft struct{ id netconfig.PeerID }
	damageDealt     struct{ attacker, victim netconfig.PeerID }
	gameOver        struct{}
	returnToLobby   struct{}
	inbound         struct{ env bus.Envelope }
)

func (c *Coordinator) handle(cmd any) {
	switch cmd := cmd.(type) {
	case joinedRoom:
		c.joinRoom(cmd.session)
	case leftRoom:
		c.leaveRoom()
	case participantJoined:
		c.participantJoined(cmd.id, cmd.name)
	case participantLeft:
		c.participantLeft(cmd.id)
	case damageDealt:
		c.damageDealt(cmd.attacker, cmd.victim)
	case gameOver:
		c.externalGameOver()
	case returnToLobby:
		c.returnToLobby()
	case inbound:
		c.handleEnvelope(cmd.env)
	default:
		c.log.Warn("unknown command", zap.String("type", fmt.Sprintf("%T", cmd)))
	}
	c.step()
}

func (c *Coordinator) joinRoom(session string) {
	if c.session != "" {
		c.leaveRoom()
	}
	systems.ClearWorld(c.world)
	c.session = session
	c.ended = nil
	c.shown = -1
	c.synced = false
	systems.MatchOf(c.world).SessionID = session

	for _, kind := range bus.MatchKinds {
		sub, err := c.bus.Subscribe(session, kind, c.receive)
		if err != nil {
			c.log.Error("subscribe failed", zap.String("kind", string(kind)), zap.Error(err))
			continue
		}
		c.subs = append(c.subs, sub)
	}
	c.timers.start(c.clk, c.cfg.TickInterval, c.cfg.ResyncCadence)
	c.log.Info("joined room", zap.String("session", session))
}

func (c *Coordinator) leaveRoom() {
	c.timers.stop()
	var err error
	for _, sub := range c.subs {
		err = multierr.Append(err, sub.Unsubscribe())
	}
	c.subs = nil
	if err != nil {
		c.log.Warn("unsubscribe failed", zap.Error(err))
	}
	if c.session != "" {
		c.log.Info("left room", zap.String("session", c.session))
	}
	systems.ClearWorld(c.world)
	c.session = ""
	c.ended = nil
	c.synced = false
}

func (c *Coordinator) participantJoined(id netconfig.PeerID, name string) {
	if c.session == "" {
		c.log.Debug("participant joined outside a room", zap.Stringer("id", id))
		return
	}
	now := c.clk.Now()
	became, err := systems.Join(c.world, id, name, id == c.local, now.UnixMilli())
	if err != nil {
		if errors.Is(err, systems.ErrDuplicatePeer) {
			c.invariant(err, zap.Stringer("id", id))
		} else {
			c.log.Warn("join rejected", zap.Error(err))
		}
		return
	}
	c.log.Info("participant joined", zap.Stringer("id", id), zap.String("name", name))

	match := systems.MatchOf(c.world)
	if became {
		match.LastHeardAt = now.UnixMilli()
		c.log.Info("authority established", zap.Stringer("authority", id), zap.Uint64("epoch", match.Epoch))
	}

	if match.IsAuthority(c.local) {
		if match.State == netconfig.MatchStateIdle {
			c.startMatch()
		}
		c.pushState()
	}
	if id != c.local && !c.synced {
		c.broadcast(bus.KindStateRequest, messages.StateRequest{RequestedBy: c.local})
	}
	c.postPlayerList()
}

func (c *Coordinator) participantLeft(id netconfig.PeerID) {
	next, transferred, err := systems.Leave(c.world, id)
	if err != nil {
		c.log.Debug("leave ignored", zap.Error(err))
		return
	}
	c.log.Info("participant left", zap.Stringer("id", id))

	if transferred {
		match := systems.MatchOf(c.world)
		match.LastHeardAt = c.clk.Now().UnixMilli()
		c.log.Info("authority transferred",
			zap.Stringer("from", id), zap.Stringer("to", next), zap.Uint64("epoch", match.Epoch))
		if next == c.local {
			c.assumeAuthority()
		}
	} else if systems.MatchOf(c.world).IsAuthority(c.local) {
		c.sendPlayerList()
	}
	c.postPlayerList()
}

func (c *Coordinator) damageDealt(attacker, victim netconfig.PeerID) {
	if attacker == victim {
		c.log.Debug("self kill discarded", zap.Stringer("peer", attacker))
		return
	}
	report := messages.KillReport{
		KillID: uuid.NewString(),
		Killer: attacker,
		Victim: victim,
		At:     c.clk.Now().UnixMilli(),
	}
	// A mirror forwards whatever its local state; the authority decides.
	if !systems.MatchOf(c.world).IsAuthority(c.local) {
		c.broadcast(bus.KindKillReport, report)
		return
	}
	c.scoreKill(report)
	// Until a remote authority is heard the local claim may be the bootstrap
	// one of a late joiner, so the report is offered to the real holder too.
	if !c.synced {
		c.broadcast(bus.KindKillReport, report)
	}
}

func (c *Coordinator) scoreKill(report messages.KillReport) {
	match := systems.MatchOf(c.world)
	if match.State != netconfig.MatchStateRunning || report.Killer == report.Victim {
		return
	}
	if _, seen := match.SeenKills[report.KillID]; seen {
		return
	}
	match.SeenKills[report.KillID] = struct{}{}

	score, err := systems.AddKill(c.world, c.local, report.Killer)
	if err != nil {
		c.invariant(err)
		return
	}
	c.log.Debug("kill scored", zap.Stringer("killer", report.Killer), zap.Int("score", score))

	feed := messages.KillFeed{
		KillID:     report.KillID,
		Killer:     report.Killer,
		Victim:     report.Victim,
		KillerName: systems.NameOf(c.world, report.Killer),
		VictimName: systems.NameOf(c.world, report.Victim),
	}
	c.sendSnapshot()
	c.broadcast(bus.KindKillFeed, feed)
	c.sendPlayerList()
	c.postKillFeed(feed)
	c.postPlayerList()
}

func (c *Coordinator) externalGameOver() {
	match := systems.MatchOf(c.world)
	if match.State != netconfig.MatchStateRunning {
		return
	}
	if match.IsAuthority(c.local) {
		c.endMatch("external signal")
		return
	}
	c.broadcast(bus.KindGameOver, messages.GameOverRequest{RequestedBy: c.local})
}

func (c *Coordinator) returnToLobby() {
	match := systems.MatchOf(c.world)
	if match.State != netconfig.MatchStateEnded {
		c.log.Debug("return to lobby ignored", zap.Stringer("state", match.State))
		return
	}
	if !match.IsAuthority(c.local) {
		c.broadcast(bus.KindLobbyRequest, messages.LobbyRequest{RequestedBy: c.local})
		return
	}
	c.resetMatch()
	c.broadcast(bus.KindMatchReset, messages.MatchReset{SessionID: c.session})
	c.sendResync()
}

func (c *Coordinator) startMatch() {
	if err := systems.StartMatch(c.world, c.clk.Now(), c.cfg.Duration); err != nil {
		c.invariant(err)
		return
	}
	c.ended = nil
	c.log.Info("match started", zap.Duration("duration", c.cfg.Duration))
	c.broadcast(bus.KindMatchStarted, messages.MatchStarted{
		SessionID: c.session,
		Duration:  c.cfg.Duration.Seconds(),
	})
	c.postTimer()
}

// endMatch moves Running -> Ending on the authority, announces the Ending
// state with the decided winner, then broadcasts the outcome.
func (c *Coordinator) endMatch(reason string) {
	systems.TickAuthority(c.world, c.clk.Now())
	out, err := systems.BeginEnding(c.world)
	if err != nil {
		c.log.Debug("end match ignored", zap.Error(err))
		return
	}
	c.log.Info("match ending",
		zap.String("reason", reason), zap.Stringer("winner", out.Winner), zap.Int("final_score", out.FinalScore))
	c.sendResync()
	c.finishMatch()
}

// finishMatch broadcasts MatchEnded for a match in Ending and applies it
// locally. A new authority calls it for a match left stuck in Ending.
func (c *Coordinator) finishMatch() {
	out, err := systems.RecomputeOutcome(c.world)
	if err != nil {
		return
	}
	ended := messages.MatchEnded{
		SessionID:  c.session,
		Winner:     out.Winner,
		WinnerName: out.WinnerName,
		FinalScore: out.FinalScore,
		Scores:     out.Scores,
	}
	c.broadcast(bus.KindMatchEnded, ended)
	c.applyMatchEnded(ended)
}

func (c *Coordinator) applyMatchEnded(ended messages.MatchEnded) {
	if !systems.ApplyMatchEnded(c.world, ended) {
		return
	}
	c.ended = &ended
	c.log.Info("match ended",
		zap.Stringer("winner", ended.Winner), zap.String("winner_name", ended.WinnerName),
		zap.Int("final_score", ended.FinalScore))
	components.MatchEndedPosted.Publish(c.world, components.MatchEndedEvent{
		WinnerName:    ended.WinnerName,
		FinalScore:    ended.FinalScore,
		IsLocalWinner: ended.Winner == c.local,
	})
	c.postTimer()
	c.postPlayerList()
}

func (c *Coordinator) resetMatch() {
	systems.ResetToIdle(c.world)
	c.ended = nil
	c.log.Info("match reset")
	c.postTimer()
	c.postPlayerList()
}
