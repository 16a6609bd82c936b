package coordinator

import (
	"time"

	"github.com/automoto/arena-sync/bus"
	"github.com/automoto/arena-sync/shared/messages"
	"github.com/automoto/arena-sync/shared/netconfig"
	"github.com/automoto/arena-sync/systems"
	"go.uber.org/zap"
)

// handleEnvelope applies a broadcast from another peer. Requests addressed to
// the authority are served by whoever holds it locally; state broadcasts are
// only accepted from the peer this coordinator recognises as authority.
func (c *Coordinator) handleEnvelope(env bus.Envelope) {
	if env.Session != c.session || env.Sender == c.local {
		return
	}
	match := systems.MatchOf(c.world)

	switch env.Kind {
	case bus.KindKillReport:
		if !match.IsAuthority(c.local) {
			return
		}
		if report, ok := decode[messages.KillReport](c, env); ok {
			c.scoreKill(report)
		}
		return
	case bus.KindGameOver:
		if match.IsAuthority(c.local) && match.State == netconfig.MatchStateRunning {
			c.endMatch("external signal")
		}
		return
	case bus.KindLobbyRequest:
		if match.IsAuthority(c.local) {
			c.returnToLobby()
		}
		return
	case bus.KindStateRequest:
		if match.IsAuthority(c.local) {
			c.pushState()
		}
		return
	}

	if !c.acceptAuthority(env) {
		return
	}

	switch env.Kind {
	case bus.KindMatchStarted:
		if msg, ok := decode[messages.MatchStarted](c, env); ok {
			d := time.Duration(msg.Duration * float64(time.Second))
			if systems.StartMirroredMatch(c.world, c.clk.Now(), d, c.cfg.ResyncCadence) {
				c.ended = nil
				c.log.Info("match started by authority", zap.Stringer("authority", env.Sender))
				c.postTimer()
			}
		}
	case bus.KindScoreSnapshot:
		if msg, ok := decode[messages.ScoreSnapshot](c, env); ok {
			systems.ApplyAuthoritativeSnapshot(c.world, msg.Scores, msg.Names)
			c.postPlayerList()
		}
	case bus.KindTimerResync:
		if msg, ok := decode[messages.TimerResync](c, env); ok {
			c.applyResync(env, msg)
		}
	case bus.KindPlayerList:
		if msg, ok := decode[messages.PlayerListChanged](c, env); ok {
			c.postPlayerListText(renderPlayerList(msg.Players))
		}
	case bus.KindKillFeed:
		if msg, ok := decode[messages.KillFeed](c, env); ok {
			if _, seen := match.SeenKills[msg.KillID]; seen {
				return
			}
			match.SeenKills[msg.KillID] = struct{}{}
			c.postKillFeed(msg)
		}
	case bus.KindMatchEnded:
		if msg, ok := decode[messages.MatchEnded](c, env); ok {
			c.applyMatchEnded(msg)
		}
	case bus.KindMatchReset:
		if match.State != netconfig.MatchStateIdle {
			c.resetMatch()
		}
	}
}

// acceptAuthority decides whether env comes from the authority. A better
// claim from a registered peer is adopted first.
func (c *Coordinator) acceptAuthority(env bus.Envelope) bool {
	match := systems.MatchOf(c.world)
	now := c.clk.Now().UnixMilli()

	if env.Sender == match.Authority {
		if env.Epoch > match.Epoch {
			match.Epoch = env.Epoch
			match.AuthoritySince = env.Since
		}
		if match.AuthorityStale {
			c.log.Info("authority heard again", zap.Stringer("authority", env.Sender))
			match.AuthorityStale = false
		}
		match.LastHeardAt = now
		c.synced = true
		return true
	}
	if !systems.IsRegistered(c.world, env.Sender) {
		c.log.Debug("dropping broadcast from unregistered peer",
			zap.Stringer("sender", env.Sender), zap.String("kind", string(env.Kind)))
		return false
	}
	if !systems.ClaimBeats(env.Epoch, env.Since, env.Sender, match) {
		c.log.Debug("dropping broadcast with stale authority claim",
			zap.Stringer("sender", env.Sender), zap.Uint64("epoch", env.Epoch))
		return false
	}

	wasAuthority := match.IsAuthority(c.local)
	if err := systems.AdoptClaim(c.world, env.Sender, env.Epoch, env.Since); err != nil {
		c.log.Warn("adopt claim failed", zap.Error(err))
		return false
	}
	match.LastHeardAt = now
	c.synced = true
	c.log.Info("adopted authority claim",
		zap.Stringer("authority", env.Sender), zap.Uint64("epoch", env.Epoch))
	if wasAuthority {
		c.log.Info("stepped down")
	}
	return true
}

// assumeAuthority runs the side effects of becoming authority through a
// transfer: adopt the mirrored clock, finish a match stuck in Ending and
// push fresh state to everyone.
func (c *Coordinator) assumeAuthority() {
	now := c.clk.Now()
	match := systems.MatchOf(c.world)
	systems.AdoptClock(c.world, now)
	c.log.Info("assumed authority", zap.Uint64("epoch", match.Epoch), zap.Stringer("state", match.State))

	if match.State == netconfig.MatchStateEnding && !match.EndedObserved {
		c.finishMatch()
	}
	c.pushState()
}

func (c *Coordinator) applyResync(env bus.Envelope, msg messages.TimerResync) {
	match := systems.MatchOf(c.world)
	if env.Epoch < match.ResyncEpoch {
		return
	}
	if env.Sender == match.ResyncFrom && env.Epoch == match.ResyncEpoch && env.Seq <= match.ResyncSeq {
		return
	}
	match.ResyncFrom = env.Sender
	match.ResyncEpoch = env.Epoch
	match.ResyncSeq = env.Seq

	systems.ApplyRemoteState(c.world, msg.State)
	if msg.State == netconfig.MatchStateEnding {
		systems.RecordOutcome(c.world, msg.Winner, msg.WinnerName, msg.FinalScore)
	}
	remaining := time.Duration(msg.Remaining * float64(time.Second))
	if systems.ResyncClock(c.world, c.clk.Now(), remaining, msg.Active, c.cfg.ResyncCadence) {
		c.postTimer()
	}
}

func decode[T any](c *Coordinator, env bus.Envelope) (T, bool) {
	v, err := bus.Decode[T](env)
	if err != nil {
		c.log.Warn("dropping undecodable broadcast", zap.Stringer("sender", env.Sender), zap.Error(err))
		return v, false
	}
	return v, true
}
