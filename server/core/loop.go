package core

import (
	"time"

	"github.com/benbjohnson/clock"
	"github.com/leap-fish/necs/esync/srvsync"
	"go.uber.org/zap"
)

type GameLoop struct {
	bridge   *Bridge
	tickRate int
	clk      clock.Clock
	stopChan chan struct{}
}

func NewGameLoop(bridge *Bridge, tickRate int, clk clock.Clock) *GameLoop {
	return &GameLoop{
		bridge:   bridge,
		tickRate: tickRate,
		clk:      clk,
		stopChan: make(chan struct{}),
	}
}

func (g *GameLoop) Run() {
	ticker := g.clk.Ticker(time.Second / time.Duration(g.tickRate))
	defer ticker.Stop()

	g.bridge.log.Info("replication loop started", zap.Int("tickRate", g.tickRate))

	for {
		select {
		case <-g.stopChan:
			g.bridge.log.Info("replication loop stopped")
			return
		case <-ticker.C:
			g.tick()
		}
	}
}

func (g *GameLoop) Stop() {
	close(g.stopChan)
}

func (g *GameLoop) tick() {
	g.bridge.syncState()

	if err := srvsync.DoSync(); err != nil {
		g.bridge.log.Warn("sync error", zap.Error(err))
	}
}
