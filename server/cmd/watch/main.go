// Command watch joins a peer's bridge as a headless UI client and logs every
// notice and match state change it receives.
package main

import (
	"context"
	"flag"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/automoto/arena-sync/network"
	"github.com/automoto/arena-sync/shared/netcomponents"
	"github.com/automoto/arena-sync/shared/protocol"
	"go.uber.org/zap"
)

func main() {
	address := flag.String("address", "localhost:7373", "Bridge address")
	version := flag.String("version", "", "Client version sent with the join request")
	name := flag.String("name", "watcher", "Player name sent with the join request")
	poll := flag.Duration("poll", 200*time.Millisecond, "Notice poll interval")
	flag.Parse()

	logger, err := zap.NewDevelopment()
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	if err := protocol.RegisterComponents(); err != nil {
		logger.Fatal("register components", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	client := network.NewClient(logger)
	client.Connect(*address, *version, *name)
	defer client.Disconnect()

	ticker := time.NewTicker(*poll)
	defer ticker.Stop()

	lastList := ""
	var lastState netcomponents.NetMatchStateData
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		if client.State() == network.StateError {
			logger.Fatal("bridge connection failed", zap.Error(client.LastError()))
		}
		if snap := client.LatestSnapshot(); snap != nil {
			if state, ok := network.MatchState(*snap); ok {
				if state.MatchState != lastState.MatchState || state.Authority != lastState.Authority {
					logger.Info("match state",
						zap.Stringer("state", state.MatchState),
						zap.Stringer("authority", state.Authority),
						zap.Float64("remaining", state.Remaining))
				}
				lastState = state
			}
		}
		if list := client.PlayerList(); list != lastList {
			lastList = list
			logger.Info("players\n" + list)
		}
		for _, n := range client.DrainKillFeed() {
			logger.Info("kill feed", zap.String("text", n.Text))
		}
		for _, n := range client.DrainMatchEnded() {
			logger.Info("match ended",
				zap.String("winner", n.WinnerName),
				zap.Int("score", n.FinalScore),
				zap.Bool("local", n.IsLocalWinner))
		}
		for _, r := range client.DrainReceipts() {
			logger.Info("score receipt", zap.Int("score", r.Score), zap.String("token", r.Token))
		}
	}
}
