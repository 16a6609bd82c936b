package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/automoto/arena-sync/bus"
	"github.com/automoto/arena-sync/config"
	"github.com/automoto/arena-sync/coordinator"
	"github.com/automoto/arena-sync/membership"
	"github.com/automoto/arena-sync/receipt"
	"github.com/automoto/arena-sync/results"
	"github.com/automoto/arena-sync/server/core"
	"github.com/automoto/arena-sync/shared/netconfig"
	"github.com/automoto/arena-sync/shared/protocol"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func main() {
	cfg := config.Default()
	if err := cfg.LoadEnv(".env"); err != nil {
		log.Fatalf("config: %v", err)
	}
	cfg.BindFlags(flag.CommandLine)
	flag.Parse()

	logger, err := newLogger(cfg.Dev)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("peer exited", zap.Error(err))
		os.Exit(1)
	}
}

func newLogger(dev bool) (*zap.Logger, error) {
	if dev {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

func run(ctx context.Context, cfg config.Config, logger *zap.Logger) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if cfg.SessionID == "" {
		cfg.SessionID = uuid.NewString()
	}
	if err := protocol.RegisterComponents(); err != nil {
		return fmt.Errorf("register components: %w", err)
	}
	local := netconfig.PeerID(cfg.PeerID)
	logger = logger.With(zap.Stringer("peer", local), zap.String("session", cfg.SessionID))

	nc, err := bus.Connect(cfg.Bus, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := nc.Close(); err != nil {
			logger.Warn("bus close failed", zap.Error(err))
		}
	}()

	var issuer *receipt.Issuer
	if cfg.Receipt.Secret != "" {
		if issuer, err = receipt.NewIssuer(cfg.Receipt, nil); err != nil {
			return err
		}
	} else {
		logger.Info("receipt secret not set, score receipts disabled")
	}

	archive, err := results.OpenArchive("arena-sync", logger)
	if err != nil {
		logger.Warn("result archive unavailable", zap.Error(err))
	}

	bridge, err := core.NewBridge(core.Options{
		Config:   cfg.Bridge,
		Receipts: issuer,
		Archive:  archive,
		Logger:   logger,
	})
	if err != nil {
		return fmt.Errorf("bridge: %w", err)
	}

	coord, err := coordinator.New(coordinator.Options{
		Local:    local,
		Match:    cfg.Match,
		Bus:      nc,
		Logger:   logger,
		Listener: bridge,
	})
	if err != nil {
		return err
	}
	bridge.Bind(coord)

	tracker := membership.NewTracker(local, cfg.PlayerName, cfg.SessionID, nc, nil, cfg.Presence, coord, logger)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return coord.Run(gctx) })

	coord.OnJoinedRoom(cfg.SessionID)
	coord.OnParticipantJoined(local, cfg.PlayerName)
	g.Go(func() error { return tracker.Run(gctx) })

	g.Go(func() error {
		errCh := make(chan error, 1)
		go func() { errCh <- bridge.Start() }()
		select {
		case <-gctx.Done():
			bridge.Stop()
			return nil
		case err := <-errCh:
			bridge.Stop()
			return fmt.Errorf("bridge: %w", err)
		}
	})

	if cfg.Registration.MasterURL != "" {
		status := func() (string, int, string) {
			v := coord.View()
			return v.SessionID, len(v.Participants), v.State.String()
		}
		reg := core.NewRegistration(cfg.Registration, cfg.Bridge.Name, cfg.Bridge.Version, status, nil, logger)
		g.Go(func() error { return reg.Run(gctx) })
	}

	logger.Info("peer started",
		zap.String("name", cfg.PlayerName),
		zap.String("nats", cfg.Bus.URL),
		zap.Uint("port", cfg.Bridge.Port))
	return g.Wait()
}
