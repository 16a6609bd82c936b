package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/automoto/arena-sync/config"
	"github.com/automoto/arena-sync/receipt"
	"github.com/automoto/arena-sync/results"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func main() {
	path := flag.String("config", "", "YAML config file (empty = defaults)")
	dev := flag.Bool("dev", false, "Development logging")
	flag.Parse()

	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Fatalf("[master] env: %v", err)
	}
	cfg, err := config.LoadMaster(*path)
	if err != nil {
		log.Fatalf("[master] %v", err)
	}
	if v := os.Getenv("ARENA_RECEIPT_SECRET"); v != "" {
		cfg.ReceiptSecret = v
	}
	if v := os.Getenv("ARENA_SIGNER_KEY"); v != "" {
		cfg.Signer.PrivateKeyHex = v
	}

	logger, err := zap.NewProduction()
	if *dev {
		logger, err = zap.NewDevelopment()
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	if err != nil {
		log.Fatalf("[master] logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("master exited", zap.Error(err))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.MasterConfig, logger *zap.Logger) error {
	reg := NewRegistry(cfg.TTL, nil, logger)

	auth, err := newAuthorizer(cfg, logger)
	if err != nil {
		return err
	}

	lim := newIPLimiter(cfg.RatePerSecond, cfg.RateBurst, limiterIdle, nil)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           NewRouter(cfg, reg, auth, lim, logger),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return reg.Run(gctx) })
	g.Go(func() error { return lim.Run(gctx) })
	g.Go(func() error {
		logger.Info("master listening", zap.String("addr", srv.Addr), zap.Duration("ttl", cfg.TTL))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

// newAuthorizer returns nil when receipts or the signer are not configured.
func newAuthorizer(cfg config.MasterConfig, logger *zap.Logger) (*Authorizer, error) {
	if cfg.ReceiptSecret == "" || cfg.Signer.PrivateKeyHex == "" {
		logger.Warn("receipt secret or signer key missing, authorization endpoints disabled")
		return nil, nil
	}
	verifier, err := receipt.NewVerifier(cfg.ReceiptSecret, cfg.ReceiptIssuer, nil)
	if err != nil {
		return nil, err
	}
	signer, err := NewSigner(cfg.Signer, nil)
	if err != nil {
		return nil, err
	}
	store, err := results.OpenStore(cfg.AppName)
	if err != nil {
		return nil, err
	}
	logger.Info("authorization enabled", zap.String("signer", signer.Address().Hex()))
	return NewAuthorizer(verifier, signer, NewSpentReceipts(store), cfg.Thresholds, logger), nil
}
