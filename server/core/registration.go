package core

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/automoto/arena-sync/config"
	"github.com/automoto/arena-sync/shared/protocol"
	"github.com/benbjohnson/clock"
	"go.uber.org/zap"
)

var errUnknownSession = errors.New("master does not know this session")

// SessionStatus reports what the master should list for this peer.
type SessionStatus func() (sessionID string, players int, state string)

// Registration registers the peer's session with the master directory and
// keeps it alive with heartbeats.
type Registration struct {
	cfg     config.RegistrationConfig
	name    string
	version string
	status  SessionStatus
	client  *http.Client
	clk     clock.Clock
	log     *zap.Logger

	id string
}

func NewRegistration(cfg config.RegistrationConfig, name, version string, status SessionStatus,
	clk clock.Clock, logger *zap.Logger) *Registration {
	if clk == nil {
		clk = clock.New()
	}
	return &Registration{
		cfg:     cfg,
		name:    name,
		version: version,
		status:  status,
		client:  &http.Client{Timeout: 5 * time.Second},
		clk:     clk,
		log:     logger.Named("registration"),
	}
}

// Run registers, then heartbeats every interval until ctx is done. Failures
// are logged and retried on the next beat.
func (r *Registration) Run(ctx context.Context) error {
	if err := r.register(ctx); err != nil {
		r.log.Warn("initial registration failed", zap.Error(err))
	}

	ticker := r.clk.Ticker(r.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := r.beat(ctx); err != nil {
				r.log.Warn("heartbeat failed", zap.Error(err))
			}
		}
	}
}

// ID returns the directory id, empty until registered.
func (r *Registration) ID() string { return r.id }

func (r *Registration) beat(ctx context.Context) error {
	if r.id == "" {
		return r.register(ctx)
	}
	err := r.sendHeartbeat(ctx)
	if errors.Is(err, errUnknownSession) {
		r.log.Info("master lost our registration, re-registering")
		return r.register(ctx)
	}
	return err
}

func (r *Registration) register(ctx context.Context) error {
	session, players, state := r.status()
	var result protocol.RegisterResponse
	status, err := r.post(ctx, "/sessions/register", protocol.RegisterRequest{
		SessionID: session,
		Name:      r.name,
		Address:   r.cfg.Address,
		Players:   players,
		State:     state,
		Version:   r.version,
		Region:    r.cfg.Region,
	}, &result)
	if err != nil {
		return err
	}
	if status != http.StatusCreated {
		return fmt.Errorf("register: unexpected status %d", status)
	}

	r.id = result.ID
	r.log.Info("registered with master", zap.String("id", r.id), zap.String("session", session))
	return nil
}

func (r *Registration) sendHeartbeat(ctx context.Context) error {
	_, players, state := r.status()
	status, err := r.post(ctx, "/sessions/heartbeat", protocol.HeartbeatRequest{
		ID:      r.id,
		Players: players,
		State:   state,
	}, nil)
	if err != nil {
		return err
	}
	switch status {
	case http.StatusOK:
		return nil
	case http.StatusNotFound:
		return errUnknownSession
	default:
		return fmt.Errorf("heartbeat: unexpected status %d", status)
	}
}

func (r *Registration) post(ctx context.Context, path string, body, out any) (int, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return 0, fmt.Errorf("marshal: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.cfg.MasterURL+path, bytes.NewReader(data))
	if err != nil {
		return 0, fmt.Errorf("request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("post %s: %w", path, err)
	}
	defer resp.Body.Close()

	if out != nil && resp.StatusCode < 300 {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp.StatusCode, fmt.Errorf("decode: %w", err)
		}
	}
	return resp.StatusCode, nil
}
