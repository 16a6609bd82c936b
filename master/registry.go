package main

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/automoto/arena-sync/shared/protocol"
	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type sessionRecord struct {
	protocol.SessionInfo
	LastSeen time.Time
}

// Registry is an in-memory directory of live peer sessions with TTL-based expiry.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*sessionRecord
	ttl      time.Duration
	clk      clock.Clock
	log      *zap.Logger
}

func NewRegistry(ttl time.Duration, clk clock.Clock, logger *zap.Logger) *Registry {
	if clk == nil {
		clk = clock.New()
	}
	return &Registry{
		sessions: make(map[string]*sessionRecord),
		ttl:      ttl,
		clk:      clk,
		log:      logger.Named("directory"),
	}
}

// Run expires silent sessions until ctx is done.
func (r *Registry) Run(ctx context.Context) error {
	ticker := r.clk.Ticker(r.ttl / 3)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			r.expire()
		}
	}
}

func (r *Registry) Register(info protocol.SessionInfo) string {
	info.ID = uuid.NewString()

	r.mu.Lock()
	r.sessions[info.ID] = &sessionRecord{
		SessionInfo: info,
		LastSeen:    r.clk.Now(),
	}
	r.mu.Unlock()

	return info.ID
}

// Heartbeat refreshes id; false means the registration is unknown or expired.
func (r *Registry) Heartbeat(id string, players int, state string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.sessions[id]
	if !ok {
		return false
	}
	rec.LastSeen = r.clk.Now()
	rec.Players = players
	if state != "" {
		rec.State = state
	}
	return true
}

// List returns every live session ordered by name.
func (r *Registry) List() []protocol.SessionInfo {
	r.mu.RLock()
	result := make([]protocol.SessionInfo, 0, len(r.sessions))
	for _, rec := range r.sessions {
		result = append(result, rec.SessionInfo)
	}
	r.mu.RUnlock()

	slices.SortFunc(result, func(a, b protocol.SessionInfo) int {
		if c := strings.Compare(a.Name, b.Name); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	return result
}

func (r *Registry) expire() {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.clk.Now()
	for id, rec := range r.sessions {
		if age := now.Sub(rec.LastSeen); age >= r.ttl {
			r.log.Info("expired session",
				zap.String("name", rec.Name),
				zap.String("id", id),
				zap.Duration("lastSeen", age.Round(time.Second)))
			delete(r.sessions, id)
		}
	}
}
