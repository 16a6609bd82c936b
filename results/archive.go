// Package results keeps the outcome of finished matches on disk.
package results

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/automoto/arena-sync/shared/netconfig"
	"github.com/quasilyte/gdata"
	"go.uber.org/zap"
)

// Store is the subset of gdata.Manager the archive needs.
type Store interface {
	SaveItem(key string, data []byte) error
	LoadItem(key string) ([]byte, error)
}

// ErrNoSession is returned when a result carries no session id.
var ErrNoSession = errors.New("result has no session id")

// Result is the archived outcome of one match.
type Result struct {
	SessionID  string                   `json:"sessionId"`
	Winner     netconfig.PeerID         `json:"winner"`
	WinnerName string                   `json:"winnerName"`
	FinalScore int                      `json:"finalScore"`
	Scores     map[netconfig.PeerID]int `json:"scores"`
	Receipt    string                   `json:"receipt,omitempty"`
	EndedAt    time.Time                `json:"endedAt"`
}

// Archive stores one item per session.
type Archive struct {
	mu    sync.Mutex
	store Store
	log   *zap.Logger
}

// OpenStore opens the on-disk gdata store of appName.
func OpenStore(appName string) (Store, error) {
	m, err := gdata.Open(gdata.Config{AppName: appName})
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", appName, err)
	}
	return m, nil
}

// OpenArchive opens the on-disk archive of appName.
func OpenArchive(appName string, logger *zap.Logger) (*Archive, error) {
	store, err := OpenStore(appName)
	if err != nil {
		return nil, err
	}
	return NewArchive(store, logger), nil
}

func NewArchive(store Store, logger *zap.Logger) *Archive {
	return &Archive{store: store, log: logger.Named("results")}
}

func itemKey(session string) string { return "match_" + session }

// Record saves r, replacing any earlier result of the same session.
func (a *Archive) Record(r Result) error {
	if r.SessionID == "" {
		return ErrNoSession
	}
	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("encode result: %w", err)
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.store.SaveItem(itemKey(r.SessionID), data); err != nil {
		return fmt.Errorf("save result %s: %w", r.SessionID, err)
	}
	a.log.Info("match result archived",
		zap.String("session", r.SessionID),
		zap.String("winner", r.WinnerName),
		zap.Int("score", r.FinalScore))
	return nil
}

// Lookup returns the result of session; ok is false when none was recorded.
func (a *Archive) Lookup(session string) (r Result, ok bool, err error) {
	a.mu.Lock()
	data, err := a.store.LoadItem(itemKey(session))
	a.mu.Unlock()
	if err != nil {
		return Result{}, false, fmt.Errorf("load result %s: %w", session, err)
	}
	if len(data) == 0 {
		return Result{}, false, nil
	}
	if err := json.Unmarshal(data, &r); err != nil {
		return Result{}, false, fmt.Errorf("parse result %s: %w", session, err)
	}
	return r, true, nil
}

// MemStore is an in-memory Store.
type MemStore struct {
	mu    sync.Mutex
	items map[string][]byte
}

func NewMemStore() *MemStore {
	return &MemStore{items: make(map[string][]byte)}
}

func (s *MemStore) SaveItem(key string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[key] = append([]byte(nil), data...)
	return nil
}

func (s *MemStore) LoadItem(key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.items[key], nil
}
