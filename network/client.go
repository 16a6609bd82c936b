// Package network is a headless UI client for a peer's bridge: it joins,
// forwards gameplay reports and collects the notices the bridge pushes.
package network

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/automoto/arena-sync/shared/messages"
	"github.com/automoto/arena-sync/shared/netcomponents"
	"github.com/automoto/arena-sync/shared/netconfig"
	"github.com/coder/websocket"
	"github.com/leap-fish/necs/esync"
	"github.com/leap-fish/necs/router"
	"github.com/leap-fish/necs/transports"
	"go.uber.org/zap"
)

type ClientState int

const (
	StateDisconnected ClientState = iota
	StateConnecting
	StateConnected
	StateJoined
	StateError
)

var errNotConnected = errors.New("not connected")

// Client manages a WebSocket connection to a peer's bridge.
// All shared fields are protected by mu (router callbacks run on necs goroutines).
type Client struct {
	mu  sync.RWMutex
	log *zap.Logger

	state      ClientState
	lastError  error
	peerID     netconfig.PeerID
	sessionID  string
	serverName string
	tickRate   int
	playerList string
	conn       *websocket.Conn

	snapshotCh chan esync.WorldSnapshot // size-1 buffered; latest wins

	killFeedCh chan messages.KillFeedNotice
	endedCh    chan messages.MatchEndedNotice
	receiptCh  chan messages.ScoreReceipt
}

func NewClient(logger *zap.Logger) *Client {
	return &Client{
		log:        logger.Named("client"),
		state:      StateDisconnected,
		snapshotCh: make(chan esync.WorldSnapshot, 1),
		killFeedCh: make(chan messages.KillFeedNotice, 16),
		endedCh:    make(chan messages.MatchEndedNotice, 4),
		receiptCh:  make(chan messages.ScoreReceipt, 4),
	}
}

// Connect dials the bridge in a background goroutine and sends the join request.
func (c *Client) Connect(address, version, playerName string) {
	c.mu.Lock()
	c.state = StateConnecting
	c.lastError = nil
	c.mu.Unlock()

	router.OnConnect(func(_ *router.NetworkClient) {
		c.log.Info("connected to bridge", zap.String("address", address))
		c.setState(StateConnected)
		if err := c.SendMessage(messages.JoinRequest{Version: version, PlayerName: playerName}); err != nil {
			c.setError(fmt.Errorf("send join request: %w", err))
		}
	})
	router.On(func(_ *router.NetworkClient, msg messages.JoinAccepted) { c.onJoinAccepted(msg) })
	router.On(func(_ *router.NetworkClient, msg messages.JoinRejected) { c.onJoinRejected(msg) })
	router.On(func(_ *router.NetworkClient, snapshot esync.WorldSnapshot) { c.onSnapshot(snapshot) })
	router.On(func(_ *router.NetworkClient, msg messages.PlayerListNotice) { c.onPlayerList(msg) })
	router.On(func(_ *router.NetworkClient, msg messages.KillFeedNotice) { push(c.killFeedCh, msg) })
	router.On(func(_ *router.NetworkClient, msg messages.MatchEndedNotice) { push(c.endedCh, msg) })
	router.On(func(_ *router.NetworkClient, msg messages.ScoreReceipt) { push(c.receiptCh, msg) })

	router.OnDisconnect(func(_ *router.NetworkClient, err error) {
		c.log.Info("disconnected", zap.Error(err))
		c.mu.Lock()
		if c.state != StateError {
			c.state = StateDisconnected
		}
		c.conn = nil
		c.mu.Unlock()
	})
	router.OnError(func(_ *router.NetworkClient, err error) {
		c.log.Warn("client error", zap.Error(err))
	})

	go func() {
		transport := transports.NewWsClientTransport("ws://" + address)
		err := transport.Start(func(conn *websocket.Conn) {
			c.mu.Lock()
			c.conn = conn
			c.mu.Unlock()
		})
		if err != nil {
			c.setError(fmt.Errorf("connection failed: %w", err))
		}
	}()
}

func (c *Client) Disconnect() {
	c.mu.Lock()
	conn := c.conn
	c.state = StateDisconnected
	c.conn = nil
	c.mu.Unlock()

	if conn != nil {
		_ = conn.CloseNow()
	}

	router.ResetRouter()
}

func (c *Client) onJoinAccepted(msg messages.JoinAccepted) {
	c.log.Info("join accepted",
		zap.Stringer("peer", msg.PeerID),
		zap.String("session", msg.SessionID),
		zap.String("server", msg.ServerName))
	c.mu.Lock()
	c.peerID = msg.PeerID
	c.sessionID = msg.SessionID
	c.serverName = msg.ServerName
	c.tickRate = msg.TickRate
	c.state = StateJoined
	c.mu.Unlock()
}

func (c *Client) onJoinRejected(msg messages.JoinRejected) {
	c.log.Warn("join rejected", zap.String("reason", msg.Reason))
	c.setError(fmt.Errorf("join rejected: %s", msg.Reason))
}

func (c *Client) onSnapshot(snapshot esync.WorldSnapshot) {
	select { // drain stale, push latest
	case <-c.snapshotCh:
	default:
	}
	c.snapshotCh <- snapshot
}

func (c *Client) onPlayerList(msg messages.PlayerListNotice) {
	c.mu.Lock()
	c.playerList = msg.Text
	c.mu.Unlock()
}

func (c *Client) State() ClientState {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

func (c *Client) LastError() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastError
}

func (c *Client) PeerID() netconfig.PeerID {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.peerID
}

func (c *Client) SessionID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.sessionID
}

// PlayerList returns the last player list text pushed by the bridge.
func (c *Client) PlayerList() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.playerList
}

// LatestSnapshot returns the most recent WorldSnapshot, or nil. Non-blocking.
func (c *Client) LatestSnapshot() *esync.WorldSnapshot {
	select {
	case snap := <-c.snapshotCh:
		return &snap
	default:
		return nil
	}
}

// MatchState finds the replicated match state in a snapshot. Components that
// fail to decode are skipped.
func MatchState(snapshot esync.WorldSnapshot) (netcomponents.NetMatchStateData, bool) {
	for _, ent := range snapshot {
		for _, data := range ent.State {
			instance, err := esync.Mapper.Deserialize(data)
			if err != nil {
				continue
			}
			if state, ok := instance.(netcomponents.NetMatchStateData); ok {
				return state, true
			}
		}
	}
	return netcomponents.NetMatchStateData{}, false
}

// ReportKill tells the peer that attacker eliminated victim.
func (c *Client) ReportKill(attacker, victim netconfig.PeerID) error {
	return c.SendMessage(messages.DamageReport{Attacker: attacker, Victim: victim})
}

func (c *Client) SignalGameOver() error { return c.SendMessage(messages.GameOverSignal{}) }

func (c *Client) ReturnToLobby() error { return c.SendMessage(messages.ReturnToLobby{}) }

func (c *Client) SendMessage(msg any) error {
	c.mu.RLock()
	conn := c.conn
	c.mu.RUnlock()

	if conn == nil {
		return errNotConnected
	}

	payload, err := router.Serialize(msg)
	if err != nil {
		return fmt.Errorf("serialize: %w", err)
	}

	return conn.Write(context.Background(), websocket.MessageBinary, payload)
}

func (c *Client) setState(s ClientState) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

func (c *Client) setError(err error) {
	c.mu.Lock()
	c.state = StateError
	c.lastError = err
	c.mu.Unlock()
}

// DrainKillFeed returns all pending kill feed notices, non-blocking.
func (c *Client) DrainKillFeed() []messages.KillFeedNotice {
	return drainChan(c.killFeedCh)
}

// DrainMatchEnded returns all pending match ended notices, non-blocking.
func (c *Client) DrainMatchEnded() []messages.MatchEndedNotice {
	return drainChan(c.endedCh)
}

// DrainReceipts returns all pending score receipts, non-blocking.
func (c *Client) DrainReceipts() []messages.ScoreReceipt {
	return drainChan(c.receiptCh)
}

// push drops v when nobody drains ch.
func push[T any](ch chan T, v T) {
	select {
	case ch <- v:
	default:
	}
}

func drainChan[T any](ch chan T) []T {
	var out []T
	for {
		select {
		case v := <-ch:
			out = append(out, v)
		default:
			return out
		}
	}
}
