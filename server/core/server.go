// Package core bridges a peer's coordinator to its UI clients over a necs
// websocket transport.
package core

import (
	"sync"
	"time"

	"github.com/automoto/arena-sync/config"
	"github.com/automoto/arena-sync/coordinator"
	"github.com/automoto/arena-sync/receipt"
	"github.com/automoto/arena-sync/results"
	"github.com/automoto/arena-sync/shared/messages"
	"github.com/automoto/arena-sync/shared/netcomponents"
	"github.com/automoto/arena-sync/shared/netconfig"
	"github.com/benbjohnson/clock"
	"github.com/leap-fish/necs/esync/srvsync"
	"github.com/leap-fish/necs/router"
	"github.com/leap-fish/necs/transports"
	"github.com/yohamta/donburi"
	"go.uber.org/zap"
)

// Match is the part of the coordinator the bridge drives.
type Match interface {
	OnDamageDealt(attacker, victim netconfig.PeerID)
	OnExternalGameOverSignal()
	OnReturnToLobbyRequested()
	View() coordinator.View
}

// uiClient is the send side of a connected UI client.
type uiClient interface {
	Id() string
	SendMessage(msg any) error
}

// Options configures a Bridge. Match may be bound later with Bind; Receipts
// and Archive are optional.
type Options struct {
	Config   config.BridgeConfig
	Match    Match
	Receipts *receipt.Issuer
	Archive  *results.Archive
	Clock    clock.Clock
	Logger   *zap.Logger
}

// Bridge relays coordinator notifications to UI clients and UI requests to
// the coordinator. It implements coordinator.Listener.
type Bridge struct {
	cfg      config.BridgeConfig
	match    Match
	receipts *receipt.Issuer
	archive  *results.Archive
	clk      clock.Clock
	log      *zap.Logger

	world     donburi.World
	state     donburi.Entity
	loop      *GameLoop
	transport *transports.WsServerTransport

	mu       sync.RWMutex
	clients  map[string]uiClient
	lastList string
	ended    *messages.MatchEndedNotice
	receipt  *messages.ScoreReceipt
}

func NewBridge(opts Options) (*Bridge, error) {
	if opts.Clock == nil {
		opts.Clock = clock.New()
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	world := donburi.NewWorld()
	b := &Bridge{
		cfg:      opts.Config,
		match:    opts.Match,
		receipts: opts.Receipts,
		archive:  opts.Archive,
		clk:      opts.Clock,
		log:      opts.Logger.Named("bridge"),
		world:    world,
		clients:  make(map[string]uiClient),
	}

	srvsync.UseEsync(world)
	b.state = world.Create(netcomponents.NetMatchState)
	if err := srvsync.NetworkSync(world, &b.state,
		srvsync.WithInterp(netcomponents.NetMatchState),
	); err != nil {
		return nil, err
	}
	b.loop = NewGameLoop(b, b.cfg.TickRate, b.clk)
	return b, nil
}

// Bind attaches the coordinator. It must be called before Start.
func (b *Bridge) Bind(m Match) { b.match = m }

// Start serves UI clients on the configured port until Stop.
func (b *Bridge) Start() error {
	b.setupRouterCallbacks()
	go b.loop.Run()

	b.log.Info("bridge listening", zap.Uint("port", b.cfg.Port), zap.Int("tickRate", b.cfg.TickRate))
	b.transport = transports.NewWsServerTransport(b.cfg.Port, "", nil)
	return b.transport.Start()
}

func (b *Bridge) Stop() {
	b.loop.Stop()
}

func (b *Bridge) setupRouterCallbacks() {
	router.OnConnect(func(client *router.NetworkClient) {
		b.log.Debug("ui client connected", zap.String("client", client.Id()))
	})
	router.OnDisconnect(func(client *router.NetworkClient, err error) {
		b.onDisconnect(client, err)
	})
	router.On(func(client *router.NetworkClient, req messages.JoinRequest) {
		b.onJoin(client, req)
	})
	router.On(func(client *router.NetworkClient, msg messages.DamageReport) {
		b.onDamage(client, msg)
	})
	router.On(func(client *router.NetworkClient, _ messages.GameOverSignal) {
		b.onGameOver(client)
	})
	router.On(func(client *router.NetworkClient, _ messages.ReturnToLobby) {
		b.onReturnToLobby(client)
	})
	router.OnError(func(client *router.NetworkClient, err error) {
		b.log.Warn("ui client error", zap.String("client", client.Id()), zap.Error(err))
	})
}

func (b *Bridge) onJoin(client uiClient, req messages.JoinRequest) {
	if b.cfg.Version != "" && req.Version != b.cfg.Version {
		b.log.Info("ui client rejected",
			zap.String("client", client.Id()),
			zap.String("version", req.Version))
		b.send(client, messages.JoinRejected{Reason: "version mismatch: peer requires " + b.cfg.Version})
		return
	}

	view := b.match.View()
	b.mu.Lock()
	b.clients[client.Id()] = client
	list, ended, rcpt := b.lastList, b.ended, b.receipt
	b.mu.Unlock()

	b.log.Info("ui client joined", zap.String("client", client.Id()), zap.String("name", req.PlayerName))
	b.send(client, messages.JoinAccepted{
		PeerID:     view.Local,
		SessionID:  view.SessionID,
		ServerName: b.cfg.Name,
		TickRate:   b.cfg.TickRate,
	})
	if list != "" {
		b.send(client, messages.PlayerListNotice{Text: list})
	}
	if ended != nil {
		b.send(client, *ended)
	}
	if rcpt != nil {
		b.send(client, *rcpt)
	}
}

func (b *Bridge) onDisconnect(client uiClient, err error) {
	b.mu.Lock()
	_, joined := b.clients[client.Id()]
	delete(b.clients, client.Id())
	b.mu.Unlock()
	if joined {
		b.log.Info("ui client left", zap.String("client", client.Id()), zap.Error(err))
	}
}

func (b *Bridge) joined(client uiClient) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	_, ok := b.clients[client.Id()]
	return ok
}

func (b *Bridge) onDamage(client uiClient, msg messages.DamageReport) {
	if b.joined(client) {
		b.match.OnDamageDealt(msg.Attacker, msg.Victim)
	}
}

func (b *Bridge) onGameOver(client uiClient) {
	if b.joined(client) {
		b.match.OnExternalGameOverSignal()
	}
}

func (b *Bridge) onReturnToLobby(client uiClient) {
	if !b.joined(client) {
		return
	}
	b.mu.Lock()
	b.ended, b.receipt = nil, nil
	b.mu.Unlock()
	b.match.OnReturnToLobbyRequested()
}

// ClientCount returns the number of joined UI clients.
func (b *Bridge) ClientCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.clients)
}

func (b *Bridge) PlayerListChanged(text string) {
	b.mu.Lock()
	b.lastList = text
	b.mu.Unlock()
	b.broadcast(messages.PlayerListNotice{Text: text})
}

// TimerUpdated is a no-op: the clock reaches UI clients through the
// replicated NetMatchState.
func (b *Bridge) TimerUpdated(float64) {}

func (b *Bridge) KillFeedMessage(text string) {
	b.broadcast(messages.KillFeedNotice{Text: text})
}

func (b *Bridge) MatchEnded(winnerName string, finalScore int, isLocalWinner bool) {
	notice := messages.MatchEndedNotice{
		WinnerName:    winnerName,
		FinalScore:    finalScore,
		IsLocalWinner: isLocalWinner,
	}
	view := b.match.View()

	var rcpt *messages.ScoreReceipt
	if isLocalWinner && b.receipts != nil {
		token, err := b.receipts.Issue(view.SessionID, view.Local, winnerName, finalScore)
		if err != nil {
			b.log.Error("issue receipt failed", zap.Error(err))
		} else {
			rcpt = &messages.ScoreReceipt{Token: token, Score: finalScore}
		}
	}

	b.mu.Lock()
	b.ended, b.receipt = &notice, rcpt
	b.mu.Unlock()

	b.broadcast(notice)
	if rcpt != nil {
		b.broadcast(*rcpt)
	}
	b.archiveResult(view, rcpt)
}

func (b *Bridge) archiveResult(view coordinator.View, rcpt *messages.ScoreReceipt) {
	if b.archive == nil || view.SessionID == "" {
		return
	}
	r := results.Result{
		SessionID:  view.SessionID,
		Winner:     view.Winner,
		WinnerName: view.WinnerName,
		FinalScore: view.FinalScore,
		Scores:     view.Scores,
		EndedAt:    b.clk.Now().Round(time.Millisecond),
	}
	if rcpt != nil {
		r.Receipt = rcpt.Token
	}
	if err := b.archive.Record(r); err != nil {
		b.log.Warn("archive result failed", zap.Error(err))
	}
}

func (b *Bridge) broadcast(msg any) {
	b.mu.RLock()
	targets := make([]uiClient, 0, len(b.clients))
	for _, c := range b.clients {
		targets = append(targets, c)
	}
	b.mu.RUnlock()
	for _, c := range targets {
		b.send(c, msg)
	}
}

func (b *Bridge) send(client uiClient, msg any) {
	if err := client.SendMessage(msg); err != nil {
		b.log.Warn("send to ui client failed", zap.String("client", client.Id()), zap.Error(err))
	}
}

// syncState copies the coordinator view into the replicated entity.
func (b *Bridge) syncState() {
	view := b.match.View()
	entry := b.world.Entry(b.state)
	netcomponents.NetMatchState.SetValue(entry, netcomponents.NetMatchStateData{
		Scores:     view.Scores,
		Remaining:  view.Remaining,
		MatchState: view.State,
		Authority:  view.Authority,
		Winner:     view.Winner,
	})
}
