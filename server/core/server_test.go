package core

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/automoto/arena-sync/config"
	"github.com/automoto/arena-sync/coordinator"
	"github.com/automoto/arena-sync/receipt"
	"github.com/automoto/arena-sync/results"
	"github.com/automoto/arena-sync/shared/messages"
	"github.com/automoto/arena-sync/shared/netcomponents"
	"github.com/automoto/arena-sync/shared/netconfig"
	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeMatch struct {
	mu       sync.Mutex
	view     coordinator.View
	kills    [][2]netconfig.PeerID
	gameOver int
	lobby    int
}

func (m *fakeMatch) OnDamageDealt(attacker, victim netconfig.PeerID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.kills = append(m.kills, [2]netconfig.PeerID{attacker, victim})
}

func (m *fakeMatch) OnExternalGameOverSignal() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gameOver++
}

func (m *fakeMatch) OnReturnToLobbyRequested() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lobby++
}

func (m *fakeMatch) View() coordinator.View {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.view
}

type fakeClient struct {
	id   string
	fail bool
	sent []any
}

func (c *fakeClient) Id() string { return c.id }

func (c *fakeClient) SendMessage(msg any) error {
	if c.fail {
		return errors.New("broken pipe")
	}
	c.sent = append(c.sent, msg)
	return nil
}

func newTestBridge(t *testing.T, version string) (*Bridge, *fakeMatch, *results.Archive, *clock.Mock) {
	t.Helper()
	clk := clock.NewMock()
	clk.Set(time.Date(2024, 6, 1, 18, 3, 0, 0, time.UTC))
	match := &fakeMatch{view: coordinator.View{
		Local:     2,
		SessionID: "s1",
		State:     netconfig.MatchStateRunning,
		Authority: 1,
		Remaining: 42,
		Scores:    map[netconfig.PeerID]int{1: 1, 2: 3},
	}}
	issuer, err := receipt.NewIssuer(config.ReceiptConfig{Secret: "k", Issuer: "arena-sync", TTL: time.Hour}, clk)
	require.NoError(t, err)
	archive := results.NewArchive(results.NewMemStore(), zap.NewNop())

	b, err := NewBridge(Options{
		Config:   config.BridgeConfig{TickRate: 10, Name: "Arena Peer", Version: version},
		Match:    match,
		Receipts: issuer,
		Archive:  archive,
		Clock:    clk,
		Logger:   zap.NewNop(),
	})
	require.NoError(t, err)
	return b, match, archive, clk
}

func TestJoinAccepted(t *testing.T) {
	b, _, _, _ := newTestBridge(t, "")
	b.PlayerListChanged("p1: 1\np2: 3")

	c := &fakeClient{id: "c1"}
	b.onJoin(c, messages.JoinRequest{PlayerName: "Bob"})

	require.Len(t, c.sent, 2)
	assert.Equal(t, messages.JoinAccepted{
		PeerID:     2,
		SessionID:  "s1",
		ServerName: "Arena Peer",
		TickRate:   10,
	}, c.sent[0])
	assert.Equal(t, messages.PlayerListNotice{Text: "p1: 1\np2: 3"}, c.sent[1])
	assert.Equal(t, 1, b.ClientCount())
}

func TestJoinRejectedOnVersionMismatch(t *testing.T) {
	b, _, _, _ := newTestBridge(t, "1.2.0")

	c := &fakeClient{id: "c1"}
	b.onJoin(c, messages.JoinRequest{Version: "1.0.0"})

	require.Len(t, c.sent, 1)
	assert.IsType(t, messages.JoinRejected{}, c.sent[0])
	assert.Zero(t, b.ClientCount())
}

func TestRequestsFromUnjoinedClientsIgnored(t *testing.T) {
	b, match, _, _ := newTestBridge(t, "")
	stranger := &fakeClient{id: "x"}

	b.onDamage(stranger, messages.DamageReport{Attacker: 1, Victim: 2})
	b.onGameOver(stranger)
	b.onReturnToLobby(stranger)

	assert.Empty(t, match.kills)
	assert.Zero(t, match.gameOver)
	assert.Zero(t, match.lobby)
}

func TestRequestsForwarded(t *testing.T) {
	b, match, _, _ := newTestBridge(t, "")
	c := &fakeClient{id: "c1"}
	b.onJoin(c, messages.JoinRequest{})

	b.onDamage(c, messages.DamageReport{Attacker: 2, Victim: 1})
	b.onGameOver(c)
	b.onReturnToLobby(c)

	assert.Equal(t, [][2]netconfig.PeerID{{2, 1}}, match.kills)
	assert.Equal(t, 1, match.gameOver)
	assert.Equal(t, 1, match.lobby)
}

func TestNotificationsBroadcast(t *testing.T) {
	b, _, _, _ := newTestBridge(t, "")
	c1 := &fakeClient{id: "c1"}
	c2 := &fakeClient{id: "c2"}
	broken := &fakeClient{id: "c3"}
	b.onJoin(c1, messages.JoinRequest{})
	b.onJoin(c2, messages.JoinRequest{})
	b.onJoin(broken, messages.JoinRequest{})
	broken.fail = true
	c1.sent, c2.sent = nil, nil

	b.KillFeedMessage("p2 eliminated p1")
	b.TimerUpdated(12)

	for _, c := range []*fakeClient{c1, c2} {
		assert.Equal(t, []any{messages.KillFeedNotice{Text: "p2 eliminated p1"}}, c.sent)
	}
}

func TestDisconnectRemovesClient(t *testing.T) {
	b, _, _, _ := newTestBridge(t, "")
	c := &fakeClient{id: "c1"}
	b.onJoin(c, messages.JoinRequest{})
	b.onDisconnect(c, nil)
	c.sent = nil

	b.KillFeedMessage("x")
	assert.Empty(t, c.sent)
	assert.Zero(t, b.ClientCount())
}

func TestMatchEndedIssuesReceiptToLocalWinner(t *testing.T) {
	b, match, archive, clk := newTestBridge(t, "")
	match.view.State = netconfig.MatchStateEnded
	match.view.Winner = 2
	match.view.WinnerName = "Bob"
	match.view.FinalScore = 4
	match.view.Scores = map[netconfig.PeerID]int{1: 1, 2: 4}

	c := &fakeClient{id: "c1"}
	b.onJoin(c, messages.JoinRequest{})
	c.sent = nil

	b.MatchEnded("Bob", 4, true)

	require.Len(t, c.sent, 2)
	assert.Equal(t, messages.MatchEndedNotice{WinnerName: "Bob", FinalScore: 4, IsLocalWinner: true}, c.sent[0])
	rcpt, ok := c.sent[1].(messages.ScoreReceipt)
	require.True(t, ok)
	assert.Equal(t, 4, rcpt.Score)

	ver, err := receipt.NewVerifier("k", "arena-sync", clk)
	require.NoError(t, err)
	claims, err := ver.Verify(rcpt.Token)
	require.NoError(t, err)
	assert.Equal(t, "s1", claims.SessionID)
	assert.EqualValues(t, 2, claims.Peer)
	assert.Equal(t, 4, claims.Score)

	got, ok, err := archive.Lookup("s1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "Bob", got.WinnerName)
	assert.Equal(t, 4, got.FinalScore)
	assert.Equal(t, rcpt.Token, got.Receipt)

	late := &fakeClient{id: "late"}
	b.onJoin(late, messages.JoinRequest{})
	assert.Contains(t, late.sent, messages.MatchEndedNotice{WinnerName: "Bob", FinalScore: 4, IsLocalWinner: true})
	assert.Contains(t, late.sent, rcpt)
}

func TestMatchEndedForOtherWinnerHasNoReceipt(t *testing.T) {
	b, match, archive, _ := newTestBridge(t, "")
	match.view.Winner = 1
	match.view.WinnerName = "Ann"
	match.view.FinalScore = 2

	c := &fakeClient{id: "c1"}
	b.onJoin(c, messages.JoinRequest{})
	c.sent = nil

	b.MatchEnded("Ann", 2, false)
	assert.Equal(t, []any{messages.MatchEndedNotice{WinnerName: "Ann", FinalScore: 2}}, c.sent)

	got, ok, err := archive.Lookup("s1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Empty(t, got.Receipt)

	b.onReturnToLobby(c)
	late := &fakeClient{id: "late"}
	b.onJoin(late, messages.JoinRequest{})
	for _, msg := range late.sent {
		assert.NotEqual(t, messages.MatchEndedNotice{WinnerName: "Ann", FinalScore: 2}, msg)
	}
}

func TestSyncStateCopiesView(t *testing.T) {
	b, _, _, _ := newTestBridge(t, "")
	b.syncState()

	got := netcomponents.NetMatchState.Get(b.world.Entry(b.state))
	assert.Equal(t, 42.0, got.Remaining)
	assert.Equal(t, netconfig.MatchStateRunning, got.MatchState)
	assert.EqualValues(t, 1, got.Authority)
	assert.Equal(t, 3, got.Scores[2])
}
