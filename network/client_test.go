package network

import (
	"os"
	"testing"

	"github.com/automoto/arena-sync/shared/messages"
	"github.com/automoto/arena-sync/shared/netcomponents"
	"github.com/automoto/arena-sync/shared/netconfig"
	"github.com/automoto/arena-sync/shared/protocol"
	"github.com/leap-fish/necs/esync"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestMain(m *testing.M) {
	if err := protocol.RegisterComponents(); err != nil {
		panic(err)
	}
	os.Exit(m.Run())
}

func TestJoinHandshakeState(t *testing.T) {
	c := NewClient(zap.NewNop())
	assert.Equal(t, StateDisconnected, c.State())

	c.onJoinAccepted(messages.JoinAccepted{PeerID: 4, SessionID: "s1", ServerName: "Arena Peer", TickRate: 10})
	assert.Equal(t, StateJoined, c.State())
	assert.EqualValues(t, 4, c.PeerID())
	assert.Equal(t, "s1", c.SessionID())

	c.onJoinRejected(messages.JoinRejected{Reason: "version mismatch"})
	assert.Equal(t, StateError, c.State())
	assert.ErrorContains(t, c.LastError(), "version mismatch")
}

func TestNoticesAreQueued(t *testing.T) {
	c := NewClient(zap.NewNop())
	push(c.killFeedCh, messages.KillFeedNotice{Text: "a eliminated b"})
	push(c.killFeedCh, messages.KillFeedNotice{Text: "b eliminated a"})
	push(c.endedCh, messages.MatchEndedNotice{WinnerName: "a", FinalScore: 2})
	c.onPlayerList(messages.PlayerListNotice{Text: "a: 2\nb: 1"})

	assert.Equal(t, []messages.KillFeedNotice{{Text: "a eliminated b"}, {Text: "b eliminated a"}}, c.DrainKillFeed())
	assert.Empty(t, c.DrainKillFeed())
	assert.Len(t, c.DrainMatchEnded(), 1)
	assert.Empty(t, c.DrainReceipts())
	assert.Equal(t, "a: 2\nb: 1", c.PlayerList())
}

func TestFullQueueDropsNotices(t *testing.T) {
	c := NewClient(zap.NewNop())
	for range cap(c.endedCh) + 3 {
		push(c.endedCh, messages.MatchEndedNotice{})
	}
	assert.Len(t, c.DrainMatchEnded(), cap(c.endedCh))
}

func TestLatestSnapshotWins(t *testing.T) {
	c := NewClient(zap.NewNop())
	assert.Nil(t, c.LatestSnapshot())

	c.onSnapshot(esync.WorldSnapshot{})
	c.onSnapshot(esync.WorldSnapshot{})
	require.NotNil(t, c.LatestSnapshot())
	assert.Nil(t, c.LatestSnapshot())
}

func TestMatchStateFromSnapshot(t *testing.T) {
	want := netcomponents.NetMatchStateData{
		Scores:     map[netconfig.PeerID]int{1: 2, 2: 1},
		Remaining:  42.5,
		MatchState: netconfig.MatchStateRunning,
		Authority:  1,
	}
	data, err := esync.Mapper.Serialize(want)
	require.NoError(t, err)

	_, ok := MatchState(esync.WorldSnapshot{})
	assert.False(t, ok)

	snap := esync.WorldSnapshot{
		{Id: 7, State: esync.EntityState{99: []byte("garbage")}},
		{Id: 8, State: esync.EntityState{esync.ComponentId(protocol.SyncIDNetMatchState): data}},
	}
	got, ok := MatchState(snap)
	require.True(t, ok)
	assert.Equal(t, want, got)
}

func TestSendWithoutConnection(t *testing.T) {
	c := NewClient(zap.NewNop())
	assert.ErrorIs(t, c.ReportKill(1, 2), errNotConnected)
	assert.ErrorIs(t, c.SignalGameOver(), errNotConnected)
	assert.ErrorIs(t, c.ReturnToLobby(), errNotConnected)
}
