package systems

import (
	"testing"

	"github.com/automoto/arena-sync/shared/netconfig"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddKillOnlyOnAuthority(t *testing.T) {
	w := NewMatchWorld()
	_, _ = Join(w, 1, "host", true, 0)
	_, _ = Join(w, 2, "guest", false, 0)

	score, err := AddKill(w, 1, 2)
	require.NoError(t, err)
	assert.Equal(t, 1, score)

	_, err = AddKill(w, 2, 2)
	require.ErrorIs(t, err, ErrNotAuthority)
	assert.Equal(t, 1, ScoreOf(w, 2))
}

func TestAddKillKeepsDepartedAttacker(t *testing.T) {
	w := NewMatchWorld()
	_, _ = Join(w, 1, "host", true, 0)
	_, _ = Join(w, 2, "guest", false, 0)
	_, _, err := Leave(w, 2)
	require.NoError(t, err)

	_, err = AddKill(w, 1, 2)
	require.NoError(t, err)
	assert.Equal(t, 1, ScoreOf(w, 2))
	assert.Equal(t, "guest", NameOf(w, 2))
}

func TestApplySnapshotOverwrites(t *testing.T) {
	w := NewMatchWorld()
	LedgerOf(w).Scores[7] = 10

	ApplyAuthoritativeSnapshot(w, map[netconfig.PeerID]int{1: 2, 2: 1}, map[netconfig.PeerID]string{1: "a"})
	ApplyAuthoritativeSnapshot(w, map[netconfig.PeerID]int{1: 2, 2: 1}, nil)

	assert.Equal(t, map[netconfig.PeerID]int{1: 2, 2: 1}, GetScores(w))
	assert.Equal(t, "a", NameOf(w, 1))
}

func TestGetScoresReturnsCopy(t *testing.T) {
	w := NewMatchWorld()
	LedgerOf(w).Scores[1] = 1

	scores := GetScores(w)
	scores[1] = 99

	assert.Equal(t, 1, ScoreOf(w, 1))
}

func TestZeroScores(t *testing.T) {
	w := NewMatchWorld()
	_, _ = Join(w, 1, "a", true, 0)
	_, _ = Join(w, 3, "c", false, 0)
	LedgerOf(w).Scores[1] = 4
	LedgerOf(w).Scores[9] = 2

	ZeroScores(w)

	assert.Equal(t, map[netconfig.PeerID]int{1: 0, 3: 0}, GetScores(w))
}
