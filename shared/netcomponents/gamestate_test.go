package netcomponents

import (
	"testing"

	"github.com/automoto/arena-sync/shared/netconfig"
	"github.com/stretchr/testify/assert"
)

func TestLerpNetMatchStateInterpolatesClock(t *testing.T) {
	from := NetMatchStateData{Remaining: 10, MatchState: netconfig.MatchStateRunning}
	to := NetMatchStateData{Remaining: 9, MatchState: netconfig.MatchStateRunning, Authority: 2}

	got := LerpNetMatchState(from, to, 0.5)
	assert.InDelta(t, 9.5, got.Remaining, 1e-9)
	assert.EqualValues(t, 2, got.Authority)
}

func TestLerpNetMatchStateSnapsOnJumps(t *testing.T) {
	running := NetMatchStateData{Remaining: 0.2, MatchState: netconfig.MatchStateRunning}
	restarted := NetMatchStateData{Remaining: 180, MatchState: netconfig.MatchStateRunning}
	assert.Equal(t, 180.0, LerpNetMatchState(running, restarted, 0.5).Remaining)

	ended := NetMatchStateData{Remaining: 0, MatchState: netconfig.MatchStateEnded, Winner: 3}
	got := LerpNetMatchState(running, ended, 0.5)
	assert.Equal(t, 0.0, got.Remaining)
	assert.EqualValues(t, 3, got.Winner)
}
