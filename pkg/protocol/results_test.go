package protocol

import (
	"testing"

	"github.com/srand/fleet/pkg/stats"
	"github.com/srand/fleet/pkg/utils"
	"github.com/stretchr/testify/assert"
)

func TestResultsAdd(t *testing.T) {
	r := Results{Wins: 1, Pentanomial: [5]int{0, 1, 0, 0, 0}}
	r.Add(Results{Wins: 2, Losses: 1, Draws: 3, Crashes: 1, Pentanomial: [5]int{1, 0, 2, 0, 0}})

	assert.Equal(t, Results{Wins: 3, Losses: 1, Draws: 3, Crashes: 1, Pentanomial: [5]int{1, 1, 2, 0, 0}}, r)
	assert.Equal(t, 7, r.Games())
	assert.False(t, r.IsZero())
	assert.True(t, Results{}.IsZero())
}

func TestResultsValidate(t *testing.T) {
	assert.NoError(t, Results{Wins: 2, Losses: 2, Pentanomial: [5]int{0, 0, 2, 0, 0}}.Validate())
	assert.ErrorIs(t, Results{Wins: -1}.Validate(), utils.ErrBadRequest)
	assert.ErrorIs(t, Results{TimeLosses: -1}.Validate(), utils.ErrBadRequest)
	assert.ErrorIs(t, Results{Wins: 4, Pentanomial: [5]int{0, 0, 0, -1, 0}}.Validate(), utils.ErrBadRequest)
	assert.ErrorIs(t, Results{Wins: 2, Pentanomial: [5]int{0, 0, 0, 0, 2}}.Validate(), utils.ErrBadRequest)
}

func TestResultsOutcomes(t *testing.T) {
	r := Results{Wins: 3, Losses: 1, Draws: 2, Pentanomial: [5]int{0, 1, 1, 1, 0}}
	assert.Equal(t, stats.Trinomial{Wins: 3, Losses: 1, Draws: 2}, r.Outcomes(stats.KindTrinomial))
	assert.Equal(t, stats.Pentanomial{0, 1, 1, 1, 0}, r.Outcomes(stats.KindPentanomial))
}

func TestRunStatus(t *testing.T) {
	assert.True(t, RunStatusAccepting.IsAccepting())
	assert.False(t, RunStatusPaused.IsAccepting())
	assert.True(t, RunStatusFinished.IsTerminal())

	assert.NoError(t, RunStatusAccepting.CanTransition(RunStatusPaused))
	assert.NoError(t, RunStatusPaused.CanTransition(RunStatusAccepting))
	assert.Error(t, RunStatusFinished.CanTransition(RunStatusAccepting))
	assert.Error(t, RunStatusAccepting.CanTransition("bogus"))
}
