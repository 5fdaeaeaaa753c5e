package stats

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEloEstimateBalanced(t *testing.T) {
	elo := EloEstimate(Trinomial{Losses: 300, Draws: 400, Wins: 300})
	assert.InDelta(t, 0, elo.Elo, 1e-9)
	assert.InDelta(t, 0.5, elo.LOS, 1e-9)
	assert.Less(t, elo.Lower, 0.0)
	assert.Greater(t, elo.Upper, 0.0)
	assert.Equal(t, 1000, elo.Games)
}

func TestEloEstimateStronger(t *testing.T) {
	elo := EloEstimate(Trinomial{Losses: 200, Draws: 400, Wins: 400})
	assert.Greater(t, elo.Elo, 50.0)
	assert.Greater(t, elo.LOS, 0.99)
	assert.Less(t, elo.Lower, elo.Elo)
	assert.Greater(t, elo.Upper, elo.Elo)
}

func TestEloEstimatePentanomialGames(t *testing.T) {
	elo := EloEstimate(Pentanomial{1, 2, 3, 2, 1})
	assert.Equal(t, 18, elo.Games)
	assert.InDelta(t, 0, elo.Elo, 1e-9)
}

func TestEloEstimateDegenerate(t *testing.T) {
	for _, o := range []Outcomes{nil, Trinomial{}, Pentanomial{}, Trinomial{Wins: -1}} {
		elo := EloEstimate(o)
		assert.Equal(t, 0.0, elo.Elo)
		assert.Equal(t, 0.5, elo.LOS)
	}

	// All wins stays finite thanks to regularisation.
	elo := EloEstimate(Trinomial{Wins: 50})
	assert.False(t, math.IsInf(elo.Elo, 0) || math.IsNaN(elo.Elo))
	assert.Greater(t, elo.Elo, 0.0)
}
