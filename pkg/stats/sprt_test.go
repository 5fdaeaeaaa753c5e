package stats

import (
	"math"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
)

var sprtLogistic = SprtParams{Elo0: 0, Elo1: 5, Alpha: 0.05, Beta: 0.05, Model: EloModelLogistic}

func TestBounds(t *testing.T) {
	lower, upper, ok := Bounds(0.05, 0.05)
	assert.True(t, ok)
	assert.InDelta(t, math.Log(0.05/0.95), lower, 1e-12)
	assert.InDelta(t, math.Log(0.95/0.05), upper, 1e-12)

	_, _, ok = Bounds(0, 0.05)
	assert.False(t, ok)
	_, _, ok = Bounds(0.05, 1)
	assert.False(t, ok)
}

func TestEvaluateSingleWinContinues(t *testing.T) {
	res := Evaluate(Trinomial{Wins: 1}, sprtLogistic)
	assert.Equal(t, VerdictContinue, res.Verdict)
	assert.Greater(t, res.LLR, 0.0)
	assert.Less(t, res.LLR, res.UpperBound)
}

func TestEvaluateFewWinsContinue(t *testing.T) {
	previous := 0.0
	for _, wins := range []int{2, 3, 10, 100} {
		res := Evaluate(Trinomial{Wins: wins}, sprtLogistic)
		assert.Equal(t, VerdictContinue, res.Verdict, "%d wins", wins)
		assert.Less(t, res.LLR, res.UpperBound, "%d wins", wins)
		assert.Greater(t, res.LLR, previous, "%d wins", wins)
		previous = res.LLR
	}

	// A win is worth at most log(s1/s0).
	res := Evaluate(Trinomial{Wins: 2}, sprtLogistic)
	assert.LessOrEqual(t, res.LLR, 2*math.Log(logisticScore(5)/logisticScore(0))+1e-9)

	res = Evaluate(Trinomial{Wins: 1000}, sprtLogistic)
	assert.Equal(t, VerdictAcceptH1, res.Verdict)
}

func TestEvaluateAcceptH1(t *testing.T) {
	res := Evaluate(Trinomial{Losses: 1000, Draws: 2000, Wins: 1200}, sprtLogistic)
	assert.Equal(t, VerdictAcceptH1, res.Verdict)
	assert.GreaterOrEqual(t, res.LLR, res.UpperBound)
	assert.InDelta(t, 4.67, res.LLR, 0.05)
}

func TestEvaluateAcceptH0(t *testing.T) {
	res := Evaluate(Trinomial{Losses: 600, Draws: 1000, Wins: 400}, sprtLogistic)
	assert.Equal(t, VerdictAcceptH0, res.Verdict)
	assert.LessOrEqual(t, res.LLR, res.LowerBound)
}

func TestEvaluatePentanomial(t *testing.T) {
	res := Evaluate(Pentanomial{0, 10, 100, 60, 5}, sprtLogistic)
	assert.Equal(t, VerdictContinue, res.Verdict)

	res = Evaluate(Pentanomial{0, 20, 200, 120, 10}, sprtLogistic)
	assert.Equal(t, VerdictAcceptH1, res.Verdict)

	balanced := Evaluate(Pentanomial{5, 50, 100, 50, 5}, sprtLogistic)
	assert.NotEqual(t, VerdictAcceptH1, balanced.Verdict)
	assert.Less(t, balanced.LLR, 0.0)
}

func TestEvaluateNormalizedModel(t *testing.T) {
	params := SprtParams{Elo0: 0, Elo1: 2, Alpha: 0.05, Beta: 0.05, Model: EloModelNormalized}

	res := Evaluate(Pentanomial{100, 2000, 5000, 2600, 150}, params)
	assert.Equal(t, VerdictAcceptH1, res.Verdict)

	res = Evaluate(Pentanomial{150, 2600, 5000, 2000, 100}, params)
	assert.Equal(t, VerdictAcceptH0, res.Verdict)
}

func TestEvaluateNormalizedFewPairsContinue(t *testing.T) {
	params := SprtParams{Elo0: 0, Elo1: 2, Alpha: 0.05, Beta: 0.05, Model: EloModelNormalized}

	res := Evaluate(Pentanomial{0, 0, 0, 0, 5}, params)
	assert.Equal(t, VerdictContinue, res.Verdict)
	assert.Less(t, math.Abs(res.LLR), 0.1)
}

func TestProjectMatchesScore(t *testing.T) {
	for _, o := range []Outcomes{
		Trinomial{Wins: 3},
		Trinomial{Losses: 10, Draws: 50, Wins: 40},
		Pentanomial{1, 10, 30, 12, 2},
	} {
		m, ok := momentsOf(o)
		assert.True(t, ok)

		for _, s := range []float64{0.3, 0.5, 0.51} {
			p, ok := m.project(s)
			if !assert.True(t, ok) {
				continue
			}

			total, mean := 0.0, 0.0
			for i, q := range p {
				total += q
				mean += q * m.scores[i]
			}
			assert.InDelta(t, 1, total, 1e-9)
			assert.InDelta(t, s, mean, 1e-6)
		}

		_, ok = m.project(1)
		assert.False(t, ok, "score on the boundary")
		_, ok = m.project(math.NaN())
		assert.False(t, ok)
	}
}

func TestEvaluateDegenerateInputs(t *testing.T) {
	tests := []struct {
		name     string
		outcomes Outcomes
		params   SprtParams
	}{
		{"nil outcomes", nil, sprtLogistic},
		{"zero games", Trinomial{}, sprtLogistic},
		{"zero pairs", Pentanomial{}, sprtLogistic},
		{"negative counts", Trinomial{Losses: -5, Wins: 3}, sprtLogistic},
		{"elo0 above elo1", Trinomial{Wins: 100}, SprtParams{Elo0: 5, Elo1: 0, Alpha: 0.05, Beta: 0.05, Model: EloModelLogistic}},
		{"nan elo", Trinomial{Wins: 100}, SprtParams{Elo0: math.NaN(), Elo1: 5, Alpha: 0.05, Beta: 0.05, Model: EloModelLogistic}},
		{"inf elo", Trinomial{Wins: 100}, SprtParams{Elo0: 0, Elo1: math.Inf(1), Alpha: 0.05, Beta: 0.05, Model: EloModelLogistic}},
		{"zero alpha", Trinomial{Wins: 100}, SprtParams{Elo0: 0, Elo1: 5, Alpha: 0, Beta: 0.05, Model: EloModelLogistic}},
		{"nan beta", Trinomial{Wins: 100}, SprtParams{Elo0: 0, Elo1: 5, Alpha: 0.05, Beta: math.NaN(), Model: EloModelLogistic}},
		{"unknown model", Trinomial{Wins: 100}, SprtParams{Elo0: 0, Elo1: 5, Alpha: 0.05, Beta: 0.05, Model: "bayes"}},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			res := Evaluate(test.outcomes, test.params)
			assert.Equal(t, VerdictContinue, res.Verdict)
			assert.Equal(t, 0.0, res.LLR)
		})
	}
}

func TestEvaluateRandomInputsNeverPanic(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 2))
	values := []float64{0, -1, 1, 5, 0.5, 1e-300, 1e300, math.NaN(), math.Inf(1), math.Inf(-1)}
	models := []EloModel{EloModelLogistic, EloModelNormalized, ""}

	pick := func() float64 {
		if rng.IntN(3) == 0 {
			return values[rng.IntN(len(values))]
		}
		return rng.Float64()*20 - 10
	}

	for i := 0; i < 5000; i++ {
		params := SprtParams{
			Elo0:  pick(),
			Elo1:  pick(),
			Alpha: pick(),
			Beta:  pick(),
			Model: models[rng.IntN(len(models))],
		}

		var o Outcomes
		if rng.IntN(2) == 0 {
			o = Trinomial{Losses: rng.IntN(1000) - 10, Draws: rng.IntN(1000), Wins: rng.IntN(1000)}
		} else {
			o = Pentanomial{rng.IntN(100), rng.IntN(100), rng.IntN(100) - 5, rng.IntN(100), rng.IntN(100)}
		}

		assert.NotPanics(t, func() {
			res := Evaluate(o, params)
			assert.False(t, math.IsNaN(res.LLR) || math.IsInf(res.LLR, 0))
			assert.Contains(t, []Verdict{VerdictContinue, VerdictAcceptH1, VerdictAcceptH0}, res.Verdict)
		})
	}
}

func TestVerdictIsTerminal(t *testing.T) {
	assert.False(t, VerdictContinue.IsTerminal())
	assert.True(t, VerdictAcceptH0.IsTerminal())
	assert.True(t, VerdictAcceptH1.IsTerminal())
}
