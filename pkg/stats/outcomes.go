// Package stats implements the statistics used to steer test runs:
// the sequential probability ratio test, Elo estimates and the SPSA
// parameter tuning update. Nothing in this package panics on degenerate
// input; such input yields a neutral result instead.
package stats

import "math"

// Shape of the outcome counts collected for a run.
type Kind string

const (
	// Single games bucketed as loss, draw, win.
	KindTrinomial Kind = "trinomial"
	// Game pairs with reversed colors bucketed by pair score 0 .. 2.
	KindPentanomial Kind = "pentanomial"
)

// Regularisation applied to empty buckets so that a distribution
// with few observations never has zero variance.
const emptyBucket = 1e-3

// Outcomes is the common view of trinomial and pentanomial counts.
type Outcomes interface {
	// Observation scores in [0, 1] and the number of times each was observed.
	Distribution() (scores []float64, counts []float64)

	// Number of games played.
	Games() int

	// Number of games per observation.
	GamesPerObservation() int
}

// Trinomial counts of single games.
type Trinomial struct {
	Losses int
	Draws  int
	Wins   int
}

func (t Trinomial) Distribution() ([]float64, []float64) {
	return []float64{0, 0.5, 1}, []float64{float64(t.Losses), float64(t.Draws), float64(t.Wins)}
}

func (t Trinomial) Games() int {
	return t.Losses + t.Draws + t.Wins
}

func (t Trinomial) GamesPerObservation() int {
	return 1
}

// Pentanomial counts of game pairs, indexed by the pair score in half points:
// 0 (LL), 1 (LD, DL), 2 (DD, WL, LW), 3 (WD, DW), 4 (WW).
type Pentanomial [5]int

func (p Pentanomial) Distribution() ([]float64, []float64) {
	counts := make([]float64, len(p))
	for i, c := range p {
		counts[i] = float64(c)
	}
	return []float64{0, 0.25, 0.5, 0.75, 1}, counts
}

func (p Pentanomial) Games() int {
	n := 0
	for _, c := range p {
		n += c
	}
	return 2 * n
}

func (p Pentanomial) GamesPerObservation() int {
	return 2
}

// Moments of an outcome distribution.
type moments struct {
	// Number of observations.
	n float64
	// Mean observation score.
	mu float64
	// Variance of a single observation.
	variance float64
	// Observation scores and their regularised frequencies.
	scores []float64
	probs  []float64
}

// Computes the regularised moments of the outcomes.
// Returns false when there is nothing to compute or the counts are invalid.
func momentsOf(o Outcomes) (moments, bool) {
	if o == nil {
		return moments{}, false
	}

	scores, counts := o.Distribution()
	if len(scores) == 0 || len(scores) != len(counts) {
		return moments{}, false
	}

	n := 0.0
	for _, c := range counts {
		if c < 0 || !finite(c) {
			return moments{}, false
		}
		n += c
	}
	if n <= 0 {
		return moments{}, false
	}

	total := 0.0
	probs := make([]float64, len(counts))
	for i, c := range counts {
		if c == 0 {
			c = emptyBucket
		}
		probs[i] = c
		total += c
	}

	mu := 0.0
	for i := range probs {
		probs[i] /= total
		mu += probs[i] * scores[i]
	}

	variance := 0.0
	for i := range probs {
		d := scores[i] - mu
		variance += probs[i] * d * d
	}

	m := moments{n: n, mu: mu, variance: variance, scores: scores, probs: probs}
	if !finite(m.mu) || !finite(m.variance) {
		return moments{}, false
	}
	return m, true
}

// Returns the distribution over the observation scores whose expected
// score is s and which is closest to the observed frequencies in
// Kullback-Leibler divergence. It has the form p_i / (1 + x (a_i - s))
// where x is the root of a decreasing function, found by bisection.
func (m moments) project(s float64) ([]float64, bool) {
	lo, hi := math.Inf(-1), math.Inf(1)
	for _, a := range m.scores {
		d := a - s
		switch {
		case d > 0:
			lo = math.Max(lo, -1/d)
		case d < 0:
			hi = math.Min(hi, -1/d)
		}
	}
	// s must lie strictly between the lowest and highest score.
	if math.IsInf(lo, 0) || math.IsInf(hi, 0) || !(lo < hi) {
		return nil, false
	}

	f := func(x float64) float64 {
		sum := 0.0
		for i, a := range m.scores {
			d := a - s
			sum += m.probs[i] * d / (1 + x*d)
		}
		return sum
	}

	for i := 0; i < 200; i++ {
		x := lo + (hi-lo)/2
		if x <= lo || x >= hi {
			break
		}
		if f(x) > 0 {
			lo = x
		} else {
			hi = x
		}
	}
	x := lo + (hi-lo)/2

	projected := make([]float64, len(m.probs))
	total := 0.0
	for i, a := range m.scores {
		projected[i] = m.probs[i] / (1 + x*(a-s))
		total += projected[i]
	}
	for i := range projected {
		projected[i] /= total
		if !finite(projected[i]) || projected[i] <= 0 {
			return nil, false
		}
	}
	return projected, true
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
