package stats

import "math"

// Quantile of the standard normal distribution for a 95% interval.
const z95 = 1.959963984540054

// Elo estimate of the difference between two engines.
type Elo struct {
	Elo   float64 `json:"elo"`
	Lower float64 `json:"lower"`
	Upper float64 `json:"upper"`
	// Likelihood of superiority.
	LOS   float64 `json:"los"`
	Games int     `json:"games"`
}

// EloEstimate returns the logistic Elo estimate with a 95% confidence
// interval. Returns a zero estimate with LOS 0.5 when there is nothing
// to estimate from.
func EloEstimate(o Outcomes) Elo {
	est := Elo{LOS: 0.5}
	if o == nil {
		return est
	}
	est.Games = o.Games()

	m, ok := momentsOf(o)
	if !ok || m.variance <= 0 {
		return est
	}

	se := math.Sqrt(m.variance / m.n)
	est.Elo = logisticElo(m.mu)
	est.Lower = logisticElo(m.mu - z95*se)
	est.Upper = logisticElo(m.mu + z95*se)
	if se > 0 {
		est.LOS = 0.5 * (1 + math.Erf((m.mu-0.5)/se/math.Sqrt2))
	}
	return est
}

func logisticElo(score float64) float64 {
	const eps = 1e-6
	score = math.Min(math.Max(score, eps), 1-eps)
	return -400 * math.Log10(1/score-1)
}
