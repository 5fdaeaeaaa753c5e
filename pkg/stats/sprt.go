package stats

import "math"

// Outcome of a sequential test evaluation.
type Verdict string

const (
	VerdictContinue Verdict = "continue"
	VerdictAcceptH1 Verdict = "accept_h1"
	VerdictAcceptH0 Verdict = "accept_h0"
)

func (v Verdict) IsTerminal() bool {
	return v == VerdictAcceptH1 || v == VerdictAcceptH0
}

// Elo scale in which the SPRT hypotheses are expressed.
type EloModel string

const (
	// Logistic Elo, score = 1 / (1 + 10^(-elo/400)).
	EloModelLogistic EloModel = "logistic"
	// Normalized Elo, measured in units of the per game standard deviation.
	EloModelNormalized EloModel = "normalized"
)

// nEloScale converts a normalized Elo difference into standard deviations.
var nEloScale = 800 / math.Ln10

// Parameters of a sequential probability ratio test.
type SprtParams struct {
	Elo0  float64  `json:"elo0"`
	Elo1  float64  `json:"elo1"`
	Alpha float64  `json:"alpha"`
	Beta  float64  `json:"beta"`
	Model EloModel `json:"elo_model"`
}

func (p SprtParams) Valid() bool {
	if !finite(p.Elo0) || !finite(p.Elo1) || p.Elo0 >= p.Elo1 {
		return false
	}
	if !(p.Alpha > 0 && p.Alpha < 1) || !(p.Beta > 0 && p.Beta < 1) {
		return false
	}
	switch p.Model {
	case EloModelLogistic, EloModelNormalized:
		return true
	default:
		return false
	}
}

// SprtResult is the state of a sequential test after an evaluation.
type SprtResult struct {
	LLR        float64 `json:"llr"`
	LowerBound float64 `json:"lower_bound"`
	UpperBound float64 `json:"upper_bound"`
	Verdict    Verdict `json:"verdict"`
}

// Bounds returns the log-likelihood ratio thresholds for the error rates.
func Bounds(alpha, beta float64) (lower, upper float64, ok bool) {
	if !(alpha > 0 && alpha < 1) || !(beta > 0 && beta < 1) {
		return 0, 0, false
	}
	lower = math.Log(beta / (1 - alpha))
	upper = math.Log((1 - beta) / alpha)
	return lower, upper, finite(lower) && finite(upper)
}

// Evaluate computes the log-likelihood ratio of the outcomes and
// compares it against the test bounds. Degenerate input, such as zero
// games, invalid parameters or a distribution without variance, results
// in VerdictContinue with a zero LLR.
func Evaluate(o Outcomes, p SprtParams) SprtResult {
	res := SprtResult{Verdict: VerdictContinue}

	lower, upper, ok := Bounds(p.Alpha, p.Beta)
	if !ok {
		return res
	}
	res.LowerBound = lower
	res.UpperBound = upper

	if !p.Valid() {
		return res
	}

	llr, ok := LLR(o, p)
	if !ok {
		return res
	}
	res.LLR = llr

	switch {
	case llr >= upper:
		res.Verdict = VerdictAcceptH1
	case llr <= lower:
		res.Verdict = VerdictAcceptH0
	}
	return res
}

// LLR returns the log-likelihood ratio of the outcomes between the two
// hypotheses. Each hypothesis is represented by the maximum likelihood
// distribution with the hypothesised expected score, so the ratio stays
// bounded by the information in the sample even when it has almost no
// variance. Returns false if the ratio is undefined.
func LLR(o Outcomes, p SprtParams) (float64, bool) {
	m, ok := momentsOf(o)
	if !ok || m.variance <= 0 {
		return 0, false
	}

	var s0, s1 float64
	switch p.Model {
	case EloModelNormalized:
		// Per game deviation, a pentanomial observation averages two games.
		sigma := math.Sqrt(m.variance * float64(o.GamesPerObservation()))
		s0 = 0.5 + p.Elo0/nEloScale*sigma
		s1 = 0.5 + p.Elo1/nEloScale*sigma
	default:
		s0 = logisticScore(p.Elo0)
		s1 = logisticScore(p.Elo1)
	}

	p0, ok := m.project(s0)
	if !ok {
		return 0, false
	}
	p1, ok := m.project(s1)
	if !ok {
		return 0, false
	}

	llr := 0.0
	for i, q := range m.probs {
		llr += q * math.Log(p1[i]/p0[i])
	}
	llr *= m.n

	if !finite(llr) {
		return 0, false
	}
	return llr, true
}

func logisticScore(elo float64) float64 {
	return 1 / (1 + math.Pow(10, -elo/400))
}
