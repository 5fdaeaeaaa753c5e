package run

import (
	"github.com/srand/fleet/pkg/protocol"
	"github.com/srand/fleet/pkg/stats"
)

// Sequential test configuration and its latest evaluation.
type SprtState struct {
	Elo0     float64        `json:"elo0"`
	Elo1     float64        `json:"elo1"`
	Alpha    float64        `json:"alpha"`
	Beta     float64        `json:"beta"`
	EloModel stats.EloModel `json:"elo_model"`
	// Outcome shape, chosen when the run is created.
	Kind stats.Kind `json:"kind"`
	// Number of game pairs per batch.
	BatchSize int `json:"batch_size"`

	LLR        float64 `json:"llr"`
	LowerBound float64 `json:"lower_bound"`
	UpperBound float64 `json:"upper_bound"`
	// Empty while the test runs, then "accepted" or "rejected".
	State string `json:"state"`
}

const (
	SprtAccepted = "accepted"
	SprtRejected = "rejected"
)

func (s *SprtState) Clone() *SprtState {
	if s == nil {
		return nil
	}
	clone := *s
	return &clone
}

func (s *SprtState) Params() stats.SprtParams {
	return stats.SprtParams{
		Elo0:  s.Elo0,
		Elo1:  s.Elo1,
		Alpha: s.Alpha,
		Beta:  s.Beta,
		Model: s.EloModel,
	}
}

// Verdict recorded by the latest evaluation.
func (s *SprtState) Verdict() stats.Verdict {
	switch s.State {
	case SprtAccepted:
		return stats.VerdictAcceptH1
	case SprtRejected:
		return stats.VerdictAcceptH0
	default:
		return stats.VerdictContinue
	}
}

// Result of the latest evaluation.
func (s *SprtState) Result() stats.SprtResult {
	return stats.SprtResult{
		LLR:        s.LLR,
		LowerBound: s.LowerBound,
		UpperBound: s.UpperBound,
		Verdict:    s.Verdict(),
	}
}

// Evaluate re-runs the test on the results. A terminal verdict is sticky.
func (s *SprtState) Evaluate(results protocol.Results) stats.SprtResult {
	if s.Verdict().IsTerminal() {
		return s.Result()
	}

	res := stats.Evaluate(results.Outcomes(s.Kind), s.Params())
	s.LLR = res.LLR
	s.LowerBound = res.LowerBound
	s.UpperBound = res.UpperBound
	switch res.Verdict {
	case stats.VerdictAcceptH1:
		s.State = SprtAccepted
	case stats.VerdictAcceptH0:
		s.State = SprtRejected
	}
	return res
}
