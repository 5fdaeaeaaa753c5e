package stats

import (
	"hash/crc32"
	"math"
)

// Tuned engine parameter.
type SpsaParam struct {
	Name  string  `json:"name"`
	Start float64 `json:"start"`
	Min   float64 `json:"min"`
	Max   float64 `json:"max"`
	// Perturbation size, constant over the run.
	C float64 `json:"c"`
	// Current exported value.
	Theta float64 `json:"theta"`
	// Fast iterate of the schedule-free update.
	Z float64 `json:"z"`
}

func (p *SpsaParam) clamp(v float64) float64 {
	return math.Min(math.Max(v, p.Min), p.Max)
}

// Sampled parameter value kept in the tuning history.
type SpsaHistoryPoint struct {
	Theta float64 `json:"theta"`
	C     float64 `json:"c"`
}

// State of a schedule-free SPSA tuning session.
type Spsa struct {
	// Number of game pairs consumed so far.
	Iter int `json:"iter"`
	// Number of game pairs the session is planned for.
	NumIter     int                  `json:"num_iter"`
	SfLr        float64              `json:"sf_lr"`
	SfBeta      float64              `json:"sf_beta"`
	SfWeightSum float64              `json:"sf_weight_sum"`
	Params      []SpsaParam          `json:"params"`
	History     [][]SpsaHistoryPoint `json:"param_history,omitempty"`
}

func (s *Spsa) Clone() *Spsa {
	if s == nil {
		return nil
	}
	clone := *s
	clone.Params = append([]SpsaParam(nil), s.Params...)
	if s.History != nil {
		clone.History = make([][]SpsaHistoryPoint, len(s.History))
		for i, h := range s.History {
			clone.History[i] = append([]SpsaHistoryPoint(nil), h...)
		}
	}
	return &clone
}

// Returns true when all planned iterations have been consumed.
func (s *Spsa) Exhausted() bool {
	return s.NumIter > 0 && s.Iter >= s.NumIter
}

// Parameter values handed to one side of a game pair.
type SpsaValue struct {
	Name  string  `json:"name"`
	Value float64 `json:"value"`
	C     float64 `json:"c,omitempty"`
	Flip  int     `json:"flip,omitempty"`
}

// Perturbed parameter sets for the white and black engine.
type SpsaData struct {
	White []SpsaValue `json:"w_params"`
	Black []SpsaValue `json:"b_params"`
}

// Flips returns the perturbation directions of the white parameters.
func (d *SpsaData) Flips() []int {
	flips := make([]int, len(d.White))
	for i, w := range d.White {
		flips[i] = w.Flip
	}
	return flips
}

// Source of random perturbation directions.
type FlipSource interface {
	IntN(n int) int
}

// Generate draws a random ±1 flip per parameter and returns the
// perturbed values, clipped to the parameter bounds.
func (s *Spsa) Generate(rng FlipSource) SpsaData {
	data := SpsaData{
		White: make([]SpsaValue, 0, len(s.Params)),
		Black: make([]SpsaValue, 0, len(s.Params)),
	}

	for i := range s.Params {
		p := &s.Params[i]
		flip := 1
		if rng.IntN(2) == 0 {
			flip = -1
		}
		data.White = append(data.White, SpsaValue{
			Name:  p.Name,
			Value: p.clamp(p.Theta + p.C*float64(flip)),
			C:     p.C,
			Flip:  flip,
		})
		data.Black = append(data.Black, SpsaValue{
			Name:  p.Name,
			Value: p.clamp(p.Theta - p.C*float64(flip)),
		})
	}

	return data
}

// PackFlips encodes ±1 flips as bits, most significant bit first,
// with a set bit meaning +1.
func PackFlips(flips []int) []byte {
	if len(flips) == 0 {
		return nil
	}
	packed := make([]byte, (len(flips)+7)/8)
	for i, f := range flips {
		if f == 1 {
			packed[i/8] |= 0x80 >> (i % 8)
		}
	}
	return packed
}

// UnpackFlips is the inverse of PackFlips. At most length flips are returned.
func UnpackFlips(packed []byte, length int) []int {
	n := len(packed) * 8
	if length >= 0 && length < n {
		n = length
	}
	flips := make([]int, n)
	for i := range flips {
		if packed[i/8]&(0x80>>(i%8)) != 0 {
			flips[i] = 1
		} else {
			flips[i] = -1
		}
	}
	return flips
}

// FlipSignature protects packed flips against server restarts and worker bugs.
func FlipSignature(packed []byte) uint32 {
	return crc32.ChecksumIEEE(packed)
}

// Game results of one SPSA assignment, reported by the worker.
type SpsaResults struct {
	Wins     int    `json:"wins"`
	Losses   int    `json:"losses"`
	Draws    int    `json:"draws"`
	NumGames int    `json:"num_games"`
	Sig      uint32 `json:"sig"`
}

// Update applies the result of one SPSA assignment with the given flips.
// runGames is the game budget of the run, used to sample the history.
// Returns false and leaves the state untouched if the input is degenerate.
func (s *Spsa) Update(flips []int, res SpsaResults, runGames int) bool {
	pairs := res.NumGames / 2
	if pairs <= 0 || len(flips) < len(s.Params) {
		return false
	}
	if !finite(s.SfLr) || !finite(s.SfBeta) {
		return false
	}

	result := float64(res.Wins - res.Losses)
	s.Iter += pairs

	lr := s.SfLr
	beta := s.SfBeta
	reportWeight := lr * float64(pairs)
	weightSumPrev := s.SfWeightSum
	weightSumCurr := weightSumPrev + reportWeight
	s.SfWeightSum = weightSumCurr

	shown := make([]float64, len(s.Params))
	for i := range s.Params {
		shown[i] = s.Params[i].update(float64(flips[i]), result, float64(pairs), lr, beta, weightSumPrev, weightSumCurr)
	}

	s.addHistory(runGames, shown)
	return true
}

// Schedule-free update of a single parameter. Returns the value
// recorded in the history.
func (p *SpsaParam) update(flip, result, pairs, lr, beta, weightSumPrev, weightSumCurr float64) float64 {
	zPrev := p.Z
	step := lr * p.C * result * flip
	zNew := zPrev + step

	if beta == 0 || weightSumCurr <= 0 {
		p.Theta = p.clamp(zNew)
		p.Z = zNew
		return p.Theta
	}

	// Polyak surrogate reconstructed from the previous blend.
	xPrev := p.clamp((p.Theta - (1-beta)*zPrev) / beta)

	reportWeight := lr * pairs
	xNew := (weightSumPrev*xPrev + reportWeight*zPrev + lr*step*(pairs+1)/2) / weightSumCurr
	xNew = p.clamp(xNew)

	p.Theta = p.clamp((1-beta)*zNew + beta*xNew)
	p.Z = zNew
	return xNew
}

func (s *Spsa) addHistory(runGames int, shown []float64) {
	n := len(s.Params)
	if n == 0 || runGames <= 0 {
		return
	}

	var samples float64
	switch {
	case n < 100:
		samples = 100
	case n < 1000:
		samples = 10000 / float64(n)
	default:
		samples = 1
	}

	period := float64(runGames) / 2 / samples
	if period <= 0 || float64(len(s.History)+1) > float64(s.Iter)/period {
		return
	}

	point := make([]SpsaHistoryPoint, n)
	for i := range s.Params {
		point[i] = SpsaHistoryPoint{Theta: shown[i], C: s.Params[i].C}
	}
	s.History = append(s.History, point)
}
