package protocol

import (
	"fmt"

	"github.com/srand/fleet/pkg/stats"
	"github.com/srand/fleet/pkg/utils"
)

// Game results of a task or run, either as a running total or as a
// delta reported by a worker.
type Results struct {
	Wins       int `json:"wins"`
	Losses     int `json:"losses"`
	Draws      int `json:"draws"`
	Crashes    int `json:"crashes"`
	TimeLosses int `json:"time_losses"`
	// Game pairs bucketed by pair score: LL, LD+DL, DD+WL, WD+DW, WW.
	Pentanomial [5]int `json:"pentanomial"`
}

// Number of games played.
func (r Results) Games() int {
	return r.Wins + r.Losses + r.Draws
}

func (r Results) IsZero() bool {
	return r == Results{}
}

// Add merges the delta into the results.
func (r *Results) Add(delta Results) {
	r.Wins += delta.Wins
	r.Losses += delta.Losses
	r.Draws += delta.Draws
	r.Crashes += delta.Crashes
	r.TimeLosses += delta.TimeLosses
	for i := range r.Pentanomial {
		r.Pentanomial[i] += delta.Pentanomial[i]
	}
}

// Validate returns ErrBadRequest if any counter is negative or the
// pentanomial pairs account for more games than were played.
func (r Results) Validate() error {
	if r.Wins < 0 || r.Losses < 0 || r.Draws < 0 || r.Crashes < 0 || r.TimeLosses < 0 {
		return fmt.Errorf("%w: negative game count", utils.ErrBadRequest)
	}

	pairs := 0
	for _, n := range r.Pentanomial {
		if n < 0 {
			return fmt.Errorf("%w: negative pair count", utils.ErrBadRequest)
		}
		pairs += n
	}
	if 2*pairs > r.Games() {
		return fmt.Errorf("%w: %d pairs exceed %d games", utils.ErrBadRequest, pairs, r.Games())
	}
	return nil
}

// Outcomes returns the outcome counts of the requested shape.
func (r Results) Outcomes(kind stats.Kind) stats.Outcomes {
	if kind == stats.KindPentanomial {
		return stats.Pentanomial(r.Pentanomial)
	}
	return stats.Trinomial{Losses: r.Losses, Draws: r.Draws, Wins: r.Wins}
}
