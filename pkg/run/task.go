package run

import (
	"time"

	"github.com/srand/fleet/pkg/protocol"
)

// SPSA perturbation handed out for a task, kept until the worker reports.
type SpsaParams struct {
	Iter        int    `json:"iter"`
	PackedFlips []byte `json:"packed_flips"`
}

// A bounded batch of games assigned to a single worker.
type Task struct {
	Index    int    `json:"index"`
	WorkerId string `json:"worker_id"`
	// Game budget of the task.
	NumGames    int `json:"num_games"`
	Concurrency int `json:"concurrency"`
	// Results reported so far.
	Stats protocol.Results `json:"stats"`
	// Sequence number of the last applied report.
	Seq           uint64      `json:"seq"`
	Active        bool        `json:"active"`
	StartedAt     time.Time   `json:"started_at"`
	LastUpdated   time.Time   `json:"last_updated"`
	FailureReason string      `json:"failure_reason,omitempty"`
	SpsaParams    *SpsaParams `json:"spsa_params,omitempty"`
}

func (t *Task) Clone() *Task {
	clone := *t
	if t.SpsaParams != nil {
		params := *t.SpsaParams
		params.PackedFlips = append([]byte(nil), t.SpsaParams.PackedFlips...)
		clone.SpsaParams = &params
	}
	return &clone
}

// Number of games still to be played.
func (t *Task) Remaining() int {
	return max(t.NumGames-t.Stats.Games(), 0)
}

func (t *Task) IsComplete() bool {
	return t.Stats.Games() >= t.NumGames
}

// Deactivate stops the task. Unplayed games return to the run's budget.
func (t *Task) Deactivate(reason string, now time.Time) {
	t.Active = false
	t.SpsaParams = nil
	if reason != "" {
		t.FailureReason = reason
	}
	t.LastUpdated = now
}
