// Package run holds the test run document: the run arguments, its
// tasks and the aggregated results, and the operations that keep them
// consistent. Documents are plain values; synchronisation is up to the
// owner, see rundb.RunCache.
package run

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/srand/fleet/pkg/protocol"
	"github.com/srand/fleet/pkg/stats"
	"github.com/srand/fleet/pkg/utils"
)

// Arguments of a test run, fixed at creation.
type Args struct {
	NewTag  string `json:"new_tag"`
	BaseTag string `json:"base_tag"`
	Book    string `json:"book,omitempty"`
	// Time control, "[moves/]base[+increment]" in seconds.
	TC      string `json:"tc"`
	Threads int    `json:"threads"`
	// Total game budget.
	NumGames int `json:"num_games"`
	// Share of the fleet the run is entitled to, in percent.
	Throughput int `json:"throughput"`
	Priority   int `json:"priority"`

	Sprt *SprtState  `json:"sprt,omitempty"`
	Spsa *stats.Spsa `json:"spsa,omitempty"`
}

func (a *Args) Validate() error {
	switch {
	case a.NewTag == "" || a.BaseTag == "":
		return fmt.Errorf("%w: engine tags are required", utils.ErrBadRequest)
	case a.NumGames <= 0:
		return fmt.Errorf("%w: num_games must be positive", utils.ErrBadRequest)
	case a.Threads <= 0:
		return fmt.Errorf("%w: threads must be positive", utils.ErrBadRequest)
	case a.Throughput < 0:
		return fmt.Errorf("%w: throughput must not be negative", utils.ErrBadRequest)
	}

	if _, err := ParseTC(a.TC); err != nil {
		return err
	}

	if a.Sprt != nil {
		if !a.Sprt.Params().Valid() {
			return fmt.Errorf("%w: invalid sprt parameters", utils.ErrBadRequest)
		}
		switch a.Sprt.Kind {
		case stats.KindTrinomial, stats.KindPentanomial:
		default:
			return fmt.Errorf("%w: invalid sprt outcome kind %q", utils.ErrBadRequest, a.Sprt.Kind)
		}
	}

	if a.Spsa != nil {
		if len(a.Spsa.Params) == 0 {
			return fmt.Errorf("%w: spsa requires parameters", utils.ErrBadRequest)
		}
		for _, p := range a.Spsa.Params {
			if p.Min > p.Max {
				return fmt.Errorf("%w: spsa parameter %s has min above max", utils.ErrBadRequest, p.Name)
			}
		}
	}

	return nil
}

// ParseTC returns the base time of a time control in seconds.
func ParseTC(tc string) (float64, error) {
	s := tc
	if i := strings.IndexByte(s, '/'); i >= 0 {
		s = s[i+1:]
	}
	if i := strings.IndexByte(s, '+'); i >= 0 {
		s = s[:i]
	}

	// Minutes and seconds, 1:30
	var minutes float64
	if i := strings.IndexByte(s, ':'); i >= 0 {
		m, err := strconv.ParseFloat(s[:i], 64)
		if err != nil {
			return 0, fmt.Errorf("%w: invalid time control %q", utils.ErrBadRequest, tc)
		}
		minutes = m
		s = s[i+1:]
	}

	base, err := strconv.ParseFloat(s, 64)
	if err != nil || base+minutes*60 <= 0 {
		return 0, fmt.Errorf("%w: invalid time control %q", utils.ErrBadRequest, tc)
	}
	return base + minutes*60, nil
}

// A test run document.
type Run struct {
	Id            string             `json:"id"`
	Args          Args               `json:"args"`
	Status        protocol.RunStatus `json:"status"`
	Tasks         []*Task            `json:"tasks"`
	Results       protocol.Results   `json:"results"`
	FailureReason string             `json:"failure_reason,omitempty"`
	CreatedAt     time.Time          `json:"created_at"`
	LastUpdated   time.Time          `json:"last_updated"`
	FinishedAt    *time.Time         `json:"finished_at,omitempty"`
}

// Create a new accepting run without tasks.
func New(args Args, now time.Time) (*Run, error) {
	if err := args.Validate(); err != nil {
		return nil, err
	}

	r := &Run{
		Id:          uuid.NewString(),
		Args:        args,
		Status:      protocol.RunStatusAccepting,
		Tasks:       []*Task{},
		CreatedAt:   now,
		LastUpdated: now,
	}
	if r.Args.Sprt != nil {
		r.Args.Sprt.Evaluate(r.Results)
	}
	return r, nil
}

// Clone returns a deep copy of the run.
func (r *Run) Clone() *Run {
	clone := *r
	clone.Args.Sprt = r.Args.Sprt.Clone()
	clone.Args.Spsa = r.Args.Spsa.Clone()
	clone.Tasks = make([]*Task, len(r.Tasks))
	for i, t := range r.Tasks {
		clone.Tasks[i] = t.Clone()
	}
	if r.FinishedAt != nil {
		finished := *r.FinishedAt
		clone.FinishedAt = &finished
	}
	return &clone
}

func (r *Run) IsFinished() bool {
	return r.Status.IsTerminal()
}

// Task returns the task with the given index.
func (r *Run) Task(index int) (*Task, error) {
	if index < 0 || index >= len(r.Tasks) {
		return nil, fmt.Errorf("%w: run %s has no task %d", utils.ErrNotFound, r.Id, index)
	}
	return r.Tasks[index], nil
}

// ActiveTask returns the active task held by the worker, if any.
func (r *Run) ActiveTask(workerId string) *Task {
	for _, t := range r.Tasks {
		if t.Active && t.WorkerId == workerId {
			return t
		}
	}
	return nil
}

// Number of games either played or promised to active tasks.
func (r *Run) CommittedGames() int {
	games := 0
	for _, t := range r.Tasks {
		if t.Active {
			games += max(t.NumGames, t.Stats.Games())
		} else {
			games += t.Stats.Games()
		}
	}
	return games
}

// Number of games not yet committed to any task.
func (r *Run) RemainingGames() int {
	return max(r.Args.NumGames-r.CommittedGames(), 0)
}

// Number of cores working on the run.
func (r *Run) Cores() int {
	cores := 0
	for _, t := range r.Tasks {
		if t.Active {
			cores += t.Concurrency
		}
	}
	return cores
}

// Number of games per batch; task sizes are multiples of it.
func (r *Run) BatchGames() int {
	if r.Args.Sprt != nil && r.Args.Sprt.BatchSize > 0 {
		return 2 * r.Args.Sprt.BatchSize
	}
	return 2
}

// AddTask creates a new active task for the worker.
func (r *Run) AddTask(worker protocol.WorkerInfo, games int, now time.Time) *Task {
	t := &Task{
		Index:       len(r.Tasks),
		WorkerId:    worker.WorkerId,
		NumGames:    games,
		Concurrency: worker.Concurrency,
		Active:      true,
		StartedAt:   now,
		LastUpdated: now,
	}
	r.Tasks = append(r.Tasks, t)
	r.LastUpdated = now
	return t
}

// Returns true if the run has reached a terminal decision, either
// by the sequential test or because the tuning session is complete.
func (r *Run) Decided() bool {
	if r.Args.Sprt != nil && r.Args.Sprt.Verdict().IsTerminal() {
		return true
	}
	if r.Args.Spsa != nil && r.Args.Spsa.Exhausted() {
		return true
	}
	return false
}

// Returns true if all games of the budget have been played.
func (r *Run) Complete() bool {
	return r.Results.Games() >= r.Args.NumGames
}

// Finish moves the run to the terminal state and deactivates its tasks.
// Returns the deactivated tasks. Finishing a finished run is a no-op.
func (r *Run) Finish(reason string, now time.Time) []*Task {
	if r.IsFinished() {
		return nil
	}

	var released []*Task
	for _, t := range r.Tasks {
		if t.Active {
			t.Deactivate("", now)
			released = append(released, t)
		}
	}

	r.Status = protocol.RunStatusFinished
	r.FailureReason = reason
	r.FinishedAt = &now
	r.LastUpdated = now
	return released
}

// SetStatus moves the run between accepting and paused.
func (r *Run) SetStatus(status protocol.RunStatus, now time.Time) error {
	if err := r.Status.CanTransition(status); err != nil {
		return fmt.Errorf("%w: %v", utils.ErrRunFinished, err)
	}
	if status == protocol.RunStatusFinished {
		r.Finish("", now)
		return nil
	}
	r.Status = status
	r.LastUpdated = now
	return nil
}

// ApplyReport merges a results delta into the task and the run totals
// and re-evaluates the sequential test.
func (r *Run) ApplyReport(t *Task, seq uint64, delta protocol.Results, now time.Time) {
	t.Stats.Add(delta)
	t.Seq = seq
	t.LastUpdated = now
	r.Results.Add(delta)
	r.LastUpdated = now
	if r.Args.Sprt != nil {
		r.Args.Sprt.Evaluate(r.Results)
	}
}

// Recompute rebuilds the run totals from the task results and
// re-evaluates the sequential test. Returns true if the totals changed.
func (r *Run) Recompute() bool {
	var total protocol.Results
	for _, t := range r.Tasks {
		total.Add(t.Stats)
	}

	changed := total != r.Results
	r.Results = total
	if r.Args.Sprt != nil {
		before := *r.Args.Sprt
		r.Args.Sprt.Evaluate(r.Results)
		changed = changed || before != *r.Args.Sprt
	}
	return changed
}

// Elo estimate of the run results.
func (r *Run) Elo() stats.Elo {
	kind := stats.KindTrinomial
	if r.Args.Sprt != nil {
		kind = r.Args.Sprt.Kind
	}
	return stats.EloEstimate(r.Results.Outcomes(kind))
}

// Engine configuration handed to workers.
func (r *Run) TaskArgs() protocol.TaskArgs {
	return protocol.TaskArgs{
		NewTag:  r.Args.NewTag,
		BaseTag: r.Args.BaseTag,
		Book:    r.Args.Book,
		TC:      r.Args.TC,
		Threads: r.Args.Threads,
		Spsa:    r.Args.Spsa != nil,
	}
}
