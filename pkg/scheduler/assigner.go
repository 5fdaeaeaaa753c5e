package scheduler

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/srand/fleet/pkg/log"
	"github.com/srand/fleet/pkg/protocol"
	"github.com/srand/fleet/pkg/run"
	"github.com/srand/fleet/pkg/rundb"
	"github.com/srand/fleet/pkg/utils"
)

// Time control, in seconds, at which a task gets the full number of games per core.
const referenceTC = 10.0

// Sizing of new tasks.
type PolicyConfig struct {
	// Smallest task, in games.
	MinBatch int `mapstructure:"min_batch"`
	// Largest task, in games.
	MaxBatch int `mapstructure:"max_batch"`
	// Games per core at the reference time control.
	GamesPerCore int `mapstructure:"games_per_core"`
}

func (c *PolicyConfig) SetDefaults() {
	if c.MinBatch == 0 {
		c.MinBatch = 2
	}
	if c.MaxBatch == 0 {
		c.MaxBatch = 2000
	}
	if c.GamesPerCore == 0 {
		c.GamesPerCore = 24
	}
}

func (c *PolicyConfig) Validate() error {
	if c.MinBatch < 1 || c.MaxBatch < c.MinBatch {
		return fmt.Errorf("policy.min_batch must be positive and not larger than policy.max_batch")
	}
	if c.GamesPerCore < 1 {
		return fmt.Errorf("policy.games_per_core must be positive")
	}
	return nil
}

func (c *PolicyConfig) Log() {
	log.Info("  Task policy:")
	log.Info("    Min batch:", c.MinBatch)
	log.Info("    Max batch:", c.MaxBatch)
	log.Info("    Games per core:", c.GamesPerCore)
}

func roundUp(n, batch int) int {
	return (n + batch - 1) / batch * batch
}

// TaskSize returns the number of games to assign to a worker with the
// given concurrency. Returns 0 if the run has no games left to hand out.
func (c *PolicyConfig) TaskSize(r *run.Run, concurrency int) int {
	threads := max(r.Args.Threads, 1)
	batch := r.BatchGames()

	tcFactor := 1.0
	if base, err := run.ParseTC(r.Args.TC); err == nil {
		tcFactor = math.Min(math.Max(referenceTC/base, 0.1), 1)
	}

	games := int(math.Ceil(float64(concurrency/threads*c.GamesPerCore) * tcFactor))
	games = roundUp(max(games, 1), batch)
	games = max(games, roundUp(c.MinBatch, batch))
	games = min(games, max(c.MaxBatch/batch*batch, batch))

	remaining := r.RemainingGames()
	if remaining <= 0 {
		return 0
	}
	return min(games, roundUp(remaining, batch))
}

// Orders candidate runs: priority first, then the run with the fewest
// cores relative to its throughput, then the oldest.
func runPriorityFunc(a, b *run.Run) int {
	if a.Args.Priority != b.Args.Priority {
		if a.Args.Priority > b.Args.Priority {
			return -1
		}
		return 1
	}

	loadA := float64(a.Cores()) / float64(max(a.Args.Throughput, 1))
	loadB := float64(b.Cores()) / float64(max(b.Args.Throughput, 1))
	if loadA != loadB {
		if loadA < loadB {
			return -1
		}
		return 1
	}

	return a.CreatedAt.Compare(b.CreatedAt)
}

// Returned by mutations which decided not to change the run.
var errUnchanged = errors.New("unchanged")

// Hands out tasks from cached runs to requesting workers.
type taskAssigner struct {
	cache    *rundb.RunCache
	registry *WorkerRegistry
	policy   PolicyConfig
	now      func() time.Time

	// Called with the id of each run that was finished.
	finished func(ctx context.Context, runId string)
	// Called with each action taken on a run.
	record func(protocol.Action)
}

func (a *taskAssigner) Assign(ctx context.Context, req protocol.TaskRequest) (*protocol.TaskAssignment, error) {
	if a.cache == nil {
		return nil, utils.ErrWrongInstance
	}

	if req.Worker.WorkerId == "" || req.Worker.Concurrency < 1 {
		return nil, fmt.Errorf("%w: worker id and concurrency are required", utils.ErrBadRequest)
	}

	now := a.now()
	a.expire(ctx, now)
	a.registry.Register(req.Worker, now)

	if assignment := a.continuation(ctx, req); assignment != nil {
		return assignment, nil
	}

	a.supersede(ctx, req.Worker.WorkerId, now)

	candidates, err := a.candidates(ctx, req)
	if err != nil {
		return nil, err
	}

	for _, candidate := range candidates {
		assignment, err := a.tryAssign(ctx, candidate.Id, req.Worker, now)
		switch {
		case err == nil:
			return assignment, nil

		case errors.Is(err, utils.ErrRunFinished) && req.RunId != "":
			return nil, err

		case errors.Is(err, errUnchanged), errors.Is(err, utils.ErrRunFinished):
			continue

		case errors.Is(err, utils.ErrRunHalted):
			log.Debugf("Skipping halted run %s", candidate.Id)
			continue

		default:
			if req.RunId != "" {
				return nil, err
			}
			log.Warnf("Failed to assign task from run %s: %v", candidate.Id, err)
		}
	}

	return nil, utils.ErrNoTask
}

// Returns the task the worker already holds, if it is still playable.
// Makes a retried request return the same assignment.
func (a *taskAssigner) continuation(ctx context.Context, req protocol.TaskRequest) *protocol.TaskAssignment {
	ref, ok := a.registry.Current(req.Worker.WorkerId)
	if !ok || (req.RunId != "" && req.RunId != ref.RunId) {
		return nil
	}

	r, err := a.cache.Get(ctx, ref.RunId)
	if err != nil {
		a.registry.Release(req.Worker.WorkerId, ref)
		return nil
	}

	task, err := r.Task(ref.TaskIndex)
	if err != nil || !task.Active || task.WorkerId != req.Worker.WorkerId || task.IsComplete() || !r.Status.IsAccepting() || r.Decided() {
		a.registry.Release(req.Worker.WorkerId, ref)
		return nil
	}

	log.Debugf("continue - task - run: %s, task: %d, worker: %s", r.Id, task.Index, task.WorkerId)
	return newAssignment(r, task)
}

func (a *taskAssigner) candidates(ctx context.Context, req protocol.TaskRequest) ([]*run.Run, error) {
	if req.RunId != "" {
		r, err := a.cache.Get(ctx, req.RunId)
		if err != nil {
			return nil, err
		}

		switch r.Status {
		case protocol.RunStatusFinished:
			return nil, fmt.Errorf("%w: %s", utils.ErrRunFinished, r.Id)
		case protocol.RunStatusPaused:
			return nil, fmt.Errorf("%w: %s", utils.ErrRunPaused, r.Id)
		}

		return []*run.Run{r}, nil
	}

	queue := utils.NewPriorityQueue(runPriorityFunc)
	for _, r := range a.cache.ActiveRuns() {
		if r.Status.IsAccepting() {
			queue.Push(r)
		}
	}
	return queue.Drain(), nil
}

// Creates a task for the worker in the run. Decided runs are finished
// instead, returning ErrRunFinished.
func (a *taskAssigner) tryAssign(ctx context.Context, runId string, worker protocol.WorkerInfo, now time.Time) (*protocol.TaskAssignment, error) {
	var assignment *protocol.TaskAssignment
	var released []*run.Task
	var verdict string

	err := a.cache.Mutate(ctx, runId, func(r *run.Run) error {
		assignment, released, verdict = nil, nil, ""

		if r.IsFinished() {
			return fmt.Errorf("%w: %s", utils.ErrRunFinished, r.Id)
		}
		if !r.Status.IsAccepting() {
			return errUnchanged
		}

		if r.Decided() || r.Complete() {
			released = r.Finish("", now)
			verdict = finishMessage(r)
			log.Infof("end - run - id: %s, games: %d", r.Id, r.Results.Games())
			return nil
		}

		if worker.Concurrency < r.Args.Threads {
			return errUnchanged
		}

		games := a.policy.TaskSize(r, worker.Concurrency)
		if games <= 0 {
			return errUnchanged
		}

		task := r.AddTask(worker, games, now)
		assignment = newAssignment(r, task)
		return nil
	})
	if err != nil {
		return nil, err
	}

	if assignment == nil {
		for _, t := range released {
			a.registry.Release(t.WorkerId, TaskRef{RunId: runId, TaskIndex: t.Index})
		}
		a.record(protocol.NewRunAction(protocol.ActionFinishRun, runId, verdict, now))
		a.finished(ctx, runId)
		return nil, fmt.Errorf("%w: %s", utils.ErrRunFinished, runId)
	}

	a.registry.Assign(worker.WorkerId, TaskRef{RunId: runId, TaskIndex: assignment.TaskIndex})
	log.Infof("new - task - run: %s, task: %d, worker: %s, games: %d", runId, assignment.TaskIndex, worker.WorkerId, assignment.NumGames)
	return assignment, nil
}

// Deactivates the tasks of workers that stopped sending heartbeats.
// Games already played stay with the task; the rest return to the run.
func (a *taskAssigner) expire(ctx context.Context, now time.Time) {
	for _, expired := range a.registry.Expire(now) {
		err := a.cache.Mutate(ctx, expired.RunId, func(r *run.Run) error {
			task, err := r.Task(expired.TaskIndex)
			if err != nil {
				return err
			}
			if !task.Active || task.WorkerId != expired.WorkerId {
				return errUnchanged
			}
			task.Deactivate("heartbeat timeout", now)
			return nil
		})
		switch {
		case err == nil:
			log.Infof("exp - task - run: %s, task: %d, worker: %s", expired.RunId, expired.TaskIndex, expired.WorkerId)
			a.record(protocol.NewTaskAction(protocol.ActionExpireTask, expired.RunId, expired.TaskIndex, expired.WorkerId, "heartbeat timeout", now))
		case errors.Is(err, errUnchanged):
		default:
			log.Debugf("Failed to expire task %s/%d: %v", expired.RunId, expired.TaskIndex, err)
		}
	}
}

// Deactivates every task still held by the worker. A worker plays one
// task at a time, so a new request means the old tasks were dropped,
// also when the registry lost track of them after a restart.
func (a *taskAssigner) supersede(ctx context.Context, workerId string, now time.Time) {
	for _, snapshot := range a.cache.ActiveRuns() {
		if snapshot.ActiveTask(workerId) == nil {
			continue
		}

		var dropped []*run.Task
		err := a.cache.Mutate(ctx, snapshot.Id, func(r *run.Run) error {
			dropped = nil
			for _, t := range r.Tasks {
				if t.Active && t.WorkerId == workerId {
					t.Deactivate("superseded by a new request", now)
					dropped = append(dropped, t)
				}
			}
			if len(dropped) == 0 {
				return errUnchanged
			}
			return nil
		})
		if err != nil {
			if !errors.Is(err, errUnchanged) {
				log.Debugf("Failed to drop tasks of worker %s in run %s: %v", workerId, snapshot.Id, err)
			}
			continue
		}

		for _, t := range dropped {
			a.registry.Release(workerId, TaskRef{RunId: snapshot.Id, TaskIndex: t.Index})
			log.Infof("exp - task - run: %s, task: %d, worker: %s, superseded", snapshot.Id, t.Index, workerId)
			a.record(protocol.NewTaskAction(protocol.ActionExpireTask, snapshot.Id, t.Index, workerId, "superseded by a new request", now))
		}
	}
}

// Describes why a run finished on its own.
func finishMessage(r *run.Run) string {
	if r.Args.Sprt != nil && r.Args.Sprt.State != "" {
		return "sprt " + r.Args.Sprt.State
	}
	return "game budget played"
}

func newAssignment(r *run.Run, t *run.Task) *protocol.TaskAssignment {
	return &protocol.TaskAssignment{
		RunId:     r.Id,
		TaskIndex: t.Index,
		NumGames:  t.NumGames,
		Args:      r.TaskArgs(),
		Played:    t.Stats.Games(),
		Seq:       t.Seq,
	}
}
