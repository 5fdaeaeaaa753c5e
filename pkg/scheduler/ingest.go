package scheduler

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync/atomic"
	"time"

	"github.com/srand/fleet/pkg/log"
	"github.com/srand/fleet/pkg/protocol"
	"github.com/srand/fleet/pkg/run"
	"github.com/srand/fleet/pkg/rundb"
	"github.com/srand/fleet/pkg/stats"
	"github.com/srand/fleet/pkg/utils"
)

type IngestStats struct {
	Accepted  int64 `json:"accepted"`
	Duplicate int64 `json:"duplicate"`
	Stale     int64 `json:"stale"`
	Rejected  int64 `json:"rejected"`
}

// Merges worker reports into cached runs.
type resultIngestor struct {
	cache    *rundb.RunCache
	registry *WorkerRegistry
	now      func() time.Time

	// Called with the id of each run that was finished.
	finished func(ctx context.Context, runId string)
	// Called with each action taken on a run.
	record func(protocol.Action)

	accepted  atomic.Int64
	duplicate atomic.Int64
	stale     atomic.Int64
	rejected  atomic.Int64
}

type globalRand struct{}

func (globalRand) IntN(n int) int {
	return rand.IntN(n)
}

// Update applies a results delta reported by the worker holding the task.
func (i *resultIngestor) Update(ctx context.Context, req protocol.UpdateTaskRequest) (*protocol.UpdateTaskResponse, error) {
	if i.cache == nil {
		return nil, utils.ErrWrongInstance
	}

	now := i.now()

	response := &protocol.UpdateTaskResponse{}
	var taskDone bool
	var released []*run.Task
	var verdict string

	err := i.cache.Mutate(ctx, req.RunId, func(r *run.Run) error {
		taskDone, released, verdict = false, nil, ""

		task, err := r.Task(req.TaskIndex)
		if err != nil {
			return err
		}

		if task.WorkerId != req.WorkerId {
			log.Warnf("Report for task %s/%d from worker %s, but the task belongs to %s", r.Id, task.Index, req.WorkerId, task.WorkerId)
			return fmt.Errorf("%w: task %s/%d", utils.ErrInvalidWorker, r.Id, task.Index)
		}

		if r.IsFinished() {
			return fmt.Errorf("%w: %s", utils.ErrRunFinished, r.Id)
		}

		if req.Seq <= task.Seq {
			return fmt.Errorf("%w: task %s/%d, seq %d <= %d", utils.ErrDuplicateReport, r.Id, task.Index, req.Seq, task.Seq)
		}

		if !task.Active {
			log.Infof("Dropping report for inactive task %s/%d from worker %s", r.Id, task.Index, req.WorkerId)
			return fmt.Errorf("%w: task %s/%d", utils.ErrStaleAssignment, r.Id, task.Index)
		}

		if err := req.Stats.Validate(); err != nil {
			return err
		}

		if task.Stats.Games()+req.Stats.Games() > task.NumGames {
			return fmt.Errorf("%w: task %s/%d would exceed %d games", utils.ErrBadRequest, r.Id, task.Index, task.NumGames)
		}

		r.ApplyReport(task, req.Seq, req.Stats, now)

		if req.Spsa != nil {
			applySpsa(r, task, *req.Spsa)
		}

		if task.IsComplete() {
			task.Deactivate("", now)
			taskDone = true
		}

		if r.Decided() || r.Complete() {
			released = r.Finish("", now)
			verdict = finishMessage(r)
			log.Infof("end - run - id: %s, games: %d", r.Id, r.Results.Games())
		}

		response.TaskAlive = task.Active
		response.RunFinished = r.IsFinished()
		return nil
	})

	// Only the worker owning the task proves it is alive by reporting.
	switch {
	case err == nil:
		i.accepted.Add(1)
		i.registry.Beat(req.WorkerId, now)
	case errors.Is(err, utils.ErrDuplicateReport):
		i.duplicate.Add(1)
		i.registry.Beat(req.WorkerId, now)
		return nil, err
	case errors.Is(err, utils.ErrStaleAssignment):
		i.stale.Add(1)
		return nil, err
	default:
		i.rejected.Add(1)
		return nil, err
	}

	ref := TaskRef{RunId: req.RunId, TaskIndex: req.TaskIndex}
	if taskDone {
		i.registry.Release(req.WorkerId, ref)
	}
	for _, t := range released {
		i.registry.Release(t.WorkerId, TaskRef{RunId: req.RunId, TaskIndex: t.Index})
	}
	if verdict != "" {
		i.record(protocol.NewRunAction(protocol.ActionFinishRun, req.RunId, verdict, now))
	}
	if response.RunFinished {
		i.finished(ctx, req.RunId)
	}

	log.Tracef("upd - task - run: %s, task: %d, seq: %d, games: %d", req.RunId, req.TaskIndex, req.Seq, req.Stats.Games())
	return response, nil
}

// Applies the SPSA results of a task. Results without matching
// perturbation data are dropped, the data is consumed either way.
func applySpsa(r *run.Run, task *run.Task, results stats.SpsaResults) {
	params := task.SpsaParams
	task.SpsaParams = nil

	if params == nil || r.Args.Spsa == nil {
		log.Debugf("No spsa parameters for task %s/%d, skipping update", r.Id, task.Index)
		return
	}

	if results.Sig != stats.FlipSignature(params.PackedFlips) {
		log.Warnf("Spsa signature mismatch for task %s/%d, skipping update", r.Id, task.Index)
		return
	}

	flips := stats.UnpackFlips(params.PackedFlips, len(r.Args.Spsa.Params))
	if !r.Args.Spsa.Update(flips, results, r.Args.NumGames) {
		log.Debugf("Degenerate spsa results for task %s/%d, skipping update", r.Id, task.Index)
	}
}

// RequestSpsa hands out perturbed parameters for the next game pairs of a task.
func (i *resultIngestor) RequestSpsa(ctx context.Context, req protocol.SpsaRequest) (*protocol.SpsaAssignment, error) {
	if i.cache == nil {
		return nil, utils.ErrWrongInstance
	}

	assignment := &protocol.SpsaAssignment{}
	err := i.cache.Mutate(ctx, req.RunId, func(r *run.Run) error {
		task, err := r.Task(req.TaskIndex)
		if err != nil {
			return err
		}
		if task.WorkerId != req.WorkerId {
			return fmt.Errorf("%w: task %s/%d", utils.ErrInvalidWorker, r.Id, task.Index)
		}
		if r.Args.Spsa == nil {
			return fmt.Errorf("%w: run %s", utils.ErrSpsaNotAvailable, r.Id)
		}
		if !task.Active {
			log.Infof("Spsa request for inactive task %s/%d", r.Id, task.Index)
			return errUnchanged
		}

		data := r.Args.Spsa.Generate(globalRand{})
		packed := stats.PackFlips(data.Flips())
		task.SpsaParams = &run.SpsaParams{
			Iter:        r.Args.Spsa.Iter,
			PackedFlips: packed,
		}

		assignment.TaskAlive = true
		assignment.SpsaData = data
		assignment.Sig = stats.FlipSignature(packed)
		return nil
	})
	if errors.Is(err, errUnchanged) {
		return &protocol.SpsaAssignment{TaskAlive: false}, nil
	}
	if err != nil {
		return nil, err
	}
	return assignment, nil
}

// Failed deactivates a task its worker gave up on. Repeated calls are harmless.
func (i *resultIngestor) Failed(ctx context.Context, req protocol.FailedTaskRequest) error {
	if i.cache == nil {
		return utils.ErrWrongInstance
	}

	now := i.now()
	var reason string
	err := i.cache.Mutate(ctx, req.RunId, func(r *run.Run) error {
		task, err := r.Task(req.TaskIndex)
		if err != nil {
			return err
		}
		if task.WorkerId != req.WorkerId {
			return fmt.Errorf("%w: task %s/%d", utils.ErrInvalidWorker, r.Id, task.Index)
		}
		if !task.Active {
			return errUnchanged
		}

		reason = req.Message
		if reason == "" {
			reason = "failed"
		}
		task.Deactivate(reason, now)
		return nil
	})
	if errors.Is(err, errUnchanged) {
		return nil
	}
	if err != nil {
		return err
	}

	i.registry.Release(req.WorkerId, TaskRef{RunId: req.RunId, TaskIndex: req.TaskIndex})
	log.Infof("err - task - run: %s, task: %d, worker: %s, reason: %s", req.RunId, req.TaskIndex, req.WorkerId, req.Message)
	i.record(protocol.NewTaskAction(protocol.ActionFailedTask, req.RunId, req.TaskIndex, req.WorkerId, reason, now))
	return nil
}

// Stop finishes a run on behalf of a worker that found it broken,
// for example because an engine fails to build. The worker must hold
// an active task in the run.
func (i *resultIngestor) Stop(ctx context.Context, req protocol.StopRunRequest) error {
	if i.cache == nil {
		return utils.ErrWrongInstance
	}

	now := i.now()
	var released []*run.Task
	var reason string
	err := i.cache.Mutate(ctx, req.RunId, func(r *run.Run) error {
		if r.IsFinished() {
			return errUnchanged
		}
		if r.ActiveTask(req.WorkerId) == nil {
			return fmt.Errorf("%w: worker %s holds no task in run %s", utils.ErrInvalidWorker, req.WorkerId, r.Id)
		}

		reason = req.Message
		if reason == "" {
			reason = "stopped by worker " + req.WorkerId
		}
		released = r.Finish(reason, now)
		return nil
	})
	if errors.Is(err, errUnchanged) {
		return nil
	}
	if err != nil {
		return err
	}

	for _, t := range released {
		i.registry.Release(t.WorkerId, TaskRef{RunId: req.RunId, TaskIndex: t.Index})
	}
	log.Infof("end - run - id: %s, stopped by: %s, reason: %s", req.RunId, req.WorkerId, req.Message)
	i.record(protocol.Action{Time: now, Action: protocol.ActionStopRun, RunId: req.RunId, WorkerId: req.WorkerId, Message: reason})
	i.finished(ctx, req.RunId)
	return nil
}

// Beat refreshes the heartbeat of the worker and the task it works on.
func (i *resultIngestor) Beat(ctx context.Context, req protocol.BeatRequest) error {
	if i.cache == nil {
		return utils.ErrWrongInstance
	}

	now := i.now()
	i.registry.Beat(req.WorkerId, now)

	return i.cache.Buffer(req.RunId, func(r *run.Run) {
		task, err := r.Task(req.TaskIndex)
		if err == nil && task.Active && task.WorkerId == req.WorkerId {
			task.LastUpdated = now
		}
	})
}

func (i *resultIngestor) Statistics() IngestStats {
	return IngestStats{
		Accepted:  i.accepted.Load(),
		Duplicate: i.duplicate.Load(),
		Stale:     i.stale.Load(),
		Rejected:  i.rejected.Load(),
	}
}
