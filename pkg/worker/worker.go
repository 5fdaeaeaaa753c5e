package worker

import (
	"context"
	"errors"
	"os"
	"sync/atomic"
	"time"

	"github.com/srand/fleet/pkg/log"
	"github.com/srand/fleet/pkg/protocol"
	"github.com/srand/fleet/pkg/stats"
	"github.com/srand/fleet/pkg/utils"
)

// Number of attempts to deliver a report before the task is abandoned.
const reportAttempts = 3

type WorkerStatistics struct {
	Tasks   int64 `json:"tasks"`
	Games   int64 `json:"games"`
	Reports int64 `json:"reports"`
	Retries int64 `json:"retries"`
}

type worker struct {
	client Client
	player Player
	config *WorkerConfig

	numTasks   atomic.Int64
	numGames   atomic.Int64
	numReports atomic.Int64
	numRetries atomic.Int64
}

func NewWorker(client Client, player Player, config *WorkerConfig) *worker {
	return &worker{
		client: client,
		player: player,
		config: config,
	}
}

func (w *worker) info() protocol.WorkerInfo {
	hostname, _ := os.Hostname()
	return protocol.WorkerInfo{
		WorkerId:    w.config.WorkerId,
		Concurrency: w.config.Concurrency,
		Hostname:    hostname,
		Version:     Version,
	}
}

// Sleeps for the retry interval. Returns false if the context ended first.
func (w *worker) backoff(ctx context.Context) bool {
	w.numRetries.Add(1)
	select {
	case <-ctx.Done():
		return false
	case <-time.After(w.config.RetryInterval):
		return true
	}
}

// Run requests and plays tasks until the context is cancelled, the
// configured number of tasks has been played or the pinned run is finished.
func (w *worker) Run(ctx context.Context) error {
	log.Info("Starting")
	defer log.Info("Terminating")

	for w.config.MaxTasks == 0 || w.numTasks.Load() < int64(w.config.MaxTasks) {
		assignment, err := w.client.RequestTask(ctx, protocol.TaskRequest{
			Worker: w.info(),
			RunId:  w.config.RunId,
		})
		switch {
		case ctx.Err() != nil:
			return nil

		case err == nil:

		case errors.Is(err, utils.ErrRunFinished) && w.config.RunId != "":
			log.Info("Run is finished:", w.config.RunId)
			return nil

		default:
			log.Debug("Task request rejected:", err)
			if !w.backoff(ctx) {
				return nil
			}
			continue
		}

		w.numTasks.Add(1)
		log.Infof("new - task - run: %s, task: %d, games: %d", assignment.RunId, assignment.TaskIndex, assignment.NumGames)

		if err := w.playTask(ctx, assignment); err != nil {
			log.Warnf("Task %s/%d failed: %v", assignment.RunId, assignment.TaskIndex, err)
		}
	}
	return nil
}

// Plays the games of a task, reporting results after every batch.
func (w *worker) playTask(ctx context.Context, a *protocol.TaskAssignment) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go w.beat(ctx, a)

	seq := a.Seq
	remaining := a.NumGames - a.Played

	for remaining >= 2 {
		pairs := min(w.config.ReportPairs, remaining/2)

		var spsa *protocol.SpsaAssignment
		if a.Args.Spsa {
			var err error
			spsa, err = w.client.RequestSpsa(ctx, protocol.SpsaRequest{WorkerId: w.config.WorkerId, RunId: a.RunId, TaskIndex: a.TaskIndex})
			if err != nil {
				return err
			}
			if !spsa.TaskAlive {
				return nil
			}
		}

		results, err := w.player.PlayPairs(ctx, a.Args, spsa, pairs)
		if err != nil {
			return w.abandon(ctx, a, err)
		}

		seq++
		req := protocol.UpdateTaskRequest{
			WorkerId:  w.config.WorkerId,
			RunId:     a.RunId,
			TaskIndex: a.TaskIndex,
			Seq:       seq,
			Stats:     results,
		}
		if spsa != nil {
			req.Spsa = &stats.SpsaResults{
				Wins:     results.Wins,
				Losses:   results.Losses,
				Draws:    results.Draws,
				NumGames: results.Games(),
				Sig:      spsa.Sig,
			}
		}

		alive, err := w.report(ctx, req)
		if err != nil {
			return err
		}

		w.numGames.Add(int64(results.Games()))
		remaining -= results.Games()
		if !alive {
			log.Infof("end - task - run: %s, task: %d", a.RunId, a.TaskIndex)
			return nil
		}
	}
	return nil
}

// Delivers a report, retrying with the same sequence number. Returns
// false if the task should be abandoned.
func (w *worker) report(ctx context.Context, req protocol.UpdateTaskRequest) (bool, error) {
	for attempt := 1; ; attempt++ {
		resp, err := w.client.UpdateTask(ctx, req)
		switch {
		case err == nil:
			w.numReports.Add(1)
			return resp.TaskAlive, nil

		case errors.Is(err, utils.ErrDuplicateReport):
			// An earlier attempt was applied.
			w.numReports.Add(1)
			return true, nil

		case errors.Is(err, utils.ErrStaleAssignment), errors.Is(err, utils.ErrRunFinished), errors.Is(err, utils.ErrInvalidWorker):
			log.Infof("Task %s/%d is gone: %v", req.RunId, req.TaskIndex, err)
			return false, nil

		case attempt >= reportAttempts:
			return false, err
		}

		log.Debug("Report rejected, retrying:", err)
		if !w.backoff(ctx) {
			return false, ctx.Err()
		}
	}
}

// Gives up a task the player could not complete.
func (w *worker) abandon(ctx context.Context, a *protocol.TaskAssignment, cause error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}

	if errors.Is(cause, ErrBrokenRun) {
		err := w.client.StopRun(ctx, protocol.StopRunRequest{WorkerId: w.config.WorkerId, RunId: a.RunId, Message: cause.Error()})
		return errors.Join(cause, err)
	}

	err := w.client.FailedTask(ctx, protocol.FailedTaskRequest{
		WorkerId:  w.config.WorkerId,
		RunId:     a.RunId,
		TaskIndex: a.TaskIndex,
		Message:   cause.Error(),
	})
	return errors.Join(cause, err)
}

func (w *worker) beat(ctx context.Context, a *protocol.TaskAssignment) {
	ticker := time.NewTicker(w.config.BeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			err := w.client.Beat(ctx, protocol.BeatRequest{WorkerId: w.config.WorkerId, RunId: a.RunId, TaskIndex: a.TaskIndex})
			if err != nil && ctx.Err() == nil {
				log.Debug("Heartbeat failed:", err)
			}
		}
	}
}

func (w *worker) Statistics() WorkerStatistics {
	return WorkerStatistics{
		Tasks:   w.numTasks.Load(),
		Games:   w.numGames.Load(),
		Reports: w.numReports.Load(),
		Retries: w.numRetries.Load(),
	}
}
