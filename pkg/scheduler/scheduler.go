package scheduler

import (
	"context"

	"github.com/srand/fleet/pkg/protocol"
	"github.com/srand/fleet/pkg/run"
	"github.com/srand/fleet/pkg/rundb"
)

// Main scheduler interface.
// Write operations fail with ErrWrongInstance on a secondary instance.
type Scheduler interface {
	// Assign a task to a worker, either from the given run or from the
	// run most in need of workers. Fails with ErrBusy when too many
	// assignments are in progress and with ErrNoTask when there is no work.
	RequestTask(ctx context.Context, req protocol.TaskRequest) (*protocol.TaskAssignment, error)

	// Apply results reported by a worker.
	UpdateTask(ctx context.Context, req protocol.UpdateTaskRequest) (*protocol.UpdateTaskResponse, error)

	// Refresh the heartbeat of a worker and its task.
	Beat(ctx context.Context, req protocol.BeatRequest) error

	// Give up a task.
	FailedTask(ctx context.Context, req protocol.FailedTaskRequest) error

	// Stop a run on behalf of a worker holding one of its tasks.
	StopRun(ctx context.Context, req protocol.StopRunRequest) error

	// Hand out SPSA parameters for the next games of a task.
	RequestSpsa(ctx context.Context, req protocol.SpsaRequest) (*protocol.SpsaAssignment, error)

	///////////////////////////////////////////////////////////////////////////

	// Get a run document. The document must not be modified.
	GetRun(ctx context.Context, id string) (*run.Run, error)

	// Get all unfinished runs.
	ActiveRuns(ctx context.Context) ([]*run.Run, error)

	// Get runs, optionally restricted to a status.
	ListRuns(ctx context.Context, status protocol.RunStatus) ([]*run.Run, error)

	// Get the Elo estimate of a run.
	GetElo(ctx context.Context, id string) (*protocol.EloResponse, error)

	///////////////////////////////////////////////////////////////////////////

	// Create a new run.
	CreateRun(ctx context.Context, args run.Args) (*run.Run, error)

	// Stop assigning tasks from a run until it is resumed.
	PauseRun(ctx context.Context, id string) error

	// Resume assigning tasks from a paused run.
	ResumeRun(ctx context.Context, id string) error

	// Finish a run.
	FinishRun(ctx context.Context, id, reason string) error

	// Get information about known workers.
	Workers() []protocol.WorkerStatus

	// Register a receiver of run and task actions.
	AddObserver(receiver SchedulerObserver)

	///////////////////////////////////////////////////////////////////////////

	// Run scheduler maintenance until the context is cancelled.
	Run(ctx context.Context)

	// Get scheduler statistics
	Statistics() *SchedulerStatistics
}

// Scheduler statistics
type SchedulerStatistics struct {
	// True on the instance owning the write path
	Primary bool `json:"primary"`

	// Number of known workers
	Workers int64 `json:"workers"`

	// Number of cached, unfinished runs
	ActiveRuns int64 `json:"active_runs"`

	// Number of active tasks
	ActiveTasks int64 `json:"active_tasks"`

	// Number of cores working on active tasks
	ActiveCores int64 `json:"active_cores"`

	// Total number of assigned tasks
	AssignedTasks int64 `json:"assigned_tasks"`

	// Total number of finished runs
	FinishedRuns int64 `json:"finished_runs"`

	Admission AdmissionStats   `json:"admission"`
	Reports   IngestStats      `json:"reports"`
	Cache     rundb.CacheStats `json:"cache"`
}
