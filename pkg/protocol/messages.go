package protocol

import (
	"time"

	"github.com/srand/fleet/pkg/stats"
)

// Identification of a worker making a request.
type WorkerInfo struct {
	WorkerId string `json:"worker_id"`
	// Number of games the worker plays in parallel.
	Concurrency int    `json:"concurrency"`
	Hostname    string `json:"hostname,omitempty"`
	Version     string `json:"version,omitempty"`
}

type TaskRequest struct {
	Worker WorkerInfo `json:"worker"`
	// Restrict the request to a single run.
	RunId string `json:"run_id,omitempty"`
}

// Engine configuration needed to play the games of a task.
type TaskArgs struct {
	NewTag  string `json:"new_tag"`
	BaseTag string `json:"base_tag"`
	Book    string `json:"book,omitempty"`
	TC      string `json:"tc"`
	Threads int    `json:"threads"`
	Spsa    bool   `json:"spsa,omitempty"`
}

type TaskAssignment struct {
	RunId     string   `json:"run_id"`
	TaskIndex int      `json:"task_index"`
	NumGames  int      `json:"num_games"`
	Args      TaskArgs `json:"args"`
	// Games already accounted for when the assignment is a continuation.
	Played int `json:"played"`
	// Last report sequence number applied to the task.
	Seq uint64 `json:"seq"`
}

type UpdateTaskRequest struct {
	WorkerId  string `json:"worker_id"`
	RunId     string `json:"run_id"`
	TaskIndex int    `json:"task_index"`
	// Strictly increasing per task. Reports with an old number are dropped.
	Seq uint64 `json:"seq"`
	// Games played since the previous report.
	Stats Results            `json:"stats"`
	Spsa  *stats.SpsaResults `json:"spsa,omitempty"`
}

type UpdateTaskResponse struct {
	// False when the worker should abandon the task.
	TaskAlive bool `json:"task_alive"`
	// True when the run was finished by this or an earlier report.
	RunFinished bool `json:"run_finished"`
}

type BeatRequest struct {
	WorkerId  string `json:"worker_id"`
	RunId     string `json:"run_id"`
	TaskIndex int    `json:"task_index"`
}

type FailedTaskRequest struct {
	WorkerId  string `json:"worker_id"`
	RunId     string `json:"run_id"`
	TaskIndex int    `json:"task_index"`
	Message   string `json:"message,omitempty"`
}

type StopRunRequest struct {
	WorkerId string `json:"worker_id"`
	RunId    string `json:"run_id"`
	Message  string `json:"message,omitempty"`
}

type SpsaRequest struct {
	WorkerId  string `json:"worker_id"`
	RunId     string `json:"run_id"`
	TaskIndex int    `json:"task_index"`
}

type SpsaAssignment struct {
	TaskAlive bool `json:"task_alive"`
	stats.SpsaData
	Sig uint32 `json:"sig"`
}

type EloResponse struct {
	RunId string `json:"run_id"`
	stats.Elo
	Sprt *stats.SprtResult `json:"sprt,omitempty"`
}

// Registry view of a worker.
type WorkerStatus struct {
	WorkerId    string    `json:"worker_id"`
	Concurrency int       `json:"concurrency"`
	LastBeat    time.Time `json:"last_beat"`
	RunId       string    `json:"run_id,omitempty"`
	TaskIndex   int       `json:"task_index"`
}
