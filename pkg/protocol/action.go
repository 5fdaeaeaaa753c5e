package protocol

import "time"

type ActionKind string

const (
	ActionNewRun     ActionKind = "new_run"
	ActionPauseRun   ActionKind = "pause_run"
	ActionResumeRun  ActionKind = "resume_run"
	ActionFinishRun  ActionKind = "finish_run"
	ActionStopRun    ActionKind = "stop_run"
	ActionFailedTask ActionKind = "failed_task"
	ActionExpireTask ActionKind = "expire_task"
)

// Record of a state change of a run, kept for operators.
type Action struct {
	Time     time.Time  `json:"time"`
	Action   ActionKind `json:"action"`
	RunId    string     `json:"run_id"`
	Task     *int       `json:"task,omitempty"`
	WorkerId string     `json:"worker_id,omitempty"`
	Message  string     `json:"message,omitempty"`
}

func NewRunAction(kind ActionKind, runId, message string, now time.Time) Action {
	return Action{Time: now, Action: kind, RunId: runId, Message: message}
}

func NewTaskAction(kind ActionKind, runId string, task int, workerId, message string, now time.Time) Action {
	return Action{Time: now, Action: kind, RunId: runId, Task: &task, WorkerId: workerId, Message: message}
}
