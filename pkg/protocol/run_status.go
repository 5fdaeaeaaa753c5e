package protocol

import "fmt"

// Scheduling state of a test run.
type RunStatus string

const (
	RunStatusAccepting RunStatus = "accepting"
	RunStatusPaused    RunStatus = "paused"
	RunStatusFinished  RunStatus = "finished"
)

// Should return true if the run will never again be scheduled
func (status RunStatus) IsTerminal() bool {
	return status == RunStatusFinished
}

// Should return true if new tasks may be created for the run
func (status RunStatus) IsAccepting() bool {
	return status == RunStatusAccepting
}

func (status RunStatus) Valid() bool {
	switch status {
	case RunStatusAccepting, RunStatusPaused, RunStatusFinished:
		return true
	default:
		return false
	}
}

// Returns an error if the run may not move from the current status to next.
// Finished is terminal; accepting and paused may be toggled by operators.
func (status RunStatus) CanTransition(next RunStatus) error {
	switch {
	case !next.Valid():
		return fmt.Errorf("invalid run status %q", next)
	case status.IsTerminal():
		return fmt.Errorf("run status %s is terminal", status)
	default:
		return nil
	}
}
