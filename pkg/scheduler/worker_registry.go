package scheduler

import (
	"sort"
	"sync"
	"time"

	"github.com/srand/fleet/pkg/log"
	"github.com/srand/fleet/pkg/protocol"
)

// Reference to a task of a run.
type TaskRef struct {
	RunId     string
	TaskIndex int
}

// A task whose worker stopped sending heartbeats.
type ExpiredTask struct {
	WorkerId string
	TaskRef
}

type workerEntry struct {
	info     protocol.WorkerInfo
	lastBeat time.Time
	task     *TaskRef
}

// Tracks the liveness of workers and the task each one holds.
// The registry is ephemeral; it is rebuilt from worker requests after a restart.
type WorkerRegistry struct {
	mu      sync.Mutex
	timeout time.Duration
	workers map[string]*workerEntry
}

func NewWorkerRegistry(timeout time.Duration) *WorkerRegistry {
	return &WorkerRegistry{
		timeout: timeout,
		workers: map[string]*workerEntry{},
	}
}

// Register records a request from the worker.
func (r *WorkerRegistry) Register(info protocol.WorkerInfo, now time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.workers[info.WorkerId]
	if !ok {
		entry = &workerEntry{}
		r.workers[info.WorkerId] = entry
		log.Debugf("new - worker - id: %s, concurrency: %d", info.WorkerId, info.Concurrency)
	}
	entry.info = info
	entry.lastBeat = now
}

// Beat refreshes the heartbeat of a known worker.
// Returns false if the worker is unknown.
func (r *WorkerRegistry) Beat(workerId string, now time.Time) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.workers[workerId]
	if !ok {
		return false
	}
	entry.lastBeat = now
	return true
}

// Assign records the task held by the worker.
func (r *WorkerRegistry) Assign(workerId string, ref TaskRef) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.workers[workerId]
	if !ok {
		entry = &workerEntry{info: protocol.WorkerInfo{WorkerId: workerId}}
		r.workers[workerId] = entry
	}
	entry.task = &ref
}

// Release forgets the task of the worker if it is still the one recorded.
func (r *WorkerRegistry) Release(workerId string, ref TaskRef) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.workers[workerId]
	if ok && entry.task != nil && *entry.task == ref {
		entry.task = nil
	}
}

// Current returns the task held by the worker.
func (r *WorkerRegistry) Current(workerId string) (TaskRef, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.workers[workerId]
	if !ok || entry.task == nil {
		return TaskRef{}, false
	}
	return *entry.task, true
}

// Expire returns the tasks of workers silent for longer than the
// heartbeat timeout and releases them. Workers silent for two timeouts
// are forgotten.
func (r *WorkerRegistry) Expire(now time.Time) []ExpiredTask {
	r.mu.Lock()
	defer r.mu.Unlock()

	var expired []ExpiredTask
	for id, entry := range r.workers {
		silence := now.Sub(entry.lastBeat)

		if entry.task != nil && silence > r.timeout {
			expired = append(expired, ExpiredTask{WorkerId: id, TaskRef: *entry.task})
			entry.task = nil
		}

		if silence > 2*r.timeout {
			delete(r.workers, id)
			log.Debugf("del - worker - id: %s", id)
		}
	}
	return expired
}

func (r *WorkerRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.workers)
}

// Workers returns the state of all known workers, ordered by id.
func (r *WorkerRegistry) Workers() []protocol.WorkerStatus {
	r.mu.Lock()
	defer r.mu.Unlock()

	workers := make([]protocol.WorkerStatus, 0, len(r.workers))
	for id, entry := range r.workers {
		status := protocol.WorkerStatus{
			WorkerId:    id,
			Concurrency: entry.info.Concurrency,
			LastBeat:    entry.lastBeat,
			TaskIndex:   -1,
		}
		if entry.task != nil {
			status.RunId = entry.task.RunId
			status.TaskIndex = entry.task.TaskIndex
		}
		workers = append(workers, status)
	}

	sort.Slice(workers, func(i, j int) bool {
		return workers[i].WorkerId < workers[j].WorkerId
	})
	return workers
}
