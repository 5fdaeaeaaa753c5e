package utils

import (
	"sync"
)

// A fixed set of goroutines executing submitted functions.
type WorkerPool struct {
	workerCount int
	tasks       chan func()
	wg          sync.WaitGroup
	workers     sync.WaitGroup
	stopOnce    sync.Once
}

// Creates a pool with count workers. Count is at least one.
func NewWorkerPool(count int) *WorkerPool {
	count = max(count, 1)
	return &WorkerPool{
		workerCount: count,
		tasks:       make(chan func(), count),
	}
}

func (wp *WorkerPool) Start() {
	for i := 0; i < wp.workerCount; i++ {
		wp.workers.Add(1)
		go func() {
			defer wp.workers.Done()
			for task := range wp.tasks {
				task()
				wp.wg.Done()
			}
		}()
	}
}

// Submit queues a function, blocking while all workers are busy
// and the queue is full.
func (wp *WorkerPool) Submit(task func()) {
	wp.wg.Add(1)
	wp.tasks <- task
}

// Wait blocks until all submitted functions have returned.
func (wp *WorkerPool) Wait() {
	wp.wg.Wait()
}

// Stop terminates the workers once the queue has drained.
// Nothing may be submitted after Stop.
func (wp *WorkerPool) Stop() {
	wp.stopOnce.Do(func() {
		close(wp.tasks)
	})
	wp.workers.Wait()
}

func (wp *WorkerPool) Size() int {
	return wp.workerCount
}
