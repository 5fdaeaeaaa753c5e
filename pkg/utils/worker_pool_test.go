package utils

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWorkerPool(t *testing.T) {
	numResults := 10000

	pool := NewWorkerPool(8)
	pool.Start()
	defer pool.Stop()

	var mu sync.Mutex
	results := map[int]struct{}{}

	for i := 0; i < numResults; i++ {
		pool.Submit(func() {
			mu.Lock()
			results[i] = struct{}{}
			mu.Unlock()
		})
	}

	pool.Wait()
	assert.Len(t, results, numResults)
}

func TestWorkerPoolBoundsConcurrency(t *testing.T) {
	pool := NewWorkerPool(3)
	pool.Start()

	var running, peak atomic.Int32
	release := make(chan struct{})

	for i := 0; i < 3; i++ {
		pool.Submit(func() {
			n := running.Add(1)
			for {
				p := peak.Load()
				if n <= p || peak.CompareAndSwap(p, n) {
					break
				}
			}
			<-release
			running.Add(-1)
		})
	}

	close(release)
	pool.Wait()
	pool.Stop()
	pool.Stop()

	assert.LessOrEqual(t, peak.Load(), int32(3))
	assert.Equal(t, 3, pool.Size())
	assert.Equal(t, 1, NewWorkerPool(0).Size())
}
