package scheduler

import (
	"testing"
	"time"

	"github.com/srand/fleet/pkg/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWorkerRegistry(t *testing.T) {
	r := NewWorkerRegistry(time.Minute)

	assert.False(t, r.Beat("w1", epoch))

	r.Register(protocol.WorkerInfo{WorkerId: "w1", Concurrency: 8}, epoch)
	r.Register(protocol.WorkerInfo{WorkerId: "w0", Concurrency: 2}, epoch)
	assert.Equal(t, 2, r.Len())

	ref := TaskRef{RunId: "run", TaskIndex: 3}
	r.Assign("w1", ref)

	current, ok := r.Current("w1")
	require.True(t, ok)
	assert.Equal(t, ref, current)

	r.Release("w1", TaskRef{RunId: "run", TaskIndex: 4})
	_, ok = r.Current("w1")
	assert.True(t, ok, "release of another task keeps the current one")

	workers := r.Workers()
	require.Len(t, workers, 2)
	assert.Equal(t, "w0", workers[0].WorkerId)
	assert.Equal(t, -1, workers[0].TaskIndex)
	assert.Equal(t, "w1", workers[1].WorkerId)
	assert.Equal(t, 8, workers[1].Concurrency)
	assert.Equal(t, 3, workers[1].TaskIndex)

	r.Release("w1", ref)
	_, ok = r.Current("w1")
	assert.False(t, ok)
}

func TestWorkerRegistryExpire(t *testing.T) {
	r := NewWorkerRegistry(time.Minute)

	r.Register(protocol.WorkerInfo{WorkerId: "w1", Concurrency: 1}, epoch)
	r.Register(protocol.WorkerInfo{WorkerId: "w2", Concurrency: 1}, epoch)
	r.Assign("w1", TaskRef{RunId: "run", TaskIndex: 0})
	r.Assign("w2", TaskRef{RunId: "run", TaskIndex: 1})

	assert.True(t, r.Beat("w2", epoch.Add(50*time.Second)))

	expired := r.Expire(epoch.Add(90 * time.Second))
	require.Len(t, expired, 1)
	assert.Equal(t, ExpiredTask{WorkerId: "w1", TaskRef: TaskRef{RunId: "run", TaskIndex: 0}}, expired[0])

	_, ok := r.Current("w1")
	assert.False(t, ok)
	_, ok = r.Current("w2")
	assert.True(t, ok)

	assert.Empty(t, r.Expire(epoch.Add(100*time.Second)))

	expired = r.Expire(epoch.Add(150 * time.Second))
	require.Len(t, expired, 1)
	assert.Equal(t, "w2", expired[0].WorkerId)
	assert.Equal(t, 1, r.Len(), "w1 is forgotten after two timeouts")

	assert.Empty(t, r.Expire(epoch.Add(3*time.Minute)))
	assert.Equal(t, 0, r.Len())
}
