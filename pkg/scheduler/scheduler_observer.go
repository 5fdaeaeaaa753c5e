package scheduler

import (
	"sync"

	"github.com/srand/fleet/pkg/protocol"
)

type SchedulerObserver interface {
	// When a run or one of its tasks changed state
	ActionRecorded(protocol.Action)
}

type observers struct {
	sync.RWMutex
	receivers []SchedulerObserver
}

func (o *observers) add(receiver SchedulerObserver) {
	o.Lock()
	defer o.Unlock()

	o.receivers = append(o.receivers, receiver)
}

func (o *observers) record(action protocol.Action) {
	o.RLock()
	defer o.RUnlock()

	for _, receiver := range o.receivers {
		receiver.ActionRecorded(action)
	}
}
