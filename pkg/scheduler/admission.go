package scheduler

import (
	"fmt"
	"sync/atomic"

	"github.com/srand/fleet/pkg/log"
	"github.com/srand/fleet/pkg/utils"
	"golang.org/x/sync/semaphore"
)

type AdmissionConfig struct {
	// Number of task assignments processed concurrently.
	Capacity int `mapstructure:"capacity"`
}

func (c *AdmissionConfig) SetDefaults() {
	if c.Capacity == 0 {
		c.Capacity = 5
	}
}

func (c *AdmissionConfig) Validate() error {
	if c.Capacity < 1 {
		return fmt.Errorf("admission.capacity must be positive")
	}
	return nil
}

func (c *AdmissionConfig) Log() {
	log.Info("  Admission capacity:", c.Capacity)
}

type AdmissionStats struct {
	Capacity int64 `json:"capacity"`
	InFlight int64 `json:"in_flight"`
	Admitted int64 `json:"admitted"`
	Rejected int64 `json:"rejected"`
}

// Bounds the number of concurrent task assignments. Requests over
// capacity are rejected immediately instead of queueing.
type AdmissionController struct {
	sem      *semaphore.Weighted
	capacity int64
	inFlight atomic.Int64
	admitted atomic.Int64
	rejected atomic.Int64
}

func NewAdmissionController(capacity int) *AdmissionController {
	if capacity < 1 {
		capacity = 1
	}
	return &AdmissionController{
		sem:      semaphore.NewWeighted(int64(capacity)),
		capacity: int64(capacity),
	}
}

// Acquire takes a permit without blocking. The returned function
// releases the permit. Fails with ErrBusy if no permit is free.
func (a *AdmissionController) Acquire() (func(), error) {
	if !a.sem.TryAcquire(1) {
		a.rejected.Add(1)
		return nil, utils.ErrBusy
	}

	a.admitted.Add(1)
	a.inFlight.Add(1)

	var once atomic.Bool
	return func() {
		if once.CompareAndSwap(false, true) {
			a.inFlight.Add(-1)
			a.sem.Release(1)
		}
	}, nil
}

func (a *AdmissionController) Statistics() AdmissionStats {
	return AdmissionStats{
		Capacity: a.capacity,
		InFlight: a.inFlight.Load(),
		Admitted: a.admitted.Load(),
		Rejected: a.rejected.Load(),
	}
}
