package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/srand/fleet/pkg/log"
	"github.com/srand/fleet/pkg/protocol"
	"github.com/srand/fleet/pkg/run"
	"github.com/srand/fleet/pkg/utils"
)

type MaintenanceConfig struct {
	// Interval between flushes of dirty runs.
	FlushInterval time.Duration `mapstructure:"flush_interval"`
	// Interval between recomputations of run results from task results.
	RecomputeInterval time.Duration `mapstructure:"recompute_interval"`
	// Interval between scans for silent workers and stale tasks.
	HeartbeatInterval time.Duration `mapstructure:"heartbeat_interval"`
	// Interval between evictions of finished runs from the cache.
	RetireInterval time.Duration `mapstructure:"retire_interval"`
}

func (c *MaintenanceConfig) SetDefaults() {
	if c.FlushInterval == 0 {
		c.FlushInterval = time.Second
	}
	if c.RecomputeInterval == 0 {
		c.RecomputeInterval = time.Minute
	}
	if c.HeartbeatInterval == 0 {
		c.HeartbeatInterval = 30 * time.Second
	}
	if c.RetireInterval == 0 {
		c.RetireInterval = 5 * time.Minute
	}
}

func (c *MaintenanceConfig) Validate() error {
	for name, d := range map[string]time.Duration{
		"flush_interval":     c.FlushInterval,
		"recompute_interval": c.RecomputeInterval,
		"heartbeat_interval": c.HeartbeatInterval,
		"retire_interval":    c.RetireInterval,
	} {
		if d <= 0 {
			return fmt.Errorf("maintenance.%s must be positive", name)
		}
	}
	return nil
}

func (c *MaintenanceConfig) Log() {
	log.Info("  Maintenance:")
	log.Info("    Flush interval:", c.FlushInterval)
	log.Info("    Recompute interval:", c.RecomputeInterval)
	log.Info("    Heartbeat interval:", c.HeartbeatInterval)
	log.Info("    Retire interval:", c.RetireInterval)
}

// Starts the periodic maintenance jobs of the primary instance.
// The returned cron must be stopped by the caller.
func (s *fleetScheduler) startMaintenance(ctx context.Context) *cron.Cron {
	logger := cron.VerbosePrintfLogger(log.NewLogger(log.TraceLevel))

	c := cron.New(
		cron.WithLogger(logger),
		cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
	)

	jobs := []struct {
		name     string
		interval time.Duration
		fn       func(context.Context) error
	}{
		{"flush", s.config.Maintenance.FlushInterval, s.FlushDirty},
		{"recompute", s.config.Maintenance.RecomputeInterval, s.Recompute},
		{"heartbeat", s.config.Maintenance.HeartbeatInterval, s.ExpireHeartbeats},
		{"retire", s.config.Maintenance.RetireInterval, s.RetireFinished},
	}

	for _, job := range jobs {
		c.Schedule(cron.Every(job.interval), cron.FuncJob(func() {
			if err := job.fn(ctx); err != nil {
				log.Debugf("Maintenance job %s: %v", job.name, err)
			}
		}))
	}

	c.Start()
	return c
}

// FlushDirty writes all runs with unflushed changes to the store.
func (s *fleetScheduler) FlushDirty(ctx context.Context) error {
	return s.cache.FlushAll(ctx)
}

// Recompute rebuilds the results of active runs from their tasks and
// re-evaluates them, finishing runs that have been decided.
func (s *fleetScheduler) Recompute(ctx context.Context) error {
	if s.cache == nil {
		return utils.ErrWrongInstance
	}

	now := s.now()
	for _, snapshot := range s.cache.ActiveRuns() {
		var finished bool
		var released []*run.Task
		var verdict string
		err := s.cache.Mutate(ctx, snapshot.Id, func(r *run.Run) error {
			finished, released = false, nil
			if r.IsFinished() {
				return errUnchanged
			}

			changed := r.Recompute()
			if r.Decided() || r.Complete() {
				released = r.Finish("", now)
				verdict = finishMessage(r)
				finished = true
				return nil
			}

			if !changed {
				return errUnchanged
			}
			return nil
		})
		if err != nil && !errors.Is(err, errUnchanged) {
			log.Debugf("Failed to recompute run %s: %v", snapshot.Id, err)
			continue
		}
		if finished {
			s.releaseAll(snapshot.Id, released)
			log.Infof("end - run - id: %s", snapshot.Id)
			s.observers.record(protocol.NewRunAction(protocol.ActionFinishRun, snapshot.Id, verdict, now))
			s.runFinished(ctx, snapshot.Id)
		}
	}
	return nil
}

// ExpireHeartbeats deactivates the tasks of silent workers, and tasks
// which have not been updated within the heartbeat timeout.
func (s *fleetScheduler) ExpireHeartbeats(ctx context.Context) error {
	if s.cache == nil {
		return utils.ErrWrongInstance
	}

	now := s.now()
	s.assigner.expire(ctx, now)

	deadline := now.Add(-s.config.HeartbeatTimeout)
	for _, snapshot := range s.cache.ActiveRuns() {
		if !hasStaleTask(snapshot, deadline) {
			continue
		}

		var expired []*run.Task
		err := s.cache.Mutate(ctx, snapshot.Id, func(r *run.Run) error {
			expired = nil
			for _, t := range r.Tasks {
				if t.Active && t.LastUpdated.Before(deadline) {
					t.Deactivate("task timeout", now)
					expired = append(expired, t)
				}
			}
			if len(expired) == 0 {
				return errUnchanged
			}
			return nil
		})
		if err != nil {
			continue
		}

		for _, t := range expired {
			log.Infof("exp - task - run: %s, task: %d, worker: %s", snapshot.Id, t.Index, t.WorkerId)
			s.observers.record(protocol.NewTaskAction(protocol.ActionExpireTask, snapshot.Id, t.Index, t.WorkerId, "task timeout", now))
		}
		s.releaseAll(snapshot.Id, expired)
	}
	return nil
}

func hasStaleTask(r *run.Run, deadline time.Time) bool {
	for _, t := range r.Tasks {
		if t.Active && t.LastUpdated.Before(deadline) {
			return true
		}
	}
	return false
}

// RetireFinished flushes finished runs and evicts them from the cache.
func (s *fleetScheduler) RetireFinished(ctx context.Context) error {
	if s.cache == nil {
		return utils.ErrWrongInstance
	}

	var errs []error
	for _, r := range s.cache.Runs() {
		if !r.IsFinished() {
			continue
		}
		if err := s.cache.Flush(ctx, r.Id); err != nil {
			errs = append(errs, err)
			continue
		}
		s.cache.Evict(r.Id)
	}
	return errors.Join(errs...)
}
