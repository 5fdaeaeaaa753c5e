package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/srand/fleet/pkg/log"
	"github.com/srand/fleet/pkg/protocol"
	"github.com/srand/fleet/pkg/run"
	"github.com/srand/fleet/pkg/rundb"
	"github.com/srand/fleet/pkg/utils"
)

type Config struct {
	// Resolved once at startup, see IsPrimary.
	Primary bool

	// Workers silent for longer lose their tasks.
	HeartbeatTimeout time.Duration `mapstructure:"heartbeat_timeout"`

	// Workers reporting an older version are refused tasks.
	MinWorkerVersion string `mapstructure:"min_worker_version"`

	Admission   AdmissionConfig   `mapstructure:"admission"`
	Cache       rundb.CacheConfig `mapstructure:"cache"`
	Policy      PolicyConfig      `mapstructure:"policy"`
	Maintenance MaintenanceConfig `mapstructure:"maintenance"`
}

func (c *Config) SetDefaults() {
	if c.HeartbeatTimeout == 0 {
		c.HeartbeatTimeout = 2 * time.Minute
	}
	c.Admission.SetDefaults()
	c.Cache.SetDefaults()
	c.Policy.SetDefaults()
	c.Maintenance.SetDefaults()
}

func (c *Config) Validate() error {
	if c.HeartbeatTimeout <= 0 {
		return fmt.Errorf("heartbeat_timeout must be positive")
	}
	if err := c.Admission.Validate(); err != nil {
		return err
	}
	if err := c.Cache.Validate(); err != nil {
		return err
	}
	if err := c.Policy.Validate(); err != nil {
		return err
	}
	return c.Maintenance.Validate()
}

func (c *Config) Log() {
	if c.Primary {
		log.Info("  Instance: primary")
	} else {
		log.Info("  Instance: secondary")
	}
	log.Info("  Heartbeat timeout:", c.HeartbeatTimeout)
	if c.MinWorkerVersion != "" {
		log.Info("  Minimum worker version:", c.MinWorkerVersion)
	}
	c.Admission.Log()
	c.Cache.Log()
	c.Policy.Log()
	c.Maintenance.Log()
}

// Scheduler of test runs over a fleet of workers.
// The run cache only exists on the primary instance; secondaries
// serve reads from the store.
type fleetScheduler struct {
	config    Config
	store     rundb.Store
	cache     *rundb.RunCache
	registry  *WorkerRegistry
	admission *AdmissionController
	assigner  *taskAssigner
	ingestor  *resultIngestor
	now       func() time.Time
	observers observers

	numAssigned atomic.Int64
	numFinished atomic.Int64
}

// Create a new scheduler over the store.
func NewScheduler(store rundb.Store, config Config) *fleetScheduler {
	config.SetDefaults()

	s := &fleetScheduler{
		config:    config,
		store:     store,
		registry:  NewWorkerRegistry(config.HeartbeatTimeout),
		admission: NewAdmissionController(config.Admission.Capacity),
		now:       time.Now,
	}

	if config.Primary {
		s.cache = rundb.NewRunCache(store, config.Cache)
	}

	now := func() time.Time { return s.now() }

	s.assigner = &taskAssigner{
		cache:    s.cache,
		registry: s.registry,
		policy:   config.Policy,
		now:      now,
		finished: s.runFinished,
		record:   s.observers.record,
	}

	s.ingestor = &resultIngestor{
		cache:    s.cache,
		registry: s.registry,
		now:      now,
		finished: s.runFinished,
		record:   s.observers.record,
	}

	return s
}

// Requests a final flush of a finished run.
func (s *fleetScheduler) runFinished(ctx context.Context, runId string) {
	s.numFinished.Add(1)
	if err := s.cache.Flush(ctx, runId); err != nil {
		log.Warnf("Failed to flush finished run %s, will retry: %v", runId, err)
	}
}

func (s *fleetScheduler) releaseAll(runId string, tasks []*run.Task) {
	for _, t := range tasks {
		s.registry.Release(t.WorkerId, TaskRef{RunId: runId, TaskIndex: t.Index})
	}
}

func (s *fleetScheduler) RequestTask(ctx context.Context, req protocol.TaskRequest) (*protocol.TaskAssignment, error) {
	if s.cache == nil {
		return nil, utils.ErrWrongInstance
	}

	if s.config.MinWorkerVersion != "" && utils.VersionLessThan(req.Worker.Version, s.config.MinWorkerVersion) {
		return nil, fmt.Errorf("%w: worker version %q is older than %s", utils.ErrBadRequest, req.Worker.Version, s.config.MinWorkerVersion)
	}

	release, err := s.admission.Acquire()
	if err != nil {
		log.Debugf("Rejected task request from worker %s, server busy", req.Worker.WorkerId)
		return nil, err
	}
	defer release()

	assignment, err := s.assigner.Assign(ctx, req)
	if err != nil {
		return nil, err
	}

	s.numAssigned.Add(1)
	return assignment, nil
}

func (s *fleetScheduler) UpdateTask(ctx context.Context, req protocol.UpdateTaskRequest) (*protocol.UpdateTaskResponse, error) {
	return s.ingestor.Update(ctx, req)
}

func (s *fleetScheduler) Beat(ctx context.Context, req protocol.BeatRequest) error {
	return s.ingestor.Beat(ctx, req)
}

func (s *fleetScheduler) FailedTask(ctx context.Context, req protocol.FailedTaskRequest) error {
	return s.ingestor.Failed(ctx, req)
}

func (s *fleetScheduler) StopRun(ctx context.Context, req protocol.StopRunRequest) error {
	return s.ingestor.Stop(ctx, req)
}

func (s *fleetScheduler) RequestSpsa(ctx context.Context, req protocol.SpsaRequest) (*protocol.SpsaAssignment, error) {
	return s.ingestor.RequestSpsa(ctx, req)
}

func (s *fleetScheduler) GetRun(ctx context.Context, id string) (*run.Run, error) {
	if s.cache == nil {
		return s.store.LoadRun(ctx, id)
	}
	return s.cache.Get(ctx, id)
}

func (s *fleetScheduler) ActiveRuns(ctx context.Context) ([]*run.Run, error) {
	if s.cache == nil {
		return s.store.ActiveRuns(ctx)
	}

	runs := s.cache.ActiveRuns()
	sortRuns(runs)
	return runs, nil
}

func (s *fleetScheduler) ListRuns(ctx context.Context, status protocol.RunStatus) ([]*run.Run, error) {
	if status != "" && !status.Valid() {
		return nil, fmt.Errorf("%w: invalid run status %q", utils.ErrBadRequest, status)
	}

	runs, err := s.store.ListRuns(ctx, status)
	if err != nil || s.cache == nil {
		return runs, err
	}

	// The cached copy is authoritative while a run is active.
	cached := map[string]*run.Run{}
	for _, r := range s.cache.Runs() {
		cached[r.Id] = r
	}

	merged := make([]*run.Run, 0, len(runs))
	for _, r := range runs {
		if c, ok := cached[r.Id]; ok {
			r = c
		}
		if status == "" || r.Status == status {
			merged = append(merged, r)
		}
	}
	return merged, nil
}

func (s *fleetScheduler) GetElo(ctx context.Context, id string) (*protocol.EloResponse, error) {
	r, err := s.GetRun(ctx, id)
	if err != nil {
		return nil, err
	}

	response := &protocol.EloResponse{
		RunId: r.Id,
		Elo:   r.Elo(),
	}
	if r.Args.Sprt != nil {
		result := r.Args.Sprt.Result()
		response.Sprt = &result
	}
	return response, nil
}

func (s *fleetScheduler) CreateRun(ctx context.Context, args run.Args) (*run.Run, error) {
	if s.cache == nil {
		return nil, utils.ErrWrongInstance
	}

	now := s.now()
	r, err := run.New(args, now)
	if err != nil {
		return nil, err
	}

	if err := s.cache.Add(ctx, r); err != nil {
		return nil, err
	}

	s.observers.record(protocol.NewRunAction(protocol.ActionNewRun, r.Id, args.NewTag+" vs "+args.BaseTag, now))

	log.Infof("new - run - id: %s, new: %s, base: %s, games: %d", r.Id, args.NewTag, args.BaseTag, args.NumGames)
	return r, nil
}

func (s *fleetScheduler) setStatus(ctx context.Context, id string, status protocol.RunStatus) error {
	if s.cache == nil {
		return utils.ErrWrongInstance
	}

	now := s.now()
	err := s.cache.Mutate(ctx, id, func(r *run.Run) error {
		if r.Status == status {
			return errUnchanged
		}
		return r.SetStatus(status, now)
	})
	if errors.Is(err, errUnchanged) {
		return nil
	}
	if err != nil {
		return err
	}

	log.Infof("upd - run - id: %s, status: %s", id, status)

	kind := protocol.ActionResumeRun
	if status == protocol.RunStatusPaused {
		kind = protocol.ActionPauseRun
	}
	s.observers.record(protocol.NewRunAction(kind, id, "", now))

	return s.cache.Flush(ctx, id)
}

func (s *fleetScheduler) PauseRun(ctx context.Context, id string) error {
	return s.setStatus(ctx, id, protocol.RunStatusPaused)
}

func (s *fleetScheduler) ResumeRun(ctx context.Context, id string) error {
	return s.setStatus(ctx, id, protocol.RunStatusAccepting)
}

func (s *fleetScheduler) FinishRun(ctx context.Context, id, reason string) error {
	if s.cache == nil {
		return utils.ErrWrongInstance
	}

	now := s.now()
	var released []*run.Task
	err := s.cache.Mutate(ctx, id, func(r *run.Run) error {
		if r.IsFinished() {
			return errUnchanged
		}
		released = r.Finish(reason, now)
		return nil
	})
	if errors.Is(err, errUnchanged) {
		return nil
	}
	if err != nil {
		return err
	}

	s.releaseAll(id, released)
	log.Infof("end - run - id: %s, reason: %s", id, reason)
	s.observers.record(protocol.NewRunAction(protocol.ActionFinishRun, id, reason, now))
	s.runFinished(ctx, id)
	return nil
}

func (s *fleetScheduler) Workers() []protocol.WorkerStatus {
	return s.registry.Workers()
}

func (s *fleetScheduler) AddObserver(receiver SchedulerObserver) {
	s.observers.add(receiver)
}

func (s *fleetScheduler) Run(ctx context.Context) {
	if s.cache == nil {
		log.Info("Secondary instance, maintenance disabled")
		<-ctx.Done()
		return
	}

	count, err := s.cache.LoadActive(ctx)
	if err != nil {
		log.Error("Failed to load active runs:", err)
	} else {
		log.Infof("Loaded %d active runs", count)
	}

	maintenance := s.startMaintenance(ctx)
	<-ctx.Done()
	<-maintenance.Stop().Done()

	// Final flush with a fresh context, the run context is already cancelled.
	flushCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := s.cache.FlushAll(flushCtx); err != nil {
		log.Error("Failed to flush runs on shutdown:", err)
	}
}

func (s *fleetScheduler) Statistics() *SchedulerStatistics {
	stats := &SchedulerStatistics{
		Primary:       s.cache != nil,
		Workers:       int64(s.registry.Len()),
		AssignedTasks: s.numAssigned.Load(),
		FinishedRuns:  s.numFinished.Load(),
		Admission:     s.admission.Statistics(),
		Reports:       s.ingestor.Statistics(),
		Cache:         s.cache.Statistics(),
	}

	for _, r := range s.cache.ActiveRuns() {
		stats.ActiveRuns++
		for _, t := range r.Tasks {
			if t.Active {
				stats.ActiveTasks++
				stats.ActiveCores += int64(t.Concurrency)
			}
		}
	}
	return stats
}

func sortRuns(runs []*run.Run) {
	queue := utils.NewPriorityQueue(runPriorityFunc, runs...)
	copy(runs, queue.Drain())
}
