package rundb

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/srand/fleet/pkg/log"
	"github.com/srand/fleet/pkg/run"
	"github.com/srand/fleet/pkg/utils"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

type CacheConfig struct {
	// Number of unflushed mutations after which a run whose flushes
	// are failing is halted.
	MaxDirtyMutations int `mapstructure:"max_dirty_mutations"`
	// Number of runs flushed in parallel.
	FlushConcurrency int `mapstructure:"flush_concurrency"`
}

func (c *CacheConfig) SetDefaults() {
	if c.MaxDirtyMutations == 0 {
		c.MaxDirtyMutations = 10000
	}
	if c.FlushConcurrency == 0 {
		c.FlushConcurrency = 4
	}
}

func (c *CacheConfig) Validate() error {
	if c.MaxDirtyMutations < 1 {
		return fmt.Errorf("cache.max_dirty_mutations must be positive")
	}
	if c.FlushConcurrency < 1 {
		return fmt.Errorf("cache.flush_concurrency must be positive")
	}
	return nil
}

func (c *CacheConfig) Log() {
	log.Info("  Cache:")
	log.Info("    Max dirty mutations:", c.MaxDirtyMutations)
	log.Info("    Flush concurrency:", c.FlushConcurrency)
}

type CacheStats struct {
	Entries       int64 `json:"entries"`
	Dirty         int64 `json:"dirty"`
	Halted        int64 `json:"halted"`
	Loads         int64 `json:"loads"`
	Mutations     int64 `json:"mutations"`
	Flushes       int64 `json:"flushes"`
	FlushFailures int64 `json:"flush_failures"`
}

// A change applied to a run document without an immediate write.
type Delta func(r *run.Run)

type cacheEntry struct {
	// Serializes mutations of the run.
	mu sync.Mutex
	// Serializes flushes of the run.
	flushMu sync.Mutex

	// Published document. Never modified once published.
	run *run.Run
	// Incremented on each published change.
	version uint64
	// Version last written to the store.
	flushed   uint64
	lastFlush time.Time
	failures  int
	halted    bool
	evicted   bool

	pendingMu sync.Mutex
	pending   []Delta
}

func (e *cacheEntry) dirty() bool {
	return e.version != e.flushed
}

func (e *cacheEntry) hasPending() bool {
	e.pendingMu.Lock()
	defer e.pendingMu.Unlock()
	return len(e.pending) > 0
}

// Folds buffered deltas into the document. Caller must hold mu.
func (e *cacheEntry) applyPending() {
	e.pendingMu.Lock()
	pending := e.pending
	e.pending = nil
	e.pendingMu.Unlock()

	if len(pending) == 0 {
		return
	}

	clone := e.run.Clone()
	for _, delta := range pending {
		delta(clone)
	}
	e.run = clone
	e.version++
}

// RunCache holds the authoritative copy of active runs on the primary
// instance. Each run has its own lock; operations on unrelated runs
// never contend. Documents are copy-on-write: a mutation works on a
// clone which is published only when the mutation succeeds.
//
// A nil *RunCache is valid. All writes to it fail with ErrWrongInstance,
// which is how secondary instances reject the write path.
type RunCache struct {
	mu      sync.Mutex
	config  CacheConfig
	store   Store
	entries map[string]*cacheEntry
	loads   singleflight.Group

	numLoads         atomic.Int64
	numMutations     atomic.Int64
	numFlushes       atomic.Int64
	numFlushFailures atomic.Int64
}

func NewRunCache(store Store, config CacheConfig) *RunCache {
	config.SetDefaults()

	return &RunCache{
		config:  config,
		store:   store,
		entries: map[string]*cacheEntry{},
	}
}

func (c *RunCache) cached(id string) *cacheEntry {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.entries[id]
}

// Returns the entry of the run, loading it from the store if needed.
// Concurrent loads of the same run share one store read.
func (c *RunCache) lookup(ctx context.Context, id string) (*cacheEntry, error) {
	if e := c.cached(id); e != nil {
		return e, nil
	}

	value, err, _ := c.loads.Do(id, func() (any, error) {
		if e := c.cached(id); e != nil {
			return e, nil
		}

		r, err := c.store.LoadRun(ctx, id)
		if err != nil {
			return nil, err
		}

		c.numLoads.Add(1)
		log.Debugf("load - run - id: %s", id)

		c.mu.Lock()
		defer c.mu.Unlock()

		if e := c.entries[id]; e != nil {
			return e, nil
		}

		e := &cacheEntry{run: r}
		c.entries[id] = e
		return e, nil
	})
	if err != nil {
		return nil, err
	}

	return value.(*cacheEntry), nil
}

// Locks the entry of the run. Retries if the entry was evicted while waiting.
func (c *RunCache) lock(ctx context.Context, id string) (*cacheEntry, error) {
	for {
		e, err := c.lookup(ctx, id)
		if err != nil {
			return nil, err
		}

		e.mu.Lock()
		if !e.evicted {
			return e, nil
		}
		e.mu.Unlock()
	}
}

// Get returns the current document of the run.
// The document is shared and must not be modified.
func (c *RunCache) Get(ctx context.Context, id string) (*run.Run, error) {
	if c == nil {
		return nil, utils.ErrWrongInstance
	}

	e, err := c.lock(ctx, id)
	if err != nil {
		return nil, err
	}
	defer e.mu.Unlock()

	e.applyPending()
	return e.run, nil
}

// Mutate runs fn on a copy of the run while holding the run lock.
// The copy replaces the document only if fn returns nil. Writes to a
// halted run fail with ErrRunHalted. A run halts when it has at least
// MaxDirtyMutations unflushed changes and its last flush failed.
func (c *RunCache) Mutate(ctx context.Context, id string, fn func(r *run.Run) error) error {
	if c == nil {
		return utils.ErrWrongInstance
	}

	e, err := c.lock(ctx, id)
	if err != nil {
		return err
	}
	defer e.mu.Unlock()

	if e.halted {
		return fmt.Errorf("%w: %s", utils.ErrRunHalted, id)
	}

	e.applyPending()

	// Dirty growth alone is only the time between flushes; the run halts
	// once its changes pile up because the store keeps refusing them.
	if dirty := e.version - e.flushed; e.failures > 0 && dirty >= uint64(c.config.MaxDirtyMutations) {
		e.halted = true
		log.Alertf("halt - run - id: %s, unflushed mutations: %d, flush failures: %d", id, dirty, e.failures)
		return fmt.Errorf("%w: %s", utils.ErrRunHalted, id)
	}

	clone := e.run.Clone()
	if err := fn(clone); err != nil {
		return err
	}

	e.run = clone
	e.version++
	c.numMutations.Add(1)
	return nil
}

// Buffer queues a change to a cached run. The change is folded into
// the document under the run lock by the next Get, Mutate or Flush.
func (c *RunCache) Buffer(id string, delta Delta) error {
	if c == nil {
		return utils.ErrWrongInstance
	}

	e := c.cached(id)
	if e == nil {
		return fmt.Errorf("%w: run %s is not cached", utils.ErrNotFound, id)
	}

	e.pendingMu.Lock()
	defer e.pendingMu.Unlock()
	e.pending = append(e.pending, delta)
	return nil
}

// Flush writes the run to the store if it has unflushed changes.
// Flushing a clean or uncached run does nothing. A failed flush leaves
// the run dirty, to be retried.
func (c *RunCache) Flush(ctx context.Context, id string) error {
	if c == nil {
		return utils.ErrWrongInstance
	}

	e := c.cached(id)
	if e == nil {
		return nil
	}

	e.flushMu.Lock()
	defer e.flushMu.Unlock()

	e.mu.Lock()
	e.applyPending()
	doc, version, dirty := e.run, e.version, e.dirty()
	e.mu.Unlock()

	if !dirty {
		return nil
	}

	err := c.store.SaveRun(ctx, doc)

	e.mu.Lock()
	defer e.mu.Unlock()

	if err != nil {
		e.failures++
		c.numFlushFailures.Add(1)
		log.Warnf("flush - run - id: %s, failures: %d, error: %v", id, e.failures, err)
		return fmt.Errorf("%w: %s: %v", utils.ErrFlushFailure, id, err)
	}

	c.numFlushes.Add(1)
	e.flushed = version
	e.failures = 0
	e.lastFlush = time.Now()
	if e.halted {
		e.halted = false
		log.Infof("resume - run - id: %s", id)
	}
	log.Tracef("flush - run - id: %s, version: %d", id, version)
	return nil
}

// FlushAll flushes all dirty runs in parallel. All runs are attempted;
// the first error is returned.
func (c *RunCache) FlushAll(ctx context.Context) error {
	if c == nil {
		return utils.ErrWrongInstance
	}

	var g errgroup.Group
	g.SetLimit(c.config.FlushConcurrency)

	for _, id := range c.ids() {
		g.Go(func() error {
			return c.Flush(ctx, id)
		})
	}

	return g.Wait()
}

func (c *RunCache) ids() []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	ids := make([]string, 0, len(c.entries))
	for id := range c.entries {
		ids = append(ids, id)
	}
	return ids
}

// Add stores a new run and caches it.
func (c *RunCache) Add(ctx context.Context, r *run.Run) error {
	if c == nil {
		return utils.ErrWrongInstance
	}

	if c.cached(r.Id) != nil {
		return fmt.Errorf("%w: run %s already exists", utils.ErrBadRequest, r.Id)
	}

	if err := c.store.SaveRun(ctx, r); err != nil {
		return fmt.Errorf("%w: %s: %v", utils.ErrFlushFailure, r.Id, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[r.Id] = &cacheEntry{run: r, lastFlush: time.Now()}
	return nil
}

// LoadActive caches all unfinished runs of the store.
func (c *RunCache) LoadActive(ctx context.Context) (int, error) {
	if c == nil {
		return 0, utils.ErrWrongInstance
	}

	runs, err := c.store.ActiveRuns(ctx)
	if err != nil {
		return 0, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	count := 0
	for _, r := range runs {
		if _, ok := c.entries[r.Id]; ok {
			continue
		}
		c.entries[r.Id] = &cacheEntry{run: r}
		count++
	}
	c.numLoads.Add(int64(count))
	return count, nil
}

// Runs returns the current documents of all cached runs.
// The documents are shared and must not be modified.
func (c *RunCache) Runs() []*run.Run {
	if c == nil {
		return nil
	}

	c.mu.Lock()
	entries := make([]*cacheEntry, 0, len(c.entries))
	for _, e := range c.entries {
		entries = append(entries, e)
	}
	c.mu.Unlock()

	runs := make([]*run.Run, 0, len(entries))
	for _, e := range entries {
		e.mu.Lock()
		if !e.evicted {
			e.applyPending()
			runs = append(runs, e.run)
		}
		e.mu.Unlock()
	}
	return runs
}

// ActiveRuns returns the current documents of all cached, unfinished runs.
func (c *RunCache) ActiveRuns() []*run.Run {
	runs := c.Runs()
	active := runs[:0]
	for _, r := range runs {
		if !r.IsFinished() {
			active = append(active, r)
		}
	}
	return active
}

// Evict removes a finished and fully flushed run from the cache.
// Returns false if the run must stay cached.
func (c *RunCache) Evict(id string) bool {
	if c == nil {
		return false
	}

	e := c.cached(id)
	if e == nil {
		return false
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.run.IsFinished() || e.dirty() || e.hasPending() {
		return false
	}

	e.evicted = true

	c.mu.Lock()
	delete(c.entries, id)
	c.mu.Unlock()

	log.Debugf("evict - run - id: %s", id)
	return true
}

// Returns true if the run is cached and has unflushed changes.
func (c *RunCache) IsDirty(id string) bool {
	if c == nil {
		return false
	}

	e := c.cached(id)
	if e == nil {
		return false
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	return e.dirty() || e.hasPending()
}

func (c *RunCache) Statistics() CacheStats {
	if c == nil {
		return CacheStats{}
	}

	stats := CacheStats{
		Loads:         c.numLoads.Load(),
		Mutations:     c.numMutations.Load(),
		Flushes:       c.numFlushes.Load(),
		FlushFailures: c.numFlushFailures.Load(),
	}

	c.mu.Lock()
	entries := make([]*cacheEntry, 0, len(c.entries))
	for _, e := range c.entries {
		entries = append(entries, e)
	}
	c.mu.Unlock()

	stats.Entries = int64(len(entries))
	for _, e := range entries {
		e.mu.Lock()
		if e.dirty() || e.hasPending() {
			stats.Dirty++
		}
		if e.halted {
			stats.Halted++
		}
		e.mu.Unlock()
	}
	return stats
}
