package rundb

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/srand/fleet/pkg/log"
	"github.com/srand/fleet/pkg/protocol"
	"github.com/srand/fleet/pkg/run"
	"github.com/srand/fleet/pkg/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

type MockStore struct {
	mock.Mock
}

func (m *MockStore) LoadRun(ctx context.Context, id string) (*run.Run, error) {
	args := m.Called(id)
	r, _ := args.Get(0).(*run.Run)
	return r, args.Error(1)
}

func (m *MockStore) SaveRun(ctx context.Context, r *run.Run) error {
	return m.Called(r.Id).Error(0)
}

func (m *MockStore) ActiveRuns(ctx context.Context) ([]*run.Run, error) {
	args := m.Called()
	runs, _ := args.Get(0).([]*run.Run)
	return runs, args.Error(1)
}

func (m *MockStore) ListRuns(ctx context.Context, status protocol.RunStatus) ([]*run.Run, error) {
	args := m.Called(status)
	runs, _ := args.Get(0).([]*run.Run)
	return runs, args.Error(1)
}

func (m *MockStore) Close() error {
	return m.Called().Error(0)
}

type RunCacheTestSuite struct {
	suite.Suite
	store *MockStore
	cache *RunCache
	run   *run.Run
}

func (s *RunCacheTestSuite) SetupTest() {
	log.SetLevel(log.TraceLevel)

	s.run = newTestRun(s.T(), epoch)
	s.store = &MockStore{}
	s.store.On("LoadRun", s.run.Id).Return(s.run, nil)
	s.store.On("LoadRun", mock.Anything).Return(nil, utils.ErrNotFound)
	s.cache = NewRunCache(s.store, CacheConfig{MaxDirtyMutations: 3, FlushConcurrency: 2})
}

func (s *RunCacheTestSuite) addWin(ctx context.Context) error {
	return s.cache.Mutate(ctx, s.run.Id, func(r *run.Run) error {
		r.Results.Wins++
		return nil
	})
}

func (s *RunCacheTestSuite) TestGetLoadsOnce() {
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r, err := s.cache.Get(ctx, s.run.Id)
			s.NoError(err)
			s.Equal(s.run.Id, r.Id)
		}()
	}
	wg.Wait()

	s.store.AssertNumberOfCalls(s.T(), "LoadRun", 1)

	_, err := s.cache.Get(ctx, "missing")
	s.ErrorIs(err, utils.ErrNotFound)
}

func (s *RunCacheTestSuite) TestMutateCopyOnWrite() {
	ctx := context.Background()

	before, err := s.cache.Get(ctx, s.run.Id)
	s.Require().NoError(err)

	failure := errors.New("rejected")
	err = s.cache.Mutate(ctx, s.run.Id, func(r *run.Run) error {
		r.Results.Wins = 100
		r.Status = protocol.RunStatusFinished
		return failure
	})
	s.ErrorIs(err, failure)

	after, err := s.cache.Get(ctx, s.run.Id)
	s.Require().NoError(err)
	s.Same(before, after)
	s.Equal(0, after.Results.Wins)
	s.False(s.cache.IsDirty(s.run.Id))

	s.Require().NoError(s.addWin(ctx))
	after, err = s.cache.Get(ctx, s.run.Id)
	s.Require().NoError(err)
	s.Equal(1, after.Results.Wins)
	s.Equal(0, before.Results.Wins)
	s.True(s.cache.IsDirty(s.run.Id))
}

func (s *RunCacheTestSuite) TestFlushIsIdempotent() {
	ctx := context.Background()
	s.store.On("SaveRun", s.run.Id).Return(nil)

	s.Require().NoError(s.addWin(ctx))
	s.NoError(s.cache.Flush(ctx, s.run.Id))
	s.NoError(s.cache.Flush(ctx, s.run.Id))
	s.NoError(s.cache.FlushAll(ctx))

	s.store.AssertNumberOfCalls(s.T(), "SaveRun", 1)
	s.False(s.cache.IsDirty(s.run.Id))

	// Flushing an uncached run does nothing.
	s.NoError(s.cache.Flush(ctx, "missing"))
}

func (s *RunCacheTestSuite) TestFlushFailureIsRetried() {
	ctx := context.Background()
	s.store.On("SaveRun", s.run.Id).Return(errors.New("store down")).Once()
	s.store.On("SaveRun", s.run.Id).Return(nil)

	s.Require().NoError(s.addWin(ctx))

	err := s.cache.Flush(ctx, s.run.Id)
	s.ErrorIs(err, utils.ErrFlushFailure)
	s.True(s.cache.IsDirty(s.run.Id))

	r, err := s.cache.Get(ctx, s.run.Id)
	s.Require().NoError(err)
	s.Equal(1, r.Results.Wins)

	s.NoError(s.cache.FlushAll(ctx))
	s.False(s.cache.IsDirty(s.run.Id))

	stats := s.cache.Statistics()
	s.Equal(int64(1), stats.Flushes)
	s.Equal(int64(1), stats.FlushFailures)
}

func (s *RunCacheTestSuite) TestHaltOnDirtyGrowth() {
	ctx := context.Background()
	other := newTestRun(s.T(), epoch)
	s.store.On("SaveRun", s.run.Id).Return(errors.New("store down")).Times(3)
	s.store.On("SaveRun", mock.Anything).Return(nil)
	s.Require().NoError(s.cache.Add(ctx, other))

	for i := 0; i < 3; i++ {
		s.Require().NoError(s.addWin(ctx))
		s.Error(s.cache.Flush(ctx, s.run.Id))
	}

	s.ErrorIs(s.addWin(ctx), utils.ErrRunHalted)
	s.ErrorIs(s.addWin(ctx), utils.ErrRunHalted)
	s.Equal(int64(1), s.cache.Statistics().Halted)

	// Unrelated runs are not affected.
	s.NoError(s.cache.Mutate(ctx, other.Id, func(r *run.Run) error {
		r.Results.Losses++
		return nil
	}))

	// A successful flush lifts the halt.
	s.NoError(s.cache.Flush(ctx, s.run.Id))
	s.NoError(s.addWin(ctx))
	s.Equal(int64(0), s.cache.Statistics().Halted)

	r, err := s.cache.Get(ctx, s.run.Id)
	s.Require().NoError(err)
	s.Equal(4, r.Results.Wins)
}

func (s *RunCacheTestSuite) TestNoHaltWithoutFlushFailure() {
	ctx := context.Background()
	s.store.On("SaveRun", s.run.Id).Return(nil)

	for i := 0; i < 10; i++ {
		s.Require().NoError(s.addWin(ctx))
	}
	s.Equal(int64(0), s.cache.Statistics().Halted)

	s.NoError(s.cache.Flush(ctx, s.run.Id))
	s.False(s.cache.IsDirty(s.run.Id))
}

func (s *RunCacheTestSuite) TestBuffer() {
	ctx := context.Background()
	s.store.On("SaveRun", s.run.Id).Return(nil)

	s.ErrorIs(s.cache.Buffer(s.run.Id, func(r *run.Run) {}), utils.ErrNotFound)

	_, err := s.cache.Get(ctx, s.run.Id)
	s.Require().NoError(err)

	s.NoError(s.cache.Buffer(s.run.Id, func(r *run.Run) { r.Results.Draws++ }))
	s.NoError(s.cache.Buffer(s.run.Id, func(r *run.Run) { r.Results.Draws++ }))
	s.True(s.cache.IsDirty(s.run.Id))

	s.NoError(s.cache.Flush(ctx, s.run.Id))
	s.False(s.cache.IsDirty(s.run.Id))

	r, err := s.cache.Get(ctx, s.run.Id)
	s.Require().NoError(err)
	s.Equal(2, r.Results.Draws)
	s.store.AssertNumberOfCalls(s.T(), "SaveRun", 1)
}

func (s *RunCacheTestSuite) TestEvict() {
	ctx := context.Background()
	s.store.On("SaveRun", s.run.Id).Return(nil)

	_, err := s.cache.Get(ctx, s.run.Id)
	s.Require().NoError(err)
	s.False(s.cache.Evict(s.run.Id))

	s.Require().NoError(s.cache.Mutate(ctx, s.run.Id, func(r *run.Run) error {
		r.Finish("", epoch)
		return nil
	}))
	s.False(s.cache.Evict(s.run.Id))

	s.Require().NoError(s.cache.Flush(ctx, s.run.Id))
	s.True(s.cache.Evict(s.run.Id))
	s.Empty(s.cache.Runs())

	// Evicted runs are loaded again on demand.
	_, err = s.cache.Get(ctx, s.run.Id)
	s.NoError(err)
	s.store.AssertNumberOfCalls(s.T(), "LoadRun", 2)
}

func (s *RunCacheTestSuite) TestAddAndActive() {
	ctx := context.Background()
	fresh := newTestRun(s.T(), epoch)
	done := newTestRun(s.T(), epoch)
	done.Finish("", epoch)
	s.store.On("SaveRun", fresh.Id).Return(nil)
	s.store.On("SaveRun", done.Id).Return(nil)
	s.store.On("ActiveRuns").Return([]*run.Run{s.run}, nil)

	s.Require().NoError(s.cache.Add(ctx, fresh))
	s.ErrorIs(s.cache.Add(ctx, fresh), utils.ErrBadRequest)
	s.False(s.cache.IsDirty(fresh.Id))

	n, err := s.cache.LoadActive(ctx)
	s.Require().NoError(err)
	s.Equal(1, n)

	s.Require().NoError(s.cache.Add(ctx, done))

	s.Len(s.cache.Runs(), 3)
	s.Len(s.cache.ActiveRuns(), 2)
	s.Equal(int64(3), s.cache.Statistics().Entries)
}

func TestRunCache(t *testing.T) {
	suite.Run(t, new(RunCacheTestSuite))
}

func TestNilCacheRejectsWrites(t *testing.T) {
	var cache *RunCache
	ctx := context.Background()

	assert.ErrorIs(t, cache.Mutate(ctx, "id", func(r *run.Run) error { return nil }), utils.ErrWrongInstance)
	assert.ErrorIs(t, cache.Buffer("id", func(r *run.Run) {}), utils.ErrWrongInstance)
	assert.ErrorIs(t, cache.Flush(ctx, "id"), utils.ErrWrongInstance)
	assert.ErrorIs(t, cache.FlushAll(ctx), utils.ErrWrongInstance)
	assert.ErrorIs(t, cache.Add(ctx, &run.Run{}), utils.ErrWrongInstance)
	_, err := cache.Get(ctx, "id")
	assert.ErrorIs(t, err, utils.ErrWrongInstance)
	assert.Empty(t, cache.Runs())
	assert.False(t, cache.Evict("id"))
}

func TestConcurrentMutations(t *testing.T) {
	const (
		numRuns       = 8
		numGoroutines = 16
		numMutations  = 200
	)

	ctx := context.Background()
	store, err := NewMemoryStore()
	require.NoError(t, err)
	cache := NewRunCache(store, CacheConfig{MaxDirtyMutations: numGoroutines * numMutations * numRuns})

	ids := make([]string, numRuns)
	for i := range ids {
		r := newTestRun(t, epoch)
		require.NoError(t, cache.Add(ctx, r))
		ids[i] = r.Id
	}

	var wg sync.WaitGroup
	for g := 0; g < numGoroutines; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < numMutations; i++ {
				id := ids[(g+i)%numRuns]
				assert.NoError(t, cache.Mutate(ctx, id, func(r *run.Run) error {
					r.Results.Wins++
					return nil
				}))
				if i%50 == 0 {
					assert.NoError(t, cache.Flush(ctx, id))
				}
			}
		}()
	}
	wg.Wait()

	require.NoError(t, cache.FlushAll(ctx))

	total := 0
	for _, id := range ids {
		r, err := store.LoadRun(ctx, id)
		require.NoError(t, err)
		expected, err := cache.Get(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, expected.Results, r.Results)
		total += r.Results.Wins
	}
	assert.Equal(t, numGoroutines*numMutations, total)
}
