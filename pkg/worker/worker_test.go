package worker

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/srand/fleet/pkg/log"
	"github.com/srand/fleet/pkg/protocol"
	"github.com/srand/fleet/pkg/run"
	"github.com/srand/fleet/pkg/rundb"
	"github.com/srand/fleet/pkg/scheduler"
	"github.com/srand/fleet/pkg/stats"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/test/bufconn"
)

type failingPlayer struct {
	err error
}

func (p failingPlayer) PlayPairs(context.Context, protocol.TaskArgs, *protocol.SpsaAssignment, int) (protocol.Results, error) {
	return protocol.Results{}, p.err
}

type WorkerTestSuite struct {
	suite.Suite
	ctx    context.Context
	cancel func()
	sched  scheduler.Scheduler
	config *WorkerConfig
	player *randomPlayer
}

func (s *WorkerTestSuite) SetupTest() {
	log.SetLevel(log.TraceLevel)

	store, err := rundb.NewMemoryStore()
	s.Require().NoError(err)

	s.ctx, s.cancel = context.WithTimeout(context.Background(), 30*time.Second)
	s.sched = scheduler.NewScheduler(store, scheduler.Config{Primary: true})
	s.config = &WorkerConfig{
		SchedulerGrpcUri: "tcp://localhost",
		WorkerId:         "w1",
		Concurrency:      4,
		BeatInterval:     10 * time.Millisecond,
		RetryInterval:    time.Millisecond,
	}
	s.config.SetDefaults()
	s.Require().NoError(s.config.Validate())

	s.player = NewRandomPlayer(s.config.Concurrency, 20, 0.4)
}

func (s *WorkerTestSuite) TearDownTest() {
	s.player.Close()
	s.cancel()
}

func (s *WorkerTestSuite) createRun(args run.Args) *run.Run {
	r, err := s.sched.CreateRun(s.ctx, args)
	s.Require().NoError(err)
	s.config.RunId = r.Id
	return r
}

func testArgs(numGames int) run.Args {
	return run.Args{
		NewTag:     "new",
		BaseTag:    "base",
		TC:         "10+0.1",
		Threads:    1,
		NumGames:   numGames,
		Throughput: 100,
	}
}

func (s *WorkerTestSuite) TestPlaysRunToCompletion() {
	r := s.createRun(testArgs(200))

	w := NewWorker(s.sched, s.player, s.config)
	s.Require().NoError(w.Run(s.ctx))

	doc, err := s.sched.GetRun(s.ctx, r.Id)
	s.Require().NoError(err)
	s.True(doc.IsFinished())
	s.Equal(200, doc.Results.Games())
	s.Require().NoError(doc.Results.Validate())

	sum := 0
	for _, t := range doc.Tasks {
		s.False(t.Active)
		sum += t.Stats.Games()
	}
	s.Equal(200, sum)

	stats := w.Statistics()
	s.EqualValues(200, stats.Games)
	s.EqualValues(len(doc.Tasks), stats.Tasks)
}

func (s *WorkerTestSuite) TestSprtRun() {
	args := testArgs(100000)
	args.Sprt = &run.SprtState{Elo0: 0, Elo1: 5, Alpha: 0.05, Beta: 0.05, EloModel: stats.EloModelNormalized, Kind: stats.KindPentanomial}
	r := s.createRun(args)

	player := NewRandomPlayer(4, 400, 0.2)
	defer player.Close()

	w := NewWorker(s.sched, player, s.config)
	s.Require().NoError(w.Run(s.ctx))

	doc, err := s.sched.GetRun(s.ctx, r.Id)
	s.Require().NoError(err)
	s.True(doc.IsFinished())
	s.Equal(stats.VerdictAcceptH1, doc.Args.Sprt.Verdict())
	s.Less(doc.Results.Games(), 100000)
}

func (s *WorkerTestSuite) TestSpsaRun() {
	args := testArgs(200)
	args.Spsa = &stats.Spsa{
		SfLr:   0.1,
		SfBeta: 0.9,
		Params: []stats.SpsaParam{{Name: "A", Start: 50, Min: 0, Max: 100, C: 5, Theta: 50, Z: 50}},
	}
	r := s.createRun(args)

	w := NewWorker(s.sched, s.player, s.config)
	s.Require().NoError(w.Run(s.ctx))

	doc, err := s.sched.GetRun(s.ctx, r.Id)
	s.Require().NoError(err)
	s.Equal(100, doc.Args.Spsa.Iter)
}

func (s *WorkerTestSuite) TestBrokenRunIsStopped() {
	r := s.createRun(testArgs(200))

	w := NewWorker(s.sched, failingPlayer{err: ErrBrokenRun}, s.config)
	s.Require().NoError(w.Run(s.ctx))

	doc, err := s.sched.GetRun(s.ctx, r.Id)
	s.Require().NoError(err)
	s.True(doc.IsFinished())
	s.Contains(doc.FailureReason, ErrBrokenRun.Error())
}

func (s *WorkerTestSuite) TestFailedTask() {
	r := s.createRun(testArgs(200))
	s.config.MaxTasks = 1

	w := NewWorker(s.sched, failingPlayer{err: errors.New("engine crashed")}, s.config)
	s.Require().NoError(w.Run(s.ctx))

	doc, err := s.sched.GetRun(s.ctx, r.Id)
	s.Require().NoError(err)
	s.False(doc.IsFinished())
	s.Require().Len(doc.Tasks, 1)
	s.False(doc.Tasks[0].Active)
	s.Equal("engine crashed", doc.Tasks[0].FailureReason)
}

func (s *WorkerTestSuite) TestOverGrpc() {
	r := s.createRun(testArgs(200))

	listener := bufconn.Listen(1 << 20)
	server := grpc.NewServer()
	scheduler.RegisterWorkerService(server, s.sched)
	go server.Serve(listener)
	defer server.Stop()

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return listener.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	s.Require().NoError(err)
	defer conn.Close()

	w := NewWorker(NewClient(conn), s.player, s.config)
	s.Require().NoError(w.Run(s.ctx))

	doc, err := s.sched.GetRun(s.ctx, r.Id)
	s.Require().NoError(err)
	s.True(doc.IsFinished())
	s.Equal(200, doc.Results.Games())
}

func (s *WorkerTestSuite) TestStopsOnCancel() {
	s.createRun(testArgs(1000000))
	s.config.RunId = ""

	ctx, cancel := context.WithTimeout(s.ctx, 50*time.Millisecond)
	defer cancel()

	w := NewWorker(s.sched, s.player, s.config)
	s.NoError(w.Run(ctx))
}

func TestWorker(t *testing.T) {
	suite.Run(t, new(WorkerTestSuite))
}

func TestRandomPlayerScores(t *testing.T) {
	player := NewRandomPlayer(2, 0, 0.5)
	defer player.Close()

	results, err := player.PlayPairs(context.Background(), protocol.TaskArgs{TC: "10+0.1"}, nil, 500)
	require.NoError(t, err)
	assert.Equal(t, 1000, results.Games())
	require.NoError(t, results.Validate())

	pairs := 0
	for _, n := range results.Pentanomial {
		pairs += n
	}
	assert.Equal(t, 500, pairs)

	_, err = player.PlayPairs(context.Background(), protocol.TaskArgs{TC: "none"}, nil, 1)
	assert.ErrorIs(t, err, ErrBrokenRun)
}

func TestWorkerConfig(t *testing.T) {
	c := WorkerConfig{SchedulerGrpcUri: "tcp://localhost"}
	c.SetDefaults()
	assert.NotEmpty(t, c.WorkerId)
	assert.Positive(t, c.Concurrency)
	assert.NoError(t, c.Validate())

	c.DrawRatio = 1
	assert.Error(t, c.Validate())
}
