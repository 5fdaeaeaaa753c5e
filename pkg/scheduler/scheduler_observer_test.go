package scheduler

import (
	"sync"

	"github.com/srand/fleet/pkg/protocol"
)

type recordingObserver struct {
	sync.Mutex
	actions []protocol.Action
}

func (o *recordingObserver) ActionRecorded(action protocol.Action) {
	o.Lock()
	defer o.Unlock()
	o.actions = append(o.actions, action)
}

func (o *recordingObserver) kinds() []protocol.ActionKind {
	o.Lock()
	defer o.Unlock()

	kinds := []protocol.ActionKind{}
	for _, a := range o.actions {
		kinds = append(kinds, a.Action)
	}
	return kinds
}

func (s *SchedulerTestSuite) TestObserverRecordsOperatorActions() {
	observer := &recordingObserver{}
	s.sched.AddObserver(observer)

	r := s.createRun(newTestArgs(10000))
	s.Require().NoError(s.sched.PauseRun(s.ctx, r.Id))
	s.Require().NoError(s.sched.PauseRun(s.ctx, r.Id))
	s.Require().NoError(s.sched.ResumeRun(s.ctx, r.Id))

	a, err := s.request("w1", r.Id)
	s.Require().NoError(err)
	s.Require().NoError(s.sched.FailedTask(s.ctx, protocol.FailedTaskRequest{WorkerId: "w1", RunId: r.Id, TaskIndex: a.TaskIndex, Message: "engine crashed"}))
	s.Require().NoError(s.sched.FinishRun(s.ctx, r.Id, "aborted"))

	s.Equal([]protocol.ActionKind{
		protocol.ActionNewRun,
		protocol.ActionPauseRun,
		protocol.ActionResumeRun,
		protocol.ActionFailedTask,
		protocol.ActionFinishRun,
	}, observer.kinds())

	failed := observer.actions[3]
	s.Equal(r.Id, failed.RunId)
	s.Equal("w1", failed.WorkerId)
	s.Require().NotNil(failed.Task)
	s.Equal(a.TaskIndex, *failed.Task)
	s.Equal("engine crashed", failed.Message)
	s.Equal("aborted", observer.actions[4].Message)
}

func (s *SchedulerTestSuite) TestObserverRecordsRunEnd() {
	observer := &recordingObserver{}
	s.sched.AddObserver(observer)

	r := s.createRun(newTestArgs(2000))
	a, err := s.request("w1", r.Id)
	s.Require().NoError(err)
	_, err = s.report(a, "w1", 1, protocol.Results{Wins: 500, Losses: 500})
	s.Require().NoError(err)
	b, err := s.request("w1", r.Id)
	s.Require().NoError(err)
	_, err = s.report(b, "w1", 1, protocol.Results{Draws: 1000})
	s.Require().NoError(err)

	s.Equal([]protocol.ActionKind{protocol.ActionNewRun, protocol.ActionFinishRun}, observer.kinds())
	s.Equal("game budget played", observer.actions[1].Message)
}

func (s *SchedulerTestSuite) TestObserverRecordsExpiry() {
	observer := &recordingObserver{}
	s.sched.AddObserver(observer)

	r := s.createRun(newTestArgs(10000))
	_, err := s.request("w1", r.Id)
	s.Require().NoError(err)

	s.clock.Advance(2 * s.sched.config.HeartbeatTimeout)
	s.Require().NoError(s.sched.ExpireHeartbeats(s.ctx))

	kinds := observer.kinds()
	s.Require().Len(kinds, 2)
	s.Equal(protocol.ActionExpireTask, kinds[1])
	s.Equal("w1", observer.actions[1].WorkerId)
}

func (s *SchedulerTestSuite) TestObserverRecordsSupersededTask() {
	first := s.createRun(newTestArgs(10000))
	second := s.createRun(newTestArgs(10000))

	a, err := s.request("w1", first.Id)
	s.Require().NoError(err)

	observer := &recordingObserver{}
	s.sched.AddObserver(observer)

	_, err = s.request("w1", second.Id)
	s.Require().NoError(err)

	s.Require().Equal([]protocol.ActionKind{protocol.ActionExpireTask}, observer.kinds())
	expired := observer.actions[0]
	s.Equal(first.Id, expired.RunId)
	s.Equal("w1", expired.WorkerId)
	s.Require().NotNil(expired.Task)
	s.Equal(a.TaskIndex, *expired.Task)
}
