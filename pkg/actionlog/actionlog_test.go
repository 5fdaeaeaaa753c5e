package actionlog

import (
	"fmt"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/srand/fleet/pkg/protocol"
	"github.com/srand/fleet/pkg/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/suite"
)

// Mock config
type MockActionLogConfig struct {
	mock.Mock
}

func (c *MockActionLogConfig) MaxSize() int64 {
	a := c.Called()
	return int64(a.Int(0))
}

type ActionLogTestSuite struct {
	suite.Suite
	config MockActionLogConfig
	fs     utils.Fs
	log    *actionLog
}

func (s *ActionLogTestSuite) SetupTest() {
	s.config.On("MaxSize").Return(0x10000)
	s.fs = afero.NewMemMapFs()

	s.log = NewActionLog(&s.config, s.fs)
}

func (s *ActionLogTestSuite) appendActions(runId string, message string, count int) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < count; i++ {
		action := protocol.NewTaskAction(protocol.ActionFailedTask, runId, i, "w1", message, now)
		s.Require().NoError(s.log.Append(action))
	}
}

func (s *ActionLogTestSuite) TestWriteRead() {
	s.appendActions("run1", "crash", 100)

	reader, err := s.log.Read("run1")
	s.Require().NoError(err)
	defer reader.Close()

	count := 0
	for {
		action, err := reader.ReadAction()
		if err == io.EOF {
			break
		}
		s.Require().NoError(err)
		s.Equal("run1", action.RunId)
		s.Equal(protocol.ActionFailedTask, action.Action)
		s.Require().NotNil(action.Task)
		s.Equal(count, *action.Task)
		s.Equal("crash", action.Message)
		count++
	}
	s.Equal(100, count)
}

func (s *ActionLogTestSuite) TestReadUnknownRun() {
	_, err := s.log.Read("run1")
	s.ErrorIs(err, utils.ErrNotFound)

	_, err = s.log.Read("../run1")
	s.ErrorIs(err, utils.ErrBadRequest)

	s.ErrorIs(s.log.Append(protocol.Action{RunId: "a/b"}), utils.ErrBadRequest)
}

func (s *ActionLogTestSuite) TestEvict() {
	s.appendActions("run1", strings.Repeat("1", 1000), 40)
	s.appendActions("run2", strings.Repeat("2", 1000), 40)

	_, err := s.log.Read("run1")
	s.ErrorIs(err, utils.ErrNotFound)

	reader, err := s.log.Read("run2")
	s.Require().NoError(err)
	reader.Close()

	s.LessOrEqual(s.log.Size(), int64(0x10000))
}

func (s *ActionLogTestSuite) TestEvictOldestWritten() {
	s.appendActions("run1", strings.Repeat("1", 1000), 20)
	s.appendActions("run2", strings.Repeat("2", 1000), 20)
	// Writing to run1 again makes run2 the oldest history.
	s.appendActions("run1", strings.Repeat("1", 1000), 30)

	_, err := s.log.Read("run2")
	s.ErrorIs(err, utils.ErrNotFound)

	reader, err := s.log.Read("run1")
	s.Require().NoError(err)
	reader.Close()
}

func (s *ActionLogTestSuite) TestReload() {
	s.appendActions("run1", "a", 10)
	s.appendActions("run2", "b", 10)
	size := s.log.Size()

	reloaded := NewActionLog(&s.config, s.fs)
	s.Equal(size, reloaded.Size())

	for _, id := range []string{"run1", "run2"} {
		reader, err := reloaded.Read(id)
		s.Require().NoError(err)
		actions, err := ReadAll(reader)
		s.NoError(err)
		s.Len(actions, 10)
		reader.Close()
	}
}

func (s *ActionLogTestSuite) TestObserver() {
	now := time.Now()
	s.log.ActionRecorded(protocol.NewRunAction(protocol.ActionNewRun, "run1", "new vs base", now))
	s.log.ActionRecorded(protocol.NewRunAction(protocol.ActionFinishRun, "run1", "sprt accepted", now))
	// Dropped with a warning
	s.log.ActionRecorded(protocol.NewRunAction(protocol.ActionFinishRun, "", "", now))

	reader, err := s.log.Read("run1")
	s.Require().NoError(err)
	defer reader.Close()

	actions, err := ReadAll(reader)
	s.Require().NoError(err)
	s.Require().Len(actions, 2)
	s.Equal(protocol.ActionNewRun, actions[0].Action)
	s.Nil(actions[0].Task)
	s.Equal("sprt accepted", actions[1].Message)
}

func TestActionLog(t *testing.T) {
	suite.Run(t, &ActionLogTestSuite{})
}

func TestUnboundedActionLog(t *testing.T) {
	config := &MockActionLogConfig{}
	config.On("MaxSize").Return(0)

	l := NewActionLog(config, afero.NewMemMapFs())
	for i := 0; i < 50; i++ {
		runId := fmt.Sprintf("run%d", i)
		assert.NoError(t, l.Append(protocol.NewRunAction(protocol.ActionNewRun, runId, strings.Repeat("x", 1000), time.Now())))
	}

	for i := 0; i < 50; i++ {
		reader, err := l.Read(fmt.Sprintf("run%d", i))
		if assert.NoError(t, err) {
			reader.Close()
		}
	}
}
