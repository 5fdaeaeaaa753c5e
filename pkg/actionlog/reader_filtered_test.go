package actionlog

import (
	"io"
	"testing"

	"github.com/srand/fleet/pkg/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

type MockReader struct {
	mock.Mock
}

func (r *MockReader) ReadAction() (*protocol.Action, error) {
	args := r.Called()
	action := args.Get(0)
	err := args.Error(1)

	if action != nil {
		return action.(*protocol.Action), err
	}
	return nil, err
}

func (r *MockReader) Close() error {
	args := r.Called()
	return args.Error(0)
}

func TestFilter(t *testing.T) {
	failed := &protocol.Action{Action: protocol.ActionFailedTask, WorkerId: "w1"}
	expired := &protocol.Action{Action: protocol.ActionExpireTask, WorkerId: "w2"}
	reader := &MockReader{}
	reader.On("ReadAction").Return(expired, nil).Twice()
	reader.On("ReadAction").Return(failed, nil).Once()
	reader.On("ReadAction").Return(nil, io.EOF)
	reader.On("Close").Return(nil)

	filter := NewFilteredReader(reader)

	action, err := filter.ReadAction()
	assert.NoError(t, err)
	assert.Equal(t, expired, action)

	filter.AddFilter(ByKind(protocol.ActionFailedTask))
	filter.AddFilter(ByWorker("w1"))

	action, err = filter.ReadAction()
	assert.NoError(t, err)
	assert.Equal(t, failed, action)

	_, err = filter.ReadAction()
	assert.Equal(t, io.EOF, err)
	assert.NoError(t, filter.Close())
}
