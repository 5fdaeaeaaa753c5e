package scheduler

import (
	"testing"

	"github.com/srand/fleet/pkg/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAdmissionRejectsOverCapacity(t *testing.T) {
	a := NewAdmissionController(3)

	var releases []func()
	for i := 0; i < 3; i++ {
		release, err := a.Acquire()
		require.NoError(t, err)
		releases = append(releases, release)
	}

	_, err := a.Acquire()
	assert.ErrorIs(t, err, utils.ErrBusy)
	assert.True(t, utils.IsRetryable(err))

	releases[0]()
	releases[0]()

	stats := a.Statistics()
	assert.EqualValues(t, 2, stats.InFlight)
	assert.EqualValues(t, 3, stats.Admitted)
	assert.EqualValues(t, 1, stats.Rejected)

	release, err := a.Acquire()
	require.NoError(t, err)
	release()

	held, err := a.Acquire()
	require.NoError(t, err)
	defer held()

	_, err = a.Acquire()
	assert.ErrorIs(t, err, utils.ErrBusy)
	assert.EqualValues(t, 3, a.Statistics().InFlight)
}

func TestAdmissionConfig(t *testing.T) {
	c := AdmissionConfig{}
	c.SetDefaults()
	assert.Equal(t, 5, c.Capacity)
	assert.NoError(t, c.Validate())

	c.Capacity = -1
	assert.Error(t, c.Validate())
}
