package utils

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestGRPCOptions(t *testing.T) {
	o := GRPCOptions{}
	assert.Empty(t, o.ToServerOptions())
	assert.Empty(t, o.ToDialOptions())

	keepAlive := 30 * time.Second
	workers := uint32(4)
	o = GRPCOptions{
		KeepAliveTime:  &keepAlive,
		ServerWorkers:  &workers,
		MaxMessageSize: "16MiB",
	}
	assert.Len(t, o.ToServerOptions(), 4)
	assert.Len(t, o.ToDialOptions(), 2)
	assert.Equal(t, 16<<20, o.messageSize())

	o = GRPCOptions{MaxMessageSize: "lots"}
	assert.Equal(t, 0, o.messageSize())
	assert.Empty(t, o.ToServerOptions())
}
