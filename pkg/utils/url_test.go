package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseUrls(t *testing.T) {
	host, err := ParseHttpUrl("tcp://:8000")
	assert.NoError(t, err)
	assert.Equal(t, ":8000", host)

	host, err = ParseGrpcUrl("tcp://localhost")
	assert.NoError(t, err)
	assert.Equal(t, "localhost:9090", host)

	_, err = ParseHttpUrl("unix:///tmp/socket")
	assert.Error(t, err)
}

func TestHttpUrlPort(t *testing.T) {
	port, err := HttpUrlPort("tcp://0.0.0.0:6543")
	assert.NoError(t, err)
	assert.Equal(t, 6543, port)

	port, err = HttpUrlPort("tcp://example.com")
	assert.NoError(t, err)
	assert.Equal(t, 8080, port)

	_, err = HttpUrlPort("http://example.com:80")
	assert.Error(t, err)
}
