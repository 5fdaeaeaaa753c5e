package utils

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func TestGrpcErrorRoundTrip(t *testing.T) {
	err := fmt.Errorf("%w: run abc", ErrRunFinished)

	grpcErr := GrpcError(err)
	st, ok := status.FromError(grpcErr)
	assert.True(t, ok)
	assert.Equal(t, codes.FailedPrecondition, st.Code())

	back := FromGrpcError(grpcErr)
	assert.ErrorIs(t, back, ErrRunFinished)
	assert.Equal(t, err.Error(), back.Error())

	assert.Nil(t, GrpcError(nil))
	assert.Equal(t, codes.Internal, status.Code(GrpcError(errors.New("boom"))))
	assert.Same(t, grpcErr, GrpcError(grpcErr))
}

func TestHttpStatus(t *testing.T) {
	assert.Equal(t, http.StatusOK, HttpStatus(nil))
	assert.Equal(t, http.StatusMisdirectedRequest, HttpStatus(ErrWrongInstance))
	assert.Equal(t, http.StatusServiceUnavailable, HttpStatus(fmt.Errorf("%w: full", ErrBusy)))
	assert.Equal(t, http.StatusInternalServerError, HttpStatus(errors.New("boom")))

	for _, m := range kindMappings {
		assert.GreaterOrEqual(t, HttpStatus(m.err), 400, "%v is an error status", m.err)
	}
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, IsRetryable(ErrBusy))
	assert.True(t, IsRetryable(fmt.Errorf("%w: x", ErrRunPaused)))
	assert.False(t, IsRetryable(ErrRunFinished))
	assert.False(t, IsRetryable(ErrWrongInstance))
}
