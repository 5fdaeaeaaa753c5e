package utils

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

var (
	ErrBadRequest       = fmt.Errorf("Bad request")
	ErrNotFound         = fmt.Errorf("Not found")
	ErrNoTask           = fmt.Errorf("No tasks available")
	ErrBusy             = fmt.Errorf("Server busy, retry later")
	ErrWrongInstance    = fmt.Errorf("Write rejected by non-primary instance")
	ErrRunFinished      = fmt.Errorf("Run is finished")
	ErrRunPaused        = fmt.Errorf("Run is paused")
	ErrRunHalted        = fmt.Errorf("Run is halted")
	ErrStaleAssignment  = fmt.Errorf("Task is no longer assigned")
	ErrDuplicateReport  = fmt.Errorf("Duplicate report")
	ErrInvalidWorker    = fmt.Errorf("Worker does not match task assignment")
	ErrFlushFailure     = fmt.Errorf("Failed to flush run")
	ErrSpsaNotAvailable = fmt.Errorf("No SPSA parameters available")
)

// Returns true if the caller may retry the same request against the same instance.
func IsRetryable(err error) bool {
	switch {
	case errors.Is(err, ErrBusy), errors.Is(err, ErrNoTask), errors.Is(err, ErrRunPaused), errors.Is(err, ErrFlushFailure):
		return true
	default:
		return false
	}
}

type kindMapping struct {
	err  error
	code codes.Code
	http int
}

var kindMappings = []kindMapping{
	{ErrBadRequest, codes.InvalidArgument, http.StatusBadRequest},
	{ErrNotFound, codes.NotFound, http.StatusNotFound},
	{ErrNoTask, codes.Unavailable, http.StatusServiceUnavailable},
	{ErrBusy, codes.ResourceExhausted, http.StatusServiceUnavailable},
	{ErrWrongInstance, codes.FailedPrecondition, http.StatusMisdirectedRequest},
	{ErrRunFinished, codes.FailedPrecondition, http.StatusGone},
	{ErrRunPaused, codes.Unavailable, http.StatusServiceUnavailable},
	{ErrRunHalted, codes.Aborted, http.StatusServiceUnavailable},
	{ErrStaleAssignment, codes.Aborted, http.StatusConflict},
	{ErrDuplicateReport, codes.AlreadyExists, http.StatusConflict},
	{ErrInvalidWorker, codes.PermissionDenied, http.StatusForbidden},
	{ErrFlushFailure, codes.Unavailable, http.StatusServiceUnavailable},
	{ErrSpsaNotAvailable, codes.FailedPrecondition, http.StatusConflict},
}

// Convert errors to errors with grpc status codes
func GrpcError(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}
	for _, m := range kindMappings {
		if errors.Is(err, m.err) {
			return status.Error(m.code, err.Error())
		}
	}
	return status.Error(codes.Internal, err.Error())
}

// Convert grpc status errors received by a client back into sentinel errors.
func FromGrpcError(err error) error {
	st, ok := status.FromError(err)
	if !ok || st.Code() == codes.OK {
		return err
	}
	msg := st.Message()
	for _, m := range kindMappings {
		prefix := m.err.Error()
		if msg == prefix || strings.HasPrefix(msg, prefix+":") {
			return fmt.Errorf("%w%s", m.err, strings.TrimPrefix(msg, prefix))
		}
	}
	return err
}

// Returns the HTTP status code matching the kind of error.
func HttpStatus(err error) int {
	if err == nil {
		return http.StatusOK
	}
	for _, m := range kindMappings {
		if errors.Is(err, m.err) {
			return m.http
		}
	}
	return http.StatusInternalServerError
}
