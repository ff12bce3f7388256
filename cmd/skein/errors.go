package main

import (
	"errors"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// cliError carries the exit code a failed command should produce,
// matching §6's "submit/status/kill" exit code contract.
type cliError struct {
	code int
	err  error
}

func (e *cliError) Error() string { return e.err.Error() }
func (e *cliError) Unwrap() error { return e.err }

func userError(err error) error        { return &cliError{code: exitUserError, err: err} }
func unreachableError(err error) error { return &cliError{code: exitUnreachable, err: err} }
func notFoundError(err error) error    { return &cliError{code: exitNotFound, err: err} }

// exitCodeFor maps any error returned by a cobra RunE to an exit code.
// Errors from a DaemonClient call carry a grpc status; everything else
// (local validation, file I/O) is a user error.
func exitCodeFor(err error) int {
	var ce *cliError
	if errors.As(err, &ce) {
		return ce.code
	}
	if st, ok := status.FromError(err); ok {
		switch st.Code() {
		case codes.NotFound:
			return exitNotFound
		case codes.Unavailable, codes.DeadlineExceeded, codes.Canceled:
			return exitUnreachable
		case codes.InvalidArgument, codes.FailedPrecondition:
			return exitUserError
		}
	}
	return exitUserError
}
