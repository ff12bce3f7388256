package master

import "errors"

// Sentinel error kinds matching §7's RPC error taxonomy. pkg/rpc maps
// these onto grpc/codes values at the transport boundary.
var (
	ErrInvalidArgument    = errors.New("invalid argument")
	ErrNotFound           = errors.New("not found")
	ErrFailedPrecondition = errors.New("failed precondition")
	ErrResourceExhausted  = errors.New("resource exhausted")
	ErrUnavailable        = errors.New("cluster interface unavailable")
)
