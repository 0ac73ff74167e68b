package ledger

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrAllEndpointsUnavailable = errors.New("all ledger endpoints unavailable")
	ErrNotConnected            = errors.New("ledger not connected")
	ErrConnectionClosed        = errors.New("ledger connection closed")
	ErrStreamsUnsupported      = errors.New("transport does not support streams")
	ErrNetworkMismatch         = errors.New("endpoint is on a different network")
)

type AttemptError struct {
	Endpoint Endpoint
	Err      error
}

func (a AttemptError) Error() string {
	return fmt.Sprintf("%s: %v", a.Endpoint.Address, a.Err)
}

// UnavailableError carries one record per endpoint tried, in dial order.
type UnavailableError struct {
	Attempts []AttemptError
}

func (e *UnavailableError) Error() string {
	if len(e.Attempts) == 0 {
		return ErrAllEndpointsUnavailable.Error() + ": no endpoints configured"
	}
	parts := make([]string, len(e.Attempts))
	for i, attempt := range e.Attempts {
		parts[i] = attempt.Error()
	}
	return fmt.Sprintf("%s: %s", ErrAllEndpointsUnavailable.Error(), strings.Join(parts, "; "))
}

func (e *UnavailableError) Is(target error) bool {
	return target == ErrAllEndpointsUnavailable
}

// RPCError is an error status returned by a ledger node for a command.
type RPCError struct {
	Command string
	Code    string
	Message string
}

func (e *RPCError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%s: %s", e.Command, e.Code)
	}
	return fmt.Sprintf("%s: %s: %s", e.Command, e.Code, e.Message)
}

// IsRPCCode reports whether err is a node error with the given code, e.g. actNotFound.
func IsRPCCode(err error, code string) bool {
	var rpcErr *RPCError
	return errors.As(err, &rpcErr) && rpcErr.Code == code
}
