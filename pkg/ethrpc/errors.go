package ethrpc

import (
	"errors"
	"fmt"
)

// Error codes defined by JSON-RPC 2.0 and EIP-1193 that this client cares
// about. Anything else surfaced by the remote side is treated as a generic
// chain error.
const (
	// UserRejectedCode is the EIP-1193 userRejectedRequest error code
	// returned when the signing identity declines a request.
	UserRejectedCode = 4001
	// InternalErrorCode is the standard JSON-RPC internal error code,
	// commonly used for reverted executions.
	InternalErrorCode = -32603
)

// ErrNotAvailable is returned (wrapped) when the RPC endpoint cannot be
// reached at the transport level.
var ErrNotAvailable = errors.New("RPC endpoint not available")

// Error represents a JSON-RPC 2.0 error object surfaced by the remote side.
type Error struct {
	Code    int64  `json:"code"`
	Message string `json:"message"`
	Data    string `json:"data,omitempty"`
}

// NewError is an Error constructor.
func NewError(code int64, message string, data string) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Data:    data,
	}
}

// Error implements the error interface.
func (e *Error) Error() string {
	if len(e.Data) == 0 {
		return fmt.Sprintf("RPC error: %d - %s", e.Code, e.Message)
	}
	return fmt.Sprintf("RPC error: %d - %s - %s", e.Code, e.Message, e.Data)
}

// Is implements the errors.Is interface allowing errors.Is checks against
// template errors with the same code.
func (e *Error) Is(target error) bool {
	var rpcErr *Error
	if !errors.As(target, &rpcErr) {
		return false
	}
	return e.Code == rpcErr.Code
}

// IsUserRejected reports whether the error means the signing identity
// declined the request.
func (e *Error) IsUserRejected() bool {
	return e.Code == UserRejectedCode
}

// IsUserRejected reports whether err (or anything it wraps) is an RPC-level
// rejection by the signing identity.
func IsUserRejected(err error) bool {
	var rpcErr *Error
	return errors.As(err, &rpcErr) && rpcErr.IsUserRejected()
}
