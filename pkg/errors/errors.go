package errors

import (
	stderrors "errors"
	"fmt"
)

// ErrorCode represents a unique error code
type ErrorCode int

// AppError represents an application error
type AppError struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	Err     error     `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// Is matches any AppError carrying the same code, so sentinel values can be
// used with errors.Is.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	return ok && t.Code == e.Code
}

// Common error codes
const (
	ErrNotFound ErrorCode = iota + 1000
	ErrBadRequest
	ErrUnauthorized
	ErrForbidden
	ErrInternal
	ErrRateLimited
)

// Connection error codes
const (
	ErrDecode ErrorCode = iota + 2000
	ErrTransport
	ErrHeartbeat
	ErrConfig
)

// Sentinels for errors.Is checks.
var (
	Unauthenticated = &AppError{Code: ErrUnauthorized, Message: "unauthorized"}
	Malformed       = &AppError{Code: ErrDecode, Message: "malformed frame"}
	TransportFailed = &AppError{Code: ErrTransport, Message: "transport failure"}
	HeartbeatMissed = &AppError{Code: ErrHeartbeat, Message: "heartbeat timeout"}
	Misconfigured   = &AppError{Code: ErrConfig, Message: "invalid configuration"}
)

// Error constructors
func NewNotFound(resource string, err error) *AppError {
	return &AppError{
		Code:    ErrNotFound,
		Message: fmt.Sprintf("%s not found", resource),
		Err:     err,
	}
}

func NewBadRequest(message string, err error) *AppError {
	return &AppError{
		Code:    ErrBadRequest,
		Message: message,
		Err:     err,
	}
}

func NewInternal(err error) *AppError {
	return &AppError{
		Code:    ErrInternal,
		Message: "internal server error",
		Err:     err,
	}
}

func RateLimited() *AppError {
	return &AppError{
		Code:    ErrRateLimited,
		Message: "rate limit exceeded",
	}
}

func Unauthorized(err error) *AppError {
	return &AppError{
		Code:    ErrUnauthorized,
		Message: "unauthorized",
		Err:     err,
	}
}

func Decode(message string, err error) *AppError {
	return &AppError{
		Code:    ErrDecode,
		Message: message,
		Err:     err,
	}
}

func Transport(message string, err error) *AppError {
	return &AppError{
		Code:    ErrTransport,
		Message: message,
		Err:     err,
	}
}

func Heartbeat(message string) *AppError {
	return &AppError{
		Code:    ErrHeartbeat,
		Message: message,
	}
}

func Config(message string, err error) *AppError {
	return &AppError{
		Code:    ErrConfig,
		Message: message,
		Err:     err,
	}
}

// CodeOf returns the code of the first AppError in err's chain, or
// ErrInternal when there is none.
func CodeOf(err error) ErrorCode {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr.Code
	}
	return ErrInternal
}

// Reason is a short label for a code, used in logs and metric labels.
func (c ErrorCode) Reason() string {
	switch c {
	case ErrNotFound:
		return "not_found"
	case ErrBadRequest:
		return "bad_request"
	case ErrUnauthorized:
		return "unauthorized"
	case ErrForbidden:
		return "forbidden"
	case ErrRateLimited:
		return "rate_limited"
	case ErrDecode:
		return "decode"
	case ErrTransport:
		return "transport"
	case ErrHeartbeat:
		return "heartbeat"
	case ErrConfig:
		return "config"
	default:
		return "internal"
	}
}
