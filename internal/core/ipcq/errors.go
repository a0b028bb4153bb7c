package ipcq

import (
	"errors"

	"github.com/zeusync/ipcq/pkg/encoding"
)

// Queue errors
var (
	// Actor errors

	ErrActorDestroyed = errors.New("actor is destroyed")
	ErrNotProducer    = errors.New("actor has no sender")
	ErrNotConsumer    = errors.New("actor has no receiver")
	ErrNotSyncCapable = errors.New("actor cannot answer synchronous exchanges")
	ErrNoHandler      = errors.New("no handler registered for queue")
	ErrHandlerFailed  = errors.New("queue handler failed")
	ErrNestedExchange = errors.New("nested synchronous exchange")

	// Queue half errors

	ErrIllegalID    = errors.New("queue id is illegal")
	ErrAlreadyBound = errors.New("queue half is already bound")
	ErrNotBound     = errors.New("queue half is not bound")
	ErrStoreFailed  = errors.New("failed to store envelope")

	// Channel errors

	ErrChannelClosed      = errors.New("channel is closed")
	ErrChannelNotBound    = errors.New("channel is not bound")
	ErrChannelUnsupported = errors.New("operation not supported by channel")
	ErrProtocolViolation  = errors.New("protocol violation")
)

// ErrorCode represents a numeric error code for efficient error handling
type ErrorCode int

const (
	ErrorCodeSuccess ErrorCode = 0

	// Actor error codes (1000-1999)

	ErrorCodeActorDestroyed ErrorCode = 1001
	ErrorCodeNotProducer    ErrorCode = 1002
	ErrorCodeNotConsumer    ErrorCode = 1003
	ErrorCodeNotSyncCapable ErrorCode = 1004
	ErrorCodeNoHandler      ErrorCode = 1005
	ErrorCodeHandlerFailed  ErrorCode = 1006
	ErrorCodeNestedExchange ErrorCode = 1007

	// Queue half error codes (2000-2999)

	ErrorCodeIllegalID    ErrorCode = 2001
	ErrorCodeAlreadyBound ErrorCode = 2002
	ErrorCodeNotBound     ErrorCode = 2003
	ErrorCodeStoreFailed  ErrorCode = 2004

	// Channel error codes (3000-3999)

	ErrorCodeChannelClosed      ErrorCode = 3001
	ErrorCodeChannelNotBound    ErrorCode = 3002
	ErrorCodeChannelUnsupported ErrorCode = 3003
	ErrorCodeProtocolViolation  ErrorCode = 3004

	ErrorCodeUnknownError ErrorCode = 9999
)

// Error is a queue error with a code and an optional cause.
type Error struct {
	Code    ErrorCode
	Message string
	Cause   error
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// NewError creates a new queue error
func NewError(code ErrorCode, message string, cause error) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// IsFatal reports whether the channel carrying the error must be torn down.
func (e *Error) IsFatal() bool {
	switch e.Code {
	case ErrorCodeHandlerFailed,
		ErrorCodeNoHandler,
		ErrorCodeStoreFailed,
		ErrorCodeNestedExchange,
		ErrorCodeProtocolViolation:
		return true
	default:
		return false
	}
}

var errorCodeMap = map[error]ErrorCode{
	ErrActorDestroyed: ErrorCodeActorDestroyed,
	ErrNotProducer:    ErrorCodeNotProducer,
	ErrNotConsumer:    ErrorCodeNotConsumer,
	ErrNotSyncCapable: ErrorCodeNotSyncCapable,
	ErrNoHandler:      ErrorCodeNoHandler,
	ErrHandlerFailed:  ErrorCodeHandlerFailed,
	ErrNestedExchange: ErrorCodeNestedExchange,

	ErrIllegalID:    ErrorCodeIllegalID,
	ErrAlreadyBound: ErrorCodeAlreadyBound,
	ErrNotBound:     ErrorCodeNotBound,
	ErrStoreFailed:  ErrorCodeStoreFailed,

	ErrChannelClosed:      ErrorCodeChannelClosed,
	ErrChannelNotBound:    ErrorCodeChannelNotBound,
	ErrChannelUnsupported: ErrorCodeChannelUnsupported,
	ErrProtocolViolation:  ErrorCodeProtocolViolation,
}

// GetErrorCode returns the error code for a given error
func GetErrorCode(err error) ErrorCode {
	if err == nil {
		return ErrorCodeSuccess
	}
	var queueErr *Error
	if errors.As(err, &queueErr) {
		return queueErr.Code
	}
	for sentinel, code := range errorCodeMap {
		if errors.Is(err, sentinel) {
			return code
		}
	}
	return ErrorCodeUnknownError
}

// WrapError wraps a standard error into a queue error
func WrapError(err error, message string) *Error {
	return NewError(GetErrorCode(err), message, err)
}

// StatusOf maps an error to the status a queue operation reports for it.
func StatusOf(err error) encoding.Status {
	switch {
	case err == nil:
		return encoding.Success
	case errors.Is(err, ErrChannelUnsupported):
		return encoding.OOMError
	default:
		return encoding.FatalError
	}
}
