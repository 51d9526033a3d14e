package protocol

import (
	"errors"
	"fmt"
)

type Code int

const (
	CodeMalformed          Code = 1000
	CodeUnknownType        Code = 1001
	CodeUnsupportedVersion Code = 1002
	CodeUnknownSession     Code = 1003
	CodeDuplicateSession   Code = 1004
	CodeInvalidParams      Code = 1005
	CodeFeedUnavailable    Code = 1006
	CodeSessionLimit       Code = 1007
	CodeSessionBusy        Code = 1008

	CodeOrderTerminal   Code = 2001
	CodeUnknownOrder    Code = 2002
	CodeSessionEnded    Code = 2003
	CodeExecutionFailed Code = 2004

	CodeInternal Code = 5000
)

// Error is sent to the client as an error event.
type Error struct {
	Code    Code
	Message string
	OrderId string
}

func Errorf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

func (e *Error) Error() string {
	return fmt.Sprintf("%d: %s", e.Code, e.Message)
}

func (e *Error) WithOrder(orderId string) *Error {
	e.OrderId = orderId
	return e
}

func (e *Error) Data(sessionId string) ErrorData {
	return ErrorData{
		Code:      int(e.Code),
		Message:   e.Message,
		SessionId: sessionId,
		OrderId:   e.OrderId,
	}
}

// AsError extracts a protocol error from err, treating anything else as an
// internal failure.
func AsError(err error) *Error {
	var pErr *Error
	if errors.As(err, &pErr) {
		return pErr
	}
	return &Error{Code: CodeInternal, Message: err.Error()}
}
