package executor

import (
	"fmt"
	"time"
)

// Kind classifies execution failures. Timeouts, handler failures, and
// concurrency exhaustion map to different HTTP statuses and metrics, so
// they must stay distinguishable.
type Kind string

const (
	KindTimeout           Kind = "timeout"
	KindHandlerFailed     Kind = "handler_failed"
	KindResourceExhausted Kind = "resource_exhausted"
)

// ExecError is the typed failure the executor returns.
type ExecError struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *ExecError) Error() string {
	return e.Message
}

func (e *ExecError) Unwrap() error {
	return e.Cause
}

func timeoutError(limit time.Duration, cause error) *ExecError {
	return &ExecError{
		Kind:    KindTimeout,
		Message: fmt.Sprintf("tool execution exceeded %s", limit),
		Cause:   cause,
	}
}

func handlerError(message string, cause error) *ExecError {
	return &ExecError{
		Kind:    KindHandlerFailed,
		Message: message,
		Cause:   cause,
	}
}

func resourceExhaustedError() *ExecError {
	return &ExecError{
		Kind:    KindResourceExhausted,
		Message: "executor concurrency limit reached",
	}
}
