package reactor

import (
	"errors"
	"fmt"
)

// Sentinel errors. Use errors.Is to check.
var (
	ErrToolNotFound      = errors.New("tool not found")
	ErrDuplicateToolName = errors.New("duplicate tool name")
	ErrTimeout           = errors.New("tool execution timeout")
	ErrValidation        = errors.New("validation failed")
	ErrShutdown          = errors.New("registry is shutting down")
	ErrEndpoint          = errors.New("model endpoint failure")
	ErrInvalidTurn       = errors.New("invalid conversation turn")
	ErrEmptyTask         = errors.New("task must not be empty")
)

// ClientError is a malformed invocation: unknown tool, unparseable arguments or
// a schema violation. Its Reason goes back to the model so it can correct itself.
// Err optionally wraps a sentinel (ErrValidation, ErrToolNotFound).
type ClientError struct {
	Reason string
	// Retryable is set by the application, never by the registry.
	Retryable bool
	Err       error
}

func (e *ClientError) Error() string {
	return fmt.Sprintf("invalid tool input: %s", e.Reason)
}

func (e *ClientError) Unwrap() error { return e.Err }

// HandlerError is a failure raised by a tool handler after its arguments were
// accepted. The handler's message is kept so the model can see what went wrong.
type HandlerError struct {
	Tool string
	Err  error
}

func (e *HandlerError) Error() string {
	if e.Err == nil {
		return "tool failed"
	}
	return e.Err.Error()
}

func (e *HandlerError) Unwrap() error { return e.Err }

// EndpointError reports a model endpoint failure. It is fatal to the run that hit it.
type EndpointError struct {
	Iteration int
	Err       error
}

func (e *EndpointError) Error() string {
	return fmt.Sprintf("model endpoint failed at iteration %d: %v", e.Iteration, e.Err)
}

// Unwrap exposes both ErrEndpoint and the underlying cause.
func (e *EndpointError) Unwrap() []error { return []error{ErrEndpoint, e.Err} }

// IsClientError returns true if err is or wraps a ClientError.
func IsClientError(err error) bool {
	var ce *ClientError
	return errors.As(err, &ce)
}

// IsHandlerError returns true if err is or wraps a HandlerError.
func IsHandlerError(err error) bool {
	var he *HandlerError
	return errors.As(err, &he)
}

// IsEndpointError returns true if err is or wraps an EndpointError.
func IsEndpointError(err error) bool {
	var ee *EndpointError
	return errors.As(err, &ee)
}

func wrapJSONParseError(err error) error {
	return &ClientError{Reason: "json parse error: " + err.Error(), Err: ErrValidation}
}

// wrapHandlerError passes ClientError and HandlerError through and wraps anything else.
func wrapHandlerError(name string, err error) error {
	if err == nil {
		return nil
	}
	if IsClientError(err) || IsHandlerError(err) {
		return err
	}
	return &HandlerError{Tool: name, Err: err}
}

// panicError wraps a recovered panic value; used by Registry and WithRecovery.
type panicError struct{ p any }

func (e *panicError) Error() string {
	return "panic: " + fmt.Sprint(e.p)
}
