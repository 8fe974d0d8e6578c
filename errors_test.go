package reactor

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorMessages(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{name: "client", err: &ClientError{Reason: `unknown unit "kelvin"`}, want: `invalid tool input: unknown unit "kelvin"`},
		{name: "client without reason", err: &ClientError{}, want: "invalid tool input: "},
		{name: "handler keeps cause text", err: &HandlerError{Tool: "divide", Err: errors.New("division by zero")}, want: "division by zero"},
		{name: "handler without cause", err: &HandlerError{Tool: "divide"}, want: "tool failed"},
		{name: "endpoint", err: &EndpointError{Iteration: 3, Err: context.DeadlineExceeded}, want: "model endpoint failed at iteration 3: context deadline exceeded"},
		{name: "panic", err: &panicError{p: "nil map"}, want: "panic: nil map"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.EqualError(t, tt.err, tt.want)
		})
	}
}

func TestErrorClassification(t *testing.T) {
	notFound := &ClientError{Reason: "no tool named serch", Err: ErrToolNotFound}
	timedOut := &HandlerError{Tool: "search", Err: ErrTimeout}
	endpoint := &EndpointError{Iteration: 1, Err: errors.New("connection refused")}

	tests := []struct {
		name     string
		err      error
		sentinel error
		client   bool
		handler  bool
		endpoint bool
	}{
		{name: "client", err: notFound, sentinel: ErrToolNotFound, client: true},
		{name: "wrapped client", err: fmt.Errorf("dispatch: %w", notFound), sentinel: ErrToolNotFound, client: true},
		{name: "handler", err: timedOut, sentinel: ErrTimeout, handler: true},
		{name: "wrapped handler", err: fmt.Errorf("run: %w", timedOut), sentinel: ErrTimeout, handler: true},
		{name: "endpoint", err: endpoint, sentinel: ErrEndpoint, endpoint: true},
		{name: "wrapped endpoint", err: fmt.Errorf("batch: %w", endpoint), sentinel: ErrEndpoint, endpoint: true},
		{name: "bare sentinel", err: ErrEndpoint, sentinel: ErrEndpoint},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, tt.err, tt.sentinel)
			assert.Equal(t, tt.client, IsClientError(tt.err), "IsClientError")
			assert.Equal(t, tt.handler, IsHandlerError(tt.err), "IsHandlerError")
			assert.Equal(t, tt.endpoint, IsEndpointError(tt.err), "IsEndpointError")
		})
	}

	// The endpoint cause stays reachable next to the sentinel.
	assert.ErrorIs(t, &EndpointError{Err: context.Canceled}, context.Canceled)
	assert.NotErrorIs(t, &ClientError{Reason: "x"}, ErrValidation)
}

func TestWrapHandlerError(t *testing.T) {
	require.NoError(t, wrapHandlerError("divide", nil))

	client := &ClientError{Reason: "divisor must not be zero"}
	assert.Same(t, client, wrapHandlerError("divide", client))
	handler := &HandlerError{Tool: "inner", Err: ErrTimeout}
	assert.Same(t, handler, wrapHandlerError("outer", handler))

	var he *HandlerError
	require.ErrorAs(t, wrapHandlerError("divide", errors.New("overflow")), &he)
	assert.Equal(t, "divide", he.Tool)
	assert.EqualError(t, he, "overflow")
}

func TestWrapJSONParseError(t *testing.T) {
	err := wrapJSONParseError(errors.New("unexpected end of JSON input"))
	assert.True(t, IsClientError(err))
	assert.ErrorIs(t, err, ErrValidation)
	assert.EqualError(t, err, "invalid tool input: json parse error: unexpected end of JSON input")
}
