// Package clock provides get_current_time, a tool that reports the local time of day.
package clock

import (
	"context"
	"time"

	"github.com/skosovsky/reactor"
)

// Layout is the 12-hour format the tool answers with, e.g. "01:46:36 PM".
const Layout = "03:04:05 PM"

type options struct {
	now      func() time.Time
	location *time.Location
}

// Option configures the clock tool.
type Option func(*options)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// WithLocation reports time in loc instead of the local zone.
func WithLocation(loc *time.Location) Option {
	return func(o *options) { o.location = loc }
}

// New builds the get_current_time tool. It takes no arguments.
func New(opts ...Option) (reactor.Tool, error) {
	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	return reactor.NewDynamicTool("get_current_time", "Get the current time", noArguments(),
		func(_ context.Context, _ map[string]any) (string, error) {
			now := o.now()
			if o.location != nil {
				now = now.In(o.location)
			}
			return now.Format(Layout), nil
		}, reactor.WithTags("time"))
}

func noArguments() map[string]any {
	return map[string]any{
		"type":                 "object",
		"properties":           map[string]any{},
		"additionalProperties": false,
	}
}
