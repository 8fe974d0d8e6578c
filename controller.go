package reactor

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Controller drives the reasoning loop against one Endpoint and a Registry of tools.
// A Controller holds no per-run state; Run and RunBatch are safe for concurrent use.
type Controller struct {
	endpoint Endpoint
	registry *Registry
	settings settings
}

type settings struct {
	maxIterations    int
	perCallTokens    int
	callTimeout      time.Duration
	maxStalls        int
	systemPrompt     string
	answerMarker     string
	nudge            string
	structuredStop   bool
	batchConcurrency int
	logger           zerolog.Logger
	context          ContextProvider
	sink             SnapshotSink
	onFragment       FragmentObserver
	onIteration      func(IterationState)
	transcript       *Transcript
	tools            []Tool
	newID            func() string
	now              func() time.Time
}

func defaultSettings() settings {
	return settings{
		maxIterations:    10,
		perCallTokens:    300,
		systemPrompt:     DefaultSystemPrompt,
		answerMarker:     DefaultAnswerMarker,
		nudge:            DefaultNudge,
		batchConcurrency: 2,
		logger:           zerolog.Nop(),
		newID:            uuid.NewString,
		now:              time.Now,
	}
}

// Option configures a Controller. Options passed to Run or RunBatch override the
// controller's for that call only.
type Option func(*settings)

// WithMaxIterations bounds the number of model calls per run. Values below 1 are ignored.
func WithMaxIterations(n int) Option {
	return func(s *settings) {
		if n > 0 {
			s.maxIterations = n
		}
	}
}

// WithPerCallTokenBudget caps the tokens generated by each model call. Zero leaves it to the endpoint.
func WithPerCallTokenBudget(n int) Option {
	return func(s *settings) {
		if n >= 0 {
			s.perCallTokens = n
		}
	}
}

// WithCallTimeout bounds each model call. A call that exceeds it ends the run as fatal.
func WithCallTimeout(d time.Duration) Option {
	return func(s *settings) {
		s.callTimeout = d
	}
}

// WithMaxStalls ends a run after n consecutive turns with neither an action nor an
// answer. Zero disables the limit.
func WithMaxStalls(n int) Option {
	return func(s *settings) {
		if n >= 0 {
			s.maxStalls = n
		}
	}
}

// WithSystemPrompt replaces DefaultSystemPrompt. An empty prompt sends no system turn.
func WithSystemPrompt(prompt string) Option {
	return func(s *settings) {
		s.systemPrompt = prompt
	}
}

// WithAnswerMarker replaces DefaultAnswerMarker.
func WithAnswerMarker(marker string) Option {
	return func(s *settings) {
		if marker != "" {
			s.answerMarker = marker
		}
	}
}

// WithNudge replaces DefaultNudge.
func WithNudge(nudge string) Option {
	return func(s *settings) {
		if nudge != "" {
			s.nudge = nudge
		}
	}
}

// WithStructuredStop also accepts an endpoint's end-of-turn signal as a final answer
// when the turn has no marker and no tool call.
func WithStructuredStop(enable bool) Option {
	return func(s *settings) {
		s.structuredStop = enable
	}
}

// WithBatchConcurrency sets how many RunBatch tasks run at once.
func WithBatchConcurrency(n int) Option {
	return func(s *settings) {
		if n > 0 {
			s.batchConcurrency = n
		}
	}
}

// WithLogger sets the logger for run lifecycle events.
func WithLogger(logger zerolog.Logger) Option {
	return func(s *settings) {
		s.logger = logger
	}
}

// WithContextProvider adds text from p to the system turn of every run.
func WithContextProvider(p ContextProvider) Option {
	return func(s *settings) {
		s.context = p
	}
}

// WithSnapshotSink records every finished run to sink.
func WithSnapshotSink(sink SnapshotSink) Option {
	return func(s *settings) {
		s.sink = sink
	}
}

// WithFragmentObserver forwards every streamed fragment to fn, in order.
// Run returns only after fn has seen all of them.
func WithFragmentObserver(fn FragmentObserver) Option {
	return func(s *settings) {
		s.onFragment = fn
	}
}

// WithIterationObserver calls fn once per iteration with the loop state.
func WithIterationObserver(fn func(IterationState)) Option {
	return func(s *settings) {
		s.onIteration = fn
	}
}

// WithTranscript makes the run append to t so callers can poll progress while it runs.
// Meant for Run; in RunBatch every task would share it.
func WithTranscript(t *Transcript) Option {
	return func(s *settings) {
		s.transcript = t
	}
}

// WithTools registers extra tools for one run on top of the controller's registry.
func WithTools(tools ...Tool) Option {
	return func(s *settings) {
		s.tools = append(s.tools, tools...)
	}
}

// WithIDGenerator replaces the run and call ID generator.
func WithIDGenerator(fn func() string) Option {
	return func(s *settings) {
		if fn != nil {
			s.newID = fn
		}
	}
}

// WithClock replaces time.Now for run timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *settings) {
		if now != nil {
			s.now = now
		}
	}
}

// NewController creates a Controller. registry may be nil for a tool-less controller.
func NewController(endpoint Endpoint, registry *Registry, opts ...Option) (*Controller, error) {
	if endpoint == nil {
		return nil, errors.New("endpoint must not be nil")
	}
	if registry == nil {
		registry = NewRegistry()
	}
	s := defaultSettings()
	for _, opt := range opts {
		opt(&s)
	}
	return &Controller{endpoint: endpoint, registry: registry, settings: s}, nil
}

// Registry returns the controller's tool registry.
func (c *Controller) Registry() *Registry { return c.registry }

// Result is the outcome of one run.
type Result struct {
	RunID string
	// FinalAnswer is the text after the answer marker. It is empty unless
	// Reason is ReasonFinalAnswer.
	FinalAnswer  string
	Transcript   string
	Reason       TerminationReason
	State        State
	Iterations   int
	Usage        Usage
	Turns        []Turn
	Observations []Observation
}

// Answered reports whether the run ended with a final answer.
func (r *Result) Answered() bool { return r.Reason == ReasonFinalAnswer }

// Incomplete reports whether the run gave up without an answer, as opposed to
// failing or being cancelled.
func (r *Result) Incomplete() bool {
	return r.Reason == ReasonMaxIterations || r.Reason == ReasonStalled
}

// Run executes one task. Setup problems (empty task, duplicate tool in WithTools)
// return a nil Result. Otherwise the Result is always non-nil and records the
// partial transcript; the error is non-nil only for a fatal endpoint failure.
// Cancellation of ctx is reported as ReasonCancelled with a nil error.
func (c *Controller) Run(ctx context.Context, task string, opts ...Option) (*Result, error) {
	s := c.settings
	s.tools = nil
	for _, opt := range opts {
		opt(&s)
	}
	if strings.TrimSpace(task) == "" {
		return nil, ErrEmptyTask
	}
	registry := c.registry
	if len(s.tools) > 0 {
		registry = c.registry.clone()
		for _, t := range s.tools {
			if err := registry.Register(t); err != nil {
				return nil, err
			}
		}
	}
	marker, err := regexp.Compile(`(?i)` + regexp.QuoteMeta(s.answerMarker))
	if err != nil {
		return nil, fmt.Errorf("answer marker: %w", err)
	}
	transcript := s.transcript
	if transcript == nil {
		transcript = NewTranscript()
	}
	r := &run{
		id:         s.newID(),
		task:       task,
		s:          s,
		endpoint:   c.endpoint,
		registry:   registry,
		marker:     marker,
		transcript: transcript,
		offset:     transcript.Len(),
	}
	r.logger = s.logger.With().Str("run_id", r.id).Logger()
	return r.execute(ctx)
}
