package reactor

import (
	"context"
	"encoding/json"
	"time"
)

// Tool is a named capability the model may invoke. It is provider-agnostic: the
// dispatcher only needs a name, a description, a JSON Schema for the arguments,
// and a handler that turns validated JSON into plain text.
type Tool interface {
	Name() string
	Description() string
	// Parameters returns a JSON Schema as map (compatible with LLM tool definitions).
	Parameters() map[string]any
	// Execute runs the tool against argsJSON and returns text for the model.
	Execute(ctx context.Context, argsJSON []byte) (string, error)
}

// ToolMetadata is implemented by tools created with NewTool and NewDynamicTool.
// Registry uses Timeout to override the default execution timeout and
// ParameterOrder to bind positional text actions such as add(15, 7).
type ToolMetadata interface {
	Timeout() time.Duration
	Tags() []string
	ParameterOrder() []string
}

// ToolCall is a single invocation request extracted from a model turn.
type ToolCall struct {
	ID       string
	ToolName string
	// Args is a JSON object of named arguments or a JSON array of positional ones.
	Args json.RawMessage
}

// Observation is the outcome of dispatching a ToolCall. Dispatch never returns
// an error: every failure is folded into an Observation with Succeeded false.
type Observation struct {
	CallID    string
	ToolName  string
	Result    string
	Succeeded bool
	Err       error
	Duration  time.Duration
}

// Content is the text fed back to the model for this observation.
func (o Observation) Content() string {
	if o.Succeeded {
		return o.Result
	}
	return "Error: " + o.Result
}

// ToolSchema is the provider-neutral description of a tool advertised to the model.
type ToolSchema struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

// State is a node of the reasoning loop.
type State string

const (
	StateAwaitingModel   State = "awaiting_model"
	StateToolCallPending State = "tool_call_pending"
	StateFinalAnswer     State = "final_answer"
	StateIterationLimit  State = "iteration_limit"
	StateStalled         State = "stalled"
	StateFatal           State = "fatal"
	StateCancelled       State = "cancelled"
)

// Terminal reports whether no further transitions leave s.
func (s State) Terminal() bool {
	switch s {
	case StateFinalAnswer, StateIterationLimit, StateStalled, StateFatal, StateCancelled:
		return true
	default:
		return false
	}
}

// TerminationReason explains why a run stopped.
type TerminationReason string

const (
	ReasonFinalAnswer   TerminationReason = "final_answer"
	ReasonMaxIterations TerminationReason = "max_iterations"
	ReasonStalled       TerminationReason = "stalled"
	ReasonFatal         TerminationReason = "fatal_error"
	ReasonCancelled     TerminationReason = "cancelled"
)

// IterationState is reported once per iteration, after the iteration's
// transitions have been applied.
type IterationState struct {
	RunID      string
	Index      int
	State      State
	Transcript string
	Terminated bool
	Reason     TerminationReason
}

// Fragment is one piece of streamed model output forwarded to a FragmentObserver.
type Fragment struct {
	RunID     string
	Iteration int
	Text      string
}

// ContextProvider contributes extra text to the system turn at the start of each run.
type ContextProvider interface {
	SystemContext(ctx context.Context) (string, error)
}

// SnapshotSink receives a snapshot of every finished run. Failures are logged and
// never change the run's outcome.
type SnapshotSink interface {
	Record(ctx context.Context, snap Snapshot) error
}

// Snapshot is the full record of a finished run.
type Snapshot struct {
	RunID       string
	Task        string
	Turns       []Turn
	Tools       []ToolSchema
	Transcript  string
	FinalAnswer string
	Reason      TerminationReason
	Iterations  int
	Usage       Usage
	StartedAt   time.Time
	FinishedAt  time.Time
}
