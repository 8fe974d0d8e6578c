package reactor

import (
	"context"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// run is the state of one Controller.Run call.
type run struct {
	id         string
	task       string
	s          settings
	endpoint   Endpoint
	registry   *Registry
	marker     *regexp.Regexp
	transcript *Transcript
	offset     int
	logger     zerolog.Logger

	conv         *Conversation
	notifier     *notifier
	schemas      []ToolSchema
	state        State
	iterations   int
	usage        Usage
	observations []Observation
	answer       string
	reported     int
	startedAt    time.Time
}

func (r *run) execute(ctx context.Context) (*Result, error) {
	r.startedAt = r.s.now()
	r.conv = NewConversation(r.systemPrompt(ctx))
	r.conv.mustAppend(Turn{Role: RoleUser, Content: r.task})
	r.schemas = r.registry.Schemas()
	r.notifier = newNotifier(r.s.onFragment, r.logger)

	r.logger.Info().
		Int("max_iterations", r.s.maxIterations).
		Int("tools", len(r.schemas)).
		Msg("run started")

	reason, err := r.loop(ctx)
	r.notifier.close()
	return r.finish(ctx, reason, err)
}

func (r *run) systemPrompt(ctx context.Context) string {
	prompt := r.s.systemPrompt
	if r.s.context == nil {
		return prompt
	}
	extra, err := r.s.context.SystemContext(ctx)
	if err != nil {
		r.logger.Warn().Err(err).Msg("context provider failed; continuing without it")
		return prompt
	}
	extra = strings.TrimSpace(extra)
	switch {
	case extra == "":
		return prompt
	case prompt == "":
		return extra
	}
	return prompt + "\n\n" + extra
}

func (r *run) loop(ctx context.Context) (TerminationReason, error) {
	stalls := 0
	for index := 1; ; index++ {
		if index > r.s.maxIterations {
			return ReasonMaxIterations, nil
		}
		if ctx.Err() != nil {
			return ReasonCancelled, nil
		}
		r.state = StateAwaitingModel
		text, resp, err := r.callModel(ctx, index)
		r.iterations = index
		if err != nil {
			if ctx.Err() != nil {
				return ReasonCancelled, nil
			}
			r.logger.Error().Err(err).Int("iteration", index).Msg("model call failed")
			return ReasonFatal, &EndpointError{Iteration: index, Err: err}
		}
		r.usage = r.usage.Add(resp.Usage)

		if answer, ok := r.detectAnswer(text); ok {
			r.answer = answer
			r.conv.mustAppend(Turn{Role: RoleAssistant, Content: text})
			return ReasonFinalAnswer, nil
		}

		if call, obs, ok := r.selectCall(text, resp); ok {
			stalls = 0
			r.state = StateToolCallPending
			if obs == nil {
				o := r.registry.Dispatch(ctx, call)
				obs = &o
			}
			r.observe(text, call, *obs, len(resp.ToolCalls) > 0)
			r.state = StateAwaitingModel
			r.reportUnlessLast(index)
			continue
		}

		if r.s.structuredStop && resp.Stop == StopEndTurn {
			r.answer = strings.TrimSpace(text)
			r.conv.mustAppend(Turn{Role: RoleAssistant, Content: text})
			return ReasonFinalAnswer, nil
		}

		r.conv.mustAppend(Turn{Role: RoleAssistant, Content: text})
		stalls++
		if r.s.maxStalls > 0 && stalls >= r.s.maxStalls {
			return ReasonStalled, nil
		}
		if index < r.s.maxIterations {
			r.conv.mustAppend(Turn{Role: RoleUser, Content: r.s.nudge})
		}
		r.state = StateAwaitingModel
		r.reportUnlessLast(index)
	}
}

// reportUnlessLast reports a non-terminal iteration. The last allowed iteration is
// left to finish so observers see it once, with the termination reason.
func (r *run) reportUnlessLast(index int) {
	if index < r.s.maxIterations {
		r.report(index, "")
	}
}

// callModel performs one model call. Fragments go to the transcript as they arrive;
// a non-streaming endpoint's Text is appended as a single fragment.
func (r *run) callModel(ctx context.Context, index int) (string, Response, error) {
	callCtx := ctx
	if r.s.callTimeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, r.s.callTimeout)
		defer cancel()
	}

	var (
		mu   sync.Mutex
		turn strings.Builder
	)
	onFragment := func(f string) {
		if f == "" {
			return
		}
		mu.Lock()
		defer mu.Unlock()
		turn.WriteString(f)
		r.transcript.Append(f)
		r.notifier.notify(Fragment{RunID: r.id, Iteration: index, Text: f})
	}

	req := Request{Turns: r.conv.Turns(), Tools: r.schemas, MaxTokens: r.s.perCallTokens}
	resp, err := r.endpoint.Generate(callCtx, req, onFragment)
	if err != nil {
		return r.turnText(&mu, &turn), resp, err
	}
	mu.Lock()
	streamed := turn.Len() > 0
	mu.Unlock()
	if !streamed {
		onFragment(resp.Text)
	}
	return r.turnText(&mu, &turn), resp, nil
}

func (r *run) turnText(mu *sync.Mutex, b *strings.Builder) string {
	mu.Lock()
	defer mu.Unlock()
	return b.String()
}

// detectAnswer looks for the marker in the current turn, then in the whole run
// transcript so a marker split across turns is still found.
func (r *run) detectAnswer(turn string) (string, bool) {
	if loc := r.marker.FindStringIndex(turn); loc != nil {
		return strings.TrimSpace(turn[loc[1]:]), true
	}
	full := r.transcript.since(r.offset)
	if loc := r.marker.FindStringIndex(full); loc != nil {
		return strings.TrimSpace(full[loc[1]:]), true
	}
	return "", false
}

// selectCall picks the single call to dispatch this iteration: the first structured
// call, else the first action written in the text. When the written action cannot
// be parsed the returned Observation already holds the failure.
func (r *run) selectCall(text string, resp Response) (ToolCall, *Observation, bool) {
	if len(resp.ToolCalls) > 0 {
		call := resp.ToolCalls[0]
		if call.ID == "" {
			call.ID = r.s.newID()
		}
		if len(resp.ToolCalls) > 1 {
			r.logger.Debug().Int("ignored", len(resp.ToolCalls)-1).Msg("extra tool calls in one turn")
		}
		return call, nil, true
	}
	action, found, err := ParseAction(text)
	if !found {
		return ToolCall{}, nil, false
	}
	call := ToolCall{ID: r.s.newID(), ToolName: action.Name, Args: action.Args}
	if err != nil {
		obs := failed(Observation{CallID: call.ID, ToolName: call.ToolName}, &ClientError{
			Reason: "could not read arguments of " + action.Name + ": " + err.Error(),
			Err:    ErrValidation,
		})
		return call, &obs, true
	}
	return call, nil, true
}

func (r *run) observe(text string, call ToolCall, obs Observation, structured bool) {
	r.observations = append(r.observations, obs)
	assistant := Turn{Role: RoleAssistant, Content: text}
	tool := Turn{Role: RoleTool, Content: obs.Content(), ToolName: call.ToolName}
	if structured {
		assistant.ToolCalls = []ToolCall{call}
		tool.ToolCallID = call.ID
	}
	r.conv.mustAppend(assistant)
	r.conv.mustAppend(tool)
	r.logger.Debug().
		Str("tool", call.ToolName).
		Bool("succeeded", obs.Succeeded).
		Msg("observation recorded")
}

func (r *run) report(index int, reason TerminationReason) {
	r.reported = index
	if r.s.onIteration == nil {
		return
	}
	r.s.onIteration(IterationState{
		RunID:      r.id,
		Index:      index,
		State:      r.state,
		Transcript: r.transcript.since(r.offset),
		Terminated: reason != "",
		Reason:     reason,
	})
}

func stateFor(reason TerminationReason) State {
	switch reason {
	case ReasonFinalAnswer:
		return StateFinalAnswer
	case ReasonMaxIterations:
		return StateIterationLimit
	case ReasonStalled:
		return StateStalled
	case ReasonCancelled:
		return StateCancelled
	default:
		return StateFatal
	}
}

func (r *run) finish(ctx context.Context, reason TerminationReason, runErr error) (*Result, error) {
	r.state = stateFor(reason)
	if r.reported < r.iterations {
		r.report(r.iterations, reason)
	}
	res := &Result{
		RunID:        r.id,
		FinalAnswer:  r.answer,
		Transcript:   r.transcript.since(r.offset),
		Reason:       reason,
		State:        r.state,
		Iterations:   r.iterations,
		Usage:        r.usage,
		Turns:        r.conv.Turns(),
		Observations: r.observations,
	}
	ev := r.logger.Info()
	if runErr != nil {
		ev = r.logger.Error().Err(runErr)
	}
	ev.Str("reason", string(reason)).Int("iterations", r.iterations).Msg("run finished")

	if r.s.sink != nil {
		snap := Snapshot{
			RunID:       r.id,
			Task:        r.task,
			Turns:       res.Turns,
			Tools:       r.schemas,
			Transcript:  res.Transcript,
			FinalAnswer: res.FinalAnswer,
			Reason:      reason,
			Iterations:  r.iterations,
			Usage:       r.usage,
			StartedAt:   r.startedAt,
			FinishedAt:  r.s.now(),
		}
		if err := r.s.sink.Record(context.WithoutCancel(ctx), snap); err != nil {
			r.logger.Warn().Err(err).Msg("snapshot sink failed")
		}
	}
	return res, runErr
}
