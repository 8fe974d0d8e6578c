// Package reactor runs a tool-augmented reasoning loop against a language model.
//
// # Overview
//
// The model alternates Thought, Action and Observation steps. Each iteration the
// Controller sends the conversation to an Endpoint, accumulates the streamed
// fragments into a Transcript, and then either stops on a final answer, dispatches
// exactly one tool call through the Registry, or nudges the model to continue.
// The loop is bounded by WithMaxIterations.
//
// Pipeline: task → Controller.Run → Endpoint.Generate (streamed) → answer marker
// check → ToolCall (structured, or parsed from "Action: name(args)") →
// Registry.Dispatch (bind, validate, execute) → Observation → next iteration.
//
// # Key concepts
//
//   - Single source of truth: one argument struct drives both the JSON Schema
//     advertised to the model and the validation of incoming arguments.
//   - Dispatch never fails: unknown tools, bad arguments, handler errors, panics
//     and timeouts all become a failed Observation the model can react to.
//   - Distinct outcomes: Result.Reason separates a final answer from an exhausted
//     iteration budget, a stall, a fatal endpoint error and cancellation.
//
// # Example
//
//	type Args struct {
//	    A float64 `json:"a" description:"First number"`
//	    B float64 `json:"b" description:"Second number"`
//	}
//	add, err := reactor.NewTool("add", "Add two numbers", func(_ context.Context, a Args) (float64, error) {
//	    return a.A + a.B, nil
//	})
//	if err != nil { ... }
//	reg := reactor.NewRegistry()
//	if err := reg.Register(add); err != nil { ... }
//	ctrl, err := reactor.NewController(endpoint, reg)
//	if err != nil { ... }
//	res, err := ctrl.Run(ctx, "What is 15 + 7?")
package reactor
