// Package calculator provides the four arithmetic tools used by the ReAct examples:
// add, subtract, multiply and divide over float64.
package calculator

import (
	"context"
	"errors"
	"strconv"

	"github.com/skosovsky/reactor"
)

// ErrDivisionByZero is returned by divide when b is zero.
var ErrDivisionByZero = errors.New("division by zero")

// Operands are the arguments of every calculator tool. Positional actions such as
// add(15, 7) bind to a then b.
type Operands struct {
	A float64 `json:"a" description:"First number"`
	B float64 `json:"b" description:"Second number"`
}

type operation struct {
	name, description string
	fn                func(a, b float64) (float64, error)
}

var operations = []operation{
	{"add", "Add two numbers together", func(a, b float64) (float64, error) { return a + b, nil }},
	{"subtract", "Subtract the second number from the first number", func(a, b float64) (float64, error) { return a - b, nil }},
	{"multiply", "Multiply two numbers together", func(a, b float64) (float64, error) { return a * b, nil }},
	{"divide", "Divide the first number by the second number", func(a, b float64) (float64, error) {
		if b == 0 {
			return 0, ErrDivisionByZero
		}
		return a / b, nil
	}},
}

// Tools builds add, subtract, multiply and divide. opts apply to every tool.
func Tools(opts ...reactor.ToolOption) ([]reactor.Tool, error) {
	opts = append([]reactor.ToolOption{reactor.WithTags("math")}, opts...)
	tools := make([]reactor.Tool, 0, len(operations))
	for _, op := range operations {
		t, err := reactor.NewTool(op.name, op.description, func(_ context.Context, args Operands) (string, error) {
			res, err := op.fn(args.A, args.B)
			if err != nil {
				return "", err
			}
			return Format(res), nil
		}, opts...)
		if err != nil {
			return nil, err
		}
		tools = append(tools, t)
	}
	return tools, nil
}

// Register adds the calculator tools to reg.
func Register(reg *reactor.Registry, opts ...reactor.ToolOption) error {
	tools, err := Tools(opts...)
	if err != nil {
		return err
	}
	for _, t := range tools {
		if err := reg.Register(t); err != nil {
			return err
		}
	}
	return nil
}

// Format renders n without rounding and without a trailing ".0" for integers.
func Format(n float64) string {
	return strconv.FormatFloat(n, 'f', -1, 64)
}
