package reactor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"regexp"
	"slices"
	"time"
)

// toolNamePattern is the name shape every function-calling provider accepts.
var toolNamePattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

// tool backs every Tool built by NewTool and NewDynamicTool.
type tool struct {
	name        string
	description string
	schema      map[string]any
	run         func(context.Context, []byte) (string, error)
	opts        toolOptions
}

// NewTool builds a Tool from a typed handler. The argument schema is generated from T
// and arguments are validated before fn runs. The handler's result becomes the
// observation text: strings and byte slices verbatim, fmt.Stringer through String,
// anything else as JSON.
func NewTool[T any, R any](
	name, description string,
	fn func(ctx context.Context, args T) (R, error),
	opts ...ToolOption,
) (Tool, error) {
	if fn == nil {
		return nil, errors.New("tool handler must not be nil")
	}
	o, err := toolSetup(name, opts)
	if err != nil {
		return nil, err
	}
	ext, err := NewExtractor[T](o.strict)
	if err != nil {
		return nil, fmt.Errorf("schema for tool %s: %w", name, err)
	}
	if o.order == nil {
		o.order = ext.ParameterOrder()
	}
	return &tool{name: name, description: description, schema: ext.Schema(), opts: o,
		run: func(ctx context.Context, argsJSON []byte) (string, error) {
			args, err := ext.ParseAndValidate(argsJSON)
			if err != nil {
				return "", err
			}
			res, err := fn(ctx, args)
			if err != nil {
				return "", wrapHandlerError(name, err)
			}
			text, err := renderResult(res)
			if err != nil {
				return "", &HandlerError{Tool: name, Err: err}
			}
			return text, nil
		},
	}, nil
}

// NewDynamicTool builds a Tool from a raw JSON Schema, for tools whose arguments are
// only known at runtime. fn receives the validated arguments as a map. The caller's
// schema map is never modified.
func NewDynamicTool(
	name, description string,
	schemaMap map[string]any,
	fn func(ctx context.Context, args map[string]any) (string, error),
	opts ...ToolOption,
) (Tool, error) {
	switch {
	case schemaMap == nil:
		return nil, errors.New("dynamic schema map must not be nil")
	case fn == nil:
		return nil, errors.New("dynamic tool handler must not be nil")
	}
	o, err := toolSetup(name, opts)
	if err != nil {
		return nil, err
	}
	schema, err := cloneSchema(schemaMap)
	if err != nil {
		return nil, err
	}
	if o.strict {
		applyStrictMode(schema)
	}
	stripSchemaIDs(schema)
	compiled, err := compileRawSchema(schema)
	if err != nil {
		return nil, fmt.Errorf("compile schema for tool %s: %w", name, err)
	}
	return &tool{name: name, description: description, schema: schema, opts: o,
		run: func(ctx context.Context, argsJSON []byte) (string, error) {
			if err := validateArgsJSON(compiled, argsJSON); err != nil {
				return "", err
			}
			var args map[string]any
			if err := json.Unmarshal(argsJSON, &args); err != nil {
				return "", wrapJSONParseError(err)
			}
			res, err := fn(ctx, args)
			if err != nil {
				return "", wrapHandlerError(name, err)
			}
			return res, nil
		},
	}, nil
}

func checkToolName(name string) error {
	if !toolNamePattern.MatchString(name) {
		return fmt.Errorf("invalid tool name %q: use 1 to 64 letters, digits, '_' or '-'", name)
	}
	return nil
}

func toolSetup(name string, opts []ToolOption) (toolOptions, error) {
	var o toolOptions
	if err := checkToolName(name); err != nil {
		return o, err
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o, nil
}

// cloneSchema deep-copies a JSON Schema through its JSON form.
func cloneSchema(schemaMap map[string]any) (map[string]any, error) {
	data, err := json.Marshal(schemaMap)
	if err != nil {
		return nil, fmt.Errorf("copy schema map: %w", err)
	}
	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("copy schema map: %w", err)
	}
	return out, nil
}

func (t *tool) Name() string        { return t.name }
func (t *tool) Description() string { return t.description }

// Parameters returns a shallow copy of the schema; nested maps are shared.
func (t *tool) Parameters() map[string]any { return maps.Clone(t.schema) }

func (t *tool) Execute(ctx context.Context, argsJSON []byte) (string, error) {
	return t.run(ctx, argsJSON)
}

func (t *tool) Timeout() time.Duration   { return t.opts.timeout }
func (t *tool) Tags() []string           { return slices.Clone(t.opts.tags) }
func (t *tool) ParameterOrder() []string { return slices.Clone(t.opts.order) }

func renderResult(res any) (string, error) {
	switch v := res.(type) {
	case string:
		return v, nil
	case []byte:
		return string(v), nil
	case fmt.Stringer:
		return v.String(), nil
	}
	b, err := json.Marshal(res)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

var (
	_ Tool         = (*tool)(nil)
	_ ToolMetadata = (*tool)(nil)
)
