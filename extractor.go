package reactor

import (
	"encoding/json"
	"maps"
	"reflect"
	"slices"

	validator "github.com/santhosh-tekuri/jsonschema/v6"
)

// Extractor turns raw JSON arguments into a typed T. It checks them against the
// schema generated from T, decodes them, and finally runs T's Validate method when
// T implements Validatable. NewTool is built on it; endpoints that want typed
// structured output can use it directly.
type Extractor[T any] struct {
	schema   map[string]any
	order    []string
	compiled *validator.Schema
}

// NewExtractor generates the schema for T. With strict set, every object is closed
// and every property required.
func NewExtractor[T any](strict bool) (*Extractor[T], error) {
	gen, err := generateSchema[T](strict)
	if err != nil {
		return nil, err
	}
	return &Extractor[T]{schema: gen.schema, order: gen.order, compiled: gen.compiled}, nil
}

// Schema returns a copy of the top level of the schema. Nested maps are shared and
// must be treated as read-only.
func (e *Extractor[T]) Schema() map[string]any { return maps.Clone(e.schema) }

// ParameterOrder lists T's JSON field names in declaration order.
func (e *Extractor[T]) ParameterOrder() []string { return slices.Clone(e.order) }

// ParseAndValidate returns the decoded arguments or a ClientError the model can act on.
func (e *Extractor[T]) ParseAndValidate(argsJSON []byte) (T, error) {
	var args T
	if err := validateArgsJSON(e.compiled, argsJSON); err != nil {
		return args, err
	}
	if err := json.Unmarshal(argsJSON, &args); err != nil {
		var zero T
		return zero, wrapJSONParseError(err)
	}
	if err := selfValidate(&args); err != nil {
		var zero T
		if IsClientError(err) {
			return zero, err
		}
		return zero, &ClientError{Reason: err.Error(), Err: ErrValidation}
	}
	return args, nil
}

// selfValidate runs Validate on *args, reaching value and pointer receivers alike.
// When T is itself a pointer the method is looked up on the pointed-to value.
func selfValidate[T any](args *T) error {
	if v, ok := any(*args).(Validatable); ok {
		if rv := reflect.ValueOf(*args); rv.Kind() == reflect.Pointer && rv.IsNil() {
			return nil
		}
		return v.Validate()
	}
	if reflect.TypeFor[T]().Kind() == reflect.Pointer {
		return nil
	}
	return validateCustom(any(args))
}
