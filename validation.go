package reactor

import (
	"bytes"
	"errors"
	"strings"

	validator "github.com/santhosh-tekuri/jsonschema/v6"
)

// Validatable is implemented by argument structs that need business validation.
// Called after schema validation and unmarshaling.
type Validatable interface {
	Validate() error
}

// schemaValidator validates a decoded JSON value. *validator.Schema implements it.
type schemaValidator interface {
	Validate(v any) error
}

// validateArgsJSON parses argsJSON and runs schema validation on it. Parse and
// schema failures both come back as ClientError.
func validateArgsJSON(schema schemaValidator, argsJSON []byte) error {
	inst, err := validator.UnmarshalJSON(bytes.NewReader(argsJSON))
	if err != nil {
		return wrapJSONParseError(err)
	}
	return validateAgainstSchema(schema, inst)
}

// validateAgainstSchema runs schema validation on an already decoded value.
func validateAgainstSchema(schema schemaValidator, v any) error {
	if err := schema.Validate(v); err != nil {
		return &ClientError{Reason: validationReason(err), Err: ErrValidation}
	}
	return nil
}

// validationReason flattens a validator error into one line the model can read.
func validationReason(err error) string {
	var verr *validator.ValidationError
	if !errors.As(err, &verr) {
		return err.Error()
	}
	var parts []string
	for line := range strings.SplitSeq(verr.Error(), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "jsonschema validation failed") {
			continue
		}
		parts = append(parts, strings.TrimPrefix(line, "- "))
	}
	if len(parts) == 0 {
		return verr.Error()
	}
	return strings.Join(parts, "; ")
}

// validateCustom runs Validatable if args implements it.
func validateCustom(args any) error {
	if v, ok := args.(Validatable); ok {
		return v.Validate()
	}
	return nil
}
