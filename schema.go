package reactor

import (
	"bytes"
	"cmp"
	"encoding/json"
	"errors"
	"maps"
	"reflect"
	"slices"
	"strings"
	"sync"

	"github.com/invopop/jsonschema"
	validator "github.com/santhosh-tekuri/jsonschema/v6"
)

var (
	customTypesMu sync.RWMutex
	customTypes   = make(map[reflect.Type]*jsonschema.Schema)
)

// RegisterType maps a custom Go type to a JSON Schema type and format in generated schemas.
// emptyInstance must not be nil and jsonType must not be empty. Pointer fields (*T) use
// the mapping registered for T. Call it at startup, before the first NewTool.
func RegisterType(emptyInstance any, jsonType, format string) {
	if emptyInstance == nil {
		panic("reactor: RegisterType emptyInstance must not be nil")
	}
	if jsonType == "" {
		panic("reactor: RegisterType jsonType must not be empty")
	}
	t := reflect.TypeOf(emptyInstance)
	s := &jsonschema.Schema{Type: jsonType, Format: format}
	customTypesMu.Lock()
	defer customTypesMu.Unlock()
	customTypes[t] = s
}

func customTypeMapper(t reflect.Type) *jsonschema.Schema {
	customTypesMu.RLock()
	defer customTypesMu.RUnlock()
	s, ok := customTypes[t]
	if !ok {
		return nil
	}
	return &jsonschema.Schema{Type: s.Type, Format: s.Format}
}

// generatedSchema is everything derived from an argument type once, when the tool is built.
type generatedSchema struct {
	schema   map[string]any
	order    []string
	compiled *validator.Schema
}

// generateSchema reflects T into a JSON Schema map, compiles a validator for it and
// records the declared field order for positional binding.
func generateSchema[T any](strict bool) (*generatedSchema, error) {
	typ := reflect.TypeFor[T]()
	r := &jsonschema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true,
		Mapper:                    customTypeMapper,
	}
	s := r.ReflectFromType(typ)
	if s == nil {
		return nil, errNilSchema
	}
	data, err := json.Marshal(s)
	if err != nil {
		return nil, err
	}
	var schemaMap map[string]any
	if err := json.Unmarshal(data, &schemaMap); err != nil {
		return nil, err
	}
	enrichSchemaFromStructTags(schemaMap, typ)
	if strict {
		applyStrictMode(schemaMap)
	}
	stripSchemaIDs(schemaMap)
	compiled, err := compileRawSchema(schemaMap)
	if err != nil {
		return nil, err
	}
	return &generatedSchema{
		schema:   schemaMap,
		order:    fieldOrder(typ),
		compiled: compiled,
	}, nil
}

// jsonFieldName is the property name encoding/json uses for field, or "" when the
// field is not serialized.
func jsonFieldName(field reflect.StructField) string {
	if !field.IsExported() {
		return ""
	}
	name, _, _ := strings.Cut(field.Tag.Get("json"), ",")
	if name == "-" {
		return ""
	}
	return cmp.Or(name, field.Name)
}

// structType unwraps one pointer level and reports whether typ is a struct.
func structType(typ reflect.Type) (reflect.Type, bool) {
	if typ != nil && typ.Kind() == reflect.Pointer {
		typ = typ.Elem()
	}
	return typ, typ != nil && typ.Kind() == reflect.Struct
}

// fieldOrder lists the top-level JSON names of typ in declaration order.
func fieldOrder(typ reflect.Type) []string {
	st, ok := structType(typ)
	if !ok {
		return nil
	}
	var order []string
	for field := range fieldsOf(st) {
		if name := jsonFieldName(field); name != "" {
			order = append(order, name)
		}
	}
	return order
}

func fieldsOf(st reflect.Type) func(yield func(reflect.StructField) bool) {
	return func(yield func(reflect.StructField) bool) {
		for i := range st.NumField() {
			if !yield(st.Field(i)) {
				return
			}
		}
	}
}

// enrichSchemaFromStructTags copies the plain `description:"..."` and
// `enum:"a, b"` tags onto top-level properties.
func enrichSchemaFromStructTags(schemaMap map[string]any, typ reflect.Type) {
	st, ok := structType(typ)
	if !ok {
		return
	}
	props, _ := schemaMap["properties"].(map[string]any)
	for field := range fieldsOf(st) {
		prop, ok := props[jsonFieldName(field)].(map[string]any)
		if !ok {
			continue
		}
		if desc, ok := field.Tag.Lookup("description"); ok && desc != "" {
			prop["description"] = desc
		}
		if values := field.Tag.Get("enum"); values != "" {
			var enum []any
			for v := range strings.SplitSeq(values, ",") {
				enum = append(enum, strings.TrimSpace(v))
			}
			prop["enum"] = enum
		}
	}
}

// walkSchema calls visit on every object node of the schema tree, parents first.
func walkSchema(schemaMap map[string]any, visit func(map[string]any)) {
	if schemaMap == nil {
		return
	}
	visit(schemaMap)
	for _, child := range schemaMap {
		switch c := child.(type) {
		case map[string]any:
			walkSchema(c, visit)
		case []any:
			for _, item := range c {
				if m, ok := item.(map[string]any); ok {
					walkSchema(m, visit)
				}
			}
		}
	}
}

// applyStrictMode closes every object and requires all of its properties, sorted by name.
func applyStrictMode(schemaMap map[string]any) {
	walkSchema(schemaMap, func(n map[string]any) {
		props, ok := n["properties"].(map[string]any)
		if !ok {
			return
		}
		n["additionalProperties"] = false
		if len(props) == 0 {
			return
		}
		required := make([]any, 0, len(props))
		for _, name := range slices.Sorted(maps.Keys(props)) {
			required = append(required, name)
		}
		n["required"] = required
	})
}

var errNilSchema = errors.New("schema reflection returned nil")

// schemaResource names the in-memory document every tool schema compiles from.
const schemaResource = "tool.json"

// compileRawSchema compiles schemaMap without mutating it.
func compileRawSchema(schemaMap map[string]any) (*validator.Schema, error) {
	data, err := json.Marshal(schemaMap)
	if err != nil {
		return nil, err
	}
	doc, err := validator.UnmarshalJSON(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	c := validator.NewCompiler()
	if err := c.AddResource(schemaResource, doc); err != nil {
		return nil, err
	}
	return c.Compile(schemaResource)
}

// stripSchemaIDs drops $schema and every string-valued id or $id so compilation
// never resolves external URLs. A property that happens to be named "id" is kept.
func stripSchemaIDs(schemaMap map[string]any) {
	delete(schemaMap, "$schema")
	walkSchema(schemaMap, func(n map[string]any) {
		for _, key := range []string{"id", "$id"} {
			if _, isString := n[key].(string); isString {
				delete(n, key)
			}
		}
	})
}

// parameterOrder returns the order used to bind positional arguments for t.
// Explicit metadata wins; otherwise required properties come first in declared
// order, followed by the remaining properties sorted by name.
func parameterOrder(t Tool) []string {
	if tm, ok := t.(ToolMetadata); ok {
		if order := tm.ParameterOrder(); len(order) > 0 {
			return order
		}
	}
	schema := t.Parameters()
	var order []string
	seen := make(map[string]bool)
	if required, ok := schema["required"].([]any); ok {
		for _, r := range required {
			if name, ok := r.(string); ok && !seen[name] {
				order = append(order, name)
				seen[name] = true
			}
		}
	}
	if required, ok := schema["required"].([]string); ok {
		for _, name := range required {
			if !seen[name] {
				order = append(order, name)
				seen[name] = true
			}
		}
	}
	props, _ := schema["properties"].(map[string]any)
	rest := make([]string, 0, len(props))
	for name := range props {
		if !seen[name] {
			rest = append(rest, name)
		}
	}
	slices.Sort(rest)
	return append(order, rest...)
}
