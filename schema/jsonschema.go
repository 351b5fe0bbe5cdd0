package schema

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// JSONSchema derives the whole-object validation document: "required"
// lists the fields marked required, "properties" carries each field's
// validation fragment.
func (s *Schema) JSONSchema() map[string]any {
	properties := make(map[string]any, len(s.fields))
	var required []string
	for _, f := range s.fields {
		fragment := f.Validation
		if fragment == nil {
			fragment = map[string]any{}
		}
		properties[f.Name] = fragment
		if f.Required {
			required = append(required, f.Name)
		}
	}
	doc := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		doc["required"] = required
	}
	return doc
}

// DocumentValidator validates a serialized document against the derived
// JSON Schema. The document is normalized through encoding/json first so
// codec output types (ints, custom slices) validate like their wire form.
type DocumentValidator struct {
	schema *jsonschema.Schema
}

// Validate returns the schema violations for doc, or nil when it is valid.
func (v DocumentValidator) Validate(doc map[string]any) []Violation {
	raw, err := json.Marshal(doc)
	if err != nil {
		return []Violation{{Path: "/", Message: fmt.Sprintf("document not representable as JSON: %v", err)}}
	}
	var instance any
	if err := json.Unmarshal(raw, &instance); err != nil {
		return []Violation{{Path: "/", Message: err.Error()}}
	}
	err = v.schema.Validate(instance)
	if err == nil {
		return nil
	}
	ve, ok := err.(*jsonschema.ValidationError)
	if !ok {
		return []Violation{{Path: "/", Message: err.Error()}}
	}
	return collectViolations(ve, nil)
}

// collectViolations flattens the cause tree into its leaf constraints so
// every violated constraint is reported.
func collectViolations(e *jsonschema.ValidationError, out []Violation) []Violation {
	if len(e.Causes) == 0 {
		path := e.InstanceLocation
		if path == "" {
			path = "/"
		}
		return append(out, Violation{Path: path, Message: e.Message})
	}
	for _, cause := range e.Causes {
		out = collectViolations(cause, out)
	}
	return out
}

// Violation is one violated constraint from whole-object validation.
type Violation struct {
	// Path locates the offending value within the document.
	Path string

	// Message describes the violated constraint.
	Message string
}

func (v Violation) String() string {
	return fmt.Sprintf("%s: %s", v.Path, v.Message)
}

// Validator compiles (once per schema value) and returns the whole-object
// validator.
func (s *Schema) Validator() (DocumentValidator, error) {
	s.validator.once.Do(func() {
		raw, err := json.Marshal(s.JSONSchema())
		if err != nil {
			s.validator.err = fmt.Errorf("schema: marshal validation document: %w", err)
			return
		}
		compiler := jsonschema.NewCompiler()
		url := "schema.json"
		if err := compiler.AddResource(url, bytes.NewReader(raw)); err != nil {
			s.validator.err = fmt.Errorf("schema: load validation document: %w", err)
			return
		}
		compiled, err := compiler.Compile(url)
		if err != nil {
			s.validator.err = fmt.Errorf("schema: compile validation document: %w", err)
			return
		}
		s.validator.compiled = DocumentValidator{schema: compiled}
	})
	return s.validator.compiled, s.validator.err
}
