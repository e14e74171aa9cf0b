package validation

import (
	"fmt"
	"sort"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// RecordSchema accepts a flat JSON object whose values are primitives. Nested objects and
// arrays have no encoding in the training pipeline, so they are rejected at the boundary.
const RecordSchema = `{
  "type": "object",
  "additionalProperties": {
    "type": ["string", "number", "integer", "boolean", "null"]
  }
}`

type ValidationResult struct {
	Valid  bool              `json:"valid"`
	Errors []ValidationError `json:"errors,omitempty"`
}

type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

// Validator checks documents against one compiled JSON schema. Safe for concurrent use.
type Validator struct {
	schema *gojsonschema.Schema
}

// Compile parses schemaJSON once for reuse.
func Compile(schemaJSON string) (*Validator, error) {
	schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(schemaJSON))
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	return &Validator{schema: schema}, nil
}

func MustCompile(schemaJSON string) *Validator {
	v, err := Compile(schemaJSON)
	if err != nil {
		panic(err)
	}
	return v
}

// NewRecordValidator returns a Validator for RecordSchema.
func NewRecordValidator() *Validator {
	return MustCompile(RecordSchema)
}

// ValidateBytes validates raw JSON. The error is non-nil only when data is not JSON.
func (v *Validator) ValidateBytes(data []byte) (*ValidationResult, error) {
	return v.validate(gojsonschema.NewBytesLoader(data))
}

// ValidateInput validates an already decoded document.
func (v *Validator) ValidateInput(doc interface{}) (*ValidationResult, error) {
	return v.validate(gojsonschema.NewGoLoader(doc))
}

func (v *Validator) validate(loader gojsonschema.JSONLoader) (*ValidationResult, error) {
	result, err := v.schema.Validate(loader)
	if err != nil {
		return nil, fmt.Errorf("validation error: %w", err)
	}

	out := &ValidationResult{Valid: result.Valid()}
	for _, desc := range result.Errors() {
		out.Errors = append(out.Errors, ValidationError{
			Field:   desc.Field(),
			Message: desc.Description(),
			Code:    strings.ToUpper(desc.Type()),
		})
	}
	sort.SliceStable(out.Errors, func(i, j int) bool {
		return out.Errors[i].Field < out.Errors[j].Field
	})
	return out, nil
}

// Fields returns the distinct offending field names, sorted.
func (vr *ValidationResult) Fields() []string {
	seen := make(map[string]bool, len(vr.Errors))
	var fields []string
	for _, err := range vr.Errors {
		if !seen[err.Field] {
			seen[err.Field] = true
			fields = append(fields, err.Field)
		}
	}
	return fields
}

// GetErrorMessages returns a simple list of error messages
func (vr *ValidationResult) GetErrorMessages() []string {
	messages := make([]string, len(vr.Errors))
	for i, err := range vr.Errors {
		messages[i] = fmt.Sprintf("%s: %s", err.Field, err.Message)
	}
	return messages
}

// HasErrors checks if validation has errors for specific field
func (vr *ValidationResult) HasErrors(field string) bool {
	for _, err := range vr.Errors {
		if err.Field == field {
			return true
		}
	}
	return false
}
