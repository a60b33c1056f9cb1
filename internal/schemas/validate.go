// Package schemas validates model payloads and CV documents against the JSON Schemas
// embedded in the binary.
package schemas

import (
	"embed"
	"fmt"
	"strings"
	"sync"

	"github.com/xeipuuv/gojsonschema"
)

// Embedded schema names.
const (
	PatchSchema    = "cv_patch.schema.json"
	DocumentSchema = "cv_document.schema.json"
)

//go:embed *.schema.json
var schemaFiles embed.FS

var (
	compiled   = make(map[string]*gojsonschema.Schema)
	compiledMu sync.Mutex
)

// ValidationError lists every schema violation found in a document.
type ValidationError struct {
	Schema string
	Errors []FieldError
}

// FieldError is one violation at a field path.
type FieldError struct {
	Field   string
	Message string
}

func (ve *ValidationError) Error() string {
	var sb strings.Builder
	sb.WriteString("validation failed")
	if ve.Schema != "" {
		sb.WriteString(" against " + ve.Schema)
	}
	sb.WriteString(":")
	for i, err := range ve.Errors {
		sb.WriteString(fmt.Sprintf(" %d. %s: %s;", i+1, err.Field, err.Message))
	}
	return strings.TrimSuffix(sb.String(), ";")
}

// SchemaLoadError reports a schema that could not be read or compiled.
type SchemaLoadError struct {
	Path    string
	Message string
	Cause   error
}

func (e *SchemaLoadError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("failed to load schema %s: %s: %v", e.Path, e.Message, e.Cause)
	}
	return fmt.Sprintf("failed to load schema %s: %s", e.Path, e.Message)
}

func (e *SchemaLoadError) Unwrap() error {
	return e.Cause
}

// ValidatePatch checks a decoded model payload against the patch schema.
func ValidatePatch(raw []byte) error {
	return Validate(PatchSchema, raw)
}

// ValidateDocument checks a full CV document, such as one read from a file.
func ValidateDocument(raw []byte) error {
	return Validate(DocumentSchema, raw)
}

// Validate checks raw JSON against one of the embedded schemas.
func Validate(name string, raw []byte) error {
	schema, err := load(name)
	if err != nil {
		return err
	}

	result, err := schema.Validate(gojsonschema.NewBytesLoader(raw))
	if err != nil {
		return &ValidationError{
			Schema: name,
			Errors: []FieldError{{Field: "(root)", Message: "document is not valid JSON: " + err.Error()}},
		}
	}
	if result.Valid() {
		return nil
	}

	validationErr := &ValidationError{
		Schema: name,
		Errors: make([]FieldError, 0, len(result.Errors())),
	}
	for _, desc := range result.Errors() {
		field := desc.Field()
		if field == "" {
			field = "(root)"
		}
		validationErr.Errors = append(validationErr.Errors, FieldError{
			Field:   field,
			Message: desc.Description(),
		})
	}
	return validationErr
}

func load(name string) (*gojsonschema.Schema, error) {
	compiledMu.Lock()
	defer compiledMu.Unlock()

	if s, ok := compiled[name]; ok {
		return s, nil
	}

	data, err := schemaFiles.ReadFile(name)
	if err != nil {
		return nil, &SchemaLoadError{Path: name, Message: "not embedded", Cause: err}
	}
	s, err := gojsonschema.NewSchema(gojsonschema.NewBytesLoader(data))
	if err != nil {
		return nil, &SchemaLoadError{Path: name, Message: "schema does not compile", Cause: err}
	}
	compiled[name] = s
	return s, nil
}
