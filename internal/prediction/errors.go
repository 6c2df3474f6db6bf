package prediction

import (
	"errors"
	"strings"
)

// Validation error codes.
const (
	CodeRequired = "required"
	CodeType     = "type"
	CodeRange    = "range"
)

// ErrValidation is matched by every *ValidationError via errors.Is.
var ErrValidation = errors.New("validation failed")

// FieldError describes a single rejected field.
type FieldError struct {
	Field   string
	Code    string
	Message string
}

// ValidationError is the only error the prediction core surfaces to callers.
// Fields keep the order in which the checks ran.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	if missing := e.fieldsWithCode(CodeRequired); len(missing) > 0 && len(missing) == len(e.Fields) {
		return "Missing required fields: " + strings.Join(missing, ", ")
	}

	msgs := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		msgs = append(msgs, f.Message)
	}
	return strings.Join(msgs, "; ")
}

// Is lets errors.Is(err, ErrValidation) match.
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// FieldNames returns the rejected field names in check order.
func (e *ValidationError) FieldNames() []string {
	names := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		names = append(names, f.Field)
	}
	return names
}

func (e *ValidationError) fieldsWithCode(code string) []string {
	var names []string
	for _, f := range e.Fields {
		if f.Code == code {
			names = append(names, f.Field)
		}
	}
	return names
}

func (e *ValidationError) add(field, code, message string) {
	e.Fields = append(e.Fields, FieldError{Field: field, Code: code, Message: message})
}

func (e *ValidationError) orNil() error {
	if len(e.Fields) == 0 {
		return nil
	}
	return e
}
