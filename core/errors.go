package core

import (
	"errors"
	"fmt"
)

// Sentinel errors for each failure kind. Typed errors unwrap to one of these.
var (
	ErrSchema         = errors.New("schema error")
	ErrValidation     = errors.New("validation error")
	ErrInjectionGuard = errors.New("injection guard")
	ErrDriver         = errors.New("driver error")
)

// DriverErrorPrefix prefixes every driver failure message.
const DriverErrorPrefix = "Database Error: "

type ErrorKind int

const (
	NoError ErrorKind = iota
	SchemaKind
	ValidationKind
	InjectionGuardKind
	DriverKind
	UnknownKind
)

func (kind ErrorKind) String() string {
	switch kind {
	case NoError:
		return "none"
	case SchemaKind:
		return "schema"
	case ValidationKind:
		return "validation"
	case InjectionGuardKind:
		return "injection_guard"
	case DriverKind:
		return "driver"
	default:
		return "unknown"
	}
}

// KindOf classifies err by the sentinel it wraps.
func KindOf(err error) ErrorKind {
	switch {
	case err == nil:
		return NoError
	case errors.Is(err, ErrSchema):
		return SchemaKind
	case errors.Is(err, ErrValidation):
		return ValidationKind
	case errors.Is(err, ErrInjectionGuard):
		return InjectionGuardKind
	case errors.Is(err, ErrDriver):
		return DriverKind
	default:
		return UnknownKind
	}
}

// SchemaError reports a table or column that does not exist.
// An empty Column means the table itself was not found.
type SchemaError struct {
	Table  string
	Column string
	Err    error
}

func (e *SchemaError) Error() string {
	if e.Column == "" {
		if e.Err != nil {
			return fmt.Sprintf("table %s: %v", e.Table, e.Err)
		}
		return fmt.Sprintf("table not found: %s", e.Table)
	}
	return fmt.Sprintf("column not found: %s.%s", e.Table, e.Column)
}

func (e *SchemaError) Unwrap() []error {
	if e.Err != nil {
		return []error{ErrSchema, e.Err}
	}
	return []error{ErrSchema}
}

// ValidationError reports a structurally invalid request or feed.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("validation failed for %s: %s", e.Field, e.Message)
	}
	return fmt.Sprintf("validation failed: %s", e.Message)
}

func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

// InjectionGuardError reports a forbidden backtick in raw feed text.
type InjectionGuardError struct {
	Offset int
}

func (e *InjectionGuardError) Error() string {
	return fmt.Sprintf("` is not allowed in feed (offset %d): suspected SQL injection, feed not processed", e.Offset)
}

func (e *InjectionGuardError) Unwrap() error {
	return ErrInjectionGuard
}

// DriverError wraps a failure raised by the database driver.
type DriverError struct {
	Statement string
	Err       error
}

func (e *DriverError) Error() string {
	return DriverErrorPrefix + e.Err.Error()
}

func (e *DriverError) Unwrap() []error {
	return []error{ErrDriver, e.Err}
}

func NewValidationError(field, format string, args ...any) error {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

func NewTableNotFound(table string) error {
	return &SchemaError{Table: table}
}

func NewColumnNotFound(table, column string) error {
	return &SchemaError{Table: table, Column: column}
}
