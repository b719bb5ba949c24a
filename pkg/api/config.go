package api

import "fmt"

// ConfigErrorKind classifies a startup configuration failure.
type ConfigErrorKind string

const (
	// MissingField means a load-bearing value was empty.
	MissingField ConfigErrorKind = "MissingField"

	// DuplicateName means two named entries collide.
	DuplicateName ConfigErrorKind = "DuplicateName"

	// InsecureCorsCombination means a wildcard origin was paired with credentials.
	InsecureCorsCombination ConfigErrorKind = "InsecureCorsCombination"

	// InvalidValue means a value is present but unusable.
	InvalidValue ConfigErrorKind = "InvalidValue"
)

// ConfigError is returned by constructors that run at startup. It is always fatal.
type ConfigError struct {
	Kind    ConfigErrorKind
	Field   string
	Message string
}

// Sentinels for errors.Is. Only Kind is compared.
var (
	ErrMissingField            = &ConfigError{Kind: MissingField}
	ErrDuplicateName           = &ConfigError{Kind: DuplicateName}
	ErrInsecureCorsCombination = &ConfigError{Kind: InsecureCorsCombination}
	ErrInvalidValue            = &ConfigError{Kind: InvalidValue}
)

// NewConfigError creates a ConfigError for the given field.
func NewConfigError(kind ConfigErrorKind, field, message string) *ConfigError {
	return &ConfigError{Kind: kind, Field: field, Message: message}
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("config error %s: %s: %s", e.Kind, e.Field, e.Message)
	}
	return fmt.Sprintf("config error %s: %s", e.Kind, e.Message)
}

// Is reports whether target is a ConfigError of the same kind.
func (e *ConfigError) Is(target error) bool {
	t, ok := target.(*ConfigError)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}
