package gate

import (
	"errors"
	"strings"
)

var (
	// ErrExchange indicates the code exchange failed at the transport level
	// or the token endpoint returned a non-success status.
	ErrExchange = errors.New("gate: code exchange failed")
	// ErrMissingTokenField indicates the exchange response lacked the
	// configured token field. This signals a provider or deployment
	// misconfiguration rather than a failed login attempt.
	ErrMissingTokenField = errors.New("gate: token field missing from exchange response")
)

// FieldError is a single configuration violation.
type FieldError struct {
	Field  string
	Reason string
}

// ConfigError reports every violated configuration field, not just the
// first, so a misconfigured deployment can be fixed in one pass.
type ConfigError struct {
	Fields []FieldError
}

func (e *ConfigError) add(field, reason string) {
	e.Fields = append(e.Fields, FieldError{Field: field, Reason: reason})
}

func (e *ConfigError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, f.Field+": "+f.Reason)
	}
	return "gate: invalid configuration: " + strings.Join(parts, "; ")
}

// Has reports whether the error names the given field.
func (e *ConfigError) Has(field string) bool {
	for _, f := range e.Fields {
		if f.Field == field {
			return true
		}
	}
	return false
}
