package protocol

import (
	"errors"
	"fmt"
)

// SchemaError reports an inbound message that failed validation. Reason is
// replayed verbatim to the agent, so its wording must stay stable.
type SchemaError struct {
	Reason string
}

func (e *SchemaError) Error() string {
	return "out of schema request: " + e.Reason
}

func schemaErrorf(format string, args ...any) *SchemaError {
	return &SchemaError{Reason: fmt.Sprintf(format, args...)}
}

// AsSchemaError unwraps err into a SchemaError.
func AsSchemaError(err error) (*SchemaError, bool) {
	var se *SchemaError
	if errors.As(err, &se) {
		return se, true
	}
	return nil, false
}

var (
	// ErrUnsupportedConfiguration is returned before any turn when a database
	// type, agent type, model or credential set has no registered mapping.
	ErrUnsupportedConfiguration = errors.New("unsupported configuration")

	// ErrNonTermination is returned when the agent does not send the terminal
	// message within the turn bound.
	ErrNonTermination = errors.New("agent did not finish within the turn limit")

	// ErrUnsupportedModel is wrapped by transports when the provider rejects
	// the model identifier.
	ErrUnsupportedModel = errors.New("unsupported model")
)

// TransportFailure is a fatal agent or database connectivity failure.
type TransportFailure struct {
	// Component is "agent" or "database".
	Component string
	Err       error
}

const (
	ComponentAgent    = "agent"
	ComponentDatabase = "database"
)

func (e *TransportFailure) Error() string {
	return fmt.Sprintf("%s transport failure: %v", e.Component, e.Err)
}

func (e *TransportFailure) Unwrap() error { return e.Err }

// IsTransportFailure reports whether err is or wraps a TransportFailure.
func IsTransportFailure(err error) bool {
	var tf *TransportFailure
	return errors.As(err, &tf)
}
