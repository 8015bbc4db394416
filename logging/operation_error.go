package logging

import (
	"strings"

	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// OperationError ties a failure to the operation, and optionally the stage of
// that operation, during which it happened.
type OperationError struct {
	Operation string
	// Stage is the step that failed, such as "decode" or "forward". May be empty.
	Stage     string
	RequestID string
	Err       error
}

// Error renders "operation[stage] (request_id=id): cause", leaving out the
// parts that are not set.
func (e *OperationError) Error() string {
	if e == nil || e.Err == nil {
		return ""
	}
	var b strings.Builder
	b.WriteString(e.Operation)
	if e.Stage != "" {
		b.WriteString("[" + e.Stage + "]")
	}
	if e.RequestID != "" {
		b.WriteString(" (request_id=" + e.RequestID + ")")
	}
	b.WriteString(": ")
	b.WriteString(e.Err.Error())
	return b.String()
}

func (e *OperationError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Fields returns the operation and stage as log fields.
func (e *OperationError) Fields() []zap.Field {
	fields := []zap.Field{zap.String(OperationKey, e.Operation)}
	if e.Stage != "" {
		fields = append(fields, zap.String(StageKey, e.Stage))
	}
	return fields
}

// NewOperationError wraps err with the operation and request it belongs to.
// A nil err stays nil.
func NewOperationError(operation, requestID string, err error) error {
	return NewStageError(operation, "", requestID, err)
}

// NewStageError is NewOperationError for a failure inside a named stage.
func NewStageError(operation, stage, requestID string, err error) error {
	if err == nil {
		return nil
	}
	return &OperationError{Operation: operation, Stage: stage, RequestID: requestID, Err: err}
}

// ErrorFields returns the fields of the outermost OperationError in err's
// chain, or nil when there is none.
func ErrorFields(err error) []zap.Field {
	var opErr *OperationError
	if !errors.As(err, &opErr) {
		return nil
	}
	return opErr.Fields()
}
