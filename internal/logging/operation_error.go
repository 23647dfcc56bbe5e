package logging

import (
	"errors"
	"fmt"

	"go.uber.org/zap"
)

// OperationError tags an infrastructure failure with the step that produced
// it and the request it belonged to.
type OperationError struct {
	Operation string
	RequestID string
	Err       error
}

func (e *OperationError) Error() string {
	if e == nil || e.Err == nil {
		return ""
	}
	if e.RequestID != "" {
		return fmt.Sprintf("%s (request_id=%s): %v", e.Operation, e.RequestID, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Operation, e.Err)
}

func (e *OperationError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// NewOperationError wraps err. A nil err stays nil so call sites can wrap
// unconditionally.
func NewOperationError(operation, requestID string, err error) error {
	if err == nil {
		return nil
	}
	return &OperationError{Operation: operation, RequestID: requestID, Err: err}
}

// ErrorFields renders err for zap. When err carries an OperationError its
// operation and request id become separate fields.
func ErrorFields(err error) []zap.Field {
	var opErr *OperationError
	if !errors.As(err, &opErr) {
		return []zap.Field{zap.Error(err)}
	}
	fields := []zap.Field{
		zap.String("failed_operation", opErr.Operation),
		zap.NamedError("error", opErr.Err),
	}
	if opErr.RequestID != "" {
		fields = append(fields, zap.String("request_id", opErr.RequestID))
	}
	return fields
}
