package services

import (
	"errors"
	"fmt"

	"github.com/ekaya-inc/ekaya-analyst/pkg/apperrors"
)

// GenerationErrorKind classifies why no query could be generated.
type GenerationErrorKind string

const (
	// GenerationUnavailable means every model tier failed to answer.
	GenerationUnavailable GenerationErrorKind = "unavailable"
	// GenerationNoUsableOutput means a model answered but no response held a
	// JSON object with SQL in it.
	GenerationNoUsableOutput GenerationErrorKind = "no_usable_output"
)

// GenerationError ends a session in the generating stage.
type GenerationError struct {
	Kind  GenerationErrorKind
	Cause error
}

func (e *GenerationError) Error() string {
	msg := "the model did not return a usable query"
	if e.Kind == GenerationUnavailable {
		msg = "the language model is unavailable"
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	return msg
}

func (e *GenerationError) Unwrap() error { return e.Cause }

// Code is the stable error code carried by the failed event.
func (e *GenerationError) Code() string {
	return "generation_" + string(e.Kind)
}

// ExecutionErrorKind classifies why a generated query produced no result.
type ExecutionErrorKind string

const (
	// ExecutionRejected means static validation refused the query.
	ExecutionRejected ExecutionErrorKind = "rejected"
	// ExecutionTimeout means the store did not answer within the query timeout.
	ExecutionTimeout ExecutionErrorKind = "timeout"
	// ExecutionStoreRejected means the store raised a syntax or runtime error.
	ExecutionStoreRejected ExecutionErrorKind = "store_rejected"
)

// ExecutionError ends a session in the executing stage. Reason is set for
// rejections and holds the validator's reason code.
type ExecutionError struct {
	Kind    ExecutionErrorKind
	Reason  string
	Message string
	Cause   error
}

func (e *ExecutionError) Error() string {
	switch e.Kind {
	case ExecutionRejected:
		return fmt.Sprintf("query rejected (%s): %s", e.Reason, e.Message)
	case ExecutionTimeout:
		return "query timed out: " + e.Message
	default:
		return "store rejected the query: " + e.Message
	}
}

func (e *ExecutionError) Unwrap() error { return e.Cause }

// Code is the stable error code carried by the failed event.
func (e *ExecutionError) Code() string {
	return "execution_" + string(e.Kind)
}

// ErrorCode returns the stable code for err, or "internal" when err carries none.
func ErrorCode(err error) string {
	var coded interface{ Code() string }
	switch {
	case errors.As(err, &coded):
		return coded.Code()
	case errors.Is(err, apperrors.ErrInvalidInput):
		return CodeInvalidQuestion
	case errors.Is(err, apperrors.ErrStoreUnavailable):
		return CodeSchemaUnavailable
	}
	return "internal"
}
