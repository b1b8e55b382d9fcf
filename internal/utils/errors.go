package utils

import (
	"errors"
	"fmt"
)

// Kind classifies failures by how the pipeline reacts to them.
type Kind string

const (
	// KindInvalidInput marks malformed events or arguments. Fails fast, never retried.
	KindInvalidInput Kind = "InvalidInput"
	// KindUpstreamUnavailable marks snapshot, history or time-series failures. Degrades to empty data.
	KindUpstreamUnavailable Kind = "UpstreamUnavailable"
	// KindDecisionUnavailable marks decision service failures. Degrades to an unknown root cause.
	KindDecisionUnavailable Kind = "DecisionUnavailable"
	// KindPartialStageFailure marks a failure isolated to one group or one metric.
	KindPartialStageFailure Kind = "PartialStageFailure"
	// KindInternal is anything unclassified.
	KindInternal Kind = "Internal"
)

// AppError wraps an operation, failure kind, human-facing message, and underlying error.
type AppError struct {
	Op   string
	Kind Kind
	Msg  string
	Err  error
}

func (e *AppError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Msg)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Msg, e.Err)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// NewAppError constructs an AppError.
func NewAppError(op string, kind Kind, msg string, err error) error {
	return &AppError{Op: op, Kind: kind, Msg: msg, Err: err}
}

// KindOf returns the kind of the outermost AppError in err's chain, or KindInternal.
func KindOf(err error) Kind {
	var appErr *AppError
	if errors.As(err, &appErr) && appErr.Kind != "" {
		return appErr.Kind
	}
	return KindInternal
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}
