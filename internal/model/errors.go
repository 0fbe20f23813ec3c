package model

import (
	"context"
	"errors"
	"os"
)

// Fitting errors. All of them are isolated per source by the batch engine.
var (
	// ErrSchema is returned when a source lacks the required columns or its
	// time axis is not monotonic.
	ErrSchema = errors.New("schema error")

	// ErrInsufficientData is returned when too few samples survive windowing.
	ErrInsufficientData = errors.New("insufficient data")

	// ErrNoViableParameterization is returned when every amplitude alias failed.
	ErrNoViableParameterization = errors.New("no viable parameterization")

	// ErrSingularJacobian is returned when the damped normal equations could not
	// be solved at any damping level.
	ErrSingularJacobian = errors.New("singular jacobian")

	// ErrUnknownAlias is returned when a fitter is asked for a parameter name it
	// does not recognise.
	ErrUnknownAlias = errors.New("unknown parameter alias")

	// ErrEmptyBatch describes a run in which no source was recorded.
	// It is used for reporting; the batch engine never returns it.
	ErrEmptyBatch = errors.New("no source produced a result")
)

// Reason is a short, stable code describing why a source was skipped.
type Reason string

const (
	ReasonNone             Reason = ""
	ReasonSchema           Reason = "schema"
	ReasonInsufficientData Reason = "insufficient_data"
	ReasonNoViable         Reason = "no_viable_parameterization"
	ReasonSingular         Reason = "singular_jacobian"
	ReasonCanceled         Reason = "canceled"
	ReasonIO               Reason = "io"
	ReasonUnknown          Reason = "unknown"
)

// Classify maps an error to a Reason using sentinel errors only.
func Classify(err error) Reason {
	switch {
	case err == nil:
		return ReasonNone
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return ReasonCanceled
	case errors.Is(err, ErrSchema):
		return ReasonSchema
	case errors.Is(err, ErrInsufficientData):
		return ReasonInsufficientData
	case errors.Is(err, ErrNoViableParameterization):
		return ReasonNoViable
	case errors.Is(err, ErrSingularJacobian):
		return ReasonSingular
	}
	var perr *os.PathError
	if errors.As(err, &perr) {
		return ReasonIO
	}
	return ReasonUnknown
}
