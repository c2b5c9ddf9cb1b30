package models

import (
	"context"
	"errors"
	"fmt"
)

// Kind classifies a failure for retry and reporting decisions.
type Kind string

const (
	KindSensorTimeout     Kind = "SENSOR_TIMEOUT"
	KindSensorBlocked     Kind = "SENSOR_BLOCKED"
	KindAcquisitionFailed Kind = "ACQUISITION_FAILED"
	KindTransient         Kind = "TRANSIENT"
	KindAuthExpired       Kind = "AUTH_EXPIRED"
	KindFatal             Kind = "FATAL"
	KindMatchAnomaly      Kind = "MATCH_ANOMALY"
	KindPipelineTimeout   Kind = "PIPELINE_TIMEOUT"
	KindInterrupted       Kind = "INTERRUPTED"
)

// Error is a classified failure. Err keeps the underlying cause for errors.Is/As.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the underlying error for errors.Is/As support
func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error of the same kind, so errors.Is(err, ErrAuthExpired) works on wrapped values.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Message == "" && t.Err == nil && t.Kind == e.Kind
}

// Sentinels usable with errors.Is.
var (
	ErrSensorTimeout     = &Error{Kind: KindSensorTimeout}
	ErrSensorBlocked     = &Error{Kind: KindSensorBlocked}
	ErrAcquisitionFailed = &Error{Kind: KindAcquisitionFailed}
	ErrTransient         = &Error{Kind: KindTransient}
	ErrAuthExpired       = &Error{Kind: KindAuthExpired}
	ErrFatal             = &Error{Kind: KindFatal}
	ErrPipelineTimeout   = &Error{Kind: KindPipelineTimeout}
)

func NewError(kind Kind, err error, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Err: err}
}

func Transient(err error, format string, args ...interface{}) *Error {
	return NewError(KindTransient, err, format, args...)
}

func AuthExpired(err error, format string, args ...interface{}) *Error {
	return NewError(KindAuthExpired, err, format, args...)
}

func Fatal(err error, format string, args ...interface{}) *Error {
	return NewError(KindFatal, err, format, args...)
}

// KindOf returns the outermost classification in err's chain.
// Unclassified context deadlines count as transient; anything else unclassified is fatal.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var pe *PipelineError
	if errors.As(err, &pe) {
		return pe.Kind
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTransient
	}
	return KindFatal
}

// Stage names the pipeline step a terminal failure originated in.
type Stage string

const (
	StageValidate Stage = "validate"
	StageToken    Stage = "token"
	StageAcquire  Stage = "acquire"
	StageFetch    Stage = "fetch"
	StageMatch    Stage = "match"
)

// PipelineError is the single terminal failure value of a run.
type PipelineError struct {
	Stage Stage
	Kind  Kind
	Err   error
}

func (e *PipelineError) Error() string {
	return fmt.Sprintf("pipeline failed at %s (%s): %v", e.Stage, e.Kind, e.Err)
}

func (e *PipelineError) Unwrap() error {
	return e.Err
}

// IsPipelineError reports whether err carries a *PipelineError
func IsPipelineError(err error) (*PipelineError, bool) {
	var pe *PipelineError
	if errors.As(err, &pe) {
		return pe, true
	}
	return nil, false
}
