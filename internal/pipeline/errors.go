package pipeline

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

type ErrorType int

const (
	ErrUnsafeInput ErrorType = iota
	ErrUnsafeGenerated
	ErrTranscriptionTimeout
	ErrTranscription
	ErrValidation
	ErrGeneration
	ErrUnknownJob
	ErrConfig
	ErrUnknown
)

// Error is the pipeline's typed error. Only the input side (transcription,
// validation, safety) ever reaches a caller; generation failures are
// recorded on the record instead.
type Error struct {
	Type    ErrorType
	Message string
	Context map[string]any
	Cause   error
}

func NewError(errorType ErrorType, message string) *Error {
	return &Error{
		Type:    errorType,
		Message: message,
		Context: make(map[string]any),
	}
}

func NewErrorWithCause(errorType ErrorType, message string, cause error) *Error {
	return &Error{
		Type:    errorType,
		Message: message,
		Context: make(map[string]any),
		Cause:   cause,
	}
}

func (e *Error) Error() string {
	var parts []string
	parts = append(parts, fmt.Sprintf("[%s] %s", e.Type.String(), e.Message))

	if len(e.Context) > 0 {
		var ctxParts []string
		for k, v := range e.Context {
			ctxParts = append(ctxParts, fmt.Sprintf("%s=%v", k, v))
		}
		parts = append(parts, fmt.Sprintf("context: %s", strings.Join(ctxParts, ", ")))
	}

	if e.Cause != nil {
		parts = append(parts, fmt.Sprintf("cause: %v", e.Cause))
	}

	return strings.Join(parts, " | ")
}

func (e *Error) Unwrap() error {
	return e.Cause
}

func (e *Error) WithContext(key string, value any) *Error {
	e.Context[key] = value
	return e
}

func (t ErrorType) String() string {
	switch t {
	case ErrUnsafeInput:
		return "UnsafeInput"
	case ErrUnsafeGenerated:
		return "UnsafeGenerated"
	case ErrTranscriptionTimeout:
		return "TranscriptionTimeout"
	case ErrTranscription:
		return "Transcription"
	case ErrValidation:
		return "Validation"
	case ErrGeneration:
		return "Generation"
	case ErrUnknownJob:
		return "UnknownJob"
	case ErrConfig:
		return "Config"
	default:
		return "Unknown"
	}
}

// Code is the snake_case identifier used in JSON error bodies.
func (t ErrorType) Code() string {
	switch t {
	case ErrUnsafeInput:
		return "unsafe_input"
	case ErrUnsafeGenerated:
		return "unsafe_generated"
	case ErrTranscriptionTimeout:
		return "transcription_timeout"
	case ErrTranscription:
		return "transcription_failed"
	case ErrValidation:
		return "validation_error"
	case ErrGeneration:
		return "generation_failed"
	case ErrUnknownJob:
		return "unknown_job"
	case ErrConfig:
		return "config_error"
	default:
		return "internal_error"
	}
}

// HTTPStatus maps an error to the status the HTTP surface answers with.
// Unsafe input is a normal outcome and keeps 200.
func HTTPStatus(err error) int {
	var perr *Error
	if !errors.As(err, &perr) {
		return http.StatusInternalServerError
	}
	switch perr.Type {
	case ErrUnsafeInput:
		return http.StatusOK
	case ErrUnsafeGenerated:
		return http.StatusUnprocessableEntity
	case ErrValidation:
		return http.StatusBadRequest
	case ErrTranscriptionTimeout:
		return http.StatusGatewayTimeout
	case ErrTranscription:
		return http.StatusBadGateway
	case ErrUnknownJob:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func IsErrorType(err error, errorType ErrorType) bool {
	var perr *Error
	if errors.As(err, &perr) {
		return perr.Type == errorType
	}
	return false
}

// TypeOf returns the pipeline error type carried by err, or ErrUnknown.
func TypeOf(err error) ErrorType {
	var perr *Error
	if errors.As(err, &perr) {
		return perr.Type
	}
	return ErrUnknown
}

func WrapError(err error, errorType ErrorType, message string) *Error {
	return NewErrorWithCause(errorType, message, err)
}

// SafeExecute converts a panic in fn into an ErrUnknown error.
func SafeExecute(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = NewError(ErrUnknown, fmt.Sprintf("runtime error: %v", r))
		}
	}()

	return fn()
}
