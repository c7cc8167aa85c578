// Package errors implements the error taxonomy shared by the NLU training and
// prediction pipelines.
package errors

import (
	"errors"
	"fmt"
)

// Kind classifies an error by how callers are expected to react to it.
type Kind int

const (
	// KindValidation indicates malformed input to a single call, such as a tag
	// range outside the utterance or parallel arrays of different length.
	// The call fails and shared state is left untouched.
	KindValidation Kind = iota

	// KindCancellation indicates a training run stopped at a cancellation
	// checkpoint. No model is installed.
	KindCancellation

	// KindDegraded indicates a prediction stage failed and the prediction was
	// downgraded to an errored result.
	KindDegraded

	// KindTraining indicates a training stage failed. The run still yields an
	// unsuccessful model record.
	KindTraining

	// KindStorage indicates a model artifact could not be read or written.
	KindStorage

	// KindNotFound indicates a model or predictor is missing.
	KindNotFound
)

var kindNames = map[Kind]string{
	KindValidation:   "validation",
	KindCancellation: "cancellation",
	KindDegraded:     "degraded",
	KindTraining:     "training",
	KindStorage:      "storage",
	KindNotFound:     "not_found",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "unknown"
}

// NLUError wraps an error with a kind and an optional stable code.
type NLUError struct {
	Kind       Kind
	Code       string
	Message    string
	Underlying error
	Context    map[string]string
}

// Error implements the error interface.
func (e *NLUError) Error() string {
	if e.Underlying != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Kind, e.Message, e.Underlying)
	}
	return fmt.Sprintf("[%s] %s", e.Kind, e.Message)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *NLUError) Unwrap() error {
	return e.Underlying
}

// Is matches on kind. When the target carries a code the codes must match too,
// so sentinels of the same kind stay distinguishable.
func (e *NLUError) Is(target error) bool {
	var ne *NLUError
	if !errors.As(target, &ne) {
		return false
	}
	if e.Kind != ne.Kind {
		return false
	}
	return ne.Code == "" || e.Code == ne.Code
}

// New creates a new NLUError with the given kind and message.
func New(kind Kind, message string, underlying error) *NLUError {
	return &NLUError{
		Kind:       kind,
		Message:    message,
		Underlying: underlying,
		Context:    make(map[string]string),
	}
}

func sentinel(kind Kind, code, message string) *NLUError {
	e := New(kind, message, nil)
	e.Code = code
	return e
}

// WithContext adds context key-value pairs to the error.
func (e *NLUError) WithContext(key, value string) *NLUError {
	e.Context[key] = value
	return e
}

// WithCode sets the code matched by errors.Is against sentinels.
func (e *NLUError) WithCode(code string) *NLUError {
	e.Code = code
	return e
}

// GetKind extracts the Kind from an error, defaulting to KindTraining.
func GetKind(err error) Kind {
	var ne *NLUError
	if errors.As(err, &ne) {
		return ne.Kind
	}
	return KindTraining
}

// IsCanceled reports whether err is a training cancellation.
func IsCanceled(err error) bool {
	var ne *NLUError
	return errors.As(err, &ne) && ne.Kind == KindCancellation
}

// IsValidation reports whether err is a validation failure.
func IsValidation(err error) bool {
	var ne *NLUError
	return errors.As(err, &ne) && ne.Kind == KindValidation
}

// Common sentinel errors.
var (
	// Validation errors
	ErrLengthMismatch = sentinel(KindValidation, "length_mismatch", "tokens, vectors and pos tags differ in length")
	ErrInvalidRange   = sentinel(KindValidation, "invalid_range", "tag range outside utterance")
	ErrInvalidInput   = sentinel(KindValidation, "invalid_input", "invalid input")

	// Cancellation
	ErrTrainingCanceled = sentinel(KindCancellation, "training_canceled", "training canceled")

	// Not found
	ErrModelNotFound = sentinel(KindNotFound, "model_not_found", "model not found")
	ErrNoModel       = sentinel(KindNotFound, "no_model", "no model loaded for language")
)

// Wrap wraps an error with a kind. Errors that already carry a kind keep it.
func Wrap(kind Kind, message string, err error) error {
	if err == nil {
		return nil
	}

	var ne *NLUError
	if errors.As(err, &ne) {
		return &NLUError{
			Kind:       ne.Kind,
			Code:       ne.Code,
			Message:    message,
			Underlying: err,
			Context:    ne.Context,
		}
	}

	return New(kind, message, err)
}

// Canceled builds a cancellation error carrying the stage that observed it.
func Canceled(stage string, cause error) error {
	e := New(KindCancellation, "training canceled", cause)
	e.Code = ErrTrainingCanceled.Code
	return e.WithContext("stage", stage)
}

// Validationf builds a validation error with the given code.
func Validationf(code, format string, args ...any) error {
	e := New(KindValidation, fmt.Sprintf(format, args...), nil)
	e.Code = code
	return e
}
