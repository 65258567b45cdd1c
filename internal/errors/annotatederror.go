package errors

import (
	"errors"
	"fmt"
	"log/slog"
	"runtime"
)

// AnnotatedError includes more context than a plain error that is useful for troubleshooting.
type AnnotatedError struct {
	// msg is the error message.
	msg string
	// pc is the program counter for the location of the error provided by runtime.Callers.
	pc uintptr
	// attrs are slog attributes that are added to the log event to provide more context for the error.
	attrs []slog.Attr
	// err is the wrapped error, if any.
	err error
}

func newAnnotated(skip int, err error, msg string, attrs []slog.Attr) *AnnotatedError {
	var pcs [1]uintptr
	runtime.Callers(skip, pcs[:])
	return &AnnotatedError{
		msg:   msg,
		pc:    pcs[0],
		attrs: attrs,
		err:   err,
	}
}

// New creates a new AnnotatedError with the given message and attributes.
func New(msg string, attrs ...slog.Attr) error {
	// Skip runtime.Callers, newAnnotated and this function.
	return newAnnotated(3, nil, msg, attrs) //nolint:mnd // see above
}

// Wrap annotates err with a message describing what was being done and optional attributes.
//
// Returns nil if err is nil so that it can be used directly in return statements.
func Wrap(err error, msg string, attrs ...slog.Attr) error {
	if err == nil {
		return nil
	}
	return newAnnotated(3, err, msg, attrs) //nolint:mnd // skip runtime.Callers, newAnnotated and Wrap.
}

// NewSentinel creates a plain error without other context that can be used as sentinel error that can be
// detected with errors.Is.
func NewSentinel(msg string) error {
	return errors.New(msg)
}

// Error implements error interface.
func (err *AnnotatedError) Error() string {
	if err.err == nil {
		return err.msg
	}
	return fmt.Sprintf("%s: %s", err.msg, err.err.Error())
}

// Unwrap returns the wrapped error.
func (err *AnnotatedError) Unwrap() error {
	return err.err
}

// LogValue formats the error for useful logging.
func (err *AnnotatedError) LogValue() slog.Value {
	// Retrieve the source location of the error so that developers can locate it faster.
	frames := runtime.CallersFrames([]uintptr{err.pc})
	source, _ := frames.Next()
	sourceAttr := slog.String("source", fmt.Sprintf("%s:%d", source.File, source.Line))

	attrs := append(
		[]slog.Attr{sourceAttr},
		err.attrs...,
	)

	return slog.GroupValue(attrs...)
}

// SlogError returns a slog attribute for err that contains the error message and the attributes of every
// AnnotatedError in the wrap chain.
func SlogError(err error) slog.Attr {
	if err == nil {
		return slog.String("error", "<nil>")
	}
	attrs := []slog.Attr{slog.String("message", err.Error())}
	depth := 0
	for current := err; current != nil; current = errors.Unwrap(current) {
		var annotated *AnnotatedError
		if annotated, _ = current.(*AnnotatedError); annotated != nil {
			attrs = append(attrs, slog.Any(fmt.Sprintf("annotation_%d", depth), annotated.LogValue()))
			depth++
		}
	}
	return slog.Attr{Key: "error", Value: slog.GroupValue(attrs...)}
}

// As exposes stdlib errors.As.
func As(err error, target any) bool {
	return errors.As(err, target)
}

// Is exposes stdlib errors.Is.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// Join exposes stdlib errors.Join.
func Join(errs ...error) error {
	return errors.Join(errs...)
}

// Unwrap exposes stdlib errors.Unwrap.
func Unwrap(err error) error {
	return errors.Unwrap(err)
}
