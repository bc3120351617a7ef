// Package errors provides typed errors for bytesmap.
//
// Every error carries an ErrorType so callers can branch on the category
// with IsType, plus optional key-value details that LogFields turns into
// zap fields. Maps report overflow and type mismatch by panicking with an
// *Error; operators convert those back into returned errors with Recover.
package errors

import (
	"errors"
	"fmt"
	"runtime"
	"sort"

	"go.uber.org/zap"
)

// ErrorType is the category of an error
type ErrorType string

const (
	ErrorTypeInternal   ErrorType = "internal"
	ErrorTypeValidation ErrorType = "validation"
	ErrorTypeConfig     ErrorType = "config"
	ErrorTypeData       ErrorType = "data"
	ErrorTypeFile       ErrorType = "file"
	// ErrorTypeTypeMismatch is an input array whose type does not match
	// the kind a map was built for.
	ErrorTypeTypeMismatch ErrorType = "type_mismatch"
	// ErrorTypeOverflow is a byte arena outgrowing its offset width.
	ErrorTypeOverflow ErrorType = "overflow"
	// ErrorTypeCanceled is work stopped by context cancellation.
	ErrorTypeCanceled ErrorType = "canceled"
)

const maxStackDepth = 32

// Error is a typed error with optional cause and details.
type Error struct {
	Type    ErrorType
	Message string
	Cause   error
	Details map[string]interface{}

	pcs []uintptr
}

// StackFrame is one resolved frame of the call stack recorded when an
// error was created.
type StackFrame struct {
	Function string
	File     string
	Line     int
}

func (e *Error) Error() string {
	if e.Cause == nil {
		return string(e.Type) + ": " + e.Message
	}
	return fmt.Sprintf("%s: %s: %v", e.Type, e.Message, e.Cause)
}

func (e *Error) Unwrap() error { return e.Cause }

// WithDetail records a key-value pair and returns e for chaining.
func (e *Error) WithDetail(key string, value interface{}) *Error {
	if e.Details == nil {
		e.Details = make(map[string]interface{}, 2)
	}
	e.Details[key] = value
	return e
}

// StackTrace resolves the frames recorded when the error was created.
func (e *Error) StackTrace() []StackFrame {
	if len(e.pcs) == 0 {
		return nil
	}
	out := make([]StackFrame, 0, len(e.pcs))
	frames := runtime.CallersFrames(e.pcs)
	for {
		f, more := frames.Next()
		out = append(out, StackFrame{Function: f.Function, File: f.File, Line: f.Line})
		if !more {
			return out
		}
	}
}

func newError(errType ErrorType, message string, cause error) *Error {
	e := &Error{Type: errType, Message: message, Cause: cause}
	var inner *Error
	if cause != nil && errors.As(cause, &inner) {
		// keep the stack of the point where the failure started
		e.pcs = inner.pcs
		return e
	}
	pcs := make([]uintptr, maxStackDepth)
	// skip runtime.Callers, newError and the exported constructor
	n := runtime.Callers(3, pcs)
	e.pcs = pcs[:n]
	return e
}

// New creates an error of the given type.
func New(errType ErrorType, message string) *Error {
	return newError(errType, message, nil)
}

// Newf creates an error with a formatted message.
func Newf(errType ErrorType, format string, args ...interface{}) *Error {
	return newError(errType, fmt.Sprintf(format, args...), nil)
}

// Wrap annotates err with a type and message. It returns nil for a nil err.
func Wrap(err error, errType ErrorType, message string) *Error {
	if err == nil {
		return nil
	}
	return newError(errType, message, err)
}

// Wrapf is Wrap with a formatted message.
func Wrapf(err error, errType ErrorType, format string, args ...interface{}) *Error {
	if err == nil {
		return nil
	}
	return newError(errType, fmt.Sprintf(format, args...), err)
}

// IsType reports whether the outermost *Error in err's chain has type t.
func IsType(err error, t ErrorType) bool {
	var e *Error
	return errors.As(err, &e) && e.Type == t
}

// GetType returns the type of a structured error, or ErrorTypeInternal
// for anything else.
func GetType(err error) ErrorType {
	var e *Error
	if errors.As(err, &e) {
		return e.Type
	}
	return ErrorTypeInternal
}

// LogFields returns zap fields describing err: the error itself, its type
// and its details in key order.
func LogFields(err error) []zap.Field {
	if err == nil {
		return nil
	}
	fields := []zap.Field{zap.Error(err), zap.String("error_type", string(GetType(err)))}

	var e *Error
	if !errors.As(err, &e) || len(e.Details) == 0 {
		return fields
	}
	keys := make([]string, 0, len(e.Details))
	for k := range e.Details {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fields = append(fields, zap.Any(k, e.Details[k]))
	}
	return fields
}

// Recover converts a panic carrying an error into a returned error. It is
// meant to be deferred at operator boundaries:
//
//	defer errors.Recover(&err)
//
// Panics with non-error values are re-raised.
func Recover(errp *error) {
	r := recover()
	if r == nil {
		return
	}
	err, ok := r.(error)
	if !ok {
		panic(r)
	}
	if errp != nil {
		*errp = err
	}
}

// Is reports whether any error in err's tree matches target
func Is(err, target error) bool { return errors.Is(err, target) }

// As finds the first error in err's tree that matches target
func As(err error, target interface{}) bool { return errors.As(err, target) }
