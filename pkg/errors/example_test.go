// Package errors provides examples of structured error handling in bytesmap.
package errors_test

import (
	"fmt"
	"io"

	"github.com/ajitpratap0/bytesmap/pkg/errors"
)

// Example demonstrates basic error creation with details.
func Example() {
	err := errors.New(errors.ErrorTypeTypeMismatch, "unexpected input type").
		WithDetail("expected", "utf8").
		WithDetail("actual", "int64")

	fmt.Println(err.Error())

	// Output:
	// type_mismatch: unexpected input type
}

// ExampleWrap shows how to wrap existing errors with context.
func ExampleWrap() {
	err := errors.Wrap(io.ErrUnexpectedEOF, errors.ErrorTypeFile, "failed to read spill run").
		WithDetail("file", "run-0003.arrows")

	if errors.IsType(err, errors.ErrorTypeFile) {
		fmt.Println("This is a file error")
	}
	if errors.Is(err, io.ErrUnexpectedEOF) {
		fmt.Println("Caused by unexpected EOF")
	}

	// Output:
	// This is a file error
	// Caused by unexpected EOF
}

// ExampleRecover shows how a panic raised by a map is turned into an error
// at an operator boundary.
func ExampleRecover() {
	run := func() (err error) {
		defer errors.Recover(&err)
		panic(errors.New(errors.ErrorTypeOverflow, "arena exceeds int32 offsets"))
	}

	err := run()
	fmt.Println(errors.GetType(err))

	// Output:
	// overflow
}

// ExampleGetType demonstrates type lookup on plain and structured errors.
func ExampleGetType() {
	fmt.Println(errors.GetType(io.EOF))
	fmt.Println(errors.GetType(errors.Newf(errors.ErrorTypeConfig, "invalid partitions: %d", 0)))

	// Output:
	// internal
	// config
}
