// Package testutil provides testing utilities for bytesmap
package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
)

// TestLogger creates a test logger that writes to the test output.
func TestLogger(t *testing.T) *zap.Logger {
	return zaptest.NewLogger(t)
}

// TestContext creates a test context with a 30-second timeout.
// The caller must call the returned cancel function to avoid leaks.
func TestContext(_ *testing.T) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 30*time.Second)
}

// CheckedAllocator returns an allocator that fails the test if any of its
// allocations is still live when the test ends.
func CheckedAllocator(t *testing.T) *memory.CheckedAllocator {
	mem := memory.NewCheckedAllocator(memory.NewGoAllocator())
	t.Cleanup(func() { mem.AssertSize(t, 0) })
	return mem
}

// BuildArray builds a byte array of the given type. Each value is a string,
// a []byte, or nil for a null row.
func BuildArray(t testing.TB, mem memory.Allocator, dtype arrow.DataType, values ...interface{}) arrow.Array {
	t.Helper()

	bldr := array.NewBuilder(mem, dtype)
	defer bldr.Release()

	for _, v := range values {
		if v == nil {
			bldr.AppendNull()
			continue
		}
		var b []byte
		switch v := v.(type) {
		case string:
			b = []byte(v)
		case []byte:
			b = v
		default:
			t.Fatalf("unsupported value %T", v)
		}
		switch bb := bldr.(type) {
		case *array.StringBuilder:
			bb.Append(string(b))
		case *array.LargeStringBuilder:
			bb.Append(string(b))
		case *array.BinaryBuilder:
			bb.Append(b)
		default:
			t.Fatalf("unsupported builder %T for %s", bldr, dtype)
		}
	}
	return bldr.NewArray()
}

// Strings builds a String array from values, nil meaning null.
func Strings(t testing.TB, values ...interface{}) arrow.Array {
	return BuildArray(t, memory.DefaultAllocator, arrow.BinaryTypes.String, values...)
}

// Values decodes a byte array into strings, with nil for null rows.
func Values(t testing.TB, arr arrow.Array) []interface{} {
	t.Helper()

	out := make([]interface{}, arr.Len())
	for i := range out {
		if arr.IsNull(i) {
			continue
		}
		switch a := arr.(type) {
		case *array.String:
			out[i] = a.Value(i)
		case *array.LargeString:
			out[i] = a.Value(i)
		case *array.Binary:
			out[i] = string(a.Value(i))
		case *array.LargeBinary:
			out[i] = string(a.Value(i))
		default:
			t.Fatalf("unsupported array %T", arr)
		}
	}
	return out
}

// RequireEqualArrays fails the test immediately if the arrays differ.
func RequireEqualArrays(t testing.TB, expected, actual arrow.Array) {
	t.Helper()
	require.Truef(t, array.Equal(expected, actual), "expected %v, got %v", expected, actual)
}

// RequireNoError fails the test immediately if err is not nil.
// The msg parameter provides additional context in the failure message.
func RequireNoError(t *testing.T, err error, msg string) {
	t.Helper()
	if err != nil {
		t.Fatalf("%s: %v", msg, err)
	}
}
