package errors

import (
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestWrapKeepsInnerStack(t *testing.T) {
	inner := New(ErrorTypeOverflow, "arena full")
	outer := Wrap(inner, ErrorTypeData, "insert failed")

	require.NotEmpty(t, inner.StackTrace())
	assert.Equal(t, inner.StackTrace(), outer.StackTrace())
	assert.Contains(t, inner.StackTrace()[0].Function, "TestWrapKeepsInnerStack")
	assert.True(t, IsType(outer, ErrorTypeData))
	assert.Equal(t, "data: insert failed: overflow: arena full", outer.Error())

	assert.Nil(t, Wrap(nil, ErrorTypeData, "nothing"))
	assert.Nil(t, Wrapf(nil, ErrorTypeData, "nothing %d", 1))
}

func TestLogFields(t *testing.T) {
	assert.Nil(t, LogFields(nil))

	plain := LogFields(io.EOF)
	require.Len(t, plain, 2)
	assert.Equal(t, "internal", plain[1].String)

	err := Newf(ErrorTypeFile, "cannot open %s", "a.csv").WithDetail("path", "a.csv").WithDetail("attempt", 2)
	fields := LogFields(err)
	require.Len(t, fields, 4)
	assert.Equal(t, "error_type", fields[1].Key)
	assert.Equal(t, "file", fields[1].String)
	assert.Equal(t, "attempt", fields[2].Key)
	assert.Equal(t, "path", fields[3].Key)
	assert.Equal(t, zapcore.StringType, fields[3].Type)
}

func TestRecoverRepanicsNonErrors(t *testing.T) {
	assert.PanicsWithValue(t, "boom", func() {
		var err error
		func() {
			defer Recover(&err)
			panic("boom")
		}()
	})
}
