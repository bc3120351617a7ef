package bytesmap

import (
	"testing"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/stretchr/testify/assert"

	"github.com/ajitpratap0/bytesmap/pkg/testutil"
)

func TestBytesSet(t *testing.T) {
	set := NewSet[int32](Utf8)
	assert.True(t, set.IsEmpty())
	assert.Equal(t, arrow.BinaryTypes.String, set.DataType())

	set.Insert(testutil.Strings(t, "a", "b", "a"))
	set.Insert(testutil.Strings(t, "c", "b", "c"))

	assert.Equal(t, 3, set.Len())
	assert.Equal(t, 3, set.NonNullLen())
	assert.Equal(t, []bool{true, false, true, false}, set.Contains(testutil.Strings(t, "a", "d", "c", nil)))

	set.Insert(testutil.Strings(t, nil))
	assert.Equal(t, []bool{true}, set.Contains(testutil.Strings(t, nil)))
	assert.Equal(t, 4, set.Len())
	assert.Equal(t, 3, set.NonNullLen())

	taken := set.Take()
	assert.True(t, set.IsEmpty())
	assert.Equal(t, []bool{false}, set.Contains(testutil.Strings(t, "a")))

	out := taken.IntoArray()
	defer out.Release()
	assert.Equal(t, []interface{}{"a", "b", "c", nil}, testutil.Values(t, out))
	assert.Contains(t, taken.String(), "len: 0")
}
