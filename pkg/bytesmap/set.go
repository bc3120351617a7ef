package bytesmap

import "github.com/apache/arrow-go/v18/arrow"

// BytesSet is a set of distinct byte values, a BytesMap without payloads.
type BytesSet[O Offset] struct {
	m *BytesMap[O, struct{}]
}

// NewSet creates an empty set producing outputType values.
func NewSet[O Offset](outputType OutputType, opts ...Option) *BytesSet[O] {
	return &BytesSet[O]{m: New[O, struct{}](outputType, opts...)}
}

func noPayload([]byte, bool) struct{} { return struct{}{} }

// Insert adds every value of values, null included, to the set.
func (s *BytesSet[O]) Insert(values arrow.Array) {
	s.m.InsertIfNew(values, noPayload, func(struct{}) {})
}

// Contains reports for each row of values whether it is in the set.
func (s *BytesSet[O]) Contains(values arrow.Array) []bool {
	payloads := s.m.GetPayloads(values)
	out := make([]bool, len(payloads))
	for i, p := range payloads {
		out[i] = p.Valid
	}
	return out
}

// IntoArray materializes the distinct values in first-seen order and
// resets the set.
func (s *BytesSet[O]) IntoArray() arrow.Array {
	return s.m.IntoArray()
}

// Take returns the accumulated values as a new set and leaves s empty.
func (s *BytesSet[O]) Take() *BytesSet[O] {
	return &BytesSet[O]{m: s.m.Take()}
}

// Len returns the number of distinct values, null included.
func (s *BytesSet[O]) Len() int { return s.m.Len() }

// NonNullLen returns the number of distinct non-null values.
func (s *BytesSet[O]) NonNullLen() int { return s.m.NonNullLen() }

// IsEmpty reports whether the set holds no value.
func (s *BytesSet[O]) IsEmpty() bool { return s.m.IsEmpty() }

// Size returns the number of bytes reserved by the set.
func (s *BytesSet[O]) Size() int { return s.m.Size() }

// DataType returns the Arrow type IntoArray produces.
func (s *BytesSet[O]) DataType() arrow.DataType { return s.m.DataType() }

func (s *BytesSet[O]) String() string { return s.m.String() }
