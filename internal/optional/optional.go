// Package optional distinguishes an absent JSON field from an explicit null.
package optional

import (
	"bytes"
	"encoding/json"
)

// String is a nullable string patch field. Set is true when the key was
// present in the payload; Value is nil when it was null.
type String struct {
	Set   bool
	Value *string
}

// Of returns a set, non-null String.
func Of(s string) String {
	return String{Set: true, Value: &s}
}

// Null returns a set, null String.
func Null() String {
	return String{Set: true}
}

func (s *String) UnmarshalJSON(data []byte) error {
	s.Set = true
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		s.Value = nil
		return nil
	}
	var v string
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	s.Value = &v
	return nil
}

func (s String) MarshalJSON() ([]byte, error) {
	if s.Value == nil {
		return []byte("null"), nil
	}
	return json.Marshal(*s.Value)
}
