package types

import "maps"

// Slots is the conversation's slot snapshot. A nil or empty value means the slot is unset.
type Slots map[string]*string

// Value returns a pointer to a copy of s, for building slot updates inline.
func Value(s string) *string {
	return &s
}

func (s Slots) Get(name string) (string, bool) {
	v, ok := s[name]
	if !ok || v == nil || *v == "" {
		return "", false
	}
	return *v, true
}

// String returns the slot value or the empty string.
func (s Slots) String(name string) string {
	v, _ := s.Get(name)
	return v
}

func (s Slots) Has(name string) bool {
	_, ok := s.Get(name)
	return ok
}

func (s Slots) Clone() Slots {
	out := make(Slots, len(s))
	for k, v := range s {
		if v == nil {
			out[k] = nil
			continue
		}
		out[k] = Value(*v)
	}
	return out
}

// Merge overwrites s with every entry of other, including explicit nils.
func (s Slots) Merge(other map[string]*string) {
	maps.Copy(s, other)
}

// Plain converts the snapshot into a JSON friendly map where unset slots are nil.
func (s Slots) Plain() map[string]any {
	out := make(map[string]any, len(s))
	for k, v := range s {
		if v == nil {
			out[k] = nil
			continue
		}
		out[k] = *v
	}
	return out
}
