// Package tag implements the ordered-sequence-of-strings tag type from
// spec.md §3 and the ordered sequence of tags that make up an event's Tags
// field.
package tag

// T is a single tag: an ordered sequence of UTF-8 strings, length >= 1.
type T []string

// New builds a tag from its fields.
func New(fields ...string) T { return T(fields) }

// Key returns the tag's first field (its name), or "" if empty.
func (t T) Key() string {
	if len(t) == 0 {
		return ""
	}
	return t[0]
}

// Value returns the tag's second field (its usual value position), or "".
func (t T) Value() string {
	if len(t) < 2 {
		return ""
	}
	return t[1]
}

// Clone makes an independent copy of the tag.
func (t T) Clone() T {
	c := make(T, len(t))
	copy(c, t)
	return c
}

// Tags is the ordered sequence of a single event's tags.
type Tags []T

// GetFirst returns the first tag whose key matches, and whether it exists.
func (ts Tags) GetFirst(key string) (T, bool) {
	for _, t := range ts {
		if t.Key() == key {
			return t, true
		}
	}
	return nil, false
}

// GetAll returns every tag whose key matches.
func (ts Tags) GetAll(key string) []T {
	var out []T
	for _, t := range ts {
		if t.Key() == key {
			out = append(out, t)
		}
	}
	return out
}

// GetD returns the value of the first "d" tag, or "" if absent. Used to
// compute the address of an addressable (parameterized-replaceable) event.
func (ts Tags) GetD() string {
	if t, ok := ts.GetFirst("d"); ok {
		return t.Value()
	}
	return ""
}

// Clone makes an independent deep copy of Tags. Tag helpers never mutate
// existing tags unless explicitly asked (spec.md §4.1); callers that want to
// append must Clone first.
func (ts Tags) Clone() Tags {
	c := make(Tags, len(ts))
	for i, t := range ts {
		c[i] = t.Clone()
	}
	return c
}

// AppendUnique returns a new Tags with t appended, unless an identical tag
// already exists.
func (ts Tags) AppendUnique(t T) Tags {
	for _, existing := range ts {
		if slicesEqual(existing, t) {
			return ts
		}
	}
	return append(ts.Clone(), t)
}

func slicesEqual(a, b T) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
