// Package filter implements the nostr REQ filter and its matching contract
// (spec.md §3). Grounded on the teacher's orly.dev/encoders/filter.F, whose
// field set and Sort-before-Marshal canonicalization idea we keep, simplified
// from its hand-rolled binary codec to struct fields with encoding/json tags.
package filter

import (
	"encoding/json"
	"sort"

	"nostrkit.dev/pkg/encoders/event"
	"nostrkit.dev/pkg/encoders/kind"
	"nostrkit.dev/pkg/encoders/timestamp"
)

// F is a nostr filter as sent in a REQ (spec.md §3). Every field is optional;
// a nil field is absent from the match contract.
type F struct {
	IDs     []string          `json:"ids,omitempty"`
	Authors []string          `json:"authors,omitempty"`
	Kinds   []kind.T          `json:"kinds,omitempty"`
	Since   *timestamp.T      `json:"since,omitempty"`
	Until   *timestamp.T      `json:"until,omitempty"`
	Limit   *int              `json:"limit,omitempty"`
	Search  string            `json:"search,omitempty"`
	Tags    map[string][]string `json:"-"` // single-letter tag name -> accepted values
}

// New returns an empty filter (matches everything — spec.md §8 boundary
// behavior).
func New() *F { return &F{} }

// Clone returns an independent deep copy of f.
func (f *F) Clone() *F {
	if f == nil {
		return nil
	}
	c := &F{Search: f.Search}
	if f.IDs != nil {
		c.IDs = append([]string{}, f.IDs...)
	}
	if f.Authors != nil {
		c.Authors = append([]string{}, f.Authors...)
	}
	if f.Kinds != nil {
		c.Kinds = append([]kind.T{}, f.Kinds...)
	}
	if f.Since != nil {
		c.Since = timestamp.FromUnix(f.Since.I64())
	}
	if f.Until != nil {
		c.Until = timestamp.FromUnix(f.Until.I64())
	}
	if f.Limit != nil {
		l := *f.Limit
		c.Limit = &l
	}
	if f.Tags != nil {
		c.Tags = make(map[string][]string, len(f.Tags))
		for k, v := range f.Tags {
			c.Tags[k] = append([]string(nil), v...)
		}
	}
	return c
}

// Matches reports whether e satisfies every present field of f. Matches is a
// pure function of (f, e): it never mutates either argument and its result
// depends on nothing else, satisfying spec.md P2.
func (f *F) Matches(e *event.E) bool {
	return f.matches(e, true)
}

// MatchIgnoringTimestamps matches like Matches but ignores Since/Until. Used
// after EOSE, when a relay switches from historical delivery to a live feed
// and a filter's time bounds no longer apply to newly-created events
// (grounded on the teacher's Filters.MatchIgnoringTimestampConstraints).
func (f *F) MatchIgnoringTimestamps(e *event.E) bool {
	return f.matches(e, false)
}

func (f *F) matches(e *event.E, checkTime bool) bool {
	if f.IDs != nil && !containsString(f.IDs, e.IDHex()) {
		return false
	}
	if f.Authors != nil && !containsString(f.Authors, e.PubkeyHex()) {
		return false
	}
	if f.Kinds != nil && !containsKind(f.Kinds, e.Kind) {
		return false
	}
	if checkTime {
		if f.Since != nil && e.CreatedAt.I64() < f.Since.I64() {
			return false
		}
		if f.Until != nil && e.CreatedAt.I64() > f.Until.I64() {
			return false
		}
	}
	for key, values := range f.Tags {
		if !anyTagMatches(e, key, values) {
			return false
		}
	}
	return true
}

func anyTagMatches(e *event.E, key string, values []string) bool {
	for _, t := range e.Tags {
		if t.Key() != key {
			continue
		}
		if containsString(values, t.Value()) {
			return true
		}
	}
	return false
}

func containsString(set []string, v string) bool {
	for _, s := range set {
		if s == v {
			return true
		}
	}
	return false
}

func containsKind(set []kind.T, v kind.T) bool {
	for _, k := range set {
		if k == v {
			return true
		}
	}
	return false
}

// wireForm is the on-the-wire shape of a filter: like F but with tag filters
// flattened into top-level "#x" keys, since relays expect
// {"authors":[...],"#e":[...]}, not a nested map.
type wireForm struct {
	IDs     []string     `json:"ids,omitempty"`
	Authors []string     `json:"authors,omitempty"`
	Kinds   []kind.T     `json:"kinds,omitempty"`
	Since   *timestamp.T `json:"since,omitempty"`
	Until   *timestamp.T `json:"until,omitempty"`
	Limit   *int         `json:"limit,omitempty"`
	Search  string       `json:"search,omitempty"`
}

// MarshalJSON implements json.Marshaler, emitting tag filters as "#x" keys.
func (f *F) MarshalJSON() ([]byte, error) {
	base, err := json.Marshal(wireForm{
		IDs: f.IDs, Authors: f.Authors, Kinds: f.Kinds,
		Since: f.Since, Until: f.Until, Limit: f.Limit, Search: f.Search,
	})
	if err != nil {
		return nil, err
	}
	if len(f.Tags) == 0 {
		return base, nil
	}
	var m map[string]json.RawMessage
	if err := json.Unmarshal(base, &m); err != nil {
		return nil, err
	}
	for k, v := range f.Tags {
		raw, err := json.Marshal(v)
		if err != nil {
			return nil, err
		}
		m["#"+k] = raw
	}
	return json.Marshal(m)
}

// UnmarshalJSON implements json.Unmarshaler, collecting "#x" keys into Tags.
func (f *F) UnmarshalJSON(b []byte) error {
	var m map[string]json.RawMessage
	if err := json.Unmarshal(b, &m); err != nil {
		return err
	}
	var w wireForm
	if err := json.Unmarshal(b, &w); err != nil {
		return err
	}
	f.IDs, f.Authors, f.Kinds = w.IDs, w.Authors, w.Kinds
	f.Since, f.Until, f.Limit, f.Search = w.Since, w.Until, w.Limit, w.Search
	for k, raw := range m {
		if len(k) < 2 || k[0] != '#' {
			continue
		}
		var values []string
		if err := json.Unmarshal(raw, &values); err != nil {
			return err
		}
		if f.Tags == nil {
			f.Tags = map[string][]string{}
		}
		f.Tags[k[1:]] = values
	}
	return nil
}

// Sort canonicalizes the order of every set-valued field in place so that
// two filters built from the same logical set produce identical JSON,
// enabling cheap equality/dedup checks (grounded on the teacher's
// F.Sort-before-Marshal convention).
func (f *F) Sort() {
	sort.Strings(f.IDs)
	sort.Strings(f.Authors)
	sort.Slice(f.Kinds, func(i, j int) bool { return f.Kinds[i] < f.Kinds[j] })
	for _, v := range f.Tags {
		sort.Strings(v)
	}
}
