package subengine

import "nostrkit.dev/pkg/encoders/filter"

// compatible reports whether a and b may be merged into a single filter
// without changing the observable semantics of either caller (spec.md
// §4.5). Two filters are compatible iff since and until are each absent on
// both sides or equal, every set-valued field (ids, authors, kinds and
// each tag key) is present on both sides or absent on both, neither
// carries a search term, and `limit` is absent on *both* — a `limit` can
// never be safely merged, since the merged filter's result set would
// otherwise silently widen or narrow what either caller asked for. A field
// present on one side only would narrow the other caller's results.
func compatible(a, b *filter.F) bool {
	if a.Limit != nil || b.Limit != nil {
		return false
	}
	if (a.Since == nil) != (b.Since == nil) || (a.Until == nil) != (b.Until == nil) {
		return false
	}
	if !scalarCompatible(a.Since, b.Since) || !scalarCompatible(a.Until, b.Until) {
		return false
	}
	if (a.IDs == nil) != (b.IDs == nil) || (a.Authors == nil) != (b.Authors == nil) || (a.Kinds == nil) != (b.Kinds == nil) {
		return false
	}
	if a.Search != "" || b.Search != "" || len(a.Tags) != len(b.Tags) {
		return false
	}
	for k := range a.Tags {
		if _, ok := b.Tags[k]; !ok {
			return false
		}
	}
	return true
}

func scalarCompatible[T comparable](a, b *T) bool {
	if a == nil || b == nil {
		return true
	}
	return *a == *b
}

// merge produces the field-wise union of a and b. Callers must check
// compatible(a, b) first.
func merge(a, b *filter.F) *filter.F {
	m := &filter.F{
		IDs:     unionStrings(a.IDs, b.IDs),
		Authors: unionStrings(a.Authors, b.Authors),
		Kinds:   unionKinds(a.Kinds, b.Kinds),
		Since:   firstNonNilTimestamp(a.Since, b.Since),
		Until:   firstNonNilTimestamp(a.Until, b.Until),
		Tags:    unionTags(a.Tags, b.Tags),
	}
	return m
}

func unionStrings(a, b []string) []string {
	if a == nil && b == nil {
		return nil
	}
	seen := make(map[string]struct{}, len(a)+len(b))
	var out []string
	for _, s := range append(append([]string{}, a...), b...) {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}

func unionKinds[K comparable](a, b []K) []K {
	if a == nil && b == nil {
		return nil
	}
	seen := make(map[K]struct{}, len(a)+len(b))
	var out []K
	for _, k := range append(append([]K{}, a...), b...) {
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	return out
}

func unionTags(a, b map[string][]string) map[string][]string {
	if a == nil && b == nil {
		return nil
	}
	out := make(map[string][]string, len(a)+len(b))
	for k, v := range a {
		out[k] = append(out[k], v...)
	}
	for k, v := range b {
		out[k] = unionStrings(out[k], v)
	}
	return out
}

func firstNonNilTimestamp[T any](a, b *T) *T {
	if a != nil {
		return a
	}
	return b
}
