package subengine

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"nostrkit.dev/pkg/encoders/filter"
	"nostrkit.dev/pkg/encoders/kind"
	"nostrkit.dev/pkg/encoders/timestamp"
)

func tsPtr(i int64) *timestamp.T { return timestamp.FromUnix(i) }

func TestCompatibleRejectsLimit(t *testing.T) {
	limit := 10
	a := &filter.F{Authors: []string{"a"}}
	b := &filter.F{Authors: []string{"b"}, Limit: &limit}
	assert.False(t, compatible(a, b))
}

func TestCompatibleAllowsDisjointAuthors(t *testing.T) {
	a := &filter.F{Authors: []string{"a"}, Kinds: []kind.T{kind.TextNote}}
	b := &filter.F{Authors: []string{"b"}, Kinds: []kind.T{kind.TextNote}}
	assert.True(t, compatible(a, b))

	m := merge(a, b)
	assert.ElementsMatch(t, []string{"a", "b"}, m.Authors)
	assert.Equal(t, []kind.T{kind.TextNote}, m.Kinds)
}

func TestCompatibleRejectsDifferingSince(t *testing.T) {
	s1, s2 := tsPtr(1), tsPtr(2)
	a := &filter.F{Since: s1}
	b := &filter.F{Since: s2}
	assert.False(t, compatible(a, b))
}

func TestMergeUnionsTags(t *testing.T) {
	a := &filter.F{Tags: map[string][]string{"e": {"id1"}}}
	b := &filter.F{Tags: map[string][]string{"e": {"id2"}, "p": {"pub1"}}}
	// b's "p" key, absent from a, would narrow a's results once merged.
	assert.False(t, compatible(a, b))

	m := merge(a, b)
	assert.ElementsMatch(t, []string{"id1", "id2"}, m.Tags["e"])
	assert.ElementsMatch(t, []string{"pub1"}, m.Tags["p"])
}

func TestGroupByRelaySetSeparatesIncompatibleFilters(t *testing.T) {
	limit := 5
	reqA := &pendingRequest{
		sub:    &Subscription{Filters: []*filter.F{{Authors: []string{"a"}}}},
		relays: []string{"wss://r1"},
	}
	reqB := &pendingRequest{
		sub:    &Subscription{Filters: []*filter.F{{Authors: []string{"b"}, Limit: &limit}}},
		relays: []string{"wss://r1"},
	}
	groups := groupByRelaySet([]*pendingRequest{reqA, reqB})
	assert.Len(t, groups, 2, "a limit-bearing filter must never be merged")
}

func TestGroupByRelaySetMergesCompatibleFilters(t *testing.T) {
	reqA := &pendingRequest{
		sub:    &Subscription{Filters: []*filter.F{{Authors: []string{"a"}}}},
		relays: []string{"wss://r1", "wss://r2"},
	}
	reqB := &pendingRequest{
		sub:    &Subscription{Filters: []*filter.F{{Authors: []string{"b"}}}},
		relays: []string{"wss://r2", "wss://r1"}, // same set, different order
	}
	groups := groupByRelaySet([]*pendingRequest{reqA, reqB})
	assert.Len(t, groups, 1)
	assert.Len(t, groups[0].members, 2)
	assert.ElementsMatch(t, []string{"a", "b"}, groups[0].merged[0].Authors)
}
