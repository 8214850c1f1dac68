package subengine

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"nostrkit.dev/pkg/encoders/event"
	"nostrkit.dev/pkg/encoders/filter"
	"nostrkit.dev/pkg/encoders/kind"
	"nostrkit.dev/pkg/encoders/timestamp"
)

func textNote(content string) *event.E {
	e := event.New()
	e.Kind = kind.TextNote
	e.Content = content
	e.CreatedAt = timestamp.Now()
	e.ID = []byte{1, 2, 3}
	e.Pubkey = []byte{4, 5, 6}
	return e
}

func TestSubscriptionMarkSeenDedups(t *testing.T) {
	sub := newSubscription("s1", []*filter.F{filter.New()}, nil, RelayOnly, false)
	assert.True(t, sub.markSeen("id1"))
	assert.False(t, sub.markSeen("id1"))
	assert.True(t, sub.markSeen("id2"))
}

func TestSubscriptionMatchesOriginalFilterOnly(t *testing.T) {
	textKind := []kind.T{kind.TextNote}
	sub := newSubscription("s1", []*filter.F{{Kinds: textKind}}, nil, RelayOnly, false)

	matching := textNote("hi")
	reaction := textNote("+")
	reaction.Kind = kind.T(7) // NIP-25 reaction, not declared as a named const

	assert.True(t, sub.matches(matching, false))
	assert.False(t, sub.matches(reaction, false))
}

func TestSubscriptionFireEoseOnce(t *testing.T) {
	sub := newSubscription("s1", []*filter.F{filter.New()}, nil, RelayOnly, false)
	sub.fireEose()
	select {
	case <-sub.EOSE:
	default:
		t.Fatal("EOSE channel should be closed")
	}
	assert.NotPanics(t, sub.fireEose)
}

func TestSubscriptionCloseOnEose(t *testing.T) {
	sub := newSubscription("s1", []*filter.F{filter.New()}, nil, RelayOnly, true)
	sub.fireEose()
	select {
	case <-sub.Closed:
	default:
		t.Fatal("closeOnEose subscription must close on EOSE")
	}
}

func TestSubscriptionOnCloseCalledOnceAndLate(t *testing.T) {
	sub := newSubscription("s1", []*filter.F{filter.New()}, nil, RelayOnly, false)
	calls := 0
	sub.OnClose(func() { calls++ })
	sub.Close()
	sub.Close()
	assert.Equal(t, 1, calls)

	// registering after close must still invoke the handler
	sub.OnClose(func() { calls++ })
	assert.Equal(t, 2, calls)
}
