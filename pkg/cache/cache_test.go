package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nostrkit.dev/pkg/encoders/event"
	"nostrkit.dev/pkg/encoders/kind"
	"nostrkit.dev/pkg/encoders/timestamp"
)

func openTestCache(t *testing.T) *Layered {
	t.Helper()
	l, err := Open(Config{DiskPath: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = l.Close() })
	return l
}

func TestSetGetRoundTrip(t *testing.T) {
	l := openTestCache(t)
	require.NoError(t, Set(l, "k", "v", time.Minute, WriteThrough))
	got, ok := Get[string](l, "k")
	assert.True(t, ok)
	assert.Equal(t, "v", got)
}

func TestGetPromotesFromL2ToL1(t *testing.T) {
	l := openTestCache(t)
	require.NoError(t, Set(l, "k", 42, time.Minute, WriteThrough))
	l.l1.Del("k") // force an L2-only hit
	l.l1.Wait()

	got, ok := Get[int](l, "k")
	assert.True(t, ok)
	assert.Equal(t, 42, got)

	// now L1 should have it again without touching L2
	raw, found := l.l1.Get("k")
	assert.True(t, found)
	assert.NotEmpty(t, raw)
}

func TestL1OnlyDoesNotWriteL2(t *testing.T) {
	l := openTestCache(t)
	require.NoError(t, Set(l, "k", "v", time.Minute, L1Only))
	l.l1.Del("k")
	l.l1.Wait()

	_, ok := Get[string](l, "k")
	assert.False(t, ok, "L1-only value must not be recoverable from L2")
}

func TestExpiredEntryIsNotReturned(t *testing.T) {
	l := openTestCache(t)
	require.NoError(t, Set(l, "k", "v", time.Nanosecond, WriteThrough))
	time.Sleep(time.Millisecond)
	l.l1.Del("k") // bypass ristretto's own TTL sweep, force L2 expiry check
	l.l1.Wait()

	_, ok := Get[string](l, "k")
	assert.False(t, ok)
}

func TestDeleteRemovesFromBothTiers(t *testing.T) {
	l := openTestCache(t)
	require.NoError(t, Set(l, "k", "v", time.Minute, WriteThrough))
	require.NoError(t, l.Delete("k"))

	_, ok := Get[string](l, "k")
	assert.False(t, ok)
}

func TestEventsSubCache(t *testing.T) {
	l := openTestCache(t)
	ec := NewEvents(l, time.Hour)

	e := event.New()
	e.Kind = kind.TextNote
	e.Content = "hi"
	e.CreatedAt = timestamp.Now()
	e.ID = []byte{1, 2, 3, 4}

	require.NoError(t, ec.Put(e))
	got, ok := ec.Get(e.IDHex())
	assert.True(t, ok)
	assert.Equal(t, e.Content, got.Content)
}

func TestProfilesSubCacheParsesUnknownFields(t *testing.T) {
	l := openTestCache(t)
	pc := NewProfiles(l, time.Hour)

	p, err := ParseProfile("abc", `{"name":"bob","nip05":"bob@example.com","custom":"x"}`)
	require.NoError(t, err)
	require.NoError(t, pc.Put(p))

	got, ok := pc.Get("abc")
	assert.True(t, ok)
	assert.Equal(t, "bob", got.Name)
	assert.Equal(t, "bob@example.com", got.NIP05)
	assert.Contains(t, got.Extra, "custom")
}

func TestNIP05SubCache(t *testing.T) {
	l := openTestCache(t)
	nc := NewNIP05(l, time.Hour)

	require.NoError(t, nc.Put(&NIP05Binding{Identifier: "bob@example.com", Pubkey: "abc"}))
	got, ok := nc.Get("bob@example.com")
	assert.True(t, ok)
	assert.Equal(t, "abc", got.Pubkey)
}

func TestRelayHealthSubCache(t *testing.T) {
	l := openTestCache(t)
	rc := NewRelayHealths(l, time.Minute)

	require.NoError(t, rc.Put(&RelayHealth{URL: "wss://relay.example", State: "connected"}))
	got, ok := rc.Get("wss://relay.example")
	assert.True(t, ok)
	assert.Equal(t, "connected", got.State)
}
