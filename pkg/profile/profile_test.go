package profile

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nostrkit.dev/pkg/cache"
)

func openTestProfiles(t *testing.T) *cache.Profiles {
	t.Helper()
	l, err := cache.Open(cache.Config{DiskPath: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = l.Close() })
	return cache.NewProfiles(l, time.Hour)
}

func TestFetchProfileServesFreshCacheWithoutBatching(t *testing.T) {
	profiles := openTestProfiles(t)
	m := New(nil, profiles, DefaultOptions)

	p, err := cache.ParseProfile("abc", `{"name":"bob"}`)
	require.NoError(t, err)
	require.NoError(t, profiles.Put(p))

	got := m.FetchProfile(context.Background(), "abc", false)
	require.NotNil(t, got)
	assert.Equal(t, "bob", got.Name)
}

func TestFetchProfileContextCancelReturnsNilWithoutEngine(t *testing.T) {
	profiles := openTestProfiles(t)
	// BatchDelay deliberately outlives the test process: a nil engine
	// would panic if runBatch ever fired, so the point of this test is
	// that ctx cancellation resolves FetchProfile's select first.
	m := New(nil, profiles, Options{BatchDelay: time.Hour, MaxBatch: 50, TTL: time.Hour})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	got := m.FetchProfile(ctx, "nonexistent", false)
	assert.Nil(t, got)
}
