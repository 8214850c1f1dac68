package host

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nostrkit.dev/internal/config"
)

func TestNewWiresAllComponents(t *testing.T) {
	h, err := New(Options{
		Cfg:    &config.C{AppName: "nostrkit-test", DataDir: t.TempDir()},
		Relays: []string{"wss://relay.example"},
	})
	require.NoError(t, err)
	defer h.Close()

	assert.NotNil(t, h.Cache)
	assert.NotNil(t, h.Events)
	assert.NotNil(t, h.Profiles)
	assert.NotNil(t, h.Pool)
	assert.NotNil(t, h.Sampler)
	assert.NotNil(t, h.Engine)
	assert.NotNil(t, h.Outbox)
	assert.NotNil(t, h.Manager)
	assert.NotNil(t, h.Tracker)
	assert.NotNil(t, h.Decoder)
}

func TestFetchByIdentifierRejectsBadIdentifier(t *testing.T) {
	h, err := New(Options{
		Cfg: &config.C{AppName: "nostrkit-test", DataDir: t.TempDir()},
	})
	require.NoError(t, err)
	defer h.Close()

	_, err = h.FetchByIdentifier(nil, "not-a-valid-identifier")
	assert.Error(t, err)
}
