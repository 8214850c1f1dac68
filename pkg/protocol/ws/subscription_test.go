package ws

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/websocket"

	"nostrkit.dev/pkg/crypto"
	"nostrkit.dev/pkg/encoders/event"
	"nostrkit.dev/pkg/encoders/filter"
	"nostrkit.dev/pkg/encoders/kind"
	"nostrkit.dev/pkg/encoders/timestamp"
	"nostrkit.dev/pkg/sampler"
)

// TestSubscribeBasic drives a REQ/EVENT/EOSE round-trip against an
// in-process fake relay, mirroring the teacher's real-network
// TestSubscribeBasic but self-contained (no outbound network access).
func TestSubscribeBasic(t *testing.T) {
	sec, pub := makeKeyPair(t)
	limit := 2
	f := &filter.F{Kinds: []kind.T{kind.TextNote}, Limit: &limit}

	ws := newWebsocketServer(func(conn *websocket.Conn) {
		var raw []json.RawMessage
		require.NoError(t, websocket.JSON.Receive(conn, &raw))
		subID, _ := parseSubscriptionMessage(t, raw)

		for i := 0; i < 2; i++ {
			e := signedTextNote(t, sec, pub, "hi")
			eb, _ := json.Marshal(e)
			var rawEv json.RawMessage = eb
			msg := []any{"EVENT", subID, rawEv}
			assert.NoError(t, websocket.JSON.Send(conn, msg))
		}
		assert.NoError(t, websocket.JSON.Send(conn, []any{"EOSE", subID}))
	})
	defer ws.Close()

	rl := mustRelayConnect(t, ws.URL)
	defer rl.Close()

	sub, err := rl.Subscribe(context.Background(), []*filter.F{f})
	assert.NoError(t, err)

	timeout := time.After(5 * time.Second)
	n := 0
	for {
		select {
		case ev := <-sub.Events:
			assert.NotNil(t, ev)
			n++
		case <-sub.EndOfStoredEvents:
			assert.Equal(t, 2, n)
			sub.Unsub()
			return
		case <-rl.Context().Done():
			t.Fatalf("connection closed: %v", rl.Context().Err())
		case <-timeout:
			t.Fatalf("timeout")
		}
	}
}

// TestSamplerBlacklistDisconnectsRelay drives a bad-signature event through
// a Client wired to a Sampler and checks the three P4 consequences land in
// one delivery: the event never reaches the subscriber, the relay is
// blacklisted, and the connection is torn down rather than left open to
// keep feeding unverified frames.
func TestSamplerBlacklistDisconnectsRelay(t *testing.T) {
	sec, pub := makeKeyPair(t)
	f := &filter.F{Kinds: []kind.T{kind.TextNote}}

	ws := newWebsocketServer(func(conn *websocket.Conn) {
		var raw []json.RawMessage
		require.NoError(t, websocket.JSON.Receive(conn, &raw))
		subID, _ := parseSubscriptionMessage(t, raw)

		e := signedTextNote(t, sec, pub, "hi")
		e.Content = "tampered after signing" // invalidates the signature
		eb, _ := json.Marshal(e)
		var rawEv json.RawMessage = eb
		websocket.JSON.Send(conn, []any{"EVENT", subID, rawEv})
	})
	defer ws.Close()

	samp := sampler.New(sampler.Policy{Initial: 1, Min: 1, K: 0, WarmUp: 0}, nil)
	rl := NewRelay(context.Background(), ws.URL)
	rl.Sampler = samp
	require.NoError(t, rl.Connect(context.Background()))
	defer rl.Close()

	sub, err := rl.Subscribe(context.Background(), []*filter.F{f})
	require.NoError(t, err)

	timeout := time.After(5 * time.Second)
	select {
	case ev := <-sub.Events:
		t.Fatalf("bad-signature event must not reach the subscriber, got %v", ev)
	case <-rl.Context().Done():
		assert.True(t, samp.IsBlacklisted(ws.URL))
	case <-timeout:
		t.Fatal("timeout waiting for relay disconnect")
	}
}

func signedTextNote(t *testing.T, sec, pub []byte, content string) *event.E {
	t.Helper()
	e := event.New()
	e.Kind = kind.TextNote
	e.CreatedAt = timestamp.Now()
	e.Content = content
	sign, err := crypto.NewLocalSigner(sec)
	require.NoError(t, err)
	require.NoError(t, e.Sign(sign))
	assert.Equal(t, pub, e.Pubkey)
	return e
}

func parseSubscriptionMessage(t *testing.T, raw []json.RawMessage) (subID string, f *filter.F) {
	t.Helper()
	require.Greater(t, len(raw), 2)

	var typ string
	require.NoError(t, json.Unmarshal(raw[0], &typ))
	assert.Equal(t, "REQ", typ)
	require.NoError(t, json.Unmarshal(raw[1], &subID))

	f = filter.New()
	require.NoError(t, json.Unmarshal(raw[2], f))
	return subID, f
}
