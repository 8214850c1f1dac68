//go:build !js

package ws

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/websocket"

	"nostrkit.dev/pkg/crypto"
	"nostrkit.dev/pkg/encoders/event"
	"nostrkit.dev/pkg/encoders/kind"
	"nostrkit.dev/pkg/encoders/tag"
	"nostrkit.dev/pkg/encoders/timestamp"
	nkcontext "nostrkit.dev/pkg/utils/context"
)

func TestPublish(t *testing.T) {
	priv, pub := makeKeyPair(t)
	textNote := event.New()
	textNote.Kind = kind.TextNote
	textNote.Content = "hello"
	textNote.CreatedAt = timestamp.FromUnix(1672068534)
	textNote.Tags = append(textNote.Tags, tag.New("foo", "bar"))
	textNote.Pubkey = pub
	sign, err := crypto.NewLocalSigner(priv)
	require.NoError(t, err)
	err = textNote.Sign(sign)
	assert.NoError(t, err)

	var mu sync.Mutex
	var published bool
	ws := newWebsocketServer(func(conn *websocket.Conn) {
		mu.Lock()
		published = true
		mu.Unlock()

		var raw []json.RawMessage
		recvErr := websocket.JSON.Receive(conn, &raw)
		assert.NoError(t, recvErr)
		got := parseEventMessage(t, raw)
		assert.Equal(t, textNote.IDHex(), got.IDHex())

		res := []any{"OK", textNote.IDHex(), true, ""}
		assert.NoError(t, websocket.JSON.Send(conn, res))
	})
	defer ws.Close()

	rl := mustRelayConnect(t, ws.URL)
	err = rl.Publish(context.Background(), textNote)
	assert.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	assert.True(t, published, "fake relay server saw no event")
}

func TestPublishBlocked(t *testing.T) {
	textNote := event.New()
	textNote.Kind = kind.TextNote
	textNote.Content = "hello"
	textNote.CreatedAt = timestamp.Now()
	textNote.ID = textNote.ComputeID()

	ws := newWebsocketServer(func(conn *websocket.Conn) {
		var raw []json.RawMessage
		assert.NoError(t, websocket.JSON.Receive(conn, &raw))
		res := []any{"OK", textNote.IDHex(), false, "blocked: not on the list"}
		websocket.JSON.Send(conn, res)
	})
	defer ws.Close()

	rl := mustRelayConnect(t, ws.URL)
	err := rl.Publish(context.Background(), textNote)
	assert.Error(t, err)
}

func TestPublishWriteFailed(t *testing.T) {
	textNote := event.New()
	textNote.Kind = kind.TextNote
	textNote.Content = "hello"
	textNote.CreatedAt = timestamp.Now()
	textNote.ID = textNote.ComputeID()

	ws := newWebsocketServer(func(conn *websocket.Conn) {
		conn.Close()
	})
	defer ws.Close()

	rl := mustRelayConnect(t, ws.URL)
	time.Sleep(1 * time.Millisecond)
	err := rl.Publish(context.Background(), textNote)
	assert.Error(t, err)
}

func TestConnectContext(t *testing.T) {
	var mu sync.Mutex
	var connected bool
	ws := newWebsocketServer(func(conn *websocket.Conn) {
		mu.Lock()
		connected = true
		mu.Unlock()
		io.ReadAll(conn)
	})
	defer ws.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	r, err := RelayConnect(ctx, ws.URL)
	assert.NoError(t, err)
	defer r.Close()

	mu.Lock()
	defer mu.Unlock()
	assert.True(t, connected, "fake relay server saw no client connect")
}

func TestConnectContextCanceled(t *testing.T) {
	ws := newWebsocketServer(discardingHandler)
	defer ws.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := RelayConnect(ctx, ws.URL)
	assert.Error(t, err)
}

func TestConnectWithOrigin(t *testing.T) {
	ws := httptest.NewServer(websocket.Handler(discardingHandler))
	defer ws.Close()

	r := NewRelay(
		nkcontext.Bg(), ws.URL,
		WithRequestHeader(http.Header{"origin": {"https://example.com"}}),
	)
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	err := r.Connect(ctx)
	assert.NoError(t, err)
}

func discardingHandler(conn *websocket.Conn) { io.ReadAll(conn) }

func newWebsocketServer(handler func(*websocket.Conn)) *httptest.Server {
	return httptest.NewServer(&websocket.Server{
		Handshake: anyOriginHandshake,
		Handler:   handler,
	})
}

var anyOriginHandshake = func(conf *websocket.Config, r *http.Request) error { return nil }

func makeKeyPair(t *testing.T) (sec, pub []byte) {
	t.Helper()
	sec = make([]byte, 32)
	for i := range sec {
		sec[i] = byte(i + 1)
	}
	sign, err := crypto.NewLocalSigner(sec)
	require.NoError(t, err)
	return sec, sign.Pub()
}

func mustRelayConnect(t *testing.T, url string) *Client {
	t.Helper()
	rl, err := RelayConnect(context.Background(), url)
	require.NoError(t, err)
	return rl
}

func parseEventMessage(t *testing.T, raw []json.RawMessage) *event.E {
	t.Helper()
	require.GreaterOrEqual(t, len(raw), 2)

	var typ string
	require.NoError(t, json.Unmarshal(raw[0], &typ))
	assert.Equal(t, "EVENT", typ)

	e := event.New()
	require.NoError(t, json.Unmarshal(raw[1], e))
	return e
}
