package ws

import (
	"context"
	"testing"
	"time"

	"nostrkit.dev/pkg/encoders/event"
	"nostrkit.dev/pkg/encoders/filter"
	"nostrkit.dev/pkg/encoders/kind"
	"nostrkit.dev/pkg/encoders/timestamp"
	"nostrkit.dev/pkg/interfaces/signer"
)

// mockSigner implements signer.I for testing.
type mockSigner struct{ pubkey []byte }

func (m *mockSigner) Pub() []byte { return m.pubkey }
func (m *mockSigner) Sign([]byte) ([]byte, error) { return []byte("mock-signature"), nil }

func TestNewPool(t *testing.T) {
	ctx := context.Background()
	pool := NewPool(ctx)

	if pool == nil {
		t.Fatal("NewPool returned nil")
	}
	if pool.Relays == nil {
		t.Error("Pool should have initialized Relays map")
	}
	if pool.Context == nil {
		t.Error("Pool should have a context")
	}
}

func TestPoolWithAuthHandler(t *testing.T) {
	ctx := context.Background()
	authHandler := WithAuthHandler(func() signer.I {
		return &mockSigner{pubkey: []byte("test-pubkey")}
	})
	pool := NewPool(ctx, authHandler)

	if pool.authHandler == nil {
		t.Error("Pool should have auth handler set")
	}
	s := pool.authHandler()
	if string(s.Pub()) != "test-pubkey" {
		t.Errorf("Expected pubkey 'test-pubkey', got '%s'", string(s.Pub()))
	}
}

func TestPoolWithEventMiddleware(t *testing.T) {
	ctx := context.Background()
	var middlewareCalled bool
	middleware := WithEventMiddleware(func(ie RelayEvent) { middlewareCalled = true })
	pool := NewPool(ctx, middleware)

	testEvent := event.New()
	testEvent.Kind = kind.TextNote
	testEvent.Content = "test"
	testEvent.CreatedAt = timestamp.Now()

	pool.eventMiddleware(RelayEvent{E: testEvent, Relay: nil})

	if !middlewareCalled {
		t.Error("Expected middleware to be called")
	}
}

func TestPoolEnsureRelayInvalidURL(t *testing.T) {
	ctx := context.Background()
	pool := NewPool(ctx)

	_, err := pool.EnsureRelay("invalid-url")
	if err == nil {
		t.Error("Expected error for invalid URL")
	}
}

func TestPoolQuerySingleEmptyURLs(t *testing.T) {
	ctx := context.Background()
	pool := NewPool(ctx)

	result := pool.QuerySingle(ctx, []string{}, &filter.F{})
	if result != nil {
		t.Error("Expected nil result for empty URLs")
	}
}

func TestPoolContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	pool := NewPool(ctx)
	cancel()

	select {
	case <-pool.Context.Done():
	case <-time.After(100 * time.Millisecond):
		t.Error("Expected pool context to be cancelled")
	}
}
