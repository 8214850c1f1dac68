package sampler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nostrkit.dev/pkg/crypto"
	"nostrkit.dev/pkg/encoders/event"
	"nostrkit.dev/pkg/encoders/kind"
	"nostrkit.dev/pkg/encoders/timestamp"
)

func signedNote(t *testing.T) *event.E {
	t.Helper()
	sec := make([]byte, 32)
	for i := range sec {
		sec[i] = byte(i + 1)
	}
	sign, err := crypto.NewLocalSigner(sec)
	require.NoError(t, err)

	e := event.New()
	e.Kind = kind.TextNote
	e.Content = "hello"
	e.CreatedAt = timestamp.Now()
	require.NoError(t, e.Sign(sign))
	return e
}

func TestWarmUpForcesFullVerification(t *testing.T) {
	s := New(Default, nil)
	s.rand = func() float64 { return 0.999999 } // would fail any ratio < 1
	for i := 0; i < 9; i++ {
		assert.True(t, s.ShouldVerify("wss://relay.example"))
		st := s.statsFor("wss://relay.example")
		st.verified++
	}
}

func TestRatioDecaysAndClampsToMin(t *testing.T) {
	s := New(Default, nil)
	st := s.statsFor("wss://relay.example")
	st.verified = 1000 // far past warm-up, formula would go near zero
	assert.InDelta(t, Default.Min, s.ratio(st.verified), 1e-9)
}

func TestAdmitBlacklistsOnBadSignature(t *testing.T) {
	var notified string
	s := New(Default, func(relayURL string, cause error) { notified = relayURL })
	s.rand = func() float64 { return 0 } // always select for verification

	e := signedNote(t)
	e.Sig[0] ^= 0xFF // corrupt the signature

	accepted := s.Admit(e, "wss://evil.example")
	assert.False(t, accepted)
	assert.True(t, s.IsBlacklisted("wss://evil.example"))
	assert.Equal(t, "wss://evil.example", notified)

	// once blacklisted, every subsequent event from that relay is dropped
	// before reaching the sampler's decision logic (spec.md P4).
	again := signedNote(t)
	assert.False(t, s.Admit(again, "wss://evil.example"))
}

func TestAdmitAcceptsWithoutVerificationBelowRatio(t *testing.T) {
	s := New(Default, nil)
	s.rand = func() float64 { return 0.999999 }
	st := s.statsFor("wss://relay.example")
	st.verified = 1000 // ratio clamps to Min = 0.1, so 0.999999 misses the draw

	e := signedNote(t)
	accepted := s.Admit(e, "wss://relay.example")
	assert.True(t, accepted)
	v, n := s.Counters("wss://relay.example")
	assert.Equal(t, int64(1000), v)
	assert.Equal(t, int64(1), n)
}
