// Package sampler implements the probabilistic signature-verification
// policy of spec.md §4.2 (C2): given an incoming (event, relay) pair it
// decides whether to cryptographically verify the event, tracks per-relay
// trust, and maintains a monotonic evil-relay blacklist. Grounded on the
// teacher's AssumeValid flag (orly.dev/pkg/protocol/ws.Client) generalized
// into a real trust policy, using github.com/puzpuzpuz/xsync/v3 for the
// per-relay counters the way the teacher uses it for its subscription and
// relay registries.
package sampler

import (
	"math"
	"math/rand"

	"github.com/puzpuzpuz/xsync/v3"

	"nostrkit.dev/pkg/encoders/event"
)

// Policy configures the trust formula: ratio(relay) = Initial * e^(-K*V),
// clamped to [Min, Initial], with ratio forced to 1.0 below WarmUp
// verifications (spec.md §4.2).
type Policy struct {
	Initial float64
	Min     float64
	K       float64
	WarmUp  int64
}

// Default matches spec.md §4.2's defaults exactly.
var Default = Policy{Initial: 1.0, Min: 0.1, K: 0.01, WarmUp: 10}

type relayStats struct {
	verified int64 // V: verified-valid events
	accepted int64 // N: accepted-without-verification
	evil     bool
}

// Observer is notified when a relay is newly blacklisted.
type Observer func(relayURL string, cause error)

// Sampler decides, per (event, relay), whether to verify a signature, and
// owns the monotonic blacklist described in spec.md §4.2.
type Sampler struct {
	policy   Policy
	stats    *xsync.MapOf[string, *relayStats]
	observer Observer
	rand     func() float64
}

// New returns a Sampler governed by policy. A nil observer is a no-op.
func New(policy Policy, observer Observer) *Sampler {
	if observer == nil {
		observer = func(string, error) {}
	}
	return &Sampler{
		policy:   policy,
		stats:    xsync.NewMapOf[string, *relayStats](),
		observer: observer,
		rand:     rand.Float64,
	}
}

func (s *Sampler) statsFor(relayURL string) *relayStats {
	st, _ := s.stats.LoadOrCompute(relayURL, func() *relayStats { return &relayStats{} })
	return st
}

// IsBlacklisted reports whether relayURL has been flagged evil. Once true
// it never reverts for the life of the process (spec.md P4).
func (s *Sampler) IsBlacklisted(relayURL string) bool {
	st, ok := s.stats.Load(relayURL)
	return ok && st.evil
}

// ratio computes the current sampling probability for a relay's verified
// counter V, per spec.md §4.2 (warm-up overrides the formula below the
// configured threshold).
func (s *Sampler) ratio(v int64) float64 {
	if v < s.policy.WarmUp {
		return 1.0
	}
	r := s.policy.Initial * math.Exp(-s.policy.K*float64(v))
	if r < s.policy.Min {
		return s.policy.Min
	}
	if r > s.policy.Initial {
		return s.policy.Initial
	}
	return r
}

// ShouldVerify draws the Bernoulli decision for relayURL (spec.md §4.2,
// P5). Blacklisted relays always report false since their events never
// reach this decision (the caller must check IsBlacklisted first).
func (s *Sampler) ShouldVerify(relayURL string) bool {
	st := s.statsFor(relayURL)
	if st.evil {
		return false
	}
	return s.rand() < s.ratio(st.verified)
}

// Admit processes one incoming event from relayURL: it consults
// ShouldVerify, performs verification when selected, and blacklists the
// relay on any signature failure (spec.md §4.2, P4). It returns whether the
// event may be dispatched to subscribers at all. Callers (pkg/protocol/ws.
// Client's read loop) must check IsBlacklisted before Admit would even be
// reached again, since a relay that is already evil never un-blacklists.
func (s *Sampler) Admit(e *event.E, relayURL string) (accept bool) {
	st := s.statsFor(relayURL)
	if st.evil {
		return false
	}

	if !s.ShouldVerify(relayURL) {
		st.accepted++
		return true
	}

	ok, err := e.Verify()
	if err != nil || !ok {
		st.evil = true
		if err == nil {
			err = errInvalidSignature(relayURL)
		}
		s.observer(relayURL, err)
		return false
	}
	st.verified++
	return true
}

// Counters returns the current (verified, accepted) counts for relayURL.
func (s *Sampler) Counters(relayURL string) (verified, accepted int64) {
	st := s.statsFor(relayURL)
	return st.verified, st.accepted
}

type sigError string

func (e sigError) Error() string { return string(e) }

func errInvalidSignature(relayURL string) error {
	return sigError("sampler: invalid signature from relay " + relayURL)
}
