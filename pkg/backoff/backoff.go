// Package backoff implements exponential backoff with full jitter, used by
// the relay pool's EnsureRelay (for the delay it reports after a failed
// dial) and the publish outbox's retry scheduler (spec.md §4.6). Generalized from the teacher's
// Pool.penaltyBox fixed-formula sleep loop (orly.dev/pkg/protocol/ws/pool.go)
// into a reusable, stateful helper with the same "doubling window" shape.
package backoff

import (
	"math"
	"math/rand"
	"time"
)

// Policy configures a backoff sequence.
type Policy struct {
	Base   time.Duration // delay after the first failure
	Max    time.Duration // ceiling on any single delay
	Factor float64       // multiplier applied per additional failure
}

// Default starts with a 30-second window after the first failure and
// doubles it per further failure, capped at 5 minutes.
var Default = Policy{Base: 30 * time.Second, Max: 5 * time.Minute, Factor: 2}

// Backoff tracks consecutive-failure state for one entity (a relay URL, an
// outbox record) and hands out jittered delays.
type Backoff struct {
	policy   Policy
	failures int
}

// New returns a Backoff governed by policy.
func New(policy Policy) *Backoff { return &Backoff{policy: policy} }

// Next records a failure and returns how long to wait before the next
// attempt: full jitter over [0, min(Max, Base*Factor^(n-1))], where n is
// the failure count including this one.
func (b *Backoff) Next() time.Duration {
	b.failures++
	window := float64(b.policy.Base) * math.Pow(b.policy.Factor, float64(b.failures-1))
	if max := float64(b.policy.Max); window > max {
		window = max
	}
	if window <= 0 {
		return 0
	}
	return time.Duration(rand.Float64() * window)
}

// Reset clears failure state after a successful attempt.
func (b *Backoff) Reset() { b.failures = 0 }

// Failures reports the number of consecutive failures recorded.
func (b *Backoff) Failures() int { return b.failures }
