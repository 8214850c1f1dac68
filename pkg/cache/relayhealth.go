package cache

import "time"

// RelayHealth is a point-in-time snapshot of a relay's reachability,
// persisted so a fresh process can skip immediately retrying relays it
// knows are currently failing (spec.md §6 "relay_health/" layout).
type RelayHealth struct {
	URL            string    `json:"url"`
	State          string    `json:"state"` // mirrors ws.State.String()
	ConsecutiveErrors int    `json:"consecutive_errors"`
	LastError      string    `json:"last_error,omitempty"`
	LastSeenAt     time.Time `json:"last_seen_at"`
}

// RelayHealths is a typed Layered view keyed by relay URL.
type RelayHealths struct {
	l   *Layered
	ttl time.Duration
}

// NewRelayHealths returns a relay-health sub-cache with the given default
// TTL.
func NewRelayHealths(l *Layered, ttl time.Duration) *RelayHealths {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &RelayHealths{l: l, ttl: ttl}
}

func relayHealthKey(url string) string { return "relay_health:" + url }

// Get returns the cached health snapshot for url, if present and fresh.
func (c *RelayHealths) Get(url string) (*RelayHealth, bool) {
	return Get[*RelayHealth](c.l, relayHealthKey(url))
}

// Put caches h under its URL.
func (c *RelayHealths) Put(h *RelayHealth) error {
	return Set(c.l, relayHealthKey(h.URL), h, c.ttl, WriteThrough)
}
