package cache

import (
	"time"

	"nostrkit.dev/pkg/encoders/event"
)

// Events is a typed view over Layered for caching individual events by id
// (spec.md §4.3 "typed sub-caches").
type Events struct {
	l   *Layered
	ttl time.Duration
}

// NewEvents returns an events sub-cache with the given default TTL.
func NewEvents(l *Layered, ttl time.Duration) *Events { return &Events{l: l, ttl: ttl} }

func eventKey(id string) string { return "event:" + id }

// Get returns the cached event for id, if present and unexpired.
func (c *Events) Get(id string) (*event.E, bool) {
	return Get[*event.E](c.l, eventKey(id))
}

// Put caches e under its own id with the sub-cache's default TTL.
func (c *Events) Put(e *event.E) error {
	return Set(c.l, eventKey(e.IDHex()), e, c.ttl, WriteThrough)
}

// PutWithTTL caches e with an explicit TTL override.
func (c *Events) PutWithTTL(e *event.E, ttl time.Duration) error {
	return Set(c.l, eventKey(e.IDHex()), e, ttl, WriteThrough)
}
