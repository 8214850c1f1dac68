// Package tracker implements the subscription tracker of spec.md §4.8
// (C9): an observability sidecar recording per-subscription metrics (the
// engine itself never blocks on it). Grounded on the teacher's pervasive
// use of github.com/puzpuzpuz/xsync/v3.MapOf for concurrent per-key
// counters throughout orly.dev/pkg/protocol/ws/{pool,client}.go, plus a
// bounded ring of closed subscriptions using stdlib container/ring — no
// pack dependency offers a ring buffer more idiomatically than the
// standard library's own container/ring, which is itself the canonical
// tool for this (documented stdlib justification).
package tracker

import (
	"container/ring"
	"sync"
	"time"

	"github.com/puzpuzpuz/xsync/v3"

	"nostrkit.dev/pkg/encoders/filter"
)

// RelayMetrics is per-relay state for one subscription.
type RelayMetrics struct {
	AppliedFilter []*filter.F
	EOSEReceivedAt time.Time
}

// Record is the tracker's view of one subscription (spec.md §4.8).
type Record struct {
	ID              string
	OriginalFilters []*filter.F
	CreatedAt       time.Time
	ClosedAt        time.Time

	mu             sync.Mutex
	relays         map[string]*RelayMetrics
	eventsTotal    int64
	eventsUnique   int64
}

func newRecord(id string, filters []*filter.F) *Record {
	return &Record{
		ID:              id,
		OriginalFilters: filters,
		CreatedAt:       time.Now(),
		relays:          make(map[string]*RelayMetrics),
	}
}

func (r *Record) relay(url string) *RelayMetrics {
	r.mu.Lock()
	defer r.mu.Unlock()
	rm, ok := r.relays[url]
	if !ok {
		rm = &RelayMetrics{}
		r.relays[url] = rm
	}
	return rm
}

// Snapshot is an exported, lock-free copy of a Record for debugging export
// (spec.md §4.8 "export blob").
type Snapshot struct {
	ID              string                   `json:"id"`
	CreatedAt       time.Time                `json:"created_at"`
	ClosedAt        time.Time                `json:"closed_at,omitempty"`
	EventsTotal     int64                    `json:"events_total"`
	EventsUnique    int64                    `json:"events_unique"`
	RelayEOSEAt     map[string]time.Time     `json:"relay_eose_at"`
}

func (r *Record) snapshot() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	eoseAt := make(map[string]time.Time, len(r.relays))
	for url, rm := range r.relays {
		eoseAt[url] = rm.EOSEReceivedAt
	}
	return Snapshot{
		ID: r.ID, CreatedAt: r.CreatedAt, ClosedAt: r.ClosedAt,
		EventsTotal: r.eventsTotal, EventsUnique: r.eventsUnique,
		RelayEOSEAt: eoseAt,
	}
}

// Tracker records per-subscription metrics for active and recently-closed
// subscriptions (spec.md §4.8). All operations are thread-safe.
type Tracker struct {
	active *xsync.MapOf[string, *Record]

	ringMu     sync.Mutex
	closedRing *ring.Ring
	closedLen  int
	ringCap    int
}

// New returns a Tracker keeping the last ringCap closed subscriptions
// (spec.md §4.8 default 100).
func New(ringCap int) *Tracker {
	if ringCap <= 0 {
		ringCap = 100
	}
	return &Tracker{
		active:     xsync.NewMapOf[string, *Record](),
		closedRing: ring.New(ringCap),
		ringCap:    ringCap,
	}
}

// Start begins tracking a new subscription.
func (t *Tracker) Start(id string, filters []*filter.F) {
	t.active.Store(id, newRecord(id, filters))
}

// RecordEvent registers one event delivery for sub id from relayURL.
// fresh must report whether this was the first delivery of that event id
// to this subscription (spec.md §4.8 "total and unique").
func (t *Tracker) RecordEvent(id, relayURL string, fresh bool) {
	rec, ok := t.active.Load(id)
	if !ok {
		return
	}
	rec.mu.Lock()
	rec.eventsTotal++
	if fresh {
		rec.eventsUnique++
	}
	rec.mu.Unlock()
}

// RecordEOSE records relayURL's EOSE time for sub id.
func (t *Tracker) RecordEOSE(id, relayURL string) {
	rec, ok := t.active.Load(id)
	if !ok {
		return
	}
	rec.relay(relayURL).EOSEReceivedAt = time.Now()
}

// RecordAppliedFilter records the per-relay filter actually sent for sub
// id (which may differ from the original via merging, spec.md §4.5/§4.8).
func (t *Tracker) RecordAppliedFilter(id, relayURL string, applied []*filter.F) {
	rec, ok := t.active.Load(id)
	if !ok {
		return
	}
	rec.relay(relayURL).AppliedFilter = applied
}

// Close moves sub id from active into the bounded closed ring.
func (t *Tracker) Close(id string) {
	rec, ok := t.active.LoadAndDelete(id)
	if !ok {
		return
	}
	rec.mu.Lock()
	rec.ClosedAt = time.Now()
	rec.mu.Unlock()

	t.ringMu.Lock()
	defer t.ringMu.Unlock()
	t.closedRing.Value = rec
	t.closedRing = t.closedRing.Next()
	if t.closedLen < t.ringCap {
		t.closedLen++
	}
}

// ActiveCount returns the number of currently-tracked subscriptions.
func (t *Tracker) ActiveCount() int {
	n := 0
	t.active.Range(func(string, *Record) bool { n++; return true })
	return n
}

// UniqueEvents returns the unique-event count for an active subscription.
func (t *Tracker) UniqueEvents(id string) (count int64, ok bool) {
	rec, found := t.active.Load(id)
	if !found {
		return 0, false
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	return rec.eventsUnique, true
}

// RelayMetricsFor returns a snapshot of per-relay metrics for an active
// subscription.
func (t *Tracker) RelayMetricsFor(id string) (map[string]RelayMetrics, bool) {
	rec, found := t.active.Load(id)
	if !found {
		return nil, false
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	out := make(map[string]RelayMetrics, len(rec.relays))
	for url, rm := range rec.relays {
		out[url] = *rm
	}
	return out, true
}

// Export returns a debugging snapshot of every active subscription plus
// the bounded history of recently-closed ones (spec.md §4.8).
func (t *Tracker) Export() []Snapshot {
	var out []Snapshot
	t.active.Range(func(_ string, rec *Record) bool {
		out = append(out, rec.snapshot())
		return true
	})

	t.ringMu.Lock()
	defer t.ringMu.Unlock()
	t.closedRing.Do(func(v any) {
		if v == nil {
			return
		}
		out = append(out, v.(*Record).snapshot())
	})
	return out
}
