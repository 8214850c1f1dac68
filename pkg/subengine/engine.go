// Package subengine implements the subscription engine of spec.md §4.5
// (C6), the architectural centerpiece: it groups subscriptions created
// close in time into merged REQs per relay, demultiplexes arriving events
// back to their owning subscriptions, aggregates EOSE across relays with
// an adaptive deadline, and layers cache strategies over the relay pool.
//
// Grounded file-by-file on the teacher's own client fan-out code
// (orly.dev/pkg/protocol/ws/pool.go's subMany): this module is a client
// rather than a relay, so grouping/dedup/adaptive-EOSE is new domain logic,
// but it reuses the teacher's seenAlready-xsync-map dedup shape and
// eosed-atomic.Bool + eoseWg aggregation pattern, generalized from "one
// subscription, many relays" to "many subscriptions, grouped filters,
// many relays".
package subengine

import (
	"errors"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bep/debounce"

	"nostrkit.dev/pkg/cache"
	"nostrkit.dev/pkg/encoders/event"
	"nostrkit.dev/pkg/encoders/filter"
	"nostrkit.dev/pkg/protocol/ws"
	"nostrkit.dev/pkg/sampler"
	"nostrkit.dev/pkg/utils/context"
	"nostrkit.dev/pkg/utils/log"
)

// Options configures an Engine's timing (spec.md §4.5/§6 default
// timeouts).
type Options struct {
	DebounceWindow time.Duration // default 100ms
	EOSETolerance  time.Duration
	EOSECap        time.Duration // default 5s absolute cap
}

// DefaultOptions matches spec.md's stated defaults.
var DefaultOptions = Options{
	DebounceWindow: 100 * time.Millisecond,
	EOSETolerance:  200 * time.Millisecond,
	EOSECap:        5 * time.Second,
}

// Engine is the subscription engine (spec.md §4.5).
type Engine struct {
	pool    *ws.Pool
	cache   *cache.Events
	samp    *sampler.Sampler
	opts    Options

	pendingMu sync.Mutex
	pending   []*pendingRequest
	flush     func(func())
}

type pendingRequest struct {
	sub    *Subscription
	relays []string
}

// New returns an Engine driving subscriptions through pool. cache and samp
// may be nil. Without a cache, CacheFirst and Parallel go to relays only
// and CacheOnly delivers nothing before firing EOSE. Without a sampler the
// engine skips its per-relay blacklist check; signature verification is
// unaffected, since it happens in the relay Client's read loop.
func New(pool *ws.Pool, events *cache.Events, samp *sampler.Sampler, opts Options) *Engine {
	if opts.DebounceWindow <= 0 {
		opts = DefaultOptions
	}
	e := &Engine{pool: pool, cache: events, samp: samp, opts: opts}
	e.flush = debounce.New(opts.DebounceWindow)
	return e
}

// Subscribe opens a long-lived subscription across relays using strategy,
// grouped with any other pending subscription requests that share a
// compatible filter and relay set within the debounce window (spec.md
// §4.5 "Grouping").
func (e *Engine) Subscribe(ctx context.T, relays []string, filters []*filter.F, strategy Strategy) *Subscription {
	return e.open(ctx, relays, filters, strategy, false)
}

// Fetch is the fetch-once convenience: it behaves like Subscribe with
// closeOnEose=true and blocks until EOSE, returning the deduped event set
// (spec.md §4.5 "Fetch-once").
func (e *Engine) Fetch(ctx context.T, relays []string, filters []*filter.F, strategy Strategy) []*event.E {
	sub := e.open(ctx, relays, filters, strategy, true)
	var out []*event.E
	for {
		select {
		case ev, ok := <-sub.Events:
			if !ok {
				return out
			}
			out = append(out, ev)
		case <-sub.EOSE:
			// drain anything already buffered before returning
			for {
				select {
				case ev := <-sub.Events:
					out = append(out, ev)
				default:
					return out
				}
			}
		case <-ctx.Done():
			return out
		}
	}
}

func (e *Engine) open(ctx context.T, relays []string, filters []*filter.F, strategy Strategy, closeOnEose bool) *Subscription {
	sub := newSubscription(newSubID(), filters, relays, strategy, closeOnEose)

	if strategy == CacheOnly || strategy == CacheFirst || strategy == Parallel {
		hits := e.serveFromCache(sub)
		if strategy == CacheOnly {
			go func() {
				for _, h := range hits {
					sub.deliver(h)
				}
				sub.fireEose()
			}()
			return sub
		}
		if strategy == CacheFirst && enoughHits(hits, filters) {
			go func() {
				for _, h := range hits {
					sub.deliver(h)
				}
				sub.fireEose()
			}()
			return sub
		}
		go func() {
			for _, h := range hits {
				if sub.markSeen(h.IDHex()) {
					sub.deliver(h)
				}
			}
		}()
	}

	e.enqueue(sub, relays)
	return sub
}

func enoughHits(hits []*event.E, filters []*filter.F) bool {
	if len(hits) == 0 {
		return false
	}
	for _, f := range filters {
		if f.Limit != nil && len(hits) < *f.Limit {
			return false
		}
	}
	return true
}

func (e *Engine) serveFromCache(sub *Subscription) []*event.E {
	if e.cache == nil {
		return nil
	}
	var out []*event.E
	for _, f := range sub.Filters {
		for _, id := range f.IDs {
			if ev, ok := e.cache.Get(id); ok && f.Matches(ev) {
				out = append(out, ev)
			}
		}
	}
	return out
}

// enqueue adds sub to the pending grouping batch and schedules (or
// extends) the debounce flush.
func (e *Engine) enqueue(sub *Subscription, relays []string) {
	e.pendingMu.Lock()
	e.pending = append(e.pending, &pendingRequest{sub: sub, relays: relays})
	e.pendingMu.Unlock()
	e.flush(e.flushBatch)
}

// flushBatch groups pending requests sharing a relay set into merged REQs
// per relay and starts demultiplexing (spec.md §4.5 "Grouping").
func (e *Engine) flushBatch() {
	e.pendingMu.Lock()
	reqs := e.pending
	e.pending = nil
	e.pendingMu.Unlock()

	groups := groupByRelaySet(reqs)
	for _, g := range groups {
		e.runGroup(g)
	}
}

type group struct {
	relays  []string
	members []*pendingRequest
	merged  []*filter.F
}

// groupByRelaySet merges pending requests that target the same relay set
// and carry mutually compatible filters (spec.md §4.5). Requests whose
// filters cannot be merged are placed in their own singleton group so the
// engine never silently widens what a caller asked for.
func groupByRelaySet(reqs []*pendingRequest) []*group {
	var groups []*group
outer:
	for _, r := range reqs {
		key := relayKey(r.relays)
		for _, g := range groups {
			if relayKey(g.relays) != key {
				continue
			}
			if mergeableWithGroup(g, r.sub.Filters) {
				g.members = append(g.members, r)
				g.merged = mergeFilterLists(g.merged, r.sub.Filters)
				continue outer
			}
		}
		groups = append(groups, &group{
			relays:  r.relays,
			members: []*pendingRequest{r},
			merged:  append([]*filter.F(nil), r.sub.Filters...),
		})
	}
	return groups
}

func mergeableWithGroup(g *group, filters []*filter.F) bool {
	if len(g.merged) != len(filters) {
		return false
	}
	for i, f := range filters {
		if !compatible(g.merged[i], f) {
			return false
		}
	}
	return true
}

func mergeFilterLists(a, b []*filter.F) []*filter.F {
	out := make([]*filter.F, len(a))
	for i := range a {
		out[i] = merge(a[i], b[i])
	}
	return out
}

func relayKey(relays []string) string {
	sorted := append([]string(nil), relays...)
	sort.Strings(sorted)
	key := ""
	for _, r := range sorted {
		key += r + "\x00"
	}
	return key
}

// runGroup opens one physical subscription per relay for g (adapted from
// the teacher's subMany: goroutine-per-relay; a relay that drops or sends
// CLOSED is not re-dialed) and
// demultiplexes arriving events back to each member subscription,
// aggregating EOSE across relays with an adaptive deadline.
//
// The group's relay-level REQs stay alive only as long as at least one
// member Subscription is still open: ctx is canceled once every member
// has closed (spec.md §4.5 Termination, P8), which in turn unwinds each
// relay's ws.Subscription (it watches the same derived context and sends
// CLOSE on cancellation), so closing the last member sends at most one
// CLOSE per relay and this goroutine group exits instead of leaking.
func (e *Engine) runGroup(g *group) {
	ctx, cancel := context.Cause(context.Bg())

	var remaining atomic.Int64
	remaining.Store(int64(len(g.members)))
	for _, m := range g.members {
		m.sub.OnClose(func() {
			if remaining.Add(-1) == 0 {
				cancel(errors.New("all member subscriptions closed"))
			}
		})
	}

	var mu sync.Mutex
	start := time.Now()
	eoseAt := make([]time.Time, len(g.relays))
	doneEose := make(chan int, len(g.relays))

	for i, url := range g.relays {
		go func(i int, url string) {
			if e.samp != nil && e.samp.IsBlacklisted(url) {
				log.D.F("subengine: %s blacklisted, skipping", url)
				doneEose <- i
				return
			}
			relay, err := e.pool.EnsureRelay(url)
			if err != nil {
				log.D.F("subengine: %s unreachable: %s", url, err)
				doneEose <- i
				return
			}
			sub, err := relay.Subscribe(ctx, g.merged)
			if err != nil {
				log.D.F("subengine: %s subscribe failed: %s", url, err)
				doneEose <- i
				return
			}
			for {
				select {
				case <-ctx.Done():
					return
				case <-sub.EndOfStoredEvents:
					mu.Lock()
					eoseAt[i] = time.Now()
					mu.Unlock()
					doneEose <- i
				case <-sub.ClosedReason:
					doneEose <- i
					return
				case ev, more := <-sub.Events:
					if !more {
						return
					}
					e.demux(g, ev)
				}
			}
		}(i, url)
	}

	go e.aggregateEose(g, doneEose, start)
}

// demux fans ev out to every member subscription in g whose filter
// matches. Admission (verification frequency, blacklisting) already
// happened upstream in the relay Client's read loop (spec.md C2); by the
// time an event reaches here it has already cleared the sampler.
func (e *Engine) demux(g *group, ev *event.E) {
	for _, m := range g.members {
		afterEose := m.sub.hasEosed()
		if !m.sub.matches(ev, afterEose) {
			continue
		}
		if m.sub.markSeen(ev.IDHex()) {
			if e.cache != nil {
				_ = e.cache.Put(ev)
			}
			m.sub.deliver(ev)
		}
	}
}

// aggregateEose fires each member's EOSE once every relay in g has
// responded, or an adaptive deadline elapses (spec.md §4.5 "EOSE"):
// median time-to-EOSE over relays that have responded plus tolerance,
// capped at opts.EOSECap.
func (e *Engine) aggregateEose(g *group, doneEose chan int, start time.Time) {
	capDur := e.opts.EOSECap
	if capDur <= 0 {
		capDur = DefaultOptions.EOSECap
	}
	absoluteCap := time.NewTimer(capDur)
	defer absoluteCap.Stop()

	var elapsed []time.Duration
	remaining := len(g.relays)
	adaptiveTimer := time.NewTimer(capDur)
	defer adaptiveTimer.Stop()

	for remaining > 0 {
		select {
		case <-doneEose:
			remaining--
			elapsed = append(elapsed, time.Since(start))
			if remaining > 0 {
				deadline := median(elapsed) + e.opts.EOSETolerance
				if deadline > capDur {
					deadline = capDur
				}
				resetTimer(adaptiveTimer, time.Until(start.Add(deadline)))
			}
		case <-adaptiveTimer.C:
			remaining = 0
		case <-absoluteCap.C:
			remaining = 0
		}
	}

	for _, m := range g.members {
		m.sub.fireEose()
	}
}

func resetTimer(t *time.Timer, d time.Duration) {
	if !t.Stop() {
		select {
		case <-t.C:
		default:
		}
	}
	if d < 0 {
		d = 0
	}
	t.Reset(d)
}

func median(d []time.Duration) time.Duration {
	if len(d) == 0 {
		return 0
	}
	sorted := append([]time.Duration(nil), d...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	return sorted[len(sorted)/2]
}

var subIDCounter atomic.Int64

func newSubID() string {
	return "sub-" + itoa(subIDCounter.Add(1))
}

func itoa(n int64) string {
	if n == 0 {
		return "0"
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	return string(buf[i:])
}
