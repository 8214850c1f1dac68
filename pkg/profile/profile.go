// Package profile implements the batched profile manager of spec.md §4.7
// (C8): fetchProfile(pubkey) serves a cached kind-0 profile when fresh, or
// enqueues the pubkey into a debounced batch merged into a single
// {kinds:[0], authors:[...]} filter. Grounded on the teacher's
// Pool.FetchManyReplaceable dedup-by-pubkey accumulation pattern
// (orly.dev/pkg/protocol/ws/pool.go), generalized to batch *requests* (not
// just responses) using github.com/bep/debounce, then issued through
// pkg/subengine so the batch still benefits from the engine's own
// cache/relay strategy layering.
package profile

import (
	"sync"
	"time"

	"github.com/bep/debounce"

	"nostrkit.dev/pkg/cache"
	"nostrkit.dev/pkg/encoders/filter"
	"nostrkit.dev/pkg/encoders/kind"
	"nostrkit.dev/pkg/subengine"
	"nostrkit.dev/pkg/utils/context"
)

// Options configures batching/TTL behavior (spec.md §4.7 defaults).
type Options struct {
	BatchDelay time.Duration // default 200ms
	MaxBatch   int           // default 50
	TTL        time.Duration // default 1h
	Relays     []string
}

// DefaultOptions matches spec.md's stated defaults.
var DefaultOptions = Options{
	BatchDelay: 200 * time.Millisecond,
	MaxBatch:   50,
	TTL:        time.Hour,
}

type pendingFetch struct {
	pubkey string
	result chan *cache.Profile
}

// Manager is the batched profile fetcher (spec.md §4.7).
type Manager struct {
	engine   *subengine.Engine
	profiles *cache.Profiles
	opts     Options

	mu      sync.Mutex
	pending []*pendingFetch
	flush   func(func())
}

// New returns a Manager fetching kind-0 events through engine, caching
// results in profiles.
func New(engine *subengine.Engine, profiles *cache.Profiles, opts Options) *Manager {
	if opts.BatchDelay <= 0 {
		opts = DefaultOptions
	}
	m := &Manager{engine: engine, profiles: profiles, opts: opts}
	m.flush = debounce.New(opts.BatchDelay)
	return m
}

// FetchProfile returns pubkey's cached profile if present and fresh, or
// enqueues pubkey into the current batch and blocks until that batch's
// merged fetch resolves (spec.md §4.7). forceRefresh bypasses the cache
// read.
func (m *Manager) FetchProfile(ctx context.T, pubkey string, forceRefresh bool) *cache.Profile {
	if !forceRefresh {
		if p, ok := m.profiles.Get(pubkey); ok {
			return p
		}
	}

	pf := &pendingFetch{pubkey: pubkey, result: make(chan *cache.Profile, 1)}
	m.mu.Lock()
	m.pending = append(m.pending, pf)
	batch := m.pending
	if len(batch) >= m.opts.MaxBatch {
		m.pending = nil
		go m.runBatch(ctx, batch)
	} else {
		m.flush(func() { m.flushPending(ctx) })
	}
	m.mu.Unlock()

	select {
	case p := <-pf.result:
		return p
	case <-ctx.Done():
		return nil
	}
}

func (m *Manager) flushPending(ctx context.T) {
	m.mu.Lock()
	batch := m.pending
	m.pending = nil
	m.mu.Unlock()
	if len(batch) == 0 {
		return
	}
	m.runBatch(ctx, batch)
}

// runBatch issues one merged {kinds:[0], authors:[...]} filter for batch
// through the subscription engine and resolves each pending fetch.
func (m *Manager) runBatch(ctx context.T, batch []*pendingFetch) {
	authors := make([]string, 0, len(batch))
	seen := make(map[string]struct{}, len(batch))
	for _, pf := range batch {
		if _, ok := seen[pf.pubkey]; ok {
			continue
		}
		seen[pf.pubkey] = struct{}{}
		authors = append(authors, pf.pubkey)
	}

	f := &filter.F{Kinds: []kind.T{kind.Metadata}, Authors: authors}
	events := m.engine.Fetch(ctx, m.opts.Relays, []*filter.F{f}, subengine.CacheFirst)

	// a pubkey may publish more than one kind-0 across relays; keep the
	// most recent per spec.md §3's replaceable-event semantics.
	byPubkey := make(map[string]*cache.Profile, len(events))
	latest := make(map[string]int64, len(events))
	for _, ev := range events {
		p, err := cache.ParseProfile(ev.PubkeyHex(), ev.Content)
		if err != nil {
			continue
		}
		p.FetchedAt = time.Now()
		if ts := ev.CreatedAt.I64(); ts >= latest[p.Pubkey] {
			latest[p.Pubkey] = ts
			byPubkey[p.Pubkey] = p
		}
	}
	for _, p := range byPubkey {
		_ = m.profiles.Put(p)
	}

	for _, pf := range batch {
		pf.result <- byPubkey[pf.pubkey]
	}
}
