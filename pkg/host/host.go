// Package host implements the C10 host facade of spec.md §4 / SPEC_FULL.md
// §12: the single entry point wiring signer, cache, pool, sampler,
// subscription engine, outbox, profile manager and tracker into one
// object. Construction mirrors the teacher's app/config.New +
// database.New + pkg/app/relay wiring sequence: configuration loaded
// first, the disk cache opened against DataDir, then the sampler (so the
// relay pool can be built with it wired into every Client it creates),
// and finally the subscription engine and outbox which depend on the
// pool and cache being ready.
package host

import (
	"fmt"
	"time"

	"nostrkit.dev/internal/config"
	"nostrkit.dev/pkg/cache"
	"nostrkit.dev/pkg/encoders/event"
	"nostrkit.dev/pkg/encoders/filter"
	"nostrkit.dev/pkg/encoders/kind"
	"nostrkit.dev/pkg/interfaces/signer"
	"nostrkit.dev/pkg/nip19"
	"nostrkit.dev/pkg/outbox"
	"nostrkit.dev/pkg/profile"
	"nostrkit.dev/pkg/protocol/ws"
	"nostrkit.dev/pkg/sampler"
	"nostrkit.dev/pkg/subengine"
	"nostrkit.dev/pkg/tracker"
	"nostrkit.dev/pkg/utils/chk"
	"nostrkit.dev/pkg/utils/context"
)

// Host is the facade applications build against: one object exposing
// fetch/subscribe/publish/profile operations over a layered cache and a
// pool of relay connections.
type Host struct {
	Config *config.C

	Cache    *cache.Layered
	Events   *cache.Events
	Profiles *cache.Profiles

	Pool    *ws.Pool
	Sampler *sampler.Sampler
	Engine  *subengine.Engine
	Outbox  *outbox.Outbox
	Manager *profile.Manager
	Tracker *tracker.Tracker

	Decoder nip19.Decoder

	signer signer.I
	relays []string
}

// Options lets callers override defaults the way the teacher's relay
// wiring accepts functional PoolOptions.
type Options struct {
	Cfg            *config.C
	Signer         signer.I
	Relays         []string
	SamplerPolicy  sampler.Policy
	EngineOptions  subengine.Options
	OutboxPolicy   outbox.Policy
	ProfileOptions profile.Options
	TrackerRingCap int
	PoolOptions    []ws.PoolOption
}

// New wires a Host per SPEC_FULL.md §12. cfg may be nil, in which case
// config.New() loads it from the environment.
func New(opts Options) (*Host, error) {
	cfg := opts.Cfg
	if cfg == nil {
		var err error
		cfg, err = config.New()
		if chk.E(err) {
			return nil, err
		}
	}

	l, err := cache.Open(cache.Config{
		DiskPath:   cfg.DataDir,
		MaxL1Items: orDefault(cfg.MaxL1Items, 100_000),
		MaxL1Bytes: orDefault(cfg.MaxL1Bytes, 64<<20),
		MaxL2Bytes: orDefault(cfg.MaxL2Bytes, 1<<30),
	})
	if chk.E(err) {
		return nil, err
	}

	events := cache.NewEvents(l, 24*time.Hour)
	profiles := cache.NewProfiles(l, time.Hour)

	policy := opts.SamplerPolicy
	if (policy == sampler.Policy{}) {
		policy = sampler.Default
	}
	samp := sampler.New(policy, nil)

	poolOpts := append(append([]ws.PoolOption{}, opts.PoolOptions...), ws.WithSampler{Sampler: samp})
	pool := ws.NewPool(context.Bg(), poolOpts...)

	engOpts := opts.EngineOptions
	if (engOpts == subengine.Options{}) {
		engOpts = subengine.DefaultOptions
	}
	engine := subengine.New(pool, events, samp, engOpts)

	outboxPolicy := opts.OutboxPolicy
	if (outboxPolicy == outbox.Policy{}) {
		outboxPolicy = outbox.DefaultPolicy
	}
	ob := outbox.New(pool, events, outboxPolicy)

	profOpts := opts.ProfileOptions
	if profOpts.BatchDelay == 0 && profOpts.MaxBatch == 0 && profOpts.TTL == 0 {
		profOpts = profile.DefaultOptions
	}
	profOpts.Relays = nonEmptyOr(profOpts.Relays, opts.Relays)
	mgr := profile.New(engine, profiles, profOpts)

	trk := tracker.New(opts.TrackerRingCap)

	return &Host{
		Config:   cfg,
		Cache:    l,
		Events:   events,
		Profiles: profiles,
		Pool:     pool,
		Sampler:  samp,
		Engine:   engine,
		Outbox:   ob,
		Manager:  mgr,
		Tracker:  trk,
		Decoder:  nip19.Default,
		signer:   opts.Signer,
		relays:   nonEmptyOr(opts.Relays, cfg.Relays),
	}, nil
}

// Close releases the host's disk cache.
func (h *Host) Close() error {
	return h.Cache.Close()
}

// FetchByIdentifier resolves a NIP-19 identifier (spec.md §6 "NIP-19
// identifiers (consumed)") and fetches the matching event, tracking it
// under tracker for observability (spec.md §4.8).
func (h *Host) FetchByIdentifier(ctx context.T, id string) (*event.E, error) {
	ptr, err := h.Decoder.Decode(id)
	if err != nil {
		return nil, err
	}

	f := &filter.F{IDs: []string{ptr.EventID}}
	if ptr.Kind == nip19.KindAddr {
		f = &filter.F{
			Authors: []string{ptr.Author},
			Kinds:   []kind.T{kind.T(ptr.AddrKind)},
			Tags:    map[string][]string{"d": {ptr.Identifier}},
		}
	}

	relays := h.relays
	if len(ptr.Relays) > 0 {
		relays = append(append([]string{}, ptr.Relays...), relays...)
	}

	subID := "fetch-" + id
	h.Tracker.Start(subID, []*filter.F{f})
	defer h.Tracker.Close(subID)

	events := h.Engine.Fetch(ctx, relays, []*filter.F{f}, subengine.CacheFirst)
	if len(events) == 0 {
		return nil, nil
	}
	return events[0], nil
}

// Publish mines PoW (if difficulty > 0), signs ev and hands it to the
// outbox (spec.md §4.6). It returns an error when mining finds no nonce
// within its iteration budget.
func (h *Host) Publish(ctx context.T, ev *event.E, difficulty int) (*outbox.OutboxRecord, error) {
	if difficulty > 0 {
		ev.Pubkey = h.signer.Pub()
		if !outbox.MinePoW(ev, difficulty, 1<<24) {
			return nil, fmt.Errorf("host: no nonce reaching difficulty %d found", difficulty)
		}
	}
	if err := ev.Sign(h.signer); err != nil {
		return nil, err
	}
	return h.Outbox.Publish(ctx, ev, h.relays), nil
}

func orDefault(v, def int64) int64 {
	if v == 0 {
		return def
	}
	return v
}

func nonEmptyOr(primary, fallback []string) []string {
	if len(primary) > 0 {
		return primary
	}
	return fallback
}
