// Package outbox implements the publish outbox of spec.md §4.6 (C7): given
// a signed event and a target-relay set, it tracks per-relay publish
// status, correlates OK acks, and retries failed targets with exponential
// backoff. Records are held in memory only: the event itself is written to
// the events cache, but OutboxRecord state is not persisted and is not
// reloaded after a restart.
//
// Grounded on two teacher precedents: the commented-out
// `Pool.PublishMany` scaffold in orly.dev/pkg/protocol/ws/pool.go (the
// per-relay-goroutine + results-channel shape, implemented for real
// here), and orly.dev/pkg/protocol/nwc.Client's request/response
// correlation-by-id pattern, reused here to correlate `OK` acks against
// pending OutboxRecord target statuses.
package outbox

import (
	"strings"
	"sync"
	"time"

	"lukechampine.com/frand"

	"nostrkit.dev/pkg/backoff"
	"nostrkit.dev/pkg/cache"
	"nostrkit.dev/pkg/encoders/envelopes/okenvelope"
	"nostrkit.dev/pkg/encoders/event"
	"nostrkit.dev/pkg/encoders/tag"
	"nostrkit.dev/pkg/protocol/ws"
	"nostrkit.dev/pkg/utils/context"
)

// TargetState is the lifecycle of one relay target within an OutboxRecord.
type TargetState int

const (
	Pending TargetState = iota
	InProgress
	Succeeded
	Failed
)

func (s TargetState) String() string {
	switch s {
	case Pending:
		return "pending"
	case InProgress:
		return "in-progress"
	case Succeeded:
		return "succeeded"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// FailCause classifies why a target failed (spec.md §4.6 "Status mapping
// from OK").
type FailCause string

const (
	CauseNone           FailCause = ""
	CauseTimeout        FailCause = "timeout"
	CauseConnectionLost FailCause = "connectionLost"
	CauseRelayReason    FailCause = "relayReason" // carries okenvelope.Reason in TargetStatus.Reason
)

// TargetStatus is the outcome for one relay within an OutboxRecord.
type TargetStatus struct {
	State       TargetState      `json:"state"`
	Cause       FailCause        `json:"cause,omitempty"`
	Reason      okenvelope.Reason `json:"reason,omitempty"`
	Detail      string           `json:"detail,omitempty"`
	Attempt     int              `json:"attempt"`
	LastAttempt time.Time        `json:"last_attempt"`
}

// AggregateState summarizes an OutboxRecord across all its targets.
type AggregateState int

const (
	AggInProgress AggregateState = iota
	AggSucceeded
	AggFailed
)

// OutboxRecord tracks the publish lifecycle of one event across its
// target relays (spec.md §4.6).
type OutboxRecord struct {
	EventID   string                  `json:"event_id"`
	Event     *event.E                `json:"-"`
	Targets   map[string]*TargetStatus `json:"targets"`
	CreatedAt time.Time               `json:"created_at"`

	mu sync.Mutex
}

// Aggregate computes the record's overall status per spec.md §4.6.
func (r *OutboxRecord) Aggregate(minSuccess int) AggregateState {
	r.mu.Lock()
	defer r.mu.Unlock()
	succeeded, pending := 0, 0
	for _, t := range r.Targets {
		switch t.State {
		case Succeeded:
			succeeded++
		case Pending, InProgress:
			pending++
		}
	}
	if succeeded >= minSuccess {
		return AggSucceeded
	}
	if pending == 0 {
		return AggFailed
	}
	return AggInProgress
}

// Policy configures an Outbox's timeouts and retry behavior (spec.md
// §4.6/§6 defaults).
type Policy struct {
	AckTimeout          time.Duration
	MinSuccessfulRelays int
	MaxRetries          int
	Retry               backoff.Policy
}

// DefaultPolicy matches spec.md's stated defaults.
var DefaultPolicy = Policy{
	AckTimeout:          10 * time.Second,
	MinSuccessfulRelays: 1,
	MaxRetries:          8,
	Retry:               backoff.Policy{Base: time.Second, Max: 300 * time.Second, Factor: 2},
}

// Outbox is the publish outbox (spec.md §4.6).
type Outbox struct {
	pool     *ws.Pool
	events   *cache.Events
	policy   Policy

	mu      sync.Mutex
	records map[string]*OutboxRecord
	backoffs map[string]*backoff.Backoff // keyed "eventID|relayURL"
}

// New returns an Outbox publishing through pool. events, when non-nil,
// receives a copy of every published event; OutboxRecords themselves live
// only in the Outbox's in-memory map.
func New(pool *ws.Pool, events *cache.Events, policy Policy) *Outbox {
	if policy.AckTimeout <= 0 {
		policy = DefaultPolicy
	}
	return &Outbox{
		pool:     pool,
		events:   events,
		policy:   policy,
		records:  make(map[string]*OutboxRecord),
		backoffs: make(map[string]*backoff.Backoff),
	}
}

// Publish inserts a new OutboxRecord for e targeting relays (defaulting to
// the pool's currently connected relays) and begins sending to each
// target concurrently (spec.md §4.6 steps a/b/c).
func (o *Outbox) Publish(ctx context.T, e *event.E, relays []string) *OutboxRecord {
	if len(relays) == 0 {
		relays = o.connectedRelays()
	}

	rec := &OutboxRecord{
		EventID:   e.IDHex(),
		Event:     e,
		Targets:   make(map[string]*TargetStatus, len(relays)),
		CreatedAt: time.Now(),
	}
	for _, url := range relays {
		rec.Targets[url] = &TargetStatus{State: Pending}
	}

	o.mu.Lock()
	o.records[rec.EventID] = rec
	o.mu.Unlock()

	if o.events != nil {
		_ = o.events.Put(e)
	}

	for _, url := range relays {
		go o.attempt(ctx, rec, url)
	}
	return rec
}

func (o *Outbox) connectedRelays() []string {
	var out []string
	o.pool.Relays.Range(func(url string, relay *ws.Client) bool {
		if relay.IsConnected() {
			out = append(out, url)
		}
		return true
	})
	return out
}

// attempt performs one publish attempt against a single target and
// classifies the outcome (spec.md §4.6 "Status mapping from OK").
func (o *Outbox) attempt(ctx context.T, rec *OutboxRecord, url string) {
	rec.mu.Lock()
	status := rec.Targets[url]
	status.State = InProgress
	status.Attempt++
	status.LastAttempt = time.Now()
	rec.mu.Unlock()

	relay, err := o.pool.EnsureRelay(url)
	if err != nil {
		o.fail(rec, url, CauseConnectionLost, okenvelope.ReasonError, err.Error())
		o.scheduleRetry(ctx, rec, url)
		return
	}

	publishCtx, cancel := context.Timeout(ctx, o.policy.AckTimeout)
	defer cancel()

	if err := relay.Publish(publishCtx, rec.Event); err != nil {
		cause, reason, detail := classify(err)
		o.fail(rec, url, cause, reason, detail)
		if reason != okenvelope.ReasonRateLimited && cause != CauseTimeout {
			return
		}
		o.scheduleRetry(ctx, rec, url)
		return
	}

	rec.mu.Lock()
	status.State = Succeeded
	rec.mu.Unlock()
}

func (o *Outbox) fail(rec *OutboxRecord, url string, cause FailCause, reason okenvelope.Reason, detail string) {
	rec.mu.Lock()
	status := rec.Targets[url]
	status.State = Failed
	status.Cause = cause
	status.Reason = reason
	status.Detail = detail
	rec.mu.Unlock()
}

// classify turns a relay.Publish error into a (cause, reason, detail)
// triple per spec.md §4.6. The "msg: " prefix is the teacher's own
// wrapping convention in Client.publish's OK-false branch.
func classify(err error) (FailCause, okenvelope.Reason, string) {
	msg := err.Error()
	if msg == "context deadline exceeded" {
		return CauseTimeout, okenvelope.ReasonUnknown, ""
	}
	msg = strings.TrimPrefix(msg, "msg: ")
	reason, detail := okenvelope.ParseReason(msg)
	return CauseRelayReason, reason, detail
}

// scheduleRetry schedules another attempt per spec.md §4.6's retry rule,
// using the same exponential-backoff-with-jitter policy as relay
// reconnection.
func (o *Outbox) scheduleRetry(ctx context.T, rec *OutboxRecord, url string) {
	key := rec.EventID + "|" + url
	o.mu.Lock()
	b, ok := o.backoffs[key]
	if !ok {
		b = backoff.New(o.policy.Retry)
		o.backoffs[key] = b
	}
	attempt := b.Failures()
	o.mu.Unlock()

	if attempt >= o.policy.MaxRetries {
		return
	}
	delay := b.Next()

	go func() {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return
		}
		o.attempt(ctx, rec, url)
	}()
}

// Get returns the tracked record for eventID, if any.
func (o *Outbox) Get(eventID string) (*OutboxRecord, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	rec, ok := o.records[eventID]
	return rec, ok
}

// MinePoW mines a nonce tag, prior to signing, so e's id will have at
// least difficulty leading zero bits once signed, per NIP-13, using
// lukechampine.com/frand for nonce randomness exactly as the teacher's
// GenerateRandomTextNoteEvent uses frand elsewhere in the pack. Callers
// must Sign e only after MinePoW returns true; CreatedAt, Kind, Pubkey
// and Content must already be set since they are part of the canonical
// hash the mined nonce is validated against.
func MinePoW(e *event.E, difficulty int, maxIterations int) bool {
	for i := 0; i < maxIterations; i++ {
		nonce := frand.Intn(1 << 62)
		e.Tags = setNonceTag(e.Tags, nonce, difficulty)
		if countLeadingZeroBits(e.ComputeID()) >= difficulty {
			return true
		}
	}
	return false
}

func setNonceTag(tags tag.Tags, nonce, difficulty int) tag.Tags {
	out := tags[:0:0]
	for _, t := range tags {
		if t.Key() == "nonce" {
			continue
		}
		out = append(out, t)
	}
	return append(out, tag.New("nonce", itoa(nonce), itoa(difficulty)))
}

func countLeadingZeroBits(id []byte) int {
	n := 0
	for _, b := range id {
		if b == 0 {
			n += 8
			continue
		}
		for mask := byte(0x80); mask > 0; mask >>= 1 {
			if b&mask != 0 {
				return n
			}
			n++
		}
		return n
	}
	return n
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [24]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}
