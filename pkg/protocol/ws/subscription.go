package ws

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"nostrkit.dev/pkg/encoders/envelopes/closeenvelope"
	"nostrkit.dev/pkg/encoders/envelopes/reqenvelope"
	"nostrkit.dev/pkg/encoders/event"
	"nostrkit.dev/pkg/encoders/filter"
	"nostrkit.dev/pkg/utils/context"
)

// Subscription represents one REQ/CLOSE lifecycle against a single relay,
// generalized from the teacher's orly.dev/pkg/protocol/ws.Subscription.
type Subscription struct {
	counter int64
	id      string

	Client  *Client
	Filters []*filter.F

	Events chan *event.E
	mu     sync.Mutex

	EndOfStoredEvents chan struct{}
	ClosedReason      chan string

	Context context.T

	match  func(*event.E) bool
	live   atomic.Bool
	eosed  atomic.Bool
	cancel context.C

	storedwg sync.WaitGroup
}

// SubscriptionOption configures a Subscription at creation time.
type SubscriptionOption interface{ IsSubscriptionOption() }

// WithLabel appends a human-readable label to the subscription id sent to
// relays, after the numeric counter and a ':'.
type WithLabel string

func (WithLabel) IsSubscriptionOption() {}

func (sub *Subscription) start() {
	<-sub.Context.Done()
	sub.unsub(errors.New("context done on start()"))
	sub.mu.Lock()
	close(sub.Events)
	sub.mu.Unlock()
}

// GetID returns the subscription id.
func (sub *Subscription) GetID() string { return sub.id }

func (sub *Subscription) matchAny(e *event.E) bool {
	for _, f := range sub.Filters {
		match := f.Matches
		if sub.eosed.Load() {
			match = f.MatchIgnoringTimestamps
		}
		if match(e) {
			return true
		}
	}
	return false
}

func (sub *Subscription) dispatchEvent(evt *event.E) {
	added := false
	if !sub.eosed.Load() {
		sub.storedwg.Add(1)
		added = true
	}
	go func() {
		sub.mu.Lock()
		defer sub.mu.Unlock()
		if sub.live.Load() {
			select {
			case sub.Events <- evt:
			case <-sub.Context.Done():
			}
		}
		if added {
			sub.storedwg.Done()
		}
	}()
}

func (sub *Subscription) dispatchEose() {
	if sub.eosed.CompareAndSwap(false, true) {
		go func() {
			sub.storedwg.Wait()
			sub.EndOfStoredEvents <- struct{}{}
		}()
	}
}

// handleClosed processes a relay-initiated CLOSED message.
func (sub *Subscription) handleClosed(reason string) {
	go func() {
		sub.ClosedReason <- reason
		sub.live.Store(false)
		sub.unsub(fmt.Errorf("CLOSED received: %s", reason))
	}()
}

// Unsub closes the subscription and sends CLOSE to the relay.
func (sub *Subscription) Unsub() { sub.unsub(errors.New("Unsub() called")) }

func (sub *Subscription) unsub(err error) {
	sub.cancel(err)
	if sub.live.CompareAndSwap(true, false) {
		sub.Close()
	}
	sub.Client.Subscriptions.Delete(sub.id)
}

// Close sends a CLOSE message without removing the subscription from the
// client's registry; most callers want Unsub instead.
func (sub *Subscription) Close() {
	if sub.Client.IsConnected() {
		closeb := closeenvelope.New(sub.id).Marshal(nil)
		<-sub.Client.Write(closeb)
	}
}

// Fire sends the REQ command for sub.Filters.
func (sub *Subscription) Fire() (err error) {
	reqb := reqenvelope.New(sub.id, sub.Filters...).Marshal(nil)
	sub.live.Store(true)
	if err = <-sub.Client.Write(reqb); err != nil {
		err = fmt.Errorf("failed to write: %w", err)
		sub.cancel(err)
		return
	}
	return
}
