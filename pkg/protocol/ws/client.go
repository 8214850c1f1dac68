package ws

import (
	"bytes"
	"crypto/tls"
	gocontext "context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/puzpuzpuz/xsync/v3"

	"nostrkit.dev/pkg/backoff"
	"nostrkit.dev/pkg/encoders/envelopes"
	"nostrkit.dev/pkg/encoders/envelopes/authenvelope"
	"nostrkit.dev/pkg/encoders/envelopes/closedenvelope"
	"nostrkit.dev/pkg/encoders/envelopes/eoseenvelope"
	"nostrkit.dev/pkg/encoders/envelopes/eventenvelope"
	"nostrkit.dev/pkg/encoders/envelopes/noticeenvelope"
	"nostrkit.dev/pkg/encoders/envelopes/okenvelope"
	"nostrkit.dev/pkg/encoders/event"
	"nostrkit.dev/pkg/encoders/filter"
	"nostrkit.dev/pkg/encoders/kind"
	"nostrkit.dev/pkg/encoders/tag"
	"nostrkit.dev/pkg/encoders/timestamp"
	"nostrkit.dev/pkg/interfaces/codec"
	"nostrkit.dev/pkg/interfaces/signer"
	"nostrkit.dev/pkg/sampler"
	"nostrkit.dev/pkg/utils/chk"
	"nostrkit.dev/pkg/utils/context"
	"nostrkit.dev/pkg/utils/log"
)

var subscriptionIDCounter atomic.Int64

// State is a Client's connection lifecycle state (spec.md §4.4).
type State int32

// Connection lifecycle states.
const (
	Disconnected State = iota
	Connecting
	Connected
	Disconnecting
	Failed
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Disconnecting:
		return "disconnecting"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// Client represents a connection to a single Nostr relay, generalized from
// the teacher's orly.dev/pkg/protocol/ws.Client with an explicit lifecycle
// state machine (spec.md §4.4). A Client does not reconnect on its own: a
// read error or a blacklisting closes it for good, and its subscriptions
// are not re-sent; Pool.EnsureRelay dials a new Client on its next call.
type Client struct {
	closeMutex sync.Mutex

	URL           string
	requestHeader http.Header

	Connection    *Connection
	Subscriptions *xsync.MapOf[string, *Subscription]

	state atomic.Int32

	ConnectionError         error
	connectionContext       context.T
	connectionContextCancel context.C

	challenge     string
	notices       chan string
	okCallbacks   *xsync.MapOf[string, func(bool, string)]
	writeQueue    chan writeRequest

	backoff *backoff.Backoff

	// Sampler, when set, is the sole gate between the wire and every
	// subscriber: it decides whether each incoming event gets verified,
	// accepts or rejects it, and blacklists the relay on a bad signature
	// (spec.md C2 / P4). Pool.EnsureRelay wires this from the pool's own
	// sampler so every Client it creates shares one set of per-relay
	// stats. A Client built directly (nil Sampler) falls back to
	// verifying every event, matching the "always verify" default the
	// spec requires in the absence of a sampler.
	Sampler *sampler.Sampler
}

type writeRequest struct {
	msg    []byte
	answer chan error
}

// NewRelay returns a new unconnected Client bound to url. The given context,
// when canceled, closes the relay connection permanently.
func NewRelay(ctx context.T, url string, opts ...RelayOption) *Client {
	ctx, cancel := context.Cause(ctx)
	r := &Client{
		URL:                     url,
		connectionContext:       ctx,
		connectionContextCancel: cancel,
		Subscriptions:           xsync.NewMapOf[string, *Subscription](),
		okCallbacks:             xsync.NewMapOf[string, func(bool, string)](),
		writeQueue:              make(chan writeRequest),
		backoff:                 backoff.New(backoff.Default),
	}
	r.state.Store(int32(Disconnected))
	for _, opt := range opts {
		opt.ApplyRelayOption(r)
	}
	return r
}

// RelayConnect returns a Client connected to url.
func RelayConnect(ctx context.T, url string, opts ...RelayOption) (*Client, error) {
	r := NewRelay(context.Bg(), url, opts...)
	err := r.Connect(ctx)
	return r, err
}

// RelayOption configures a Client at construction time.
type RelayOption interface {
	ApplyRelayOption(*Client)
}

// WithRequestHeader sets the HTTP header sent with the websocket upgrade.
type WithRequestHeader http.Header

func (ch WithRequestHeader) ApplyRelayOption(r *Client) { r.requestHeader = http.Header(ch) }

// WithNoticeHandler routes NIP-01 NOTICE messages to a channel instead of
// logging them.
type WithNoticeHandler chan string

func (ch WithNoticeHandler) ApplyRelayOption(r *Client) { r.notices = ch }

// String returns the relay URL.
func (r *Client) String() string { return r.URL }

// Context returns the context bound to this connection's lifetime.
func (r *Client) Context() context.T { return r.connectionContext }

// State reports the current lifecycle state.
func (r *Client) State() State { return State(r.state.Load()) }

// IsConnected reports whether the connection is currently usable.
func (r *Client) IsConnected() bool { return r.State() == Connected }

// Connect tries to establish a websocket connection to r.URL.
func (r *Client) Connect(ctx context.T) error { return r.ConnectWithTLS(ctx, nil) }

// ConnectWithTLS is like Connect but takes an explicit tls.Config.
func (r *Client) ConnectWithTLS(ctx context.T, tlsConfig *tls.Config) error {
	if r.URL == "" {
		return fmt.Errorf("invalid relay URL '%s'", r.URL)
	}
	r.state.Store(int32(Connecting))

	if _, ok := ctx.Deadline(); !ok {
		var cancel gocontext.CancelFunc
		ctx, cancel = context.Timeout(ctx, 7*time.Second)
		defer cancel()
	}

	conn, err := NewConnection(ctx, r.URL, r.requestHeader, tlsConfig)
	if err != nil {
		r.state.Store(int32(Failed))
		return fmt.Errorf("error opening websocket to '%s': %w", r.URL, err)
	}
	r.Connection = conn
	r.state.Store(int32(Connected))
	r.backoff.Reset()

	ticker := time.NewTicker(29 * time.Second)

	go r.writeLoop(ticker)
	go r.readLoop()

	return nil
}

func (r *Client) writeLoop(ticker *time.Ticker) {
	for {
		select {
		case <-r.connectionContext.Done():
			ticker.Stop()
			r.state.Store(int32(Disconnected))
			for _, sub := range r.Subscriptions.Range {
				sub.unsub(fmt.Errorf(
					"relay connection closed: %v / %v",
					context.GetCause(r.connectionContext), r.ConnectionError,
				))
			}
			return

		case <-ticker.C:
			if err := r.Connection.Ping(r.connectionContext); chk.T(err) {
				log.I.F("{%s} error writing ping: %v; closing websocket", r.URL, err)
				r.Close()
				return
			}

		case wr := <-r.writeQueue:
			log.D.F("{%s} sending %s", r.URL, string(wr.msg))
			err := r.Connection.WriteMessage(r.connectionContext, wr.msg)
			if err != nil {
				wr.answer <- err
			}
			close(wr.answer)
		}
	}
}

func (r *Client) readLoop() {
	for {
		buf := new(bytes.Buffer)
		if err := r.Connection.ReadMessage(r.connectionContext, buf); err != nil {
			r.ConnectionError = err
			r.Close()
			return
		}
		message := buf.Bytes()
		log.D.F("{%s} %s", r.URL, message)

		label, err := envelopes.Identify(message)
		if chk.E(err) {
			continue
		}
		switch label {
		case noticeenvelope.L:
			env, err := noticeenvelope.Parse(message)
			if chk.E(err) {
				continue
			}
			if r.notices != nil {
				r.notices <- env.Message
			} else {
				log.E.F("NOTICE from %s: '%s'", r.URL, env.Message)
			}

		case authenvelope.L:
			env, err := authenvelope.ParseChallenge(message)
			if chk.E(err) {
				continue
			}
			if env.Challenge != "" {
				r.challenge = env.Challenge
			}

		case eventenvelope.L:
			env, err := eventenvelope.ParseResult(message)
			if chk.E(err) {
				continue
			}
			if env.SubscriptionID == "" {
				continue
			}
			sub, ok := r.Subscriptions.Load(env.SubscriptionID)
			if !ok {
				log.D.F("{%s} no subscription with id '%s'", r.URL, env.SubscriptionID)
				continue
			}
			if !sub.match(env.Event) {
				log.D.F("{%s} filter does not match event %s", r.URL, env.Event.IDHex())
				continue
			}
			if r.Sampler != nil {
				if !r.Sampler.Admit(env.Event, r.URL) {
					if r.Sampler.IsBlacklisted(r.URL) {
						log.E.F("{%s} blacklisted on bad signature for %s, disconnecting", r.URL, env.Event.IDHex())
						r.Close()
						return
					}
					continue
				}
			} else if ok, verr := env.Event.Verify(); verr != nil || !ok {
				log.E.F("{%s} bad signature on %s", r.URL, env.Event.IDHex())
				continue
			}
			env.Event.SourceRelay = r.URL
			sub.dispatchEvent(env.Event)

		case eoseenvelope.L:
			env, err := eoseenvelope.Parse(message)
			if chk.E(err) {
				continue
			}
			if sub, ok := r.Subscriptions.Load(env.SubscriptionID); ok {
				sub.dispatchEose()
			}

		case closedenvelope.L:
			env, err := closedenvelope.Parse(message)
			if chk.E(err) {
				continue
			}
			if sub, ok := r.Subscriptions.Load(env.SubscriptionID); ok {
				sub.handleClosed(env.Message)
			}

		case okenvelope.L:
			env, err := okenvelope.Parse(message)
			if chk.E(err) {
				continue
			}
			if cb, exist := r.okCallbacks.Load(env.EventID); exist {
				cb(env.OK, env.Message)
			} else {
				log.I.F("{%s} unexpected OK for event %s", r.URL, env.EventID)
			}
		}
	}
}

// Write queues an arbitrary message to be sent to the relay.
func (r *Client) Write(msg []byte) <-chan error {
	ch := make(chan error, 1)
	select {
	case r.writeQueue <- writeRequest{msg: msg, answer: ch}:
	case <-r.connectionContext.Done():
		ch <- fmt.Errorf("connection closed")
	}
	return ch
}

// Publish sends an "EVENT" command to the relay and waits for an OK.
func (r *Client) Publish(ctx context.T, e *event.E) error {
	return r.publish(ctx, e.IDHex(), eventenvelope.NewSubmission(e))
}

// Auth performs a NIP-42 AUTH round-trip: it builds and signs a kind-22242
// event binding the relay URL and last-seen challenge, then waits for OK.
func (r *Client) Auth(ctx context.T, sign signer.I) (err error) {
	authEvent := event.New()
	authEvent.CreatedAt = timestamp.Now()
	authEvent.Kind = kind.ClientAuth
	authEvent.Tags = append(authEvent.Tags,
		tag.New("relay", r.URL),
		tag.New("challenge", r.challenge),
	)
	authEvent.Pubkey = sign.Pub()
	if err = authEvent.Sign(sign); err != nil {
		return fmt.Errorf("error signing auth event: %w", err)
	}
	return r.publish(ctx, authEvent.IDHex(), authenvelope.NewResponse(authEvent))
}

func (r *Client) publish(ctx context.T, id string, env codec.Envelope) error {
	var err error
	var cancel gocontext.CancelFunc

	if _, ok := ctx.Deadline(); !ok {
		ctx, cancel = context.Timeout(ctx, 7*time.Second)
	} else {
		ctx, cancel = gocontext.WithCancel(ctx)
	}
	defer cancel()

	gotOk := false
	r.okCallbacks.Store(id, func(ok bool, reason string) {
		gotOk = true
		if !ok {
			err = fmt.Errorf("msg: %s", reason)
		}
		cancel()
	})
	defer r.okCallbacks.Delete(id)

	envb := env.Marshal(nil)
	if werr := <-r.Write(envb); werr != nil {
		return werr
	}

	select {
	case <-ctx.Done():
		if gotOk {
			return err
		}
		return ctx.Err()
	case <-r.connectionContext.Done():
		if gotOk {
			return err
		}
		return fmt.Errorf("connection to %s closed before OK", r.URL)
	}
}

// Subscribe sends a "REQ" command to the relay; events stream on
// sub.Events until the subscription's context is canceled or a CLOSE/CLOSED
// ends it.
func (r *Client) Subscribe(ctx context.T, ff []*filter.F, opts ...SubscriptionOption) (*Subscription, error) {
	sub := r.PrepareSubscription(ctx, ff, opts...)
	if r.Connection == nil {
		return nil, fmt.Errorf("not connected to %s", r.URL)
	}
	if err := sub.Fire(); err != nil {
		return nil, fmt.Errorf("couldn't subscribe to %v at %s: %w", ff, r.URL, err)
	}
	return sub, nil
}

// PrepareSubscription builds a Subscription without firing the REQ.
func (r *Client) PrepareSubscription(ctx context.T, ff []*filter.F, opts ...SubscriptionOption) (sub *Subscription) {
	current := subscriptionIDCounter.Add(1)
	ctx, cancel := context.Cause(ctx)
	sub = &Subscription{
		Client:            r,
		Context:           ctx,
		cancel:            cancel,
		counter:           current,
		Events:            make(chan *event.E),
		EndOfStoredEvents: make(chan struct{}, 1),
		ClosedReason:      make(chan string, 1),
		Filters:           ff,
	}
	sub.match = sub.matchAny
	label := ""
	for _, opt := range opts {
		if l, ok := opt.(WithLabel); ok {
			label = string(l)
		}
	}
	sub.id = strconv.FormatInt(sub.counter, 10) + ":" + label
	r.Subscriptions.Store(sub.id, sub)
	go sub.start()
	return sub
}

// QueryEvents subscribes to f and returns the raw event channel. Most
// callers should prefer pkg/subengine instead (spec.md C6).
func (r *Client) QueryEvents(ctx context.T, f *filter.F) (chan *event.E, error) {
	sub, err := r.Subscribe(ctx, []*filter.F{f})
	if err != nil {
		return nil, err
	}
	go func() {
		select {
		case <-sub.ClosedReason:
		case <-sub.EndOfStoredEvents:
		case <-ctx.Done():
		case <-r.Context().Done():
		}
		sub.unsub(errors.New("QueryEvents() ended"))
	}()
	return sub.Events, nil
}

// QuerySync subscribes to f and blocks until EOSE, returning every event
// seen before it.
func (r *Client) QuerySync(ctx context.T, f *filter.F) ([]*event.E, error) {
	if _, ok := ctx.Deadline(); !ok {
		var cancel gocontext.CancelFunc
		ctx, cancel = context.Timeout(ctx, 7*time.Second)
		defer cancel()
	}
	lim := 250
	if f.Limit != nil {
		lim = *f.Limit
	}
	events := make([]*event.E, 0, lim)
	ch, err := r.QueryEvents(ctx, f)
	if err != nil {
		return nil, err
	}
	for evt := range ch {
		events = append(events, evt)
	}
	return events, nil
}

// Close closes the relay connection permanently.
func (r *Client) Close() error { return r.close(errors.New("Close() called")) }

func (r *Client) close(reason error) error {
	r.closeMutex.Lock()
	defer r.closeMutex.Unlock()

	if r.connectionContextCancel == nil {
		return fmt.Errorf("relay already closed")
	}
	r.state.Store(int32(Disconnecting))
	r.connectionContextCancel(reason)
	r.connectionContextCancel = nil

	if r.Connection == nil {
		return fmt.Errorf("relay not connected")
	}
	err := r.Connection.Close()
	r.state.Store(int32(Disconnected))
	return err
}
