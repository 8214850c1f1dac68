// Package eventenvelope implements the NIP-01 "EVENT" frame in both
// directions: client->relay submission (no subscription id) and
// relay->client result (with subscription id).
package eventenvelope

import (
	"encoding/json"
	"fmt"

	"nostrkit.dev/pkg/encoders/event"
)

// L is this envelope's label.
const L = "EVENT"

// Submission is the client->relay publish frame: ["EVENT", <event>].
type Submission struct {
	Event *event.E
}

// NewSubmission wraps an event for publishing.
func NewSubmission(e *event.E) *Submission { return &Submission{Event: e} }

// Label returns "EVENT".
func (s *Submission) Label() string { return L }

// Marshal renders the frame as a minified JSON array.
func (s *Submission) Marshal(dst []byte) []byte {
	eb, _ := json.Marshal(s.Event)
	b, _ := json.Marshal([2]json.RawMessage{rawString(L), eb})
	return append(dst, b...)
}

// Result is the relay->client delivery frame: ["EVENT", sub_id, <event>].
type Result struct {
	SubscriptionID string
	Event          *event.E
}

// NewResult builds an empty Result for parsing into.
func NewResult() *Result { return &Result{} }

// Label returns "EVENT".
func (r *Result) Label() string { return L }

// ParseResult decodes a relay->client EVENT frame.
func ParseResult(raw []byte) (*Result, error) {
	var arr []json.RawMessage
	if err := json.Unmarshal(raw, &arr); err != nil {
		return nil, err
	}
	if len(arr) != 3 {
		return nil, fmt.Errorf("eventenvelope: expected 3 elements, got %d", len(arr))
	}
	r := &Result{}
	if err := json.Unmarshal(arr[1], &r.SubscriptionID); err != nil {
		return nil, err
	}
	r.Event = event.New()
	if err := json.Unmarshal(arr[2], r.Event); err != nil {
		return nil, err
	}
	return r, nil
}

func rawString(s string) json.RawMessage {
	b, _ := json.Marshal(s)
	return b
}
