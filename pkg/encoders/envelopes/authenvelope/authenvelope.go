// Package authenvelope implements the NIP-42 "AUTH" frame in both
// directions: relay->client challenge and client->relay signed response,
// grounded on the teacher's orly.dev/pkg/encoders/envelopes/authenvelope.
package authenvelope

import (
	"encoding/json"
	"fmt"

	"nostrkit.dev/pkg/encoders/event"
)

// L is this envelope's label.
const L = "AUTH"

// Challenge is the relay->client frame: ["AUTH", <challenge-string>].
type Challenge struct {
	Challenge string
}

// NewChallenge builds a challenge frame.
func NewChallenge(challenge string) *Challenge { return &Challenge{Challenge: challenge} }

// Label returns "AUTH".
func (c *Challenge) Label() string { return L }

// Marshal renders the frame as a minified JSON array.
func (c *Challenge) Marshal(dst []byte) []byte {
	b, _ := json.Marshal([2]string{L, c.Challenge})
	return append(dst, b...)
}

// ParseChallenge decodes a relay->client AUTH challenge frame.
func ParseChallenge(raw []byte) (*Challenge, error) {
	var arr []json.RawMessage
	if err := json.Unmarshal(raw, &arr); err != nil {
		return nil, err
	}
	if len(arr) != 2 {
		return nil, fmt.Errorf("authenvelope: expected 2 elements, got %d", len(arr))
	}
	c := &Challenge{}
	if err := json.Unmarshal(arr[1], &c.Challenge); err != nil {
		return nil, err
	}
	return c, nil
}

// Response is the client->relay frame: ["AUTH", <kind-22242 event>], the
// signed proof-of-identity event described in spec.md C4.
type Response struct {
	Event *event.E
}

// NewResponse wraps a signed kind-22242 auth event.
func NewResponse(e *event.E) *Response { return &Response{Event: e} }

// Label returns "AUTH".
func (r *Response) Label() string { return L }

// Marshal renders the frame as a minified JSON array.
func (r *Response) Marshal(dst []byte) []byte {
	eb, _ := json.Marshal(r.Event)
	label, _ := json.Marshal(L)
	b, _ := json.Marshal([2]json.RawMessage{label, eb})
	return append(dst, b...)
}

// ParseResponse decodes a client->relay AUTH response frame.
func ParseResponse(raw []byte) (*Response, error) {
	var arr []json.RawMessage
	if err := json.Unmarshal(raw, &arr); err != nil {
		return nil, err
	}
	if len(arr) != 2 {
		return nil, fmt.Errorf("authenvelope: expected 2 elements, got %d", len(arr))
	}
	r := &Response{Event: event.New()}
	if err := json.Unmarshal(arr[1], r.Event); err != nil {
		return nil, err
	}
	return r, nil
}
