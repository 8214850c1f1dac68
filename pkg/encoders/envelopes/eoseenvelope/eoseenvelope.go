// Package eoseenvelope implements the relay->client "EOSE" NIP-01 frame,
// marking the end of stored events for a subscription.
package eoseenvelope

import (
	"encoding/json"
	"fmt"
)

// L is this envelope's label.
const L = "EOSE"

// T is an EOSE frame: just a subscription id.
type T struct {
	SubscriptionID string
}

// New builds an EOSE frame.
func New(subID string) *T { return &T{SubscriptionID: subID} }

// Label returns "EOSE".
func (t *T) Label() string { return L }

// Marshal renders the frame as a minified JSON array.
func (t *T) Marshal(dst []byte) []byte {
	b, _ := json.Marshal([2]string{L, t.SubscriptionID})
	return append(dst, b...)
}

// Parse decodes an EOSE frame.
func Parse(raw []byte) (*T, error) {
	var arr []json.RawMessage
	if err := json.Unmarshal(raw, &arr); err != nil {
		return nil, err
	}
	if len(arr) != 2 {
		return nil, fmt.Errorf("eoseenvelope: expected 2 elements, got %d", len(arr))
	}
	t := &T{}
	if err := json.Unmarshal(arr[1], &t.SubscriptionID); err != nil {
		return nil, err
	}
	return t, nil
}
