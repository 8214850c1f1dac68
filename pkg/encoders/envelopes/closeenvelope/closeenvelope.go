// Package closeenvelope implements the client->relay "CLOSE" NIP-01 frame.
package closeenvelope

import "encoding/json"

// L is this envelope's label.
const L = "CLOSE"

// T is a CLOSE frame: just a subscription id.
type T struct {
	SubscriptionID string
}

// New builds a CLOSE frame.
func New(subID string) *T { return &T{SubscriptionID: subID} }

// Label returns "CLOSE".
func (t *T) Label() string { return L }

// Marshal renders the frame as a minified JSON array.
func (t *T) Marshal(dst []byte) []byte {
	b, _ := json.Marshal([2]string{L, t.SubscriptionID})
	return append(dst, b...)
}
