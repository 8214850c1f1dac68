// Package closedenvelope implements the relay->client "CLOSED" NIP-01
// frame: a relay-initiated subscription termination, carrying the same
// prefixed-reason convention as okenvelope.
package closedenvelope

import (
	"encoding/json"
	"fmt"

	"nostrkit.dev/pkg/encoders/envelopes/okenvelope"
)

// L is this envelope's label.
const L = "CLOSED"

// T is a CLOSED frame: ["CLOSED", sub_id, message].
type T struct {
	SubscriptionID string
	Message        string
}

// New builds a CLOSED frame.
func New(subID, message string) *T { return &T{SubscriptionID: subID, Message: message} }

// Label returns "CLOSED".
func (t *T) Label() string { return L }

// Reason splits t.Message into its machine code and detail, reusing
// okenvelope's prefix convention since CLOSED and OK share it.
func (t *T) Reason() (reason okenvelope.Reason, detail string) {
	return okenvelope.ParseReason(t.Message)
}

// Marshal renders the frame as a minified JSON array.
func (t *T) Marshal(dst []byte) []byte {
	b, _ := json.Marshal([3]string{L, t.SubscriptionID, t.Message})
	return append(dst, b...)
}

// Parse decodes a CLOSED frame.
func Parse(raw []byte) (*T, error) {
	var arr []json.RawMessage
	if err := json.Unmarshal(raw, &arr); err != nil {
		return nil, err
	}
	if len(arr) != 3 {
		return nil, fmt.Errorf("closedenvelope: expected 3 elements, got %d", len(arr))
	}
	t := &T{}
	if err := json.Unmarshal(arr[1], &t.SubscriptionID); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(arr[2], &t.Message); err != nil {
		return nil, err
	}
	return t, nil
}
