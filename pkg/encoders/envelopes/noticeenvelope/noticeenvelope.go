// Package noticeenvelope implements the relay->client "NOTICE" NIP-01
// frame: a free-form human-readable message with no correlation id.
package noticeenvelope

import (
	"encoding/json"
	"fmt"
)

// L is this envelope's label.
const L = "NOTICE"

// T is a NOTICE frame.
type T struct {
	Message string
}

// New builds a NOTICE frame.
func New(message string) *T { return &T{Message: message} }

// Label returns "NOTICE".
func (t *T) Label() string { return L }

// Marshal renders the frame as a minified JSON array.
func (t *T) Marshal(dst []byte) []byte {
	b, _ := json.Marshal([2]string{L, t.Message})
	return append(dst, b...)
}

// Parse decodes a NOTICE frame.
func Parse(raw []byte) (*T, error) {
	var arr []json.RawMessage
	if err := json.Unmarshal(raw, &arr); err != nil {
		return nil, err
	}
	if len(arr) != 2 {
		return nil, fmt.Errorf("noticeenvelope: expected 2 elements, got %d", len(arr))
	}
	t := &T{}
	if err := json.Unmarshal(arr[1], &t.Message); err != nil {
		return nil, err
	}
	return t, nil
}
