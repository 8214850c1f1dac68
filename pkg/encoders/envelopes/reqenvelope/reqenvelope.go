// Package reqenvelope implements the client->relay "REQ" NIP-01 frame.
package reqenvelope

import (
	"encoding/json"
	"fmt"

	"nostrkit.dev/pkg/encoders/filter"
)

// L is this envelope's label.
const L = "REQ"

// T is a REQ frame: a subscription id plus one or more filters.
type T struct {
	SubscriptionID string
	Filters        []*filter.F
}

// New builds a REQ frame.
func New(subID string, filters ...*filter.F) *T {
	return &T{SubscriptionID: subID, Filters: filters}
}

// Label returns "REQ".
func (t *T) Label() string { return L }

// Marshal renders the frame as a minified JSON array.
func (t *T) Marshal(dst []byte) []byte {
	parts := make([]json.RawMessage, 0, len(t.Filters)+2)
	label, _ := json.Marshal(L)
	id, _ := json.Marshal(t.SubscriptionID)
	parts = append(parts, label, id)
	for _, f := range t.Filters {
		b, _ := json.Marshal(f)
		parts = append(parts, b)
	}
	b, _ := json.Marshal(parts)
	return append(dst, b...)
}

// Parse decodes a REQ frame from raw JSON.
func Parse(raw []byte) (*T, error) {
	var arr []json.RawMessage
	if err := json.Unmarshal(raw, &arr); err != nil {
		return nil, err
	}
	if len(arr) < 3 {
		return nil, fmt.Errorf("reqenvelope: too few elements")
	}
	t := &T{}
	if err := json.Unmarshal(arr[1], &t.SubscriptionID); err != nil {
		return nil, err
	}
	for _, raw := range arr[2:] {
		f := filter.New()
		if err := json.Unmarshal(raw, f); err != nil {
			return nil, err
		}
		t.Filters = append(t.Filters, f)
	}
	return t, nil
}
