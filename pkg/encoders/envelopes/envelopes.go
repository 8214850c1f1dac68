// Package envelopes identifies the label of a raw NIP-01 frame so the caller
// can dispatch to the matching envelope type's Unmarshal, grounded on the
// teacher's orly.dev/pkg/encoders/envelopes package of the same purpose.
package envelopes

import (
	"encoding/json"
	"fmt"
)

// Identify peeks at the first element of a JSON array frame and returns its
// label (e.g. "EVENT", "EOSE", "OK") without fully decoding the rest.
func Identify(raw []byte) (label string, err error) {
	var head []json.RawMessage
	if err = json.Unmarshal(raw, &head); err != nil {
		return "", fmt.Errorf("envelopes: not a json array: %w", err)
	}
	if len(head) == 0 {
		return "", fmt.Errorf("envelopes: empty frame")
	}
	if err = json.Unmarshal(head[0], &label); err != nil {
		return "", fmt.Errorf("envelopes: first element is not a label string: %w", err)
	}
	return label, nil
}
