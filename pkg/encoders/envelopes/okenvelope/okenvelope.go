// Package okenvelope implements the relay->client "OK" NIP-01 frame, the
// acknowledgment of a published event, including the prefixed-reason
// machine code rules of spec.md §4.4/§4.6.
package okenvelope

import (
	"encoding/json"
	"fmt"
	"strings"
)

// L is this envelope's label.
const L = "OK"

// Reason is the machine-readable prefix of an OK/CLOSED message, per the
// NIP-01 convention "<reason>: <human detail>".
type Reason string

// Known reason prefixes (spec.md §4.4/§4.6). Unrecognized prefixes, or a
// message with no ':' separator at all, map to ReasonUnknown.
const (
	ReasonPoW          Reason = "pow"
	ReasonDuplicate     Reason = "duplicate"
	ReasonBlocked       Reason = "blocked"
	ReasonRateLimited   Reason = "rate-limited"
	ReasonInvalid       Reason = "invalid"
	ReasonAuthRequired  Reason = "auth-required"
	ReasonRestricted    Reason = "restricted"
	ReasonError         Reason = "error"
	ReasonUnknown       Reason = ""
)

var knownReasons = map[string]Reason{
	string(ReasonPoW):         ReasonPoW,
	string(ReasonDuplicate):    ReasonDuplicate,
	string(ReasonBlocked):      ReasonBlocked,
	string(ReasonRateLimited):  ReasonRateLimited,
	string(ReasonInvalid):      ReasonInvalid,
	string(ReasonAuthRequired): ReasonAuthRequired,
	string(ReasonRestricted):   ReasonRestricted,
	string(ReasonError):        ReasonError,
}

// ParseReason splits a "<prefix>: <detail>" message into its machine code
// and human detail. A message with no recognized prefix returns
// (ReasonUnknown, message).
func ParseReason(message string) (reason Reason, detail string) {
	prefix, rest, found := strings.Cut(message, ":")
	if !found {
		return ReasonUnknown, message
	}
	if r, ok := knownReasons[strings.TrimSpace(prefix)]; ok {
		return r, strings.TrimSpace(rest)
	}
	return ReasonUnknown, message
}

// T is an OK frame: ["OK", event_id, accepted, message].
type T struct {
	EventID string
	OK      bool
	Message string
}

// New builds an OK frame.
func New(eventID string, ok bool, message string) *T {
	return &T{EventID: eventID, OK: ok, Message: message}
}

// Label returns "OK".
func (t *T) Label() string { return L }

// Reason splits t.Message into its machine code and detail.
func (t *T) Reason() (reason Reason, detail string) { return ParseReason(t.Message) }

// Marshal renders the frame as a minified JSON array.
func (t *T) Marshal(dst []byte) []byte {
	b, _ := json.Marshal([4]any{L, t.EventID, t.OK, t.Message})
	return append(dst, b...)
}

// Parse decodes an OK frame.
func Parse(raw []byte) (*T, error) {
	var arr []json.RawMessage
	if err := json.Unmarshal(raw, &arr); err != nil {
		return nil, err
	}
	if len(arr) != 4 {
		return nil, fmt.Errorf("okenvelope: expected 4 elements, got %d", len(arr))
	}
	t := &T{}
	if err := json.Unmarshal(arr[1], &t.EventID); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(arr[2], &t.OK); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(arr[3], &t.Message); err != nil {
		return nil, err
	}
	return t, nil
}
