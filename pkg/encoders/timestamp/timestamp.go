// Package timestamp wraps a unix-seconds timestamp with the JSON and
// comparison helpers the rest of the library needs.
package timestamp

import (
	"strconv"
	"time"
)

// T is a unix-seconds timestamp, signed per NIP-01 (§3: "created_at ... signed
// 64-bit").
type T struct{ t int64 }

// Now returns the current time as a T.
func Now() *T { return &T{t: time.Now().Unix()} }

// FromUnix wraps a raw unix-seconds value.
func FromUnix(i int64) *T { return &T{t: i} }

// FromTime wraps a time.Time.
func FromTime(tm time.Time) *T { return &T{t: tm.Unix()} }

// I64 returns the raw unix-seconds value.
func (t *T) I64() int64 {
	if t == nil {
		return 0
	}
	return t.t
}

// Time returns the equivalent time.Time in UTC.
func (t *T) Time() time.Time { return time.Unix(t.I64(), 0).UTC() }

// Marshal renders the timestamp as a bare JSON integer.
func (t *T) Marshal(dst []byte) []byte {
	return strconv.AppendInt(dst, t.I64(), 10)
}

// MarshalJSON implements json.Marshaler.
func (t T) MarshalJSON() ([]byte, error) { return t.Marshal(nil), nil }

// UnmarshalJSON implements json.Unmarshaler.
func (t *T) UnmarshalJSON(b []byte) error {
	i, err := strconv.ParseInt(string(b), 10, 64)
	if err != nil {
		return err
	}
	t.t = i
	return nil
}

// Before reports whether t is strictly earlier than o.
func (t *T) Before(o *T) bool { return t.I64() < o.I64() }

// After reports whether t is strictly later than o.
func (t *T) After(o *T) bool { return t.I64() > o.I64() }
