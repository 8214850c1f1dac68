// Package codec defines the small interface shared by every NIP-01 wire
// envelope (REQ/CLOSE/EVENT/AUTH/EOSE/OK/NOTICE/CLOSED), grounded on the
// teacher's orly.dev/pkg/interfaces/codec package of the same shape.
package codec

// Envelope is a single NIP-01 frame: a JSON array whose first element is a
// label.
type Envelope interface {
	Label() string
	Marshal(dst []byte) []byte
}
