// Package event implements the nostr event type (spec.md §3): its canonical
// serialization for id computation, signing and verification, and the JSON
// wire format. Grounded on the teacher's orly.dev/event package, generalized
// from its hand-rolled binary codec to an encoding/json-based wire format —
// this core has no budget for a custom zero-allocation parser and
// encoding/json is what the rest of the nostr Go ecosystem (nbd-wtf/go-nostr,
// referenced throughout this retrieval pack) uses for the wire form.
package event

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/minio/sha256-simd"

	"nostrkit.dev/pkg/crypto"
	"nostrkit.dev/pkg/encoders/hex"
	"nostrkit.dev/pkg/encoders/kind"
	"nostrkit.dev/pkg/encoders/tag"
	"nostrkit.dev/pkg/encoders/timestamp"
	"nostrkit.dev/pkg/interfaces/signer"
)

// E is the primary nostr event datatype (spec.md §3). By contract it is
// immutable once constructed with a valid Id and Sig: nothing in this
// package mutates an E's Id/Pubkey/Sig/CreatedAt/Kind/Tags/Content after
// Sign or Verify succeed.
type E struct {
	ID        []byte     `json:"-"`
	Pubkey    []byte     `json:"-"`
	CreatedAt *timestamp.T `json:"-"`
	Kind      kind.T     `json:"-"`
	Tags      tag.Tags   `json:"-"`
	Content   string     `json:"-"`
	Sig       []byte     `json:"-"`

	// SourceRelay is the URL of the relay this event arrived from, if any.
	// A string, not a relay handle, to avoid a reference cycle between
	// events and relay connections (spec.md §9).
	SourceRelay string `json:"-"`
}

// New builds an empty, unsigned event.
func New() *E { return &E{Tags: tag.Tags{}} }

// IDHex returns the event id as lowercase hex.
func (e *E) IDHex() string { return hex.Enc(e.ID) }

// PubkeyHex returns the pubkey as lowercase hex.
func (e *E) PubkeyHex() string { return hex.Enc(e.Pubkey) }

// SigHex returns the signature as lowercase hex.
func (e *E) SigHex() string { return hex.Enc(e.Sig) }

// IsEphemeral reports whether the event's kind is in [20000, 30000).
func (e *E) IsEphemeral() bool { return e.Kind.IsEphemeral() }

// IsReplaceable reports whether the event's kind is {0,3} or in
// [10000, 20000).
func (e *E) IsReplaceable() bool { return e.Kind.IsReplaceable() }

// IsAddressable reports whether the event's kind is in [30000, 40000).
func (e *E) IsAddressable() bool { return e.Kind.IsAddressable() }

// Address returns the addressable-event coordinate "<kind>:<pubkey>:<d>",
// using the empty string for d when no "d" tag is present (spec.md §3).
// Only meaningful when IsAddressable is true.
func (e *E) Address() string {
	return fmt.Sprintf("%d:%s:%s", e.Kind, e.PubkeyHex(), e.Tags.GetD())
}

// CanonicalJSON renders the six-element array
// [0,pubkey,created_at,kind,tags,content] hashed to produce the event id,
// with JSON whitespace stripped and escaping limited to '"', '\', and the
// control characters \n \r \t \b \f (spec.md §4.1).
func (e *E) CanonicalJSON() []byte {
	var buf bytes.Buffer
	buf.WriteString(`[0,"`)
	buf.WriteString(e.PubkeyHex())
	buf.WriteString(`",`)
	buf.WriteString(fmt.Sprintf("%d", e.CreatedAt.I64()))
	buf.WriteByte(',')
	buf.WriteString(fmt.Sprintf("%d", e.Kind))
	buf.WriteByte(',')
	writeTagsArray(&buf, e.Tags)
	buf.WriteByte(',')
	writeEscapedString(&buf, e.Content)
	buf.WriteByte(']')
	return buf.Bytes()
}

func writeTagsArray(buf *bytes.Buffer, tags tag.Tags) {
	buf.WriteByte('[')
	for i, t := range tags {
		if i > 0 {
			buf.WriteByte(',')
		}
		buf.WriteByte('[')
		for j, field := range t {
			if j > 0 {
				buf.WriteByte(',')
			}
			writeEscapedString(buf, field)
		}
		buf.WriteByte(']')
	}
	buf.WriteByte(']')
}

// writeEscapedString writes s as a JSON string literal, escaping only the
// characters spec.md §4.1 requires: '"', '\', and the named control
// characters, plus any other control character as \u00XX.
func writeEscapedString(buf *bytes.Buffer, s string) {
	buf.WriteByte('"')
	for _, r := range s {
		switch r {
		case '"':
			buf.WriteString(`\"`)
		case '\\':
			buf.WriteString(`\\`)
		case '\n':
			buf.WriteString(`\n`)
		case '\r':
			buf.WriteString(`\r`)
		case '\t':
			buf.WriteString(`\t`)
		case '\b':
			buf.WriteString(`\b`)
		case '\f':
			buf.WriteString(`\f`)
		default:
			if r < 0x20 {
				fmt.Fprintf(buf, `\u%04x`, r)
			} else {
				buf.WriteRune(r)
			}
		}
	}
	buf.WriteByte('"')
}

// ComputeID returns the sha256 of the event's canonical serialization,
// without assigning it to e.ID (spec.md P1).
func (e *E) ComputeID() []byte {
	h := sha256.Sum256(e.CanonicalJSON())
	return h[:]
}

// Sign populates Pubkey, ID and Sig from the given signer. The caller must
// set CreatedAt (and Kind, Tags, Content) beforehand.
func (e *E) Sign(s signer.I) error {
	e.Pubkey = s.Pub()
	e.ID = e.ComputeID()
	sig, err := s.Sign(e.ID)
	if err != nil {
		return fmt.Errorf("event: sign: %w", err)
	}
	e.Sig = sig
	return nil
}

// Verify reports whether id matches the recomputed canonical hash and sig
// verifies against Pubkey over ID. Events failing either check MUST be
// rejected and are not retried (spec.md §4.1, P1).
func (e *E) Verify() (bool, error) {
	want := e.ComputeID()
	if !bytes.Equal(want, e.ID) {
		return false, fmt.Errorf("event: id mismatch: got %x want %x", e.ID, want)
	}
	return crypto.Verify(e.Sig, e.ID, e.Pubkey)
}

// J is the NIP-01 wire representation of an event, using the field names and
// types relays actually send/expect.
type J struct {
	ID        string     `json:"id"`
	Pubkey    string     `json:"pubkey"`
	CreatedAt int64      `json:"created_at"`
	Kind      uint16     `json:"kind"`
	Tags      [][]string `json:"tags"`
	Content   string     `json:"content"`
	Sig       string     `json:"sig"`
}

// MarshalJSON implements json.Marshaler, producing the NIP-01 wire form.
func (e *E) MarshalJSON() ([]byte, error) {
	j := e.ToJ()
	return json.Marshal(j)
}

// ToJ converts E to its wire representation J.
func (e *E) ToJ() *J {
	tags := make([][]string, len(e.Tags))
	for i, t := range e.Tags {
		tags[i] = []string(t)
	}
	return &J{
		ID:        e.IDHex(),
		Pubkey:    e.PubkeyHex(),
		CreatedAt: e.CreatedAt.I64(),
		Kind:      uint16(e.Kind),
		Tags:      tags,
		Content:   e.Content,
		Sig:       e.SigHex(),
	}
}

// UnmarshalJSON implements json.Unmarshaler, parsing the NIP-01 wire form.
func (e *E) UnmarshalJSON(b []byte) error {
	var j J
	if err := json.Unmarshal(b, &j); err != nil {
		return err
	}
	return e.FromJ(&j)
}

// FromJ populates E from its wire representation J, decoding hex fields.
func (e *E) FromJ(j *J) (err error) {
	if e.ID, err = hex.Dec(j.ID); err != nil {
		return fmt.Errorf("event: bad id: %w", err)
	}
	if e.Pubkey, err = hex.Dec(j.Pubkey); err != nil {
		return fmt.Errorf("event: bad pubkey: %w", err)
	}
	if e.Sig, err = hex.Dec(j.Sig); err != nil {
		return fmt.Errorf("event: bad sig: %w", err)
	}
	e.CreatedAt = timestamp.FromUnix(j.CreatedAt)
	e.Kind = kind.T(j.Kind)
	e.Content = j.Content
	tags := make(tag.Tags, len(j.Tags))
	for i, t := range j.Tags {
		tags[i] = tag.T(t)
	}
	e.Tags = tags
	return nil
}

// ParseJSON decodes a single wire-format event from JSON.
func ParseJSON(b []byte) (*E, error) {
	e := New()
	if err := json.Unmarshal(b, e); err != nil {
		return nil, err
	}
	return e, nil
}

// S is a slice of events that sorts newest-first.
type S []*E

func (s S) Len() int           { return len(s) }
func (s S) Less(i, j int) bool { return s[i].CreatedAt.I64() > s[j].CreatedAt.I64() }
func (s S) Swap(i, j int)      { s[i], s[j] = s[j], s[i] }

// C is a channel of events.
type C chan *E
