// Package kind holds the nostr event kind number and the derived predicates
// from spec.md §3: ephemeral, replaceable and addressable (parameterized
// replaceable) event classes.
package kind

// T is a nostr event kind.
type T uint16

const (
	Metadata     T = 0
	TextNote     T = 1
	ContactList  T = 3
	ClientAuth   T = 22242
	NWCRequest   T = 23194
	NWCResponse  T = 23195
	NostrConnect T = 24133
)

// IsEphemeral reports whether k is in the ephemeral range [20000, 30000).
func (k T) IsEphemeral() bool { return k >= 20000 && k < 30000 }

// IsReplaceable reports whether k is {0,3} or in [10000, 20000).
func (k T) IsReplaceable() bool {
	return k == Metadata || k == ContactList || (k >= 10000 && k < 20000)
}

// IsAddressable reports whether k is in the parameterized-replaceable range
// [30000, 40000).
func (k T) IsAddressable() bool { return k >= 30000 && k < 40000 }
