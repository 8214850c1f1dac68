// Package signer defines the signer capability consumed by this library
// (spec.md §6): an abstract pubkey plus sign/encrypt/decrypt, so the core
// never handles private keys in plaintext beyond passing them through.
package signer

import "context"

// I is the signer capability. Implementations may be a local keypair, a
// hardware device, or a NIP-46 remote bunker (pkg/nip46.RemoteSigner).
type I interface {
	// Pub returns the raw 32-byte public key.
	Pub() []byte
	// Sign returns the 64-byte schnorr signature over msg (an event id).
	Sign(msg []byte) (sig []byte, err error)
}

// Encrypter is an optional capability for NIP-04/NIP-44 payload encryption.
// The codecs themselves are an external collaborator (spec.md §1); this
// interface only describes the shape the core calls through.
type Encrypter interface {
	Encrypt(ctx context.Context, peerPub []byte, plaintext string, scheme string) (string, error)
	Decrypt(ctx context.Context, peerPub []byte, ciphertext string, scheme string) (string, error)
}
