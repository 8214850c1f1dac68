// Package crypto is the elliptic-curve signing capability consumed by this
// library (spec.md §6): sign/verify/derive-pubkey over BIP-340 schnorr
// signatures. It is a thin wrapper around github.com/btcsuite/btcd/btcec/v2,
// treated as a pure crypto capability — the curve math itself is explicitly
// out of scope for this core (spec.md §1).
package crypto

import (
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"
)

// Sign produces a 64-byte schnorr signature of msg (expected to be a 32-byte
// event id) using the 32-byte raw secret key sec.
func Sign(msg, sec []byte) (sig []byte, err error) {
	priv, _ := btcec.PrivKeyFromBytes(sec)
	if priv == nil {
		return nil, fmt.Errorf("crypto: invalid secret key")
	}
	s, err := schnorr.Sign(priv, msg)
	if err != nil {
		return nil, fmt.Errorf("crypto: sign: %w", err)
	}
	return s.Serialize(), nil
}

// Verify reports whether sig is a valid schnorr signature of msg under the
// 32-byte raw x-only public key pub.
func Verify(sig, msg, pub []byte) (bool, error) {
	pk, err := schnorr.ParsePubKey(pub)
	if err != nil {
		return false, fmt.Errorf("crypto: invalid public key: %w", err)
	}
	s, err := schnorr.ParseSignature(sig)
	if err != nil {
		return false, fmt.Errorf("crypto: invalid signature: %w", err)
	}
	return s.Verify(msg, pk), nil
}

// DerivePubKey returns the 32-byte x-only public key for the 32-byte raw
// secret key sec.
func DerivePubKey(sec []byte) ([]byte, error) {
	priv, pub := btcec.PrivKeyFromBytes(sec)
	if priv == nil {
		return nil, fmt.Errorf("crypto: invalid secret key")
	}
	return schnorr.SerializePubKey(pub), nil
}

// LocalSigner is a signer.I implementation holding a raw secret key in
// memory. It satisfies pkg/interfaces/signer.I.
type LocalSigner struct {
	sec, pub []byte
}

// NewLocalSigner builds a LocalSigner from a 32-byte raw secret key.
func NewLocalSigner(sec []byte) (*LocalSigner, error) {
	pub, err := DerivePubKey(sec)
	if err != nil {
		return nil, err
	}
	return &LocalSigner{sec: sec, pub: pub}, nil
}

// Pub returns the raw 32-byte public key.
func (s *LocalSigner) Pub() []byte { return s.pub }

// Sign signs msg with the held secret key.
func (s *LocalSigner) Sign(msg []byte) ([]byte, error) { return Sign(msg, s.sec) }
