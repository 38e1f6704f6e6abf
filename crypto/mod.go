// Package crypto defines the cryptographic primitives used to identify the
// participants and to authenticate their requests.
package crypto

import (
	"encoding"
	"hash"

	"go.dedis.ch/veilroll/serde"
)

// HashFactory is an interface to produce a hash digest.
type HashFactory interface {
	New() hash.Hash
}

// PublicKey is a public identity that can be used to verify a signature. A
// public key is also the identity of a participant.
type PublicKey interface {
	encoding.BinaryMarshaler
	encoding.TextMarshaler
	serde.Message

	// Verify returns nil if the signature matches the message, otherwise an
	// error.
	Verify(msg []byte, signature Signature) error

	// Equal returns true when the other object is the same public key.
	Equal(other interface{}) bool
}

// Signature is a verifiable element for a unique message.
type Signature interface {
	encoding.BinaryMarshaler
	serde.Message

	// Equal returns true when both signatures are the same.
	Equal(other Signature) bool
}

// PublicKeyFactory is a factory to create public keys.
type PublicKeyFactory interface {
	serde.Factory

	// PublicKeyOf returns the public key of the serialized data.
	PublicKeyOf(serde.Context, []byte) (PublicKey, error)

	// FromBytes returns the public key of the binary representation.
	FromBytes([]byte) (PublicKey, error)
}

// SignatureFactory is a factory to create signatures.
type SignatureFactory interface {
	serde.Factory

	// SignatureOf returns the signature of the serialized data.
	SignatureOf(serde.Context, []byte) (Signature, error)
}

// Signer provides the primitives to sign messages.
type Signer interface {
	// GetPublicKeyFactory returns the factory of the public keys produced by
	// this signer.
	GetPublicKeyFactory() PublicKeyFactory

	// GetPublicKey returns the public key of the signer.
	GetPublicKey() PublicKey

	// Sign returns the signature of the message.
	Sign(msg []byte) (Signature, error)
}
