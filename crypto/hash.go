package crypto

import (
	"crypto/sha256"
	"hash"

	"github.com/zeebo/blake3"
)

// HashAlgorithm is the identifier of a supported hash function.
type HashAlgorithm int

const (
	// Sha256 is the SHA-256 hash function.
	Sha256 HashAlgorithm = iota

	// Blake3 is the BLAKE3 hash function with a 256-bit digest.
	Blake3
)

// hashFactory is a hash factory that creates the hash function of the
// algorithm.
//
// - implements crypto.HashFactory
type hashFactory struct {
	algorithm HashAlgorithm
}

// NewHashFactory returns a new instance of the factory.
func NewHashFactory(a HashAlgorithm) HashFactory {
	return hashFactory{algorithm: a}
}

// New implements crypto.HashFactory. It returns a new Hash instance.
func (f hashFactory) New() hash.Hash {
	switch f.algorithm {
	case Sha256:
		return sha256.New()
	case Blake3:
		return blake3.New()
	default:
		panic("unknown hash algorithm")
	}
}
