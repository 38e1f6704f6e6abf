// Package fhe defines the handles of the encrypted values and the operations
// that a contract can evaluate on them.
//
// A handle is an opaque reference to a ciphertext held by the coprocessor. It
// carries the type of the encrypted value so that the operations can be type
// checked without decrypting anything. A contract never branches on an
// encrypted value: the conditional updates go through Select.
package fhe

import (
	"encoding/hex"
	"errors"
	"fmt"

	"go.dedis.ch/veilroll/core/access"
	"go.dedis.ch/veilroll/core/store"
	"golang.org/x/xerrors"
)

// HandleSize is the size in bytes of a handle.
const HandleSize = 32

// HandleVersion is the version of the handles produced by this package.
const HandleVersion byte = 0

const (
	typeIndex    = 30
	versionIndex = 31
)

var (
	// ErrTypeMismatch is returned when the operands of an operation do not
	// have the expected types.
	ErrTypeMismatch = errors.New("type mismatch")

	// ErrUnknownHandle is returned when a handle has no ciphertext.
	ErrUnknownHandle = errors.New("unknown handle")

	// ErrNotAllowed is returned when the caller is not authorized to use an
	// operand.
	ErrNotAllowed = errors.New("handle not allowed")

	// ErrInvalidInput is returned when an encrypted input cannot be verified
	// against the caller.
	ErrInvalidInput = errors.New("invalid input proof")
)

// Type is the type of an encrypted value.
type Type byte

const (
	// Bool is an encrypted boolean.
	Bool Type = 0
	// Uint8 is an encrypted 8-bit unsigned integer.
	Uint8 Type = 2
	// Uint32 is an encrypted 32-bit unsigned integer.
	Uint32 Type = 4
)

// Valid returns true if the type is supported.
func (t Type) Valid() bool {
	switch t {
	case Bool, Uint8, Uint32:
		return true
	default:
		return false
	}
}

// Max returns the largest value the type can hold.
func (t Type) Max() uint64 {
	switch t {
	case Bool:
		return 1
	case Uint8:
		return 1<<8 - 1
	case Uint32:
		return 1<<32 - 1
	default:
		return 0
	}
}

// String implements fmt.Stringer.
func (t Type) String() string {
	switch t {
	case Bool:
		return "ebool"
	case Uint8:
		return "euint8"
	case Uint32:
		return "euint32"
	default:
		return fmt.Sprintf("unknown(%d)", byte(t))
	}
}

// Handle is the reference of a ciphertext.
type Handle [HandleSize]byte

// NewHandle builds a handle out of a digest of at least 30 bytes and the type
// of the value.
func NewHandle(digest []byte, t Type) Handle {
	var h Handle
	copy(h[:typeIndex], digest)

	h[typeIndex] = byte(t)
	h[versionIndex] = HandleVersion

	return h
}

// HandleFromBytes returns the handle of the bytes.
func HandleFromBytes(data []byte) (Handle, error) {
	var h Handle

	if len(data) != HandleSize {
		return h, xerrors.Errorf("invalid handle length %d", len(data))
	}

	copy(h[:], data)

	if !h.Type().Valid() {
		return h, xerrors.Errorf("invalid handle type %d", h[typeIndex])
	}

	return h, nil
}

// Type returns the type of the encrypted value.
func (h Handle) Type() Type {
	return Type(h[typeIndex])
}

// Version returns the version of the handle.
func (h Handle) Version() byte {
	return h[versionIndex]
}

// IsZero returns true for the zero handle which references nothing.
func (h Handle) IsZero() bool {
	return h == Handle{}
}

// Bytes returns a copy of the handle as a slice.
func (h Handle) Bytes() []byte {
	return append([]byte{}, h[:]...)
}

// MarshalText implements encoding.TextMarshaler.
func (h Handle) MarshalText() ([]byte, error) {
	return []byte(h.String()), nil
}

// String implements fmt.Stringer. It returns the hexadecimal representation
// of the handle.
func (h Handle) String() string {
	return "0x" + hex.EncodeToString(h[:])
}

// Evaluator is the set of operations available to a contract while it
// executes a transaction. The new handles are allowed for the rest of the
// transaction, but they must be granted to survive it.
type Evaluator interface {
	// TrivialEncrypt encrypts a public value.
	TrivialEncrypt(value uint64, t Type) (Handle, error)

	// Add returns the sum of two values of the same type, modulo the size of
	// the type.
	Add(a, b Handle) (Handle, error)

	// AddScalar adds a public value to an encrypted one.
	AddScalar(a Handle, scalar uint64) (Handle, error)

	// Eq returns an encrypted boolean that is true if both values are equal.
	Eq(a, b Handle) (Handle, error)

	// Le returns an encrypted boolean that is true if a is lower than or
	// equal to b.
	Le(a, b Handle) (Handle, error)

	// And returns the conjunction of two encrypted booleans.
	And(a, b Handle) (Handle, error)

	// Select returns a value equal to ifTrue when the condition holds, and
	// to ifFalse otherwise.
	Select(cond, ifTrue, ifFalse Handle) (Handle, error)

	// RandBounded returns a uniform random value in [0, bound).
	RandBounded(t Type, bound uint64) (Handle, error)

	// VerifyInput checks that the handle is part of an encrypted input sealed
	// for the calling contract by the owner and makes it available.
	VerifyInput(h Handle, proof []byte, owner access.Identity) (Handle, error)
}

// Engine opens the evaluation sessions of the transactions.
type Engine interface {
	// NewSession returns an evaluator for one transaction of the contract. The
	// seed must be unique to the transaction and identical on every replay.
	NewSession(snap store.Snapshot, contract access.Identity, seed []byte) Evaluator
}
