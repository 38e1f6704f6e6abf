// Package fake provides fake implementations for interfaces commonly used in
// the repository. The implementations can be configured to return errors when
// a unit test needs to exercise a failure path.
package fake

import (
	"crypto/sha256"
	"fmt"
	"hash"
	"sync"

	"go.dedis.ch/veilroll/crypto"
	"go.dedis.ch/veilroll/serde"
	"golang.org/x/xerrors"
)

var fakeErr = xerrors.New("fake error")

// GetError returns the fake error returned by the fake implementations.
func GetError() error {
	return fakeErr
}

// Err returns the format of an error wrapping the fake error.
func Err(msg string) string {
	return fmt.Sprintf("%s: %v", msg, fakeErr)
}

// Call is a tool to keep track of function calls.
type Call struct {
	sync.Mutex
	calls [][]interface{}
}

// Get returns the ith parameter of the nth call.
func (c *Call) Get(n, i int) interface{} {
	c.Lock()
	defer c.Unlock()

	return c.calls[n][i]
}

// Len returns the number of calls.
func (c *Call) Len() int {
	c.Lock()
	defer c.Unlock()

	return len(c.calls)
}

// Add adds a call to the list.
func (c *Call) Add(args ...interface{}) {
	c.Lock()
	c.calls = append(c.calls, args)
	c.Unlock()
}

// PublicKey is a fake implementation of crypto.PublicKey. It can be used as an
// identity.
//
// - implements crypto.PublicKey
type PublicKey struct {
	ID  byte
	err error
}

// NewBadPublicKey returns a public key that fails to marshal and to verify.
func NewBadPublicKey() PublicKey {
	return PublicKey{err: fakeErr}
}

// Verify implements crypto.PublicKey.
func (pk PublicKey) Verify([]byte, crypto.Signature) error {
	return pk.err
}

// Equal implements crypto.PublicKey.
func (pk PublicKey) Equal(other interface{}) bool {
	o, ok := other.(PublicKey)
	return ok && o.ID == pk.ID
}

// MarshalBinary implements encoding.BinaryMarshaler.
func (pk PublicKey) MarshalBinary() ([]byte, error) {
	return []byte{0xfe, pk.ID}, pk.err
}

// MarshalText implements encoding.TextMarshaler.
func (pk PublicKey) MarshalText() ([]byte, error) {
	return []byte(pk.String()), pk.err
}

// Serialize implements serde.Message.
func (pk PublicKey) Serialize(serde.Context) ([]byte, error) {
	return []byte(fmt.Sprintf(`{"Fake":%d}`, pk.ID)), pk.err
}

// String implements fmt.Stringer.
func (pk PublicKey) String() string {
	return fmt.Sprintf("fake.PublicKey(%d)", pk.ID)
}

// Signature is a fake implementation of crypto.Signature.
//
// - implements crypto.Signature
type Signature struct {
	err error
}

// NewBadSignature returns a signature that fails to marshal.
func NewBadSignature() Signature {
	return Signature{err: fakeErr}
}

// MarshalBinary implements encoding.BinaryMarshaler.
func (s Signature) MarshalBinary() ([]byte, error) {
	return []byte("fake signature"), s.err
}

// Equal implements crypto.Signature.
func (s Signature) Equal(o crypto.Signature) bool {
	_, ok := o.(Signature)
	return ok
}

// Serialize implements serde.Message.
func (s Signature) Serialize(serde.Context) ([]byte, error) {
	return []byte("{}"), s.err
}

// Signer is a fake implementation of crypto.Signer.
//
// - implements crypto.Signer
type Signer struct {
	ID  byte
	err error
}

// NewBadSigner returns a signer that fails to sign.
func NewBadSigner() Signer {
	return Signer{err: fakeErr}
}

// GetPublicKey implements crypto.Signer.
func (s Signer) GetPublicKey() crypto.PublicKey {
	return PublicKey{ID: s.ID}
}

// GetPublicKeyFactory implements crypto.Signer.
func (s Signer) GetPublicKeyFactory() crypto.PublicKeyFactory {
	return PublicKeyFactory{}
}

// Sign implements crypto.Signer.
func (s Signer) Sign([]byte) (crypto.Signature, error) {
	return Signature{}, s.err
}

// PublicKeyFactory is a fake implementation of crypto.PublicKeyFactory that
// decodes the fake public keys.
//
// - implements crypto.PublicKeyFactory
type PublicKeyFactory struct {
	err error
}

// NewBadPublicKeyFactory returns a factory that always fails.
func NewBadPublicKeyFactory() PublicKeyFactory {
	return PublicKeyFactory{err: fakeErr}
}

// Deserialize implements serde.Factory.
func (f PublicKeyFactory) Deserialize(ctx serde.Context, data []byte) (serde.Message, error) {
	return f.PublicKeyOf(ctx, data)
}

// PublicKeyOf implements crypto.PublicKeyFactory.
func (f PublicKeyFactory) PublicKeyOf(ctx serde.Context, data []byte) (crypto.PublicKey, error) {
	if f.err != nil {
		return nil, f.err
	}

	m := struct{ Fake byte }{}

	err := ctx.Unmarshal(data, &m)
	if err != nil {
		return nil, err
	}

	return PublicKey{ID: m.Fake}, nil
}

// FromBytes implements crypto.PublicKeyFactory.
func (f PublicKeyFactory) FromBytes(data []byte) (crypto.PublicKey, error) {
	if f.err != nil {
		return nil, f.err
	}

	if len(data) != 2 || data[0] != 0xfe {
		return nil, xerrors.New("invalid fake public key")
	}

	return PublicKey{ID: data[1]}, nil
}

// SignatureFactory is a fake implementation of crypto.SignatureFactory.
//
// - implements crypto.SignatureFactory
type SignatureFactory struct {
	err error
}

// NewBadSignatureFactory returns a factory that always fails.
func NewBadSignatureFactory() SignatureFactory {
	return SignatureFactory{err: fakeErr}
}

// Deserialize implements serde.Factory.
func (f SignatureFactory) Deserialize(ctx serde.Context, data []byte) (serde.Message, error) {
	return f.SignatureOf(ctx, data)
}

// SignatureOf implements crypto.SignatureFactory.
func (f SignatureFactory) SignatureOf(serde.Context, []byte) (crypto.Signature, error) {
	return Signature{}, f.err
}

// Hash is a fake implementation of hash.Hash that fails after a number of
// writes.
type Hash struct {
	hash.Hash
	delay int
	err   error
}

// NewBadHash returns a hash that fails on the first write.
func NewBadHash() *Hash {
	return NewBadHashWithDelay(0)
}

// NewBadHashWithDelay returns a hash that fails after the given number of
// successful writes.
func NewBadHashWithDelay(delay int) *Hash {
	return &Hash{Hash: sha256.New(), delay: delay, err: fakeErr}
}

// Write implements io.Writer.
func (h *Hash) Write(in []byte) (int, error) {
	if h.err != nil {
		if h.delay == 0 {
			return 0, h.err
		}

		h.delay--
	}

	return h.Hash.Write(in)
}

// HashFactory is a fake implementation of crypto.HashFactory.
//
// - implements crypto.HashFactory
type HashFactory struct {
	hash *Hash
}

// NewHashFactory returns a factory that returns the given hash.
func NewHashFactory(h *Hash) HashFactory {
	return HashFactory{hash: h}
}

// New implements crypto.HashFactory.
func (f HashFactory) New() hash.Hash {
	return f.hash
}
