// Package coprocessor implements a trusted evaluator of the encrypted values.
//
// The coprocessor holds the secret material: the plaintexts are kept in the
// store sealed with XChaCha20-Poly1305 under a key derived from the secret,
// and the random values come from a keyed BLAKE3 stream that never leaves it.
// Contracts only see handles. The handles of a transaction are derived from
// its seed so that replaying the transaction produces the same handles.
package coprocessor

import (
	"crypto/cipher"
	"crypto/rand"
	"encoding/binary"
	"io"
	"math/bits"

	"github.com/fxamacker/cbor/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/zeebo/blake3"
	"go.dedis.ch/veilroll"
	"go.dedis.ch/veilroll/core/access"
	"go.dedis.ch/veilroll/core/access/acl"
	"go.dedis.ch/veilroll/core/store"
	"go.dedis.ch/veilroll/core/store/prefixed"
	"go.dedis.ch/veilroll/fhe"
	"go.dedis.ch/veilroll/fhe/input"
	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/curve25519"
	"golang.org/x/xerrors"
)

// Namespace is the prefix of the store keys of the ciphertexts.
const Namespace = "FHE_"

// SecretSize is the size in bytes of the secret of a coprocessor.
const SecretSize = 32

const (
	cipherContext = "veilroll coprocessor 2024-01 ciphertext key"
	randomContext = "veilroll coprocessor 2024-01 random key"
	inputContext  = "veilroll coprocessor 2024-01 input key"
)

var promOperations = prometheus.NewCounterVec(prometheus.CounterOpts{
	Name: "veilroll_fhe_operations_total",
	Help: "total number of homomorphic operations evaluated",
}, []string{"op"})

func init() {
	veilroll.PromCollectors = append(veilroll.PromCollectors, promOperations)
}

// Coprocessor evaluates the operations on the encrypted values and decrypts
// them for the gateway.
//
// - implements fhe.Engine
type Coprocessor struct {
	acl       acl.Manager
	randomKey []byte
	inputPub  *[32]byte
	inputPriv *[32]byte
	sealer    sealer
	logger    zerolog.Logger
}

// NewSecret returns a random secret for a coprocessor.
func NewSecret() ([]byte, error) {
	secret := make([]byte, SecretSize)

	_, err := io.ReadFull(rand.Reader, secret)
	if err != nil {
		return nil, xerrors.Errorf("failed to read random: %v", err)
	}

	return secret, nil
}

// NewCoprocessor returns a coprocessor which derives its keys from the secret.
// The access control list decides which handles a contract can use.
func NewCoprocessor(secret []byte, manager acl.Manager) (*Coprocessor, error) {
	if len(secret) != SecretSize {
		return nil, xerrors.Errorf("invalid secret length %d", len(secret))
	}

	cipherKey := make([]byte, chacha20poly1305.KeySize)
	blake3.DeriveKey(cipherContext, secret, cipherKey)

	aead, err := chacha20poly1305.NewX(cipherKey)
	if err != nil {
		return nil, xerrors.Errorf("failed to create cipher: %v", err)
	}

	randomKey := make([]byte, 32)
	blake3.DeriveKey(randomContext, secret, randomKey)

	priv := new([32]byte)
	blake3.DeriveKey(inputContext, secret, priv[:])

	point, err := curve25519.X25519(priv[:], curve25519.Basepoint)
	if err != nil {
		return nil, xerrors.Errorf("failed to derive input key: %v", err)
	}

	pub := new([32]byte)
	copy(pub[:], point)

	c := &Coprocessor{
		acl:       manager,
		randomKey: randomKey,
		inputPub:  pub,
		inputPriv: priv,
		sealer:    sealer{aead: aead, random: rand.Reader},
		logger:    veilroll.Logger.With().Str("service", "coprocessor").Logger(),
	}

	return c, nil
}

// InputKey returns the public key the clients seal their inputs to.
func (c *Coprocessor) InputKey() *[32]byte {
	key := *c.inputPub
	return &key
}

// NewSession implements fhe.Engine. It returns an evaluator for one
// transaction of the contract.
func (c *Coprocessor) NewSession(snap store.Snapshot, contract access.Identity, seed []byte) fhe.Evaluator {
	return &session{
		cop:       c,
		snap:      snap,
		store:     prefixed.NewSnapshot(Namespace, snap),
		contract:  contract,
		seed:      append([]byte{}, seed...),
		transient: make(map[fhe.Handle]struct{}),
		proofs:    make(map[string]input.Payload),
	}
}

// Decrypt returns the plaintext of the handle. It does not check any right
// and must only be reachable from the gateway.
func (c *Coprocessor) Decrypt(r store.Readable, h fhe.Handle) (uint64, error) {
	value, err := c.read(prefixed.NewReadable(Namespace, r), h)
	if err != nil {
		return 0, err
	}

	return value, nil
}

func (c *Coprocessor) read(r store.Readable, h fhe.Handle) (uint64, error) {
	data, err := r.Get(h[:])
	if err != nil {
		return 0, xerrors.Errorf("failed to read ciphertext: %v", err)
	}

	if data == nil {
		return 0, xerrors.Errorf("%v: %w", h, fhe.ErrUnknownHandle)
	}

	pt, err := c.sealer.open(h, data)
	if err != nil {
		return 0, xerrors.Errorf("failed to open %v: %v", h, err)
	}

	if pt.Type != h.Type() {
		return 0, xerrors.Errorf("ciphertext of %v is %v: %w", h, pt.Type, fhe.ErrTypeMismatch)
	}

	return pt.Value, nil
}

// plaintext is the content of a sealed ciphertext.
type plaintext struct {
	Type  fhe.Type
	Value uint64
}

// sealer encrypts the plaintexts at rest. The handle is authenticated with
// the ciphertext so that a value cannot be moved to another handle.
type sealer struct {
	aead   cipher.AEAD
	random io.Reader
}

func (s sealer) seal(h fhe.Handle, pt plaintext) ([]byte, error) {
	data, err := cbor.Marshal(pt)
	if err != nil {
		return nil, xerrors.Errorf("failed to encode: %v", err)
	}

	nonce := make([]byte, s.aead.NonceSize(), s.aead.NonceSize()+len(data)+s.aead.Overhead())

	_, err = io.ReadFull(s.random, nonce)
	if err != nil {
		return nil, xerrors.Errorf("failed to read nonce: %v", err)
	}

	return s.aead.Seal(nonce, nonce, data, h[:]), nil
}

func (s sealer) open(h fhe.Handle, data []byte) (plaintext, error) {
	if len(data) < s.aead.NonceSize() {
		return plaintext{}, xerrors.New("ciphertext too short")
	}

	nonce, ct := data[:s.aead.NonceSize()], data[s.aead.NonceSize():]

	raw, err := s.aead.Open(nil, nonce, ct, h[:])
	if err != nil {
		return plaintext{}, xerrors.Errorf("failed to decrypt: %v", err)
	}

	var pt plaintext

	err = cbor.Unmarshal(raw, &pt)
	if err != nil {
		return plaintext{}, xerrors.Errorf("failed to decode: %v", err)
	}

	return pt, nil
}

// session is the evaluator of a single transaction.
//
// - implements fhe.Evaluator
type session struct {
	cop      *Coprocessor
	snap     store.Snapshot
	store    store.Snapshot
	contract access.Identity
	seed     []byte
	counter  uint64

	// transient contains the handles created or verified during the
	// transaction, which the contract can use without a grant.
	transient map[fhe.Handle]struct{}

	// proofs caches the opened payloads by proof.
	proofs map[string]input.Payload

	random io.Reader
}

// TrivialEncrypt implements fhe.Evaluator.
func (s *session) TrivialEncrypt(value uint64, t fhe.Type) (fhe.Handle, error) {
	if !t.Valid() {
		return fhe.Handle{}, xerrors.Errorf("type %v: %w", t, fhe.ErrTypeMismatch)
	}

	if value > t.Max() {
		return fhe.Handle{}, xerrors.Errorf("value %d overflows %v", value, t)
	}

	scalar := make([]byte, 8)
	binary.LittleEndian.PutUint64(scalar, value)

	return s.output("trivial", t, value, scalar)
}

// Add implements fhe.Evaluator.
func (s *session) Add(a, b fhe.Handle) (fhe.Handle, error) {
	if a.Type() != b.Type() || a.Type() == fhe.Bool {
		return fhe.Handle{}, xerrors.Errorf("add %v and %v: %w", a.Type(), b.Type(), fhe.ErrTypeMismatch)
	}

	x, err := s.load(a)
	if err != nil {
		return fhe.Handle{}, err
	}

	y, err := s.load(b)
	if err != nil {
		return fhe.Handle{}, err
	}

	sum := wrap(x+y, a.Type())

	return s.output("add", a.Type(), sum, a[:], b[:])
}

// AddScalar implements fhe.Evaluator.
func (s *session) AddScalar(a fhe.Handle, scalar uint64) (fhe.Handle, error) {
	if a.Type() == fhe.Bool {
		return fhe.Handle{}, xerrors.Errorf("add scalar to %v: %w", a.Type(), fhe.ErrTypeMismatch)
	}

	x, err := s.load(a)
	if err != nil {
		return fhe.Handle{}, err
	}

	sum := wrap(x+wrap(scalar, a.Type()), a.Type())

	buffer := make([]byte, 8)
	binary.LittleEndian.PutUint64(buffer, scalar)

	return s.output("add_scalar", a.Type(), sum, a[:], buffer)
}

// Eq implements fhe.Evaluator.
func (s *session) Eq(a, b fhe.Handle) (fhe.Handle, error) {
	if a.Type() != b.Type() {
		return fhe.Handle{}, xerrors.Errorf("compare %v and %v: %w", a.Type(), b.Type(), fhe.ErrTypeMismatch)
	}

	x, err := s.load(a)
	if err != nil {
		return fhe.Handle{}, err
	}

	y, err := s.load(b)
	if err != nil {
		return fhe.Handle{}, err
	}

	return s.output("eq", fhe.Bool, boolValue(x == y), a[:], b[:])
}

// Le implements fhe.Evaluator.
func (s *session) Le(a, b fhe.Handle) (fhe.Handle, error) {
	if a.Type() != b.Type() || a.Type() == fhe.Bool {
		return fhe.Handle{}, xerrors.Errorf("compare %v and %v: %w", a.Type(), b.Type(), fhe.ErrTypeMismatch)
	}

	x, err := s.load(a)
	if err != nil {
		return fhe.Handle{}, err
	}

	y, err := s.load(b)
	if err != nil {
		return fhe.Handle{}, err
	}

	return s.output("le", fhe.Bool, boolValue(x <= y), a[:], b[:])
}

// And implements fhe.Evaluator.
func (s *session) And(a, b fhe.Handle) (fhe.Handle, error) {
	if a.Type() != fhe.Bool || b.Type() != fhe.Bool {
		return fhe.Handle{}, xerrors.Errorf("and %v and %v: %w", a.Type(), b.Type(), fhe.ErrTypeMismatch)
	}

	x, err := s.load(a)
	if err != nil {
		return fhe.Handle{}, err
	}

	y, err := s.load(b)
	if err != nil {
		return fhe.Handle{}, err
	}

	return s.output("and", fhe.Bool, x&y, a[:], b[:])
}

// Select implements fhe.Evaluator.
func (s *session) Select(cond, ifTrue, ifFalse fhe.Handle) (fhe.Handle, error) {
	if cond.Type() != fhe.Bool || ifTrue.Type() != ifFalse.Type() {
		return fhe.Handle{}, xerrors.Errorf("select %v between %v and %v: %w",
			cond.Type(), ifTrue.Type(), ifFalse.Type(), fhe.ErrTypeMismatch)
	}

	c, err := s.load(cond)
	if err != nil {
		return fhe.Handle{}, err
	}

	x, err := s.load(ifTrue)
	if err != nil {
		return fhe.Handle{}, err
	}

	y, err := s.load(ifFalse)
	if err != nil {
		return fhe.Handle{}, err
	}

	res := y
	if c == 1 {
		res = x
	}

	return s.output("select", ifTrue.Type(), res, cond[:], ifTrue[:], ifFalse[:])
}

// RandBounded implements fhe.Evaluator. The value is drawn by rejection
// sampling so that it is uniform for any bound.
func (s *session) RandBounded(t fhe.Type, bound uint64) (fhe.Handle, error) {
	if !t.Valid() {
		return fhe.Handle{}, xerrors.Errorf("type %v: %w", t, fhe.ErrTypeMismatch)
	}

	if bound == 0 || bound-1 > t.Max() {
		return fhe.Handle{}, xerrors.Errorf("invalid bound %d for %v", bound, t)
	}

	if s.random == nil {
		h, err := blake3.NewKeyed(s.cop.randomKey)
		if err != nil {
			return fhe.Handle{}, xerrors.Errorf("failed to create stream: %v", err)
		}

		h.Write(s.seed)
		s.random = h.Digest()
	}

	mask := uint64(1)<<bits.Len64(bound-1) - 1
	buffer := make([]byte, 8)

	var value uint64
	for {
		_, err := io.ReadFull(s.random, buffer)
		if err != nil {
			return fhe.Handle{}, xerrors.Errorf("failed to read stream: %v", err)
		}

		value = binary.LittleEndian.Uint64(buffer) & mask
		if value < bound {
			break
		}
	}

	binary.LittleEndian.PutUint64(buffer, bound)

	return s.output("rand", t, value, buffer)
}

// VerifyInput implements fhe.Evaluator. The proof must have been sealed for
// this contract by the owner, and the handle must be one of its lanes.
func (s *session) VerifyInput(h fhe.Handle, proof []byte, owner access.Identity) (fhe.Handle, error) {
	promOperations.WithLabelValues("verify").Inc()

	contractID, err := s.contract.MarshalText()
	if err != nil {
		return fhe.Handle{}, xerrors.Errorf("failed to marshal contract: %v", err)
	}

	ownerID, err := owner.MarshalText()
	if err != nil {
		return fhe.Handle{}, xerrors.Errorf("failed to marshal owner: %v", err)
	}

	payload, err := s.openProof(proof)
	if err != nil {
		s.cop.logger.Debug().Err(err).Msg("proof rejected")
		return fhe.Handle{}, xerrors.Errorf("%v: %w", err, fhe.ErrInvalidInput)
	}

	if string(payload.Contract) != string(contractID) || string(payload.Owner) != string(ownerID) {
		return fhe.Handle{}, xerrors.Errorf("proof bound to another caller: %w", fhe.ErrInvalidInput)
	}

	for i, lane := range payload.Lanes {
		if input.DeriveHandle(proof, i, contractID, ownerID, lane.Type) != h {
			continue
		}

		if !lane.Type.Valid() || lane.Value > lane.Type.Max() {
			return fhe.Handle{}, xerrors.Errorf("lane %d is malformed: %w", i, fhe.ErrInvalidInput)
		}

		err = s.write(h, plaintext{Type: lane.Type, Value: lane.Value})
		if err != nil {
			return fhe.Handle{}, err
		}

		return h, nil
	}

	return fhe.Handle{}, xerrors.Errorf("%v not in proof: %w", h, fhe.ErrInvalidInput)
}

func (s *session) openProof(proof []byte) (input.Payload, error) {
	payload, found := s.proofs[string(proof)]
	if found {
		return payload, nil
	}

	payload, err := input.Open(s.cop.inputPub, s.cop.inputPriv, proof)
	if err != nil {
		return payload, err
	}

	s.proofs[string(proof)] = payload

	return payload, nil
}

// load returns the plaintext of an operand if the contract is allowed to use
// it.
func (s *session) load(h fhe.Handle) (uint64, error) {
	_, transient := s.transient[h]
	if !transient {
		allowed, err := s.cop.acl.IsAuthorized(s.snap, h[:], s.contract)
		if err != nil {
			return 0, xerrors.Errorf("failed to check %v: %v", h, err)
		}

		if !allowed {
			return 0, xerrors.Errorf("%v: %w", h, fhe.ErrNotAllowed)
		}
	}

	return s.cop.read(s.store, h)
}

// output derives the handle of the result, stores the sealed value and allows
// it for the rest of the transaction.
func (s *session) output(op string, t fhe.Type, value uint64, operands ...[]byte) (fhe.Handle, error) {
	promOperations.WithLabelValues(op).Inc()

	h := blake3.New()
	h.Write([]byte("veilroll/fhe/op/" + op))
	h.Write(s.seed)

	counter := make([]byte, 8)
	binary.LittleEndian.PutUint64(counter, s.counter)
	h.Write(counter)

	for _, operand := range operands {
		h.Write(operand)
	}

	s.counter++

	handle := fhe.NewHandle(h.Sum(nil), t)

	err := s.write(handle, plaintext{Type: t, Value: value})
	if err != nil {
		return fhe.Handle{}, err
	}

	return handle, nil
}

func (s *session) write(h fhe.Handle, pt plaintext) error {
	data, err := s.cop.sealer.seal(h, pt)
	if err != nil {
		return xerrors.Errorf("failed to seal %v: %v", h, err)
	}

	err = s.store.Set(h[:], data)
	if err != nil {
		return xerrors.Errorf("failed to store %v: %v", h, err)
	}

	s.transient[h] = struct{}{}

	return nil
}

func wrap(value uint64, t fhe.Type) uint64 {
	return value & t.Max()
}

func boolValue(b bool) uint64 {
	if b {
		return 1
	}

	return 0
}
