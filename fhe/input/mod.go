// Package input implements the client side encryption of the inputs of a
// contract.
//
// The values are sealed to the input key of the coprocessor together with the
// identities of the contract and of the owner, so that the resulting proof can
// only be used by that owner when calling that contract. The handles are
// derived from the sealed proof and are known by the client before the
// transaction is submitted.
package input

import (
	"crypto/rand"
	"encoding/binary"
	"io"

	"github.com/fxamacker/cbor/v2"
	"github.com/zeebo/blake3"
	"go.dedis.ch/veilroll/core/access"
	"go.dedis.ch/veilroll/fhe"
	"golang.org/x/crypto/nacl/box"
	"golang.org/x/xerrors"
)

// MaxLanes is the maximum number of values in one input.
const MaxLanes = 16

const handleDomain = "veilroll/fhe/input"

var encMode cbor.EncMode

func init() {
	var err error
	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic(err)
	}
}

// Lane is one value of an input.
type Lane struct {
	Type  fhe.Type
	Value uint64
}

// Payload is the content sealed in a proof.
type Payload struct {
	Contract []byte
	Owner    []byte
	Lanes    []Lane
}

// Encrypted is the result of an encryption: the handles of the lanes in order
// and the proof to submit alongside.
type Encrypted struct {
	Handles []fhe.Handle
	Proof   []byte
}

// Builder collects the values of an input.
type Builder struct {
	key      *[32]byte
	contract access.Identity
	owner    access.Identity
	lanes    []Lane
	random   io.Reader
}

// New returns a builder that seals the values to the key for the given
// contract and owner.
func New(key *[32]byte, contract, owner access.Identity) *Builder {
	return &Builder{
		key:      key,
		contract: contract,
		owner:    owner,
		random:   rand.Reader,
	}
}

// AddBool appends a boolean.
func (b *Builder) AddBool(v bool) *Builder {
	lane := Lane{Type: fhe.Bool}
	if v {
		lane.Value = 1
	}

	b.lanes = append(b.lanes, lane)

	return b
}

// Add8 appends an 8-bit unsigned integer.
func (b *Builder) Add8(v uint8) *Builder {
	b.lanes = append(b.lanes, Lane{Type: fhe.Uint8, Value: uint64(v)})

	return b
}

// Add32 appends a 32-bit unsigned integer.
func (b *Builder) Add32(v uint32) *Builder {
	b.lanes = append(b.lanes, Lane{Type: fhe.Uint32, Value: uint64(v)})

	return b
}

// Encrypt seals the values and returns the handles with the proof.
func (b *Builder) Encrypt() (Encrypted, error) {
	if len(b.lanes) == 0 || len(b.lanes) > MaxLanes {
		return Encrypted{}, xerrors.Errorf("invalid number of values: %d", len(b.lanes))
	}

	contract, err := b.contract.MarshalText()
	if err != nil {
		return Encrypted{}, xerrors.Errorf("failed to marshal contract: %v", err)
	}

	owner, err := b.owner.MarshalText()
	if err != nil {
		return Encrypted{}, xerrors.Errorf("failed to marshal owner: %v", err)
	}

	payload := Payload{
		Contract: contract,
		Owner:    owner,
		Lanes:    b.lanes,
	}

	data, err := encMode.Marshal(payload)
	if err != nil {
		return Encrypted{}, xerrors.Errorf("failed to encode: %v", err)
	}

	proof, err := box.SealAnonymous(nil, data, b.key, b.random)
	if err != nil {
		return Encrypted{}, xerrors.Errorf("failed to seal: %v", err)
	}

	res := Encrypted{
		Handles: make([]fhe.Handle, len(b.lanes)),
		Proof:   proof,
	}

	for i, lane := range b.lanes {
		res.Handles[i] = DeriveHandle(proof, i, contract, owner, lane.Type)
	}

	return res, nil
}

// Open decrypts the proof with the input key pair and returns its payload.
func Open(publicKey, privateKey *[32]byte, proof []byte) (Payload, error) {
	data, ok := box.OpenAnonymous(nil, proof, publicKey, privateKey)
	if !ok {
		return Payload{}, xerrors.New("failed to open proof")
	}

	var payload Payload

	err := cbor.Unmarshal(data, &payload)
	if err != nil {
		return Payload{}, xerrors.Errorf("failed to decode payload: %v", err)
	}

	if len(payload.Lanes) == 0 || len(payload.Lanes) > MaxLanes {
		return Payload{}, xerrors.Errorf("invalid number of values: %d", len(payload.Lanes))
	}

	return payload, nil
}

// DeriveHandle returns the handle of the lane at the index of the proof.
func DeriveHandle(proof []byte, index int, contract, owner []byte, t fhe.Type) fhe.Handle {
	h := blake3.New()

	writeChunk(h, []byte(handleDomain))
	writeChunk(h, proof)
	writeChunk(h, contract)
	writeChunk(h, owner)

	buffer := make([]byte, 4)
	binary.LittleEndian.PutUint32(buffer, uint32(index))
	h.Write(buffer)

	return fhe.NewHandle(h.Sum(nil), t)
}

func writeChunk(w io.Writer, data []byte) {
	size := make([]byte, 4)
	binary.LittleEndian.PutUint32(size, uint32(len(data)))

	w.Write(size)
	w.Write(data)
}
