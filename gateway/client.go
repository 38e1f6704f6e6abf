package gateway

import (
	"crypto/rand"
	"io"
	"time"

	"github.com/fxamacker/cbor/v2"
	"go.dedis.ch/veilroll/crypto"
	"go.dedis.ch/veilroll/fhe"
	"golang.org/x/crypto/nacl/box"
	"golang.org/x/xerrors"
)

// Keypair is the one-time key pair of a request.
type Keypair struct {
	Public  *[32]byte
	Private *[32]byte
}

// NewKeypair generates a random key pair.
func NewKeypair() (Keypair, error) {
	pub, priv, err := box.GenerateKey(rand.Reader)
	if err != nil {
		return Keypair{}, xerrors.Errorf("failed to generate key: %v", err)
	}

	return Keypair{Public: pub, Private: priv}, nil
}

// NewRequest returns an unsigned request for the handles, valid for the given
// number of days from the start.
func NewRequest(kp Keypair, user crypto.PublicKey, start time.Time, days uint32, pairs ...Pair) DecryptRequest {
	req := DecryptRequest{
		Pairs:          pairs,
		PublicKey:      kp.Public,
		User:           user,
		StartTimestamp: start.Unix(),
		DurationDays:   days,
	}

	for _, pair := range pairs {
		if !contains(req.Contracts, pair.Contract) {
			req.Contracts = append(req.Contracts, pair.Contract)
		}
	}

	return req
}

// Open returns the plaintexts of the response by handle.
func (kp Keypair) Open(resp DecryptResponse) (map[fhe.Handle]uint64, error) {
	values := make(map[fhe.Handle]uint64, len(resp.Values))

	for _, sealed := range resp.Values {
		data, ok := box.OpenAnonymous(nil, sealed.Data, kp.Public, kp.Private)
		if !ok {
			return nil, xerrors.Errorf("failed to open %v", sealed.Handle)
		}

		var pt sealedPlaintext

		err := cbor.Unmarshal(data, &pt)
		if err != nil {
			return nil, xerrors.Errorf("failed to decode %v: %v", sealed.Handle, err)
		}

		if fhe.Handle(pt.Handle) != sealed.Handle {
			return nil, xerrors.Errorf("value of %v sealed for another handle", sealed.Handle)
		}

		values[sealed.Handle] = pt.Value
	}

	return values, nil
}

// sealedPlaintext binds a value to its handle.
type sealedPlaintext struct {
	Handle [fhe.HandleSize]byte
	Value  uint64
}

func sealValue(h fhe.Handle, value uint64, key *[32]byte, random io.Reader) ([]byte, error) {
	data, err := encMode.Marshal(sealedPlaintext{Handle: h, Value: value})
	if err != nil {
		return nil, xerrors.Errorf("failed to encode: %v", err)
	}

	sealed, err := box.SealAnonymous(nil, data, key, random)
	if err != nil {
		return nil, xerrors.Errorf("failed to seal: %v", err)
	}

	return sealed, nil
}
