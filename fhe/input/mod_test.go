package input

import (
	"crypto/rand"
	"testing"

	"github.com/stretchr/testify/require"
	"go.dedis.ch/veilroll/fhe"
	"go.dedis.ch/veilroll/testing/fake"
	"golang.org/x/crypto/nacl/box"
)

func TestBuilder_Encrypt(t *testing.T) {
	pub, priv, err := box.GenerateKey(rand.Reader)
	require.NoError(t, err)

	contract := fake.PublicKey{ID: 1}
	owner := fake.PublicKey{ID: 2}

	enc, err := New(pub, contract, owner).Add8(3).Add8(7).AddBool(true).Add32(1 << 20).Encrypt()
	require.NoError(t, err)
	require.Len(t, enc.Handles, 4)
	require.Equal(t, fhe.Uint8, enc.Handles[0].Type())
	require.Equal(t, fhe.Bool, enc.Handles[2].Type())
	require.Equal(t, fhe.Uint32, enc.Handles[3].Type())
	require.NotEqual(t, enc.Handles[0], enc.Handles[1])

	payload, err := Open(pub, priv, enc.Proof)
	require.NoError(t, err)
	require.Equal(t, []Lane{
		{Type: fhe.Uint8, Value: 3},
		{Type: fhe.Uint8, Value: 7},
		{Type: fhe.Bool, Value: 1},
		{Type: fhe.Uint32, Value: 1 << 20},
	}, payload.Lanes)

	text, err := owner.MarshalText()
	require.NoError(t, err)
	require.Equal(t, text, payload.Owner)

	h := DeriveHandle(enc.Proof, 1, payload.Contract, payload.Owner, fhe.Uint8)
	require.Equal(t, enc.Handles[1], h)
}

func TestBuilder_EncryptFailures(t *testing.T) {
	pub, _, err := box.GenerateKey(rand.Reader)
	require.NoError(t, err)

	_, err = New(pub, fake.PublicKey{}, fake.PublicKey{}).Encrypt()
	require.EqualError(t, err, "invalid number of values: 0")

	_, err = New(pub, fake.NewBadPublicKey(), fake.PublicKey{}).Add8(1).Encrypt()
	require.EqualError(t, err, fake.Err("failed to marshal contract"))

	_, err = New(pub, fake.PublicKey{}, fake.NewBadPublicKey()).Add8(1).Encrypt()
	require.EqualError(t, err, fake.Err("failed to marshal owner"))

	builder := New(pub, fake.PublicKey{}, fake.PublicKey{}).Add8(1)
	builder.random = badReader{}

	_, err = builder.Encrypt()
	require.Error(t, err)
	require.Regexp(t, "^failed to seal: ", err.Error())
}

func TestOpen_Failures(t *testing.T) {
	pub, priv, err := box.GenerateKey(rand.Reader)
	require.NoError(t, err)

	_, err = Open(pub, priv, []byte("garbage"))
	require.EqualError(t, err, "failed to open proof")

	sealed, err := box.SealAnonymous(nil, []byte{0xff}, pub, rand.Reader)
	require.NoError(t, err)

	_, err = Open(pub, priv, sealed)
	require.Error(t, err)
	require.Regexp(t, "^failed to decode payload: ", err.Error())

	data, err := encMode.Marshal(Payload{})
	require.NoError(t, err)

	sealed, err = box.SealAnonymous(nil, data, pub, rand.Reader)
	require.NoError(t, err)

	_, err = Open(pub, priv, sealed)
	require.EqualError(t, err, "invalid number of values: 0")
}

// -----------------------------------------------------------------------------
// Utility functions

type badReader struct{}

func (badReader) Read([]byte) (int, error) {
	return 0, fake.GetError()
}
