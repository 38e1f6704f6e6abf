package json

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.dedis.ch/veilroll/core/txn/signed"
	"go.dedis.ch/veilroll/crypto"
	"go.dedis.ch/veilroll/serde"
	"go.dedis.ch/veilroll/testing/fake"
)

func TestTxFormat_Encode(t *testing.T) {
	format := txFormat{}

	ctx := fake.NewContext()

	tx := makeTx(t, 1, fake.PublicKey{ID: 1}, signed.WithArg("A", []byte{1}))

	data, err := format.Encode(ctx, tx)
	require.NoError(t, err)
	require.Equal(t, `{"Nonce":1,"Args":{"A":"AQ=="},"PublicKey":{"Fake":1},"Signature":{}}`, string(data))

	_, err = format.Encode(ctx, fake.Message{})
	require.EqualError(t, err, "unsupported message of type 'fake.Message'")

	_, err = format.Encode(ctx, &signed.Transaction{})
	require.EqualError(t, err, "signature is missing")

	badTx := makeTx(t, 0, fake.PublicKey{}, signed.WithSignature(fake.NewBadSignature()))
	_, err = format.Encode(ctx, badTx)
	require.EqualError(t, err, fake.Err("failed to encode signature"))

	_, err = format.Encode(fake.NewBadContext(), tx)
	require.EqualError(t, err, fake.Err("failed to marshal"))
}

func TestTxFormat_Decode(t *testing.T) {
	format := txFormat{}

	ctx := fake.NewContext()
	ctx = serde.WithFactory(ctx, signed.PublicKeyFac{}, fake.PublicKeyFactory{})
	ctx = serde.WithFactory(ctx, signed.SignatureFac{}, fake.SignatureFactory{})

	msg, err := format.Decode(ctx, []byte(`{"Nonce":2,"Args":{"B":"AQ=="},"PublicKey":{"Fake":3}}`))
	require.NoError(t, err)

	expected := makeTx(t, 2, fake.PublicKey{ID: 3}, signed.WithArg("B", []byte{1}))
	require.Equal(t, expected, msg)

	_, err = format.Decode(fake.NewBadContext(), []byte(`{}`))
	require.EqualError(t, err, fake.Err("failed to unmarshal"))

	badCtx := serde.WithFactory(ctx, signed.PublicKeyFac{}, nil)
	_, err = format.Decode(badCtx, []byte(`{}`))
	require.EqualError(t, err, "invalid public key factory '<nil>'")

	badCtx = serde.WithFactory(ctx, signed.PublicKeyFac{}, fake.NewBadPublicKeyFactory())
	_, err = format.Decode(badCtx, []byte(`{}`))
	require.EqualError(t, err, fake.Err("failed to decode public key"))

	badCtx = serde.WithFactory(ctx, signed.SignatureFac{}, nil)
	_, err = format.Decode(badCtx, []byte(`{"PublicKey":{}}`))
	require.EqualError(t, err, "invalid signature factory '<nil>'")

	badCtx = serde.WithFactory(ctx, signed.SignatureFac{}, fake.NewBadSignatureFactory())
	_, err = format.Decode(badCtx, []byte(`{"PublicKey":{}}`))
	require.EqualError(t, err, fake.Err("failed to decode signature"))

	format.hashFactory = fake.NewHashFactory(fake.NewBadHash())
	_, err = format.Decode(ctx, []byte(`{"PublicKey":{}}`))
	require.EqualError(t, err,
		fake.Err("failed to create tx: couldn't fingerprint tx: couldn't write nonce"))
}

// -----------------------------------------------------------------------------
// Utility functions

func makeTx(t *testing.T, nonce uint64, pk crypto.PublicKey, opts ...signed.TransactionOption) *signed.Transaction {
	opts = append([]signed.TransactionOption{signed.WithSignature(fake.Signature{})}, opts...)

	tx, err := signed.NewTransaction(nonce, pk, opts...)
	require.NoError(t, err)

	return tx
}
