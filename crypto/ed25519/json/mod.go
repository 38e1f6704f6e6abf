// Package json implements the JSON formats of the Ed25519 public keys and
// signatures.
package json

import (
	"go.dedis.ch/veilroll/crypto/ed25519"
	"go.dedis.ch/veilroll/serde"
	"golang.org/x/xerrors"
)

func init() {
	ed25519.RegisterPublicKeyFormat(serde.FormatJSON, pubkeyFormat{})
	ed25519.RegisterSignatureFormat(serde.FormatJSON, sigFormat{})
}

// PublicKeyJSON is the JSON message of a public key.
type PublicKeyJSON struct {
	Name string
	Data []byte
}

// SignatureJSON is the JSON message of a signature.
type SignatureJSON struct {
	Name string
	Data []byte
}

// pubkeyFormat is the engine to encode and decode public keys in JSON format.
//
// - implements serde.FormatEngine
type pubkeyFormat struct{}

// Encode implements serde.FormatEngine. It returns the JSON data of the public
// key.
func (f pubkeyFormat) Encode(ctx serde.Context, msg serde.Message) ([]byte, error) {
	pubkey, ok := msg.(ed25519.PublicKey)
	if !ok {
		return nil, xerrors.Errorf("unsupported message of type '%T'", msg)
	}

	buffer, err := pubkey.MarshalBinary()
	if err != nil {
		return nil, xerrors.Errorf("couldn't marshal point: %v", err)
	}

	m := PublicKeyJSON{
		Name: ed25519.Algorithm,
		Data: buffer,
	}

	data, err := ctx.Marshal(m)
	if err != nil {
		return nil, xerrors.Errorf("couldn't marshal: %v", err)
	}

	return data, nil
}

// Decode implements serde.FormatEngine. It returns the public key of the JSON
// data.
func (f pubkeyFormat) Decode(ctx serde.Context, data []byte) (serde.Message, error) {
	m := PublicKeyJSON{}

	err := ctx.Unmarshal(data, &m)
	if err != nil {
		return nil, xerrors.Errorf("couldn't unmarshal public key: %v", err)
	}

	if m.Name != ed25519.Algorithm {
		return nil, xerrors.Errorf("unsupported algorithm '%s'", m.Name)
	}

	pubkey, err := ed25519.NewPublicKey(m.Data)
	if err != nil {
		return nil, xerrors.Errorf("couldn't create public key: %v", err)
	}

	return pubkey, nil
}

// sigFormat is the engine to encode and decode signatures in JSON format.
//
// - implements serde.FormatEngine
type sigFormat struct{}

// Encode implements serde.FormatEngine. It returns the JSON data of the
// signature.
func (f sigFormat) Encode(ctx serde.Context, msg serde.Message) ([]byte, error) {
	signature, ok := msg.(ed25519.Signature)
	if !ok {
		return nil, xerrors.Errorf("unsupported message of type '%T'", msg)
	}

	raw, _ := signature.MarshalBinary()

	m := SignatureJSON{
		Name: ed25519.Algorithm,
		Data: raw,
	}

	data, err := ctx.Marshal(m)
	if err != nil {
		return nil, xerrors.Errorf("couldn't marshal: %v", err)
	}

	return data, nil
}

// Decode implements serde.FormatEngine. It returns the signature of the JSON
// data.
func (f sigFormat) Decode(ctx serde.Context, data []byte) (serde.Message, error) {
	m := SignatureJSON{}

	err := ctx.Unmarshal(data, &m)
	if err != nil {
		return nil, xerrors.Errorf("couldn't unmarshal signature: %v", err)
	}

	return ed25519.NewSignature(m.Data), nil
}
