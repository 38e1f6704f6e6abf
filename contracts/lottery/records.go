package lottery

import (
	"github.com/fxamacker/cbor/v2"
	"github.com/shopspring/decimal"
	"go.dedis.ch/veilroll/core/access"
	"go.dedis.ch/veilroll/core/store"
	"go.dedis.ch/veilroll/fhe"
	"golang.org/x/xerrors"
)

const (
	ticketPrefix = "ticket:"
	drawPrefix   = "draw:"
	pointsPrefix = "points:"
)

var potKey = []byte("pot")

// ticketRecord is the ticket of an owner. It is never modified once bought.
type ticketRecord struct {
	First     fhe.Handle `cbor:"1,keyasint"`
	Second    fhe.Handle `cbor:"2,keyasint"`
	Purchased bool       `cbor:"3,keyasint"`
}

// drawRecord is the last draw of an owner.
type drawRecord struct {
	DrawnFirst  fhe.Handle `cbor:"1,keyasint"`
	DrawnSecond fhe.Handle `cbor:"2,keyasint"`
	Match       fhe.Handle `cbor:"3,keyasint"`
	Performed   bool       `cbor:"4,keyasint"`
	Count       uint64     `cbor:"5,keyasint"`
}

// pointsRecord is the account of points of an owner.
type pointsRecord struct {
	Score fhe.Handle `cbor:"1,keyasint"`
}

func recordKey(prefix string, owner access.Identity) ([]byte, error) {
	id, err := owner.MarshalText()
	if err != nil {
		return nil, xerrors.Errorf("failed to marshal owner: %v", err)
	}

	return append([]byte(prefix), id...), nil
}

// readRecord decodes the record of the owner into the value. It returns false
// when the record does not exist.
func readRecord(r store.Readable, prefix string, owner access.Identity, v interface{}) (bool, error) {
	key, err := recordKey(prefix, owner)
	if err != nil {
		return false, err
	}

	data, err := r.Get(key)
	if err != nil {
		return false, xerrors.Errorf("failed to read '%s': %v", prefix, err)
	}

	if data == nil {
		return false, nil
	}

	err = cbor.Unmarshal(data, v)
	if err != nil {
		return false, xerrors.Errorf("failed to decode '%s': %v", prefix, err)
	}

	return true, nil
}

func writeRecord(w store.Snapshot, prefix string, owner access.Identity, v interface{}) error {
	key, err := recordKey(prefix, owner)
	if err != nil {
		return err
	}

	data, err := cbor.Marshal(v)
	if err != nil {
		return xerrors.Errorf("failed to encode '%s': %v", prefix, err)
	}

	err = w.Set(key, data)
	if err != nil {
		return xerrors.Errorf("failed to write '%s': %v", prefix, err)
	}

	return nil
}

func readPot(r store.Readable) (decimal.Decimal, error) {
	data, err := r.Get(potKey)
	if err != nil {
		return decimal.Zero, xerrors.Errorf("failed to read pot: %v", err)
	}

	if data == nil {
		return decimal.Zero, nil
	}

	pot, err := decimal.NewFromString(string(data))
	if err != nil {
		return decimal.Zero, xerrors.Errorf("malformed pot: %v", err)
	}

	return pot, nil
}

func writePot(w store.Snapshot, pot decimal.Decimal) error {
	err := w.Set(potKey, []byte(pot.String()))
	if err != nil {
		return xerrors.Errorf("failed to write pot: %v", err)
	}

	return nil
}
