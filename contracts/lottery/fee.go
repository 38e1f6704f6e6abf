package lottery

import (
	"errors"

	"github.com/shopspring/decimal"
	"golang.org/x/xerrors"
)

// WeiDecimals is the number of decimals of a native unit expressed in wei.
const WeiDecimals = 18

// ErrInvalidFee is returned when the amount paid for a ticket is not exactly
// the price.
var ErrInvalidFee = errors.New("invalid ticket price")

// ValidateFee returns nil if the amount paid is exactly the required fee,
// otherwise ErrInvalidFee.
func ValidateFee(paid, required decimal.Decimal) error {
	if !paid.Equal(required) {
		return xerrors.Errorf("paid %s wei instead of %s: %w", paid, required, ErrInvalidFee)
	}

	return nil
}

// ParseValue returns the amount in wei of a transaction argument. A missing
// value is zero.
func ParseValue(arg []byte) (decimal.Decimal, error) {
	if len(arg) == 0 {
		return decimal.Zero, nil
	}

	value, err := decimal.NewFromString(string(arg))
	if err != nil {
		return decimal.Zero, xerrors.Errorf("malformed value: %v", err)
	}

	if value.IsNegative() || !value.Equal(value.Truncate(0)) {
		return decimal.Zero, xerrors.Errorf("value '%s' is not a positive integer", arg)
	}

	return value, nil
}

// ToWei converts an amount in native units to wei.
func ToWei(amount decimal.Decimal) decimal.Decimal {
	return amount.Shift(WeiDecimals)
}
