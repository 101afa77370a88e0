package wallet

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/kozaktomas/blinkpay/internal/constants"
)

// ParseAmount parses a positive decimal amount of the native currency.
func ParseAmount(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, fmt.Errorf("%w: amount is empty", ErrInvalidAmount)
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %q is not a number", ErrInvalidAmount, s)
	}
	if !d.IsPositive() {
		return decimal.Zero, fmt.Errorf("%w: amount must be greater than zero", ErrInvalidAmount)
	}
	return d, nil
}

// ToWei converts a native currency amount to its smallest unit.
// Amounts with more than 18 fractional digits are rejected.
func ToWei(amount decimal.Decimal) (*big.Int, error) {
	wei := amount.Shift(constants.NativeDecimals)
	if !wei.IsInteger() {
		return nil, fmt.Errorf("%w: too many decimal places in %s", ErrInvalidAmount, amount.String())
	}
	return wei.BigInt(), nil
}

// FromWei converts an amount in wei back to the native currency.
func FromWei(wei *big.Int) decimal.Decimal {
	return decimal.NewFromBigInt(wei, -constants.NativeDecimals)
}
