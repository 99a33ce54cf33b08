package types

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/holiman/uint256"
)

// USDMultiplier scales USD values to four decimal places.
const USDMultiplier uint64 = 10000

var ErrUSDOverflow = errors.New("usd value overflows u64")

// ToUSDFixedPoint converts whole dollars plus a fractional part expressed in
// ten-thousandths into the on-chain fixed point representation.
func ToUSDFixedPoint(dollars uint64, tenThousandths uint64) (uint64, error) {
	if tenThousandths >= USDMultiplier {
		return 0, errors.New("fractional part must be below 10000")
	}
	v, overflow := new(uint256.Int).MulOverflow(uint256.NewInt(dollars), uint256.NewInt(USDMultiplier))
	if overflow {
		return 0, ErrUSDOverflow
	}
	v.Add(v, uint256.NewInt(tenThousandths))
	if !v.IsUint64() {
		return 0, ErrUSDOverflow
	}
	return v.Uint64(), nil
}

// FromUSDFixedPoint splits a fixed point value into whole dollars and ten-thousandths.
func FromUSDFixedPoint(v uint64) (dollars uint64, tenThousandths uint64) {
	return v / USDMultiplier, v % USDMultiplier
}

// ParseUSD reads a decimal dollar amount with at most four fractional
// digits, such as "1000000" or "67890.1234", into fixed point.
func ParseUSD(s string) (uint64, error) {
	whole, frac, hasFrac := strings.Cut(s, ".")
	if whole == "" || (hasFrac && (frac == "" || len(frac) > 4)) {
		return 0, fmt.Errorf("invalid usd amount %q", s)
	}
	dollars, err := strconv.ParseUint(whole, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid usd amount %q: %w", s, err)
	}
	var tenThousandths uint64
	if hasFrac {
		frac += strings.Repeat("0", 4-len(frac))
		if tenThousandths, err = strconv.ParseUint(frac, 10, 64); err != nil {
			return 0, fmt.Errorf("invalid usd amount %q: %w", s, err)
		}
	}
	return ToUSDFixedPoint(dollars, tenThousandths)
}

// FormatUSD renders a fixed point value as dollars with four decimals.
func FormatUSD(v uint64) string {
	dollars, tenThousandths := FromUSDFixedPoint(v)
	return fmt.Sprintf("%d.%04d", dollars, tenThousandths)
}
