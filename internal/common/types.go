package common

import (
	"fmt"

	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"
)

// DefaultSupply is the number of votes an item is split into: 1000 = 100.0%.
const DefaultSupply uint64 = 1000

// PriceDecimals is the fixed-point scale of every unit price (x1000).
const PriceDecimals = 3

// ItemID identifies an item. Ids start at 1 and increment on mint.
type ItemID uint64

// Address is an account address. The zero value is never a valid owner.
type Address = ethcommon.Address

// ZeroAddress is returned wherever "no owner" must be expressed.
var ZeroAddress = Address{}

// HexToAddress parses a 0x-prefixed hex string. It returns ErrInvalidAddress
// for malformed input.
func HexToAddress(s string) (Address, error) {
	if !ethcommon.IsHexAddress(s) {
		return ZeroAddress, fmt.Errorf("%w: %q", ErrInvalidAddress, s)
	}
	return ethcommon.HexToAddress(s), nil
}

// Balance is the share position of one owner in one item.
type Balance struct {
	Owned    uint64 // Listed + Unlisted
	Listed   uint64 // Offered for trade
	Unlisted uint64 // Held privately
}

// IsZero reports whether the owner holds nothing.
func (b Balance) IsZero() bool {
	return b.Owned == 0
}

func (b Balance) String() string {
	return fmt.Sprintf("owned=%d listed=%d unlisted=%d", b.Owned, b.Listed, b.Unlisted)
}

// PriceStats holds the supply-weighted valuation of an item. Both fields are
// fixed-point with PriceDecimals, and AveragePrice = TotalPrice / supply.
type PriceStats struct {
	TotalPrice   uint256.Int
	AveragePrice uint256.Int
}

func (p PriceStats) String() string {
	return fmt.Sprintf("total=%s average=%s", FormatPrice(&p.TotalPrice), FormatPrice(&p.AveragePrice))
}

// FormatPrice renders a fixed-point price as a decimal string, e.g. 52000 -> "52".
func FormatPrice(p *uint256.Int) string {
	return decimal.NewFromBigInt(p.ToBig(), -PriceDecimals).String()
}

// ParsePrice parses a human price such as "52.125" into its fixed-point value.
// More than PriceDecimals fractional digits are rejected rather than rounded.
func ParsePrice(s string) (uint64, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("parse price %q: %w", s, err)
	}
	if d.IsNegative() {
		return 0, fmt.Errorf("negative price %q", s)
	}
	scaled := d.Shift(PriceDecimals)
	if !scaled.Equal(scaled.Truncate(0)) {
		return 0, fmt.Errorf("price %q has more than %d decimals", s, PriceDecimals)
	}
	if !scaled.BigInt().IsUint64() {
		return 0, fmt.Errorf("%w: price %q", ErrOverflow, s)
	}
	return scaled.BigInt().Uint64(), nil
}
