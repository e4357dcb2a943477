package domain

import (
	"encoding/json"
	"fmt"
	"math/big"
	"strings"

	"github.com/shopspring/decimal"
)

// TokenDecimals is the fixed precision of the settlement token.
const TokenDecimals = 6

// parseTokenDecimal reads a non-negative decimal with at most TokenDecimals
// fractional digits. Exponent notation is refused.
func parseTokenDecimal(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Decimal{}, fmt.Errorf("amount: empty value")
	}
	if strings.ContainsAny(s, "eE") {
		return decimal.Decimal{}, fmt.Errorf("amount: %q is not a number", s)
	}
	d, err := decimal.NewFromString(strings.TrimPrefix(s, "+"))
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("amount: %q is not a number", s)
	}
	if d.IsNegative() || strings.HasPrefix(s, "-") {
		return decimal.Decimal{}, fmt.Errorf("amount: %q is negative", s)
	}
	if d.Exponent() < -TokenDecimals {
		return decimal.Decimal{}, fmt.Errorf("amount: %q has more than %d decimals", s, TokenDecimals)
	}
	return d, nil
}

// ToBaseUnits converts a decimal token string such as "100" or "12.5" into
// base units. More than TokenDecimals fractional digits is an error.
func ToBaseUnits(s string) (*big.Int, error) {
	d, err := parseTokenDecimal(s)
	if err != nil {
		return nil, err
	}
	return d.Shift(TokenDecimals).BigInt(), nil
}

// FromBaseUnits renders base units as a decimal string with trailing
// fractional zeros removed ("100000000" -> "100", "1500000" -> "1.5").
func FromBaseUnits(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return decimal.NewFromBigInt(v, -TokenDecimals).String()
}

// Amount is a token quantity. The zero value is zero.
type Amount struct {
	d decimal.Decimal
}

// NewAmount wraps a base-unit integer.
func NewAmount(base *big.Int) Amount {
	if base == nil {
		return Amount{}
	}
	return Amount{d: decimal.NewFromBigInt(base, -TokenDecimals)}
}

// ParseAmount parses a decimal token string into an Amount.
func ParseAmount(s string) (Amount, error) {
	d, err := parseTokenDecimal(s)
	if err != nil {
		return Amount{}, err
	}
	return Amount{d: d}, nil
}

// Base returns the value in base units, as the contracts expect it.
func (a Amount) Base() *big.Int { return a.d.Shift(TokenDecimals).BigInt() }

// Decimal returns the token-denominated value.
func (a Amount) Decimal() decimal.Decimal { return a.d }

func (a Amount) String() string { return a.d.String() }

func (a Amount) Sign() int { return a.d.Sign() }

func (a Amount) Cmp(b Amount) int { return a.d.Cmp(b.d) }

func (a Amount) Add(b Amount) Amount { return Amount{d: a.d.Add(b.d)} }

// Mul scales the amount by an integer factor.
func (a Amount) Mul(n int64) Amount {
	return Amount{d: a.d.Mul(decimal.NewFromInt(n))}
}

// MarshalJSON encodes the decimal form as a string to keep precision.
func (a Amount) MarshalJSON() ([]byte, error) {
	return json.Marshal(a.String())
}

// UnmarshalJSON accepts either a decimal string or a JSON number.
func (a *Amount) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		var n json.Number
		if err := json.Unmarshal(b, &n); err != nil {
			return fmt.Errorf("amount: %w", err)
		}
		s = n.String()
	}
	parsed, err := ParseAmount(s)
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}
