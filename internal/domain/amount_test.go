package domain

import (
	"encoding/json"
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToBaseUnits(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"100", "100000000"},
		{"0", "0"},
		{"1.5", "1500000"},
		{".25", "250000"},
		{"0.000001", "1"},
		{"007", "7000000"},
	}
	for _, tc := range cases {
		got, err := ToBaseUnits(tc.in)
		require.NoError(t, err, tc.in)
		assert.Equal(t, tc.want, got.String(), tc.in)
	}
}

func TestToBaseUnitsRejects(t *testing.T) {
	for _, in := range []string{"", "-1", "1.0000001", "abc", "1e6", ".", "1.2.3"} {
		_, err := ToBaseUnits(in)
		assert.Error(t, err, in)
	}
}

func TestHundredRoundTrips(t *testing.T) {
	base, err := ToBaseUnits("100")
	require.NoError(t, err)
	assert.Equal(t, 0, base.Cmp(big.NewInt(100_000_000)))
	assert.Equal(t, "100", FromBaseUnits(base))
}

func TestFromBaseUnits(t *testing.T) {
	assert.Equal(t, "0", FromBaseUnits(nil))
	assert.Equal(t, "1.5", FromBaseUnits(big.NewInt(1_500_000)))
	assert.Equal(t, "0.000001", FromBaseUnits(big.NewInt(1)))
	assert.Equal(t, "-2.25", FromBaseUnits(big.NewInt(-2_250_000)))
}

func TestAmountJSON(t *testing.T) {
	a, err := ParseAmount("12.5")
	require.NoError(t, err)

	b, err := json.Marshal(a)
	require.NoError(t, err)
	assert.JSONEq(t, `"12.5"`, string(b))

	var fromString, fromNumber Amount
	require.NoError(t, json.Unmarshal([]byte(`"12.5"`), &fromString))
	require.NoError(t, json.Unmarshal([]byte(`12.5`), &fromNumber))
	assert.Equal(t, 0, a.Cmp(fromString))
	assert.Equal(t, 0, a.Cmp(fromNumber))
}

func TestAmountZeroValue(t *testing.T) {
	var a Amount
	assert.Equal(t, "0", a.String())
	assert.Equal(t, 0, a.Sign())
	assert.Equal(t, "3", a.Add(NewAmount(big.NewInt(3_000_000))).String())
}

func TestAmountRepresentationsCompareEqual(t *testing.T) {
	parsed, err := ParseAmount("1.50")
	require.NoError(t, err)
	base := NewAmount(big.NewInt(1_500_000))

	assert.Equal(t, 0, parsed.Cmp(base))
	assert.Equal(t, "1.5", parsed.String())
	assert.Equal(t, "1.5", base.String())
	assert.Equal(t, 0, parsed.Base().Cmp(big.NewInt(1_500_000)))
	assert.True(t, parsed.Decimal().Equal(base.Decimal()))
	assert.Equal(t, "4.5", base.Mul(3).String())
}

func TestParseAmountRejectsNegativeZeroSign(t *testing.T) {
	_, err := ParseAmount("-0")
	assert.Error(t, err)
	_, err = ParseAmount("1E2")
	assert.Error(t, err)
}
