package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCurrency(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected float64
		wantErr  bool
	}{
		{name: "plain number", input: "1234.56", expected: 1234.56},
		{name: "dollar sign", input: "$1234.56", expected: 1234.56},
		{name: "dollar and commas", input: "$1,234,567.89", expected: 1234567.89},
		{name: "surrounding whitespace", input: "  $99.00 ", expected: 99},
		{name: "negative", input: "-$42.50", expected: -42.5},
		{name: "empty string is zero", input: "", expected: 0},
		{name: "whitespace only is zero", input: "   ", expected: 0},
		{name: "garbage errors", input: "n/a", wantErr: true},
		{name: "mixed garbage errors", input: "$12.3abc", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseCurrency(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				assert.Equal(t, 0.0, got)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestRoundHalfUp2(t *testing.T) {
	tests := []struct {
		input    float64
		expected float64
	}{
		{1.005, 1.01},
		{1.004, 1.0},
		{2.675, 2.68},
		{-1.005, -1.01},
		{-1.004, -1.0},
		{0, 0},
		{100.0, 100.0},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, RoundHalfUp2(tt.input), "RoundHalfUp2(%v)", tt.input)
	}
}

func TestCategoryKeyString(t *testing.T) {
	key := CategoryKey{AssetClass: "Stocks", Category: "Large Cap"}
	assert.Equal(t, "Stocks:Large Cap", key.String())
	assert.Equal(t, "Other", OtherKey.String())
	assert.Equal(t, "Unknown", UnknownKey.String())
	assert.True(t, OtherKey.IsPseudo())
	assert.True(t, UnknownKey.IsPseudo())
	assert.False(t, key.IsPseudo())
}

func TestCategoryKeyEquality(t *testing.T) {
	// Same category name in different classes must not collide.
	a := CategoryKey{AssetClass: "Stocks", Category: "Index"}
	b := CategoryKey{AssetClass: "Bonds", Category: "Index"}
	assert.NotEqual(t, a, b)

	m := map[CategoryKey]float64{a: 1, b: 2}
	assert.Len(t, m, 2)
}

func TestEffectivePreference(t *testing.T) {
	assert.Equal(t, PreferenceNone, EffectivePreference(nil))
	p := 3
	assert.Equal(t, 3, EffectivePreference(&p))
}
