// Package domain holds pure value types and numeric helpers shared by the
// analysis, rebalancing and projection modules. It has no infrastructure
// dependencies.
package domain

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// CategoryKey identifies an asset category by its class and category name.
// It is a comparable value type so it can be used directly as a map key,
// avoiding string-concatenation keys that collide when a name contains ':'.
type CategoryKey struct {
	AssetClass string
	Category   string
}

// Pseudo-categories for holdings that cannot be classified.
// Other: a fund row exists for the ticker but carries no category.
// Unknown: no fund row exists for the ticker at all.
var (
	OtherKey   = CategoryKey{AssetClass: "Other", Category: "Other"}
	UnknownKey = CategoryKey{AssetClass: "Unknown", Category: "Unknown"}
)

// String returns the display form "Class:Category", or the bare pseudo-category
// name for Other/Unknown.
func (k CategoryKey) String() string {
	if k == OtherKey || k == UnknownKey {
		return k.Category
	}
	return fmt.Sprintf("%s:%s", k.AssetClass, k.Category)
}

// IsPseudo reports whether the key is one of the Other/Unknown buckets.
func (k CategoryKey) IsPseudo() bool {
	return k == OtherKey || k == UnknownKey
}

// ParseCurrency parses a currency-formatted string ("$1,234.56") into a float.
// Brokerage exports are inconsistently formatted, so callers that aggregate
// uploaded data coalesce the error to zero; the parse itself stays strict and
// testable. An empty string parses to 0 without error.
func ParseCurrency(s string) (float64, error) {
	cleaned := strings.TrimSpace(s)
	cleaned = strings.ReplaceAll(cleaned, "$", "")
	cleaned = strings.ReplaceAll(cleaned, ",", "")
	if cleaned == "" {
		return 0, nil
	}
	val, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return 0, fmt.Errorf("unparsable currency value %q: %w", s, err)
	}
	return val, nil
}

// RoundHalfUp2 rounds to 2 decimal places, halves away from zero.
// Matches currency display rounding used throughout the breakdowns.
func RoundHalfUp2(x float64) float64 {
	if x < 0 {
		return -math.Floor(-x*100+0.5) / 100
	}
	return math.Floor(x*100+0.5) / 100
}

// PreferenceNone is the sentinel sort value for funds without a preference.
// Preferences run 1-256; 1-10 marks a fund "recommended". A missing preference
// sorts as 256 so unranked funds are proposed for disposal first.
const PreferenceNone = 256

// RecommendedMaxPreference is the highest preference still considered a
// buy recommendation.
const RecommendedMaxPreference = 10

// EffectivePreference maps an optional preference to its sort value.
func EffectivePreference(p *int) int {
	if p == nil {
		return PreferenceNone
	}
	return *p
}
