package funds

import "github.com/aristath/glidepath/internal/domain"

// AssetClass is the top level of the two-level taxonomy.
type AssetClass struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// AssetCategory belongs to exactly one asset class. Categories in different
// classes may share a name; callers disambiguate with domain.CategoryKey.
type AssetCategory struct {
	ID        int64  `json:"id"`
	Name      string `json:"name"`
	ClassID   int64  `json:"class_id"`
	ClassName string `json:"class_name"`
}

// Key returns the composite category key.
func (c AssetCategory) Key() domain.CategoryKey {
	return domain.CategoryKey{AssetClass: c.ClassName, Category: c.Name}
}

// Fund is a catalog entry for a ticker. Category is nil when the fund exists
// but has not been categorized (such holdings aggregate under "Other").
// Preference runs 1-256; 1-10 marks the fund recommended for buying.
type Fund struct {
	Ticker     string         `json:"ticker"`
	Category   *AssetCategory `json:"category,omitempty"`
	Preference *int           `json:"preference,omitempty"`
}

// CategoryKey returns the fund's category key, or the Other/absent pseudo-key
// semantics used by the aggregator: a fund with no category maps to Other.
func (f Fund) CategoryKey() domain.CategoryKey {
	if f.Category == nil {
		return domain.OtherKey
	}
	return f.Category.Key()
}

// FundInput is the upsert shape for the catalog. AssetClass/Category are
// resolved (and created if missing) by name.
type FundInput struct {
	Ticker     string `json:"ticker"`
	AssetClass string `json:"asset_class,omitempty"`
	Category   string `json:"category,omitempty"`
	Preference *int   `json:"preference,omitempty"`
}
