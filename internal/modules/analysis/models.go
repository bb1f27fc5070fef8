package analysis

import "github.com/aristath/glidepath/internal/domain"

// SymbolValue is one ticker's aggregated holding within a category.
type SymbolValue struct {
	Ticker     string  `json:"ticker"`
	Value      float64 `json:"value"`
	Quantity   float64 `json:"quantity"`
	Preference *int    `json:"preference,omitempty"`
}

// AccountHolding is one account's dollar total within a category. The
// rebalance planner allocates sells and buys across these.
type AccountHolding struct {
	AccountNumber string  `json:"account_number"`
	Value         float64 `json:"value"`
}

// CategoryDetail is one row of the canonical category breakdown.
// Target fields are only meaningful when HasTarget is true; a missing
// glidepath band degrades to HasTarget=false, never an error.
type CategoryDetail struct {
	Key        domain.CategoryKey `json:"-"`
	AssetClass string             `json:"asset_class"`
	Category   string             `json:"category"`
	Subtotal   float64            `json:"subtotal"`
	CurrentPct float64            `json:"current_pct"`

	HasTarget     bool    `json:"has_target"`
	TargetPct     float64 `json:"target_pct"`
	TargetValue   float64 `json:"target_value"`
	Difference    float64 `json:"difference"`     // target dollars - current dollars; positive = underweight
	DifferencePct float64 `json:"difference_pct"` // target pct - current pct

	Symbols         []SymbolValue    `json:"symbols"`
	AccountHoldings []AccountHolding `json:"account_holdings"`
}

// Analysis is the Allocation Aggregator output: dollar/percentage rollups at
// class, category and ticker level plus retirement-status metadata.
type Analysis struct {
	PortfolioID int64   `json:"portfolio_id"`
	TotalValue  float64 `json:"total_value"`

	ClassBreakdown    map[string]float64 `json:"class_breakdown"`
	CategoryBreakdown map[string]float64 `json:"category_breakdown"`
	TickerBreakdown   map[string]float64 `json:"ticker_breakdown"`
	CategoryDetails   []CategoryDetail   `json:"category_details"`

	HasTargets        bool   `json:"has_targets"`
	YearsToRetirement *int   `json:"years_to_retirement,omitempty"`
	RetirementStatus  string `json:"retirement_status,omitempty"`

	// Unix timestamp of the most recent batch feeding the analysis, if any
	LatestUploadAt *int64 `json:"latest_upload_at,omitempty"`
}

// Detail returns the breakdown row for a category key, or nil.
func (a *Analysis) Detail(key domain.CategoryKey) *CategoryDetail {
	for i := range a.CategoryDetails {
		if a.CategoryDetails[i].Key == key {
			return &a.CategoryDetails[i]
		}
	}
	return nil
}
