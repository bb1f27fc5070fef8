package rebalancing

import "github.com/aristath/glidepath/internal/domain"

// ActionKind distinguishes the two sides of a rebalance plan.
type ActionKind string

const (
	ActionSell ActionKind = "sell"
	ActionBuy  ActionKind = "buy"
)

// AccountAllocation is the dollar amount of an action routed through one
// account.
type AccountAllocation struct {
	AccountNumber string  `json:"account_number"`
	Amount        float64 `json:"amount"`
}

// FundRecommendation is a fund proposed for executing an action. For sells
// these are the currently held funds, worst preference first; for buys the
// catalog's recommended funds, best preference first.
type FundRecommendation struct {
	Ticker     string `json:"ticker"`
	Preference *int   `json:"preference,omitempty"`
}

// Action is one buy or sell recommendation for a category. Tagged actions
// exceeded the tolerance themselves; untagged actions exist only to balance
// total buys against total sells.
type Action struct {
	Kind       ActionKind         `json:"kind"`
	Key        domain.CategoryKey `json:"-"`
	AssetClass string             `json:"asset_class"`
	Category   string             `json:"category"`
	Amount     float64            `json:"amount"`
	Tagged     bool               `json:"tagged"`

	AccountAllocations []AccountAllocation  `json:"account_allocations"`
	Funds              []FundRecommendation `json:"funds"`
}

// Plan is the full rebalance recommendation: sells first, then buys, each
// side ordered largest amount first. NetBalanced reports whether total buys
// and sells agree to within one cent.
type Plan struct {
	PortfolioID  int64    `json:"portfolio_id"`
	TolerancePct float64  `json:"tolerance_pct"`
	Actions      []Action `json:"actions"`
	TotalSells   float64  `json:"total_sells"`
	TotalBuys    float64  `json:"total_buys"`
	NetBalanced  bool     `json:"net_balanced"`
	Message      string   `json:"message,omitempty"`
}

// Action returns the plan entry for a kind and category key, or nil.
func (p *Plan) Action(kind ActionKind, key domain.CategoryKey) *Action {
	for i := range p.Actions {
		if p.Actions[i].Kind == kind && p.Actions[i].Key == key {
			return &p.Actions[i]
		}
	}
	return nil
}
