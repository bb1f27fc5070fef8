// Package rebalancing turns an allocation breakdown into an executable,
// zero-sum list of buy/sell actions allocated across accounts.
package rebalancing

import (
	"fmt"
	"math"
	"sort"

	"github.com/aristath/glidepath/internal/domain"
	"github.com/aristath/glidepath/internal/modules/analysis"
	"github.com/aristath/glidepath/internal/modules/funds"
	"github.com/aristath/glidepath/internal/modules/portfolio"
	"github.com/rs/zerolog"
)

// balanceTolerance is the residual under which total buys and sells count as
// matched: one cent.
const balanceTolerance = 0.01

// Analyzer produces the allocation breakdown the planner consumes.
type Analyzer interface {
	Analyze(p *portfolio.Portfolio) (*analysis.Analysis, error)
}

// FundRecommender supplies buy-side fund recommendations for a category.
type FundRecommender interface {
	GetRecommendedForCategory(key domain.CategoryKey) ([]funds.Fund, error)
}

// Service derives rebalance plans
type Service struct {
	analyzer Analyzer
	funds    FundRecommender
	log      zerolog.Logger
}

// NewService creates a new rebalancing service
func NewService(analyzer Analyzer, funds FundRecommender, log zerolog.Logger) *Service {
	return &Service{
		analyzer: analyzer,
		funds:    funds,
		log:      log.With().Str("service", "rebalancing").Logger(),
	}
}

// categoryState carries the planner's working numbers for one category.
// diff and pctDiff are recomputed from raw subtotals rather than taken from
// the breakdown's rounded display fields.
type categoryState struct {
	detail  *analysis.CategoryDetail
	pctDiff float64 // target pct - current pct
	diff    float64 // target dollars - current dollars
	tagged  bool
}

// pendingAction is an action before account allocation and rounding.
type pendingAction struct {
	state  *categoryState
	amount float64
	tagged bool

	allocations []AccountAllocation
	funded      float64
}

// Plan analyzes the portfolio and derives a rebalance plan for the given
// tolerance, expressed in percentage points.
func (s *Service) Plan(p *portfolio.Portfolio, tolerancePct float64) (*Plan, error) {
	a, err := s.analyzer.Analyze(p)
	if err != nil {
		return nil, fmt.Errorf("failed to analyze portfolio: %w", err)
	}
	return s.PlanFromAnalysis(a, tolerancePct)
}

// PlanFromAnalysis derives a rebalance plan from an existing breakdown.
//
// The plan is built in two phases: tagged categories (those whose percentage
// gap exceeds the tolerance) generate sells and buys directly, then untagged
// categories absorb any residual so that every dollar sold funds a dollar
// bought. Sells drain the largest account holding first; sell proceeds fund
// buys smallest account cash first, tagged buys before untagged absorbers,
// largest deficit first.
func (s *Service) PlanFromAnalysis(a *analysis.Analysis, tolerancePct float64) (*Plan, error) {
	plan := &Plan{
		PortfolioID:  a.PortfolioID,
		TolerancePct: tolerancePct,
		Actions:      []Action{},
		NetBalanced:  true,
	}

	if !a.HasTargets {
		plan.Message = "No glidepath targets available for this portfolio; nothing to rebalance"
		return plan, nil
	}
	if a.TotalValue <= 0 {
		plan.Message = "Portfolio has no current value; nothing to rebalance"
		return plan, nil
	}

	// A band with only class-level allocations flags the breakdown as having
	// targets while no category carries one; planning against the implicit 0%
	// targets would liquidate the whole portfolio.
	if !hasCategoryTargets(a) {
		plan.Message = "Glidepath band defines no category-level targets; nothing to rebalance"
		return plan, nil
	}

	states := s.buildStates(a, tolerancePct)

	var sells, buys []*pendingAction
	for _, st := range states {
		if !st.tagged {
			continue
		}
		switch {
		case st.diff < 0:
			sells = append(sells, &pendingAction{state: st, amount: -st.diff, tagged: true})
		case st.diff > 0:
			buys = append(buys, &pendingAction{state: st, amount: st.diff, tagged: true})
		}
	}

	if len(sells) == 0 && len(buys) == 0 {
		plan.Message = "All categories are within tolerance"
		return plan, nil
	}

	totalSells := sumAmounts(sells)
	totalBuys := sumAmounts(buys)

	// Untagged categories absorb the residual, most over/underweight first,
	// each capped at its own gap. Pseudo-categories never participate:
	// Unknown holdings are not substitutable, and Other only moves when
	// tagged by the special-case rule.
	switch {
	case totalSells-totalBuys > balanceTolerance:
		need := totalSells - totalBuys
		for _, st := range untaggedByGap(states, false) {
			if need <= balanceTolerance {
				break
			}
			amt := math.Min(st.diff, need)
			buys = append(buys, &pendingAction{state: st, amount: amt})
			totalBuys += amt
			need -= amt
		}
	case totalBuys-totalSells > balanceTolerance:
		need := totalBuys - totalSells
		for _, st := range untaggedByGap(states, true) {
			if need <= balanceTolerance {
				break
			}
			amt := math.Min(-st.diff, need)
			sells = append(sells, &pendingAction{state: st, amount: amt})
			totalSells += amt
			need -= amt
		}
	}

	sortByAmount(sells)
	sortByAmount(buys)

	// Sells drain the largest account holding fully before touching the
	// next; proceeds accumulate per account for the buy phase.
	available := make(map[string]float64)
	for _, sell := range sells {
		remaining := sell.amount
		for _, h := range sell.state.detail.AccountHoldings {
			if remaining <= 0 {
				break
			}
			take := math.Min(h.Value, remaining)
			sell.allocations = append(sell.allocations, AccountAllocation{
				AccountNumber: h.AccountNumber,
				Amount:        take,
			})
			available[h.AccountNumber] += take
			remaining -= take
		}
	}

	s.fundBuys(buys, available)

	for _, sell := range sells {
		plan.Actions = append(plan.Actions, s.sellAction(sell))
	}
	for _, buy := range buys {
		action, err := s.buyAction(buy)
		if err != nil {
			return nil, err
		}
		plan.Actions = append(plan.Actions, action)
	}

	plan.TotalSells = domain.RoundHalfUp2(totalSells)
	plan.TotalBuys = domain.RoundHalfUp2(totalBuys)
	plan.NetBalanced = math.Abs(totalSells-totalBuys) < balanceTolerance
	if !plan.NetBalanced {
		plan.Message = "Buys and sells could not be fully balanced; review amounts before executing"
		s.log.Warn().
			Float64("total_sells", totalSells).
			Float64("total_buys", totalBuys).
			Msg("Rebalance plan left unbalanced")
	}

	return plan, nil
}

// hasCategoryTargets reports whether any breakdown row carries a glidepath
// target.
func hasCategoryTargets(a *analysis.Analysis) bool {
	for i := range a.CategoryDetails {
		if a.CategoryDetails[i].HasTarget {
			return true
		}
	}
	return false
}

// buildStates computes per-category gaps and applies the tagging rules.
// Categories without a target (including Other/Unknown when the glidepath
// does not name them) use an implicit 0% target.
func (s *Service) buildStates(a *analysis.Analysis, tolerancePct float64) []*categoryState {
	states := make([]*categoryState, 0, len(a.CategoryDetails))

	breached := false
	for i := range a.CategoryDetails {
		detail := &a.CategoryDetails[i]

		targetPct := 0.0
		if detail.HasTarget {
			targetPct = detail.TargetPct
		}
		currentPct := detail.Subtotal / a.TotalValue * 100

		st := &categoryState{
			detail:  detail,
			pctDiff: targetPct - currentPct,
			diff:    a.TotalValue*targetPct/100 - detail.Subtotal,
		}
		states = append(states, st)

		if detail.Key != domain.OtherKey && math.Abs(st.pctDiff) > tolerancePct {
			breached = true
		}
	}

	for _, st := range states {
		switch st.detail.Key {
		case domain.OtherKey:
			// Other only rides along with a real breach, and only when it
			// holds more than noise
			st.tagged = breached && st.detail.Subtotal > 1.0
		default:
			st.tagged = math.Abs(st.pctDiff) > tolerancePct
		}
	}

	return states
}

// untaggedByGap returns untagged non-pseudo categories able to absorb
// residual imbalance, most over/underweight first.
func untaggedByGap(states []*categoryState, overweight bool) []*categoryState {
	var result []*categoryState
	for _, st := range states {
		if st.tagged || st.detail.Key.IsPseudo() {
			continue
		}
		if overweight && st.diff < 0 {
			result = append(result, st)
		}
		if !overweight && st.diff > 0 {
			result = append(result, st)
		}
	}
	sort.Slice(result, func(a, b int) bool {
		if result[a].diff != result[b].diff {
			if overweight {
				return result[a].diff < result[b].diff
			}
			return result[a].diff > result[b].diff
		}
		return result[a].detail.Key.String() < result[b].detail.Key.String()
	})
	return result
}

// fundBuys distributes per-account sell proceeds across the buy list:
// accounts smallest cash first, and within each account largest deficit
// first. Small buys get satisfied out of small accounts while large accounts
// keep their cash for the big deficits.
func (s *Service) fundBuys(buys []*pendingAction, available map[string]float64) {
	type accountCash struct {
		account string
		cash    float64
	}
	accounts := make([]accountCash, 0, len(available))
	for account, cash := range available {
		accounts = append(accounts, accountCash{account: account, cash: cash})
	}
	sort.Slice(accounts, func(a, b int) bool {
		if accounts[a].cash != accounts[b].cash {
			return accounts[a].cash < accounts[b].cash
		}
		return accounts[a].account < accounts[b].account
	})

	for i := range accounts {
		cash := accounts[i].cash
		for _, buy := range buys {
			if cash <= 0 {
				break
			}
			unfunded := buy.amount - buy.funded
			if unfunded <= 0 {
				continue
			}
			apply := math.Min(cash, unfunded)
			buy.funded += apply
			cash -= apply
			buy.addAllocation(accounts[i].account, apply)
		}
	}
}

func (p *pendingAction) addAllocation(account string, amount float64) {
	for i := range p.allocations {
		if p.allocations[i].AccountNumber == account {
			p.allocations[i].Amount += amount
			return
		}
	}
	p.allocations = append(p.allocations, AccountAllocation{AccountNumber: account, Amount: amount})
}

// sellAction finalizes a sell: held funds are proposed for disposal worst
// preference first, with unranked funds (sentinel 256) leading.
func (s *Service) sellAction(sell *pendingAction) Action {
	detail := sell.state.detail

	recs := make([]FundRecommendation, 0, len(detail.Symbols))
	for _, sv := range detail.Symbols {
		recs = append(recs, FundRecommendation{Ticker: sv.Ticker, Preference: sv.Preference})
	}
	sort.Slice(recs, func(a, b int) bool {
		pa, pb := domain.EffectivePreference(recs[a].Preference), domain.EffectivePreference(recs[b].Preference)
		if pa != pb {
			return pa > pb
		}
		return recs[a].Ticker < recs[b].Ticker
	})

	return Action{
		Kind:               ActionSell,
		Key:                detail.Key,
		AssetClass:         detail.AssetClass,
		Category:           detail.Category,
		Amount:             domain.RoundHalfUp2(sell.amount),
		Tagged:             sell.tagged,
		AccountAllocations: roundAllocations(sell.allocations),
		Funds:              recs,
	}
}

// buyAction finalizes a buy with the catalog's recommended funds, best
// preference first.
func (s *Service) buyAction(buy *pendingAction) (Action, error) {
	detail := buy.state.detail

	var recs []FundRecommendation
	if !detail.Key.IsPseudo() {
		recommended, err := s.funds.GetRecommendedForCategory(detail.Key)
		if err != nil {
			return Action{}, fmt.Errorf("failed to get recommended funds for %s: %w", detail.Key, err)
		}
		for _, fund := range recommended {
			recs = append(recs, FundRecommendation{Ticker: fund.Ticker, Preference: fund.Preference})
		}
	}

	sort.Slice(buy.allocations, func(a, b int) bool {
		if buy.allocations[a].Amount != buy.allocations[b].Amount {
			return buy.allocations[a].Amount > buy.allocations[b].Amount
		}
		return buy.allocations[a].AccountNumber < buy.allocations[b].AccountNumber
	})

	return Action{
		Kind:               ActionBuy,
		Key:                detail.Key,
		AssetClass:         detail.AssetClass,
		Category:           detail.Category,
		Amount:             domain.RoundHalfUp2(buy.amount),
		Tagged:             buy.tagged,
		AccountAllocations: roundAllocations(buy.allocations),
		Funds:              recs,
	}, nil
}

func sumAmounts(actions []*pendingAction) float64 {
	var total float64
	for _, a := range actions {
		total += a.amount
	}
	return total
}

// sortByAmount orders actions tagged first, then largest amount first. For
// buys this is the funding priority: tagged deficits claim sell proceeds
// before untagged residual absorbers.
func sortByAmount(actions []*pendingAction) {
	sort.Slice(actions, func(a, b int) bool {
		if actions[a].tagged != actions[b].tagged {
			return actions[a].tagged
		}
		if actions[a].amount != actions[b].amount {
			return actions[a].amount > actions[b].amount
		}
		return actions[a].state.detail.Key.String() < actions[b].state.detail.Key.String()
	})
}

func roundAllocations(allocations []AccountAllocation) []AccountAllocation {
	result := make([]AccountAllocation, len(allocations))
	for i, a := range allocations {
		result[i] = AccountAllocation{
			AccountNumber: a.AccountNumber,
			Amount:        domain.RoundHalfUp2(a.Amount),
		}
	}
	return result
}
