// Package analysis implements the allocation aggregator: it maps a
// portfolio's account+symbol selections to current dollar totals, classifies
// them through the fund catalog and joins the result against the portfolio's
// glidepath band to produce the canonical category breakdown.
package analysis

import (
	"fmt"
	"sort"
	"time"

	"github.com/aristath/glidepath/internal/domain"
	"github.com/aristath/glidepath/internal/modules/funds"
	"github.com/aristath/glidepath/internal/modules/glidepath"
	"github.com/aristath/glidepath/internal/modules/portfolio"
	"github.com/aristath/glidepath/internal/modules/positions"
	"github.com/rs/zerolog"
)

// Service aggregates positions into allocation breakdowns
type Service struct {
	positionsRepo *positions.Repository
	fundsRepo     *funds.Repository
	glidepathRepo *glidepath.Repository
	portfolioRepo *portfolio.Repository

	now func() time.Time // injectable clock for age math in tests

	log zerolog.Logger
}

// NewService creates a new analysis service
func NewService(
	positionsRepo *positions.Repository,
	fundsRepo *funds.Repository,
	glidepathRepo *glidepath.Repository,
	portfolioRepo *portfolio.Repository,
	log zerolog.Logger,
) *Service {
	return &Service{
		positionsRepo: positionsRepo,
		fundsRepo:     fundsRepo,
		glidepathRepo: glidepathRepo,
		portfolioRepo: portfolioRepo,
		now:           time.Now,
		log:           log.With().Str("service", "analysis").Logger(),
	}
}

// SetClock overrides the clock used for age calculations. Test hook.
func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}

// Analyze produces the full allocation breakdown for a portfolio.
// An empty portfolio returns a zeroed structure; accounts without uploads
// contribute nothing and are skipped silently.
func (s *Service) Analyze(p *portfolio.Portfolio) (*Analysis, error) {
	result := &Analysis{
		PortfolioID:       p.ID,
		ClassBreakdown:    make(map[string]float64),
		CategoryBreakdown: make(map[string]float64),
		TickerBreakdown:   make(map[string]float64),
		CategoryDetails:   []CategoryDetail{},
	}

	s.attachRetirementStatus(p, result)

	items, err := s.portfolioRepo.GetItems(p.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to get portfolio items: %w", err)
	}
	if len(items) == 0 {
		s.attachTargets(p, result)
		s.finalize(result)
		return result, nil
	}

	// Step 1: resolve the latest upload batch per distinct account
	latestUploads := make(map[string]*positions.Upload)
	for _, item := range items {
		if _, seen := latestUploads[item.AccountNumber]; seen {
			continue
		}
		upload, err := s.positionsRepo.LatestUploadForAccount(p.User, item.AccountNumber)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve latest upload for account %s: %w", item.AccountNumber, err)
		}
		latestUploads[item.AccountNumber] = upload // may be nil: account never uploaded
		if upload != nil {
			if result.LatestUploadAt == nil || upload.CreatedAt > *result.LatestUploadAt {
				ts := upload.CreatedAt
				result.LatestUploadAt = &ts
			}
		}
	}

	// Step 2+3: sum raw rows by (account, symbol) with lenient parsing
	type accountSymbol struct {
		account string
		symbol  string
	}
	totals := make(map[accountSymbol]*SymbolValue)
	var order []accountSymbol

	for _, item := range items {
		upload := latestUploads[item.AccountNumber]
		if upload == nil {
			continue
		}

		rows, err := s.positionsRepo.GetPositions(upload.ID, item.AccountNumber, item.Symbol)
		if err != nil {
			return nil, fmt.Errorf("failed to get positions for %s/%s: %w", item.AccountNumber, item.Symbol, err)
		}

		for _, row := range rows {
			value, err := domain.ParseCurrency(row.CurrentValue)
			if err != nil {
				// Malformed upstream cells degrade to zero rather than
				// aborting the whole analysis
				s.log.Debug().Str("symbol", row.Symbol).Str("raw", row.CurrentValue).Msg("Unparsable current value, treating as zero")
				value = 0
			}
			quantity, err := domain.ParseCurrency(row.Quantity)
			if err != nil {
				s.log.Debug().Str("symbol", row.Symbol).Str("raw", row.Quantity).Msg("Unparsable quantity, treating as zero")
				quantity = 0
			}

			key := accountSymbol{account: row.AccountNumber, symbol: row.Symbol}
			if totals[key] == nil {
				totals[key] = &SymbolValue{Ticker: row.Symbol}
				order = append(order, key)
			}
			totals[key].Value += value
			totals[key].Quantity += quantity
		}
	}

	// Step 4: classify each symbol through the fund catalog and build rollups
	fundCache := make(map[string]*funds.Fund)
	details := make(map[domain.CategoryKey]*CategoryDetail)

	for _, key := range order {
		sv := totals[key]

		fund, cached := fundCache[sv.Ticker]
		if !cached {
			fund, err = s.fundsRepo.GetByTicker(sv.Ticker)
			if err != nil {
				return nil, fmt.Errorf("failed to look up fund %s: %w", sv.Ticker, err)
			}
			fundCache[sv.Ticker] = fund
		}

		catKey := domain.UnknownKey
		if fund != nil {
			catKey = fund.CategoryKey()
			sv.Preference = fund.Preference
		}

		detail := details[catKey]
		if detail == nil {
			detail = &CategoryDetail{
				Key:        catKey,
				AssetClass: catKey.AssetClass,
				Category:   catKey.Category,
			}
			details[catKey] = detail
		}

		detail.Subtotal += sv.Value
		mergeSymbol(detail, *sv)
		mergeAccountHolding(detail, key.account, sv.Value)

		result.TotalValue += sv.Value
		result.TickerBreakdown[sv.Ticker] += sv.Value
		result.ClassBreakdown[catKey.AssetClass] += sv.Value
		result.CategoryBreakdown[catKey.String()] += sv.Value
	}

	for _, detail := range details {
		result.CategoryDetails = append(result.CategoryDetails, *detail)
	}

	// Step 5: join against the glidepath band and compute percentages
	s.attachTargets(p, result)
	s.finalize(result)

	return result, nil
}

// attachRetirementStatus fills years-to-retirement metadata when birth year
// and retirement age are both present.
func (s *Service) attachRetirementStatus(p *portfolio.Portfolio, result *Analysis) {
	if years, ok := p.YearsToRetirement(s.now()); ok {
		result.YearsToRetirement = &years
		result.RetirementStatus = portfolio.RetirementStatus(years)
	}
}

// attachTargets joins the breakdown against the portfolio's glidepath band.
// Missing ruleset, missing ages or a band miss all degrade to no target data.
// Glidepath categories with zero current holdings are added with zero
// subtotals so the planner can recommend an initial buy.
func (s *Service) attachTargets(p *portfolio.Portfolio, result *Analysis) {
	if p.RuleSetID == nil || result.YearsToRetirement == nil {
		return
	}

	band, err := s.glidepathRepo.BandForAge(*p.RuleSetID, *result.YearsToRetirement)
	if err != nil {
		s.log.Warn().Err(err).Msg("Glidepath band lookup failed, omitting targets")
		return
	}
	if band == nil {
		s.log.Warn().
			Int("years_to_retirement", *result.YearsToRetirement).
			Msg("No glidepath band covers years-to-retirement, omitting targets")
		return
	}

	result.HasTargets = true

	targets := make(map[domain.CategoryKey]float64, len(band.CategoryAllocations))
	for _, ca := range band.CategoryAllocations {
		targets[ca.Key()] = ca.Percentage
	}

	for i := range result.CategoryDetails {
		detail := &result.CategoryDetails[i]
		if pct, ok := targets[detail.Key]; ok {
			detail.HasTarget = true
			detail.TargetPct = pct
			delete(targets, detail.Key)
		}
	}

	// Remaining glidepath categories have no current holdings
	for key, pct := range targets {
		result.CategoryDetails = append(result.CategoryDetails, CategoryDetail{
			Key:        key,
			AssetClass: key.AssetClass,
			Category:   key.Category,
			HasTarget:  true,
			TargetPct:  pct,
			Symbols:    []SymbolValue{},
		})
	}
}

// finalize computes percentage and target dollar fields and sorts the output
// deterministically.
func (s *Service) finalize(result *Analysis) {
	for i := range result.CategoryDetails {
		detail := &result.CategoryDetails[i]

		if result.TotalValue > 0 {
			detail.CurrentPct = domain.RoundHalfUp2(detail.Subtotal / result.TotalValue * 100)
		}
		if detail.HasTarget {
			detail.TargetValue = domain.RoundHalfUp2(result.TotalValue * detail.TargetPct / 100)
			detail.Difference = domain.RoundHalfUp2(detail.TargetValue - detail.Subtotal)
			detail.DifferencePct = domain.RoundHalfUp2(detail.TargetPct - detail.CurrentPct)
		}

		sort.Slice(detail.Symbols, func(a, b int) bool {
			return detail.Symbols[a].Ticker < detail.Symbols[b].Ticker
		})
		// Largest account balance first: the sell allocation order
		sort.Slice(detail.AccountHoldings, func(a, b int) bool {
			if detail.AccountHoldings[a].Value != detail.AccountHoldings[b].Value {
				return detail.AccountHoldings[a].Value > detail.AccountHoldings[b].Value
			}
			return detail.AccountHoldings[a].AccountNumber < detail.AccountHoldings[b].AccountNumber
		})
	}

	sort.Slice(result.CategoryDetails, func(a, b int) bool {
		return result.CategoryDetails[a].Key.String() < result.CategoryDetails[b].Key.String()
	})
}

// mergeSymbol accumulates a symbol entry in a category detail.
func mergeSymbol(detail *CategoryDetail, sv SymbolValue) {
	for i := range detail.Symbols {
		if detail.Symbols[i].Ticker == sv.Ticker {
			detail.Symbols[i].Value += sv.Value
			detail.Symbols[i].Quantity += sv.Quantity
			return
		}
	}
	detail.Symbols = append(detail.Symbols, sv)
}

// mergeAccountHolding accumulates an account's dollar total in a category
// detail.
func mergeAccountHolding(detail *CategoryDetail, account string, value float64) {
	for i := range detail.AccountHoldings {
		if detail.AccountHoldings[i].AccountNumber == account {
			detail.AccountHoldings[i].Value += value
			return
		}
	}
	detail.AccountHoldings = append(detail.AccountHoldings, AccountHolding{
		AccountNumber: account,
		Value:         value,
	})
}
