// Package projection runs Monte Carlo retirement simulations: thousands of
// independent annual-step balance paths under glidepath-driven, age-dependent
// allocation, aggregated into percentile trajectories and a success
// probability.
package projection

import (
	"context"
	"errors"
	"fmt"
	"math"
	"runtime"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/aristath/glidepath/internal/domain"
	"github.com/aristath/glidepath/internal/modules/analysis"
	"github.com/aristath/glidepath/internal/modules/glidepath"
	"github.com/aristath/glidepath/internal/modules/portfolio"
	"github.com/rs/zerolog"
	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"
)

// ErrInvalidParams marks simulation parameter validation failures so callers
// can map them to a 400 without string matching.
var ErrInvalidParams = errors.New("invalid simulation parameters")

// Analyzer supplies the starting balance.
type Analyzer interface {
	Analyze(p *portfolio.Portfolio) (*analysis.Analysis, error)
}

// BandSource supplies a ruleset's age bands.
type BandSource interface {
	GetBands(rulesetID int64) ([]glidepath.Band, error)
}

// AssumptionSource supplies per-category return model overrides.
type AssumptionSource interface {
	GetOverrides() (map[domain.CategoryKey]Assumption, error)
}

// Service runs Monte Carlo projections
type Service struct {
	analyzer    Analyzer
	bands       BandSource
	assumptions AssumptionSource

	// Class-level fallback return models; see DefaultClassAssumptions.
	classDefaults map[string]Assumption

	now func() time.Time

	log zerolog.Logger
}

// NewService creates a new projection service
func NewService(
	analyzer Analyzer,
	bands BandSource,
	assumptions AssumptionSource,
	classDefaults map[string]Assumption,
	log zerolog.Logger,
) *Service {
	return &Service{
		analyzer:      analyzer,
		bands:         bands,
		assumptions:   assumptions,
		classDefaults: classDefaults,
		now:           time.Now,
		log:           log.With().Str("service", "projection").Logger(),
	}
}

// SetClock overrides the clock used for age calculations. Test hook.
func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}

// weightedAssumption is one allocation slice of a simulated year, resolved to
// its return model ahead of the trial loop.
type weightedAssumption struct {
	weight float64 // fraction of the portfolio, 0-1
	mean   float64
	std    float64
}

// Run projects the portfolio's balance from the holder's current age to
// params.EndAge over params.Trials independent stochastic paths. Trials run
// in parallel; the context cancels the run between trials.
func (s *Service) Run(ctx context.Context, p *portfolio.Portfolio, params Params) (*Result, error) {
	if err := validateParams(params); err != nil {
		return nil, err
	}
	if p.YearBorn == nil || p.RetirementAge == nil || p.RuleSetID == nil {
		return nil, fmt.Errorf("projection requires birth year, retirement age and a glidepath ruleset")
	}

	currentAge := s.now().Year() - *p.YearBorn
	retirementAge := *p.RetirementAge
	if params.EndAge <= currentAge {
		return nil, fmt.Errorf("end_age %d must be greater than current age %d", params.EndAge, currentAge)
	}

	a, err := s.analyzer.Analyze(p)
	if err != nil {
		return nil, fmt.Errorf("failed to analyze portfolio: %w", err)
	}
	startBalance := a.TotalValue

	table, err := s.buildAssumptionTable(*p.RuleSetID, currentAge, retirementAge, params.EndAge)
	if err != nil {
		return nil, err
	}

	seed := params.Seed
	if seed == 0 {
		seed = uint64(s.now().UnixNano())
	}

	years := params.EndAge - currentAge
	balances := make([][]float64, params.Trials)
	var successes atomic.Int64

	trials := make(chan int)
	var wg sync.WaitGroup
	workers := runtime.GOMAXPROCS(0)
	if workers > params.Trials {
		workers = params.Trials
	}

	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for trial := range trials {
				path, ok := runTrial(rand.NewSource(seed+uint64(trial)), startBalance, currentAge, retirementAge, table, params)
				balances[trial] = path
				if ok {
					successes.Add(1)
				}
			}
		}()
	}

	start := time.Now()
	var cancelled bool
dispatch:
	for trial := 0; trial < params.Trials; trial++ {
		select {
		case trials <- trial:
		case <-ctx.Done():
			cancelled = true
			break dispatch
		}
	}
	close(trials)
	wg.Wait()

	if cancelled {
		return nil, ctx.Err()
	}

	result := s.aggregate(balances, currentAge, retirementAge, startBalance, params)
	result.SuccessProbability = float64(successes.Load()) / float64(params.Trials)

	s.log.Info().
		Int64("portfolio_id", p.ID).
		Int("trials", params.Trials).
		Int("years", years).
		Float64("success_probability", result.SuccessProbability).
		Dur("elapsed", time.Since(start)).
		Msg("Projection complete")

	return result, nil
}

// validateParams hard-fails on invalid simulation knobs. Unlike the lenient
// analysis path, bad knob values would silently corrupt results rather than
// produce a less complete answer.
func validateParams(params Params) error {
	if params.AnnualContribution < 0 {
		return fmt.Errorf("%w: annual_contribution must be non-negative, got %v", ErrInvalidParams, params.AnnualContribution)
	}
	if params.WithdrawalMode != WithdrawalPercent && params.WithdrawalMode != WithdrawalDollar {
		return fmt.Errorf("%w: withdrawal_mode must be %q or %q, got %q", ErrInvalidParams, WithdrawalPercent, WithdrawalDollar, params.WithdrawalMode)
	}
	if params.WithdrawalAmount <= 0 {
		return fmt.Errorf("%w: withdrawal_amount must be positive, got %v", ErrInvalidParams, params.WithdrawalAmount)
	}
	if params.InflationRate < 0 || params.InflationRate >= 1 {
		return fmt.Errorf("%w: inflation_rate must be in [0, 1), got %v", ErrInvalidParams, params.InflationRate)
	}
	if params.Trials < 1 {
		return fmt.Errorf("%w: trials must be at least 1, got %d", ErrInvalidParams, params.Trials)
	}
	if params.PessimisticPctile <= 0 || params.OptimisticPctile >= 100 ||
		params.PessimisticPctile >= params.OptimisticPctile {
		return fmt.Errorf("%w: percentile bounds must satisfy 0 < pessimistic < optimistic < 100, got %v/%v",
			ErrInvalidParams, params.PessimisticPctile, params.OptimisticPctile)
	}
	return nil
}

// buildAssumptionTable precomputes the resolved (weight, mean, std) slices
// for every simulated age. The trial loop runs trials × years times, so no
// band or assumption lookup may happen inside it. Category-level allocations
// are preferred; bands without them fall back to class allocations. An age
// outside every band yields an empty slice, i.e. a zero-return year.
func (s *Service) buildAssumptionTable(rulesetID int64, currentAge, retirementAge, endAge int) (map[int][]weightedAssumption, error) {
	bands, err := s.bands.GetBands(rulesetID)
	if err != nil {
		return nil, fmt.Errorf("failed to load glidepath bands: %w", err)
	}
	overrides, err := s.assumptions.GetOverrides()
	if err != nil {
		return nil, err
	}

	table := make(map[int][]weightedAssumption, endAge-currentAge)
	for age := currentAge + 1; age <= endAge; age++ {
		years := age - retirementAge

		var band *glidepath.Band
		for i := range bands {
			if bands[i].Contains(years) {
				band = &bands[i]
				break
			}
		}
		if band == nil {
			s.log.Warn().Int("age", age).Int("years_to_retirement", years).
				Msg("No glidepath band covers simulated age, assuming zero return")
			table[age] = nil
			continue
		}

		var entries []weightedAssumption
		if len(band.CategoryAllocations) > 0 {
			for _, ca := range band.CategoryAllocations {
				model, ok := overrides[ca.Key()]
				if !ok {
					model = s.classDefault(ca.ClassName)
				}
				entries = append(entries, weightedAssumption{
					weight: ca.Percentage / 100,
					mean:   model.MeanReturn,
					std:    model.StdDev,
				})
			}
		} else {
			for _, ca := range band.ClassAllocations {
				model := s.classDefault(ca.ClassName)
				entries = append(entries, weightedAssumption{
					weight: ca.Percentage / 100,
					mean:   model.MeanReturn,
					std:    model.StdDev,
				})
			}
		}
		table[age] = entries
	}

	return table, nil
}

// classDefault resolves a class-level return model, treating unknown classes
// like Other.
func (s *Service) classDefault(className string) Assumption {
	if model, ok := s.classDefaults[className]; ok {
		return model
	}
	return s.classDefaults["Other"]
}

// runTrial simulates one independent path and reports the per-year balances
// (index 0 is the starting balance) and whether the balance stayed strictly
// positive throughout. A balance that hits zero stays at zero but the path
// continues to the end age.
func runTrial(src rand.Source, startBalance float64, currentAge, retirementAge int, table map[int][]weightedAssumption, params Params) ([]float64, bool) {
	path := make([]float64, params.EndAge-currentAge+1)
	path[0] = startBalance

	balance := startBalance
	contribution := params.AnnualContribution
	withdrawal := 0.0
	withdrawing := false
	success := balance > 0

	for age := currentAge + 1; age <= params.EndAge; age++ {
		var portfolioReturn float64
		for _, wa := range table[age] {
			draw := wa.mean
			if wa.std > 0 {
				draw = distuv.Normal{Mu: wa.mean, Sigma: wa.std, Src: src}.Rand()
			}
			portfolioReturn += wa.weight * draw
		}
		balance *= 1 + portfolioReturn

		if age < retirementAge {
			// Constant real contribution: the nominal figure inflates
			// year-over-year
			balance += contribution
			contribution *= 1 + params.InflationRate
		} else {
			if !withdrawing {
				withdrawing = true
				withdrawal = initialWithdrawal(balance, currentAge, retirementAge, params)
			} else {
				withdrawal *= 1 + params.InflationRate
			}
			balance -= withdrawal
			if balance < 0 {
				balance = 0
			}
		}

		if balance <= 0 {
			success = false
		}
		path[age-currentAge] = balance
	}

	return path, success
}

// initialWithdrawal computes the first retirement-year withdrawal. Percent
// mode takes the percentage of the balance at that point; dollar mode inflates
// the today's-dollars figure forward to the retirement year. A holder already
// past retirement age starts withdrawing in the first simulated year with no
// forward inflation.
func initialWithdrawal(balance float64, currentAge, retirementAge int, params Params) float64 {
	if params.WithdrawalMode == WithdrawalPercent {
		return balance * params.WithdrawalAmount / 100
	}
	yearsOut := retirementAge - currentAge
	if yearsOut < 0 {
		yearsOut = 0
	}
	return params.WithdrawalAmount * math.Pow(1+params.InflationRate, float64(yearsOut))
}

// aggregate computes the percentile trajectories and summary figures from the
// per-trial balance matrix.
func (s *Service) aggregate(balances [][]float64, currentAge, retirementAge int, startBalance float64, params Params) *Result {
	steps := params.EndAge - currentAge + 1

	result := &Result{
		StartBalance:  domain.RoundHalfUp2(startBalance),
		CurrentAge:    currentAge,
		RetirementAge: retirementAge,
		EndAge:        params.EndAge,
		Trials:        params.Trials,
		Pessimistic:   make([]PathPoint, steps),
		Median:        make([]PathPoint, steps),
		Optimistic:    make([]PathPoint, steps),
		Note:          percentileNote,
	}

	column := make([]float64, params.Trials)
	for step := 0; step < steps; step++ {
		for trial := range balances {
			column[trial] = balances[trial][step]
		}
		sort.Float64s(column)

		age := currentAge + step
		result.Pessimistic[step] = PathPoint{Age: age, Balance: domain.RoundHalfUp2(stat.Quantile(params.PessimisticPctile/100, stat.LinInterp, column, nil))}
		result.Median[step] = PathPoint{Age: age, Balance: domain.RoundHalfUp2(stat.Quantile(0.5, stat.LinInterp, column, nil))}
		result.Optimistic[step] = PathPoint{Age: age, Balance: domain.RoundHalfUp2(stat.Quantile(params.OptimisticPctile/100, stat.LinInterp, column, nil))}
	}

	result.MedianAtEnd = result.Median[steps-1].Balance
	switch {
	case retirementAge <= currentAge:
		result.MedianAtRetirement = result.Median[0].Balance
	case retirementAge <= params.EndAge:
		result.MedianAtRetirement = result.Median[retirementAge-currentAge].Balance
	}

	// Total nominal contributions over the accumulation years, with the
	// annual figure inflating from its base
	contribution := params.AnnualContribution
	var total float64
	for age := currentAge + 1; age < retirementAge && age <= params.EndAge; age++ {
		total += contribution
		contribution *= 1 + params.InflationRate
	}
	result.TotalContributions = domain.RoundHalfUp2(total)

	if params.WithdrawalMode == WithdrawalPercent {
		result.AnnualWithdrawalAtRetirement = domain.RoundHalfUp2(result.MedianAtRetirement * params.WithdrawalAmount / 100)
	} else {
		result.AnnualWithdrawalAtRetirement = domain.RoundHalfUp2(initialWithdrawal(0, currentAge, retirementAge, params))
	}

	return result
}
