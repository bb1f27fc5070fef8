package projection

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/aristath/glidepath/internal/domain"
	"github.com/aristath/glidepath/internal/modules/analysis"
	"github.com/aristath/glidepath/internal/modules/glidepath"
	"github.com/aristath/glidepath/internal/modules/portfolio"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubAnalyzer struct {
	totalValue float64
}

func (s stubAnalyzer) Analyze(p *portfolio.Portfolio) (*analysis.Analysis, error) {
	return &analysis.Analysis{PortfolioID: p.ID, TotalValue: s.totalValue}, nil
}

type stubBands struct {
	bands []glidepath.Band
}

func (s stubBands) GetBands(rulesetID int64) ([]glidepath.Band, error) {
	return s.bands, nil
}

type stubAssumptions struct {
	overrides map[domain.CategoryKey]Assumption
}

func (s stubAssumptions) GetOverrides() (map[domain.CategoryKey]Assumption, error) {
	if s.overrides == nil {
		return map[domain.CategoryKey]Assumption{}, nil
	}
	return s.overrides, nil
}

func intPtr(v int) *int       { return &v }
func int64Ptr(v int64) *int64 { return &v }

// fullRangeBand covers the whole retirement-age axis with a single class
// allocation.
func fullRangeBand(className string) glidepath.Band {
	return glidepath.Band{
		GtRetireAge: -100,
		LtRetireAge: 100,
		ClassAllocations: []glidepath.ClassAllocation{
			{ClassName: className, Percentage: 100},
		},
	}
}

func testPortfolio(yearBorn, retirementAge int) *portfolio.Portfolio {
	return &portfolio.Portfolio{
		ID:            1,
		User:          "alice",
		Name:          "retirement",
		RuleSetID:     int64Ptr(1),
		YearBorn:      intPtr(yearBorn),
		RetirementAge: intPtr(retirementAge),
	}
}

func newTestService(totalValue float64, bands []glidepath.Band, overrides map[domain.CategoryKey]Assumption, classDefaults map[string]Assumption) *Service {
	svc := NewService(
		stubAnalyzer{totalValue: totalValue},
		stubBands{bands: bands},
		stubAssumptions{overrides: overrides},
		classDefaults,
		zerolog.Nop(),
	)
	svc.SetClock(func() time.Time { return time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC) })
	return svc
}

func baseParams() Params {
	return Params{
		WithdrawalMode:    WithdrawalPercent,
		WithdrawalAmount:  4,
		InflationRate:     0.03,
		Trials:            50,
		EndAge:            95,
		PessimisticPctile: 10,
		OptimisticPctile:  90,
		Seed:              42,
	}
}

func TestValidateParams(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Params)
	}{
		{"negative contribution", func(p *Params) { p.AnnualContribution = -1 }},
		{"zero withdrawal", func(p *Params) { p.WithdrawalAmount = 0 }},
		{"bad mode", func(p *Params) { p.WithdrawalMode = "weekly" }},
		{"negative inflation", func(p *Params) { p.InflationRate = -0.01 }},
		{"inflation at one", func(p *Params) { p.InflationRate = 1 }},
		{"zero trials", func(p *Params) { p.Trials = 0 }},
		{"inverted percentiles", func(p *Params) { p.PessimisticPctile = 90; p.OptimisticPctile = 10 }},
		{"percentile at hundred", func(p *Params) { p.OptimisticPctile = 100 }},
	}

	svc := newTestService(10000, []glidepath.Band{fullRangeBand("Stocks")}, nil, DefaultClassAssumptions())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			params := baseParams()
			tt.mutate(&params)
			_, err := svc.Run(context.Background(), testPortfolio(1990, 65), params)
			assert.ErrorIs(t, err, ErrInvalidParams)
		})
	}
}

func TestRunRequiresRetirementFields(t *testing.T) {
	svc := newTestService(10000, []glidepath.Band{fullRangeBand("Stocks")}, nil, DefaultClassAssumptions())

	p := testPortfolio(1990, 65)
	p.YearBorn = nil
	_, err := svc.Run(context.Background(), p, baseParams())
	assert.ErrorContains(t, err, "birth year")

	p = testPortfolio(1990, 65)
	p.RuleSetID = nil
	_, err = svc.Run(context.Background(), p, baseParams())
	assert.ErrorContains(t, err, "ruleset")
}

func TestRunRejectsEndAgeBeforeCurrentAge(t *testing.T) {
	svc := newTestService(10000, []glidepath.Band{fullRangeBand("Stocks")}, nil, DefaultClassAssumptions())

	params := baseParams()
	params.EndAge = 30 // holder is 36 under the fixed clock
	_, err := svc.Run(context.Background(), testPortfolio(1990, 65), params)
	assert.ErrorContains(t, err, "end_age")
}

// With zero variance the simulation collapses to compound interest: every
// trial is identical and all three percentile lines coincide at
// balance × (1+mean)^years.
func TestRunDeterministicZeroVariance(t *testing.T) {
	defaults := map[string]Assumption{
		"Stocks": {MeanReturn: 0.05, StdDev: 0},
		"Other":  {MeanReturn: 0, StdDev: 0},
	}
	svc := newTestService(10000, []glidepath.Band{fullRangeBand("Stocks")}, nil, defaults)

	params := baseParams()
	params.EndAge = 40 // 4 accumulation years, retirement at 65 never reached

	result, err := svc.Run(context.Background(), testPortfolio(1990, 65), params)
	require.NoError(t, err)

	want := 10000 * math.Pow(1.05, 4)
	assert.InDelta(t, want, result.MedianAtEnd, 0.01)
	assert.Equal(t, result.Median, result.Pessimistic)
	assert.Equal(t, result.Median, result.Optimistic)
	assert.Equal(t, 1.0, result.SuccessProbability)

	require.Len(t, result.Median, 5)
	assert.Equal(t, 36, result.Median[0].Age)
	assert.Equal(t, 10000.0, result.Median[0].Balance)
	assert.InDelta(t, 10000*1.05, result.Median[1].Balance, 0.01)
}

// Percent mode fixes the withdrawal percentage only in the first retirement
// year; thereafter the dollar figure inflates.
func TestRunPercentWithdrawalSchedule(t *testing.T) {
	defaults := map[string]Assumption{
		"Stocks": {MeanReturn: 0, StdDev: 0},
		"Other":  {MeanReturn: 0, StdDev: 0},
	}
	svc := newTestService(100000, []glidepath.Band{fullRangeBand("Stocks")}, nil, defaults)

	params := baseParams()
	params.WithdrawalAmount = 10
	params.InflationRate = 0.1
	params.EndAge = 67

	// Holder is 64; retirement at 65. Withdrawals: 10000, 11000, 12100.
	result, err := svc.Run(context.Background(), testPortfolio(1962, 65), params)
	require.NoError(t, err)

	require.Len(t, result.Median, 4)
	assert.InDelta(t, 90000, result.Median[1].Balance, 0.01)
	assert.InDelta(t, 79000, result.Median[2].Balance, 0.01)
	assert.InDelta(t, 66900, result.Median[3].Balance, 0.01)

	assert.InDelta(t, 90000, result.MedianAtRetirement, 0.01)
	assert.InDelta(t, 9000, result.AnnualWithdrawalAtRetirement, 0.01)
	assert.Equal(t, 1.0, result.SuccessProbability)
}

// Dollar mode inflates the today's-dollars figure forward to the retirement
// year before the first withdrawal.
func TestRunDollarWithdrawalInflatesForward(t *testing.T) {
	defaults := map[string]Assumption{
		"Stocks": {MeanReturn: 0, StdDev: 0},
		"Other":  {MeanReturn: 0, StdDev: 0},
	}
	svc := newTestService(50000, []glidepath.Band{fullRangeBand("Stocks")}, nil, defaults)

	params := baseParams()
	params.WithdrawalMode = WithdrawalDollar
	params.WithdrawalAmount = 1000
	params.InflationRate = 0.05
	params.EndAge = 65

	// Holder is 63; retirement at 65 is two years out.
	result, err := svc.Run(context.Background(), testPortfolio(1963, 65), params)
	require.NoError(t, err)

	want := 50000 - 1000*math.Pow(1.05, 2)
	require.Len(t, result.Median, 3)
	assert.InDelta(t, want, result.Median[2].Balance, 0.01)
	assert.InDelta(t, 1000*math.Pow(1.05, 2), result.AnnualWithdrawalAtRetirement, 0.01)
}

// Contributions inflate year-over-year from the base figure and stop at
// retirement.
func TestRunContributionsInflate(t *testing.T) {
	defaults := map[string]Assumption{
		"Stocks": {MeanReturn: 0, StdDev: 0},
		"Other":  {MeanReturn: 0, StdDev: 0},
	}
	svc := newTestService(0, []glidepath.Band{fullRangeBand("Stocks")}, nil, defaults)

	params := baseParams()
	params.AnnualContribution = 1000
	params.InflationRate = 0.1
	params.EndAge = 40

	// Holder is 36, retirement at 40: contributions at 37, 38, 39 of
	// 1000, 1100, 1210.
	result, err := svc.Run(context.Background(), testPortfolio(1990, 40), params)
	require.NoError(t, err)

	assert.InDelta(t, 3310, result.TotalContributions, 0.01)
	require.Len(t, result.Median, 5)
	assert.InDelta(t, 1000, result.Median[1].Balance, 0.01)
	assert.InDelta(t, 2100, result.Median[2].Balance, 0.01)
	assert.InDelta(t, 3310, result.Median[3].Balance, 0.01)
}

// A balance that hits zero is clamped, stays at zero and fails the trial.
func TestRunDepletionFailsTrial(t *testing.T) {
	defaults := map[string]Assumption{
		"Stocks": {MeanReturn: 0, StdDev: 0},
		"Other":  {MeanReturn: 0, StdDev: 0},
	}
	svc := newTestService(1000, []glidepath.Band{fullRangeBand("Stocks")}, nil, defaults)

	params := baseParams()
	params.WithdrawalAmount = 100 // first withdrawal takes the whole balance
	params.EndAge = 67

	result, err := svc.Run(context.Background(), testPortfolio(1962, 65), params)
	require.NoError(t, err)

	assert.Equal(t, 0.0, result.SuccessProbability)
	assert.Equal(t, 0.0, result.Median[1].Balance)
	assert.Equal(t, 0.0, result.MedianAtEnd)
}

// Category-level overrides beat class defaults when the band carries
// category allocations.
func TestRunCategoryOverridePreferred(t *testing.T) {
	band := glidepath.Band{
		GtRetireAge: -100,
		LtRetireAge: 100,
		ClassAllocations: []glidepath.ClassAllocation{
			{ClassName: "Stocks", Percentage: 100},
		},
		CategoryAllocations: []glidepath.CategoryAllocation{
			{ClassName: "Stocks", CategoryName: "Large Cap", Percentage: 100},
		},
	}
	overrides := map[domain.CategoryKey]Assumption{
		{AssetClass: "Stocks", Category: "Large Cap"}: {MeanReturn: 0.02, StdDev: 0},
	}
	svc := newTestService(10000, []glidepath.Band{band}, overrides, DefaultClassAssumptions())

	params := baseParams()
	params.EndAge = 38

	result, err := svc.Run(context.Background(), testPortfolio(1990, 65), params)
	require.NoError(t, err)

	assert.InDelta(t, 10000*math.Pow(1.02, 2), result.MedianAtEnd, 0.01)
}

func TestRunSeedReproducible(t *testing.T) {
	svc := newTestService(10000, []glidepath.Band{fullRangeBand("Stocks")}, nil, DefaultClassAssumptions())

	params := baseParams()
	params.EndAge = 70
	params.Seed = 7

	first, err := svc.Run(context.Background(), testPortfolio(1990, 65), params)
	require.NoError(t, err)
	second, err := svc.Run(context.Background(), testPortfolio(1990, 65), params)
	require.NoError(t, err)

	assert.Equal(t, first.Median, second.Median)
	assert.Equal(t, first.SuccessProbability, second.SuccessProbability)

	params.Seed = 8
	third, err := svc.Run(context.Background(), testPortfolio(1990, 65), params)
	require.NoError(t, err)
	assert.NotEqual(t, first.Median, third.Median)
}

func TestRunCancellation(t *testing.T) {
	svc := newTestService(10000, []glidepath.Band{fullRangeBand("Stocks")}, nil, DefaultClassAssumptions())

	params := baseParams()
	params.Trials = 100000

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := svc.Run(ctx, testPortfolio(1990, 65), params)
	assert.ErrorIs(t, err, context.Canceled)
}
