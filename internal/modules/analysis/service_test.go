package analysis

import (
	"testing"
	"time"

	"github.com/aristath/glidepath/internal/database"
	"github.com/aristath/glidepath/internal/domain"
	"github.com/aristath/glidepath/internal/modules/funds"
	"github.com/aristath/glidepath/internal/modules/glidepath"
	"github.com/aristath/glidepath/internal/modules/portfolio"
	"github.com/aristath/glidepath/internal/modules/positions"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testEnv struct {
	svc       *Service
	funds     *funds.Repository
	positions *positions.Repository
	glidepath *glidepath.Repository
	portfolio *portfolio.Repository
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db, err := database.New(database.Config{
		Path: "file:" + t.Name() + "?mode=memory&cache=shared",
		Name: t.Name(),
	})
	require.NoError(t, err)
	require.NoError(t, db.Migrate())
	t.Cleanup(func() { _ = db.Close() })

	log := zerolog.Nop()
	env := &testEnv{
		funds:     funds.NewRepository(db.Conn(), log),
		positions: positions.NewRepository(db.Conn(), log),
		glidepath: glidepath.NewRepository(db.Conn(), log),
		portfolio: portfolio.NewRepository(db.Conn(), log),
	}
	env.svc = NewService(env.positions, env.funds, env.glidepath, env.portfolio, log)
	env.svc.SetClock(func() time.Time {
		return time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	})
	return env
}

func (e *testEnv) seedCatalog(t *testing.T) {
	t.Helper()
	pref := func(v int) *int { return &v }
	for _, input := range []funds.FundInput{
		{Ticker: "VOO", AssetClass: "Stocks", Category: "Large Cap", Preference: pref(1)},
		{Ticker: "VGIT", AssetClass: "Bonds", Category: "Treasury", Preference: pref(2)},
		{Ticker: "MYSTERY"}, // in the catalog but uncategorized
	} {
		require.NoError(t, e.funds.Upsert(input))
	}
}

func (e *testEnv) createPortfolio(t *testing.T, p portfolio.Portfolio, items []portfolio.Item) *portfolio.Portfolio {
	t.Helper()
	created, err := e.portfolio.Create(p)
	require.NoError(t, err)
	if len(items) > 0 {
		require.NoError(t, e.portfolio.ReplaceItems(created.ID, items))
	}
	return created
}

func TestAnalyzeEmptyPortfolio(t *testing.T) {
	env := newTestEnv(t)
	p := env.createPortfolio(t, portfolio.Portfolio{User: "alice", Name: "empty"}, nil)

	result, err := env.svc.Analyze(p)
	require.NoError(t, err)

	assert.Equal(t, p.ID, result.PortfolioID)
	assert.Zero(t, result.TotalValue)
	assert.Empty(t, result.CategoryDetails)
	assert.False(t, result.HasTargets)
	assert.Nil(t, result.YearsToRetirement)
	assert.Nil(t, result.LatestUploadAt)
}

func TestAnalyzeClassifiesAndConserves(t *testing.T) {
	env := newTestEnv(t)
	env.seedCatalog(t)

	_, err := env.positions.ReplaceBatch("alice", "fidelity.csv", []positions.PositionInput{
		{AccountNumber: "X123", Symbol: "VOO", Quantity: "10", CurrentValue: "$7,000.00"},
		{AccountNumber: "X123", Symbol: "VGIT", Quantity: "30", CurrentValue: "$2,000.00"},
		{AccountNumber: "Y456", Symbol: "VGIT", Quantity: "15", CurrentValue: "$1,000.00"},
		{AccountNumber: "Y456", Symbol: "MYSTERY", Quantity: "1", CurrentValue: "$500.00"},
		{AccountNumber: "Y456", Symbol: "ZZTOP", Quantity: "1", CurrentValue: "$250.00"},
	})
	require.NoError(t, err)

	p := env.createPortfolio(t, portfolio.Portfolio{User: "alice", Name: "all"}, []portfolio.Item{
		{AccountNumber: "X123", Symbol: "VOO"},
		{AccountNumber: "X123", Symbol: "VGIT"},
		{AccountNumber: "Y456", Symbol: "VGIT"},
		{AccountNumber: "Y456", Symbol: "MYSTERY"},
		{AccountNumber: "Y456", Symbol: "ZZTOP"},
	})

	result, err := env.svc.Analyze(p)
	require.NoError(t, err)

	assert.InDelta(t, 10750, result.TotalValue, 0.01)
	assert.InDelta(t, 7000, result.ClassBreakdown["Stocks"], 0.01)
	assert.InDelta(t, 3000, result.ClassBreakdown["Bonds"], 0.01)
	assert.InDelta(t, 500, result.ClassBreakdown["Other"], 0.01)
	assert.InDelta(t, 250, result.ClassBreakdown["Unknown"], 0.01)
	assert.InDelta(t, 3000, result.CategoryBreakdown["Bonds:Treasury"], 0.01)
	assert.InDelta(t, 3000, result.TickerBreakdown["VGIT"], 0.01)

	// Conservation: category subtotals sum back to the total
	var sum float64
	for _, detail := range result.CategoryDetails {
		sum += detail.Subtotal
	}
	assert.InDelta(t, result.TotalValue, sum, 0.01)

	// Cross-account category merges both holdings, largest account first
	treasury := result.Detail(domain.CategoryKey{AssetClass: "Bonds", Category: "Treasury"})
	require.NotNil(t, treasury)
	require.Len(t, treasury.AccountHoldings, 2)
	assert.Equal(t, "X123", treasury.AccountHoldings[0].AccountNumber)
	assert.InDelta(t, 2000, treasury.AccountHoldings[0].Value, 0.01)

	other := result.Detail(domain.OtherKey)
	require.NotNil(t, other)
	assert.InDelta(t, 500, other.Subtotal, 0.01)

	unknown := result.Detail(domain.UnknownKey)
	require.NotNil(t, unknown)
	assert.InDelta(t, 250, unknown.Subtotal, 0.01)

	require.NotNil(t, result.LatestUploadAt)
}

func TestAnalyzeSelectsOnlyPortfolioItems(t *testing.T) {
	env := newTestEnv(t)
	env.seedCatalog(t)

	_, err := env.positions.ReplaceBatch("alice", "fidelity.csv", []positions.PositionInput{
		{AccountNumber: "X123", Symbol: "VOO", Quantity: "10", CurrentValue: "$7,000"},
		{AccountNumber: "X123", Symbol: "VGIT", Quantity: "30", CurrentValue: "$2,000"},
	})
	require.NoError(t, err)

	p := env.createPortfolio(t, portfolio.Portfolio{User: "alice", Name: "stocks-only"}, []portfolio.Item{
		{AccountNumber: "X123", Symbol: "VOO"},
	})

	result, err := env.svc.Analyze(p)
	require.NoError(t, err)

	assert.InDelta(t, 7000, result.TotalValue, 0.01)
	assert.Nil(t, result.Detail(domain.CategoryKey{AssetClass: "Bonds", Category: "Treasury"}))
}

func TestAnalyzeUsesLatestBatchPerAccount(t *testing.T) {
	env := newTestEnv(t)
	env.seedCatalog(t)

	_, err := env.positions.ReplaceBatch("alice", "january.csv", []positions.PositionInput{
		{AccountNumber: "X123", Symbol: "VOO", Quantity: "10", CurrentValue: "$7,000"},
	})
	require.NoError(t, err)
	_, err = env.positions.ReplaceBatch("alice", "february.csv", []positions.PositionInput{
		{AccountNumber: "X123", Symbol: "VOO", Quantity: "10", CurrentValue: "$7,500"},
	})
	require.NoError(t, err)

	p := env.createPortfolio(t, portfolio.Portfolio{User: "alice", Name: "all"}, []portfolio.Item{
		{AccountNumber: "X123", Symbol: "VOO"},
	})

	result, err := env.svc.Analyze(p)
	require.NoError(t, err)
	assert.InDelta(t, 7500, result.TotalValue, 0.01)
}

func TestAnalyzeSkipsNeverUploadedAccounts(t *testing.T) {
	env := newTestEnv(t)
	env.seedCatalog(t)

	_, err := env.positions.ReplaceBatch("alice", "fidelity.csv", []positions.PositionInput{
		{AccountNumber: "X123", Symbol: "VOO", Quantity: "10", CurrentValue: "$7,000"},
	})
	require.NoError(t, err)

	p := env.createPortfolio(t, portfolio.Portfolio{User: "alice", Name: "all"}, []portfolio.Item{
		{AccountNumber: "X123", Symbol: "VOO"},
		{AccountNumber: "GHOST", Symbol: "VOO"},
	})

	result, err := env.svc.Analyze(p)
	require.NoError(t, err)
	assert.InDelta(t, 7000, result.TotalValue, 0.01)
}

func TestAnalyzeLenientParsing(t *testing.T) {
	env := newTestEnv(t)
	env.seedCatalog(t)

	_, err := env.positions.ReplaceBatch("alice", "fidelity.csv", []positions.PositionInput{
		{AccountNumber: "X123", Symbol: "VOO", Quantity: "10", CurrentValue: "$7,000"},
		{AccountNumber: "X123", Symbol: "VGIT", Quantity: "n/a", CurrentValue: "--"},
	})
	require.NoError(t, err)

	p := env.createPortfolio(t, portfolio.Portfolio{User: "alice", Name: "all"}, []portfolio.Item{
		{AccountNumber: "X123", Symbol: "VOO"},
		{AccountNumber: "X123", Symbol: "VGIT"},
	})

	result, err := env.svc.Analyze(p)
	require.NoError(t, err)

	// The malformed row degrades to zero instead of failing the analysis
	assert.InDelta(t, 7000, result.TotalValue, 0.01)
	treasury := result.Detail(domain.CategoryKey{AssetClass: "Bonds", Category: "Treasury"})
	require.NotNil(t, treasury)
	assert.Zero(t, treasury.Subtotal)
}

func TestAnalyzeAttachesGlidepathTargets(t *testing.T) {
	env := newTestEnv(t)
	env.seedCatalog(t)

	ruleset, err := env.glidepath.ReplaceRuleSet("classic", []glidepath.BandInput{
		{
			GtRetireAge: -100,
			LtRetireAge: 100,
			ClassAllocations: []glidepath.ClassAllocation{
				{ClassName: "Stocks", Percentage: 60},
				{ClassName: "Bonds", Percentage: 40},
			},
			CategoryAllocations: []glidepath.CategoryAllocation{
				{ClassName: "Stocks", CategoryName: "Large Cap", Percentage: 50},
				{ClassName: "Stocks", CategoryName: "Small Cap", Percentage: 10},
				{ClassName: "Bonds", CategoryName: "Treasury", Percentage: 40},
			},
		},
	})
	require.NoError(t, err)

	_, err = env.positions.ReplaceBatch("alice", "fidelity.csv", []positions.PositionInput{
		{AccountNumber: "X123", Symbol: "VOO", Quantity: "10", CurrentValue: "$7,000"},
		{AccountNumber: "X123", Symbol: "VGIT", Quantity: "30", CurrentValue: "$3,000"},
	})
	require.NoError(t, err)

	yearBorn, retirementAge := 1990, 65
	p := env.createPortfolio(t, portfolio.Portfolio{
		User:          "alice",
		Name:          "retirement",
		RuleSetID:     &ruleset.ID,
		YearBorn:      &yearBorn,
		RetirementAge: &retirementAge,
	}, []portfolio.Item{
		{AccountNumber: "X123", Symbol: "VOO"},
		{AccountNumber: "X123", Symbol: "VGIT"},
	})

	result, err := env.svc.Analyze(p)
	require.NoError(t, err)

	assert.True(t, result.HasTargets)
	require.NotNil(t, result.YearsToRetirement)
	assert.Equal(t, -29, *result.YearsToRetirement) // 2026 - 1990 - 65
	assert.Equal(t, "29 years until retirement", result.RetirementStatus)

	largeCap := result.Detail(domain.CategoryKey{AssetClass: "Stocks", Category: "Large Cap"})
	require.NotNil(t, largeCap)
	assert.True(t, largeCap.HasTarget)
	assert.InDelta(t, 70, largeCap.CurrentPct, 0.01)
	assert.InDelta(t, 50, largeCap.TargetPct, 0.01)
	assert.InDelta(t, 5000, largeCap.TargetValue, 0.01)
	assert.InDelta(t, -2000, largeCap.Difference, 0.01) // overweight

	// Glidepath category with no current holdings still appears
	smallCap := result.Detail(domain.CategoryKey{AssetClass: "Stocks", Category: "Small Cap"})
	require.NotNil(t, smallCap)
	assert.True(t, smallCap.HasTarget)
	assert.Zero(t, smallCap.Subtotal)
	assert.InDelta(t, 1000, smallCap.TargetValue, 0.01)
	assert.InDelta(t, 1000, smallCap.Difference, 0.01) // underweight
}

func TestAnalyzeNoBandDegradesToNoTargets(t *testing.T) {
	env := newTestEnv(t)
	env.seedCatalog(t)

	ruleset, err := env.glidepath.ReplaceRuleSet("classic", []glidepath.BandInput{
		{
			GtRetireAge: -100,
			LtRetireAge: 100,
			ClassAllocations: []glidepath.ClassAllocation{
				{ClassName: "Stocks", Percentage: 100},
			},
		},
	})
	require.NoError(t, err)

	_, err = env.positions.ReplaceBatch("alice", "fidelity.csv", []positions.PositionInput{
		{AccountNumber: "X123", Symbol: "VOO", Quantity: "10", CurrentValue: "$7,000"},
	})
	require.NoError(t, err)

	// Born 1900: years-to-retirement is 61, past the axis is fine, but a
	// portfolio without a retirement age gets no band lookup at all
	yearBorn := 1900
	p := env.createPortfolio(t, portfolio.Portfolio{
		User:      "alice",
		Name:      "no-ages",
		RuleSetID: &ruleset.ID,
		YearBorn:  &yearBorn,
	}, []portfolio.Item{
		{AccountNumber: "X123", Symbol: "VOO"},
	})

	result, err := env.svc.Analyze(p)
	require.NoError(t, err)
	assert.False(t, result.HasTargets)
	assert.Nil(t, result.YearsToRetirement)
}
