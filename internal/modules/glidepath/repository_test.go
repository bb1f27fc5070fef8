package glidepath

import (
	"testing"

	"github.com/aristath/glidepath/internal/database"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRepo(t *testing.T) *Repository {
	t.Helper()
	db, err := database.New(database.Config{
		Path: "file:" + t.Name() + "?mode=memory&cache=shared",
		Name: t.Name(),
	})
	require.NoError(t, err)
	require.NoError(t, db.Migrate())
	t.Cleanup(func() { _ = db.Close() })
	return NewRepository(db.Conn(), zerolog.Nop())
}

func classicBands() []BandInput {
	return []BandInput{
		{
			GtRetireAge: -100,
			LtRetireAge: -10,
			ClassAllocations: []ClassAllocation{
				{ClassName: "Stocks", Percentage: 90},
				{ClassName: "Bonds", Percentage: 10},
			},
			CategoryAllocations: []CategoryAllocation{
				{ClassName: "Stocks", CategoryName: "Large Cap", Percentage: 60},
				{ClassName: "Stocks", CategoryName: "Small Cap", Percentage: 30},
				{ClassName: "Bonds", CategoryName: "Treasury", Percentage: 10},
			},
		},
		{
			GtRetireAge: -10,
			LtRetireAge: 100,
			ClassAllocations: []ClassAllocation{
				{ClassName: "Stocks", Percentage: 50},
				{ClassName: "Bonds", Percentage: 50},
			},
		},
	}
}

func TestReplaceRuleSetRoundTrip(t *testing.T) {
	repo := newTestRepo(t)

	ruleset, err := repo.ReplaceRuleSet("classic", classicBands())
	require.NoError(t, err)
	assert.Equal(t, "classic", ruleset.Name)

	bands, err := repo.GetBands(ruleset.ID)
	require.NoError(t, err)
	require.Len(t, bands, 2)

	assert.Equal(t, -100, bands[0].GtRetireAge)
	require.Len(t, bands[0].ClassAllocations, 2)
	require.Len(t, bands[0].CategoryAllocations, 3)
	assert.Empty(t, bands[1].CategoryAllocations)
}

func TestReplaceRuleSetReplacesPriorBands(t *testing.T) {
	repo := newTestRepo(t)

	first, err := repo.ReplaceRuleSet("classic", classicBands())
	require.NoError(t, err)

	second, err := repo.ReplaceRuleSet("classic", []BandInput{
		{
			GtRetireAge: -100,
			LtRetireAge: 100,
			ClassAllocations: []ClassAllocation{
				{ClassName: "Stocks", Percentage: 100},
			},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)

	bands, err := repo.GetBands(second.ID)
	require.NoError(t, err)
	require.Len(t, bands, 1)
}

func TestReplaceRuleSetValidationLeavesStoreUntouched(t *testing.T) {
	repo := newTestRepo(t)

	ruleset, err := repo.ReplaceRuleSet("classic", classicBands())
	require.NoError(t, err)

	_, err = repo.ReplaceRuleSet("classic", []BandInput{
		{GtRetireAge: -100, LtRetireAge: 50, ClassAllocations: []ClassAllocation{{ClassName: "Stocks", Percentage: 100}}},
	})
	require.Error(t, err)

	bands, err := repo.GetBands(ruleset.ID)
	require.NoError(t, err)
	assert.Len(t, bands, 2)
}

func TestBandForAge(t *testing.T) {
	repo := newTestRepo(t)

	ruleset, err := repo.ReplaceRuleSet("classic", classicBands())
	require.NoError(t, err)

	band, err := repo.BandForAge(ruleset.ID, -30)
	require.NoError(t, err)
	require.NotNil(t, band)
	assert.Equal(t, -100, band.GtRetireAge)
	assert.Len(t, band.CategoryAllocations, 3)

	// -10 is the boundary: [gt, lt) puts it in the second band
	band, err = repo.BandForAge(ruleset.ID, -10)
	require.NoError(t, err)
	require.NotNil(t, band)
	assert.Equal(t, -10, band.GtRetireAge)

	band, err = repo.BandForAge(ruleset.ID, 150)
	require.NoError(t, err)
	assert.Nil(t, band)
}

func TestGetRuleSetByNameMissing(t *testing.T) {
	repo := newTestRepo(t)

	ruleset, err := repo.GetRuleSetByName("nope")
	require.NoError(t, err)
	assert.Nil(t, ruleset)
}
