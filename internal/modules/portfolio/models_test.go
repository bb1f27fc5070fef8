package portfolio

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func intPtr(v int) *int { return &v }

var june2026 = time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)

func TestCurrentAge(t *testing.T) {
	p := Portfolio{YearBorn: intPtr(1990)}
	age, ok := p.CurrentAge(june2026)
	assert.True(t, ok)
	assert.Equal(t, 36, age)

	_, ok = Portfolio{}.CurrentAge(june2026)
	assert.False(t, ok)
}

func TestYearsToRetirement(t *testing.T) {
	p := Portfolio{YearBorn: intPtr(1990), RetirementAge: intPtr(65)}
	years, ok := p.YearsToRetirement(june2026)
	assert.True(t, ok)
	assert.Equal(t, -29, years)

	p = Portfolio{YearBorn: intPtr(1950), RetirementAge: intPtr(65)}
	years, ok = p.YearsToRetirement(june2026)
	assert.True(t, ok)
	assert.Equal(t, 11, years)

	_, ok = Portfolio{YearBorn: intPtr(1990)}.YearsToRetirement(june2026)
	assert.False(t, ok)

	_, ok = Portfolio{RetirementAge: intPtr(65)}.YearsToRetirement(june2026)
	assert.False(t, ok)
}

func TestRetirementStatus(t *testing.T) {
	assert.Equal(t, "29 years until retirement", RetirementStatus(-29))
	assert.Equal(t, "Retirement this year!", RetirementStatus(0))
	assert.Equal(t, "11 years past retirement", RetirementStatus(11))
}
