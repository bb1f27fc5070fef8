package portfolio

import (
	"fmt"
	"time"
)

// Portfolio is a named subset selector over uploaded positions. RuleSetID,
// YearBorn and RetirementAge are optional; target allocations and projections
// require all of them.
type Portfolio struct {
	ID            int64  `json:"id"`
	User          string `json:"user"`
	Name          string `json:"name"`
	RuleSetID     *int64 `json:"ruleset_id,omitempty"`
	YearBorn      *int   `json:"year_born,omitempty"`
	RetirementAge *int   `json:"retirement_age,omitempty"`
}

// Item pins one (account, symbol) pair into a portfolio.
type Item struct {
	AccountNumber string `json:"account_number"`
	Symbol        string `json:"symbol"`
}

// CurrentAge returns the holder's age in the given year. False when the birth
// year is unset.
func (p Portfolio) CurrentAge(now time.Time) (int, bool) {
	if p.YearBorn == nil {
		return 0, false
	}
	return now.Year() - *p.YearBorn, true
}

// YearsToRetirement returns the age-relative integer used to index glidepath
// bands: current_year - year_born - retirement_age. Negative means
// pre-retirement headroom, positive means past target retirement. False when
// birth year or retirement age is unset.
func (p Portfolio) YearsToRetirement(now time.Time) (int, bool) {
	if p.YearBorn == nil || p.RetirementAge == nil {
		return 0, false
	}
	return now.Year() - *p.YearBorn - *p.RetirementAge, true
}

// RetirementStatus renders the human-readable status for a years-to-retirement
// value.
func RetirementStatus(yearsToRetirement int) string {
	switch {
	case yearsToRetirement < 0:
		return fmt.Sprintf("%d years until retirement", -yearsToRetirement)
	case yearsToRetirement == 0:
		return "Retirement this year!"
	default:
		return fmt.Sprintf("%d years past retirement", yearsToRetirement)
	}
}
