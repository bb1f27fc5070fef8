package glidepath

import "github.com/aristath/glidepath/internal/domain"

// RuleSet is a named glidepath: an ordered partition of the retirement-age
// axis [-100, 100] into contiguous integer-age bands.
type RuleSet struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// ClassAllocation is one class percentage within a band. Class percentages
// of a band sum to 100.
type ClassAllocation struct {
	ClassName  string  `json:"class_name"`
	Percentage float64 `json:"percentage"`
}

// CategoryAllocation is one category percentage within a band. For each class,
// its category percentages sum to exactly that class's percentage.
type CategoryAllocation struct {
	ClassName    string  `json:"class_name"`
	CategoryName string  `json:"category_name"`
	Percentage   float64 `json:"percentage"`
}

// Key returns the allocation's composite category key.
func (c CategoryAllocation) Key() domain.CategoryKey {
	return domain.CategoryKey{AssetClass: c.ClassName, Category: c.CategoryName}
}

// Band is one age band [GtRetireAge, LtRetireAge) with its allocation tables.
type Band struct {
	ID                  int64                `json:"id"`
	RuleSetID           int64                `json:"ruleset_id"`
	GtRetireAge         int                  `json:"gt_retire_age"`
	LtRetireAge         int                  `json:"lt_retire_age"`
	ClassAllocations    []ClassAllocation    `json:"class_allocations"`
	CategoryAllocations []CategoryAllocation `json:"category_allocations"`
}

// Contains reports whether the band covers the given years-to-retirement.
func (b Band) Contains(yearsToRetirement int) bool {
	return yearsToRetirement >= b.GtRetireAge && yearsToRetirement < b.LtRetireAge
}

// BandInput is the import shape for one band of a ruleset replace.
type BandInput struct {
	GtRetireAge         int                  `json:"gt_retire_age"`
	LtRetireAge         int                  `json:"lt_retire_age"`
	ClassAllocations    []ClassAllocation    `json:"class_allocations"`
	CategoryAllocations []CategoryAllocation `json:"category_allocations"`
}
