package glidepath

import (
	"fmt"
	"math"
	"sort"
)

// Age-axis bounds. Bands are clamped to this range at import.
const (
	MinRetireAge = -100
	MaxRetireAge = 100
)

// percentage comparisons tolerate float accumulation noise well below a
// hundredth of a percent
const pctEpsilon = 1e-6

// ValidateBands checks a full ruleset before import and returns the clamped,
// gt-sorted bands. Rules enforced:
//   - each band has gt < lt after clamping to [-100, 100]
//   - class percentages total exactly 100; a missing "Other" class absorbs
//     the remainder
//   - per class, category percentages sum to that class's percentage
//   - a band carrying any category allocations must cover every class with a
//     nonzero percentage; the Other class falls back to its Other
//     pseudo-category
//   - bands tile [-100, 100) with no gaps or overlaps
//
// The analysis and projection engines depend on this invariant holding, so a
// violation aborts the import with nothing written.
func ValidateBands(bands []BandInput) ([]BandInput, error) {
	if len(bands) == 0 {
		return nil, fmt.Errorf("ruleset must contain at least one band")
	}

	validated := make([]BandInput, 0, len(bands))
	for i, band := range bands {
		if band.GtRetireAge < MinRetireAge {
			band.GtRetireAge = MinRetireAge
		}
		if band.LtRetireAge > MaxRetireAge {
			band.LtRetireAge = MaxRetireAge
		}
		if band.GtRetireAge >= band.LtRetireAge {
			return nil, fmt.Errorf("band %d: gt_retire_age %d must be less than lt_retire_age %d",
				i, band.GtRetireAge, band.LtRetireAge)
		}

		normalized, err := validateAllocations(band)
		if err != nil {
			return nil, fmt.Errorf("band [%d, %d): %w", band.GtRetireAge, band.LtRetireAge, err)
		}
		validated = append(validated, normalized)
	}

	sort.Slice(validated, func(i, j int) bool {
		return validated[i].GtRetireAge < validated[j].GtRetireAge
	})

	// Coverage: bands must tile the full axis
	if validated[0].GtRetireAge != MinRetireAge {
		return nil, fmt.Errorf("bands must start at %d, first band starts at %d",
			MinRetireAge, validated[0].GtRetireAge)
	}
	for i := 1; i < len(validated); i++ {
		prev, cur := validated[i-1], validated[i]
		if cur.GtRetireAge != prev.LtRetireAge {
			return nil, fmt.Errorf("gap or overlap between band ending at %d and band starting at %d",
				prev.LtRetireAge, cur.GtRetireAge)
		}
	}
	last := validated[len(validated)-1]
	if last.LtRetireAge != MaxRetireAge {
		return nil, fmt.Errorf("bands must end at %d, last band ends at %d",
			MaxRetireAge, last.LtRetireAge)
	}

	return validated, nil
}

// validateAllocations checks one band's percentage tables and fills in the
// implicit "Other" class remainder.
func validateAllocations(band BandInput) (BandInput, error) {
	classTotal := 0.0
	hasOther := false
	for _, ca := range band.ClassAllocations {
		if ca.Percentage < 0 {
			return band, fmt.Errorf("class %s has negative percentage %v", ca.ClassName, ca.Percentage)
		}
		if ca.ClassName == "Other" {
			hasOther = true
		}
		classTotal += ca.Percentage
	}
	if classTotal > 100+pctEpsilon {
		return band, fmt.Errorf("class allocations exceed 100%% (%.2f)", classTotal)
	}
	if !hasOther && classTotal < 100-pctEpsilon {
		band.ClassAllocations = append(band.ClassAllocations, ClassAllocation{
			ClassName:  "Other",
			Percentage: 100 - classTotal,
		})
		classTotal = 100
	}
	if math.Abs(classTotal-100) > pctEpsilon {
		return band, fmt.Errorf("class allocations must total 100%%, got %.2f", classTotal)
	}

	// Per class, category percentages must sum to the class percentage. A
	// class left without category coverage would silently lose its weight in
	// engines that prefer category allocations, so a band with any category
	// allocations must cover every nonzero class. Other is the exception: its
	// holdings live under the Other pseudo-category, which fills in here.
	if len(band.CategoryAllocations) > 0 {
		classPct := make(map[string]float64)
		for _, ca := range band.ClassAllocations {
			classPct[ca.ClassName] = ca.Percentage
		}
		catSums := make(map[string]float64)
		for _, ca := range band.CategoryAllocations {
			if ca.Percentage < 0 {
				return band, fmt.Errorf("category %s:%s has negative percentage %v",
					ca.ClassName, ca.CategoryName, ca.Percentage)
			}
			if _, ok := classPct[ca.ClassName]; !ok {
				return band, fmt.Errorf("category %s:%s references unallocated class",
					ca.ClassName, ca.CategoryName)
			}
			catSums[ca.ClassName] += ca.Percentage
		}
		for _, cl := range band.ClassAllocations {
			sum, covered := catSums[cl.ClassName]
			if !covered {
				if cl.Percentage <= pctEpsilon {
					continue
				}
				if cl.ClassName == "Other" {
					band.CategoryAllocations = append(band.CategoryAllocations, CategoryAllocation{
						ClassName:    "Other",
						CategoryName: "Other",
						Percentage:   cl.Percentage,
					})
					continue
				}
				return band, fmt.Errorf("class %s (%.2f%%) has no category allocations",
					cl.ClassName, cl.Percentage)
			}
			if math.Abs(sum-cl.Percentage) > pctEpsilon {
				return band, fmt.Errorf("category allocations for %s (%.2f%%) do not match class allocation (%.2f%%)",
					cl.ClassName, sum, cl.Percentage)
			}
		}
	}

	return band, nil
}
