// Package glidepath stores age-banded target allocation rulesets and resolves
// the band covering a given years-to-retirement.
package glidepath

import (
	"database/sql"
	"fmt"
	"strings"

	"github.com/aristath/glidepath/internal/database"
	"github.com/aristath/glidepath/internal/modules/funds"
	"github.com/rs/zerolog"
)

// Repository handles glidepath ruleset database operations
type Repository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewRepository creates a new glidepath repository
func NewRepository(db *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("repo", "glidepath").Logger(),
	}
}

// GetRuleSets returns all rulesets ordered by name.
func (r *Repository) GetRuleSets() ([]RuleSet, error) {
	rows, err := r.db.Query(`SELECT id, name FROM rulesets ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to query rulesets: %w", err)
	}
	defer rows.Close()

	var result []RuleSet
	for rows.Next() {
		var rs RuleSet
		if err := rows.Scan(&rs.ID, &rs.Name); err != nil {
			return nil, fmt.Errorf("failed to scan ruleset: %w", err)
		}
		result = append(result, rs)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rulesets: %w", err)
	}

	return result, nil
}

// GetRuleSetByName returns a ruleset by name, or nil when absent.
func (r *Repository) GetRuleSetByName(name string) (*RuleSet, error) {
	var rs RuleSet
	err := r.db.QueryRow(`SELECT id, name FROM rulesets WHERE name = ?`, strings.TrimSpace(name)).
		Scan(&rs.ID, &rs.Name)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query ruleset %s: %w", name, err)
	}
	return &rs, nil
}

// ReplaceRuleSet validates and atomically replaces the bands of a named
// ruleset, creating the ruleset and any referenced classes/categories as
// needed. Validation failure leaves the database untouched.
func (r *Repository) ReplaceRuleSet(name string, bands []BandInput) (*RuleSet, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("ruleset name is required")
	}

	validated, err := ValidateBands(bands)
	if err != nil {
		return nil, fmt.Errorf("invalid glidepath ruleset %s: %w", name, err)
	}

	var ruleset RuleSet
	err = database.WithTransaction(r.db, func(tx *sql.Tx) error {
		// Resolve or create the ruleset row
		err := tx.QueryRow(`SELECT id, name FROM rulesets WHERE name = ?`, name).
			Scan(&ruleset.ID, &ruleset.Name)
		if err == sql.ErrNoRows {
			res, insErr := tx.Exec(`INSERT INTO rulesets (name) VALUES (?)`, name)
			if insErr != nil {
				return fmt.Errorf("failed to create ruleset: %w", insErr)
			}
			ruleset.ID, _ = res.LastInsertId()
			ruleset.Name = name
		} else if err != nil {
			return fmt.Errorf("failed to query ruleset: %w", err)
		}

		// Replace semantics: prior bands (and their allocations, via cascade) go away
		if _, err := tx.Exec(`DELETE FROM glidepath_rules WHERE ruleset_id = ?`, ruleset.ID); err != nil {
			return fmt.Errorf("failed to delete prior bands: %w", err)
		}

		for _, band := range validated {
			res, err := tx.Exec(`INSERT INTO glidepath_rules (ruleset_id, gt_retire_age, lt_retire_age)
				VALUES (?, ?, ?)`, ruleset.ID, band.GtRetireAge, band.LtRetireAge)
			if err != nil {
				return fmt.Errorf("failed to insert band [%d, %d): %w", band.GtRetireAge, band.LtRetireAge, err)
			}
			ruleID, _ := res.LastInsertId()

			for _, ca := range band.ClassAllocations {
				classID, err := funds.EnsureClassTx(tx, ca.ClassName)
				if err != nil {
					return err
				}
				if _, err := tx.Exec(`INSERT INTO class_allocations (rule_id, class_id, percentage)
					VALUES (?, ?, ?)`, ruleID, classID, ca.Percentage); err != nil {
					return fmt.Errorf("failed to insert class allocation %s: %w", ca.ClassName, err)
				}
			}

			for _, ca := range band.CategoryAllocations {
				categoryID, err := funds.EnsureCategoryTx(tx, ca.ClassName, ca.CategoryName)
				if err != nil {
					return err
				}
				if _, err := tx.Exec(`INSERT INTO category_allocations (rule_id, category_id, percentage)
					VALUES (?, ?, ?)`, ruleID, categoryID, ca.Percentage); err != nil {
					return fmt.Errorf("failed to insert category allocation %s:%s: %w",
						ca.ClassName, ca.CategoryName, err)
				}
			}
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	r.log.Info().Str("ruleset", name).Int("bands", len(validated)).Msg("Glidepath ruleset replaced")
	return &ruleset, nil
}

// GetBands returns all bands of a ruleset with their allocation tables,
// ordered by gt_retire_age.
func (r *Repository) GetBands(rulesetID int64) ([]Band, error) {
	rows, err := r.db.Query(`SELECT id, ruleset_id, gt_retire_age, lt_retire_age
		FROM glidepath_rules WHERE ruleset_id = ?
		ORDER BY gt_retire_age`, rulesetID)
	if err != nil {
		return nil, fmt.Errorf("failed to query bands: %w", err)
	}
	defer rows.Close()

	var bands []Band
	for rows.Next() {
		var band Band
		if err := rows.Scan(&band.ID, &band.RuleSetID, &band.GtRetireAge, &band.LtRetireAge); err != nil {
			return nil, fmt.Errorf("failed to scan band: %w", err)
		}
		bands = append(bands, band)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating bands: %w", err)
	}

	for i := range bands {
		if err := r.loadAllocations(&bands[i]); err != nil {
			return nil, err
		}
	}

	return bands, nil
}

// BandForAge returns the band whose [gt_retire_age, lt_retire_age) contains
// the given years-to-retirement, or nil when no band matches. A miss should
// not happen for rulesets that passed import validation, but callers degrade
// gracefully regardless.
func (r *Repository) BandForAge(rulesetID int64, yearsToRetirement int) (*Band, error) {
	var band Band
	err := r.db.QueryRow(`SELECT id, ruleset_id, gt_retire_age, lt_retire_age
		FROM glidepath_rules
		WHERE ruleset_id = ? AND gt_retire_age <= ? AND lt_retire_age > ?
		LIMIT 1`, rulesetID, yearsToRetirement, yearsToRetirement).
		Scan(&band.ID, &band.RuleSetID, &band.GtRetireAge, &band.LtRetireAge)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query band for age %d: %w", yearsToRetirement, err)
	}

	if err := r.loadAllocations(&band); err != nil {
		return nil, err
	}

	return &band, nil
}

// loadAllocations fills a band's class and category allocation tables.
func (r *Repository) loadAllocations(band *Band) error {
	classRows, err := r.db.Query(`SELECT cl.name, ca.percentage
		FROM class_allocations ca
		JOIN asset_classes cl ON cl.id = ca.class_id
		WHERE ca.rule_id = ?
		ORDER BY cl.name`, band.ID)
	if err != nil {
		return fmt.Errorf("failed to query class allocations: %w", err)
	}
	defer classRows.Close()

	for classRows.Next() {
		var ca ClassAllocation
		if err := classRows.Scan(&ca.ClassName, &ca.Percentage); err != nil {
			return fmt.Errorf("failed to scan class allocation: %w", err)
		}
		band.ClassAllocations = append(band.ClassAllocations, ca)
	}
	if err := classRows.Err(); err != nil {
		return fmt.Errorf("error iterating class allocations: %w", err)
	}

	catRows, err := r.db.Query(`SELECT cl.name, c.name, ca.percentage
		FROM category_allocations ca
		JOIN asset_categories c ON c.id = ca.category_id
		JOIN asset_classes cl ON cl.id = c.class_id
		WHERE ca.rule_id = ?
		ORDER BY cl.name, c.name`, band.ID)
	if err != nil {
		return fmt.Errorf("failed to query category allocations: %w", err)
	}
	defer catRows.Close()

	for catRows.Next() {
		var ca CategoryAllocation
		if err := catRows.Scan(&ca.ClassName, &ca.CategoryName, &ca.Percentage); err != nil {
			return fmt.Errorf("failed to scan category allocation: %w", err)
		}
		band.CategoryAllocations = append(band.CategoryAllocations, ca)
	}
	if err := catRows.Err(); err != nil {
		return fmt.Errorf("error iterating category allocations: %w", err)
	}

	return nil
}
