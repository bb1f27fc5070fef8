// Package portfolio manages portfolios and their (account, symbol) item
// selections.
package portfolio

import (
	"database/sql"
	"fmt"
	"strings"

	"github.com/aristath/glidepath/internal/database"
	"github.com/aristath/glidepath/internal/modules/funds"
	"github.com/rs/zerolog"
)

// Repository handles portfolio database operations
type Repository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewRepository creates a new portfolio repository
func NewRepository(db *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("repo", "portfolio").Logger(),
	}
}

// Create inserts a new portfolio.
func (r *Repository) Create(p Portfolio) (*Portfolio, error) {
	p.User = strings.TrimSpace(p.User)
	p.Name = strings.TrimSpace(p.Name)
	if p.User == "" || p.Name == "" {
		return nil, fmt.Errorf("portfolio user and name are required")
	}

	res, err := r.db.Exec(`INSERT INTO portfolios (user, name, ruleset_id, year_born, retirement_age)
		VALUES (?, ?, ?, ?, ?)`,
		p.User, p.Name, nullInt64Ptr(p.RuleSetID), nullIntPtr(p.YearBorn), nullIntPtr(p.RetirementAge))
	if err != nil {
		return nil, fmt.Errorf("failed to create portfolio: %w", err)
	}

	p.ID, _ = res.LastInsertId()
	r.log.Info().Int64("id", p.ID).Str("name", p.Name).Msg("Portfolio created")
	return &p, nil
}

// Update updates a portfolio's name, ruleset and retirement fields.
func (r *Repository) Update(p Portfolio) error {
	_, err := r.db.Exec(`UPDATE portfolios
		SET name = ?, ruleset_id = ?, year_born = ?, retirement_age = ?
		WHERE id = ?`,
		strings.TrimSpace(p.Name), nullInt64Ptr(p.RuleSetID), nullIntPtr(p.YearBorn), nullIntPtr(p.RetirementAge), p.ID)
	if err != nil {
		return fmt.Errorf("failed to update portfolio %d: %w", p.ID, err)
	}
	return nil
}

// GetByID returns a portfolio, or nil when absent.
func (r *Repository) GetByID(id int64) (*Portfolio, error) {
	var p Portfolio
	var rulesetID sql.NullInt64
	var yearBorn, retirementAge sql.NullInt64

	err := r.db.QueryRow(`SELECT id, user, name, ruleset_id, year_born, retirement_age
		FROM portfolios WHERE id = ?`, id).
		Scan(&p.ID, &p.User, &p.Name, &rulesetID, &yearBorn, &retirementAge)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query portfolio %d: %w", id, err)
	}

	if rulesetID.Valid {
		p.RuleSetID = &rulesetID.Int64
	}
	if yearBorn.Valid {
		v := int(yearBorn.Int64)
		p.YearBorn = &v
	}
	if retirementAge.Valid {
		v := int(retirementAge.Int64)
		p.RetirementAge = &v
	}

	return &p, nil
}

// GetByUser returns all of a user's portfolios ordered by name.
func (r *Repository) GetByUser(user string) ([]Portfolio, error) {
	rows, err := r.db.Query(`SELECT id, user, name, ruleset_id, year_born, retirement_age
		FROM portfolios WHERE user = ? ORDER BY name`, user)
	if err != nil {
		return nil, fmt.Errorf("failed to query portfolios: %w", err)
	}
	defer rows.Close()

	var result []Portfolio
	for rows.Next() {
		var p Portfolio
		var rulesetID sql.NullInt64
		var yearBorn, retirementAge sql.NullInt64

		if err := rows.Scan(&p.ID, &p.User, &p.Name, &rulesetID, &yearBorn, &retirementAge); err != nil {
			return nil, fmt.Errorf("failed to scan portfolio: %w", err)
		}
		if rulesetID.Valid {
			p.RuleSetID = &rulesetID.Int64
		}
		if yearBorn.Valid {
			v := int(yearBorn.Int64)
			p.YearBorn = &v
		}
		if retirementAge.Valid {
			v := int(retirementAge.Int64)
			p.RetirementAge = &v
		}
		result = append(result, p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating portfolios: %w", err)
	}

	return result, nil
}

// Delete removes a portfolio and its items (cascade).
func (r *Repository) Delete(id int64) error {
	result, err := r.db.Exec(`DELETE FROM portfolios WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete portfolio %d: %w", id, err)
	}
	rowsAffected, _ := result.RowsAffected()
	r.log.Info().Int64("id", id).Int64("rows_affected", rowsAffected).Msg("Portfolio deleted")
	return nil
}

// ReplaceItems atomically replaces a portfolio's item selections. Symbols are
// normalized; duplicate pairs collapse via the unique constraint.
func (r *Repository) ReplaceItems(portfolioID int64, items []Item) error {
	return database.WithTransaction(r.db, func(tx *sql.Tx) error {
		if _, err := tx.Exec(`DELETE FROM portfolio_items WHERE portfolio_id = ?`, portfolioID); err != nil {
			return fmt.Errorf("failed to delete prior items: %w", err)
		}

		for _, item := range items {
			account := strings.TrimSpace(item.AccountNumber)
			symbol := funds.NormalizeTicker(item.Symbol)
			if account == "" || symbol == "" {
				continue
			}
			if _, err := tx.Exec(`INSERT OR IGNORE INTO portfolio_items (portfolio_id, account_number, symbol)
				VALUES (?, ?, ?)`, portfolioID, account, symbol); err != nil {
				return fmt.Errorf("failed to insert item %s/%s: %w", account, symbol, err)
			}
		}

		return nil
	})
}

// GetItems returns a portfolio's item selections in insertion order.
func (r *Repository) GetItems(portfolioID int64) ([]Item, error) {
	rows, err := r.db.Query(`SELECT account_number, symbol FROM portfolio_items
		WHERE portfolio_id = ? ORDER BY id`, portfolioID)
	if err != nil {
		return nil, fmt.Errorf("failed to query portfolio items: %w", err)
	}
	defer rows.Close()

	var result []Item
	for rows.Next() {
		var item Item
		if err := rows.Scan(&item.AccountNumber, &item.Symbol); err != nil {
			return nil, fmt.Errorf("failed to scan portfolio item: %w", err)
		}
		result = append(result, item)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating portfolio items: %w", err)
	}

	return result, nil
}

// Helper functions for nullable types

func nullIntPtr(val *int) sql.NullInt64 {
	if val == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*val), Valid: true}
}

func nullInt64Ptr(val *int64) sql.NullInt64 {
	if val == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *val, Valid: true}
}
