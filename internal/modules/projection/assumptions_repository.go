package projection

import (
	"database/sql"
	"fmt"

	"github.com/aristath/glidepath/internal/database"
	"github.com/aristath/glidepath/internal/domain"
	"github.com/aristath/glidepath/internal/modules/funds"
	"github.com/rs/zerolog"
)

// AssumptionsRepository stores per-category return model overrides. Categories
// without an override fall back to their class default.
type AssumptionsRepository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewAssumptionsRepository creates a new assumptions repository
func NewAssumptionsRepository(db *sql.DB, log zerolog.Logger) *AssumptionsRepository {
	return &AssumptionsRepository{
		db:  db,
		log: log.With().Str("repo", "assumptions").Logger(),
	}
}

// GetOverrides returns all category overrides keyed by class:category. Loaded
// once per projection run; the simulation loop never touches the database.
func (r *AssumptionsRepository) GetOverrides() (map[domain.CategoryKey]Assumption, error) {
	rows, err := r.db.Query(`SELECT cl.name, c.name, a.mean_return, a.std_dev
		FROM category_assumptions a
		JOIN asset_categories c ON c.id = a.category_id
		JOIN asset_classes cl ON cl.id = c.class_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query category assumptions: %w", err)
	}
	defer rows.Close()

	result := make(map[domain.CategoryKey]Assumption)
	for rows.Next() {
		var key domain.CategoryKey
		var a Assumption
		if err := rows.Scan(&key.AssetClass, &key.Category, &a.MeanReturn, &a.StdDev); err != nil {
			return nil, fmt.Errorf("failed to scan category assumption: %w", err)
		}
		result[key] = a
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating category assumptions: %w", err)
	}

	return result, nil
}

// Upsert sets the return model override for a category, creating the class
// and category rows if needed.
func (r *AssumptionsRepository) Upsert(className, categoryName string, a Assumption) error {
	if a.StdDev < 0 {
		return fmt.Errorf("assumption std_dev must be non-negative, got %v", a.StdDev)
	}

	return database.WithTransaction(r.db, func(tx *sql.Tx) error {
		categoryID, err := funds.EnsureCategoryTx(tx, className, categoryName)
		if err != nil {
			return err
		}

		_, err = tx.Exec(`INSERT INTO category_assumptions (category_id, mean_return, std_dev)
			VALUES (?, ?, ?)
			ON CONFLICT(category_id) DO UPDATE SET mean_return = excluded.mean_return, std_dev = excluded.std_dev`,
			categoryID, a.MeanReturn, a.StdDev)
		if err != nil {
			return fmt.Errorf("failed to upsert assumption for %s:%s: %w", className, categoryName, err)
		}

		r.log.Debug().Str("class", className).Str("category", categoryName).Msg("Assumption override upserted")
		return nil
	})
}

// Delete removes a category's override, reverting it to the class default.
func (r *AssumptionsRepository) Delete(className, categoryName string) error {
	_, err := r.db.Exec(`DELETE FROM category_assumptions
		WHERE category_id IN (
			SELECT c.id FROM asset_categories c
			JOIN asset_classes cl ON cl.id = c.class_id
			WHERE cl.name = ? AND c.name = ?
		)`, className, categoryName)
	if err != nil {
		return fmt.Errorf("failed to delete assumption for %s:%s: %w", className, categoryName, err)
	}
	return nil
}
