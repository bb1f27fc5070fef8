// Package funds manages the asset class / category taxonomy and the fund
// catalog used to classify uploaded positions.
package funds

import (
	"database/sql"
	"fmt"
	"regexp"
	"strings"

	"github.com/aristath/glidepath/internal/database"
	"github.com/aristath/glidepath/internal/domain"
	"github.com/rs/zerolog"
)

var tickerCleanRe = regexp.MustCompile(`[^A-Za-z0-9-]`)

// NormalizeTicker strips everything except letters, digits and hyphens and
// uppercases the result ("FCASH**" -> "FCASH").
func NormalizeTicker(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(tickerCleanRe.ReplaceAllString(symbol, "")))
}

// Repository handles fund catalog and taxonomy database operations
type Repository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewRepository creates a new funds repository
func NewRepository(db *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("repo", "funds").Logger(),
	}
}

// GetByTicker returns the fund row for a normalized ticker, or nil when the
// ticker is not in the catalog (the aggregator treats that as Unknown).
func (r *Repository) GetByTicker(ticker string) (*Fund, error) {
	query := `SELECT f.ticker, f.preference, c.id, c.name, c.class_id, cl.name
		FROM funds f
		LEFT JOIN asset_categories c ON c.id = f.category_id
		LEFT JOIN asset_classes cl ON cl.id = c.class_id
		WHERE f.ticker = ?`

	row := r.db.QueryRow(query, NormalizeTicker(ticker))

	var fund Fund
	var pref sql.NullInt64
	var catID, classID sql.NullInt64
	var catName, className sql.NullString

	err := row.Scan(&fund.Ticker, &pref, &catID, &catName, &classID, &className)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query fund %s: %w", ticker, err)
	}

	if pref.Valid {
		p := int(pref.Int64)
		fund.Preference = &p
	}
	if catID.Valid {
		fund.Category = &AssetCategory{
			ID:        catID.Int64,
			Name:      catName.String,
			ClassID:   classID.Int64,
			ClassName: className.String,
		}
	}

	return &fund, nil
}

// GetAll returns the full fund catalog ordered by ticker.
func (r *Repository) GetAll() ([]Fund, error) {
	query := `SELECT f.ticker, f.preference, c.id, c.name, c.class_id, cl.name
		FROM funds f
		LEFT JOIN asset_categories c ON c.id = f.category_id
		LEFT JOIN asset_classes cl ON cl.id = c.class_id
		ORDER BY f.ticker`

	rows, err := r.db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("failed to query funds: %w", err)
	}
	defer rows.Close()

	var result []Fund
	for rows.Next() {
		var fund Fund
		var pref sql.NullInt64
		var catID, classID sql.NullInt64
		var catName, className sql.NullString

		if err := rows.Scan(&fund.Ticker, &pref, &catID, &catName, &classID, &className); err != nil {
			return nil, fmt.Errorf("failed to scan fund: %w", err)
		}
		if pref.Valid {
			p := int(pref.Int64)
			fund.Preference = &p
		}
		if catID.Valid {
			fund.Category = &AssetCategory{
				ID:        catID.Int64,
				Name:      catName.String,
				ClassID:   classID.Int64,
				ClassName: className.String,
			}
		}
		result = append(result, fund)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating funds: %w", err)
	}

	return result, nil
}

// GetRecommendedForCategory returns catalog funds in the given category with
// preference in the recommended 1-10 range, best preference first. These are
// the buy-side recommendations for a rebalance action.
func (r *Repository) GetRecommendedForCategory(key domain.CategoryKey) ([]Fund, error) {
	query := `SELECT f.ticker, f.preference, c.id, c.name, c.class_id, cl.name
		FROM funds f
		JOIN asset_categories c ON c.id = f.category_id
		JOIN asset_classes cl ON cl.id = c.class_id
		WHERE cl.name = ? AND c.name = ?
			AND f.preference IS NOT NULL
			AND f.preference BETWEEN 1 AND ?
		ORDER BY f.preference ASC, f.ticker ASC`

	rows, err := r.db.Query(query, key.AssetClass, key.Category, domain.RecommendedMaxPreference)
	if err != nil {
		return nil, fmt.Errorf("failed to query recommended funds: %w", err)
	}
	defer rows.Close()

	var result []Fund
	for rows.Next() {
		var fund Fund
		var pref sql.NullInt64
		var cat AssetCategory

		if err := rows.Scan(&fund.Ticker, &pref, &cat.ID, &cat.Name, &cat.ClassID, &cat.ClassName); err != nil {
			return nil, fmt.Errorf("failed to scan recommended fund: %w", err)
		}
		if pref.Valid {
			p := int(pref.Int64)
			fund.Preference = &p
		}
		fund.Category = &cat
		result = append(result, fund)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating recommended funds: %w", err)
	}

	return result, nil
}

// Upsert inserts or updates a fund catalog entry, creating the asset class and
// category rows if they do not exist yet. A FundInput without a category
// produces an uncategorized fund (classified as Other by the aggregator).
func (r *Repository) Upsert(input FundInput) error {
	ticker := NormalizeTicker(input.Ticker)
	if ticker == "" {
		return fmt.Errorf("fund ticker is required")
	}
	if input.Preference != nil && (*input.Preference < 1 || *input.Preference > domain.PreferenceNone) {
		return fmt.Errorf("fund preference must be in 1-%d, got %d", domain.PreferenceNone, *input.Preference)
	}

	return database.WithTransaction(r.db, func(tx *sql.Tx) error {
		var categoryID sql.NullInt64
		if input.Category != "" {
			if input.AssetClass == "" {
				return fmt.Errorf("asset_class is required when category is set")
			}
			id, err := EnsureCategoryTx(tx, input.AssetClass, input.Category)
			if err != nil {
				return err
			}
			categoryID = sql.NullInt64{Int64: id, Valid: true}
		}

		var pref sql.NullInt64
		if input.Preference != nil {
			pref = sql.NullInt64{Int64: int64(*input.Preference), Valid: true}
		}

		_, err := tx.Exec(`INSERT INTO funds (ticker, category_id, preference)
			VALUES (?, ?, ?)
			ON CONFLICT(ticker) DO UPDATE SET category_id = excluded.category_id, preference = excluded.preference`,
			ticker, categoryID, pref)
		if err != nil {
			return fmt.Errorf("failed to upsert fund %s: %w", ticker, err)
		}

		r.log.Debug().Str("ticker", ticker).Msg("Fund upserted")
		return nil
	})
}

// EnsureCategory resolves (creating if needed) a class+category pair and
// returns the category id. Used by the glidepath importer as well.
func (r *Repository) EnsureCategory(className, categoryName string) (int64, error) {
	var id int64
	err := database.WithTransaction(r.db, func(tx *sql.Tx) error {
		var err error
		id, err = EnsureCategoryTx(tx, className, categoryName)
		return err
	})
	return id, err
}

// EnsureCategoryTx resolves (creating if needed) the class and category rows
// inside an existing transaction. Exported for the glidepath importer.
func EnsureCategoryTx(tx *sql.Tx, className, categoryName string) (int64, error) {
	classID, err := EnsureClassTx(tx, className)
	if err != nil {
		return 0, err
	}

	var categoryID int64
	err = tx.QueryRow(`SELECT id FROM asset_categories WHERE name = ? AND class_id = ?`,
		categoryName, classID).Scan(&categoryID)
	if err == sql.ErrNoRows {
		res, insErr := tx.Exec(`INSERT INTO asset_categories (name, class_id) VALUES (?, ?)`,
			categoryName, classID)
		if insErr != nil {
			return 0, fmt.Errorf("failed to create category %s:%s: %w", className, categoryName, insErr)
		}
		return res.LastInsertId()
	}
	if err != nil {
		return 0, fmt.Errorf("failed to query category %s:%s: %w", className, categoryName, err)
	}
	return categoryID, nil
}

// EnsureClassTx resolves (creating if needed) an asset class row.
func EnsureClassTx(tx *sql.Tx, className string) (int64, error) {
	var classID int64
	err := tx.QueryRow(`SELECT id FROM asset_classes WHERE name = ?`, className).Scan(&classID)
	if err == sql.ErrNoRows {
		res, insErr := tx.Exec(`INSERT INTO asset_classes (name) VALUES (?)`, className)
		if insErr != nil {
			return 0, fmt.Errorf("failed to create asset class %s: %w", className, insErr)
		}
		return res.LastInsertId()
	}
	if err != nil {
		return 0, fmt.Errorf("failed to query asset class %s: %w", className, err)
	}
	return classID, nil
}
