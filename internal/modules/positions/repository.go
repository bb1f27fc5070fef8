// Package positions stores uploaded account position snapshots in batches.
// Only the latest batch per account is ever read by the analysis engine.
package positions

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/aristath/glidepath/internal/database"
	"github.com/aristath/glidepath/internal/modules/funds"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Repository handles upload batch and position database operations
type Repository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewRepository creates a new positions repository
func NewRepository(db *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("repo", "positions").Logger(),
	}
}

// ReplaceBatch atomically replaces the upload batch for (user, filename):
// any prior batch with the same key is deleted (cascading its rows) and the
// new rows are inserted under a fresh batch id. Rows without an account number
// or symbol are skipped; a batch with no valid rows is an error.
func (r *Repository) ReplaceBatch(user, filename string, rows []PositionInput) (*Upload, error) {
	user = strings.TrimSpace(user)
	filename = strings.TrimSpace(filename)
	if user == "" || filename == "" {
		return nil, fmt.Errorf("user and filename are required")
	}

	valid := make([]PositionInput, 0, len(rows))
	for _, row := range rows {
		symbol := funds.NormalizeTicker(row.Symbol)
		account := strings.TrimSpace(row.AccountNumber)
		if symbol == "" || account == "" {
			continue
		}
		row.Symbol = symbol
		row.AccountNumber = account
		valid = append(valid, row)
	}
	if len(valid) == 0 {
		return nil, fmt.Errorf("no valid position rows in batch")
	}

	upload := &Upload{
		ID:         uuid.New().String(),
		User:       user,
		Filename:   filename,
		CreatedAt:  time.Now().Unix(),
		EntryCount: len(valid),
	}

	err := database.WithTransaction(r.db, func(tx *sql.Tx) error {
		// Replace semantics: the old batch for the same user+filename goes away
		if _, err := tx.Exec(`DELETE FROM uploads WHERE user = ? AND filename = ?`, user, filename); err != nil {
			return fmt.Errorf("failed to delete prior batch: %w", err)
		}

		if _, err := tx.Exec(`INSERT INTO uploads (id, user, filename, created_at, entry_count)
			VALUES (?, ?, ?, ?, ?)`,
			upload.ID, upload.User, upload.Filename, upload.CreatedAt, upload.EntryCount); err != nil {
			return fmt.Errorf("failed to insert upload: %w", err)
		}

		stmt, err := tx.Prepare(`INSERT INTO account_positions
			(upload_id, account_number, symbol, quantity, current_value)
			VALUES (?, ?, ?, ?, ?)`)
		if err != nil {
			return fmt.Errorf("failed to prepare position insert: %w", err)
		}
		defer stmt.Close()

		for _, row := range valid {
			if _, err := stmt.Exec(upload.ID, row.AccountNumber, row.Symbol, row.Quantity, row.CurrentValue); err != nil {
				return fmt.Errorf("failed to insert position %s/%s: %w", row.AccountNumber, row.Symbol, err)
			}
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	r.log.Info().
		Str("user", user).
		Str("filename", filename).
		Int("entries", upload.EntryCount).
		Msg("Upload batch replaced")

	return upload, nil
}

// LatestUploadForAccount returns the most recent batch containing rows for the
// given account, or nil when the account has never been uploaded.
// Tie-break for equal timestamps is insertion order (most recently inserted
// batch wins) so resolution stays deterministic.
func (r *Repository) LatestUploadForAccount(user, accountNumber string) (*Upload, error) {
	query := `SELECT DISTINCT u.id, u.user, u.filename, u.created_at, u.entry_count, u.rowid
		FROM uploads u
		JOIN account_positions p ON p.upload_id = u.id
		WHERE u.user = ? AND p.account_number = ?
		ORDER BY u.created_at DESC, u.rowid DESC
		LIMIT 1`

	var upload Upload
	var rowid int64
	err := r.db.QueryRow(query, user, accountNumber).Scan(
		&upload.ID, &upload.User, &upload.Filename, &upload.CreatedAt, &upload.EntryCount, &rowid)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query latest upload for account %s: %w", accountNumber, err)
	}

	return &upload, nil
}

// GetPositions returns the raw rows for (batch, account, symbol) in insertion
// order. Multiple rows per key are legal and summed by the aggregator.
func (r *Repository) GetPositions(uploadID, accountNumber, symbol string) ([]PositionRow, error) {
	query := `SELECT id, upload_id, account_number, symbol, quantity, current_value
		FROM account_positions
		WHERE upload_id = ? AND account_number = ? AND symbol = ?
		ORDER BY id`

	rows, err := r.db.Query(query, uploadID, accountNumber, funds.NormalizeTicker(symbol))
	if err != nil {
		return nil, fmt.Errorf("failed to query positions: %w", err)
	}
	defer rows.Close()

	var result []PositionRow
	for rows.Next() {
		var pos PositionRow
		if err := rows.Scan(&pos.ID, &pos.UploadID, &pos.AccountNumber, &pos.Symbol, &pos.Quantity, &pos.CurrentValue); err != nil {
			return nil, fmt.Errorf("failed to scan position: %w", err)
		}
		result = append(result, pos)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating positions: %w", err)
	}

	return result, nil
}

// GetUploads returns all batches for a user, newest first.
func (r *Repository) GetUploads(user string) ([]Upload, error) {
	query := `SELECT id, user, filename, created_at, entry_count
		FROM uploads WHERE user = ?
		ORDER BY created_at DESC, rowid DESC`

	rows, err := r.db.Query(query, user)
	if err != nil {
		return nil, fmt.Errorf("failed to query uploads: %w", err)
	}
	defer rows.Close()

	var result []Upload
	for rows.Next() {
		var upload Upload
		if err := rows.Scan(&upload.ID, &upload.User, &upload.Filename, &upload.CreatedAt, &upload.EntryCount); err != nil {
			return nil, fmt.Errorf("failed to scan upload: %w", err)
		}
		result = append(result, upload)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating uploads: %w", err)
	}

	return result, nil
}

// PruneSuperseded deletes batches that are no longer the latest for their
// (user, filename). ReplaceBatch already deletes on re-upload; this sweeps
// anything left behind by interrupted replacements.
func (r *Repository) PruneSuperseded() (int64, error) {
	query := `DELETE FROM uploads WHERE id IN (
		SELECT id FROM (
			SELECT id, ROW_NUMBER() OVER (
				PARTITION BY user, filename
				ORDER BY created_at DESC, rowid DESC
			) AS rn
			FROM uploads
		) WHERE rn > 1
	)`

	result, err := r.db.Exec(query)
	if err != nil {
		return 0, fmt.Errorf("failed to prune superseded uploads: %w", err)
	}

	pruned, _ := result.RowsAffected()
	if pruned > 0 {
		r.log.Info().Int64("pruned", pruned).Msg("Superseded upload batches pruned")
	}
	return pruned, nil
}
