package positions

// Upload is one uploaded batch of position snapshots. A re-upload of the same
// (user, filename) replaces the prior batch atomically.
type Upload struct {
	ID         string `json:"id"`
	User       string `json:"user"`
	Filename   string `json:"filename"`
	CreatedAt  int64  `json:"created_at"`
	EntryCount int    `json:"entry_count"`
}

// PositionRow is a raw position snapshot within a batch. Quantity and
// CurrentValue keep the currency formatting of the upload ("$1,234.56");
// parsing happens at analysis time, leniently.
type PositionRow struct {
	ID            int64  `json:"id"`
	UploadID      string `json:"upload_id"`
	AccountNumber string `json:"account_number"`
	Symbol        string `json:"symbol"`
	Quantity      string `json:"quantity"`
	CurrentValue  string `json:"current_value"`
}

// PositionInput is the ingest shape for a single position row.
type PositionInput struct {
	AccountNumber string `json:"account_number"`
	Symbol        string `json:"symbol"`
	Quantity      string `json:"quantity"`
	CurrentValue  string `json:"current_value"`
}
