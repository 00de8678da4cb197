package contracts

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// PGRepo implements Repo using Postgres.
type PGRepo struct {
	DB *sql.DB
}

const contractColumns = `id, owner_id, file_name, mime_type, size_bytes, storage_provider, storage_key, extracted_text_key, extracted_at, created_at`

func (r *PGRepo) Create(ctx context.Context, c Contract) error {
	const query = `
INSERT INTO contracts (` + contractColumns + `)
VALUES ($1, $2, $3, $4, $5, $6, $7, NULL, NULL, $8)`

	provider := c.StorageProvider
	if provider == "" {
		provider = "local"
	}
	_, err := r.DB.ExecContext(ctx, query,
		c.ID,
		c.OwnerID,
		c.FileName,
		c.MimeType,
		c.SizeBytes,
		provider,
		c.StorageKey,
		c.CreatedAt,
	)
	return err
}

func (r *PGRepo) GetByID(ctx context.Context, ownerID, contractID string) (Contract, error) {
	const query = `
SELECT ` + contractColumns + `
FROM contracts
WHERE owner_id = $1 AND id = $2
LIMIT 1`
	c, err := scanContract(r.DB.QueryRowContext(ctx, query, ownerID, contractID))
	if errors.Is(err, sql.ErrNoRows) {
		return Contract{}, ErrNotFound
	}
	return c, err
}

// ListByOwner lists contracts newest first.
func (r *PGRepo) ListByOwner(ctx context.Context, ownerID string, limit, offset int) ([]Contract, error) {
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}
	const query = `
SELECT ` + contractColumns + `
FROM contracts
WHERE owner_id = $1
ORDER BY created_at DESC
LIMIT $2 OFFSET $3`

	rows, err := r.DB.QueryContext(ctx, query, ownerID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []Contract{}
	for rows.Next() {
		c, err := scanContract(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (r *PGRepo) UpdateExtraction(ctx context.Context, ownerID, contractID, extractedKey string, extractedAt time.Time) error {
	const query = `
UPDATE contracts
SET extracted_text_key = $1, extracted_at = $2
WHERE owner_id = $3 AND id = $4 AND extracted_text_key IS NULL`
	_, err := r.DB.ExecContext(ctx, query, extractedKey, extractedAt, ownerID, contractID)
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanContract(row rowScanner) (Contract, error) {
	var c Contract
	var provider, key, extractedKey sql.NullString
	var extractedAt sql.NullTime
	if err := row.Scan(
		&c.ID,
		&c.OwnerID,
		&c.FileName,
		&c.MimeType,
		&c.SizeBytes,
		&provider,
		&key,
		&extractedKey,
		&extractedAt,
		&c.CreatedAt,
	); err != nil {
		return Contract{}, err
	}
	c.StorageProvider = provider.String
	c.StorageKey = key.String
	c.ExtractedTextKey = extractedKey.String
	if extractedAt.Valid {
		t := extractedAt.Time
		c.ExtractedAt = &t
	}
	return c, nil
}

var _ Repo = (*PGRepo)(nil)
