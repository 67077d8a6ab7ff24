package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/user/llm-proxy-go/internal/models"
)

// SQLAPIKeyRepository implements APIKeyRepository using database/sql. Only
// the key's hash and display prefix are ever persisted.
type SQLAPIKeyRepository struct {
	db *sql.DB
}

func NewAPIKeyRepository(db *sql.DB) *SQLAPIKeyRepository {
	return &SQLAPIKeyRepository{db: db}
}

const apiKeyColumns = `id, key_name, key_hash, key_prefix, is_active, created_at, last_used_at`

func (r *SQLAPIKeyRepository) FindByKeyHash(ctx context.Context, keyHash string) (*models.APIKey, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+apiKeyColumns+` FROM api_keys WHERE key_hash = ?`, keyHash)
	k, err := scanAPIKey(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return k, err
}

func (r *SQLAPIKeyRepository) FindByID(ctx context.Context, id int64) (*models.APIKey, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+apiKeyColumns+` FROM api_keys WHERE id = ?`, id)
	k, err := scanAPIKey(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return k, err
}

func (r *SQLAPIKeyRepository) FindAll(ctx context.Context) ([]*models.APIKey, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+apiKeyColumns+` FROM api_keys ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*models.APIKey
	for rows.Next() {
		k, err := scanAPIKey(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, k)
	}
	return out, rows.Err()
}

func (r *SQLAPIKeyRepository) Insert(ctx context.Context, key *models.APIKey) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		`INSERT INTO api_keys (key_name, key_hash, key_prefix, is_active) VALUES (?, ?, ?, ?)`,
		key.KeyName, key.KeyHash, key.KeyPrefix, boolToInt(key.IsActive),
	)
	if err != nil {
		return 0, err
	}
	return result.LastInsertId()
}

func (r *SQLAPIKeyRepository) UpdateLastUsed(ctx context.Context, id int64) error {
	_, err := r.db.ExecContext(ctx, `UPDATE api_keys SET last_used_at = ? WHERE id = ?`, time.Now().UTC(), id)
	return err
}

func (r *SQLAPIKeyRepository) SetActive(ctx context.Context, id int64, active bool) error {
	_, err := r.db.ExecContext(ctx, `UPDATE api_keys SET is_active = ? WHERE id = ?`, boolToInt(active), id)
	return err
}

func (r *SQLAPIKeyRepository) Delete(ctx context.Context, id int64) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM api_keys WHERE id = ?`, id)
	return err
}

func scanAPIKey(row rowScanner) (*models.APIKey, error) {
	var k models.APIKey
	var isActive int
	var lastUsedAt sql.NullTime

	err := row.Scan(&k.ID, &k.KeyName, &k.KeyHash, &k.KeyPrefix, &isActive, &k.CreatedAt, &lastUsedAt)
	if err != nil {
		return nil, err
	}

	k.IsActive = isActive != 0
	if lastUsedAt.Valid {
		k.LastUsedAt = &lastUsedAt.Time
	}
	return &k, nil
}
