package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/user/llm-proxy-go/internal/models"
	"github.com/user/llm-proxy-go/internal/security"
)

// SQLProviderRepository implements ProviderRepository using database/sql.
// APIKey values are transparently encrypted on write and decrypted on read
// through enc, so every other layer only ever sees plaintext.
type SQLProviderRepository struct {
	db  *sql.DB
	enc *security.Encryptor
}

func NewProviderRepository(db *sql.DB, enc *security.Encryptor) *SQLProviderRepository {
	return &SQLProviderRepository{db: db, enc: enc}
}

const providerColumns = `id, name, base_url, protocol, api_type, api_key, extra_headers,
	proxy_enabled, proxy_url, is_active, created_at, updated_at`

func (r *SQLProviderRepository) FindByID(ctx context.Context, id int64) (*models.Provider, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+providerColumns+` FROM providers WHERE id = ?`, id)
	p, err := r.scanProvider(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return p, err
}

func (r *SQLProviderRepository) FindAllActive(ctx context.Context) ([]*models.Provider, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+providerColumns+` FROM providers WHERE is_active = 1 ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return r.scanProviders(rows)
}

func (r *SQLProviderRepository) FindAll(ctx context.Context) ([]*models.Provider, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+providerColumns+` FROM providers ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return r.scanProviders(rows)
}

func (r *SQLProviderRepository) Insert(ctx context.Context, p *models.Provider) (int64, error) {
	extraHeaders, err := json.Marshal(p.ExtraHeaders)
	if err != nil {
		return 0, fmt.Errorf("encode extra_headers: %w", err)
	}

	encryptedKey, err := r.enc.Encrypt(p.APIKey)
	if err != nil {
		return 0, fmt.Errorf("encrypt api_key: %w", err)
	}

	result, err := r.db.ExecContext(ctx,
		`INSERT INTO providers (name, base_url, protocol, api_type, api_key, extra_headers, proxy_enabled, proxy_url, is_active)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.Name, p.BaseURL, string(p.Protocol), string(p.APIType), encryptedKey, string(extraHeaders),
		boolToInt(p.ProxyEnabled), p.ProxyURL, boolToInt(p.IsActive),
	)
	if err != nil {
		return 0, err
	}
	return result.LastInsertId()
}

// Update applies a partial set of column updates. Keys not present in
// updates are left untouched. An "api_key" value is encrypted before
// storage, same as Insert.
func (r *SQLProviderRepository) Update(ctx context.Context, id int64, updates map[string]any) error {
	if len(updates) == 0 {
		return nil
	}

	setClauses := make([]string, 0, len(updates)+1)
	args := make([]any, 0, len(updates)+1)

	for col, val := range updates {
		switch col {
		case "api_key":
			s, _ := val.(string)
			encrypted, err := r.enc.Encrypt(s)
			if err != nil {
				return fmt.Errorf("encrypt api_key: %w", err)
			}
			val = encrypted
		case "extra_headers":
			if m, ok := val.(map[string]string); ok {
				b, err := json.Marshal(m)
				if err != nil {
					return fmt.Errorf("encode extra_headers: %w", err)
				}
				val = string(b)
			}
		case "is_active", "proxy_enabled":
			if b, ok := val.(bool); ok {
				val = boolToInt(b)
			}
		}
		setClauses = append(setClauses, col+" = ?")
		args = append(args, val)
	}

	setClauses = append(setClauses, "updated_at = ?")
	args = append(args, time.Now().UTC())
	args = append(args, id)

	query := fmt.Sprintf("UPDATE providers SET %s WHERE id = ?", strings.Join(setClauses, ", "))
	_, err := r.db.ExecContext(ctx, query, args...)
	return err
}

func (r *SQLProviderRepository) Delete(ctx context.Context, id int64) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM providers WHERE id = ?`, id)
	return err
}

func (r *SQLProviderRepository) scanProviders(rows *sql.Rows) ([]*models.Provider, error) {
	var out []*models.Provider
	for rows.Next() {
		p, err := r.scanProvider(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func (r *SQLProviderRepository) scanProvider(row rowScanner) (*models.Provider, error) {
	var p models.Provider
	var protocol, apiType, encryptedKey, extraHeaders string
	var proxyEnabled, isActive int

	err := row.Scan(
		&p.ID, &p.Name, &p.BaseURL, &protocol, &apiType, &encryptedKey, &extraHeaders,
		&proxyEnabled, &p.ProxyURL, &isActive, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	p.Protocol = models.Protocol(protocol)
	p.APIType = models.APIType(apiType)
	p.ProxyEnabled = proxyEnabled != 0
	p.IsActive = isActive != 0

	apiKey, err := r.enc.Decrypt(encryptedKey)
	if err != nil {
		return nil, fmt.Errorf("decrypt api_key for provider %d: %w", p.ID, err)
	}
	p.APIKey = apiKey

	if extraHeaders != "" {
		if err := json.Unmarshal([]byte(extraHeaders), &p.ExtraHeaders); err != nil {
			return nil, fmt.Errorf("decode extra_headers for provider %d: %w", p.ID, err)
		}
	}

	return &p, nil
}
