package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// SQLiteKVStore is a small key/value table used for process state that
// should survive a restart (persisted round-robin counters, any other
// singleton value a future admin surface wants to expose).
type SQLiteKVStore struct {
	db     *sql.DB
	logger *zap.Logger
}

func NewSQLiteKVStore(db *sql.DB, logger *zap.Logger) *SQLiteKVStore {
	return &SQLiteKVStore{db: db, logger: logger}
}

func (r *SQLiteKVStore) Set(ctx context.Context, key, value string) error {
	now := time.Now().UTC().Format("2006-01-02 15:04:05")

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO shared_state (key, value, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			value = excluded.value,
			updated_at = excluded.updated_at
	`, key, value, now)
	if err != nil {
		return fmt.Errorf("set kv state: %w", err)
	}
	return nil
}

func (r *SQLiteKVStore) Get(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := r.db.QueryRowContext(ctx, `
		SELECT value FROM shared_state WHERE key = ?
	`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get kv state: %w", err)
	}
	return value, true, nil
}

func (r *SQLiteKVStore) Delete(ctx context.Context, key string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM shared_state WHERE key = ?`, key); err != nil {
		return fmt.Errorf("delete kv state: %w", err)
	}
	return nil
}

func (r *SQLiteKVStore) All(ctx context.Context) (map[string]string, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT key, value FROM shared_state ORDER BY key ASC`)
	if err != nil {
		return nil, fmt.Errorf("list kv state: %w", err)
	}
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return nil, fmt.Errorf("scan kv state: %w", err)
		}
		out[key] = value
	}
	return out, rows.Err()
}
