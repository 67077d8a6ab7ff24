// Package testutil provides test utilities and fixtures for the LLM proxy gateway.
package testutil

import (
	"database/sql"
	"testing"

	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"
)

// NewTestDB creates an in-memory SQLite database with the full gateway
// schema for testing. The database is automatically closed when the test
// completes.
func NewTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite", ":memory:?_foreign_keys=ON")
	require.NoError(t, err, "failed to open test database")

	t.Cleanup(func() {
		db.Close()
	})

	err = createSchema(db)
	require.NoError(t, err, "failed to create schema")

	return db
}

// createSchema creates all tables for testing.
func createSchema(db *sql.DB) error {
	schema := `
-- Upstream providers.
CREATE TABLE IF NOT EXISTS providers (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    name TEXT UNIQUE NOT NULL,
    base_url TEXT NOT NULL,
    protocol TEXT NOT NULL DEFAULT 'openai',
    api_type TEXT NOT NULL DEFAULT 'chat',
    api_key TEXT NOT NULL DEFAULT '',
    extra_headers TEXT DEFAULT '{}',
    proxy_enabled INTEGER DEFAULT 0,
    proxy_url TEXT DEFAULT '',
    is_active INTEGER DEFAULT 1,
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);

-- Requested-model routing entries.
CREATE TABLE IF NOT EXISTS model_mappings (
    requested_model TEXT PRIMARY KEY,
    strategy TEXT NOT NULL DEFAULT 'round_robin',
    matching_rules TEXT DEFAULT NULL,
    capabilities TEXT DEFAULT '',
    is_active INTEGER DEFAULT 1,
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);

-- Candidate providers for a model mapping.
CREATE TABLE IF NOT EXISTS model_mapping_providers (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    requested_model TEXT NOT NULL,
    provider_id INTEGER NOT NULL,
    target_model_name TEXT NOT NULL,
    provider_rules TEXT DEFAULT NULL,
    priority INTEGER DEFAULT 0,
    weight INTEGER DEFAULT 1,
    is_active INTEGER DEFAULT 1,
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    FOREIGN KEY (requested_model) REFERENCES model_mappings(requested_model) ON DELETE CASCADE,
    FOREIGN KEY (provider_id) REFERENCES providers(id) ON DELETE CASCADE
);

-- Ingress-authenticating API keys.
CREATE TABLE IF NOT EXISTS api_keys (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    key_name TEXT NOT NULL,
    key_hash TEXT UNIQUE NOT NULL,
    key_prefix TEXT NOT NULL,
    is_active INTEGER DEFAULT 1,
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    last_used_at TIMESTAMP
);

-- Completed/failed request logs.
CREATE TABLE IF NOT EXISTS request_logs (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    trace_id TEXT UNIQUE NOT NULL,
    request_time TIMESTAMP NOT NULL,
    api_key_id INTEGER,
    api_key_name TEXT DEFAULT '',
    requested_model TEXT NOT NULL,
    target_model TEXT DEFAULT '',
    provider_id INTEGER,
    provider_name TEXT DEFAULT '',
    retry_count INTEGER DEFAULT 0,
    matched_provider_count INTEGER DEFAULT 0,
    first_byte_delay_ms INTEGER,
    total_time_ms INTEGER DEFAULT 0,
    input_tokens INTEGER DEFAULT 0,
    output_tokens INTEGER DEFAULT 0,
    request_headers TEXT DEFAULT '{}',
    request_body TEXT DEFAULT '',
    response_status INTEGER,
    response_body TEXT DEFAULT '',
    error_info TEXT DEFAULT '',
    is_stream INTEGER DEFAULT 0,
    request_protocol TEXT DEFAULT '',
    supplier_protocol TEXT DEFAULT '',
    converted_request_body TEXT DEFAULT '',
    upstream_response_body TEXT DEFAULT '',
    response_headers TEXT DEFAULT '{}',
    FOREIGN KEY (api_key_id) REFERENCES api_keys(id) ON DELETE SET NULL,
    FOREIGN KEY (provider_id) REFERENCES providers(id) ON DELETE SET NULL
);

-- Generic persisted key/value state (e.g. round-robin counters).
CREATE TABLE IF NOT EXISTS shared_state (
    key TEXT PRIMARY KEY,
    value TEXT NOT NULL,
    updated_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_model_mapping_providers_model ON model_mapping_providers(requested_model);
CREATE INDEX IF NOT EXISTS idx_model_mapping_providers_provider ON model_mapping_providers(provider_id);
CREATE INDEX IF NOT EXISTS idx_api_keys_key_hash ON api_keys(key_hash);
CREATE INDEX IF NOT EXISTS idx_request_logs_trace_id ON request_logs(trace_id);
CREATE INDEX IF NOT EXISTS idx_request_logs_request_time ON request_logs(request_time);
CREATE INDEX IF NOT EXISTS idx_request_logs_requested_model ON request_logs(requested_model);
`
	_, err := db.Exec(schema)
	return err
}

// SeedTestData populates the database with a small, consistent fixture set:
// two providers behind one model mapping, plus one active API key.
func SeedTestData(t *testing.T, db *sql.DB) {
	t.Helper()

	_, err := db.Exec(`
		INSERT INTO providers (name, base_url, protocol, api_type, api_key, is_active)
		VALUES
			('openai-primary', 'https://api.openai.com', 'openai', 'chat', 'sk-test-key-1', 1),
			('openai-backup', 'https://api.openai.com', 'openai', 'chat', 'sk-test-key-2', 1),
			('disabled-provider', 'https://disabled.example.com', 'openai', 'chat', 'sk-disabled', 0)
	`)
	require.NoError(t, err)

	_, err = db.Exec(`
		INSERT INTO model_mappings (requested_model, strategy, is_active)
		VALUES ('gpt-4', 'round_robin', 1)
	`)
	require.NoError(t, err)

	_, err = db.Exec(`
		INSERT INTO model_mapping_providers (requested_model, provider_id, target_model_name, priority, weight, is_active)
		VALUES
			('gpt-4', 1, 'gpt-4', 0, 1, 1),
			('gpt-4', 2, 'gpt-4', 1, 1, 1)
	`)
	require.NoError(t, err)

	_, err = db.Exec(`
		INSERT INTO api_keys (key_name, key_hash, key_prefix, is_active)
		VALUES ('test-key', 'hash_test_key_1', 'lgw-test', 1)
	`)
	require.NoError(t, err)
}
