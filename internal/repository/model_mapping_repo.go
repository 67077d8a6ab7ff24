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
)

// SQLModelMappingRepository implements ModelMappingRepository using
// database/sql.
type SQLModelMappingRepository struct {
	db *sql.DB
}

func NewModelMappingRepository(db *sql.DB) *SQLModelMappingRepository {
	return &SQLModelMappingRepository{db: db}
}

const modelMappingColumns = `requested_model, strategy, matching_rules, capabilities, is_active, created_at, updated_at`

func (r *SQLModelMappingRepository) FindByRequestedModel(ctx context.Context, requestedModel string) (*models.ModelMapping, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+modelMappingColumns+` FROM model_mappings WHERE requested_model = ?`, requestedModel)
	m, err := scanModelMapping(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return m, err
}

func (r *SQLModelMappingRepository) FindAll(ctx context.Context) ([]*models.ModelMapping, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+modelMappingColumns+` FROM model_mappings ORDER BY requested_model`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*models.ModelMapping
	for rows.Next() {
		m, err := scanModelMapping(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// Upsert inserts a new model mapping or replaces an existing one's mutable
// fields, keyed by requested_model.
func (r *SQLModelMappingRepository) Upsert(ctx context.Context, m *models.ModelMapping) error {
	rulesJSON, err := encodeRuleSet(m.MatchingRules)
	if err != nil {
		return fmt.Errorf("encode matching_rules: %w", err)
	}

	_, err = r.db.ExecContext(ctx,
		`INSERT INTO model_mappings (requested_model, strategy, matching_rules, capabilities, is_active)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(requested_model) DO UPDATE SET
			strategy = excluded.strategy,
			matching_rules = excluded.matching_rules,
			capabilities = excluded.capabilities,
			is_active = excluded.is_active,
			updated_at = CURRENT_TIMESTAMP`,
		m.RequestedModel, m.Strategy, rulesJSON, m.Capabilities, boolToInt(m.IsActive),
	)
	return err
}

func (r *SQLModelMappingRepository) Delete(ctx context.Context, requestedModel string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM model_mappings WHERE requested_model = ?`, requestedModel)
	return err
}

const modelMappingProviderColumns = `id, requested_model, provider_id, target_model_name, provider_rules, priority, weight, is_active, created_at, updated_at`

func (r *SQLModelMappingRepository) ListProvidersFor(ctx context.Context, requestedModel string) ([]*models.ModelMappingProvider, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+modelMappingProviderColumns+` FROM model_mapping_providers WHERE requested_model = ? ORDER BY priority, provider_id`,
		requestedModel)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*models.ModelMappingProvider
	for rows.Next() {
		mp, err := scanModelMappingProvider(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, mp)
	}
	return out, rows.Err()
}

func (r *SQLModelMappingRepository) AddProvider(ctx context.Context, mp *models.ModelMappingProvider) (int64, error) {
	rulesJSON, err := encodeRuleSet(mp.ProviderRules)
	if err != nil {
		return 0, fmt.Errorf("encode provider_rules: %w", err)
	}

	result, err := r.db.ExecContext(ctx,
		`INSERT INTO model_mapping_providers (requested_model, provider_id, target_model_name, provider_rules, priority, weight, is_active)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		mp.RequestedModel, mp.ProviderID, mp.TargetModelName, rulesJSON, mp.Priority, mp.Weight, boolToInt(mp.IsActive),
	)
	if err != nil {
		return 0, err
	}
	return result.LastInsertId()
}

func (r *SQLModelMappingRepository) UpdateProvider(ctx context.Context, id int64, updates map[string]any) error {
	if len(updates) == 0 {
		return nil
	}

	setClauses := make([]string, 0, len(updates)+1)
	args := make([]any, 0, len(updates)+1)

	for col, val := range updates {
		switch col {
		case "provider_rules":
			if rs, ok := val.(*models.RuleSet); ok {
				encoded, err := encodeRuleSet(rs)
				if err != nil {
					return fmt.Errorf("encode provider_rules: %w", err)
				}
				val = encoded
			}
		case "is_active":
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

	query := fmt.Sprintf("UPDATE model_mapping_providers SET %s WHERE id = ?", strings.Join(setClauses, ", "))
	_, err := r.db.ExecContext(ctx, query, args...)
	return err
}

func (r *SQLModelMappingRepository) RemoveProvider(ctx context.Context, id int64) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM model_mapping_providers WHERE id = ?`, id)
	return err
}

func encodeRuleSet(rs *models.RuleSet) (sql.NullString, error) {
	if rs == nil {
		return sql.NullString{}, nil
	}
	b, err := json.Marshal(rs)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(b), Valid: true}, nil
}

func decodeRuleSet(raw sql.NullString) (*models.RuleSet, error) {
	if !raw.Valid || raw.String == "" {
		return nil, nil
	}
	var rs models.RuleSet
	if err := json.Unmarshal([]byte(raw.String), &rs); err != nil {
		return nil, err
	}
	return &rs, nil
}

func scanModelMapping(row rowScanner) (*models.ModelMapping, error) {
	var m models.ModelMapping
	var rulesRaw sql.NullString
	var isActive int

	err := row.Scan(&m.RequestedModel, &m.Strategy, &rulesRaw, &m.Capabilities, &isActive, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		return nil, err
	}

	rules, err := decodeRuleSet(rulesRaw)
	if err != nil {
		return nil, fmt.Errorf("decode matching_rules for %q: %w", m.RequestedModel, err)
	}
	m.MatchingRules = rules
	m.IsActive = isActive != 0
	return &m, nil
}

func scanModelMappingProvider(row rowScanner) (*models.ModelMappingProvider, error) {
	var mp models.ModelMappingProvider
	var rulesRaw sql.NullString
	var isActive int

	err := row.Scan(&mp.ID, &mp.RequestedModel, &mp.ProviderID, &mp.TargetModelName, &rulesRaw,
		&mp.Priority, &mp.Weight, &isActive, &mp.CreatedAt, &mp.UpdatedAt)
	if err != nil {
		return nil, err
	}

	rules, err := decodeRuleSet(rulesRaw)
	if err != nil {
		return nil, fmt.Errorf("decode provider_rules for mapping_provider %d: %w", mp.ID, err)
	}
	mp.ProviderRules = rules
	mp.IsActive = isActive != 0
	return &mp, nil
}
