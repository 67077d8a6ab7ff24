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

// SQLRequestLogRepository implements RequestLogRepository using
// database/sql.
type SQLRequestLogRepository struct {
	db *sql.DB
}

func NewRequestLogRepository(db *sql.DB) *SQLRequestLogRepository {
	return &SQLRequestLogRepository{db: db}
}

func (r *SQLRequestLogRepository) Insert(ctx context.Context, e *models.RequestLogEntry) (int64, error) {
	headers, err := json.Marshal(e.RequestHeaders)
	if err != nil {
		return 0, fmt.Errorf("encode request_headers: %w", err)
	}
	responseHeaders, err := json.Marshal(e.ResponseHeaders)
	if err != nil {
		return 0, fmt.Errorf("encode response_headers: %w", err)
	}

	result, err := r.db.ExecContext(ctx, `
		INSERT INTO request_logs (
			trace_id, request_time, api_key_id, api_key_name, requested_model, target_model,
			provider_id, provider_name, retry_count, matched_provider_count, first_byte_delay_ms,
			total_time_ms, input_tokens, output_tokens, request_headers, request_body,
			response_status, response_body, error_info, is_stream, request_protocol,
			supplier_protocol, converted_request_body, upstream_response_body, response_headers
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.TraceID, e.RequestTime, e.APIKeyID, e.APIKeyName, e.RequestedModel, e.TargetModel,
		e.ProviderID, e.ProviderName, e.RetryCount, e.MatchedProviderCount, e.FirstByteDelayMS,
		e.TotalTimeMS, e.InputTokens, e.OutputTokens, string(headers), e.RequestBody,
		e.ResponseStatus, e.ResponseBody, e.ErrorInfo, boolToInt(e.IsStream), e.RequestProtocol,
		e.SupplierProtocol, e.ConvertedRequestBody, e.UpstreamResponseBody, string(responseHeaders),
	)
	if err != nil {
		return 0, err
	}
	return result.LastInsertId()
}

const requestLogColumns = `
	id, trace_id, request_time, api_key_id, api_key_name, requested_model, target_model,
	provider_id, provider_name, retry_count, matched_provider_count, first_byte_delay_ms,
	total_time_ms, input_tokens, output_tokens, request_headers, request_body,
	response_status, response_body, error_info, is_stream, request_protocol,
	supplier_protocol, converted_request_body, upstream_response_body, response_headers`

func (r *SQLRequestLogRepository) GetByID(ctx context.Context, id int64) (*models.RequestLog, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+requestLogColumns+` FROM request_logs WHERE id = ?`, id)
	log, err := scanRequestLog(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return log, err
}

// List applies query's filters and pagination, returning the matching page
// plus the total row count across all pages.
func (r *SQLRequestLogRepository) List(ctx context.Context, query models.RequestLogQuery) ([]*models.RequestLog, int64, error) {
	where, args := buildRequestLogFilter(query)

	total, err := r.countRequestLogs(ctx, where, args)
	if err != nil {
		return nil, 0, err
	}
	if total == 0 {
		return nil, 0, nil
	}

	page := query.Page
	if page < 1 {
		page = 1
	}
	pageSize := query.PageSize
	if pageSize <= 0 {
		pageSize = 20
	}
	if pageSize > 100 {
		pageSize = 100
	}

	orderCol := sanitizeSortColumn(query.SortBy)
	orderDir := "DESC"
	if strings.EqualFold(query.SortOrder, "asc") {
		orderDir = "ASC"
	}

	sql := fmt.Sprintf(`SELECT %s FROM request_logs %s ORDER BY %s %s LIMIT ? OFFSET ?`,
		requestLogColumns, where, orderCol, orderDir)
	queryArgs := append(append([]any{}, args...), pageSize, (page-1)*pageSize)

	rows, err := r.db.QueryContext(ctx, sql, queryArgs...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []*models.RequestLog
	for rows.Next() {
		log, err := scanRequestLog(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, log)
	}
	return out, total, rows.Err()
}

func (r *SQLRequestLogRepository) countRequestLogs(ctx context.Context, where string, args []any) (int64, error) {
	var total int64
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM request_logs `+where, args...).Scan(&total)
	return total, err
}

func (r *SQLRequestLogRepository) GetStatistics(ctx context.Context, query models.RequestLogQuery) (*LogStatistics, error) {
	where, args := buildRequestLogFilter(query)

	row := r.db.QueryRowContext(ctx, fmt.Sprintf(`
		SELECT
			COUNT(*),
			COUNT(CASE WHEN response_status >= 200 AND response_status < 400 THEN 1 END),
			COUNT(CASE WHEN response_status >= 400 OR response_status IS NULL THEN 1 END),
			COALESCE(SUM(input_tokens), 0),
			COALESCE(SUM(output_tokens), 0),
			COALESCE(AVG(total_time_ms), 0)
		FROM request_logs %s`, where), args...)

	var stats LogStatistics
	if err := row.Scan(
		&stats.TotalRequests, &stats.SuccessCount, &stats.ErrorCount,
		&stats.TotalInputToks, &stats.TotalOutputTok, &stats.AvgTotalTimeMS,
	); err != nil {
		return nil, err
	}
	stats.AvgTotalTimeMS = roundToPlaces(stats.AvgTotalTimeMS, 2)
	return &stats, nil
}

func (r *SQLRequestLogRepository) DeleteOlderThan(ctx context.Context, days int) (int64, error) {
	cutoff := time.Now().UTC().AddDate(0, 0, -days)
	result, err := r.db.ExecContext(ctx, `DELETE FROM request_logs WHERE request_time < ?`, cutoff)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

var requestLogSortColumns = map[string]string{
	"request_time": "request_time",
	"total_time_ms": "total_time_ms",
	"retry_count":   "retry_count",
	"input_tokens":  "input_tokens",
	"output_tokens": "output_tokens",
}

// sanitizeSortColumn maps an untrusted sort-by field to a known column name,
// defaulting to request_time — this is string-concatenated directly into
// the ORDER BY clause, so it must never pass through user input unchecked.
func sanitizeSortColumn(sortBy string) string {
	if col, ok := requestLogSortColumns[sortBy]; ok {
		return col
	}
	return "request_time"
}

func buildRequestLogFilter(q models.RequestLogQuery) (string, []any) {
	var clauses []string
	var args []any

	if q.StartTime != nil {
		clauses = append(clauses, "request_time >= ?")
		args = append(args, *q.StartTime)
	}
	if q.EndTime != nil {
		clauses = append(clauses, "request_time <= ?")
		args = append(args, *q.EndTime)
	}
	if q.RequestedModel != nil {
		clauses = append(clauses, "requested_model = ?")
		args = append(args, *q.RequestedModel)
	}
	if q.ProviderName != nil {
		clauses = append(clauses, "provider_name = ?")
		args = append(args, *q.ProviderName)
	}
	if q.StatusMin != nil {
		clauses = append(clauses, "response_status >= ?")
		args = append(args, *q.StatusMin)
	}
	if q.StatusMax != nil {
		clauses = append(clauses, "response_status <= ?")
		args = append(args, *q.StatusMax)
	}
	if q.HasError != nil {
		if *q.HasError {
			clauses = append(clauses, "error_info != ''")
		} else {
			clauses = append(clauses, "error_info = ''")
		}
	}
	if q.APIKeyID != nil {
		clauses = append(clauses, "api_key_id = ?")
		args = append(args, *q.APIKeyID)
	}
	if q.RetryCountMin != nil {
		clauses = append(clauses, "retry_count >= ?")
		args = append(args, *q.RetryCountMin)
	}
	if q.RetryCountMax != nil {
		clauses = append(clauses, "retry_count <= ?")
		args = append(args, *q.RetryCountMax)
	}
	if q.InputTokensMin != nil {
		clauses = append(clauses, "input_tokens >= ?")
		args = append(args, *q.InputTokensMin)
	}
	if q.OutputTokensMin != nil {
		clauses = append(clauses, "output_tokens >= ?")
		args = append(args, *q.OutputTokensMin)
	}

	if len(clauses) == 0 {
		return "", nil
	}
	return "WHERE " + strings.Join(clauses, " AND "), args
}

func scanRequestLog(row rowScanner) (*models.RequestLog, error) {
	var l models.RequestLog
	var headers, responseHeaders string
	var isStream int

	err := row.Scan(
		&l.ID, &l.TraceID, &l.RequestTime, &l.APIKeyID, &l.APIKeyName, &l.RequestedModel, &l.TargetModel,
		&l.ProviderID, &l.ProviderName, &l.RetryCount, &l.MatchedProviderCount, &l.FirstByteDelayMS,
		&l.TotalTimeMS, &l.InputTokens, &l.OutputTokens, &headers, &l.RequestBody,
		&l.ResponseStatus, &l.ResponseBody, &l.ErrorInfo, &isStream, &l.RequestProtocol,
		&l.SupplierProtocol, &l.ConvertedRequestBody, &l.UpstreamResponseBody, &responseHeaders,
	)
	if err != nil {
		return nil, err
	}

	l.IsStream = isStream != 0

	if headers != "" {
		if err := json.Unmarshal([]byte(headers), &l.RequestHeaders); err != nil {
			return nil, fmt.Errorf("decode request_headers for log %d: %w", l.ID, err)
		}
	}
	if responseHeaders != "" {
		if err := json.Unmarshal([]byte(responseHeaders), &l.ResponseHeaders); err != nil {
			return nil, fmt.Errorf("decode response_headers for log %d: %w", l.ID, err)
		}
	}

	return &l, nil
}
