package auditlog

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const pgSelectColumns = `SELECT id::text, timestamp, stream_id, COALESCE(record_id, ''), seq,
	COALESCE(ruleset_version, ''), is_pii, failed, finding_count, data FROM audit_records`

// PostgreSQLReader implements Reader for PostgreSQL databases.
type PostgreSQLReader struct {
	pool *pgxpool.Pool
}

// NewPostgreSQLReader creates a new PostgreSQL audit reader.
func NewPostgreSQLReader(pool *pgxpool.Pool) (*PostgreSQLReader, error) {
	if pool == nil {
		return nil, fmt.Errorf("connection pool is required")
	}
	return &PostgreSQLReader{pool: pool}, nil
}

// GetRecords returns a paginated list of audit entries.
func (r *PostgreSQLReader) GetRecords(ctx context.Context, params RecordQueryParams) (*RecordListResult, error) {
	limit, offset := clampLimitOffset(params.Limit, params.Offset)

	conditions, args, argIdx := pgDateRangeConditions(params.QueryParams, 1)

	add := func(column string, value any) {
		conditions = append(conditions, fmt.Sprintf("%s = $%d", column, argIdx))
		args = append(args, value)
		argIdx++
	}
	if params.StreamID != "" {
		add("stream_id", params.StreamID)
	}
	if params.RecordID != "" {
		add("record_id", params.RecordID)
	}
	if params.RulesetVersion != "" {
		add("ruleset_version", params.RulesetVersion)
	}
	if params.IsPII != nil {
		add("is_pii", *params.IsPII)
	}
	if params.Failed != nil {
		add("failed", *params.Failed)
	}

	where := buildWhereClause(conditions)

	var total int
	countQuery := `SELECT COUNT(*) FROM audit_records` + where
	if err := r.pool.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("failed to count audit records: %w", err)
	}

	dataQuery := fmt.Sprintf(`%s%s ORDER BY timestamp DESC, seq DESC LIMIT $%d OFFSET $%d`,
		pgSelectColumns, where, argIdx, argIdx+1)
	dataArgs := append(append([]any(nil), args...), limit, offset)

	entries, err := r.query(ctx, dataQuery, dataArgs...)
	if err != nil {
		return nil, err
	}

	return &RecordListResult{
		Entries: entries,
		Total:   total,
		Limit:   limit,
		Offset:  offset,
	}, nil
}

// GetRecordByID returns a single audit entry by ID.
func (r *PostgreSQLReader) GetRecordByID(ctx context.Context, id string) (*LogEntry, error) {
	entries, err := r.query(ctx, pgSelectColumns+` WHERE id::text = $1 LIMIT 1`, id)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, nil
	}
	return &entries[0], nil
}

// GetStream returns the entries of one stream ordered by seq.
func (r *PostgreSQLReader) GetStream(ctx context.Context, streamID string, limit int) (*StreamResult, error) {
	entries, err := r.query(ctx, pgSelectColumns+` WHERE stream_id = $1 ORDER BY seq ASC LIMIT $2`,
		streamID, clampStreamLimit(limit))
	if err != nil {
		return nil, err
	}
	return &StreamResult{StreamID: streamID, Entries: entries}, nil
}

func (r *PostgreSQLReader) query(ctx context.Context, query string, args ...any) ([]LogEntry, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit records: %w", err)
	}
	defer rows.Close()

	entries := make([]LogEntry, 0)
	for rows.Next() {
		e, err := scanPGLogEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating audit record rows: %w", err)
	}
	return entries, nil
}

func scanPGLogEntry(rows pgx.Rows) (*LogEntry, error) {
	var e LogEntry
	var dataJSON []byte

	if err := rows.Scan(&e.ID, &e.Timestamp, &e.StreamID, &e.RecordID, &e.Seq, &e.RulesetVersion,
		&e.IsPII, &e.Failed, &e.FindingCount, &dataJSON); err != nil {
		return nil, fmt.Errorf("failed to scan audit record row: %w", err)
	}

	if len(dataJSON) > 0 {
		var data LogData
		if err := json.Unmarshal(dataJSON, &data); err != nil {
			slog.Warn("failed to unmarshal audit data JSON", "id", e.ID, "error", err)
		} else {
			e.Data = &data
		}
	}

	return &e, nil
}

func pgDateRangeConditions(params QueryParams, argIdx int) (conditions []string, args []any, nextIdx int) {
	nextIdx = argIdx
	if !params.StartDate.IsZero() {
		conditions = append(conditions, fmt.Sprintf("timestamp >= $%d", nextIdx))
		args = append(args, params.StartDate.UTC())
		nextIdx++
	}
	if !params.EndDate.IsZero() {
		conditions = append(conditions, fmt.Sprintf("timestamp < $%d", nextIdx))
		args = append(args, params.EndDate.AddDate(0, 0, 1).UTC())
		nextIdx++
	}
	return conditions, args, nextIdx
}
