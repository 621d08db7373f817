package auditlog

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"
)

const sqliteSelectColumns = `SELECT id, timestamp, stream_id, record_id, seq, ruleset_version,
	is_pii, failed, finding_count, data FROM audit_records`

// SQLiteReader implements Reader for SQLite databases.
type SQLiteReader struct {
	db *sql.DB
}

// NewSQLiteReader creates a new SQLite audit reader.
func NewSQLiteReader(db *sql.DB) (*SQLiteReader, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}
	return &SQLiteReader{db: db}, nil
}

// GetRecords returns a paginated list of audit entries.
func (r *SQLiteReader) GetRecords(ctx context.Context, params RecordQueryParams) (*RecordListResult, error) {
	limit, offset := clampLimitOffset(params.Limit, params.Offset)

	conditions, args := sqliteDateRangeConditions(params.QueryParams)

	if params.StreamID != "" {
		conditions = append(conditions, "stream_id = ?")
		args = append(args, params.StreamID)
	}
	if params.RecordID != "" {
		conditions = append(conditions, "record_id = ?")
		args = append(args, params.RecordID)
	}
	if params.RulesetVersion != "" {
		conditions = append(conditions, "ruleset_version = ?")
		args = append(args, params.RulesetVersion)
	}
	if params.IsPII != nil {
		conditions = append(conditions, "is_pii = ?")
		args = append(args, boolToInt(*params.IsPII))
	}
	if params.Failed != nil {
		conditions = append(conditions, "failed = ?")
		args = append(args, boolToInt(*params.Failed))
	}

	where := buildWhereClause(conditions)

	// Count total
	var total int
	countQuery := "SELECT COUNT(*) FROM audit_records" + where
	if err := r.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("failed to count audit records: %w", err)
	}

	dataQuery := sqliteSelectColumns + where + ` ORDER BY timestamp DESC, seq DESC LIMIT ? OFFSET ?`
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
func (r *SQLiteReader) GetRecordByID(ctx context.Context, id string) (*LogEntry, error) {
	entries, err := r.query(ctx, sqliteSelectColumns+` WHERE id = ? LIMIT 1`, id)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, nil
	}
	return &entries[0], nil
}

// GetStream returns the entries of one stream ordered by seq.
func (r *SQLiteReader) GetStream(ctx context.Context, streamID string, limit int) (*StreamResult, error) {
	entries, err := r.query(ctx, sqliteSelectColumns+` WHERE stream_id = ? ORDER BY seq ASC LIMIT ?`,
		streamID, clampStreamLimit(limit))
	if err != nil {
		return nil, err
	}
	return &StreamResult{StreamID: streamID, Entries: entries}, nil
}

func (r *SQLiteReader) query(ctx context.Context, query string, args ...any) ([]LogEntry, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit records: %w", err)
	}
	defer rows.Close()

	entries := make([]LogEntry, 0)
	for rows.Next() {
		e, err := scanSQLiteLogEntry(rows)
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

func sqliteDateRangeConditions(params QueryParams) (conditions []string, args []any) {
	if !params.StartDate.IsZero() {
		conditions = append(conditions, "timestamp >= ?")
		args = append(args, params.StartDate.UTC().Format("2006-01-02"))
	}
	if !params.EndDate.IsZero() {
		conditions = append(conditions, "timestamp < ?")
		args = append(args, params.EndDate.AddDate(0, 0, 1).UTC().Format("2006-01-02"))
	}
	return conditions, args
}

func parseSQLTimestamp(ts string, entryID string) time.Time {
	if t, err := time.Parse(time.RFC3339Nano, ts); err == nil {
		return t
	}
	if t, err := time.Parse("2006-01-02 15:04:05.999999999-07:00", ts); err == nil {
		return t
	}
	if t, err := time.Parse("2006-01-02T15:04:05Z", ts); err == nil {
		return t
	}

	slog.Warn("failed to parse audit timestamp", "id", entryID, "raw_timestamp", ts)
	return time.Time{}
}

func scanSQLiteLogEntry(rows *sql.Rows) (*LogEntry, error) {
	var e LogEntry
	var ts string
	var recordID, version, dataJSON *string
	var isPII, failed int

	if err := rows.Scan(&e.ID, &ts, &e.StreamID, &recordID, &e.Seq, &version,
		&isPII, &failed, &e.FindingCount, &dataJSON); err != nil {
		return nil, fmt.Errorf("failed to scan audit record row: %w", err)
	}

	e.Timestamp = parseSQLTimestamp(ts, e.ID)
	e.IsPII = isPII == 1
	e.Failed = failed == 1
	if recordID != nil {
		e.RecordID = *recordID
	}
	if version != nil {
		e.RulesetVersion = *version
	}

	if dataJSON != nil && *dataJSON != "" {
		var data LogData
		if err := json.Unmarshal([]byte(*dataJSON), &data); err != nil {
			slog.Warn("failed to unmarshal audit data JSON", "id", e.ID, "error", err)
		} else {
			e.Data = &data
		}
	}

	return &e, nil
}
