package auditlog

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
)

// SQLite has a default limit of 999 bindable parameters per query (SQLITE_MAX_VARIABLE_NUMBER).
// We chunk larger batches to avoid hitting this limit.
const (
	maxSQLiteParams    = 999
	columnsPerEntry    = 10
	maxEntriesPerBatch = maxSQLiteParams / columnsPerEntry // 99 entries
)

// SQLiteStore implements LogStore for SQLite databases.
type SQLiteStore struct {
	db            *sql.DB
	retentionDays int
	stopCleanup   chan struct{}
	closeOnce     sync.Once
}

// NewSQLiteStore creates a new SQLite audit log store.
// It creates the audit_records table if it doesn't exist and starts
// a background cleanup goroutine if retention is configured.
func NewSQLiteStore(db *sql.DB, retentionDays int) (*SQLiteStore, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}

	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS audit_records (
			id TEXT PRIMARY KEY,
			timestamp DATETIME NOT NULL,
			stream_id TEXT NOT NULL,
			record_id TEXT,
			seq INTEGER DEFAULT 0,
			ruleset_version TEXT,
			is_pii INTEGER DEFAULT 0,
			failed INTEGER DEFAULT 0,
			finding_count INTEGER DEFAULT 0,
			data JSON
		)
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to create audit_records table: %w", err)
	}

	indexes := []string{
		"CREATE INDEX IF NOT EXISTS idx_audit_timestamp ON audit_records(timestamp)",
		"CREATE INDEX IF NOT EXISTS idx_audit_stream ON audit_records(stream_id, seq)",
		"CREATE INDEX IF NOT EXISTS idx_audit_record_id ON audit_records(record_id)",
		"CREATE INDEX IF NOT EXISTS idx_audit_is_pii ON audit_records(is_pii)",
		"CREATE INDEX IF NOT EXISTS idx_audit_failed ON audit_records(failed)",
	}
	for _, idx := range indexes {
		if _, err := db.Exec(idx); err != nil {
			slog.Warn("failed to create index", "error", err)
		}
	}

	store := &SQLiteStore{
		db:            db,
		retentionDays: retentionDays,
		stopCleanup:   make(chan struct{}),
	}

	if retentionDays > 0 {
		go RunCleanupLoop(store.stopCleanup, store.cleanup)
	}

	return store, nil
}

// WriteBatch writes multiple log entries to SQLite using batch insert.
// Entries are chunked to stay within SQLite's parameter limit.
func (s *SQLiteStore) WriteBatch(ctx context.Context, entries []*LogEntry) error {
	if len(entries) == 0 {
		return nil
	}

	for i := 0; i < len(entries); i += maxEntriesPerBatch {
		end := min(i+maxEntriesPerBatch, len(entries))
		chunk := entries[i:end]

		placeholders := make([]string, len(chunk))
		values := make([]any, 0, len(chunk)*columnsPerEntry)

		for j, e := range chunk {
			placeholders[j] = "(?, ?, ?, ?, ?, ?, ?, ?, ?, ?)"

			// nil Data becomes SQL NULL
			var dataValue any
			if dataJSON := marshalLogData(e.Data, e.ID); dataJSON != nil {
				dataValue = string(dataJSON)
			}

			values = append(values,
				e.ID,
				e.Timestamp.UTC().Format(time.RFC3339Nano),
				e.StreamID,
				e.RecordID,
				e.Seq,
				e.RulesetVersion,
				boolToInt(e.IsPII),
				boolToInt(e.Failed),
				e.FindingCount,
				dataValue,
			)
		}

		query := `INSERT OR IGNORE INTO audit_records (id, timestamp, stream_id, record_id, seq,
			ruleset_version, is_pii, failed, finding_count, data) VALUES ` +
			strings.Join(placeholders, ",")

		if _, err := s.db.ExecContext(ctx, query, values...); err != nil {
			return fmt.Errorf("failed to insert audit records batch %d: %w", i/maxEntriesPerBatch, err)
		}
	}

	return nil
}

// Flush is a no-op for SQLite as writes are synchronous.
func (s *SQLiteStore) Flush(_ context.Context) error {
	return nil
}

// Close stops the cleanup goroutine.
// Note: We don't close the DB here as it's managed by the storage layer.
// Safe to call multiple times.
func (s *SQLiteStore) Close() error {
	if s.retentionDays > 0 && s.stopCleanup != nil {
		s.closeOnce.Do(func() {
			close(s.stopCleanup)
		})
	}
	return nil
}

// cleanup deletes log entries older than the retention period.
func (s *SQLiteStore) cleanup() {
	if s.retentionDays <= 0 {
		return
	}

	cutoff := retentionCutoff(time.Now(), s.retentionDays).Format(time.RFC3339Nano)

	result, err := s.db.Exec("DELETE FROM audit_records WHERE timestamp < ?", cutoff)
	if err != nil {
		slog.Error("failed to cleanup old audit records", "error", err)
		return
	}

	if rowsAffected, err := result.RowsAffected(); err == nil && rowsAffected > 0 {
		slog.Info("cleaned up old audit records", "deleted", rowsAffected)
	}
}

// marshalLogData encodes entry data for the JSON column. It returns nil for nil data.
func marshalLogData(data *LogData, id string) []byte {
	if data == nil {
		return nil
	}
	b, err := json.Marshal(data)
	if err != nil {
		slog.Warn("failed to marshal audit data", "error", err, "id", id)
		return []byte("{}")
	}
	return b
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
