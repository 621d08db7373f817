package auditlog

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const pgInsertRecord = `
	INSERT INTO audit_records (id, timestamp, stream_id, record_id, seq, ruleset_version,
		is_pii, failed, finding_count, data)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	ON CONFLICT (id) DO NOTHING`

// PostgreSQLStore implements LogStore for PostgreSQL databases.
type PostgreSQLStore struct {
	pool          *pgxpool.Pool
	retentionDays int
	stopCleanup   chan struct{}
}

// NewPostgreSQLStore creates a new PostgreSQL audit log store.
// It creates the audit_records table if it doesn't exist and starts
// a background cleanup goroutine if retention is configured.
func NewPostgreSQLStore(pool *pgxpool.Pool, retentionDays int) (*PostgreSQLStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("connection pool is required")
	}

	ctx := context.Background()

	_, err := pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS audit_records (
			id UUID PRIMARY KEY,
			timestamp TIMESTAMPTZ NOT NULL,
			stream_id TEXT NOT NULL,
			record_id TEXT,
			seq BIGINT DEFAULT 0,
			ruleset_version TEXT,
			is_pii BOOLEAN DEFAULT FALSE,
			failed BOOLEAN DEFAULT FALSE,
			finding_count INTEGER DEFAULT 0,
			data JSONB
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
		"CREATE INDEX IF NOT EXISTS idx_audit_data_gin ON audit_records USING GIN (data)",
	}
	for _, idx := range indexes {
		if _, err := pool.Exec(ctx, idx); err != nil {
			slog.Warn("failed to create index", "error", err)
		}
	}

	store := &PostgreSQLStore{
		pool:          pool,
		retentionDays: retentionDays,
		stopCleanup:   make(chan struct{}),
	}

	if retentionDays > 0 {
		go RunCleanupLoop(store.stopCleanup, store.cleanup)
	}

	return store, nil
}

// WriteBatch queues every entry in one pgx batch and sends it in a single
// round trip. Rows that fail are logged and skipped.
func (s *PostgreSQLStore) WriteBatch(ctx context.Context, entries []*LogEntry) error {
	if len(entries) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, e := range entries {
		batch.Queue(pgInsertRecord,
			e.ID, e.Timestamp, e.StreamID, e.RecordID, e.Seq, e.RulesetVersion,
			e.IsPII, e.Failed, e.FindingCount, marshalLogData(e.Data, e.ID))
	}

	br := s.pool.SendBatch(ctx, batch)
	failed := 0
	for _, e := range entries {
		if _, err := br.Exec(); err != nil {
			failed++
			slog.Warn("failed to insert audit record", "error", err, "id", e.ID)
		}
	}
	if err := br.Close(); err != nil {
		return fmt.Errorf("failed to send audit batch: %w", err)
	}
	if failed == len(entries) {
		return fmt.Errorf("failed to insert all %d audit records", failed)
	}
	return nil
}

// Flush is a no-op for PostgreSQL as writes are synchronous.
func (s *PostgreSQLStore) Flush(_ context.Context) error {
	return nil
}

// Close stops the cleanup goroutine.
// Note: We don't close the pool here as it's managed by the storage layer.
func (s *PostgreSQLStore) Close() error {
	if s.retentionDays > 0 {
		close(s.stopCleanup)
	}
	return nil
}

// cleanup deletes log entries older than the retention period.
func (s *PostgreSQLStore) cleanup() {
	if s.retentionDays <= 0 {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	cutoff := retentionCutoff(time.Now(), s.retentionDays)

	result, err := s.pool.Exec(ctx, "DELETE FROM audit_records WHERE timestamp < $1", cutoff)
	if err != nil {
		slog.Error("failed to cleanup old audit records", "error", err)
		return
	}

	if result.RowsAffected() > 0 {
		slog.Info("cleaned up old audit records", "deleted", result.RowsAffected())
	}
}
