//go:build integration

// Package dbassert provides database assertion helpers for integration tests.
// It queries and validates audit records in PostgreSQL and MongoDB.
package dbassert

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"piigate/internal/auditlog"
)

// AuditRecord mirrors auditlog.LogEntry for test assertions.
// We use a separate type to avoid coupling tests to the storage layout.
type AuditRecord struct {
	ID             string
	Timestamp      time.Time
	StreamID       string
	RecordID       string
	Seq            int64
	RulesetVersion string
	IsPII          bool
	Failed         bool
	FindingCount   int
	Data           *auditlog.LogData
}

// QueryAuditRecordsByStream returns the records of one stream from
// PostgreSQL in sequence order.
func QueryAuditRecordsByStream(t *testing.T, pool *pgxpool.Pool, streamID string) []AuditRecord {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	query := `
		SELECT id::text, timestamp, stream_id, COALESCE(record_id, ''), seq,
		       COALESCE(ruleset_version, ''), is_pii, failed, finding_count, data
		FROM audit_records
		WHERE stream_id = $1
		ORDER BY seq ASC
	`

	rows, err := pool.Query(ctx, query, streamID)
	require.NoError(t, err, "failed to query audit records")
	defer rows.Close()

	var records []AuditRecord
	for rows.Next() {
		var r AuditRecord
		var dataJSON []byte
		err := rows.Scan(
			&r.ID, &r.Timestamp, &r.StreamID, &r.RecordID, &r.Seq,
			&r.RulesetVersion, &r.IsPII, &r.Failed, &r.FindingCount, &dataJSON,
		)
		require.NoError(t, err, "failed to scan audit record row")

		if dataJSON != nil {
			r.Data = &auditlog.LogData{}
			require.NoError(t, json.Unmarshal(dataJSON, r.Data), "failed to unmarshal audit data")
		}
		records = append(records, r)
	}
	require.NoError(t, rows.Err(), "error iterating audit record rows")

	return records
}

// QueryAuditRecordsByStreamMongo returns the records of one stream from
// MongoDB in sequence order.
func QueryAuditRecordsByStreamMongo(t *testing.T, db *mongo.Database, streamID string) []AuditRecord {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	cursor, err := db.Collection("audit_records").Find(ctx,
		bson.M{"stream_id": streamID},
		options.Find().SetSort(bson.D{{Key: "seq", Value: 1}}),
	)
	require.NoError(t, err, "failed to query audit records from MongoDB")
	defer cursor.Close(ctx)

	var records []AuditRecord
	for cursor.Next(ctx) {
		var entry auditlog.LogEntry
		require.NoError(t, cursor.Decode(&entry), "failed to decode audit record document")
		records = append(records, AuditRecord{
			ID:             entry.ID,
			Timestamp:      entry.Timestamp,
			StreamID:       entry.StreamID,
			RecordID:       entry.RecordID,
			Seq:            entry.Seq,
			RulesetVersion: entry.RulesetVersion,
			IsPII:          entry.IsPII,
			Failed:         entry.Failed,
			FindingCount:   entry.FindingCount,
			Data:           entry.Data,
		})
	}
	require.NoError(t, cursor.Err(), "error iterating audit record cursor")

	return records
}

// AssertRecordComplete verifies the fields every audit record carries.
func AssertRecordComplete(t *testing.T, r AuditRecord) {
	t.Helper()

	assert.NotEmpty(t, r.ID, "audit record ID should not be empty")
	assert.False(t, r.Timestamp.IsZero(), "audit record timestamp should not be zero")
	assert.NotEmpty(t, r.StreamID, "audit record stream ID should not be empty")
	assert.NotEmpty(t, r.RulesetVersion, "audit record ruleset version should not be empty")
	require.NotNil(t, r.Data, "audit record data should not be nil")
	assert.NotEmpty(t, r.Data.Format, "audit record format should not be empty")
	assert.Len(t, r.Data.Findings, r.FindingCount, "finding count should match the findings")
}

// AssertNoRawValues fails if any raw value appears anywhere in the records.
func AssertNoRawValues(t *testing.T, records []AuditRecord, raw ...string) {
	t.Helper()

	data, err := json.Marshal(records)
	require.NoError(t, err)
	for _, v := range raw {
		assert.NotContains(t, string(data), v, "audit records must not contain raw PII")
	}
}

// FindingCategories lists the categories of a record's findings in order.
func FindingCategories(r AuditRecord) []string {
	if r.Data == nil {
		return nil
	}
	out := make([]string, 0, len(r.Data.Findings))
	for _, f := range r.Data.Findings {
		out = append(out, string(f.Category))
	}
	return out
}
