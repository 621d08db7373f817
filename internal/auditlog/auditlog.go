// Package auditlog records masked records and their findings summaries for
// compliance review. Entries are written asynchronously in batches to a
// configurable backend. Raw values never reach this package.
package auditlog

import (
	"context"
	"time"

	"github.com/google/uuid"

	"piigate/internal/core"
)

// LogStore defines the interface for audit log storage backends.
// Implementations must be safe for concurrent use.
type LogStore interface {
	// WriteBatch writes multiple log entries to storage.
	// This is called by the Logger when flushing buffered entries.
	WriteBatch(ctx context.Context, entries []*LogEntry) error

	// Flush forces any pending writes to complete.
	// Called during graceful shutdown.
	Flush(ctx context.Context) error

	// Close releases resources and flushes pending writes.
	Close() error
}

// LogEntry is the audit record of one processed record.
// Core fields are indexed for efficient queries.
type LogEntry struct {
	// ID is a unique identifier for this log entry (UUID)
	ID string `json:"id" bson:"_id"`

	// Timestamp is when the record was emitted
	Timestamp time.Time `json:"timestamp" bson:"timestamp"`

	StreamID       string `json:"stream_id" bson:"stream_id"`
	RecordID       string `json:"record_id" bson:"record_id"`
	Seq            int64  `json:"seq" bson:"seq"`
	RulesetVersion string `json:"ruleset_version" bson:"ruleset_version"`
	IsPII          bool   `json:"is_pii" bson:"is_pii"`
	Failed         bool   `json:"failed" bson:"failed"`
	FindingCount   int    `json:"finding_count" bson:"finding_count"`

	Data *LogData `json:"data" bson:"data"`
}

// LogData holds the findings summary and, optionally, the masked record.
type LogData struct {
	Format           string                `json:"format,omitempty" bson:"format,omitempty"`
	Findings         []core.FindingSummary `json:"findings,omitempty" bson:"findings,omitempty"`
	ParseErrors      []core.ParseError     `json:"parse_errors,omitempty" bson:"parse_errors,omitempty"`
	MaskingOverflows int                   `json:"masking_overflows,omitempty" bson:"masking_overflows,omitempty"`
	TruncatedFields  int                   `json:"truncated_fields,omitempty" bson:"truncated_fields,omitempty"`

	// MaskedRecord is the emitted output (when AUDIT_STORE_RECORDS=true),
	// truncated to MaxMaskedRecordBytes.
	MaskedRecord string `json:"masked_record,omitempty" bson:"masked_record,omitempty"`
}

// NewEntry builds an entry from a record summary.
func NewEntry(streamID, format, rulesetVersion string, s *core.Summary, failed bool) *LogEntry {
	e := &LogEntry{
		ID:             uuid.NewString(),
		Timestamp:      time.Now().UTC(),
		StreamID:       streamID,
		RulesetVersion: rulesetVersion,
		Failed:         failed,
		Data:           &LogData{Format: format},
	}
	if s == nil {
		return e
	}
	e.RecordID = s.RecordID
	e.Seq = int64(s.Seq)
	e.IsPII = s.IsPII
	e.FindingCount = len(s.Findings)
	e.Data.Findings = s.Findings
	e.Data.ParseErrors = s.ParseErrors
	e.Data.MaskingOverflows = s.MaskingOverflows
	e.Data.TruncatedFields = s.TruncatedFields
	return e
}

// SetMaskedRecord stores the emitted output on the entry.
func (e *LogEntry) SetMaskedRecord(data []byte) {
	if e.Data == nil {
		e.Data = &LogData{}
	}
	if len(data) > MaxMaskedRecordBytes {
		data = data[:MaxMaskedRecordBytes]
	}
	e.Data.MaskedRecord = string(data)
}

// Config holds audit logging configuration
type Config struct {
	// Enabled controls whether audit logging is active
	Enabled bool

	// OnlyPII limits logging to records with findings or parse errors
	OnlyPII bool

	// StoreRecords stores the masked record alongside the summary
	StoreRecords bool

	// BufferSize is the number of log entries to buffer before flushing
	BufferSize int

	// FlushInterval is how often to flush buffered logs
	FlushInterval time.Duration

	// RetentionDays is how long to keep logs (0 = forever)
	RetentionDays int
}

// DefaultConfig returns a Config with sensible defaults
func DefaultConfig() Config {
	return Config{
		Enabled:       false,
		OnlyPII:       false,
		StoreRecords:  false,
		BufferSize:    1000,
		FlushInterval: 5 * time.Second,
		RetentionDays: 30,
	}
}
