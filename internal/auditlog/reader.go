package auditlog

import (
	"context"
	"time"
)

// QueryParams specifies the date range for audit record retrieval.
type QueryParams struct {
	StartDate time.Time // Inclusive start (day precision)
	EndDate   time.Time // Inclusive end (day precision)
}

// RecordQueryParams specifies query parameters for paginated audit record retrieval.
type RecordQueryParams struct {
	QueryParams
	StreamID       string
	RecordID       string
	RulesetVersion string
	IsPII          *bool
	Failed         *bool
	Limit          int
	Offset         int
}

// RecordListResult holds a paginated list of audit entries.
type RecordListResult struct {
	Entries []LogEntry `json:"entries"`
	Total   int        `json:"total"`
	Limit   int        `json:"limit"`
	Offset  int        `json:"offset"`
}

// StreamResult holds the entries of one stream in sequence order.
type StreamResult struct {
	StreamID string     `json:"stream_id"`
	Entries  []LogEntry `json:"entries"`
}

// Reader provides read access to audit data for the admin API.
type Reader interface {
	// GetRecords returns a paginated list of audit entries with optional filtering,
	// newest first.
	GetRecords(ctx context.Context, params RecordQueryParams) (*RecordListResult, error)

	// GetRecordByID returns a single audit entry by ID.
	// Returns (nil, nil) when no entry exists for the given ID.
	GetRecordByID(ctx context.Context, id string) (*LogEntry, error)

	// GetStream returns up to limit entries of one stream ordered by seq.
	GetStream(ctx context.Context, streamID string, limit int) (*StreamResult, error)
}
