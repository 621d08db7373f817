package auditlog

// Buffer and capture limits for audit logging.
const (
	// MaxMaskedRecordBytes caps the masked record stored with an entry (64KB).
	MaxMaskedRecordBytes = 64 * 1024

	// BatchFlushThreshold is the number of entries that triggers an immediate flush.
	// When the batch reaches this size, it's written to storage without waiting for the timer.
	BatchFlushThreshold = 100

	// tableName is shared by the SQL backends and the MongoDB collection.
	tableName = "audit_records"
)
