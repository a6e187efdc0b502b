package log

// Logger receives protocol records. Implementations must be safe for
// concurrent use and should not block.
type Logger interface {
	Log(rec Record)
}

// NoopLogger discards all records. The zero value is ready to use.
type NoopLogger struct{}

// Log discards the record.
func (NoopLogger) Log(Record) {}

// Compile-time interface satisfaction check.
var _ Logger = NoopLogger{}
