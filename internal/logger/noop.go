package logger

// NoopLogger implements Interface and discards everything. Tests use it
// where log output is irrelevant.
type NoopLogger struct{}

// NewNoop creates a new no-op logger.
func NewNoop() Interface {
	return &NoopLogger{}
}

// Debug does nothing.
func (l *NoopLogger) Debug(_ string, _ ...any) {}

// Info does nothing.
func (l *NoopLogger) Info(_ string, _ ...any) {}

// Warn does nothing.
func (l *NoopLogger) Warn(_ string, _ ...any) {}

// Error does nothing.
func (l *NoopLogger) Error(_ string, _ ...any) {}

// Fatal does nothing.
func (l *NoopLogger) Fatal(_ string, _ ...any) {}

// With returns the same no-op logger.
func (l *NoopLogger) With(_ ...any) Interface { return l }

// WithComponent returns the same no-op logger.
func (l *NoopLogger) WithComponent(_ string) Interface { return l }

// WithError returns the same no-op logger.
func (l *NoopLogger) WithError(_ error) Interface { return l }

// Sync does nothing.
func (l *NoopLogger) Sync() error { return nil }
