package log

// MultiLogger fans records out to several loggers.
type MultiLogger struct {
	loggers []Logger
}

// NewMultiLogger returns a logger writing to every non-nil logger given.
func NewMultiLogger(loggers ...Logger) *MultiLogger {
	m := &MultiLogger{}
	for _, l := range loggers {
		if l != nil {
			m.loggers = append(m.loggers, l)
		}
	}
	return m
}

// Log sends rec to all loggers.
func (m *MultiLogger) Log(rec Record) {
	for _, l := range m.loggers {
		l.Log(rec)
	}
}

var _ Logger = (*MultiLogger)(nil)
