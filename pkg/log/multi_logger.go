package log

// MultiLogger fans an event out to every logger in the slice, in order.
// Typical use is pairing a SlogAdapter for the console with a FileLogger
// for later analysis.
type MultiLogger []Logger

// NewMultiLogger combines the given loggers into one.
func NewMultiLogger(loggers ...Logger) MultiLogger {
	return MultiLogger(loggers)
}

// Log forwards the event to each logger.
func (m MultiLogger) Log(event Event) {
	for _, l := range m {
		l.Log(event)
	}
}

var _ Logger = MultiLogger(nil)
