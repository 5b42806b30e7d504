package model

// AlertSink is a generic destination for generated alerts. The JSONL log
// and the ClickHouse archive both implement it.
type AlertSink interface {
	// Write persists a single alert.
	Write(alert *Alert) error

	// Close flushes and releases the sink.
	Close() error
}

// Notifier pushes an out-of-band notification for an alert, such as an
// email. Notification failure never affects alert persistence.
type Notifier interface {
	Notify(alert *Alert) error
}
