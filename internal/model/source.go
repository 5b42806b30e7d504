package model

// CaptureSource is the contract every packet source satisfies. Live NIC
// capture, NATS-fed remote probes and pcap replay are interchangeable
// behind it.
type CaptureSource interface {
	// Start begins producing records. It must be safe to call once.
	Start() error

	// Stop shuts the source down and releases its handle.
	Stop()

	// TryNext returns the next available record without blocking.
	// The second return is false when nothing is queued right now, or
	// when the source is exhausted (offline replay).
	TryNext() (*PacketRecord, bool)
}
