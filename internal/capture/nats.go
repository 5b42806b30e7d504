package capture

import (
	"encoding/json"
	"sync"

	"github.com/nats-io/nats.go"

	"netsentry/internal/logging"
	"netsentry/internal/model"
)

// NATSSource receives normalized records published by a remote probe.
// Records are JSON-encoded PacketRecords on a single subject.
type NATSSource struct {
	url     string
	subject string

	nc      *nats.Conn
	sub     *nats.Subscription
	records chan *model.PacketRecord
	mu      sync.Mutex
	started bool
}

// NewNATSSource creates a source that subscribes on Start.
func NewNATSSource(url, subject string, bufferSize int) *NATSSource {
	return &NATSSource{
		url:     url,
		subject: subject,
		records: make(chan *model.PacketRecord, bufferSize),
	}
}

// Start connects and subscribes.
func (s *NATSSource) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return nil
	}

	nc, err := nats.Connect(s.url)
	if err != nil {
		return err
	}

	log := logging.Component("capture")
	sub, err := nc.Subscribe(s.subject, func(msg *nats.Msg) {
		var rec model.PacketRecord
		if err := json.Unmarshal(msg.Data, &rec); err != nil {
			log.Warn("dropping undecodable probe message", logging.Err(err))
			return
		}
		select {
		case s.records <- &rec:
		default:
			// Subscriber buffer full; the probe keeps publishing.
		}
	})
	if err != nil {
		nc.Close()
		return err
	}

	s.nc = nc
	s.sub = sub
	s.started = true
	log.Info("subscribed to probe subject", "url", s.url, "subject", s.subject)
	return nil
}

// Stop unsubscribes and closes the connection.
func (s *NATSSource) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started {
		return
	}
	s.sub.Unsubscribe()
	s.nc.Close()
	s.started = false
}

// TryNext returns the next buffered record without blocking.
func (s *NATSSource) TryNext() (*model.PacketRecord, bool) {
	select {
	case rec := <-s.records:
		return rec, true
	default:
		return nil, false
	}
}
