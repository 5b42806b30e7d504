// Package probe publishes normalized packet records from a remote
// capture host to the engine over NATS.
package probe

import (
	"encoding/json"

	"github.com/nats-io/nats.go"

	"netsentry/internal/logging"
	"netsentry/internal/model"
)

// Publisher is responsible for publishing packet records to a NATS subject.
type Publisher struct {
	nc      *nats.Conn
	subject string
}

// NewPublisher creates a new NATS publisher.
func NewPublisher(url, subject string) (*Publisher, error) {
	nc, err := nats.Connect(url)
	if err != nil {
		return nil, err
	}
	logging.Component("probe").Info("connected to NATS", "url", url, "subject", subject)
	return &Publisher{nc: nc, subject: subject}, nil
}

// Publish sends one record, JSON-encoded.
func (p *Publisher) Publish(rec *model.PacketRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return p.nc.Publish(p.subject, data)
}

// Close flushes pending messages and closes the connection.
func (p *Publisher) Close() {
	p.nc.Flush()
	p.nc.Close()
}
