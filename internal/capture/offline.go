package capture

import (
	"fmt"
	"sync"

	"github.com/google/gopacket"
	"github.com/google/gopacket/pcap"

	"netsentry/internal/logging"
	"netsentry/internal/model"
)

// OfflineSource serves records parsed from a pcap file, in capture
// order. TryNext returns false once the file is exhausted; replay
// timing is the orchestrator's job, so the source itself never sleeps.
type OfflineSource struct {
	records []*model.PacketRecord
	next    int
	mu      sync.Mutex
}

// NewOfflineSource loads and normalizes every packet in the pcap file.
// Malformed frames are skipped with a counter increment, matching live
// behavior.
func NewOfflineSource(path string, normalizer *Normalizer) (*OfflineSource, error) {
	records, err := LoadRecords(path, normalizer)
	if err != nil {
		return nil, err
	}
	logging.Component("capture").Info("pcap loaded", "path", path, "records", len(records))
	return &OfflineSource{records: records}, nil
}

// NewReplaySource wraps an already-normalized record sequence, used by
// tests and by the orchestrator's replay entry point.
func NewReplaySource(records []*model.PacketRecord) *OfflineSource {
	return &OfflineSource{records: records}
}

// LoadRecords reads a pcap file into an ordered record slice.
func LoadRecords(path string, normalizer *Normalizer) ([]*model.PacketRecord, error) {
	handle, err := pcap.OpenOffline(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open pcap file %s: %w", path, err)
	}
	defer handle.Close()

	var records []*model.PacketRecord
	packetSource := gopacket.NewPacketSource(handle, handle.LinkType())
	for packet := range packetSource.Packets() {
		rec, err := normalizer.Normalize(packet)
		if err != nil {
			continue
		}
		records = append(records, rec)
	}
	return records, nil
}

// Records returns the full loaded sequence.
func (s *OfflineSource) Records() []*model.PacketRecord {
	return s.records
}

// Start is a no-op: the records are loaded at construction.
func (s *OfflineSource) Start() error { return nil }

// Stop is a no-op.
func (s *OfflineSource) Stop() {}

// TryNext pops the next record, or reports exhaustion.
func (s *OfflineSource) TryNext() (*model.PacketRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.next >= len(s.records) {
		return nil, false
	}
	rec := s.records[s.next]
	s.next++
	return rec, true
}
