package capture

import (
	"fmt"
	"sync"

	"github.com/google/gopacket"
	"github.com/google/gopacket/pcap"

	"netsentry/internal/logging"
	"netsentry/internal/model"
)

// LiveSource captures from a network interface with libpcap and feeds
// normalized records into a bounded buffer. TryNext never blocks.
type LiveSource struct {
	iface       string
	bpfFilter   string
	promiscuous bool
	snapLen     int32
	normalizer  *Normalizer

	handle  *pcap.Handle
	records chan *model.PacketRecord
	stop    chan struct{}
	wg      sync.WaitGroup
	started bool
	mu      sync.Mutex
}

// NewLiveSource creates a live capture source. Nothing is opened until
// Start.
func NewLiveSource(iface, bpfFilter string, promiscuous bool, snapLen int32, normalizer *Normalizer, bufferSize int) *LiveSource {
	return &LiveSource{
		iface:       iface,
		bpfFilter:   bpfFilter,
		promiscuous: promiscuous,
		snapLen:     snapLen,
		normalizer:  normalizer,
		records:     make(chan *model.PacketRecord, bufferSize),
		stop:        make(chan struct{}),
	}
}

// Start opens the capture handle and launches the reader goroutine.
func (s *LiveSource) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return nil
	}

	handle, err := pcap.OpenLive(s.iface, s.snapLen, s.promiscuous, pcap.BlockForever)
	if err != nil {
		return fmt.Errorf("failed to open device %s: %w", s.iface, err)
	}
	if s.bpfFilter != "" {
		if err := handle.SetBPFFilter(s.bpfFilter); err != nil {
			handle.Close()
			return fmt.Errorf("failed to set BPF filter %q: %w", s.bpfFilter, err)
		}
	}
	s.handle = handle
	s.started = true

	s.wg.Add(1)
	go s.readLoop()
	logging.Component("capture").Info("live capture started", "interface", s.iface, "filter", s.bpfFilter)
	return nil
}

func (s *LiveSource) readLoop() {
	defer s.wg.Done()
	packetSource := gopacket.NewPacketSource(s.handle, s.handle.LinkType())
	for {
		select {
		case <-s.stop:
			return
		case packet, ok := <-packetSource.Packets():
			if !ok {
				return
			}
			rec, err := s.normalizer.Normalize(packet)
			if err != nil {
				continue
			}
			select {
			case s.records <- rec:
			default:
				// Buffer full: the frame is lost here rather than
				// blocking the capture loop.
			}
		}
	}
}

// Stop closes the handle and joins the reader.
func (s *LiveSource) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started {
		return
	}
	close(s.stop)
	s.handle.Close()
	s.wg.Wait()
	s.started = false
	logging.Component("capture").Info("live capture stopped", "interface", s.iface)
}

// TryNext returns the next buffered record without blocking.
func (s *LiveSource) TryNext() (*model.PacketRecord, bool) {
	select {
	case rec := <-s.records:
		return rec, true
	default:
		return nil, false
	}
}
