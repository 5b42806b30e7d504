// Package capture converts raw frames into PacketRecords and provides
// the interchangeable packet sources: live NIC capture, pcap replay and
// a NATS-fed remote probe.
package capture

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"

	"netsentry/internal/metrics"
	"netsentry/internal/model"
)

// Normalizer extracts L3/L4 fields from captured frames. Frames without
// an IP layer or with an unsupported transport are dropped silently; the
// caller only sees a counter increment.
type Normalizer struct {
	maxPayloadBytes int
	dropped         atomic.Uint64
	truncated       atomic.Uint64
}

// NewNormalizer creates a normalizer that truncates payloads to
// maxPayloadBytes before storage.
func NewNormalizer(maxPayloadBytes int) *Normalizer {
	return &Normalizer{maxPayloadBytes: maxPayloadBytes}
}

// Dropped returns the number of frames rejected so far.
func (n *Normalizer) Dropped() uint64 {
	return n.dropped.Load()
}

// Normalize converts a decoded packet into a PacketRecord. The returned
// error always wraps model.ErrParse and is meant for counters, not for
// propagation.
func (n *Normalizer) Normalize(packet gopacket.Packet) (*model.PacketRecord, error) {
	rec := &model.PacketRecord{
		Timestamp: time.Now(),
		Size:      len(packet.Data()),
	}
	if meta := packet.Metadata(); meta != nil && !meta.Timestamp.IsZero() {
		rec.Timestamp = meta.Timestamp
	}

	switch l := packet.NetworkLayer().(type) {
	case *layers.IPv4:
		rec.SrcIP = l.SrcIP.String()
		rec.DstIP = l.DstIP.String()
		rec.TTL = l.TTL
		rec.IPFlags = uint8(l.Flags)
	case *layers.IPv6:
		rec.SrcIP = l.SrcIP.String()
		rec.DstIP = l.DstIP.String()
		rec.TTL = l.HopLimit
	default:
		n.drop()
		return nil, fmt.Errorf("%w: no IP layer", model.ErrParse)
	}

	switch l := packet.TransportLayer().(type) {
	case *layers.TCP:
		rec.Protocol = model.ProtoTCP
		rec.SrcPort = uint16(l.SrcPort)
		rec.DstPort = uint16(l.DstPort)
		rec.TCP = &model.TCPInfo{
			Flags:  tcpFlagsBitmap(l),
			Window: l.Window,
			Seq:    l.Seq,
			Ack:    l.Ack,
		}
	case *layers.UDP:
		rec.Protocol = model.ProtoUDP
		rec.SrcPort = uint16(l.SrcPort)
		rec.DstPort = uint16(l.DstPort)
	default:
		// ICMP has no transport layer in gopacket's sense.
		if packet.Layer(layers.LayerTypeICMPv4) != nil || packet.Layer(layers.LayerTypeICMPv6) != nil {
			rec.Protocol = model.ProtoICMP
			break
		}
		n.drop()
		return nil, fmt.Errorf("%w: unsupported transport", model.ErrParse)
	}

	if app := packet.ApplicationLayer(); app != nil {
		payload := app.Payload()
		if n.maxPayloadBytes > 0 && len(payload) > n.maxPayloadBytes {
			payload = payload[:n.maxPayloadBytes]
			n.truncated.Add(1)
			metrics.PayloadTruncations.Inc()
		}
		// Copy out of the capture buffer: records outlive the frame.
		rec.Payload = append([]byte(nil), payload...)
	}

	return rec, nil
}

func (n *Normalizer) drop() {
	n.dropped.Add(1)
	metrics.ParseErrors.Inc()
}

func tcpFlagsBitmap(tcp *layers.TCP) uint8 {
	var f uint8
	if tcp.FIN {
		f |= 0x01
	}
	if tcp.SYN {
		f |= 0x02
	}
	if tcp.RST {
		f |= 0x04
	}
	if tcp.PSH {
		f |= 0x08
	}
	if tcp.ACK {
		f |= 0x10
	}
	if tcp.URG {
		f |= 0x20
	}
	if tcp.ECE {
		f |= 0x40
	}
	if tcp.CWR {
		f |= 0x80
	}
	return f
}
