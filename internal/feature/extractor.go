// Package feature computes per-packet feature vectors from a packet
// record and its flow state. Payload inspection is deliberately
// heuristic: bounded walks and marker scans, never full protocol
// parsing.
package feature

import (
	"math"

	"netsentry/internal/flow"
	"netsentry/internal/model"
)

const (
	dnsPort        = 53
	tlsPort        = 443
	dnsHeaderBytes = 12
	// Minimum payload for the TLS ClientHello heuristic to fire.
	tlsMinHello = 50
)

// Extractor computes feature vectors. It is stateless beyond its
// configuration; all flow history lives in the flow table.
type Extractor struct {
	maxPayloadBytes int
}

// NewExtractor creates an extractor that inspects at most
// maxPayloadBytes of each payload.
func NewExtractor(maxPayloadBytes int) *Extractor {
	return &Extractor{maxPayloadBytes: maxPayloadBytes}
}

// Extract builds the feature vector for a record that has already been
// folded into its flow state with the given direction.
func (e *Extractor) Extract(rec *model.PacketRecord, state *flow.State, direction int) *model.FeatureVector {
	// The vector carries the packet's own endpoints, not the canonical
	// flow key: scan detection and alert attribution need the actual
	// sender on the source side.
	fv := &model.FeatureVector{
		Timestamp: rec.Timestamp,
		FlowKey: model.FlowKey{
			SrcIP:    rec.SrcIP,
			DstIP:    rec.DstIP,
			SrcPort:  rec.SrcPort,
			DstPort:  rec.DstPort,
			Protocol: rec.Protocol,
		},
		PacketSize: float64(rec.Size),
		Direction:  direction,
		TTL:        float64(rec.TTL),
	}
	if rec.TCP != nil {
		fv.TCPFlagsBitmap = rec.TCP.Flags
	}

	// The flow table appended this packet's delta last.
	if n := len(state.WindowIATs); n > 0 {
		fv.InterArrivalDelta = state.WindowIATs[n-1]
	}

	fv.TotalBytes = float64(state.SrcBytes + state.DstBytes)
	fv.TotalPackets = float64(state.SrcPackets + state.DstPackets)

	if state.DstBytes > 0 {
		fv.BytesRatio = float64(state.SrcBytes) / float64(state.DstBytes)
	}

	duration := rec.Timestamp.Sub(state.StartTime).Seconds()
	fv.PacketsPerSecond = fv.TotalPackets / math.Max(duration, 0.001)

	// Explicit fallback: a SYN-heavy flow with no FINs still scores by
	// its raw SYN count instead of dividing by zero.
	switch {
	case state.FinCount > 0:
		fv.SynFinRatio = float64(state.SynCount) / float64(state.FinCount)
	case state.SynCount > 0:
		fv.SynFinRatio = float64(state.SynCount)
	}

	fv.SizeMean, fv.SizeStd = meanStd(state.WindowSizes)
	fv.IATMean, fv.IATStd = meanStd(state.WindowIATs)
	if fv.IATMean > 0 {
		fv.Burstiness = fv.IATStd / fv.IATMean
	}

	e.extractPayload(rec, fv)
	return fv
}

func (e *Extractor) extractPayload(rec *model.PacketRecord, fv *model.FeatureVector) {
	payload := rec.Payload
	if len(payload) == 0 {
		return
	}
	if e.maxPayloadBytes > 0 && len(payload) > e.maxPayloadBytes {
		payload = payload[:e.maxPayloadBytes]
	}

	fv.PayloadEntropy = Entropy(payload)
	fv.PrintableRatio = PrintableRatio(payload)

	if rec.Protocol == model.ProtoUDP && rec.DstPort == dnsPort && len(payload) > dnsHeaderBytes {
		qlen := dnsQNameLength(payload[dnsHeaderBytes:])
		fv.DNSQNameLength = &qlen
	}

	if rec.Protocol == model.ProtoTCP && rec.DstPort == tlsPort && len(payload) > tlsMinHello && payload[0] == 0x16 {
		present := hasSNIMarker(payload)
		fv.TLSSNIPresent = &present
	}
}

// Entropy computes Shannon entropy in bits per byte over a 256-bucket
// histogram. Empty input yields 0.
func Entropy(data []byte) float64 {
	if len(data) == 0 {
		return 0
	}
	var counts [256]int
	for _, b := range data {
		counts[b]++
	}
	entropy := 0.0
	length := float64(len(data))
	for _, c := range counts {
		if c == 0 {
			continue
		}
		p := float64(c) / length
		entropy -= p * math.Log2(p)
	}
	return entropy
}

// PrintableRatio returns the fraction of bytes in the printable ASCII
// range [32,126].
func PrintableRatio(data []byte) float64 {
	if len(data) == 0 {
		return 0
	}
	printable := 0
	for _, b := range data {
		if b >= 32 && b <= 126 {
			printable++
		}
	}
	return float64(printable) / float64(len(data))
}

// dnsQNameLength walks length-prefixed labels until a zero terminator
// or an invalid (>63) label length. Best effort, not a DNS parser.
func dnsQNameLength(qname []byte) float64 {
	length := 0
	i := 0
	for i < len(qname) && qname[i] != 0 {
		labelLen := int(qname[i])
		if labelLen > 63 {
			break
		}
		length += labelLen + 1
		i += labelLen + 1
	}
	return float64(length)
}

// hasSNIMarker scans for the server_name extension type bytes in what
// looks like a ClientHello. Two adjacent zero bytes are a coarse but
// cheap signal.
func hasSNIMarker(payload []byte) bool {
	for i := 0; i+1 < len(payload); i++ {
		if payload[i] == 0x00 && payload[i+1] == 0x00 {
			return true
		}
	}
	return false
}

// meanStd returns the mean and population standard deviation of the
// window. Single-element windows have stddev 0.
func meanStd(window []float64) (float64, float64) {
	if len(window) == 0 {
		return 0, 0
	}
	sum := 0.0
	for _, v := range window {
		sum += v
	}
	mean := sum / float64(len(window))
	if len(window) < 2 {
		return mean, 0
	}
	varSum := 0.0
	for _, v := range window {
		d := v - mean
		varSum += d * d
	}
	return mean, math.Sqrt(varSum / float64(len(window)))
}
