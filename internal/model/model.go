package model

import (
	"fmt"
	"time"
)

// Protocol tags carried by PacketRecord and FlowKey.
const (
	ProtoTCP  = "tcp"
	ProtoUDP  = "udp"
	ProtoICMP = "icmp"
)

// TCPInfo holds the transport-layer fields that only exist for TCP segments.
type TCPInfo struct {
	Flags  uint8
	Window uint16
	Seq    uint32
	Ack    uint32
}

// TCP flag bitmasks used for flow counters.
const (
	TCPFlagFIN uint8 = 0x01
	TCPFlagSYN uint8 = 0x02
	TCPFlagRST uint8 = 0x04
)

// PacketRecord is a normalized view of a single captured frame.
// It is immutable once constructed by the normalizer.
type PacketRecord struct {
	Timestamp time.Time
	SrcIP     string
	DstIP     string
	SrcPort   uint16
	DstPort   uint16
	Protocol  string
	Size      int
	Payload   []byte
	TCP       *TCPInfo
	TTL       uint8
	IPFlags   uint8
}

// FlowKey identifies a flow. It is comparable and usable as a map key.
type FlowKey struct {
	SrcIP    string
	DstIP    string
	SrcPort  uint16
	DstPort  uint16
	Protocol string
}

// Reverse returns the key for the opposite direction of the conversation.
func (k FlowKey) Reverse() FlowKey {
	return FlowKey{
		SrcIP:    k.DstIP,
		DstIP:    k.SrcIP,
		SrcPort:  k.DstPort,
		DstPort:  k.SrcPort,
		Protocol: k.Protocol,
	}
}

func (k FlowKey) String() string {
	return fmt.Sprintf("%s:%d->%s:%d/%s", k.SrcIP, k.SrcPort, k.DstIP, k.DstPort, k.Protocol)
}

// FeatureVector is the per-packet snapshot handed to classification.
// All numeric fields are expected to be finite; classifiers sanitize
// NaN/Inf at their boundary rather than trusting the extractor.
type FeatureVector struct {
	Timestamp time.Time
	FlowKey   FlowKey

	// Instantaneous packet fields.
	PacketSize        float64
	Direction         int
	InterArrivalDelta float64
	TCPFlagsBitmap    uint8
	TTL               float64

	// Flow aggregates.
	TotalBytes       float64
	TotalPackets     float64
	BytesRatio       float64
	PacketsPerSecond float64
	SynFinRatio      float64

	// Sliding-window statistics.
	SizeMean   float64
	SizeStd    float64
	IATMean    float64
	IATStd     float64
	Burstiness float64

	// Payload features. The heuristic fields are nil when the packet
	// does not match the protocol precondition.
	PayloadEntropy float64
	PrintableRatio float64
	DNSQNameLength *float64
	TLSSNIPresent  *bool
}

// ValueByName maps an artifact feature name to the corresponding field.
// Unknown names and absent optional features resolve to 0.
func (fv *FeatureVector) ValueByName(name string) float64 {
	switch name {
	case "packet_size":
		return fv.PacketSize
	case "direction":
		return float64(fv.Direction)
	case "inter_arrival_delta":
		return fv.InterArrivalDelta
	case "tcp_flags_bitmap":
		return float64(fv.TCPFlagsBitmap)
	case "ttl":
		return fv.TTL
	case "total_bytes":
		return fv.TotalBytes
	case "total_packets":
		return fv.TotalPackets
	case "bytes_ratio":
		return fv.BytesRatio
	case "packets_per_second":
		return fv.PacketsPerSecond
	case "syn_fin_ratio":
		return fv.SynFinRatio
	case "size_mean":
		return fv.SizeMean
	case "size_std":
		return fv.SizeStd
	case "iat_mean":
		return fv.IATMean
	case "iat_std":
		return fv.IATStd
	case "burstiness":
		return fv.Burstiness
	case "payload_entropy":
		return fv.PayloadEntropy
	case "printable_ratio":
		return fv.PrintableRatio
	case "dns_qname_length":
		if fv.DNSQNameLength != nil {
			return *fv.DNSQNameLength
		}
		return 0
	case "tls_sni_present":
		if fv.TLSSNIPresent != nil && *fv.TLSSNIPresent {
			return 1
		}
		return 0
	}
	return 0
}

// Attack classes produced by the classifiers.
const (
	ClassNormal         = "Normal"
	ClassDoS            = "DoS"
	ClassExploits       = "Exploits"
	ClassFuzzers        = "Fuzzers"
	ClassReconnaissance = "Reconnaissance"
)

// ModelPrediction is the classification result for one feature vector.
type ModelPrediction struct {
	Timestamp          time.Time
	FlowKey            FlowKey
	IsAttack           bool
	AttackProbability  float64
	AttackClass        string
	ClassProbabilities map[string]float64
	ModelVersion       string
	ThresholdUsed      float64
	ProcessingTime     time.Duration
}

// Severity levels assigned to alerts, ordered from least to most urgent.
const (
	SeverityLow      = "low"
	SeverityMedium   = "medium"
	SeverityHigh     = "high"
	SeverityCritical = "critical"
)

// Alert is an actionable, deduplicated detection. Append-only: never
// mutated after creation.
type Alert struct {
	Timestamp         time.Time
	ID                string
	Severity          string
	AttackType        string
	Confidence        float64
	SourceIP          string
	DestinationIP     string
	FlowKey           FlowKey
	Description       string
	RecommendedAction string
	Prediction        *ModelPrediction
}
