package classify

import (
	"hash/fnv"
	"time"

	"netsentry/internal/model"
)

const heuristicVersion = "heuristic-1.0"

// Heuristic tunables. The weights combine into a bounded [0,1] score;
// class assignment follows a fixed precedence over the same signals.
const (
	portScanPorts      = 5
	portScanHorizon    = 30 * time.Second
	highRatePPS        = 10.0
	veryHighRatePPS    = 50.0
	recentFlowWindow   = 10 * time.Second
	recentFlowFlood    = 20
	highEntropy        = 7.5
	highBurstiness     = 2.0
	tinyPacketBytes    = 64
	jumboPacketBytes   = 1400
	statRetention      = 5 * time.Minute
	cleanupEveryN      = 1000
)

// commonPorts are destinations that do not count as unusual.
var commonPorts = map[uint16]bool{
	21: true, 22: true, 23: true, 25: true, 53: true, 80: true,
	110: true, 143: true, 443: true, 993: true, 995: true, 3389: true,
}

type flowStat struct {
	packets   uint64
	bytes     uint64
	firstSeen time.Time
	lastSeen  time.Time
}

// HeuristicEngine is the rule-based fallback classifier. It keeps its
// own recent-activity state (per-source port breadth, flow openings) so
// it can recognize scans and floods that span flows.
type HeuristicEngine struct {
	threshold threshold

	flowStats map[model.FlowKey]*flowStat
	// srcPorts tracks, per source IP, the distinct destination ports
	// touched and when each was last seen.
	srcPorts map[string]map[uint16]time.Time
	packets  uint64
}

// NewHeuristicEngine creates the heuristic classifier with the given
// binary threshold.
func NewHeuristicEngine(t float64) *HeuristicEngine {
	e := &HeuristicEngine{
		flowStats: make(map[model.FlowKey]*flowStat),
		srcPorts:  make(map[string]map[uint16]time.Time),
	}
	e.threshold.set(t)
	return e
}

// SetThreshold updates the binary decision threshold.
func (e *HeuristicEngine) SetThreshold(t float64) {
	e.threshold.set(t)
}

// Predict scores a feature vector against the weighted indicators and
// assigns an attack class by fixed precedence.
func (e *HeuristicEngine) Predict(fv *model.FeatureVector) *model.ModelPrediction {
	start := time.Now()
	e.packets++

	key := fv.FlowKey
	stat, ok := e.flowStats[key]
	if !ok {
		stat = &flowStat{firstSeen: fv.Timestamp}
		e.flowStats[key] = stat
	}
	stat.packets++
	stat.lastSeen = fv.Timestamp
	stat.bytes += uint64(sanitize(fv.PacketSize))

	duration := stat.lastSeen.Sub(stat.firstSeen).Seconds()
	flowPPS := float64(stat.packets) / maxFloat(duration, 0.1)

	ports := e.touchPort(key.SrcIP, key.DstPort, fv.Timestamp)
	recentFlows := e.recentFlowCount(fv.Timestamp)

	entropy := sanitize(fv.PayloadEntropy)
	burstiness := sanitize(fv.Burstiness)
	size := sanitize(fv.PacketSize)

	score := 0.0

	if ports > portScanPorts {
		score += 0.6
	}
	if flowPPS > highRatePPS {
		score += 0.4
		if flowPPS > veryHighRatePPS {
			score += 0.4
		}
	}
	if !commonPorts[key.DstPort] {
		score += 0.2
		if key.DstPort > 1024 {
			score += 0.1
		}
	}
	if size < tinyPacketBytes {
		score += 0.2
	} else if size > jumboPacketBytes {
		score += 0.2
	}
	if key.Protocol == model.ProtoICMP {
		score += 0.3
	}
	if entropy > highEntropy {
		score += 0.3
	}
	if burstiness > highBurstiness {
		score += 0.2
	}
	if recentFlows > recentFlowFlood {
		score += 0.4
	}
	// A lone SYN with no ACK is the signature of half-open flooding.
	if key.Protocol == model.ProtoTCP &&
		fv.TCPFlagsBitmap&model.TCPFlagSYN != 0 &&
		fv.TCPFlagsBitmap&0x10 == 0 &&
		stat.packets == 1 {
		score += 0.3
	}

	// Deterministic per-flow baseline in [0, 0.1) keeps benign scores
	// from collapsing to identical values.
	score += float64(flowKeyHash(key)%100) / 1000.0

	prob := clamp01(score)
	thresh := e.threshold.get()
	isAttack := prob > thresh

	pred := &model.ModelPrediction{
		Timestamp:         fv.Timestamp,
		FlowKey:           key,
		IsAttack:          isAttack,
		AttackProbability: prob,
		ModelVersion:      heuristicVersion,
		ThresholdUsed:     thresh,
	}

	if isAttack {
		pred.AttackClass = e.assignClass(ports, flowPPS, recentFlows, entropy, key.Protocol)
		pred.ClassProbabilities = synthesizeClassProbs(pred.AttackClass, prob)
	}

	if e.packets%cleanupEveryN == 0 {
		e.cleanup(fv.Timestamp)
	}

	pred.ProcessingTime = time.Since(start)
	return pred
}

// assignClass applies the fixed precedence: Reconnaissance, then DoS,
// then Exploits, then the generic fuzzing bucket.
func (e *HeuristicEngine) assignClass(ports int, flowPPS float64, recentFlows int, entropy float64, protocol string) string {
	switch {
	case ports > portScanPorts:
		return model.ClassReconnaissance
	case flowPPS > veryHighRatePPS || recentFlows > recentFlowFlood || protocol == model.ProtoICMP:
		return model.ClassDoS
	case entropy > highEntropy:
		return model.ClassExploits
	default:
		return model.ClassFuzzers
	}
}

// touchPort records the destination port for a source and returns how
// many distinct ports that source touched within the horizon.
func (e *HeuristicEngine) touchPort(srcIP string, dstPort uint16, now time.Time) int {
	ports, ok := e.srcPorts[srcIP]
	if !ok {
		ports = make(map[uint16]time.Time)
		e.srcPorts[srcIP] = ports
	}
	ports[dstPort] = now

	count := 0
	for port, seen := range ports {
		if now.Sub(seen) > portScanHorizon {
			delete(ports, port)
			continue
		}
		count++
	}
	return count
}

func (e *HeuristicEngine) recentFlowCount(now time.Time) int {
	count := 0
	for _, stat := range e.flowStats {
		if now.Sub(stat.firstSeen) < recentFlowWindow {
			count++
		}
	}
	return count
}

func (e *HeuristicEngine) cleanup(now time.Time) {
	for key, stat := range e.flowStats {
		if now.Sub(stat.lastSeen) > statRetention {
			delete(e.flowStats, key)
		}
	}
	for src, ports := range e.srcPorts {
		for port, seen := range ports {
			if now.Sub(seen) > portScanHorizon {
				delete(ports, port)
			}
		}
		if len(ports) == 0 {
			delete(e.srcPorts, src)
		}
	}
}

// synthesizeClassProbs builds a normalized probability map whose
// maximum entry is the chosen class.
func synthesizeClassProbs(attackClass string, prob float64) map[string]float64 {
	classes := []string{
		model.ClassNormal, model.ClassDoS, model.ClassExploits,
		model.ClassFuzzers, model.ClassReconnaissance,
	}
	probs := make(map[string]float64, len(classes))
	for _, c := range classes {
		probs[c] = 0.05
	}
	attackEntry := maxFloat(0.6, prob)
	probs[attackClass] = attackEntry
	// The Normal share must never overtake the chosen class, even for
	// low-probability attacks admitted by a low threshold.
	probs[model.ClassNormal] = minFloat(maxFloat(0, 1-prob), attackEntry-0.05)

	sum := 0.0
	for _, p := range probs {
		sum += p
	}
	for c, p := range probs {
		probs[c] = p / sum
	}
	return probs
}

func flowKeyHash(key model.FlowKey) uint32 {
	h := fnv.New32a()
	h.Write([]byte(key.String()))
	return h.Sum32()
}

func maxFloat(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}

func minFloat(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}
