package classify

import (
	"fmt"
	"math"
	"testing"
	"time"

	"netsentry/internal/model"
)

func benignVector(ts time.Time) *model.FeatureVector {
	return &model.FeatureVector{
		Timestamp: ts,
		FlowKey: model.FlowKey{
			SrcIP: "192.168.1.10", DstIP: "192.168.1.20",
			SrcPort: 44321, DstPort: 443, Protocol: model.ProtoTCP,
		},
		PacketSize:     512,
		PayloadEntropy: 4.5,
		TCPFlagsBitmap: 0x18, // PSH|ACK
	}
}

func TestProbabilityAlwaysBounded(t *testing.T) {
	e := NewHeuristicEngine(0.5)
	now := time.Now()

	vectors := []*model.FeatureVector{
		benignVector(now),
		{
			// Everything pathological at once.
			Timestamp: now,
			FlowKey: model.FlowKey{
				SrcIP: "10.0.0.1", DstIP: "10.0.0.2",
				SrcPort: 1, DstPort: 31337, Protocol: model.ProtoICMP,
			},
			PacketSize:     math.Inf(1),
			PayloadEntropy: math.NaN(),
			Burstiness:     math.Inf(-1),
		},
	}
	for i, fv := range vectors {
		pred := e.Predict(fv)
		if pred.AttackProbability < 0 || pred.AttackProbability > 1 {
			t.Errorf("vector %d: probability %v out of [0,1]", i, pred.AttackProbability)
		}
	}
}

func TestPortScanClassifiedReconnaissance(t *testing.T) {
	e := NewHeuristicEngine(0.5)
	now := time.Now()

	// One source probing ten distinct high ports within the scan horizon.
	var pred *model.ModelPrediction
	for i := 0; i < 10; i++ {
		fv := &model.FeatureVector{
			Timestamp: now.Add(time.Duration(i) * time.Second),
			FlowKey: model.FlowKey{
				SrcIP: "10.0.0.66", DstIP: "10.0.0.2",
				SrcPort: 40000, DstPort: uint16(8000 + i), Protocol: model.ProtoTCP,
			},
			PacketSize:     60,
			TCPFlagsBitmap: model.TCPFlagSYN,
		}
		pred = e.Predict(fv)
	}

	if !pred.IsAttack {
		t.Fatalf("port scan not flagged, probability %v", pred.AttackProbability)
	}
	if pred.AttackClass != model.ClassReconnaissance {
		t.Errorf("port scan class = %q, want %q", pred.AttackClass, model.ClassReconnaissance)
	}
}

func TestSynFloodClassifiedDoS(t *testing.T) {
	e := NewHeuristicEngine(0.5)
	now := time.Now()

	// Many sources opening half-connections to one service in a burst.
	var attacks, dos int
	for i := 0; i < 50; i++ {
		fv := &model.FeatureVector{
			Timestamp: now.Add(time.Duration(i) * 10 * time.Millisecond),
			FlowKey: model.FlowKey{
				SrcIP: fmt.Sprintf("10.1.%d.%d", i/250, i%250+1), DstIP: "10.0.0.2",
				SrcPort: 40000, DstPort: 80, Protocol: model.ProtoTCP,
			},
			PacketSize:     40,
			TCPFlagsBitmap: model.TCPFlagSYN,
		}
		pred := e.Predict(fv)
		if pred.IsAttack {
			attacks++
			if pred.AttackClass == model.ClassDoS {
				dos++
			}
		}
	}

	if attacks == 0 {
		t.Fatal("SYN flood produced no attack predictions")
	}
	if dos == 0 {
		t.Error("SYN flood never classified as DoS")
	}
}

func TestThresholdRetuning(t *testing.T) {
	e := NewHeuristicEngine(0.99)
	now := time.Now()

	// Uncommon high port guarantees a nonzero score.
	fv := &model.FeatureVector{
		Timestamp: now,
		FlowKey: model.FlowKey{
			SrcIP: "10.0.0.1", DstIP: "10.0.0.2",
			SrcPort: 40000, DstPort: 9999, Protocol: model.ProtoTCP,
		},
		PacketSize: 512,
	}
	if pred := e.Predict(fv); pred.IsAttack {
		t.Fatalf("threshold 0.99 should suppress, got probability %v", pred.AttackProbability)
	}

	e.SetThreshold(0)
	pred := e.Predict(fv)
	if !pred.IsAttack {
		t.Errorf("threshold 0 should flag any nonzero score, got %v", pred.AttackProbability)
	}
	if pred.ThresholdUsed != 0 {
		t.Errorf("prediction reports threshold %v, want 0", pred.ThresholdUsed)
	}
}

func TestClassProbabilitiesNormalized(t *testing.T) {
	e := NewHeuristicEngine(0.3)
	now := time.Now()

	var pred *model.ModelPrediction
	for i := 0; i < 10; i++ {
		fv := &model.FeatureVector{
			Timestamp: now.Add(time.Duration(i) * time.Second),
			FlowKey: model.FlowKey{
				SrcIP: "10.0.0.66", DstIP: "10.0.0.2",
				SrcPort: 40000, DstPort: uint16(8000 + i), Protocol: model.ProtoTCP,
			},
			PacketSize: 60,
		}
		pred = e.Predict(fv)
	}
	if !pred.IsAttack {
		t.Fatal("expected an attack prediction")
	}

	sum := 0.0
	best, bestProb := "", -1.0
	for class, p := range pred.ClassProbabilities {
		sum += p
		if p > bestProb {
			best, bestProb = class, p
		}
	}
	if math.Abs(sum-1.0) > 1e-9 {
		t.Errorf("class probabilities sum to %v, want 1", sum)
	}
	if best != pred.AttackClass {
		t.Errorf("argmax class %q does not match assigned class %q", best, pred.AttackClass)
	}
}

func TestLowThresholdArgmaxMatchesClass(t *testing.T) {
	e := NewHeuristicEngine(0.2)

	// Uncommon high port only: the score stays under 0.4, so the Normal
	// share of the class map would dominate without the cap.
	fv := &model.FeatureVector{
		Timestamp: time.Now(),
		FlowKey: model.FlowKey{
			SrcIP: "10.0.0.1", DstIP: "10.0.0.2",
			SrcPort: 40000, DstPort: 9999, Protocol: model.ProtoTCP,
		},
		PacketSize: 512,
	}
	pred := e.Predict(fv)
	if !pred.IsAttack {
		t.Fatalf("expected an attack at threshold 0.2, probability %v", pred.AttackProbability)
	}
	if pred.AttackProbability >= 0.4 {
		t.Fatalf("scenario needs a low-probability attack, got %v", pred.AttackProbability)
	}

	sum := 0.0
	best, bestProb := "", -1.0
	for class, p := range pred.ClassProbabilities {
		sum += p
		if p > bestProb {
			best, bestProb = class, p
		}
	}
	if math.Abs(sum-1.0) > 1e-9 {
		t.Errorf("class probabilities sum to %v, want 1", sum)
	}
	if best != pred.AttackClass {
		t.Errorf("argmax class %q does not match assigned class %q (probability %v)",
			best, pred.AttackClass, pred.AttackProbability)
	}
}

func TestDeterministicForSameInput(t *testing.T) {
	now := time.Now()
	a := NewHeuristicEngine(0.5).Predict(benignVector(now))
	b := NewHeuristicEngine(0.5).Predict(benignVector(now))
	if a.AttackProbability != b.AttackProbability {
		t.Errorf("same input produced %v and %v", a.AttackProbability, b.AttackProbability)
	}
}
