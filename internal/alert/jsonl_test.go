package alert

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"netsentry/internal/model"
)

func sampleAlert(id string, ts time.Time) *model.Alert {
	return &model.Alert{
		Timestamp:  ts,
		ID:         id,
		Severity:   model.SeverityHigh,
		AttackType: model.ClassDoS,
		Confidence: 0.9,
		SourceIP:   "10.0.0.1", DestinationIP: "10.0.0.2",
		FlowKey: model.FlowKey{
			SrcIP: "10.0.0.1", DstIP: "10.0.0.2",
			SrcPort: 40000, DstPort: 80, Protocol: model.ProtoTCP,
		},
		Description:       "DoS detected",
		RecommendedAction: "block",
	}
}

func TestJSONLWriteAndReadBack(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "alerts.jsonl")
	sink, err := NewJSONLSink(path)
	if err != nil {
		t.Fatal(err)
	}

	base := time.Now().UTC().Truncate(time.Millisecond)
	for i := 0; i < 5; i++ {
		if err := sink.Write(sampleAlert(string(rune('a'+i)), base.Add(time.Duration(i)*time.Second))); err != nil {
			t.Fatal(err)
		}
	}

	alerts, err := sink.ReadRecent(3)
	if err != nil {
		t.Fatal(err)
	}
	if len(alerts) != 3 {
		t.Fatalf("got %d alerts, want 3", len(alerts))
	}
	if alerts[0].ID != "e" || alerts[2].ID != "c" {
		t.Errorf("wrong order: %s..%s, want e..c", alerts[0].ID, alerts[2].ID)
	}
	if alerts[0].FlowKey.DstPort != 80 || alerts[0].FlowKey.Protocol != model.ProtoTCP {
		t.Errorf("flow fields not round-tripped: %+v", alerts[0].FlowKey)
	}

	if err := sink.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestJSONLSkipsCorruptLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "alerts.jsonl")
	sink, err := NewJSONLSink(path)
	if err != nil {
		t.Fatal(err)
	}
	defer sink.Close()

	if err := sink.Write(sampleAlert("good", time.Now())); err != nil {
		t.Fatal(err)
	}
	// Simulate a torn write from a crash.
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		t.Fatal(err)
	}
	f.WriteString(`{"timestamp": "partial`)
	f.Close()

	alerts, err := sink.ReadRecent(10)
	if err != nil {
		t.Fatal(err)
	}
	if len(alerts) != 1 || alerts[0].ID != "good" {
		t.Fatalf("corrupt line handling wrong: %d alerts", len(alerts))
	}
}

func TestJSONLReadMissingFile(t *testing.T) {
	sink := &JSONLSink{path: filepath.Join(t.TempDir(), "never-written.jsonl")}
	alerts, err := sink.ReadRecent(10)
	if err != nil {
		t.Fatalf("missing log must not error: %v", err)
	}
	if len(alerts) != 0 {
		t.Fatalf("missing log returned %d alerts", len(alerts))
	}
}

func TestRingEviction(t *testing.T) {
	ring := NewRing(3)
	for i := 0; i < 5; i++ {
		ring.Push(sampleAlert(string(rune('a'+i)), time.Now()))
	}
	if ring.Len() != 3 {
		t.Fatalf("ring length = %d, want 3", ring.Len())
	}
	recent := ring.Recent(10)
	if recent[0].ID != "e" || recent[2].ID != "c" {
		t.Errorf("ring order wrong: %s..%s, want e..c", recent[0].ID, recent[2].ID)
	}
}
