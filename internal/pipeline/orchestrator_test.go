package pipeline

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"netsentry/internal/alert"
	"netsentry/internal/capture"
	"netsentry/internal/classify"
	"netsentry/internal/feature"
	"netsentry/internal/flow"
	"netsentry/internal/model"
)

func newTestOrchestrator(records []*model.PacketRecord, queueSize int) *Orchestrator {
	flows := flow.NewTable(10, 5*time.Minute, time.Minute)
	extractor := feature.NewExtractor(1500)
	classifier := classify.NewHeuristicEngine(0.5)
	alerts := alert.NewManager(0.7, 30*time.Second, 100, nil)
	source := capture.NewReplaySource(records)
	return New(source, flows, extractor, classifier, alerts, queueSize, 100, false)
}

func synFloodRecords(n int) []*model.PacketRecord {
	base := time.Now()
	records := make([]*model.PacketRecord, 0, n)
	for i := 0; i < n; i++ {
		records = append(records, &model.PacketRecord{
			Timestamp: base.Add(time.Duration(i) * 10 * time.Millisecond),
			SrcIP:     fmt.Sprintf("10.1.0.%d", i%250+1),
			DstIP:     "10.0.0.2",
			SrcPort:   40000,
			DstPort:   80,
			Protocol:  model.ProtoTCP,
			Size:      40,
			TCP:       &model.TCPInfo{Flags: model.TCPFlagSYN},
		})
	}
	return records
}

func portScanRecords(n int) []*model.PacketRecord {
	base := time.Now()
	records := make([]*model.PacketRecord, 0, n)
	for i := 0; i < n; i++ {
		records = append(records, &model.PacketRecord{
			Timestamp: base.Add(time.Duration(i) * 10 * time.Millisecond),
			SrcIP:     "10.0.0.66",
			DstIP:     "10.0.0.2",
			SrcPort:   40000,
			DstPort:   uint16(8000 + i),
			Protocol:  model.ProtoTCP,
			Size:      60,
			TCP:       &model.TCPInfo{Flags: model.TCPFlagSYN},
		})
	}
	return records
}

func TestStatusBeforeStart(t *testing.T) {
	o := newTestOrchestrator(nil, 10)
	s := o.Status()
	if s.Running {
		t.Error("fresh orchestrator reports running")
	}
	if s.PacketsProcessed != 0 || s.AlertsGenerated != 0 || s.PacketsDropped != 0 {
		t.Errorf("fresh orchestrator has nonzero counters: %+v", s)
	}
	if s.ActiveFlows != 0 || s.UptimeSeconds != 0 {
		t.Errorf("fresh orchestrator has state: %+v", s)
	}
}

func TestReplayProcessesEverything(t *testing.T) {
	records := synFloodRecords(50)
	o := newTestOrchestrator(records, 100)

	result := o.Replay(records, 0)

	if result.PacketsProcessed != 50 {
		t.Fatalf("processed %d packets, want 50", result.PacketsProcessed)
	}
	if result.AlertsGenerated == 0 {
		t.Error("SYN flood replay produced no alerts")
	}
	if result.PacketsPerSecond <= 0 {
		t.Errorf("throughput = %v, want > 0", result.PacketsPerSecond)
	}
	if o.Running() {
		t.Error("orchestrator still running after replay")
	}
}

// The scanner's IP sorts after the victim's, so the canonical flow key
// reverses the endpoints. Attribution must still follow the packets.
func TestPortScanAttributedToScanner(t *testing.T) {
	records := portScanRecords(10)
	o := newTestOrchestrator(records, 100)

	result := o.Replay(records, 0)
	if result.AlertsGenerated == 0 {
		t.Fatal("port scan replay produced no alerts")
	}

	recon := false
	for _, a := range o.Alerts().RecentAlerts(10) {
		if a.SourceIP == "10.0.0.2" {
			t.Errorf("alert names the victim as source: %s -> %s", a.SourceIP, a.DestinationIP)
		}
		if a.AttackType == model.ClassReconnaissance {
			recon = true
			if a.SourceIP != "10.0.0.66" || a.DestinationIP != "10.0.0.2" {
				t.Errorf("reconnaissance attributed to %s -> %s, want 10.0.0.66 -> 10.0.0.2",
					a.SourceIP, a.DestinationIP)
			}
		}
	}
	if !recon {
		t.Error("port scan never classified as reconnaissance")
	}
}

func TestReplayHonorsTiming(t *testing.T) {
	base := time.Now()
	records := []*model.PacketRecord{
		{Timestamp: base, SrcIP: "10.0.0.1", DstIP: "10.0.0.2", SrcPort: 1, DstPort: 80, Protocol: model.ProtoTCP, Size: 60},
		{Timestamp: base.Add(100 * time.Millisecond), SrcIP: "10.0.0.1", DstIP: "10.0.0.2", SrcPort: 1, DstPort: 80, Protocol: model.ProtoTCP, Size: 60},
	}
	o := newTestOrchestrator(records, 10)

	// At speed 2 a 100ms gap replays in ~50ms.
	start := time.Now()
	o.Replay(records, 2)
	elapsed := time.Since(start)

	if elapsed < 40*time.Millisecond {
		t.Errorf("replay finished in %v, expected the scaled gap to be honored", elapsed)
	}
}

func TestEnqueueOverflowDropsIncoming(t *testing.T) {
	o := newTestOrchestrator(nil, 2)
	records := synFloodRecords(5)

	// Nothing consumes the queue: the third record onward must be dropped.
	overflow := 0
	for _, rec := range records {
		if err := o.Enqueue(rec); err != nil {
			if !errors.Is(err, model.ErrQueueOverflow) {
				t.Fatalf("unexpected enqueue error: %v", err)
			}
			overflow++
		}
	}
	if overflow != 3 {
		t.Errorf("enqueue reported %d overflows, want 3", overflow)
	}
	if got := o.Status().PacketsDropped; got != 3 {
		t.Errorf("dropped %d packets, want 3", got)
	}
}

func TestStartStopIdempotent(t *testing.T) {
	o := newTestOrchestrator(synFloodRecords(10), 100)

	if err := o.Start(); err != nil {
		t.Fatal(err)
	}
	if err := o.Start(); err != nil {
		t.Errorf("second Start errored: %v", err)
	}
	if !o.Running() {
		t.Fatal("orchestrator not running after Start")
	}

	// Give the loops a moment to drain the replay source.
	time.Sleep(50 * time.Millisecond)

	o.Stop()
	o.Stop()
	if o.Running() {
		t.Error("orchestrator still running after Stop")
	}

	if got := o.Status().PacketsProcessed; got != 10 {
		t.Errorf("processed %d packets, want 10", got)
	}
}

func TestLatencyWindowStats(t *testing.T) {
	w := newLatencyWindow(5)
	avg, p95 := w.stats()
	if avg != 0 || p95 != 0 {
		t.Errorf("empty window stats = %v, %v, want 0, 0", avg, p95)
	}

	for _, v := range []float64{1, 2, 3, 4, 100} {
		w.add(v)
	}
	avg, p95 = w.stats()
	if avg != 22 {
		t.Errorf("avg = %v, want 22", avg)
	}
	if p95 != 100 {
		t.Errorf("p95 = %v, want 100", p95)
	}

	// Window wraps: old samples fall out.
	w.add(5)
	avg, _ = w.stats()
	if avg != (2+3+4+100+5)/5.0 {
		t.Errorf("avg after wrap = %v", avg)
	}
}
