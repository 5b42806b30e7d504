package flow

import (
	"testing"
	"time"

	"netsentry/internal/model"
)

func packetAt(ts time.Time, srcIP string, srcPort uint16, dstIP string, dstPort uint16, size int) *model.PacketRecord {
	return &model.PacketRecord{
		Timestamp: ts,
		SrcIP:     srcIP,
		DstIP:     dstIP,
		SrcPort:   srcPort,
		DstPort:   dstPort,
		Protocol:  model.ProtoTCP,
		Size:      size,
	}
}

func TestCanonicalKeyMergesBothDirections(t *testing.T) {
	table := NewTable(10, 5*time.Minute, time.Minute)
	now := time.Now()

	forward := packetAt(now, "10.0.0.1", 40000, "10.0.0.2", 80, 100)
	reverse := packetAt(now.Add(time.Millisecond), "10.0.0.2", 80, "10.0.0.1", 40000, 200)

	stateA, dirA := table.Observe(forward)
	stateB, dirB := table.Observe(reverse)

	if stateA != stateB {
		t.Fatalf("both directions should map to the same flow, got %v and %v", stateA.Key, stateB.Key)
	}
	if table.Count() != 1 {
		t.Errorf("expected 1 flow, got %d", table.Count())
	}
	if dirA != 0 {
		t.Errorf("initiator packet should have direction 0, got %d", dirA)
	}
	if dirB != 1 {
		t.Errorf("reply packet should have direction 1, got %d", dirB)
	}
	if stateA.SrcBytes != 100 || stateA.DstBytes != 200 {
		t.Errorf("directional byte attribution wrong: src=%d dst=%d", stateA.SrcBytes, stateA.DstBytes)
	}
}

func TestWindowsAreBounded(t *testing.T) {
	const windowSize = 3
	table := NewTable(windowSize, 5*time.Minute, time.Minute)
	now := time.Now()

	var state *State
	for i := 0; i < 10; i++ {
		rec := packetAt(now.Add(time.Duration(i)*time.Millisecond), "10.0.0.1", 40000, "10.0.0.2", 80, 100+i)
		state, _ = table.Observe(rec)
	}

	if len(state.WindowSizes) != windowSize {
		t.Errorf("size window should hold %d entries, got %d", windowSize, len(state.WindowSizes))
	}
	if len(state.WindowIATs) != windowSize {
		t.Errorf("IAT window should hold %d entries, got %d", windowSize, len(state.WindowIATs))
	}
	// Oldest entries must have been evicted, so the window starts at the
	// 8th packet's size.
	if state.WindowSizes[0] != 107 {
		t.Errorf("expected oldest surviving size 107, got %v", state.WindowSizes[0])
	}
	if state.SrcPackets != 10 {
		t.Errorf("cumulative counters must not be windowed, got %d packets", state.SrcPackets)
	}
}

func TestFirstPacketHasNoInterArrival(t *testing.T) {
	table := NewTable(10, 5*time.Minute, time.Minute)
	state, _ := table.Observe(packetAt(time.Now(), "10.0.0.1", 40000, "10.0.0.2", 80, 100))
	if len(state.WindowIATs) != 0 {
		t.Errorf("first packet should produce no inter-arrival sample, got %v", state.WindowIATs)
	}
}

func TestSweepEvictsIdleFlows(t *testing.T) {
	table := NewTable(10, time.Second, time.Minute)
	base := time.Now()

	table.Observe(packetAt(base, "10.0.0.1", 40000, "10.0.0.2", 80, 100))
	table.Observe(packetAt(base.Add(1500*time.Millisecond), "10.0.0.3", 40001, "10.0.0.4", 443, 100))

	evicted := table.Sweep(base.Add(2 * time.Second))
	if evicted != 1 {
		t.Fatalf("expected 1 eviction, got %d", evicted)
	}
	if table.Count() != 1 {
		t.Errorf("expected 1 surviving flow, got %d", table.Count())
	}

	// The survivor was idle for only 500ms.
	if evicted := table.Sweep(base.Add(2 * time.Second)); evicted != 0 {
		t.Errorf("second sweep at the same instant evicted %d flows", evicted)
	}
}

func TestFlowReappearsAfterEviction(t *testing.T) {
	table := NewTable(10, time.Second, time.Minute)
	base := time.Now()

	first, _ := table.Observe(packetAt(base, "10.0.0.1", 40000, "10.0.0.2", 80, 100))
	table.Sweep(base.Add(5 * time.Second))

	second, _ := table.Observe(packetAt(base.Add(6*time.Second), "10.0.0.1", 40000, "10.0.0.2", 80, 100))
	if first == second {
		t.Fatal("evicted flow must restart with fresh state")
	}
	if second.SrcPackets != 1 {
		t.Errorf("restarted flow should count from zero, got %d packets", second.SrcPackets)
	}
}

func TestResetClearsTable(t *testing.T) {
	table := NewTable(10, time.Minute, time.Minute)
	table.Observe(packetAt(time.Now(), "10.0.0.1", 40000, "10.0.0.2", 80, 100))
	table.Reset()
	if table.Count() != 0 {
		t.Errorf("expected empty table after reset, got %d", table.Count())
	}
}
