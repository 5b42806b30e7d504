// Package flow tracks per-flow state: directional counters, TCP flag
// counts and bounded sliding-window history for trend statistics.
package flow

import (
	"sync/atomic"
	"time"

	"netsentry/internal/metrics"
	"netsentry/internal/model"
)

// State is the mutable record for one flow. It is owned exclusively by
// the Table; only the processing goroutine touches it.
type State struct {
	Key       model.FlowKey
	Initiator model.FlowKey
	StartTime time.Time
	LastSeen  time.Time

	// Direction 0 is the initiator's direction, 1 the reverse.
	SrcPackets uint64
	SrcBytes   uint64
	DstPackets uint64
	DstBytes   uint64

	SynCount uint64
	FinCount uint64
	RstCount uint64

	// Bounded sliding windows, oldest first.
	WindowSizes []float64
	WindowIATs  []float64

	// Recent packet timestamps, bounded like the windows; the last
	// entry seeds the next inter-arrival delta.
	recentTimes []time.Time
}

// LastPacketTime returns the timestamp of the most recent packet before
// the current one, and whether one exists.
func (s *State) LastPacketTime() (time.Time, bool) {
	if len(s.recentTimes) == 0 {
		return time.Time{}, false
	}
	return s.recentTimes[len(s.recentTimes)-1], true
}

// Table maintains all live flows. Single-writer: only the processing
// goroutine calls Observe/Sweep/Reset. Count is safe to read from any
// goroutine.
type Table struct {
	windowSize     int
	sessionTimeout time.Duration
	sweepInterval  time.Duration

	flows     map[model.FlowKey]*State
	count     atomic.Int64
	lastSweep time.Time
}

// NewTable creates an empty flow table.
func NewTable(windowSize int, sessionTimeout, sweepInterval time.Duration) *Table {
	return &Table{
		windowSize:     windowSize,
		sessionTimeout: sessionTimeout,
		sweepInterval:  sweepInterval,
		flows:          make(map[model.FlowKey]*State),
	}
}

// CanonicalKey returns the direction-independent key for a record: the
// lexicographically smaller endpoint is always placed first, so both
// legs of a conversation map to the same flow.
func CanonicalKey(rec *model.PacketRecord) model.FlowKey {
	key := model.FlowKey{
		SrcIP:    rec.SrcIP,
		DstIP:    rec.DstIP,
		SrcPort:  rec.SrcPort,
		DstPort:  rec.DstPort,
		Protocol: rec.Protocol,
	}
	if !endpointLess(rec.SrcIP, rec.SrcPort, rec.DstIP, rec.DstPort) {
		key = key.Reverse()
	}
	return key
}

func endpointLess(aIP string, aPort uint16, bIP string, bPort uint16) bool {
	if aIP != bIP {
		return aIP < bIP
	}
	return aPort <= bPort
}

// Observe runs the full per-packet path: get-or-create, update, and a
// sweep when the sweep interval has elapsed. It returns the flow state
// and the packet's direction within it.
func (t *Table) Observe(rec *model.PacketRecord) (*State, int) {
	state := t.GetOrCreate(rec)
	dir := t.Update(state, rec)
	t.maybeSweep(rec.Timestamp)
	return state, dir
}

// GetOrCreate returns the flow for a record, creating it on first sight
// with the record's own tuple remembered as the initiator.
func (t *Table) GetOrCreate(rec *model.PacketRecord) *State {
	key := CanonicalKey(rec)
	if state, ok := t.flows[key]; ok {
		return state
	}
	state := &State{
		Key: key,
		Initiator: model.FlowKey{
			SrcIP:    rec.SrcIP,
			DstIP:    rec.DstIP,
			SrcPort:  rec.SrcPort,
			DstPort:  rec.DstPort,
			Protocol: rec.Protocol,
		},
		StartTime: rec.Timestamp,
		LastSeen:  rec.Timestamp,
	}
	t.flows[key] = state
	t.count.Store(int64(len(t.flows)))
	metrics.ActiveFlows.Set(float64(len(t.flows)))
	return state
}

// Update folds one record into the flow state and returns the packet's
// direction: 0 when its source tuple matches the initiator, 1 otherwise.
func (t *Table) Update(state *State, rec *model.PacketRecord) int {
	state.LastSeen = rec.Timestamp

	dir := 1
	if rec.SrcIP == state.Initiator.SrcIP && rec.SrcPort == state.Initiator.SrcPort {
		dir = 0
	}
	if dir == 0 {
		state.SrcPackets++
		state.SrcBytes += uint64(rec.Size)
	} else {
		state.DstPackets++
		state.DstBytes += uint64(rec.Size)
	}

	if rec.TCP != nil {
		if rec.TCP.Flags&model.TCPFlagSYN != 0 {
			state.SynCount++
		}
		if rec.TCP.Flags&model.TCPFlagFIN != 0 {
			state.FinCount++
		}
		if rec.TCP.Flags&model.TCPFlagRST != 0 {
			state.RstCount++
		}
	}

	if last, ok := state.LastPacketTime(); ok {
		iat := rec.Timestamp.Sub(last).Seconds()
		if iat < 0 {
			iat = 0
		}
		state.WindowIATs = append(state.WindowIATs, iat)
		if len(state.WindowIATs) > t.windowSize {
			state.WindowIATs = state.WindowIATs[1:]
		}
	}

	state.WindowSizes = append(state.WindowSizes, float64(rec.Size))
	if len(state.WindowSizes) > t.windowSize {
		state.WindowSizes = state.WindowSizes[1:]
	}

	state.recentTimes = append(state.recentTimes, rec.Timestamp)
	if len(state.recentTimes) > t.windowSize {
		state.recentTimes = state.recentTimes[1:]
	}

	return dir
}

// maybeSweep runs a sweep only when the sweep interval has elapsed, so
// eviction cost is amortized across packets instead of paid per packet.
func (t *Table) maybeSweep(now time.Time) {
	if t.lastSweep.IsZero() {
		t.lastSweep = now
		return
	}
	if now.Sub(t.lastSweep) < t.sweepInterval {
		return
	}
	t.Sweep(now)
}

// Sweep evicts every flow idle for longer than the session timeout and
// returns how many were removed.
func (t *Table) Sweep(now time.Time) int {
	evicted := 0
	for key, state := range t.flows {
		if now.Sub(state.LastSeen) > t.sessionTimeout {
			delete(t.flows, key)
			evicted++
		}
	}
	if evicted > 0 {
		metrics.FlowsEvicted.Add(float64(evicted))
	}
	t.count.Store(int64(len(t.flows)))
	metrics.ActiveFlows.Set(float64(len(t.flows)))
	t.lastSweep = now
	return evicted
}

// Count returns the current number of tracked flows. Safe for
// concurrent use from status reporting.
func (t *Table) Count() int {
	return int(t.count.Load())
}

// Reset drops all flow state. Used by tests and session teardown.
func (t *Table) Reset() {
	t.flows = make(map[model.FlowKey]*State)
	t.count.Store(0)
	metrics.ActiveFlows.Set(0)
	t.lastSweep = time.Time{}
}
