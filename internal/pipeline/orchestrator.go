// Package pipeline owns the processing loop that drives packets through
// flow tracking, feature extraction, classification and alerting.
package pipeline

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"netsentry/internal/alert"
	"netsentry/internal/feature"
	"netsentry/internal/flow"
	"netsentry/internal/logging"
	"netsentry/internal/metrics"
	"netsentry/internal/model"
)

const (
	// idlePause is the sleep when no record is available, keeping the
	// ingest and processing loops from spinning.
	idlePause = time.Millisecond

	// stopTimeout bounds how long Stop waits for the loops to drain.
	stopTimeout = 5 * time.Second
)

// Status is a point-in-time snapshot of pipeline health. Counters are
// read with relaxed consistency: slightly stale values are acceptable.
type Status struct {
	Running          bool    `json:"running"`
	Degraded         bool    `json:"degraded"`
	UptimeSeconds    float64 `json:"uptime_seconds"`
	PacketsProcessed uint64  `json:"packets_processed"`
	AlertsGenerated  uint64  `json:"alerts_generated"`
	PacketsDropped   uint64  `json:"packets_dropped"`
	ActiveFlows      int     `json:"active_flows"`
	AvgLatencyMs     float64 `json:"avg_latency_ms"`
	P95LatencyMs     float64 `json:"p95_latency_ms"`
	PacketsPerSecond float64 `json:"packets_per_second"`
}

// ReplayResult aggregates an offline run.
type ReplayResult struct {
	PacketsProcessed uint64
	AlertsGenerated  uint64
	Elapsed          time.Duration
	PacketsPerSecond float64
	AvgLatencyMs     float64
	P95LatencyMs     float64
}

// Orchestrator wires the components together and runs the two
// execution contexts: an ingest loop that only enqueues, and a single
// processing loop that owns all mutable pipeline state.
type Orchestrator struct {
	source     model.CaptureSource
	flows      *flow.Table
	extractor  *feature.Extractor
	classifier model.Classifier
	alerts     *alert.Manager
	degraded   bool

	queue chan *model.PacketRecord
	stop  chan struct{}
	wg    sync.WaitGroup

	running   atomic.Bool
	startedAt atomic.Int64 // unix nanos

	packetsProcessed atomic.Uint64
	packetsDropped   atomic.Uint64
	latencies        *latencyWindow

	logger *slog.Logger
}

// New creates an orchestrator. degraded marks that the configured
// classifier was replaced by the heuristic fallback.
func New(source model.CaptureSource, flows *flow.Table, extractor *feature.Extractor,
	classifier model.Classifier, alerts *alert.Manager, queueSize, latencySamples int, degraded bool) *Orchestrator {
	return &Orchestrator{
		source:     source,
		flows:      flows,
		extractor:  extractor,
		classifier: classifier,
		alerts:     alerts,
		degraded:   degraded,
		queue:      make(chan *model.PacketRecord, queueSize),
		latencies:  newLatencyWindow(latencySamples),
		logger:     logging.Component("pipeline"),
	}
}

// Start launches the capture source, the ingest loop and the processing
// loop. Idempotent: a second Start while running is a no-op.
func (o *Orchestrator) Start() error {
	if !o.running.CompareAndSwap(false, true) {
		return nil
	}
	if err := o.source.Start(); err != nil {
		o.running.Store(false)
		return err
	}

	o.stop = make(chan struct{})
	o.startedAt.Store(time.Now().UnixNano())

	o.wg.Add(2)
	go o.ingestLoop()
	go o.processLoop()

	o.logger.Info("detection started", "degraded", o.degraded)
	return nil
}

// Stop signals cooperative cancellation and joins both loops within a
// bounded timeout. Idempotent. Queued backlog beyond the timeout is
// abandoned, not drained.
func (o *Orchestrator) Stop() {
	if !o.running.CompareAndSwap(true, false) {
		return
	}
	close(o.stop)
	o.source.Stop()

	done := make(chan struct{})
	go func() {
		o.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(stopTimeout):
		o.logger.Warn("processing loop did not drain before timeout")
	}
	o.logger.Info("detection stopped",
		"packets_processed", o.packetsProcessed.Load(),
		"alerts_generated", o.alerts.Generated(),
	)
}

// Running reports whether the pipeline is active.
func (o *Orchestrator) Running() bool {
	return o.running.Load()
}

// SetThreshold retunes the active classifier.
func (o *Orchestrator) SetThreshold(t float64) {
	o.classifier.SetThreshold(t)
}

// Alerts exposes the alert manager for the status transport.
func (o *Orchestrator) Alerts() *alert.Manager {
	return o.alerts
}

// ingestLoop pulls records from the source and enqueues them. It never
// blocks on a full queue: the overflow policy is to drop the incoming
// record and count it, preserving the order of records already queued.
func (o *Orchestrator) ingestLoop() {
	defer o.wg.Done()
	for {
		select {
		case <-o.stop:
			return
		default:
		}
		rec, ok := o.source.TryNext()
		if !ok {
			time.Sleep(idlePause)
			continue
		}
		// Overflow surfaces through the drop counters; the loop keeps going.
		_ = o.Enqueue(rec)
	}
}

// Enqueue offers a record to the processing queue without blocking. A
// full queue drops the record, counts it and reports ErrQueueOverflow.
func (o *Orchestrator) Enqueue(rec *model.PacketRecord) error {
	select {
	case o.queue <- rec:
		return nil
	default:
		o.packetsDropped.Add(1)
		metrics.PacketsDropped.Inc()
		return model.ErrQueueOverflow
	}
}

// processLoop is the single consumer of the queue and the only writer
// of flow and cooldown state.
func (o *Orchestrator) processLoop() {
	defer o.wg.Done()
	for {
		select {
		case <-o.stop:
			return
		case rec := <-o.queue:
			o.process(rec)
		}
	}
}

// process runs one record through the full chain.
func (o *Orchestrator) process(rec *model.PacketRecord) {
	start := time.Now()

	state, dir := o.flows.Observe(rec)
	fv := o.extractor.Extract(rec, state, dir)
	pred := o.classifier.Predict(fv)
	if pred.IsAttack {
		o.alerts.Generate(pred)
	}

	o.packetsProcessed.Add(1)
	metrics.PacketsProcessed.Inc()

	elapsed := time.Since(start)
	o.latencies.add(float64(elapsed.Microseconds()) / 1000)
	metrics.ProcessingLatency.Observe(elapsed.Seconds())
}

// Status returns a snapshot of the pipeline counters.
func (o *Orchestrator) Status() Status {
	avg, p95 := o.latencies.stats()

	var uptime float64
	if started := o.startedAt.Load(); started > 0 && o.running.Load() {
		uptime = time.Since(time.Unix(0, started)).Seconds()
	}

	processed := o.packetsProcessed.Load()
	var pps float64
	if uptime > 0 {
		pps = float64(processed) / uptime
	}

	return Status{
		Running:          o.running.Load(),
		Degraded:         o.degraded,
		UptimeSeconds:    uptime,
		PacketsProcessed: processed,
		AlertsGenerated:  o.alerts.Generated(),
		PacketsDropped:   o.packetsDropped.Load(),
		ActiveFlows:      o.flows.Count(),
		AvgLatencyMs:     avg,
		P95LatencyMs:     p95,
		PacketsPerSecond: pps,
	}
}

// Replay processes a finite, ordered record sequence synchronously,
// sleeping between records to reproduce the original relative timing
// scaled by speed (2.0 = twice as fast, 0 = no sleeping). Cancellation
// via Stop is observed during sleeps.
func (o *Orchestrator) Replay(records []*model.PacketRecord, speed float64) ReplayResult {
	if !o.running.CompareAndSwap(false, true) {
		return ReplayResult{}
	}
	o.stop = make(chan struct{})
	o.startedAt.Store(time.Now().UnixNano())
	defer o.running.Store(false)

	start := time.Now()
	alertsBefore := o.alerts.Generated()
	var processed uint64

	var prevTimestamp time.Time
replay:
	for i, rec := range records {
		if i > 0 && speed > 0 {
			if gap := rec.Timestamp.Sub(prevTimestamp); gap > 0 {
				scaled := time.Duration(float64(gap) / speed)
				select {
				case <-o.stop:
					break replay
				case <-time.After(scaled):
				}
			}
		}
		prevTimestamp = rec.Timestamp

		select {
		case <-o.stop:
			break replay
		default:
		}
		o.process(rec)
		processed++
	}

	elapsed := time.Since(start)
	avg, p95 := o.latencies.stats()
	result := ReplayResult{
		PacketsProcessed: processed,
		AlertsGenerated:  o.alerts.Generated() - alertsBefore,
		Elapsed:          elapsed,
		AvgLatencyMs:     avg,
		P95LatencyMs:     p95,
	}
	if secs := elapsed.Seconds(); secs > 0 {
		result.PacketsPerSecond = float64(processed) / secs
	}
	o.logger.Info("replay complete",
		"packets", result.PacketsProcessed,
		"alerts", result.AlertsGenerated,
		"elapsed", result.Elapsed,
	)
	return result
}
