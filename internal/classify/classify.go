// Package classify implements the pluggable classification contract:
// a deterministic heuristic engine that is always available, and an
// artifact engine that replays an externally trained linear model.
package classify

import (
	"math"
	"sync/atomic"

	"netsentry/internal/config"
	"netsentry/internal/logging"
	"netsentry/internal/model"
)

// New builds the configured classifier. When the artifact engine cannot
// load its artifact the heuristic engine is returned instead and the
// second result reports degraded operation; startup never fails here.
func New(cfg config.ClassifierConfig) (model.Classifier, bool) {
	if cfg.Engine == "artifact" {
		engine, err := NewArtifactEngine(cfg.ArtifactPath, cfg.Threshold)
		if err != nil {
			logging.Component("classify").Warn("artifact engine unavailable, falling back to heuristic",
				"path", cfg.ArtifactPath, logging.Err(err))
			return NewHeuristicEngine(cfg.Threshold), true
		}
		return engine, false
	}
	return NewHeuristicEngine(cfg.Threshold), false
}

// threshold stores the binary decision threshold with atomic access, so
// the API goroutine can retune it while the processing goroutine
// predicts.
type threshold struct {
	bits atomic.Uint64
}

func (t *threshold) set(v float64) {
	t.bits.Store(math.Float64bits(clamp01(v)))
}

func (t *threshold) get() float64 {
	return math.Float64frombits(t.bits.Load())
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}

// sanitize maps NaN and infinities to 0 at the classification boundary.
// The extractor intentionally leaves raw anomalies visible.
func sanitize(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}

func sigmoid(z float64) float64 {
	return 1 / (1 + math.Exp(-z))
}
