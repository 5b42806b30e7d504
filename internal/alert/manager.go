// Package alert converts qualifying predictions into deduplicated,
// severity-tagged alerts and persists them.
package alert

import (
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"netsentry/internal/logging"
	"netsentry/internal/metrics"
	"netsentry/internal/model"
)

// cooldownKey deduplicates alerts: at most one alert per
// (source, destination, attack class) within the cooldown window.
type cooldownKey struct {
	srcIP string
	dstIP string
	class string
}

// Manager owns the confidence/cooldown gate, severity assignment and
// alert persistence. Generate is called only from the processing
// goroutine; RecentAlerts may be called concurrently.
type Manager struct {
	minConfidence float64
	cooldown      time.Duration

	lastAlerted map[cooldownKey]time.Time
	ring        *Ring
	log         *JSONLSink
	archives    []model.AlertSink

	notifier    model.Notifier
	notifyFloor int

	persistFailures atomic.Uint64
	generated       atomic.Uint64

	logger *slog.Logger
}

// NewManager creates an alert manager writing to the JSONL log, with
// optional additional archive sinks.
func NewManager(minConfidence float64, cooldown time.Duration, ringSize int, logSink *JSONLSink, archives ...model.AlertSink) *Manager {
	return &Manager{
		minConfidence: minConfidence,
		cooldown:      cooldown,
		lastAlerted:   make(map[cooldownKey]time.Time),
		ring:          NewRing(ringSize),
		log:           logSink,
		archives:      archives,
		logger:        logging.Component("alert"),
	}
}

// SetNotifier attaches an out-of-band notifier for alerts at or above
// minSeverity. Notification runs off the processing goroutine and its
// failures are logged, never propagated.
func (m *Manager) SetNotifier(n model.Notifier, minSeverity string) {
	m.notifier = n
	m.notifyFloor = severityRank(minSeverity)
}

func severityRank(severity string) int {
	switch severity {
	case model.SeverityCritical:
		return 3
	case model.SeverityHigh:
		return 2
	case model.SeverityMedium:
		return 1
	default:
		return 0
	}
}

// ShouldAlert reports whether a prediction clears the confidence and
// cooldown gates. Passing refreshes the cooldown timestamp for the key.
func (m *Manager) ShouldAlert(pred *model.ModelPrediction) bool {
	if pred.AttackProbability < m.minConfidence {
		return false
	}

	key := keyFor(pred)
	if last, ok := m.lastAlerted[key]; ok {
		if pred.Timestamp.Sub(last) < m.cooldown {
			return false
		}
	}
	m.lastAlerted[key] = pred.Timestamp
	return true
}

// Severity assigns the alert severity. Rules are evaluated in order;
// the first match wins.
func Severity(pred *model.ModelPrediction) string {
	confidence := pred.AttackProbability
	class := pred.AttackClass

	if (class == model.ClassDoS || class == model.ClassExploits) && confidence > 0.9 {
		return model.SeverityCritical
	}
	if confidence > 0.85 {
		return model.SeverityHigh
	}
	if confidence > 0.75 {
		return model.SeverityMedium
	}
	return model.SeverityLow
}

// Generate produces an alert for an attack prediction, or nil when the
// gate rejects it. Persistence failure never suppresses the alert: it
// is still returned and kept in memory.
func (m *Manager) Generate(pred *model.ModelPrediction) *model.Alert {
	if !pred.IsAttack || !m.ShouldAlert(pred) {
		if pred.IsAttack {
			metrics.AlertsSuppressed.Inc()
		}
		return nil
	}

	attackType := pred.AttackClass
	if attackType == "" {
		attackType = "Unknown"
	}

	a := &model.Alert{
		Timestamp:         pred.Timestamp,
		ID:                uuid.NewString(),
		Severity:          Severity(pred),
		AttackType:        attackType,
		Confidence:        pred.AttackProbability,
		SourceIP:          pred.FlowKey.SrcIP,
		DestinationIP:     pred.FlowKey.DstIP,
		FlowKey:           pred.FlowKey,
		Description:       describe(pred),
		RecommendedAction: recommendedAction(pred.AttackClass),
		Prediction:        pred,
	}

	m.persist(a)
	m.ring.Push(a)
	m.generated.Add(1)
	metrics.AlertsGenerated.WithLabelValues(a.Severity).Inc()

	if m.notifier != nil && severityRank(a.Severity) >= m.notifyFloor {
		go func() {
			if err := m.notifier.Notify(a); err != nil {
				m.logger.Error("alert notification failed", logging.Err(err))
			}
		}()
	}

	m.logger.Warn("security alert",
		"severity", a.Severity,
		"attack_type", a.AttackType,
		"confidence", a.Confidence,
		"src", a.SourceIP,
		"dst", a.DestinationIP,
	)
	return a
}

func (m *Manager) persist(a *model.Alert) {
	if m.log != nil {
		if err := m.log.Write(a); err != nil {
			m.persistFailures.Add(1)
			metrics.PersistenceFailures.Inc()
			m.logger.Error("alert log write failed", logging.Err(err))
		}
	}
	for _, sink := range m.archives {
		if err := sink.Write(a); err != nil {
			m.persistFailures.Add(1)
			metrics.PersistenceFailures.Inc()
			m.logger.Error("alert archive write failed", logging.Err(err))
		}
	}
}

// RecentAlerts returns up to limit alerts, newest first. The ring
// buffer serves reads; when it is empty (fresh start) the durable log
// is consulted instead.
func (m *Manager) RecentAlerts(limit int) []*model.Alert {
	if m.ring.Len() > 0 {
		return m.ring.Recent(limit)
	}
	if m.log == nil {
		return nil
	}
	alerts, err := m.log.ReadRecent(limit)
	if err != nil {
		m.logger.Error("failed to read alert log", logging.Err(err))
		return nil
	}
	return alerts
}

// Generated returns the total number of alerts produced.
func (m *Manager) Generated() uint64 {
	return m.generated.Load()
}

// PersistFailures returns the persistence failure count.
func (m *Manager) PersistFailures() uint64 {
	return m.persistFailures.Load()
}

// CleanupCooldowns drops cooldown entries older than maxAge.
func (m *Manager) CleanupCooldowns(now time.Time, maxAge time.Duration) {
	for key, last := range m.lastAlerted {
		if now.Sub(last) > maxAge {
			delete(m.lastAlerted, key)
		}
	}
}

// Close closes all sinks.
func (m *Manager) Close() error {
	var firstErr error
	if m.log != nil {
		if err := m.log.Close(); err != nil {
			firstErr = err
		}
	}
	for _, sink := range m.archives {
		if err := sink.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func keyFor(pred *model.ModelPrediction) cooldownKey {
	class := pred.AttackClass
	if class == "" {
		class = "attack"
	}
	return cooldownKey{
		srcIP: pred.FlowKey.SrcIP,
		dstIP: pred.FlowKey.DstIP,
		class: class,
	}
}

func describe(pred *model.ModelPrediction) string {
	attackType := pred.AttackClass
	if attackType == "" {
		attackType = "Unknown Attack"
	}
	return fmt.Sprintf("%s detected from %s to %s:%d (confidence: %.1f%%)",
		attackType, pred.FlowKey.SrcIP, pred.FlowKey.DstIP, pred.FlowKey.DstPort,
		pred.AttackProbability*100)
}

func recommendedAction(class string) string {
	switch class {
	case model.ClassDoS:
		return "Consider rate limiting or blocking source IP"
	case model.ClassExploits:
		return "Investigate payload and consider blocking connection"
	case model.ClassReconnaissance:
		return "Monitor for follow-up attacks from this source"
	case model.ClassFuzzers:
		return "Check application logs for errors or crashes"
	default:
		return "Monitor connection and investigate if persistent"
	}
}
