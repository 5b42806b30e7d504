package alert

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"netsentry/internal/model"
)

// Record is the durable wire form of an alert: one JSON object per
// line. The field set is a stable contract independent of which
// classification engine produced the prediction.
type Record struct {
	Timestamp         time.Time `json:"timestamp"`
	AlertID           string    `json:"alert_id"`
	Severity          string    `json:"severity"`
	AttackType        string    `json:"attack_type"`
	Confidence        float64   `json:"confidence"`
	SourceIP          string    `json:"source_ip"`
	DestinationIP     string    `json:"destination_ip"`
	DestinationPort   uint16    `json:"destination_port"`
	Protocol          string    `json:"protocol"`
	Description       string    `json:"description"`
	RecommendedAction string    `json:"recommended_action"`
	ProcessingTimeMs  float64   `json:"processing_time_ms"`
}

// JSONLSink appends alert records to a log file, one line per alert,
// flushed per write. The file is the durable source of truth; the ring
// buffer is only a cache over it.
type JSONLSink struct {
	path string
	file *os.File
	w    *bufio.Writer
}

// NewJSONLSink opens (or creates) the alert log for appending.
func NewJSONLSink(path string) (*JSONLSink, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create alert log directory: %w", err)
		}
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open alert log: %w", err)
	}
	return &JSONLSink{path: path, file: file, w: bufio.NewWriter(file)}, nil
}

// Write appends one alert and flushes.
func (s *JSONLSink) Write(a *model.Alert) error {
	data, err := json.Marshal(toRecord(a))
	if err != nil {
		return fmt.Errorf("%w: %v", model.ErrPersistence, err)
	}
	if _, err := s.w.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("%w: %v", model.ErrPersistence, err)
	}
	if err := s.w.Flush(); err != nil {
		return fmt.Errorf("%w: %v", model.ErrPersistence, err)
	}
	return nil
}

// Close flushes and closes the log file.
func (s *JSONLSink) Close() error {
	if err := s.w.Flush(); err != nil {
		return err
	}
	return s.file.Close()
}

// ReadRecent reads up to limit alerts back from the log, newest first.
// Undecodable lines are skipped: the log may contain partial writes
// after a crash.
func (s *JSONLSink) ReadRecent(limit int) ([]*model.Alert, error) {
	file, err := os.Open(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer file.Close()

	var alerts []*model.Alert
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		var rec Record
		if err := json.Unmarshal(scanner.Bytes(), &rec); err != nil {
			continue
		}
		alerts = append(alerts, fromRecord(&rec))
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	// File order is oldest first; reverse and cut.
	for i, j := 0, len(alerts)-1; i < j; i, j = i+1, j-1 {
		alerts[i], alerts[j] = alerts[j], alerts[i]
	}
	if limit > 0 && len(alerts) > limit {
		alerts = alerts[:limit]
	}
	return alerts, nil
}

func toRecord(a *model.Alert) *Record {
	rec := &Record{
		Timestamp:         a.Timestamp,
		AlertID:           a.ID,
		Severity:          a.Severity,
		AttackType:        a.AttackType,
		Confidence:        a.Confidence,
		SourceIP:          a.SourceIP,
		DestinationIP:     a.DestinationIP,
		DestinationPort:   a.FlowKey.DstPort,
		Protocol:          a.FlowKey.Protocol,
		Description:       a.Description,
		RecommendedAction: a.RecommendedAction,
	}
	if a.Prediction != nil {
		rec.ProcessingTimeMs = float64(a.Prediction.ProcessingTime.Microseconds()) / 1000
	}
	return rec
}

func fromRecord(rec *Record) *model.Alert {
	return &model.Alert{
		Timestamp:     rec.Timestamp,
		ID:            rec.AlertID,
		Severity:      rec.Severity,
		AttackType:    rec.AttackType,
		Confidence:    rec.Confidence,
		SourceIP:      rec.SourceIP,
		DestinationIP: rec.DestinationIP,
		FlowKey: model.FlowKey{
			SrcIP:    rec.SourceIP,
			DstIP:    rec.DestinationIP,
			DstPort:  rec.DestinationPort,
			Protocol: rec.Protocol,
		},
		Description:       rec.Description,
		RecommendedAction: rec.RecommendedAction,
	}
}
