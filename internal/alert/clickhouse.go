package alert

import (
	"context"
	"fmt"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"

	"netsentry/internal/config"
	"netsentry/internal/logging"
	"netsentry/internal/model"
)

const createAlertTableStatement = `
CREATE TABLE IF NOT EXISTS security_alerts (
    Timestamp         DateTime64(3),
    AlertID           String,
    Severity          String,
    AttackType        String,
    Confidence        Float64,
    SourceIP          String,
    DestinationIP     String,
    DestinationPort   UInt16,
    Protocol          String,
    Description       String,
    RecommendedAction String,
    ProcessingTimeMs  Float64
) ENGINE = MergeTree()
PARTITION BY toYYYYMM(Timestamp)
ORDER BY (Severity, Timestamp);
`

// ClickHouseSink archives alerts to ClickHouse for offline analytics.
// It is an optional secondary sink: the JSONL log stays authoritative.
type ClickHouseSink struct {
	conn driver.Conn
}

// NewClickHouseSink connects and ensures the alert table exists.
func NewClickHouseSink(cfg config.ClickHouseConfig) (*ClickHouseSink, error) {
	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)},
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.Username,
			Password: cfg.Password,
		},
		Compression: &clickhouse.Compression{
			Method: clickhouse.CompressionLZ4,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to clickhouse: %w", err)
	}
	if err := conn.Ping(context.Background()); err != nil {
		return nil, fmt.Errorf("failed to ping clickhouse: %w", err)
	}
	if err := conn.Exec(context.Background(), createAlertTableStatement); err != nil {
		return nil, fmt.Errorf("failed to create alert table: %w", err)
	}
	logging.Component("alert").Info("connected to ClickHouse alert archive", "host", cfg.Host)
	return &ClickHouseSink{conn: conn}, nil
}

// Write inserts a single alert row.
func (s *ClickHouseSink) Write(a *model.Alert) error {
	rec := toRecord(a)
	err := s.conn.Exec(context.Background(),
		`INSERT INTO security_alerts VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.Timestamp, rec.AlertID, rec.Severity, rec.AttackType, rec.Confidence,
		rec.SourceIP, rec.DestinationIP, rec.DestinationPort, rec.Protocol,
		rec.Description, rec.RecommendedAction, rec.ProcessingTimeMs,
	)
	if err != nil {
		return fmt.Errorf("%w: clickhouse insert: %v", model.ErrPersistence, err)
	}
	return nil
}

// Close closes the connection.
func (s *ClickHouseSink) Close() error {
	return s.conn.Close()
}
