// Package query reads back archived alerts from ClickHouse. The live
// ring buffer answers "what just happened"; this package answers
// historical questions across restarts.
package query

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"

	"netsentry/internal/config"
)

// HistoryRequest filters the alert archive. Zero values mean
// "no constraint".
type HistoryRequest struct {
	Since      time.Time `json:"since"`
	Until      time.Time `json:"until"`
	Severity   string    `json:"severity"`
	AttackType string    `json:"attack_type"`
	SourceIP   string    `json:"source_ip"`
	Limit      int       `json:"limit"`
}

// HistoryRow is one archived alert.
type HistoryRow struct {
	Timestamp     time.Time `json:"timestamp"`
	AlertID       string    `json:"alert_id"`
	Severity      string    `json:"severity"`
	AttackType    string    `json:"attack_type"`
	Confidence    float64   `json:"confidence"`
	SourceIP      string    `json:"source_ip"`
	DestinationIP string    `json:"destination_ip"`
	Description   string    `json:"description"`
}

// SourceSummary aggregates archived alerts per offending source.
type SourceSummary struct {
	SourceIP    string `json:"source_ip"`
	AlertCount  uint64 `json:"alert_count"`
	MaxSeverity string `json:"max_severity"`
}

// Querier is the read-side contract over the alert archive.
type Querier interface {
	AlertHistory(ctx context.Context, req *HistoryRequest) ([]HistoryRow, error)
	TopSources(ctx context.Context, since time.Time, limit int) ([]SourceSummary, error)
}

type clickhouseQuerier struct {
	conn driver.Conn
}

// NewClickHouseQuerier connects to the alert archive.
func NewClickHouseQuerier(cfg config.ClickHouseConfig) (Querier, error) {
	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)},
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.Username,
			Password: cfg.Password,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to clickhouse: %w", err)
	}
	if err := conn.Ping(context.Background()); err != nil {
		return nil, fmt.Errorf("failed to ping clickhouse: %w", err)
	}
	return &clickhouseQuerier{conn: conn}, nil
}

// AlertHistory builds and executes a filtered history query, newest
// alerts first.
func (q *clickhouseQuerier) AlertHistory(ctx context.Context, req *HistoryRequest) ([]HistoryRow, error) {
	var queryBuilder strings.Builder
	queryBuilder.WriteString(`
		SELECT Timestamp, AlertID, Severity, AttackType, Confidence,
		       SourceIP, DestinationIP, Description
		FROM security_alerts
	`)

	var whereClauses []string
	args := []interface{}{}

	if !req.Since.IsZero() {
		whereClauses = append(whereClauses, "Timestamp >= ?")
		args = append(args, req.Since)
	}
	if !req.Until.IsZero() {
		whereClauses = append(whereClauses, "Timestamp <= ?")
		args = append(args, req.Until)
	}
	if req.Severity != "" {
		whereClauses = append(whereClauses, "Severity = ?")
		args = append(args, req.Severity)
	}
	if req.AttackType != "" {
		whereClauses = append(whereClauses, "AttackType = ?")
		args = append(args, req.AttackType)
	}
	if req.SourceIP != "" {
		whereClauses = append(whereClauses, "SourceIP = ?")
		args = append(args, req.SourceIP)
	}

	if len(whereClauses) > 0 {
		queryBuilder.WriteString(" WHERE " + strings.Join(whereClauses, " AND "))
	}

	queryBuilder.WriteString(" ORDER BY Timestamp DESC")
	limit := req.Limit
	if limit <= 0 {
		limit = 100
	}
	queryBuilder.WriteString(" LIMIT ?")
	args = append(args, limit)

	rows, err := q.conn.Query(ctx, queryBuilder.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query alert history: %w", err)
	}
	defer rows.Close()

	var out []HistoryRow
	for rows.Next() {
		var row HistoryRow
		if err := rows.Scan(&row.Timestamp, &row.AlertID, &row.Severity, &row.AttackType,
			&row.Confidence, &row.SourceIP, &row.DestinationIP, &row.Description); err != nil {
			return nil, fmt.Errorf("failed to scan history row: %w", err)
		}
		out = append(out, row)
	}
	return out, nil
}

// TopSources returns the sources with the most archived alerts since
// the given instant.
func (q *clickhouseQuerier) TopSources(ctx context.Context, since time.Time, limit int) ([]SourceSummary, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := q.conn.Query(ctx, `
		SELECT SourceIP, COUNT(*) AS AlertCount, max(Severity) AS MaxSeverity
		FROM security_alerts
		WHERE Timestamp >= ?
		GROUP BY SourceIP
		ORDER BY AlertCount DESC
		LIMIT ?
	`, since, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query top sources: %w", err)
	}
	defer rows.Close()

	var out []SourceSummary
	for rows.Next() {
		var s SourceSummary
		if err := rows.Scan(&s.SourceIP, &s.AlertCount, &s.MaxSeverity); err != nil {
			return nil, fmt.Errorf("failed to scan source summary: %w", err)
		}
		out = append(out, s)
	}
	return out, nil
}
