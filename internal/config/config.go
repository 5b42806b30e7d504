package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"netsentry/internal/model"
)

// CaptureConfig selects and tunes the packet source.
type CaptureConfig struct {
	Interface   string `yaml:"interface"`
	BPFFilter   string `yaml:"bpf_filter"`
	Promiscuous bool   `yaml:"promiscuous"`
	SnapshotLen int32  `yaml:"snapshot_len"`
	// NATSURL and Subject configure the remote-probe source. Empty URL
	// means the engine captures locally.
	NATSURL string `yaml:"nats_url"`
	Subject string `yaml:"subject"`
}

// FlowConfig tunes flow-state tracking.
type FlowConfig struct {
	WindowSize      int    `yaml:"window_size"`
	SessionTimeout  string `yaml:"session_timeout"`
	SweepInterval   string `yaml:"sweep_interval"`
	MaxPayloadBytes int    `yaml:"max_payload_bytes"`
}

// ClassifierConfig selects the classification engine.
type ClassifierConfig struct {
	// Engine is "heuristic" or "artifact".
	Engine       string  `yaml:"engine"`
	Threshold    float64 `yaml:"threshold"`
	ArtifactPath string  `yaml:"artifact_path"`
}

// ClickHouseConfig holds connection details for the alert archive.
type ClickHouseConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Database string `yaml:"database"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// SMTPConfig holds the email notification settings.
type SMTPConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	From     string `yaml:"from"`
	// To is a comma-separated recipient list.
	To string `yaml:"to"`
	// MinSeverity is the lowest severity that triggers an email.
	MinSeverity string `yaml:"min_severity"`
}

// AlertConfig tunes alert generation and persistence.
type AlertConfig struct {
	LogFile         string           `yaml:"log_file"`
	MinConfidence   float64          `yaml:"min_confidence"`
	CooldownSeconds int              `yaml:"cooldown_seconds"`
	RingSize        int              `yaml:"ring_size"`
	ClickHouse      ClickHouseConfig `yaml:"clickhouse"`
	SMTP            SMTPConfig       `yaml:"smtp"`
}

// PipelineConfig tunes the processing loop.
type PipelineConfig struct {
	QueueSize      int `yaml:"queue_size"`
	LatencySamples int `yaml:"latency_samples"`
}

// APIConfig configures the HTTP control/status transport.
type APIConfig struct {
	ListenAddr string `yaml:"listen_addr"`
}

// LoggingConfig configures the structured logger.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Config is the top-level configuration struct for the entire application.
type Config struct {
	Capture    CaptureConfig    `yaml:"capture"`
	Flow       FlowConfig       `yaml:"flow"`
	Classifier ClassifierConfig `yaml:"classifier"`
	Alerts     AlertConfig      `yaml:"alerts"`
	Pipeline   PipelineConfig   `yaml:"pipeline"`
	API        APIConfig        `yaml:"api"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// LoadConfig reads the configuration from a YAML file, applies defaults
// and validates it. Validation failure is fatal by design.
func LoadConfig(filePath string) (*Config, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config YAML: %w", err)
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Capture.SnapshotLen == 0 {
		c.Capture.SnapshotLen = 1600
	}
	if c.Capture.Subject == "" {
		c.Capture.Subject = "netsentry.packets"
	}
	if c.Flow.WindowSize == 0 {
		c.Flow.WindowSize = 10
	}
	if c.Flow.SessionTimeout == "" {
		c.Flow.SessionTimeout = "300s"
	}
	if c.Flow.SweepInterval == "" {
		c.Flow.SweepInterval = "60s"
	}
	if c.Flow.MaxPayloadBytes == 0 {
		c.Flow.MaxPayloadBytes = 1500
	}
	if c.Classifier.Engine == "" {
		c.Classifier.Engine = "heuristic"
	}
	if c.Classifier.Threshold == 0 {
		c.Classifier.Threshold = 0.5
	}
	if c.Alerts.LogFile == "" {
		c.Alerts.LogFile = "logs/alerts.jsonl"
	}
	if c.Alerts.MinConfidence == 0 {
		c.Alerts.MinConfidence = 0.7
	}
	if c.Alerts.CooldownSeconds == 0 {
		c.Alerts.CooldownSeconds = 30
	}
	if c.Alerts.RingSize == 0 {
		c.Alerts.RingSize = 1000
	}
	if c.Alerts.SMTP.MinSeverity == "" {
		c.Alerts.SMTP.MinSeverity = "high"
	}
	if c.Pipeline.QueueSize == 0 {
		c.Pipeline.QueueSize = 10000
	}
	if c.Pipeline.LatencySamples == 0 {
		c.Pipeline.LatencySamples = 1000
	}
	if c.API.ListenAddr == "" {
		c.API.ListenAddr = ":8080"
	}
}

// Validate checks every tunable that would otherwise corrupt pipeline
// invariants at runtime.
func (c *Config) Validate() error {
	if c.Flow.WindowSize < 1 {
		return fmt.Errorf("%w: flow.window_size must be >= 1, got %d", model.ErrConfig, c.Flow.WindowSize)
	}
	if _, err := c.SessionTimeout(); err != nil {
		return fmt.Errorf("%w: flow.session_timeout: %v", model.ErrConfig, err)
	}
	if _, err := c.SweepInterval(); err != nil {
		return fmt.Errorf("%w: flow.sweep_interval: %v", model.ErrConfig, err)
	}
	if c.Flow.MaxPayloadBytes < 0 {
		return fmt.Errorf("%w: flow.max_payload_bytes must be >= 0", model.ErrConfig)
	}
	if c.Classifier.Threshold < 0 || c.Classifier.Threshold > 1 {
		return fmt.Errorf("%w: classifier.threshold must be in [0,1], got %v", model.ErrConfig, c.Classifier.Threshold)
	}
	if c.Classifier.Engine != "heuristic" && c.Classifier.Engine != "artifact" {
		return fmt.Errorf("%w: classifier.engine must be heuristic or artifact, got %q", model.ErrConfig, c.Classifier.Engine)
	}
	if c.Alerts.MinConfidence < 0 || c.Alerts.MinConfidence > 1 {
		return fmt.Errorf("%w: alerts.min_confidence must be in [0,1]", model.ErrConfig)
	}
	if c.Alerts.CooldownSeconds < 0 {
		return fmt.Errorf("%w: alerts.cooldown_seconds must be >= 0", model.ErrConfig)
	}
	if c.Pipeline.QueueSize < 1 {
		return fmt.Errorf("%w: pipeline.queue_size must be >= 1", model.ErrConfig)
	}
	return nil
}

// SessionTimeout parses the flow session timeout.
func (c *Config) SessionTimeout() (time.Duration, error) {
	return time.ParseDuration(c.Flow.SessionTimeout)
}

// SweepInterval parses the flow sweep interval.
func (c *Config) SweepInterval() (time.Duration, error) {
	return time.ParseDuration(c.Flow.SweepInterval)
}
