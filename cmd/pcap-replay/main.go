package main

import (
	"flag"
	"fmt"
	"log"
	"time"

	"netsentry/internal/alert"
	"netsentry/internal/capture"
	"netsentry/internal/classify"
	"netsentry/internal/config"
	"netsentry/internal/feature"
	"netsentry/internal/flow"
	"netsentry/internal/logging"
	"netsentry/internal/model"
	"netsentry/internal/pipeline"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "Path to the YAML configuration file.")
	pcapPath := flag.String("pcap", "", "Path to the pcap file to replay (required).")
	speed := flag.Float64("speed", 0, "Replay speed multiplier. 0 processes as fast as possible, 1 reproduces original timing.")
	flag.Parse()

	if *pcapPath == "" {
		log.Fatal("Error: -pcap flag is required.")
	}

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	logging.Init(logging.Config{Level: cfg.Logging.Level, Format: cfg.Logging.Format})

	sessionTimeout, err := cfg.SessionTimeout()
	if err != nil {
		log.Fatalf("Invalid session timeout: %v", err)
	}
	sweepInterval, err := cfg.SweepInterval()
	if err != nil {
		log.Fatalf("Invalid sweep interval: %v", err)
	}

	normalizer := capture.NewNormalizer(cfg.Flow.MaxPayloadBytes)
	records, err := capture.LoadRecords(*pcapPath, normalizer)
	if err != nil {
		log.Fatalf("Failed to read pcap file: %v", err)
	}
	log.Printf("Loaded %d packets from %s", len(records), *pcapPath)

	flows := flow.NewTable(cfg.Flow.WindowSize, sessionTimeout, sweepInterval)
	extractor := feature.NewExtractor(cfg.Flow.MaxPayloadBytes)
	classifier, degraded := classify.New(cfg.Classifier)

	logSink, err := alert.NewJSONLSink(cfg.Alerts.LogFile)
	if err != nil {
		log.Fatalf("Failed to open alert log: %v", err)
	}
	alerts := alert.NewManager(cfg.Alerts.MinConfidence,
		time.Duration(cfg.Alerts.CooldownSeconds)*time.Second,
		cfg.Alerts.RingSize, logSink)
	defer alerts.Close()

	source := capture.NewReplaySource(records)
	orchestrator := pipeline.New(source, flows, extractor, classifier, alerts,
		cfg.Pipeline.QueueSize, cfg.Pipeline.LatencySamples, degraded)

	result := orchestrator.Replay(records, *speed)

	fmt.Println("--- Replay Summary ---")
	fmt.Printf("Packets processed:  %d\n", result.PacketsProcessed)
	fmt.Printf("Alerts generated:   %d\n", result.AlertsGenerated)
	fmt.Printf("Elapsed:            %s\n", result.Elapsed.Round(time.Millisecond))
	fmt.Printf("Throughput:         %.0f packets/s\n", result.PacketsPerSecond)
	fmt.Printf("Latency avg / p95:  %.3f ms / %.3f ms\n", result.AvgLatencyMs, result.P95LatencyMs)

	printAlerts(alerts.RecentAlerts(10))
}

func printAlerts(alerts []*model.Alert) {
	if len(alerts) == 0 {
		return
	}
	fmt.Println("--- Most Recent Alerts ---")
	for _, a := range alerts {
		fmt.Printf("[%s] %s %s -> %s (%.1f%%)\n",
			a.Severity, a.AttackType, a.SourceIP, a.DestinationIP, a.Confidence*100)
	}
}
