package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"netsentry/internal/alert"
	"netsentry/internal/api"
	"netsentry/internal/capture"
	"netsentry/internal/classify"
	"netsentry/internal/config"
	"netsentry/internal/feature"
	"netsentry/internal/flow"
	"netsentry/internal/logging"
	"netsentry/internal/model"
	"netsentry/internal/notification"
	"netsentry/internal/pipeline"
	"netsentry/internal/query"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "Path to the YAML configuration file.")
	autoStart := flag.Bool("start", true, "Start detection immediately instead of waiting for the API.")
	flag.Parse()

	// 1. Load configuration. Invalid configuration is fatal.
	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logging.Init(logging.Config{Level: cfg.Logging.Level, Format: cfg.Logging.Format})
	logger := logging.Component("main")

	// 2. Assemble the pipeline.
	orchestrator, alerts, apiOpts, err := buildPipeline(cfg)
	if err != nil {
		log.Fatalf("Failed to build pipeline: %v", err)
	}
	defer alerts.Close()

	if *autoStart {
		if err := orchestrator.Start(); err != nil {
			log.Fatalf("Failed to start detection: %v", err)
		}
	}

	// 3. Start the HTTP control/status server.
	server := &http.Server{
		Addr:    cfg.API.ListenAddr,
		Handler: api.NewRouter(orchestrator, apiOpts...),
	}
	go func() {
		logger.Info("API server starting", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Could not listen on %s: %v", server.Addr, err)
		}
	}()

	// 4. Wait for a shutdown signal.
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("shutdown signal received")
	orchestrator.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Error("server forced to shutdown", logging.Err(err))
	}
	logger.Info("shutdown complete")
}

// buildPipeline wires the capture source, flow table, extractor,
// classifier and alert manager into an orchestrator, plus the API
// options for the optional archive-backed endpoints.
func buildPipeline(cfg *config.Config) (*pipeline.Orchestrator, *alert.Manager, []api.Option, error) {
	sessionTimeout, err := cfg.SessionTimeout()
	if err != nil {
		return nil, nil, nil, err
	}
	sweepInterval, err := cfg.SweepInterval()
	if err != nil {
		return nil, nil, nil, err
	}

	normalizer := capture.NewNormalizer(cfg.Flow.MaxPayloadBytes)

	// A configured NATS URL means packets arrive from a remote probe;
	// otherwise the engine captures locally.
	var source model.CaptureSource
	if cfg.Capture.NATSURL != "" {
		source = capture.NewNATSSource(cfg.Capture.NATSURL, cfg.Capture.Subject, cfg.Pipeline.QueueSize)
	} else {
		source = capture.NewLiveSource(cfg.Capture.Interface, cfg.Capture.BPFFilter,
			cfg.Capture.Promiscuous, cfg.Capture.SnapshotLen, normalizer, cfg.Pipeline.QueueSize)
	}

	flows := flow.NewTable(cfg.Flow.WindowSize, sessionTimeout, sweepInterval)
	extractor := feature.NewExtractor(cfg.Flow.MaxPayloadBytes)
	classifier, degraded := classify.New(cfg.Classifier)

	logSink, err := alert.NewJSONLSink(cfg.Alerts.LogFile)
	if err != nil {
		return nil, nil, nil, err
	}

	var archives []model.AlertSink
	var apiOpts []api.Option
	if cfg.Alerts.ClickHouse.Enabled {
		archive, err := alert.NewClickHouseSink(cfg.Alerts.ClickHouse)
		if err != nil {
			// The archive is a secondary sink; losing it degrades
			// persistence but must not stop detection.
			logging.Component("main").Error("ClickHouse archive unavailable", logging.Err(err))
		} else {
			archives = append(archives, archive)
		}
		querier, err := query.NewClickHouseQuerier(cfg.Alerts.ClickHouse)
		if err != nil {
			logging.Component("main").Error("alert history queries unavailable", logging.Err(err))
		} else {
			apiOpts = append(apiOpts, api.WithQuerier(querier))
		}
	}

	alerts := alert.NewManager(cfg.Alerts.MinConfidence,
		time.Duration(cfg.Alerts.CooldownSeconds)*time.Second,
		cfg.Alerts.RingSize, logSink, archives...)

	if cfg.Alerts.SMTP.Enabled {
		alerts.SetNotifier(notification.NewEmailNotifier(cfg.Alerts.SMTP), cfg.Alerts.SMTP.MinSeverity)
	}

	orchestrator := pipeline.New(source, flows, extractor, classifier, alerts,
		cfg.Pipeline.QueueSize, cfg.Pipeline.LatencySamples, degraded)
	return orchestrator, alerts, apiOpts, nil
}
