package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"cryptoreport/config"
	"cryptoreport/internal/dashboard"
	"cryptoreport/internal/metrics"
	"cryptoreport/logger"
	"cryptoreport/poller"
	"cryptoreport/reader"
	"cryptoreport/report"
	"cryptoreport/writer"
)

func main() {
	log := logger.GetLogger()

	// Load environment variables from .env if present
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.WithError(err).Warn("Error loading .env file")
	}

	configPath := flag.String("config", config.DefaultPath, "Path to configuration file")
	once := flag.Bool("once", false, "Run a single poll and exit")
	flag.Parse()

	env := config.AppEnvironment()
	cfg, err := config.LoadConfig(config.ResolvePath(*configPath))
	if err != nil {
		log.WithError(err).WithEnv(config.CredentialsEnv).Error("Failed to load configuration")
		os.Exit(1)
	}

	if config.IsProductionLike(env) && cfg.Logging.Format != "json" {
		cfg.Logging.Format = "json"
	}
	if err := log.Configure(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output, cfg.Logging.MaxAge); err != nil {
		log.WithError(err).Error("Failed to configure logger")
		os.Exit(1)
	}

	log.WithFields(logger.Fields{
		"service":     cfg.App.Name,
		"version":     cfg.App.Version,
		"environment": env,
	}).Info("starting cryptoreport")

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	metrics.Configure(cfg.Metrics)
	if cfg.Metrics.CloudWatch {
		metrics.InitCloudWatch(ctx, cfg.Metrics.Region, cfg.Metrics.Namespace, cfg.Metrics.DashboardName)
	}
	var gatherer prometheus.Gatherer
	if cfg.Metrics.Prometheus {
		prom, err := metrics.NewPrometheus()
		if err != nil {
			log.WithComponent("main").WithError(err).Error("failed to register prometheus collectors")
			os.Exit(1)
		}
		defer prom.Close()
		gatherer = prom.Gatherer()
	}

	if cfg.Dashboard.Enabled || cfg.Metrics.Prometheus {
		srv, err := dashboard.NewServer(cfg.Dashboard, gatherer, log)
		if err != nil {
			log.WithComponent("main").WithError(err).Error("failed to create dashboard")
			os.Exit(1)
		}
		go func() {
			if err := srv.Run(ctx, cfg.App.Name); err != nil {
				log.WithComponent("dashboard").WithError(err).Error("status listener failed")
			}
		}()
	}

	deps := poller.Deps{
		Source:   reader.NewCoinGeckoReader(cfg.Source, log),
		Renderer: report.NewRenderer(cfg.Report, log),
	}

	if cfg.Sheet.Enabled {
		mirror, err := writer.NewSheetMirror(ctx, cfg.Sheet, log)
		if err != nil {
			log.WithComponent("main").WithError(err).WithEnv(cfg.Sheet.CredentialsEnv).Error("failed to create sheet mirror")
			os.Exit(1)
		}
		deps.Mirror = mirror
	} else {
		log.WithComponent("main").Info("sheet mirror disabled")
	}

	if cfg.Export.Enabled {
		deps.Exporter = writer.NewParquetExporter(cfg.Export, log)
	}

	if cfg.Storage.S3.Enabled {
		publisher, err := writer.NewS3Publisher(ctx, cfg.Storage.S3, cfg.App.Version, log)
		if err != nil {
			log.WithComponent("main").WithError(err).Error("failed to create S3 publisher")
			os.Exit(1)
		}
		deps.Publisher = publisher
	} else {
		log.WithComponent("main").Info("S3 storage disabled; skipping publisher")
	}

	p, err := poller.New(poller.Config{
		Interval:    cfg.Poll.Interval,
		StopOnError: cfg.Poll.StopOnError,
		TopN:        cfg.Report.TopN,
	}, deps, log)
	if err != nil {
		log.WithComponent("main").WithError(err).Error("failed to create poller")
		os.Exit(1)
	}

	if *once {
		err := p.RunOnce(ctx)
		flushMetrics()
		if err != nil {
			os.Exit(1)
		}
		return
	}

	if err := p.Run(ctx); err != nil {
		log.WithComponent("main").WithError(err).Error("poll loop terminated")
		flushMetrics()
		os.Exit(1)
	}
	flushMetrics()

	warns, errs := logger.Counts()
	log.WithComponent("main").WithFields(logger.Fields{
		"warnings": warns,
		"errors":   errs,
	}).Info("shutdown complete")
}

func flushMetrics() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	metrics.FlushCloudWatch(ctx)
}
