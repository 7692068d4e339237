package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sirupsen/logrus"

	"github.com/nvr-ai/metal-classifier/config"
	"github.com/nvr-ai/metal-classifier/fetch"
	"github.com/nvr-ai/metal-classifier/inference"
	"github.com/nvr-ai/metal-classifier/logging"
	"github.com/nvr-ai/metal-classifier/server"
)

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "", "Path to a YAML configuration file")
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		logrus.WithError(err).Fatal("failed to load configuration")
	}

	logger, err := logging.New(cfg.Log)
	if err != nil {
		logrus.WithError(err).Fatal("failed to configure logging")
	}

	if logger.IsLevelEnabled(logrus.DebugLevel) {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	if err := run(cfg, logger); err != nil {
		logger.WithError(err).Fatal("server stopped")
	}
}

func run(cfg config.Config, logger *logrus.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	metrics, err := inference.NewMetrics(registry)
	if err != nil {
		return err
	}

	logger.WithFields(logrus.Fields{
		"model":    cfg.Model.Path,
		"provider": cfg.Runtime.Provider,
		"sessions": cfg.Runtime.PoolSize,
	}).Info("loading model")

	engine, err := inference.NewEngineBuilderFromConfig(cfg).
		WithLogger(logger).
		WithMetrics(metrics).
		WithSessions(cfg.Runtime.LibraryPath, cfg.Runtime.PoolSize).
		Build()
	if err != nil {
		return err
	}
	defer func() {
		if err := engine.Close(); err != nil {
			logger.WithError(err).Warn("failed to close sessions")
		}
		if err := inference.DestroyRuntime(); err != nil {
			logger.WithError(err).Warn("failed to destroy onnxruntime environment")
		}
	}()

	fetcher := fetch.New(fetch.Options{
		Timeout:    cfg.Fetch.Timeout,
		MaxElapsed: cfg.Fetch.MaxElapsed,
		MaxBytes:   cfg.Server.MaxUploadBytes,
		UserAgent:  cfg.Fetch.UserAgent,
		Logger:     logger,
	})

	spec := engine.Model().Spec()
	srv, err := server.New(server.Options{
		Config:    cfg.Server,
		ModelName: string(spec.Name),
		Classes:   spec.Classes,
		Logger:    logger,
		Registry:  registry,
	}, engine, fetcher)
	if err != nil {
		return err
	}

	return srv.Run(ctx)
}
