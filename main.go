// Command go-detect serves single-image object detection over HTTP.
package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/nvr-ai/go-detect/config"
	"github.com/nvr-ai/go-detect/inference/providers"
	"github.com/nvr-ai/go-detect/profiler"
	"github.com/nvr-ai/go-detect/server"
	"github.com/nvr-ai/go-detect/util"
)

func main() {
	var (
		configPath string
		addr       string
		modelPath  string
	)
	flag.StringVar(&configPath, "config", os.Getenv("DETECT_CONFIG"), "Path to the YAML configuration file")
	flag.StringVar(&addr, "addr", "", "Listen address, overrides server.addr")
	flag.StringVar(&modelPath, "model", "", "Path to the ONNX model, overrides model.path")
	flag.Parse()

	cfg := config.Default()
	if configPath != "" {
		loaded, err := config.Load(configPath)
		if err != nil {
			logrus.WithError(err).Fatal("failed to load configuration")
		}
		cfg = loaded
	}
	if addr != "" {
		cfg.Server.Addr = addr
	}
	if modelPath != "" {
		cfg.Model.Path = modelPath
	}
	if err := cfg.Validate(); err != nil {
		logrus.WithError(err).Fatal("invalid configuration")
	}

	logger, err := cfg.NewLogger(os.Stderr)
	if err != nil {
		logrus.WithError(err).Fatal("invalid log configuration")
	}

	prof := profiler.New(profiler.Options{Logger: logger})
	prof.Start()
	defer prof.Stop()

	det, err := cfg.NewDetector(logger, prof)
	if err != nil {
		logger.WithError(err).Fatal("failed to create detector")
	}
	defer func() {
		if err := det.Close(); err != nil {
			logger.WithError(err).Warn("failed to close model session")
		}
		if err := providers.DestroyEnvironment(); err != nil {
			logger.WithError(err).Warn("failed to destroy onnxruntime environment")
		}
	}()

	srv, err := server.New(server.Config{
		Detector: det,
		Fetcher: util.NewFetcher(util.FetchOptions{
			Timeout:   cfg.Fetch.Timeout,
			MaxBytes:  cfg.Fetch.MaxBytes,
			UserAgent: cfg.Fetch.UserAgent,
			Logger:    logger,
		}),
		Defaults:     cfg.DetectorOptions(),
		MaxBodyBytes: cfg.Server.MaxBodyBytes,
		Profiler:     prof,
		Logger:       logger,
	})
	if err != nil {
		logger.WithError(err).Fatal("failed to create server")
	}

	httpServer := srv.NewHTTPServer(cfg.Server.Addr, cfg.Server.ReadTimeout, cfg.Server.WriteTimeout)

	errCh := make(chan error, 1)
	go func() {
		logger.WithFields(logrus.Fields{
			"addr":    httpServer.Addr,
			"model":   cfg.Model.Path,
			"classes": det.Classes().Len(),
		}).Info("starting server")
		errCh <- httpServer.ListenAndServe()
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Error("server stopped")
		}
	case s := <-sig:
		logger.WithField("signal", s.String()).Info("shutting down")
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(ctx); err != nil {
			logger.WithError(err).Warn("graceful shutdown failed")
		}
	}
}
