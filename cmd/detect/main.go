// Command detect runs the detector on image files, directories or URLs and
// prints the labelled detections as JSON.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"image"
	"os"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/nvr-ai/go-detect/config"
	"github.com/nvr-ai/go-detect/detector"
	"github.com/nvr-ai/go-detect/inference/providers"
	"github.com/nvr-ai/go-detect/server"
	"github.com/nvr-ai/go-detect/util"
)

// output is one line of the command's output.
type output struct {
	Source      string                `json:"source"`
	Image       server.ImageSize      `json:"image"`
	Predictions []detector.Prediction `json:"predictions,omitempty"`
	Error       string                `json:"error,omitempty"`
}

func main() {
	var (
		configPath string
		modelPath  string
		imagePath  string
		size       int
		confidence float64
		overlap    float64
		backend    string
	)
	flag.StringVar(&configPath, "config", "", "Path to the YAML configuration file")
	flag.StringVar(&modelPath, "model", "", "Path to the ONNX model, overrides model.path")
	flag.StringVar(&imagePath, "image", "", "Image file, directory of images or http(s) URL")
	flag.IntVar(&size, "size", 0, "Model input size, overrides detection.target_size")
	flag.Float64Var(&confidence, "confidence", -1, "Confidence threshold, overrides detection.confidence")
	flag.Float64Var(&overlap, "overlap", -1, "Overlap threshold, overrides detection.overlap")
	flag.StringVar(&backend, "backend", "", "Execution provider: cpu, cuda, coreml or openvino")
	flag.Parse()

	if imagePath == "" {
		fmt.Fprintln(os.Stderr, "usage: detect -image <path|dir|url> [-config file] [-model file]")
		flag.PrintDefaults()
		os.Exit(2)
	}

	cfg := config.Default()
	if configPath != "" {
		loaded, err := config.Load(configPath)
		if err != nil {
			logrus.WithError(err).Fatal("failed to load configuration")
		}
		cfg = loaded
	}
	if modelPath != "" {
		cfg.Model.Path = modelPath
	}
	if size > 0 {
		cfg.Detection.TargetSize = size
	}
	if confidence >= 0 {
		cfg.Detection.Confidence = float32(confidence)
	}
	if overlap >= 0 {
		cfg.Detection.Overlap = float32(overlap)
	}
	if backend != "" {
		cfg.Provider.Backend = providers.Backend(backend)
	}
	cfg.Model.Profiling = false
	if err := cfg.Validate(); err != nil {
		logrus.WithError(err).Fatal("invalid configuration")
	}

	logger, err := cfg.NewLogger(os.Stderr)
	if err != nil {
		logrus.WithError(err).Fatal("invalid log configuration")
	}

	det, err := cfg.NewDetector(logger, nil)
	if err != nil {
		logger.WithError(err).Fatal("failed to create detector")
	}
	code := run(det, cfg, imagePath, logger)
	det.Close()
	providers.DestroyEnvironment()
	os.Exit(code)
}

// run detects every image under imagePath and returns the exit code.
func run(det *detector.Detector, cfg *config.Config, imagePath string, logger *logrus.Logger) int {
	sources, err := collect(imagePath, util.NewFetcher(util.FetchOptions{
		Timeout:   cfg.Fetch.Timeout,
		MaxBytes:  cfg.Fetch.MaxBytes,
		UserAgent: cfg.Fetch.UserAgent,
		Logger:    logger,
	}))
	if err != nil {
		logger.WithError(err).Error("failed to read images")
		return 1
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	failed := false
	for _, src := range sources {
		out := output{Source: src.name}
		img, err := src.load()
		if err == nil {
			var result *detector.DetectionResult
			result, err = det.Detect(img, cfg.DetectorOptions())
			if err == nil {
				out.Image = server.ImageSize{Width: result.Width, Height: result.Height}
				out.Predictions = det.Labels(result)
			}
		}
		if err != nil {
			out.Error = err.Error()
			failed = true
		}
		if err := enc.Encode(out); err != nil {
			logger.WithError(err).Error("failed to write output")
			return 1
		}
	}
	if failed {
		return 1
	}
	return 0
}

// source is one image to run, loaded lazily.
type source struct {
	name string
	load func() (image.Image, error)
}

func collect(path string, fetcher *util.Fetcher) ([]source, error) {
	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		return []source{{
			name: path,
			load: func() (image.Image, error) { return fetcher.FetchImage(context.Background(), path) },
		}}, nil
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return []source{{name: path, load: func() (image.Image, error) { return util.LoadImageFile(path) }}}, nil
	}

	files, err := util.LoadImageDir(path)
	if err != nil {
		return nil, err
	}
	sources := make([]source, len(files))
	for i, f := range files {
		f := f
		sources[i] = source{name: f.Path, load: f.Decode}
	}
	return sources, nil
}
