// Command benchmark measures detector throughput over synthetic or corpus
// images at several resolutions and encodings.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/nvr-ai/go-detect/benchmark"
	"github.com/nvr-ai/go-detect/config"
	"github.com/nvr-ai/go-detect/detector"
	"github.com/nvr-ai/go-detect/inference/providers"
	"github.com/nvr-ai/go-detect/profiler"
	"github.com/nvr-ai/go-detect/util"
)

func main() {
	var (
		configPath   = flag.String("config", "", "Path to the YAML configuration file")
		scenarioFile = flag.String("scenarios", "", "Path to a YAML scenario set")
		outputDir    = flag.String("output", "./benchmark_results", "Output directory for results")
		testImages   = flag.String("images", "", "Directory of corpus images; a synthetic image is used when empty")
		modelPath    = flag.String("model", "", "Path to the ONNX model, overrides model.path")
		resolutions  = flag.Bool("resolutions", false, "Compare source resolutions")
		formats      = flag.Bool("formats", false, "Compare image encodings")
		timeout      = flag.Duration("timeout", 30*time.Minute, "Benchmark timeout duration")
	)
	flag.Parse()

	cfg := config.Default()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			logrus.WithError(err).Fatal("failed to load configuration")
		}
		cfg = loaded
	}
	if *modelPath != "" {
		cfg.Model.Path = *modelPath
	}
	if err := cfg.Validate(); err != nil {
		logrus.WithError(err).Fatal("invalid configuration")
	}

	logger, err := cfg.NewLogger(os.Stderr)
	if err != nil {
		logrus.WithError(err).Fatal("invalid log configuration")
	}

	set, err := selectSet(*scenarioFile, *resolutions, *formats, cfg.Detection.TargetSize)
	if err != nil {
		logger.WithError(err).Fatal("failed to load scenarios")
	}

	var corpus []util.ImageFile
	if *testImages != "" {
		if corpus, err = util.LoadImageDir(*testImages); err != nil {
			logger.WithError(err).Fatal("failed to load corpus")
		}
	}

	prof := profiler.New(profiler.Options{Logger: logger})
	det, err := cfg.NewDetector(logger, prof)
	if err != nil {
		logger.WithError(err).Fatal("failed to create detector")
	}

	code := run(det, prof, corpus, set, *outputDir, *timeout, logger)
	det.Close()
	providers.DestroyEnvironment()
	os.Exit(code)
}

func selectSet(path string, resolutions, formats bool, targetSize int) (*benchmark.ScenarioSet, error) {
	switch {
	case path != "":
		return benchmark.LoadScenarioSet(path)
	case resolutions:
		return benchmark.ResolutionScenarios(targetSize), nil
	case formats:
		return benchmark.FormatScenarios(), nil
	default:
		return benchmark.QuickScenarios(), nil
	}
}

func run(
	det *detector.Detector,
	prof *profiler.Profiler,
	corpus []util.ImageFile,
	set *benchmark.ScenarioSet,
	outputDir string,
	timeout time.Duration,
	logger *logrus.Logger,
) int {
	suite, err := benchmark.NewSuite(benchmark.SuiteConfig{
		Detector:  det,
		Profiler:  prof,
		Corpus:    corpus,
		OutputDir: outputDir,
		Logger:    logger,
	})
	if err != nil {
		logger.WithError(err).Error("failed to create benchmark suite")
		return 1
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	logger.WithFields(logrus.Fields{
		"set":       set.Name,
		"scenarios": len(set.Scenarios),
	}).Info("starting benchmark")

	results, runErr := suite.RunSet(ctx, set)
	for _, m := range results {
		fmt.Printf("%-28s %6.1f fps  detect %7.2fms  decode %7.2fms  errors %d\n",
			m.Scenario.Name, m.FPS, m.Timings.DetectMs, m.Timings.DecodeMs, m.Errors)
	}

	path, err := suite.SaveResults()
	if err != nil {
		logger.WithError(err).Error("failed to save results")
		return 1
	}
	logger.WithField("path", path).Info("results saved")

	if runErr != nil {
		logger.WithError(runErr).Error("benchmark stopped early")
		return 1
	}
	return 0
}
