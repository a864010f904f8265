package benchmark

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"time"

	"github.com/disintegration/imaging"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/nvr-ai/go-detect/common"
	"github.com/nvr-ai/go-detect/detector"
	"github.com/nvr-ai/go-detect/images"
	"github.com/nvr-ai/go-detect/profiler"
	"github.com/nvr-ai/go-detect/test"
	"github.com/nvr-ai/go-detect/util"
)

// StageTimings are the average stage durations of a scenario in milliseconds.
type StageTimings struct {
	DecodeMs      float64 `json:"decode_ms"`
	PreprocessMs  float64 `json:"preprocess_ms"`
	InferenceMs   float64 `json:"inference_ms"`
	PostprocessMs float64 `json:"postprocess_ms"`
	DetectMs      float64 `json:"detect_ms"`
}

// MemoryStats captures memory usage across a scenario.
type MemoryStats struct {
	AllocBytes      uint64 `json:"alloc_bytes"`
	TotalAllocBytes uint64 `json:"total_alloc_bytes"`
	HeapInUseBytes  uint64 `json:"heap_in_use_bytes"`
	GCCycles        uint32 `json:"gc_cycles"`
}

// Metrics holds the results of one scenario.
type Metrics struct {
	Scenario        Scenario      `json:"scenario"`
	StartTime       time.Time     `json:"start_time"`
	TotalDuration   time.Duration `json:"total_duration"`
	Iterations      int           `json:"iterations"`
	Errors          int           `json:"errors"`
	ErrorRate       float64       `json:"error_rate"`
	FPS             float64       `json:"fps"`
	EncodedBytes    int           `json:"encoded_bytes"`
	Timings         StageTimings  `json:"timings"`
	Memory          MemoryStats   `json:"memory"`
	TotalDetections int           `json:"total_detections"`
	AvgDetections   float64       `json:"avg_detections"`
}

// SuiteConfig holds the collaborators of a Suite.
type SuiteConfig struct {
	// Detector runs every iteration.
	Detector *detector.Detector
	// Profiler must be the profiler the Detector records to; it is reset
	// before every scenario.
	Profiler *profiler.Profiler
	// Corpus, when set, supplies the images; otherwise a synthetic gradient is used.
	Corpus []util.ImageFile
	// OutputDir receives SaveResults files.
	OutputDir string
	Logger    logrus.FieldLogger
}

// Suite runs scenarios against one detector.
type Suite struct {
	detector  *detector.Detector
	profiler  *profiler.Profiler
	corpus    []image.Image
	outputDir string
	logger    logrus.FieldLogger

	mu      sync.RWMutex
	results []*Metrics
}

// NewSuite creates a benchmark suite.
//
// Arguments:
//   - cfg: The detector, its profiler and optional corpus and output directory.
//
// Returns:
//   - *Suite: The benchmark suite.
//   - error: An ErrInvalidConfig error if the detector or profiler is missing,
//     or an ErrInvalidImage error for an undecodable corpus file.
func NewSuite(cfg SuiteConfig) (*Suite, error) {
	if cfg.Detector == nil || cfg.Profiler == nil {
		return nil, common.Errorf(common.ErrInvalidConfig, "benchmark suite needs a detector and its profiler")
	}
	if cfg.OutputDir == "" {
		cfg.OutputDir = "./benchmark_results"
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.StandardLogger()
	}

	corpus := make([]image.Image, 0, len(cfg.Corpus))
	for _, f := range cfg.Corpus {
		img, err := f.Decode()
		if err != nil {
			return nil, err
		}
		corpus = append(corpus, img)
	}

	return &Suite{
		detector:  cfg.Detector,
		profiler:  cfg.Profiler,
		corpus:    corpus,
		outputDir: cfg.OutputDir,
		logger:    cfg.Logger,
	}, nil
}

// RunScenario executes one scenario: WarmupRuns unmeasured detections, then
// Iterations measured ones, each decoding the encoded image first.
//
// Arguments:
//   - ctx: Cancels the run between iterations.
//   - sc: The scenario.
//
// Returns:
//   - *Metrics: The scenario results; iterations that fail are counted, not fatal.
//   - error: A validation, encoding or cancellation error.
func (s *Suite) RunScenario(ctx context.Context, sc Scenario) (*Metrics, error) {
	if err := sc.Validate(); err != nil {
		return nil, err
	}

	payloads, err := s.payloads(sc)
	if err != nil {
		return nil, err
	}

	logger := s.logger.WithField("scenario", sc.Name)
	logger.WithFields(logrus.Fields{
		"resolution": sc.Resolution.Name,
		"format":     sc.ImageFormat,
		"iterations": sc.Iterations,
	}).Info("running scenario")

	for i := 0; i < sc.WarmupRuns; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		_, _ = s.iterate(payloads[i%len(payloads)], sc.Options)
	}

	s.profiler.Reset()
	runtime.GC()
	var before, after runtime.MemStats
	runtime.ReadMemStats(&before)

	m := &Metrics{
		Scenario:     sc,
		StartTime:    time.Now(),
		Iterations:   sc.Iterations,
		EncodedBytes: len(payloads[0]),
	}
	var decodeTotal time.Duration

	for i := 0; i < sc.Iterations; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		start := time.Now()
		img, err := images.DecodeBytes(payloads[i%len(payloads)])
		decodeTotal += time.Since(start)
		if err != nil {
			m.Errors++
			continue
		}
		result, err := s.detector.Detect(img, sc.Options)
		if err != nil {
			m.Errors++
			logger.WithError(err).Debug("iteration failed")
			continue
		}
		m.TotalDetections += len(result.Predictions)
	}

	m.TotalDuration = time.Since(m.StartTime)
	runtime.ReadMemStats(&after)

	m.ErrorRate = float64(m.Errors) / float64(m.Iterations)
	if ok := m.Iterations - m.Errors; ok > 0 {
		m.AvgDetections = float64(m.TotalDetections) / float64(ok)
		m.FPS = float64(ok) / m.TotalDuration.Seconds()
	}
	m.Timings = StageTimings{
		DecodeMs:      float64(decodeTotal.Nanoseconds()) / 1e6 / float64(m.Iterations),
		PreprocessMs:  s.average(detector.OpPreprocess),
		InferenceMs:   s.average(detector.OpInference),
		PostprocessMs: s.average(detector.OpPostprocess),
		DetectMs:      s.average(detector.OpDetect),
	}
	m.Memory = MemoryStats{
		AllocBytes:      after.Alloc,
		TotalAllocBytes: after.TotalAlloc - before.TotalAlloc,
		HeapInUseBytes:  after.HeapInuse,
		GCCycles:        after.NumGC - before.NumGC,
	}

	logger.WithFields(logrus.Fields{
		"fps":        m.FPS,
		"detect_ms":  m.Timings.DetectMs,
		"errors":     m.Errors,
		"detections": m.TotalDetections,
	}).Info("scenario complete")

	s.mu.Lock()
	s.results = append(s.results, m)
	s.mu.Unlock()
	return m, nil
}

// RunSet executes every scenario of set in order and stops at the first error.
func (s *Suite) RunSet(ctx context.Context, set *ScenarioSet) ([]*Metrics, error) {
	out := make([]*Metrics, 0, len(set.Scenarios))
	for _, sc := range set.Scenarios {
		m, err := s.RunScenario(ctx, sc)
		if err != nil {
			return out, errors.WithMessagef(err, "scenario %q", sc.Name)
		}
		out = append(out, m)
	}
	return out, nil
}

// Results returns every metrics collected so far.
func (s *Suite) Results() []*Metrics {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]*Metrics(nil), s.results...)
}

// SaveResults writes the collected metrics to OutputDir as indented JSON.
//
// Returns:
//   - string: The path of the written file.
//   - error: An error if the directory or file cannot be written.
func (s *Suite) SaveResults() (string, error) {
	if err := os.MkdirAll(s.outputDir, 0o755); err != nil {
		return "", errors.Wrapf(err, "error creating %s", s.outputDir)
	}

	data, err := json.MarshalIndent(s.Results(), "", "  ")
	if err != nil {
		return "", errors.Wrap(err, "error encoding results")
	}

	path := filepath.Join(s.outputDir, "benchmark_"+time.Now().Format("20060102_150405")+".json")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", errors.Wrapf(err, "error writing %s", path)
	}
	return path, nil
}

func (s *Suite) iterate(payload []byte, opts detector.Options) (*detector.DetectionResult, error) {
	img, err := images.DecodeBytes(payload)
	if err != nil {
		return nil, err
	}
	return s.detector.Detect(img, opts)
}

// payloads encodes the corpus, or a synthetic gradient, at the scenario
// resolution and format.
func (s *Suite) payloads(sc Scenario) ([][]byte, error) {
	sources := s.corpus
	if len(sources) == 0 {
		sources = []image.Image{test.GradientImage(sc.Resolution.Width, sc.Resolution.Height)}
	}

	out := make([][]byte, 0, len(sources))
	for _, src := range sources {
		b := src.Bounds()
		if b.Dx() != sc.Resolution.Width || b.Dy() != sc.Resolution.Height {
			src = imaging.Resize(src, sc.Resolution.Width, sc.Resolution.Height, imaging.Linear)
		}
		var buf bytes.Buffer
		if err := images.Encode(&buf, src, sc.ImageFormat, images.DefaultQuality); err != nil {
			return nil, err
		}
		out = append(out, buf.Bytes())
	}
	return out, nil
}

func (s *Suite) average(op string) float64 {
	stats, _ := s.profiler.Operation(op)
	return stats.AvgMs
}
