// Package config - YAML configuration of the detection service and CLI.
package config

import (
	"bytes"
	"io"
	"os"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/nvr-ai/go-detect/common"
	"github.com/nvr-ai/go-detect/detector"
	"github.com/nvr-ai/go-detect/inference"
	"github.com/nvr-ai/go-detect/inference/providers"
	"github.com/nvr-ai/go-detect/models"
	"github.com/nvr-ai/go-detect/models/preprocess"
	"github.com/nvr-ai/go-detect/profiler"
)

// Config is the complete configuration.
type Config struct {
	Model     ModelConfig       `yaml:"model"`
	Provider  providers.Options `yaml:"provider"`
	Detection DetectionConfig   `yaml:"detection"`
	// ClassSet names a built-in label set. It is ignored when Classes is set.
	ClassSet string `yaml:"class_set"`
	// Classes lists the model's labels in class id order.
	Classes []string     `yaml:"classes"`
	Server  ServerConfig `yaml:"server"`
	Fetch   FetchConfig  `yaml:"fetch"`
	Log     LogConfig    `yaml:"log"`
}

// ModelConfig locates the model and chooses how sessions are built.
type ModelConfig struct {
	Path         string `yaml:"path"`
	InputName    string `yaml:"input_name"`
	OutputName   string `yaml:"output_name"`
	OutputLayout string `yaml:"output_layout"`
	// Session is "dynamic" or "bound".
	Session  string `yaml:"session"`
	PoolSize int    `yaml:"pool_size"`
	// Profiling wraps the session in an inference.ProfiledSession.
	Profiling bool `yaml:"profiling"`
}

// DetectionConfig holds the default per-request parameters.
type DetectionConfig struct {
	TargetSize    int     `yaml:"target_size"`
	Confidence    float32 `yaml:"confidence"`
	Overlap       float32 `yaml:"overlap"`
	Interpolation string  `yaml:"interpolation"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Addr         string        `yaml:"addr"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	// MaxBodyBytes bounds uploaded request bodies.
	MaxBodyBytes int64 `yaml:"max_body_bytes"`
}

// FetchConfig configures downloads of image URLs.
type FetchConfig struct {
	Timeout   time.Duration `yaml:"timeout"`
	MaxBytes  int64         `yaml:"max_bytes"`
	UserAgent string        `yaml:"user_agent"`
}

// LogConfig configures logrus.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns the configuration of the stock apparel model on CPU.
func Default() *Config {
	opts := detector.DefaultOptions()
	return &Config{
		Model: ModelConfig{
			Path:         "best.onnx",
			InputName:    "images",
			OutputName:   "output0",
			OutputLayout: string(inference.LayoutAnchorsLast),
			Session:      string(inference.SessionDynamic),
			PoolSize:     1,
			Profiling:    true,
		},
		Provider: providers.DefaultOptions(),
		Detection: DetectionConfig{
			TargetSize:    opts.TargetSize,
			Confidence:    opts.ConfThreshold,
			Overlap:       opts.IoUThreshold,
			Interpolation: "bilinear",
		},
		ClassSet: models.ApparelSet,
		Server: ServerConfig{
			Addr:         "127.0.0.1:8080",
			ReadTimeout:  60 * time.Second,
			WriteTimeout: 60 * time.Second,
			MaxBodyBytes: 20 << 20,
		},
		Fetch: FetchConfig{
			Timeout:   15 * time.Second,
			MaxBytes:  20 << 20,
			UserAgent: "go-detect",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads a YAML file over Default. Unknown keys are rejected.
//
// Arguments:
//   - path: The YAML file.
//
// Returns:
//   - *Config: The validated configuration.
//   - error: An error if the file cannot be read, parsed or validated.
//
// @example
// cfg, err := config.Load("detect.yaml")
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "error opening config %s", path)
	}
	defer f.Close()

	cfg, err := Read(f)
	if err != nil {
		return nil, errors.WithMessagef(err, "config %s", path)
	}
	return cfg, nil
}

// Parse is Load over an in-memory document.
func Parse(data []byte) (*Config, error) {
	return Read(bytes.NewReader(data))
}

// Read decodes a YAML document over Default and validates the result. An
// empty document yields Default.
func Read(r io.Reader) (*Config, error) {
	cfg := Default()

	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && err != io.EOF {
		return nil, errors.Wrap(common.ErrInvalidConfig, err.Error())
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Marshal encodes cfg as YAML.
func (c *Config) Marshal() ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(c); err != nil {
		return nil, errors.Wrap(err, "error encoding config")
	}
	if err := enc.Close(); err != nil {
		return nil, errors.Wrap(err, "error encoding config")
	}
	return buf.Bytes(), nil
}

// Validate checks every section and returns the first problem as an
// ErrInvalidConfig error.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Model.Path) == "" {
		return common.Errorf(common.ErrInvalidConfig, "model.path is required")
	}
	if c.Model.InputName == "" || c.Model.OutputName == "" {
		return common.Errorf(common.ErrInvalidConfig, "model.input_name and model.output_name are required")
	}
	if _, err := inference.ParseLayout(c.Model.OutputLayout); err != nil {
		return errors.WithMessage(err, "model.output_layout")
	}
	if _, err := inference.ParseSessionKind(c.Model.Session); err != nil {
		return errors.WithMessage(err, "model.session")
	}
	if c.Model.PoolSize <= 0 {
		return common.Errorf(common.ErrInvalidConfig, "model.pool_size must be positive, got %d", c.Model.PoolSize)
	}
	if err := c.Provider.Validate(); err != nil {
		return errors.Wrap(common.ErrInvalidConfig, "provider: "+err.Error())
	}
	if err := c.DetectorOptions().Validate(); err != nil {
		return errors.WithMessage(err, "detection")
	}
	if _, err := preprocess.ParseInterpolation(c.Detection.Interpolation); err != nil {
		return errors.WithMessage(err, "detection.interpolation")
	}
	if _, err := c.ClassTable(); err != nil {
		return err
	}
	if c.Server.ReadTimeout < 0 || c.Server.WriteTimeout < 0 || c.Fetch.Timeout < 0 {
		return common.Errorf(common.ErrInvalidConfig, "timeouts must not be negative")
	}
	if c.Server.MaxBodyBytes <= 0 || c.Fetch.MaxBytes <= 0 {
		return common.Errorf(common.ErrInvalidConfig, "server.max_body_bytes and fetch.max_bytes must be positive")
	}
	if _, err := logrus.ParseLevel(c.Log.Level); err != nil {
		return errors.Wrap(common.ErrInvalidConfig, "log.level: "+err.Error())
	}
	switch c.Log.Format {
	case "", "text", "json":
	default:
		return common.Errorf(common.ErrInvalidConfig, "log.format must be text or json, got %q", c.Log.Format)
	}
	return nil
}

// ClassTable builds the label table from Classes, or from the built-in
// ClassSet when Classes is empty.
func (c *Config) ClassTable() (*models.ClassTable, error) {
	if len(c.Classes) > 0 {
		return models.NewClassTable("custom", c.Classes)
	}
	labels, ok := models.Builtin(c.ClassSet)
	if !ok {
		return nil, common.Errorf(common.ErrInvalidConfig, "unknown class_set %q and no classes listed, known sets are %v", c.ClassSet, models.Sets())
	}
	return models.NewClassTable(c.ClassSet, labels)
}

// DetectorOptions returns the default per-request parameters.
func (c *Config) DetectorOptions() detector.Options {
	return detector.Options{
		TargetSize:    c.Detection.TargetSize,
		ConfThreshold: c.Detection.Confidence,
		IoUThreshold:  c.Detection.Overlap,
	}
}

// PreprocessOptions returns the letterbox settings.
func (c *Config) PreprocessOptions() (preprocess.Options, error) {
	opts := preprocess.DefaultOptions()
	interp, err := preprocess.ParseInterpolation(c.Detection.Interpolation)
	if err != nil {
		return opts, err
	}
	opts.Interpolation = interp
	return opts, nil
}

// SessionConfig returns the model session settings.
func (c *Config) SessionConfig(logger logrus.FieldLogger) inference.SessionConfig {
	return inference.SessionConfig{
		ModelPath:  c.Model.Path,
		InputName:  c.Model.InputName,
		OutputName: c.Model.OutputName,
		Layout:     inference.Layout(c.Model.OutputLayout),
		Provider:   c.Provider,
		Logger:     logger,
	}
}

// SessionBuilder returns a builder configured from the model section.
func (c *Config) SessionBuilder(logger logrus.FieldLogger) *inference.SessionBuilder {
	b := inference.NewSessionBuilder().
		WithConfig(c.SessionConfig(logger)).
		WithKind(inference.SessionKind(c.Model.Session)).
		WithPool(c.Model.PoolSize)
	if c.Model.Profiling {
		b = b.WithProfiling()
	}
	return b
}

// NewLogger returns a logrus logger with the configured level and format.
func (c *Config) NewLogger(out io.Writer) (*logrus.Logger, error) {
	level, err := logrus.ParseLevel(c.Log.Level)
	if err != nil {
		return nil, errors.Wrap(common.ErrInvalidConfig, err.Error())
	}

	logger := logrus.New()
	logger.SetOutput(out)
	logger.SetLevel(level)
	if c.Log.Format == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	return logger, nil
}

// NewDetector loads the model and assembles a detector from the
// configuration. The caller owns the detector and must Close it.
//
// Arguments:
//   - logger: Receives session and detector logs.
//   - prof: Records stage timings; may be nil.
//
// Returns:
//   - *detector.Detector: The detector.
//   - error: An error if the classes, preprocessing or model cannot be set up.
func (c *Config) NewDetector(logger logrus.FieldLogger, prof *profiler.Profiler) (*detector.Detector, error) {
	return c.newDetector(c.SessionBuilder(logger), logger, prof)
}

func (c *Config) newDetector(builder *inference.SessionBuilder, logger logrus.FieldLogger, prof *profiler.Profiler) (*detector.Detector, error) {
	classes, err := c.ClassTable()
	if err != nil {
		return nil, err
	}
	pre, err := c.PreprocessOptions()
	if err != nil {
		return nil, err
	}

	session, err := builder.Build()
	if err != nil {
		return nil, errors.WithMessage(err, "error creating model session")
	}

	d, err := detector.New(detector.Config{
		Session:    session,
		Classes:    classes,
		Preprocess: pre,
		Profiler:   prof,
		Logger:     logger,
	})
	if err != nil {
		session.Close()
		return nil, err
	}
	return d, nil
}
