// Package benchmark - Repeatable detector benchmarks over synthetic images of
// different resolutions and encodings.
package benchmark

import (
	"fmt"
	"os"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/nvr-ai/go-detect/common"
	"github.com/nvr-ai/go-detect/detector"
	"github.com/nvr-ai/go-detect/images"
)

// Resolution represents image dimensions for benchmarking.
type Resolution struct {
	Width  int    `json:"width"  yaml:"width"`
	Height int    `json:"height" yaml:"height"`
	Name   string `json:"name"   yaml:"name"`
}

// CommonResolutions are the source sizes the predefined sets cover.
var CommonResolutions = []Resolution{
	{Width: 640, Height: 480, Name: "VGA"},
	{Width: 1280, Height: 720, Name: "720p"},
	{Width: 1920, Height: 1080, Name: "1080p"},
	{Width: 3840, Height: 2160, Name: "4K"},
}

// Scenario is one benchmark configuration.
type Scenario struct {
	Name        string             `json:"name"         yaml:"name"`
	Resolution  Resolution         `json:"resolution"   yaml:"resolution"`
	ImageFormat images.ImageFormat `json:"image_format" yaml:"image_format"`
	Iterations  int                `json:"iterations"   yaml:"iterations"`
	WarmupRuns  int                `json:"warmup_runs"  yaml:"warmup_runs"`
	Options     detector.Options   `json:"options"      yaml:"options"`
}

// Validate checks the scenario before it is run.
func (s Scenario) Validate() error {
	if s.Resolution.Width <= 0 || s.Resolution.Height <= 0 {
		return common.Errorf(common.ErrInvalidConfig, "scenario %q has resolution %dx%d", s.Name, s.Resolution.Width, s.Resolution.Height)
	}
	if s.Iterations <= 0 {
		return common.Errorf(common.ErrInvalidConfig, "scenario %q needs at least one iteration", s.Name)
	}
	if s.WarmupRuns < 0 {
		return common.Errorf(common.ErrInvalidConfig, "scenario %q has negative warmup runs", s.Name)
	}
	return errors.WithMessagef(s.Options.Validate(), "scenario %q", s.Name)
}

// ScenarioBuilder helps build test scenarios with fluent API.
type ScenarioBuilder struct {
	scenario Scenario
}

// NewScenarioBuilder creates a builder for a 640x480 JPEG scenario with the
// default detection options.
func NewScenarioBuilder(name string) *ScenarioBuilder {
	return &ScenarioBuilder{
		scenario: Scenario{
			Name:        name,
			Resolution:  CommonResolutions[0],
			ImageFormat: images.FormatJPEG,
			Iterations:  100,
			WarmupRuns:  10,
			Options:     detector.DefaultOptions(),
		},
	}
}

// WithResolution sets the image resolution.
func (sb *ScenarioBuilder) WithResolution(width, height int) *ScenarioBuilder {
	sb.scenario.Resolution = Resolution{
		Width:  width,
		Height: height,
		Name:   fmt.Sprintf("%dx%d", width, height),
	}
	return sb
}

// WithImageFormat sets the encoding the image is decoded from on every iteration.
func (sb *ScenarioBuilder) WithImageFormat(format images.ImageFormat) *ScenarioBuilder {
	sb.scenario.ImageFormat = format
	return sb
}

// WithIterations sets the number of measured iterations.
func (sb *ScenarioBuilder) WithIterations(iterations int) *ScenarioBuilder {
	sb.scenario.Iterations = iterations
	return sb
}

// WithWarmupRuns sets the number of unmeasured iterations run first.
func (sb *ScenarioBuilder) WithWarmupRuns(warmups int) *ScenarioBuilder {
	sb.scenario.WarmupRuns = warmups
	return sb
}

// WithOptions sets the detection options.
func (sb *ScenarioBuilder) WithOptions(opts detector.Options) *ScenarioBuilder {
	sb.scenario.Options = opts
	return sb
}

// Build returns the configured test scenario.
func (sb *ScenarioBuilder) Build() Scenario {
	return sb.scenario
}

// ScenarioSet represents a collection of related test scenarios.
type ScenarioSet struct {
	Name        string     `json:"name"        yaml:"name"`
	Description string     `json:"description" yaml:"description"`
	Scenarios   []Scenario `json:"scenarios"   yaml:"scenarios"`
}

// QuickScenarios runs 720p and 1080p JPEGs.
func QuickScenarios() *ScenarioSet {
	var scenarios []Scenario
	for _, res := range CommonResolutions[1:3] {
		scenarios = append(scenarios, NewScenarioBuilder("quick_"+res.Name).
			WithResolution(res.Width, res.Height).
			WithIterations(50).
			WithWarmupRuns(5).
			Build())
	}
	return &ScenarioSet{
		Name:        "Quick Performance Test",
		Description: "Quick test with common configurations",
		Scenarios:   scenarios,
	}
}

// ResolutionScenarios compares every common resolution at one model input size.
func ResolutionScenarios(targetSize int) *ScenarioSet {
	opts := detector.DefaultOptions()
	opts.TargetSize = targetSize

	var scenarios []Scenario
	for _, res := range CommonResolutions {
		sc := NewScenarioBuilder(fmt.Sprintf("resolution_%s_%d", res.Name, targetSize)).
			WithResolution(res.Width, res.Height).
			WithOptions(opts).
			Build()
		sc.Resolution.Name = res.Name
		scenarios = append(scenarios, sc)
	}
	return &ScenarioSet{
		Name:        "Resolution Comparison",
		Description: "Source resolution against letterbox and decode cost",
		Scenarios:   scenarios,
	}
}

// FormatScenarios compares the decode cost of each encoding at 1080p.
func FormatScenarios() *ScenarioSet {
	var scenarios []Scenario
	for _, format := range []images.ImageFormat{images.FormatJPEG, images.FormatPNG, images.FormatWebP} {
		scenarios = append(scenarios, NewScenarioBuilder("format_"+string(format)).
			WithResolution(1920, 1080).
			WithImageFormat(format).
			Build())
	}
	return &ScenarioSet{
		Name:        "Format Comparison",
		Description: "Image encoding against decode cost",
		Scenarios:   scenarios,
	}
}

// LoadScenarioSet reads a YAML scenario set.
func LoadScenarioSet(path string) (*ScenarioSet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "error reading scenario set %s", path)
	}

	var set ScenarioSet
	if err := yaml.Unmarshal(data, &set); err != nil {
		return nil, errors.Wrap(common.ErrInvalidConfig, err.Error())
	}
	for _, sc := range set.Scenarios {
		if err := sc.Validate(); err != nil {
			return nil, err
		}
	}
	return &set, nil
}

// SaveScenarioSet writes set as YAML.
func SaveScenarioSet(path string, set *ScenarioSet) error {
	data, err := yaml.Marshal(set)
	if err != nil {
		return errors.Wrap(err, "error encoding scenario set")
	}
	return errors.Wrapf(os.WriteFile(path, data, 0o644), "error writing scenario set %s", path)
}
