package config

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nvr-ai/go-detect/common"
	"github.com/nvr-ai/go-detect/inference"
	"github.com/nvr-ai/go-detect/inference/providers"
	"github.com/nvr-ai/go-detect/models"
	"github.com/nvr-ai/go-detect/test"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	opts := cfg.DetectorOptions()
	assert.Equal(t, 640, opts.TargetSize)
	assert.Equal(t, float32(0.3), opts.ConfThreshold)
	assert.Equal(t, float32(0.5), opts.IoUThreshold)

	table, err := cfg.ClassTable()
	require.NoError(t, err)
	assert.Equal(t, 18, table.Len())
	name, ok := table.Name(0)
	assert.True(t, ok)
	assert.Equal(t, "men-activewear", name)
}

func TestParse(t *testing.T) {
	doc := `
model:
  path: /models/yolov8n.onnx
  session: bound
  pool_size: 4
  output_layout: anchors_first
provider:
  backend: cuda
  intra_op_threads: 2
detection:
  target_size: 320
  confidence: 0.25
  overlap: 0.45
  interpolation: nearest
class_set: coco
server:
  addr: 0.0.0.0:9000
  read_timeout: 5s
fetch:
  timeout: 2s
log:
  level: debug
  format: json
`
	cfg, err := Parse([]byte(doc))
	require.NoError(t, err)

	assert.Equal(t, "/models/yolov8n.onnx", cfg.Model.Path)
	assert.Equal(t, "images", cfg.Model.InputName, "unset keys keep their defaults")
	assert.Equal(t, 4, cfg.Model.PoolSize)
	assert.Equal(t, providers.CUDABackend, cfg.Provider.Backend)
	assert.Equal(t, 2, cfg.Provider.IntraOpThreads)
	assert.Equal(t, 320, cfg.Detection.TargetSize)
	assert.Equal(t, float32(0.25), cfg.Detection.Confidence)
	assert.Equal(t, 5*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, 60*time.Second, cfg.Server.WriteTimeout)
	assert.Equal(t, 2*time.Second, cfg.Fetch.Timeout)

	table, err := cfg.ClassTable()
	require.NoError(t, err)
	assert.Equal(t, len(models.COCOLabels), table.Len())

	sc := cfg.SessionConfig(nil)
	assert.Equal(t, inference.LayoutAnchorsFirst, sc.Layout)
	assert.Equal(t, "output0", sc.OutputName)
}

func TestParseCustomClasses(t *testing.T) {
	cfg, err := Parse([]byte("classes: [person, helmet]\n"))
	require.NoError(t, err)

	table, err := cfg.ClassTable()
	require.NoError(t, err)
	assert.Equal(t, 2, table.Len())
	assert.Equal(t, "custom", table.Set)
	idx, ok := table.Index("helmet")
	assert.True(t, ok)
	assert.Equal(t, 1, idx)
}

func TestParseEmptyDocument(t *testing.T) {
	cfg, err := Parse(nil)
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestParseRejects(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"unknown key", "model:\n  pathh: x.onnx\n"},
		{"bad yaml", "model: [\n"},
		{"empty model path", "model:\n  path: \"\"\n"},
		{"unknown layout", "model:\n  output_layout: sideways\n"},
		{"unknown session", "model:\n  session: pooled\n"},
		{"zero pool", "model:\n  pool_size: 0\n"},
		{"unknown backend", "provider:\n  backend: tpu\n"},
		{"negative threads", "provider:\n  inter_op_threads: -1\n"},
		{"zero target size", "detection:\n  target_size: 0\n"},
		{"confidence above one", "detection:\n  confidence: 1.5\n"},
		{"negative overlap", "detection:\n  overlap: -0.1\n"},
		{"unknown interpolation", "detection:\n  interpolation: sinc\n"},
		{"unknown class set", "class_set: birds\n"},
		{"duplicate class", "classes: [a, b, a]\n"},
		{"negative timeout", "fetch:\n  timeout: -1s\n"},
		{"zero max bytes", "fetch:\n  max_bytes: 0\n"},
		{"bad log level", "log:\n  level: loud\n"},
		{"bad log format", "log:\n  format: xml\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.doc))
			require.Error(t, err)
			assert.True(t, errors.Is(err, common.ErrInvalidConfig), err.Error())
		})
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "detect.yaml")
	require.NoError(t, os.WriteFile(path, []byte("detection:\n  confidence: 0.6\n"), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, float32(0.6), cfg.Detection.Confidence)

	_, err = Load(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)
}

func TestMarshalRoundTrip(t *testing.T) {
	cfg := Default()
	cfg.Classes = []string{"a", "b"}
	cfg.Log.Format = "json"

	data, err := cfg.Marshal()
	require.NoError(t, err)

	back, err := Parse(data)
	require.NoError(t, err)
	assert.Equal(t, cfg, back)
}

func TestNewLogger(t *testing.T) {
	cfg := Default()
	cfg.Log = LogConfig{Level: "warn", Format: "json"}

	var buf bytes.Buffer
	logger, err := cfg.NewLogger(&buf)
	require.NoError(t, err)
	assert.Equal(t, logrus.WarnLevel, logger.GetLevel())

	logger.Info("dropped")
	logger.Warn("kept")
	assert.NotContains(t, buf.String(), "dropped")
	assert.Contains(t, buf.String(), `"msg":"kept"`)
}

func TestSessionBuilderCarriesErrors(t *testing.T) {
	cfg := Default()
	cfg.Model.Path = ""
	_, err := cfg.SessionBuilder(nil).Build()
	assert.True(t, errors.Is(err, common.ErrInvalidConfig))
}

func TestNewDetectorWithFactory(t *testing.T) {
	cfg := Default()
	cfg.Model.PoolSize = 2
	cfg.Detection.Interpolation = "lanczos3"

	var built int
	builder := cfg.SessionBuilder(nil).WithFactory(func() (inference.Session, error) {
		built++
		return test.NewMockSession(640, inference.NewRawOutputFromRows(4+18, nil)), nil
	})

	d, err := cfg.newDetector(builder, nil, nil)
	require.NoError(t, err)
	defer d.Close()

	assert.Equal(t, 2, built)
	assert.Equal(t, 18, d.Classes().Len())
	ps, ok := d.Session().(*inference.ProfiledSession)
	require.True(t, ok, "profiling is on by default")
	_, ok = ps.Session.(*inference.Pool)
	assert.True(t, ok)

	result, err := d.Detect(test.GradientImage(64, 48), cfg.DetectorOptions())
	require.NoError(t, err)
	assert.Empty(t, result.Predictions)
}
