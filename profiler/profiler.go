// Package profiler - Stage timing and runtime statistics for the detection service.
package profiler

import (
	"context"
	"runtime"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// DefaultWindow is the number of recent durations kept per operation.
const DefaultWindow = 600

// Options configures a Profiler.
type Options struct {
	// Window is the number of recent durations averaged per operation
	// (default: DefaultWindow).
	Window int
	// ReportInterval is how often Start logs a report (default: 1m).
	ReportInterval time.Duration
	// Logger receives the periodic report; nil selects the standard logger.
	Logger logrus.FieldLogger
}

// OperationStats summarises the timings of one named operation.
type OperationStats struct {
	Count   int64   `json:"count"`
	Samples int     `json:"samples"`
	AvgMs   float64 `json:"avg_ms"`
	MinMs   float64 `json:"min_ms"`
	MaxMs   float64 `json:"max_ms"`
	LastMs  float64 `json:"last_ms"`
}

// Snapshot is a point-in-time copy of everything the profiler tracks.
type Snapshot struct {
	UptimeSeconds float64                   `json:"uptime_seconds"`
	Goroutines    int                       `json:"goroutines"`
	HeapAlloc     uint64                    `json:"heap_alloc_bytes"`
	GCCycles      uint32                    `json:"gc_cycles"`
	Operations    map[string]OperationStats `json:"operations"`
}

// tracker keeps a rolling window of durations for one operation.
type tracker struct {
	durations []time.Duration
	total     time.Duration
	min       time.Duration
	max       time.Duration
	last      time.Duration
	count     int64
}

// Profiler records how long named operations take, e.g. the preprocess,
// inference and postprocess stages of every detection. It is safe for
// concurrent use; a nil *Profiler records nothing.
type Profiler struct {
	window         int
	reportInterval time.Duration
	logger         logrus.FieldLogger
	startTime      time.Time

	mu         sync.RWMutex
	operations map[string]*tracker

	runMu   sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	running bool
}

// New creates a profiler.
//
// Arguments:
//   - opts: Window size, report interval and logger; zero values select defaults.
//
// Returns:
//   - *Profiler: The profiler.
//
// @example
// p := profiler.New(profiler.Options{})
// stop := p.StartOperation("inference")
// defer stop()
func New(opts Options) *Profiler {
	if opts.Window <= 0 {
		opts.Window = DefaultWindow
	}
	if opts.ReportInterval <= 0 {
		opts.ReportInterval = time.Minute
	}
	if opts.Logger == nil {
		opts.Logger = logrus.StandardLogger()
	}

	return &Profiler{
		window:         opts.Window,
		reportInterval: opts.ReportInterval,
		logger:         opts.Logger,
		startTime:      time.Now(),
		operations:     make(map[string]*tracker),
	}
}

// StartOperation begins timing an operation.
//
// Arguments:
//   - name: The name of the operation to track.
//
// Returns:
//   - func() time.Duration: Call it when the operation completes; it records
//     and returns the elapsed time.
func (p *Profiler) StartOperation(name string) func() time.Duration {
	start := time.Now()
	return func() time.Duration {
		d := time.Since(start)
		p.Record(name, d)
		return d
	}
}

// Record adds one duration for the named operation.
func (p *Profiler) Record(name string, d time.Duration) {
	if p == nil {
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	t, ok := p.operations[name]
	if !ok {
		t = &tracker{min: d, max: d}
		p.operations[name] = t
	}

	t.durations = append(t.durations, d)
	t.total += d
	if len(t.durations) > p.window {
		t.total -= t.durations[0]
		t.durations = t.durations[1:]
	}
	t.count++
	t.last = d
	if d < t.min {
		t.min = d
	}
	if d > t.max {
		t.max = d
	}
}

// Operation returns the statistics of one operation.
func (p *Profiler) Operation(name string) (OperationStats, bool) {
	if p == nil {
		return OperationStats{}, false
	}
	p.mu.RLock()
	defer p.mu.RUnlock()

	t, ok := p.operations[name]
	if !ok {
		return OperationStats{}, false
	}
	return t.stats(), true
}

// Snapshot returns the current statistics.
func (p *Profiler) Snapshot() Snapshot {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	s := Snapshot{
		Goroutines: runtime.NumGoroutine(),
		HeapAlloc:  mem.HeapAlloc,
		GCCycles:   mem.NumGC,
		Operations: map[string]OperationStats{},
	}
	if p == nil {
		return s
	}

	p.mu.RLock()
	defer p.mu.RUnlock()

	s.UptimeSeconds = time.Since(p.startTime).Seconds()
	for name, t := range p.operations {
		s.Operations[name] = t.stats()
	}
	return s
}

// Reset clears every operation.
func (p *Profiler) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.operations = make(map[string]*tracker)
}

// Start logs a report every ReportInterval until Stop is called. Calling it
// twice has no effect.
func (p *Profiler) Start() {
	p.runMu.Lock()
	defer p.runMu.Unlock()

	if p.running {
		return
	}
	p.running = true

	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	p.done = make(chan struct{})

	go func() {
		defer close(p.done)

		ticker := time.NewTicker(p.reportInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				p.report()
			}
		}
	}()
}

// Stop ends the periodic report and waits for the reporter to exit.
func (p *Profiler) Stop() {
	p.runMu.Lock()
	defer p.runMu.Unlock()

	if !p.running {
		return
	}
	p.running = false
	p.cancel()
	<-p.done
}

func (p *Profiler) report() {
	s := p.Snapshot()

	names := make([]string, 0, len(s.Operations))
	for name := range s.Operations {
		names = append(names, name)
	}
	sort.Strings(names)

	p.logger.WithFields(logrus.Fields{
		"uptime":     time.Duration(s.UptimeSeconds * float64(time.Second)).Truncate(time.Second),
		"goroutines": s.Goroutines,
		"heap_alloc": s.HeapAlloc,
		"gc_cycles":  s.GCCycles,
	}).Info("runtime status")

	for _, name := range names {
		op := s.Operations[name]
		p.logger.WithFields(logrus.Fields{
			"operation": name,
			"count":     op.Count,
			"avg_ms":    op.AvgMs,
			"min_ms":    op.MinMs,
			"max_ms":    op.MaxMs,
		}).Info("operation timings")
	}
}

func (t *tracker) stats() OperationStats {
	s := OperationStats{
		Count:   t.count,
		Samples: len(t.durations),
		MinMs:   ms(t.min),
		MaxMs:   ms(t.max),
		LastMs:  ms(t.last),
	}
	if len(t.durations) > 0 {
		s.AvgMs = ms(t.total) / float64(len(t.durations))
	}
	return s
}

func ms(d time.Duration) float64 {
	return float64(d.Nanoseconds()) / 1e6
}
