// Package tracking defines the experiment-tracking sink consumed by the
// trainer. Sinks are fire-and-forget: implementations swallow their own
// failures so an unavailable tracking backend never fails a run.
package tracking

import (
	"os"
	"regexp"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/josephtey/predictive-saes/internal/json"
)

// Sink accepts scalar metric submissions keyed by training step.
type Sink interface {
	// Log records metrics for a step. Must not fail the caller.
	Log(step int, metrics map[string]float64)

	// Finish flushes and closes the sink. Called once at end of run.
	Finish()
}

// Noop discards everything.
type Noop struct{}

func (Noop) Log(int, map[string]float64) {}
func (Noop) Finish()                     {}

// FileSink appends one JSON line per Log call to a local file.
type FileSink struct {
	mu  sync.Mutex
	f   *os.File
	enc json.Encoder
	log *zap.Logger
}

// NewFileSink creates (or truncates) the metrics file at path.
func NewFileSink(path string, logger *zap.Logger) (*FileSink, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	return &FileSink{f: f, enc: json.NewEncoder(f), log: logger}, nil
}

type metricsLine struct {
	Step    int                `json:"step"`
	Time    time.Time          `json:"time"`
	Metrics map[string]float64 `json:"metrics"`
}

func (s *FileSink) Log(step int, metrics map[string]float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.f == nil {
		return
	}
	if err := s.enc.Encode(metricsLine{Step: step, Time: time.Now().UTC(), Metrics: metrics}); err != nil {
		s.log.Warn("failed to write metrics line", zap.Int("step", step), zap.Error(err))
	}
}

func (s *FileSink) Finish() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.f == nil {
		return
	}
	if err := s.f.Close(); err != nil {
		s.log.Warn("failed to close metrics file", zap.Error(err))
	}
	s.f = nil
}

var metricNameSanitizer = regexp.MustCompile(`[^a-zA-Z0-9_]`)

// PromSink exports metrics as prometheus gauges in the "sae" namespace.
// Gauges are registered lazily on first use of each metric name.
type PromSink struct {
	mu     sync.Mutex
	reg    prometheus.Registerer
	gauges map[string]prometheus.Gauge
	step   prometheus.Gauge
	log    *zap.Logger
}

// NewPromSink creates a sink registering gauges with reg. Pass
// prometheus.DefaultRegisterer to use the process-wide registry.
func NewPromSink(reg prometheus.Registerer, logger *zap.Logger) *PromSink {
	s := &PromSink{
		reg:    reg,
		gauges: make(map[string]prometheus.Gauge),
		log:    logger,
	}
	s.step = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "sae",
		Name:      "training_step",
		Help:      "Most recent training step logged.",
	})
	if err := reg.Register(s.step); err != nil {
		logger.Warn("failed to register step gauge", zap.Error(err))
	}
	return s
}

func (s *PromSink) Log(step int, metrics map[string]float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.step.Set(float64(step))
	for name, value := range metrics {
		g, ok := s.gauges[name]
		if !ok {
			g = prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "sae",
				Name:      metricNameSanitizer.ReplaceAllString(name, "_"),
				Help:      "Training metric " + name + ".",
			})
			if err := s.reg.Register(g); err != nil {
				s.log.Warn("failed to register gauge", zap.String("metric", name), zap.Error(err))
				continue
			}
			s.gauges[name] = g
		}
		g.Set(value)
	}
}

func (s *PromSink) Finish() {}

// Multi fans out to several sinks.
type Multi []Sink

func (m Multi) Log(step int, metrics map[string]float64) {
	for _, s := range m {
		s.Log(step, metrics)
	}
}

func (m Multi) Finish() {
	for _, s := range m {
		s.Finish()
	}
}
