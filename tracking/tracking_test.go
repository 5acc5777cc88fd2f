package tracking

import (
	"bufio"
	"os"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/josephtey/predictive-saes/internal/json"
)

func TestFileSinkWritesJSONLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "metrics.jsonl")
	sink, err := NewFileSink(path, zap.NewNop())
	if err != nil {
		t.Fatalf("creating file sink: %v", err)
	}

	sink.Log(1, map[string]float64{"loss": 0.5})
	sink.Log(2, map[string]float64{"loss": 0.25, "mean_density": 0.1})
	sink.Finish()

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("opening metrics file: %v", err)
	}
	defer f.Close()

	var lines []metricsLine
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var line metricsLine
		if err := json.Unmarshal(scanner.Bytes(), &line); err != nil {
			t.Fatalf("decoding metrics line: %v", err)
		}
		lines = append(lines, line)
	}

	if len(lines) != 2 {
		t.Fatalf("expected 2 metrics lines, got %d", len(lines))
	}
	if lines[0].Step != 1 || lines[0].Metrics["loss"] != 0.5 {
		t.Errorf("unexpected first line: %+v", lines[0])
	}
	if lines[1].Step != 2 || lines[1].Metrics["mean_density"] != 0.1 {
		t.Errorf("unexpected second line: %+v", lines[1])
	}
}

func TestFileSinkLogAfterFinishIsNoop(t *testing.T) {
	path := filepath.Join(t.TempDir(), "metrics.jsonl")
	sink, err := NewFileSink(path, zap.NewNop())
	if err != nil {
		t.Fatalf("creating file sink: %v", err)
	}

	sink.Finish()
	sink.Log(1, map[string]float64{"loss": 1})
	sink.Finish()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading metrics file: %v", err)
	}
	if len(data) != 0 {
		t.Errorf("expected empty file after early Finish, got %q", data)
	}
}

func gaugeValue(t *testing.T, reg *prometheus.Registry, name string) float64 {
	t.Helper()
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gathering metrics: %v", err)
	}
	for _, fam := range families {
		if fam.GetName() == name {
			return fam.GetMetric()[0].GetGauge().GetValue()
		}
	}
	t.Fatalf("metric %s not found", name)
	return 0
}

func TestPromSinkRegistersAndUpdatesGauges(t *testing.T) {
	reg := prometheus.NewRegistry()
	sink := NewPromSink(reg, zap.NewNop())

	sink.Log(10, map[string]float64{"loss": 0.5, "dead_features": 3})
	sink.Log(20, map[string]float64{"loss": 0.25})
	sink.Finish()

	if got := gaugeValue(t, reg, "sae_training_step"); got != 20 {
		t.Errorf("expected step gauge 20, got %v", got)
	}
	if got := gaugeValue(t, reg, "sae_loss"); got != 0.25 {
		t.Errorf("expected loss gauge 0.25, got %v", got)
	}
	if got := gaugeValue(t, reg, "sae_dead_features"); got != 3 {
		t.Errorf("expected dead_features gauge 3, got %v", got)
	}
}

func TestPromSinkSanitizesMetricNames(t *testing.T) {
	reg := prometheus.NewRegistry()
	sink := NewPromSink(reg, zap.NewNop())

	sink.Log(1, map[string]float64{"loss/reconstruction": 0.75})

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gathering metrics: %v", err)
	}
	found := false
	for _, fam := range families {
		if fam.GetName() == "sae_loss_reconstruction" {
			found = true
		}
	}
	if !found {
		t.Error("expected sanitized gauge sae_loss_reconstruction")
	}
}

func TestMultiFansOut(t *testing.T) {
	path1 := filepath.Join(t.TempDir(), "a.jsonl")
	path2 := filepath.Join(t.TempDir(), "b.jsonl")

	a, err := NewFileSink(path1, zap.NewNop())
	if err != nil {
		t.Fatalf("creating sink: %v", err)
	}
	b, err := NewFileSink(path2, zap.NewNop())
	if err != nil {
		t.Fatalf("creating sink: %v", err)
	}

	m := Multi{a, b, Noop{}}
	m.Log(1, map[string]float64{"loss": 1})
	m.Finish()

	for _, path := range []string{path1, path2} {
		data, err := os.ReadFile(path)
		if err != nil {
			t.Fatalf("reading %s: %v", path, err)
		}
		if len(data) == 0 {
			t.Errorf("expected metrics in %s", path)
		}
	}
}
