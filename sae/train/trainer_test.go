package train

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/mat"

	"github.com/josephtey/predictive-saes/dataset"
	"github.com/josephtey/predictive-saes/sae"
)

func testModel(t *testing.T, dModel, dSparse int) *sae.SparseAutoencoder {
	t.Helper()
	model, err := sae.New(sae.Config{DModel: dModel, DSparse: dSparse, SparsityAlpha: 1}, rand.New(rand.NewSource(1)))
	if err != nil {
		t.Fatalf("creating model: %v", err)
	}
	return model
}

func testDataset(t *testing.T, n, dim int, seed int64) *dataset.Dataset {
	t.Helper()
	rng := rand.New(rand.NewSource(seed))
	data := make([]float64, n*dim)
	for i := range data {
		data[i] = rng.NormFloat64()
	}
	sentences := make([]string, n)
	for i := range sentences {
		sentences[i] = "sentence"
	}
	ds, err := dataset.New(sentences, mat.NewDense(n, dim, data))
	if err != nil {
		t.Fatalf("creating dataset: %v", err)
	}
	return ds
}

func TestNewValidatesInputs(t *testing.T) {
	model := testModel(t, 4, 8)
	ds := testDataset(t, 16, 4, 2)

	tests := []struct {
		name string
		ds   *dataset.Dataset
		opts Options
	}{
		{name: "zero batch size", ds: ds, opts: Options{BatchSize: 0, NumEpochs: 1, LearningRate: 0.01}},
		{name: "zero epochs", ds: ds, opts: Options{BatchSize: 4, NumEpochs: 0, LearningRate: 0.01}},
		{name: "zero learning rate", ds: ds, opts: Options{BatchSize: 4, NumEpochs: 1, LearningRate: 0}},
		{name: "dimension mismatch", ds: testDataset(t, 16, 6, 2), opts: Options{BatchSize: 4, NumEpochs: 1, LearningRate: 0.01}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := New(model, tt.ds, tt.opts, zap.NewNop(), nil); err == nil {
				t.Fatal("expected error, got nil")
			}
		})
	}
}

func TestTrainingReducesLoss(t *testing.T) {
	model := testModel(t, 4, 8)
	ds := testDataset(t, 32, 4, 3)

	trainer, err := New(model, ds, Options{
		BatchSize:    8,
		NumEpochs:    50,
		LearningRate: 0.01,
		LogEvery:     4,
	}, zap.NewNop(), nil)
	if err != nil {
		t.Fatalf("creating trainer: %v", err)
	}

	// Loss of the untrained model on the first batch.
	batch := ds.Embeddings.Slice(0, 8, 0, 4).(*mat.Dense)
	initial, _, _, _, _ := trainer.batchForwardBackward(batch)

	res, err := trainer.Run(context.Background())
	if err != nil {
		t.Fatalf("training failed: %v", err)
	}
	if res.SkippedBatches != 0 {
		t.Errorf("expected no skipped batches, got %d", res.SkippedBatches)
	}
	if res.FinalLoss >= initial {
		t.Errorf("expected loss to decrease from %v, got %v", initial, res.FinalLoss)
	}
	if len(res.DensityHistory) == 0 {
		t.Error("expected density history snapshots")
	}
	for _, snap := range res.DensityHistory {
		if len(snap.Density) != 8 {
			t.Fatalf("density snapshot has %d entries, want 8", len(snap.Density))
		}
		for f, d := range snap.Density {
			if d < 0 || d > 1 {
				t.Errorf("feature %d density %v out of [0, 1]", f, d)
			}
		}
	}
}

func TestNonFiniteBatchIsSkipped(t *testing.T) {
	model := testModel(t, 4, 8)

	// Second batch of four contains a NaN embedding.
	ds := testDataset(t, 12, 4, 4)
	ds.Embeddings.Set(5, 2, math.NaN())

	trainer, err := New(model, ds, Options{
		BatchSize:    4,
		NumEpochs:    1,
		LearningRate: 0.001,
		// One bad batch of three is above 25%, so raise the threshold:
		// this test is about the skip path, not the abort path.
		MaxSkipFraction: 0.5,
	}, zap.NewNop(), nil)
	if err != nil {
		t.Fatalf("creating trainer: %v", err)
	}

	res, err := trainer.Run(context.Background())
	if err != nil {
		t.Fatalf("training should survive a single bad batch: %v", err)
	}
	if res.SkippedBatches != 1 {
		t.Errorf("expected 1 skipped batch recorded, got %d", res.SkippedBatches)
	}
	if res.Steps != 3 {
		t.Errorf("expected 3 steps, got %d", res.Steps)
	}

	// Parameters must stay finite: the bad batch was not applied.
	for _, p := range model.Params() {
		for _, v := range p.Data {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				t.Fatalf("parameter %s contains non-finite value", p.Name)
			}
		}
	}
}

func TestRepeatedInstabilityAborts(t *testing.T) {
	model := testModel(t, 4, 8)

	ds := testDataset(t, 12, 4, 5)
	for i := 0; i < 12; i++ {
		ds.Embeddings.Set(i, 0, math.NaN())
	}

	trainer, err := New(model, ds, Options{
		BatchSize:    4,
		NumEpochs:    1,
		LearningRate: 0.001,
	}, zap.NewNop(), nil)
	if err != nil {
		t.Fatalf("creating trainer: %v", err)
	}

	_, err = trainer.Run(context.Background())
	var instErr *InstabilityError
	if !errors.As(err, &instErr) {
		t.Fatalf("expected InstabilityError, got %v", err)
	}
	if instErr.Skipped != 3 || instErr.Total != 3 {
		t.Errorf("expected 3/3 skipped, got %d/%d", instErr.Skipped, instErr.Total)
	}
}

func TestRunDirArtifacts(t *testing.T) {
	model := testModel(t, 4, 8)
	ds := testDataset(t, 16, 4, 6)
	runDir := t.TempDir()

	trainer, err := New(model, ds, Options{
		BatchSize:    4,
		NumEpochs:    2,
		LearningRate: 0.001,
		RunDir:       runDir,
		LogEvery:     2,
	}, zap.NewNop(), nil)
	if err != nil {
		t.Fatalf("creating trainer: %v", err)
	}

	if _, err := trainer.Run(context.Background()); err != nil {
		t.Fatalf("training failed: %v", err)
	}

	for _, name := range []string{"sae_final.json", "density_history.json"} {
		if _, err := os.Stat(filepath.Join(runDir, name)); err != nil {
			t.Errorf("expected %s in run dir: %v", name, err)
		}
	}

	// The final checkpoint must load back to a working model.
	loaded, err := sae.Load(filepath.Join(runDir, "sae_final.json"))
	if err != nil {
		t.Fatalf("loading final checkpoint: %v", err)
	}
	if loaded.Config() != model.Config() {
		t.Errorf("loaded config %+v does not match %+v", loaded.Config(), model.Config())
	}
}
