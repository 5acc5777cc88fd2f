// Package train implements the sparse autoencoder optimization loop:
// mini-batch reconstruction + L1 sparsity loss, Adam updates, per-feature
// density tracking, and periodic checkpointing to a run directory.
package train

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/mat"

	"github.com/josephtey/predictive-saes/dataset"
	"github.com/josephtey/predictive-saes/internal/json"
	"github.com/josephtey/predictive-saes/sae"
	"github.com/josephtey/predictive-saes/tracking"
)

// Options configures a training run.
type Options struct {
	BatchSize    int
	NumEpochs    int
	LearningRate float64

	// SparsityAlpha and SparsityScale jointly weight the L1 penalty:
	// loss = mse + alpha*scale*mean_l1(code).
	SparsityAlpha float64
	SparsityScale float64

	// RunDir receives checkpoints and the density history.
	RunDir string

	// LogEvery is the number of batches per metric/density interval.
	LogEvery int

	// CheckpointEvery is the number of batches between checkpoints.
	// Zero checkpoints at epoch boundaries only.
	CheckpointEvery int

	// MaxSkipFraction is the tolerated fraction of skipped (non-finite
	// loss) batches per epoch before the run aborts. Zero means the
	// default of 0.25.
	MaxSkipFraction float64
}

func (o *Options) defaults() {
	if o.LogEvery <= 0 {
		o.LogEvery = 100
	}
	if o.MaxSkipFraction <= 0 {
		o.MaxSkipFraction = 0.25
	}
}

// InstabilityError reports an epoch in which too many batches produced a
// non-finite loss. Isolated bad batches are skipped; past the threshold
// the whole run is considered divergent.
type InstabilityError struct {
	Epoch   int
	Skipped int
	Total   int
}

func (e *InstabilityError) Error() string {
	return fmt.Sprintf("training unstable: skipped %d of %d batches in epoch %d", e.Skipped, e.Total, e.Epoch)
}

// DensitySnapshot records per-feature activation density over one logging
// interval: the fraction of interval samples on which each feature was
// non-zero.
type DensitySnapshot struct {
	Step    int       `json:"step"`
	Density []float64 `json:"density"`
}

// Result summarizes a completed run.
type Result struct {
	Steps          int
	SkippedBatches int
	FinalLoss      float64
	DensityHistory []DensitySnapshot
}

// Trainer owns the model parameters for the duration of a run. It is the
// only component that mutates them.
type Trainer struct {
	model *sae.SparseAutoencoder
	ds    *dataset.Dataset
	opts  Options
	log   *zap.Logger
	sink  tracking.Sink
}

// New validates preconditions and builds a trainer. Mismatched data or an
// invalid model config fail here, before any training starts.
func New(model *sae.SparseAutoencoder, ds *dataset.Dataset, opts Options, logger *zap.Logger, sink tracking.Sink) (*Trainer, error) {
	if err := model.Config().Validate(); err != nil {
		return nil, err
	}
	if ds.Len() == 0 {
		return nil, errors.New("dataset is empty")
	}
	if ds.Dim() != model.Config().DModel {
		return nil, fmt.Errorf("embedding dimension %d does not match model d_model %d", ds.Dim(), model.Config().DModel)
	}
	if opts.BatchSize <= 0 {
		return nil, fmt.Errorf("batch size must be positive, got %d", opts.BatchSize)
	}
	if opts.NumEpochs <= 0 {
		return nil, fmt.Errorf("num epochs must be positive, got %d", opts.NumEpochs)
	}
	if opts.LearningRate <= 0 {
		return nil, fmt.Errorf("learning rate must be positive, got %v", opts.LearningRate)
	}
	if sink == nil {
		sink = tracking.Noop{}
	}
	opts.defaults()

	return &Trainer{model: model, ds: ds, opts: opts, log: logger, sink: sink}, nil
}

// Run executes the training loop. A batch whose loss is non-finite is
// logged and skipped; if more than MaxSkipFraction of an epoch's batches
// are skipped the run aborts with InstabilityError.
func (t *Trainer) Run(ctx context.Context) (*Result, error) {
	cfg := t.model.Config()
	n := t.ds.Len()
	params := t.model.Params()
	opt := newAdam(params)

	res := &Result{}
	step := 0
	lastRecon, lastPenalty := 0.0, 0.0

	// Interval accumulators for feature density.
	nonzero := make([]float64, cfg.DSparse)
	intervalSamples := 0

	t.log.Info("starting training",
		zap.Int("samples", n),
		zap.Int("d_model", cfg.DModel),
		zap.Int("d_sparse", cfg.DSparse),
		zap.Int("batch_size", t.opts.BatchSize),
		zap.Int("epochs", t.opts.NumEpochs),
	)

	for epoch := 0; epoch < t.opts.NumEpochs; epoch++ {
		epochBatches := 0
		epochSkipped := 0

		for start := 0; start < n; start += t.opts.BatchSize {
			if err := ctx.Err(); err != nil {
				return nil, err
			}

			end := min(start+t.opts.BatchSize, n)
			batch := t.ds.Embeddings.Slice(start, end, 0, cfg.DModel).(*mat.Dense)
			epochBatches++

			loss, reconLoss, penalty, grads, code := t.batchForwardBackward(batch)
			if math.IsNaN(loss) || math.IsInf(loss, 0) {
				epochSkipped++
				res.SkippedBatches++
				t.log.Warn("skipping batch with non-finite loss",
					zap.Int("epoch", epoch),
					zap.Int("step", step),
					zap.Float64("loss", loss),
				)
				step++
				continue
			}

			opt.step(params, grads, t.opts.LearningRate)
			res.FinalLoss = loss
			lastRecon, lastPenalty = reconLoss, penalty

			rows, _ := code.Dims()
			codeData := code.RawMatrix().Data
			for i := 0; i < rows; i++ {
				row := codeData[i*cfg.DSparse : (i+1)*cfg.DSparse]
				for f, v := range row {
					if v != 0 {
						nonzero[f]++
					}
				}
			}
			intervalSamples += rows

			if (step+1)%t.opts.LogEvery == 0 {
				t.flushInterval(step, loss, reconLoss, penalty, nonzero, &intervalSamples, res)
			}
			if t.opts.CheckpointEvery > 0 && (step+1)%t.opts.CheckpointEvery == 0 {
				t.checkpoint(step)
			}
			step++
		}

		if frac := float64(epochSkipped) / float64(epochBatches); frac > t.opts.MaxSkipFraction {
			return nil, &InstabilityError{Epoch: epoch, Skipped: epochSkipped, Total: epochBatches}
		}

		t.log.Info("epoch complete",
			zap.Int("epoch", epoch),
			zap.Int("batches", epochBatches),
			zap.Int("skipped", epochSkipped),
			zap.Float64("loss", res.FinalLoss),
		)
		t.checkpoint(step - 1)
	}

	if intervalSamples > 0 {
		t.flushInterval(step-1, res.FinalLoss, lastRecon, lastPenalty, nonzero, &intervalSamples, res)
	}

	res.Steps = step
	if t.opts.RunDir != "" {
		if err := t.model.Save(filepath.Join(t.opts.RunDir, "sae_final.json")); err != nil {
			return nil, err
		}
		if err := t.saveDensityHistory(res.DensityHistory); err != nil {
			return nil, err
		}
	}
	return res, nil
}

// batchForwardBackward runs the forward pass, computes the loss terms,
// and backpropagates through the two affine layers and the ReLU. Returned
// gradients are index-aligned with sae.Params order.
func (t *Trainer) batchForwardBackward(x *mat.Dense) (loss, reconLoss, penalty float64, grads [][]float64, code *mat.Dense) {
	cfg := t.model.Config()
	b, _ := x.Dims()
	bf := float64(b)

	pre, code := t.model.EncodeBatch(x)
	recon := t.model.DecodeBatch(code)

	// diff = recon - x
	diff := mat.NewDense(b, cfg.DModel, nil)
	diff.Sub(recon, x)

	diffData := diff.RawMatrix().Data
	for _, v := range diffData {
		reconLoss += v * v
	}
	reconLoss /= bf * float64(cfg.DModel)

	codeData := code.RawMatrix().Data
	for _, v := range codeData {
		penalty += v // code is non-negative, |v| == v
	}
	penalty /= bf

	alphaScale := t.opts.SparsityAlpha * t.opts.SparsityScale
	loss = reconLoss + alphaScale*penalty

	// dL/dRecon = 2*diff / (b*d_model)
	dRecon := diff
	dRecon.Scale(2.0/(bf*float64(cfg.DModel)), dRecon)

	// Decoder grads: recon = code * decW^T + decB.
	gradDecW := mat.NewDense(cfg.DModel, cfg.DSparse, nil)
	gradDecW.Mul(dRecon.T(), code)
	gradDecB := columnSums(dRecon)

	// dL/dCode = dRecon * decW + d(penalty)/dCode.
	dCode := mat.NewDense(b, cfg.DSparse, nil)
	dCode.Mul(dRecon, t.model.DecoderWeight())
	dCodeData := dCode.RawMatrix().Data
	l1Grad := alphaScale / bf
	for i, v := range codeData {
		if v > 0 {
			dCodeData[i] += l1Grad
		}
	}

	// ReLU gate: pass gradient only where pre-activation was positive.
	preData := pre.RawMatrix().Data
	for i, v := range preData {
		if v <= 0 {
			dCodeData[i] = 0
		}
	}

	// Encoder grads: pre = x * encW^T + encB.
	gradEncW := mat.NewDense(cfg.DSparse, cfg.DModel, nil)
	gradEncW.Mul(dCode.T(), x)
	gradEncB := columnSums(dCode)

	grads = [][]float64{
		gradEncW.RawMatrix().Data,
		gradEncB,
		gradDecW.RawMatrix().Data,
		gradDecB,
	}
	return loss, reconLoss, penalty, grads, code
}

func columnSums(m *mat.Dense) []float64 {
	rows, cols := m.Dims()
	out := make([]float64, cols)
	data := m.RawMatrix().Data
	for i := 0; i < rows; i++ {
		row := data[i*cols : (i+1)*cols]
		for j, v := range row {
			out[j] += v
		}
	}
	return out
}

// flushInterval snapshots interval feature density, emits metrics to the
// sink, and resets the accumulators.
func (t *Trainer) flushInterval(step int, loss, reconLoss, penalty float64, nonzero []float64, intervalSamples *int, res *Result) {
	if *intervalSamples == 0 {
		return
	}

	density := make([]float64, len(nonzero))
	dead := 0
	meanDensity := 0.0
	for f, c := range nonzero {
		density[f] = c / float64(*intervalSamples)
		meanDensity += density[f]
		if c == 0 {
			dead++
		}
		nonzero[f] = 0
	}
	meanDensity /= float64(len(nonzero))
	*intervalSamples = 0

	res.DensityHistory = append(res.DensityHistory, DensitySnapshot{Step: step, Density: density})

	t.sink.Log(step, map[string]float64{
		"loss":                loss,
		"reconstruction_loss": reconLoss,
		"sparsity_penalty":    penalty,
		"mean_density":        meanDensity,
		"dead_features":       float64(dead),
	})

	t.log.Debug("interval metrics",
		zap.Int("step", step),
		zap.Float64("loss", loss),
		zap.Float64("mean_density", meanDensity),
		zap.Int("dead_features", dead),
	)
}

func (t *Trainer) checkpoint(step int) {
	if t.opts.RunDir == "" {
		return
	}
	path := filepath.Join(t.opts.RunDir, fmt.Sprintf("sae_step_%06d.json", step))
	if err := t.model.Save(path); err != nil {
		t.log.Warn("failed to write checkpoint", zap.String("path", path), zap.Error(err))
	}
}

func (t *Trainer) saveDensityHistory(history []DensitySnapshot) error {
	data, err := json.Marshal(history)
	if err != nil {
		return fmt.Errorf("encoding density history: %w", err)
	}
	path := filepath.Join(t.opts.RunDir, "density_history.json")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing density history: %w", err)
	}
	return nil
}
