// Package sae implements the sparse autoencoder model: a single hidden
// sparse layer trained to reconstruct fixed-dimension sentence embeddings
// through an overcomplete, mostly-zero code.
package sae

import (
	"errors"
	"fmt"
	"math"
	"math/rand"

	"gonum.org/v1/gonum/mat"
)

// Config describes the autoencoder dimensions and sparsity weighting.
type Config struct {
	DModel        int     `json:"d_model" yaml:"d_model"`
	DSparse       int     `json:"d_sparse" yaml:"d_sparse"`
	SparsityAlpha float64 `json:"sparsity_alpha" yaml:"sparsity_alpha"`
}

// Validate checks that the config describes a usable overcomplete basis.
// Downstream interpretability logic assumes DSparse > DModel.
func (c Config) Validate() error {
	if c.DModel <= 0 {
		return fmt.Errorf("d_model must be positive, got %d", c.DModel)
	}
	if c.DSparse <= 0 {
		return fmt.Errorf("d_sparse must be positive, got %d", c.DSparse)
	}
	if c.DSparse <= c.DModel {
		return fmt.Errorf("d_sparse (%d) must exceed d_model (%d) for an overcomplete basis", c.DSparse, c.DModel)
	}
	if c.SparsityAlpha < 0 {
		return fmt.Errorf("sparsity_alpha must be non-negative, got %v", c.SparsityAlpha)
	}
	return nil
}

// SparseAutoencoder holds the encoder/decoder parameters. The trainer is
// the only component that mutates them; every other consumer treats a
// model as frozen.
type SparseAutoencoder struct {
	cfg Config

	encW *mat.Dense    // d_sparse x d_model
	encB *mat.VecDense // d_sparse
	decW *mat.Dense    // d_model x d_sparse
	decB *mat.VecDense // d_sparse -> d_model map bias, length d_model
}

// New creates a model with Kaiming-style random initialization drawn from
// rng. Biases start at zero.
func New(cfg Config, rng *rand.Rand) (*SparseAutoencoder, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if rng == nil {
		return nil, errors.New("rng is required")
	}

	m := &SparseAutoencoder{
		cfg:  cfg,
		encW: mat.NewDense(cfg.DSparse, cfg.DModel, nil),
		encB: mat.NewVecDense(cfg.DSparse, nil),
		decW: mat.NewDense(cfg.DModel, cfg.DSparse, nil),
		decB: mat.NewVecDense(cfg.DModel, nil),
	}

	initDense(m.encW, cfg.DModel, rng)
	initDense(m.decW, cfg.DSparse, rng)
	return m, nil
}

func initDense(w *mat.Dense, fanIn int, rng *rand.Rand) {
	std := math.Sqrt(2.0 / float64(fanIn))
	data := w.RawMatrix().Data
	for i := range data {
		data[i] = rng.NormFloat64() * std
	}
}

// Config returns the model configuration.
func (m *SparseAutoencoder) Config() Config {
	return m.cfg
}

// Encode maps one embedding to its sparse code: ReLU(Wx + b). The output
// has length DSparse and every coordinate is >= 0.
func (m *SparseAutoencoder) Encode(x []float64) []float64 {
	xv := mat.NewVecDense(m.cfg.DModel, x)
	z := mat.NewVecDense(m.cfg.DSparse, nil)
	z.MulVec(m.encW, xv)
	z.AddVec(z, m.encB)
	out := z.RawVector().Data
	for i, v := range out {
		if v < 0 {
			out[i] = 0
		}
	}
	return out
}

// Decode maps a sparse code back to embedding space.
func (m *SparseAutoencoder) Decode(z []float64) []float64 {
	zv := mat.NewVecDense(m.cfg.DSparse, z)
	y := mat.NewVecDense(m.cfg.DModel, nil)
	y.MulVec(m.decW, zv)
	y.AddVec(y, m.decB)
	return y.RawVector().Data
}

// Forward returns the reconstruction and the sparse code for x. Both
// outputs are needed downstream: the reconstruction for the loss, the
// code for interpretability. Deterministic for fixed parameters.
func (m *SparseAutoencoder) Forward(x []float64) (recon, code []float64) {
	code = m.Encode(x)
	recon = m.Decode(code)
	return recon, code
}

// EncodeBatch encodes a batch of embeddings (rows = samples). It returns
// both the pre-activations and the rectified codes; the trainer needs the
// former for backprop.
func (m *SparseAutoencoder) EncodeBatch(x *mat.Dense) (pre, code *mat.Dense) {
	n, _ := x.Dims()
	pre = mat.NewDense(n, m.cfg.DSparse, nil)
	pre.Mul(x, m.encW.T())

	bias := m.encB.RawVector().Data
	preData := pre.RawMatrix().Data
	for i := 0; i < n; i++ {
		row := preData[i*m.cfg.DSparse : (i+1)*m.cfg.DSparse]
		for j := range row {
			row[j] += bias[j]
		}
	}

	code = mat.NewDense(n, m.cfg.DSparse, nil)
	codeData := code.RawMatrix().Data
	for i, v := range preData {
		if v > 0 {
			codeData[i] = v
		}
	}
	return pre, code
}

// DecodeBatch decodes a batch of sparse codes (rows = samples).
func (m *SparseAutoencoder) DecodeBatch(code *mat.Dense) *mat.Dense {
	n, _ := code.Dims()
	recon := mat.NewDense(n, m.cfg.DModel, nil)
	recon.Mul(code, m.decW.T())

	bias := m.decB.RawVector().Data
	data := recon.RawMatrix().Data
	for i := 0; i < n; i++ {
		row := data[i*m.cfg.DModel : (i+1)*m.cfg.DModel]
		for j := range row {
			row[j] += bias[j]
		}
	}
	return recon
}

// EncoderWeight exposes the encoder weight matrix for the trainer.
func (m *SparseAutoencoder) EncoderWeight() *mat.Dense { return m.encW }

// EncoderBias exposes the encoder bias for the trainer.
func (m *SparseAutoencoder) EncoderBias() *mat.VecDense { return m.encB }

// DecoderWeight exposes the decoder weight matrix for the trainer.
func (m *SparseAutoencoder) DecoderWeight() *mat.Dense { return m.decW }

// DecoderBias exposes the decoder bias for the trainer.
func (m *SparseAutoencoder) DecoderBias() *mat.VecDense { return m.decB }

// Param is one learnable parameter tensor, flattened. Data aliases model
// memory so optimizer updates apply in place.
type Param struct {
	Name string
	Data []float64
}

// Params returns the learnable parameters in a fixed order: encoder
// weight, encoder bias, decoder weight, decoder bias.
func (m *SparseAutoencoder) Params() []Param {
	return []Param{
		{Name: "encoder_weight", Data: m.encW.RawMatrix().Data},
		{Name: "encoder_bias", Data: m.encB.RawVector().Data},
		{Name: "decoder_weight", Data: m.decW.RawMatrix().Data},
		{Name: "decoder_bias", Data: m.decB.RawVector().Data},
	}
}
