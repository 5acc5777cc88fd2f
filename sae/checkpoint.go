package sae

import (
	"fmt"
	"os"
	"path/filepath"

	"gonum.org/v1/gonum/mat"

	"github.com/josephtey/predictive-saes/internal/json"
)

// checkpoint is the serialized form of a model: config plus flattened
// parameters in row-major order.
type checkpoint struct {
	Config        Config    `json:"config"`
	EncoderWeight []float64 `json:"encoder_weight"`
	EncoderBias   []float64 `json:"encoder_bias"`
	DecoderWeight []float64 `json:"decoder_weight"`
	DecoderBias   []float64 `json:"decoder_bias"`
}

// Save writes the model to path as JSON. The write is atomic: a temp file
// in the same directory is renamed over the target on success.
func (m *SparseAutoencoder) Save(path string) error {
	ckpt := checkpoint{
		Config:        m.cfg,
		EncoderWeight: m.encW.RawMatrix().Data,
		EncoderBias:   m.encB.RawVector().Data,
		DecoderWeight: m.decW.RawMatrix().Data,
		DecoderBias:   m.decB.RawVector().Data,
	}

	data, err := json.Marshal(ckpt)
	if err != nil {
		return fmt.Errorf("encoding checkpoint: %w", err)
	}

	tmp := path + ".tmp"
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating checkpoint directory: %w", err)
	}
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("writing checkpoint %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("finalizing checkpoint %s: %w", path, err)
	}
	return nil
}

// Load reads a model checkpoint written by Save.
func Load(path string) (*SparseAutoencoder, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading checkpoint %s: %w", path, err)
	}

	var ckpt checkpoint
	if err := json.Unmarshal(data, &ckpt); err != nil {
		return nil, fmt.Errorf("decoding checkpoint %s: %w", path, err)
	}
	if err := ckpt.Config.Validate(); err != nil {
		return nil, fmt.Errorf("checkpoint %s has invalid config: %w", path, err)
	}

	c := ckpt.Config
	if len(ckpt.EncoderWeight) != c.DSparse*c.DModel ||
		len(ckpt.EncoderBias) != c.DSparse ||
		len(ckpt.DecoderWeight) != c.DModel*c.DSparse ||
		len(ckpt.DecoderBias) != c.DModel {
		return nil, fmt.Errorf("checkpoint %s parameter shapes do not match config", path)
	}

	return &SparseAutoencoder{
		cfg:  c,
		encW: mat.NewDense(c.DSparse, c.DModel, ckpt.EncoderWeight),
		encB: mat.NewVecDense(c.DSparse, ckpt.EncoderBias),
		decW: mat.NewDense(c.DModel, c.DSparse, ckpt.DecoderWeight),
		decB: mat.NewVecDense(c.DModel, ckpt.DecoderBias),
	}, nil
}
