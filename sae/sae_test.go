package sae

import (
	"math/rand"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{name: "valid overcomplete", cfg: Config{DModel: 4, DSparse: 16, SparsityAlpha: 1}, wantErr: false},
		{name: "d_sparse equal to d_model", cfg: Config{DModel: 8, DSparse: 8, SparsityAlpha: 1}, wantErr: true},
		{name: "d_sparse below d_model", cfg: Config{DModel: 8, DSparse: 4, SparsityAlpha: 1}, wantErr: true},
		{name: "zero d_model", cfg: Config{DModel: 0, DSparse: 4, SparsityAlpha: 1}, wantErr: true},
		{name: "negative alpha", cfg: Config{DModel: 4, DSparse: 16, SparsityAlpha: -1}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr {
				require.Error(t, err)
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestEncodeShapeAndNonNegativity(t *testing.T) {
	configs := []Config{
		{DModel: 4, DSparse: 8, SparsityAlpha: 1},
		{DModel: 16, DSparse: 64, SparsityAlpha: 0.5},
		{DModel: 32, DSparse: 256, SparsityAlpha: 2},
	}

	rng := rand.New(rand.NewSource(1))
	for _, cfg := range configs {
		model, err := New(cfg, rng)
		require.NoError(t, err)

		x := make([]float64, cfg.DModel)
		for i := range x {
			x[i] = rng.NormFloat64()
		}

		code := model.Encode(x)
		require.Len(t, code, cfg.DSparse)
		for i, v := range code {
			require.GreaterOrEqual(t, v, 0.0, "coordinate %d is negative", i)
		}
	}
}

func TestForwardIsDecodeOfEncode(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	model, err := New(Config{DModel: 8, DSparse: 32, SparsityAlpha: 1}, rng)
	require.NoError(t, err)

	x := make([]float64, 8)
	for i := range x {
		x[i] = rng.NormFloat64()
	}

	recon, code := model.Forward(x)
	require.Equal(t, model.Encode(x), code)
	require.Equal(t, model.Decode(code), recon)

	// Same input, same parameters, same output.
	recon2, code2 := model.Forward(x)
	require.Equal(t, recon, recon2)
	require.Equal(t, code, code2)
}

func TestBatchMatchesSingle(t *testing.T) {
	rng := rand.New(rand.NewSource(11))
	cfg := Config{DModel: 6, DSparse: 12, SparsityAlpha: 1}
	model, err := New(cfg, rng)
	require.NoError(t, err)

	const n = 5
	data := make([]float64, n*cfg.DModel)
	for i := range data {
		data[i] = rng.NormFloat64()
	}

	x := mat.NewDense(n, cfg.DModel, data)
	_, code := model.EncodeBatch(x)
	recon := model.DecodeBatch(code)

	for i := 0; i < n; i++ {
		row := data[i*cfg.DModel : (i+1)*cfg.DModel]
		wantRecon, wantCode := model.Forward(row)
		for j := 0; j < cfg.DSparse; j++ {
			require.InDelta(t, wantCode[j], code.At(i, j), 1e-12)
		}
		for j := 0; j < cfg.DModel; j++ {
			require.InDelta(t, wantRecon[j], recon.At(i, j), 1e-12)
		}
	}
}

func TestCheckpointRoundTrip(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	cfg := Config{DModel: 4, DSparse: 8, SparsityAlpha: 1.5}
	model, err := New(cfg, rng)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "sae.json")
	require.NoError(t, model.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, cfg, loaded.Config())

	x := []float64{0.5, -1.25, 2, 0}
	recon, code := model.Forward(x)
	recon2, code2 := loaded.Forward(x)
	require.Equal(t, code, code2)
	require.Equal(t, recon, recon2)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.json"))
	require.Error(t, err)
}
