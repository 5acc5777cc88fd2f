// Package registry builds the dense feature-activation matrix for a
// frozen model over a fixed embedding set: one row per feature, one
// column per sample.
package registry

import (
	"context"
	"fmt"
	"runtime"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/mat"

	"github.com/josephtey/predictive-saes/sae"
)

// Opts configures a registry build.
type Opts struct {
	// MaxFeatures truncates the registry to the first MaxFeatures rows,
	// strictly by feature index. Zero keeps all features. Truncation is
	// positional on purpose: importance-ranked selection would change
	// the reported coverage semantics.
	MaxFeatures int

	// Parallelism bounds the number of concurrent encode workers. Zero
	// uses GOMAXPROCS. Output is identical to a sequential build: each
	// worker writes only its own sample's column.
	Parallelism int
}

// Registry is a write-once (num_features x num_samples) activation
// matrix. All values are >= 0. Never mutated after Build returns.
type Registry struct {
	data        *mat.Dense
	numFeatures int
	numSamples  int
}

// Build encodes every embedding row with the frozen model and records
// each feature's activation per sample. Deterministic for a fixed model
// and embedding order.
func Build(ctx context.Context, model *sae.SparseAutoencoder, embeddings *mat.Dense, opts Opts) (*Registry, error) {
	cfg := model.Config()
	n, dim := embeddings.Dims()
	if dim != cfg.DModel {
		return nil, fmt.Errorf("embedding dimension %d does not match model d_model %d", dim, cfg.DModel)
	}
	if n == 0 {
		return nil, fmt.Errorf("no embeddings to build registry from")
	}

	features := cfg.DSparse
	if opts.MaxFeatures > 0 && opts.MaxFeatures < features {
		features = opts.MaxFeatures
	}

	parallelism := opts.Parallelism
	if parallelism <= 0 {
		parallelism = runtime.GOMAXPROCS(0)
	}

	r := &Registry{
		data:        mat.NewDense(features, n, nil),
		numFeatures: features,
		numSamples:  n,
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(parallelism)
	for i := 0; i < n; i++ {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			code := model.Encode(embeddings.RawRowView(i))
			for f := 0; f < features; f++ {
				r.data.Set(f, i, code[f])
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return r, nil
}

// NumFeatures returns the (possibly truncated) feature row count.
func (r *Registry) NumFeatures() int { return r.numFeatures }

// NumSamples returns the sample column count.
func (r *Registry) NumSamples() int { return r.numSamples }

// At returns the activation of feature f on sample i.
func (r *Registry) At(f, i int) float64 { return r.data.At(f, i) }

// Row returns a copy of feature f's full activation row.
func (r *Registry) Row(f int) []float64 {
	out := make([]float64, r.numSamples)
	copy(out, r.data.RawRowView(f))
	return out
}

// Density returns the fraction of samples on which feature f is non-zero.
// Exactly 0 for an all-zero row and exactly 1 for an all-nonzero row.
func (r *Registry) Density(f int) float64 {
	row := r.data.RawRowView(f)
	nonzero := 0
	for _, v := range row {
		if v != 0 {
			nonzero++
		}
	}
	return float64(nonzero) / float64(len(row))
}
