package train

import (
	"math"

	"github.com/josephtey/predictive-saes/sae"
)

// adam implements the Adam update rule over the model's flattened
// parameter slices. State is kept per parameter in the order returned by
// sae.SparseAutoencoder.Params.
type adam struct {
	beta1   float64
	beta2   float64
	epsilon float64

	m [][]float64 // first moment
	v [][]float64 // second moment
	t int
}

func newAdam(params []sae.Param) *adam {
	m := make([][]float64, len(params))
	v := make([][]float64, len(params))
	for i, p := range params {
		m[i] = make([]float64, len(p.Data))
		v[i] = make([]float64, len(p.Data))
	}
	return &adam{
		beta1:   0.9,
		beta2:   0.999,
		epsilon: 1e-8,
		m:       m,
		v:       v,
	}
}

// step applies one Adam update in place. grads must be index-aligned with
// params and match their lengths.
func (o *adam) step(params []sae.Param, grads [][]float64, lr float64) {
	o.t++
	bias1 := 1.0 - math.Pow(o.beta1, float64(o.t))
	bias2 := 1.0 - math.Pow(o.beta2, float64(o.t))

	for i, p := range params {
		g := grads[i]
		for j := range p.Data {
			o.m[i][j] = o.beta1*o.m[i][j] + (1.0-o.beta1)*g[j]
			o.v[i][j] = o.beta2*o.v[i][j] + (1.0-o.beta2)*g[j]*g[j]

			mHat := o.m[i][j] / bias1
			vHat := o.v[i][j] / bias2

			p.Data[j] -= lr * mHat / (math.Sqrt(vHat) + o.epsilon)
		}
	}
}
