// Package analysis provides read-only reporting over built registries and
// interpreted features: density histograms and top-k activating feature
// summaries. Nothing here mutates registry or feature data; callers plot
// or print the returned structures themselves.
package analysis

import (
	"fmt"
	"math"
	"sort"

	"github.com/josephtey/predictive-saes/interp"
	"github.com/josephtey/predictive-saes/registry"
)

// HistogramBin is one bucket of a density histogram over [Low, High).
type HistogramBin struct {
	Low   float64
	High  float64
	Count int
}

// DensityHistogram buckets every feature's activation density into bins
// over [0, 1].
func DensityHistogram(reg *registry.Registry, bins int) []HistogramBin {
	if bins <= 0 {
		bins = 30
	}
	out := make([]HistogramBin, bins)
	width := 1.0 / float64(bins)
	for i := range out {
		out[i].Low = float64(i) * width
		out[i].High = float64(i+1) * width
	}

	for f := 0; f < reg.NumFeatures(); f++ {
		d := reg.Density(f)
		idx := int(d / width)
		if idx >= bins {
			idx = bins - 1
		}
		out[idx].Count++
	}
	return out
}

// LogDensities returns log10 of the given densities with zero-density
// features (log = -Inf) filtered out, mirroring how dead features are
// excluded from density histograms.
func LogDensities(densities []float64) []float64 {
	out := make([]float64, 0, len(densities))
	for _, d := range densities {
		l := math.Log10(d)
		if math.IsInf(l, -1) {
			continue
		}
		out = append(out, l)
	}
	return out
}

// FeatureActivation pairs a feature index (and its label, when one was
// interpreted) with its activation on a given sample.
type FeatureActivation struct {
	Index int
	Label string
	Act   float64
}

// TopActivatingFeatures returns the k features with the highest
// activation on sample sampleIdx, strongest first. Labels are joined from
// the interpreted features where available; uninterpreted features fall
// back to "Feature <index>".
func TopActivatingFeatures(reg *registry.Registry, features []interp.Feature, sampleIdx, k int) ([]FeatureActivation, error) {
	if sampleIdx < 0 || sampleIdx >= reg.NumSamples() {
		return nil, fmt.Errorf("sample index %d out of range [0, %d)", sampleIdx, reg.NumSamples())
	}
	if k <= 0 || k > reg.NumFeatures() {
		k = reg.NumFeatures()
	}

	labels := make(map[int]string, len(features))
	for _, f := range features {
		labels[f.Index] = f.Label
	}

	all := make([]FeatureActivation, reg.NumFeatures())
	for f := range all {
		label, ok := labels[f]
		if !ok {
			label = fmt.Sprintf("Feature %d", f)
		}
		all[f] = FeatureActivation{Index: f, Label: label, Act: reg.At(f, sampleIdx)}
	}

	sort.SliceStable(all, func(i, j int) bool {
		return all[i].Act > all[j].Act
	})
	return all[:k], nil
}
