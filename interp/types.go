// Package interp turns trained sparse-autoencoder features into
// human-readable interpretations by sampling activation evidence per
// feature and asking an LLM to label and score it.
package interp

import (
	"context"
	"fmt"
)

// FeatureSample pairs one sentence with one feature's activation on it.
type FeatureSample struct {
	Text string  `json:"text"`
	Act  float64 `json:"act"`
}

// Interpretation is the label/reasoning/attributes triple returned by the
// interpretation service for a feature's contrastive evidence.
type Interpretation struct {
	Label      string   `json:"label"`
	Reasoning  string   `json:"reasoning"`
	Attributes []string `json:"attributes"`
}

// Feature is the output record for one successfully interpreted feature.
// Immutable once emitted; emitted only when every field is computed.
type Feature struct {
	Index          int             `json:"index"`
	Label          string          `json:"label"`
	Attributes     []string        `json:"attributes"`
	Reasoning      string          `json:"reasoning"`
	Confidence     float64         `json:"confidence"`
	Density        float64         `json:"density"`
	HighActSamples []FeatureSample `json:"high_act_samples"`
	LowActSamples  []FeatureSample `json:"low_act_samples"`
}

// Client is the external interpretation service contract: one call to
// propose a label and two calls to score how well the proposed attributes
// match a sample set, as a percentage in [0, 100].
type Client interface {
	Interpret(ctx context.Context, high, low []FeatureSample) (*Interpretation, error)
	Score(ctx context.Context, samples []FeatureSample, attributes []string) (float64, error)
}

// Handler consumes interpreted features. The pipeline does not decide how
// results are stored or displayed. Handlers must not block indefinitely.
type Handler interface {
	HandleFeature(Feature)
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(Feature)

func (f HandlerFunc) HandleFeature(ft Feature) { f(ft) }

// SkipKind classifies why a feature was skipped.
type SkipKind string

const (
	// SkipEvidenceShortage: fewer zero-activation samples than the low
	// evidence set requires.
	SkipEvidenceShortage SkipKind = "evidence_shortage"

	// SkipServiceError: the interpretation service failed, timed out, or
	// returned an unusable response.
	SkipServiceError SkipKind = "service_error"
)

// SkipReason records why one feature produced no Feature record.
type SkipReason struct {
	Kind SkipKind
	Err  error
}

func (s *SkipReason) Error() string {
	return fmt.Sprintf("feature skipped (%s): %v", s.Kind, s.Err)
}

func (s *SkipReason) Unwrap() error { return s.Err }

// Outcome is the per-feature result: either a Feature or a SkipReason,
// never both.
type Outcome struct {
	Index   int
	Feature *Feature
	Skip    *SkipReason
}

// Summary reports pipeline totals. The pipeline always completes with
// whatever subset of features succeeded.
type Summary struct {
	Interpreted int
	Skipped     int
	SkipReasons map[SkipKind]int
}
