package interp

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/josephtey/predictive-saes/registry"
)

// Options configures the interpretation pipeline.
type Options struct {
	// MaxFeatures bounds how many feature rows are processed, by index.
	// Zero processes every row in the registry.
	MaxFeatures int

	// MaxConcurrency is the number of features processed at once. One
	// (or zero) processes features sequentially in index order. Above
	// one, failures stay feature-local but features are emitted to the
	// handler in completion order, not index order.
	MaxConcurrency int

	// HighSampleCount and LowSampleCount size the evidence sets.
	// Zero means the default of 50.
	HighSampleCount int
	LowSampleCount  int

	// Seed derives each feature's random stream (seed + feature index),
	// so low-evidence draws are independent per feature and stable
	// under concurrency.
	Seed int64

	// CallTimeout bounds each service call. Zero means 60s. No feature
	// may hang the whole pipeline.
	CallTimeout time.Duration

	// RateLimitPerMinute throttles service calls (0 = unlimited).
	RateLimitPerMinute int
}

func (o *Options) defaults() {
	if o.HighSampleCount <= 0 {
		o.HighSampleCount = 50
	}
	if o.LowSampleCount <= 0 {
		o.LowSampleCount = 50
	}
	if o.MaxConcurrency <= 0 {
		o.MaxConcurrency = 1
	}
	if o.CallTimeout <= 0 {
		o.CallTimeout = 60 * time.Second
	}
}

// Pipeline runs feature interpretation over a built registry.
type Pipeline struct {
	client    Client
	reg       *registry.Registry
	sentences []string
	opts      Options
	log       *zap.Logger
	limiter   *rate.Limiter
}

// New builds a pipeline. The sentence list must be column-aligned with
// the registry.
func New(client Client, reg *registry.Registry, sentences []string, opts Options, logger *zap.Logger) (*Pipeline, error) {
	if client == nil {
		return nil, fmt.Errorf("interpretation client is required")
	}
	if len(sentences) != reg.NumSamples() {
		return nil, fmt.Errorf("sentence count %d does not match registry sample count %d", len(sentences), reg.NumSamples())
	}
	opts.defaults()

	var limiter *rate.Limiter
	if opts.RateLimitPerMinute > 0 {
		rps := float64(opts.RateLimitPerMinute) / 60.0
		burst := opts.RateLimitPerMinute / 4
		if burst < 1 {
			burst = 1
		}
		if burst > 5 {
			burst = 5
		}
		limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}

	return &Pipeline{
		client:    client,
		reg:       reg,
		sentences: sentences,
		opts:      opts,
		log:       logger,
		limiter:   limiter,
	}, nil
}

// Run processes every feature row and invokes h once per successfully
// interpreted feature. Skips never abort the run; Run returns a summary
// of how many features succeeded and why the rest were skipped. The only
// returned error is context cancellation.
func (p *Pipeline) Run(ctx context.Context, h Handler) (*Summary, error) {
	features := p.reg.NumFeatures()
	if p.opts.MaxFeatures > 0 && p.opts.MaxFeatures < features {
		features = p.opts.MaxFeatures
	}

	summary := &Summary{SkipReasons: make(map[SkipKind]int)}

	var mu sync.Mutex
	record := func(o Outcome) {
		mu.Lock()
		defer mu.Unlock()
		if o.Skip != nil {
			summary.Skipped++
			summary.SkipReasons[o.Skip.Kind]++
			p.log.Warn("skipping feature",
				zap.Int("feature", o.Index),
				zap.String("reason", string(o.Skip.Kind)),
				zap.Error(o.Skip.Err),
			)
			return
		}
		summary.Interpreted++
		h.HandleFeature(*o.Feature)
	}

	if p.opts.MaxConcurrency == 1 {
		for f := 0; f < features; f++ {
			if err := ctx.Err(); err != nil {
				return summary, err
			}
			record(p.interpretFeature(ctx, f))
		}
	} else {
		sem := make(chan struct{}, p.opts.MaxConcurrency)
		var wg sync.WaitGroup
		for f := 0; f < features; f++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				sem <- struct{}{}
				defer func() { <-sem }()
				if ctx.Err() != nil {
					return
				}
				record(p.interpretFeature(ctx, f))
			}()
		}
		wg.Wait()
		if err := ctx.Err(); err != nil {
			return summary, err
		}
	}

	p.log.Info("interpretation pipeline complete",
		zap.Int("interpreted", summary.Interpreted),
		zap.Int("skipped", summary.Skipped),
	)
	return summary, nil
}

// interpretFeature runs steps 1-8 for one feature. Any service failure
// skips the feature; nothing here is fatal to the pipeline.
func (p *Pipeline) interpretFeature(ctx context.Context, f int) Outcome {
	row := p.reg.Row(f)

	samples := make([]FeatureSample, len(row))
	nonzero := 0
	for i, act := range row {
		samples[i] = FeatureSample{Text: p.sentences[i], Act: act}
		if act != 0 {
			nonzero++
		}
	}
	sort.SliceStable(samples, func(i, j int) bool {
		return samples[i].Act > samples[j].Act
	})

	var high []FeatureSample
	for _, s := range samples[:min(p.opts.HighSampleCount, len(samples))] {
		if s.Act != 0 {
			high = append(high, s)
		}
	}

	// Activations are non-negative, so after the descending sort the
	// exactly-zero samples are the tail.
	zeros := samples[nonzero:]
	if len(zeros) < p.opts.LowSampleCount {
		return Outcome{Index: f, Skip: &SkipReason{
			Kind: SkipEvidenceShortage,
			Err:  fmt.Errorf("need %d zero-activation samples, have %d", p.opts.LowSampleCount, len(zeros)),
		}}
	}

	// Uniform draw without replacement from an independent per-feature
	// stream.
	rng := rand.New(rand.NewSource(p.opts.Seed + int64(f)))
	low := make([]FeatureSample, 0, p.opts.LowSampleCount)
	for _, idx := range rng.Perm(len(zeros))[:p.opts.LowSampleCount] {
		low = append(low, zeros[idx])
	}

	itp, err := p.call(ctx, func(callCtx context.Context) (*Interpretation, error) {
		return p.client.Interpret(callCtx, high, low)
	})
	if err != nil {
		return Outcome{Index: f, Skip: &SkipReason{Kind: SkipServiceError, Err: err}}
	}

	highScore, err := p.score(ctx, high, itp.Attributes)
	if err != nil {
		return Outcome{Index: f, Skip: &SkipReason{Kind: SkipServiceError, Err: err}}
	}
	lowScore, err := p.score(ctx, low, itp.Attributes)
	if err != nil {
		return Outcome{Index: f, Skip: &SkipReason{Kind: SkipServiceError, Err: err}}
	}

	return Outcome{Index: f, Feature: &Feature{
		Index:          f,
		Label:          itp.Label,
		Attributes:     itp.Attributes,
		Reasoning:      itp.Reasoning,
		Confidence:     math.Abs(highScore - lowScore),
		Density:        float64(nonzero) / float64(len(row)),
		HighActSamples: high,
		LowActSamples:  low,
	}}
}

// call wraps one service invocation with rate limiting and the per-call
// timeout.
func (p *Pipeline) call(ctx context.Context, fn func(context.Context) (*Interpretation, error)) (*Interpretation, error) {
	if p.limiter != nil {
		if err := p.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limiter wait failed: %w", err)
		}
	}
	callCtx, cancel := context.WithTimeout(ctx, p.opts.CallTimeout)
	defer cancel()
	return fn(callCtx)
}

func (p *Pipeline) score(ctx context.Context, samples []FeatureSample, attributes []string) (float64, error) {
	if p.limiter != nil {
		if err := p.limiter.Wait(ctx); err != nil {
			return 0, fmt.Errorf("rate limiter wait failed: %w", err)
		}
	}
	callCtx, cancel := context.WithTimeout(ctx, p.opts.CallTimeout)
	defer cancel()
	return p.client.Score(callCtx, samples, attributes)
}
