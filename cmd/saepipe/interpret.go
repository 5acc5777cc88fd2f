package main

import (
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/josephtey/predictive-saes/dataset"
	"github.com/josephtey/predictive-saes/internal/json"
	"github.com/josephtey/predictive-saes/interp"
	"github.com/josephtey/predictive-saes/registry"
	"github.com/josephtey/predictive-saes/sae"
)

var (
	interpCheckpoint  string
	interpSentences   string
	interpEmbeddings  string
	interpOutput      string
	interpMaxFeatures int
	interpConcurrency int
	interpSeed        int64
	interpModel       string
	interpTimeout     time.Duration
	interpRateLimit   int
)

var interpretCmd = &cobra.Command{
	Use:   "interpret",
	Short: "Label and score trained SAE features with an LLM",
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := newLogger()
		defer func() { _ = logger.Sync() }()

		apiKey := viper.GetString("openrouter_api_key")
		if apiKey == "" {
			return fmt.Errorf("OPENROUTER_API_KEY is required")
		}

		model, err := sae.Load(interpCheckpoint)
		if err != nil {
			return err
		}

		ds, err := dataset.Load(interpSentences, interpEmbeddings)
		if err != nil {
			return err
		}

		logger.Info("building feature registry",
			zap.Int("samples", ds.Len()),
			zap.Int("d_sparse", model.Config().DSparse),
		)
		reg, err := registry.Build(cmd.Context(), model, ds.Embeddings, registry.Opts{
			MaxFeatures: interpMaxFeatures,
		})
		if err != nil {
			return err
		}

		out, err := os.Create(interpOutput)
		if err != nil {
			return fmt.Errorf("creating output: %w", err)
		}
		defer out.Close()

		var mu sync.Mutex
		enc := json.NewEncoder(out)
		handler := interp.HandlerFunc(func(f interp.Feature) {
			mu.Lock()
			defer mu.Unlock()
			if err := enc.Encode(f); err != nil {
				logger.Error("failed to write feature", zap.Int("feature", f.Index), zap.Error(err))
				return
			}
			logger.Info("interpreted feature",
				zap.Int("feature", f.Index),
				zap.String("label", f.Label),
				zap.Float64("confidence", f.Confidence),
				zap.Float64("density", f.Density),
			)
		})

		client := interp.NewOpenRouterClient(apiKey, interpModel)
		pipeline, err := interp.New(client, reg, ds.Sentences, interp.Options{
			MaxFeatures:        interpMaxFeatures,
			MaxConcurrency:     interpConcurrency,
			Seed:               interpSeed,
			CallTimeout:        interpTimeout,
			RateLimitPerMinute: interpRateLimit,
		}, logger)
		if err != nil {
			return err
		}

		summary, err := pipeline.Run(cmd.Context(), handler)
		if err != nil {
			return err
		}

		logger.Info("wrote features",
			zap.String("path", interpOutput),
			zap.Int("interpreted", summary.Interpreted),
			zap.Int("skipped", summary.Skipped),
		)
		for kind, count := range summary.SkipReasons {
			logger.Info("skip reason", zap.String("kind", string(kind)), zap.Int("count", count))
		}
		return nil
	},
}

func init() {
	interpretCmd.Flags().StringVar(&interpCheckpoint, "checkpoint", "", "trained model checkpoint JSON")
	interpretCmd.Flags().StringVar(&interpSentences, "sentences", "", "input sentences CSV")
	interpretCmd.Flags().StringVar(&interpEmbeddings, "embeddings", "", "input embeddings .npy")
	interpretCmd.Flags().StringVar(&interpOutput, "output", "features.jsonl", "output features JSONL")
	interpretCmd.Flags().IntVar(&interpMaxFeatures, "max-features", 0, "process only the first N features (0 = all)")
	interpretCmd.Flags().IntVar(&interpConcurrency, "concurrency", 1, "features interpreted concurrently")
	interpretCmd.Flags().Int64Var(&interpSeed, "seed", 42, "random seed for low-evidence sampling")
	interpretCmd.Flags().StringVar(&interpModel, "model", "openai/gpt-4o-mini", "OpenRouter model ID")
	interpretCmd.Flags().DurationVar(&interpTimeout, "timeout", 60*time.Second, "per-call service timeout")
	interpretCmd.Flags().IntVar(&interpRateLimit, "rate-limit", 0, "service calls per minute (0 = unlimited)")
	_ = interpretCmd.MarkFlagRequired("checkpoint")
	_ = interpretCmd.MarkFlagRequired("sentences")
	_ = interpretCmd.MarkFlagRequired("embeddings")
}
