package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/mat"

	"github.com/josephtey/predictive-saes/dataset"
	"github.com/josephtey/predictive-saes/embeddings"
)

var (
	embedSentences string
	embedOutput    string
	embedEndpoint  string
	embedModel     string
	embedDim       int
	embedBatchSize int
)

var embedCmd = &cobra.Command{
	Use:   "embed",
	Short: "Embed a sentences CSV into a .npy matrix",
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := newLogger()
		defer func() { _ = logger.Sync() }()

		sentences, err := dataset.LoadSentences(embedSentences)
		if err != nil {
			return err
		}
		if len(sentences) == 0 {
			return fmt.Errorf("no sentences in %s", embedSentences)
		}

		embedder := embeddings.NewHTTPEmbedder(
			embedEndpoint,
			viper.GetString("embed_api_key"),
			embedModel,
			embedDim,
		)

		out := mat.NewDense(len(sentences), embedDim, nil)
		for start := 0; start < len(sentences); start += embedBatchSize {
			end := min(start+embedBatchSize, len(sentences))
			vectors, err := embedder.Embed(cmd.Context(), sentences[start:end])
			if err != nil {
				return fmt.Errorf("embedding batch at %d: %w", start, err)
			}
			for i, v := range vectors {
				for j, x := range v {
					out.Set(start+i, j, float64(x))
				}
			}
			logger.Info("embedded batch",
				zap.Int("done", end),
				zap.Int("total", len(sentences)),
			)
		}

		if err := dataset.SaveEmbeddings(embedOutput, out); err != nil {
			return err
		}
		logger.Info("wrote embeddings",
			zap.Int("rows", len(sentences)),
			zap.Int("dim", embedDim),
			zap.String("path", embedOutput),
		)
		return nil
	},
}

func init() {
	embedCmd.Flags().StringVar(&embedSentences, "sentences", "", "input sentences CSV")
	embedCmd.Flags().StringVar(&embedOutput, "output", "embeddings.npy", "output .npy file")
	embedCmd.Flags().StringVar(&embedEndpoint, "endpoint", "", "OpenAI-compatible embeddings endpoint URL")
	embedCmd.Flags().StringVar(&embedModel, "model", "", "embedding model name")
	embedCmd.Flags().IntVar(&embedDim, "dim", 768, "embedding dimensionality")
	embedCmd.Flags().IntVar(&embedBatchSize, "batch-size", 64, "sentences per request")
	_ = embedCmd.MarkFlagRequired("sentences")
	_ = embedCmd.MarkFlagRequired("endpoint")
	_ = embedCmd.MarkFlagRequired("model")
}
