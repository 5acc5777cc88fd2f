package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/josephtey/predictive-saes/chunking"
)

var (
	chunkInput  string
	chunkOutput string
)

var chunkCmd = &cobra.Command{
	Use:   "chunk",
	Short: "Split a text corpus into a sentences CSV",
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := newLogger()
		defer func() { _ = logger.Sync() }()

		text, err := os.ReadFile(chunkInput)
		if err != nil {
			return fmt.Errorf("reading input: %w", err)
		}

		sentences := chunking.SplitSentences(string(text))
		if len(sentences) == 0 {
			return fmt.Errorf("no sentences found in %s", chunkInput)
		}

		out, err := os.Create(chunkOutput)
		if err != nil {
			return fmt.Errorf("creating output: %w", err)
		}
		defer out.Close()

		if err := chunking.WriteCSV(out, sentences); err != nil {
			return fmt.Errorf("writing sentences: %w", err)
		}

		logger.Info("wrote sentences",
			zap.Int("count", len(sentences)),
			zap.String("path", chunkOutput),
		)
		return nil
	},
}

func init() {
	chunkCmd.Flags().StringVar(&chunkInput, "input", "", "input text file")
	chunkCmd.Flags().StringVar(&chunkOutput, "output", "sentences.csv", "output sentences CSV")
	_ = chunkCmd.MarkFlagRequired("input")
}
